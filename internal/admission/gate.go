// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package admission decides whether a connection attempt may be upgraded
// to an RPC connection. The decision happens once, before the upgrade.
package admission

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/tolstoyevsky/shirow/internal/logging"
	"github.com/tolstoyevsky/shirow/internal/telemetry"
	"github.com/tolstoyevsky/shirow/internal/token"
	"github.com/tolstoyevsky/shirow/internal/tokenstore"
)

const Realm = "shirow"

type Options struct {
	Key            []byte
	Algorithm      string
	AllowMockToken bool

	// Store is consulted after the signature check when set.
	Store tokenstore.Store
}

type Gate struct {
	opts      Options
	validator *token.Validator
	logger    *log.Logger
	metrics   *telemetry.Metrics
}

// NewGate returns a gate for the given options. A missing key is not
// an error here: every attempt is then rejected with 500 so that the
// misconfiguration is reported per attempt.
func NewGate(opts Options) (*Gate, error) {
	g := &Gate{
		opts:    opts,
		logger:  logging.NopLogger(),
		metrics: telemetry.NewMetrics(nil),
	}

	if len(opts.Key) > 0 {
		v, err := token.NewValidator(opts.Key, opts.Algorithm)
		if err != nil {
			return nil, err
		}
		g.validator = v
	}

	return g, nil
}

func (g *Gate) SetLogger(logger *log.Logger) {
	g.logger = logger
}

func (g *Gate) SetMetrics(m *telemetry.Metrics) {
	g.metrics = m
}

// Admit runs the admission steps in order and stops at the first
// one that decides.
func (g *Gate) Admit(ctx context.Context, raw string) Decision {
	d := g.admit(ctx, raw)
	g.metrics.Admission(d.Status())
	return d
}

func (g *Gate) admit(ctx context.Context, raw string) Decision {
	if raw == "" {
		g.logger.Printf("Rejecting connection: no token")
		return Reject(http.StatusUnauthorized)
	}

	if g.validator == nil {
		g.logger.Printf("[ERROR] Rejecting connection: %s", token.ErrNoKey)
		return Reject(http.StatusInternalServerError)
	}

	if g.opts.AllowMockToken && raw == token.MockToken {
		g.logger.Printf("[WARN] Admitting connection with the mock token")
		return Upgrade(token.MockIdentity())
	}

	identity, err := g.validator.Validate(raw)
	if err != nil {
		g.logger.Printf("Rejecting connection: %s", err)
		return Reject(http.StatusUnauthorized)
	}

	if g.opts.Store != nil {
		live, err := tokenstore.IsLive(ctx, g.opts.Store, identity.UserID, raw)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return Reject(http.StatusServiceUnavailable)
			}
			g.logger.Printf("[ERROR] Rejecting connection of %s: token store: %s", identity, err)
			return Reject(http.StatusInternalServerError)
		}
		if !live {
			g.logger.Printf("Rejecting connection of %s: token is not live", identity)
			return Reject(http.StatusUnauthorized)
		}
	}

	g.logger.Printf("Admitting connection of %s", identity)
	return Upgrade(identity)
}

// Reject finishes the HTTP response of a rejected attempt.
func (g *Gate) Reject(w http.ResponseWriter, d Decision) {
	if d.Status() == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Token realm="`+Realm+`"`)
	}
	w.WriteHeader(d.Status())
}
