// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	lsctx "github.com/tolstoyevsky/shirow/internal/context"
	"github.com/tolstoyevsky/shirow/internal/rpc"
	"github.com/tolstoyevsky/shirow/internal/transport/websocket"
)

// Subprotocols lists the WebSocket subprotocols in order of preference.
// Clients negotiating none of them speak JSON.
func Subprotocols() []string {
	return []string{(*rpc.CBORCodec)(nil).Name(), rpc.JSONCodec{}.Name()}
}

func (s *server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/rpc", func(r chi.Router) {
		r.Get("/", s.noToken)
		r.Get("/token", s.noToken)
		r.Get("/token/", s.noToken)
		r.Get("/token/{token}", s.upgrade)
	})

	return r
}

func (s *server) noToken(w http.ResponseWriter, r *http.Request) {
	s.gate.Reject(w, s.gate.Admit(r.Context(), ""))
}

func (s *server) upgrade(w http.ResponseWriter, r *http.Request) {
	d := s.gate.Admit(r.Context(), chi.URLParam(r, "token"))
	if !d.Admitted() {
		s.logger.Printf("Authentication request from %s was dismissed (%d)", r.RemoteAddr, d.Status())
		s.gate.Reject(w, d)
		return
	}

	t, err := websocket.Accept(w, r, websocket.Options{
		OriginPatterns: s.opts.OriginPatterns,
		Subprotocols:   Subprotocols(),
		ReadLimit:      s.opts.ReadLimit,
	})
	if err != nil {
		// Accept has written the response already
		s.logger.Printf("[WARN] WebSocket upgrade from %s failed: %s", r.RemoteAddr, err)
		return
	}

	var codec rpc.Codec = rpc.JSONCodec{}
	if t.Subprotocol() == s.cbor.Name() {
		codec = s.cbor
	}
	t.SetBinary(codec.Binary())

	s.serveConn(t, d.Identity(), r.RemoteAddr, codec)
}

func (s *server) healthz(w http.ResponseWriter, r *http.Request) {
	version, _ := lsctx.ServerVersion(s.srvCtx)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"version": version,
	})
}
