// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package server exposes services over WebSocket and framed TCP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/tolstoyevsky/shirow/internal/admission"
	"github.com/tolstoyevsky/shirow/internal/logging"
	"github.com/tolstoyevsky/shirow/internal/rpc"
	"github.com/tolstoyevsky/shirow/internal/scheduler"
	"github.com/tolstoyevsky/shirow/internal/telemetry"
	"github.com/tolstoyevsky/shirow/internal/token"
)

const (
	DefaultShutdownTimeout = 10 * time.Second
	DefaultTokenTimeout    = 10 * time.Second
)

type Options struct {
	OriginPatterns []string
	ReadLimit      int64
	CallRate       float64
	CallBurst      int

	// TokenTimeout bounds the wait for the token record
	// of a TCP connection.
	TokenTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type server struct {
	srvCtx     context.Context
	logger     *log.Logger
	opts       Options
	gate       *admission.Gate
	sched      *scheduler.Scheduler
	newService rpc.ServiceFactory

	registry *prometheus.Registry
	metrics  *telemetry.Metrics
	cbor     *rpc.CBORCodec

	conns    sync.WaitGroup
	errsMu   sync.Mutex
	connErrs *multierror.Error
}

func NewServer(srvCtx context.Context, gate *admission.Gate, sched *scheduler.Scheduler,
	sf rpc.ServiceFactory, opts Options) (*server, error) {
	cborCodec, err := rpc.NewCBORCodec()
	if err != nil {
		return nil, err
	}

	if opts.TokenTimeout == 0 {
		opts.TokenTimeout = DefaultTokenTimeout
	}
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(reg)
	gate.SetMetrics(metrics)

	return &server{
		srvCtx:     srvCtx,
		logger:     logging.NopLogger(),
		opts:       opts,
		gate:       gate,
		sched:      sched,
		newService: sf,
		registry:   reg,
		metrics:    metrics,
		cbor:       cborCodec,
	}, nil
}

func (s *server) SetLogger(logger *log.Logger) {
	s.logger = logger
}

func (s *server) Metrics() *telemetry.Metrics {
	return s.metrics
}

// serveConn runs an admitted connection until it closes.
func (s *server) serveConn(t rpc.Transport, identity *token.Identity, remoteAddr string, codec rpc.Codec) {
	s.conns.Add(1)
	defer s.conns.Done()

	svc := s.newService(s.srvCtx)
	conn, err := rpc.NewConn(s.srvCtx, t, svc, rpc.ConnOptions{
		Identity:   identity,
		RemoteAddr: remoteAddr,
		Codec:      codec,
		Scheduler:  s.sched,
		Logger:     s.logger,
		Metrics:    s.metrics,
		CallRate:   s.opts.CallRate,
		CallBurst:  s.opts.CallBurst,
	})
	if err != nil {
		s.logger.Printf("[ERROR] Unable to set up connection from %s: %s", remoteAddr, err)
		t.Close()
		return
	}

	err = conn.Serve()
	if err != nil {
		s.logger.Printf("Connection %s ended with error: %s", conn.ID(), err)
		s.errsMu.Lock()
		s.connErrs = multierror.Append(s.connErrs, fmt.Errorf("connection %s: %w", conn.ID(), err))
		s.errsMu.Unlock()
	}
}

// ConnErrors returns the errors connections ended with so far.
func (s *server) ConnErrors() error {
	s.errsMu.Lock()
	defer s.errsMu.Unlock()
	return s.connErrs.ErrorOrNil()
}

func (s *server) waitForConns() {
	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.opts.ShutdownTimeout):
		s.logger.Printf("[WARN] Connections still open after %s", s.opts.ShutdownTimeout)
	}

	if err := s.ConnErrors(); err != nil {
		s.logger.Printf("[WARN] Some connections ended with errors: %s", err)
	}
}

// StartAndWait serves HTTP on address until the server context is done.
func (s *server) StartAndWait(address string) error {
	lst, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("HTTP server failed to start: %s", err)
	}
	return s.ServeHTTPListener(lst)
}

func (s *server) ServeHTTPListener(lst net.Listener) error {
	s.logger.Printf("Starting HTTP server (pid %d) at %q ...", os.Getpid(), lst.Addr())

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return s.srvCtx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(lst)
	}()

	var result *multierror.Error
	select {
	case <-s.srvCtx.Done():
		s.logger.Printf("Stopping HTTP server (pid %d) ...", os.Getpid())
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			result = multierror.Append(result, err)
		}
	}

	s.waitForConns()
	s.logger.Printf("HTTP server (pid %d) stopped.", os.Getpid())
	return result.ErrorOrNil()
}
