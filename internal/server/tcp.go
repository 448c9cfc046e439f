// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/tolstoyevsky/shirow/internal/rpc"
	"github.com/tolstoyevsky/shirow/internal/transport/stream"
)

// StartTCP serves the framed stream transport on address until
// the server context is done.
func (s *server) StartTCP(address string) error {
	lst, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("TCP Server failed to start: %s", err)
	}
	return s.ServeTCPListener(lst)
}

func (s *server) ServeTCPListener(lst net.Listener) error {
	s.logger.Printf("Starting TCP server (pid %d) at %q ...", os.Getpid(), lst.Addr())

	go func() {
		<-s.srvCtx.Done()
		s.logger.Printf("Stopping TCP server (pid %d) ...", os.Getpid())
		lst.Close()
	}()

	for {
		nc, err := lst.Accept()
		if err != nil {
			if s.srvCtx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Printf("[ERROR] TCP accept failed: %s", err)
			continue
		}
		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.serveStream(nc)
		}()
	}

	s.waitForConns()
	s.logger.Printf("TCP server (pid %d) stopped.", os.Getpid())
	return nil
}

// serveStream admits a stream connection by its first record. A rejected
// connection receives a single error frame carrying the status text.
func (s *server) serveStream(nc net.Conn) {
	t := stream.New(nc, s.opts.ReadLimit)
	remoteAddr := t.RemoteAddr()

	raw, err := t.ReadToken(s.srvCtx, s.opts.TokenTimeout)
	if err != nil {
		s.logger.Printf("[WARN] No token received from %s: %s", remoteAddr, err)
		t.Close()
		return
	}

	d := s.gate.Admit(s.srvCtx, raw)
	if !d.Admitted() {
		s.logger.Printf("Authentication request from %s was dismissed (%d)", remoteAddr, d.Status())
		codec := rpc.JSONCodec{}
		b, err := codec.EncodeFrame(rpc.ErrorFrame(nil, http.StatusText(d.Status())))
		if err == nil {
			t.Send(s.srvCtx, b)
		}
		t.Close()
		return
	}

	s.serveConn(t, d.Identity(), remoteAddr, rpc.JSONCodec{})
}
