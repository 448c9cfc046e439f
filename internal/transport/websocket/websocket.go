// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package websocket carries calls and frames as WebSocket messages.
package websocket

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

const (
	DefaultReadLimit = 1 << 20
	writeTimeout     = 10 * time.Second
)

type Options struct {
	// OriginPatterns lists hosts besides the request host which may
	// open connections from a browser.
	OriginPatterns []string
	// Subprotocols in order of preference.
	Subprotocols []string
	ReadLimit    int64
}

type Transport struct {
	conn    *websocket.Conn
	msgType websocket.MessageType
}

// Accept upgrades the HTTP connection. The caller is expected to have
// admitted the request already.
func Accept(w http.ResponseWriter, r *http.Request, opts Options) (*Transport, error) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   opts.Subprotocols,
		OriginPatterns: opts.OriginPatterns,
	})
	if err != nil {
		return nil, err
	}

	readLimit := opts.ReadLimit
	if readLimit <= 0 {
		readLimit = DefaultReadLimit
	}
	conn.SetReadLimit(readLimit)

	return New(conn, false), nil
}

// New wraps an established connection. Binary selects the message
// type used for sending.
func New(conn *websocket.Conn, binary bool) *Transport {
	t := &Transport{
		conn:    conn,
		msgType: websocket.MessageText,
	}
	if binary {
		t.msgType = websocket.MessageBinary
	}
	return t
}

// Subprotocol returns the negotiated subprotocol, if any.
func (t *Transport) Subprotocol() string {
	return t.conn.Subprotocol()
}

func (t *Transport) SetBinary(binary bool) {
	if binary {
		t.msgType = websocket.MessageBinary
		return
	}
	t.msgType = websocket.MessageText
}

func (t *Transport) Recv(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	if err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return nil, io.EOF
		}
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	return data, nil
}

func (t *Transport) Send(ctx context.Context, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return t.conn.Write(ctx, t.msgType, msg)
}

func (t *Transport) Close() error {
	err := t.conn.Close(websocket.StatusNormalClosure, "closed")
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		return nil
	}
	return err
}
