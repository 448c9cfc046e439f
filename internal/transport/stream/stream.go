// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package stream carries calls and frames over a plain byte stream,
// each record prefixed with a Content-Length header.
package stream

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/creachadair/jrpc2/channel"
	"github.com/tolstoyevsky/shirow/internal/rpc"
)

// ContentType is announced in the header of every record.
const ContentType = "application/json"

// DefaultReadLimit applies when New is given no limit.
const DefaultReadLimit = 1 << 20

// Framing is the record framing shared by the server and its clients.
var Framing = channel.Header(ContentType)

type Transport struct {
	rpc.Transport
	conn net.Conn
}

// New frames records over conn. Inbound records longer than readLimit
// bytes fail Recv with *RecordTooLargeErr before any of them is buffered.
func New(conn net.Conn, readLimit int64) *Transport {
	if readLimit <= 0 {
		readLimit = DefaultReadLimit
	}
	return &Transport{
		Transport: rpc.ChannelTransport(Framing(newLimitReader(conn, readLimit), conn)),
		conn:      conn,
	}
}

// ReadToken reads the first record, which carries the token
// instead of a call, waiting no longer than timeout.
func (t *Transport) ReadToken(ctx context.Context, timeout time.Duration) (string, error) {
	if timeout > 0 {
		err := t.conn.SetReadDeadline(time.Now().Add(timeout))
		if err != nil {
			return "", err
		}
		defer t.conn.SetReadDeadline(time.Time{})
	}

	b, err := t.Recv(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func (t *Transport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}
