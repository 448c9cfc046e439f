// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package rpc

import (
	"context"
)

// Transport carries whole messages. Recv returns io.EOF once
// the peer closed the connection.
type Transport interface {
	Recv(ctx context.Context) ([]byte, error)
	Send(ctx context.Context, msg []byte) error
	Close() error
}
