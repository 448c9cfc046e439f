// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package rpc

import (
	"context"

	"github.com/creachadair/jrpc2/channel"
)

type channelTransport struct {
	ch channel.Channel
}

// ChannelTransport adapts a jrpc2 channel. A pending Recv is not
// interrupted by its context, only by closing the channel or its peer.
func ChannelTransport(ch channel.Channel) Transport {
	return &channelTransport{ch: ch}
}

func (t *channelTransport) Recv(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	msg, err := t.ch.Recv()
	if err != nil {
		return nil, err
	}
	// framings may reuse their read buffer
	return append([]byte(nil), msg...), nil
}

func (t *channelTransport) Send(ctx context.Context, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.ch.Send(msg)
}

func (t *channelTransport) Close() error {
	return t.ch.Close()
}
