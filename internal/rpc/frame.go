// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package rpc

// Marker is the caller-supplied correlation value of a call, kept in
// the encoding it arrived in so that it can be echoed byte for byte.
// A nil Marker is encoded as null.
type Marker []byte

// Call is a decoded inbound request.
type Call struct {
	FunctionName string
	Arguments    Args
	Marker       Marker
}

// Frame is one outbound response. A frame is terminal when it carries
// an error or has EOD set.
type Frame struct {
	Marker  Marker
	Result  interface{}
	EOD     bool
	Err     string
	IsError bool
}

func ResultFrame(marker Marker, v interface{}, eod bool) *Frame {
	return &Frame{Marker: marker, Result: v, EOD: eod}
}

func ErrorFrame(marker Marker, msg string) *Frame {
	return &Frame{Marker: marker, Err: msg, IsError: true}
}

func (f *Frame) Terminal() bool {
	return f.IsError || f.EOD
}

func (f *Frame) eod() int {
	if f.EOD {
		return 1
	}
	return 0
}

// Codec converts calls and frames to and from their wire form.
type Codec interface {
	// Name is the subprotocol under which the codec is negotiated.
	Name() string
	Binary() bool
	// DecodeCall returns ErrMalformedCall together with the partially
	// decoded call when the message parses but names no function.
	DecodeCall(data []byte) (*Call, error)
	EncodeFrame(f *Frame) ([]byte, error)
}
