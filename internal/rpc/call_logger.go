// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package rpc

import (
	"encoding/hex"
	"log"
)

type callLogger struct {
	logger *log.Logger
	codec  Codec
}

func (cl *callLogger) marker(m Marker) string {
	if m == nil {
		return "null"
	}
	if cl.codec.Binary() {
		return "0x" + hex.EncodeToString(m)
	}
	return string(m)
}

func (cl *callLogger) LogCall(connID string, call *Call) {
	cl.logger.Printf("Incoming call for %q (conn %s, marker %s): %v",
		call.FunctionName, connID, cl.marker(call.Marker), []interface{}(call.Arguments))
}

func (cl *callLogger) LogFrame(connID, name string, f *Frame) {
	if f.IsError {
		cl.logger.Printf("Error for %q (conn %s, marker %s): %s",
			name, connID, cl.marker(f.Marker), f.Err)
		return
	}
	cl.logger.Printf("Response to %q (conn %s, marker %s, eod %d): %v",
		name, connID, cl.marker(f.Marker), f.eod(), f.Result)
}
