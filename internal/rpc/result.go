// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package rpc

type resultKind int

const (
	resultPending resultKind = iota
	resultFinal
	resultError
)

// Result tells the executor how a procedure ended its call.
// The zero value means the call stays open.
type Result struct {
	kind    resultKind
	value   interface{}
	message string
}

// Pending is returned by procedures which finish their call later.
var Pending = Result{}

func Final(v interface{}) Result {
	return Result{kind: resultFinal, value: v}
}

func Error(msg string) Result {
	return Result{kind: resultError, message: msg}
}

func (r Result) IsPending() bool {
	return r.kind == resultPending
}

func (r Result) IsError() bool {
	return r.kind == resultError
}

func (r Result) Value() interface{} {
	return r.value
}

func (r Result) Message() string {
	return r.message
}

func (r Result) frame(marker Marker) *Frame {
	switch r.kind {
	case resultFinal:
		return ResultFrame(marker, r.value, true)
	case resultError:
		return ErrorFrame(marker, r.message)
	}
	return nil
}
