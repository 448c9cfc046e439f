// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package rpc

import (
	"errors"
	"fmt"
)

// ExecutionFailedMessage is all the client learns about a procedure
// which failed or panicked. Details are logged on the server.
const ExecutionFailedMessage = "an error occurred while executing the function"

var (
	ErrUndefinedMethod = errors.New("undefined method")
	ErrArityMismatch   = errors.New("number of arguments mismatch")
	ErrMalformedCall   = errors.New("malformed request")
	ErrRateLimited     = errors.New("rate limit exceeded")

	// ErrCallFinished is returned for any frame a procedure attempts
	// to send after the terminal frame of its call.
	ErrCallFinished = errors.New("call already finished")
	ErrConnClosed   = errors.New("connection closed")
)

type UndefinedMethodErr struct {
	Name string
}

func (e *UndefinedMethodErr) Error() string {
	return fmt.Sprintf("the %s function is undefined", e.Name)
}

func (e *UndefinedMethodErr) Is(target error) bool {
	return target == ErrUndefinedMethod
}

type ArityMismatchErr struct {
	Name  string
	Given int
	Min   int
	Max   int
}

func (e *ArityMismatchErr) Error() string {
	return fmt.Sprintf("number of arguments mismatch in the %s function call", e.Name)
}

func (e *ArityMismatchErr) Is(target error) bool {
	return target == ErrArityMismatch
}

type ArgumentErr struct {
	Index int
	Err   error
}

func (e *ArgumentErr) Error() string {
	return fmt.Sprintf("argument %d: %s", e.Index, e.Err)
}

func (e *ArgumentErr) Unwrap() error {
	return e.Err
}

type InvalidProcedureErr struct {
	Name   string
	Reason string
}

func (e *InvalidProcedureErr) Error() string {
	return fmt.Sprintf("invalid procedure %q: %s", e.Name, e.Reason)
}

// ExecutionErr describes a procedure which returned an error or panicked.
type ExecutionErr struct {
	Name  string
	Err   error
	Stack []byte
}

func (e *ExecutionErr) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Name, e.Err)
}

func (e *ExecutionErr) Unwrap() error {
	return e.Err
}
