// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package rpc

import (
	"context"
	"log"
	"sync"

	"github.com/tolstoyevsky/shirow/internal/scheduler"
	"github.com/tolstoyevsky/shirow/internal/token"
)

// Request is the context of one call. It outlives the procedure
// invocation when the procedure keeps the call open.
type Request struct {
	ctx    context.Context
	conn   *Conn
	name   string
	marker Marker

	mu       sync.Mutex
	finished bool
}

func newRequest(ctx context.Context, conn *Conn, call *Call) *Request {
	return &Request{
		ctx:    ctx,
		conn:   conn,
		name:   call.FunctionName,
		marker: call.Marker,
	}
}

// Ret terminates the call with v once the procedure returns.
func (r *Request) Ret(v interface{}) Result {
	return Final(v)
}

// RetError terminates the call with an error message once the
// procedure returns.
func (r *Request) RetError(msg string) Result {
	return Error(msg)
}

// RetAndContinue sends v right away and keeps the call open.
func (r *Request) RetAndContinue(v interface{}) error {
	return r.send(ResultFrame(r.marker, v, false))
}

// Finish terminates a call which was kept open.
func (r *Request) Finish(res Result) error {
	f := res.frame(r.marker)
	if f == nil {
		return nil
	}
	return r.send(f)
}

// Finished reports whether the terminal frame was already sent.
func (r *Request) Finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished
}

// send writes f unless the call is finished. A result which cannot be
// encoded fails the call: the generic error frame is sent in its place.
// The encoding error is returned for frames that kept the call open.
func (r *Request) send(f *Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return ErrCallFinished
	}

	var encErr error
	data, err := r.conn.encode(f)
	if err != nil {
		r.conn.logger.Printf("[ERROR] Connection %s: result of %q: %s", r.conn.id, r.name, err)
		if !f.Terminal() {
			encErr = err
		}
		f = ErrorFrame(r.marker, ExecutionFailedMessage)
		data, err = r.conn.encode(f)
		if err != nil {
			return err
		}
	}
	if f.Terminal() {
		r.finished = true
	}

	err = r.conn.write(r.ctx, r.name, f, data)
	if err != nil {
		return err
	}
	return encErr
}

// Context is done when the connection closes.
func (r *Request) Context() context.Context {
	return r.ctx
}

func (r *Request) Name() string {
	return r.name
}

func (r *Request) Marker() Marker {
	return r.marker
}

func (r *Request) Identity() *token.Identity {
	return r.conn.Identity()
}

func (r *Request) Conn() *Conn {
	return r.conn
}

func (r *Request) Scheduler() *scheduler.Scheduler {
	return r.conn.Scheduler()
}

func (r *Request) Logger() *log.Logger {
	return r.conn.logger
}
