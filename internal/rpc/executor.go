// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package rpc

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	lsctx "github.com/tolstoyevsky/shirow/internal/context"
	"github.com/tolstoyevsky/shirow/internal/telemetry"
)

// handle decodes and routes one inbound message. Every answer, including
// routing failures, is sent from a scheduler task.
func (c *Conn) handle(data []byte) {
	call, err := c.codec.DecodeCall(data)
	if err != nil {
		if errors.Is(err, ErrMalformedCall) && call != nil {
			c.logger.Printf("[WARN] Connection %s: call without function name (marker %s)",
				c.id, c.rpcLog.marker(call.Marker))
			c.metrics.Call(telemetry.OutcomeMalformed)
			c.reject(call, err.Error())
			return
		}
		c.logger.Printf("[WARN] Connection %s: dropping undecodable message: %s", c.id, err)
		c.metrics.Call(telemetry.OutcomeMalformed)
		return
	}

	c.rpcLog.LogCall(c.id, call)

	if c.limiter != nil && !c.limiter.Allow() {
		c.metrics.Call(telemetry.OutcomeRateLimited)
		c.reject(call, ErrRateLimited.Error())
		return
	}

	proc, err := c.registry.Route(call.FunctionName, call.Arguments.Len())
	if err != nil {
		if errors.Is(err, ErrArityMismatch) {
			c.metrics.Call(telemetry.OutcomeArity)
		} else {
			c.metrics.Call(telemetry.OutcomeUndefined)
		}
		c.reject(call, err.Error())
		return
	}

	req := newRequest(c.ctx, c, call)
	err = c.sched.Go(c.ctx, "call:"+proc.Name, func(context.Context) {
		c.execute(proc, req, call.Arguments)
	})
	if err != nil {
		c.logger.Printf("[ERROR] Connection %s: unable to schedule %q: %s", c.id, proc.Name, err)
		c.metrics.Call(telemetry.OutcomeFailure)
		req.send(ErrorFrame(call.Marker, ExecutionFailedMessage))
	}
}

// reject answers a call which never reached a procedure. The frame is
// written from its own task so a slow client does not hold up the read loop.
func (c *Conn) reject(call *Call, msg string) {
	f := ErrorFrame(call.Marker, msg)
	err := c.sched.Go(c.ctx, "reject:"+call.FunctionName, func(ctx context.Context) {
		err := c.send(ctx, call.FunctionName, f)
		if err != nil && !errors.Is(err, ErrConnClosed) {
			c.logger.Printf("[ERROR] Connection %s: failed to send error frame: %s", c.id, err)
		}
	})
	if err != nil {
		c.logger.Printf("[ERROR] Connection %s: unable to schedule error frame: %s", c.id, err)
	}
}

// execute runs the procedure within the connection context rather than
// the task context, since a pending call outlives its task.
func (c *Conn) execute(proc *Procedure, req *Request, args Args) {
	ctx := lsctx.WithProcedureName(req.ctx, proc.Name)
	ctx, span := telemetry.StartCallSpan(ctx, proc.Name, c.id)

	start := time.Now()
	res, err := c.invoke(ctx, proc, req, args)
	c.metrics.CallDuration(proc.Name, time.Since(start))

	var outcome string
	var f *Frame
	switch {
	case err != nil:
		outcome = telemetry.OutcomeFailure
		c.logger.Printf("[ERROR] Connection %s: %s", c.id, err)
		var execErr *ExecutionErr
		if errors.As(err, &execErr) && execErr.Stack != nil {
			c.logger.Printf("%s", execErr.Stack)
		}
		f = ErrorFrame(req.marker, ExecutionFailedMessage)
	case res.IsError():
		outcome = telemetry.OutcomeError
		f = res.frame(req.marker)
	case res.IsPending():
		outcome = telemetry.OutcomePending
	default:
		outcome = telemetry.OutcomeFinal
		f = res.frame(req.marker)
	}
	c.metrics.Call(outcome)
	telemetry.EndCallSpan(span, outcome, err)

	if f == nil {
		return
	}
	err = req.send(f)
	switch {
	case err == nil, errors.Is(err, ErrConnClosed):
	case errors.Is(err, ErrCallFinished):
		c.logger.Printf("[WARN] Connection %s: %q returned a result after finishing its call",
			c.id, proc.Name)
	default:
		c.logger.Printf("[ERROR] Connection %s: failed to send frame: %s", c.id, err)
	}
}

func (c *Conn) invoke(ctx context.Context, proc *Procedure, req *Request, args Args) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = Pending
			err = &ExecutionErr{
				Name:  proc.Name,
				Err:   fmt.Errorf("panic: %v", r),
				Stack: debug.Stack(),
			}
		}
	}()

	res, err = proc.Func(ctx, req, args)
	if err != nil {
		return Pending, &ExecutionErr{Name: proc.Name, Err: err}
	}
	return res, nil
}
