// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package demo

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/tolstoyevsky/shirow/internal/process"
	"github.com/tolstoyevsky/shirow/internal/rpc"
)

var procedures = rpc.MustRegistry(
	rpc.Procedure{Name: "say_hello", Params: 1, Defaults: 1, Public: true, Func: sayHello},
	rpc.Procedure{Name: "add", Params: 2, Public: true, Func: add},
	rpc.Procedure{Name: "echo", Params: 1, Public: true, Func: echo},
	rpc.Procedure{Name: "div_by_zero", Public: true, Func: divByZero},
	rpc.Procedure{Name: "return_more_than_one_value", Public: true, Func: returnMoreThanOneValue},
	rpc.Procedure{Name: "count", Params: 1, Public: true, Func: count},
	rpc.Procedure{Name: "run", Params: 1, Public: true, Func: run},
	rpc.Procedure{Name: "output", Params: 1, Public: true, Func: output},
	rpc.Procedure{Name: "whoami", Public: true, Func: whoami},
	// not reachable by clients
	rpc.Procedure{Name: "cleanup", Func: cleanup},
)

func sayHello(ctx context.Context, req *rpc.Request, args rpc.Args) (rpc.Result, error) {
	name, err := args.StringOr(0, "Shirow")
	if err != nil {
		return rpc.Pending, err
	}
	return req.Ret(fmt.Sprintf("Hello, %s!", name)), nil
}

func add(ctx context.Context, req *rpc.Request, args rpc.Args) (rpc.Result, error) {
	a, err := args.Float(0)
	if err != nil {
		return rpc.Pending, err
	}
	b, err := args.Float(1)
	if err != nil {
		return rpc.Pending, err
	}

	sum := a + b
	if sum == math.Trunc(sum) && math.Abs(sum) < 1<<53 {
		return req.Ret(int64(sum)), nil
	}
	return req.Ret(sum), nil
}

func echo(ctx context.Context, req *rpc.Request, args rpc.Args) (rpc.Result, error) {
	return req.Ret(args[0]), nil
}

func divByZero(ctx context.Context, req *rpc.Request, args rpc.Args) (rpc.Result, error) {
	zero := 0
	return req.Ret(1 / zero), nil
}

// returnMoreThanOneValue sends each value in its own frame and
// leaves the call open.
func returnMoreThanOneValue(ctx context.Context, req *rpc.Request, args rpc.Args) (rpc.Result, error) {
	for _, v := range []string{"spam", "ham", "eggs"} {
		if err := req.RetAndContinue(v); err != nil {
			return rpc.Pending, err
		}
	}
	return rpc.Pending, nil
}

// count streams 0..n-1 from a separate task and terminates with n.
func count(ctx context.Context, req *rpc.Request, args rpc.Args) (rpc.Result, error) {
	n, err := args.Int(0)
	if err != nil {
		return rpc.Pending, err
	}
	if n < 0 {
		return req.RetError("n must not be negative"), nil
	}

	err = req.Scheduler().Go(ctx, "demo:count", func(context.Context) {
		for i := int64(0); i < n; i++ {
			if err := req.RetAndContinue(i); err != nil {
				return
			}
		}
		req.Finish(req.Ret(n))
	})
	return rpc.Pending, err
}

// run streams the output lines of a command and terminates
// with its exit code.
func run(ctx context.Context, req *rpc.Request, args rpc.Args) (rpc.Result, error) {
	var argv []string
	if err := args.Decode(0, &argv); err != nil {
		return rpc.Pending, err
	}

	svc := serviceOf(req)
	_, err := svc.executor.Stream(ctx, req.Scheduler(), process.StreamHandler{
		OnLine: func(line []byte) {
			req.RetAndContinue(string(line))
		},
		OnExit: func(err error) {
			var exitErr *process.ExitError
			switch {
			case err == nil:
				req.Finish(req.Ret(0))
			case errors.As(err, &exitErr):
				req.Finish(req.Ret(exitErr.ExitCode()))
			default:
				req.Logger().Printf("[ERROR] demo: %q failed: %s", argv, err)
				req.Finish(req.RetError(rpc.ExecutionFailedMessage))
			}
		},
	}, argv...)

	var nae *process.NotAllowedErr
	switch {
	case errors.As(err, &nae), errors.Is(err, process.ErrNoCommand):
		return req.RetError(err.Error()), nil
	case err != nil:
		return rpc.Pending, err
	}
	return rpc.Pending, nil
}

// output waits for a command to exit and returns everything
// it wrote to stdout.
func output(ctx context.Context, req *rpc.Request, args rpc.Args) (rpc.Result, error) {
	var argv []string
	if err := args.Decode(0, &argv); err != nil {
		return rpc.Pending, err
	}

	out, err := serviceOf(req).executor.Run(ctx, argv...)
	var nae *process.NotAllowedErr
	var exitErr *process.ExitError
	switch {
	case errors.As(err, &nae), errors.Is(err, process.ErrNoCommand):
		return req.RetError(err.Error()), nil
	case errors.As(err, &exitErr) && exitErr.CtxErr == nil:
		return req.RetError(fmt.Sprintf("%s exited with code %d", argv[0], exitErr.ExitCode())), nil
	case err != nil:
		return rpc.Pending, err
	}
	return req.Ret(string(out)), nil
}

func whoami(ctx context.Context, req *rpc.Request, args rpc.Args) (rpc.Result, error) {
	id := req.Identity()
	return req.Ret(map[string]interface{}{
		"user_id": id.UserID,
		"ip":      id.IP,
	}), nil
}

func cleanup(ctx context.Context, req *rpc.Request, args rpc.Args) (rpc.Result, error) {
	return req.Ret(nil), nil
}
