// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package process runs external commands on behalf of procedures,
// either to completion or with their output streamed line by line
// through the scheduler.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"sync"
	"time"

	lsctx "github.com/tolstoyevsky/shirow/internal/context"
	"github.com/tolstoyevsky/shirow/internal/logging"
	"github.com/tolstoyevsky/shirow/internal/scheduler"
)

// cmdCtxFunc allows mocking of commands in tests while retaining
// ability to pass context for timeout/cancellation
type cmdCtxFunc func(context.Context, string, ...string) *exec.Cmd

type Executor struct {
	timeout time.Duration
	workDir string
	allowed  map[string]bool
	allowAll bool
	logger  *log.Logger

	cmdCtxFunc cmdCtxFunc
}

func NewExecutor() *Executor {
	return &Executor{
		timeout: 10 * time.Second,
		logger:  logging.NopLogger(),
		cmdCtxFunc: func(ctx context.Context, path string, arg ...string) *exec.Cmd {
			return exec.CommandContext(ctx, path, arg...)
		},
	}
}

func (e *Executor) SetLogger(logger *log.Logger) {
	e.logger = logger
}

// SetTimeout bounds Run. Streamed commands are bound by their context only.
func (e *Executor) SetTimeout(duration time.Duration) {
	e.timeout = duration
}

func (e *Executor) SetWorkdir(workdir string) {
	e.workDir = workdir
}

// SetAllowedCommands lists the commands which may be started.
// No names means none; a new executor refuses every command.
func (e *Executor) SetAllowedCommands(names ...string) {
	e.allowAll = false
	e.allowed = make(map[string]bool, len(names))
	for _, name := range names {
		e.allowed[name] = true
	}
}

func (e *Executor) command(ctx context.Context, argv []string) (*exec.Cmd, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, ErrNoCommand
	}
	if !e.allowAll && !e.allowed[argv[0]] {
		return nil, &NotAllowedErr{Name: argv[0]}
	}

	cmd := e.cmdCtxFunc(ctx, argv[0], argv[1:]...)
	cmd.Dir = e.workDir
	return cmd, nil
}

// Run waits for the command to exit and returns what it wrote to stdout.
func (e *Executor) Run(ctx context.Context, argv ...string) ([]byte, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	cmd, err := e.command(ctx, argv)
	if err != nil {
		return nil, err
	}

	var outBuf bytes.Buffer
	var errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	e.logStart(ctx, "Running", argv)
	err = cmd.Run()
	if err != nil {
		return nil, e.exitError(ctx, argv, err, outBuf.String(), errBuf.String())
	}

	pc := cmd.ProcessState
	e.logger.Printf("%q (pid %d) finished with exit code %d", argv, pc.Pid(), pc.ExitCode())

	return outBuf.Bytes(), nil
}

func (e *Executor) logStart(ctx context.Context, verb string, argv []string) {
	caller, err := lsctx.Caller(ctx)
	if err != nil {
		e.logger.Printf("%s %q in %q...", verb, argv, e.workDir)
		return
	}
	e.logger.Printf("%s %q in %q for %s...", verb, argv, e.workDir, caller)
}

type StreamHandler struct {
	// OnLine is called for every line written to stdout, in order.
	OnLine func(line []byte)
	// OnExit is called once the command exited, with nil
	// or the *ExitError describing the failure. When the output could
	// not be read the command is killed and the read error is passed.
	OnExit func(err error)
}

// Stream starts the command and registers its stdout with the scheduler.
// Neither handler is called once ctx is done; the command is killed
// and reaped in that case.
func (e *Executor) Stream(ctx context.Context, sched *scheduler.Scheduler, h StreamHandler, argv ...string) (*scheduler.Registration, error) {
	cmd, err := e.command(ctx, argv)
	if err != nil {
		return nil, err
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	var errBuf bytes.Buffer
	cmd.Stderr = &errBuf

	e.logStart(ctx, "Streaming", argv)
	err = cmd.Start()
	if err != nil {
		return nil, err
	}

	var waitOnce sync.Once
	var waitErr error
	wait := func() error {
		waitOnce.Do(func() {
			waitErr = cmd.Wait()
		})
		return waitErr
	}

	reg, err := sched.Watch(ctx, stdout, func(line []byte, err error) {
		if err == nil {
			if h.OnLine != nil {
				h.OnLine(line)
			}
			return
		}

		if !errors.Is(err, io.EOF) {
			// the command may be blocked writing output nobody reads
			cmd.Process.Kill()
			wait()
			if h.OnExit != nil {
				h.OnExit(fmt.Errorf("failed to read output of %q: %w", argv, err))
			}
			return
		}

		werr := wait()
		if werr != nil {
			werr = e.exitError(ctx, argv, werr, "", errBuf.String())
		} else {
			pc := cmd.ProcessState
			e.logger.Printf("%q (pid %d) finished with exit code %d", argv, pc.Pid(), pc.ExitCode())
		}
		if h.OnExit != nil {
			h.OnExit(werr)
		}
	})
	if err != nil {
		cmd.Process.Kill()
		wait()
		return nil, err
	}

	go func() {
		<-reg.Done()
		if ctx.Err() != nil {
			cmd.Process.Kill()
		}
		wait()
	}()

	return reg, nil
}

func (e *Executor) exitError(ctx context.Context, argv []string, err error, stdout, stderr string) error {
	var eErr *exec.ExitError
	if !errors.As(err, &eErr) {
		return err
	}

	exitErr := &ExitError{
		Err:    eErr,
		Argv:   argv,
		Stdout: stdout,
		Stderr: stderr,
	}

	ctxErr := ctx.Err()
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		exitErr.CtxErr = ExecTimeoutError(argv, e.timeout)
	}
	if errors.Is(ctxErr, context.Canceled) {
		exitErr.CtxErr = ExecCanceledError(argv)
	}

	return exitErr
}
