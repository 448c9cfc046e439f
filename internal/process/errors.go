// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package process

import (
	"errors"
	"fmt"
	"os/exec"
	"reflect"
	"time"
)

var ErrNoCommand = errors.New("no command given")

type NotAllowedErr struct {
	Name string
}

func (e *NotAllowedErr) Error() string {
	return fmt.Sprintf("command %q is not allowed", e.Name)
}

type ExitError struct {
	Err    *exec.ExitError
	CtxErr error

	Argv   []string
	Stdout string
	Stderr string
}

func (e *ExitError) Unwrap() error {
	return e.CtxErr
}

func (e *ExitError) ExitCode() int {
	return e.Err.ExitCode()
}

func (e *ExitError) Error() string {
	out := fmt.Sprintf("%q (pid %d) exited (code %d): %s\nstderr: %q",
		e.Argv,
		e.Err.Pid(),
		e.Err.ExitCode(),
		e.Err.ProcessState.String(),
		e.Stderr)

	if e.CtxErr != nil {
		return fmt.Sprintf("%s.\n%s", e.CtxErr, out)
	}

	return out
}

type execTimeoutErr struct {
	argv     []string
	duration time.Duration
}

func (e *execTimeoutErr) Is(target error) bool {
	return reflect.DeepEqual(e, target)
}

func (e *execTimeoutErr) Error() string {
	return fmt.Sprintf("Execution of %q timed out after %s",
		e.argv, e.duration)
}

func ExecTimeoutError(argv []string, duration time.Duration) *execTimeoutErr {
	return &execTimeoutErr{argv, duration}
}

type execCanceledErr struct {
	argv []string
}

func (e *execCanceledErr) Is(target error) bool {
	return reflect.DeepEqual(e, target)
}

func (e *execCanceledErr) Error() string {
	return fmt.Sprintf("Execution of %q canceled", e.argv)
}

func ExecCanceledError(argv []string) *execCanceledErr {
	return &execCanceledErr{argv}
}
