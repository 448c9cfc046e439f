// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package process

import (
	"bufio"
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/tolstoyevsky/shirow/internal/scheduler"
)

func TestMain(m *testing.M) {
	if v := os.Getenv(MockEnvVar); v != "" {
		os.Exit(ExecuteMock(v))
	}

	os.Exit(m.Run())
}

func TestExecutor_Run(t *testing.T) {
	e := MockExecutor(&Mock{
		Argv:   []string{"echo", "hello"},
		Stdout: "hello\n",
	})

	out, err := e.Run(context.Background(), "echo", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "hello\n" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestExecutor_Run_exitError(t *testing.T) {
	e := MockExecutor(&Mock{
		Stderr:   "no such file",
		ExitCode: 2,
	})

	_, err := e.Run(context.Background(), "ls", "/nonexistent")
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *ExitError, given: %#v", err)
	}
	if exitErr.ExitCode() != 2 {
		t.Fatalf("expected exit code 2, given: %d", exitErr.ExitCode())
	}
	if exitErr.Stderr != "no such file" {
		t.Fatalf("unexpected stderr: %q", exitErr.Stderr)
	}
}

func TestExecutor_Run_cancel(t *testing.T) {
	e := MockExecutor(&Mock{SleepDuration: time.Minute})

	ctx, cancelFunc := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancelFunc()
	}()

	argv := []string{"sleep", "60"}
	expectedErr := ExecCanceledError(argv)

	_, err := e.Run(ctx, argv...)
	if !errors.Is(err, expectedErr) {
		t.Fatalf("errors don't match.\nexpected: %#v\ngiven:    %#v\n",
			expectedErr, err)
	}
}

func TestExecutor_notAllowed(t *testing.T) {
	e := MockExecutor(nil)
	e.SetAllowedCommands("echo")

	_, err := e.Run(context.Background(), "rm", "-rf", "/")
	var nae *NotAllowedErr
	if !errors.As(err, &nae) {
		t.Fatalf("expected *NotAllowedErr, given: %#v", err)
	}

	_, err = e.Run(context.Background())
	if !errors.Is(err, ErrNoCommand) {
		t.Fatalf("expected ErrNoCommand, given: %#v", err)
	}
}

func TestExecutor_deniesByDefault(t *testing.T) {
	e := NewExecutor()

	_, err := e.Run(context.Background(), "sh", "-c", "id")
	var nae *NotAllowedErr
	if !errors.As(err, &nae) {
		t.Fatalf("expected *NotAllowedErr, given: %#v", err)
	}

	e.SetAllowedCommands()
	_, err = e.Run(context.Background(), "sh", "-c", "id")
	if !errors.As(err, &nae) {
		t.Fatalf("expected *NotAllowedErr with empty allow-list, given: %#v", err)
	}

	sched := scheduler.NewScheduler()
	sched.Start(context.Background())
	t.Cleanup(sched.Stop)
	_, err = e.Stream(context.Background(), sched, StreamHandler{}, "sh", "-c", "id")
	if !errors.As(err, &nae) {
		t.Fatalf("expected *NotAllowedErr from Stream, given: %#v", err)
	}
}

func TestExecutor_Stream(t *testing.T) {
	sched := scheduler.NewScheduler()
	sched.Start(context.Background())
	t.Cleanup(sched.Stop)

	e := MockExecutor(&Mock{
		Argv:     []string{"cat", "breakfast"},
		Stdout:   "spam\nham\neggs\n",
		ExitCode: 3,
	})

	var mu sync.Mutex
	var lines []string
	exited := make(chan error, 1)
	_, err := e.Stream(context.Background(), sched, StreamHandler{
		OnLine: func(line []byte) {
			mu.Lock()
			defer mu.Unlock()
			lines = append(lines, string(line))
		},
		OnExit: func(err error) {
			exited <- err
		},
	}, "cat", "breakfast")
	if err != nil {
		t.Fatal(err)
	}

	var exitErr *ExitError
	select {
	case err := <-exited:
		if !errors.As(err, &exitErr) {
			t.Fatalf("expected *ExitError, given: %#v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("command did not exit")
	}
	if exitErr.ExitCode() != 3 {
		t.Fatalf("expected exit code 3, given %d", exitErr.ExitCode())
	}

	mu.Lock()
	defer mu.Unlock()
	expected := []string{"spam", "ham", "eggs"}
	if diff := cmp.Diff(expected, lines); diff != "" {
		t.Fatalf("unexpected lines: %s", diff)
	}
}

func TestExecutor_Stream_cancel(t *testing.T) {
	sched := scheduler.NewScheduler()
	sched.Start(context.Background())
	t.Cleanup(sched.Stop)

	e := MockExecutor(&Mock{SleepDuration: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	called := make(chan struct{}, 1)
	reg, err := e.Stream(ctx, sched, StreamHandler{
		OnExit: func(error) { called <- struct{}{} },
	}, "sleep", "60")
	if err != nil {
		t.Fatal(err)
	}

	cancel()
	select {
	case <-reg.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("registration was not released")
	}

	select {
	case <-called:
		t.Fatal("expected no exit callback after cancellation")
	default:
	}
}

func TestExecutor_Stream_lineTooLong(t *testing.T) {
	sched := scheduler.NewScheduler()
	sched.Start(context.Background())
	t.Cleanup(sched.Stop)

	e := MockExecutor(&Mock{
		Stdout:       strings.Repeat("a", 64*1024),
		StdoutRepeat: 2 * scheduler.MaxLineSize / (64 * 1024),
	})

	lines := make(chan []byte, 1)
	exited := make(chan error, 1)
	_, err := e.Stream(context.Background(), sched, StreamHandler{
		OnLine: func(line []byte) { lines <- line },
		OnExit: func(err error) { exited <- err },
	}, "head", "-c", "2097152", "/dev/zero")
	if err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-exited:
		if !errors.Is(err, bufio.ErrTooLong) {
			t.Fatalf("expected bufio.ErrTooLong, given: %#v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("command with oversized output never finished")
	}
	if len(lines) != 0 {
		t.Fatal("no line is expected")
	}
}
