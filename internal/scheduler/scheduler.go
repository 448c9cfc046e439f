// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package scheduler provides the event loop handle shared by the server,
// its connections and the calls in flight. It is constructed explicitly
// and passed down, never looked up globally.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/tolstoyevsky/shirow/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/tolstoyevsky/shirow/internal/scheduler"

const DefaultStopTimeout = 5 * time.Second

var ErrNotRunning = errors.New("scheduler is not running")

type Scheduler struct {
	logger      *log.Logger
	stopTimeout time.Duration

	mu       sync.Mutex
	ctx      context.Context
	stopFunc context.CancelFunc
	tasks    sync.WaitGroup
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		logger:      logging.NopLogger(),
		stopTimeout: DefaultStopTimeout,
		stopFunc:    func() {},
	}
}

func (s *Scheduler) SetLogger(logger *log.Logger) {
	s.logger = logger
}

func (s *Scheduler) SetStopTimeout(d time.Duration) {
	s.stopTimeout = d
}

func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ctx, s.stopFunc = context.WithCancel(ctx)
	s.logger.Print("started scheduler")
}

// Stop cancels every task and registration and waits for the tasks
// to return, for no longer than the stop timeout.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopFunc()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.tasks.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Print("stopped scheduler")
	case <-time.After(s.stopTimeout):
		s.logger.Printf("[WARN] stopped scheduler with tasks still running after %s", s.stopTimeout)
	}
}

// taskContext returns a context which is done when either the owner
// context or the scheduler is done.
func (s *Scheduler) taskContext(owner context.Context) (context.Context, context.CancelFunc, error) {
	s.mu.Lock()
	root := s.ctx
	s.mu.Unlock()

	if root == nil || root.Err() != nil {
		return nil, nil, ErrNotRunning
	}

	ctx, cancel := context.WithCancel(owner)
	stop := context.AfterFunc(root, cancel)
	return ctx, func() {
		stop()
		cancel()
	}, nil
}

// Go runs fn as a tracked task. The context passed to fn is done
// when ctx is done or the scheduler stops.
func (s *Scheduler) Go(ctx context.Context, name string, fn func(context.Context)) error {
	taskCtx, cancel, err := s.taskContext(ctx)
	if err != nil {
		return err
	}

	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		defer cancel()
		s.run(taskCtx, name, fn)
	}()

	return nil
}

func (s *Scheduler) run(ctx context.Context, name string, fn func(context.Context)) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "task:"+name,
		trace.WithAttributes(attribute.KeyValue{
			Key:   attribute.Key("TaskName"),
			Value: attribute.StringValue(name),
		}))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("task %q panicked: %v", name, r)
			s.logger.Printf("[ERROR] %s\n%s", err, debug.Stack())
			span.RecordError(err)
			span.SetStatus(codes.Error, "task panicked")
		}
	}()

	fn(ctx)
	span.SetStatus(codes.Ok, "task finished")
}

// AfterFunc calls fn once d elapsed, unless ctx is done or the
// registration is cancelled first.
func (s *Scheduler) AfterFunc(ctx context.Context, d time.Duration, fn func()) (*Registration, error) {
	taskCtx, cancel, err := s.taskContext(ctx)
	if err != nil {
		return nil, err
	}
	reg := newRegistration(taskCtx, cancel)

	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		defer reg.release()

		t := time.NewTimer(d)
		defer t.Stop()

		select {
		case <-taskCtx.Done():
		case <-t.C:
			s.run(taskCtx, "timer", func(context.Context) { fn() })
		}
	}()

	return reg, nil
}
