// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package scheduler

import (
	"bufio"
	"context"
	"io"
	"sync"
)

// MaxLineSize bounds a single line delivered by Watch.
const MaxLineSize = 1024 * 1024

// Registration is a handle on an event source registered with the
// scheduler. Cancelling it stops event delivery.
type Registration struct {
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	release func()
}

func newRegistration(ctx context.Context, cancel context.CancelFunc) *Registration {
	done := make(chan struct{})
	var once sync.Once
	return &Registration{
		ctx:    ctx,
		cancel: cancel,
		done:   done,
		release: func() {
			once.Do(func() {
				cancel()
				close(done)
			})
		},
	}
}

func (r *Registration) Cancel() {
	r.cancel()
}

// Done is closed once the registration has been released.
func (r *Registration) Done() <-chan struct{} {
	return r.done
}

func (r *Registration) cancelled() bool {
	return r.ctx.Err() != nil
}

// Watch registers r as an event source. Each line read from r is passed
// to fn in order. Once r ends fn is called one last time with a nil line
// and io.EOF (or the read error, e.g. bufio.ErrTooLong for a line
// longer than MaxLineSize, in which case r is closed first if it is
// an io.Closer). Nothing is delivered after the
// registration was cancelled or ctx is done; if r is an io.Closer it is
// closed at that point to unblock the pending read.
func (s *Scheduler) Watch(ctx context.Context, r io.Reader, fn func(line []byte, err error)) (*Registration, error) {
	taskCtx, cancel, err := s.taskContext(ctx)
	if err != nil {
		return nil, err
	}
	reg := newRegistration(taskCtx, cancel)

	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		defer reg.release()

		if c, ok := r.(io.Closer); ok {
			stop := context.AfterFunc(taskCtx, func() { c.Close() })
			defer stop()
		}

		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 4096), MaxLineSize)
		for sc.Scan() {
			if reg.cancelled() {
				return
			}
			line := append([]byte(nil), sc.Bytes()...)
			s.deliver(func() { fn(line, nil) })
		}
		if reg.cancelled() {
			return
		}

		err := sc.Err()
		if err == nil {
			err = io.EOF
		} else if c, ok := r.(io.Closer); ok {
			// unblock the writer of a line which never fit
			c.Close()
		}
		s.deliver(func() { fn(nil, err) })
	}()

	return reg, nil
}

func (s *Scheduler) deliver(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("[ERROR] event callback panicked: %v", r)
		}
	}()
	fn()
}
