// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package context

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
)

// WithSignalCancel returns a root context which is cancelled with
// a *SignalErr cause once any of sigs is received, so that connections
// get closed gracefully. Should another signal arrive while they are
// closing, force is called, unless nil.
//
// The returned CancelFunc stops listening for signals.
func WithSignalCancel(ctx context.Context, l *log.Logger, force func(), sigs ...os.Signal) (
	context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, sigs...)
	stopped := make(chan struct{})

	go func() {
		select {
		case sig := <-sigChan:
			l.Printf("Received %s, closing connections", sig)
			cancel(&SignalErr{Signal: sig})
		case <-stopped:
			return
		}

		if force == nil {
			return
		}
		select {
		case sig := <-sigChan:
			l.Printf("[WARN] Received %s again, not waiting for connections to close", sig)
			force()
		case <-stopped:
		}
	}()

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			signal.Stop(sigChan)
			close(stopped)
			cancel(nil)
		})
	}
}
