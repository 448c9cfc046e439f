// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package context

import (
	"fmt"
	"os"
)

// MissingContextErr is returned by accessors of values which only
// contexts of connections and their procedure calls carry.
type MissingContextErr struct {
	CtxKey *contextKey
}

func (e *MissingContextErr) Error() string {
	return fmt.Sprintf("no %s attached to the context", e.CtxKey)
}

// SignalErr is the cause of a context cancelled by WithSignalCancel.
type SignalErr struct {
	Signal os.Signal
}

func (e *SignalErr) Error() string {
	return fmt.Sprintf("%s received", e.Signal)
}
