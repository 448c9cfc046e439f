// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package token

import (
	"errors"
	"fmt"
)

var (
	// ErrNoKey means the server has no signing key configured,
	// which is an operator error rather than a client one.
	ErrNoKey = errors.New("a token key must be specified either in the " +
		"configuration file or on the command line")

	// ErrDecode matches every *DecodeFailure via errors.Is.
	ErrDecode = errors.New("could not decode token")
)

type DecodeFailure struct {
	Err error
}

func (e *DecodeFailure) Error() string {
	return fmt.Sprintf("%s: %s", ErrDecode, e.Err)
}

func (e *DecodeFailure) Is(target error) bool {
	return target == ErrDecode
}

func (e *DecodeFailure) Unwrap() error {
	return e.Err
}

type UnsupportedAlgorithmErr struct {
	Algorithm string
}

func (e *UnsupportedAlgorithmErr) Error() string {
	return fmt.Sprintf("unsupported token algorithm: %q", e.Algorithm)
}
