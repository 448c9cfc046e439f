// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package tokenstore keeps the tokens which are currently live for each
// user. Admission may require that a well-signed token is also present
// here, which makes tokens revocable before their natural expiry.
package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("token not found")

type Store interface {
	// Get returns the live token of the user or ErrNotFound.
	Get(ctx context.Context, userID int64) (string, error)
	// Set stores the token of the user; a zero ttl means no expiry.
	Set(ctx context.Context, userID int64, token string, ttl time.Duration) error
	Exists(ctx context.Context, userID int64) (bool, error)
	Revoke(ctx context.Context, userID int64) error
}

// Key returns the key under which the token of a user is kept.
func Key(userID int64) string {
	return fmt.Sprintf("user:%d:token", userID)
}

// IsLive reports whether the encoded token is the one stored for the user.
func IsLive(ctx context.Context, s Store, userID int64, encoded string) (bool, error) {
	stored, err := s.Get(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return stored == encoded, nil
}
