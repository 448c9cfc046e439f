// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package tokenstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStore_SetAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.Set(ctx, 1, "token-1", 0); err != nil {
		t.Fatal(err)
	}

	tok, err := s.Get(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if tok != "token-1" {
		t.Fatalf("expected token-1, given %q", tok)
	}

	_, err = s.Get(ctx, 2)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, given %v", err)
	}
}

func TestMemoryStore_expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	if err := s.Set(ctx, 1, "token-1", 5*time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, 2, "token-2", 15*time.Minute); err != nil {
		t.Fatal(err)
	}

	now = now.Add(10 * time.Minute)

	exists, err := s.Exists(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Fatal("token of user 1 should have expired")
	}
	exists, err = s.Exists(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Fatal("token of user 2 should still be live")
	}

	if removed := s.Cleanup(); removed != 1 {
		t.Fatalf("expected 1 entry removed, given %d", removed)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 entry left, given %d", s.Len())
	}
}

func TestMemoryStore_Revoke(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Set(ctx, 1, "token-1", time.Hour)

	if err := s.Revoke(ctx, 1); err != nil {
		t.Fatal(err)
	}
	live, err := IsLive(ctx, s, 1, "token-1")
	if err != nil {
		t.Fatal(err)
	}
	if live {
		t.Fatal("revoked token should not be live")
	}
}

func TestIsLive_mismatch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Set(ctx, 1, "token-1", 0)

	live, err := IsLive(ctx, s, 1, "token-2")
	if err != nil {
		t.Fatal(err)
	}
	if live {
		t.Fatal("a token different from the stored one should not be live")
	}
}
