// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package tokenstore

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	token     string
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore is a process-local Store. Expired entries are treated
// as absent and removed by Cleanup.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, userID int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[Key(userID)]
	if !ok || entry.expired(s.now()) {
		return "", ErrNotFound
	}
	return entry.token, nil
}

func (s *MemoryStore) Set(_ context.Context, userID int64, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := memoryEntry{token: token}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.entries[Key(userID)] = entry
	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, userID int64) (bool, error) {
	_, err := s.Get(ctx, userID)
	if err == ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (s *MemoryStore) Revoke(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, Key(userID))
	return nil
}

// Cleanup removes expired entries and returns how many were removed.
func (s *MemoryStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, entry := range s.entries {
		if entry.expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
