// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client *redis.Client
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

func NewRedisStore(opts RedisOptions) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
	}
}

func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Ping verifies the server is reachable. It is called once at startup
// so that a misconfigured store is reported before clients connect.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("unable to connect to Redis at %s: %w", s.client.Options().Addr, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, userID int64) (string, error) {
	val, err := s.client.Get(ctx, Key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (s *RedisStore) Set(ctx context.Context, userID int64, token string, ttl time.Duration) error {
	return s.client.Set(ctx, Key(userID), token, ttl).Err()
}

func (s *RedisStore) Exists(ctx context.Context, userID int64) (bool, error) {
	n, err := s.client.Exists(ctx, Key(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) Revoke(ctx context.Context, userID int64) error {
	return s.client.Del(ctx, Key(userID)).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
