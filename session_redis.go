// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"
)

const defaultSessionPrefix = "gateway:command"

// DefaultSessionTTL is the time after which abandoned command sessions
// expire from redis.
const DefaultSessionTTL = 30 * time.Minute

// RedisSessionStore is a SessionStore that keeps CBOR encoded sessions in
// redis so that they survive restarts and can be shared between instances.
type RedisSessionStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisSessionStore returns a session store using client.
// Keys are prefixed with prefix and expire after ttl.
func NewRedisSessionStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisSessionStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultSessionPrefix
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisSessionStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisSessionStore) key(id string) string {
	return r.prefix + ":" + id
}

// Get implements SessionStore.
func (r *RedisSessionStore) Get(ctx context.Context, id string) (*CommandSession, error) {
	b, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("gateway: redis get session: %w", err)
	}
	s := &CommandSession{}
	err = cbor.Unmarshal(b, s)
	if err != nil {
		return nil, fmt.Errorf("gateway: decoding session %s: %w", id, err)
	}
	return s, nil
}

// Put implements SessionStore.
func (r *RedisSessionStore) Put(ctx context.Context, s *CommandSession) error {
	b, err := cbor.Marshal(s)
	if err != nil {
		return fmt.Errorf("gateway: encoding session %s: %w", s.ID, err)
	}
	err = r.client.Set(ctx, r.key(s.ID), b, r.ttl).Err()
	if err != nil {
		return fmt.Errorf("gateway: redis set session: %w", err)
	}
	return nil
}

// Delete implements SessionStore.
func (r *RedisSessionStore) Delete(ctx context.Context, id string) error {
	err := r.client.Del(ctx, r.key(id)).Err()
	if err != nil {
		return fmt.Errorf("gateway: redis delete session: %w", err)
	}
	return nil
}
