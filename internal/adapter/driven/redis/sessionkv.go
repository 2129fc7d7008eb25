// Package redis implements the SessionKV port on Redis, for clients that share
// one signed-in session across machines.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ericfisherdev/scipguard/internal/domain/port/driven"
)

// DefaultPrefix namespaces session keys.
const DefaultPrefix = "scipguard:session:"

// Compile-time interface satisfaction check.
var _ driven.SessionKV = (*SessionKV)(nil)

// SessionKV stores session keys without expiry; the server owns token lifetime.
type SessionKV struct {
	client redis.UniversalClient
	prefix string
}

// NewSessionKV creates a Redis-backed SessionKV. An empty prefix falls back to DefaultPrefix.
func NewSessionKV(client redis.UniversalClient, prefix string) *SessionKV {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &SessionKV{client: client, prefix: prefix}
}

// Get returns the value stored under key.
func (s *SessionKV) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %q: %w", key, err)
	}
	return val, true, nil
}

// SetAll writes all values in one MULTI/EXEC transaction.
func (s *SessionKV) SetAll(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range values {
			pipe.Set(ctx, s.prefix+k, v, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

// DeleteAll removes all keys with a single DEL, which Redis applies atomically.
func (s *SessionKV) DeleteAll(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	prefixed := make([]string, 0, len(keys))
	for _, k := range keys {
		prefixed = append(prefixed, s.prefix+k)
	}

	if err := s.client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}
