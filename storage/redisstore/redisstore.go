// Package redisstore implements session.Storage on top of Redis, for hosts
// that share a session between processes.
package redisstore

import (
	"context"
	"errors"
	"time"

	session "github.com/goliatone/go-auth-session"
	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "as"

// Store namespaces every key under a prefix.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ session.Storage = (*Store)(nil)

// Option customizes a Store.
type Option func(*Store)

// WithPrefix sets the key namespace. Defaults to "as".
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithTTL expires keys after ttl. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl >= 0 {
			s.ttl = ttl
		}
	}
}

// New returns a Store using client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{redis: client, prefix: defaultPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Store) key(k string) string {
	return s.prefix + ":" + k
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	v, err := s.redis.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", session.ErrStorageKeyNotFound
	}
	if err != nil {
		return "", unavailable(err, "get")
	}
	return v, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.redis.Set(ctx, s.key(key), value, s.ttl).Err(); err != nil {
		return unavailable(err, "set")
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	if err := s.redis.Del(ctx, full...).Err(); err != nil {
		return unavailable(err, "delete")
	}
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return unavailable(err, "ping")
	}
	return nil
}

func unavailable(err error, op string) error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, "session redis unavailable").
		WithMetadata(map[string]any{"op": op})
}
