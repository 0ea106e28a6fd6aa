// Package redisstore keeps options in Redis, one string key per option.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "easysmtp:option:"

// Store implements store.Store on top of a Redis client.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
}

// Connect parses url, builds a client and verifies connectivity with PING.
// An empty prefix selects the default.
func Connect(ctx context.Context, url, prefix string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return New(rdb, prefix), nil
}

// New wraps an existing client. An empty prefix selects the default.
func New(rdb redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix}
}

// Key returns the Redis key an option name is stored under.
func (s *Store) Key(name string) string {
	return s.prefix + name
}

func (s *Store) Get(ctx context.Context, name string) ([]byte, bool, error) {
	v, err := s.rdb.Get(ctx, s.Key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, name string, value []byte) error {
	return s.rdb.Set(ctx, s.Key(name), value, 0).Err()
}

func (s *Store) Delete(ctx context.Context, name string) error {
	return s.rdb.Del(ctx, s.Key(name)).Err()
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.rdb.Close()
}
