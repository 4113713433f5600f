// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sessionstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stacklok/authflow/pkg/errors"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// scanBatchSize is the COUNT hint passed to SCAN.
const scanBatchSize = 100

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int

	// KeyPrefix namespaces every key written by authflow, e.g. "authflow:".
	KeyPrefix string

	// Timeouts (defaults: Dial=5s, Read=3s, Write=3s).
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisStorage implements Storage with Redis. Keys are stored as
// "<KeyPrefix><sessionID>:<key>" so several user sessions can share a server.
type RedisStorage struct {
	client    redis.UniversalClient
	namespace string
	ttl       time.Duration
}

// NewRedisStorage connects to Redis and returns a storage scoped to sessionID.
func NewRedisStorage(ctx context.Context, cfg RedisConfig, sessionID string, ttl time.Duration) (*RedisStorage, error) {
	if err := validateRedisConfig(&cfg, sessionID); err != nil {
		return nil, errors.NewInvalidArgumentError("invalid redis configuration", err)
	}

	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.NewStorageError("failed to connect to redis", err)
	}

	return NewRedisStorageWithClient(client, cfg.KeyPrefix+sessionID+":", ttl), nil
}

// NewRedisStorageWithClient creates a RedisStorage with a pre-configured client.
// namespace is prepended verbatim to every key. This is useful for testing with
// miniredis.
func NewRedisStorageWithClient(client redis.UniversalClient, namespace string, ttl time.Duration) *RedisStorage {
	return &RedisStorage{
		client:    client,
		namespace: namespace,
		ttl:       ttl,
	}
}

func validateRedisConfig(cfg *RedisConfig, sessionID string) error {
	if cfg.Addr == "" {
		return stderrors.New("address is required")
	}
	if cfg.KeyPrefix == "" {
		return stderrors.New("key prefix is required")
	}
	if sessionID == "" {
		return stderrors.New("session id is required")
	}
	return nil
}

// Close closes the Redis client connection.
func (s *RedisStorage) Close() error {
	return s.client.Close()
}

// Ping checks Redis connectivity.
func (s *RedisStorage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Get returns the value stored under key.
func (s *RedisStorage) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, s.namespace+key).Result()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, errors.NewStorageError(fmt.Sprintf("failed to get %q", key), err)
	}
	return value, true, nil
}

// Set stores value under key with the configured TTL.
func (s *RedisStorage) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.namespace+key, value, s.ttl).Err(); err != nil {
		if isOutOfMemory(err) {
			return errors.NewQuotaExceededError(fmt.Sprintf("redis refused to store %q", key), err)
		}
		return errors.NewStorageError(fmt.Sprintf("failed to set %q", key), err)
	}
	return nil
}

// Delete removes key.
func (s *RedisStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.namespace+key).Err(); err != nil {
		return errors.NewStorageError(fmt.Sprintf("failed to delete %q", key), err)
	}
	return nil
}

// Take returns and removes the value stored under key using GETDEL.
func (s *RedisStorage) Take(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.GetDel(ctx, s.namespace+key).Result()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, errors.NewStorageError(fmt.Sprintf("failed to take %q", key), err)
	}
	return value, true, nil
}

// Keys returns the sorted keys starting with prefix.
func (s *RedisStorage) Keys(ctx context.Context, prefix string) ([]string, error) {
	full, err := s.scan(ctx, prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(full))
	for _, k := range full {
		keys = append(keys, strings.TrimPrefix(k, s.namespace))
	}
	sort.Strings(keys)
	return keys, nil
}

// DeletePrefix removes every key starting with prefix.
func (s *RedisStorage) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	full, err := s.scan(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if len(full) == 0 {
		return 0, nil
	}

	removed, err := s.client.Del(ctx, full...).Result()
	if err != nil {
		return 0, errors.NewStorageError(fmt.Sprintf("failed to delete keys with prefix %q", prefix), err)
	}
	return int(removed), nil
}

// scan returns the fully qualified keys under namespace+prefix.
func (s *RedisStorage) scan(ctx context.Context, prefix string) ([]string, error) {
	pattern := escapeGlob(s.namespace+prefix) + "*"

	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, scanBatchSize).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, errors.NewStorageError(fmt.Sprintf("failed to scan keys with prefix %q", prefix), err)
	}
	return keys, nil
}

// escapeGlob escapes the characters SCAN MATCH treats as pattern syntax.
func escapeGlob(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isOutOfMemory(err error) bool {
	return strings.HasPrefix(err.Error(), "OOM ")
}
