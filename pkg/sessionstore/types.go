// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package sessionstore provides session-scoped key/value storage for state that
// must survive a navigation or process restart during an interactive sign-in.
//
// It plays the role a browser's sessionStorage plays for a single-page app:
// string keys, string values, no schema. Three backends are provided: an
// in-memory map, a lock-protected JSON file for CLI hosts, and Redis for hosts
// that run more than one process per user session.
package sessionstore

import (
	"context"
	"time"
)

// Storage is a session-scoped string key/value store.
//
// Implementations must be safe for concurrent use. Take must read and delete a
// key as a single step so that an entry can be consumed at most once even when
// callbacks race.
type Storage interface {
	// Get returns the value stored under key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Take returns the value stored under key and removes it atomically.
	Take(ctx context.Context, key string) (string, bool, error)

	// Keys returns every key starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// DeletePrefix removes every key starting with prefix and returns how many
	// keys were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// Type defines the type of storage backend.
type Type string

const (
	// TypeMemory keeps entries in process memory. Entries do not survive a restart.
	TypeMemory Type = "memory"

	// TypeFile keeps entries in a JSON file guarded by a lock file.
	TypeFile Type = "file"

	// TypeRedis keeps entries in Redis, namespaced per session.
	TypeRedis Type = "redis"

	// TypeKeyring keeps entries in the OS keyring, one item per session.
	TypeKeyring Type = "keyring"
)

// Config configures the storage backend.
type Config struct {
	// Type specifies the storage backend type. Defaults to file.
	Type Type

	// Path is the session file for the file backend. Empty selects a file under
	// the XDG state directory.
	Path string

	// SessionID scopes Redis keys and the keyring item to one user session.
	SessionID string

	// TTL bounds the lifetime of entries written to Redis. Zero means no expiry.
	TTL time.Duration

	// MaxBytes caps the memory backend. Zero means unlimited.
	MaxBytes int

	// Redis holds the Redis connection settings.
	Redis RedisConfig
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Type:      TypeFile,
		SessionID: DefaultSessionID,
	}
}

// DefaultSessionID is used when no session id is configured.
const DefaultSessionID = "default"
