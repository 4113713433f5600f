// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sessionstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/stacklok/authflow/pkg/errors"
)

// MemoryStorage implements Storage with an in-memory map.
// It is thread-safe and suitable for tests and for hosts whose interactive
// flows never outlive the process (popup-only sign-in).
type MemoryStorage struct {
	mu sync.Mutex

	// entries maps key -> value.
	entries map[string]string

	// size is the running sum of len(key)+len(value) across entries.
	size int

	// maxBytes caps size when positive.
	maxBytes int
}

// MemoryOption configures a MemoryStorage.
type MemoryOption func(*MemoryStorage)

// WithMaxBytes caps the total size of keys and values held by the storage.
// Writes that would exceed the cap fail with a quota error.
func WithMaxBytes(n int) MemoryOption {
	return func(s *MemoryStorage) {
		s.maxBytes = n
	}
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage(opts ...MemoryOption) *MemoryStorage {
	s := &MemoryStorage{
		entries: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the value stored under key.
func (s *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.entries[key]
	return value, ok, nil
}

// Set stores value under key.
func (s *MemoryStorage) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	newSize := s.size + len(key) + len(value)
	if old, ok := s.entries[key]; ok {
		newSize -= len(key) + len(old)
	}
	if s.maxBytes > 0 && newSize > s.maxBytes {
		return errors.NewQuotaExceededError(
			fmt.Sprintf("storing %q needs %d bytes, limit is %d", key, newSize, s.maxBytes), nil)
	}

	s.entries[key] = value
	s.size = newSize
	return nil
}

// Delete removes key.
func (s *MemoryStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteLocked(key)
	return nil
}

// Take returns and removes the value stored under key.
func (s *MemoryStorage) Take(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.entries[key]
	if ok {
		s.deleteLocked(key)
	}
	return value, ok, nil
}

// Keys returns the sorted keys starting with prefix.
func (s *MemoryStorage) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// DeletePrefix removes every key starting with prefix.
func (s *MemoryStorage) DeletePrefix(_ context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			s.deleteLocked(k)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored entries.
func (s *MemoryStorage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStorage) deleteLocked(key string) {
	if old, ok := s.entries[key]; ok {
		s.size -= len(key) + len(old)
		delete(s.entries, key)
	}
}
