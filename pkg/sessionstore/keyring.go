// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sessionstore

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sort"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"

	"github.com/stacklok/authflow/pkg/errors"
)

// DefaultKeyringService is the OS keyring service entries are stored under.
const DefaultKeyringService = "authflow"

// keyringMu serializes keyring access. The OS keyring is shared by the whole
// process, so every KeyringStorage uses the same lock.
var keyringMu sync.Mutex

// KeyringStorage implements Storage as a single JSON document in the OS
// keyring, one keyring item per session id. Take is atomic within a process
// only; use the file or redis backend when several processes share a session.
type KeyringStorage struct {
	service string
	user    string
}

// NewKeyringStorage creates a KeyringStorage for the given keyring service and
// session id.
func NewKeyringStorage(service, sessionID string) *KeyringStorage {
	if service == "" {
		service = DefaultKeyringService
	}
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	return &KeyringStorage{service: service, user: sessionID}
}

// Get returns the value stored under key.
func (s *KeyringStorage) Get(_ context.Context, key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := s.update(func(entries map[string]string) bool {
		value, found = entries[key]
		return false
	})
	return value, found, err
}

// Set stores value under key.
func (s *KeyringStorage) Set(_ context.Context, key, value string) error {
	return s.update(func(entries map[string]string) bool {
		entries[key] = value
		return true
	})
}

// Delete removes key.
func (s *KeyringStorage) Delete(_ context.Context, key string) error {
	return s.update(func(entries map[string]string) bool {
		if _, ok := entries[key]; !ok {
			return false
		}
		delete(entries, key)
		return true
	})
}

// Take returns and removes the value stored under key.
func (s *KeyringStorage) Take(_ context.Context, key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := s.update(func(entries map[string]string) bool {
		value, found = entries[key]
		delete(entries, key)
		return found
	})
	if err != nil {
		return "", false, err
	}
	return value, found, nil
}

// Keys returns the sorted keys starting with prefix.
func (s *KeyringStorage) Keys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.update(func(entries map[string]string) bool {
		for k := range entries {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		return false
	})
	sort.Strings(keys)
	return keys, err
}

// DeletePrefix removes every key starting with prefix.
func (s *KeyringStorage) DeletePrefix(_ context.Context, prefix string) (int, error) {
	removed := 0
	err := s.update(func(entries map[string]string) bool {
		for k := range entries {
			if strings.HasPrefix(k, prefix) {
				delete(entries, k)
				removed++
			}
		}
		return removed > 0
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// update loads the session document, runs fn and writes the document back
// when fn reports a change.
func (s *KeyringStorage) update(fn func(map[string]string) bool) error {
	keyringMu.Lock()
	defer keyringMu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	if !fn(entries) {
		return nil
	}
	return s.save(entries)
}

func (s *KeyringStorage) load() (map[string]string, error) {
	data, err := keyring.Get(s.service, s.user)
	if err != nil {
		if stderrors.Is(err, keyring.ErrNotFound) {
			return make(map[string]string), nil
		}
		return nil, errors.NewStorageError("unable to read session from the OS keyring", err)
	}

	var doc sessionDocument
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, errors.NewStorageError("session in the OS keyring is corrupt", err)
	}
	if doc.Entries == nil {
		doc.Entries = make(map[string]string)
	}
	return doc.Entries, nil
}

func (s *KeyringStorage) save(entries map[string]string) error {
	if len(entries) == 0 {
		if err := keyring.Delete(s.service, s.user); err != nil && !stderrors.Is(err, keyring.ErrNotFound) {
			return errors.NewStorageError("unable to clear session in the OS keyring", err)
		}
		return nil
	}

	data, err := json.Marshal(sessionDocument{Version: fileFormatVersion, Entries: entries})
	if err != nil {
		return errors.NewStorageError("failed to encode session", err)
	}
	if err := keyring.Set(s.service, s.user, string(data)); err != nil {
		if stderrors.Is(err, keyring.ErrSetDataTooBig) {
			return errors.NewQuotaExceededError("session does not fit in the OS keyring", err)
		}
		return errors.NewStorageError("unable to write session to the OS keyring", err)
	}
	return nil
}
