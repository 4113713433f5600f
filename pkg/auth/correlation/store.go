// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package correlation persists caller payloads across a navigation and
// recovers them from the URL the host returns to.
//
// Every payload is stored under "<prefix>.AuthorizeService.<id>" where id is
// a fresh random value that travels through the identity provider inside the
// OAuth state parameter. Entries are consumed at most once.
package correlation

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/stacklok/authflow/pkg/errors"
	"github.com/stacklok/authflow/pkg/logger"
	"github.com/stacklok/authflow/pkg/sessionstore"
)

const (
	// DefaultPrefix namespaces every key written by a Store.
	DefaultPrefix = "authflow"

	// idBytes is the number of random bytes in a correlation id.
	idBytes = 32

	// stateParam is the URL parameter carrying the correlation id.
	stateParam = "state"

	// stateSeparator separates provider-owned data from the correlation id in
	// a sign-in state value.
	stateSeparator = "|"
)

// StorageError reports that a payload could not be serialized, persisted or
// loaded.
type StorageError struct {
	Op  string
	Err error
}

func newStorageError(op string, cause error) *StorageError {
	return &StorageError{Op: op, Err: errors.NewStorageError(op, cause)}
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("correlation store: %v", e.Err)
}

// Unwrap returns the underlying storage error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Store saves and recovers payloads of type T.
type Store[T any] struct {
	storage sessionstore.Storage
	prefix  string
}

// New creates a Store over storage. An empty prefix selects DefaultPrefix.
func New[T any](storage sessionstore.Storage, prefix string) *Store[T] {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store[T]{storage: storage, prefix: prefix}
}

// Prefix returns the key prefix owned by the store.
func (s *Store[T]) Prefix() string {
	return s.prefix
}

// Save serializes payload under a new correlation id and returns the id.
func (s *Store[T]) Save(ctx context.Context, payload T) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", newStorageError("failed to serialize payload", err)
	}

	id, err := NewID()
	if err != nil {
		return "", newStorageError("failed to generate correlation id", err)
	}

	if err := s.storage.Set(ctx, s.entryKey(id), string(data)); err != nil {
		return "", &StorageError{Op: "failed to persist payload", Err: err}
	}

	logger.Debugw("saved correlation entry", "id", id)
	return id, nil
}

// Retrieve recovers the payload referenced by the state parameter of
// returningURL and removes it from storage. It reports false when the URL
// carries no unambiguous state or no entry matches. A stored value that cannot
// be decoded yields a *StorageError.
func (s *Store[T]) Retrieve(ctx context.Context, returningURL string, isLogoutFlow bool) (T, bool, error) {
	var zero T

	state, ok := stateFromURL(returningURL)
	if !ok {
		return zero, false, nil
	}

	id := state
	if !isLogoutFlow {
		id = idFromSignInState(state)
	}
	if id == "" {
		return zero, false, nil
	}

	value, found, err := s.storage.Take(ctx, s.entryKey(id))
	if err != nil {
		return zero, false, &StorageError{Op: "failed to load payload", Err: err}
	}
	if !found {
		logger.Debugw("no correlation entry for state", "id", id)
		return zero, false, nil
	}

	var payload T
	if err := json.Unmarshal([]byte(value), &payload); err != nil {
		return zero, false, newStorageError("failed to deserialize payload", err)
	}
	return payload, true, nil
}

// Purge removes every key under the store's prefix, including the pending
// logout id.
func (s *Store[T]) Purge(ctx context.Context) error {
	removed, err := s.storage.DeletePrefix(ctx, s.prefix+".")
	if err != nil {
		return &StorageError{Op: "failed to purge entries", Err: err}
	}
	if removed > 0 {
		logger.Debugw("purged correlation entries", "count", removed)
	}
	return nil
}

// SaveLogoutID records the correlation id of the pending sign-out.
func (s *Store[T]) SaveLogoutID(ctx context.Context, id string) error {
	if err := s.storage.Set(ctx, s.logoutKey(), id); err != nil {
		return &StorageError{Op: "failed to persist logout id", Err: err}
	}
	return nil
}

// LogoutID returns the correlation id of the pending sign-out, if any.
func (s *Store[T]) LogoutID(ctx context.Context) (string, bool, error) {
	id, found, err := s.storage.Get(ctx, s.logoutKey())
	if err != nil {
		return "", false, &StorageError{Op: "failed to load logout id", Err: err}
	}
	return id, found, nil
}

// ClearLogoutID removes the pending sign-out id.
func (s *Store[T]) ClearLogoutID(ctx context.Context) error {
	if err := s.storage.Delete(ctx, s.logoutKey()); err != nil {
		return &StorageError{Op: "failed to clear logout id", Err: err}
	}
	return nil
}

func (s *Store[T]) entryKey(id string) string {
	return s.prefix + ".AuthorizeService." + id
}

func (s *Store[T]) logoutKey() string {
	return s.prefix + ".LogoutState"
}

// NewID returns 32 random bytes encoded as unpadded base64url.
func NewID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// stateFromURL extracts the single state value from the fragment of rawURL,
// falling back to its query string when the fragment has none.
func stateFromURL(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}

	// ParseQuery keeps every well-formed pair when it reports an error, so one
	// malformed parameter does not hide state.
	if frag := u.EscapedFragment(); frag != "" {
		values, _ := url.ParseQuery(frag)
		switch states := values[stateParam]; len(states) {
		case 0:
		case 1:
			return states[0], true
		default:
			return "", false
		}
	}

	values, _ := url.ParseQuery(u.RawQuery)
	if states := values[stateParam]; len(states) == 1 {
		return states[0], true
	}
	return "", false
}

// idFromSignInState returns the correlation id embedded in a sign-in state of
// the form "<opaque>|<id>".
func idFromSignInState(state string) string {
	i := strings.LastIndex(state, stateSeparator)
	if i < 0 || i == len(state)-len(stateSeparator) {
		return state
	}
	return state[i+len(stateSeparator):]
}
