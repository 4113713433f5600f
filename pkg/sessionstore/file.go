// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sessionstore

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/gofrs/flock"

	"github.com/stacklok/authflow/pkg/errors"
	"github.com/stacklok/authflow/pkg/logger"
)

const (
	// lockTimeout is the maximum time to wait for the session file lock.
	lockTimeout = 2 * time.Second

	// lockRetryDelay is how often the lock is retried while waiting.
	lockRetryDelay = 20 * time.Millisecond

	// fileFormatVersion is written into every session document.
	fileFormatVersion = 1
)

// defaultSessionFile is the XDG-relative location of the session file.
const defaultSessionFile = "authflow/session.json"

// sessionDocument is the on-disk layout of the session file.
type sessionDocument struct {
	Version int               `json:"version"`
	Entries map[string]string `json:"entries"`
}

// FileStorage implements Storage on top of a JSON document on disk.
//
// Every operation holds a lock on "<path>.lock" for its full read-modify-write
// cycle, so two processes completing the same callback cannot both consume an
// entry. Writes replace the file atomically through a temporary file.
type FileStorage struct {
	path string
}

// NewFileStorage creates a FileStorage backed by path. An empty path selects
// the default session file under the XDG state directory.
func NewFileStorage(path string) (*FileStorage, error) {
	if path == "" {
		var err error
		path, err = xdg.StateFile(defaultSessionFile)
		if err != nil {
			return nil, errors.NewStorageError("unable to resolve session file path", err)
		}
	}

	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.NewStorageError(fmt.Sprintf("unable to create directory for %s", path), err)
	}

	return &FileStorage{path: path}, nil
}

// Path returns the session file location.
func (s *FileStorage) Path() string {
	return s.path
}

// Get returns the value stored under key.
func (s *FileStorage) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := s.read(ctx, func(entries map[string]string) {
		value, found = entries[key]
	})
	return value, found, err
}

// Set stores value under key.
func (s *FileStorage) Set(ctx context.Context, key, value string) error {
	return s.update(ctx, func(entries map[string]string) bool {
		entries[key] = value
		return true
	})
}

// Delete removes key.
func (s *FileStorage) Delete(ctx context.Context, key string) error {
	return s.update(ctx, func(entries map[string]string) bool {
		if _, ok := entries[key]; !ok {
			return false
		}
		delete(entries, key)
		return true
	})
}

// Take returns and removes the value stored under key.
func (s *FileStorage) Take(ctx context.Context, key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := s.update(ctx, func(entries map[string]string) bool {
		value, found = entries[key]
		if found {
			delete(entries, key)
		}
		return found
	})
	if err != nil {
		return "", false, err
	}
	return value, found, nil
}

// Keys returns the sorted keys starting with prefix.
func (s *FileStorage) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.read(ctx, func(entries map[string]string) {
		for k := range entries {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
	})
	sort.Strings(keys)
	return keys, err
}

// DeletePrefix removes every key starting with prefix.
func (s *FileStorage) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	removed := 0
	err := s.update(ctx, func(entries map[string]string) bool {
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

// read runs fn against the current entries under a shared lock.
func (s *FileStorage) read(ctx context.Context, fn func(map[string]string)) error {
	unlock, err := s.lock(ctx, true)
	if err != nil {
		return err
	}
	defer unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	fn(entries)
	return nil
}

// update runs fn against the current entries under an exclusive lock and
// persists them when fn reports a change.
func (s *FileStorage) update(ctx context.Context, fn func(map[string]string) bool) error {
	unlock, err := s.lock(ctx, false)
	if err != nil {
		return err
	}
	defer unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	if !fn(entries) {
		return nil
	}
	return s.save(entries)
}

func (s *FileStorage) lock(ctx context.Context, shared bool) (func(), error) {
	fileLock := flock.New(s.path + ".lock")
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	var (
		locked bool
		err    error
	)
	if shared {
		locked, err = fileLock.TryRLockContext(lockCtx, lockRetryDelay)
	} else {
		locked, err = fileLock.TryLockContext(lockCtx, lockRetryDelay)
	}
	if err != nil {
		return nil, errors.NewStorageError("failed to acquire session file lock", err)
	}
	if !locked {
		return nil, errors.NewStorageError(fmt.Sprintf("failed to acquire session file lock: timeout after %v", lockTimeout), nil)
	}

	return func() {
		if err := fileLock.Unlock(); err != nil {
			logger.Warnf("Failed to release session file lock: %v", err)
		}
	}, nil
}

func (s *FileStorage) load() (map[string]string, error) {
	// #nosec G304: path is chosen by the host, not by remote input.
	data, err := os.ReadFile(s.path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return make(map[string]string), nil
		}
		return nil, errors.NewStorageError(fmt.Sprintf("unable to read session file %s", s.path), err)
	}
	if len(data) == 0 {
		return make(map[string]string), nil
	}

	var doc sessionDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.NewStorageError(fmt.Sprintf("session file %s is corrupt", s.path), err)
	}
	if doc.Entries == nil {
		doc.Entries = make(map[string]string)
	}
	return doc.Entries, nil
}

func (s *FileStorage) save(entries map[string]string) error {
	data, err := json.Marshal(sessionDocument{Version: fileFormatVersion, Entries: entries})
	if err != nil {
		return errors.NewStorageError("failed to encode session file", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*.tmp")
	if err != nil {
		return errors.NewStorageError("failed to create temporary session file", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op after a successful rename.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.NewStorageError("failed to write session file", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.NewStorageError("failed to write session file", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return errors.NewStorageError("failed to set session file permissions", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return errors.NewStorageError("failed to replace session file", err)
	}
	return nil
}
