// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"

	"github.com/stacklok/authflow/pkg/errors"
	"github.com/stacklok/authflow/pkg/logger"
)

// lockTimeout is the maximum time to wait for a file lock
const lockTimeout = 1 * time.Second

// Save writes cfg to path as YAML while holding "<path>.lock".
func Save(ctx context.Context, path string, cfg *Config) error {
	return withLock(ctx, path, func() error {
		return writeFile(path, cfg)
	})
}

// Init writes the default configuration to path unless a file already
// exists there. It reports whether a file was written.
func Init(ctx context.Context, path string) (bool, error) {
	created := false
	err := withLock(ctx, path, func() error {
		if _, err := os.Stat(path); err == nil {
			return nil
		} else if !stderrors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to stat config file: %w", err)
		}
		logger.Debugf("initializing configuration file at %s", path)
		created = true
		return writeFile(path, Default())
	})
	return created, err
}

func withLock(ctx context.Context, path string, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.NewConfigError("failed to create config directory", err)
	}

	// Use a separate lock file for cross-platform compatibility
	fileLock := flock.New(path + ".lock")
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	locked, err := fileLock.TryLockContext(lockCtx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("failed to acquire lock: timeout after %v", lockTimeout)
	}
	defer func() {
		if err := fileLock.Unlock(); err != nil {
			logger.Warnf("Failed to release config lock: %v", err)
		}
	}()

	return fn()
}

func writeFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error serializing config file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.NewConfigError(fmt.Sprintf("failed to write config file %s", path), err)
	}
	return nil
}
