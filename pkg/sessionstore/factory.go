// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sessionstore

import (
	"context"
	"fmt"

	"github.com/stacklok/authflow/pkg/errors"
	"github.com/stacklok/authflow/pkg/logger"
)

// New creates the storage backend selected by cfg.
func New(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = DefaultSessionID
	}

	switch cfg.Type {
	case TypeMemory:
		logger.Debugw("using in-memory session storage", "max_bytes", cfg.MaxBytes)
		return NewMemoryStorage(WithMaxBytes(cfg.MaxBytes)), nil
	case TypeFile, "":
		s, err := NewFileStorage(cfg.Path)
		if err != nil {
			return nil, err
		}
		logger.Debugw("using file session storage", "path", s.Path())
		return s, nil
	case TypeRedis:
		logger.Debugw("using redis session storage", "addr", cfg.Redis.Addr, "session_id", sessionID)
		return NewRedisStorage(ctx, cfg.Redis, sessionID, cfg.TTL)
	case TypeKeyring:
		logger.Debugw("using OS keyring session storage", "session_id", sessionID)
		return NewKeyringStorage(DefaultKeyringService, sessionID), nil
	default:
		return nil, errors.NewInvalidArgumentError(fmt.Sprintf("unknown session storage type %q", cfg.Type), nil)
	}
}
