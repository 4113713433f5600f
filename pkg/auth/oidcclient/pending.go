// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oidcclient

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stacklok/authflow/pkg/auth/provider"
	"github.com/stacklok/authflow/pkg/errors"
	"github.com/stacklok/authflow/pkg/logger"
	"github.com/stacklok/authflow/pkg/sessionstore"
)

// pendingPrefix namespaces pending authorization requests in session
// storage. It is disjoint from the orchestrator's prefix so that starting a
// new flow never discards the client's own records.
const pendingPrefix = "oidcclient.pending."

// pendingAuth is everything needed to redeem an authorization response.
type pendingAuth struct {
	Verifier    string    `json:"verifier"`
	Nonce       string    `json:"nonce"`
	RedirectURI string    `json:"redirect_uri"`
	Scopes      []string  `json:"scopes,omitempty"`
	CallerState string    `json:"caller_state"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type pendingStore struct {
	storage sessionstore.Storage
	now     func() time.Time
}

func newPendingStore(storage sessionstore.Storage, now func() time.Time) *pendingStore {
	return &pendingStore{storage: storage, now: now}
}

// save records p under requestID after dropping expired records.
func (s *pendingStore) save(ctx context.Context, requestID string, p *pendingAuth) error {
	s.pruneExpired(ctx)

	p.ExpiresAt = s.now().Add(pendingTTL)
	data, err := json.Marshal(p)
	if err != nil {
		return errors.NewInternalError("failed to encode pending authorization", err)
	}
	if err := s.storage.Set(ctx, pendingPrefix+requestID, string(data)); err != nil {
		return fmt.Errorf("failed to store pending authorization: %w", err)
	}
	return nil
}

// take removes and returns the record for requestID.
func (s *pendingStore) take(ctx context.Context, requestID string) (*pendingAuth, error) {
	if requestID == "" {
		return nil, provider.NewError(provider.CodeStateNotFound, "The sign-in response carries no state.", nil)
	}

	value, found, err := s.storage.Take(ctx, pendingPrefix+requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending authorization: %w", err)
	}
	if !found {
		return nil, provider.NewError(provider.CodeStateNotFound,
			"No pending sign-in matches this response. It may have been used already.", nil)
	}

	var p pendingAuth
	if err := json.Unmarshal([]byte(value), &p); err != nil {
		return nil, errors.NewStorageError("failed to decode pending authorization", err)
	}
	if s.now().After(p.ExpiresAt) {
		return nil, provider.NewError(provider.CodeStateNotFound, "The pending sign-in has expired.", nil)
	}
	return &p, nil
}

// discard removes the record for requestID, if any.
func (s *pendingStore) discard(ctx context.Context, requestID string) {
	if err := s.storage.Delete(ctx, pendingPrefix+requestID); err != nil {
		logger.Warnf("Failed to discard pending authorization: %v", err)
	}
}

func (s *pendingStore) pruneExpired(ctx context.Context) {
	keys, err := s.storage.Keys(ctx, pendingPrefix)
	if err != nil {
		logger.Debugw("failed to list pending authorizations", "error", err)
		return
	}

	now := s.now()
	for _, key := range keys {
		value, found, err := s.storage.Get(ctx, key)
		if err != nil || !found {
			continue
		}
		var p pendingAuth
		if err := json.Unmarshal([]byte(value), &p); err != nil || now.After(p.ExpiresAt) {
			if err := s.storage.Delete(ctx, key); err != nil {
				logger.Debugw("failed to prune pending authorization", "key", key, "error", err)
			}
		}
	}
}

// randomString returns 32 random bytes as unpadded base64url.
func randomString() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
