// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package navigation chooses how an interactive sign-in reaches the identity
// provider: by navigating the host away (redirect) or through a secondary
// window that reports back (popup).
package navigation

import (
	"context"
	"fmt"
	"strings"

	"github.com/stacklok/authflow/pkg/auth/provider"
	"github.com/stacklok/authflow/pkg/errors"
	"github.com/stacklok/authflow/pkg/logger"
)

// Mode selects the interactive sign-in mechanism.
type Mode string

const (
	// ModeRedirect navigates the host to the provider. The host does not
	// survive the navigation.
	ModeRedirect Mode = "redirect"

	// ModePopup completes sign-in in a secondary window while the host waits.
	ModePopup Mode = "popup"
)

// DefaultMode is used when no mode is configured.
const DefaultMode = ModeRedirect

// ParseMode parses a mode name case-insensitively. An empty name selects
// DefaultMode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return DefaultMode, nil
	case ModeRedirect:
		return ModeRedirect, nil
	case ModePopup:
		return ModePopup, nil
	default:
		return "", errors.NewInvalidArgumentError(
			fmt.Sprintf("invalid login mode %q: must be %q or %q", s, ModeRedirect, ModePopup), nil)
	}
}

// CancelPredicate reports whether a popup failure means the user dismissed
// the window. Cancellations are final and never fall back to a redirect.
type CancelPredicate func(error) bool

// Strategy runs an interactive sign-in in the configured mode.
type Strategy struct {
	client   provider.Client
	mode     Mode
	isCancel CancelPredicate
}

// NewStrategy creates a Strategy. A nil predicate selects
// provider.IsUserCancelled.
func NewStrategy(client provider.Client, mode Mode, isCancel CancelPredicate) *Strategy {
	if mode == "" {
		mode = DefaultMode
	}
	if isCancel == nil {
		isCancel = provider.IsUserCancelled
	}
	return &Strategy{client: client, mode: mode, isCancel: isCancel}
}

// Mode returns the configured mode.
func (s *Strategy) Mode() Mode {
	return s.mode
}

// Authorize starts sign-in. For a redirect it returns nil, nil once the
// navigation has been started. For a popup it returns the provider's result.
//
// A popup that fails for any reason other than cancellation falls back to a
// single redirect with the same request.
func (s *Strategy) Authorize(ctx context.Context, req *provider.AuthorizationRequest) (*provider.TokenResult, error) {
	if s.mode == ModeRedirect {
		return nil, s.client.LoginRedirect(ctx, req)
	}

	res, err := s.client.LoginPopup(ctx, req)
	if err == nil {
		return res, nil
	}
	if s.isCancel(err) {
		logger.Debugw("popup sign-in cancelled by user", "error", err)
		return nil, err
	}

	logger.Warnw("popup sign-in failed, falling back to redirect", "error", err)
	return nil, s.client.LoginRedirect(ctx, req)
}
