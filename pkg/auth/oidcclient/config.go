// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oidcclient

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/browser"

	"github.com/stacklok/authflow/pkg/errors"
)

const (
	// DefaultPopupTimeout bounds how long LoginPopup waits for the callback.
	DefaultPopupTimeout = 5 * time.Minute

	// pendingTTL bounds how long an authorization request stays redeemable.
	pendingTTL = 10 * time.Minute

	// discoveryMaxTries bounds discovery attempts against a flaky issuer.
	discoveryMaxTries = 4

	// httpTimeout is the default timeout for requests to the provider.
	httpTimeout = 30 * time.Second
)

// DefaultScopes are requested on every authorization in addition to the
// caller's scopes.
var DefaultScopes = []string{"openid", "profile", "offline_access"}

// Config holds the client registration at the identity provider.
type Config struct {
	// Issuer is the OIDC issuer URL used for discovery.
	Issuer string

	// ClientID is the registered client identifier.
	ClientID string

	// ClientSecret is optional. Public clients rely on PKCE alone.
	ClientSecret string

	// RedirectURI receives authorization responses. LoginPopup listens on it,
	// so for popup sign-in it must be a loopback http URL with a port.
	RedirectURI string

	// Scopes replaces DefaultScopes when set.
	Scopes []string

	// PopupTimeout bounds LoginPopup. Zero selects DefaultPopupTimeout.
	PopupTimeout time.Duration
}

// Validate checks that the required fields are present.
func (c *Config) Validate() error {
	if c.Issuer == "" {
		return errors.NewInvalidArgumentError("issuer is required", nil)
	}
	if c.ClientID == "" {
		return errors.NewInvalidArgumentError("client ID is required", nil)
	}
	if c.RedirectURI == "" {
		return errors.NewInvalidArgumentError("redirect URI is required", nil)
	}
	if _, err := url.Parse(c.RedirectURI); err != nil {
		return errors.NewInvalidArgumentError(fmt.Sprintf("invalid redirect URI %q", c.RedirectURI), err)
	}
	return nil
}

// Opener navigates the user agent to a URL.
type Opener func(rawURL string) error

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for discovery, token and key
// requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithOpener replaces the system browser as the way authorization and
// sign-out pages are opened.
func WithOpener(open Opener) Option {
	return func(c *Client) {
		c.open = open
	}
}

func defaultOpener(rawURL string) error {
	return browser.OpenURL(rawURL)
}
