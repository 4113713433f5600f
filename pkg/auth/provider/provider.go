// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package provider defines the contract authflow needs from an identity
// provider client library, along with the account, token and error types that
// cross that boundary.
package provider

import (
	"context"
	"maps"
	"time"
)

//go:generate mockgen -destination=mocks/mock_client.go -package=mocks -source=provider.go Client

// Client is the identity provider client the orchestrator drives.
//
// LoginRedirect and Logout navigate away from the host. A browser host is
// unloaded and a CLI host may exit, so nothing after those calls is guaranteed
// to run. The outcome of a redirect flow is collected later by
// ConsumeRedirectResult when the host starts again at the redirect URI.
type Client interface {
	// AcquireTokenSilently returns a token for account without user
	// interaction, refreshing it if needed.
	AcquireTokenSilently(ctx context.Context, req *TokenRequest) (*TokenResult, error)

	// LoginRedirect starts an interactive sign-in by navigating to the
	// authorization endpoint.
	LoginRedirect(ctx context.Context, req *AuthorizationRequest) error

	// LoginPopup runs an interactive sign-in in a secondary window and waits
	// for it to finish.
	LoginPopup(ctx context.Context, req *AuthorizationRequest) (*TokenResult, error)

	// Logout signs the user out at the provider and navigates to the
	// post-logout redirect URI.
	Logout(ctx context.Context, req *LogoutRequest) error

	// ConsumeRedirectResult inspects the URL the host was started at. It returns
	// nil, nil when the URL is not a provider callback.
	ConsumeRedirectResult(ctx context.Context, currentURL string) (*TokenResult, error)
}

// Account identifies a signed-in user.
type Account struct {
	// ID is the provider's stable account identifier (the ID token subject).
	ID string `json:"id"`

	// Username is the preferred username or email, if the provider supplied one.
	Username string `json:"username,omitempty"`

	// Name is the display name, if the provider supplied one.
	Name string `json:"name,omitempty"`

	// Issuer is the issuer that authenticated the account.
	Issuer string `json:"issuer,omitempty"`

	// Claims holds every claim of the verified ID token.
	Claims map[string]any `json:"claims,omitempty"`
}

// Clone returns a copy of a that shares no claims map with it.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.Claims = maps.Clone(a.Claims)
	return &c
}

// AuthorizationRequest describes an interactive sign-in.
type AuthorizationRequest struct {
	// RedirectURI is where the provider returns after authorization.
	RedirectURI string

	// State is opaque caller state echoed back by the provider. The provider
	// may prepend its own data separated by '|'.
	State string

	// Scopes are requested for the resulting access token.
	Scopes []string

	// ExtraScopesToConsent are consented to during sign-in but not included in
	// the resulting access token.
	ExtraScopesToConsent []string
}

// TokenRequest describes a silent token acquisition.
type TokenRequest struct {
	// Account is the account to acquire a token for.
	Account *Account

	// Scopes are the scopes the token must carry.
	Scopes []string

	// RedirectURI is used when the provider needs a hidden-frame renewal.
	RedirectURI string
}

// LogoutRequest describes a sign-out.
type LogoutRequest struct {
	// Account is the account being signed out. May be nil.
	Account *Account

	// PostLogoutRedirectURI is where the provider returns after sign-out.
	PostLogoutRedirectURI string
}

// TokenResult is returned by successful interactive or silent flows.
type TokenResult struct {
	AccessToken string    `json:"access_token,omitempty"`
	IDToken     string    `json:"id_token,omitempty"`
	ExpiresOn   time.Time `json:"expires_on,omitzero"`
	Scopes      []string  `json:"scopes,omitempty"`
	Account     *Account  `json:"account,omitempty"`

	// State is the full state string returned by the provider, including any
	// provider-owned prefix.
	State string `json:"-"`
}
