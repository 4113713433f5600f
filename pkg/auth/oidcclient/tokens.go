// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oidcclient

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/stacklok/authflow/pkg/auth/provider"
	"github.com/stacklok/authflow/pkg/logger"
)

// identityScopes are OIDC scopes that never appear in access token grants.
var identityScopes = []string{"openid", "profile", "email", "offline_access"}

type cachedToken struct {
	source  oauth2.TokenSource
	idToken string
	scopes  []string
}

// tokenCache holds one refreshing token source per account.
type tokenCache struct {
	config *oauth2.Config

	// refreshCtx carries the HTTP client used for refresh requests.
	refreshCtx context.Context

	mu      sync.Mutex
	entries map[string]*cachedToken
	group   singleflight.Group
}

func newTokenCache(config *oauth2.Config, refreshCtx context.Context) *tokenCache {
	return &tokenCache{
		config:     config,
		refreshCtx: refreshCtx,
		entries:    make(map[string]*cachedToken),
	}
}

func (c *tokenCache) store(accountID string, token *oauth2.Token, idToken string, scopes []string) {
	// ReuseTokenSource ensures that refresh happens only when needed
	source := oauth2.ReuseTokenSource(token, c.config.TokenSource(c.refreshCtx, token))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[accountID] = &cachedToken{source: source, idToken: idToken, scopes: scopes}
}

func (c *tokenCache) get(accountID string) (*cachedToken, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[accountID]
	return e, ok
}

func (c *tokenCache) idToken(accountID string) string {
	if e, ok := c.get(accountID); ok {
		return e.idToken
	}
	return ""
}

func (c *tokenCache) remove(accountID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, accountID)
}

func (c *tokenCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// AcquireTokenSilently returns a cached token for the account, refreshing it
// when it has expired. Concurrent callers for the same account share one
// refresh.
func (c *Client) AcquireTokenSilently(ctx context.Context, req *provider.TokenRequest) (*provider.TokenResult, error) {
	if req == nil || req.Account == nil || req.Account.ID == "" {
		return nil, provider.NewError(provider.CodeNoAccount, "No account is signed in.", nil)
	}
	accountID := req.Account.ID

	entry, ok := c.tokens.get(accountID)
	if !ok {
		return nil, provider.NewError(provider.CodeInteractionRequired,
			"No cached session for this account. Sign in again.", nil)
	}

	// The refresh keeps running for other waiters when ctx ends.
	flight := c.tokens.group.DoChan(accountID, func() (any, error) {
		return entry.source.Token()
	})
	var res singleflight.Result
	select {
	case res = <-flight:
	case <-ctx.Done():
		return nil, provider.NewError(provider.CodeTimedOut, "The token request was cancelled.", ctx.Err())
	}
	if res.Err != nil {
		c.tokens.remove(accountID)
		return nil, provider.NewError(provider.CodeInteractionRequired,
			"The session could not be renewed. Sign in again.", res.Err)
	}
	if res.Shared {
		logger.Debugw("shared in-flight token acquisition", "account", accountID)
	}
	token := res.Val.(*oauth2.Token)

	granted := grantedScopes(token, entry.scopes)
	if missing := missingScopes(req.Scopes, granted); len(missing) > 0 {
		return nil, provider.NewError(provider.CodeConsentRequired,
			"Consent is required for: "+strings.Join(missing, " "), nil)
	}

	return &provider.TokenResult{
		AccessToken: token.AccessToken,
		IDToken:     entry.idToken,
		ExpiresOn:   token.Expiry,
		Scopes:      granted,
		Account:     req.Account,
	}, nil
}

// grantedScopes returns the scopes a token carries. The token response's
// scope field wins, then the access token's scp or scope claim, then the
// scopes that were requested.
func grantedScopes(token *oauth2.Token, requested []string) []string {
	if s, ok := token.Extra("scope").(string); ok && strings.TrimSpace(s) != "" {
		return strings.Fields(s)
	}
	if scopes := scopesFromJWT(token.AccessToken); len(scopes) > 0 {
		return scopes
	}
	return slices.Clone(requested)
}

// scopesFromJWT reads the scope claims of an access token without verifying
// it. Opaque tokens yield nil.
func scopesFromJWT(accessToken string) []string {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, _, err := parser.ParseUnverified(accessToken, jwt.MapClaims{})
	if err != nil {
		return nil
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil
	}

	for _, name := range []string{"scp", "scope"} {
		switch v := claims[name].(type) {
		case string:
			if scopes := strings.Fields(v); len(scopes) > 0 {
				return scopes
			}
		case []any:
			var scopes []string
			for _, s := range v {
				if str, ok := s.(string); ok && str != "" {
					scopes = append(scopes, str)
				}
			}
			if len(scopes) > 0 {
				return scopes
			}
		}
	}
	return nil
}

func missingScopes(requested, granted []string) []string {
	var missing []string
	for _, s := range requested {
		if s == "" || slices.Contains(identityScopes, s) || slices.Contains(granted, s) {
			continue
		}
		missing = append(missing, s)
	}
	return missing
}
