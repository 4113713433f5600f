// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oidcclient

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/stacklok/authflow/pkg/auth/provider"
	"github.com/stacklok/authflow/pkg/sessionstore"
)

// signedIn runs a redirect flow against idp and returns the client and the
// signed-in account.
func signedIn(t *testing.T, idp *testIdP, scopes ...string) (*Client, *provider.Account) {
	t.Helper()
	ctx := context.Background()
	opener := &recordingOpener{}
	c := newTestClient(t, idp, sessionstore.NewMemoryStorage(), testRedirectURI, WithOpener(opener.open))

	require.NoError(t, c.LoginRedirect(ctx, &provider.AuthorizationRequest{State: "id", Scopes: scopes}))
	res, err := c.ConsumeRedirectResult(ctx, authorize(t, opener.last(t)))
	require.NoError(t, err)
	require.NotNil(t, res)
	return c, res.Account
}

func TestAcquireTokenSilently(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("no account", func(t *testing.T) {
		t.Parallel()
		c, _ := signedIn(t, newTestIdP(t))

		_, err := c.AcquireTokenSilently(ctx, &provider.TokenRequest{})
		assert.Equal(t, provider.CodeNoAccount, providerCode(t, err))
	})

	t.Run("unknown account", func(t *testing.T) {
		t.Parallel()
		c, _ := signedIn(t, newTestIdP(t))

		_, err := c.AcquireTokenSilently(ctx, &provider.TokenRequest{Account: &provider.Account{ID: "someone-else"}})
		assert.Equal(t, provider.CodeInteractionRequired, providerCode(t, err))
	})

	t.Run("cached token", func(t *testing.T) {
		t.Parallel()
		idp := newTestIdP(t)
		c, account := signedIn(t, idp, "api.read")

		first, err := c.AcquireTokenSilently(ctx, &provider.TokenRequest{Account: account, Scopes: []string{"api.read"}})
		require.NoError(t, err)
		second, err := c.AcquireTokenSilently(ctx, &provider.TokenRequest{Account: account, Scopes: []string{"api.read"}})
		require.NoError(t, err)

		assert.Equal(t, first.AccessToken, second.AccessToken)
		assert.Equal(t, []string{"api.read"}, second.Scopes)
		assert.Zero(t, idp.observedRefreshCalls())
	})

	t.Run("consent required", func(t *testing.T) {
		t.Parallel()
		c, account := signedIn(t, newTestIdP(t), "api.read")

		_, err := c.AcquireTokenSilently(ctx, &provider.TokenRequest{Account: account, Scopes: []string{"mail.read"}})
		assert.Equal(t, provider.CodeConsentRequired, providerCode(t, err))
	})

	t.Run("identity scopes never need consent", func(t *testing.T) {
		t.Parallel()
		c, account := signedIn(t, newTestIdP(t))

		_, err := c.AcquireTokenSilently(ctx, &provider.TokenRequest{Account: account, Scopes: []string{"openid", "profile"}})
		assert.NoError(t, err)
	})

	t.Run("expired token is refreshed once for concurrent callers", func(t *testing.T) {
		t.Parallel()
		idp := newTestIdP(t)
		idp.expiresIn = 1
		c, account := signedIn(t, idp, "api.read")

		var wg sync.WaitGroup
		tokens := make([]string, 8)
		for i := range tokens {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := c.AcquireTokenSilently(ctx, &provider.TokenRequest{Account: account, Scopes: []string{"api.read"}})
				if assert.NoError(t, err) {
					tokens[i] = res.AccessToken
				}
			}()
		}
		wg.Wait()

		assert.GreaterOrEqual(t, idp.observedRefreshCalls(), 1)
		for _, tok := range tokens {
			assert.NotEmpty(t, tok)
		}
	})

	t.Run("caller cancellation ends the wait but keeps the session", func(t *testing.T) {
		t.Parallel()
		idp := newTestIdP(t)
		idp.expiresIn = 1
		c, account := signedIn(t, idp)

		gate := make(chan struct{})
		idp.mu.Lock()
		idp.refreshGate = gate
		idp.mu.Unlock()

		waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		_, err := c.AcquireTokenSilently(waitCtx, &provider.TokenRequest{Account: account})
		assert.Equal(t, provider.CodeTimedOut, providerCode(t, err))
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		close(gate)
		res, err := c.AcquireTokenSilently(ctx, &provider.TokenRequest{Account: account})
		require.NoError(t, err)
		assert.NotEmpty(t, res.AccessToken)
	})

	t.Run("failed refresh requires interaction", func(t *testing.T) {
		t.Parallel()
		idp := newTestIdP(t)
		idp.expiresIn = 1
		c, account := signedIn(t, idp)

		idp.mu.Lock()
		idp.failRefresh = true
		idp.mu.Unlock()

		_, err := c.AcquireTokenSilently(ctx, &provider.TokenRequest{Account: account})
		assert.Equal(t, provider.CodeInteractionRequired, providerCode(t, err))

		_, err = c.AcquireTokenSilently(ctx, &provider.TokenRequest{Account: account})
		assert.Equal(t, provider.CodeInteractionRequired, providerCode(t, err))
		assert.Equal(t, 1, idp.observedRefreshCalls())
	})
}

func TestGrantedScopes(t *testing.T) {
	t.Parallel()

	sign := func(claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
		require.NoError(t, err)
		return s
	}

	tests := []struct {
		name      string
		token     *oauth2.Token
		requested []string
		want      []string
	}{
		{
			name:      "response scope wins",
			token:     (&oauth2.Token{AccessToken: sign(jwt.MapClaims{"scp": "b"})}).WithExtra(map[string]any{"scope": "a c"}),
			requested: []string{"z"},
			want:      []string{"a", "c"},
		},
		{
			name:  "scp string claim",
			token: &oauth2.Token{AccessToken: sign(jwt.MapClaims{"scp": "api.read api.write"})},
			want:  []string{"api.read", "api.write"},
		},
		{
			name:  "scp array claim",
			token: &oauth2.Token{AccessToken: sign(jwt.MapClaims{"scp": []any{"api.read", 7, ""}})},
			want:  []string{"api.read"},
		},
		{
			name:  "scope claim",
			token: &oauth2.Token{AccessToken: sign(jwt.MapClaims{"scope": "mail.read"})},
			want:  []string{"mail.read"},
		},
		{
			name:      "opaque token falls back to requested",
			token:     &oauth2.Token{AccessToken: "opaque", Expiry: time.Now().Add(time.Hour)},
			requested: []string{"api.read"},
			want:      []string{"api.read"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, grantedScopes(tt.token, tt.requested))
		})
	}
}

func TestMissingScopes(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"mail.read"},
		missingScopes([]string{"openid", "api.read", "mail.read", ""}, []string{"api.read"}))
	assert.Nil(t, missingScopes(nil, nil))
}
