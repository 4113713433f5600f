// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package oidcclient is an OpenID Connect implementation of provider.Client
// for hosts without a browser runtime, such as command line tools.
//
// Authorization uses the code flow with PKCE. Pending requests are kept in
// session storage so that a redirect started by one process can be redeemed
// by the next. Tokens are cached in memory per account.
package oidcclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/stacklok/authflow/pkg/auth/provider"
	"github.com/stacklok/authflow/pkg/logger"
	"github.com/stacklok/authflow/pkg/sessionstore"
)

// providerStateSeparator separates the client's request id from the
// caller's state in the OAuth state parameter.
const providerStateSeparator = "|"

// Client implements provider.Client against an OIDC provider.
type Client struct {
	cfg        Config
	httpClient *http.Client
	open       Opener
	now        func() time.Time

	oauth2Config       *oauth2.Config
	verifier           *oidc.IDTokenVerifier
	endSessionEndpoint string

	pending *pendingStore
	tokens  *tokenCache
}

var _ provider.Client = (*Client)(nil)

// New discovers the provider's endpoints and returns a Client. Pending
// authorization requests are written to storage.
func New(ctx context.Context, cfg Config, storage sessionstore.Storage, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.PopupTimeout == 0 {
		cfg.PopupTimeout = DefaultPopupTimeout
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: httpTimeout},
		open:       defaultOpener,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.pending = newPendingStore(storage, c.now)

	// The remote key set keeps this context for later key fetches.
	discoveryCtx := oidc.ClientContext(context.WithoutCancel(ctx), c.httpClient)
	oidcProvider, err := discover(ctx, discoveryCtx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC endpoints: %w", err)
	}

	var claims struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := oidcProvider.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to extract provider claims: %w", err)
	}
	c.endSessionEndpoint = claims.EndSessionEndpoint

	endpoint := oidcProvider.Endpoint()
	c.oauth2Config = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       slices.Clone(scopes),
		Endpoint: oauth2.Endpoint{
			AuthURL:   endpoint.AuthURL,
			TokenURL:  endpoint.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	c.verifier = oidcProvider.Verifier(&oidc.Config{
		ClientID: cfg.ClientID,
		Now:      c.now,
	})
	c.tokens = newTokenCache(c.oauth2Config, oidc.ClientContext(context.Background(), c.httpClient))

	logger.Debugw("oidc client created",
		"issuer", cfg.Issuer,
		"end_session_supported", c.endSessionEndpoint != "",
	)
	return c, nil
}

// discover runs OIDC discovery, retrying transient failures with exponential
// backoff. retryCtx bounds the retries; discoveryCtx carries the HTTP client.
func discover(retryCtx, discoveryCtx context.Context, issuer string) (*oidc.Provider, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 200 * time.Millisecond
	exp.MaxInterval = 2 * time.Second

	return backoff.Retry(retryCtx, func() (*oidc.Provider, error) {
		p, err := oidc.NewProvider(discoveryCtx, issuer)
		if err != nil && strings.Contains(err.Error(), "issuer did not match") {
			return nil, backoff.Permanent(err)
		}
		return p, err
	},
		backoff.WithBackOff(exp),
		backoff.WithMaxTries(discoveryMaxTries),
		backoff.WithNotify(func(err error, d time.Duration) {
			logger.Debugw("oidc discovery failed, retrying", "issuer", issuer, "error", err, "backoff", d)
		}),
	)
}

// LoginRedirect opens the authorization page. The host may exit afterwards;
// the response is redeemed by ConsumeRedirectResult.
func (c *Client) LoginRedirect(ctx context.Context, req *provider.AuthorizationRequest) error {
	authURL, err := c.beginAuthorization(ctx, req)
	if err != nil {
		return err
	}

	logger.Infof("Opening browser to: %s", authURL)
	if err := c.open(authURL); err != nil {
		logger.Warnf("Failed to open browser: %v", err)
		logger.Infof("Please manually open this URL in your browser: %s", authURL)
	}
	return nil
}

// beginAuthorization records a pending request and returns the URL of the
// authorization page.
func (c *Client) beginAuthorization(ctx context.Context, req *provider.AuthorizationRequest) (string, error) {
	redirectURI := req.RedirectURI
	if redirectURI == "" {
		redirectURI = c.cfg.RedirectURI
	}

	nonce, err := randomString()
	if err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	scopes := mergeScopes(c.oauth2Config.Scopes, req.Scopes, req.ExtraScopesToConsent)
	p := &pendingAuth{
		Verifier:    oauth2.GenerateVerifier(),
		Nonce:       nonce,
		RedirectURI: redirectURI,
		Scopes:      mergeScopes(req.Scopes),
		CallerState: req.State,
	}

	requestID := uuid.NewString()
	if err := c.pending.save(ctx, requestID, p); err != nil {
		return "", err
	}

	cfg := *c.oauth2Config
	cfg.RedirectURL = redirectURI
	cfg.Scopes = scopes

	state := requestID + providerStateSeparator + req.State
	return cfg.AuthCodeURL(state,
		oauth2.S256ChallengeOption(p.Verifier),
		oidc.Nonce(nonce),
	), nil
}

// ConsumeRedirectResult redeems the authorization response carried by
// currentURL. It returns nil, nil when the URL is not an authorization
// response.
func (c *Client) ConsumeRedirectResult(ctx context.Context, currentURL string) (*provider.TokenResult, error) {
	params, ok := callbackParams(currentURL)
	if !ok {
		return nil, nil
	}

	state := params.Get("state")
	requestID, callerState, _ := strings.Cut(state, providerStateSeparator)

	if code := params.Get("error"); code != "" {
		if requestID != "" {
			c.pending.discard(ctx, requestID)
		}
		message := params.Get("error_description")
		if message == "" {
			message = fmt.Sprintf("The identity provider returned %s.", code)
		}
		return nil, provider.NewError(code, message, nil)
	}

	p, err := c.pending.take(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if p.CallerState != callerState {
		return nil, provider.NewError(provider.CodeStateNotFound,
			"The sign-in response does not match the pending request.", nil)
	}

	cfg := *c.oauth2Config
	cfg.RedirectURL = p.RedirectURI

	exchangeCtx := oidc.ClientContext(ctx, c.httpClient)
	token, err := cfg.Exchange(exchangeCtx, params.Get("code"), oauth2.VerifierOption(p.Verifier))
	if err != nil {
		return nil, tokenEndpointError(err, "Failed to redeem the authorization code.")
	}

	rawIDToken, _ := token.Extra("id_token").(string)
	if rawIDToken == "" {
		return nil, provider.NewError("invalid_response", "The token response did not include an ID token.", nil)
	}
	account, err := c.verifyIDToken(exchangeCtx, rawIDToken, p.Nonce)
	if err != nil {
		return nil, err
	}

	granted := grantedScopes(token, p.Scopes)
	c.tokens.store(account.ID, token, rawIDToken, granted)

	logger.Infow("sign-in completed", "account", account.ID)
	return &provider.TokenResult{
		AccessToken: token.AccessToken,
		IDToken:     rawIDToken,
		ExpiresOn:   token.Expiry,
		Scopes:      granted,
		Account:     account,
		State:       state,
	}, nil
}

func (c *Client) verifyIDToken(ctx context.Context, rawIDToken, nonce string) (*provider.Account, error) {
	idToken, err := c.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, provider.NewError("invalid_id_token", "The ID token could not be verified.", err)
	}
	if idToken.Nonce != nonce {
		return nil, provider.NewError("invalid_id_token", "The ID token nonce does not match the request.", nil)
	}

	var claims struct {
		Name              string `json:"name"`
		PreferredUsername string `json:"preferred_username"`
		Email             string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, provider.NewError("invalid_id_token", "The ID token claims could not be read.", err)
	}

	var raw map[string]any
	if err := idToken.Claims(&raw); err != nil {
		return nil, provider.NewError("invalid_id_token", "The ID token claims could not be read.", err)
	}

	username := claims.PreferredUsername
	if username == "" {
		username = claims.Email
	}
	return &provider.Account{
		ID:       idToken.Subject,
		Username: username,
		Name:     claims.Name,
		Issuer:   idToken.Issuer,
		Claims:   raw,
	}, nil
}

// Logout forgets cached tokens and opens the provider's end-session page.
// Without an end-session endpoint it navigates straight to the post-logout
// redirect URI.
func (c *Client) Logout(_ context.Context, req *provider.LogoutRequest) error {
	var idTokenHint string
	if req.Account != nil {
		idTokenHint = c.tokens.idToken(req.Account.ID)
		c.tokens.remove(req.Account.ID)
	} else {
		c.tokens.clear()
	}

	target := req.PostLogoutRedirectURI
	if c.endSessionEndpoint != "" {
		u, err := url.Parse(c.endSessionEndpoint)
		if err != nil {
			return provider.NewError("invalid_configuration", "The end-session endpoint is not a valid URL.", err)
		}
		q := u.Query()
		q.Set("client_id", c.cfg.ClientID)
		if idTokenHint != "" {
			q.Set("id_token_hint", idTokenHint)
		}
		if req.PostLogoutRedirectURI != "" {
			q.Set("post_logout_redirect_uri", req.PostLogoutRedirectURI)
		}
		u.RawQuery = q.Encode()
		target = u.String()
	}
	if target == "" {
		logger.Debugw("no end-session endpoint or post-logout redirect URI, signed out locally")
		return nil
	}

	logger.Infof("Opening browser to: %s", target)
	if err := c.open(target); err != nil {
		logger.Warnf("Failed to open browser: %v", err)
		logger.Infof("Please manually open this URL in your browser: %s", target)
	}
	return nil
}

// callbackParams returns the authorization response parameters in rawURL.
// The query is checked first, then the fragment.
func callbackParams(rawURL string) (url.Values, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, false
	}
	if q := u.Query(); isAuthorizationResponse(q) {
		return q, true
	}
	// Malformed pairs are dropped; the rest of the fragment is still used.
	if frag, _ := url.ParseQuery(u.EscapedFragment()); isAuthorizationResponse(frag) {
		return frag, true
	}
	return nil, false
}

func isAuthorizationResponse(v url.Values) bool {
	return v.Get("state") != "" && (v.Get("code") != "" || v.Get("error") != "")
}

// tokenEndpointError converts a token endpoint failure into a provider
// error, passing the endpoint's error code through when there is one.
func tokenEndpointError(err error, fallback string) error {
	var re *oauth2.RetrieveError
	if stderrors.As(err, &re) && re.ErrorCode != "" {
		message := re.ErrorDescription
		if message == "" {
			message = fallback
		}
		return provider.NewError(re.ErrorCode, message, err)
	}
	return provider.NewError("token_request_failed", fallback, err)
}

// mergeScopes concatenates scope lists, dropping blanks and duplicates.
func mergeScopes(lists ...[]string) []string {
	var out []string
	for _, list := range lists {
		for _, s := range list {
			if s != "" && !slices.Contains(out, s) {
				out = append(out, s)
			}
		}
	}
	return out
}
