// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package authorize orchestrates interactive sign-in, sign-out and silent
// token acquisition for hosts that may be torn down mid-flow.
//
// A redirect-mode flow is split in two. SignIn or SignOut persists the
// caller's payload and navigates away. When the host starts again at the
// redirect URI, CompleteSignIn or CompleteSignOut recovers the payload from
// session storage. The two halves share nothing but that storage.
package authorize

import (
	"context"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stacklok/authflow/pkg/auth/correlation"
	"github.com/stacklok/authflow/pkg/auth/navigation"
	"github.com/stacklok/authflow/pkg/auth/provider"
	"github.com/stacklok/authflow/pkg/auth/result"
	"github.com/stacklok/authflow/pkg/errors"
	"github.com/stacklok/authflow/pkg/logger"
	"github.com/stacklok/authflow/pkg/sessionstore"
)

// Config holds the settings the orchestrator needs from the host.
type Config struct {
	// RedirectURI is registered with the provider and receives sign-in callbacks.
	RedirectURI string

	// PostLogoutRedirectURI receives sign-out callbacks.
	PostLogoutRedirectURI string

	// DefaultScopes are requested when the caller does not name any.
	DefaultScopes []string

	// ExtraScopesToConsent are consented to during sign-in only.
	ExtraScopesToConsent []string

	// LoginMode selects redirect or popup sign-in.
	LoginMode navigation.Mode
}

// Startup describes how the host was started.
type Startup struct {
	// URL is the address the host was started at. For a redirect callback it
	// carries the provider's response.
	URL string

	// NestedFrame is true when the host runs inside a hidden frame used for
	// silent renewal.
	NestedFrame bool
}

// AccessTokenStatus is the outcome of GetAccessToken.
type AccessTokenStatus string

const (
	// AccessTokenSuccess means Token holds a usable access token.
	AccessTokenSuccess AccessTokenStatus = "Success"

	// AccessTokenRequiresRedirect means no token can be obtained without the
	// user. The caller should start an interactive sign-in.
	AccessTokenRequiresRedirect AccessTokenStatus = "RequiresRedirect"
)

// AccessTokenRequest customizes GetAccessToken.
type AccessTokenRequest struct {
	// Scopes overrides the configured default scopes.
	Scopes []string

	// ReturnURL overrides the redirect URI used for hidden-frame renewal.
	ReturnURL string
}

// AccessTokenResult is returned by GetAccessToken.
type AccessTokenResult struct {
	Status        AccessTokenStatus `json:"status" yaml:"status"`
	Token         string            `json:"token,omitempty" yaml:"token,omitempty"`
	ExpiresOn     time.Time         `json:"expires_on,omitzero" yaml:"expires_on,omitempty"`
	GrantedScopes []string          `json:"granted_scopes,omitempty" yaml:"granted_scopes,omitempty"`
}

// Option configures a Service.
type Option func(*options)

type options struct {
	registerer  prometheus.Registerer
	isCancel    navigation.CancelPredicate
	statePrefix string
}

// WithRegisterer registers the operation metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithCancelPredicate overrides how popup cancellations are recognized.
func WithCancelPredicate(fn navigation.CancelPredicate) Option {
	return func(o *options) {
		o.isCancel = fn
	}
}

// WithStatePrefix overrides the session storage key prefix.
func WithStatePrefix(prefix string) Option {
	return func(o *options) {
		o.statePrefix = prefix
	}
}

// Service drives authentication flows whose caller payload has type T.
// T must survive a JSON round trip. A Service is safe for concurrent use.
type Service[T any] struct {
	cfg      Config
	client   provider.Client
	store    *correlation.Store[T]
	strategy *navigation.Strategy
	metrics  *metrics

	mu      sync.RWMutex
	account *provider.Account

	initOnce sync.Once
	resumed  chan struct{}
	resume   result.AuthenticationResult[T]
}

// New creates a Service. Hosts create one Service per process and share it.
func New[T any](cfg Config, client provider.Client, storage sessionstore.Storage, opts ...Option) (*Service[T], error) {
	if client == nil {
		return nil, errors.NewInvalidArgumentError("provider client is required", nil)
	}
	if storage == nil {
		return nil, errors.NewInvalidArgumentError("session storage is required", nil)
	}
	if cfg.RedirectURI == "" {
		return nil, errors.NewInvalidArgumentError("redirect URI is required", nil)
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	return &Service[T]{
		cfg:      cfg,
		client:   client,
		store:    correlation.New[T](storage, o.statePrefix),
		strategy: navigation.NewStrategy(client, cfg.LoginMode, o.isCancel),
		metrics:  newMetrics(o.registerer),
		resumed:  make(chan struct{}),
	}, nil
}

// Init starts consuming any redirect result carried by the startup URL. Only
// the first call has an effect. The outcome is delivered by CompleteSignIn.
func (s *Service[T]) Init(ctx context.Context, startup Startup) {
	s.initOnce.Do(func() {
		go func() {
			defer close(s.resumed)
			s.resume = s.resumeFrom(ctx, startup)
		}()
	})
}

// GetUser returns the signed-in account, or nil.
func (s *Service[T]) GetUser() *provider.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account.Clone()
}

// GetAccessToken returns an access token without user interaction. Any
// failure yields AccessTokenRequiresRedirect rather than an error.
func (s *Service[T]) GetAccessToken(ctx context.Context, req *AccessTokenRequest) AccessTokenResult {
	scopes := s.cfg.DefaultScopes
	redirectURI := s.cfg.RedirectURI
	if req != nil {
		if len(req.Scopes) > 0 {
			scopes = req.Scopes
		}
		if req.ReturnURL != "" {
			redirectURI = req.ReturnURL
		}
	}

	account := s.GetUser()
	if account == nil {
		logger.Debugw("no signed-in account, interactive sign-in required")
		return s.requiresRedirect()
	}

	res, err := s.client.AcquireTokenSilently(ctx, &provider.TokenRequest{
		Account:     account,
		Scopes:      slices.Clone(scopes),
		RedirectURI: redirectURI,
	})
	if err != nil || res == nil || res.AccessToken == "" {
		logger.Debugw("silent token acquisition failed", "error", err)
		return s.requiresRedirect()
	}

	s.metrics.record(opGetAccessToken, string(AccessTokenSuccess))
	return AccessTokenResult{
		Status:        AccessTokenSuccess,
		Token:         res.AccessToken,
		ExpiresOn:     res.ExpiresOn,
		GrantedScopes: slices.Clone(res.Scopes),
	}
}

func (s *Service[T]) requiresRedirect() AccessTokenResult {
	s.metrics.record(opGetAccessToken, string(AccessTokenRequiresRedirect))
	return AccessTokenResult{Status: AccessTokenRequiresRedirect}
}

// SignIn starts an interactive sign-in. In redirect mode the result is
// StatusRedirect and the outcome arrives through CompleteSignIn in the next
// host instance. In popup mode the flow finishes before SignIn returns.
func (s *Service[T]) SignIn(ctx context.Context, state T) result.AuthenticationResult[T] {
	return observe(s.metrics, opSignIn, s.signIn(ctx, state))
}

func (s *Service[T]) signIn(ctx context.Context, state T) result.AuthenticationResult[T] {
	if err := s.store.Purge(ctx); err != nil {
		return result.Failure[T](err)
	}

	id, err := s.store.Save(ctx, state)
	if err != nil {
		return result.Failure[T](err)
	}

	res, err := s.strategy.Authorize(ctx, &provider.AuthorizationRequest{
		RedirectURI:          s.cfg.RedirectURI,
		State:                id,
		Scopes:               slices.Clone(s.cfg.DefaultScopes),
		ExtraScopesToConsent: slices.Clone(s.cfg.ExtraScopesToConsent),
	})
	if err != nil {
		logger.Debugw("interactive sign-in failed", "error", err)
		return result.Failure[T](err)
	}
	if res == nil {
		return result.Redirect[T]()
	}

	s.setAccount(res.Account)

	if len(s.cfg.DefaultScopes) > 0 {
		if _, err := s.client.AcquireTokenSilently(ctx, &provider.TokenRequest{
			Account:     res.Account,
			Scopes:      slices.Clone(s.cfg.DefaultScopes),
			RedirectURI: s.cfg.RedirectURI,
		}); err != nil {
			logger.Debugw("token acquisition after popup sign-in failed", "error", err)
			return result.Failure[T](err)
		}
	}

	return result.Success(state)
}

// CompleteSignIn returns the outcome of a redirect sign-in for a host started
// at currentURL. It calls Init, so it is safe to call without a prior Init.
// When Init already ran, its startup URL wins.
func (s *Service[T]) CompleteSignIn(ctx context.Context, currentURL string) result.AuthenticationResult[T] {
	s.Init(ctx, Startup{URL: currentURL})

	select {
	case <-s.resumed:
		return observe(s.metrics, opCompleteSignIn, s.resume)
	case <-ctx.Done():
		return observe(s.metrics, opCompleteSignIn, result.Failure[T](ctx.Err()))
	}
}

func (s *Service[T]) resumeFrom(ctx context.Context, startup Startup) result.AuthenticationResult[T] {
	res, err := s.client.ConsumeRedirectResult(ctx, startup.URL)

	if startup.NestedFrame {
		logger.Debugw("started in a nested frame, nothing to resume")
		return result.OperationCompleted[T]()
	}
	if err != nil {
		logger.Debugw("redirect result carried an error", "error", err)
		return result.Failure[T](err)
	}
	if res == nil {
		return result.OperationCompleted[T]()
	}

	s.setAccount(res.Account)

	payload, found, err := s.store.Retrieve(ctx, startup.URL, false)
	if err != nil {
		return result.Failure[T](err)
	}
	if !found {
		logger.Debugw("signed in with no pending sign-in state to resume")
		return result.OperationCompleted[T]()
	}
	return result.Success(payload)
}

// SignOut signs the user out. The provider navigates to the post-logout
// redirect URI, where CompleteSignOut recovers state.
func (s *Service[T]) SignOut(ctx context.Context, state T) result.AuthenticationResult[T] {
	return observe(s.metrics, opSignOut, s.signOut(ctx, state))
}

func (s *Service[T]) signOut(ctx context.Context, state T) result.AuthenticationResult[T] {
	if err := s.store.Purge(ctx); err != nil {
		return result.Failure[T](err)
	}

	id, err := s.store.Save(ctx, state)
	if err != nil {
		return result.Failure[T](err)
	}
	if err := s.store.SaveLogoutID(ctx, id); err != nil {
		return result.Failure[T](err)
	}

	if err := s.client.Logout(ctx, &provider.LogoutRequest{
		Account:               s.GetUser(),
		PostLogoutRedirectURI: s.cfg.PostLogoutRedirectURI,
	}); err != nil {
		logger.Debugw("sign-out failed", "error", err)
		return result.Failure[T](err)
	}

	return result.Redirect[T]()
}

// CompleteSignOut returns the outcome of a sign-out for a host started at
// returningURL. Arriving without pending sign-out state is not an error.
func (s *Service[T]) CompleteSignOut(ctx context.Context, returningURL string) result.AuthenticationResult[T] {
	return observe(s.metrics, opCompleteSignOut, s.completeSignOut(ctx, returningURL))
}

func (s *Service[T]) completeSignOut(ctx context.Context, returningURL string) result.AuthenticationResult[T] {
	id, found, err := s.store.LogoutID(ctx)
	if err != nil {
		return result.Failure[T](err)
	}

	var (
		payload   T
		recovered bool
	)
	if found {
		payload, recovered, err = s.store.Retrieve(ctx, withState(returningURL, id), true)
	}
	if clearErr := s.store.ClearLogoutID(ctx); clearErr != nil {
		logger.Warnf("Failed to clear pending sign-out id: %v", clearErr)
	}
	if err != nil {
		return result.Failure[T](err)
	}
	if !recovered {
		return result.OperationCompleted[T]()
	}
	return result.Success(payload)
}

func (s *Service[T]) setAccount(account *provider.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account = account.Clone()
}

// withState replaces the query of rawURL with state=id and drops the
// fragment. An unparseable URL is returned unchanged.
func withState(rawURL, id string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.RawQuery = url.Values{"state": {id}}.Encode()
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

func observe[T any](m *metrics, operation string, r result.AuthenticationResult[T]) result.AuthenticationResult[T] {
	m.record(operation, string(r.Status))
	return r
}
