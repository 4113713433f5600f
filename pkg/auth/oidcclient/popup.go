// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oidcclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/stacklok/authflow/pkg/auth/provider"
	"github.com/stacklok/authflow/pkg/logger"
)

// LoginPopup runs sign-in in the system browser while this process listens
// on the redirect URI for the response. Cancelling ctx reports
// user_cancelled. A failure to listen or to open the browser reports
// popup_window_error.
func (c *Client) LoginPopup(ctx context.Context, req *provider.AuthorizationRequest) (*provider.TokenResult, error) {
	redirectURI := req.RedirectURI
	if redirectURI == "" {
		redirectURI = c.cfg.RedirectURI
	}

	listener, err := ListenForCallback(redirectURI)
	if err != nil {
		return nil, provider.NewError(provider.CodePopupWindowError,
			"Could not listen for the sign-in response.", err)
	}
	defer listener.Close()

	authURL, err := c.beginAuthorization(ctx, req)
	if err != nil {
		return nil, err
	}

	logger.Infof("Opening browser to: %s", authURL)
	if err := c.open(authURL); err != nil {
		return nil, provider.NewError(provider.CodePopupWindowError, "Could not open a browser window.", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.PopupTimeout)
	defer cancel()

	logger.Infof("Waiting for the sign-in response on %s", redirectURI)
	callbackURL, err := listener.Wait(waitCtx)
	if err != nil {
		if ctx.Err() == nil && stderrors.Is(err, context.DeadlineExceeded) {
			return nil, provider.NewError(provider.CodeTimedOut, "Timed out waiting for sign-in to finish.", err)
		}
		if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
			return nil, provider.NewError(provider.CodeUserCancelled, "User cancelled the sign-in.", err)
		}
		return nil, provider.NewError(provider.CodePopupWindowError, "The sign-in window failed.", err)
	}

	res, err := c.ConsumeRedirectResult(ctx, callbackURL)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, provider.NewError(provider.CodePopupWindowError, "The sign-in window returned no response.", nil)
	}
	return res, nil
}

// CallbackListener receives one authorization response on a loopback
// redirect URI.
type CallbackListener struct {
	server   *http.Server
	listener net.Listener
	base     *url.URL
	received chan string
	errs     chan error
}

// ListenForCallback starts listening on the host and path of redirectURI.
func ListenForCallback(redirectURI string) (*CallbackListener, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URI: %w", err)
	}
	if u.Scheme != "http" || u.Port() == "" {
		return nil, fmt.Errorf("redirect URI %q must be an http URL with an explicit port", redirectURI)
	}

	ln, err := net.Listen("tcp", u.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", u.Host, err)
	}

	l := &CallbackListener{
		listener: ln,
		base:     u,
		received: make(chan string, 1),
		errs:     make(chan error, 1),
	}

	path := u.Path
	if path == "" {
		path = "/"
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, l.handleCallback)

	l.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Get().Handler(), slog.LevelWarn),
	}

	go func() {
		logger.Debugw("starting OAuth callback server", "addr", ln.Addr().String())
		if err := l.server.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			l.errs <- fmt.Errorf("callback server failed: %w", err)
		}
	}()

	return l, nil
}

// Wait blocks until a response arrives and returns its full URL.
func (l *CallbackListener) Wait(ctx context.Context) (string, error) {
	select {
	case u := <-l.received:
		return u, nil
	case err := <-l.errs:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close stops the callback server.
func (l *CallbackListener) Close() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.server.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("Failed to shutdown OAuth callback server: %v", err)
		return err
	}
	return nil
}

func (l *CallbackListener) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !isAuthorizationResponse(r.URL.Query()) {
		writeInfoPage(w)
		return
	}

	full := *l.base
	full.RawQuery = r.URL.RawQuery
	full.Fragment = ""

	select {
	case l.received <- full.String():
		if errCode := r.URL.Query().Get("error"); errCode != "" {
			writeErrorPage(w, r.URL.Query().Get("error_description"), errCode)
			return
		}
		writeSuccessPage(w)
	default:
		http.Error(w, "A sign-in response was already received", http.StatusConflict)
	}
}
