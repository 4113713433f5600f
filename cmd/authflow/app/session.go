// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/stacklok/authflow/pkg/auth/authorize"
	"github.com/stacklok/authflow/pkg/auth/navigation"
	"github.com/stacklok/authflow/pkg/auth/oidcclient"
	"github.com/stacklok/authflow/pkg/auth/provider"
	"github.com/stacklok/authflow/pkg/auth/result"
	"github.com/stacklok/authflow/pkg/config"
	"github.com/stacklok/authflow/pkg/logger"
	"github.com/stacklok/authflow/pkg/sessionstore"
)

// appState is the caller state carried across a sign-in or sign-out.
type appState struct {
	ReturnTo string `json:"returnTo,omitempty" yaml:"return_to,omitempty"`
}

// session bundles everything one command needs to talk to the provider.
type session struct {
	cfg      *config.Config
	service  *authorize.Service[appState]
	registry *prometheus.Registry
	storage  sessionstore.Storage
	opts     *globalOptions
}

// sessionOverrides adjusts the loaded configuration for a single command.
type sessionOverrides struct {
	mode string
}

func openSession(ctx context.Context, opts *globalOptions, overrides sessionOverrides) (*session, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if overrides.mode != "" {
		if _, err := navigation.ParseMode(overrides.mode); err != nil {
			return nil, err
		}
		cfg.LoginMode = overrides.mode
	}

	authCfg, err := cfg.AuthorizeConfig()
	if err != nil {
		return nil, err
	}

	storage, err := sessionstore.New(ctx, cfg.SessionStoreConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open session storage: %w", err)
	}

	client, err := oidcclient.New(ctx, cfg.OIDCConfig(), storage)
	if err != nil {
		closeStorage(storage)
		return nil, err
	}

	registry := prometheus.NewRegistry()
	svc, err := authorize.New[appState](authCfg, client, storage,
		authorize.WithRegisterer(registry),
		authorize.WithStatePrefix(cfg.StatePrefix),
	)
	if err != nil {
		closeStorage(storage)
		return nil, err
	}

	return &session{
		cfg:      cfg,
		service:  svc,
		registry: registry,
		storage:  storage,
		opts:     opts,
	}, nil
}

// Close writes the metrics textfile if one was requested and releases the
// storage connection.
func (s *session) Close() {
	if s.opts.metricsFile != "" {
		if err := prometheus.WriteToTextfile(s.opts.metricsFile, s.registry); err != nil {
			logger.Warnf("Failed to write metrics to %s: %v", s.opts.metricsFile, err)
		}
	}
	closeStorage(s.storage)
}

func closeStorage(storage sessionstore.Storage) {
	if c, ok := storage.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.Debugf("failed to close session storage: %v", err)
		}
	}
}

// report prints the outcome of an operation and turns a Failure into a
// command error so the process exits non-zero.
func (s *session) report(cmd *cobra.Command, out commandOutput) error {
	if account := s.service.GetUser(); account != nil {
		out.User = accountOutput(account)
	}
	if err := writeCommandOutput(cmd.OutOrStdout(), s.opts.output, out); err != nil {
		return err
	}
	if out.Result.Status == result.StatusFailure {
		return fmt.Errorf("%s", out.Result.Message)
	}
	return nil
}

// accessToken acquires a token for the configured default scopes.
func (s *session) accessToken(ctx context.Context) *authorize.AccessTokenResult {
	tok := s.service.GetAccessToken(ctx, nil)
	return &tok
}

func accountOutput(a *provider.Account) *userOutput {
	return &userOutput{Username: a.Username, Name: a.Name, Issuer: a.Issuer}
}
