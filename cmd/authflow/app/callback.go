// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stacklok/authflow/pkg/auth/authorize"
	"github.com/stacklok/authflow/pkg/auth/oidcclient"
	"github.com/stacklok/authflow/pkg/auth/result"
	"github.com/stacklok/authflow/pkg/config"
	"github.com/stacklok/authflow/pkg/logger"
)

func newCallbackCmd(opts *globalOptions) *cobra.Command {
	var (
		nestedFrame bool
		showToken   bool
		listen      bool
	)

	cmd := &cobra.Command{
		Use:   "callback [url]",
		Short: "Complete a redirect sign-in",
		Long: `Complete a sign-in started with "authflow login --mode redirect".

Pass the full address the provider redirected the browser to, or use --listen to receive
it on the configured loopback redirect URI. The state given to "login" is restored from
session storage and printed.`,
		Args: callbackArgs(&listen),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			currentURL, err := callbackURL(ctx, opts, args, listen, func(c *config.Config) string {
				return c.Provider.RedirectURI
			})
			if err != nil {
				return err
			}

			s, err := openSession(ctx, opts, sessionOverrides{})
			if err != nil {
				return err
			}
			defer s.Close()

			s.service.Init(ctx, authorize.Startup{URL: currentURL, NestedFrame: nestedFrame})
			out := commandOutput{Result: s.service.CompleteSignIn(ctx, currentURL)}
			if showToken && out.Result.Status != result.StatusFailure && s.service.GetUser() != nil {
				out.Token = s.accessToken(ctx)
			}
			return s.report(cmd, out)
		},
	}

	cmd.Flags().BoolVar(&nestedFrame, "nested-frame", false, "Treat the address as a hidden-frame renewal response")
	cmd.Flags().BoolVar(&showToken, "show-token", false, "Print an access token for the default scopes after signing in")
	cmd.Flags().BoolVar(&listen, "listen", false, "Wait for the provider response on the configured redirect URI")

	return cmd
}

func newLogoutCallbackCmd(opts *globalOptions) *cobra.Command {
	var listen bool

	cmd := &cobra.Command{
		Use:   "logout-callback [url]",
		Short: "Complete a sign-out",
		Long: `Complete a sign-out started with "authflow logout".

Pass the address the provider redirected the browser to after signing out, or use --listen
to receive it on the configured post-logout redirect URI.`,
		Args: callbackArgs(&listen),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			returningURL, err := callbackURL(ctx, opts, args, listen, func(c *config.Config) string {
				return c.Provider.PostLogoutRedirectURI
			})
			if err != nil {
				return err
			}

			s, err := openSession(ctx, opts, sessionOverrides{})
			if err != nil {
				return err
			}
			defer s.Close()

			return s.report(cmd, commandOutput{Result: s.service.CompleteSignOut(ctx, returningURL)})
		},
	}

	cmd.Flags().BoolVar(&listen, "listen", false, "Wait for the provider response on the configured post-logout redirect URI")

	return cmd
}

// callbackArgs requires exactly one URL argument unless --listen is set.
func callbackArgs(listen *bool) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if *listen {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	}
}

// callbackURL returns the URL argument, or waits for the browser on the
// loopback address chosen by target when listen is set.
func callbackURL(
	ctx context.Context, opts *globalOptions, args []string, listen bool, target func(*config.Config) string,
) (string, error) {
	if !listen {
		return args[0], nil
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return "", err
	}
	redirectURI := target(cfg)
	if redirectURI == "" {
		return "", fmt.Errorf("no redirect URI configured to listen on")
	}

	l, err := oidcclient.ListenForCallback(redirectURI)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := l.Close(); err != nil {
			logger.Debugf("failed to stop callback listener: %v", err)
		}
	}()

	logger.Infof("Waiting for the browser on %s", redirectURI)
	return l.Wait(ctx)
}
