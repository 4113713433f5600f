// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"github.com/spf13/cobra"

	"github.com/stacklok/authflow/pkg/auth/result"
)

func newLoginCmd(opts *globalOptions) *cobra.Command {
	var (
		mode      string
		returnTo  string
		showToken bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the identity provider",
		Long: `Start an interactive sign-in.

With --mode redirect the browser is opened and the command exits. The provider sends the
browser back to the configured redirect URI; complete the sign-in with "authflow callback".
With --mode popup the command waits for the browser on the loopback redirect URI and
completes the sign-in itself. If the popup cannot be used, login falls back to redirect.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			s, err := openSession(ctx, opts, sessionOverrides{mode: mode})
			if err != nil {
				return err
			}
			defer s.Close()

			out := commandOutput{Result: s.service.SignIn(ctx, appState{ReturnTo: returnTo})}
			switch out.Result.Status {
			case result.StatusRedirect:
				out.Hint = `Finish signing in with: authflow callback "<address shown in the browser>"`
			case result.StatusSuccess:
				if showToken {
					out.Token = s.accessToken(ctx)
				}
			}
			return s.report(cmd, out)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "Sign-in mode: redirect or popup (defaults to login_mode from the config)")
	cmd.Flags().StringVar(&returnTo, "return-to", "", "Value to carry through the sign-in and print when it completes")
	cmd.Flags().BoolVar(&showToken, "show-token", false, "Print an access token for the default scopes after signing in")

	return cmd
}
