// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"github.com/spf13/cobra"

	"github.com/stacklok/authflow/pkg/auth/result"
)

func newLogoutCmd(opts *globalOptions) *cobra.Command {
	var returnTo string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Sign out of the identity provider",
		Long: `Sign out and open the provider's end-session page in the browser.

The provider redirects the browser to the configured post-logout redirect URI; complete the
sign-out with "authflow logout-callback" to restore the state given here.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			s, err := openSession(ctx, opts, sessionOverrides{})
			if err != nil {
				return err
			}
			defer s.Close()

			out := commandOutput{Result: s.service.SignOut(ctx, appState{ReturnTo: returnTo})}
			if out.Result.Status == result.StatusRedirect && s.cfg.Provider.PostLogoutRedirectURI != "" {
				out.Hint = `Finish signing out with: authflow logout-callback "<address shown in the browser>"`
			}
			return s.report(cmd, out)
		},
	}

	cmd.Flags().StringVar(&returnTo, "return-to", "", "Value to carry through the sign-out and print when it completes")

	return cmd
}
