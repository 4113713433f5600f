// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stacklok/authflow/pkg/config"
)

const redacted = "<redacted>"

func newConfigCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the authflow configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long:  `Write the default configuration to --config, or to $XDG_CONFIG_HOME/authflow/config.yaml. An existing file is left untouched.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := opts.configPath
			if path == "" {
				var err error
				if path, err = config.DefaultPath(); err != nil {
					return err
				}
			}

			created, err := config.Init(cmd.Context(), path)
			if err != nil {
				return err
			}
			if created {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
			} else {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Configuration already exists at %s\n", path)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long:  `Print the configuration after applying defaults, the config file and AUTHFLOW_* environment variables. Secrets are redacted.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			format := opts.output
			if format == FormatText {
				format = FormatYAML
			}
			return writeStructured(cmd.OutOrStdout(), format, redactConfig(cfg))
		},
	})

	return cmd
}

// redactConfig returns a copy of cfg with secrets masked.
func redactConfig(cfg *config.Config) *config.Config {
	out := *cfg
	if out.Provider.ClientSecret != "" {
		out.Provider.ClientSecret = redacted
	}
	if out.Storage.Redis.Password != "" {
		out.Storage.Redis.Password = redacted
	}
	return &out
}
