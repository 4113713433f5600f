// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the authflow command-line application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/authflow/pkg/logger"
)

// NewRootCmd creates a new root command for the authflow CLI.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:               "authflow",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "authflow signs you in to an OpenID Connect provider from the terminal",
		Long: `authflow drives OpenID Connect sign-in, sign-out and token acquisition from the terminal.

In redirect mode "authflow login" opens the browser and exits. When the provider redirects
back, pass the address shown in the browser to "authflow callback" (or run it with --listen
beforehand) and the state given to "login" is recovered from session storage.
In popup mode the whole flow completes within "authflow login".`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("debug") {
				if err := viper.BindPFlag("debug", cmd.Flags().Lookup("debug")); err != nil {
					return err
				}
				logger.Initialize()
			}
			return validateOutputFormat(opts.output)
		},
		Run: func(cmd *cobra.Command, _ []string) {
			// If no subcommand is provided, print help
			if err := cmd.Help(); err != nil {
				logger.Errorw("failed to display help", "error", err)
			}
		},
	}

	// Add persistent flags
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to the config file (default $XDG_CONFIG_HOME/authflow/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", FormatText, "Output format: text, json or yaml")
	rootCmd.PersistentFlags().StringVar(&opts.metricsFile, "metrics-textfile", "",
		"Write operation metrics in Prometheus text format to this file when the command finishes")

	// Add subcommands
	rootCmd.AddCommand(newLoginCmd(opts))
	rootCmd.AddCommand(newCallbackCmd(opts))
	rootCmd.AddCommand(newLogoutCmd(opts))
	rootCmd.AddCommand(newLogoutCallbackCmd(opts))
	rootCmd.AddCommand(newConfigCmd(opts))
	rootCmd.AddCommand(newVersionCmd(opts))

	return rootCmd
}

// globalOptions holds the values of the persistent flags.
type globalOptions struct {
	configPath  string
	output      string
	metricsFile string
}
