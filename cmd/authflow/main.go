// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the authflow CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/stacklok/authflow/cmd/authflow/app"
	"github.com/stacklok/authflow/pkg/logger"
)

func main() {
	// Initialize the logger
	logger.Initialize()

	// Ctrl-C cancels an in-flight popup sign-in as a user cancellation.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(app.ExitCode(err))
	}
}
