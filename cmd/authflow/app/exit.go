// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"github.com/stacklok/authflow/pkg/errors"
)

// Process exit codes.
const (
	ExitFailure = 1
	ExitUsage   = 2
	ExitStorage = 3
	ExitBug     = 4
)

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.IsConfig(err), errors.IsInvalidArgument(err):
		return ExitUsage
	case errors.IsStorage(err), errors.IsQuotaExceeded(err):
		return ExitStorage
	case errors.IsInternal(err):
		return ExitBug
	default:
		return ExitFailure
	}
}
