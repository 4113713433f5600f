// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package result defines the outcome shape returned by every interactive
// authflow operation and the classifier that turns provider failures into it.
package result

import (
	"errors"
	"fmt"

	"github.com/stacklok/authflow/pkg/auth/provider"
)

// Status is the outcome of an interactive operation.
type Status string

const (
	// StatusRedirect means the host is navigating away. No further outcome is
	// delivered to the caller of this operation.
	StatusRedirect Status = "Redirect"

	// StatusSuccess means the operation finished and State holds the caller's
	// payload.
	StatusSuccess Status = "Success"

	// StatusFailure means the operation failed and Message describes why.
	StatusFailure Status = "Failure"

	// StatusOperationCompleted means the operation finished with nothing to
	// hand back to the caller.
	StatusOperationCompleted Status = "OperationCompleted"
)

// AuthenticationResult is returned by sign-in and sign-out operations.
// State is set only for StatusSuccess and Message only for StatusFailure.
type AuthenticationResult[T any] struct {
	Status  Status `json:"status" yaml:"status"`
	State   *T     `json:"state,omitempty" yaml:"state,omitempty"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// Redirect returns a StatusRedirect result.
func Redirect[T any]() AuthenticationResult[T] {
	return AuthenticationResult[T]{Status: StatusRedirect}
}

// Success returns a StatusSuccess result carrying state.
func Success[T any](state T) AuthenticationResult[T] {
	return AuthenticationResult[T]{Status: StatusSuccess, State: &state}
}

// OperationCompleted returns a StatusOperationCompleted result.
func OperationCompleted[T any]() AuthenticationResult[T] {
	return AuthenticationResult[T]{Status: StatusOperationCompleted}
}

// Failure classifies v and returns a StatusFailure result.
func Failure[T any](v any) AuthenticationResult[T] {
	return AuthenticationResult[T]{Status: StatusFailure, Message: Classify(v)}
}

// Classify returns a user-facing message for a caught value. A provider error
// anywhere in an error chain contributes its Message. Other errors contribute
// their Error text and any other value is formatted with fmt.
func Classify(v any) string {
	switch val := v.(type) {
	case nil:
		return "unknown error"
	case error:
		var pe *provider.Error
		if errors.As(val, &pe) && pe.Message != "" {
			return pe.Message
		}
		return val.Error()
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}
