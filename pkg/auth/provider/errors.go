// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"errors"
	"fmt"
)

// Error codes reported by provider clients. Codes returned by the identity
// provider itself (access_denied, login_required, ...) are passed through as-is.
const (
	CodeUserCancelled       = "user_cancelled"
	CodePopupWindowError    = "popup_window_error"
	CodeInteractionRequired = "interaction_required"
	CodeConsentRequired     = "consent_required"
	CodeNoAccount           = "no_account_error"
	CodeStateNotFound       = "state_not_found"
	CodeTimedOut            = "timed_out"
)

// Error is a failure reported by the identity provider or its client library.
// Message is suitable for showing to the user.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// NewError creates a provider error.
func NewError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HasCode reports whether err wraps a provider error with the given code.
func HasCode(err error, code string) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}

// IsUserCancelled reports whether err means the user dismissed an interactive
// prompt.
func IsUserCancelled(err error) bool {
	return HasCode(err, CodeUserCancelled)
}

// IsInteractionRequired reports whether a silent flow needs the user.
func IsInteractionRequired(err error) bool {
	return HasCode(err, CodeInteractionRequired) ||
		HasCode(err, CodeConsentRequired) ||
		HasCode(err, CodeNoAccount)
}
