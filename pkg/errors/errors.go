// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package errors defines the typed errors shared across authflow packages.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Error types
const (
	// ErrInvalidArgument is returned when an invalid argument is provided
	ErrInvalidArgument = "invalid_argument"

	// ErrStorage is returned when session storage cannot serialize, persist or load a value
	ErrStorage = "storage"

	// ErrQuotaExceeded is returned when a session storage backend is out of space
	ErrQuotaExceeded = "quota_exceeded"

	// ErrConfig is returned when configuration cannot be loaded or is invalid
	ErrConfig = "config"

	// ErrInternal is returned when there is an internal error
	ErrInternal = "internal"
)

// Error represents an error in the application
type Error struct {
	// Type is the error type
	Type string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// newError creates a new error
func newError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewInvalidArgumentError creates a new invalid argument error
func NewInvalidArgumentError(message string, cause error) *Error {
	return newError(ErrInvalidArgument, message, cause)
}

// NewStorageError creates a new storage error
func NewStorageError(message string, cause error) *Error {
	return newError(ErrStorage, message, cause)
}

// NewQuotaExceededError creates a new quota exceeded error
func NewQuotaExceededError(message string, cause error) *Error {
	return newError(ErrQuotaExceeded, message, cause)
}

// NewConfigError creates a new configuration error
func NewConfigError(message string, cause error) *Error {
	return newError(ErrConfig, message, cause)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *Error {
	return newError(ErrInternal, message, cause)
}

// hasType reports whether any *Error in err's chain has the given type.
func hasType(err error, errorType string) bool {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Type == errorType {
			return true
		}
		err = e.Cause
	}
	return false
}

// IsInvalidArgument checks if the error is an invalid argument error
func IsInvalidArgument(err error) bool {
	return hasType(err, ErrInvalidArgument)
}

// IsStorage checks if the error is a storage error
func IsStorage(err error) bool {
	return hasType(err, ErrStorage)
}

// IsQuotaExceeded checks if the error is a quota exceeded error
func IsQuotaExceeded(err error) bool {
	return hasType(err, ErrQuotaExceeded)
}

// IsConfig checks if the error is a configuration error
func IsConfig(err error) bool {
	return hasType(err, ErrConfig)
}

// IsInternal checks if the error is an internal error
func IsInternal(err error) bool {
	return hasType(err, ErrInternal)
}
