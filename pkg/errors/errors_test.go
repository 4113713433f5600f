// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "error with cause",
			err: &Error{
				Type:    ErrInvalidArgument,
				Message: "test message",
				Cause:   errors.New("underlying error"),
			},
			want: "invalid_argument: test message: underlying error",
		},
		{
			name: "error without cause",
			err: &Error{
				Type:    ErrStorage,
				Message: "test message",
			},
			want: "storage: test message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("underlying error")
	err := NewInternalError("test message", cause)
	assert.Same(t, cause, err.Unwrap())
	assert.ErrorIs(t, err, cause)

	assert.Nil(t, NewInternalError("test message", nil).Unwrap())
}

func TestIsHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"invalid argument", NewInvalidArgumentError("bad", nil), IsInvalidArgument, true},
		{"storage", NewStorageError("bad", nil), IsStorage, true},
		{"quota", NewQuotaExceededError("full", nil), IsQuotaExceeded, true},
		{"config", NewConfigError("bad", nil), IsConfig, true},
		{"internal", NewInternalError("boom", nil), IsInternal, true},
		{"wrong type", NewStorageError("bad", nil), IsInternal, false},
		{"plain error", errors.New("plain"), IsStorage, false},
		{"nil", nil, IsStorage, false},
		{"wrapped with fmt", fmt.Errorf("saving: %w", NewStorageError("bad", nil)), IsStorage, true},
		{
			name:  "quota nested in storage",
			err:   NewStorageError("write failed", NewQuotaExceededError("full", nil)),
			check: IsQuotaExceeded,
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.check(tt.err))
		})
	}
}
