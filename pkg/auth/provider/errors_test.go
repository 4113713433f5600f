// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := NewError(CodePopupWindowError, "could not open a browser window", cause)

	assert.Equal(t, "popup_window_error: could not open a browser window: connection reset", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "user_cancelled: closed", NewError(CodeUserCancelled, "closed", nil).Error())
}

func TestErrorPredicates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                string
		err                 error
		cancelled           bool
		interactionRequired bool
	}{
		{name: "nil", err: nil},
		{name: "plain error", err: errors.New("boom")},
		{name: "cancelled", err: NewError(CodeUserCancelled, "closed", nil), cancelled: true},
		{
			name:      "wrapped cancelled",
			err:       fmt.Errorf("popup: %w", NewError(CodeUserCancelled, "closed", nil)),
			cancelled: true,
		},
		{name: "interaction", err: NewError(CodeInteractionRequired, "x", nil), interactionRequired: true},
		{name: "consent", err: NewError(CodeConsentRequired, "x", nil), interactionRequired: true},
		{name: "no account", err: NewError(CodeNoAccount, "x", nil), interactionRequired: true},
		{name: "idp error", err: NewError("access_denied", "denied", nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.cancelled, IsUserCancelled(tt.err))
			assert.Equal(t, tt.interactionRequired, IsInteractionRequired(tt.err))
		})
	}
}
