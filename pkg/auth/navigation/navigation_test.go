// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package navigation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/authflow/pkg/auth/provider"
	"github.com/stacklok/authflow/pkg/auth/provider/mocks"
)

func TestParseMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "", want: ModeRedirect},
		{in: "redirect", want: ModeRedirect},
		{in: "Popup", want: ModePopup},
		{in: " POPUP ", want: ModePopup},
		{in: "iframe", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStrategy_Authorize(t *testing.T) {
	t.Parallel()

	req := &provider.AuthorizationRequest{RedirectURI: "http://localhost/callback", State: "id"}
	popupResult := &provider.TokenResult{AccessToken: "at", Account: &provider.Account{ID: "user"}}
	cancelled := provider.NewError(provider.CodeUserCancelled, "closed", nil)
	blocked := provider.NewError(provider.CodePopupWindowError, "blocked", nil)

	tests := []struct {
		name       string
		mode       Mode
		isCancel   CancelPredicate
		setup      func(m *mocks.MockClient)
		wantResult *provider.TokenResult
		wantErr    error
	}{
		{
			name: "redirect navigates",
			mode: ModeRedirect,
			setup: func(m *mocks.MockClient) {
				m.EXPECT().LoginRedirect(gomock.Any(), req).Return(nil)
			},
		},
		{
			name: "redirect surfaces synchronous error",
			mode: ModeRedirect,
			setup: func(m *mocks.MockClient) {
				m.EXPECT().LoginRedirect(gomock.Any(), req).Return(blocked)
			},
			wantErr: blocked,
		},
		{
			name: "popup success",
			mode: ModePopup,
			setup: func(m *mocks.MockClient) {
				m.EXPECT().LoginPopup(gomock.Any(), req).Return(popupResult, nil)
			},
			wantResult: popupResult,
		},
		{
			name: "popup cancellation does not fall back",
			mode: ModePopup,
			setup: func(m *mocks.MockClient) {
				m.EXPECT().LoginPopup(gomock.Any(), req).Return(nil, cancelled)
				m.EXPECT().LoginRedirect(gomock.Any(), gomock.Any()).Times(0)
			},
			wantErr: cancelled,
		},
		{
			name: "popup failure falls back to one redirect",
			mode: ModePopup,
			setup: func(m *mocks.MockClient) {
				gomock.InOrder(
					m.EXPECT().LoginPopup(gomock.Any(), req).Return(nil, blocked),
					m.EXPECT().LoginRedirect(gomock.Any(), req).Return(nil).Times(1),
				)
			},
		},
		{
			name: "fallback redirect error is returned",
			mode: ModePopup,
			setup: func(m *mocks.MockClient) {
				m.EXPECT().LoginPopup(gomock.Any(), req).Return(nil, blocked)
				m.EXPECT().LoginRedirect(gomock.Any(), req).Return(errors.New("no browser"))
			},
			wantErr: errors.New("no browser"),
		},
		{
			name:     "custom cancel predicate",
			mode:     ModePopup,
			isCancel: func(err error) bool { return provider.HasCode(err, provider.CodePopupWindowError) },
			setup: func(m *mocks.MockClient) {
				m.EXPECT().LoginPopup(gomock.Any(), req).Return(nil, blocked)
			},
			wantErr: blocked,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			client := mocks.NewMockClient(ctrl)
			tt.setup(client)

			s := NewStrategy(client, tt.mode, tt.isCancel)
			res, err := s.Authorize(context.Background(), req)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr.Error(), err.Error())
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantResult, res)
		})
	}
}

func TestNewStrategyDefaults(t *testing.T) {
	t.Parallel()
	s := NewStrategy(nil, "", nil)
	assert.Equal(t, ModeRedirect, s.Mode())
}
