// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/authflow/pkg/auth/navigation"
	"github.com/stacklok/authflow/pkg/errors"
	"github.com/stacklok/authflow/pkg/sessionstore"
)

const sampleConfig = `
provider:
  authority: https://idp.example.com/tenant
  client_id: my-client
  redirect_uri: http://localhost:9000/callback
  post_logout_redirect_uri: http://localhost:9000/logout-callback
default_access_token_scopes: [api.read, api.write]
additional_scopes_to_consent: [mail.read]
login_mode: Popup
popup_timeout: 2m
state_prefix: myapp
storage:
  type: redis
  session_id: tab-1
  ttl: 15m
  redis:
    addr: redis:6379
    db: 2
    key_prefix: "myapp:"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func validConfig() *Config {
	cfg := Default()
	cfg.Provider.Authority = "https://idp.example.com"
	cfg.Provider.ClientID = "client"
	return cfg
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "https://idp.example.com/tenant", cfg.Provider.Authority)
	assert.Equal(t, "my-client", cfg.Provider.ClientID)
	assert.Equal(t, []string{"api.read", "api.write"}, cfg.DefaultAccessTokenScopes)
	assert.Equal(t, []string{"mail.read"}, cfg.AdditionalScopesToConsent)
	assert.Equal(t, 2*time.Minute, cfg.PopupTimeout)
	assert.Equal(t, "myapp", cfg.StatePrefix)
	assert.Equal(t, "redis", cfg.Storage.Type)
	assert.Equal(t, 15*time.Minute, cfg.Storage.TTL)
	assert.Equal(t, 2, cfg.Storage.Redis.DB)

	az, err := cfg.AuthorizeConfig()
	require.NoError(t, err)
	assert.Equal(t, navigation.ModePopup, az.LoginMode)
	assert.Equal(t, []string{"mail.read"}, az.ExtraScopesToConsent)

	oc := cfg.OIDCConfig()
	assert.Equal(t, "https://idp.example.com/tenant", oc.Issuer)
	assert.Equal(t, 2*time.Minute, oc.PopupTimeout)

	sc := cfg.SessionStoreConfig()
	assert.Equal(t, sessionstore.TypeRedis, sc.Type)
	assert.Equal(t, "tab-1", sc.SessionID)
	assert.Equal(t, "myapp:", sc.Redis.KeyPrefix)
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, "provider:\n  authority: https://idp\n  client_id: c\n"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8666/callback", cfg.Provider.RedirectURI)
	assert.Equal(t, "redirect", cfg.LoginMode)
	assert.Equal(t, 5*time.Minute, cfg.PopupTimeout)
	assert.Equal(t, "authflow", cfg.StatePrefix)
	assert.Equal(t, "file", cfg.Storage.Type)
	assert.Equal(t, "default", cfg.Storage.SessionID)
}

func TestLoad_EnvOverrides(t *testing.T) { //nolint:paralleltest // Uses t.Setenv
	t.Setenv("AUTHFLOW_PROVIDER_CLIENT_ID", "from-env")
	t.Setenv("AUTHFLOW_LOGIN_MODE", "popup")
	t.Setenv("AUTHFLOW_STORAGE_TYPE", "memory")
	t.Setenv("AUTHFLOW_DEFAULT_ACCESS_TOKEN_SCOPES", "a,b")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Provider.ClientID)
	assert.Equal(t, "popup", cfg.LoginMode)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, []string{"a", "b"}, cfg.DefaultAccessTokenScopes)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))

	_, err = Load(writeConfig(t, "provider: [not, a, map"))
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))

	_, err = Load(writeConfig(t, "login_mode: popup\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider.authority is required")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing client", mutate: func(c *Config) { c.Provider.ClientID = "" }, wantErr: "client_id is required"},
		{name: "relative authority", mutate: func(c *Config) { c.Provider.Authority = "idp" }, wantErr: "must be an absolute URL"},
		{name: "missing redirect", mutate: func(c *Config) { c.Provider.RedirectURI = "" }, wantErr: "redirect_uri is required"},
		{name: "bad mode", mutate: func(c *Config) { c.LoginMode = "iframe" }, wantErr: "invalid login_mode"},
		{name: "negative timeout", mutate: func(c *Config) { c.PopupTimeout = -time.Second }, wantErr: "popup_timeout"},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Type = "sqlite" }, wantErr: "unknown storage.type"},
		{
			name: "redis without prefix",
			mutate: func(c *Config) {
				c.Storage.Type = "redis"
				c.Storage.Redis.KeyPrefix = ""
			},
			wantErr: "key_prefix is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, errors.IsConfig(err))
		})
	}
}

func TestSaveAndInit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	created, err := Init(ctx, path)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = Init(ctx, path)
	require.NoError(t, err)
	assert.False(t, created)

	cfg := validConfig()
	cfg.DefaultAccessTokenScopes = []string{"api.read"}
	cfg.PopupTimeout = 90 * time.Second
	require.NoError(t, Save(ctx, path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Provider, loaded.Provider)
	assert.Equal(t, cfg.DefaultAccessTokenScopes, loaded.DefaultAccessTokenScopes)
	assert.Equal(t, 90*time.Second, loaded.PopupTimeout)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
