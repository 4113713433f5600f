// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/stacklok/authflow/pkg/errors"
	"github.com/stacklok/authflow/pkg/logger"
)

const (
	// EnvPrefix prefixes every environment variable read by Load.
	EnvPrefix = "AUTHFLOW"

	// relativeConfigPath locates the config file under the XDG config home.
	relativeConfigPath = "authflow/config.yaml"
)

// Load reads the configuration from path, or from the XDG config directory
// when path is empty, and applies AUTHFLOW_* environment overrides. A missing
// default file is not an error. The result is validated.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		if found, err := xdg.SearchConfigFile(relativeConfigPath); err == nil {
			path = found
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !stderrors.As(err, &notFound) {
				return nil, errors.NewConfigError(fmt.Sprintf("failed to read config file %s", path), err)
			}
		}
		logger.Debugw("loaded configuration", "path", path)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.NewConfigError("failed to decode configuration", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key with viper so that AutomaticEnv can
// override keys that are absent from the file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("provider.authority", d.Provider.Authority)
	v.SetDefault("provider.client_id", d.Provider.ClientID)
	v.SetDefault("provider.client_secret", d.Provider.ClientSecret)
	v.SetDefault("provider.redirect_uri", d.Provider.RedirectURI)
	v.SetDefault("provider.post_logout_redirect_uri", d.Provider.PostLogoutRedirectURI)
	v.SetDefault("default_access_token_scopes", d.DefaultAccessTokenScopes)
	v.SetDefault("additional_scopes_to_consent", d.AdditionalScopesToConsent)
	v.SetDefault("login_mode", d.LoginMode)
	v.SetDefault("popup_timeout", d.PopupTimeout)
	v.SetDefault("state_prefix", d.StatePrefix)
	v.SetDefault("storage.type", d.Storage.Type)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("storage.session_id", d.Storage.SessionID)
	v.SetDefault("storage.ttl", d.Storage.TTL)
	v.SetDefault("storage.max_bytes", d.Storage.MaxBytes)
	v.SetDefault("storage.redis.addr", d.Storage.Redis.Addr)
	v.SetDefault("storage.redis.username", d.Storage.Redis.Username)
	v.SetDefault("storage.redis.password", d.Storage.Redis.Password)
	v.SetDefault("storage.redis.db", d.Storage.Redis.DB)
	v.SetDefault("storage.redis.key_prefix", d.Storage.Redis.KeyPrefix)
}

// DefaultPath returns the config file location under the XDG config home,
// creating its parent directory.
func DefaultPath() (string, error) {
	path, err := xdg.ConfigFile(relativeConfigPath)
	if err != nil {
		return "", errors.NewConfigError("failed to resolve config path", err)
	}
	return path, nil
}
