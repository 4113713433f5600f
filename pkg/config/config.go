// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config loads authflow settings from a YAML file and AUTHFLOW_*
// environment variables and maps them onto the component configurations.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/stacklok/authflow/pkg/auth/authorize"
	"github.com/stacklok/authflow/pkg/auth/correlation"
	"github.com/stacklok/authflow/pkg/auth/navigation"
	"github.com/stacklok/authflow/pkg/auth/oidcclient"
	"github.com/stacklok/authflow/pkg/errors"
	"github.com/stacklok/authflow/pkg/sessionstore"
)

// Config is the complete authflow configuration.
type Config struct {
	Provider                  ProviderConfig `mapstructure:"provider" yaml:"provider"`
	DefaultAccessTokenScopes  []string       `mapstructure:"default_access_token_scopes" yaml:"default_access_token_scopes"`
	AdditionalScopesToConsent []string       `mapstructure:"additional_scopes_to_consent" yaml:"additional_scopes_to_consent"`
	LoginMode                 string         `mapstructure:"login_mode" yaml:"login_mode"`
	PopupTimeout              time.Duration  `mapstructure:"popup_timeout" yaml:"popup_timeout"`
	StatePrefix               string         `mapstructure:"state_prefix" yaml:"state_prefix"`
	Storage                   StorageConfig  `mapstructure:"storage" yaml:"storage"`
}

// ProviderConfig is the client registration at the identity provider.
type ProviderConfig struct {
	Authority             string `mapstructure:"authority" yaml:"authority"`
	ClientID              string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret          string `mapstructure:"client_secret" yaml:"client_secret,omitempty"`
	RedirectURI           string `mapstructure:"redirect_uri" yaml:"redirect_uri"`
	PostLogoutRedirectURI string `mapstructure:"post_logout_redirect_uri" yaml:"post_logout_redirect_uri"`
}

// StorageConfig selects the session storage backend.
type StorageConfig struct {
	Type      string        `mapstructure:"type" yaml:"type"`
	Path      string        `mapstructure:"path" yaml:"path,omitempty"`
	SessionID string        `mapstructure:"session_id" yaml:"session_id"`
	TTL       time.Duration `mapstructure:"ttl" yaml:"ttl"`
	MaxBytes  int           `mapstructure:"max_bytes" yaml:"max_bytes,omitempty"`
	Redis     RedisConfig   `mapstructure:"redis" yaml:"redis"`
}

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	Username  string `mapstructure:"username" yaml:"username,omitempty"`
	Password  string `mapstructure:"password" yaml:"password,omitempty"`
	DB        int    `mapstructure:"db" yaml:"db"`
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{
			RedirectURI:           "http://localhost:8666/callback",
			PostLogoutRedirectURI: "http://localhost:8666/logout-callback",
		},
		LoginMode:    string(navigation.DefaultMode),
		PopupTimeout: oidcclient.DefaultPopupTimeout,
		StatePrefix:  correlation.DefaultPrefix,
		Storage: StorageConfig{
			Type:      string(sessionstore.TypeFile),
			SessionID: sessionstore.DefaultSessionID,
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "authflow:",
			},
		},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Provider.Authority == "" {
		return errors.NewConfigError("provider.authority is required", nil)
	}
	if c.Provider.ClientID == "" {
		return errors.NewConfigError("provider.client_id is required", nil)
	}
	for name, value := range map[string]string{
		"provider.authority":                c.Provider.Authority,
		"provider.redirect_uri":             c.Provider.RedirectURI,
		"provider.post_logout_redirect_uri": c.Provider.PostLogoutRedirectURI,
	} {
		if value == "" {
			continue
		}
		u, err := url.Parse(value)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.NewConfigError(fmt.Sprintf("%s must be an absolute URL, got %q", name, value), err)
		}
	}
	if c.Provider.RedirectURI == "" {
		return errors.NewConfigError("provider.redirect_uri is required", nil)
	}
	if _, err := navigation.ParseMode(c.LoginMode); err != nil {
		return errors.NewConfigError("invalid login_mode", err)
	}
	if c.PopupTimeout < 0 {
		return errors.NewConfigError("popup_timeout must not be negative", nil)
	}

	switch sessionstore.Type(c.Storage.Type) {
	case "", sessionstore.TypeMemory, sessionstore.TypeFile, sessionstore.TypeKeyring:
	case sessionstore.TypeRedis:
		if c.Storage.Redis.Addr == "" {
			return errors.NewConfigError("storage.redis.addr is required for redis storage", nil)
		}
		if c.Storage.Redis.KeyPrefix == "" {
			return errors.NewConfigError("storage.redis.key_prefix is required for redis storage", nil)
		}
	default:
		return errors.NewConfigError(fmt.Sprintf("unknown storage.type %q", c.Storage.Type), nil)
	}
	if c.Storage.TTL < 0 || c.Storage.MaxBytes < 0 {
		return errors.NewConfigError("storage.ttl and storage.max_bytes must not be negative", nil)
	}
	return nil
}

// AuthorizeConfig returns the orchestrator settings.
func (c *Config) AuthorizeConfig() (authorize.Config, error) {
	mode, err := navigation.ParseMode(c.LoginMode)
	if err != nil {
		return authorize.Config{}, err
	}
	return authorize.Config{
		RedirectURI:           c.Provider.RedirectURI,
		PostLogoutRedirectURI: c.Provider.PostLogoutRedirectURI,
		DefaultScopes:         c.DefaultAccessTokenScopes,
		ExtraScopesToConsent:  c.AdditionalScopesToConsent,
		LoginMode:             mode,
	}, nil
}

// OIDCConfig returns the provider client settings.
func (c *Config) OIDCConfig() oidcclient.Config {
	return oidcclient.Config{
		Issuer:       c.Provider.Authority,
		ClientID:     c.Provider.ClientID,
		ClientSecret: c.Provider.ClientSecret,
		RedirectURI:  c.Provider.RedirectURI,
		PopupTimeout: c.PopupTimeout,
	}
}

// SessionStoreConfig returns the session storage settings.
func (c *Config) SessionStoreConfig() *sessionstore.Config {
	return &sessionstore.Config{
		Type:      sessionstore.Type(c.Storage.Type),
		Path:      c.Storage.Path,
		SessionID: c.Storage.SessionID,
		TTL:       c.Storage.TTL,
		MaxBytes:  c.Storage.MaxBytes,
		Redis: sessionstore.RedisConfig{
			Addr:      c.Storage.Redis.Addr,
			Username:  c.Storage.Redis.Username,
			Password:  c.Storage.Redis.Password,
			DB:        c.Storage.Redis.DB,
			KeyPrefix: c.Storage.Redis.KeyPrefix,
		},
	}
}
