// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/authflow/pkg/auth/authorize"
	"github.com/stacklok/authflow/pkg/auth/result"
)

const (
	// FormatText is the human readable output format.
	FormatText = "text"
	// FormatJSON is the JSON output format.
	FormatJSON = "json"
	// FormatYAML is the YAML output format.
	FormatYAML = "yaml"
)

func validateOutputFormat(format string) error {
	switch format {
	case FormatText, FormatJSON, FormatYAML:
		return nil
	default:
		return fmt.Errorf("invalid output format %q, must be one of: %s, %s, %s", format, FormatText, FormatJSON, FormatYAML)
	}
}

// commandOutput is what login, callback, logout and logout-callback print.
type commandOutput struct {
	Result result.AuthenticationResult[appState] `json:"result" yaml:"result"`
	User   *userOutput                           `json:"user,omitempty" yaml:"user,omitempty"`
	Token  *authorize.AccessTokenResult          `json:"access_token,omitempty" yaml:"access_token,omitempty"`
	Hint   string                                `json:"hint,omitempty" yaml:"hint,omitempty"`
}

type userOutput struct {
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	Issuer   string `json:"issuer,omitempty" yaml:"issuer,omitempty"`
}

// writeStructured encodes v as JSON or YAML.
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported structured format %q", format)
	}
}

func writeCommandOutput(w io.Writer, format string, out commandOutput) error {
	if format != FormatText {
		return writeStructured(w, format, out)
	}

	_, _ = fmt.Fprintf(w, "Status: %s\n", out.Result.Status)
	if out.Result.State != nil && out.Result.State.ReturnTo != "" {
		_, _ = fmt.Fprintf(w, "Return to: %s\n", out.Result.State.ReturnTo)
	}
	if out.Result.Message != "" {
		_, _ = fmt.Fprintf(w, "Message: %s\n", out.Result.Message)
	}
	if out.User != nil {
		name := out.User.Username
		if name == "" {
			name = out.User.Name
		}
		_, _ = fmt.Fprintf(w, "Signed in as: %s (%s)\n", name, out.User.Issuer)
	}
	if out.Token != nil {
		if out.Token.Status == authorize.AccessTokenSuccess {
			_, _ = fmt.Fprintf(w, "Access token: %s\n", out.Token.Token)
			if !out.Token.ExpiresOn.IsZero() {
				_, _ = fmt.Fprintf(w, "Expires: %s\n", out.Token.ExpiresOn.Format("2006-01-02 15:04:05 MST"))
			}
			if len(out.Token.GrantedScopes) > 0 {
				_, _ = fmt.Fprintf(w, "Scopes: %s\n", strings.Join(out.Token.GrantedScopes, " "))
			}
		} else {
			_, _ = fmt.Fprintf(w, "Access token: %s\n", out.Token.Status)
		}
	}
	if out.Hint != "" {
		_, _ = fmt.Fprintln(w, out.Hint)
	}
	return nil
}
