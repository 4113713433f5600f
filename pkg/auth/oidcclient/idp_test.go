// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oidcclient

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testClientID = "authflow-test"
	testKeyID    = "test-key"
	testSubject  = "user-1"
	testTenant   = "contoso"
)

type codeGrant struct {
	challenge   string
	nonce       string
	redirectURI string
	scope       string
}

// testIdP is a minimal OpenID provider backed by httptest.
type testIdP struct {
	t      *testing.T
	server *httptest.Server
	key    *rsa.PrivateKey

	mu            sync.Mutex
	codes         map[string]codeGrant
	refreshTokens map[string]string

	// settings
	endSession      bool
	denyAuthorize   bool
	nonceOverride   string
	expiresIn       int
	scopeInResponse bool
	failRefresh     bool
	discoveryFails  int
	refreshGate     chan struct{}

	// observations
	discoveryCalls int
	refreshCalls   int
	lastAuthorize  url.Values
}

func newTestIdP(t *testing.T) *testIdP {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	idp := &testIdP{
		t:             t,
		key:           key,
		codes:         make(map[string]codeGrant),
		refreshTokens: make(map[string]string),
		endSession:    true,
		expiresIn:     3600,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", idp.handleDiscovery)
	mux.HandleFunc("/jwks", idp.handleJWKS)
	mux.HandleFunc("/authorize", idp.handleAuthorize)
	mux.HandleFunc("/token", idp.handleToken)
	idp.server = httptest.NewServer(mux)
	t.Cleanup(idp.server.Close)

	return idp
}

func (idp *testIdP) issuer() string {
	return idp.server.URL
}

func (idp *testIdP) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	idp.mu.Lock()
	idp.discoveryCalls++
	fail := idp.discoveryCalls <= idp.discoveryFails
	endSession := idp.endSession
	idp.mu.Unlock()

	if fail {
		http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
		return
	}

	doc := map[string]any{
		"issuer":                                idp.issuer(),
		"authorization_endpoint":                idp.issuer() + "/authorize",
		"token_endpoint":                        idp.issuer() + "/token",
		"jwks_uri":                              idp.issuer() + "/jwks",
		"response_types_supported":              []string{"code"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"code_challenge_methods_supported":      []string{"S256"},
	}
	if endSession {
		doc["end_session_endpoint"] = idp.issuer() + "/logout"
	}
	idp.writeJSON(w, http.StatusOK, doc)
}

func (idp *testIdP) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	pub := idp.key.PublicKey
	idp.writeJSON(w, http.StatusOK, map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": testKeyID,
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

func (idp *testIdP) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	idp.mu.Lock()
	defer idp.mu.Unlock()
	idp.lastAuthorize = q

	redirect, err := url.Parse(q.Get("redirect_uri"))
	if err != nil || q.Get("client_id") != testClientID || q.Get("code_challenge_method") != "S256" {
		http.Error(w, "invalid authorization request", http.StatusBadRequest)
		return
	}

	params := url.Values{"state": {q.Get("state")}}
	if idp.denyAuthorize {
		params.Set("error", "access_denied")
		params.Set("error_description", "The user denied access.")
	} else {
		code := randomToken(idp.t)
		idp.codes[code] = codeGrant{
			challenge:   q.Get("code_challenge"),
			nonce:       q.Get("nonce"),
			redirectURI: q.Get("redirect_uri"),
			scope:       q.Get("scope"),
		}
		params.Set("code", code)
	}
	redirect.RawQuery = params.Encode()
	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

func (idp *testIdP) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		idp.tokenError(w, "invalid_request", "malformed form")
		return
	}
	if r.PostForm.Get("client_id") != testClientID {
		idp.tokenError(w, "invalid_client", "unknown client")
		return
	}

	if r.PostForm.Get("grant_type") == "refresh_token" {
		idp.mu.Lock()
		gate := idp.refreshGate
		idp.mu.Unlock()
		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}
	}

	idp.mu.Lock()
	defer idp.mu.Unlock()

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		grant, ok := idp.codes[r.PostForm.Get("code")]
		delete(idp.codes, r.PostForm.Get("code"))
		if !ok {
			idp.tokenError(w, "invalid_grant", "unknown code")
			return
		}
		if r.PostForm.Get("redirect_uri") != grant.redirectURI {
			idp.tokenError(w, "invalid_grant", "redirect_uri mismatch")
			return
		}
		sum := sha256.Sum256([]byte(r.PostForm.Get("code_verifier")))
		if base64.RawURLEncoding.EncodeToString(sum[:]) != grant.challenge {
			idp.tokenError(w, "invalid_grant", "PKCE verification failed")
			return
		}

		nonce := grant.nonce
		if idp.nonceOverride != "" {
			nonce = idp.nonceOverride
		}
		refresh := randomToken(idp.t)
		idp.refreshTokens[refresh] = grant.scope
		idp.writeTokens(w, grant.scope, refresh, nonce)

	case "refresh_token":
		idp.refreshCalls++
		scope, ok := idp.refreshTokens[r.PostForm.Get("refresh_token")]
		if !ok || idp.failRefresh {
			idp.tokenError(w, "invalid_grant", "refresh token expired")
			return
		}
		idp.writeTokens(w, scope, r.PostForm.Get("refresh_token"), "")

	default:
		idp.tokenError(w, "unsupported_grant_type", "")
	}
}

// writeTokens issues tokens for scope. The caller holds idp.mu.
func (idp *testIdP) writeTokens(w http.ResponseWriter, scope, refresh, nonce string) {
	now := time.Now()
	apiScopes := missingScopes(strings.Fields(scope), nil)

	access := idp.sign(jwt.MapClaims{
		"iss": idp.issuer(),
		"sub": testSubject,
		"aud": "api",
		"scp": strings.Join(apiScopes, " "),
		"iat": now.Unix(),
		"exp": now.Add(time.Duration(idp.expiresIn) * time.Second).Unix(),
		"jti": randomToken(idp.t),
	})

	resp := map[string]any{
		"access_token":  access,
		"token_type":    "Bearer",
		"expires_in":    idp.expiresIn,
		"refresh_token": refresh,
	}
	if nonce != "" {
		resp["id_token"] = idp.sign(jwt.MapClaims{
			"iss":                idp.issuer(),
			"sub":                testSubject,
			"aud":                testClientID,
			"iat":                now.Unix(),
			"exp":                now.Add(time.Hour).Unix(),
			"nonce":              nonce,
			"name":               "Ada Lovelace",
			"preferred_username": "ada@example.com",
			"tid":                testTenant,
		})
	}
	if idp.scopeInResponse {
		resp["scope"] = strings.Join(apiScopes, " ")
	}
	idp.writeJSON(w, http.StatusOK, resp)
}

func (idp *testIdP) sign(claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(idp.key)
	require.NoError(idp.t, err)
	return signed
}

func (idp *testIdP) tokenError(w http.ResponseWriter, code, description string) {
	idp.writeJSON(w, http.StatusBadRequest, map[string]string{
		"error":             code,
		"error_description": description,
	})
}

func (*testIdP) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (idp *testIdP) observedDiscoveryCalls() int {
	idp.mu.Lock()
	defer idp.mu.Unlock()
	return idp.discoveryCalls
}

func (idp *testIdP) observedRefreshCalls() int {
	idp.mu.Lock()
	defer idp.mu.Unlock()
	return idp.refreshCalls
}

func (idp *testIdP) observedAuthorize() url.Values {
	idp.mu.Lock()
	defer idp.mu.Unlock()
	return idp.lastAuthorize
}

func randomToken(t *testing.T) string {
	s, err := randomString()
	require.NoError(t, err)
	return s
}
