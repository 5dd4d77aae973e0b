package handlers

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// newJWKSServer serves a key set holding key under kid and counts fetches
func newJWKSServer(t *testing.T, key *rsa.PrivateKey, kid string) (*httptest.Server, *int32) {
	t.Helper()
	set := map[string]interface{}{
		"keys": []map[string]string{{
			"kid": kid,
			"kty": "RSA",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}},
	}
	var fetches int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fetches, 1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(server.Close)
	return server, &fetches
}

func newTestSigningKeys(t *testing.T) *signingKeys {
	t.Helper()
	keys := newSigningKeys()
	t.Cleanup(keys.Close)
	return keys
}

func signIDToken(t *testing.T, key *rsa.PrivateKey, kid string, claims idTokenClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestParseIDToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	jwks, _ := newJWKSServer(t, key, "key-1")
	keys := newTestSigningKeys(t)

	provider := OAuthProvider{
		Name:    "google",
		Label:   "Google",
		Config:  &oauth2.Config{ClientID: "client-123", ClientSecret: "secret"},
		JWKSURL: jwks.URL,
		Issuers: []string{"https://accounts.google.com", "accounts.google.com"},
	}

	valid := func() idTokenClaims {
		return idTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "https://accounts.google.com",
				Subject:   "google-sub-1",
				Audience:  jwt.ClaimStrings{"client-123"},
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				IssuedAt:  jwt.NewNumericDate(time.Now()),
			},
			Email:         "maya@example.com",
			EmailVerified: true,
			Name:          "Maya",
			Nonce:         "nonce-1",
		}
	}

	tests := []struct {
		name    string
		kid     string
		mutate  func(c *idTokenClaims)
		wantErr bool
	}{
		{"valid", "key-1", func(c *idTokenClaims) {}, false},
		{"wrong audience", "key-1", func(c *idTokenClaims) { c.Audience = jwt.ClaimStrings{"someone-else"} }, true},
		{"wrong issuer", "key-1", func(c *idTokenClaims) { c.Issuer = "https://evil.example.com" }, true},
		{"expired", "key-1", func(c *idTokenClaims) { c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour)) }, true},
		{"nonce mismatch", "key-1", func(c *idTokenClaims) { c.Nonce = "other" }, true},
		{"unverified email", "key-1", func(c *idTokenClaims) { c.EmailVerified = false }, true},
		{"unknown key", "key-2", func(c *idTokenClaims) {}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := valid()
			tt.mutate(&claims)
			token := signIDToken(t, key, tt.kid, claims)

			info, err := parseIDToken(keys, provider, token, "nonce-1")
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseIDToken() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && (info.Subject != "google-sub-1" || info.Email != "maya@example.com" || info.Name != "Maya") {
				t.Errorf("parseIDToken() = %+v", info)
			}
		})
	}
}

func TestSigningKeysAreCached(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	jwks, fetches := newJWKSServer(t, key, "key-1")
	keys := newTestSigningKeys(t)

	provider := OAuthProvider{
		Label:   "Google",
		Config:  &oauth2.Config{ClientID: "client-123"},
		JWKSURL: jwks.URL,
		Issuers: []string{"https://accounts.google.com"},
	}
	token := signIDToken(t, key, "key-1", idTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://accounts.google.com",
			Subject:   "google-sub-1",
			Audience:  jwt.ClaimStrings{"client-123"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email:         "maya@example.com",
		EmailVerified: true,
	})

	for i := 0; i < 3; i++ {
		if _, err := parseIDToken(keys, provider, token, ""); err != nil {
			t.Fatalf("parseIDToken() call %d error = %v", i+1, err)
		}
	}
	if n := atomic.LoadInt32(fetches); n != 1 {
		t.Errorf("key set fetched %d times, want 1", n)
	}
}

func TestStartOAuth(t *testing.T) {
	providers := map[string]OAuthProvider{
		"google": {
			Name:  "google",
			Label: "Google",
			Config: &oauth2.Config{
				ClientID:     "client-123",
				ClientSecret: "secret",
				Endpoint:     oauth2.Endpoint{AuthURL: "https://accounts.example.com/auth", TokenURL: "https://accounts.example.com/token"},
				Scopes:       []string{"openid", "email", "profile"},
			},
		},
		"unconfigured": {Name: "unconfigured", Config: &oauth2.Config{}},
	}
	h := NewAuthHandler(nil, nil, providers, "https://quizzies.example.com/")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/{provider}/start", h.StartOAuth)

	recorder := httptest.NewRecorder()
	mux.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/auth/google/start", nil))
	if recorder.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", recorder.Code)
	}

	location, err := url.Parse(recorder.Header().Get("Location"))
	if err != nil {
		t.Fatalf("bad redirect: %v", err)
	}
	query := location.Query()
	if query.Get("redirect_uri") != "https://quizzies.example.com/auth/google/callback" {
		t.Errorf("redirect_uri = %q", query.Get("redirect_uri"))
	}
	if query.Get("nonce") == "" || query.Get("state") == "" {
		t.Errorf("missing state or nonce in %s", location)
	}

	cookies := map[string]string{}
	for _, c := range recorder.Result().Cookies() {
		cookies[c.Name] = c.Value
	}
	if cookies["oauth_state"] != query.Get("state") || cookies["oauth_nonce"] != query.Get("nonce") {
		t.Errorf("cookies %v do not match redirect", cookies)
	}

	for _, path := range []string{"/auth/unconfigured/start", "/auth/apple/start"} {
		recorder = httptest.NewRecorder()
		mux.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, path, nil))
		if recorder.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", path, recorder.Code)
		}
	}
}

func TestOAuthCallbackRejectsBadState(t *testing.T) {
	providers := map[string]OAuthProvider{
		"google": {Name: "google", Config: &oauth2.Config{ClientID: "id", ClientSecret: "secret"}},
	}
	h := NewAuthHandler(nil, nil, providers, "")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/{provider}/callback", h.OAuthCallback)

	tests := []struct {
		name   string
		query  string
		cookie string
	}{
		{"missing code", "state=abc", "abc"},
		{"missing cookie", "state=abc&code=xyz", ""},
		{"state mismatch", "state=abc&code=xyz", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?"+tt.query, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "oauth_state", Value: tt.cookie})
			}
			recorder := httptest.NewRecorder()
			mux.ServeHTTP(recorder, req)
			if recorder.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", recorder.Code)
			}
			if !strings.Contains(recorder.Body.String(), "error") {
				t.Errorf("body = %s", recorder.Body.String())
			}
		})
	}
}
