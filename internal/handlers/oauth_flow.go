package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"quizzies/internal/security"
)

// OAuthProvider defines provider configuration and metadata
type OAuthProvider struct {
	Name        string
	Label       string
	Config      *oauth2.Config
	UserInfoURL string
	JWKSURL     string
	Issuers     []string
	AuthParams  map[string]string
}

type oauthUserInfo struct {
	Subject string
	Email   string
	Name    string
}

func (p OAuthProvider) configured() bool {
	return p.Config != nil && p.Config.ClientID != "" && p.Config.ClientSecret != ""
}

// StartOAuth initiates the OAuth flow for a provider
func (h *AuthHandler) StartOAuth(w http.ResponseWriter, r *http.Request) {
	providerKey := r.PathValue("provider")
	provider, ok := h.oauthProviders[providerKey]
	if !ok || !provider.configured() {
		respondWithError(w, http.StatusBadRequest, "OAuth provider not configured", "", nil)
		return
	}

	state := security.GenerateSessionID()
	nonce := security.GenerateSessionID()

	setTempCookie(w, r, "oauth_state", state, 10*time.Minute)
	setTempCookie(w, r, "oauth_provider", providerKey, 10*time.Minute)
	setTempCookie(w, r, "oauth_nonce", nonce, 10*time.Minute)

	config := *provider.Config
	config.RedirectURL = h.oauthRedirectURL(r, providerKey)

	options := []oauth2.AuthCodeOption{oauth2.AccessTypeOnline, oauth2.SetAuthURLParam("nonce", nonce)}
	for key, value := range provider.AuthParams {
		options = append(options, oauth2.SetAuthURLParam(key, value))
	}

	http.Redirect(w, r, config.AuthCodeURL(state, options...), http.StatusFound)
}

// OAuthCallback handles the OAuth provider callback and answers with a
// session token, like Login
func (h *AuthHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	providerKey := r.PathValue("provider")
	provider, ok := h.oauthProviders[providerKey]
	if !ok || !provider.configured() {
		respondWithError(w, http.StatusBadRequest, "OAuth provider not configured", "", nil)
		return
	}

	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if code == "" {
		respondWithError(w, http.StatusBadRequest, "Missing authorization code", "", nil)
		return
	}

	stateCookie, err := r.Cookie("oauth_state")
	if err != nil || stateCookie.Value == "" || stateCookie.Value != state {
		respondWithError(w, http.StatusBadRequest, "Invalid OAuth state", "", nil)
		return
	}
	if providerCookie, err := r.Cookie("oauth_provider"); err == nil && providerCookie.Value != providerKey {
		respondWithError(w, http.StatusBadRequest, "OAuth provider mismatch", "", nil)
		return
	}
	nonce := ""
	if cookie, err := r.Cookie("oauth_nonce"); err == nil {
		nonce = cookie.Value
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	config := *provider.Config
	config.RedirectURL = h.oauthRedirectURL(r, providerKey)

	token, err := config.Exchange(ctx, code)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Failed to exchange OAuth code", "OAuth code exchange failed", err)
		return
	}

	userInfo, err := fetchOAuthUser(ctx, h.keys, provider, token, nonce)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error(), "", nil)
		return
	}

	clearTempCookie(w, r, "oauth_state")
	clearTempCookie(w, r, "oauth_provider")
	clearTempCookie(w, r, "oauth_nonce")

	session, user, err := h.authService.OAuthLogin(ctx, providerKey, userInfo.Subject, userInfo.Email, userInfo.Name)
	if err != nil {
		respondWithServiceError(w, "Failed to complete OAuth login", err)
		return
	}

	h.respondSignedIn(ctx, w, http.StatusOK, session, user)
}

// fetchOAuthUser prefers the signed id_token and falls back to the
// provider's userinfo endpoint
func fetchOAuthUser(ctx context.Context, keys *signingKeys, provider OAuthProvider, token *oauth2.Token, nonce string) (oauthUserInfo, error) {
	if idToken, _ := token.Extra("id_token").(string); idToken != "" && provider.JWKSURL != "" {
		return parseIDToken(keys, provider, idToken, nonce)
	}
	if provider.UserInfoURL == "" {
		return oauthUserInfo{}, errors.New("missing id_token")
	}

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	resp, err := client.Get(provider.UserInfoURL)
	if err != nil {
		return oauthUserInfo{}, fmt.Errorf("failed to fetch %s user info", provider.Label)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return oauthUserInfo{}, fmt.Errorf("failed to fetch %s user info", provider.Label)
	}

	var payload struct {
		ID    string `json:"id"`
		Sub   string `json:"sub"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return oauthUserInfo{}, fmt.Errorf("failed to parse %s user info", provider.Label)
	}

	subject := payload.Sub
	if subject == "" {
		subject = payload.ID
	}
	return oauthUserInfo{Subject: subject, Email: payload.Email, Name: payload.Name}, nil
}

func (h *AuthHandler) oauthRedirectURL(r *http.Request, providerKey string) string {
	baseURL := strings.TrimSpace(h.oauthRedirectBaseURL)
	if baseURL == "" {
		scheme := "http"
		if security.IsSecureRequest(r) {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s", scheme, r.Host)
	}
	return fmt.Sprintf("%s/auth/%s/callback", strings.TrimRight(baseURL, "/"), providerKey)
}

func setTempCookie(w http.ResponseWriter, r *http.Request, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/auth/",
		HttpOnly: true,
		Secure:   security.IsSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(ttl),
		MaxAge:   int(ttl.Seconds()),
	})
}

func clearTempCookie(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/auth/",
		HttpOnly: true,
		Secure:   security.IsSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

type idTokenClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Nonce         string `json:"nonce"`
}

func parseIDToken(keys *signingKeys, provider OAuthProvider, idToken, nonce string) (oauthUserInfo, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}), jwt.WithExpirationRequired())
	claims := &idTokenClaims{}

	parsedToken, err := parser.ParseWithClaims(idToken, claims, keys.lookup(provider.JWKSURL))
	if err != nil || !parsedToken.Valid {
		return oauthUserInfo{}, fmt.Errorf("invalid %s token", provider.Label)
	}

	if !contains(provider.Issuers, claims.Issuer) {
		return oauthUserInfo{}, fmt.Errorf("invalid %s issuer", provider.Label)
	}
	if !contains(claims.Audience, provider.Config.ClientID) {
		return oauthUserInfo{}, fmt.Errorf("invalid %s audience", provider.Label)
	}
	if nonce != "" && claims.Nonce != "" && claims.Nonce != nonce {
		return oauthUserInfo{}, fmt.Errorf("invalid %s nonce", provider.Label)
	}
	if claims.Email == "" || !claims.EmailVerified {
		return oauthUserInfo{}, fmt.Errorf("%s email not available", provider.Label)
	}

	return oauthUserInfo{
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
	}, nil
}

func contains(values []string, value string) bool {
	for _, entry := range values {
		if entry == value {
			return true
		}
	}
	return false
}
