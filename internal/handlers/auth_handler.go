package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"quizzies/internal/models"
	"quizzies/internal/security"
	"quizzies/internal/service"
)

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	authService          *service.AuthService
	progress             *service.ProgressService
	oauthProviders       map[string]OAuthProvider
	oauthRedirectBaseURL string
	keys                 *signingKeys
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService, progress *service.ProgressService, oauthProviders map[string]OAuthProvider, oauthRedirectBaseURL string) *AuthHandler {
	return &AuthHandler{
		authService:          authService,
		progress:             progress,
		oauthProviders:       oauthProviders,
		oauthRedirectBaseURL: oauthRedirectBaseURL,
		keys:                 newSigningKeys(),
	}
}

// Close stops background refresh of provider signing keys
func (h *AuthHandler) Close() {
	h.keys.Close()
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type accountResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

type authResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expiresAt"`
	User      accountResponse  `json:"user"`
	Progress  *models.Progress `json:"progress,omitempty"`
}

// Register handles account creation and signs the new user in
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if _, err := h.authService.Register(ctx, req.Email, req.Password, req.Username); err != nil {
		respondWithServiceError(w, "Failed to register", err)
		return
	}

	session, user, err := h.authService.Login(ctx, req.Email, req.Password)
	if err != nil {
		respondWithServiceError(w, "Failed to sign in after registration", err)
		return
	}

	h.respondSignedIn(ctx, w, http.StatusCreated, session, user)
}

// Login handles email/password sign-in
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	session, user, err := h.authService.Login(ctx, req.Email, req.Password)
	if err != nil {
		respondWithServiceError(w, "Failed to login", err)
		return
	}

	h.respondSignedIn(ctx, w, http.StatusOK, session, user)
}

// Logout invalidates the bearer session
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := security.BearerToken(r)
	if token == "" || GetUserFromContext(r.Context()) == nil {
		// provider tokens have no server session to end
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := h.authService.Logout(r.Context(), token); err != nil {
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, "Failed to logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// respondSignedIn answers with the session token and the signed-in ledger.
// The account is usable even when the ledger write fails, so that failure
// only drops the snapshot from the response.
func (h *AuthHandler) respondSignedIn(ctx context.Context, w http.ResponseWriter, status int, session *models.Session, user *models.User) {
	resp := authResponse{
		Token:     session.ID,
		ExpiresAt: session.ExpiresAt,
		User: accountResponse{
			ID:       user.ID,
			Email:    user.Email,
			Username: user.Username,
		},
	}

	snapshot, err := h.progress.SignIn(ctx, service.Identity(user))
	if err != nil {
		log.Printf("Failed to sign in ledger for user %s: %v", user.ID, err)
	} else {
		resp.Progress = snapshot
	}

	respondJSON(w, status, resp)
}
