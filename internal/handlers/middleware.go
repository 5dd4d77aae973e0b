package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"net/http"
	"time"

	"quizzies/internal/metrics"
	"quizzies/internal/models"
	"quizzies/internal/security"
	"quizzies/internal/service"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	UserContextKey     ContextKey = "user"
	IdentityContextKey ContextKey = "identity"
)

// SessionValidator resolves a session id to its account
type SessionValidator interface {
	ValidateSession(ctx context.Context, sessionID string) (*models.User, error)
}

// IdentityVerifier resolves an identity provider token to an identity
type IdentityVerifier interface {
	Verify(ctx context.Context, idToken string) (*models.Identity, error)
}

// Middleware holds dependencies for middleware functions
type Middleware struct {
	sessions SessionValidator
	verifier IdentityVerifier
	limiter  *security.RateLimiter
	metrics  *metrics.Metrics
}

// NewMiddleware creates a new middleware instance. verifier, limiter and
// metrics may be nil.
func NewMiddleware(sessions SessionValidator, verifier IdentityVerifier, limiter *security.RateLimiter, m *metrics.Metrics) *Middleware {
	return &Middleware{
		sessions: sessions,
		verifier: verifier,
		limiter:  limiter,
		metrics:  m,
	}
}

// RequireAuth is middleware that requires a bearer session id or, when a
// verifier is configured, a provider ID token
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := security.BearerToken(r)
		if token == "" {
			respondWithError(w, http.StatusUnauthorized, ErrUnauthorized, "", nil)
			return
		}

		ctx := r.Context()
		user, err := m.sessions.ValidateSession(ctx, token)
		if err == nil {
			identity := service.Identity(user)
			ctx = context.WithValue(ctx, UserContextKey, user)
			ctx = context.WithValue(ctx, IdentityContextKey, &identity)
			next(w, r.WithContext(ctx))
			return
		}
		if !errors.Is(err, service.ErrSessionNotFound) && !errors.Is(err, service.ErrSessionExpired) {
			respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, "Failed to validate session", err)
			return
		}

		if m.verifier != nil {
			identity, verr := m.verifier.Verify(ctx, token)
			if verr == nil {
				ctx = context.WithValue(ctx, IdentityContextKey, identity)
				next(w, r.WithContext(ctx))
				return
			}
		}

		respondWithError(w, http.StatusUnauthorized, ErrUnauthorized, "", nil)
	}
}

// RateLimit throttles requests per signed-in user, or per client IP before
// authentication
func (m *Middleware) RateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.limiter == nil {
			next(w, r)
			return
		}

		key := "ip:" + security.GetClientIP(r)
		if identity := GetIdentityFromContext(r.Context()); identity != nil {
			key = "user:" + identity.UserID
		}

		if !m.limiter.Allow(key) {
			m.metrics.Limited()
			log.Printf("Rate limit exceeded for %s %s", key, r.URL.Path)
			w.Header().Set("Retry-After", "1")
			respondWithError(w, http.StatusTooManyRequests, ErrTooManyRequests, "", nil)
			return
		}
		next(w, r)
	}
}

// Logging middleware logs HTTP requests
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

// BasicAuth protects an endpoint with fixed credentials. With no user
// configured every request is refused.
func BasicAuth(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if user == "" || !ok ||
			subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 ||
			subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="Metrics"`)
			http.Error(w, ErrUnauthorized, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetUserFromContext retrieves the account from the request context. It is
// nil for requests authenticated with a provider token.
func GetUserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}

// GetIdentityFromContext retrieves the ledger identity from the request context
func GetIdentityFromContext(ctx context.Context) *models.Identity {
	identity, ok := ctx.Value(IdentityContextKey).(*models.Identity)
	if !ok {
		return nil
	}
	return identity
}
