package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"quizzies/internal/credentials"
	"quizzies/internal/models"
	"quizzies/internal/repository"
	"quizzies/internal/rewards"
	"quizzies/internal/security"
	"quizzies/internal/validation"
)

var (
	ErrEmailTaken         = errors.New("email already taken")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
)

// AuthService handles accounts and sessions for email/password and Google
// sign-in. It only resolves identities; the ledger is created by the
// progress service on first sign-in.
type AuthService struct {
	userRepo        *repository.UserRepository
	emailService    *EmailService
	nameFilter      *validation.NameFilter
	sessionDuration time.Duration
}

// NewAuthService creates a new auth service. emailService and nameFilter may be nil.
func NewAuthService(userRepo *repository.UserRepository, emailService *EmailService, nameFilter *validation.NameFilter, sessionDuration time.Duration) *AuthService {
	return &AuthService{
		userRepo:        userRepo,
		emailService:    emailService,
		nameFilter:      nameFilter,
		sessionDuration: sessionDuration,
	}
}

// Identity returns the ledger identity of a user
func Identity(user *models.User) models.Identity {
	return models.Identity{UserID: user.ID, DisplayName: user.Username}
}

// Register creates a new user account
func (s *AuthService) Register(ctx context.Context, email, password, username string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)

	if err := validation.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, err
	}
	if err := validation.ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := s.nameFilter.Check(username); err != nil {
		return nil, err
	}

	existingUser, err := s.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existingUser != nil {
		return nil, ErrEmailTaken
	}

	passwordHash, err := security.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: passwordHash,
		AuthProvider: models.ProviderLocal,
	}
	if err := s.userRepo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.sendWelcome(ctx, user)
	return user, nil
}

// Login authenticates a user and creates a session
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.Session, *models.User, error) {
	user, err := s.userRepo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, nil, ErrInvalidCredentials
	}

	// accounts created through a provider have no password hash and never match
	if !security.CheckPassword(password, user.PasswordHash) {
		return nil, nil, ErrInvalidCredentials
	}

	session, err := s.newSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return session, user, nil
}

// ValidateSession checks if a session is valid and returns the associated user
func (s *AuthService) ValidateSession(ctx context.Context, sessionID string) (*models.User, error) {
	session, err := s.userRepo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	if session.IsExpired() {
		_ = s.userRepo.DeleteSession(ctx, sessionID)
		return nil, ErrSessionExpired
	}

	user, err := s.userRepo.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, ErrSessionNotFound
	}

	return user, nil
}

// Logout invalidates a session
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if err := s.userRepo.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}
	return nil
}

// CleanupExpiredSessions removes expired sessions from the database
func (s *AuthService) CleanupExpiredSessions(ctx context.Context) error {
	n, err := s.userRepo.DeleteExpiredSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to cleanup sessions: %w", err)
	}
	if n > 0 {
		log.Printf("Removed %d expired sessions", n)
	}
	return nil
}

// OAuthLogin authenticates or creates a user using an OAuth provider
func (s *AuthService) OAuthLogin(ctx context.Context, provider, subject, email, name string) (*models.Session, *models.User, error) {
	if provider == "" || subject == "" {
		return nil, nil, errors.New("missing oauth provider information")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validation.ValidateEmail(email); err != nil {
		return nil, nil, err
	}

	user, err := s.userRepo.GetUserByProvider(ctx, provider, subject)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lookup oauth user: %w", err)
	}

	if user == nil {
		existingUser, err := s.userRepo.GetUserByEmail(ctx, email)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to check existing user: %w", err)
		}
		if existingUser != nil {
			if existingUser.ProviderID != "" {
				return nil, nil, ErrEmailTaken
			}
			if err := s.userRepo.LinkProvider(ctx, existingUser.ID, provider, subject); err != nil {
				return nil, nil, fmt.Errorf("failed to link oauth provider: %w", err)
			}
			existingUser.AuthProvider = provider
			existingUser.ProviderID = subject
			user = existingUser
		} else {
			user = &models.User{
				ID:           uuid.NewString(),
				Email:        email,
				Username:     oauthUsername(name, email, s.nameFilter),
				AuthProvider: provider,
				ProviderID:   subject,
			}
			if err := s.userRepo.CreateUser(ctx, user); err != nil {
				return nil, nil, fmt.Errorf("failed to create oauth user: %w", err)
			}
			s.sendWelcome(ctx, user)
		}
	}

	session, err := s.newSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return session, user, nil
}

func (s *AuthService) newSession(ctx context.Context, userID string) (*models.Session, error) {
	sessionID := security.GenerateSessionID()
	expiresAt := time.Now().Add(s.sessionDuration)
	session, err := s.userRepo.CreateSession(ctx, sessionID, userID, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

func (s *AuthService) sendWelcome(ctx context.Context, user *models.User) {
	if s.emailService == nil || !s.emailService.IsEnabled() {
		return
	}
	if err := s.emailService.SendWelcomeEmail(ctx, user.Email, user.Username); err != nil {
		log.Printf("Failed to send welcome email to user %s: %v", user.ID, err)
	}
}

// oauthUsername derives a display name the ledger will accept, falling back
// to a generated nickname
func oauthUsername(name, email string, filter *validation.NameFilter) string {
	candidates := []string{strings.TrimSpace(name)}
	if local, _, ok := strings.Cut(email, "@"); ok {
		candidates = append(candidates, local)
	}
	if nickname, err := credentials.GenerateNickname(); err == nil {
		candidates = append(candidates, nickname)
	}
	for _, c := range candidates {
		if validation.ValidateUsername(c) == nil && filter.Check(c) == nil {
			return c
		}
	}
	return rewards.DefaultUsername
}
