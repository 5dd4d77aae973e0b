package models

import "time"

// Auth providers recorded on a user
const (
	ProviderLocal    = "local"
	ProviderGoogle   = "google"
	ProviderFirebase = "firebase"
)

// User represents a sign-in account
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	AuthProvider string
	ProviderID   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session represents an authenticated session
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired checks if the session has expired
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Identity is what the ledger knows about a signed-in user
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	PhotoRef    string `json:"photoRef,omitempty"`
}

// Word is a spelling word from the game catalog
type Word struct {
	Text     string `json:"text"`
	Category string `json:"category"`
}
