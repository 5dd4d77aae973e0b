package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"quizzies/internal/database"
	"quizzies/internal/models"
)

const userColumns = "id, email, username, password_hash, auth_provider, provider_id, created_at, updated_at"

// UserRepository handles database operations for users and sessions
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// CreateUser inserts a new user into the database
func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	if user.AuthProvider == "" {
		user.AuthProvider = models.ProviderLocal
	}
	query := `
		INSERT INTO users (id, email, username, password_hash, auth_provider, provider_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query, user.ID, user.Email, user.Username, user.PasswordHash,
		user.AuthProvider, user.ProviderID, now, now)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func scanUser(row interface{ Scan(...interface{}) error }) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&user.AuthProvider,
		&user.ProviderID,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *UserRepository) getUser(ctx context.Context, where string, args ...interface{}) (*models.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE " + where
	user, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email address
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getUser(ctx, "email = ?", email)
}

// GetUserByID retrieves a user by ID
func (r *UserRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return r.getUser(ctx, "id = ?", id)
}

// GetUserByProvider retrieves a user by federated provider and subject
func (r *UserRepository) GetUserByProvider(ctx context.Context, provider, subject string) (*models.User, error) {
	return r.getUser(ctx, "auth_provider = ? AND provider_id = ?", provider, subject)
}

// LinkProvider links an existing local account to a federated provider
func (r *UserRepository) LinkProvider(ctx context.Context, userID, provider, subject string) error {
	query := `
		UPDATE users
		SET auth_provider = ?, provider_id = ?, updated_at = ?
		WHERE id = ? AND provider_id = ''
	`
	result, err := r.db.ExecContext(ctx, query, provider, subject, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to link provider: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read link result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("provider already linked")
	}
	return nil
}

// UpdateUsername changes the account's display name
func (r *UserRepository) UpdateUsername(ctx context.Context, userID, username string) error {
	query := "UPDATE users SET username = ?, updated_at = ? WHERE id = ?"
	_, err := r.db.ExecContext(ctx, query, username, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// GetAllUsers retrieves all users
func (r *UserRepository) GetAllUsers(ctx context.Context) ([]models.User, error) {
	query := "SELECT " + userColumns + " FROM users ORDER BY created_at"
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// UpsertUser writes a user as-is, keeping the stored row when the id already exists
func (r *UserRepository) UpsertUser(ctx context.Context, user models.User) (bool, error) {
	query := r.db.Dialect.InsertIgnoreQuery("users",
		"id", "email", "username", "password_hash", "auth_provider", "provider_id", "created_at", "updated_at")
	res, err := r.db.ExecContext(ctx, query, user.ID, user.Email, user.Username, user.PasswordHash,
		user.AuthProvider, user.ProviderID, user.CreatedAt.UTC(), user.UpdatedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to upsert user: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read upsert result: %w", err)
	}
	return rows > 0, nil
}

// DeleteUser deletes a user and their sessions
func (r *UserRepository) DeleteUser(ctx context.Context, id string) error {
	return r.db.WithTx(ctx, func(q database.DBTX) error {
		if _, err := q.ExecContext(ctx, "DELETE FROM sessions WHERE user_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete user sessions: %w", err)
		}
		if _, err := q.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		return nil
	})
}

// CreateSession creates a new session for a user
func (r *UserRepository) CreateSession(ctx context.Context, sessionID, userID string, expiresAt time.Time) (*models.Session, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO sessions (id, user_id, expires_at, created_at)
		VALUES (?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query, sessionID, userID, expiresAt.UTC(), now)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &models.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: now,
	}, nil
}

// GetSession retrieves a session by ID
func (r *UserRepository) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	query := `
		SELECT id, user_id, expires_at, created_at
		FROM sessions
		WHERE id = ?
	`
	session := &models.Session{}
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&session.ID,
		&session.UserID,
		&session.ExpiresAt,
		&session.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

// DeleteSession removes a session from the database
func (r *UserRepository) DeleteSession(ctx context.Context, sessionID string) error {
	query := "DELETE FROM sessions WHERE id = ?"
	_, err := r.db.ExecContext(ctx, query, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes all expired sessions and reports how many went
func (r *UserRepository) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	query := "DELETE FROM sessions WHERE expires_at < ?"
	res, err := r.db.ExecContext(ctx, query, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
