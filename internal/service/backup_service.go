package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"quizzies/internal/models"
)

// BackupFormatVersion is written into every export
const BackupFormatVersion = "2.0"

// BackupData represents a complete export of accounts and ledgers
type BackupData struct {
	Version    string             `json:"version"`
	ExportedAt time.Time          `json:"exported_at"`
	Users      []UserBackup       `json:"users"`
	Ledgers    []*models.Progress `json:"ledgers"`
}

// UserBackup represents a user record for backup
type UserBackup struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	AuthProvider string    `json:"auth_provider"`
	ProviderID   string    `json:"provider_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// LedgerArchive is the ledger store surface backups need
type LedgerArchive interface {
	Get(ctx context.Context, userID string) (*models.Progress, error)
	List(ctx context.Context) ([]*models.Progress, error)
	Put(ctx context.Context, p *models.Progress) error
	Delete(ctx context.Context, userID string) error
}

// UserArchive is the account store surface backups need
type UserArchive interface {
	GetAllUsers(ctx context.Context) ([]models.User, error)
	UpsertUser(ctx context.Context, user models.User) (bool, error)
	DeleteUser(ctx context.Context, id string) error
}

// ImportStats reports what an import changed
type ImportStats struct {
	UsersCreated  int
	UsersSkipped  int
	LedgersPut    int
	LedgersFailed int
}

// BackupService handles export and restore of accounts and ledgers
type BackupService struct {
	users   UserArchive
	ledgers LedgerArchive
}

// NewBackupService creates a new backup service
func NewBackupService(users UserArchive, ledgers LedgerArchive) *BackupService {
	return &BackupService{users: users, ledgers: ledgers}
}

// Export writes a complete backup to outputPath
func (s *BackupService) Export(ctx context.Context, outputPath string) error {
	log.Println("Starting export...")

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	backup, err := s.ExportToWriter(ctx, file)
	if err != nil {
		return err
	}

	log.Printf("Exported successfully to %s: %d users, %d ledgers", outputPath, len(backup.Users), len(backup.Ledgers))
	return nil
}

// ExportToWriter encodes a complete backup to w
func (s *BackupService) ExportToWriter(ctx context.Context, w io.Writer) (*BackupData, error) {
	backup := &BackupData{
		Version:    BackupFormatVersion,
		ExportedAt: time.Now().UTC(),
		Users:      []UserBackup{},
	}

	users, err := s.users.GetAllUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to export users: %w", err)
	}
	for _, u := range users {
		backup.Users = append(backup.Users, UserBackup{
			ID:           u.ID,
			Email:        u.Email,
			Username:     u.Username,
			PasswordHash: u.PasswordHash,
			AuthProvider: u.AuthProvider,
			ProviderID:   u.ProviderID,
			CreatedAt:    u.CreatedAt,
			UpdatedAt:    u.UpdatedAt,
		})
	}

	backup.Ledgers, err = s.ledgers.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to export ledgers: %w", err)
	}
	if backup.Ledgers == nil {
		backup.Ledgers = []*models.Progress{}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(backup); err != nil {
		return nil, fmt.Errorf("failed to encode backup: %w", err)
	}
	return backup, nil
}

// Import restores a backup file
func (s *BackupService) Import(ctx context.Context, inputPath string, clear bool) (*ImportStats, error) {
	log.Printf("Starting import from %s...", inputPath)

	file, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	return s.ImportFromReader(ctx, file, clear)
}

// ImportFromReader restores a backup. Existing accounts are kept; ledgers
// in the backup overwrite stored ones. With clear, everything is removed first.
func (s *BackupService) ImportFromReader(ctx context.Context, reader io.Reader, clear bool) (*ImportStats, error) {
	var backup BackupData
	if err := json.NewDecoder(reader).Decode(&backup); err != nil {
		return nil, fmt.Errorf("failed to decode backup: %w", err)
	}
	log.Printf("Backup version: %s, exported at: %s", backup.Version, backup.ExportedAt)

	if clear {
		if err := s.Clear(ctx); err != nil {
			return nil, err
		}
	}

	stats := &ImportStats{}
	for _, u := range backup.Users {
		created, err := s.users.UpsertUser(ctx, models.User{
			ID:           u.ID,
			Email:        u.Email,
			Username:     u.Username,
			PasswordHash: u.PasswordHash,
			AuthProvider: u.AuthProvider,
			ProviderID:   u.ProviderID,
			CreatedAt:    u.CreatedAt,
			UpdatedAt:    u.UpdatedAt,
		})
		if err != nil {
			return stats, fmt.Errorf("failed to import user %s: %w", u.ID, err)
		}
		if created {
			stats.UsersCreated++
		} else {
			stats.UsersSkipped++
		}
	}

	for _, p := range backup.Ledgers {
		if p == nil || p.UserID == "" {
			stats.LedgersFailed++
			continue
		}
		if err := s.ledgers.Put(ctx, p); err != nil {
			log.Printf("Failed to import ledger for user %s: %v", p.UserID, err)
			stats.LedgersFailed++
			continue
		}
		stats.LedgersPut++
	}

	log.Printf("Import completed: %d users created, %d skipped, %d ledgers restored, %d failed",
		stats.UsersCreated, stats.UsersSkipped, stats.LedgersPut, stats.LedgersFailed)
	return stats, nil
}

// Clear deletes every ledger and account
func (s *BackupService) Clear(ctx context.Context) error {
	ledgers, err := s.ledgers.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list ledgers: %w", err)
	}
	for _, p := range ledgers {
		if err := s.ledgers.Delete(ctx, p.UserID); err != nil {
			return fmt.Errorf("failed to clear ledger %s: %w", p.UserID, err)
		}
	}

	users, err := s.users.GetAllUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}
	for _, u := range users {
		if err := s.users.DeleteUser(ctx, u.ID); err != nil {
			return fmt.Errorf("failed to clear user %s: %w", u.ID, err)
		}
	}

	log.Printf("Cleared %d ledgers and %d users", len(ledgers), len(users))
	return nil
}

// Show returns one user's ledger for inspection, or nil
func (s *BackupService) Show(ctx context.Context, userID string) (*models.Progress, error) {
	p, err := s.ledgers.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger: %w", err)
	}
	return p, nil
}
