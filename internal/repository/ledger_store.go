package repository

import (
	"context"

	"quizzies/internal/models"
)

// Ledger backends selectable with LEDGER_BACKEND
const (
	BackendSQL       = "sql"
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

// LedgerStore is the full surface of a ledger backend
type LedgerStore interface {
	Get(ctx context.Context, userID string) (*models.Progress, error)
	RunTransaction(ctx context.Context, userID string, fn TransactionFunc) (*models.Progress, error)
	Subscribe(ctx context.Context, userID string) (*Subscription, error)
	List(ctx context.Context) ([]*models.Progress, error)
	Put(ctx context.Context, p *models.Progress) error
	Delete(ctx context.Context, userID string) error
}

var (
	_ LedgerStore = (*ProgressRepository)(nil)
	_ LedgerStore = (*FirestoreProgressRepository)(nil)
	_ LedgerStore = (*MemoryProgressRepository)(nil)
)
