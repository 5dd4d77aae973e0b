package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"quizzies/internal/database"
	"quizzies/internal/models"
)

// ErrContention is returned when a ledger transaction keeps losing to
// concurrent writers until its attempts run out
var ErrContention = errors.New("ledger transaction contention")

// DefaultPollInterval is how often a subscription checks the stored version
// for commits made by other processes
const DefaultPollInterval = 2 * time.Second

// TransactionFunc computes the next ledger from the current one. current is
// nil for a user without a ledger. Returning a nil ledger means no write.
type TransactionFunc func(current *models.Progress) (*models.Progress, error)

// ProgressRepository stores one versioned ledger document per user in SQL.
// Writes are conditional on the version read, so a transaction that raced
// another writer is re-run against the fresh document.
type ProgressRepository struct {
	db           *database.DB
	hub          *Hub
	attempts     int
	pollInterval time.Duration
	now          func() time.Time
}

// NewProgressRepository creates a SQL ledger store
func NewProgressRepository(db *database.DB, attempts int) *ProgressRepository {
	if attempts < 1 {
		attempts = 1
	}
	return &ProgressRepository{
		db:           db,
		hub:          NewHub(),
		attempts:     attempts,
		pollInterval: DefaultPollInterval,
		now:          time.Now,
	}
}

// SetPollInterval changes how often subscriptions look for commits made
// outside this repository. Non-positive values are ignored.
func (r *ProgressRepository) SetPollInterval(d time.Duration) {
	if d > 0 {
		r.pollInterval = d
	}
}

// Get returns the stored ledger, or nil when the user has none
func (r *ProgressRepository) Get(ctx context.Context, userID string) (*models.Progress, error) {
	return r.load(ctx, userID)
}

func (r *ProgressRepository) load(ctx context.Context, userID string) (*models.Progress, error) {
	query := "SELECT document, version, updated_at FROM user_progress WHERE user_id = ?"

	var document string
	var version int64
	var updatedAt time.Time
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&document, &version, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger: %w", err)
	}

	p, repaired, err := UnmarshalDocument(userID, document, r.now())
	if err != nil {
		return nil, err
	}
	if len(repaired) > 0 {
		log.Printf("Repaired malformed ledger fields for user %s: %v", userID, repaired)
	}
	p.Version = version
	p.UpdatedAt = updatedAt.UTC()
	return p, nil
}

// RunTransaction reads the ledger, applies fn and writes the result only if
// no other writer committed in between. Lost races are retried with a fresh
// read up to the configured number of attempts.
func (r *ProgressRepository) RunTransaction(ctx context.Context, userID string, fn TransactionFunc) (*models.Progress, error) {
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current, err := r.load(ctx, userID)
		if err != nil {
			return nil, err
		}

		next, err := fn(current)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return current, nil
		}

		committed, err := r.write(ctx, userID, current, next)
		if err != nil {
			return nil, err
		}
		if committed != nil {
			r.hub.Publish(committed)
			return committed, nil
		}

		log.Printf("Ledger write conflict for user %s (attempt %d/%d)", userID, attempt, r.attempts)
		if attempt < r.attempts {
			if err := backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("%w: user %s after %d attempts", ErrContention, userID, r.attempts)
}

// write commits next over current. It returns nil without error when another
// writer got there first.
func (r *ProgressRepository) write(ctx context.Context, userID string, current, next *models.Progress) (*models.Progress, error) {
	committed := next.Clone()
	committed.UserID = userID
	committed.UpdatedAt = r.now().UTC()

	var res sql.Result
	var err error
	if current == nil {
		committed.Version = 1
		document, merr := MarshalDocument(committed)
		if merr != nil {
			return nil, merr
		}
		query := r.db.Dialect.InsertIgnoreQuery("user_progress", "user_id", "document", "version", "updated_at")
		res, err = r.db.ExecContext(ctx, query, userID, document, committed.Version, committed.UpdatedAt)
	} else {
		committed.Version = current.Version + 1
		document, merr := MarshalDocument(committed)
		if merr != nil {
			return nil, merr
		}
		query := `
			UPDATE user_progress
			SET document = ?, version = ?, updated_at = ?
			WHERE user_id = ? AND version = ?
		`
		res, err = r.db.ExecContext(ctx, query, document, committed.Version, committed.UpdatedAt, userID, current.Version)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write ledger: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read write result: %w", err)
	}
	if rows == 0 {
		return nil, nil
	}
	return committed, nil
}

// Subscribe streams the current ledger followed by every committed change
// until ctx is done or the subscription is closed. Commits through this
// repository arrive immediately; commits by other processes sharing the
// database arrive within one poll interval.
func (r *ProgressRepository) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	sub := r.hub.Subscribe(userID)

	current, err := r.load(ctx, userID)
	if err != nil {
		sub.Close()
		return nil, err
	}
	var seen int64
	if current != nil {
		sub.deliver(current)
		seen = current.Version
	}

	done := make(chan struct{})
	stop := sub.stop
	sub.stop = func() {
		stop()
		close(done)
	}
	go r.watch(ctx, sub, userID, seen, done)
	return sub, nil
}

// watch polls the stored version and delivers the ledger whenever it moves
// past the last version seen
func (r *ProgressRepository) watch(ctx context.Context, sub *Subscription, userID string, seen int64, done <-chan struct{}) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sub.Close()
			return
		case <-done:
			return
		case <-ticker.C:
		}

		version, err := r.version(ctx, userID)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("Failed to poll ledger version for user %s: %v", userID, err)
			}
			continue
		}
		if version <= seen {
			continue
		}

		p, err := r.load(ctx, userID)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("Failed to reload ledger for user %s: %v", userID, err)
			}
			continue
		}
		if p == nil {
			continue
		}
		seen = p.Version
		sub.deliver(p)
	}
}

// version returns the stored ledger version, 0 when the user has none
func (r *ProgressRepository) version(ctx context.Context, userID string) (int64, error) {
	var version int64
	err := r.db.QueryRowContext(ctx, "SELECT version FROM user_progress WHERE user_id = ?", userID).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get ledger version: %w", err)
	}
	return version, nil
}

// List returns every stored ledger ordered by user id
func (r *ProgressRepository) List(ctx context.Context) ([]*models.Progress, error) {
	query := "SELECT user_id, document, version, updated_at FROM user_progress ORDER BY user_id"
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledgers: %w", err)
	}
	defer rows.Close()

	var out []*models.Progress
	for rows.Next() {
		var userID, document string
		var version int64
		var updatedAt time.Time
		if err := rows.Scan(&userID, &document, &version, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger: %w", err)
		}
		p, repaired, err := UnmarshalDocument(userID, document, r.now())
		if err != nil {
			log.Printf("Skipping unreadable ledger for user %s: %v", userID, err)
			continue
		}
		if len(repaired) > 0 {
			log.Printf("Repaired malformed ledger fields for user %s: %v", userID, repaired)
		}
		p.Version = version
		p.UpdatedAt = updatedAt.UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledgers: %w", err)
	}
	return out, nil
}

// Put overwrites a ledger outside the event path (backup restore)
func (r *ProgressRepository) Put(ctx context.Context, p *models.Progress) error {
	_, err := r.RunTransaction(ctx, p.UserID, func(*models.Progress) (*models.Progress, error) {
		return p, nil
	})
	if err != nil {
		return fmt.Errorf("failed to put ledger: %w", err)
	}
	return nil
}

// Delete removes a user's ledger
func (r *ProgressRepository) Delete(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM user_progress WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("failed to delete ledger: %w", err)
	}
	return nil
}

// SubscriberCount reports live subscriptions for userID
func (r *ProgressRepository) SubscriberCount(userID string) int {
	return r.hub.SubscriberCount(userID)
}

// backoff sleeps a short jittered delay that grows with attempt
func backoff(ctx context.Context, attempt int) error {
	delay := time.Duration(attempt)*5*time.Millisecond + time.Duration(rand.Intn(5))*time.Millisecond
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
