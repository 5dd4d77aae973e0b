package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"quizzies/internal/models"
)

// DefaultProgressCollection holds one ledger document per user id
const DefaultProgressCollection = "users"

// FirestoreProgressRepository stores ledgers as Firestore documents and
// relies on Firestore transactions for atomic read-modify-write
type FirestoreProgressRepository struct {
	client     *firestore.Client
	collection string
	attempts   int
	now        func() time.Time
}

// NewFirestoreProgressRepository creates a Firestore ledger store
func NewFirestoreProgressRepository(client *firestore.Client, collection string, attempts int) *FirestoreProgressRepository {
	if collection == "" {
		collection = DefaultProgressCollection
	}
	if attempts < 1 {
		attempts = 1
	}
	return &FirestoreProgressRepository{
		client:     client,
		collection: collection,
		attempts:   attempts,
		now:        time.Now,
	}
}

func (r *FirestoreProgressRepository) doc(userID string) *firestore.DocumentRef {
	return r.client.Collection(r.collection).Doc(userID)
}

func (r *FirestoreProgressRepository) decode(snap *firestore.DocumentSnapshot) *models.Progress {
	p, repaired := DecodeDocument(snap.Ref.ID, snap.Data(), r.now())
	if len(repaired) > 0 {
		log.Printf("Repaired malformed ledger fields for user %s: %v", snap.Ref.ID, repaired)
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = snap.UpdateTime.UTC()
	}
	return p
}

// Get returns the stored ledger, or nil when the user has none
func (r *FirestoreProgressRepository) Get(ctx context.Context, userID string) (*models.Progress, error) {
	snap, err := r.doc(userID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger: %w", err)
	}
	return r.decode(snap), nil
}

// RunTransaction applies fn inside a Firestore transaction. Firestore re-runs
// the function when the document changed underneath it.
func (r *FirestoreProgressRepository) RunTransaction(ctx context.Context, userID string, fn TransactionFunc) (*models.Progress, error) {
	ref := r.doc(userID)
	var result *models.Progress

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		result = nil

		var current *models.Progress
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			current = r.decode(snap)
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		if next == nil {
			result = current
			return nil
		}

		committed := next.Clone()
		committed.UserID = userID
		committed.UpdatedAt = r.now().UTC()
		committed.Version = 1
		if current != nil {
			committed.Version = current.Version + 1
		}
		if err := tx.Set(ref, EncodeDocument(committed)); err != nil {
			return err
		}
		result = committed
		return nil
	}, firestore.MaxAttempts(r.attempts))

	if err != nil {
		if status.Code(err) == codes.Aborted {
			return nil, fmt.Errorf("%w: %v", ErrContention, err)
		}
		return nil, fmt.Errorf("failed to run ledger transaction: %w", err)
	}
	return result, nil
}

// Subscribe listens to the user's document. The first update is the current
// state when the document exists.
func (r *FirestoreProgressRepository) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	it := r.doc(userID).Snapshots(ctx)
	lc := newLatestChan()

	go func() {
		defer close(lc.ch)
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				if ctx.Err() == nil && status.Code(err) != codes.Canceled && !errors.Is(err, iterator.Done) {
					log.Printf("Ledger subscription for user %s ended: %v", userID, err)
				}
				return
			}
			if !snap.Exists() {
				continue
			}
			lc.offer(r.decode(snap))
		}
	}()

	return newSubscription(lc.ch, cancel), nil
}

// List returns every stored ledger
func (r *FirestoreProgressRepository) List(ctx context.Context) ([]*models.Progress, error) {
	iter := r.client.Collection(r.collection).Documents(ctx)
	defer iter.Stop()

	var out []*models.Progress
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list ledgers: %w", err)
		}
		out = append(out, r.decode(snap))
	}
	return out, nil
}

// Put overwrites a ledger outside the event path (backup restore)
func (r *FirestoreProgressRepository) Put(ctx context.Context, p *models.Progress) error {
	_, err := r.RunTransaction(ctx, p.UserID, func(*models.Progress) (*models.Progress, error) {
		return p, nil
	})
	if err != nil {
		return fmt.Errorf("failed to put ledger: %w", err)
	}
	return nil
}

// Delete removes a user's ledger
func (r *FirestoreProgressRepository) Delete(ctx context.Context, userID string) error {
	if _, err := r.doc(userID).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete ledger: %w", err)
	}
	return nil
}
