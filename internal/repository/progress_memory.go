package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"quizzies/internal/models"
)

// MemoryProgressRepository keeps ledgers in process memory. Transactions on
// it are serialized, so it backs local development and tests.
type MemoryProgressRepository struct {
	mu      sync.Mutex
	ledgers map[string]*models.Progress
	hub     *Hub
	now     func() time.Time
}

// NewMemoryProgressRepository creates an empty in-memory ledger store
func NewMemoryProgressRepository() *MemoryProgressRepository {
	return &MemoryProgressRepository{
		ledgers: make(map[string]*models.Progress),
		hub:     NewHub(),
		now:     time.Now,
	}
}

// Get returns a copy of the stored ledger, or nil
func (r *MemoryProgressRepository) Get(ctx context.Context, userID string) (*models.Progress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ledgers[userID].Clone(), nil
}

// RunTransaction runs fn under the store lock and commits its result
func (r *MemoryProgressRepository) RunTransaction(ctx context.Context, userID string, fn TransactionFunc) (*models.Progress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	current := r.ledgers[userID].Clone()
	next, err := fn(current)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	if next == nil {
		r.mu.Unlock()
		return current, nil
	}

	committed := next.Clone()
	committed.UserID = userID
	committed.UpdatedAt = r.now().UTC()
	committed.Version = 1
	if current != nil {
		committed.Version = current.Version + 1
	}
	r.ledgers[userID] = committed
	r.mu.Unlock()

	r.hub.Publish(committed.Clone())
	return committed.Clone(), nil
}

// Subscribe streams the current ledger and every later commit
func (r *MemoryProgressRepository) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	sub := r.hub.Subscribe(userID)

	if current, _ := r.Get(ctx, userID); current != nil {
		sub.deliver(current)
	}

	done := make(chan struct{})
	stop := sub.stop
	sub.stop = func() {
		stop()
		close(done)
	}
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-done:
		}
	}()
	return sub, nil
}

// List returns every ledger ordered by user id
func (r *MemoryProgressRepository) List(ctx context.Context) ([]*models.Progress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*models.Progress, 0, len(r.ledgers))
	for _, p := range r.ledgers {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// Put overwrites a ledger
func (r *MemoryProgressRepository) Put(ctx context.Context, p *models.Progress) error {
	_, err := r.RunTransaction(ctx, p.UserID, func(*models.Progress) (*models.Progress, error) {
		return p, nil
	})
	return err
}

// Delete removes a ledger
func (r *MemoryProgressRepository) Delete(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ledgers, userID)
	return nil
}

// SubscriberCount reports live subscriptions for userID
func (r *MemoryProgressRepository) SubscriberCount(userID string) int {
	return r.hub.SubscriberCount(userID)
}
