package repository

import (
	"sync"

	"github.com/google/uuid"

	"quizzies/internal/models"
)

// Subscription streams ledger snapshots for one user. Updates always carries
// the newest snapshot; a reader that falls behind skips intermediate ones.
// Updates is closed once the subscription ends.
type Subscription struct {
	ID      string
	Updates <-chan *models.Progress

	once    sync.Once
	stop    func()
	deliver func(*models.Progress)
}

func newSubscription(updates <-chan *models.Progress, stop func()) *Subscription {
	return &Subscription{ID: uuid.NewString(), Updates: updates, stop: stop}
}

// Close ends the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(s.stop)
}

// latestChan is a one-slot channel where a newer snapshot replaces a pending one.
// Writers must be serialized by the owner.
type latestChan struct {
	ch          chan *models.Progress
	lastVersion int64
}

func newLatestChan() *latestChan {
	return &latestChan{ch: make(chan *models.Progress, 1)}
}

// offer queues p unless it is not newer than what was already queued
func (l *latestChan) offer(p *models.Progress) {
	if p.Version <= l.lastVersion {
		return
	}
	l.lastVersion = p.Version
	select {
	case l.ch <- p:
		return
	default:
	}
	select {
	case <-l.ch:
	default:
	}
	select {
	case l.ch <- p:
	default:
	}
}

// Hub fans committed snapshots out to in-process subscribers
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*latestChan]struct{}
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*latestChan]struct{})}
}

// Subscribe registers a listener for userID
func (h *Hub) Subscribe(userID string) *Subscription {
	lc := newLatestChan()

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*latestChan]struct{})
	}
	h.subs[userID][lc] = struct{}{}
	h.mu.Unlock()

	s := newSubscription(lc.ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[userID], lc)
		if len(h.subs[userID]) == 0 {
			delete(h.subs, userID)
		}
		close(lc.ch)
	})
	s.deliver = func(p *models.Progress) {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[userID][lc]; ok {
			lc.offer(p)
		}
	}
	return s
}

// Publish delivers p to every subscriber of its user
func (h *Hub) Publish(p *models.Progress) {
	if p == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for lc := range h.subs[p.UserID] {
		lc.offer(p)
	}
}

// SubscriberCount returns the number of live subscriptions for userID
func (h *Hub) SubscriberCount(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}

// Relay forwards src through a new subscription, calling observe with every
// snapshot before it is offered downstream. ended runs once src has closed,
// whether through the relay's Close or the source ending. Closing the relay
// closes src.
func Relay(src *Subscription, observe func(*models.Progress), ended func()) *Subscription {
	lc := newLatestChan()
	out := newSubscription(lc.ch, src.Close)
	out.ID = src.ID
	go func() {
		defer close(lc.ch)
		if ended != nil {
			defer ended()
		}
		for p := range src.Updates {
			if observe != nil {
				observe(p)
			}
			lc.offer(p)
		}
	}()
	return out
}
