package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"quizzies/internal/models"
	"quizzies/internal/repository"
)

// ErrNotReady is returned for events submitted outside the Ready state
var ErrNotReady = errors.New("ledger session not ready")

// SessionState is the lifecycle of a LedgerSession
type SessionState int

const (
	StateUnauthenticated SessionState = iota
	StateLoading
	StateReady
)

func (s SessionState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// Coordinator is the part of ProgressService a session drives
type Coordinator interface {
	SignIn(ctx context.Context, identity models.Identity) (*models.Progress, error)
	AnswerWord(ctx context.Context, userID, word string) (*models.Progress, error)
	AnswerNumber(ctx context.Context, userID string) (*models.Progress, error)
	UpdateProfile(ctx context.Context, userID, username, profileImageRef string) (*models.Progress, error)
	Subscribe(ctx context.Context, userID string) (*repository.Subscription, error)
}

// LedgerSession mirrors one signed-in user's ledger. The mirror only ever
// holds server-confirmed snapshots and only moves to higher versions; a
// failed event leaves it untouched.
type LedgerSession struct {
	coord Coordinator

	mu         sync.Mutex
	state      SessionState
	userID     string
	generation uint64
	sub        *repository.Subscription

	snapshot atomic.Pointer[models.Progress]
	updates  chan *models.Progress
}

// NewLedgerSession creates an unauthenticated session
func NewLedgerSession(coord Coordinator) *LedgerSession {
	return &LedgerSession{
		coord:   coord,
		updates: make(chan *models.Progress, 1),
	}
}

// State returns the current lifecycle state
func (s *LedgerSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns the mirrored ledger, nil until the first snapshot arrives.
// Callers must treat it as read-only.
func (s *LedgerSession) Snapshot() *models.Progress {
	return s.snapshot.Load()
}

// Updates yields each snapshot adopted into the mirror. A slow reader only
// sees the newest one.
func (s *LedgerSession) Updates() <-chan *models.Progress {
	return s.updates
}

// SignIn moves Unauthenticated -> Loading -> Ready: the login event is
// applied, then a live subscription is opened. Any previous subscription is
// torn down first.
func (s *LedgerSession) SignIn(ctx context.Context, identity models.Identity) error {
	s.mu.Lock()
	s.teardown()
	s.state = StateLoading
	s.userID = identity.UserID
	gen := s.generation
	s.mu.Unlock()

	snap, err := s.coord.SignIn(ctx, identity)
	if err != nil {
		s.reset(gen)
		return err
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub, err := s.coord.Subscribe(subCtx, identity.UserID)
	if err != nil {
		cancel()
		s.reset(gen)
		return err
	}

	s.mu.Lock()
	if s.generation != gen {
		// logged out or signed in again while loading
		s.mu.Unlock()
		sub.Close()
		cancel()
		return ErrNotReady
	}
	s.sub = sub
	s.state = StateReady
	s.adoptLocked(snap)
	s.mu.Unlock()

	go s.pump(gen, sub, cancel)
	return nil
}

// Logout tears down the subscription and clears the mirror
func (s *LedgerSession) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardown()
}

// AnswerWord submits a correctly spelled word
func (s *LedgerSession) AnswerWord(ctx context.Context, word string) (*models.Progress, error) {
	return s.submit(func(userID string) (*models.Progress, error) {
		return s.coord.AnswerWord(ctx, userID, word)
	})
}

// AnswerNumber submits a solved number problem
func (s *LedgerSession) AnswerNumber(ctx context.Context) (*models.Progress, error) {
	return s.submit(func(userID string) (*models.Progress, error) {
		return s.coord.AnswerNumber(ctx, userID)
	})
}

// UpdateProfile submits a profile change
func (s *LedgerSession) UpdateProfile(ctx context.Context, username, profileImageRef string) (*models.Progress, error) {
	return s.submit(func(userID string) (*models.Progress, error) {
		return s.coord.UpdateProfile(ctx, userID, username, profileImageRef)
	})
}

func (s *LedgerSession) submit(apply func(userID string) (*models.Progress, error)) (*models.Progress, error) {
	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return nil, ErrNotReady
	}
	userID, gen := s.userID, s.generation
	s.mu.Unlock()

	p, err := apply(userID)
	if err != nil {
		return nil, err
	}
	s.adopt(gen, p)
	return p, nil
}

// pump feeds pushed snapshots into the mirror until the subscription ends
func (s *LedgerSession) pump(gen uint64, sub *repository.Subscription, cancel context.CancelFunc) {
	defer cancel()
	for p := range sub.Updates {
		s.adopt(gen, p)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation == gen && s.state == StateReady {
		log.Printf("Ledger subscription for user %s ended unexpectedly", s.userID)
		s.teardown()
	}
}

func (s *LedgerSession) adopt(gen uint64, p *models.Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return
	}
	s.adoptLocked(p)
}

// adoptLocked replaces the mirror when p is newer. Caller holds mu.
func (s *LedgerSession) adoptLocked(p *models.Progress) {
	if p == nil {
		return
	}
	if current := s.snapshot.Load(); current != nil && p.Version <= current.Version {
		return
	}
	s.snapshot.Store(p)

	select {
	case s.updates <- p:
		return
	default:
	}
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- p:
	default:
	}
}

// teardown closes the live subscription and returns to Unauthenticated.
// Caller holds mu.
func (s *LedgerSession) teardown() {
	s.generation++
	if s.sub != nil {
		s.sub.Close()
		s.sub = nil
	}
	s.snapshot.Store(nil)
	s.state = StateUnauthenticated
	s.userID = ""
}

// reset falls back to Unauthenticated after a failed sign-in
func (s *LedgerSession) reset(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation == gen {
		s.teardown()
	}
}
