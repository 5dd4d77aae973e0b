package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"quizzies/internal/metrics"
	"quizzies/internal/models"
	"quizzies/internal/repository"
	"quizzies/internal/rewards"
	"quizzies/internal/validation"
)

var (
	// ErrTransactionFailed wraps every store failure of an event. The event
	// is dropped and the caller may re-submit it.
	ErrTransactionFailed = errors.New("ledger transaction failed")
	// ErrInvalidEvent is returned before any store access for bad input
	ErrInvalidEvent = errors.New("invalid ledger event")
)

// ProgressStore is the transactional document store holding ledgers
type ProgressStore interface {
	Get(ctx context.Context, userID string) (*models.Progress, error)
	RunTransaction(ctx context.Context, userID string, fn repository.TransactionFunc) (*models.Progress, error)
	Subscribe(ctx context.Context, userID string) (*repository.Subscription, error)
}

// EventKind names what happened in a game screen
type EventKind string

const (
	EventLogin   EventKind = "login"
	EventWord    EventKind = "word"
	EventNumber  EventKind = "number"
	EventProfile EventKind = "profile"
)

// Event is one ledger mutation request
type Event struct {
	Kind EventKind
	// Identity seeds a brand-new ledger; only UserID is required
	Identity        models.Identity
	Word            string
	Username        string
	ProfileImageRef string
}

// AchievementListener is told about achievements unlocked by a commit
type AchievementListener func(userID string, ids []string)

// ProgressOptions tunes a ProgressService
type ProgressOptions struct {
	// Timeout bounds each transaction; zero means no extra bound
	Timeout time.Duration
	// CacheSize enables a snapshot cache for Get when > 0. Cached snapshots
	// are served only while the user has a live subscription keeping them
	// current.
	CacheSize  int
	Metrics    *metrics.Metrics
	NameFilter *validation.NameFilter
	Now        func() time.Time
}

// ProgressService is the only path by which ledgers change. Every event is
// one atomic read-modify-write: rollover, rule evaluation and the write all
// run against the snapshot read inside the store transaction.
type ProgressService struct {
	store      ProgressStore
	cache      *lru.Cache
	metrics    *metrics.Metrics
	nameFilter *validation.NameFilter
	timeout    time.Duration
	now        func() time.Time
	listeners  []AchievementListener

	watchMu sync.Mutex
	watched map[string]int
}

// NewProgressService creates the coordinator over store
func NewProgressService(store ProgressStore, opts ProgressOptions) (*ProgressService, error) {
	s := &ProgressService{
		store:      store,
		metrics:    opts.Metrics,
		nameFilter: opts.NameFilter,
		timeout:    opts.Timeout,
		now:        opts.Now,
		watched:    make(map[string]int),
	}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.CacheSize > 0 {
		cache, err := lru.New(opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create snapshot cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// OnAchievements registers a listener for newly unlocked achievements.
// Listeners run synchronously after the commit; register before serving.
func (s *ProgressService) OnAchievements(fn AchievementListener) {
	s.listeners = append(s.listeners, fn)
}

// SignIn records a login: a missing ledger is created, a new day rolls over
func (s *ProgressService) SignIn(ctx context.Context, identity models.Identity) (*models.Progress, error) {
	return s.ApplyEvent(ctx, identity.UserID, Event{Kind: EventLogin, Identity: identity})
}

// AnswerWord records a correctly spelled word
func (s *ProgressService) AnswerWord(ctx context.Context, userID, word string) (*models.Progress, error) {
	return s.ApplyEvent(ctx, userID, Event{Kind: EventWord, Word: word})
}

// AnswerNumber records a solved number problem
func (s *ProgressService) AnswerNumber(ctx context.Context, userID string) (*models.Progress, error) {
	return s.ApplyEvent(ctx, userID, Event{Kind: EventNumber})
}

// UpdateProfile changes the display name and picture
func (s *ProgressService) UpdateProfile(ctx context.Context, userID, username, profileImageRef string) (*models.Progress, error) {
	return s.ApplyEvent(ctx, userID, Event{Kind: EventProfile, Username: username, ProfileImageRef: profileImageRef})
}

// ApplyEvent runs ev against userID's ledger in one store transaction and
// returns the confirmed snapshot. On failure nothing was written.
func (s *ProgressService) ApplyEvent(ctx context.Context, userID string, ev Event) (*models.Progress, error) {
	ev, err := s.validate(userID, ev)
	if err != nil {
		return nil, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	now := s.now()
	var wrote bool
	var before *models.Progress

	result, err := s.store.RunTransaction(ctx, userID, func(current *models.Progress) (*models.Progress, error) {
		before = current
		next, changed := s.transition(userID, current, ev, now)
		wrote = changed
		if !changed {
			return nil, nil
		}
		return next, nil
	})
	if err != nil {
		log.Printf("Failed to apply %s event for user %s: %v", ev.Kind, userID, err)
		s.metrics.ObserveTransaction(string(ev.Kind), metrics.OutcomeFailed, time.Since(start))
		return nil, fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}

	outcome := metrics.OutcomeUnchanged
	if wrote {
		outcome = metrics.OutcomeCommitted
		s.remember(result)
		if unlocked := newAchievements(before, result); len(unlocked) > 0 {
			log.Printf("User %s unlocked achievements %v", userID, unlocked)
			s.metrics.AchievementUnlocked(unlocked...)
			for _, fn := range s.listeners {
				fn(userID, unlocked)
			}
		}
	}
	s.metrics.ObserveTransaction(string(ev.Kind), outcome, time.Since(start))
	return result, nil
}

// transition computes the ledger after ev. It reports false when the ledger
// would not change, in which case nothing is written.
func (s *ProgressService) transition(userID string, current *models.Progress, ev Event, now time.Time) (*models.Progress, bool) {
	var snap *models.Progress
	changed := false

	if current == nil {
		identity := ev.Identity
		identity.UserID = userID
		snap = rewards.NewProgress(identity, now)
		changed = true
	} else {
		snap, changed = rewards.Rollover(current, now)
	}

	switch ev.Kind {
	case EventWord:
		if d := rewards.OnWordAnswered(snap, ev.Word, now); !d.IsEmpty() {
			snap = rewards.Apply(snap, d)
			changed = true
		}
	case EventNumber:
		snap = rewards.Apply(snap, rewards.OnNumberAnswered(snap, now))
		changed = true
	case EventProfile:
		if snap.Username != ev.Username || snap.ProfileImageRef != ev.ProfileImageRef {
			if !changed {
				snap = snap.Clone()
			}
			snap.Username = ev.Username
			snap.ProfileImageRef = ev.ProfileImageRef
			changed = true
		}
	}
	return snap, changed
}

func (s *ProgressService) validate(userID string, ev Event) (Event, error) {
	if strings.TrimSpace(userID) == "" {
		return ev, fmt.Errorf("%w: missing user id", ErrInvalidEvent)
	}

	switch ev.Kind {
	case EventLogin, EventNumber:
	case EventWord:
		ev.Word = rewards.NormalizeWord(ev.Word)
		if ev.Word == "" {
			return ev, fmt.Errorf("%w: empty word", ErrInvalidEvent)
		}
	case EventProfile:
		ev.Username = strings.TrimSpace(ev.Username)
		ev.ProfileImageRef = strings.TrimSpace(ev.ProfileImageRef)
		if err := validation.ValidateUsername(ev.Username); err != nil {
			return ev, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
		}
		if err := s.nameFilter.Check(ev.Username); err != nil {
			return ev, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
		}
		if err := validation.ValidateImageRef(ev.ProfileImageRef); err != nil {
			return ev, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
		}
	default:
		return ev, fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, ev.Kind)
	}
	return ev, nil
}

// Get returns the stored ledger without applying rollover, or nil
func (s *ProgressService) Get(ctx context.Context, userID string) (*models.Progress, error) {
	if s.cache != nil && s.isWatched(userID) {
		if v, ok := s.cache.Get(userID); ok {
			return v.(*models.Progress).Clone(), nil
		}
	}

	p, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger: %w", err)
	}
	s.remember(p)
	return p, nil
}

// Subscribe opens a live stream of the user's ledger. Pushed snapshots,
// including commits by other processes, refresh the snapshot cache.
func (s *ProgressService) Subscribe(ctx context.Context, userID string) (*repository.Subscription, error) {
	sub, err := s.store.Subscribe(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to ledger: %w", err)
	}
	if s.cache == nil {
		return sub, nil
	}

	s.watch(userID, 1)
	return repository.Relay(sub, s.remember, func() { s.watch(userID, -1) }), nil
}

func (s *ProgressService) watch(userID string, delta int) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	s.watched[userID] += delta
	if s.watched[userID] <= 0 {
		delete(s.watched, userID)
	}
}

func (s *ProgressService) isWatched(userID string) bool {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	return s.watched[userID] > 0
}

// Forget drops a cached snapshot, e.g. after a restore or delete
func (s *ProgressService) Forget(userID string) {
	if s.cache != nil {
		s.cache.Remove(userID)
	}
}

// remember caches p unless an equal or newer version is already cached
func (s *ProgressService) remember(p *models.Progress) {
	if s.cache == nil || p == nil {
		return
	}
	if v, ok := s.cache.Peek(p.UserID); ok && v.(*models.Progress).Version >= p.Version {
		return
	}
	s.cache.Add(p.UserID, p.Clone())
}

// newAchievements lists ids unlocked in after but not in before
func newAchievements(before, after *models.Progress) []string {
	if after == nil {
		return nil
	}
	var ids []string
	for _, id := range after.UnlockedAchievements {
		if before == nil || !before.HasAchievement(id) {
			ids = append(ids, id)
		}
	}
	return ids
}
