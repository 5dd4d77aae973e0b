package repository

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"quizzies/internal/database"
	"quizzies/internal/models"
	"quizzies/internal/rewards"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping SQLite test in short mode")
	}
	db, err := database.Initialize(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.RunMigrations("../../migrations"); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

// wordEvent mirrors the service's transaction body for a word answer
func wordEvent(userID, word string, now time.Time) TransactionFunc {
	return func(current *models.Progress) (*models.Progress, error) {
		if current == nil {
			current = rewards.NewProgress(models.Identity{UserID: userID}, now)
		}
		d := rewards.OnWordAnswered(current, word, now)
		if d.IsEmpty() && current.Version > 0 {
			return nil, nil
		}
		return rewards.Apply(current, d), nil
	}
}

func numberEvent(userID string, now time.Time) TransactionFunc {
	return func(current *models.Progress) (*models.Progress, error) {
		if current == nil {
			current = rewards.NewProgress(models.Identity{UserID: userID}, now)
		}
		return rewards.Apply(current, rewards.OnNumberAnswered(current, now)), nil
	}
}

func TestProgressRepositoryCreateAndGet(t *testing.T) {
	repo := NewProgressRepository(openTestDB(t), 5)
	ctx := context.Background()
	now := time.Now().UTC()

	got, err := repo.Get(ctx, "kid-1")
	if err != nil || got != nil {
		t.Fatalf("Get() on empty store = %v, %v, want nil, nil", got, err)
	}

	created, err := repo.RunTransaction(ctx, "kid-1", wordEvent("kid-1", "SUN", now))
	if err != nil {
		t.Fatalf("RunTransaction() error = %v", err)
	}
	if created.Version != 1 || created.Stars != 1 {
		t.Errorf("created = %+v", created)
	}

	got, err = repo.Get(ctx, "kid-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Version != 1 || got.Stars != 1 || !got.HasLearned("SUN") || got.UserID != "kid-1" {
		t.Errorf("Get() = %+v", got)
	}
}

func TestProgressRepositoryNoWrite(t *testing.T) {
	repo := NewProgressRepository(openTestDB(t), 5)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := repo.RunTransaction(ctx, "kid-1", wordEvent("kid-1", "SUN", now)); err != nil {
		t.Fatalf("RunTransaction() error = %v", err)
	}
	again, err := repo.RunTransaction(ctx, "kid-1", wordEvent("kid-1", "SUN", now))
	if err != nil {
		t.Fatalf("RunTransaction() error = %v", err)
	}
	if again.Version != 1 || again.Stars != 1 {
		t.Errorf("repeat word should not write, got %+v", again)
	}
}

func TestProgressRepositoryFnError(t *testing.T) {
	repo := NewProgressRepository(openTestDB(t), 5)
	boom := errors.New("boom")
	_, err := repo.RunTransaction(context.Background(), "kid-1", func(*models.Progress) (*models.Progress, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("RunTransaction() error = %v, want %v", err, boom)
	}
}

func TestProgressRepositoryConcurrentSameWord(t *testing.T) {
	repo := NewProgressRepository(openTestDB(t), 5)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := repo.RunTransaction(ctx, "kid-1", numberEvent("kid-1", now)); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.RunTransaction(ctx, "kid-1", wordEvent("kid-1", "CAT", now)); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("RunTransaction() error = %v", err)
	}

	got, err := repo.Get(ctx, "kid-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	// one star from the seeding number event, one from CAT
	if got.Stars != 2 {
		t.Errorf("Stars = %d, want 2", got.Stars)
	}
	if len(got.LearnedWords) != 1 {
		t.Errorf("LearnedWords = %v, want [CAT]", got.LearnedWords)
	}
}

func TestProgressRepositoryConcurrentNewUser(t *testing.T) {
	repo := NewProgressRepository(openTestDB(t), 10)
	ctx := context.Background()
	now := time.Now().UTC()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.RunTransaction(ctx, "kid-new", wordEvent("kid-new", "CAT", now)); err != nil {
				t.Errorf("RunTransaction() error = %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := repo.Get(ctx, "kid-new")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Stars != 1 || len(got.LearnedWords) != 1 {
		t.Errorf("got stars=%d words=%v, want 1 and [CAT]", got.Stars, got.LearnedWords)
	}
}

func TestProgressRepositoryNoLostUpdates(t *testing.T) {
	repo := NewProgressRepository(openTestDB(t), 50)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := repo.RunTransaction(ctx, "kid-1", numberEvent("kid-1", now)); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	const events = 6
	var wg sync.WaitGroup
	for i := 0; i < events; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.RunTransaction(ctx, "kid-1", numberEvent("kid-1", now)); err != nil {
				t.Errorf("RunTransaction() error = %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := repo.Get(ctx, "kid-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.DailyCounters[models.CounterNumbers].Count != events+1 {
		t.Errorf("numbers counter = %d, want %d", got.DailyCounters[models.CounterNumbers].Count, events+1)
	}
	if got.Version != events+1 {
		t.Errorf("Version = %d, want %d", got.Version, events+1)
	}
}

func TestProgressRepositoryContention(t *testing.T) {
	db := openTestDB(t)
	repo := NewProgressRepository(db, 2)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := repo.RunTransaction(ctx, "kid-1", numberEvent("kid-1", now)); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	// every attempt loses to a writer that bumps the version first
	_, err := repo.RunTransaction(ctx, "kid-1", func(current *models.Progress) (*models.Progress, error) {
		if _, err := db.ExecContext(ctx, "UPDATE user_progress SET version = version + 1 WHERE user_id = ?", "kid-1"); err != nil {
			return nil, err
		}
		return rewards.Apply(current, rewards.OnNumberAnswered(current, now)), nil
	})
	if !errors.Is(err, ErrContention) {
		t.Errorf("RunTransaction() error = %v, want ErrContention", err)
	}
}

func TestProgressRepositorySubscribe(t *testing.T) {
	repo := NewProgressRepository(openTestDB(t), 5)
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now().UTC()

	if _, err := repo.RunTransaction(ctx, "kid-1", numberEvent("kid-1", now)); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	sub, err := repo.Subscribe(ctx, "kid-1")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if got := receive(t, sub); got.Version != 1 {
		t.Errorf("initial snapshot version = %d, want 1", got.Version)
	}

	if _, err := repo.RunTransaction(ctx, "kid-1", wordEvent("kid-1", "SUN", now)); err != nil {
		t.Fatalf("RunTransaction() error = %v", err)
	}
	if got := receive(t, sub); got.Version != 2 || !got.HasLearned("SUN") {
		t.Errorf("pushed snapshot = %+v", got)
	}

	cancel()
	deadline := time.After(2 * time.Second)
	for repo.SubscriberCount("kid-1") != 0 {
		select {
		case <-deadline:
			t.Fatal("subscription not torn down after context cancel")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestProgressRepositorySubscribeSeesOtherWriters(t *testing.T) {
	db := openTestDB(t)
	server := NewProgressRepository(db, 3)
	server.SetPollInterval(10 * time.Millisecond)
	other := NewProgressRepository(db, 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	now := time.Now().UTC()

	if _, err := server.RunTransaction(ctx, "kid-1", numberEvent("kid-1", now)); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	sub, err := server.Subscribe(ctx, "kid-1")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if got := receive(t, sub); got.Version != 1 {
		t.Fatalf("initial snapshot version = %d, want 1", got.Version)
	}

	if _, err := other.RunTransaction(ctx, "kid-1", wordEvent("kid-1", "MOON", now)); err != nil {
		t.Fatalf("RunTransaction() error = %v", err)
	}
	got := receive(t, sub)
	if got.Version != 2 || got.Stars != 2 || !got.HasLearned("MOON") {
		t.Errorf("pushed snapshot = version %d stars %d learned %v, want version 2 stars 2 with MOON",
			got.Version, got.Stars, got.LearnedWords)
	}

	sub.Close()
}

func TestProgressRepositoryListPutDelete(t *testing.T) {
	repo := NewProgressRepository(openTestDB(t), 5)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, id := range []string{"b-kid", "a-kid"} {
		p := rewards.NewProgress(models.Identity{UserID: id}, now)
		p.Stars = 10
		if err := repo.Put(ctx, p); err != nil {
			t.Fatalf("Put(%s) error = %v", id, err)
		}
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 2 || all[0].UserID != "a-kid" || all[0].Stars != 10 {
		t.Errorf("List() = %+v", all)
	}

	if err := repo.Delete(ctx, "a-kid"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if got, _ := repo.Get(ctx, "a-kid"); got != nil {
		t.Errorf("Get() after delete = %+v", got)
	}
}
