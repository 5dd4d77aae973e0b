package rewards

import (
	"testing"
	"time"

	"quizzies/internal/models"
)

func TestNewProgress(t *testing.T) {
	tests := []struct {
		name     string
		identity models.Identity
		wantName string
	}{
		{"display name", models.Identity{UserID: "u1", DisplayName: "Maya"}, "Maya"},
		{"missing display name", models.Identity{UserID: "u2"}, DefaultUsername},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProgress(tt.identity, testDay)
			if p.Username != tt.wantName {
				t.Errorf("Username = %q, want %q", p.Username, tt.wantName)
			}
			if p.Stars != 0 || p.Streak != 1 {
				t.Errorf("stars=%d streak=%d, want 0 and 1", p.Stars, p.Streak)
			}
			if len(p.DailyChallenges) != len(ChallengeTemplates()) {
				t.Fatalf("challenges = %d, want %d", len(p.DailyChallenges), len(ChallengeTemplates()))
			}
			for _, c := range p.DailyChallenges {
				wantDone := c.Type == models.ChallengeLogin
				if c.IsCompleted != wantDone || c.IsCompleted != (c.Progress >= c.Goal) {
					t.Errorf("challenge %s = %+v", c.TemplateID, c)
				}
			}
			for _, kind := range []models.CounterKind{models.CounterWords, models.CounterNumbers} {
				if c := p.DailyCounters[kind]; c.Count != 0 || !c.Date.Equal(DayOf(testDay)) {
					t.Errorf("counter %s = %+v", kind, c)
				}
			}
		})
	}
}

func TestRolloverSameDay(t *testing.T) {
	p := newTestProgress()
	p.Stars = 7
	got, rolled := Rollover(p, testDay.Add(10*time.Hour))
	if rolled || got != p {
		t.Errorf("same-day rollover should short-circuit, rolled=%v", rolled)
	}
}

func TestRolloverNextDay(t *testing.T) {
	p := newTestProgress()
	p.Stars = 12
	p.Streak = 2
	p.LearnedWords = []string{"SUN"}
	p = Apply(p, OnNumberAnswered(p, testDay))

	next := testDay.AddDate(0, 0, 1).Add(3 * time.Hour)
	got, rolled := Rollover(p, next)
	if !rolled {
		t.Fatal("expected rollover")
	}
	if got.Streak != 3 {
		t.Errorf("Streak = %d, want 3", got.Streak)
	}
	if !got.HasAchievement("streak_3") {
		t.Error("streak_3 should unlock when the streak reaches 3")
	}
	if got.Stars != p.Stars || !got.HasLearned("SUN") {
		t.Error("stars and learned words must survive rollover")
	}
	if got.DailyCounters[models.CounterNumbers].Count != 0 {
		t.Errorf("numbers counter = %d, want 0", got.DailyCounters[models.CounterNumbers].Count)
	}
	if challenge(got, ChallengeMathMagician).Progress != 0 {
		t.Error("challenges should be regenerated")
	}
	if !got.LastActivityDate.Equal(next) {
		t.Errorf("LastActivityDate = %v, want %v", got.LastActivityDate, next)
	}
	if p.Streak != 2 || challenge(p, ChallengeMathMagician).Progress != 1 {
		t.Error("input snapshot mutated")
	}
}

func TestRolloverAfterGap(t *testing.T) {
	p := newTestProgress()
	p.Streak = 6
	got, rolled := Rollover(p, testDay.AddDate(0, 0, 3))
	if !rolled || got.Streak != 1 {
		t.Errorf("rolled=%v streak=%d, want true and 1", rolled, got.Streak)
	}
	if got.HasAchievement("streak_7") {
		t.Error("streak_7 must not unlock after a gap")
	}
}

func TestRolloverIgnoresEarlierClock(t *testing.T) {
	p := newTestProgress()
	got, rolled := Rollover(p, testDay.AddDate(0, 0, -1))
	if rolled || got != p {
		t.Error("a reference day before the last activity must not roll over")
	}
}

func TestCounterResetThroughRollover(t *testing.T) {
	p := newTestProgress()
	p.DailyCounters[models.CounterWords] = models.DailyCounter{Date: DayOf(testDay), Count: 5}

	now := testDay.AddDate(0, 0, 1)
	p, _ = Rollover(p, now)
	p = Apply(p, OnWordAnswered(p, "SUN", now))

	if got := p.DailyCounters[models.CounterWords].Count; got != 1 {
		t.Errorf("words counter = %d, want 1", got)
	}
}
