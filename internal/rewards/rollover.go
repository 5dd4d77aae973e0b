package rewards

import (
	"strings"
	"time"

	"quizzies/internal/models"
)

// DefaultUsername is shown until the user picks a name
const DefaultUsername = "Player"

// NewProgress builds the ledger for a user seen for the first time
func NewProgress(identity models.Identity, now time.Time) *models.Progress {
	username := strings.TrimSpace(identity.DisplayName)
	if username == "" {
		username = DefaultUsername
	}
	return &models.Progress{
		UserID:               identity.UserID,
		Username:             username,
		ProfileImageRef:      identity.PhotoRef,
		Stars:                0,
		Streak:               1,
		LastActivityDate:     now.UTC(),
		LearnedWords:         []string{},
		DailyCounters:        DefaultCounters(now),
		DailyChallenges:      InstantiateDefaultChallenges(),
		UnlockedAchievements: []string{},
	}
}

// Rollover starts a new day on snapshot when now is on a later UTC day than
// its last activity: the streak is recomputed, challenges are regenerated,
// counters are zeroed and streak achievements are checked. It reports false
// and returns snapshot unchanged on the same day, or when now is earlier
// than the last activity.
func Rollover(snapshot *models.Progress, now time.Time) (*models.Progress, bool) {
	if !IsNewDay(snapshot.LastActivityDate, now) || DayOf(now).Before(DayOf(snapshot.LastActivityDate)) {
		return snapshot, false
	}

	next := snapshot.Clone()
	next.Streak = ComputeStreak(snapshot.LastActivityDate, now, snapshot.Streak)
	next.LastActivityDate = now.UTC()
	next.DailyChallenges = InstantiateDefaultChallenges()
	next.DailyCounters = DefaultCounters(now)
	next.UnlockedAchievements = union(next.UnlockedAchievements,
		CheckAchievementUnlocks(next, models.CategoryStreak, next.Streak))
	return next, true
}
