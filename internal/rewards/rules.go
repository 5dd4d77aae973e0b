package rewards

import (
	"strings"
	"time"

	"quizzies/internal/models"
)

// Delta describes the ledger changes implied by one event. It is computed
// from a snapshot without I/O and applied with Apply.
type Delta struct {
	Stars        int
	LearnedWords []string
	// Counters holds the new absolute value of each touched counter
	Counters map[models.CounterKind]models.DailyCounter
	// Challenges replaces the whole challenge list when non-nil
	Challenges   []models.ChallengeProgress
	Achievements []string
}

// IsEmpty reports whether applying d would change nothing
func (d Delta) IsEmpty() bool {
	return d.Stars == 0 && len(d.LearnedWords) == 0 && len(d.Counters) == 0 &&
		d.Challenges == nil && len(d.Achievements) == 0
}

// Merge composes o on top of d. Stars add up, sets union, and o's counters
// and challenge list win.
func (d Delta) Merge(o Delta) Delta {
	out := Delta{
		Stars:        d.Stars + o.Stars,
		LearnedWords: union(d.LearnedWords, o.LearnedWords),
		Challenges:   d.Challenges,
		Achievements: union(d.Achievements, o.Achievements),
	}
	if len(d.Counters)+len(o.Counters) > 0 {
		out.Counters = make(map[models.CounterKind]models.DailyCounter, len(d.Counters)+len(o.Counters))
		for k, v := range d.Counters {
			out.Counters[k] = v
		}
		for k, v := range o.Counters {
			out.Counters[k] = v
		}
	}
	if o.Challenges != nil {
		out.Challenges = o.Challenges
	}
	return out
}

// NormalizeWord upper-cases and trims a spelling answer
func NormalizeWord(word string) string {
	return strings.ToUpper(strings.TrimSpace(word))
}

// NextCount is the value a counter takes after one more event on now's day.
// A counter stored for another day counts as zero.
func NextCount(snapshot *models.Progress, kind models.CounterKind, now time.Time) int {
	c, ok := snapshot.DailyCounters[kind]
	if !ok || IsNewDay(c.Date, now) {
		return 1
	}
	return c.Count + 1
}

// OnWordAnswered rewards the first correct answer for a word. Words already
// learned earn nothing, for the life of the account.
func OnWordAnswered(snapshot *models.Progress, word string, now time.Time) Delta {
	word = NormalizeWord(word)
	if word == "" || snapshot.HasLearned(word) {
		return Delta{}
	}

	count := NextCount(snapshot, models.CounterWords, now)
	d := Delta{
		Stars:        1,
		LearnedWords: []string{word},
		Counters: map[models.CounterKind]models.DailyCounter{
			models.CounterWords: {Date: DayOf(now), Count: count},
		},
		Achievements: CheckAchievementUnlocks(snapshot, models.CategoryWords, count),
	}
	return d.Merge(OnChallengeEvent(snapshot, models.ChallengeWords))
}

// OnNumberAnswered rewards every solved number problem
func OnNumberAnswered(snapshot *models.Progress, now time.Time) Delta {
	count := NextCount(snapshot, models.CounterNumbers, now)
	d := Delta{
		Stars: 1,
		Counters: map[models.CounterKind]models.DailyCounter{
			models.CounterNumbers: {Date: DayOf(now), Count: count},
		},
		Achievements: CheckAchievementUnlocks(snapshot, models.CategoryNumbers, count),
	}
	return d.Merge(OnChallengeEvent(snapshot, models.ChallengeNumbers))
}

// OnChallengeEvent advances the first incomplete challenge of the given type,
// in list order. Completing it adds its reward to the delta's stars.
func OnChallengeEvent(snapshot *models.Progress, challengeType models.ChallengeType) Delta {
	for i, c := range snapshot.DailyChallenges {
		if c.Type != challengeType || c.IsCompleted {
			continue
		}
		challenges := append([]models.ChallengeProgress(nil), snapshot.DailyChallenges...)
		c.Progress++
		var d Delta
		if c.Progress >= c.Goal {
			c.IsCompleted = true
			d.Stars = c.Reward
		}
		challenges[i] = c
		d.Challenges = challenges
		return d
	}
	return Delta{}
}

// CheckAchievementUnlocks returns the achievements of category whose required
// count equals currentCount and that are not yet unlocked. The match is exact:
// a counter that skips the required value never unlocks it.
func CheckAchievementUnlocks(snapshot *models.Progress, category models.AchievementCategory, currentCount int) []string {
	var ids []string
	for _, a := range achievements {
		if a.Category == category && a.RequiredCount == currentCount && !snapshot.HasAchievement(a.ID) {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// Apply returns a new snapshot with d applied; snapshot is left untouched
func Apply(snapshot *models.Progress, d Delta) *models.Progress {
	next := snapshot.Clone()
	next.Stars += d.Stars
	next.LearnedWords = union(next.LearnedWords, d.LearnedWords)
	next.UnlockedAchievements = union(next.UnlockedAchievements, d.Achievements)
	if len(d.Counters) > 0 && next.DailyCounters == nil {
		next.DailyCounters = make(map[models.CounterKind]models.DailyCounter, len(d.Counters))
	}
	for k, v := range d.Counters {
		next.DailyCounters[k] = v
	}
	if d.Challenges != nil {
		next.DailyChallenges = append([]models.ChallengeProgress(nil), d.Challenges...)
	}
	return next
}

// union appends the members of b missing from a, preserving order
func union(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, s := range b {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
