package rewards

import (
	"time"

	"quizzies/internal/models"
)

// Challenge template ids
const (
	ChallengeDailyLogin   = "daily_login"
	ChallengeWordWizard   = "word_wizard"
	ChallengeMathMagician = "math_magician"
	ChallengeSpellingStar = "spelling_star"
	ChallengeMathWhiz     = "math_whiz"
)

var challengeTemplates = []models.ChallengeTemplate{
	{ID: ChallengeDailyLogin, Title: "Say hello today", Type: models.ChallengeLogin, Goal: 1, Reward: 5},
	{ID: ChallengeWordWizard, Title: "Learn 5 new words", Type: models.ChallengeWords, Goal: 5, Reward: 10},
	{ID: ChallengeMathMagician, Title: "Solve 10 numbers", Type: models.ChallengeNumbers, Goal: 10, Reward: 15},
	{ID: ChallengeSpellingStar, Title: "Learn 10 more words", Type: models.ChallengeWords, Goal: 10, Reward: 20},
	{ID: ChallengeMathWhiz, Title: "Solve 20 numbers", Type: models.ChallengeNumbers, Goal: 20, Reward: 25},
}

var achievements = []models.Achievement{
	{ID: "streak_3", Name: "3-Day Streak!", Description: "Logged in for 3 days in a row.", Category: models.CategoryStreak, RequiredCount: 3},
	{ID: "streak_7", Name: "Weekly Wiz!", Description: "Logged in for 7 days in a row.", Category: models.CategoryStreak, RequiredCount: 7},
	{ID: "streak_30", Name: "Monthly Master!", Description: "Logged in for a whole month!", Category: models.CategoryStreak, RequiredCount: 30},
	{ID: "words_5", Name: "Word Learner!", Description: "Learned 5 new words today.", Category: models.CategoryWords, RequiredCount: 5},
	{ID: "words_10", Name: "Word Whiz!", Description: "Learned 10 new words today.", Category: models.CategoryWords, RequiredCount: 10},
	{ID: "numbers_5", Name: "Math Whiz!", Description: "Solved 5 number problems today.", Category: models.CategoryNumbers, RequiredCount: 5},
	{ID: "numbers_10", Name: "Calculation King!", Description: "Solved 10 number problems today.", Category: models.CategoryNumbers, RequiredCount: 10},
}

// ChallengeTemplates returns a copy of the daily challenge catalog in catalog order
func ChallengeTemplates() []models.ChallengeTemplate {
	return append([]models.ChallengeTemplate(nil), challengeTemplates...)
}

// Achievements returns a copy of the achievement catalog
func Achievements() []models.Achievement {
	return append([]models.Achievement(nil), achievements...)
}

// FindAchievement looks up an achievement by id
func FindAchievement(id string) (models.Achievement, bool) {
	for _, a := range achievements {
		if a.ID == id {
			return a, true
		}
	}
	return models.Achievement{}, false
}

// InstantiateDefaultChallenges returns a fresh day of challenges. Login
// challenges start completed because signing in satisfies them; their
// reward is not granted.
func InstantiateDefaultChallenges() []models.ChallengeProgress {
	out := make([]models.ChallengeProgress, 0, len(challengeTemplates))
	for _, t := range challengeTemplates {
		c := models.ChallengeProgress{
			TemplateID: t.ID,
			Title:      t.Title,
			Type:       t.Type,
			Goal:       t.Goal,
			Reward:     t.Reward,
		}
		if t.Type == models.ChallengeLogin {
			c.Progress = t.Goal
			c.IsCompleted = true
		}
		out = append(out, c)
	}
	return out
}

// DefaultCounters returns zeroed counters for the day containing now
func DefaultCounters(now time.Time) map[models.CounterKind]models.DailyCounter {
	today := DayOf(now)
	return map[models.CounterKind]models.DailyCounter{
		models.CounterWords:   {Date: today, Count: 0},
		models.CounterNumbers: {Date: today, Count: 0},
	}
}
