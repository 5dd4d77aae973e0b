package models

import "time"

// CounterKind names a per-day activity counter
type CounterKind string

const (
	CounterWords   CounterKind = "words"
	CounterNumbers CounterKind = "numbers"
)

// ChallengeType is the kind of activity that advances a daily challenge
type ChallengeType string

const (
	ChallengeLogin   ChallengeType = "login"
	ChallengeWords   ChallengeType = "words"
	ChallengeNumbers ChallengeType = "numbers"
)

// AchievementCategory groups achievements by the counter that drives them
type AchievementCategory string

const (
	CategoryWords   AchievementCategory = "words"
	CategoryNumbers AchievementCategory = "numbers"
	CategoryStreak  AchievementCategory = "streak"
)

// Progress is one user's ledger: stars, streak, counters, challenges and achievements.
// Values handed out by the service are snapshots and must not be mutated; use Clone.
type Progress struct {
	UserID               string                       `json:"userId"`
	Username             string                       `json:"username"`
	ProfileImageRef      string                       `json:"profileImageRef,omitempty"`
	Stars                int                          `json:"stars"`
	Streak               int                          `json:"streak"`
	LastActivityDate     time.Time                    `json:"lastActivityDate"`
	LearnedWords         []string                     `json:"learnedWords"`
	DailyCounters        map[CounterKind]DailyCounter `json:"dailyCounters"`
	DailyChallenges      []ChallengeProgress          `json:"dailyChallenges"`
	UnlockedAchievements []string                     `json:"unlockedAchievements"`
	Version              int64                        `json:"version"`
	UpdatedAt            time.Time                    `json:"updatedAt"`
}

// DailyCounter counts activity on a single UTC day
type DailyCounter struct {
	Date  time.Time `json:"date"`
	Count int       `json:"count"`
}

// ChallengeProgress tracks one daily challenge for the current day.
// IsCompleted is always Progress >= Goal.
type ChallengeProgress struct {
	TemplateID  string        `json:"templateId"`
	Title       string        `json:"title"`
	Type        ChallengeType `json:"type"`
	Progress    int           `json:"progress"`
	Goal        int           `json:"goal"`
	Reward      int           `json:"reward"`
	IsCompleted bool          `json:"isCompleted"`
}

// Achievement is a static catalog entry unlocked when its category counter equals RequiredCount
type Achievement struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	Description   string              `json:"description"`
	Category      AchievementCategory `json:"category"`
	RequiredCount int                 `json:"requiredCount"`
}

// ChallengeTemplate is a static catalog entry for a daily challenge
type ChallengeTemplate struct {
	ID     string        `json:"id"`
	Title  string        `json:"title"`
	Type   ChallengeType `json:"type"`
	Goal   int           `json:"goal"`
	Reward int           `json:"reward"`
}

// HasLearned reports whether word is in the learned set
func (p *Progress) HasLearned(word string) bool {
	for _, w := range p.LearnedWords {
		if w == word {
			return true
		}
	}
	return false
}

// HasAchievement reports whether id is unlocked
func (p *Progress) HasAchievement(id string) bool {
	for _, a := range p.UnlockedAchievements {
		if a == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy
func (p *Progress) Clone() *Progress {
	if p == nil {
		return nil
	}
	c := *p
	c.LearnedWords = append([]string(nil), p.LearnedWords...)
	c.UnlockedAchievements = append([]string(nil), p.UnlockedAchievements...)
	c.DailyChallenges = append([]ChallengeProgress(nil), p.DailyChallenges...)
	if p.DailyCounters != nil {
		c.DailyCounters = make(map[CounterKind]DailyCounter, len(p.DailyCounters))
		for k, v := range p.DailyCounters {
			c.DailyCounters[k] = v
		}
	}
	return &c
}
