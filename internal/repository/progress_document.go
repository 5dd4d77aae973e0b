package repository

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"quizzies/internal/models"
	"quizzies/internal/rewards"
)

// Document field names shared by every ledger store
const (
	fieldUsername             = "username"
	fieldProfileImageRef      = "profileImageRef"
	fieldStars                = "stars"
	fieldStreak               = "streak"
	fieldLastActivityDate     = "lastActivityDate"
	fieldLearnedWords         = "learnedWords"
	fieldDailyCounters        = "dailyCounters"
	fieldDailyChallenges      = "dailyChallenges"
	fieldUnlockedAchievements = "unlockedAchievements"
	fieldVersion              = "version"
	fieldUpdatedAt            = "updatedAt"
)

// EncodeDocument renders a ledger as a store document. Dates stay time.Time
// so document stores keep them as native timestamps.
func EncodeDocument(p *models.Progress) map[string]interface{} {
	counters := make(map[string]interface{}, len(p.DailyCounters))
	for kind, c := range p.DailyCounters {
		counters[string(kind)] = map[string]interface{}{
			"date":  c.Date.UTC(),
			"count": int64(c.Count),
		}
	}

	challenges := make([]interface{}, 0, len(p.DailyChallenges))
	for _, c := range p.DailyChallenges {
		challenges = append(challenges, map[string]interface{}{
			"templateId":  c.TemplateID,
			"title":       c.Title,
			"type":        string(c.Type),
			"progress":    int64(c.Progress),
			"goal":        int64(c.Goal),
			"reward":      int64(c.Reward),
			"isCompleted": c.Progress >= c.Goal,
		})
	}

	doc := map[string]interface{}{
		fieldUsername:             p.Username,
		fieldStars:                int64(p.Stars),
		fieldStreak:               int64(p.Streak),
		fieldLastActivityDate:     p.LastActivityDate.UTC(),
		fieldLearnedWords:         dedupe(p.LearnedWords),
		fieldDailyCounters:        counters,
		fieldDailyChallenges:      challenges,
		fieldUnlockedAchievements: dedupe(p.UnlockedAchievements),
		fieldVersion:              p.Version,
		fieldUpdatedAt:            p.UpdatedAt.UTC(),
	}
	if p.ProfileImageRef != "" {
		doc[fieldProfileImageRef] = p.ProfileImageRef
	}
	return doc
}

// DecodeDocument turns a store document into a ledger. Malformed fields fall
// back to their defaults one by one; their names are returned so callers can
// log the repair. now supplies the default day for missing dates.
func DecodeDocument(userID string, doc map[string]interface{}, now time.Time) (*models.Progress, []string) {
	var repaired []string
	fix := func(field string) { repaired = append(repaired, field) }

	p := &models.Progress{UserID: userID}

	if s, ok := doc[fieldUsername].(string); ok && strings.TrimSpace(s) != "" {
		p.Username = s
	} else {
		p.Username = rewards.DefaultUsername
		fix(fieldUsername)
	}

	if raw, present := doc[fieldProfileImageRef]; present && raw != nil {
		if s, ok := raw.(string); ok {
			p.ProfileImageRef = s
		} else {
			fix(fieldProfileImageRef)
		}
	}

	if n, ok := asInt(doc[fieldStars]); ok && n >= 0 {
		p.Stars = n
	} else {
		fix(fieldStars)
	}

	if n, ok := asInt(doc[fieldStreak]); ok && n >= 1 {
		p.Streak = n
	} else {
		p.Streak = 1
		fix(fieldStreak)
	}

	if t, ok := asTime(doc[fieldLastActivityDate]); ok {
		p.LastActivityDate = t
	} else {
		p.LastActivityDate = now.UTC()
		fix(fieldLastActivityDate)
	}

	if words, ok := asStrings(doc[fieldLearnedWords]); ok {
		p.LearnedWords = words
	} else {
		p.LearnedWords = []string{}
		fix(fieldLearnedWords)
	}

	if ids, ok := asStrings(doc[fieldUnlockedAchievements]); ok {
		p.UnlockedAchievements = ids
	} else {
		p.UnlockedAchievements = []string{}
		fix(fieldUnlockedAchievements)
	}

	counters, ok := decodeCounters(doc[fieldDailyCounters], now)
	if !ok {
		fix(fieldDailyCounters)
	}
	p.DailyCounters = counters

	if challenges, ok := decodeChallenges(doc[fieldDailyChallenges]); ok {
		p.DailyChallenges = challenges
	} else {
		p.DailyChallenges = rewards.InstantiateDefaultChallenges()
		fix(fieldDailyChallenges)
	}

	if v, ok := asInt64(doc[fieldVersion]); ok && v >= 0 {
		p.Version = v
	}
	if t, ok := asTime(doc[fieldUpdatedAt]); ok {
		p.UpdatedAt = t
	}

	return p, repaired
}

// MarshalDocument encodes a ledger as JSON for SQL storage
func MarshalDocument(p *models.Progress) (string, error) {
	data, err := json.Marshal(EncodeDocument(p))
	if err != nil {
		return "", fmt.Errorf("failed to marshal ledger document: %w", err)
	}
	return string(data), nil
}

// UnmarshalDocument decodes a JSON ledger. Only a document that is not a
// JSON object at all is an error; field-level damage is repaired.
func UnmarshalDocument(userID, data string, now time.Time) (*models.Progress, []string, error) {
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	var doc map[string]interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal ledger document: %w", err)
	}
	if doc == nil {
		return nil, nil, fmt.Errorf("failed to unmarshal ledger document: not an object")
	}
	p, repaired := DecodeDocument(userID, doc, now)
	return p, repaired, nil
}

func decodeCounters(raw interface{}, now time.Time) (map[models.CounterKind]models.DailyCounter, bool) {
	counters := rewards.DefaultCounters(now)
	m, ok := raw.(map[string]interface{})
	if !ok {
		return counters, false
	}
	clean := true
	for _, kind := range []models.CounterKind{models.CounterWords, models.CounterNumbers} {
		entry, present := m[string(kind)]
		if !present {
			continue
		}
		fields, ok := entry.(map[string]interface{})
		if !ok {
			clean = false
			continue
		}
		date, okDate := asTime(fields["date"])
		count, okCount := asInt(fields["count"])
		if !okDate || !okCount || count < 0 {
			clean = false
			continue
		}
		counters[kind] = models.DailyCounter{Date: rewards.DayOf(date), Count: count}
	}
	return counters, clean
}

func decodeChallenges(raw interface{}) ([]models.ChallengeProgress, bool) {
	items, ok := raw.([]interface{})
	if !ok || len(items) == 0 {
		return nil, false
	}
	titles := make(map[string]string)
	for _, t := range rewards.ChallengeTemplates() {
		titles[t.ID] = t.Title
	}

	out := make([]models.ChallengeProgress, 0, len(items))
	for _, item := range items {
		fields, ok := item.(map[string]interface{})
		if !ok {
			return nil, false
		}
		id, _ := fields["templateId"].(string)
		typ, _ := fields["type"].(string)
		progress, okProgress := asInt(fields["progress"])
		goal, okGoal := asInt(fields["goal"])
		reward, okReward := asInt(fields["reward"])
		if id == "" || !validChallengeType(typ) || !okProgress || !okGoal || !okReward ||
			progress < 0 || goal <= 0 || reward <= 0 {
			return nil, false
		}
		title, _ := fields["title"].(string)
		if title == "" {
			title = titles[id]
		}
		out = append(out, models.ChallengeProgress{
			TemplateID:  id,
			Title:       title,
			Type:        models.ChallengeType(typ),
			Progress:    progress,
			Goal:        goal,
			Reward:      reward,
			IsCompleted: progress >= goal,
		})
	}
	return out, true
}

func validChallengeType(t string) bool {
	switch models.ChallengeType(t) {
	case models.ChallengeLogin, models.ChallengeWords, models.ChallengeNumbers:
		return true
	}
	return false
}

func asInt(v interface{}) (int, bool) {
	n, ok := asInt64(v)
	if !ok || n > math.MaxInt32 || n < math.MinInt32 {
		return 0, false
	}
	return int(n), true
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

func asTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return time.Time{}, false
		}
		return t.UTC(), true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil || parsed.IsZero() {
			return time.Time{}, false
		}
		return parsed.UTC(), true
	}
	return time.Time{}, false
}

// asStrings accepts an array of strings, dropping duplicates. Any non-string
// element makes the whole array malformed.
func asStrings(v interface{}) ([]string, bool) {
	switch items := v.(type) {
	case []string:
		return dedupe(items), true
	case []interface{}:
		out := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return dedupe(out), true
	}
	return nil, false
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
