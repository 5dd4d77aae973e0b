package rewards

import "time"

// DayOf truncates t to midnight of its UTC calendar day
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether a and b fall on the same UTC calendar day
func SameDay(a, b time.Time) bool {
	return !IsNewDay(a, b)
}

// IsNewDay reports whether reference falls on a different UTC calendar day
// than last. Time of day is ignored.
func IsNewDay(last, reference time.Time) bool {
	l, r := last.UTC(), reference.UTC()
	return l.Year() != r.Year() || l.YearDay() != r.YearDay()
}

// ComputeStreak returns the streak for a login on reference given the
// previous login on last. A login exactly one day later extends the streak,
// a same-day login leaves it unchanged and any larger gap restarts at 1.
func ComputeStreak(last, reference time.Time, previous int) int {
	lastDay, refDay := DayOf(last), DayOf(reference)
	switch {
	case lastDay.Equal(refDay):
		if previous < 1 {
			return 1
		}
		return previous
	case lastDay.AddDate(0, 0, 1).Equal(refDay):
		if previous < 1 {
			return 1
		}
		return previous + 1
	default:
		return 1
	}
}
