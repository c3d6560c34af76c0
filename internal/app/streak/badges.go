package streak

import (
	"time"

	"github.com/fardannozami/healthsync/internal/domain"
)

type Progress struct {
	Streak     domain.StreakState
	Medication domain.MedicationState
}

type BadgeRule struct {
	ID     string
	Title  string
	Earned func(Progress) bool
}

var BadgeRules = []BadgeRule{
	{ID: "first-log", Title: "First Log", Earned: func(p Progress) bool { return p.Streak.Longest >= 1 }},
	{ID: "streak-7", Title: "One Week Streak", Earned: func(p Progress) bool { return p.Streak.Longest >= 7 }},
	{ID: "streak-30", Title: "Thirty Day Streak", Earned: func(p Progress) bool { return p.Streak.Longest >= 30 }},
	{ID: "perfect-day", Title: "Perfect Day", Earned: func(p Progress) bool { return p.Medication.PerfectStreak.Longest >= 1 }},
	{ID: "perfect-week", Title: "Perfect Week", Earned: func(p Progress) bool { return p.Medication.PerfectStreak.Longest >= 7 }},
}

// Unlock stamps b with at unless it is already unlocked.
func Unlock(b domain.Badge, at time.Time) domain.Badge {
	if b.Unlocked() {
		return b
	}
	b.UnlockedAt = at
	return b
}

// EvaluateBadges returns the badges newly unlocked by p. Badges that are
// already unlocked keep their original timestamp and are not returned.
func EvaluateBadges(current map[string]domain.Badge, p Progress, now time.Time) []domain.Badge {
	var unlocked []domain.Badge
	for _, rule := range BadgeRules {
		existing, ok := current[rule.ID]
		if ok && existing.Unlocked() {
			continue
		}
		if !rule.Earned(p) {
			continue
		}
		b := existing
		b.ID = rule.ID
		b.Title = rule.Title
		unlocked = append(unlocked, Unlock(b, now))
	}
	return unlocked
}
