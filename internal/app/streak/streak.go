// Package streak derives date-sequence metrics (logging streaks, daily
// medication adherence and badges) from entry history. Every function is pure
// and safe to call from any goroutine.
package streak

import (
	"fmt"

	"github.com/fardannozami/healthsync/internal/domain"
)

// Record folds a logged entry on date into s.
//
// Same date as the last logged one: unchanged, so several entries on one day
// count once. Day after the last logged one: Current grows by one. Any other
// gap: Current restarts at 1. Dates older than LastLoggedDate are backfills and
// leave the streak untouched.
func Record(s domain.StreakState, date string) (domain.StreakState, error) {
	if !domain.ValidDate(date) {
		return s, fmt.Errorf("streak: record %q: %w", date, domain.ErrInvalidInput)
	}
	s = s.Normalize()

	if s.LastLoggedDate == date {
		return s, nil
	}
	if s.LastLoggedDate != "" && date < s.LastLoggedDate {
		return s, nil
	}

	yesterday, err := domain.AddDays(date, -1)
	if err != nil {
		return s, err
	}
	if s.LastLoggedDate == yesterday {
		s.Current++
	} else {
		s.Current = 1
	}
	if s.Current > s.Longest {
		s.Longest = s.Current
	}
	s.LastLoggedDate = date
	return s, nil
}

type Status string

const (
	StatusNone   Status = "none"
	StatusActive Status = "active"
	StatusLost   Status = "lost"
)

// StatusOn classifies a streak as seen on today. A streak whose last log was
// yesterday is still active because today can extend it.
func StatusOn(s domain.StreakState, today string) Status {
	if s.LastLoggedDate == "" || s.Current == 0 {
		return StatusNone
	}
	if s.LastLoggedDate == today {
		return StatusActive
	}
	if yesterday, err := domain.AddDays(today, -1); err == nil && s.LastLoggedDate == yesterday {
		return StatusActive
	}
	return StatusLost
}
