package streak_test

import (
	"fmt"
	"testing"

	"github.com/fardannozami/healthsync/internal/app/streak"
	"github.com/fardannozami/healthsync/internal/domain"
)

// =============================================================================
// STREAK LOGIC TESTS
// =============================================================================
//
// Streak Rules:
// 1. First log ever → Current = 1, Longest = 1
// 2. Log on the day after the last logged day → Current++
// 3. Miss a day then log → Current resets to 1, Longest preserved
// 4. Log the same day twice → unchanged
// 5. Backfill for a day before the last logged day → unchanged
//
// =============================================================================

func mustRecord(t *testing.T, s domain.StreakState, date string) domain.StreakState {
	t.Helper()
	next, err := streak.Record(s, date)
	if err != nil {
		t.Fatalf("Record(%s): unexpected error: %v", date, err)
	}
	return next
}

func TestStreak_FirstLog(t *testing.T) {
	s := mustRecord(t, domain.StreakState{}, "2024-01-01")
	if s.Current != 1 || s.Longest != 1 {
		t.Errorf("First log: expected 1/1, got %d/%d", s.Current, s.Longest)
	}
	if s.LastLoggedDate != "2024-01-01" {
		t.Errorf("First log: expected LastLoggedDate=2024-01-01, got %s", s.LastLoggedDate)
	}
}

func TestStreak_GapResetsCurrent(t *testing.T) {
	s := mustRecord(t, domain.StreakState{}, "2024-01-01")
	s = mustRecord(t, s, "2024-01-03")

	if s.Current != 1 {
		t.Errorf("Gap: expected Current=1, got %d", s.Current)
	}
	if s.Longest != 1 {
		t.Errorf("Gap: expected Longest=1, got %d", s.Longest)
	}
}

func TestStreak_SevenConsecutiveDays(t *testing.T) {
	s := domain.StreakState{}
	for day := 1; day <= 7; day++ {
		s = mustRecord(t, s, fmt.Sprintf("2024-01-%02d", day))
	}
	if s.Current != 7 || s.Longest != 7 {
		t.Errorf("Seven days: expected 7/7, got %d/%d", s.Current, s.Longest)
	}
}

func TestStreak_ConsecutiveAcrossMonthBoundary(t *testing.T) {
	s := mustRecord(t, domain.StreakState{}, "2024-02-28")
	s = mustRecord(t, s, "2024-02-29")
	s = mustRecord(t, s, "2024-03-01")
	if s.Current != 3 {
		t.Errorf("Leap boundary: expected Current=3, got %d", s.Current)
	}
}

func TestStreak_SameDayCountsOnce(t *testing.T) {
	s := mustRecord(t, domain.StreakState{}, "2024-01-01")
	s = mustRecord(t, s, "2024-01-02")
	before := s
	for i := 0; i < 5; i++ {
		s = mustRecord(t, s, "2024-01-02")
	}
	if s != before {
		t.Errorf("Same day: expected %+v, got %+v", before, s)
	}
}

func TestStreak_GapKeepsLongest(t *testing.T) {
	s := domain.StreakState{}
	for day := 1; day <= 5; day++ {
		s = mustRecord(t, s, fmt.Sprintf("2024-01-%02d", day))
	}
	s = mustRecord(t, s, "2024-01-10")
	s = mustRecord(t, s, "2024-01-11")

	if s.Current != 2 {
		t.Errorf("Expected Current=2, got %d", s.Current)
	}
	if s.Longest != 5 {
		t.Errorf("Expected Longest=5, got %d", s.Longest)
	}
}

func TestStreak_BackfillDoesNotDecrement(t *testing.T) {
	s := mustRecord(t, domain.StreakState{}, "2024-01-09")
	s = mustRecord(t, s, "2024-01-10")
	s = mustRecord(t, s, "2024-01-02")

	if s.Current != 2 || s.LastLoggedDate != "2024-01-10" {
		t.Errorf("Backfill: expected Current=2 at 2024-01-10, got %+v", s)
	}
}

func TestStreak_InvalidDate(t *testing.T) {
	s := domain.StreakState{Current: 3, Longest: 4, LastLoggedDate: "2024-01-01"}
	got, err := streak.Record(s, "01/02/2024")
	if err == nil {
		t.Fatal("Expected error for non-canonical date")
	}
	if got != s {
		t.Errorf("Invalid date must not change state, got %+v", got)
	}
}

func TestStreak_LongestNeverBelowCurrent(t *testing.T) {
	dates := []string{"2024-03-01", "2024-03-02", "2024-03-05", "2024-03-06", "2024-03-07", "2024-03-08", "2024-03-20"}
	s := domain.StreakState{}
	for _, d := range dates {
		s = mustRecord(t, s, d)
		if s.Longest < s.Current {
			t.Fatalf("After %s: Longest %d < Current %d", d, s.Longest, s.Current)
		}
	}
}

func TestStatusOn(t *testing.T) {
	s := domain.StreakState{Current: 4, Longest: 4, LastLoggedDate: "2024-01-10"}

	cases := map[string]streak.Status{
		"2024-01-10": streak.StatusActive,
		"2024-01-11": streak.StatusActive,
		"2024-01-12": streak.StatusLost,
	}
	for today, want := range cases {
		if got := streak.StatusOn(s, today); got != want {
			t.Errorf("StatusOn(%s): expected %s, got %s", today, want, got)
		}
	}
	if got := streak.StatusOn(domain.StreakState{}, "2024-01-10"); got != streak.StatusNone {
		t.Errorf("Empty streak: expected none, got %s", got)
	}
}
