package streak_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/fardannozami/healthsync/internal/app/streak"
	"github.com/fardannozami/healthsync/internal/domain"
)

// =============================================================================
// DAILY ROLLOVER TESTS
// =============================================================================
//
// Rollover Rules:
// 1. First run only records today as processed
// 2. A new calendar day archives {total, taken} of the previous day
// 3. Perfect day ⇔ total > 0 && taken == total
// 4. History keeps the 30 most recent days
// 5. Running twice on the same day is a no-op
//
// =============================================================================

func TestRollover_FirstRunMarksToday(t *testing.T) {
	res := streak.Rollover(domain.NewMedicationState(), "2024-01-01", 2)
	if !res.Changed || res.Archived != nil {
		t.Fatalf("First run: expected change without archive, got %+v", res)
	}
	if res.State.LastProcessedDate != "2024-01-01" {
		t.Errorf("Expected LastProcessedDate=2024-01-01, got %s", res.State.LastProcessedDate)
	}
}

func TestRollover_ArchivesPerfectDay(t *testing.T) {
	m := domain.NewMedicationState()
	m.LastProcessedDate = "2024-01-01"
	m.TakenToday = map[string]bool{"a@08:00": true, "a@20:00": true}

	res := streak.Rollover(m, "2024-01-02", 2)
	if res.Archived == nil {
		t.Fatal("Expected archived day")
	}
	want := domain.AdherenceDay{Date: "2024-01-01", TotalDoses: 2, TakenDoses: 2, Perfect: true}
	if *res.Archived != want {
		t.Errorf("Expected %+v, got %+v", want, *res.Archived)
	}
	if len(res.State.TakenToday) != 0 {
		t.Errorf("Taken set must be cleared, got %v", res.State.TakenToday)
	}
	if res.State.PerfectStreak.Current != 1 {
		t.Errorf("Expected perfect streak 1, got %d", res.State.PerfectStreak.Current)
	}
}

func TestRollover_GapArchivesOnlyLastProcessedDay(t *testing.T) {
	m := domain.NewMedicationState()
	m.LastProcessedDate = "2024-01-01"
	m.TakenToday = map[string]bool{"a@08:00": true}

	res := streak.Rollover(m, "2024-01-05", 1)
	if len(res.State.History) != 1 {
		t.Fatalf("Expected only the last processed day in history, got %+v", res.State.History)
	}
	if res.State.History[0].Date != "2024-01-01" {
		t.Errorf("Expected archived date 2024-01-01, got %s", res.State.History[0].Date)
	}
	if res.State.LastProcessedDate != "2024-01-05" {
		t.Errorf("Expected last processed 2024-01-05, got %s", res.State.LastProcessedDate)
	}
}

func TestRollover_ZeroScheduledIsNotPerfect(t *testing.T) {
	m := domain.NewMedicationState()
	m.LastProcessedDate = "2024-01-01"
	m.PerfectStreak = domain.StreakState{Current: 3, Longest: 3, LastLoggedDate: "2023-12-31"}

	res := streak.Rollover(m, "2024-01-02", 0)
	if res.Archived == nil || res.Archived.Perfect {
		t.Fatalf("Zero scheduled doses must not count as perfect, got %+v", res.Archived)
	}
	if res.State.PerfectStreak.Current != 0 || res.State.PerfectStreak.Longest != 3 {
		t.Errorf("Expected perfect streak 0/3, got %+v", res.State.PerfectStreak)
	}
}

func TestRollover_SameDayTwiceIsNoop(t *testing.T) {
	m := domain.NewMedicationState()
	m.LastProcessedDate = "2024-01-01"
	m.TakenToday = map[string]bool{"a@08:00": true}

	first := streak.Rollover(m, "2024-01-02", 1)
	second := streak.Rollover(first.State, "2024-01-02", 1)

	if second.Changed || second.Archived != nil {
		t.Errorf("Second rollover on same day must be a no-op, got %+v", second)
	}
	if len(second.State.History) != 1 {
		t.Errorf("Expected exactly one archived day, got %d", len(second.State.History))
	}
}

func TestRollover_ClockMovedBackwardsIsNoop(t *testing.T) {
	m := domain.NewMedicationState()
	m.LastProcessedDate = "2024-01-05"
	res := streak.Rollover(m, "2024-01-04", 1)
	if res.Changed {
		t.Errorf("Earlier date must not roll over, got %+v", res)
	}
}

func TestRollover_ThirtyFiveDaysKeepsThirty(t *testing.T) {
	m := domain.NewMedicationState()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local)
	m.LastProcessedDate = domain.DateKey(start)

	evicted := 0
	for i := 1; i <= 35; i++ {
		res := streak.Rollover(m, domain.DateKey(start.AddDate(0, 0, i)), 1)
		evicted += len(res.Evicted)
		m = res.State
	}

	if len(m.History) != streak.HistoryCap {
		t.Fatalf("Expected %d history entries, got %d", streak.HistoryCap, len(m.History))
	}
	if evicted != 5 {
		t.Errorf("Expected 5 evicted entries, got %d", evicted)
	}
	if first := m.History[0].Date; first != domain.DateKey(start.AddDate(0, 0, 5)) {
		t.Errorf("Oldest entries must be evicted first, history starts at %s", first)
	}
}

func TestAppendHistory_ReplacesSameDate(t *testing.T) {
	h := []domain.AdherenceDay{{Date: "2024-01-01", TotalDoses: 2, TakenDoses: 1}}
	kept, evicted := streak.AppendHistory(h, domain.AdherenceDay{Date: "2024-01-01", TotalDoses: 2, TakenDoses: 2, Perfect: true}, 30)
	if len(kept) != 1 || !kept[0].Perfect || len(evicted) != 0 {
		t.Errorf("Expected single replaced entry, got kept=%+v evicted=%+v", kept, evicted)
	}
}

func TestAdherenceRate(t *testing.T) {
	var h []domain.AdherenceDay
	for i := 1; i <= 10; i++ {
		taken := 2
		if i <= 5 {
			taken = 0
		}
		h = append(h, domain.AdherenceDay{Date: fmt.Sprintf("2024-01-%02d", i), TotalDoses: 2, TakenDoses: taken})
	}
	if got := streak.AdherenceRate(h, 5); got != 1 {
		t.Errorf("Last 5 days: expected 1, got %v", got)
	}
	if got := streak.AdherenceRate(h, 10); got != 0.5 {
		t.Errorf("Last 10 days: expected 0.5, got %v", got)
	}
	if got := streak.AdherenceRate(nil, 7); got != 0 {
		t.Errorf("Empty history: expected 0, got %v", got)
	}
}

func TestEvaluateBadges_SetOnce(t *testing.T) {
	first := time.Date(2024, 1, 7, 9, 0, 0, 0, time.UTC)
	p := streak.Progress{Streak: domain.StreakState{Current: 7, Longest: 7, LastLoggedDate: "2024-01-07"}}

	unlocked := streak.EvaluateBadges(map[string]domain.Badge{}, p, first)
	badges := map[string]domain.Badge{}
	for _, b := range unlocked {
		badges[b.ID] = b
	}
	if !badges["first-log"].Unlocked() || !badges["streak-7"].Unlocked() {
		t.Fatalf("Expected first-log and streak-7, got %+v", badges)
	}
	if badges["streak-30"].Unlocked() {
		t.Errorf("streak-30 must stay locked")
	}

	again := streak.EvaluateBadges(badges, p, first.Add(24*time.Hour))
	if len(again) != 0 {
		t.Errorf("Already unlocked badges must not unlock again, got %+v", again)
	}
	if b := streak.Unlock(badges["streak-7"], first.Add(time.Hour)); !b.UnlockedAt.Equal(first) {
		t.Errorf("Unlock must keep the original timestamp, got %v", b.UnlockedAt)
	}
}
