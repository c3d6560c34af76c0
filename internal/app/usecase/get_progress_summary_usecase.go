package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fardannozami/healthsync/internal/app/store"
	"github.com/fardannozami/healthsync/internal/app/streak"
	"github.com/fardannozami/healthsync/internal/domain"
)

type ProgressSummary struct {
	Date   string
	Name   string
	Streak domain.StreakState
	Status streak.Status

	CaloriesIn       int
	CaloriesBurned   int
	CalorieGoal      int
	WaterMl          int
	WaterGoalMl      int
	ExerciseMinutes  int
	Adherence7       float64
	Adherence30      float64
	PerfectStreak    domain.StreakState
	Badges           []domain.Badge
	LastSyncedAt     time.Time
	PendingSyncCount int
}

type GetProgressSummaryUsecase struct {
	store *store.Store
	now   func() time.Time
}

// NewGetProgressSummaryUsecase uses time.Now when now is nil.
func NewGetProgressSummaryUsecase(st *store.Store, now func() time.Time) *GetProgressSummaryUsecase {
	if now == nil {
		now = time.Now
	}
	return &GetProgressSummaryUsecase{store: st, now: now}
}

func (uc *GetProgressSummaryUsecase) Execute(ctx context.Context) (ProgressSummary, error) {
	if err := ctx.Err(); err != nil {
		return ProgressSummary{}, err
	}
	st := uc.store.State()
	today := domain.DateKey(uc.now())

	sum := ProgressSummary{
		Date:          today,
		Name:          st.User.Name,
		Streak:        st.Streak,
		Status:        streak.StatusOn(st.Streak, today),
		CalorieGoal:   st.User.DailyCalorieGoal,
		WaterGoalMl:   st.User.WaterGoalMl,
		Adherence7:    streak.AdherenceRate(st.Medication.History, 7),
		Adherence30:   streak.AdherenceRate(st.Medication.History, streak.HistoryCap),
		PerfectStreak: st.Medication.PerfectStreak,
		LastSyncedAt:  st.LastSyncedAt,
	}

	if day, ok := st.Logs[today]; ok {
		for _, m := range day.Meals {
			sum.CaloriesIn += m.Calories
		}
		sum.WaterMl = day.WaterMl
	}
	if day, ok := st.ExerciseLogs[today]; ok {
		for _, e := range day.Exercises {
			sum.CaloriesBurned += e.CaloriesBurned
			sum.ExerciseMinutes += e.DurationMin
		}
	}

	for _, b := range st.Badges {
		if b.Unlocked() {
			sum.Badges = append(sum.Badges, b)
		}
	}
	sort.Slice(sum.Badges, func(i, j int) bool {
		return sum.Badges[i].UnlockedAt.Before(sum.Badges[j].UnlockedAt)
	})

	for _, s := range st.Sync {
		if s == domain.SyncPending {
			sum.PendingSyncCount++
		}
	}
	return sum, nil
}

// String renders the summary for the terminal.
func (s ProgressSummary) String() string {
	sb := strings.Builder{}
	name := s.Name
	if name == "" {
		name = "you"
	}
	sb.WriteString(fmt.Sprintf("Progress for %s (%s)\n\n", name, s.Date))

	switch s.Status {
	case streak.StatusActive:
		sb.WriteString(fmt.Sprintf("Streak: %d days, best %d 🔥\n", s.Streak.Current, s.Streak.Longest))
	case streak.StatusLost:
		sb.WriteString(fmt.Sprintf("Streak lost, best %d 💔\n", s.Streak.Longest))
	default:
		sb.WriteString("No streak yet, log a meal to start one\n")
	}

	sb.WriteString(fmt.Sprintf("Calories: %d in, %d burned", s.CaloriesIn, s.CaloriesBurned))
	if s.CalorieGoal > 0 {
		sb.WriteString(fmt.Sprintf(" (goal %d)", s.CalorieGoal))
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Water: %d ml", s.WaterMl))
	if s.WaterGoalMl > 0 {
		sb.WriteString(fmt.Sprintf(" / %d ml", s.WaterGoalMl))
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Exercise: %d min\n", s.ExerciseMinutes))

	sb.WriteString(fmt.Sprintf("\nMedication adherence: %.0f%% (7d), %.0f%% (30d)\n", s.Adherence7*100, s.Adherence30*100))
	sb.WriteString(fmt.Sprintf("Perfect days in a row: %d, best %d\n", s.PerfectStreak.Current, s.PerfectStreak.Longest))

	if len(s.Badges) > 0 {
		sb.WriteString("\nBadges:\n")
		for i, b := range s.Badges {
			sb.WriteString(fmt.Sprintf("%d. %s (%s)\n", i+1, b.Title, b.UnlockedAt.Format("02-01-2006")))
		}
	}

	if s.LastSyncedAt.IsZero() {
		sb.WriteString("\nNever synced")
	} else {
		sb.WriteString(fmt.Sprintf("\nLast synced %s", s.LastSyncedAt.Format(time.RFC3339)))
	}
	if s.PendingSyncCount > 0 {
		sb.WriteString(fmt.Sprintf(", %d change(s) pending", s.PendingSyncCount))
	}
	return sb.String()
}
