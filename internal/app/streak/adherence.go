package streak

import (
	"sort"

	"github.com/fardannozami/healthsync/internal/domain"
)

// HistoryCap bounds the rolling adherence history.
const HistoryCap = 30

type RolloverResult struct {
	State    domain.MedicationState
	Archived *domain.AdherenceDay
	Evicted  []domain.AdherenceDay
	Changed  bool
}

// Rollover closes out the last processed day once the calendar has moved on
// to today. totalDoses is the number of doses scheduled for that day.
//
// Reprocessing a day that was already processed is a no-op. After a gap of
// several days only the last processed day is archived; the days in between
// get no history entry and so do not count against AdherenceRate.
func Rollover(m domain.MedicationState, today string, totalDoses int) RolloverResult {
	m = m.Clone()
	if !domain.ValidDate(today) {
		return RolloverResult{State: m}
	}
	if m.LastProcessedDate == "" {
		m.LastProcessedDate = today
		return RolloverResult{State: m, Changed: true}
	}
	if today <= m.LastProcessedDate {
		return RolloverResult{State: m}
	}

	if totalDoses < 0 {
		totalDoses = 0
	}
	taken := countTaken(m.TakenToday)
	if taken > totalDoses {
		taken = totalDoses
	}
	day := domain.AdherenceDay{
		Date:       m.LastProcessedDate,
		TotalDoses: totalDoses,
		TakenDoses: taken,
		Perfect:    IsPerfect(totalDoses, taken),
	}

	var evicted []domain.AdherenceDay
	m.History, evicted = AppendHistory(m.History, day, HistoryCap)

	if day.Perfect {
		if next, err := Record(m.PerfectStreak, day.Date); err == nil {
			m.PerfectStreak = next
		}
	} else {
		m.PerfectStreak.Current = 0
	}

	m.TakenToday = map[string]bool{}
	m.LastProcessedDate = today
	return RolloverResult{State: m, Archived: &day, Evicted: evicted, Changed: true}
}

// IsPerfect never treats a day without scheduled doses as perfect.
func IsPerfect(total, taken int) bool {
	return total > 0 && taken == total
}

// AppendHistory inserts day (replacing an existing record for the same date),
// keeps the history ordered by date and evicts the oldest records beyond limit.
func AppendHistory(history []domain.AdherenceDay, day domain.AdherenceDay, limit int) (kept, evicted []domain.AdherenceDay) {
	out := make([]domain.AdherenceDay, 0, len(history)+1)
	for _, h := range history {
		if h.Date != day.Date {
			out = append(out, h)
		}
	}
	out = append(out, day)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })

	if limit > 0 && len(out) > limit {
		cut := len(out) - limit
		evicted = append(evicted, out[:cut]...)
		out = append([]domain.AdherenceDay(nil), out[cut:]...)
	}
	return out, evicted
}

// AdherenceRate is taken/total over the most recent n history records.
func AdherenceRate(history []domain.AdherenceDay, n int) float64 {
	if n <= 0 || len(history) == 0 {
		return 0
	}
	start := 0
	if len(history) > n {
		start = len(history) - n
	}
	var total, taken int
	for _, h := range history[start:] {
		total += h.TotalDoses
		taken += h.TakenDoses
	}
	if total == 0 {
		return 0
	}
	return float64(taken) / float64(total)
}

// ScheduledDoses counts the doses scheduled per day across medicines.
func ScheduledDoses(medicines map[string]domain.Medicine) int {
	total := 0
	for _, m := range medicines {
		total += len(m.Times)
	}
	return total
}

func DoseKey(medicineID, at string) string {
	return medicineID + "@" + at
}

func countTaken(taken map[string]bool) int {
	n := 0
	for _, ok := range taken {
		if ok {
			n++
		}
	}
	return n
}
