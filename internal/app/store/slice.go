package store

import (
	"maps"

	"github.com/fardannozami/healthsync/internal/domain"
)

// Slice describes one keyed collection inside the State so that the generic
// accessors below can read and replace it as a whole value.
type Slice[V any] struct {
	Collection domain.Collection
	get        func(*domain.State) map[string]V
	set        func(*domain.State, map[string]V)
	clone      func(V) V
	normalize  func(string, V) V
}

func identity[V any](v V) V { return v }

var (
	Logs = Slice[domain.DayLog]{
		Collection: domain.CollectionLogs,
		get:        func(s *domain.State) map[string]domain.DayLog { return s.Logs },
		set:        func(s *domain.State, m map[string]domain.DayLog) { s.Logs = m },
		clone:      domain.DayLog.Clone,
		normalize:  func(k string, v domain.DayLog) domain.DayLog { return v.Normalize(k) },
	}
	Plans = Slice[domain.DayPlan]{
		Collection: domain.CollectionPlans,
		get:        func(s *domain.State) map[string]domain.DayPlan { return s.Plans },
		set:        func(s *domain.State, m map[string]domain.DayPlan) { s.Plans = m },
		clone:      domain.DayPlan.Clone,
		normalize:  func(k string, v domain.DayPlan) domain.DayPlan { return v.Normalize(k) },
	}
	ExerciseLogs = Slice[domain.DayExerciseLog]{
		Collection: domain.CollectionExerciseLogs,
		get:        func(s *domain.State) map[string]domain.DayExerciseLog { return s.ExerciseLogs },
		set:        func(s *domain.State, m map[string]domain.DayExerciseLog) { s.ExerciseLogs = m },
		clone:      domain.DayExerciseLog.Clone,
		normalize:  func(k string, v domain.DayExerciseLog) domain.DayExerciseLog { return v.Normalize(k) },
	}
	Reminders = Slice[domain.Reminder]{
		Collection: domain.CollectionReminders,
		get:        func(s *domain.State) map[string]domain.Reminder { return s.Reminders },
		set:        func(s *domain.State, m map[string]domain.Reminder) { s.Reminders = m },
		clone:      domain.Reminder.Clone,
		normalize:  func(k string, v domain.Reminder) domain.Reminder { return v.Normalize(k) },
	}
	Weights = Slice[domain.WeightEntry]{
		Collection: domain.CollectionWeights,
		get:        func(s *domain.State) map[string]domain.WeightEntry { return s.Weights },
		set:        func(s *domain.State, m map[string]domain.WeightEntry) { s.Weights = m },
		clone:      identity[domain.WeightEntry],
		normalize:  func(k string, v domain.WeightEntry) domain.WeightEntry { v.Date = k; return v },
	}
	RecipeBook = Slice[domain.RecipeBookItem]{
		Collection: domain.CollectionRecipeBook,
		get:        func(s *domain.State) map[string]domain.RecipeBookItem { return s.RecipeBook },
		set:        func(s *domain.State, m map[string]domain.RecipeBookItem) { s.RecipeBook = m },
		clone:      identity[domain.RecipeBookItem],
		normalize:  func(k string, v domain.RecipeBookItem) domain.RecipeBookItem { v.ID = k; return v },
	}
	Medicines = Slice[domain.Medicine]{
		Collection: domain.CollectionMedicines,
		get:        func(s *domain.State) map[string]domain.Medicine { return s.Medicines },
		set:        func(s *domain.State, m map[string]domain.Medicine) { s.Medicines = m },
		clone:      domain.Medicine.Clone,
		normalize:  func(k string, v domain.Medicine) domain.Medicine { return v.Normalize(k) },
	}
	TakenRecords = Slice[domain.TakenRecord]{
		Collection: domain.CollectionTakenRecords,
		get:        func(s *domain.State) map[string]domain.TakenRecord { return s.TakenRecords },
		set:        func(s *domain.State, m map[string]domain.TakenRecord) { s.TakenRecords = m },
		clone:      identity[domain.TakenRecord],
		normalize:  func(k string, v domain.TakenRecord) domain.TakenRecord { v.ID = k; return v },
	}
	Badges = Slice[domain.Badge]{
		Collection: domain.CollectionBadges,
		get:        func(s *domain.State) map[string]domain.Badge { return s.Badges },
		set:        func(s *domain.State, m map[string]domain.Badge) { s.Badges = m },
		clone:      identity[domain.Badge],
		normalize:  func(k string, v domain.Badge) domain.Badge { v.ID = k; return v },
	}
)

// Get returns a deep copy of the value stored under key.
func Get[V any](s *Store, sl Slice[V], key string) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := sl.get(&s.state)[key]
	if !ok {
		var zero V
		return zero, false
	}
	return sl.clone(v), true
}

// All returns a deep copy of the whole collection.
func All[V any](s *Store, sl Slice[V]) map[string]V {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := sl.get(&s.state)
	out := make(map[string]V, len(src))
	for k, v := range src {
		out[k] = sl.clone(v)
	}
	return out
}

// Put replaces the whole value under key. The collection map itself is
// swapped rather than written in place, so earlier readers never observe a
// half-applied update.
func Put[V any](s *Store, sl Slice[V], key string, v V) {
	if key == "" {
		return
	}
	s.mutate(func(st *domain.State) bool {
		next := maps.Clone(sl.get(st))
		if next == nil {
			next = map[string]V{}
		}
		next[key] = sl.normalize(key, sl.clone(v))
		sl.set(st, next)
		return true
	})
}

// Remove deletes key and reports whether it was present.
func Remove[V any](s *Store, sl Slice[V], key string) bool {
	return s.mutate(func(st *domain.State) bool {
		cur := sl.get(st)
		if _, ok := cur[key]; !ok {
			return false
		}
		next := maps.Clone(cur)
		delete(next, key)
		sl.set(st, next)
		return true
	})
}

// Replace installs all as the complete new collection.
func Replace[V any](s *Store, sl Slice[V], all map[string]V) {
	next := make(map[string]V, len(all))
	for k, v := range all {
		if k == "" {
			continue
		}
		next[k] = sl.normalize(k, sl.clone(v))
	}
	s.mutate(func(st *domain.State) bool {
		sl.set(st, next)
		return true
	})
}
