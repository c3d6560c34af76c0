package domain

import (
	"maps"
	"slices"
	"time"
)

type Collection string

const (
	CollectionProfile      Collection = "profile"
	CollectionLogs         Collection = "logs"
	CollectionPlans        Collection = "plans"
	CollectionExerciseLogs Collection = "exerciseLogs"
	CollectionReminders    Collection = "reminders"
	CollectionWeights      Collection = "weights"
	CollectionRecipeBook   Collection = "recipeBook"
	CollectionMedicines    Collection = "medicines"
	CollectionTakenRecords Collection = "takenRecords"
	CollectionAdherence    Collection = "adherence"
	CollectionBadges       Collection = "badges"
	CollectionMeta         Collection = "meta"
	CollectionSettings     Collection = "settings"
)

// RemoteCollections lists every per-identity collection that lives under
// users/{id}. The profile document itself is not part of it.
var RemoteCollections = []Collection{
	CollectionLogs,
	CollectionPlans,
	CollectionExerciseLogs,
	CollectionReminders,
	CollectionWeights,
	CollectionRecipeBook,
	CollectionMedicines,
	CollectionTakenRecords,
	CollectionAdherence,
	CollectionBadges,
	CollectionMeta,
}

// Document ids inside the meta collection.
const (
	MetaStreak     = "streak"
	MetaMedication = "medication"
)

type SyncState int

const (
	Unsynced SyncState = iota
	SyncPending
	Synced
)

func (s SyncState) String() string {
	switch s {
	case SyncPending:
		return "sync_pending"
	case Synced:
		return "synced"
	default:
		return "unsynced"
	}
}

// State is the full client-resident view of one identity's data.
type State struct {
	User         UserProfile
	Logs         map[string]DayLog
	Plans        map[string]DayPlan
	ExerciseLogs map[string]DayExerciseLog
	Reminders    map[string]Reminder
	Weights      map[string]WeightEntry
	RecipeBook   map[string]RecipeBookItem
	Medicines    map[string]Medicine
	TakenRecords map[string]TakenRecord
	Badges       map[string]Badge
	Streak       StreakState
	Medication   MedicationState
	Settings     Settings
	LastSyncedAt time.Time
	Sync         map[string]SyncState
}

func NewState() State {
	return State{
		Logs:         map[string]DayLog{},
		Plans:        map[string]DayPlan{},
		ExerciseLogs: map[string]DayExerciseLog{},
		Reminders:    map[string]Reminder{},
		Weights:      map[string]WeightEntry{},
		RecipeBook:   map[string]RecipeBookItem{},
		Medicines:    map[string]Medicine{},
		TakenRecords: map[string]TakenRecord{},
		Badges:       map[string]Badge{},
		Medication:   NewMedicationState(),
		Settings:     Settings{Theme: DefaultTheme},
		Sync:         map[string]SyncState{},
	}
}

const DefaultTheme = "system"

func NewMedicationState() MedicationState {
	return MedicationState{
		TakenToday: map[string]bool{},
		History:    []AdherenceDay{},
	}
}

// Normalize fills every nil collection and repairs entries whose key and
// embedded id disagree, so callers never need nil checks.
func (s State) Normalize() State {
	s.Logs = normalizeMap(s.Logs, func(k string, v DayLog) DayLog { return v.Normalize(k) })
	s.Plans = normalizeMap(s.Plans, func(k string, v DayPlan) DayPlan { return v.Normalize(k) })
	s.ExerciseLogs = normalizeMap(s.ExerciseLogs, func(k string, v DayExerciseLog) DayExerciseLog { return v.Normalize(k) })
	s.Reminders = normalizeMap(s.Reminders, func(k string, v Reminder) Reminder { return v.Normalize(k) })
	s.Weights = normalizeMap(s.Weights, func(k string, v WeightEntry) WeightEntry { v.Date = k; return v })
	s.RecipeBook = normalizeMap(s.RecipeBook, func(k string, v RecipeBookItem) RecipeBookItem { v.ID = k; return v })
	s.Medicines = normalizeMap(s.Medicines, func(k string, v Medicine) Medicine { return v.Normalize(k) })
	s.TakenRecords = normalizeMap(s.TakenRecords, func(k string, v TakenRecord) TakenRecord { v.ID = k; return v })
	s.Badges = normalizeMap(s.Badges, func(k string, v Badge) Badge { v.ID = k; return v })
	s.Medication = s.Medication.Normalize()
	s.Streak = s.Streak.Normalize()
	if s.Settings.Theme == "" {
		s.Settings.Theme = DefaultTheme
	}
	if s.Sync == nil {
		s.Sync = map[string]SyncState{}
	}
	return s
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	out.Logs = cloneMap(s.Logs, DayLog.Clone)
	out.Plans = cloneMap(s.Plans, DayPlan.Clone)
	out.ExerciseLogs = cloneMap(s.ExerciseLogs, DayExerciseLog.Clone)
	out.Reminders = cloneMap(s.Reminders, Reminder.Clone)
	out.Weights = maps.Clone(s.Weights)
	out.RecipeBook = maps.Clone(s.RecipeBook)
	out.Medicines = cloneMap(s.Medicines, Medicine.Clone)
	out.TakenRecords = maps.Clone(s.TakenRecords)
	out.Badges = maps.Clone(s.Badges)
	out.Medication = s.Medication.Clone()
	out.Sync = maps.Clone(s.Sync)
	return out.Normalize()
}

func (l DayLog) Normalize(date string) DayLog {
	if date != "" {
		l.Date = date
	}
	if l.Meals == nil {
		l.Meals = []MealEntry{}
	}
	if l.WaterMl < 0 {
		l.WaterMl = 0
	}
	return l
}

func (l DayLog) Clone() DayLog {
	l.Meals = slices.Clone(l.Meals)
	return l.Normalize("")
}

func (p DayPlan) Normalize(date string) DayPlan {
	if date != "" {
		p.Date = date
	}
	if p.Meals == nil {
		p.Meals = []MealEntry{}
	}
	return p
}

func (p DayPlan) Clone() DayPlan {
	p.Meals = slices.Clone(p.Meals)
	return p.Normalize("")
}

func (l DayExerciseLog) Normalize(date string) DayExerciseLog {
	if date != "" {
		l.Date = date
	}
	if l.Exercises == nil {
		l.Exercises = []ExerciseEntry{}
	}
	return l
}

func (l DayExerciseLog) Clone() DayExerciseLog {
	l.Exercises = slices.Clone(l.Exercises)
	return l.Normalize("")
}

func (r Reminder) Normalize(id string) Reminder {
	if id != "" {
		r.ID = id
	}
	if r.Days == nil {
		r.Days = []time.Weekday{}
	}
	return r
}

func (r Reminder) Clone() Reminder {
	r.Days = slices.Clone(r.Days)
	return r.Normalize("")
}

func (m Medicine) Normalize(id string) Medicine {
	if id != "" {
		m.ID = id
	}
	if m.Times == nil {
		m.Times = []string{}
	}
	if m.Stock < 0 {
		m.Stock = 0
	}
	return m
}

func (m Medicine) Clone() Medicine {
	m.Times = slices.Clone(m.Times)
	return m.Normalize("")
}

func (m MedicationState) Normalize() MedicationState {
	if m.TakenToday == nil {
		m.TakenToday = map[string]bool{}
	}
	if m.History == nil {
		m.History = []AdherenceDay{}
	}
	m.PerfectStreak = m.PerfectStreak.Normalize()
	return m
}

func (m MedicationState) Clone() MedicationState {
	m.TakenToday = maps.Clone(m.TakenToday)
	m.History = slices.Clone(m.History)
	return m.Normalize()
}

func (s StreakState) Normalize() StreakState {
	if s.Current < 0 {
		s.Current = 0
	}
	if s.Longest < s.Current {
		s.Longest = s.Current
	}
	return s
}

func normalizeMap[V any](in map[string]V, fix func(string, V) V) map[string]V {
	out := make(map[string]V, len(in))
	for k, v := range in {
		if k == "" {
			continue
		}
		out[k] = fix(k, v)
	}
	return out
}

func cloneMap[V any](in map[string]V, clone func(V) V) map[string]V {
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[k] = clone(v)
	}
	return out
}
