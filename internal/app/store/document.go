package store

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/fardannozami/healthsync/internal/domain"
)

// Document is the serialized form of a State. It is the persisted snapshot
// and also the export file format.
type Document struct {
	User         domain.UserProfile               `json:"user"`
	Logs         map[string]domain.DayLog         `json:"logs"`
	Plans        map[string]domain.DayPlan        `json:"plans"`
	ExerciseLogs map[string]domain.DayExerciseLog `json:"exerciseLogs"`
	Reminders    []domain.Reminder                `json:"reminders"`
	Theme        string                           `json:"theme"`
	LastSyncedAt *time.Time                       `json:"lastSyncedAt"`
	ExportedAt   *time.Time                       `json:"exportedAt,omitempty"`

	Weights      map[string]domain.WeightEntry    `json:"weights"`
	RecipeBook   map[string]domain.RecipeBookItem `json:"recipeBook"`
	Medicines    map[string]domain.Medicine       `json:"medicines"`
	TakenRecords map[string]domain.TakenRecord    `json:"takenRecords"`
	Badges       map[string]domain.Badge          `json:"badges"`
	Streak       domain.StreakState               `json:"streak"`
	Medication   domain.MedicationState           `json:"medication"`

	APIKey string `json:"apiKey,omitempty"`
}

// ToDocument is the explicit filter applied before anything leaves memory.
// Sync bookkeeping and write versions are never serialized.
func ToDocument(st domain.State) Document {
	st = st.Clone()
	reminders := make([]domain.Reminder, 0, len(st.Reminders))
	for _, r := range st.Reminders {
		reminders = append(reminders, r)
	}
	sort.Slice(reminders, func(i, j int) bool { return reminders[i].ID < reminders[j].ID })

	doc := Document{
		User:         st.User,
		Logs:         st.Logs,
		Plans:        st.Plans,
		ExerciseLogs: st.ExerciseLogs,
		Reminders:    reminders,
		Theme:        st.Settings.Theme,
		Weights:      st.Weights,
		RecipeBook:   st.RecipeBook,
		Medicines:    st.Medicines,
		TakenRecords: st.TakenRecords,
		Badges:       st.Badges,
		Streak:       st.Streak,
		Medication:   st.Medication,
		APIKey:       st.Settings.APIKey,
	}
	if !st.LastSyncedAt.IsZero() {
		t := st.LastSyncedAt
		doc.LastSyncedAt = &t
	}
	return doc
}

func (d Document) State() domain.State {
	st := domain.NewState()
	st.User = d.User
	st.Logs = d.Logs
	st.Plans = d.Plans
	st.ExerciseLogs = d.ExerciseLogs
	st.Reminders = make(map[string]domain.Reminder, len(d.Reminders))
	for _, r := range d.Reminders {
		if r.ID != "" {
			st.Reminders[r.ID] = r
		}
	}
	st.Weights = d.Weights
	st.RecipeBook = d.RecipeBook
	st.Medicines = d.Medicines
	st.TakenRecords = d.TakenRecords
	st.Badges = d.Badges
	st.Streak = d.Streak
	st.Medication = d.Medication
	st.Settings = domain.Settings{Theme: d.Theme, APIKey: d.APIKey}
	if d.LastSyncedAt != nil {
		st.LastSyncedAt = *d.LastSyncedAt
	}
	return st.Normalize()
}

// Decode parses a persisted blob. Callers that must never fail use Restore.
func Decode(blob []byte) (domain.State, error) {
	var doc Document
	if err := json.Unmarshal(blob, &doc); err != nil {
		return domain.NewState(), err
	}
	return doc.State(), nil
}
