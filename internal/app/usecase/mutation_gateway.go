package usecase

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fardannozami/healthsync/internal/app/store"
	"github.com/fardannozami/healthsync/internal/app/streak"
	"github.com/fardannozami/healthsync/internal/domain"
)

const defaultWriteTimeout = 15 * time.Second

type GatewayOption func(*MutationGateway)

func WithClock(now func() time.Time) GatewayOption {
	return func(g *MutationGateway) { g.now = now }
}

func WithIDGenerator(fn func() string) GatewayOption {
	return func(g *MutationGateway) { g.newID = fn }
}

func WithWriteTimeout(d time.Duration) GatewayOption {
	return func(g *MutationGateway) { g.writeTimeout = d }
}

// MutationGateway is the only path through which user edits reach the store.
//
// Every call applies its change to the local store before returning. The
// matching remote write is then issued in the background; if it fails the
// error is logged and the local value stays as it is. Remote writes for the
// same document are issued in call order, writes for different documents are
// not ordered relative to each other.
type MutationGateway struct {
	mu       sync.Mutex
	store    *store.Store
	remote   domain.DocumentStore
	identity *Identity
	log      *zap.Logger

	now          func() time.Time
	newID        func() string
	writeTimeout time.Duration

	writesMu sync.Mutex
	tails    map[string]chan struct{}
	inflight sync.WaitGroup
}

func NewMutationGateway(st *store.Store, remote domain.DocumentStore, identity *Identity, logger *zap.Logger, opts ...GatewayOption) *MutationGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &MutationGateway{
		store:        st,
		remote:       remote,
		identity:     identity,
		log:          logger.Named("gateway"),
		now:          time.Now,
		newID:        uuid.NewString,
		writeTimeout: defaultWriteTimeout,
		tails:        make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Wait blocks until every remote write issued so far has finished.
func (g *MutationGateway) Wait() {
	g.inflight.Wait()
}

// Drain is Wait bounded by ctx.
func (g *MutationGateway) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *MutationGateway) SaveProfile(p domain.UserProfile) domain.UserProfile {
	g.mu.Lock()
	defer g.mu.Unlock()

	if id := g.identity.Current(); id != "" {
		p.ID = id
	} else if p.ID == "" {
		p.ID = g.store.Profile().ID
	}
	p.UpdatedAt = g.now()
	g.store.SetProfile(p)
	g.writeDoc(domain.CollectionProfile, "", p, domain.MergeFields)
	return p
}

// UpsertMeal adds meal to the log of date, or replaces the entry with the
// same id. Applying the same id and payload again leaves the log unchanged
// apart from its UpdatedAt timestamp.
func (g *MutationGateway) UpsertMeal(date string, meal domain.MealEntry) (domain.MealEntry, error) {
	if err := checkDate(date); err != nil {
		return meal, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	day, _ := store.Get(g.store, store.Logs, date)
	day = day.Normalize(date)
	if meal.ID == "" {
		meal.ID = g.newID()
	}
	day.Meals, meal = upsertMeal(day.Meals, meal, now)
	day.UpdatedAt = now

	store.Put(g.store, store.Logs, date, day)
	g.writeDoc(domain.CollectionLogs, date, day, domain.ReplaceCollection)
	g.recordEntryLocked(date, now)
	return meal, nil
}

func (g *MutationGateway) RemoveMeal(date, mealID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	day, ok := store.Get(g.store, store.Logs, date)
	if !ok {
		return false
	}
	meals, removed := removeByID(day.Meals, mealID, func(m domain.MealEntry) string { return m.ID })
	if !removed {
		return false
	}
	day.Meals = meals
	day.UpdatedAt = g.now()
	store.Put(g.store, store.Logs, date, day)
	g.writeDoc(domain.CollectionLogs, date, day, domain.ReplaceCollection)
	return true
}

func (g *MutationGateway) SetWater(date string, ml int) error {
	if err := checkDate(date); err != nil {
		return err
	}
	if ml < 0 {
		return fmt.Errorf("water %d ml: %w", ml, domain.ErrInvalidInput)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	day, _ := store.Get(g.store, store.Logs, date)
	day = day.Normalize(date)
	day.WaterMl = ml
	day.UpdatedAt = g.now()
	store.Put(g.store, store.Logs, date, day)
	g.writeDoc(domain.CollectionLogs, date, day, domain.ReplaceCollection)
	return nil
}

func (g *MutationGateway) UpsertPlannedMeal(date string, meal domain.MealEntry) (domain.MealEntry, error) {
	if err := checkDate(date); err != nil {
		return meal, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	plan, _ := store.Get(g.store, store.Plans, date)
	plan = plan.Normalize(date)
	if meal.ID == "" {
		meal.ID = g.newID()
	}
	plan.Meals, meal = upsertMeal(plan.Meals, meal, now)
	plan.UpdatedAt = now
	store.Put(g.store, store.Plans, date, plan)
	g.writeDoc(domain.CollectionPlans, date, plan, domain.ReplaceCollection)
	return meal, nil
}

func (g *MutationGateway) RemovePlannedMeal(date, mealID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	plan, ok := store.Get(g.store, store.Plans, date)
	if !ok {
		return false
	}
	meals, removed := removeByID(plan.Meals, mealID, func(m domain.MealEntry) string { return m.ID })
	if !removed {
		return false
	}
	plan.Meals = meals
	plan.UpdatedAt = g.now()
	store.Put(g.store, store.Plans, date, plan)
	g.writeDoc(domain.CollectionPlans, date, plan, domain.ReplaceCollection)
	return true
}

func (g *MutationGateway) UpsertExercise(date string, e domain.ExerciseEntry) (domain.ExerciseEntry, error) {
	if err := checkDate(date); err != nil {
		return e, err
	}
	if e.DurationMin < 0 {
		return e, fmt.Errorf("exercise duration %d: %w", e.DurationMin, domain.ErrInvalidInput)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	day, _ := store.Get(g.store, store.ExerciseLogs, date)
	day = day.Normalize(date)
	if e.ID == "" {
		e.ID = g.newID()
	}
	day.Exercises, e = upsertExercise(day.Exercises, e, now)
	day.UpdatedAt = now

	store.Put(g.store, store.ExerciseLogs, date, day)
	g.writeDoc(domain.CollectionExerciseLogs, date, day, domain.ReplaceCollection)
	g.recordEntryLocked(date, now)
	return e, nil
}

func (g *MutationGateway) RemoveExercise(date, exerciseID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	day, ok := store.Get(g.store, store.ExerciseLogs, date)
	if !ok {
		return false
	}
	list, removed := removeByID(day.Exercises, exerciseID, func(e domain.ExerciseEntry) string { return e.ID })
	if !removed {
		return false
	}
	day.Exercises = list
	day.UpdatedAt = g.now()
	store.Put(g.store, store.ExerciseLogs, date, day)
	g.writeDoc(domain.CollectionExerciseLogs, date, day, domain.ReplaceCollection)
	return true
}

func (g *MutationGateway) SaveReminder(r domain.Reminder) (domain.Reminder, error) {
	if err := checkClock(r.Time); err != nil {
		return r, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if r.ID == "" {
		r.ID = g.newID()
	}
	r = r.Clone().Normalize(r.ID)
	r.UpdatedAt = g.now()
	store.Put(g.store, store.Reminders, r.ID, r)
	g.writeDoc(domain.CollectionReminders, r.ID, r, domain.ReplaceCollection)
	return r, nil
}

func (g *MutationGateway) DeleteReminder(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !store.Remove(g.store, store.Reminders, id) {
		return false
	}
	g.deleteDoc(domain.CollectionReminders, id)
	return true
}

// LogWeight records the weight for date, overwriting an earlier entry for
// the same date.
func (g *MutationGateway) LogWeight(date string, kg float64) error {
	if err := checkDate(date); err != nil {
		return err
	}
	if kg <= 0 {
		return fmt.Errorf("weight %.1f kg: %w", kg, domain.ErrInvalidInput)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	w := domain.WeightEntry{Date: date, WeightKg: kg, UpdatedAt: g.now()}
	store.Put(g.store, store.Weights, date, w)
	g.writeDoc(domain.CollectionWeights, date, w, domain.ReplaceCollection)
	return nil
}

func (g *MutationGateway) DeleteWeight(date string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !store.Remove(g.store, store.Weights, date) {
		return false
	}
	g.deleteDoc(domain.CollectionWeights, date)
	return true
}

// SaveRecipe stores item under its stable id. Saving the same id again keeps
// the original SavedAt.
func (g *MutationGateway) SaveRecipe(item domain.RecipeBookItem) (domain.RecipeBookItem, error) {
	if item.ID == "" {
		return item, fmt.Errorf("recipe id required: %w", domain.ErrInvalidInput)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := store.Get(g.store, store.RecipeBook, item.ID); ok && !existing.SavedAt.IsZero() {
		item.SavedAt = existing.SavedAt
	}
	if item.SavedAt.IsZero() {
		item.SavedAt = g.now()
	}
	store.Put(g.store, store.RecipeBook, item.ID, item)
	g.writeDoc(domain.CollectionRecipeBook, item.ID, item, domain.ReplaceCollection)
	return item, nil
}

func (g *MutationGateway) RemoveRecipe(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !store.Remove(g.store, store.RecipeBook, id) {
		return false
	}
	g.deleteDoc(domain.CollectionRecipeBook, id)
	return true
}

func (g *MutationGateway) SaveMedicine(m domain.Medicine) (domain.Medicine, error) {
	for _, at := range m.Times {
		if err := checkClock(at); err != nil {
			return m, err
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if m.ID == "" {
		m.ID = g.newID()
	}
	m = m.Clone().Normalize(m.ID)
	sort.Strings(m.Times)
	m.UpdatedAt = g.now()
	store.Put(g.store, store.Medicines, m.ID, m)
	g.writeDoc(domain.CollectionMedicines, m.ID, m, domain.ReplaceCollection)
	return m, nil
}

func (g *MutationGateway) DeleteMedicine(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	med, ok := store.Get(g.store, store.Medicines, id)
	if !ok {
		return false
	}
	store.Remove(g.store, store.Medicines, id)
	g.deleteDoc(domain.CollectionMedicines, id)

	m := g.store.Medication()
	changed := false
	for _, at := range med.Times {
		key := streak.DoseKey(id, at)
		if _, ok := m.TakenToday[key]; ok {
			delete(m.TakenToday, key)
			changed = true
		}
	}
	if changed {
		g.store.SetMedication(m)
		g.writeDoc(domain.CollectionMeta, domain.MetaMedication, toMedicationMeta(m), domain.MergeFields)
	}
	return true
}

// MarkDoseTaken marks the dose of medicineID scheduled at "HH:mm" as taken
// today. It reports false when the dose was already marked.
func (g *MutationGateway) MarkDoseTaken(medicineID, at string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.rolloverLocked(now)

	med, ok := store.Get(g.store, store.Medicines, medicineID)
	if !ok {
		return false, fmt.Errorf("medicine %s: %w", medicineID, domain.ErrNotFound)
	}
	if !slices.Contains(med.Times, at) {
		return false, fmt.Errorf("medicine %s has no dose at %s: %w", medicineID, at, domain.ErrInvalidInput)
	}

	m := g.store.Medication()
	key := streak.DoseKey(medicineID, at)
	if m.TakenToday[key] {
		return false, nil
	}
	m.TakenToday[key] = true
	g.store.SetMedication(m)
	g.writeDoc(domain.CollectionMeta, domain.MetaMedication, toMedicationMeta(m), domain.MergeFields)

	if med.Stock > 0 {
		med.Stock--
		med.UpdatedAt = now
		store.Put(g.store, store.Medicines, med.ID, med)
		g.writeDoc(domain.CollectionMedicines, med.ID, med, domain.ReplaceCollection)
	}

	rec := domain.TakenRecord{
		ID:         g.newID(),
		MedicineID: medicineID,
		Date:       domain.DateKey(now),
		Time:       at,
		TakenAt:    now,
	}
	store.Put(g.store, store.TakenRecords, rec.ID, rec)
	g.appendDoc(domain.CollectionTakenRecords, rec.ID, rec)
	return true, nil
}

// SetTheme and SetAPIKey only touch local settings.
func (g *MutationGateway) SetTheme(theme string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.store.Settings()
	s.Theme = theme
	g.store.SetSettings(s)
}

func (g *MutationGateway) SetAPIKey(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.store.Settings()
	s.APIKey = key
	g.store.SetSettings(s)
}

// ProcessDayRollover archives the previous day's adherence once the calendar
// date of now is past the last processed date. It reports whether anything
// changed; calling it again on the same day does nothing.
func (g *MutationGateway) ProcessDayRollover(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rolloverLocked(now)
}

// CatchUpStreak folds in logged days that arrived from the remote store and
// are newer than the last day the streak has seen.
func (g *MutationGateway) CatchUpStreak() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	today := domain.DateKey(now)
	last := g.store.Streak().LastLoggedDate

	seen := map[string]struct{}{}
	for date, day := range store.All(g.store, store.Logs) {
		if len(day.Meals) > 0 {
			seen[date] = struct{}{}
		}
	}
	for date, day := range store.All(g.store, store.ExerciseLogs) {
		if len(day.Exercises) > 0 {
			seen[date] = struct{}{}
		}
	}
	dates := make([]string, 0, len(seen))
	for date := range seen {
		if date > last && date <= today {
			dates = append(dates, date)
		}
	}
	sort.Strings(dates)
	for _, date := range dates {
		g.recordEntryLocked(date, now)
	}
}

func (g *MutationGateway) rolloverLocked(now time.Time) bool {
	medicines := store.All(g.store, store.Medicines)
	res := streak.Rollover(g.store.Medication(), domain.DateKey(now), streak.ScheduledDoses(medicines))
	if !res.Changed {
		return false
	}
	g.store.SetMedication(res.State)
	g.writeDoc(domain.CollectionMeta, domain.MetaMedication, toMedicationMeta(res.State), domain.MergeFields)
	if res.Archived != nil {
		g.writeDoc(domain.CollectionAdherence, res.Archived.Date, *res.Archived, domain.ReplaceCollection)
	}
	for _, old := range res.Evicted {
		g.deleteDoc(domain.CollectionAdherence, old.Date)
	}
	g.evaluateBadgesLocked(now)
	return true
}

func (g *MutationGateway) recordEntryLocked(date string, now time.Time) {
	if date > domain.DateKey(now) {
		return
	}
	cur := g.store.Streak()
	next, err := streak.Record(cur, date)
	if err != nil {
		g.log.Warn("streak update skipped", zap.String("date", date), zap.Error(err))
		return
	}
	if next == cur {
		return
	}
	g.store.SetStreak(next)
	g.writeDoc(domain.CollectionMeta, domain.MetaStreak, next, domain.MergeFields)
	g.evaluateBadgesLocked(now)
}

func (g *MutationGateway) evaluateBadgesLocked(now time.Time) {
	progress := streak.Progress{Streak: g.store.Streak(), Medication: g.store.Medication()}
	for _, b := range streak.EvaluateBadges(store.All(g.store, store.Badges), progress, now) {
		store.Put(g.store, store.Badges, b.ID, b)
		g.writeDoc(domain.CollectionBadges, b.ID, b, domain.ReplaceCollection)
		g.log.Info("badge unlocked", zap.String("badge", b.ID))
	}
}

type remoteOp func(ctx context.Context, remote domain.DocumentStore, identity string) error

func docPath(identity string, c domain.Collection, id string) string {
	if c == domain.CollectionProfile {
		return domain.UserPath(identity)
	}
	return domain.DocPath(identity, c, id)
}

func (g *MutationGateway) writeDoc(c domain.Collection, id string, value any, mode domain.WriteMode) {
	g.enqueue(syncKey(c, id), func(ctx context.Context, r domain.DocumentStore, identity string) error {
		return r.Write(ctx, docPath(identity, c, id), value, mode)
	})
}

func (g *MutationGateway) deleteDoc(c domain.Collection, id string) {
	g.enqueue(syncKey(c, id), func(ctx context.Context, r domain.DocumentStore, identity string) error {
		return r.Delete(ctx, docPath(identity, c, id))
	})
}

func (g *MutationGateway) appendDoc(c domain.Collection, localID string, value any) {
	g.enqueue(syncKey(c, localID), func(ctx context.Context, r domain.DocumentStore, identity string) error {
		_, err := r.Append(ctx, domain.CollectionPath(identity, c), value)
		return err
	})
}

// enqueue issues op in the background for the identity signed in right now.
// Without an identity the change stays local and the key remains Unsynced.
func (g *MutationGateway) enqueue(key string, op remoteOp) {
	identity := g.identity.Current()
	if identity == "" || g.remote == nil {
		g.store.MarkUnsynced(key)
		return
	}
	version := g.store.MarkPending(key)

	g.writesMu.Lock()
	prev := g.tails[key]
	done := make(chan struct{})
	g.tails[key] = done
	g.writesMu.Unlock()

	g.inflight.Add(1)
	go func() {
		defer g.inflight.Done()
		defer func() {
			close(done)
			g.writesMu.Lock()
			if g.tails[key] == done {
				delete(g.tails, key)
			}
			g.writesMu.Unlock()
		}()
		if prev != nil {
			<-prev
		}

		ctx, cancel := context.WithTimeout(context.Background(), g.writeTimeout)
		defer cancel()
		if err := op(ctx, g.remote, identity); err != nil {
			g.log.Warn("remote write failed, keeping local value",
				zap.String("key", key),
				zap.String("identity", identity),
				zap.Error(err))
			return
		}
		g.store.MarkSynced(key, version)
	}()
}

func upsertMeal(meals []domain.MealEntry, meal domain.MealEntry, now time.Time) ([]domain.MealEntry, domain.MealEntry) {
	out := slices.Clone(meals)
	for i := range out {
		if out[i].ID == meal.ID {
			if meal.LoggedAt.IsZero() {
				meal.LoggedAt = out[i].LoggedAt
			}
			out[i] = meal
			return out, meal
		}
	}
	if meal.LoggedAt.IsZero() {
		meal.LoggedAt = now
	}
	return append(out, meal), meal
}

func upsertExercise(list []domain.ExerciseEntry, e domain.ExerciseEntry, now time.Time) ([]domain.ExerciseEntry, domain.ExerciseEntry) {
	out := slices.Clone(list)
	for i := range out {
		if out[i].ID == e.ID {
			if e.LoggedAt.IsZero() {
				e.LoggedAt = out[i].LoggedAt
			}
			out[i] = e
			return out, e
		}
	}
	if e.LoggedAt.IsZero() {
		e.LoggedAt = now
	}
	return append(out, e), e
}

func removeByID[T any](list []T, id string, idOf func(T) string) ([]T, bool) {
	for i := range list {
		if idOf(list[i]) == id {
			out := make([]T, 0, len(list)-1)
			out = append(out, list[:i]...)
			return append(out, list[i+1:]...), true
		}
	}
	return list, false
}

func checkDate(date string) error {
	if !domain.ValidDate(date) {
		return fmt.Errorf("date %q: %w", date, domain.ErrInvalidInput)
	}
	return nil
}

func checkClock(at string) error {
	if _, err := time.Parse("15:04", at); err != nil {
		return fmt.Errorf("time %q: %w", at, domain.ErrInvalidInput)
	}
	return nil
}
