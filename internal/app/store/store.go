// Package store holds the client-resident cache of every collection owned by
// the signed-in identity.
//
// The Store is created once at process start with New, rehydrated with Open,
// and passed explicitly to the components that need it. Clear drops all data
// on logout. The remote document store stays the source of truth; the Store
// is only ever refreshed from it, never the other way round.
package store

import (
	"encoding/json"
	"maps"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fardannozami/healthsync/internal/domain"
)

// Persister stores the serialized snapshot under one fixed key.
type Persister interface {
	Load() ([]byte, error)
	Save(blob []byte) error
	Clear() error
}

type Store struct {
	mu    sync.RWMutex
	state domain.State

	// Write versions per sync key. Never part of a snapshot and never reset,
	// so a version handed out before Clear cannot match one handed out after.
	versions map[string]uint64

	persister Persister
	log       *zap.Logger
}

func New(persister Persister, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		state:     domain.NewState(),
		versions:  map[string]uint64{},
		persister: persister,
		log:       logger.Named("store"),
	}
}

// Open rehydrates the store from the persister. A missing or unreadable blob
// leaves the store at its default empty state.
func (s *Store) Open() {
	if s.persister == nil {
		return
	}
	blob, err := s.persister.Load()
	if err != nil {
		s.log.Warn("load snapshot failed, starting empty", zap.Error(err))
		return
	}
	st := restoreState(blob, s.log)
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Restore replaces the whole state with the one encoded in blob. Empty or
// malformed input yields the default empty state; Restore never fails.
func (s *Store) Restore(blob []byte) {
	st := restoreState(blob, s.log)
	s.mu.Lock()
	s.state = st
	s.persistLocked()
	s.mu.Unlock()
}

func restoreState(blob []byte, log *zap.Logger) domain.State {
	if len(blob) == 0 {
		return domain.NewState()
	}
	st, err := Decode(blob)
	if err != nil {
		log.Warn("malformed snapshot, using defaults", zap.Error(err))
		return domain.NewState()
	}
	return st
}

// Snapshot serializes the current state through ToDocument.
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(ToDocument(s.state))
}

// Document returns the serializable view of the current state.
func (s *Store) Document() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ToDocument(s.state)
}

// State returns a deep copy of everything the store holds.
func (s *Store) State() domain.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Clear resets the store to its empty state and erases the persisted blob.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.state = domain.NewState()
	var err error
	if s.persister != nil {
		err = s.persister.Clear()
	}
	s.mu.Unlock()
	return err
}

// ResetDerived zeroes the streak and medication counters.
func (s *Store) ResetDerived() {
	s.mutate(func(st *domain.State) bool {
		st.Streak = domain.StreakState{}
		st.Medication = domain.NewMedicationState()
		return true
	})
}

func (s *Store) Profile() domain.UserProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.User
}

func (s *Store) SetProfile(p domain.UserProfile) {
	s.mutate(func(st *domain.State) bool {
		st.User = p
		return true
	})
}

func (s *Store) Streak() domain.StreakState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Streak
}

func (s *Store) SetStreak(v domain.StreakState) {
	s.mutate(func(st *domain.State) bool {
		st.Streak = v.Normalize()
		return true
	})
}

func (s *Store) Medication() domain.MedicationState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Medication.Clone()
}

func (s *Store) SetMedication(m domain.MedicationState) {
	m = m.Clone()
	s.mutate(func(st *domain.State) bool {
		st.Medication = m
		return true
	})
}

func (s *Store) Settings() domain.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Settings
}

func (s *Store) SetSettings(v domain.Settings) {
	if v.Theme == "" {
		v.Theme = domain.DefaultTheme
	}
	s.mutate(func(st *domain.State) bool {
		st.Settings = v
		return true
	})
}

func (s *Store) LastSyncedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.LastSyncedAt
}

func (s *Store) SetLastSyncedAt(t time.Time) {
	s.mutate(func(st *domain.State) bool {
		st.LastSyncedAt = t
		return true
	})
}

// MarkPending moves key to SyncPending and returns the write version that a
// later MarkSynced must present.
func (s *Store) MarkPending(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[key]++
	s.setSyncLocked(key, domain.SyncPending)
	return s.versions[key]
}

// MarkSynced moves key to Synced unless a newer local write happened since
// version was issued.
func (s *Store) MarkSynced(key string, version uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.versions[key] != version {
		return
	}
	s.setSyncLocked(key, domain.Synced)
}

func (s *Store) MarkUnsynced(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[key]++
	s.setSyncLocked(key, domain.Unsynced)
}

// MarkRemoteSnapshot records that keys now mirror the remote copy exactly.
func (s *Store) MarkRemoteSnapshot(keys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		s.versions[key]++
		s.setSyncLocked(key, domain.Synced)
	}
}

func (s *Store) SyncState(key string) domain.SyncState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Sync[key]
}

func (s *Store) setSyncLocked(key string, state domain.SyncState) {
	next := maps.Clone(s.state.Sync)
	if next == nil {
		next = map[string]domain.SyncState{}
	}
	next[key] = state
	s.state.Sync = next
}

// mutate applies fn under the write lock and, when fn reports a change,
// persists the full snapshot.
func (s *Store) mutate(fn func(st *domain.State) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := fn(&s.state)
	if changed {
		s.persistLocked()
	}
	return changed
}

func (s *Store) persistLocked() {
	if s.persister == nil {
		return
	}
	blob, err := json.Marshal(ToDocument(s.state))
	if err != nil {
		s.log.Error("encode snapshot", zap.Error(err))
		return
	}
	if err := s.persister.Save(blob); err != nil {
		s.log.Warn("persist snapshot", zap.Error(err))
	}
}
