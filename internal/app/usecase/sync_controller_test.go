package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fardannozami/healthsync/internal/app/store"
	"github.com/fardannozami/healthsync/internal/app/usecase"
	"github.com/fardannozami/healthsync/internal/domain"
)

// feedsPerIdentity is the profile feed plus one per remote collection.
var feedsPerIdentity = 1 + len(domain.RemoteCollections)

// =============================================================================
// PULL TESTS
// =============================================================================

func TestPull_AppliesRemoteSnapshot(t *testing.T) {
	now := day("2024-01-02", 10, 0)
	h := newHarness(t, now)
	h.identity.Set("alice")

	h.remote.put("users/alice", domain.UserProfile{Name: "Alice", DailyCalorieGoal: 1800})
	h.remote.put("users/alice/logs/2024-01-01", domain.DayLog{Date: "2024-01-01", Meals: []domain.MealEntry{{ID: "m1", Name: "soup"}}})
	h.remote.put("users/alice/weights/2024-01-01", domain.WeightEntry{Date: "2024-01-01", WeightKg: 70})
	h.remote.put("users/alice/meta/streak", domain.StreakState{Current: 3, Longest: 5, LastLoggedDate: "2024-01-01"})

	require.NoError(t, h.controller.Pull(context.Background()))

	p := h.store.Profile()
	assert.Equal(t, "alice", p.ID)
	assert.Equal(t, "Alice", p.Name)
	got, ok := store.Get(h.store, store.Logs, "2024-01-01")
	require.True(t, ok)
	assert.Equal(t, "soup", got.Meals[0].Name)
	assert.Equal(t, domain.Synced, h.store.SyncState("logs/2024-01-01"))
	assert.Equal(t, domain.StreakState{Current: 3, Longest: 5, LastLoggedDate: "2024-01-01"}, h.store.Streak())
	assert.Equal(t, now, h.store.LastSyncedAt())
}

func TestPull_PartialFailureKeepsCache(t *testing.T) {
	h := newHarness(t, day("2024-01-02", 10, 0))
	store.Put(h.store, store.Weights, "2023-12-31", domain.WeightEntry{Date: "2023-12-31", WeightKg: 80})
	h.identity.Set("alice")

	h.remote.put("users/alice/logs/2024-01-01", domain.DayLog{Date: "2024-01-01"})
	h.remote.failList["users/alice/weights"] = errors.New("timeout")

	err := h.controller.Pull(context.Background())
	require.Error(t, err)

	_, ok := store.Get(h.store, store.Weights, "2023-12-31")
	assert.True(t, ok, "failed collection keeps its cached slice")
	_, ok = store.Get(h.store, store.Logs, "2024-01-01")
	assert.True(t, ok, "other collections still apply")
	assert.True(t, h.store.LastSyncedAt().IsZero())
}

func TestPull_CoercesMalformedDocuments(t *testing.T) {
	h := newHarness(t, day("2024-01-02", 10, 0))
	h.identity.Set("alice")
	h.remote.putRaw("users/alice/logs/2024-01-01", `"definitely not a day log"`)
	h.remote.putRaw("users/alice/medicines/med-1", `{"name": 42}`)

	require.NoError(t, h.controller.Pull(context.Background()))

	got, ok := store.Get(h.store, store.Logs, "2024-01-01")
	require.True(t, ok)
	assert.Equal(t, "2024-01-01", got.Date)
	assert.NotNil(t, got.Meals)
	med, ok := store.Get(h.store, store.Medicines, "med-1")
	require.True(t, ok)
	assert.Equal(t, "med-1", med.ID)
}

func TestPull_RequiresIdentity(t *testing.T) {
	h := newHarness(t, day("2024-01-02", 10, 0))
	assert.ErrorIs(t, h.controller.Pull(context.Background()), domain.ErrNoIdentity)
}

func TestPull_AdherenceHistoryCapped(t *testing.T) {
	h := newHarness(t, day("2024-03-01", 10, 0))
	h.identity.Set("alice")
	start := day("2024-01-01", 0, 0)
	for i := 0; i < 35; i++ {
		date := domain.DateKey(start.AddDate(0, 0, i))
		h.remote.put("users/alice/adherence/"+date, domain.AdherenceDay{Date: date, TotalDoses: 1, TakenDoses: 1, Perfect: true})
	}

	require.NoError(t, h.controller.Pull(context.Background()))

	hist := h.store.Medication().History
	require.Len(t, hist, 30)
	assert.Equal(t, "2024-01-06", hist[0].Date)
}

// =============================================================================
// IDENTITY SWITCH TESTS
// =============================================================================
//
// Rules:
// 1. All feeds for the previous identity are closed before any feed for the
//    next identity is opened
// 2. A late event for the previous identity never reaches the store
// 3. Local data of a different owner is cleared
//
// =============================================================================

func TestIdentityChange_SubscribesEveryCollection(t *testing.T) {
	h := newHarness(t, day("2024-01-02", 10, 0))

	require.NoError(t, h.controller.HandleIdentityChange(context.Background(), "alice"))

	assert.Equal(t, feedsPerIdentity, h.remote.activeCount())
	assert.Equal(t, feedsPerIdentity, h.registry.Len())
	assert.Contains(t, h.remote.activePaths(), "users/alice")
	assert.Contains(t, h.remote.activePaths(), "users/alice/logs")
}

func TestIdentityChange_SwitchTearsDownFirst(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, day("2024-01-02", 10, 0))

	require.NoError(t, h.controller.HandleIdentityChange(ctx, "alice"))
	_, err := h.gateway.UpsertMeal("2024-01-02", domain.MealEntry{Name: "alice lunch"})
	require.NoError(t, err)
	h.gateway.Wait()

	require.NoError(t, h.controller.HandleIdentityChange(ctx, "bob"))

	assert.Zero(t, h.remote.maxForeign, "a feed for alice was still open when bob subscribed")
	assert.Equal(t, feedsPerIdentity, h.remote.activeCount())
	for _, p := range h.remote.activePaths() {
		assert.Contains(t, p, "users/bob")
	}
	assert.Empty(t, store.All(h.store, store.Logs), "alice's data must not survive the switch")
	assert.Equal(t, "bob", h.store.Profile().ID)
}

func TestIdentityChange_LateEventFromPreviousIdentityDropped(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, day("2024-01-02", 10, 0))

	require.NoError(t, h.controller.HandleIdentityChange(ctx, "alice"))
	stale := h.remote.openedFor("users/alice/logs")
	require.Len(t, stale, 1)

	require.NoError(t, h.controller.HandleIdentityChange(ctx, "bob"))

	stale[0]([]domain.RemoteDoc{{ID: "2024-01-01", Data: []byte(`{"date":"2024-01-01","meals":[{"id":"x","name":"alice only"}]}`)}}, nil)

	assert.Empty(t, store.All(h.store, store.Logs))
}

func TestIdentityChange_SameOwnerKeepsCacheOnFailedPull(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, day("2024-01-02", 10, 0))
	h.store.SetProfile(domain.UserProfile{ID: "alice"})
	store.Put(h.store, store.Weights, "2024-01-01", domain.WeightEntry{WeightKg: 70})
	h.remote.failList["users/alice/weights"] = errors.New("offline")

	require.NoError(t, h.controller.HandleIdentityChange(ctx, "alice"))

	_, ok := store.Get(h.store, store.Weights, "2024-01-01")
	assert.True(t, ok)
}

func TestIdentityChange_SignOutClearsEverything(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, day("2024-01-02", 10, 0))

	require.NoError(t, h.controller.HandleIdentityChange(ctx, "alice"))
	require.NoError(t, h.gateway.SetWater("2024-01-02", 500))
	h.gateway.Wait()

	require.NoError(t, h.controller.HandleIdentityChange(ctx, ""))

	assert.Zero(t, h.remote.activeCount())
	assert.Zero(t, h.registry.Len())
	assert.Empty(t, store.All(h.store, store.Logs))
	assert.Empty(t, h.identity.Current())
}

func TestIdentityChange_SubscriptionFailureDegrades(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, day("2024-01-02", 10, 0))
	h.remote.put("users/alice/logs/2024-01-01", domain.DayLog{Date: "2024-01-01"})
	h.remote.failSubscribe = errors.New("listen refused")

	err := h.controller.HandleIdentityChange(ctx, "alice")
	require.Error(t, err)

	_, ok := store.Get(h.store, store.Logs, "2024-01-01")
	assert.True(t, ok, "pulled data is served even without live feeds")
	assert.Zero(t, h.registry.Len())
}

// =============================================================================
// LIVE FEED TESTS
// =============================================================================

// flushingRemote holds every Subscribe until two are in flight, and its
// handles deliver one last snapshot while closing, the way a polling or
// WebSocket feed finishes an in-flight delivery before Close returns.
type flushingRemote struct {
	*fakeRemote
	ready sync.WaitGroup
}

func (r *flushingRemote) Subscribe(path string, onChange domain.ChangeHandler) (domain.Disposable, error) {
	d, err := r.fakeRemote.Subscribe(path, onChange)
	if err != nil {
		return nil, err
	}
	r.ready.Done()
	r.ready.Wait()
	return domain.DisposableFunc(func() error {
		onChange([]domain.RemoteDoc{}, nil)
		return d.Close()
	}), nil
}

func TestLiveFeed_ConcurrentSubscribeSameCollection(t *testing.T) {
	h := newHarness(t, day("2024-01-02", 10, 0))
	remote := &flushingRemote{fakeRemote: h.remote}
	remote.ready.Add(2)
	controller := usecase.NewSyncController(h.store, remote, h.registry, h.identity, h.gateway, nil)
	h.identity.Set("alice")

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for range 2 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, controller.Subscribe(domain.CollectionLogs))
			}()
		}
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("concurrent Subscribe calls for one collection did not return")
	}
	assert.Equal(t, 1, h.registry.Len())
	assert.Equal(t, 1, h.remote.activeCount())
}

func TestLiveFeed_RemoteSnapshotReplacesSlice(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, day("2024-01-02", 10, 0))
	require.NoError(t, h.controller.HandleIdentityChange(ctx, "alice"))

	h.remote.put("users/alice/reminders/r1", domain.Reminder{ID: "r1", Title: "walk", Time: "07:00"})
	h.remote.Emit("users/alice/reminders")

	got, ok := store.Get(h.store, store.Reminders, "r1")
	require.True(t, ok)
	assert.Equal(t, "walk", got.Title)
}

func TestLiveFeed_ErrorKeepsCache(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, day("2024-01-02", 10, 0))
	require.NoError(t, h.controller.HandleIdentityChange(ctx, "alice"))
	store.Put(h.store, store.Weights, "2024-01-01", domain.WeightEntry{WeightKg: 70})

	handlers := h.remote.openedFor("users/alice/weights")
	require.Len(t, handlers, 1)
	handlers[0](nil, errors.New("permission denied"))

	_, ok := store.Get(h.store, store.Weights, "2024-01-01")
	assert.True(t, ok)
}

func TestLiveFeed_EchoedLogsAdvanceStreak(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, day("2024-01-02", 10, 0))
	require.NoError(t, h.controller.HandleIdentityChange(ctx, "alice"))

	h.remote.put("users/alice/logs/2024-01-01", domain.DayLog{Date: "2024-01-01", Meals: []domain.MealEntry{{ID: "a"}}})
	h.remote.put("users/alice/logs/2024-01-02", domain.DayLog{Date: "2024-01-02", Meals: []domain.MealEntry{{ID: "b"}}})
	h.remote.Emit("users/alice/logs")
	h.gateway.Wait()

	assert.Equal(t, 2, h.store.Streak().Current)
}

// =============================================================================
// SESSION TESTS
// =============================================================================

func TestSession_FollowsAuthenticator(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, day("2024-01-02", 10, 0))
	auth := &fakeAuth{}
	s := usecase.NewSession(auth, h.controller, nil)
	s.Start(ctx)

	auth.emit("alice")
	assert.Equal(t, "alice", h.identity.Current())
	assert.Equal(t, feedsPerIdentity, h.remote.activeCount())

	require.NoError(t, s.SignOut(ctx))
	assert.Equal(t, 1, auth.signedOut)
	assert.Zero(t, h.remote.activeCount())
	assert.Empty(t, h.identity.Current())

	require.NoError(t, s.Close())
	auth.emit("bob")
	assert.Empty(t, h.identity.Current(), "closed session ignores identity changes")
}
