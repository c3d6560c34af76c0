package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fardannozami/healthsync/internal/app/store"
	"github.com/fardannozami/healthsync/internal/app/streak"
	"github.com/fardannozami/healthsync/internal/app/subscription"
	"github.com/fardannozami/healthsync/internal/domain"
)

// pullConcurrency bounds the number of collection reads in flight during Pull.
const pullConcurrency = 4

var errIdentityChanged = errors.New("identity changed during pull")

type ControllerOption func(*SyncController)

func WithControllerClock(now func() time.Time) ControllerOption {
	return func(c *SyncController) { c.now = now }
}

// SyncController refreshes the local store from the remote store and keeps
// live feeds open for the signed-in identity.
//
// Every remote snapshot is applied under applyMu after checking that the
// identity generation it was requested under is still current. Together with
// the teardown in HandleIdentityChange this keeps events for one identity out
// of another identity's store.
type SyncController struct {
	applyMu  sync.Mutex
	store    *store.Store
	remote   domain.RemoteStore
	registry *subscription.Registry
	identity *Identity
	gateway  *MutationGateway
	log      *zap.Logger
	now      func() time.Time
}

func NewSyncController(
	st *store.Store,
	remote domain.RemoteStore,
	registry *subscription.Registry,
	identity *Identity,
	gateway *MutationGateway,
	logger *zap.Logger,
	opts ...ControllerOption,
) *SyncController {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &SyncController{
		store:    st,
		remote:   remote,
		registry: registry,
		identity: identity,
		gateway:  gateway,
		log:      logger.Named("sync"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HandleIdentityChange reacts to sign-in, sign-out and account switches.
//
// Steps:
//  1. retire the current generation so in-flight events are dropped
//  2. close every live feed and verify none is left
//  3. clear local data when signing out or when another identity owned it
//  4. adopt id, pull, and open a feed per collection
//
// Pull failures are logged; the cached data stays usable.
func (c *SyncController) HandleIdentityChange(ctx context.Context, id string) error {
	prev := c.identity.Current()
	c.log.Info("identity changed", zap.String("from", prev), zap.String("to", id))

	c.applyMu.Lock()
	c.identity.Set("")
	c.applyMu.Unlock()

	if err := c.registry.TeardownAll(); err != nil {
		c.log.Warn("teardown reported errors", zap.Error(err))
	}
	if err := c.registry.EnsureEmpty(); err != nil {
		return err
	}

	owner := prev
	if owner == "" {
		owner = c.store.Profile().ID
	}
	if id == "" || (owner != "" && owner != id) {
		if err := c.store.Clear(); err != nil {
			c.log.Warn("clear local store", zap.Error(err))
		}
	}
	if id == "" {
		return nil
	}

	c.identity.Set(id)
	if p := c.store.Profile(); p.ID == "" {
		p.ID = id
		c.store.SetProfile(p)
	}

	if err := c.Pull(ctx); err != nil {
		c.log.Warn("initial pull incomplete, serving cached data", zap.Error(err))
	}
	return c.SubscribeAll()
}

// Pull reads the profile and every collection of the signed-in identity and
// replaces the matching local slices. Collections are fetched independently:
// one failing read leaves its slice untouched while the others are applied.
// LastSyncedAt only advances when every read succeeded.
func (c *SyncController) Pull(ctx context.Context) error {
	id, gen := c.identity.Snapshot()
	if id == "" {
		return domain.ErrNoIdentity
	}

	var (
		mu      sync.Mutex
		profile *domain.RemoteDoc
		results = make(map[domain.Collection][]domain.RemoteDoc, len(domain.RemoteCollections))
		errs    []error
	)
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(pullConcurrency)
	g.Go(func() error {
		doc, err := c.remote.Read(ctx, domain.UserPath(id))
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			fail(fmt.Errorf("pull profile: %w", err))
			return nil
		}
		mu.Lock()
		profile = &doc
		mu.Unlock()
		return nil
	})
	for _, col := range domain.RemoteCollections {
		g.Go(func() error {
			docs, err := c.remote.List(ctx, domain.CollectionPath(id, col))
			if err != nil {
				fail(fmt.Errorf("pull %s: %w", col, err))
				return nil
			}
			mu.Lock()
			results[col] = docs
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	c.applyMu.Lock()
	defer c.applyMu.Unlock()
	if c.identity.Generation() != gen {
		return fmt.Errorf("pull for %s: %w", id, errIdentityChanged)
	}

	if profile != nil {
		c.applyLocked(id, domain.CollectionProfile, []domain.RemoteDoc{*profile})
	}
	for _, col := range domain.RemoteCollections {
		if docs, ok := results[col]; ok {
			c.applyLocked(id, col, docs)
		}
	}
	if c.gateway != nil {
		c.gateway.CatchUpStreak()
	}

	if len(errs) > 0 {
		for _, err := range errs {
			c.log.Warn("pull failed, keeping cached slice", zap.Error(err))
		}
		return errors.Join(errs...)
	}
	c.store.SetLastSyncedAt(c.now())
	c.log.Debug("pull complete", zap.String("identity", id))
	return nil
}

// Subscribe opens a live feed for one collection of the signed-in identity.
func (c *SyncController) Subscribe(col domain.Collection) error {
	id, gen := c.identity.Snapshot()
	if id == "" {
		return domain.ErrNoIdentity
	}
	path := domain.CollectionPath(id, col)
	if col == domain.CollectionProfile {
		path = domain.UserPath(id)
	}
	// Closing may wait for an in-flight delivery, which needs applyMu, so
	// handles are never closed while it is held.
	if err := c.registry.Release(string(col)); err != nil {
		c.log.Warn("close previous feed", zap.String("collection", string(col)), zap.Error(err))
	}

	handle, err := c.remote.Subscribe(path, func(docs []domain.RemoteDoc, err error) {
		c.onChange(id, gen, col, docs, err)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", col, err)
	}

	var replaced domain.Disposable
	c.applyMu.Lock()
	current := c.identity.Generation() == gen
	if current {
		replaced = c.registry.Swap(string(col), handle)
	}
	c.applyMu.Unlock()

	if !current {
		// Identity moved on while the feed was opening.
		return closeHandle(handle)
	}
	// A concurrent Subscribe for the same collection registered first.
	if err := closeHandle(replaced); err != nil {
		c.log.Warn("close replaced feed", zap.String("collection", string(col)), zap.Error(err))
	}
	return nil
}

// SubscribeAll opens a feed for the profile and every remote collection. A
// collection whose feed cannot be opened keeps serving its cached data.
func (c *SyncController) SubscribeAll() error {
	cols := append([]domain.Collection{domain.CollectionProfile}, domain.RemoteCollections...)
	var errs []error
	for _, col := range cols {
		if err := c.Subscribe(col); err != nil {
			c.log.Warn("subscription unavailable, using cache", zap.String("collection", string(col)), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *SyncController) UnsubscribeAll() error {
	return c.registry.TeardownAll()
}

func (c *SyncController) onChange(id string, gen uint64, col domain.Collection, docs []domain.RemoteDoc, err error) {
	if err != nil {
		c.log.Warn("live feed error, keeping cached data", zap.String("collection", string(col)), zap.Error(err))
		return
	}

	c.applyMu.Lock()
	defer c.applyMu.Unlock()
	if c.identity.Generation() != gen {
		c.log.Debug("dropping event for previous identity", zap.String("identity", id), zap.String("collection", string(col)))
		return
	}
	c.applyLocked(id, col, docs)
	if c.gateway != nil && (col == domain.CollectionLogs || col == domain.CollectionExerciseLogs) {
		c.gateway.CatchUpStreak()
	}
}

func (c *SyncController) applyLocked(id string, col domain.Collection, docs []domain.RemoteDoc) {
	switch col {
	case domain.CollectionProfile:
		if len(docs) == 0 {
			return
		}
		p := decodeDoc[domain.UserProfile](c.log, col, docs[0])
		p.ID = id
		c.store.SetProfile(p)
		c.store.MarkRemoteSnapshot([]string{syncKey(col, "")})
	case domain.CollectionLogs:
		replaceFrom(c.store, c.log, store.Logs, docs)
	case domain.CollectionPlans:
		replaceFrom(c.store, c.log, store.Plans, docs)
	case domain.CollectionExerciseLogs:
		replaceFrom(c.store, c.log, store.ExerciseLogs, docs)
	case domain.CollectionReminders:
		replaceFrom(c.store, c.log, store.Reminders, docs)
	case domain.CollectionWeights:
		replaceFrom(c.store, c.log, store.Weights, docs)
	case domain.CollectionRecipeBook:
		replaceFrom(c.store, c.log, store.RecipeBook, docs)
	case domain.CollectionMedicines:
		replaceFrom(c.store, c.log, store.Medicines, docs)
	case domain.CollectionTakenRecords:
		replaceFrom(c.store, c.log, store.TakenRecords, docs)
	case domain.CollectionBadges:
		replaceFrom(c.store, c.log, store.Badges, docs)
	case domain.CollectionMeta:
		c.applyMetaLocked(docs)
	case domain.CollectionAdherence:
		c.applyAdherenceLocked(docs)
	default:
		c.log.Warn("ignoring unknown collection", zap.String("collection", string(col)))
	}
}

func (c *SyncController) applyMetaLocked(docs []domain.RemoteDoc) {
	var keys []string
	for _, doc := range docs {
		switch doc.ID {
		case domain.MetaStreak:
			c.store.SetStreak(decodeDoc[domain.StreakState](c.log, domain.CollectionMeta, doc))
		case domain.MetaMedication:
			meta := decodeDoc[medicationMeta](c.log, domain.CollectionMeta, doc)
			m := c.store.Medication()
			m.LastProcessedDate = meta.LastProcessedDate
			m.TakenToday = meta.TakenToday
			m.PerfectStreak = meta.PerfectStreak
			c.store.SetMedication(m.Normalize())
		default:
			continue
		}
		keys = append(keys, syncKey(domain.CollectionMeta, doc.ID))
	}
	c.store.MarkRemoteSnapshot(keys)
}

// applyAdherenceLocked rebuilds the rolling history from the adherence
// collection, keeping the most recent days.
func (c *SyncController) applyAdherenceLocked(docs []domain.RemoteDoc) {
	days := decodeDocs[domain.AdherenceDay](c.log, domain.CollectionAdherence, docs)
	history := make([]domain.AdherenceDay, 0, len(days))
	keys := make([]string, 0, len(days))
	for date, day := range days {
		if day.Date == "" {
			day.Date = date
		}
		history = append(history, day)
		keys = append(keys, syncKey(domain.CollectionAdherence, date))
	}
	sort.Slice(history, func(i, j int) bool { return history[i].Date < history[j].Date })
	if len(history) > streak.HistoryCap {
		history = history[len(history)-streak.HistoryCap:]
	}

	m := c.store.Medication()
	m.History = history
	c.store.SetMedication(m)
	c.store.MarkRemoteSnapshot(keys)
}

func replaceFrom[V any](st *store.Store, log *zap.Logger, sl store.Slice[V], docs []domain.RemoteDoc) {
	values := decodeDocs[V](log, sl.Collection, docs)
	store.Replace(st, sl, values)

	keys := make([]string, 0, len(values))
	for id := range values {
		keys = append(keys, syncKey(sl.Collection, id))
	}
	st.MarkRemoteSnapshot(keys)
}

func closeHandle(d domain.Disposable) error {
	if d == nil {
		return nil
	}
	return d.Close()
}
