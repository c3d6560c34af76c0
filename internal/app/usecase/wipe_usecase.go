package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fardannozami/healthsync/internal/app/store"
	"github.com/fardannozami/healthsync/internal/domain"
)

type WipeUsecase struct {
	store      *store.Store
	remote     domain.DocumentStore
	controller *SyncController
	gateway    *MutationGateway
	identity   *Identity
	log        *zap.Logger
}

func NewWipeUsecase(
	st *store.Store,
	remote domain.DocumentStore,
	controller *SyncController,
	gateway *MutationGateway,
	identity *Identity,
	logger *zap.Logger,
) *WipeUsecase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WipeUsecase{
		store:      st,
		remote:     remote,
		controller: controller,
		gateway:    gateway,
		identity:   identity,
		log:        logger.Named("wipe"),
	}
}

// Execute erases every piece of data owned by the signed-in identity.
//
// The order is fixed: live feeds are closed first, then local data is
// cleared, then every remote document is deleted, and finally the derived
// counters are zeroed locally and remotely. The profile document is reset to
// the bare identity so that the next pull does not bring old fields back.
// Any failure is reported as ErrWipeFailed; running Execute again finishes
// the job because deleting a missing document is not an error.
func (uc *WipeUsecase) Execute(ctx context.Context) error {
	var errs []error

	if err := uc.controller.UnsubscribeAll(); err != nil {
		uc.log.Warn("teardown before wipe", zap.Error(err))
	}
	if uc.gateway != nil {
		if err := uc.gateway.Drain(ctx); err != nil {
			return errors.Join(domain.ErrWipeFailed, fmt.Errorf("drain pending writes: %w", err))
		}
	}

	id := uc.identity.Current()
	if err := uc.store.Clear(); err != nil {
		errs = append(errs, fmt.Errorf("clear local state: %w", err))
	}
	if id != "" {
		uc.store.SetProfile(domain.UserProfile{ID: id})
		errs = append(errs, uc.deleteRemote(ctx, id)...)
		if err := uc.remote.Write(ctx, domain.UserPath(id), domain.UserProfile{ID: id}, domain.ReplaceCollection); err != nil {
			errs = append(errs, fmt.Errorf("reset profile: %w", err))
		}
	}

	uc.store.ResetDerived()
	if id != "" {
		zeroed := []struct {
			doc   string
			value any
		}{
			{domain.MetaStreak, domain.StreakState{}},
			{domain.MetaMedication, toMedicationMeta(domain.NewMedicationState())},
		}
		for _, z := range zeroed {
			path := domain.DocPath(id, domain.CollectionMeta, z.doc)
			if err := uc.remote.Write(ctx, path, z.value, domain.ReplaceCollection); err != nil {
				errs = append(errs, fmt.Errorf("reset %s: %w", path, err))
			}
		}
	}

	if len(errs) > 0 {
		uc.log.Error("wipe incomplete", zap.Int("failures", len(errs)))
		return errors.Join(append([]error{domain.ErrWipeFailed}, errs...)...)
	}
	uc.log.Info("wipe complete", zap.String("identity", id))
	return nil
}

func (uc *WipeUsecase) deleteRemote(ctx context.Context, id string) []error {
	var errs []error
	for _, col := range domain.RemoteCollections {
		docs, err := uc.remote.List(ctx, domain.CollectionPath(id, col))
		if err != nil {
			errs = append(errs, fmt.Errorf("list %s: %w", col, err))
			continue
		}
		for _, doc := range docs {
			path := domain.DocPath(id, col, doc.ID)
			if err := uc.remote.Delete(ctx, path); err != nil && !errors.Is(err, domain.ErrNotFound) {
				errs = append(errs, fmt.Errorf("delete %s: %w", path, err))
			}
		}
		uc.log.Debug("collection wiped", zap.String("collection", string(col)), zap.Int("docs", len(docs)))
	}
	return errs
}
