package usecase

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/fardannozami/healthsync/internal/domain"
)

// Session binds the authentication source to the sync controller.
type Session struct {
	auth       domain.Authenticator
	controller *SyncController
	log        *zap.Logger

	mu     sync.Mutex
	handle domain.Disposable
}

func NewSession(auth domain.Authenticator, controller *SyncController, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		auth:       auth,
		controller: controller,
		log:        logger.Named("session"),
	}
}

// Start subscribes to identity changes. Calling it twice has no effect.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle != nil {
		return
	}
	s.handle = s.auth.OnIdentityChange(func(id string) {
		if err := s.controller.HandleIdentityChange(ctx, id); err != nil {
			s.log.Warn("identity change", zap.String("identity", id), zap.Error(err))
		}
	})
}

// SignOut closes every live feed before the identity is dropped, then clears
// local data.
func (s *Session) SignOut(ctx context.Context) error {
	var errs []error
	if err := s.controller.UnsubscribeAll(); err != nil {
		errs = append(errs, err)
	}
	if err := s.auth.SignOut(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.controller.HandleIdentityChange(ctx, ""); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close stops listening for identity changes and closes every live feed.
// Local data is kept.
func (s *Session) Close() error {
	s.mu.Lock()
	h := s.handle
	s.handle = nil
	s.mu.Unlock()

	var errs []error
	if h != nil {
		if err := h.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.controller.UnsubscribeAll(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
