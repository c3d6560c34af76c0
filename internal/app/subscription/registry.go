// Package subscription owns the set of live feeds opened for the current
// identity. Every feed must be closed before a feed for another identity is
// opened, otherwise a late event from the previous identity could overwrite
// the new identity's freshly loaded data.
package subscription

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/fardannozami/healthsync/internal/domain"
)

type Registry struct {
	mu      sync.Mutex
	handles map[string]domain.Disposable
	log     *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		handles: make(map[string]domain.Disposable),
		log:     logger.Named("subscriptions"),
	}
}

// Register tracks d under key. A handle already registered under the same key
// is closed.
func (r *Registry) Register(key string, d domain.Disposable) {
	if prev := r.Swap(key, d); prev != nil {
		if err := closeHandle(prev); err != nil {
			r.log.Warn("close replaced subscription", zap.String("key", key), zap.Error(err))
		}
	}
}

// Swap tracks d under key and returns the handle it replaced without closing
// it. Callers holding a lock that a delivery needs close the result after
// unlocking.
func (r *Registry) Swap(key string, d domain.Disposable) domain.Disposable {
	if d == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.handles[key]
	r.handles[key] = d
	return prev
}

// Release closes and forgets the handle under key, if any.
func (r *Registry) Release(key string) error {
	r.mu.Lock()
	d := r.handles[key]
	delete(r.handles, key)
	r.mu.Unlock()
	if d == nil {
		return nil
	}
	return closeHandle(d)
}

// TeardownAll closes every registered handle. A failing or panicking Close
// does not stop the remaining handles from being closed, and the registry is
// always empty afterwards. Calling it again is harmless.
func (r *Registry) TeardownAll() error {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[string]domain.Disposable)
	r.mu.Unlock()

	keys := make([]string, 0, len(handles))
	for k := range handles {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, k := range keys {
		if err := closeHandle(handles[k]); err != nil {
			r.log.Warn("close subscription", zap.String("key", k), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", k, err))
		}
	}
	if len(keys) > 0 {
		r.log.Debug("subscriptions torn down", zap.Int("count", len(keys)), zap.Int("failed", len(errs)))
	}
	return errors.Join(errs...)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.handles))
	for k := range r.handles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EnsureEmpty fails with domain.ErrRegistryNotEmpty while any handle is live.
func (r *Registry) EnsureEmpty() error {
	if n := r.Len(); n > 0 {
		return fmt.Errorf("%w: %d active", domain.ErrRegistryNotEmpty, n)
	}
	return nil
}

func closeHandle(d domain.Disposable) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic during close: %v", p)
		}
	}()
	return d.Close()
}
