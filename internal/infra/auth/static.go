// Package auth provides an authenticator for a fixed identity, used by the
// CLI where there is no interactive sign-in.
package auth

import (
	"context"
	"sync"

	"github.com/fardannozami/healthsync/internal/domain"
)

type Static struct {
	mu        sync.Mutex
	identity  string
	listeners map[int]func(string)
	next      int
}

func NewStatic(identity string) *Static {
	return &Static{identity: identity, listeners: map[int]func(string){}}
}

// OnIdentityChange calls cb with the current identity right away and again
// on every change.
func (s *Static) OnIdentityChange(cb func(identity string)) domain.Disposable {
	s.mu.Lock()
	id := s.next
	s.next++
	s.listeners[id] = cb
	current := s.identity
	s.mu.Unlock()

	cb(current)
	return domain.DisposableFunc(func() error {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
		return nil
	})
}

func (s *Static) SignIn(identity string) {
	s.set(identity)
}

func (s *Static) SignOut(ctx context.Context) error {
	s.set("")
	return nil
}

func (s *Static) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

func (s *Static) set(identity string) {
	s.mu.Lock()
	if s.identity == identity {
		s.mu.Unlock()
		return
	}
	s.identity = identity
	cbs := make([]func(string), 0, len(s.listeners))
	for _, cb := range s.listeners {
		cbs = append(cbs, cb)
	}
	s.mu.Unlock()

	for _, cb := range cbs {
		cb(identity)
	}
}
