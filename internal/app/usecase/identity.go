package usecase

import "sync"

// Identity tracks the signed-in identity together with a generation number
// that changes on every switch, including a switch to the same identity.
// Listener callbacks capture the generation they were opened under and drop
// events once it no longer matches.
type Identity struct {
	mu  sync.RWMutex
	id  string
	gen uint64
}

func (i *Identity) Current() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.id
}

func (i *Identity) Snapshot() (string, uint64) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.id, i.gen
}

func (i *Identity) Generation() uint64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.gen
}

func (i *Identity) Set(id string) uint64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.id = id
	i.gen++
	return i.gen
}
