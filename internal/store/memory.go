package store

import (
	"errors"

	"go.uber.org/atomic"

	"github.com/i474232898/weerlive/internal/weerlive"
)

var (
	// ErrNotFound is returned when no snapshot has been saved yet.
	ErrNotFound = errors.New("no weather data available")
)

// MemoryStore keeps the latest snapshot behind an atomic pointer. There is
// one writer (the refresh path) and any number of readers; readers always
// observe a complete snapshot, never a half-written one.
type MemoryStore struct {
	latest atomic.Pointer[weerlive.Snapshot]
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save replaces the current snapshot.
func (s *MemoryStore) Save(snapshot weerlive.Snapshot) {
	s.latest.Store(&snapshot)
}

// Latest returns the most recent snapshot.
func (s *MemoryStore) Latest() (weerlive.Snapshot, error) {
	p := s.latest.Load()
	if p == nil {
		return weerlive.Snapshot{}, ErrNotFound
	}
	return *p, nil
}
