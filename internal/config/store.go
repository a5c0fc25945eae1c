package config

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidLineup wraps validation failures from Replace so callers can
// tell a rejected document from a failed write.
var ErrInvalidLineup = errors.New("invalid lineup")

// Store holds the active lineup document and persists replacements. The
// lineup held inside is treated as immutable: Current hands out the shared
// pointer and every mutation goes through Replace or Reload, which install
// a fresh document. Callers that rebuild state from a new lineup (the
// receiver pool, keep-alive tasks) do so after the swap; Store itself only
// manages the document.
type Store struct {
	path string

	mu     sync.RWMutex
	lineup *Lineup
}

// NewStore creates a store bound to the lineup file at path. The store
// starts empty; call Load to read the document from disk.
func NewStore(path string) *Store {
	return &Store{path: path, lineup: &Lineup{}}
}

// Load reads the lineup from disk. A missing file leaves the store empty
// without error; a malformed file leaves the store empty and returns the
// error so the caller can log it and keep the service up.
func (s *Store) Load() error {
	lineup, err := LoadLineup(s.path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.lineup = lineup
	s.mu.Unlock()
	return nil
}

// Current returns the active lineup. Never nil; callers must not mutate
// the returned document.
func (s *Store) Current() *Lineup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lineup
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Replace validates the new document, persists it, and makes it active.
// The store is untouched when validation or the write fails.
func (s *Store) Replace(lineup *Lineup) error {
	if err := lineup.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidLineup, err)
	}
	lineup.Normalize()

	if err := lineup.Save(s.path); err != nil {
		return err
	}

	s.mu.Lock()
	s.lineup = lineup
	s.mu.Unlock()
	return nil
}

// Reload re-reads the document from disk and makes it active, returning
// the new lineup. The active document is untouched on error.
func (s *Store) Reload() (*Lineup, error) {
	lineup, err := LoadLineup(s.path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.lineup = lineup
	s.mu.Unlock()
	return lineup, nil
}
