package service

import (
	"context"

	"reelrelay/internal/core/ports"
)

// ProcessedSet is the in-memory view of a niche's processed ledger.
type ProcessedSet struct {
	store ports.ProcessedStore
	ids   map[string]struct{}
}

// LoadProcessedSet reads every id from store.
func LoadProcessedSet(ctx context.Context, store ports.ProcessedStore) (*ProcessedSet, error) {
	ids, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = make(map[string]struct{})
	}
	return &ProcessedSet{store: store, ids: ids}, nil
}

// Contains reports whether id was already delivered.
func (s *ProcessedSet) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Add persists id and records it in memory. The in-memory entry is kept even
// when persisting fails so the post is not delivered twice in one run.
func (s *ProcessedSet) Add(ctx context.Context, id string) error {
	s.ids[id] = struct{}{}
	return s.store.Mark(ctx, id)
}

// Len returns the number of known ids.
func (s *ProcessedSet) Len() int {
	return len(s.ids)
}
