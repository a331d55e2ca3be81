package dataset

import (
	"context"
	"fmt"
	"sync"
)

// Store is the engine's view of dataset retrieval. How datasets were
// uploaded or persisted is an external concern; the engine only needs
// to resolve an id to an already-validated dataset.
type Store interface {
	Dataset(ctx context.Context, id string) (*Dataset, error)
}

// MemStore is an in-process Store used by tests and the CLI wiring.
type MemStore struct {
	mu       sync.RWMutex
	datasets map[string]*Dataset
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{datasets: make(map[string]*Dataset)}
}

// Put registers a dataset under its stable id.
func (s *MemStore) Put(d *Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[d.ID()] = d
}

// Dataset resolves an id, failing when unknown.
func (s *MemStore) Dataset(_ context.Context, id string) (*Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.datasets[id]
	if !ok {
		return nil, fmt.Errorf("dataset %q not found", id)
	}
	return d, nil
}
