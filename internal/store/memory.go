package store

import (
	"context"
	"sync"

	"github.com/imamik/hubspoke/internal/spoke"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[int]*spoke.Deployment
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[int]*spoke.Deployment)}
}

func (s *MemoryStore) Get(_ context.Context, spokeID int) (*spoke.Deployment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.records[spokeID]
	if !ok {
		return nil, notFound(spokeID)
	}
	return d.Clone(), nil
}

func (s *MemoryStore) Put(_ context.Context, d *spoke.Deployment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[d.SpokeID] = d.Clone()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, spokeID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[spokeID]; !ok {
		return notFound(spokeID)
	}
	delete(s.records, spokeID)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]*spoke.Deployment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*spoke.Deployment, 0, len(s.records))
	for _, d := range s.records {
		out = append(out, d.Clone())
	}
	sortBySpokeID(out)
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
