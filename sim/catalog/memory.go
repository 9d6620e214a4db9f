package catalog

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/lattice-mc/lattice-mc/sim"
)

// MemoryStore keeps records for the lifetime of the process.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	records     map[string]sim.CatalogRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.initialized = true
	s.records = make(map[string]sim.CatalogRecord)
	return nil
}

func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return false, errNotInitialized
	}
	_, ok := s.records[key]
	return ok, nil
}

func (s *MemoryStore) Insert(_ context.Context, rec sim.CatalogRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return false, errNotInitialized
	}
	if _, ok := s.records[rec.Key]; ok {
		return false, nil
	}
	s.records[rec.Key] = rec
	return true, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (sim.CatalogRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return sim.CatalogRecord{}, false, errNotInitialized
	}
	rec, ok := s.records[key]
	return rec, ok, nil
}

// Keys returns every stored key, sorted.
func (s *MemoryStore) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, errNotInitialized
	}
	keys := make([]string, 0, len(s.records))
	for k := range s.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

var errNotInitialized = errors.New("store is not initialized")
