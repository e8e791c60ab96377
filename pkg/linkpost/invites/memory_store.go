package invites

import (
	"context"
	"sync"

	"github.com/jholhewres/linkpost/pkg/linkpost/database"
)

// MemoryStore keeps records in process memory. Records are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[int64]Record
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[int64]Record)}
}

func (s *MemoryStore) Upsert(_ context.Context, r Record) error {
	if err := r.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.records[r.ChatID] = r
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out, nil
}

func (s *MemoryStore) Health(context.Context) map[string]database.HealthStatus {
	return map[string]database.HealthStatus{
		string(database.BackendMemory): {Healthy: true, Version: "memory"},
	}
}

func (s *MemoryStore) Close() error { return nil }
