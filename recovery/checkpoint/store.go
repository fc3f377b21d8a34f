package checkpoint

import (
	"sort"
	"sync"
)

// Store persists checkpoint metadata across restarts.
type Store interface {
	// Put inserts or replaces one checkpoint row.
	Put(cp *Checkpoint) error
	// Delete removes a checkpoint by id. Unknown ids are a no-op.
	Delete(id uint64) error
	// Load returns every stored checkpoint, ordered by JournalSeq.
	Load() ([]*Checkpoint, error)
	Close() error
}

// MemStore is an in-memory Store for tests and ephemeral engines.
type MemStore struct {
	mu  sync.Mutex
	cps map[uint64]*Checkpoint
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{cps: make(map[uint64]*Checkpoint)}
}

// Put inserts or replaces one checkpoint.
func (s *MemStore) Put(cp *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cps[cp.ID] = cp.clone()
	return nil
}

// Delete removes a checkpoint by id.
func (s *MemStore) Delete(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cps, id)
	return nil
}

// Load returns every stored checkpoint ordered by JournalSeq.
func (s *MemStore) Load() ([]*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Checkpoint, 0, len(s.cps))
	for _, cp := range s.cps {
		out = append(out, cp.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JournalSeq < out[j].JournalSeq })
	return out, nil
}

// Close is a no-op.
func (s *MemStore) Close() error { return nil }
