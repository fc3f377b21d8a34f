package txn

import "sync"

// Registry owns the set of live cross-layer transactions. Pure data
// structure: admission policy lives in the Manager.
//
// The registry lock guards only structural mutations (insert/remove/iterate);
// each transaction's own fields are guarded by the transaction's lock.
type Registry struct {
	mu   sync.RWMutex
	txns map[uint64]*Txn
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{txns: make(map[uint64]*Txn)}
}

// Insert adds t if the live count is below limit (limit <= 0 means
// unlimited). Returns ErrBusy when full, ErrInvalid on duplicate id.
func (r *Registry) Insert(t *Txn, limit int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit > 0 && len(r.txns) >= limit {
		return ErrBusy
	}
	if _, ok := r.txns[t.id]; ok {
		return ErrInvalid
	}
	r.txns[t.id] = t
	return nil
}

// Get looks up a live transaction by id.
func (r *Registry) Get(id uint64) (*Txn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.txns[id]
	return t, ok
}

// Remove deletes a transaction from the registry. The transaction object
// stays valid for holders of remaining references.
func (r *Registry) Remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.txns, id)
}

// Len returns the number of live transactions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.txns)
}

// ForEach calls fn for every live transaction until fn returns false.
// The registry lock is held in read mode for the duration; fn must not
// insert or remove.
func (r *Registry) ForEach(fn func(*Txn) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.txns {
		if !fn(t) {
			return
		}
	}
}
