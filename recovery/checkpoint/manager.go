package checkpoint

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/stratafs/stratafs/journal"
)

// Sequencer exposes the current sequence counter of an auxiliary journal
// (metadata, allocation). Nil sequencers record 0.
type Sequencer interface {
	Current() uint64
}

// Truncator is implemented by journals whose replay tail can be advanced
// after a full checkpoint. *journal.File satisfies this.
type Truncator interface {
	AdvanceTail(seq uint64) error
}

// DefaultMaxRetained is the retention limit when none is configured.
const DefaultMaxRetained = 8

// Options configures a Manager.
type Options struct {
	// MaxRetained caps the number of kept checkpoints; the oldest is
	// evicted past the cap. Defaults to 8.
	MaxRetained int
	// Interval enables automatic checkpointing when > 0.
	Interval time.Duration
	// Meta and Alloc supply the auxiliary sequence counters, may be nil.
	Meta  Sequencer
	Alloc Sequencer
	Logger *slog.Logger
}

// Manager creates, retains and looks up checkpoints.
type Manager struct {
	jnl    journal.Journal
	store  Store
	meta   Sequencer
	alloc  Sequencer
	max    int
	tick   time.Duration
	log    *slog.Logger

	created atomic.Uint64

	mu     sync.Mutex
	cps    []*Checkpoint // ordered by JournalSeq
	nextID uint64
}

// NewManager builds a manager over the journal, reloading any checkpoints
// the store already holds. Rows failing their checksum are dropped.
func NewManager(jnl journal.Journal, store Store, opts *Options) (*Manager, error) {
	m := &Manager{
		jnl:   jnl,
		store: store,
		max:   DefaultMaxRetained,
	}
	if opts != nil {
		if opts.MaxRetained > 0 {
			m.max = opts.MaxRetained
		}
		m.tick = opts.Interval
		m.meta = opts.Meta
		m.alloc = opts.Alloc
		m.log = opts.Logger
	}
	if m.log == nil {
		m.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	loaded, err := store.Load()
	if err != nil {
		return nil, err
	}
	for _, cp := range loaded {
		if !cp.Valid() {
			m.log.Warn("dropping checkpoint with bad checksum", "id", cp.ID)
			continue
		}
		m.cps = append(m.cps, cp)
		if cp.ID > m.nextID {
			m.nextID = cp.ID
		}
	}
	return m, nil
}

// Create captures the current sequence positions into a new checkpoint,
// persists it, and evicts the oldest checkpoint beyond the retention limit.
// A Full checkpoint also advances the journal's replay tail.
func (m *Manager) Create(ctx context.Context, typ Type) (*Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	cp := &Checkpoint{
		ID:         m.nextID,
		Type:       typ,
		JournalSeq: m.jnl.Head(),
		TailSeq:    m.jnl.Tail(),
		Location:   "checkpoint-" + uuid.NewString(),
		Created:    start,
	}
	if m.meta != nil {
		cp.MetaSeq = m.meta.Current()
	}
	if m.alloc != nil {
		cp.AllocSeq = m.alloc.Current()
	}
	cp.Size = m.jnl.BlockCount() * m.jnl.BlockSize()
	cp.Cost = time.Since(start)
	cp.Checksum = cp.computeChecksum()
	cp.Retain()

	if err := m.store.Put(cp); err != nil {
		return nil, fmt.Errorf("checkpoint %d: %w", cp.ID, err)
	}
	m.cps = append(m.cps, cp)
	m.created.Add(1)

	for len(m.cps) > m.max {
		oldest := m.cps[0]
		m.cps = m.cps[1:]
		if err := m.store.Delete(oldest.ID); err != nil {
			m.log.Warn("checkpoint eviction failed", "id", oldest.ID, "err", err)
		}
		oldest.Release()
	}

	if typ == Full {
		if tr, ok := m.jnl.(Truncator); ok {
			if err := tr.AdvanceTail(cp.JournalSeq); err != nil {
				m.log.Warn("journal tail advance failed", "seq", cp.JournalSeq, "err", err)
			}
		}
	}

	m.log.Info("checkpoint created",
		"id", cp.ID, "type", typ.String(), "journal_seq", cp.JournalSeq,
		"cost", cp.Cost)
	return cp, nil
}

// Latest returns the checkpoint with the greatest creation timestamp among
// those retained, or false when none exist.
func (m *Manager) Latest() (*Checkpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *Checkpoint
	for _, cp := range m.cps {
		if best == nil || cp.Created.After(best.Created) {
			best = cp
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// Between returns the retained checkpoints whose captured sequence lies in
// [lo, hi], in sequence order.
func (m *Manager) Between(lo, hi uint64) []*Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Checkpoint
	for _, cp := range m.cps {
		if cp.JournalSeq >= lo && cp.JournalSeq <= hi {
			out = append(out, cp)
		}
	}
	return out
}

// Count returns the number of retained checkpoints.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cps)
}

// CreatedTotal returns how many checkpoints this manager has created.
func (m *Manager) CreatedTotal() uint64 { return m.created.Load() }

// Run creates checkpoints on the configured interval until ctx is
// cancelled. No-op when the interval is zero.
func (m *Manager) Run(ctx context.Context) {
	if m.tick <= 0 {
		return
	}
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Create(ctx, Incremental); err != nil {
				m.log.Warn("periodic checkpoint failed", "err", err)
			}
		}
	}
}

// Close releases the store.
func (m *Manager) Close() error { return m.store.Close() }
