package audit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stratafs/stratafs/txn"
)

// LayerView exposes one layer's view of the logical state as an
// entity id → version map.
type LayerView interface {
	Entities(ctx context.Context) (map[uint64]uint64, error)
}

// Repairer fixes a derived layer's divergences from the authoritative
// storage state.
type Repairer interface {
	// Rederive creates or refreshes the entity at the given version.
	Rederive(ctx context.Context, id, version uint64) error
	// Drop removes an entity the authoritative layer no longer has.
	Drop(ctx context.Context, id uint64) error
}

// ViolationKind classifies a divergence.
type ViolationKind uint8

const (
	// Missing: present in storage, absent from the derived layer.
	Missing ViolationKind = iota + 1
	// Stale: present in both, derived version lags storage.
	Stale
	// Orphaned: present in the derived layer, absent from storage.
	Orphaned
)

// String returns the violation kind name.
func (k ViolationKind) String() string {
	switch k {
	case Missing:
		return "missing"
	case Stale:
		return "stale"
	case Orphaned:
		return "orphaned"
	default:
		return "unknown"
	}
}

// Violation is one detected divergence.
type Violation struct {
	Layer       txn.Layer
	EntityID    uint64
	Kind        ViolationKind
	WantVersion uint64 // authoritative version, 0 for orphans
	GotVersion  uint64 // derived layer's version, 0 when missing
}

// Snapshot is a point-in-time capture of every layer's entity map.
type Snapshot struct {
	ID      string // uuid, for log correlation
	Taken   time.Time
	Storage map[uint64]uint64
	Views   map[txn.Layer]map[uint64]uint64
}

// DefaultInterval is the audit period when none is configured.
const DefaultInterval = 30 * time.Second

// Options configures an Auditor.
type Options struct {
	Interval time.Duration
	// AutoRepair makes the periodic pass repair what it finds instead of
	// only counting.
	AutoRepair bool
	Logger     *slog.Logger
}

// Auditor compares layer states for divergence and can trigger repair.
type Auditor struct {
	storage   LayerView
	stats     *txn.Stats
	interval  time.Duration
	autoFix   bool
	log       *slog.Logger

	mu        sync.Mutex
	views     map[txn.Layer]LayerView
	repairers map[txn.Layer]Repairer
}

// New creates an auditor with storage as the authoritative view. Derived
// layers are attached with AddView.
func New(storage LayerView, stats *txn.Stats, opts *Options) *Auditor {
	a := &Auditor{
		storage:   storage,
		stats:     stats,
		interval:  DefaultInterval,
		views:     make(map[txn.Layer]LayerView),
		repairers: make(map[txn.Layer]Repairer),
	}
	if opts != nil {
		if opts.Interval > 0 {
			a.interval = opts.Interval
		}
		a.autoFix = opts.AutoRepair
		a.log = opts.Logger
	}
	if a.log == nil {
		a.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return a
}

// AddView attaches a derived layer's view and its repairer.
func (a *Auditor) AddView(l txn.Layer, v LayerView, r Repairer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.views[l] = v
	a.repairers[l] = r
}

// Run audits on the configured interval until ctx is cancelled.
func (a *Auditor) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if a.autoFix {
				if _, err := a.RepairConsistency(ctx); err != nil {
					a.log.Warn("periodic repair failed", "err", err)
				}
			} else if _, err := a.CheckConsistency(ctx); err != nil {
				a.log.Warn("periodic audit failed", "err", err)
			}
		}
	}
}

// CheckConsistency runs one audit pass and returns every divergence found.
// The pass is recorded in the manager's consistency counters.
func (a *Auditor) CheckConsistency(ctx context.Context) ([]Violation, error) {
	authoritative, err := a.storage.Entities(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit: storage view: %w", err)
	}

	a.mu.Lock()
	views := make(map[txn.Layer]LayerView, len(a.views))
	for l, v := range a.views {
		views[l] = v
	}
	a.mu.Unlock()

	var violations []Violation
	for _, l := range []txn.Layer{txn.LayerGraph, txn.LayerSemantic} {
		view, ok := views[l]
		if !ok {
			continue
		}
		derived, err := view.Entities(ctx)
		if err != nil {
			return nil, fmt.Errorf("audit: %v view: %w", l, err)
		}
		violations = append(violations, diff(l, authoritative, derived)...)
	}

	if a.stats != nil {
		a.stats.NoteConsistencyCheck(len(violations))
	}
	if len(violations) > 0 {
		a.log.Warn("consistency violations found", "count", len(violations))
	}
	return violations, nil
}

// diff compares the authoritative map against one derived layer.
// Results are sorted by entity id so repair order is deterministic.
func diff(l txn.Layer, authoritative, derived map[uint64]uint64) []Violation {
	var out []Violation
	for id, want := range authoritative {
		got, ok := derived[id]
		switch {
		case !ok:
			out = append(out, Violation{Layer: l, EntityID: id, Kind: Missing, WantVersion: want})
		case got < want:
			out = append(out, Violation{Layer: l, EntityID: id, Kind: Stale, WantVersion: want, GotVersion: got})
		}
	}
	for id, got := range derived {
		if _, ok := authoritative[id]; !ok {
			out = append(out, Violation{Layer: l, EntityID: id, Kind: Orphaned, GotVersion: got})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityID != out[j].EntityID {
			return out[i].EntityID < out[j].EntityID
		}
		return out[i].Layer < out[j].Layer
	})
	return out
}

// RepairConsistency checks and then resolves each divergence by re-deriving
// the lagging layer from the authoritative one. Returns the number of
// divergences repaired; individual repair failures stop the pass.
func (a *Auditor) RepairConsistency(ctx context.Context) (int, error) {
	violations, err := a.CheckConsistency(ctx)
	if err != nil {
		return 0, err
	}
	repaired := 0
	for _, v := range violations {
		a.mu.Lock()
		r := a.repairers[v.Layer]
		a.mu.Unlock()
		if r == nil {
			continue
		}
		switch v.Kind {
		case Missing, Stale:
			err = r.Rederive(ctx, v.EntityID, v.WantVersion)
		case Orphaned:
			err = r.Drop(ctx, v.EntityID)
		}
		if err != nil {
			return repaired, fmt.Errorf("audit: repair %v entity %d (%v): %w",
				v.Layer, v.EntityID, v.Kind, err)
		}
		repaired++
	}
	if repaired > 0 {
		a.log.Info("consistency repaired", "count", repaired)
	}
	return repaired, nil
}

// CreateSnapshot captures every layer's entity map at one point in time.
func (a *Auditor) CreateSnapshot(ctx context.Context) (*Snapshot, error) {
	authoritative, err := a.storage.Entities(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit: snapshot storage: %w", err)
	}
	snap := &Snapshot{
		ID:      uuid.NewString(),
		Taken:   time.Now(),
		Storage: authoritative,
		Views:   make(map[txn.Layer]map[uint64]uint64),
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for l, v := range a.views {
		m, err := v.Entities(ctx)
		if err != nil {
			return nil, fmt.Errorf("audit: snapshot %v: %w", l, err)
		}
		snap.Views[l] = m
	}
	return snap, nil
}

// RestoreSnapshot drives every derived layer back to the snapshot's storage
// view: entities absent from the snapshot are dropped, all others are
// re-derived at the snapshot version.
func (a *Auditor) RestoreSnapshot(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("audit: %w", txn.ErrInvalid)
	}
	a.mu.Lock()
	repairers := make(map[txn.Layer]Repairer, len(a.repairers))
	views := make(map[txn.Layer]LayerView, len(a.views))
	for l, r := range a.repairers {
		repairers[l], views[l] = r, a.views[l]
	}
	a.mu.Unlock()

	for l, r := range repairers {
		if r == nil || views[l] == nil {
			continue
		}
		current, err := views[l].Entities(ctx)
		if err != nil {
			return fmt.Errorf("audit: restore %v: %w", l, err)
		}
		for id := range current {
			if _, ok := snap.Storage[id]; !ok {
				if err := r.Drop(ctx, id); err != nil {
					return fmt.Errorf("audit: restore %v drop %d: %w", l, id, err)
				}
			}
		}
		for id, version := range snap.Storage {
			if err := r.Rederive(ctx, id, version); err != nil {
				return fmt.Errorf("audit: restore %v entity %d: %w", l, id, err)
			}
		}
	}
	a.log.Info("snapshot restored", "snapshot", snap.ID)
	return nil
}
