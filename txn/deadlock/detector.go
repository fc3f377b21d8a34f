package deadlock

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/stratafs/stratafs/txn"
)

// WaitEdge says Waiter is blocked on a resource Holder currently holds.
type WaitEdge struct {
	Waiter uint64
	Holder uint64
}

// WaitReporter supplies the current wait-for relationships. Implemented by
// the engine's lock manager; the detector never inspects locks itself.
type WaitReporter interface {
	WaitEdges() []WaitEdge
}

// Aborter aborts a chosen victim. *txn.Manager satisfies this.
type Aborter interface {
	AbortVictim(ctx context.Context, id uint64) error
}

// DefaultInterval is the scan period when none is configured.
const DefaultInterval = time.Second

// Options configures a Detector.
type Options struct {
	Interval time.Duration
	Logger   *slog.Logger
}

// Detector periodically scans the wait-for graph for cycles.
type Detector struct {
	reg      *txn.Registry
	waits    WaitReporter
	aborter  Aborter
	interval time.Duration
	log      *slog.Logger
}

// New creates a detector over the given registry and wait reporter.
func New(reg *txn.Registry, waits WaitReporter, aborter Aborter, opts *Options) *Detector {
	d := &Detector{
		reg:      reg,
		waits:    waits,
		aborter:  aborter,
		interval: DefaultInterval,
	}
	if opts != nil {
		if opts.Interval > 0 {
			d.interval = opts.Interval
		}
		d.log = opts.Logger
	}
	if d.log == nil {
		d.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return d
}

// Run scans on the configured interval until ctx is cancelled.
func (d *Detector) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.ScanOnce(ctx)
		}
	}
}

// ScanOnce performs one detection pass and returns the ids of the victims it
// aborted. Edges naming transactions no longer in the registry are dropped;
// after each victim abort the graph is re-examined so one pass resolves
// every cycle present at scan time.
func (d *Detector) ScanOnce(ctx context.Context) []uint64 {
	adj := d.buildGraph()
	var victims []uint64
	for {
		cycle := findCycle(adj)
		if len(cycle) == 0 {
			return victims
		}
		victim := d.chooseVictim(cycle)
		d.log.Info("deadlock detected",
			"cycle_len", len(cycle), "victim", victim)
		if err := d.aborter.AbortVictim(ctx, victim); err != nil {
			d.log.Warn("victim abort failed", "victim", victim, "err", err)
		}
		victims = append(victims, victim)
		// Removing the victim breaks every cycle through it.
		delete(adj, victim)
		for w, holders := range adj {
			adj[w] = removeID(holders, victim)
			if len(adj[w]) == 0 {
				delete(adj, w)
			}
		}
	}
}

// buildGraph snapshots the wait edges, keeping only edges whose endpoints
// are live transactions.
func (d *Detector) buildGraph() map[uint64][]uint64 {
	live := make(map[uint64]bool)
	d.reg.ForEach(func(t *txn.Txn) bool {
		if !t.State().Terminal() {
			live[t.ID()] = true
		}
		return true
	})
	adj := make(map[uint64][]uint64)
	for _, e := range d.waits.WaitEdges() {
		if e.Waiter == e.Holder || !live[e.Waiter] || !live[e.Holder] {
			continue
		}
		adj[e.Waiter] = append(adj[e.Waiter], e.Holder)
	}
	return adj
}

// chooseVictim picks the cheapest member of the cycle to roll back: lowest
// priority first, youngest (latest start) on ties.
func (d *Detector) chooseVictim(cycle []uint64) uint64 {
	victim := cycle[0]
	var victimPrio uint8
	var victimStart time.Time
	if t, ok := d.reg.Get(victim); ok {
		victimPrio, victimStart = t.Priority(), t.StartTime()
	}
	for _, id := range cycle[1:] {
		t, ok := d.reg.Get(id)
		if !ok {
			continue
		}
		if t.Priority() < victimPrio ||
			(t.Priority() == victimPrio && t.StartTime().After(victimStart)) {
			victim, victimPrio, victimStart = id, t.Priority(), t.StartTime()
		}
	}
	return victim
}

// findCycle runs an iterative depth-first search with a recursion stack and
// returns one cycle's members, nil if the graph is acyclic. Roots are
// visited in sorted order so detection is deterministic.
func findCycle(adj map[uint64][]uint64) []uint64 {
	const (
		white = 0 // unvisited
		gray  = 1 // on the recursion stack
		black = 2 // fully explored
	)
	color := make(map[uint64]int, len(adj))

	roots := make([]uint64, 0, len(adj))
	for id := range adj {
		roots = append(roots, id)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })

	type frame struct {
		id   uint64
		next int
	}
	for _, root := range roots {
		if color[root] != white {
			continue
		}
		stack := []frame{{id: root}}
		color[root] = gray
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next < len(adj[top.id]) {
				succ := adj[top.id][top.next]
				top.next++
				switch color[succ] {
				case white:
					color[succ] = gray
					stack = append(stack, frame{id: succ})
				case gray:
					// Found a back edge; the cycle is succ..top of stack.
					var cycle []uint64
					for i := len(stack) - 1; i >= 0; i-- {
						cycle = append(cycle, stack[i].id)
						if stack[i].id == succ {
							break
						}
					}
					return cycle
				}
			} else {
				color[top.id] = black
				stack = stack[:len(stack)-1]
			}
		}
	}
	return nil
}

func removeID(ids []uint64, id uint64) []uint64 {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
