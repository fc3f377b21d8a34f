package recovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/stratafs/stratafs/journal"
	"github.com/stratafs/stratafs/recovery/checkpoint"
	"github.com/stratafs/stratafs/recovery/replay"
	"github.com/stratafs/stratafs/recovery/resolve"
)

// Flags adjust one recovery run.
type Flags uint32

const (
	// FromCheckpoint requires a checkpoint start: when no checkpoint
	// exists the run fails with ErrNoCheckpoint instead of falling back to
	// the journal tail.
	FromCheckpoint Flags = 1 << iota
	// Parallel forces the worker pool even for small ranges.
	Parallel
	// Mapped forces the memory-mapped journal reader.
	Mapped
	// Strict fails the run with ErrPartialUnresolved when any partial
	// transaction cannot be unwound, instead of counting and continuing.
	Strict
)

// DefaultMappedThreshold is the journal size, in bytes, above which the
// memory-mapped reader is preferred over buffered reads.
const DefaultMappedThreshold = 1 << 20

// Options configures an Orchestrator.
type Options struct {
	// Workers caps replay fan-out. Defaults to 4.
	Workers int
	// MappedThreshold is the journal byte size above which scans use the
	// memory-mapped reader. Defaults to 1 MiB.
	MappedThreshold int64
	// MaxEntries caps the number of journal entries one run may process;
	// 0 means unlimited. Exceeding it fails the run with ErrResourceLimit.
	MaxEntries uint64
	// CheckpointAfter cuts a full checkpoint when a run completes.
	CheckpointAfter bool
	// ProgressInterval is how often the reporter logs run progress.
	// 0 disables the reporter.
	ProgressInterval time.Duration
	// StallTimeout cancels the run when no operation is applied for this
	// long. 0 disables the watchdog.
	StallTimeout time.Duration
	Logger       *slog.Logger
}

// Report summarizes one completed recovery run.
type Report struct {
	RunID            uuid.UUID
	StartSeq         uint64
	EndSeq           uint64
	Replayed         uint64
	PartialsFound    int
	PartialsResolved int
	PartialsFailed   int
	DepsResolved     int
	MmapOps          uint64
	Elapsed          time.Duration
}

// Orchestrator drives recovery runs over a journal.
type Orchestrator struct {
	jnl   *journal.File
	cps   *checkpoint.Manager
	apply replay.Applier
	uw    resolve.Unwinder
	opts  Options
	log   *slog.Logger

	state    atomic.Int32
	stats    Stats
	progress atomic.Pointer[Progress]
	lastRun  atomic.Pointer[Report]
}

// NewOrchestrator builds an orchestrator. The checkpoint manager may be nil
// when checkpoint-based starts are not used; apply receives every replayed
// record and uw unwinds partial transactions.
func NewOrchestrator(jnl *journal.File, cps *checkpoint.Manager, apply replay.Applier, uw resolve.Unwinder, opts *Options) *Orchestrator {
	o := &Orchestrator{jnl: jnl, cps: cps, apply: apply, uw: uw}
	if opts != nil {
		o.opts = *opts
	}
	if o.opts.Workers <= 0 {
		o.opts.Workers = 4
	}
	if o.opts.MappedThreshold <= 0 {
		o.opts.MappedThreshold = DefaultMappedThreshold
	}
	o.log = o.opts.Logger
	if o.log == nil {
		o.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

// State returns the current run phase.
func (o *Orchestrator) State() State { return State(o.state.Load()) }

// Progress returns the live progress of the active run, or nil when no run
// has started.
func (o *Orchestrator) Progress() *Progress { return o.progress.Load() }

// LastReport returns the report of the most recent completed run, or nil.
func (o *Orchestrator) LastReport() *Report { return o.lastRun.Load() }

// StatsSnapshot returns the accumulated recovery counters.
func (o *Orchestrator) StatsSnapshot() Snapshot { return o.stats.Snapshot() }

// Start runs recovery to completion. Only one run may be active; a second
// Start while one is running fails with ErrInvalidState.
func (o *Orchestrator) Start(ctx context.Context, flags Flags) (*Report, error) {
	if !o.admit() {
		return nil, ErrInvalidState
	}
	began := time.Now()
	runID := uuid.New()
	log := o.log.With("run", runID.String())

	report, err := o.run(ctx, flags, runID, log)
	elapsed := time.Since(began)

	if err != nil {
		o.state.Store(int32(StateError))
		o.stats.noteRun(elapsed, 0, 0, 0, 0, true)
		log.Error("recovery failed", "state", o.State().String(), "err", err, "elapsed", elapsed)
		return nil, err
	}

	report.RunID = runID
	report.Elapsed = elapsed
	o.lastRun.Store(report)
	o.state.Store(int32(StateComplete))
	o.stats.noteRun(elapsed, report.Replayed,
		uint64(report.PartialsResolved), uint64(report.DepsResolved), report.MmapOps, false)
	log.Info("recovery complete",
		"replayed", report.Replayed, "partials", report.PartialsFound,
		"deps", report.DepsResolved, "elapsed", elapsed)
	return report, nil
}

// admit performs the Idle→Initializing transition, also allowing restart
// from a terminal state.
func (o *Orchestrator) admit() bool {
	for {
		cur := State(o.state.Load())
		if !cur.startable() {
			return false
		}
		if o.state.CompareAndSwap(int32(cur), int32(StateInitializing)) {
			return true
		}
	}
}

func (o *Orchestrator) run(ctx context.Context, flags Flags, runID uuid.UUID, log *slog.Logger) (*Report, error) {
	start, err := o.startSeq(flags)
	if err != nil {
		return nil, err
	}
	end := o.jnl.Head()
	report := &Report{StartSeq: start, EndSeq: end}
	if end <= start {
		log.Info("journal empty past start point", "start", start)
		return report, nil
	}
	if o.opts.MaxEntries > 0 && end-start > o.opts.MaxEntries {
		return nil, fmt.Errorf("%w: range %d exceeds cap %d",
			ErrResourceLimit, end-start, o.opts.MaxEntries)
	}

	// Scan once: records, partial transactions, dependency edges.
	o.state.Store(int32(StateScanning))
	src, mapped := o.source(flags)
	if mapped != nil {
		defer func() { report.MmapOps = mapped.MapOps() }()
	}
	records, err := o.scan(src, start, end)
	if err != nil {
		return nil, err
	}
	partials, err := resolve.FindPartials(&memCursor{recs: records})
	if err != nil {
		return nil, err
	}
	edges := resolve.Edges(records)
	// Replay skips the operations of partial transactions and of
	// transactions that terminated with an Abort record: neither ever
	// committed.
	skipIDs := make(map[uint64]bool, len(partials))
	for _, p := range partials {
		skipIDs[p.TxnID] = true
	}
	for _, rec := range records {
		if rec.Type == journal.RecordAbort {
			skipIDs[rec.TxnID] = true
		}
	}
	report.PartialsFound = len(partials)

	prog := newProgress(countOps(records, skipIDs))
	o.progress.Store(prog)

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stopWatch := o.watch(runCtx, cancel, prog, log)
	defer stopWatch()

	// Replay committed operations, honoring dependency edges when present.
	o.state.Store(int32(StateReplaying))
	if len(edges) > 0 {
		if err := o.replayOrdered(runCtx, records, edges, skipIDs, prog); err != nil {
			return nil, runErr(runCtx, err)
		}
		report.DepsResolved = len(edges)
	} else {
		coord := replay.NewCoordinator(src, o.filtered(skipIDs, prog), &replay.Options{
			Workers:       o.opts.Workers,
			ForceParallel: flags&Parallel != 0,
			Logger:        o.log,
		})
		if _, err := coord.Replay(runCtx, start, end); err != nil {
			return nil, runErr(runCtx, fmt.Errorf("%w: %v", ErrWorkerFailed, err))
		}
	}
	report.Replayed = prog.Completed()

	// Unwind what the crash cut short. Failures are counted, never fatal.
	o.state.Store(int32(StateResolving))
	st, err := resolve.NewResolver(o.uw, o.log).ResolveAll(runCtx, partials)
	if err != nil {
		return nil, runErr(runCtx, err)
	}
	report.PartialsResolved = st.Resolved
	report.PartialsFailed = st.Failed
	if st.Failed > 0 {
		if flags&Strict != 0 {
			return nil, fmt.Errorf("%w: %d of %d partial transactions",
				ErrPartialUnresolved, st.Failed, len(partials))
		}
		log.Warn("partial transactions left unresolved", "failed", st.Failed)
	}

	o.state.Store(int32(StateFinalizing))
	if o.opts.CheckpointAfter && o.cps != nil {
		if _, err := o.cps.Create(runCtx, checkpoint.Full); err != nil {
			log.Warn("post-recovery checkpoint failed", "err", err)
		}
	}
	return report, nil
}

// startSeq picks where replay begins: the latest checkpoint when one
// exists, the journal tail otherwise. FromCheckpoint makes the checkpoint
// mandatory.
func (o *Orchestrator) startSeq(flags Flags) (uint64, error) {
	if o.cps != nil {
		if cp, ok := o.cps.Latest(); ok {
			return cp.JournalSeq, nil
		}
	}
	if flags&FromCheckpoint != 0 {
		return 0, ErrNoCheckpoint
	}
	return o.jnl.Tail(), nil
}

// source picks the journal reader for this run. The mapped source is also
// returned directly so its mapping counters can be collected.
func (o *Orchestrator) source(flags Flags) (replay.Source, *replay.MappedSource) {
	lo, hi := o.jnl.DataBounds()
	if flags&Mapped != 0 || hi-lo >= o.opts.MappedThreshold {
		m := replay.NewMappedSource(o.jnl)
		return m, m
	}
	return replay.NewFileSource(o.jnl), nil
}

// scan drains one cursor pass over [start, end).
func (o *Orchestrator) scan(src replay.Source, start, end uint64) ([]journal.Record, error) {
	cur, err := src.Scan(start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMapFailed, err)
	}
	defer cur.Close()
	var records []journal.Record
	for {
		rec, ok, err := cur.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return records, nil
		}
		records = append(records, rec)
	}
}

// replayOrdered applies the committed operations one by one in dependency
// order.
func (o *Orchestrator) replayOrdered(ctx context.Context, records []journal.Record, edges []resolve.Edge, skipIDs map[uint64]bool, prog *Progress) error {
	bySeq := make(map[uint64]journal.Record, len(records))
	var seqs []uint64
	for _, rec := range records {
		if rec.Type != journal.RecordOp || skipIDs[rec.TxnID] {
			continue
		}
		bySeq[rec.Seq] = rec
		seqs = append(seqs, rec.Seq)
	}
	order, err := resolve.Order(seqs, edges)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDependencyCycle, err)
	}
	for _, seq := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.apply.Apply(ctx, bySeq[seq]); err != nil {
			return fmt.Errorf("%w: apply seq %d: %v", ErrWorkerFailed, seq, err)
		}
		prog.note()
	}
	return nil
}

// filtered wraps the applier to skip non-operation records and operations of
// partial or aborted transactions, counting what it applies.
func (o *Orchestrator) filtered(skipIDs map[uint64]bool, prog *Progress) replay.Applier {
	return replay.ApplierFunc(func(ctx context.Context, rec journal.Record) error {
		if rec.Type != journal.RecordOp || skipIDs[rec.TxnID] {
			return nil
		}
		if err := o.apply.Apply(ctx, rec); err != nil {
			return err
		}
		prog.note()
		return nil
	})
}

// watch starts the progress reporter and stall watchdog; the returned stop
// function ends both.
func (o *Orchestrator) watch(ctx context.Context, cancel context.CancelCauseFunc, prog *Progress, log *slog.Logger) func() {
	done := make(chan struct{})
	go func() {
		reportEvery := o.opts.ProgressInterval
		if reportEvery <= 0 {
			reportEvery = time.Hour
		}
		tick := reportEvery
		if o.opts.StallTimeout > 0 && o.opts.StallTimeout < tick {
			tick = o.opts.StallTimeout
		}
		ticker := time.NewTicker(tick)
		defer ticker.Stop()

		lastDone := prog.Completed()
		lastChange := time.Now()
		lastReport := time.Now()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case now := <-ticker.C:
				if cur := prog.Completed(); cur != lastDone {
					lastDone, lastChange = cur, now
				} else if o.opts.StallTimeout > 0 && now.Sub(lastChange) >= o.opts.StallTimeout {
					cancel(ErrProgressTimeout)
					return
				}
				if o.opts.ProgressInterval > 0 && now.Sub(lastReport) >= o.opts.ProgressInterval {
					lastReport = now
					log.Info("recovery progress",
						"phase", o.State().String(),
						"completed", prog.Completed(), "total", prog.Total(),
						"percent", fmt.Sprintf("%.1f", prog.Percent()),
						"rate", fmt.Sprintf("%.0f/s", prog.Rate()),
						"eta", prog.ETA().Round(time.Second))
				}
			}
		}
	}()
	return func() { close(done) }
}

// runErr substitutes the cancellation cause for a bare context error, so a
// stall watchdog trip surfaces as ErrProgressTimeout.
func runErr(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return err
}

// countOps counts the operation records replay will actually apply.
func countOps(records []journal.Record, skipIDs map[uint64]bool) uint64 {
	var n uint64
	for _, rec := range records {
		if rec.Type == journal.RecordOp && !skipIDs[rec.TxnID] {
			n++
		}
	}
	return n
}

// memCursor replays an in-memory record slice through the cursor interface.
type memCursor struct {
	recs []journal.Record
	i    int
}

func (c *memCursor) Next() (journal.Record, bool, error) {
	if c.i >= len(c.recs) {
		return journal.Record{}, false, nil
	}
	rec := c.recs[c.i]
	c.i++
	return rec, true, nil
}

func (c *memCursor) Close() error { return nil }
