package txn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/stratafs/stratafs/internal/format"
	"github.com/stratafs/stratafs/journal"
)

// Options configures a Manager.
type Options struct {
	// MaxLive caps the number of concurrent transactions. Begin returns
	// ErrBusy at the cap. Defaults to 256.
	MaxLive int

	// DefaultTimeout applies when Begin is called with timeout 0.
	// Defaults to 30s.
	DefaultTimeout time.Duration

	// Logger receives protocol warnings. Defaults to a discard logger.
	Logger *slog.Logger
}

func (o *Options) withDefaults() Options {
	out := Options{MaxLive: 256, DefaultTimeout: 30 * time.Second}
	if o != nil {
		if o.MaxLive > 0 {
			out.MaxLive = o.MaxLive
		}
		if o.DefaultTimeout > 0 {
			out.DefaultTimeout = o.DefaultTimeout
		}
		out.Logger = o.Logger
	}
	if out.Logger == nil {
		out.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return out
}

// Manager is the two-phase-commit engine. One Manager drives all cross-layer
// transactions for an engine instance; there is no process-wide singleton.
type Manager struct {
	jnl   journal.Journal
	reg   *Registry
	hooks map[Layer]LayerHooks
	opts  Options
	log   *slog.Logger

	nextTxnID atomic.Uint64
	nextOpID  atomic.Uint64
	stats     Stats
}

// NewManager creates a transaction manager over the given journal. Hooks for
// the graph and semantic layers are registered with RegisterHooks before the
// first Begin touching those layers.
func NewManager(jnl journal.Journal, opts *Options) *Manager {
	o := opts.withDefaults()
	return &Manager{
		jnl:   jnl,
		reg:   NewRegistry(),
		hooks: make(map[Layer]LayerHooks),
		opts:  o,
		log:   o.Logger,
	}
}

// RegisterHooks installs the prepare/commit/abort hooks for one layer.
// LayerStorage needs no hooks: it is driven through the journal directly.
func (m *Manager) RegisterHooks(l Layer, h LayerHooks) {
	m.hooks[l] = h
}

// Registry returns the live-transaction registry. The deadlock detector and
// consistency auditor iterate it.
func (m *Manager) Registry() *Registry { return m.reg }

// Stats returns the manager's counter set for background tasks that record
// deadlock and consistency events.
func (m *Manager) Stats() *Stats { return &m.stats }

// StatsSnapshot returns a point-in-time copy of all counters.
func (m *Manager) StatsSnapshot() CounterSnapshot {
	return m.stats.Snapshot(m.reg.Len())
}

// Begin starts a cross-layer transaction.
//
// Fails with ErrInvalid if layers is empty or has unknown bits, ErrBusy once
// the live-transaction cap is reached. When the storage layer participates a
// real journal transaction is opened eagerly; failure to open it fails the
// whole Begin.
func (m *Manager) Begin(ctx context.Context, layers Layer, isolation IsolationLevel, timeout time.Duration) (*Txn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !layers.Valid() {
		return nil, fmt.Errorf("%w: layer mask 0b%03b", ErrInvalid, layers)
	}
	for _, l := range layerOrder[1:] {
		if layers.Has(l) && m.hooks[l] == nil {
			return nil, fmt.Errorf("%w: no hooks registered for layer %v", ErrInvalid, l)
		}
	}
	if timeout <= 0 {
		timeout = m.opts.DefaultTimeout
	}

	t := &Txn{
		id:        m.nextTxnID.Add(1),
		layers:    layers,
		isolation: isolation,
		timeout:   timeout,
		startTime: time.Now(),
		done:      make(chan struct{}),
		state:     StateInit,
		ops:       make(map[Layer][]*Op),
		opCount:   make(map[Layer]int),
		subTxns:   make(map[Layer]any),
	}
	t.refs.Store(1)

	if err := m.reg.Insert(t, m.opts.MaxLive); err != nil {
		return nil, err
	}

	if layers.Has(LayerStorage) {
		jt, err := m.jnl.Begin(0, journal.OpWrite)
		if err != nil {
			m.reg.Remove(t.id)
			m.stats.noteLayerError(LayerStorage)
			return nil, fmt.Errorf("txn %d: journal begin: %w", t.id, err)
		}
		t.mu.Lock()
		t.storageTxn = jt
		t.mu.Unlock()
	}

	m.stats.total.Add(1)
	return t, nil
}

// AddOperation attaches one operation to t. Legal only in state INIT.
//
// The payload is copied (inline for small payloads). The operation is
// appended to every per-layer list selected by layers; when the storage
// layer is selected, an Op record is written to the journal transaction,
// which is what makes the storage side of the operation "prepared".
func (m *Manager) AddOperation(t *Txn, layers Layer, kind journal.OpKind, data []byte) (*Op, error) {
	if t == nil || !layers.Valid() || !t.layers.Has(layers) {
		return nil, fmt.Errorf("%w: bad operation target", ErrInvalid)
	}

	t.mu.Lock()
	if t.state != StateInit {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: add_operation in state %v", ErrInvalid, t.state)
	}
	op := newOp(m.nextOpID.Add(1), layers, kind, data)
	for _, l := range layerOrder {
		if layers.Has(l) {
			t.ops[l] = append(t.ops[l], op)
			t.opCount[l]++
		}
	}
	t.totalOps += layers.Count()
	jt := t.storageTxn
	t.mu.Unlock()

	if layers.Has(LayerStorage) && jt != nil {
		seq, err := jt.Append(journal.Record{
			Type:    journal.RecordOp,
			Layers:  uint8(layers),
			Op:      kind,
			Payload: op.Payload(),
		})
		if err != nil {
			m.stats.noteLayerError(LayerStorage)
			return nil, fmt.Errorf("txn %d: journal append: %w", t.id, err)
		}
		op.Seq = seq
	}
	return op, nil
}

// Link records an explicit replay-ordering constraint: the operation at
// prereq must be replayed before the operation at dependent. Both sequences
// must come from operations of t.
func (m *Manager) Link(t *Txn, prereq, dependent uint64) error {
	if t == nil || prereq == 0 || dependent == 0 || prereq == dependent {
		return fmt.Errorf("%w: bad dependency link", ErrInvalid)
	}
	t.mu.Lock()
	jt := t.storageTxn
	state := t.state
	t.mu.Unlock()
	if state != StateInit {
		return fmt.Errorf("%w: link in state %v", ErrInvalid, state)
	}
	if jt == nil {
		return fmt.Errorf("%w: dependency links need the storage layer", ErrInvalid)
	}
	// A Link record stores the prerequisite in its header and the dependent
	// sequence in its 8-byte payload.
	payload := make([]byte, 8)
	format.PutU64(payload, 0, dependent)
	_, err := jt.Append(journal.Record{
		Type:    journal.RecordLink,
		Prereq:  prereq,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("txn %d: journal link: %w", t.id, err)
	}
	return nil
}

// Commit drives the transaction through the two-phase protocol: prepare all
// participating layers, commit the storage layer's journal transaction (the
// irrevocable point), then commit the remaining layers in mask order.
//
// A transaction past its deadline is aborted instead and ErrTimedOut is
// returned.
func (m *Manager) Commit(ctx context.Context, t *Txn) error {
	if t == nil {
		return ErrInvalid
	}
	if dl := t.Deadline(); !dl.IsZero() && time.Now().After(dl) {
		m.Abort(ctx, t)
		return ErrTimedOut
	}

	if !t.transition(StateInit, StatePreparing) {
		return fmt.Errorf("%w: commit in state %v", ErrInvalid, t.State())
	}

	// Prepare phase. Storage is prepared by construction: its operations
	// are already attached to the journal transaction.
	for _, l := range layerOrder[1:] {
		if !t.layers.Has(l) {
			continue
		}
		handle, err := m.hooks[l].Prepare(ctx, t)
		if err != nil {
			m.stats.noteLayerError(l)
			m.failAndAbort(ctx, t, fmt.Errorf("txn %d: %v prepare: %w", t.id, l, err))
			return t.Err()
		}
		t.mu.Lock()
		t.subTxns[l] = handle
		t.mu.Unlock()
	}
	t.mu.Lock()
	t.prepareTime = time.Now()
	t.mu.Unlock()

	if !t.transition(StatePreparing, StatePrepared) || !t.transition(StatePrepared, StateCommitting) {
		return fmt.Errorf("%w: concurrent abort", ErrInvalid)
	}

	// Commit phase: journal first. After this returns the transaction is
	// durable no matter what the other layers do.
	if jt := t.JournalTxn(); jt != nil {
		if err := jt.Commit(); err != nil {
			m.stats.noteLayerError(LayerStorage)
			m.stats.fails.Add(1)
			m.failAndAbort(ctx, t, fmt.Errorf("txn %d: journal commit: %w", t.id, err))
			return t.Err()
		}
	}
	t.mu.Lock()
	t.commitTime = time.Now()
	t.mu.Unlock()

	for _, l := range layerOrder[1:] {
		if !t.layers.Has(l) {
			continue
		}
		if err := m.hooks[l].Commit(ctx, t, t.SubTxn(l)); err != nil {
			// Past the irrevocable point: the journal commit stands and
			// replay will re-derive this layer. Record the divergence for
			// the auditor and the caller.
			m.stats.noteLayerError(l)
			m.log.Warn("layer commit failed after journal commit",
				"txn", t.id, "layer", l.String(), "err", err)
			t.mu.Lock()
			t.err = fmt.Errorf("txn %d: %v commit: %w", t.id, l, err)
			t.mu.Unlock()
		}
	}

	t.finish(StateCommitted)
	m.stats.commits.Add(1)
	m.noteDurations(t)
	return nil
}

// failAndAbort moves a mid-protocol transaction to FAILED, then runs the
// abort path to release every layer. FAILED is terminal; the abort path only
// cleans up.
func (m *Manager) failAndAbort(ctx context.Context, t *Txn, cause error) {
	t.mu.Lock()
	t.err = cause
	t.mu.Unlock()
	m.releaseLayers(ctx, t)
	t.finish(StateFailed)
	m.noteDurations(t)
}

// Abort rolls the transaction back: the journal transaction is explicitly
// aborted and every participating layer's abort hook runs.
//
// Aborting an already-terminal transaction is a no-op returning ErrInvalid.
func (m *Manager) Abort(ctx context.Context, t *Txn) error {
	if t == nil {
		return ErrInvalid
	}
	t.mu.Lock()
	if t.state.Terminal() || t.state == StateAborting {
		t.mu.Unlock()
		return ErrInvalid
	}
	t.state = StateAborting
	t.mu.Unlock()

	m.releaseLayers(ctx, t)
	t.finish(StateAborted)
	m.stats.aborts.Add(1)
	m.noteDurations(t)
	return nil
}

// releaseLayers releases the storage journal transaction and invokes the
// abort hook of every participating layer. Hook errors are logged, not
// propagated: abort is best-effort by design of the protocol's failure path.
func (m *Manager) releaseLayers(ctx context.Context, t *Txn) {
	if jt := t.JournalTxn(); jt != nil {
		if err := jt.Abort(); err != nil && !errors.Is(err, journal.ErrTxnDone) {
			m.log.Warn("journal abort failed", "txn", t.id, "err", err)
		}
	}
	for _, l := range layerOrder[1:] {
		if !t.layers.Has(l) {
			continue
		}
		if err := m.hooks[l].Abort(ctx, t, t.SubTxn(l)); err != nil {
			m.stats.noteLayerError(l)
			m.log.Warn("layer abort failed", "txn", t.id, "layer", l.String(), "err", err)
		}
	}
}

// Release drops one reference to t. The last holder removes the transaction
// from the registry and frees its operations and sub-transaction handles.
// Only terminal transactions are actually freed; releasing a live
// transaction early just drops the reference.
func (m *Manager) Release(t *Txn) {
	if t == nil {
		return
	}
	if t.refs.Add(-1) > 0 {
		return
	}
	if !t.State().Terminal() {
		// Last reference dropped on a live transaction; abort it so the
		// registry cannot leak.
		m.Abort(context.Background(), t)
	}
	m.reg.Remove(t.id)
	t.mu.Lock()
	t.ops = nil
	t.opCount = nil
	t.storageTxn = nil
	t.subTxns = nil
	t.mu.Unlock()
}

// AbortVictim aborts the transaction chosen by the deadlock detector and
// updates the deadlock counters. The victim's caller sees the abort as a
// failed commit; other transactions see nothing.
func (m *Manager) AbortVictim(ctx context.Context, id uint64) error {
	t, ok := m.reg.Get(id)
	if !ok {
		m.stats.NoteDeadlock(false)
		return fmt.Errorf("%w: victim %d not found", ErrInvalid, id)
	}
	err := m.Abort(ctx, t)
	m.stats.NoteDeadlock(err == nil)
	return err
}

func (m *Manager) noteDurations(t *Txn) {
	t.mu.Lock()
	start, prepared, end := t.startTime, t.prepareTime, t.endTime
	state := t.state
	t.mu.Unlock()
	if end.IsZero() {
		return
	}
	m.stats.txnTimeNanos.Add(uint64(end.Sub(start)))
	if state == StateCommitted && !prepared.IsZero() {
		// Commit time is the span from the end of prepare to terminal.
		m.stats.commitTimeNanos.Add(uint64(end.Sub(prepared)))
	}
}
