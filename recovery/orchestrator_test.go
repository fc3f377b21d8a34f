package recovery

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratafs/stratafs/internal/format"
	"github.com/stratafs/stratafs/journal"
	"github.com/stratafs/stratafs/recovery/checkpoint"
)

// applyLog records every applied operation, safe for concurrent workers.
type applyLog struct {
	mu      sync.Mutex
	seqs    []uint64
	block   chan struct{} // when set, Apply waits for ctx or close
	undoErr error
	undos   []uint64
	restore []uint64
}

func (a *applyLog) Apply(ctx context.Context, rec journal.Record) error {
	if a.block != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.block:
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seqs = append(a.seqs, rec.Seq)
	return nil
}

func (a *applyLog) Undo(_ context.Context, rec journal.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.undoErr != nil {
		return a.undoErr
	}
	a.undos = append(a.undos, rec.Seq)
	return nil
}

func (a *applyLog) Restore(_ context.Context, rec journal.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.restore = append(a.restore, rec.Seq)
	return nil
}

func (a *applyLog) applied() []uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]uint64(nil), a.seqs...)
}

type recEnv struct {
	jnl *journal.File
	cps *checkpoint.Manager
	app *applyLog
}

func newRecEnv(t *testing.T) *recEnv {
	t.Helper()
	j, err := journal.Open(filepath.Join(t.TempDir(), "rec.journal"), &journal.Options{NoSync: true})
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	cps, err := checkpoint.NewManager(j, checkpoint.NewMemStore(), nil)
	require.NoError(t, err)
	return &recEnv{jnl: j, cps: cps, app: &applyLog{}}
}

func (e *recEnv) orchestrator(opts *Options) *Orchestrator {
	return NewOrchestrator(e.jnl, e.cps, e.app, e.app, opts)
}

// commitTxn writes begin + one op + commit and returns the op's sequence.
func commitTxn(t *testing.T, j *journal.File, kind journal.OpKind) uint64 {
	t.Helper()
	txn, err := j.Begin(0, kind)
	require.NoError(t, err)
	seq, err := txn.Append(journal.Record{Type: journal.RecordOp, Op: kind, Payload: []byte("v")})
	require.NoError(t, err)
	require.NoError(t, txn.Commit())
	return seq
}

// crashTxn writes begin + one op and no terminal, simulating a crash
// mid-transaction.
func crashTxn(t *testing.T, j *journal.File, kind journal.OpKind) uint64 {
	t.Helper()
	txn, err := j.Begin(0, kind)
	require.NoError(t, err)
	seq, err := txn.Append(journal.Record{Type: journal.RecordOp, Op: kind, Payload: []byte("v")})
	require.NoError(t, err)
	return seq
}

// abortTxn writes begin + one op + abort and returns the op's sequence.
func abortTxn(t *testing.T, j *journal.File, kind journal.OpKind) uint64 {
	t.Helper()
	txn, err := j.Begin(0, kind)
	require.NoError(t, err)
	seq, err := txn.Append(journal.Record{Type: journal.RecordOp, Op: kind, Payload: []byte("v")})
	require.NoError(t, err)
	require.NoError(t, txn.Abort())
	return seq
}

func TestRecoveryReplaysCommittedSkipsPartial(t *testing.T) {
	env := newRecEnv(t)
	s1 := commitTxn(t, env.jnl, journal.OpWrite)
	s2 := commitTxn(t, env.jnl, journal.OpWrite)
	partial := crashTxn(t, env.jnl, journal.OpCreate)

	o := env.orchestrator(nil)
	report, err := o.Start(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, StateComplete, o.State())
	assert.Equal(t, env.jnl.Tail(), report.StartSeq, "no checkpoint: replay from the tail")
	assert.ElementsMatch(t, []uint64{s1, s2}, env.app.applied(),
		"partial transaction's op is not applied")
	assert.Equal(t, 1, report.PartialsFound)
	assert.Equal(t, 1, report.PartialsResolved)
	assert.Equal(t, []uint64{partial}, env.app.undos, "partial create is undone")
	assert.EqualValues(t, 2, report.Replayed)
	assert.NotEqual(t, report.RunID.String(), "00000000-0000-0000-0000-000000000000")
}

func TestRecoverySkipsAbortedTxnOps(t *testing.T) {
	env := newRecEnv(t)
	committed := commitTxn(t, env.jnl, journal.OpWrite)
	abortTxn(t, env.jnl, journal.OpWrite)

	report, err := env.orchestrator(nil).Start(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []uint64{committed}, env.app.applied(),
		"aborted transaction's op is not applied")
	assert.EqualValues(t, 1, report.Replayed)
	assert.Zero(t, report.PartialsFound, "an aborted transaction is terminal, not partial")
	assert.Empty(t, env.app.undos, "abort already rolled back; nothing to unwind")

	// Same exclusion on the parallel path.
	_, err = env.orchestrator(nil).Start(context.Background(), Parallel)
	require.NoError(t, err)
	assert.Equal(t, []uint64{committed, committed}, env.app.applied())
}

func TestRecoveryStrictFailsOnUnresolvedPartial(t *testing.T) {
	env := newRecEnv(t)
	commitTxn(t, env.jnl, journal.OpWrite)
	crashTxn(t, env.jnl, journal.OpCreate)
	env.app.undoErr = errors.New("graph layer offline")

	o := env.orchestrator(nil)
	_, err := o.Start(context.Background(), Strict)
	require.ErrorIs(t, err, ErrPartialUnresolved)
	assert.Equal(t, StateError, o.State())

	// Without Strict the failure is counted, not fatal.
	report, err := env.orchestrator(nil).Start(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, report.PartialsFound)
	assert.Equal(t, 1, report.PartialsFailed)
	assert.Equal(t, 0, report.PartialsResolved)
}

func TestRecoveryRestoresPartialDelete(t *testing.T) {
	env := newRecEnv(t)
	seq := crashTxn(t, env.jnl, journal.OpDelete)

	_, err := env.orchestrator(nil).Start(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []uint64{seq}, env.app.restore)
	assert.Empty(t, env.app.applied())
}

func TestRecoveryStartsAtCheckpoint(t *testing.T) {
	env := newRecEnv(t)
	commitTxn(t, env.jnl, journal.OpWrite)
	commitTxn(t, env.jnl, journal.OpWrite)

	cp, err := env.cps.Create(context.Background(), checkpoint.Full)
	require.NoError(t, err)
	after := commitTxn(t, env.jnl, journal.OpWrite)

	report, err := env.orchestrator(nil).Start(context.Background(), FromCheckpoint|Parallel)
	require.NoError(t, err)
	assert.Equal(t, cp.JournalSeq, report.StartSeq,
		"replay starts at the checkpoint, not the original tail")
	assert.Equal(t, []uint64{after}, env.app.applied())

	// A present checkpoint is used even without the flag.
	report, err = env.orchestrator(nil).Start(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, cp.JournalSeq, report.StartSeq)
}

func TestRecoveryNoCheckpoint(t *testing.T) {
	env := newRecEnv(t)
	commitTxn(t, env.jnl, journal.OpWrite)

	o := env.orchestrator(nil)
	_, err := o.Start(context.Background(), FromCheckpoint)
	require.ErrorIs(t, err, ErrNoCheckpoint)
	assert.Equal(t, StateError, o.State())
}

func TestRecoverySingleActiveRun(t *testing.T) {
	env := newRecEnv(t)
	commitTxn(t, env.jnl, journal.OpWrite)
	env.app.block = make(chan struct{})

	o := env.orchestrator(nil)
	errc := make(chan error, 1)
	go func() {
		_, err := o.Start(context.Background(), 0)
		errc <- err
	}()

	// Wait for the first run to pass admission.
	require.Eventually(t, func() bool { return o.State() != StateIdle }, time.Second, time.Millisecond)
	_, err := o.Start(context.Background(), 0)
	require.ErrorIs(t, err, ErrInvalidState)

	close(env.app.block)
	require.NoError(t, <-errc)

	// A terminal state admits the next run.
	env.app.block = nil
	_, err = o.Start(context.Background(), 0)
	require.NoError(t, err)
}

func TestRecoveryDependencyOrder(t *testing.T) {
	env := newRecEnv(t)
	first := commitTxn(t, env.jnl, journal.OpWrite)
	second := commitTxn(t, env.jnl, journal.OpWrite)

	// Link record: second must replay before first.
	txn, err := env.jnl.Begin(0, journal.OpWrite)
	require.NoError(t, err)
	payload := make([]byte, 8)
	format.PutU64(payload, 0, first)
	_, err = txn.Append(journal.Record{Type: journal.RecordLink, Prereq: second, Payload: payload})
	require.NoError(t, err)
	require.NoError(t, txn.Commit())

	report, err := env.orchestrator(nil).Start(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []uint64{second, first}, env.app.applied())
	assert.Equal(t, 1, report.DepsResolved)
}

func TestRecoveryResourceLimit(t *testing.T) {
	env := newRecEnv(t)
	for i := 0; i < 4; i++ {
		commitTxn(t, env.jnl, journal.OpWrite)
	}
	o := env.orchestrator(&Options{MaxEntries: 3})
	_, err := o.Start(context.Background(), 0)
	require.ErrorIs(t, err, ErrResourceLimit)
	assert.Equal(t, StateError, o.State())
}

func TestRecoveryMappedReader(t *testing.T) {
	env := newRecEnv(t)
	commitTxn(t, env.jnl, journal.OpWrite)

	report, err := env.orchestrator(nil).Start(context.Background(), Mapped)
	require.NoError(t, err)
	assert.NotZero(t, report.MmapOps)
}

func TestRecoveryProgressComplete(t *testing.T) {
	env := newRecEnv(t)
	for i := 0; i < 5; i++ {
		commitTxn(t, env.jnl, journal.OpWrite)
	}
	o := env.orchestrator(nil)
	_, err := o.Start(context.Background(), 0)
	require.NoError(t, err)

	prog := o.Progress()
	require.NotNil(t, prog)
	assert.EqualValues(t, 5, prog.Total())
	assert.EqualValues(t, 5, prog.Completed())
	assert.InDelta(t, 100, prog.Percent(), 0.001)
	assert.Zero(t, prog.ETA())
}

func TestRecoveryStallWatchdog(t *testing.T) {
	env := newRecEnv(t)
	commitTxn(t, env.jnl, journal.OpWrite)
	env.app.block = make(chan struct{}) // never closed: no progress

	o := env.orchestrator(&Options{StallTimeout: 20 * time.Millisecond})
	_, err := o.Start(context.Background(), 0)
	require.ErrorIs(t, err, ErrProgressTimeout)
	assert.Equal(t, StateError, o.State())
}

func TestRecoveryPostCheckpoint(t *testing.T) {
	env := newRecEnv(t)
	commitTxn(t, env.jnl, journal.OpWrite)

	o := env.orchestrator(&Options{CheckpointAfter: true})
	_, err := o.Start(context.Background(), 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, env.cps.CreatedTotal())
}

func TestRecoveryStatsAccumulate(t *testing.T) {
	env := newRecEnv(t)
	o := env.orchestrator(nil)

	commitTxn(t, env.jnl, journal.OpWrite)
	_, err := o.Start(context.Background(), 0)
	require.NoError(t, err)
	commitTxn(t, env.jnl, journal.OpWrite)
	_, err = o.Start(context.Background(), 0)
	require.NoError(t, err)

	snap := o.StatsSnapshot()
	assert.EqualValues(t, 2, snap.Runs)
	assert.Zero(t, snap.Failures)
	// Second run replays the whole journal again from the tail.
	assert.EqualValues(t, 3, snap.EntriesReplayed)
	assert.GreaterOrEqual(t, snap.Slowest, snap.Fastest)
}

func TestRecoveryEmptyJournal(t *testing.T) {
	env := newRecEnv(t)
	o := env.orchestrator(nil)
	report, err := o.Start(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, report.Replayed)
	assert.Equal(t, StateComplete, o.State())
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		StateIdle: "IDLE", StateScanning: "SCANNING", StateReplaying: "REPLAYING",
		StateResolving: "RESOLVING", StateComplete: "COMPLETE", StateError: "ERROR",
	} {
		assert.Equal(t, want, s.String())
	}
	assert.True(t, StateComplete.Terminal())
	assert.False(t, StateReplaying.Terminal())
}

func TestErrorFormatting(t *testing.T) {
	assert.Equal(t, "ENOCKPT (-1001): no checkpoint available", ErrNoCheckpoint.Error())
	assert.Equal(t, "EBADSTATE (-1007): recovery already running", fmt.Sprint(ErrInvalidState))
}
