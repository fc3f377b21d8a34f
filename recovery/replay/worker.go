package replay

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/stratafs/stratafs/journal"
)

// Applier applies one replayed record to the target layers.
type Applier interface {
	Apply(ctx context.Context, rec journal.Record) error
}

// ApplierFunc adapts a function to the Applier interface.
type ApplierFunc func(ctx context.Context, rec journal.Record) error

func (f ApplierFunc) Apply(ctx context.Context, rec journal.Record) error {
	return f(ctx, rec)
}

// Worker replays one sub-range of the journal. Progress counters are atomic
// so the progress reporter can read them while the worker runs.
type Worker struct {
	ID    int
	Range Range

	applied atomic.Uint64
	failed  atomic.Uint64
	done    atomic.Bool
}

// Applied returns the number of records this worker has applied.
func (w *Worker) Applied() uint64 { return w.applied.Load() }

// Failed returns the number of records whose application failed.
func (w *Worker) Failed() uint64 { return w.failed.Load() }

// Done reports whether the worker has finished its range.
func (w *Worker) Done() bool { return w.done.Load() }

// run applies every record in the worker's range, checking for cancellation
// at each record boundary. The first apply error stops the worker.
func (w *Worker) run(ctx context.Context, src Source, apply Applier, onApplied func(uint64)) error {
	cur, err := src.Scan(w.Range.Start, w.Range.End)
	if err != nil {
		return fmt.Errorf("worker %d: %w", w.ID, err)
	}
	defer cur.Close()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, ok, err := cur.Next()
		if err != nil {
			return fmt.Errorf("worker %d: %w", w.ID, err)
		}
		if !ok {
			w.done.Store(true)
			return nil
		}
		if err := apply.Apply(ctx, rec); err != nil {
			w.failed.Add(1)
			return fmt.Errorf("worker %d: apply seq %d: %w", w.ID, rec.Seq, err)
		}
		w.applied.Add(1)
		if onApplied != nil {
			onApplied(rec.Seq)
		}
	}
}
