package replay

import (
	"context"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultParallelThreshold is the sequence-range size above which Replay
// fans out across workers instead of running a single pass.
const DefaultParallelThreshold = 1024

// Options configures a Coordinator.
type Options struct {
	// Workers caps the fan-out width. Defaults to 4.
	Workers int
	// ParallelThreshold is the minimum range size that triggers parallel
	// replay. Smaller ranges run on a single worker. Defaults to 1024.
	ParallelThreshold uint64
	// ForceParallel fans out regardless of range size.
	ForceParallel bool
	// OnApplied is invoked with each applied record's sequence. It may be
	// called concurrently from multiple workers.
	OnApplied func(seq uint64)
	Logger    *slog.Logger
}

// Result summarizes one replay pass.
type Result struct {
	Applied  uint64
	Failed   uint64
	Workers  int
	Parallel bool
	Elapsed  time.Duration
}

// Coordinator fans journal replay out across a worker pool. The first worker
// failure cancels the remaining workers and is returned to the caller.
type Coordinator struct {
	src   Source
	apply Applier
	opts  Options
	log   *slog.Logger
}

// NewCoordinator builds a coordinator over the record source.
func NewCoordinator(src Source, apply Applier, opts *Options) *Coordinator {
	c := &Coordinator{src: src, apply: apply}
	if opts != nil {
		c.opts = *opts
	}
	if c.opts.Workers <= 0 {
		c.opts.Workers = 4
	}
	if c.opts.ParallelThreshold == 0 {
		c.opts.ParallelThreshold = DefaultParallelThreshold
	}
	c.log = c.opts.Logger
	if c.log == nil {
		c.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

// Replay applies every record in [start, end). Large ranges are partitioned
// across workers; small ones run a single sequential pass.
func (c *Coordinator) Replay(ctx context.Context, start, end uint64) (*Result, error) {
	began := time.Now()
	if end <= start {
		return &Result{Elapsed: time.Since(began)}, nil
	}

	parallel := c.opts.ForceParallel || end-start >= c.opts.ParallelThreshold
	width := c.opts.Workers
	if !parallel {
		width = 1
	}

	ranges := Partition(start, end, width)
	workers := make([]*Worker, len(ranges))
	for i, r := range ranges {
		workers[i] = &Worker{ID: i, Range: r}
	}
	c.log.Info("replay starting",
		"start", start, "end", end, "workers", len(workers), "parallel", parallel)

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		w := w
		g.Go(func() error {
			return w.run(gctx, c.src, c.apply, c.opts.OnApplied)
		})
	}
	err := g.Wait()

	res := &Result{
		Workers:  len(workers),
		Parallel: parallel,
		Elapsed:  time.Since(began),
	}
	for _, w := range workers {
		res.Applied += w.Applied()
		res.Failed += w.Failed()
	}
	if err != nil {
		c.log.Error("replay failed", "applied", res.Applied, "err", err)
		return res, err
	}
	c.log.Info("replay complete", "applied", res.Applied, "elapsed", res.Elapsed)
	return res, nil
}
