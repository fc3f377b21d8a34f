package resolve

import (
	"context"
	"io"
	"log/slog"
	"sort"

	"github.com/stratafs/stratafs/journal"
	"github.com/stratafs/stratafs/recovery/replay"
)

// Action says how one operation of a partial transaction is unwound.
type Action uint8

const (
	// Discard drops the operation; nothing was made visible.
	Discard Action = iota + 1
	// Undo removes the object or edge the operation created.
	Undo
	// Restore re-creates the object or edge from the record's pre-image.
	Restore
)

func (a Action) String() string {
	switch a {
	case Discard:
		return "discard"
	case Undo:
		return "undo"
	case Restore:
		return "restore"
	default:
		return "unknown"
	}
}

// ActionFor maps an operation kind to its unwind action.
func ActionFor(op journal.OpKind) Action {
	switch op {
	case journal.OpCreate, journal.OpEdgeCreate:
		return Undo
	case journal.OpDelete, journal.OpEdgeDelete:
		return Restore
	default:
		return Discard
	}
}

// Partial is a transaction whose Begin record has no terminal in the scanned
// range.
type Partial struct {
	TxnID    uint64
	BeginSeq uint64
	Ops      []journal.Record
}

// FindPartials drains the cursor and returns the partial transactions it
// contains, ordered by begin sequence. The cursor is not closed.
func FindPartials(cur replay.Cursor) ([]*Partial, error) {
	open := make(map[uint64]*Partial)
	for {
		rec, ok, err := cur.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		switch rec.Type {
		case journal.RecordBegin:
			open[rec.TxnID] = &Partial{TxnID: rec.TxnID, BeginSeq: rec.Seq}
		case journal.RecordOp:
			if p, live := open[rec.TxnID]; live {
				p.Ops = append(p.Ops, rec)
			}
		case journal.RecordCommit, journal.RecordAbort:
			delete(open, rec.TxnID)
		}
	}

	out := make([]*Partial, 0, len(open))
	for _, p := range open {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BeginSeq < out[j].BeginSeq })
	return out, nil
}

// Unwinder applies the per-operation unwind actions against the layers.
type Unwinder interface {
	// Undo removes the object or edge the record created.
	Undo(ctx context.Context, rec journal.Record) error
	// Restore re-creates the object or edge from the record's pre-image
	// payload.
	Restore(ctx context.Context, rec journal.Record) error
}

// Stats counts the outcome of one resolution pass.
type Stats struct {
	Partials int
	Resolved int
	Failed   int
}

// Resolver unwinds partial transactions.
type Resolver struct {
	uw  Unwinder
	log *slog.Logger
}

// NewResolver builds a resolver over the unwinder.
func NewResolver(uw Unwinder, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{uw: uw, log: log}
}

// ResolveAll unwinds each partial transaction exactly once. Unwind failures
// are counted and logged but do not stop the pass; the caller decides
// whether a nonzero failure count is fatal.
func (r *Resolver) ResolveAll(ctx context.Context, partials []*Partial) (Stats, error) {
	st := Stats{Partials: len(partials)}
	for _, p := range partials {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		if err := r.resolveOne(ctx, p); err != nil {
			st.Failed++
			r.log.Warn("partial transaction unwind failed",
				"txn", p.TxnID, "begin_seq", p.BeginSeq, "err", err)
			continue
		}
		st.Resolved++
	}
	return st, nil
}

// resolveOne unwinds the transaction's operations newest-first, so a create
// is undone before anything that preceded it is restored.
func (r *Resolver) resolveOne(ctx context.Context, p *Partial) error {
	for i := len(p.Ops) - 1; i >= 0; i-- {
		rec := p.Ops[i]
		var err error
		switch ActionFor(rec.Op) {
		case Undo:
			err = r.uw.Undo(ctx, rec)
		case Restore:
			err = r.uw.Restore(ctx, rec)
		}
		if err != nil {
			return err
		}
	}
	r.log.Debug("partial transaction resolved", "txn", p.TxnID, "ops", len(p.Ops))
	return nil
}
