package txn

import (
	"sync/atomic"
	"time"
)

// Stats holds the manager's lock-free counters. All fields are updated with
// atomics so background tasks and callers never contend with the commit
// path.
type Stats struct {
	total   atomic.Uint64
	commits atomic.Uint64
	fails   atomic.Uint64
	aborts  atomic.Uint64

	deadlocksDetected atomic.Uint64
	deadlocksResolved atomic.Uint64

	consistencyChecks     atomic.Uint64
	consistencyViolations atomic.Uint64

	storageErrors  atomic.Uint64
	graphErrors    atomic.Uint64
	semanticErrors atomic.Uint64
	crossErrors    atomic.Uint64

	txnTimeNanos    atomic.Uint64 // sum over terminated transactions
	commitTimeNanos atomic.Uint64 // sum over successful commits
}

// CounterSnapshot is a point-in-time copy of the statistics for the
// monitoring surface. The name leaves Snapshot to the isolation level.
type CounterSnapshot struct {
	TotalTransactions   uint64
	SuccessfulCommits   uint64
	FailedCommits       uint64
	AbortedTransactions uint64

	DeadlocksDetected uint64
	DeadlocksResolved uint64

	ConsistencyChecks     uint64
	ConsistencyViolations uint64

	StorageErrors    uint64
	GraphErrors      uint64
	SemanticErrors   uint64
	CrossLayerErrors uint64

	AvgTxnTime    time.Duration
	AvgCommitTime time.Duration

	LiveTransactions int
}

// noteLayerError bumps the failing layer's counter so operators can tell
// which layer is failing.
func (s *Stats) noteLayerError(l Layer) {
	switch {
	case l.Has(LayerStorage):
		s.storageErrors.Add(1)
	case l.Has(LayerGraph):
		s.graphErrors.Add(1)
	case l.Has(LayerSemantic):
		s.semanticErrors.Add(1)
	default:
		s.crossErrors.Add(1)
	}
}

// NoteDeadlock records one detected deadlock, resolved or not.
func (s *Stats) NoteDeadlock(resolved bool) {
	s.deadlocksDetected.Add(1)
	if resolved {
		s.deadlocksResolved.Add(1)
	}
}

// NoteConsistencyCheck records one auditor pass and its violation count.
func (s *Stats) NoteConsistencyCheck(violations int) {
	s.consistencyChecks.Add(1)
	s.consistencyViolations.Add(uint64(violations))
}

// Snapshot copies every counter. live is the current live-transaction count
// (the Manager passes its registry length).
func (s *Stats) Snapshot(live int) CounterSnapshot {
	out := CounterSnapshot{
		TotalTransactions:     s.total.Load(),
		SuccessfulCommits:     s.commits.Load(),
		FailedCommits:         s.fails.Load(),
		AbortedTransactions:   s.aborts.Load(),
		DeadlocksDetected:     s.deadlocksDetected.Load(),
		DeadlocksResolved:     s.deadlocksResolved.Load(),
		ConsistencyChecks:     s.consistencyChecks.Load(),
		ConsistencyViolations: s.consistencyViolations.Load(),
		StorageErrors:         s.storageErrors.Load(),
		GraphErrors:           s.graphErrors.Load(),
		SemanticErrors:        s.semanticErrors.Load(),
		CrossLayerErrors:      s.crossErrors.Load(),
		LiveTransactions:      live,
	}
	if done := out.SuccessfulCommits + out.FailedCommits + out.AbortedTransactions; done > 0 {
		out.AvgTxnTime = time.Duration(s.txnTimeNanos.Load() / done)
	}
	if out.SuccessfulCommits > 0 {
		out.AvgCommitTime = time.Duration(s.commitTimeNanos.Load() / out.SuccessfulCommits)
	}
	return out
}
