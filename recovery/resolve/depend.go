package resolve

import (
	"container/heap"
	"errors"
	"fmt"

	"github.com/stratafs/stratafs/internal/format"
	"github.com/stratafs/stratafs/journal"
)

// ErrCycle reports a dependency cycle among the records being ordered.
var ErrCycle = errors.New("resolve: dependency cycle")

// Edge orders Prereq before Dependent during replay.
type Edge struct {
	Prereq    uint64
	Dependent uint64
}

// Edges extracts ordering constraints from the records: Op records with a
// nonzero prerequisite header field, and Link records whose payload carries
// the dependent sequence. Malformed Link records are skipped.
func Edges(records []journal.Record) []Edge {
	var out []Edge
	for _, rec := range records {
		switch rec.Type {
		case journal.RecordOp:
			if rec.Prereq != 0 {
				out = append(out, Edge{Prereq: rec.Prereq, Dependent: rec.Seq})
			}
		case journal.RecordLink:
			if rec.Prereq == 0 || len(rec.Payload) < 8 {
				continue
			}
			out = append(out, Edge{
				Prereq:    rec.Prereq,
				Dependent: format.ReadU64(rec.Payload, 0),
			})
		}
	}
	return out
}

// seqHeap is a min-heap of sequence numbers.
type seqHeap []uint64

func (h seqHeap) Len() int            { return len(h) }
func (h seqHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h seqHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *seqHeap) Push(x any) { *h = append(*h, x.(uint64)) }
func (h *seqHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Order returns the sequences in an order honoring every edge, breaking ties
// by sequence so independent records keep journal order. Edges naming
// sequences outside seqs are ignored. A cycle returns ErrCycle naming one
// sequence on it.
func Order(seqs []uint64, edges []Edge) ([]uint64, error) {
	present := make(map[uint64]bool, len(seqs))
	for _, s := range seqs {
		present[s] = true
	}

	indegree := make(map[uint64]int, len(seqs))
	dependents := make(map[uint64][]uint64)
	for _, e := range edges {
		if !present[e.Prereq] || !present[e.Dependent] || e.Prereq == e.Dependent {
			continue
		}
		indegree[e.Dependent]++
		dependents[e.Prereq] = append(dependents[e.Prereq], e.Dependent)
	}

	ready := &seqHeap{}
	for _, s := range seqs {
		if indegree[s] == 0 {
			heap.Push(ready, s)
		}
	}

	out := make([]uint64, 0, len(seqs))
	for ready.Len() > 0 {
		s := heap.Pop(ready).(uint64)
		out = append(out, s)
		for _, d := range dependents[s] {
			indegree[d]--
			if indegree[d] == 0 {
				heap.Push(ready, d)
			}
		}
	}

	if len(out) != len(seqs) {
		for _, s := range seqs {
			if indegree[s] > 0 {
				return nil, fmt.Errorf("%w: sequence %d unreachable", ErrCycle, s)
			}
		}
		return nil, ErrCycle
	}
	return out, nil
}
