package recovery

import (
	"sync"
	"time"
)

// Stats accumulates counters across recovery runs.
type Stats struct {
	mu               sync.Mutex
	runs             uint64
	failures         uint64
	entriesReplayed  uint64
	partialsResolved uint64
	depsResolved     uint64
	mmapOps          uint64
	totalDuration    time.Duration
	fastest          time.Duration
	slowest          time.Duration
}

// Snapshot is a point-in-time copy of the recovery counters.
type Snapshot struct {
	Runs             uint64
	Failures         uint64
	EntriesReplayed  uint64
	PartialsResolved uint64
	DepsResolved     uint64
	MmapOps          uint64
	AvgDuration      time.Duration
	Fastest          time.Duration
	Slowest          time.Duration
}

func (s *Stats) noteRun(d time.Duration, replayed, partials, deps, mmapOps uint64, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++
	if failed {
		s.failures++
	}
	s.entriesReplayed += replayed
	s.partialsResolved += partials
	s.depsResolved += deps
	s.mmapOps += mmapOps
	s.totalDuration += d
	if s.fastest == 0 || d < s.fastest {
		s.fastest = d
	}
	if d > s.slowest {
		s.slowest = d
	}
}

// Snapshot returns a copy of the counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Runs:             s.runs,
		Failures:         s.failures,
		EntriesReplayed:  s.entriesReplayed,
		PartialsResolved: s.partialsResolved,
		DepsResolved:     s.depsResolved,
		MmapOps:          s.mmapOps,
		Fastest:          s.fastest,
		Slowest:          s.slowest,
	}
	if s.runs > 0 {
		snap.AvgDuration = s.totalDuration / time.Duration(s.runs)
	}
	return snap
}
