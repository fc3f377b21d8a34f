package recovery

import (
	"sync/atomic"
	"time"
)

// Progress is the live aggregate for one recovery run. Counters are atomic
// so the reporter goroutine and workers read and write without locks.
type Progress struct {
	total     atomic.Uint64
	completed atomic.Uint64
	started   time.Time
}

func newProgress(total uint64) *Progress {
	p := &Progress{started: time.Now()}
	p.total.Store(total)
	return p
}

// note records one more completed operation.
func (p *Progress) note() { p.completed.Add(1) }

// Total returns the number of operations the run expects to apply.
func (p *Progress) Total() uint64 { return p.total.Load() }

// Completed returns the number of operations applied so far. It is
// non-decreasing within a run.
func (p *Progress) Completed() uint64 { return p.completed.Load() }

// Percent returns completion in [0, 100]. An empty run reports 100.
func (p *Progress) Percent() float64 {
	total := p.total.Load()
	if total == 0 {
		return 100
	}
	pct := float64(p.completed.Load()) * 100 / float64(total)
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Rate returns applied operations per second since the run started.
func (p *Progress) Rate() float64 {
	elapsed := time.Since(p.started).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(p.completed.Load()) / elapsed
}

// ETA estimates the remaining time from the current rate, or zero when the
// rate is unknown.
func (p *Progress) ETA() time.Duration {
	rate := p.Rate()
	if rate <= 0 {
		return 0
	}
	total, done := p.total.Load(), p.completed.Load()
	if done >= total {
		return 0
	}
	return time.Duration(float64(total-done) / rate * float64(time.Second))
}
