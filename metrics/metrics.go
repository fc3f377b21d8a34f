// Package metrics exports the engine's statistics snapshots as Prometheus
// collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stratafs/stratafs/recovery"
	"github.com/stratafs/stratafs/txn"
)

// TxnSource supplies transaction statistics; *txn.Manager satisfies this.
type TxnSource interface {
	StatsSnapshot() txn.CounterSnapshot
}

// RecoverySource supplies recovery statistics; *recovery.Orchestrator
// satisfies this.
type RecoverySource interface {
	StatsSnapshot() recovery.Snapshot
}

// TxnCollector exposes the transaction manager counters.
type TxnCollector struct {
	src TxnSource

	total      *prometheus.Desc
	commits    *prometheus.Desc
	fails      *prometheus.Desc
	aborts     *prometheus.Desc
	live       *prometheus.Desc
	deadlocks  *prometheus.Desc
	resolved   *prometheus.Desc
	checks     *prometheus.Desc
	violations *prometheus.Desc
	layerErrs  *prometheus.Desc
	txnTime    *prometheus.Desc
	commitTime *prometheus.Desc
}

// NewTxnCollector builds a collector over the transaction statistics.
func NewTxnCollector(src TxnSource) *TxnCollector {
	return &TxnCollector{
		src: src,
		total: prometheus.NewDesc("stratafs_txn_total",
			"Transactions begun.", nil, nil),
		commits: prometheus.NewDesc("stratafs_txn_commits_total",
			"Transactions committed.", nil, nil),
		fails: prometheus.NewDesc("stratafs_txn_failed_commits_total",
			"Commit attempts that failed.", nil, nil),
		aborts: prometheus.NewDesc("stratafs_txn_aborts_total",
			"Transactions aborted.", nil, nil),
		live: prometheus.NewDesc("stratafs_txn_live",
			"Currently live transactions.", nil, nil),
		deadlocks: prometheus.NewDesc("stratafs_txn_deadlocks_detected_total",
			"Deadlocks detected.", nil, nil),
		resolved: prometheus.NewDesc("stratafs_txn_deadlocks_resolved_total",
			"Deadlocks resolved by victim abort.", nil, nil),
		checks: prometheus.NewDesc("stratafs_txn_consistency_checks_total",
			"Consistency audit passes.", nil, nil),
		violations: prometheus.NewDesc("stratafs_txn_consistency_violations_total",
			"Consistency violations found.", nil, nil),
		layerErrs: prometheus.NewDesc("stratafs_txn_layer_errors_total",
			"Layer errors during commit.", []string{"layer"}, nil),
		txnTime: prometheus.NewDesc("stratafs_txn_avg_duration_seconds",
			"Average transaction duration.", nil, nil),
		commitTime: prometheus.NewDesc("stratafs_txn_avg_commit_seconds",
			"Average commit duration.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *TxnCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.total, c.commits, c.fails, c.aborts, c.live, c.deadlocks, c.resolved,
		c.checks, c.violations, c.layerErrs, c.txnTime, c.commitTime,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *TxnCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.StatsSnapshot()
	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	counter(c.total, s.TotalTransactions)
	counter(c.commits, s.SuccessfulCommits)
	counter(c.fails, s.FailedCommits)
	counter(c.aborts, s.AbortedTransactions)
	counter(c.deadlocks, s.DeadlocksDetected)
	counter(c.resolved, s.DeadlocksResolved)
	counter(c.checks, s.ConsistencyChecks)
	counter(c.violations, s.ConsistencyViolations)
	counter(c.layerErrs, s.StorageErrors, "storage")
	counter(c.layerErrs, s.GraphErrors, "graph")
	counter(c.layerErrs, s.SemanticErrors, "semantic")
	counter(c.layerErrs, s.CrossLayerErrors, "cross")
	ch <- prometheus.MustNewConstMetric(c.live, prometheus.GaugeValue, float64(s.LiveTransactions))
	ch <- prometheus.MustNewConstMetric(c.txnTime, prometheus.GaugeValue, s.AvgTxnTime.Seconds())
	ch <- prometheus.MustNewConstMetric(c.commitTime, prometheus.GaugeValue, s.AvgCommitTime.Seconds())
}

// RecoveryCollector exposes the recovery orchestrator counters.
type RecoveryCollector struct {
	src RecoverySource

	runs     *prometheus.Desc
	failures *prometheus.Desc
	replayed *prometheus.Desc
	partials *prometheus.Desc
	deps     *prometheus.Desc
	mmapOps  *prometheus.Desc
	avg      *prometheus.Desc
	fastest  *prometheus.Desc
	slowest  *prometheus.Desc
}

// NewRecoveryCollector builds a collector over the recovery statistics.
func NewRecoveryCollector(src RecoverySource) *RecoveryCollector {
	return &RecoveryCollector{
		src: src,
		runs: prometheus.NewDesc("stratafs_recovery_runs_total",
			"Recovery runs started.", nil, nil),
		failures: prometheus.NewDesc("stratafs_recovery_failures_total",
			"Recovery runs that failed.", nil, nil),
		replayed: prometheus.NewDesc("stratafs_recovery_entries_replayed_total",
			"Journal entries replayed.", nil, nil),
		partials: prometheus.NewDesc("stratafs_recovery_partials_resolved_total",
			"Partial transactions resolved.", nil, nil),
		deps: prometheus.NewDesc("stratafs_recovery_dependencies_resolved_total",
			"Dependency edges honored during replay.", nil, nil),
		mmapOps: prometheus.NewDesc("stratafs_recovery_mmap_operations_total",
			"Journal regions memory-mapped.", nil, nil),
		avg: prometheus.NewDesc("stratafs_recovery_avg_duration_seconds",
			"Average recovery duration.", nil, nil),
		fastest: prometheus.NewDesc("stratafs_recovery_fastest_seconds",
			"Fastest recovery duration.", nil, nil),
		slowest: prometheus.NewDesc("stratafs_recovery_slowest_seconds",
			"Slowest recovery duration.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *RecoveryCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.runs, c.failures, c.replayed, c.partials, c.deps, c.mmapOps,
		c.avg, c.fastest, c.slowest,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *RecoveryCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.StatsSnapshot()
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	counter(c.runs, s.Runs)
	counter(c.failures, s.Failures)
	counter(c.replayed, s.EntriesReplayed)
	counter(c.partials, s.PartialsResolved)
	counter(c.deps, s.DepsResolved)
	counter(c.mmapOps, s.MmapOps)
	ch <- prometheus.MustNewConstMetric(c.avg, prometheus.GaugeValue, s.AvgDuration.Seconds())
	ch <- prometheus.MustNewConstMetric(c.fastest, prometheus.GaugeValue, s.Fastest.Seconds())
	ch <- prometheus.MustNewConstMetric(c.slowest, prometheus.GaugeValue, s.Slowest.Seconds())
}

// Register registers both collectors on the registry.
func Register(reg prometheus.Registerer, txns TxnSource, rec RecoverySource) error {
	if err := reg.Register(NewTxnCollector(txns)); err != nil {
		return err
	}
	return reg.Register(NewRecoveryCollector(rec))
}
