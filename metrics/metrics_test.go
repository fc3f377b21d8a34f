package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratafs/stratafs/recovery"
	"github.com/stratafs/stratafs/txn"
)

type fixedTxn struct{ snap txn.CounterSnapshot }

func (f fixedTxn) StatsSnapshot() txn.CounterSnapshot { return f.snap }

type fixedRecovery struct{ snap recovery.Snapshot }

func (f fixedRecovery) StatsSnapshot() recovery.Snapshot { return f.snap }

func TestTxnCollector(t *testing.T) {
	c := NewTxnCollector(fixedTxn{snap: txn.CounterSnapshot{
		TotalTransactions: 10,
		SuccessfulCommits: 7,
		FailedCommits:     1,
		StorageErrors:     2,
		LiveTransactions:  3,
		AvgCommitTime:     500 * time.Millisecond,
	}})

	expected := `
		# HELP stratafs_txn_total Transactions begun.
		# TYPE stratafs_txn_total counter
		stratafs_txn_total 10
		# HELP stratafs_txn_commits_total Transactions committed.
		# TYPE stratafs_txn_commits_total counter
		stratafs_txn_commits_total 7
		# HELP stratafs_txn_live Currently live transactions.
		# TYPE stratafs_txn_live gauge
		stratafs_txn_live 3
		# HELP stratafs_txn_avg_commit_seconds Average commit duration.
		# TYPE stratafs_txn_avg_commit_seconds gauge
		stratafs_txn_avg_commit_seconds 0.5
	`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"stratafs_txn_total", "stratafs_txn_commits_total",
		"stratafs_txn_live", "stratafs_txn_avg_commit_seconds"))
}

func TestTxnCollectorLayerLabels(t *testing.T) {
	c := NewTxnCollector(fixedTxn{snap: txn.CounterSnapshot{StorageErrors: 4, GraphErrors: 1}})
	expected := `
		# HELP stratafs_txn_layer_errors_total Layer errors during commit.
		# TYPE stratafs_txn_layer_errors_total counter
		stratafs_txn_layer_errors_total{layer="cross"} 0
		stratafs_txn_layer_errors_total{layer="graph"} 1
		stratafs_txn_layer_errors_total{layer="semantic"} 0
		stratafs_txn_layer_errors_total{layer="storage"} 4
	`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"stratafs_txn_layer_errors_total"))
}

func TestRecoveryCollector(t *testing.T) {
	c := NewRecoveryCollector(fixedRecovery{snap: recovery.Snapshot{
		Runs:             3,
		Failures:         1,
		EntriesReplayed:  250,
		PartialsResolved: 2,
		AvgDuration:      2 * time.Second,
	}})
	expected := `
		# HELP stratafs_recovery_runs_total Recovery runs started.
		# TYPE stratafs_recovery_runs_total counter
		stratafs_recovery_runs_total 3
		# HELP stratafs_recovery_entries_replayed_total Journal entries replayed.
		# TYPE stratafs_recovery_entries_replayed_total counter
		stratafs_recovery_entries_replayed_total 250
		# HELP stratafs_recovery_avg_duration_seconds Average recovery duration.
		# TYPE stratafs_recovery_avg_duration_seconds gauge
		stratafs_recovery_avg_duration_seconds 2
	`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"stratafs_recovery_runs_total", "stratafs_recovery_entries_replayed_total",
		"stratafs_recovery_avg_duration_seconds"))
}

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg, fixedTxn{}, fixedRecovery{}))
	assert.Error(t, Register(reg, fixedTxn{}, fixedRecovery{}), "double registration")
}
