package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratafs/stratafs/journal"
)

// writeTestJournal creates a journal with committed and partial transactions
// and returns its path.
func writeTestJournal(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.journal")
	jnl, err := journal.Open(path, &journal.Options{NoSync: true})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		txn, err := jnl.Begin(0, journal.OpWrite)
		require.NoError(t, err)
		_, err = txn.Append(journal.Record{
			Type: journal.RecordOp, Layers: 1, Op: journal.OpWrite, Payload: []byte("v"),
		})
		require.NoError(t, err)
		require.NoError(t, txn.Commit())
	}
	// One partial transaction: begin + op, no terminal.
	txn, err := jnl.Begin(0, journal.OpCreate)
	require.NoError(t, err)
	_, err = txn.Append(journal.Record{
		Type: journal.RecordOp, Layers: 1, Op: journal.OpCreate, Payload: []byte("v"),
	})
	require.NoError(t, err)

	require.NoError(t, jnl.Close())
	return path
}

func TestStatsCommand(t *testing.T) {
	quiet = true
	defer func() { quiet = false }()
	require.NoError(t, runStats(writeTestJournal(t)))
}

func TestStatsCommandMissingFile(t *testing.T) {
	quiet = true
	defer func() { quiet = false }()
	require.Error(t, runStats(filepath.Join(t.TempDir(), "nope.journal")))
}

func TestVerifyCommandHealthy(t *testing.T) {
	quiet = true
	defer func() { quiet = false }()
	require.NoError(t, runVerify(writeTestJournal(t)))
}

func TestRecoverCommand(t *testing.T) {
	quiet = true
	defer func() { quiet = false }()
	recoverWorkers = 2
	defer func() { recoverWorkers = 0 }()
	require.NoError(t, runRecover(writeTestJournal(t)))
}

func TestRecoverCommandWithConfig(t *testing.T) {
	quiet = true
	defer func() { quiet = false }()
	cfgPath := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("recovery.replay_workers: 2\n"), 0o644))
	recoverConfig = cfgPath
	defer func() { recoverConfig = "" }()
	require.NoError(t, runRecover(writeTestJournal(t)))
}

func TestRecoverFromCheckpointRequiresStore(t *testing.T) {
	quiet = true
	defer func() { quiet = false }()
	recoverCheckpoint = true
	defer func() { recoverCheckpoint = false }()
	require.Error(t, runRecover(writeTestJournal(t)))
}

func TestCheckpointCreateAndList(t *testing.T) {
	quiet = true
	defer func() { quiet = false }()
	path := writeTestJournal(t)
	checkpointStore = filepath.Join(t.TempDir(), "checkpoints.db")

	require.NoError(t, runCheckpointCreate(path))
	require.NoError(t, runCheckpointList(path))
}

func TestLayerNames(t *testing.T) {
	assert.Equal(t, "storage", layerNames(1))
	assert.Equal(t, "storage+graph", layerNames(3))
	assert.Equal(t, "semantic", layerNames(4))
	assert.Equal(t, "none", layerNames(0))
}
