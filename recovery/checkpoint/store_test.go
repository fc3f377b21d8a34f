package checkpoint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStoreCopiesRows(t *testing.T) {
	store := NewMemStore()
	cp := &Checkpoint{
		ID: 1, Type: Full, JournalSeq: 10, TailSeq: 1,
		Location: "checkpoint-a", Created: time.Now(),
	}
	cp.Checksum = cp.computeChecksum()
	cp.Retain()
	require.NoError(t, store.Put(cp))

	// Mutating the original after Put must not leak into the store.
	cp.JournalSeq = 99

	rows, err := store.Load()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	got := rows[0]
	assert.EqualValues(t, 10, got.JournalSeq)
	assert.True(t, got.Valid())
	assert.True(t, got.Release(), "stored copies start unreferenced")
}

func TestMemStoreDeleteUnknown(t *testing.T) {
	store := NewMemStore()
	require.NoError(t, store.Delete(42))
	rows, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, rows)
}
