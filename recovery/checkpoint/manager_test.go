package checkpoint

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratafs/stratafs/journal"
)

func openTestJournal(t *testing.T) *journal.File {
	t.Helper()
	j, err := journal.Open(filepath.Join(t.TempDir(), "cp.journal"), &journal.Options{NoSync: true})
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

// appendRecords commits n single-op transactions, advancing the sequence by
// 3 each (begin + op + commit).
func appendRecords(t *testing.T, j *journal.File, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		txn, err := j.Begin(0, journal.OpWrite)
		require.NoError(t, err)
		_, err = txn.Append(journal.Record{Type: journal.RecordOp, Op: journal.OpWrite, Payload: []byte("x")})
		require.NoError(t, err)
		require.NoError(t, txn.Commit())
	}
}

func TestCreateCapturesPositions(t *testing.T) {
	j := openTestJournal(t)
	appendRecords(t, j, 2) // sequences 1..6

	m, err := NewManager(j, NewMemStore(), nil)
	require.NoError(t, err)

	cp, err := m.Create(context.Background(), Incremental)
	require.NoError(t, err)
	assert.EqualValues(t, 1, cp.ID)
	assert.EqualValues(t, 7, cp.JournalSeq, "captures journal head")
	assert.EqualValues(t, 1, cp.TailSeq)
	assert.True(t, cp.Valid())
	assert.NotEmpty(t, cp.Location)
	assert.EqualValues(t, 1, m.CreatedTotal())
}

func TestCheckpointSequenceMonotonic(t *testing.T) {
	j := openTestJournal(t)
	m, err := NewManager(j, NewMemStore(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	var prev uint64
	for i := 0; i < 4; i++ {
		appendRecords(t, j, 1)
		cp, err := m.Create(ctx, Incremental)
		require.NoError(t, err)
		require.GreaterOrEqual(t, cp.JournalSeq, prev,
			"later checkpoint captures an equal or later sequence")
		prev = cp.JournalSeq
	}
}

func TestLatestReturnsNewest(t *testing.T) {
	j := openTestJournal(t)
	m, err := NewManager(j, NewMemStore(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, ok := m.Latest()
	assert.False(t, ok, "no checkpoints yet")

	first, err := m.Create(ctx, Incremental)
	require.NoError(t, err)
	appendRecords(t, j, 1)
	second, err := m.Create(ctx, Incremental)
	require.NoError(t, err)

	got, ok := m.Latest()
	require.True(t, ok)
	assert.Equal(t, second.ID, got.ID)
	assert.NotEqual(t, first.ID, got.ID)
}

func TestRetentionEvictsOldest(t *testing.T) {
	j := openTestJournal(t)
	store := NewMemStore()
	m, err := NewManager(j, store, &Options{MaxRetained: 2})
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		appendRecords(t, j, 1)
		_, err := m.Create(ctx, Incremental)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, m.Count())
	assert.EqualValues(t, 4, m.CreatedTotal())

	// The store only keeps the retained two.
	kept, err := store.Load()
	require.NoError(t, err)
	require.Len(t, kept, 2)
	assert.EqualValues(t, 3, kept[0].ID)
	assert.EqualValues(t, 4, kept[1].ID)
}

func TestFullCheckpointAdvancesTail(t *testing.T) {
	j := openTestJournal(t)
	appendRecords(t, j, 3)
	m, err := NewManager(j, NewMemStore(), nil)
	require.NoError(t, err)

	cp, err := m.Create(context.Background(), Full)
	require.NoError(t, err)
	assert.Equal(t, cp.JournalSeq, j.Tail(), "full checkpoint truncates the replay range")
}

func TestBetween(t *testing.T) {
	j := openTestJournal(t)
	m, err := NewManager(j, NewMemStore(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	var seqs []uint64
	for i := 0; i < 3; i++ {
		appendRecords(t, j, 1)
		cp, err := m.Create(ctx, Incremental)
		require.NoError(t, err)
		seqs = append(seqs, cp.JournalSeq)
	}

	got := m.Between(seqs[1], seqs[2])
	require.Len(t, got, 2)
	assert.Equal(t, seqs[1], got[0].JournalSeq)
	assert.Equal(t, seqs[2], got[1].JournalSeq)
}

func TestManagerReloadsFromStore(t *testing.T) {
	j := openTestJournal(t)
	appendRecords(t, j, 2)
	store := NewMemStore()

	m1, err := NewManager(j, store, nil)
	require.NoError(t, err)
	cp, err := m1.Create(context.Background(), Full)
	require.NoError(t, err)

	// A second manager over the same store sees the checkpoint.
	m2, err := NewManager(j, store, nil)
	require.NoError(t, err)
	got, ok := m2.Latest()
	require.True(t, ok)
	assert.Equal(t, cp.ID, got.ID)
	assert.Equal(t, cp.JournalSeq, got.JournalSeq)

	// New ids keep counting up, never reuse.
	cp2, err := m2.Create(context.Background(), Incremental)
	require.NoError(t, err)
	assert.Greater(t, cp2.ID, cp.ID)
}

func TestManagerDropsCorruptRows(t *testing.T) {
	j := openTestJournal(t)
	store := NewMemStore()
	bad := &Checkpoint{ID: 9, Type: Full, JournalSeq: 100, Checksum: 0xBAD}
	require.NoError(t, store.Put(bad))

	m, err := NewManager(j, store, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Count())
}
