package txn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newRegistryTxn(id uint64) *Txn {
	return &Txn{id: id, done: make(chan struct{}), ops: make(map[Layer][]*Op)}
}

func TestRegistryInsertGetRemove(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Insert(newRegistryTxn(1), 0))
	require.NoError(t, r.Insert(newRegistryTxn(2), 0))
	require.Equal(t, 2, r.Len())

	got, ok := r.Get(1)
	require.True(t, ok)
	require.EqualValues(t, 1, got.ID())

	r.Remove(1)
	_, ok = r.Get(1)
	require.False(t, ok)
	require.Equal(t, 1, r.Len())
}

func TestRegistryDuplicateID(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Insert(newRegistryTxn(7), 0))
	require.ErrorIs(t, r.Insert(newRegistryTxn(7), 0), ErrInvalid)
}

func TestRegistryLimit(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Insert(newRegistryTxn(1), 2))
	require.NoError(t, r.Insert(newRegistryTxn(2), 2))
	require.ErrorIs(t, r.Insert(newRegistryTxn(3), 2), ErrBusy)
	require.Equal(t, 2, r.Len())
}

func TestRegistryForEachEarlyStop(t *testing.T) {
	r := NewRegistry()
	for id := uint64(1); id <= 5; id++ {
		require.NoError(t, r.Insert(newRegistryTxn(id), 0))
	}
	seen := 0
	r.ForEach(func(*Txn) bool {
		seen++
		return seen < 3
	})
	require.Equal(t, 3, seen)
}
