package replay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionCoversRange(t *testing.T) {
	cases := []struct {
		start, end uint64
		workers    int
	}{
		{1, 100, 4},
		{1, 100, 7},
		{0, 1, 8},
		{5, 6, 1},
		{1, 1000, 3},
		{10, 17, 16},
	}
	for _, tc := range cases {
		ranges := Partition(tc.start, tc.end, tc.workers)
		require.NotEmpty(t, ranges)

		// Contiguous and disjoint: each range starts where the previous ended.
		assert.Equal(t, tc.start, ranges[0].Start)
		for i := 1; i < len(ranges); i++ {
			assert.Equal(t, ranges[i-1].End, ranges[i].Start)
		}
		assert.Equal(t, tc.end, ranges[len(ranges)-1].End)

		// Union size equals the input size.
		var total uint64
		for _, r := range ranges {
			require.False(t, r.Empty())
			total += r.Len()
		}
		assert.Equal(t, tc.end-tc.start, total)
		assert.LessOrEqual(t, len(ranges), tc.workers)
	}
}

func TestPartitionEvenSplit(t *testing.T) {
	ranges := Partition(1, 101, 4) // 100 sequences, ceil(100/4) = 25
	require.Len(t, ranges, 4)
	for _, r := range ranges {
		assert.EqualValues(t, 25, r.Len())
	}
}

func TestPartitionDegenerate(t *testing.T) {
	assert.Nil(t, Partition(10, 10, 4), "empty range")
	assert.Nil(t, Partition(10, 5, 4), "inverted range")
	assert.Nil(t, Partition(1, 10, 0), "no workers")
}
