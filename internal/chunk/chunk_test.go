package chunk

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intRange(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestAll(t *testing.T) {
	t.Parallel()

	var chunks [][]int
	for c := range All(slices.Values(intRange(26)), 3) {
		chunks = append(chunks, c)
	}

	require.Len(t, chunks, 9)
	assert.Equal(t, []int{0, 1, 2}, chunks[0])
	assert.Equal(t, []int{3, 4, 5}, chunks[1])
	assert.Equal(t, []int{24, 25}, chunks[8], "final chunk is never padded")
}

func TestAll_FinalShortChunk(t *testing.T) {
	t.Parallel()

	var chunks [][]int
	for c := range All(slices.Values(intRange(26)), 10) {
		chunks = append(chunks, c)
	}

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[2], 6)
}

func TestAll_Empty(t *testing.T) {
	t.Parallel()

	count := 0
	for range All(slices.Values([]int{}), 3) {
		count++
	}
	assert.Zero(t, count)
}

func TestAll_EarlyStop(t *testing.T) {
	t.Parallel()

	seen := 0
	for range All(slices.Values(intRange(100)), 5) {
		seen++
		if seen == 2 {
			break
		}
	}
	assert.Equal(t, 2, seen)
}

func TestSlice(t *testing.T) {
	t.Parallel()

	chunks := Slice(intRange(7), 3)
	require.Len(t, chunks, 3)
	assert.Equal(t, []int{6}, chunks[2])

	assert.Nil(t, Slice(intRange(5), 0))
	assert.Nil(t, Slice([]int{}, 3))
}
