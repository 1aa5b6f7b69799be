package intervalset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertMergesAdjacent(t *testing.T) {
	s := New()
	s.Insert(10, 5) // [10,15)
	s.Insert(15, 5) // [15,20) touches the first range

	require.Len(t, s.Ranges(), 1)
	assert.Equal(t, Range{Start: 10, Len: 10}, s.Ranges()[0])
}

func TestInsertMergesOverlapping(t *testing.T) {
	s := New()
	s.Insert(0, 10)
	s.Insert(5, 10)

	require.Len(t, s.Ranges(), 1)
	assert.Equal(t, Range{Start: 0, Len: 15}, s.Ranges()[0])
}

func TestInsertKeepsDisjointRangesSeparate(t *testing.T) {
	s := New()
	s.Insert(0, 5)
	s.Insert(100, 5)

	require.Len(t, s.Ranges(), 2)
	assert.Equal(t, uint64(0), s.Ranges()[0].Start)
	assert.Equal(t, uint64(100), s.Ranges()[1].Start)
}

func TestInsertBridgesGap(t *testing.T) {
	s := New()
	s.Insert(0, 5)
	s.Insert(10, 5)
	s.Insert(5, 5) // fills the gap, should merge all three into one

	require.Len(t, s.Ranges(), 1)
	assert.Equal(t, Range{Start: 0, Len: 15}, s.Ranges()[0])
}

func TestIntersectsAndContains(t *testing.T) {
	s := New()
	s.Insert(10, 5) // [10,15)

	assert.True(t, s.Contains(10))
	assert.True(t, s.Contains(14))
	assert.False(t, s.Contains(15))
	assert.True(t, s.Intersects(14, 3))
	assert.False(t, s.Intersects(15, 3))
}

func TestClearAndEmpty(t *testing.T) {
	s := New()
	assert.True(t, s.Empty())
	s.Insert(0, 1)
	assert.False(t, s.Empty())
	s.Clear()
	assert.True(t, s.Empty())
}

func TestCount(t *testing.T) {
	s := New()
	s.Insert(0, 4)
	s.Insert(100, 6)
	assert.Equal(t, uint64(10), s.Count())
}
