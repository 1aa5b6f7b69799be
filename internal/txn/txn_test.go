package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddSetAndPendingIntersects(t *testing.T) {
	tx := New()
	tx.AddSet(10, 5) // [10, 15)

	assert.True(t, tx.PendingSetIntersects(12, 1))
	assert.True(t, tx.PendingSetIntersects(14, 3)) // overlaps at 14
	assert.False(t, tx.PendingSetIntersects(15, 1))
	assert.False(t, tx.PendingSetIntersects(0, 10))
}

func TestClearDeltaDoesNotCountAsPendingSet(t *testing.T) {
	tx := New()
	tx.AddClear(10, 5)
	assert.False(t, tx.PendingSetIntersects(10, 5))
}

func TestDeltasInsertionOrder(t *testing.T) {
	tx := New()
	tx.AddSet(0, 1)
	tx.AddClear(5, 1)
	tx.AddSet(10, 1)

	deltas := tx.Deltas()
	require.Len(t, deltas, 3)
	assert.Equal(t, OpSet, deltas[0].Op)
	assert.Equal(t, OpClear, deltas[1].Op)
	assert.Equal(t, OpSet, deltas[2].Op)
}

func TestResetDropsAllDeltas(t *testing.T) {
	tx := New()
	tx.AddSet(0, 4)
	tx.Reset()
	assert.Empty(t, tx.Deltas())
	assert.False(t, tx.PendingSetIntersects(0, 4))
}

func TestTwoAllocsOnSameTxnDoNotOverlap(t *testing.T) {
	tx := New()
	tx.AddSet(0, 2)
	assert.True(t, tx.PendingSetIntersects(0, 2))
	assert.False(t, tx.PendingSetIntersects(2, 2))
	tx.AddSet(2, 2)
	assert.True(t, tx.PendingSetIntersects(2, 2))
}
