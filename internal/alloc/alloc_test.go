package alloc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-rbm/internal/bitmapengine"
	"github.com/deploymenttheory/go-rbm/internal/device"
	"github.com/deploymenttheory/go-rbm/internal/rbmerr"
	"github.com/deploymenttheory/go-rbm/internal/txn"
	"github.com/deploymenttheory/go-rbm/internal/types"
)

const testBlockSize = 4096

// newTestAllocator returns an Allocator over totalDataBlocks blocks that
// begin at bit index dataAreaBase, mimicking a freshly formatted device: bits
// [0, dataAreaBase) are set (the reserved superblock+bitmap area), every data
// bit is clear (free). A nonzero dataAreaBase is used throughout this file so
// these tests actually exercise the offset between bitmap bit index and
// data-relative block id, rather than masking it by aligning both at 0.
func newTestAllocator(t *testing.T, dataAreaBase, totalDataBlocks uint64) (*Allocator, *bitmapengine.Engine) {
	t.Helper()
	M := types.MaxBlockByBitmapBlock(testBlockSize)
	total := dataAreaBase + totalDataBlocks
	bitmapBlocks := (total + M - 1) / M
	if bitmapBlocks == 0 {
		bitmapBlocks = 1
	}

	dev := device.NewMemDevice(testBlockSize)
	dev.Truncate(int64(bitmapBlocks * testBlockSize))
	_, err := dev.Open("", true).Wait(context.Background())
	require.NoError(t, err)

	engine := bitmapengine.New(dev, testBlockSize, 0, true)
	require.NoError(t, engine.SyncRange(context.Background(), 0, bitmapBlocks*M-1, types.AllClear))
	if dataAreaBase > 0 {
		require.NoError(t, engine.SyncRange(context.Background(), 0, dataAreaBase-1, types.AllSet))
	}

	return New(engine, testBlockSize, dataAreaBase, totalDataBlocks), engine
}

func TestAllocExtentContiguityOnFreshDevice(t *testing.T) {
	const base = 2
	a, _ := newTestAllocator(t, base, 256)
	tx := txn.New()

	require.NoError(t, a.AllocExtent(context.Background(), tx, 2*testBlockSize))

	deltas := tx.Deltas()
	require.Len(t, deltas, 1)
	require.Equal(t, txn.OpSet, deltas[0].Op)

	ranges := deltas[0].Blocks.Ranges()
	require.Len(t, ranges, 1)
	assert.Equal(t, uint64(base), ranges[0].Start)
	assert.Equal(t, uint64(2), ranges[0].Len)
}

func TestAllocExtentRestartsOnGap(t *testing.T) {
	const base = 2
	a, engine := newTestAllocator(t, base, 256)

	// Pre-allocate [base,base+5) except leave a gap at base+5 unusable for
	// the requested run: allocate [base,base+5) and [base+6,base+10) so only
	// a single free slot sits inside an otherwise busy region, forcing the
	// 3-block request past it.
	require.NoError(t, engine.SyncRange(context.Background(), base+0, base+4, types.AllSet))
	require.NoError(t, engine.SyncRange(context.Background(), base+6, base+9, types.AllSet))
	// block base+5 is free but isolated; a run of 3 cannot start there.

	tx := txn.New()
	require.NoError(t, a.AllocExtent(context.Background(), tx, 3*testBlockSize))

	ranges := tx.Deltas()[0].Blocks.Ranges()
	require.Len(t, ranges, 1)
	assert.Equal(t, uint64(base+10), ranges[0].Start)
	assert.Equal(t, uint64(3), ranges[0].Len)
}

func TestTransactionIsolationWithinTxn(t *testing.T) {
	a, _ := newTestAllocator(t, 2, 256)
	tx := txn.New()

	require.NoError(t, a.AllocExtent(context.Background(), tx, 2*testBlockSize))
	require.NoError(t, a.AllocExtent(context.Background(), tx, 2*testBlockSize))

	deltas := tx.Deltas()
	require.Len(t, deltas, 2)

	first := deltas[0].Blocks.Ranges()[0]
	second := deltas[1].Blocks.Ranges()[0]
	assert.False(t, second.Start < first.End() && first.Start < second.End(), "ranges must be disjoint")
}

func TestAbortIsPure(t *testing.T) {
	a, engine := newTestAllocator(t, 2, 256)

	before, err := engine.ReadBitmapBlock(context.Background(), 0)
	require.NoError(t, err)
	beforeBits := append([]byte{}, before.Bits...)

	tx := txn.New()
	require.NoError(t, a.AllocExtent(context.Background(), tx, testBlockSize))
	AbortAllocation(tx)

	assert.Empty(t, tx.Deltas())

	after, err := engine.ReadBitmapBlock(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, beforeBits, after.Bits)
}

func TestCompleteAllocationAppliesDeltasAndCounts(t *testing.T) {
	const base = 2
	a, engine := newTestAllocator(t, base, 256)
	tx := txn.New()

	require.NoError(t, a.AllocExtent(context.Background(), tx, 2*testBlockSize))
	setCount, clearCount, err := a.CompleteAllocation(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), setCount)
	assert.Equal(t, uint64(0), clearCount)
	assert.Empty(t, tx.Deltas())

	bb, err := engine.ReadBitmapBlock(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, bitmapengine.GetBit(bb.Bits, base))
	assert.True(t, bitmapengine.GetBit(bb.Bits, base+1))
	assert.False(t, bitmapengine.GetBit(bb.Bits, base+2))
}

func TestFreeExtentRoundTrip(t *testing.T) {
	const base = 2
	a, engine := newTestAllocator(t, base, 256)

	tx1 := txn.New()
	require.NoError(t, a.AllocExtent(context.Background(), tx1, 2*testBlockSize))
	_, _, err := a.CompleteAllocation(context.Background(), tx1)
	require.NoError(t, err)

	// from/to are byte offsets relative to start_data_area (block id 0),
	// not absolute bitmap bit indices.
	tx2 := txn.New()
	require.NoError(t, a.FreeExtent(tx2, 0, types.Paddr(2*testBlockSize-1)))
	setCount, clearCount, err := a.CompleteAllocation(context.Background(), tx2)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), setCount)
	assert.Equal(t, uint64(2), clearCount)

	bb, err := engine.ReadBitmapBlock(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, bitmapengine.GetBit(bb.Bits, base))
	assert.False(t, bitmapengine.GetBit(bb.Bits, base+1))
}

// TestENOSPC mirrors the manager-level S5 scenario: a small device whose
// data area sits behind a nonzero reserved-bit offset. Allocating every data
// block must succeed; only the following allocation must report ENOSPC.
func TestENOSPC(t *testing.T) {
	a, _ := newTestAllocator(t, 2, 2)
	tx := txn.New()

	require.NoError(t, a.AllocExtent(context.Background(), tx, 2*testBlockSize))
	_, _, err := a.CompleteAllocation(context.Background(), tx)
	require.NoError(t, err)

	tx2 := txn.New()
	err = a.AllocExtent(context.Background(), tx2, testBlockSize)
	require.Error(t, err)
	assert.ErrorIs(t, err, rbmerr.ErrNoSpace)
	assert.Empty(t, tx2.Deltas())
}
