// Package alloc implements the first-fit contiguous free-block scanner and
// the transaction-scoped allocate/free public API built on top of the
// bitmap engine.
package alloc

import (
	"context"
	"fmt"

	"github.com/deploymenttheory/go-rbm/internal/bitmapengine"
	"github.com/deploymenttheory/go-rbm/internal/intervalset"
	"github.com/deploymenttheory/go-rbm/internal/rbmerr"
	"github.com/deploymenttheory/go-rbm/internal/txn"
	"github.com/deploymenttheory/go-rbm/internal/types"
)

// Allocator scans and mutates the on-disk bitmap through an Engine to
// satisfy allocation requests against a fixed number of data blocks.
//
// Data block id 0 is not bitmap bit 0: the superblock and bitmap area
// occupy the first dataAreaBase bits, so data blocks live at bit indices
// [dataAreaBase, dataAreaBase+totalDataBlocks). dataAreaBase translates
// every data-relative id this type works with into the absolute bit
// index the bitmap engine expects.
type Allocator struct {
	engine          *bitmapengine.Engine
	blockSize       uint32
	dataAreaBase    uint64
	totalDataBlocks uint64
}

// New returns an Allocator over totalDataBlocks data blocks, each
// blockSize bytes, addressed through engine. dataAreaBase is the bitmap
// bit index of data block id 0 (the reserved superblock+bitmap-area
// block count).
func New(engine *bitmapengine.Engine, blockSize uint32, dataAreaBase, totalDataBlocks uint64) *Allocator {
	return &Allocator{engine: engine, blockSize: blockSize, dataAreaBase: dataAreaBase, totalDataBlocks: totalDataBlocks}
}

func ceilDivBlocks(size uint64, blockSize uint32) uint64 {
	return (size + uint64(blockSize) - 1) / uint64(blockSize)
}

// FindFreeBlock is find_free_block: a first-fit scan for a contiguous run
// of wanted = ceil(size/block_size) free data blocks, in block-id
// order, skipping any block already allocated on disk or claimed by a
// pending SET delta on tx. The returned ranges hold absolute bitmap bit
// indices (data block id + dataAreaBase), not data-relative ids. Returns
// an empty IntervalSet (not an error) if no such run exists, signaling
// ENOSPC to the caller.
func (a *Allocator) FindFreeBlock(ctx context.Context, tx *txn.Transaction, size uint64) (*intervalset.IntervalSet, error) {
	wanted := ceilDivBlocks(size, a.blockSize)
	if wanted == 0 {
		return intervalset.New(), nil
	}

	M := a.engine.M()

	var (
		curBlockNo uint64
		curBlock   *types.BitmapBlock
		runStart   uint64
		runLen     uint64
		haveRun    bool
	)

	end := a.dataAreaBase + a.totalDataBlocks
	for b := a.dataAreaBase; b < end; b++ {
		blockNo := b / M
		bitIdx := b % M

		if curBlock == nil || curBlockNo != blockNo {
			bb, err := a.engine.ReadBitmapBlock(ctx, blockNo)
			if err != nil {
				return nil, err
			}
			curBlock = bb
			curBlockNo = blockNo
		}

		onDisk := bitmapengine.GetBit(curBlock.Bits, bitIdx)
		pending := tx.PendingSetIntersects(b, 1)

		if onDisk || pending {
			haveRun = false
			runLen = 0
			continue
		}

		if haveRun && b == runStart+runLen {
			runLen++
		} else {
			runStart = b
			runLen = 1
			haveRun = true
		}

		if runLen == wanted {
			result := intervalset.New()
			result.Insert(runStart, runLen)
			return result, nil
		}
	}

	return intervalset.New(), nil
}

// AllocExtent is alloc_extent: finds a free run of the requested size and
// appends a SET delta to tx. It does not touch the on-disk bitmap.
func (a *Allocator) AllocExtent(ctx context.Context, tx *txn.Transaction, size uint64) error {
	found, err := a.FindFreeBlock(ctx, tx, size)
	if err != nil {
		return err
	}
	if found.Empty() {
		return fmt.Errorf("%w: no contiguous run of %d bytes available", rbmerr.ErrNoSpace, size)
	}
	for _, r := range found.Ranges() {
		tx.AddSet(r.Start, r.Len)
	}
	return nil
}

// FreeExtent is free_extent: computes the inclusive, data-relative
// block-id range [from/block_size, to/block_size], shifts it by
// dataAreaBase to get absolute bitmap bit ids, and appends a CLEAR delta
// to tx. from and to are byte offsets relative to start_data_area; to is
// the last byte of the last block to free, not one past the end. It does
// not touch the on-disk bitmap.
func (a *Allocator) FreeExtent(tx *txn.Transaction, from, to types.Paddr) error {
	blockSize := uint64(a.blockSize)
	startBlk := uint64(from) / blockSize
	endBlk := uint64(to) / blockSize
	if endBlk < startBlk {
		return fmt.Errorf("%w: free range end %d precedes start %d", rbmerr.ErrRange, to, from)
	}
	tx.AddClear(a.dataAreaBase+startBlk, endBlk-startBlk+1)
	return nil
}

// AbortAllocation is abort_allocation: clears every delta on tx. No
// device I/O is performed.
func AbortAllocation(tx *txn.Transaction) {
	tx.Reset()
}

// CompleteAllocation is complete_allocation: persists every delta on tx to
// the on-disk bitmap, in delta-insertion order and, within a delta, in
// interval-iteration order, then clears tx. It returns the total block
// counts set and cleared so the caller can adjust free_block_count; the
// superblock itself is not rewritten here (see Manager.PersistSuperblock).
func (a *Allocator) CompleteAllocation(ctx context.Context, tx *txn.Transaction) (setCount, clearCount uint64, err error) {
	for _, d := range tx.Deltas() {
		op := types.AllClear
		if d.Op == txn.OpSet {
			op = types.AllSet
		}
		for _, r := range d.Blocks.Ranges() {
			if err := a.engine.SyncRange(ctx, r.Start, r.End()-1, op); err != nil {
				return setCount, clearCount, err
			}
			if d.Op == txn.OpSet {
				setCount += r.Len
			} else {
				clearCount += r.Len
			}
		}
	}
	tx.Reset()
	return setCount, clearCount, nil
}
