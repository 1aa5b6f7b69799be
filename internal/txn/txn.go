// Package txn implements transaction-scoped allocation deltas: a
// Transaction accumulates SET (allocate) and CLEAR (free) deltas against
// block-id ranges until the owner either persists them via the
// allocator's complete_allocation or discards them via abort_allocation.
package txn

import (
	"sync"

	"github.com/deploymenttheory/go-rbm/internal/intervalset"
)

// Op selects whether a delta marks its blocks allocated or freed.
type Op int

const (
	// OpSet marks blocks as allocated.
	OpSet Op = iota
	// OpClear marks blocks as freed.
	OpClear
)

// AllocDelta is one RbmAllocDelta: a set of block-id ranges and the
// operation to apply to them at commit time.
type AllocDelta struct {
	Op     Op
	Blocks *intervalset.IntervalSet
}

// Transaction is the caller-owned object that records an ordered list of
// deltas until complete_allocation or abort_allocation. A Transaction is
// not safe for concurrent use by more than one caller at a time (it
// assumes one owner), but guards its own state with a mutex so misuse
// fails safely rather than racily.
type Transaction struct {
	mu     sync.Mutex
	deltas []*AllocDelta
}

// New returns a fresh, empty Transaction.
func New() *Transaction {
	return &Transaction{}
}

// AddSet appends a SET delta covering [start, start+length) block ids.
func (t *Transaction) AddSet(start, length uint64) {
	t.addDelta(OpSet, start, length)
}

// AddClear appends a CLEAR delta covering [start, start+length) block ids.
func (t *Transaction) AddClear(start, length uint64) {
	t.addDelta(OpClear, start, length)
}

func (t *Transaction) addDelta(op Op, start, length uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	blocks := intervalset.New()
	blocks.Insert(start, length)
	t.deltas = append(t.deltas, &AllocDelta{Op: op, Blocks: blocks})
}

// Deltas returns the transaction's deltas in insertion order. The returned
// slice and its elements must not be mutated by the caller.
func (t *Transaction) Deltas() []*AllocDelta {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deltas
}

// Reset discards every delta on the transaction (abort_allocation). No
// device I/O is performed.
func (t *Transaction) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deltas = nil
}

// PendingSetIntersects reports whether [id, id+length) overlaps any block
// already claimed by a pending SET delta on this transaction. find_free_block
// uses this to skip candidates another alloc_extent call on the same
// transaction has already reserved: the candidate must be skipped outright,
// not merely short-circuit the inner scan.
func (t *Transaction) PendingSetIntersects(id, length uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, d := range t.deltas {
		if d.Op != OpSet {
			continue
		}
		if d.Blocks.Intersects(id, length) {
			return true
		}
	}
	return false
}
