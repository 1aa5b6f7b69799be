// Package device implements the block device interface: an abstract
// asynchronous device with open/close/read/write, all I/O aligned to the
// device's logical block size.
//
// Every call is dispatched onto a shared gopool.GoPool and returns a
// Future immediately; the caller decides when (and whether, subject to
// ctx) to wait for it. This is deliberately the only place in the module
// that spawns goroutines for I/O; Manager composes these futures
// sequentially, which is what keeps a single Manager's operations ordered.
package device

import (
	"context"
	"fmt"

	"github.com/cloudwego/gopkg/cache/mempool"
	"github.com/cloudwego/gopkg/concurrency/gopool"

	"github.com/deploymenttheory/go-rbm/internal/rbmerr"
	"github.com/deploymenttheory/go-rbm/internal/types"
)

// pool dispatches every Device operation in this package. A single shared
// pool is appropriate: only one Manager's calls need to stay ordered,
// not each Manager owning a dedicated worker.
var pool = gopool.NewGoPool("rbm-device", nil)

// Device is the narrow, asynchronous device contract: addr and
// len(buf) must be multiples of LogicalBlockSize(); buf must come from
// Alloc (or otherwise be page-aligned).
type Device interface {
	// Open opens the device at path. rw selects read-write vs read-only.
	Open(path string, rw bool) *Future[struct{}]

	// Close releases the device.
	Close() *Future[struct{}]

	// Read reads len(buf) bytes starting at addr into buf.
	Read(addr types.Paddr, buf []byte) *Future[struct{}]

	// Write writes buf to the device starting at addr.
	Write(addr types.Paddr, buf []byte) *Future[struct{}]

	// LogicalBlockSize returns the device's logical block size in bytes.
	LogicalBlockSize() uint32

	// Size returns the current size of the device in bytes.
	Size() (int64, error)
}

// Alloc returns a zeroed, page-aligned buffer of n bytes suitable for use
// with Read/Write, backed by the shared mempool.
func Alloc(n int) []byte {
	b := mempool.Malloc(n)
	for i := range b {
		b[i] = 0
	}
	return b
}

// Free returns a buffer obtained from Alloc to the pool.
func Free(buf []byte) {
	mempool.Free(buf)
}

// noCtx is used by dispatch calls that have no caller-supplied context,
// e.g. inside Device method bodies that don't take one themselves.
func noCtx() context.Context {
	return context.Background()
}

func dispatch[T any](ctx context.Context, f func() (T, error)) *Future[T] {
	fut, resolve := newFuture[T]()
	pool.CtxGo(ctx, func() {
		v, err := f()
		resolve(v, err)
	})
	return fut
}

// alignErr reports a misaligned address/length as an I/O error: the
// contract violation is the caller's, and there is no distinct
// "misaligned" error kind, so this folds into ErrIO.
func alignErr(blockSize uint32, addr types.Paddr, n int) error {
	if int64(addr)%int64(blockSize) != 0 {
		return fmt.Errorf("%w: address %d not aligned to block size %d", rbmerr.ErrIO, addr, blockSize)
	}
	if n%int(blockSize) != 0 {
		return fmt.Errorf("%w: length %d not aligned to block size %d", rbmerr.ErrIO, n, blockSize)
	}
	return nil
}
