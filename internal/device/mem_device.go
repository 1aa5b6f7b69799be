package device

import (
	"fmt"
	"sync"

	"github.com/deploymenttheory/go-rbm/internal/rbmerr"
	"github.com/deploymenttheory/go-rbm/internal/types"
)

// MemDevice is an in-memory Device, grown on demand, used by tests that
// exercise mkfs/open/alloc without touching the filesystem.
type MemDevice struct {
	blockSize uint32

	mu     sync.Mutex
	opened bool
	data   []byte
}

// NewMemDevice returns a MemDevice with the given logical block size.
func NewMemDevice(blockSize uint32) *MemDevice {
	return &MemDevice{blockSize: blockSize}
}

func (d *MemDevice) LogicalBlockSize() uint32 { return d.blockSize }

func (d *MemDevice) Size() (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.data)), nil
}

func (d *MemDevice) Open(path string, rw bool) *Future[struct{}] {
	return dispatch(noCtx(), func() (struct{}, error) {
		d.mu.Lock()
		d.opened = true
		d.mu.Unlock()
		return struct{}{}, nil
	})
}

func (d *MemDevice) Close() *Future[struct{}] {
	return dispatch(noCtx(), func() (struct{}, error) {
		d.mu.Lock()
		d.opened = false
		d.mu.Unlock()
		return struct{}{}, nil
	})
}

func (d *MemDevice) Read(addr types.Paddr, buf []byte) *Future[struct{}] {
	if err := alignErr(d.blockSize, addr, len(buf)); err != nil {
		fut, resolve := newFuture[struct{}]()
		resolve(struct{}{}, err)
		return fut
	}
	return dispatch(noCtx(), func() (struct{}, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		if !d.opened {
			return struct{}{}, fmt.Errorf("%w: device not open", rbmerr.ErrIO)
		}
		end := int64(addr) + int64(len(buf))
		if end > int64(len(d.data)) {
			return struct{}{}, fmt.Errorf("%w: read at %d len %d beyond device size %d", rbmerr.ErrIO, addr, len(buf), len(d.data))
		}
		copy(buf, d.data[int64(addr):end])
		return struct{}{}, nil
	})
}

func (d *MemDevice) Write(addr types.Paddr, buf []byte) *Future[struct{}] {
	if err := alignErr(d.blockSize, addr, len(buf)); err != nil {
		fut, resolve := newFuture[struct{}]()
		resolve(struct{}{}, err)
		return fut
	}
	return dispatch(noCtx(), func() (struct{}, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		if !d.opened {
			return struct{}{}, fmt.Errorf("%w: device not open", rbmerr.ErrIO)
		}
		end := int64(addr) + int64(len(buf))
		if end > int64(len(d.data)) {
			grown := make([]byte, end)
			copy(grown, d.data)
			d.data = grown
		}
		copy(d.data[int64(addr):end], buf)
		return struct{}{}, nil
	})
}

// Truncate grows the backing buffer to exactly size bytes, used by tests
// to pre-size a device before mkfs the way a real block device is
// pre-sized by its enclosing storage system.
func (d *MemDevice) Truncate(size int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int64(len(d.data)) == size {
		return
	}
	grown := make([]byte, size)
	copy(grown, d.data)
	d.data = grown
}
