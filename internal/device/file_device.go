package device

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/deploymenttheory/go-rbm/internal/rbmerr"
	"github.com/deploymenttheory/go-rbm/internal/types"
)

// FileDevice is an os.File-backed Device: a plain file or raw device node.
type FileDevice struct {
	blockSize uint32
	logger    *slog.Logger

	mu   sync.Mutex
	file *os.File
}

// NewFileDevice returns a FileDevice with the given logical block size.
// logger may be nil, in which case slog.Default() is used.
func NewFileDevice(blockSize uint32, logger *slog.Logger) *FileDevice {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileDevice{blockSize: blockSize, logger: logger}
}

func (d *FileDevice) LogicalBlockSize() uint32 { return d.blockSize }

func (d *FileDevice) Size() (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return 0, fmt.Errorf("%w: device not open", rbmerr.ErrIO)
	}
	fi, err := d.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: stat: %v", rbmerr.ErrIO, err)
	}
	return fi.Size(), nil
}

func (d *FileDevice) Open(path string, rw bool) *Future[struct{}] {
	flags := os.O_RDONLY
	if rw {
		flags = os.O_RDWR | os.O_CREATE
	}
	return dispatch(noCtx(), func() (struct{}, error) {
		f, err := os.OpenFile(path, flags, 0o644)
		if err != nil {
			if os.IsNotExist(err) {
				return struct{}{}, fmt.Errorf("%w: %s: %v", rbmerr.ErrNotFound, path, err)
			}
			return struct{}{}, fmt.Errorf("%w: open %s: %v", rbmerr.ErrIO, path, err)
		}
		d.mu.Lock()
		d.file = f
		d.mu.Unlock()
		d.logger.Debug("device opened", "path", path, "rw", rw)
		return struct{}{}, nil
	})
}

func (d *FileDevice) Close() *Future[struct{}] {
	return dispatch(noCtx(), func() (struct{}, error) {
		d.mu.Lock()
		f := d.file
		d.file = nil
		d.mu.Unlock()
		if f == nil {
			return struct{}{}, nil
		}
		if err := f.Close(); err != nil {
			return struct{}{}, fmt.Errorf("%w: close: %v", rbmerr.ErrIO, err)
		}
		return struct{}{}, nil
	})
}

func (d *FileDevice) Read(addr types.Paddr, buf []byte) *Future[struct{}] {
	if err := alignErr(d.blockSize, addr, len(buf)); err != nil {
		fut, resolve := newFuture[struct{}]()
		resolve(struct{}{}, err)
		return fut
	}
	return dispatch(noCtx(), func() (struct{}, error) {
		d.mu.Lock()
		f := d.file
		d.mu.Unlock()
		if f == nil {
			return struct{}{}, fmt.Errorf("%w: device not open", rbmerr.ErrIO)
		}
		if _, err := f.ReadAt(buf, int64(addr)); err != nil {
			return struct{}{}, fmt.Errorf("%w: read at %d: %v", rbmerr.ErrIO, addr, err)
		}
		return struct{}{}, nil
	})
}

func (d *FileDevice) Write(addr types.Paddr, buf []byte) *Future[struct{}] {
	if err := alignErr(d.blockSize, addr, len(buf)); err != nil {
		fut, resolve := newFuture[struct{}]()
		resolve(struct{}{}, err)
		return fut
	}
	return dispatch(noCtx(), func() (struct{}, error) {
		d.mu.Lock()
		f := d.file
		d.mu.Unlock()
		if f == nil {
			return struct{}{}, fmt.Errorf("%w: device not open", rbmerr.ErrIO)
		}
		if _, err := f.WriteAt(buf, int64(addr)); err != nil {
			return struct{}{}, fmt.Errorf("%w: write at %d: %v", rbmerr.ErrIO, addr, err)
		}
		// The manager assumes writes are durable on resolution; the device
		// owns ordering/flushing.
		if err := f.Sync(); err != nil {
			return struct{}{}, fmt.Errorf("%w: sync: %v", rbmerr.ErrIO, err)
		}
		return struct{}{}, nil
	})
}
