// Package manager wires together the
// device, codec, bitmap engine, and allocator into the single entry point
// higher layers use: mkfs a fresh device, open an existing one, and
// perform data-region reads/writes and transactional block allocation.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/deploymenttheory/go-rbm/internal/alloc"
	"github.com/deploymenttheory/go-rbm/internal/bitmapengine"
	"github.com/deploymenttheory/go-rbm/internal/codec"
	"github.com/deploymenttheory/go-rbm/internal/device"
	"github.com/deploymenttheory/go-rbm/internal/rbmerr"
	"github.com/deploymenttheory/go-rbm/internal/txn"
	"github.com/deploymenttheory/go-rbm/internal/types"
)

// Config is the mkfs geometry request: {start, end, block_size,
// total_size}, plus the device path a Manager needs to open it.
type Config struct {
	Path       string
	Start      types.Paddr
	End        types.Paddr
	BlockSize  uint32
	TotalSize  uint64
	CRCEnabled bool
}

func (c Config) validate() error {
	if c.BlockSize == 0 {
		return fmt.Errorf("%w: block size must be non-zero", rbmerr.ErrInvalidConfig)
	}
	// The superblock always occupies exactly one types.SuperblockSize-byte
	// read/write at a block-size-aligned address (types.SuperblockSize's
	// doc comment). A larger block size, or one that doesn't divide it
	// evenly, would make that I/O length misaligned and fail with ErrIO.
	if uint64(c.BlockSize) > types.SuperblockSize || types.SuperblockSize%uint64(c.BlockSize) != 0 {
		return fmt.Errorf("%w: block_size %d must divide superblock size %d", rbmerr.ErrInvalidConfig, c.BlockSize, types.SuperblockSize)
	}
	if uint64(c.End-c.Start) != c.TotalSize {
		return fmt.Errorf("%w: total_size %d does not match end-start %d", rbmerr.ErrInvalidConfig, c.TotalSize, c.End-c.Start)
	}
	if c.TotalSize < 2*uint64(c.BlockSize) {
		return fmt.Errorf("%w: total_size %d smaller than 2 blocks", rbmerr.ErrInvalidConfig, c.TotalSize)
	}
	if c.TotalSize%uint64(c.BlockSize) != 0 {
		return fmt.Errorf("%w: total_size %d not a multiple of block_size %d", rbmerr.ErrInvalidConfig, c.TotalSize, c.BlockSize)
	}
	return nil
}

// Manager is the random-block manager: it exclusively owns a device and
// the in-memory superblock, and serializes every operation issued against
// it: no two operations on one Manager run in parallel.
type Manager struct {
	mu sync.Mutex

	dev    device.Device
	logger *slog.Logger

	super  *types.Superblock
	engine *bitmapengine.Engine
	allocr *alloc.Allocator
}

// New returns a Manager over dev. logger may be nil, in which case
// slog.Default() is used.
func New(dev device.Device, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{dev: dev, logger: logger}
}

// Mkfs formats dev per cfg, or does nothing if a valid superblock already
// exists there (idempotent).
func (m *Manager) Mkfs(ctx context.Context, cfg Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.dev.Open(cfg.Path, true).Wait(ctx); err != nil {
		return err
	}

	if sb, err := m.readSuperblockAt(ctx, cfg.Start); err == nil {
		m.logger.Debug("mkfs: device already formatted, skipping", "uuid", sb.UUID)
		m.adopt(sb)
		return nil
	}

	sb, err := buildFreshSuperblock(cfg)
	if err != nil {
		return err
	}

	if err := m.writeSuperblock(ctx, sb); err != nil {
		return err
	}

	engine := bitmapengine.New(m.dev, sb.BlockSize, sb.StartAllocArea, sb.Feature&types.RbmBitmapBlockCRC != 0)
	if err := initBitmapArea(ctx, engine, sb); err != nil {
		return err
	}

	m.adopt(sb)
	m.logger.Info("mkfs complete", "uuid", sb.UUID, "size", sb.Size, "free_block_count", sb.FreeBlockCount)
	return nil
}

// buildFreshSuperblock computes a fresh superblock's geometry: the
// bitmap's block count is sized from the device's total block count as an
// upper bound on the number of data blocks it must cover (a conservative,
// non-iterative estimate, see DESIGN.md).
func buildFreshSuperblock(cfg Config) (*types.Superblock, error) {
	M := types.MaxBlockByBitmapBlock(cfg.BlockSize)
	totalBlocks := cfg.TotalSize / uint64(cfg.BlockSize)

	bitmapBlocksNeeded := (totalBlocks + M - 1) / M
	if bitmapBlocksNeeded == 0 {
		bitmapBlocksNeeded = 1
	}
	allocAreaSize := bitmapBlocksNeeded * uint64(cfg.BlockSize)

	startAllocArea := cfg.Start + types.Paddr(types.SuperblockSize)
	startDataArea := startAllocArea + types.Paddr(allocAreaSize)

	if startDataArea >= cfg.End {
		return nil, fmt.Errorf("%w: device too small to hold bitmap area", rbmerr.ErrInvalidConfig)
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("%w: generating uuid: %v", rbmerr.ErrIO, err)
	}

	// free_block_count is the actual number of blocks in [startDataArea,
	// End), not the device's total block count minus a fixed reservation:
	// the bitmap area can span more than one block on large devices, so
	// the reserved prefix isn't always exactly 2 blocks. startDataArea <
	// cfg.End is already checked above, so this can't underflow.
	freeBlockCount := uint64(cfg.End-startDataArea) / uint64(cfg.BlockSize)

	var feature uint64
	if cfg.CRCEnabled {
		feature = types.RbmBitmapBlockCRC
	}

	sb := &types.Superblock{
		UUID:           types.UUID(id),
		Magic:          types.RbmMagic,
		Flag:           0,
		Feature:        feature,
		Start:          cfg.Start,
		End:            cfg.End,
		BlockSize:      cfg.BlockSize,
		Size:           cfg.TotalSize,
		FreeBlockCount: freeBlockCount,
		AllocAreaSize:  allocAreaSize,
		StartAllocArea: startAllocArea,
		StartDataArea:  startDataArea,
	}
	return sb, nil
}

// initBitmapArea formats a fresh bitmap area: the whole area is
// first synthesized clear in one pass (establishing well-formed, checksummed
// blocks throughout), then the superblock/bitmap-area reservation and any
// tail slack are overlaid as read-modify-write passes.
func initBitmapArea(ctx context.Context, engine *bitmapengine.Engine, sb *types.Superblock) error {
	M := engine.M()
	bitmapBlocks := uint64(sb.AllocAreaSize) / uint64(sb.BlockSize)
	totalRepresentable := bitmapBlocks * M

	if err := engine.SyncRange(ctx, 0, totalRepresentable-1, types.AllClear); err != nil {
		return err
	}

	reservedBlocks := sb.ReservedBlocks()
	if reservedBlocks > 0 {
		if err := engine.SyncRange(ctx, 0, reservedBlocks-1, types.AllSet); err != nil {
			return err
		}
	}

	totalDataBlocks := sb.TotalDataBlocks()
	lastRealID := reservedBlocks + totalDataBlocks
	if lastRealID < totalRepresentable {
		if err := engine.SyncRange(ctx, lastRealID, totalRepresentable-1, types.AllSet); err != nil {
			return err
		}
	}
	return nil
}

// Open attaches to an already-formatted device: reads and verifies the
// superblock at addr.
func (m *Manager) Open(ctx context.Context, path string, addr types.Paddr) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.dev.Open(path, true).Wait(ctx); err != nil {
		return err
	}

	sb, err := m.readSuperblockAt(ctx, addr)
	if err != nil {
		return err
	}
	m.adopt(sb)
	m.logger.Debug("opened device", "uuid", sb.UUID)
	return nil
}

// Close releases the underlying device.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.dev.Close().Wait(ctx)
	return err
}

func (m *Manager) readSuperblockAt(ctx context.Context, addr types.Paddr) (*types.Superblock, error) {
	buf := device.Alloc(types.SuperblockSize)
	defer device.Free(buf)

	if _, err := m.dev.Read(addr, buf).Wait(ctx); err != nil {
		return nil, err
	}
	return codec.DecodeSuperblock(buf)
}

func (m *Manager) writeSuperblock(ctx context.Context, sb *types.Superblock) error {
	page := codec.EncodeSuperblock(sb)
	_, err := m.dev.Write(sb.Start, page).Wait(ctx)
	return err
}

func (m *Manager) adopt(sb *types.Superblock) {
	m.super = sb
	m.engine = bitmapengine.New(m.dev, sb.BlockSize, sb.StartAllocArea, sb.Feature&types.RbmBitmapBlockCRC != 0)
	m.allocr = alloc.New(m.engine, sb.BlockSize, sb.ReservedBlocks(), sb.TotalDataBlocks())
}

// Superblock returns a copy of the currently adopted in-memory superblock.
func (m *Manager) Superblock() types.Superblock {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.super
}

// PersistSuperblock writes the current in-memory superblock (including
// free_block_count) back to disk. free_block_count is otherwise a soft,
// in-memory hint updated by CompleteAllocation and never persisted
// automatically; callers that need it
// durable call this at a safe point of their choosing.
func (m *Manager) PersistSuperblock(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeSuperblock(ctx, m.super)
}

// Read reads len(buf) bytes from the data region at addr, relative to
// Start, range-checked against the device's total size.
func (m *Manager) Read(ctx context.Context, addr types.Paddr, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkRange(addr, len(buf)); err != nil {
		return err
	}
	_, err := m.dev.Read(m.super.Start+addr, buf).Wait(ctx)
	return err
}

// Write writes buf to the data region at addr, relative to Start,
// range-checked against the device's total size.
func (m *Manager) Write(ctx context.Context, addr types.Paddr, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkRange(addr, len(buf)); err != nil {
		return err
	}
	_, err := m.dev.Write(m.super.Start+addr, buf).Wait(ctx)
	return err
}

func (m *Manager) checkRange(addr types.Paddr, n int) error {
	total := int64(m.super.End - m.super.Start)
	if int64(addr) > total || int64(addr)+int64(n) > total {
		return fmt.Errorf("%w: address %d length %d outside [0, %d)", rbmerr.ErrRange, addr, n, total)
	}
	return nil
}

// BeginTransaction returns a fresh, caller-owned Transaction.
func (m *Manager) BeginTransaction() *txn.Transaction {
	return txn.New()
}

// AllocExtent reserves a contiguous run of size bytes on t.
// It does not touch the on-disk bitmap.
func (m *Manager) AllocExtent(ctx context.Context, t *txn.Transaction, size uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allocr.AllocExtent(ctx, t, size)
}

// FreeExtent records the inclusive byte range [from, to] as freed on t
// It does not touch the on-disk bitmap.
func (m *Manager) FreeExtent(t *txn.Transaction, from, to types.Paddr) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allocr.FreeExtent(t, from, to)
}

// CompleteAllocation persists every delta on t to the on-disk bitmap and
// adjusts the in-memory free_block_count.
func (m *Manager) CompleteAllocation(ctx context.Context, t *txn.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	setCount, clearCount, err := m.allocr.CompleteAllocation(ctx, t)
	if err != nil {
		return err
	}
	m.super.FreeBlockCount = m.super.FreeBlockCount - setCount + clearCount
	return nil
}

// AbortAllocation discards every delta on t. No device I/O is performed.
func (m *Manager) AbortAllocation(t *txn.Transaction) {
	alloc.AbortAllocation(t)
}
