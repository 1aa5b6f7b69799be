package types

// Superblock constants.
const (
	// RbmMagic is the sentinel value identifying a formatted device.
	// A mismatch means "no valid superblock" (rbmerr.ErrNotFound).
	RbmMagic uint32 = 0xFF

	// SuperblockSize is the on-disk size of the superblock in bytes, read and
	// written as one SuperblockSize-byte I/O at Start. It does not depend on
	// the device's configured BlockSize: mkfs accepts only block sizes that
	// divide it, so with a smaller BlockSize the superblock spans
	// SuperblockSize/BlockSize logical blocks.
	SuperblockSize = 4096
)

// Feature bits for Superblock.Feature.
const (
	// RbmBitmapBlockCRC enables per-bitmap-block CRC32C checksums.
	RbmBitmapBlockCRC uint64 = 1 << 0
)

// Superblock is the on-disk RbmMetadataHeader: the single record at `start`
// describing device geometry and allocator state.
type Superblock struct {
	UUID   UUID
	Magic  uint32
	Flag   uint64
	Feature uint64

	Start Paddr
	End   Paddr

	BlockSize uint32
	Size      uint64 // total_size = End - Start

	FreeBlockCount uint64

	AllocAreaSize   uint64
	StartAllocArea  Paddr
	StartDataArea   Paddr

	// Crc is the CRC32C of the rest of the superblock, computed with this
	// field treated as zero.
	Crc uint32
}

// TotalDataBlocks returns the number of blocks in [StartDataArea, End).
func (s *Superblock) TotalDataBlocks() uint64 {
	dataBytes := uint64(s.End) - uint64(s.StartDataArea)
	return dataBytes / uint64(s.BlockSize)
}

// ReservedBlocks returns the number of leading bitmap bit indices occupied
// by the superblock and bitmap area itself, i.e. the bit index at which
// the data area (block id 0) begins.
func (s *Superblock) ReservedBlocks() uint64 {
	return uint64(s.StartDataArea-s.Start) / uint64(s.BlockSize)
}
