package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/deploymenttheory/go-rbm/internal/rbmerr"
	"github.com/deploymenttheory/go-rbm/internal/types"
)

// EncodeBitmapBlock serializes a bitmap block into a blockSize-sized page:
// an 8-byte header (PayloadSize, Checksum) followed by the bit array,
// zero-padded to fill the remainder of the page. withCRC selects whether
// Checksum is (re)computed over bits, matching the superblock's
// RbmBitmapBlockCRC feature bit.
func EncodeBitmapBlock(bits []byte, blockSize uint32, withCRC bool) []byte {
	page := make([]byte, blockSize)

	var checksum uint32
	if withCRC {
		checksum = crc32c(bits)
	}

	binary.BigEndian.PutUint32(page[0:4], uint32(len(bits)))
	binary.BigEndian.PutUint32(page[4:8], checksum)
	copy(page[types.BitmapBlockHeaderSize:], bits)
	return page
}

// DecodeBitmapBlock parses a blockSize-sized bitmap block page written by
// EncodeBitmapBlock. When withCRC is set, a checksum mismatch is reported
// as rbmerr.ErrIO: the bitmap region is corrupt.
func DecodeBitmapBlock(page []byte, withCRC bool) (*types.BitmapBlock, error) {
	if uint32(len(page)) < types.BitmapBlockHeaderSize {
		return nil, fmt.Errorf("%w: bitmap block page too small: %d bytes", rbmerr.ErrIO, len(page))
	}

	payloadSize := binary.BigEndian.Uint32(page[0:4])
	checksum := binary.BigEndian.Uint32(page[4:8])

	maxPayload := uint32(len(page)) - types.BitmapBlockHeaderSize
	if payloadSize > maxPayload {
		return nil, fmt.Errorf("%w: bitmap block payload size %d exceeds page capacity %d", rbmerr.ErrIO, payloadSize, maxPayload)
	}

	bits := make([]byte, payloadSize)
	copy(bits, page[types.BitmapBlockHeaderSize:uint32(types.BitmapBlockHeaderSize)+payloadSize])

	if withCRC {
		if got := crc32c(bits); got != checksum {
			return nil, fmt.Errorf("%w: bitmap block crc mismatch", rbmerr.ErrIO)
		}
	}

	return &types.BitmapBlock{
		PayloadSize: payloadSize,
		Checksum:    checksum,
		Bits:        bits,
	}, nil
}

// SynthesizeBitmapBlock builds a full blockSize page for a bitmap block
// that is being entirely overwritten by op (AllSet or AllClear), without
// reading the previous contents; the bitmap engine builds every block of
// the fully-aligned case, and the fully covered blocks after the first
// block of the front-unaligned cases, this way rather than
// read-modify-write them.
func SynthesizeBitmapBlock(blockSize uint32, op types.BitOp, withCRC bool) []byte {
	payload := make([]byte, blockSize-types.BitmapBlockHeaderSize)
	if op == types.AllSet {
		for i := range payload {
			payload[i] = 0xFF
		}
	}
	return EncodeBitmapBlock(payload, blockSize, withCRC)
}
