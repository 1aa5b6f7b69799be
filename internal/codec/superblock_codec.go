package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/deploymenttheory/go-rbm/internal/rbmerr"
	"github.com/deploymenttheory/go-rbm/internal/types"
)

// superblockEncodedLen is the number of meaningful bytes written by
// EncodeSuperblock; the remainder of a SuperblockSize page is zero padding.
const superblockEncodedLen = 16 /*uuid*/ + 4 /*magic*/ + 8 /*flag*/ + 8 /*feature*/ +
	8 /*start*/ + 8 /*end*/ + 4 /*blocksize*/ + 8 /*size*/ + 8 /*free*/ +
	8 /*allocareasize*/ + 8 /*startallocarea*/ + 8 /*startdataarea*/ + 4 /*crc*/

// EncodeSuperblock serializes sb into a zero-padded, types.SuperblockSize
// page buffer with a fixed field order. Crc is computed over the encoded
// bytes with the crc field itself treated as zero, then written into the
// final 4 bytes of the encoded record.
func EncodeSuperblock(sb *types.Superblock) []byte {
	page := make([]byte, types.SuperblockSize)
	writeSuperblockFields(page, sb, 0)

	// Crc covers the encoded record with the crc field zeroed.
	crc := crc32c(page[:superblockEncodedLen])
	binary.BigEndian.PutUint32(page[superblockEncodedLen-4:superblockEncodedLen], crc)
	return page
}

func writeSuperblockFields(buf []byte, sb *types.Superblock, crc uint32) {
	off := 0
	copy(buf[off:off+16], sb.UUID[:])
	off += 16
	binary.BigEndian.PutUint32(buf[off:off+4], sb.Magic)
	off += 4
	binary.BigEndian.PutUint64(buf[off:off+8], sb.Flag)
	off += 8
	binary.BigEndian.PutUint64(buf[off:off+8], sb.Feature)
	off += 8
	binary.BigEndian.PutUint64(buf[off:off+8], uint64(sb.Start))
	off += 8
	binary.BigEndian.PutUint64(buf[off:off+8], uint64(sb.End))
	off += 8
	binary.BigEndian.PutUint32(buf[off:off+4], sb.BlockSize)
	off += 4
	binary.BigEndian.PutUint64(buf[off:off+8], sb.Size)
	off += 8
	binary.BigEndian.PutUint64(buf[off:off+8], sb.FreeBlockCount)
	off += 8
	binary.BigEndian.PutUint64(buf[off:off+8], sb.AllocAreaSize)
	off += 8
	binary.BigEndian.PutUint64(buf[off:off+8], uint64(sb.StartAllocArea))
	off += 8
	binary.BigEndian.PutUint64(buf[off:off+8], uint64(sb.StartDataArea))
	off += 8
	binary.BigEndian.PutUint32(buf[off:off+4], crc)
}

// DecodeSuperblock parses a types.SuperblockSize page buffer written by
// EncodeSuperblock. A CRC mismatch is rbmerr.ErrIO (corrupt device); a
// magic mismatch is rbmerr.ErrNotFound (device not formatted).
func DecodeSuperblock(page []byte) (*types.Superblock, error) {
	if len(page) < superblockEncodedLen {
		return nil, fmt.Errorf("%w: superblock page too small: %d bytes", rbmerr.ErrIO, len(page))
	}

	storedCrc := binary.BigEndian.Uint32(page[superblockEncodedLen-4 : superblockEncodedLen])

	verifyBuf := make([]byte, superblockEncodedLen)
	copy(verifyBuf, page[:superblockEncodedLen])
	binary.BigEndian.PutUint32(verifyBuf[superblockEncodedLen-4:superblockEncodedLen], 0)
	if crc32c(verifyBuf) != storedCrc {
		return nil, fmt.Errorf("%w: superblock crc mismatch", rbmerr.ErrIO)
	}

	sb := &types.Superblock{}
	off := 0
	copy(sb.UUID[:], page[off:off+16])
	off += 16
	sb.Magic = binary.BigEndian.Uint32(page[off : off+4])
	off += 4

	if sb.Magic != types.RbmMagic {
		return nil, fmt.Errorf("%w: bad superblock magic 0x%x", rbmerr.ErrNotFound, sb.Magic)
	}

	sb.Flag = binary.BigEndian.Uint64(page[off : off+8])
	off += 8
	sb.Feature = binary.BigEndian.Uint64(page[off : off+8])
	off += 8
	sb.Start = types.Paddr(binary.BigEndian.Uint64(page[off : off+8]))
	off += 8
	sb.End = types.Paddr(binary.BigEndian.Uint64(page[off : off+8]))
	off += 8
	sb.BlockSize = binary.BigEndian.Uint32(page[off : off+4])
	off += 4
	sb.Size = binary.BigEndian.Uint64(page[off : off+8])
	off += 8
	sb.FreeBlockCount = binary.BigEndian.Uint64(page[off : off+8])
	off += 8
	sb.AllocAreaSize = binary.BigEndian.Uint64(page[off : off+8])
	off += 8
	sb.StartAllocArea = types.Paddr(binary.BigEndian.Uint64(page[off : off+8]))
	off += 8
	sb.StartDataArea = types.Paddr(binary.BigEndian.Uint64(page[off : off+8]))
	off += 8
	sb.Crc = storedCrc

	return sb, nil
}
