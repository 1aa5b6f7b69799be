// Package codec implements the persistent layout's encode/decode: the
// superblock and the bitmap-block record, each checksummed with CRC32C
// (the Castagnoli polynomial).
package codec

import "hash/crc32"

// castagnoli is the CRC32C table. See DESIGN.md for why this stays on
// stdlib hash/crc32 rather than a third-party checksum package.
var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// crc32c computes the CRC32C of data.
func crc32c(data []byte) uint32 {
	return crc32.Checksum(data, castagnoli)
}
