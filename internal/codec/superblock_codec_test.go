package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-rbm/internal/rbmerr"
	"github.com/deploymenttheory/go-rbm/internal/types"
)

func sampleSuperblock() *types.Superblock {
	return &types.Superblock{
		UUID:            types.UUID{1, 2, 3, 4},
		Magic:           types.RbmMagic,
		Flag:            0,
		Feature:         types.RbmBitmapBlockCRC,
		Start:           0,
		End:             1 << 20,
		BlockSize:       4096,
		Size:            1 << 20,
		FreeBlockCount:  254,
		AllocAreaSize:   4096,
		StartAllocArea:  4096,
		StartDataArea:   8192,
	}
}

func TestSuperblockRoundTrip(t *testing.T) {
	sb := sampleSuperblock()
	page := EncodeSuperblock(sb)
	require.Len(t, page, types.SuperblockSize)

	got, err := DecodeSuperblock(page)
	require.NoError(t, err)

	assert.Equal(t, sb.UUID, got.UUID)
	assert.Equal(t, sb.Magic, got.Magic)
	assert.Equal(t, sb.Feature, got.Feature)
	assert.Equal(t, sb.Start, got.Start)
	assert.Equal(t, sb.End, got.End)
	assert.Equal(t, sb.BlockSize, got.BlockSize)
	assert.Equal(t, sb.Size, got.Size)
	assert.Equal(t, sb.FreeBlockCount, got.FreeBlockCount)
	assert.Equal(t, sb.AllocAreaSize, got.AllocAreaSize)
	assert.Equal(t, sb.StartAllocArea, got.StartAllocArea)
	assert.Equal(t, sb.StartDataArea, got.StartDataArea)
}

func TestSuperblockCRCFlipDetected(t *testing.T) {
	sb := sampleSuperblock()
	page := EncodeSuperblock(sb)

	page[10] ^= 0xFF

	_, err := DecodeSuperblock(page)
	require.Error(t, err)
	assert.ErrorIs(t, err, rbmerr.ErrIO)
}

func TestSuperblockBadMagic(t *testing.T) {
	sb := sampleSuperblock()
	sb.Magic = 0x00
	page := EncodeSuperblock(sb)

	_, err := DecodeSuperblock(page)
	require.Error(t, err)
	assert.ErrorIs(t, err, rbmerr.ErrNotFound)
}

func TestSuperblockPageTooSmall(t *testing.T) {
	_, err := DecodeSuperblock(make([]byte, 4))
	require.Error(t, err)
	assert.ErrorIs(t, err, rbmerr.ErrIO)
}
