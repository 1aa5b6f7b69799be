package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-rbm/internal/rbmerr"
	"github.com/deploymenttheory/go-rbm/internal/types"
)

func TestBitmapBlockRoundTrip(t *testing.T) {
	bits := make([]byte, 4096-types.BitmapBlockHeaderSize)
	bits[0] = 0b00000101

	page := EncodeBitmapBlock(bits, 4096, true)
	require.Len(t, page, 4096)

	got, err := DecodeBitmapBlock(page, true)
	require.NoError(t, err)
	assert.Equal(t, bits, got.Bits)
	assert.Equal(t, uint32(len(bits)), got.PayloadSize)
}

func TestBitmapBlockCRCMismatchDetected(t *testing.T) {
	bits := make([]byte, 4096-types.BitmapBlockHeaderSize)
	page := EncodeBitmapBlock(bits, 4096, true)

	page[types.BitmapBlockHeaderSize] ^= 0xFF

	_, err := DecodeBitmapBlock(page, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, rbmerr.ErrIO)
}

func TestBitmapBlockNoCRCSkipsVerification(t *testing.T) {
	bits := make([]byte, 4096-types.BitmapBlockHeaderSize)
	page := EncodeBitmapBlock(bits, 4096, false)
	page[types.BitmapBlockHeaderSize] ^= 0xFF

	_, err := DecodeBitmapBlock(page, false)
	require.NoError(t, err)
}

func TestSynthesizeBitmapBlockAllSet(t *testing.T) {
	page := SynthesizeBitmapBlock(4096, types.AllSet, true)
	bb, err := DecodeBitmapBlock(page, true)
	require.NoError(t, err)
	for _, b := range bb.Bits {
		assert.Equal(t, byte(0xFF), b)
	}
}

func TestSynthesizeBitmapBlockAllClear(t *testing.T) {
	page := SynthesizeBitmapBlock(4096, types.AllClear, true)
	bb, err := DecodeBitmapBlock(page, true)
	require.NoError(t, err)
	for _, b := range bb.Bits {
		assert.Equal(t, byte(0x00), b)
	}
}
