package predictchain

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarketLayout(t *testing.T) {
	keys := generateKeys(t, 3)
	market := &Market{
		BumpSeed:         254,
		ResolveAuthority: keys[0],
		YesMint:          keys[1],
		NoMint:           keys[2],
		Volume:           50_000_000,
	}

	data, err := market.Marshal()
	require.NoError(t, err)
	require.Len(t, data, MarketSizeV1)
	assert.Equal(t, byte(254), data[0])
	assert.Equal(t, keys[0][:], data[1:33])
	assert.Equal(t, keys[1][:], data[33:65])
	assert.Equal(t, keys[2][:], data[65:97])
	assert.Equal(t, uint64(50_000_000), binary.LittleEndian.Uint64(data[97:]))

	decoded, err := UnpackMarket(data)
	require.NoError(t, err)
	assert.Equal(t, market, decoded)
}

func TestUnpackMarket_Length(t *testing.T) {
	for _, size := range []int{0, 1, MarketSizeV1 - 1, MarketSizeV1 + 1, 130} {
		t.Run(fmt.Sprint(size), func(t *testing.T) {
			assert.Equal(t, LayoutUnknown, DetectLayout(make([]byte, size)))
			_, err := UnpackMarket(make([]byte, size))
			assert.ErrorIs(t, err, ErrInvalidAccountData)
		})
	}
	assert.Equal(t, LayoutV1, DetectLayout(make([]byte, MarketSizeV1)))
}

func TestMarketPack(t *testing.T) {
	keys := generateKeys(t, 2)
	market := &Market{BumpSeed: 1, YesMint: keys[0], NoMint: keys[1], Volume: 9}

	dst := make([]byte, MarketSizeV1)
	require.NoError(t, market.Pack(dst))
	decoded, err := UnpackMarket(dst)
	require.NoError(t, err)
	assert.Equal(t, market, decoded)

	assert.ErrorIs(t, market.Pack(make([]byte, 10)), ErrInvalidAccountData)
}

func TestMarketMintFor(t *testing.T) {
	keys := generateKeys(t, 2)
	market := &Market{YesMint: keys[0], NoMint: keys[1]}
	yes, err := market.MintFor(SideYes)
	require.NoError(t, err)
	assert.Equal(t, keys[0], yes)
	no, err := market.MintFor(SideNo)
	require.NoError(t, err)
	assert.Equal(t, keys[1], no)
	_, err = market.MintFor(2)
	assert.ErrorIs(t, err, ErrInvalidSideIndex)
	assert.False(t, (&Market{YesMint: keys[0]}).IsInitialized())
}

func TestErrorCodes(t *testing.T) {
	assert.Equal(t, uint32(0), ErrGeneric.CustomCode())
	assert.Equal(t, uint32(5), ErrAuthorityMismatch.CustomCode())
	assert.Equal(t, uint32(15), ErrOverflow.CustomCode())

	wrapped := fmt.Errorf("purchase: %w", ErrInvalidSideIndex)
	assert.Equal(t, uint32(ErrInvalidSideIndex), Code(wrapped))
	assert.Equal(t, uint32(ErrGeneric), Code(fmt.Errorf("unrelated")))
	assert.NotEmpty(t, ErrMintFailed.Error())
}
