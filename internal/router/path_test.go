package router

import (
	"testing"

	gcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	tokenA = gcommon.HexToAddress("0xd3bF53DAC106A0290B0483EcBC89d40FcC961f3e")
	tokenB = gcommon.HexToAddress("0xF1815bd50389c46847f0Bda824eC8da914045D14")
	tokenC = gcommon.HexToAddress("0x1e4a5963aBFD975d8c9021ce480b42188849D41d")
)

func TestEncodePath(t *testing.T) {
	path, err := EncodePath([]gcommon.Address{tokenA, tokenB}, []uint32{3000})
	require.NoError(t, err)
	require.Len(t, path, 2*addressLen+feeLen)
	require.Equal(t, tokenA.Bytes(), path[:20])
	require.Equal(t, []byte{0x00, 0x0b, 0xb8}, path[20:23])
	require.Equal(t, tokenB.Bytes(), path[23:])
}

func TestEncodePathMultiHop(t *testing.T) {
	path, err := EncodePath([]gcommon.Address{tokenA, tokenB, tokenC}, []uint32{500, 10000})
	require.NoError(t, err)
	require.Len(t, path, 3*addressLen+2*feeLen)
	require.Equal(t, []byte{0x00, 0x01, 0xf4}, path[20:23])
	require.Equal(t, []byte{0x00, 0x27, 0x10}, path[43:46])
}

func TestEncodePathValidation(t *testing.T) {
	tests := []struct {
		name   string
		tokens []gcommon.Address
		fees   []uint32
	}{
		{
			name:   "single token",
			tokens: []gcommon.Address{tokenA},
			fees:   nil,
		},
		{
			name:   "fee count mismatch",
			tokens: []gcommon.Address{tokenA, tokenB},
			fees:   []uint32{3000, 500},
		},
		{
			name:   "fee tier overflows 3 bytes",
			tokens: []gcommon.Address{tokenA, tokenB},
			fees:   []uint32{1 << 24},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodePath(tt.tokens, tt.fees)
			require.Error(t, err)
		})
	}
}

func TestReversePathIsByteReverse(t *testing.T) {
	tokens := []gcommon.Address{tokenA, tokenB, tokenC}
	fees := []uint32{500, 3000}

	forward, err := EncodePath(tokens, fees)
	require.NoError(t, err)
	reverse, err := ReversePath(tokens, fees)
	require.NoError(t, err)

	// The reverse direction must be the same hops traversed backwards:
	// token sequence and fee-tier sequence both reversed.
	require.Equal(t, tokenC.Bytes(), reverse[:20])
	require.Equal(t, []byte{0x00, 0x0b, 0xb8}, reverse[20:23])
	require.Equal(t, tokenB.Bytes(), reverse[23:43])
	require.Equal(t, []byte{0x00, 0x01, 0xf4}, reverse[43:46])
	require.Equal(t, tokenA.Bytes(), reverse[46:])
	require.Len(t, reverse, len(forward))
}

func TestReversePathRoundTrip(t *testing.T) {
	tokens := []gcommon.Address{tokenA, tokenB}
	fees := []uint32{3000}

	forward, err := EncodePath(tokens, fees)
	require.NoError(t, err)

	revTokens := []gcommon.Address{tokenB, tokenA}
	twice, err := ReversePath(revTokens, fees)
	require.NoError(t, err)
	require.Equal(t, forward, twice)
}
