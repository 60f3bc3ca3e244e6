package router

import (
	"fmt"

	gcommon "github.com/ethereum/go-ethereum/common"

	"github.com/vaultloop/dca-engine/internal/types"
)

const (
	addressLen = 20
	feeLen     = 3
	maxFeeTier = 1<<24 - 1
)

// EncodePath packs a multi-hop swap path for the foreign router:
// token0 ‖ fee0 ‖ token1 ‖ fee1 ‖ ... ‖ tokenN, with each fee tier as a
// 3-byte big-endian value. Tokens and fee tiers are emitted in traversal
// order, so the reverse direction of a path is the exact reverse of its
// token and fee-tier sequences.
func EncodePath(tokens []gcommon.Address, fees []uint32) ([]byte, error) {
	if len(tokens) < 2 {
		return nil, fmt.Errorf("%w: path needs at least 2 tokens, got %d", types.ErrRouting, len(tokens))
	}
	if len(fees) != len(tokens)-1 {
		return nil, fmt.Errorf("%w: path with %d tokens needs %d fee tiers, got %d",
			types.ErrRouting, len(tokens), len(tokens)-1, len(fees))
	}

	path := make([]byte, 0, len(tokens)*addressLen+len(fees)*feeLen)
	for i, token := range tokens {
		path = append(path, token.Bytes()...)
		if i < len(fees) {
			fee := fees[i]
			if fee > maxFeeTier {
				return nil, fmt.Errorf("%w: fee tier %d exceeds 3 bytes", types.ErrRouting, fee)
			}
			path = append(path, byte(fee>>16), byte(fee>>8), byte(fee))
		}
	}
	return path, nil
}

// ReversePath encodes the opposite traversal direction of the same hops.
func ReversePath(tokens []gcommon.Address, fees []uint32) ([]byte, error) {
	revTokens := make([]gcommon.Address, len(tokens))
	for i, token := range tokens {
		revTokens[len(tokens)-1-i] = token
	}
	revFees := make([]uint32, len(fees))
	for i, fee := range fees {
		revFees[len(fees)-1-i] = fee
	}
	return EncodePath(revTokens, revFees)
}
