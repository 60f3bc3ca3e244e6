package router

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	gcommon "github.com/ethereum/go-ethereum/common"
)

// Foreign-environment call encoding. Everything crossing the bridge is
// standard ABI: 4-byte selector plus head/tail argument layout.

const swapRouterABI = `[
	{
		"name": "exactInput",
		"type": "function",
		"inputs": [
			{"name": "path", "type": "bytes"},
			{"name": "recipient", "type": "address"},
			{"name": "amountIn", "type": "uint256"},
			{"name": "amountOutMinimum", "type": "uint256"}
		],
		"outputs": [
			{"name": "amountOut", "type": "uint256"}
		]
	}
]`

const fallbackRouterABI = `[
	{
		"name": "swapExactTokensForTokens",
		"type": "function",
		"inputs": [
			{"name": "amountIn", "type": "uint256"},
			{"name": "amountOutMin", "type": "uint256"},
			{"name": "path", "type": "address[]"},
			{"name": "to", "type": "address"},
			{"name": "deadline", "type": "uint256"}
		],
		"outputs": [
			{"name": "amounts", "type": "uint256[]"}
		]
	}
]`

const quoterABI = `[
	{
		"name": "quoteExactInput",
		"type": "function",
		"stateMutability": "view",
		"inputs": [
			{"name": "path", "type": "bytes"},
			{"name": "amountIn", "type": "uint256"}
		],
		"outputs": [
			{"name": "amountOut", "type": "uint256"}
		]
	}
]`

const erc20ABI = `[
	{
		"name": "approve",
		"type": "function",
		"inputs": [
			{"name": "spender", "type": "address"},
			{"name": "value", "type": "uint256"}
		],
		"outputs": [
			{"name": "", "type": "bool"}
		]
	}
]`

const wrappedNativeABI = `[
	{
		"name": "deposit",
		"type": "function",
		"stateMutability": "payable",
		"inputs": [],
		"outputs": []
	}
]`

var (
	abiOnce      sync.Once
	abiParseErr  error
	parsedSwap   abi.ABI
	parsedFall   abi.ABI
	parsedQuoter abi.ABI
	parsedERC20  abi.ABI
	parsedWrap   abi.ABI
)

func loadABIs() error {
	abiOnce.Do(func() {
		parse := func(dst *abi.ABI, raw string) {
			if abiParseErr != nil {
				return
			}
			parsed, err := abi.JSON(strings.NewReader(raw))
			if err != nil {
				abiParseErr = fmt.Errorf("fail to parse ABI: %w", err)
				return
			}
			*dst = parsed
		}
		parse(&parsedSwap, swapRouterABI)
		parse(&parsedFall, fallbackRouterABI)
		parse(&parsedQuoter, quoterABI)
		parse(&parsedERC20, erc20ABI)
		parse(&parsedWrap, wrappedNativeABI)
	})
	return abiParseErr
}

func packExactInput(path []byte, recipient gcommon.Address, amountIn, amountOutMin *big.Int) ([]byte, error) {
	if err := loadABIs(); err != nil {
		return nil, err
	}
	return parsedSwap.Pack("exactInput", path, recipient, amountIn, amountOutMin)
}

func unpackExactInputOutput(data []byte) (*big.Int, error) {
	if err := loadABIs(); err != nil {
		return nil, err
	}
	out, err := parsedSwap.Unpack("exactInput", data)
	if err != nil {
		return nil, fmt.Errorf("fail to decode exactInput output: %w", err)
	}
	amountOut, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected exactInput output type %T", out[0])
	}
	return amountOut, nil
}

func packSwapExactTokensForTokens(amountIn, amountOutMin *big.Int, path []gcommon.Address, to gcommon.Address, deadline *big.Int) ([]byte, error) {
	if err := loadABIs(); err != nil {
		return nil, err
	}
	return parsedFall.Pack("swapExactTokensForTokens", amountIn, amountOutMin, path, to, deadline)
}

func unpackSwapAmounts(data []byte) (*big.Int, error) {
	if err := loadABIs(); err != nil {
		return nil, err
	}
	out, err := parsedFall.Unpack("swapExactTokensForTokens", data)
	if err != nil {
		return nil, fmt.Errorf("fail to decode swap output: %w", err)
	}
	amounts, ok := out[0].([]*big.Int)
	if !ok || len(amounts) == 0 {
		return nil, fmt.Errorf("unexpected swap output type %T", out[0])
	}
	return amounts[len(amounts)-1], nil
}

func packQuoteExactInput(path []byte, amountIn *big.Int) ([]byte, error) {
	if err := loadABIs(); err != nil {
		return nil, err
	}
	return parsedQuoter.Pack("quoteExactInput", path, amountIn)
}

func unpackQuoteOutput(data []byte) (*big.Int, error) {
	if err := loadABIs(); err != nil {
		return nil, err
	}
	out, err := parsedQuoter.Unpack("quoteExactInput", data)
	if err != nil {
		return nil, fmt.Errorf("fail to decode quote output: %w", err)
	}
	amountOut, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected quote output type %T", out[0])
	}
	return amountOut, nil
}

func packApprove(spender gcommon.Address, value *big.Int) ([]byte, error) {
	if err := loadABIs(); err != nil {
		return nil, err
	}
	return parsedERC20.Pack("approve", spender, value)
}

func packDeposit() ([]byte, error) {
	if err := loadABIs(); err != nil {
		return nil, err
	}
	return parsedWrap.Pack("deposit")
}
