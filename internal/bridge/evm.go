// Package bridge adapts the foreign EVM execution environment behind the
// router's BridgeAdapter interface: value crossings through the bridge
// contract, and raw calls relayed from the delegated execution account.
package bridge

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	gcommon "github.com/ethereum/go-ethereum/common"
	gtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/vaultloop/dca-engine/internal/assets"
	"github.com/vaultloop/dca-engine/internal/capability"
	"github.com/vaultloop/dca-engine/internal/fixedpoint"
	"github.com/vaultloop/dca-engine/internal/router"
	"github.com/vaultloop/dca-engine/internal/types"
)

const bridgeABI = `[
	{
		"name": "bridgeIn",
		"type": "function",
		"stateMutability": "payable",
		"inputs": [
			{"name": "token", "type": "address"},
			{"name": "amount", "type": "uint256"}
		],
		"outputs": []
	},
	{
		"name": "bridgeOut",
		"type": "function",
		"inputs": [
			{"name": "token", "type": "address"},
			{"name": "amount", "type": "uint256"}
		],
		"outputs": []
	}
]`

var (
	bridgeABIOnce   sync.Once
	bridgeABIParsed abi.ABI
	bridgeABIErr    error
)

func parsedBridgeABI() (abi.ABI, error) {
	bridgeABIOnce.Do(func() {
		bridgeABIParsed, bridgeABIErr = abi.JSON(strings.NewReader(bridgeABI))
	})
	return bridgeABIParsed, bridgeABIErr
}

// EVMBridge relays value and calls into the foreign EVM environment through
// the bridge contract, signing with the delegated execution key. Every Call
// is simulated first so revert data comes back even though the receipt only
// carries a status bit.
type EVMBridge struct {
	client   *ethclient.Client
	key      *ecdsa.PrivateKey
	from     gcommon.Address
	contract gcommon.Address
	chainID  *big.Int
	registry assets.Registry
	logger   *logrus.Logger
}

func NewEVMBridge(rpcURL string, hexKey string, contract gcommon.Address, registry assets.Registry, logger *logrus.Logger) (*EVMBridge, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("fail to connect to RPC: %w", err)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("fail to parse executor key: %w", err)
	}
	chainID, err := client.ChainID(context.Background())
	if err != nil {
		return nil, fmt.Errorf("fail to get chain id: %w", err)
	}
	return &EVMBridge{
		client:   client,
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		contract: contract,
		chainID:  chainID,
		registry: registry,
		logger:   logger,
	}, nil
}

func (b *EVMBridge) From() gcommon.Address { return b.from }

func (b *EVMBridge) BridgeIn(ctx context.Context, v capability.Value, fee capability.Value) (capability.Value, error) {
	foreign, ok := b.registry.Resolve(v.Asset)
	if !ok {
		return capability.Value{}, fmt.Errorf("%w: %s has no foreign address", types.ErrRouting, v.Asset)
	}
	parsed, err := parsedBridgeABI()
	if err != nil {
		return capability.Value{}, err
	}
	data, err := parsed.Pack("bridgeIn", foreign.Address, router.ToForeignUnits(v.Amount, foreign.Decimals))
	if err != nil {
		return capability.Value{}, fmt.Errorf("fail to pack bridgeIn: %w", err)
	}
	result, err := b.Call(ctx, b.contract, data, 300_000, nil)
	if err != nil {
		return capability.Value{}, err
	}
	if !result.Ok {
		return capability.Value{}, fmt.Errorf("%w: bridgeIn reverted: %s", types.ErrSwapExecution, result.Error)
	}
	// The crossing consumed the whole advanced fee.
	return capability.Value{Asset: fee.Asset, Amount: 0}, nil
}

func (b *EVMBridge) BridgeOut(ctx context.Context, asset types.AssetID, amount fixedpoint.Amount, fee capability.Value) (capability.Value, capability.Value, error) {
	foreign, ok := b.registry.Resolve(asset)
	if !ok {
		return capability.Value{}, capability.Value{}, fmt.Errorf("%w: %s has no foreign address", types.ErrRouting, asset)
	}
	parsed, err := parsedBridgeABI()
	if err != nil {
		return capability.Value{}, capability.Value{}, err
	}
	data, err := parsed.Pack("bridgeOut", foreign.Address, router.ToForeignUnits(amount, foreign.Decimals))
	if err != nil {
		return capability.Value{}, capability.Value{}, fmt.Errorf("fail to pack bridgeOut: %w", err)
	}
	result, err := b.Call(ctx, b.contract, data, 300_000, nil)
	if err != nil {
		return capability.Value{}, capability.Value{}, err
	}
	if !result.Ok {
		return capability.Value{}, capability.Value{}, fmt.Errorf("%w: bridgeOut reverted: %s", types.ErrSwapExecution, result.Error)
	}
	return capability.Value{Asset: asset, Amount: amount},
		capability.Value{Asset: fee.Asset, Amount: 0}, nil
}

// Call simulates, then signs and sends, then waits for inclusion.
func (b *EVMBridge) Call(ctx context.Context, to gcommon.Address, data []byte, gasLimit uint64, value *big.Int) (router.CallResult, error) {
	sim, err := b.DryCall(ctx, to, data, gasLimit, value)
	if err != nil {
		return router.CallResult{}, err
	}
	if !sim.Ok {
		return sim, nil
	}

	nonce, err := b.client.PendingNonceAt(ctx, b.from)
	if err != nil {
		return router.CallResult{}, fmt.Errorf("fail to get nonce: %w", err)
	}
	gasPrice, err := b.client.SuggestGasPrice(ctx)
	if err != nil {
		return router.CallResult{}, fmt.Errorf("fail to get gas price: %w", err)
	}

	tx := gtypes.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)
	signed, err := gtypes.SignTx(tx, gtypes.LatestSignerForChainID(b.chainID), b.key)
	if err != nil {
		return router.CallResult{}, fmt.Errorf("fail to sign transaction: %w", err)
	}
	if err := b.client.SendTransaction(ctx, signed); err != nil {
		return router.CallResult{}, fmt.Errorf("fail to send transaction: %w", err)
	}

	receipt, err := b.waitMined(ctx, signed.Hash())
	if err != nil {
		return router.CallResult{}, err
	}
	if receipt.Status != gtypes.ReceiptStatusSuccessful {
		return router.CallResult{Ok: false, Error: "transaction reverted"}, nil
	}
	b.logger.WithFields(logrus.Fields{
		"tx_hash": signed.Hash().Hex(),
		"to":      to.Hex(),
	}).Info("foreign call mined")
	// Return data comes from the pre-send simulation; receipts do not
	// carry it.
	return router.CallResult{Ok: true, ReturnData: sim.ReturnData}, nil
}

func (b *EVMBridge) DryCall(ctx context.Context, to gcommon.Address, data []byte, gasLimit uint64, value *big.Int) (router.CallResult, error) {
	ret, err := b.client.CallContract(ctx, ethereum.CallMsg{
		From:  b.from,
		To:    &to,
		Gas:   gasLimit,
		Value: value,
		Data:  data,
	}, nil)
	if err != nil {
		// Reverts surface as RPC errors; report them as a failed call, not
		// a transport failure.
		return router.CallResult{Ok: false, Error: err.Error()}, nil
	}
	return router.CallResult{Ok: true, ReturnData: ret}, nil
}

func (b *EVMBridge) waitMined(ctx context.Context, hash gcommon.Hash) (*gtypes.Receipt, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		receipt, err := b.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
