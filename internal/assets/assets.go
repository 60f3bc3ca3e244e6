// Package assets maps local asset types to their foreign-environment
// representation and classifies asset pairs by routing strategy.
package assets

import (
	"sync"

	gcommon "github.com/ethereum/go-ethereum/common"

	"github.com/vaultloop/dca-engine/internal/types"
)

// Well-known local asset types.
const (
	Flow  types.AssetID = "FLOW"
	USDCe types.AssetID = "USDC.e"
	WFlow types.AssetID = "WFLOW"
)

// ForeignAsset is one asset's address and precision inside the foreign
// execution environment. Decimals is queried per asset, not assumed 18:
// bridged stablecoins commonly carry 6.
type ForeignAsset struct {
	Address  gcommon.Address
	Decimals uint8
	// Native marks the foreign environment's own currency, which must be
	// wrapped before it can enter a router path.
	Native bool
}

// Registry resolves local asset types to foreign addresses. Resolve returns
// ok == false for assets with no foreign representation; such assets can
// only route same-domain.
type Registry interface {
	Resolve(asset types.AssetID) (ForeignAsset, bool)
}

// StaticRegistry is a fixed in-memory Registry, populated from config at
// startup.
type StaticRegistry struct {
	mu      sync.RWMutex
	entries map[types.AssetID]ForeignAsset
}

func NewStaticRegistry(entries map[types.AssetID]ForeignAsset) *StaticRegistry {
	if entries == nil {
		entries = make(map[types.AssetID]ForeignAsset)
	}
	return &StaticRegistry{entries: entries}
}

func (r *StaticRegistry) Register(asset types.AssetID, foreign ForeignAsset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[asset] = foreign
}

func (r *StaticRegistry) Resolve(asset types.AssetID) (ForeignAsset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.entries[asset]
	return f, ok
}

// PairClassifier decides routing strategy from registry membership: a pair
// routes cross-domain when both legs resolve to foreign addresses.
type PairClassifier struct {
	Registry Registry
}

func (c PairClassifier) RequiresCrossDomain(source, target types.AssetID) bool {
	if c.Registry == nil {
		return false
	}
	_, srcOK := c.Registry.Resolve(source)
	_, dstOK := c.Registry.Resolve(target)
	return srcOK && dstOK
}
