// Package capability models the scoped authorization tokens the engine
// holds against external asset accounts. Tokens are validated handles:
// revocable independently of the holder, checked before every use, never a
// raw reference to the underlying account.
package capability

import (
	"fmt"
	"sync"

	"github.com/vaultloop/dca-engine/internal/fixedpoint"
	"github.com/vaultloop/dca-engine/internal/types"
)

// Token is a scoped authorization handle. Check must be called before the
// capability is exercised; a revoked token fails every subsequent operation.
type Token interface {
	Check() error
}

// Value is a quantity of one asset in flight between accounts. It is
// produced by Withdraw and consumed by Deposit or a swap.
type Value struct {
	Asset  types.AssetID
	Amount fixedpoint.Amount
}

// AssetAccount is a scoped token over one external asset account.
type AssetAccount interface {
	Token
	Asset() types.AssetID
	Withdraw(amount fixedpoint.Amount) (Value, error)
	Deposit(v Value) error
	Balance() (fixedpoint.Amount, error)
}

// LedgerAccount is an in-process AssetAccount backed by a balance counter.
// It backs the same-domain exchange path and the test harness; production
// deployments substitute adapters over the real ledger accounts.
type LedgerAccount struct {
	mu      sync.Mutex
	asset   types.AssetID
	balance fixedpoint.Amount
	revoked bool
}

func NewLedgerAccount(asset types.AssetID, balance fixedpoint.Amount) *LedgerAccount {
	return &LedgerAccount{asset: asset, balance: balance}
}

// Revoke invalidates the token. Every later Check, Withdraw and Deposit
// fails with ErrCapability.
func (a *LedgerAccount) Revoke() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.revoked = true
}

func (a *LedgerAccount) Check() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.revoked {
		return fmt.Errorf("%w: token revoked for %s", types.ErrCapability, a.asset)
	}
	return nil
}

func (a *LedgerAccount) Asset() types.AssetID { return a.asset }

func (a *LedgerAccount) Withdraw(amount fixedpoint.Amount) (Value, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.revoked {
		return Value{}, fmt.Errorf("%w: token revoked for %s", types.ErrCapability, a.asset)
	}
	if amount > a.balance {
		return Value{}, fmt.Errorf("%w: withdraw %s exceeds balance %s of %s",
			types.ErrInsufficientFunds, amount, a.balance, a.asset)
	}
	a.balance -= amount
	return Value{Asset: a.asset, Amount: amount}, nil
}

func (a *LedgerAccount) Deposit(v Value) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.revoked {
		return fmt.Errorf("%w: token revoked for %s", types.ErrCapability, a.asset)
	}
	if v.Asset != a.asset {
		return fmt.Errorf("%w: deposit of %s into %s account", types.ErrValidation, v.Asset, a.asset)
	}
	a.balance += v.Amount
	return nil
}

func (a *LedgerAccount) Balance() (fixedpoint.Amount, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.revoked {
		return 0, fmt.Errorf("%w: token revoked for %s", types.ErrCapability, a.asset)
	}
	return a.balance, nil
}

// StaticToken is a standalone revocable token with no account behind it,
// used for the scheduling-service and delegated-executor scopes.
type StaticToken struct {
	mu      sync.Mutex
	scope   string
	revoked bool
}

func NewStaticToken(scope string) *StaticToken {
	return &StaticToken{scope: scope}
}

func (t *StaticToken) Revoke() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.revoked = true
}

func (t *StaticToken) Check() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.revoked {
		return fmt.Errorf("%w: %s token revoked", types.ErrCapability, t.scope)
	}
	return nil
}
