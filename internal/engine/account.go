package engine

import (
	"fmt"
	"sync"

	"ta-trading-bot/internal/types"
)

// AccountState holds the two balances the engine trades with. In simulation
// it is the source of truth and changes only through ApplyFill; in live mode
// Replace overwrites it with the exchange's numbers every cycle.
type AccountState struct {
	base, quote string

	mu     sync.RWMutex
	bals   types.Balances
	loaded bool
}

func NewAccountState(base, quote string) *AccountState {
	return &AccountState{base: base, quote: quote, bals: types.Balances{base: 0, quote: 0}}
}

func (a *AccountState) Loaded() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.loaded
}

// Replace keeps only the traded pair from b; missing assets count as zero.
func (a *AccountState) Replace(b types.Balances) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bals = types.Balances{a.base: b[a.base], a.quote: b[a.quote]}
	a.loaded = true
}

func (a *AccountState) Base() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.bals[a.base]
}

func (a *AccountState) Quote() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.bals[a.quote]
}

func (a *AccountState) Snapshot() types.Balances {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.bals.Clone()
}

// ApplyFill books a simulated fill. A BUY spends qty*price*(1+fee) quote, a
// SELL credits qty*price*(1-fee). Fills the balances cannot cover are rejected.
func (a *AccountState) ApplyFill(side types.Action, qty, price, feeRate float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch side {
	case types.ActionBuy:
		cost := qty * price * (1 + feeRate)
		if cost > a.bals[a.quote]+balanceEpsilon {
			return fmt.Errorf("%w: BUY costs %.8f %s, have %.8f", ErrInvalidState, cost, a.quote, a.bals[a.quote])
		}
		a.bals[a.quote] = clampZero(a.bals[a.quote] - cost)
		a.bals[a.base] += qty
	case types.ActionSell:
		if qty > a.bals[a.base]+balanceEpsilon {
			return fmt.Errorf("%w: SELL of %.8f %s, have %.8f", ErrInvalidState, qty, a.base, a.bals[a.base])
		}
		a.bals[a.base] = clampZero(a.bals[a.base] - qty)
		a.bals[a.quote] += qty * price * (1 - feeRate)
	default:
		return fmt.Errorf("%w: cannot fill %q", ErrInvalidState, side)
	}
	return nil
}

const balanceEpsilon = 1e-9

func clampZero(v float64) float64 {
	if v < balanceEpsilon {
		return 0
	}
	return v
}
