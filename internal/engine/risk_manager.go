package engine

import (
	"context"

	"ta-trading-bot/internal/logger"
	"ta-trading-bot/internal/types"
)

// riskManager is the last check before an order leaves: the balances must
// cover the order including fees.
type riskManager struct {
	feeRate float64
}

func newRiskManager(feeRate float64) *riskManager {
	return &riskManager{feeRate: feeRate}
}

// checkFunds returns false, and logs a risk event, when the order cannot be paid for.
func (rm *riskManager) checkFunds(ctx context.Context, symbol string, side types.Action, qty, price float64, bals *AccountState) bool {
	switch side {
	case types.ActionBuy:
		required := rm.requiredQuote(qty, price)
		if bals.Quote() < required {
			logger.Risk(ctx, symbol, "INSUFFICIENT_QUOTE",
				"side", side,
				"qty", qty,
				"price", price,
				"required", required,
				"available", bals.Quote(),
			)
			return false
		}
	case types.ActionSell:
		if bals.Base() < qty {
			logger.Risk(ctx, symbol, "INSUFFICIENT_BASE",
				"side", side,
				"qty", qty,
				"available", bals.Base(),
			)
			return false
		}
	default:
		return false
	}
	return true
}

func (rm *riskManager) requiredQuote(qty, price float64) float64 {
	return qty * price * (1 + rm.feeRate)
}
