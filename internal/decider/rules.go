// Package decider fuses indicator values and the held position into a single action.
package decider

import (
	"context"
	"math"

	"ta-trading-bot/internal/interfaces"
	"ta-trading-bot/internal/types"
)

const (
	ReasonBuy       = "buy:lower_band+rsi"
	ReasonSell      = "sell:margin+upper_band+macd"
	ReasonHold      = "hold:no_signal"
	ReasonWarmingUp = "hold:indicators_warming_up"
	ReasonNoop      = "hold:observe_only"
)

// Rules buys an oversold dip below the lower band and sells above the upper
// band only when the move clears fees and the configured margin.
type Rules struct {
	FeeRate   float64
	MinMargin float64
	BuyRSI    float64
}

var _ interfaces.Decider = (*Rules)(nil)

func NewRules(feeRate, minMargin, buyRSI float64) *Rules {
	return &Rules{FeeRate: feeRate, MinMargin: minMargin, BuyRSI: buyRSI}
}

// Decide never returns an error; the signature matches deciders that call out.
func (r *Rules) Decide(ctx context.Context, in types.DecisionInput) (types.Decision, error) {
	ind := in.Indicators

	if ShouldBuy(in.Price, ind.BB.Lower, ind.RSI, r.BuyRSI) {
		return types.Decision{Action: types.ActionBuy, Reason: ReasonBuy}, nil
	}

	sellInputs := []float64{ind.BB.Upper, ind.MACD, ind.Signal}
	if in.CostBasis != nil && *in.CostBasis > 0 {
		if ShouldSell(in.Price, *in.CostBasis, ind.BB.Upper, ind.MACD, ind.Signal, r.FeeRate, r.MinMargin) {
			return types.Decision{Action: types.ActionSell, Reason: ReasonSell}, nil
		}
	} else {
		sellInputs = nil
	}

	if hasNaN(in.Price, ind.BB.Lower, ind.RSI) || hasNaN(sellInputs...) {
		return types.Decision{Action: types.ActionHold, Reason: ReasonWarmingUp}, nil
	}
	return types.Decision{Action: types.ActionHold, Reason: ReasonHold}, nil
}

// ShouldBuy requires price strictly below the lower band and RSI strictly below minRSI.
func ShouldBuy(price, lowerBand, rsi, minRSI float64) bool {
	if hasNaN(price, lowerBand, rsi, minRSI) {
		return false
	}
	return price < lowerBand && rsi < minRSI
}

// ShouldSell requires all of:
//   - price covers cost plus fee and margin
//   - price strictly above the upper band
//   - MACD strictly above its signal line
//   - the expected margin clears minMargin plus the round-trip fee
func ShouldSell(price, costBasis, upperBand, macd, signal, feeRate, minMargin float64) bool {
	if hasNaN(price, costBasis, upperBand, macd, signal) || costBasis <= 0 {
		return false
	}
	return price > costBasis*(1+feeRate+minMargin) &&
		price > upperBand &&
		macd > signal &&
		MeetsExpectedMargin(costBasis, price, feeRate, minMargin)
}

// MeetsExpectedMargin reports whether (sell-buy)/buy exceeds minMargin+2*fee.
func MeetsExpectedMargin(buyPrice, sellPrice, feeRate, minMargin float64) bool {
	if hasNaN(buyPrice, sellPrice) || buyPrice <= 0 {
		return false
	}
	return (sellPrice-buyPrice)/buyPrice > minMargin+2*feeRate
}

func hasNaN(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
