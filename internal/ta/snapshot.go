package ta

import (
	"fmt"
	"math"

	"ta-trading-bot/internal/types"
)

// Params are the indicator windows used for one snapshot.
type Params struct {
	SMAShort   int
	SMALong    int
	RSIPeriod  int
	MACDFast   int
	MACDSlow   int
	MACDSignal int
	BBWindow   int
	BBStdDev   float64
}

func DefaultParams() Params {
	return Params{
		SMAShort:   5,
		SMALong:    10,
		RSIPeriod:  14,
		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,
		BBWindow:   20,
		BBStdDev:   2,
	}
}

func (p Params) Validate() error {
	if p.SMAShort <= 0 || p.SMALong <= 0 || p.RSIPeriod <= 0 || p.MACDFast <= 0 || p.MACDSlow <= 0 || p.MACDSignal <= 0 {
		return fmt.Errorf("indicator windows must be positive: %+v", p)
	}
	if p.BBWindow < 2 {
		return fmt.Errorf("bollinger window must be at least 2, got %d", p.BBWindow)
	}
	if p.BBStdDev <= 0 {
		return fmt.Errorf("bollinger stddev multiplier must be positive, got %.2f", p.BBStdDev)
	}
	return nil
}

// LongestWindow is the minimum series length for every value to be defined.
func (p Params) LongestWindow() int {
	longest := 0
	for _, w := range []int{p.SMAShort, p.SMALong, p.RSIPeriod, p.MACDSlow, p.BBWindow} {
		if w > longest {
			longest = w
		}
	}
	return longest
}

// Compute returns the latest value of every indicator. The MACD values are
// NaN until the series covers the slow EMA span.
func Compute(closes []float64, p Params) types.Indicators {
	var ind types.Indicators
	ind.SMAShort = SMA(closes, p.SMAShort)
	ind.SMALong = SMA(closes, p.SMALong)
	ind.RSI = RSI(closes, p.RSIPeriod)

	ind.MACD, ind.Signal, ind.Histogram = math.NaN(), math.NaN(), math.NaN()
	if len(closes) >= p.MACDSlow {
		m := MACDSeries(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)
		ind.MACD, ind.Signal, ind.Histogram = Last(m.Line), Last(m.Signal), Last(m.Histogram)
	}

	ind.BB.Middle, ind.BB.Upper, ind.BB.Lower = Bollinger(closes, p.BBWindow, p.BBStdDev)
	return ind
}

// Closes extracts closing prices, oldest first.
func Closes(cs []types.Candle) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Close
	}
	return out
}
