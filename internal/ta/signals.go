package ta

import (
	"math"

	"ta-trading-bot/internal/types"
)

// Signal is one indicator's view of the latest point. Comparisons are strict
// and any NaN input yields neither side.
type Signal struct {
	Buy, Sell bool
}

func MovingAverageSignal(short, long float64) Signal {
	if anyNaN(short, long) {
		return Signal{}
	}
	return Signal{Buy: short > long, Sell: short < long}
}

func RSISignal(rsi, oversold, overbought float64) Signal {
	if anyNaN(rsi, oversold, overbought) {
		return Signal{}
	}
	return Signal{Buy: rsi < oversold, Sell: rsi > overbought}
}

func MACDSignal(macd, signal, hist float64) Signal {
	if anyNaN(macd, signal, hist) {
		return Signal{}
	}
	return Signal{
		Buy:  macd > signal && hist > 0,
		Sell: macd < signal && hist < 0,
	}
}

func BollingerSignal(price, upper, lower float64) Signal {
	if anyNaN(price, upper, lower) {
		return Signal{}
	}
	return Signal{Buy: price < lower, Sell: price > upper}
}

type Thresholds struct {
	RSIOversold, RSIOverbought float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{RSIOversold: 30, RSIOverbought: 70}
}

type SignalSet struct {
	MovingAverage, RSI, MACD, Bollinger Signal
}

func Signals(price float64, ind types.Indicators, th Thresholds) SignalSet {
	return SignalSet{
		MovingAverage: MovingAverageSignal(ind.SMAShort, ind.SMALong),
		RSI:           RSISignal(ind.RSI, th.RSIOversold, th.RSIOverbought),
		MACD:          MACDSignal(ind.MACD, ind.Signal, ind.Histogram),
		Bollinger:     BollingerSignal(price, ind.BB.Upper, ind.BB.Lower),
	}
}

// Fields flattens the set for structured logs.
func (s SignalSet) Fields() []any {
	return []any{
		"ma_buy", s.MovingAverage.Buy, "ma_sell", s.MovingAverage.Sell,
		"rsi_buy", s.RSI.Buy, "rsi_sell", s.RSI.Sell,
		"macd_buy", s.MACD.Buy, "macd_sell", s.MACD.Sell,
		"bb_buy", s.Bollinger.Buy, "bb_sell", s.Bollinger.Sell,
	}
}

func anyNaN(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
