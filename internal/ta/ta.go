// Package ta computes technical indicators over closing prices.
//
// Every series function returns a new slice the same length as its input,
// oldest first. Points without enough history are NaN.
package ta

import "math"

// SMASeries is the rolling simple mean; entries before the first full window are NaN.
func SMASeries(closes []float64, n int) []float64 {
	out := nanSeries(len(closes))
	if n <= 0 {
		return out
	}
	for i := n - 1; i < len(closes); i++ {
		sum := 0.0
		for _, v := range closes[i-n+1 : i+1] {
			sum += v
		}
		out[i] = sum / float64(n)
	}
	return out
}

// RSISeries clips price deltas into gains and losses and averages each over a
// rolling window. The first delta has no predecessor and counts as zero.
// A window with no losses is 100 when it has gains and NaN when flat.
func RSISeries(closes []float64, period int) []float64 {
	out := nanSeries(len(closes))
	if period <= 0 {
		return out
	}
	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains[i] = d
		} else if d < 0 {
			losses[i] = -d
		}
	}
	avgGain := SMASeries(gains, period)
	avgLoss := SMASeries(losses, period)
	for i := range closes {
		g, l := avgGain[i], avgLoss[i]
		switch {
		case math.IsNaN(g) || math.IsNaN(l):
		case l == 0 && g > 0:
			out[i] = 100
		case l == 0:
		default:
			out[i] = 100 - 100/(1+g/l)
		}
	}
	return out
}

// EMASeries uses alpha 2/(span+1) seeded by the first defined value, without
// bias adjustment. Leading NaNs stay NaN; later NaNs repeat the previous value.
func EMASeries(values []float64, span int) []float64 {
	out := nanSeries(len(values))
	if span <= 0 {
		return out
	}
	alpha := 2.0 / (float64(span) + 1)
	prev := math.NaN()
	for i, v := range values {
		switch {
		case math.IsNaN(v):
		case math.IsNaN(prev):
			prev = v
		default:
			prev = alpha*v + (1-alpha)*prev
		}
		out[i] = prev
	}
	return out
}

// MACD holds the MACD line, its signal EMA and their difference, aligned with the input.
type MACD struct {
	Line, Signal, Histogram []float64
}

// MACDSeries computes EMA(fast) - EMA(slow) and its EMA(signal).
func MACDSeries(closes []float64, fast, slow, signal int) MACD {
	emaFast := EMASeries(closes, fast)
	emaSlow := EMASeries(closes, slow)
	line := make([]float64, len(closes))
	for i := range closes {
		line[i] = emaFast[i] - emaSlow[i]
	}
	sig := EMASeries(line, signal)
	hist := make([]float64, len(closes))
	for i := range closes {
		hist[i] = line[i] - sig[i]
	}
	return MACD{Line: line, Signal: sig, Histogram: hist}
}

// StdDevSeries is the rolling sample standard deviation (n-1 denominator).
func StdDevSeries(values []float64, n int) []float64 {
	out := nanSeries(len(values))
	if n < 2 {
		return out
	}
	mean := SMASeries(values, n)
	for i := n - 1; i < len(values); i++ {
		s := 0.0
		for _, v := range values[i-n+1 : i+1] {
			d := v - mean[i]
			s += d * d
		}
		out[i] = math.Sqrt(s / float64(n-1))
	}
	return out
}

// Bands are Bollinger bands aligned with the input closes.
type Bands struct {
	Middle, Upper, Lower []float64
}

// BollingerSeries is SMA(n) plus and minus k sample standard deviations.
func BollingerSeries(closes []float64, n int, k float64) Bands {
	mid := SMASeries(closes, n)
	sd := StdDevSeries(closes, n)
	b := Bands{Middle: mid, Upper: make([]float64, len(closes)), Lower: make([]float64, len(closes))}
	for i := range closes {
		b.Upper[i] = mid[i] + k*sd[i]
		b.Lower[i] = mid[i] - k*sd[i]
	}
	return b
}

// Last returns the newest value, or NaN for an empty series.
func Last(series []float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}

func SMA(closes []float64, n int) float64 { return Last(SMASeries(closes, n)) }

func RSI(closes []float64, period int) float64 { return Last(RSISeries(closes, period)) }

func StdDev(vals []float64, n int) float64 { return Last(StdDevSeries(vals, n)) }

func Bollinger(closes []float64, n int, k float64) (mid, up, low float64) {
	b := BollingerSeries(closes, n, k)
	return Last(b.Middle), Last(b.Upper), Last(b.Lower)
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
