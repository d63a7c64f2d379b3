package types

import (
	"fmt"
	"math"
	"time"
)

// Candle is one OHLCV bar. Ts is the open time in unix seconds.
type Candle struct {
	Ts                          int64
	Open, High, Low, Close, Vol float64
}

// Indicators holds the latest value of every indicator for one cycle.
// Undefined values (warm-up, division artifacts) are NaN.
type Indicators struct {
	SMAShort  float64
	SMALong   float64
	RSI       float64
	MACD      float64
	Signal    float64
	Histogram float64
	BB        struct{ Middle, Upper, Lower float64 }
}

// Map flattens the snapshot for decision logs and span attributes.
func (i Indicators) Map() map[string]float64 {
	return map[string]float64{
		"SMA_SHORT": i.SMAShort,
		"SMA_LONG":  i.SMALong,
		"RSI":       i.RSI,
		"MACD":      i.MACD,
		"SIGNAL":    i.Signal,
		"HISTOGRAM": i.Histogram,
		"BB_MID":    i.BB.Middle,
		"BB_UP":     i.BB.Upper,
		"BB_LOW":    i.BB.Lower,
	}
}

// Defined reports whether every value in the snapshot is a real number.
func (i Indicators) Defined() bool {
	for _, v := range i.Map() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// ReasonNoBalance marks a cycle skipped because both balances are zero.
const ReasonNoBalance = "NO_BALANCE"

type Decision struct {
	Action Action  `json:"action"`
	Reason string  `json:"reason"`
	Qty    float64 `json:"qty,omitempty"`
}

// DecisionInput is everything the fusion rules look at in one cycle.
// CostBasis is nil when no base asset is held or the history cannot cover it.
type DecisionInput struct {
	Symbol     string
	Price      float64
	Indicators Indicators
	CostBasis  *float64
}

// Balances maps an asset symbol to its available quantity.
type Balances map[string]float64

// Clone returns an independent copy.
func (b Balances) Clone() Balances {
	out := make(Balances, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

type StepResult struct {
	Symbol     string      `json:"symbol"`
	Decision   Decision    `json:"decision"`
	Price      float64     `json:"price"`
	Time       int64       `json:"time"`
	Indicators Indicators  `json:"-"`
	Balances   Balances    `json:"balances"`
	CostBasis  *float64    `json:"cost_basis,omitempty"`
	Orders     []OrderResp `json:"orders"`
	Reason     string      `json:"reason"`
}

type OrderReq struct {
	Symbol   string
	Side     Action
	Qty      float64
	Price    float64 // last seen price; market orders fill near it
	ClientID string
}

type OrderResp struct {
	OrderID   string  `json:"order_id"`
	ClientID  string  `json:"client_id"`
	Status    string  `json:"status"`
	Message   string  `json:"message"`
	FilledQty float64 `json:"filled_qty"`
	FillPrice float64 `json:"fill_price"`
}

// Transaction is one persisted fill in the transaction ledger.
type Transaction struct {
	Type      Action
	Symbol    string
	Quantity  float64
	Price     float64
	Total     float64
	OrderID   string
	Timestamp time.Time
}

var intervals = map[string]time.Duration{
	"1s": time.Second,
	"1m": time.Minute, "3m": 3 * time.Minute, "5m": 5 * time.Minute, "15m": 15 * time.Minute, "30m": 30 * time.Minute,
	"1h": time.Hour, "2h": 2 * time.Hour, "4h": 4 * time.Hour, "6h": 6 * time.Hour, "8h": 8 * time.Hour, "12h": 12 * time.Hour,
	"1d": 24 * time.Hour, "3d": 72 * time.Hour, "1w": 7 * 24 * time.Hour,
}

// IntervalDuration maps an exchange kline interval ("1m", "4h", ...) to its length.
func IntervalDuration(interval string) (time.Duration, error) {
	d, ok := intervals[interval]
	if !ok {
		return 0, fmt.Errorf("unsupported candle interval %q", interval)
	}
	return d, nil
}
