package tradelog

import (
	"math"

	"ta-trading-bot/internal/types"
)

const qtyEpsilon = 1e-9

// Lot is the unsold remainder of one BUY fill.
type Lot struct {
	Qty   float64
	Price float64
}

// Book is a FIFO queue of open BUY lots for one symbol. SELL fills consume
// the oldest lots first. Sync applies only the ledger rows it has not seen and
// rebuilds when the ledger no longer starts with what was applied.
type Book struct {
	symbol  string
	lots    []Lot
	applied int
	last    types.Transaction
	// oversold is set when a SELL consumed more than the book held, which
	// means the ledger does not start at a flat position.
	oversold bool
}

func NewBook(symbol string) *Book {
	return &Book{symbol: symbol}
}

// Sync brings the book up to date with the full ledger for its symbol.
// It reports whether a full rebuild was needed.
func (b *Book) Sync(txs []types.Transaction) (rebuilt bool) {
	if len(txs) < b.applied || (b.applied > 0 && !sameTx(txs[b.applied-1], b.last)) {
		b.reset()
		rebuilt = true
	}
	for _, tx := range txs[b.applied:] {
		b.apply(tx)
	}
	b.applied = len(txs)
	if b.applied > 0 {
		b.last = txs[b.applied-1]
	}
	return rebuilt
}

func (b *Book) reset() {
	b.lots = nil
	b.applied = 0
	b.last = types.Transaction{}
	b.oversold = false
}

func (b *Book) apply(tx types.Transaction) {
	if b.symbol != "" && tx.Symbol != b.symbol {
		return
	}
	switch tx.Type {
	case types.ActionBuy:
		if tx.Quantity > 0 {
			b.lots = append(b.lots, Lot{Qty: tx.Quantity, Price: tx.Price})
		}
	case types.ActionSell:
		rest, _ := consume(b.lots, tx.Quantity)
		if remaining := tx.Quantity - openQty(b.lots); remaining > qtyEpsilon {
			b.oversold = true
		}
		b.lots = rest
	}
}

// Lots returns a copy of the open lots, oldest first.
func (b *Book) Lots() []Lot {
	return append([]Lot(nil), b.lots...)
}

func (b *Book) OpenQty() float64 { return openQty(b.lots) }

// Oversold reports whether some SELL in the ledger had no BUY history to match.
func (b *Book) Oversold() bool { return b.oversold }

// CostBasis is the volume-weighted price of the newest open lots that make up
// held. It is unknown when nothing is held or the lots cannot cover held.
func (b *Book) CostBasis(held float64) (float64, bool) {
	if held <= qtyEpsilon {
		return 0, false
	}
	var qty, cost float64
	for i := len(b.lots) - 1; i >= 0 && qty < held-qtyEpsilon; i-- {
		take := math.Min(b.lots[i].Qty, held-qty)
		qty += take
		cost += take * b.lots[i].Price
	}
	if qty < held-qtyEpsilon {
		return 0, false
	}
	return cost / qty, true
}

// Profit is the net result of selling qty at price against the oldest open
// lots. It is unknown when the open lots cannot cover qty.
func (b *Book) Profit(qty, price float64) (float64, bool) {
	if qty <= 0 {
		return 0, false
	}
	_, cost := consume(b.lots, qty)
	if openQty(b.lots) < qty-qtyEpsilon {
		return 0, false
	}
	return qty*price - cost, true
}

// Profit replays txs for symbol and prices a hypothetical sale of qtySold at sellPrice.
func Profit(txs []types.Transaction, symbol string, qtySold, sellPrice float64) (float64, bool) {
	b := NewBook(symbol)
	b.Sync(txs)
	return b.Profit(qtySold, sellPrice)
}

// CostBasis replays txs for symbol and returns the cost of holding held.
func CostBasis(txs []types.Transaction, symbol string, held float64) (float64, bool) {
	b := NewBook(symbol)
	b.Sync(txs)
	return b.CostBasis(held)
}

// consume removes qty from the front of lots without mutating them and
// returns what is left plus the cost of what was taken.
func consume(lots []Lot, qty float64) ([]Lot, float64) {
	rest := make([]Lot, 0, len(lots))
	cost := 0.0
	for _, l := range lots {
		if qty <= qtyEpsilon {
			rest = append(rest, l)
			continue
		}
		take := math.Min(l.Qty, qty)
		cost += take * l.Price
		qty -= take
		if left := l.Qty - take; left > qtyEpsilon {
			rest = append(rest, Lot{Qty: left, Price: l.Price})
		}
	}
	return rest, cost
}

func openQty(lots []Lot) float64 {
	sum := 0.0
	for _, l := range lots {
		sum += l.Qty
	}
	return sum
}

func sameTx(a, b types.Transaction) bool {
	return a.Type == b.Type &&
		a.Symbol == b.Symbol &&
		a.Quantity == b.Quantity &&
		a.Price == b.Price &&
		a.OrderID == b.OrderID &&
		a.Timestamp.Equal(b.Timestamp)
}
