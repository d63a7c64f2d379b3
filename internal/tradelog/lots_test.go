package tradelog

import (
	"math"
	"testing"
	"time"

	"ta-trading-bot/internal/types"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func buy(qty, price float64, i int) types.Transaction {
	return types.Transaction{Type: types.ActionBuy, Symbol: "ETHUSDT", Quantity: qty, Price: price, Total: qty * price, OrderID: "b", Timestamp: t0.Add(time.Duration(i) * time.Minute)}
}

func sell(qty, price float64, i int) types.Transaction {
	return types.Transaction{Type: types.ActionSell, Symbol: "ETHUSDT", Quantity: qty, Price: price, Total: qty * price, OrderID: "s", Timestamp: t0.Add(time.Duration(i) * time.Minute)}
}

func TestProfitRoundTrip(t *testing.T) {
	txs := []types.Transaction{buy(1.0, 100, 0)}
	got, ok := Profit(txs, "ETHUSDT", 0.5, 150)
	if !ok {
		t.Fatal("Expected profit to be known")
	}
	if got != 25 {
		t.Errorf("Expected profit 25, got %v", got)
	}
}

func TestProfitInsufficientHistory(t *testing.T) {
	txs := []types.Transaction{buy(0.2, 100, 0)}
	if _, ok := Profit(txs, "ETHUSDT", 0.5, 150); ok {
		t.Error("Expected unknown profit when BUY history cannot cover the quantity")
	}
	if _, ok := Profit(nil, "ETHUSDT", 0.5, 150); ok {
		t.Error("Expected unknown profit for an empty ledger")
	}
	other := []types.Transaction{{Type: types.ActionBuy, Symbol: "BTCUSDT", Quantity: 5, Price: 10}}
	if _, ok := Profit(other, "ETHUSDT", 0.5, 150); ok {
		t.Error("Expected other symbols to be ignored")
	}
}

func TestProfitConsumesOldestFirst(t *testing.T) {
	txs := []types.Transaction{buy(1, 100, 0), buy(1, 200, 1)}
	got, ok := Profit(txs, "ETHUSDT", 1.5, 300)
	if !ok {
		t.Fatal("Expected profit to be known")
	}
	// 1@100 + 0.5@200 = 200 cost, 450 proceeds
	if got != 250 {
		t.Errorf("Expected 250, got %v", got)
	}
}

func TestCostBasisAfterPartialSell(t *testing.T) {
	txs := []types.Transaction{buy(1, 100, 0), buy(1, 200, 1), sell(1.5, 250, 2)}
	b := NewBook("ETHUSDT")
	b.Sync(txs)

	if got := b.OpenQty(); math.Abs(got-0.5) > 1e-12 {
		t.Fatalf("Expected 0.5 open, got %v", got)
	}
	cost, ok := b.CostBasis(0.5)
	if !ok || cost != 200 {
		t.Errorf("Expected cost basis 200, got %v (%v)", cost, ok)
	}
	if _, ok := b.CostBasis(0.8); ok {
		t.Error("Expected unknown cost basis when holding more than the ledger explains")
	}
	if _, ok := b.CostBasis(0); ok {
		t.Error("Expected unknown cost basis when nothing is held")
	}
}

func TestCostBasisVolumeWeighted(t *testing.T) {
	txs := []types.Transaction{buy(1, 100, 0), buy(3, 200, 1)}
	cost, ok := CostBasis(txs, "ETHUSDT", 4)
	if !ok || cost != 175 {
		t.Errorf("Expected 175, got %v (%v)", cost, ok)
	}
	// Holding less than the lots keeps the newest ones.
	cost, ok = CostBasis(txs, "ETHUSDT", 2)
	if !ok || cost != 200 {
		t.Errorf("Expected 200, got %v (%v)", cost, ok)
	}
}

func TestBookSyncIsIncremental(t *testing.T) {
	b := NewBook("ETHUSDT")
	txs := []types.Transaction{buy(1, 100, 0)}
	if b.Sync(txs) {
		t.Error("Expected first sync not to count as a rebuild")
	}
	txs = append(txs, buy(1, 300, 1))
	if b.Sync(txs) {
		t.Error("Expected appended rows to apply incrementally")
	}
	if cost, _ := b.CostBasis(2); cost != 200 {
		t.Errorf("Expected 200, got %v", cost)
	}

	// A ledger that no longer starts with what was applied forces a rebuild.
	replaced := []types.Transaction{buy(2, 50, 0)}
	if !b.Sync(replaced) {
		t.Error("Expected a rebuild after the ledger changed")
	}
	if cost, _ := b.CostBasis(2); cost != 50 {
		t.Errorf("Expected 50 after rebuild, got %v", cost)
	}
}

func TestBookOversold(t *testing.T) {
	b := NewBook("ETHUSDT")
	b.Sync([]types.Transaction{sell(1, 100, 0), buy(0.5, 80, 1)})
	if !b.Oversold() {
		t.Error("Expected oversold flag for a SELL without history")
	}
	if cost, ok := b.CostBasis(0.5); !ok || cost != 80 {
		t.Errorf("Expected later lots to stay usable, got %v (%v)", cost, ok)
	}
}
