package tradelog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ta-trading-bot/internal/types"
)

func TestCSVLedgerWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "tx.csv")
	l, err := NewCSVLedger(path)
	if err != nil {
		t.Fatalf("NewCSVLedger: %v", err)
	}
	ctx := context.Background()

	if txs, err := l.Transactions(ctx, "ETHUSDT"); err != nil || len(txs) != 0 {
		t.Fatalf("Expected empty ledger, got %v (%v)", txs, err)
	}

	if err := l.Record(ctx, buy(0.3496, 2000, 0)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := l.Record(ctx, sell(0.1, 2100, 1)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected header plus 2 rows, got %d lines:\n%s", len(lines), b)
	}
	if lines[0] != "type,symbol,quantity,price,total,order_id,timestamp" {
		t.Errorf("Unexpected header %q", lines[0])
	}
	if strings.Count(string(b), "type,symbol") != 1 {
		t.Error("Expected the header to be written once")
	}

	txs, err := l.Transactions(ctx, "ETHUSDT")
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("Expected 2 transactions, got %d", len(txs))
	}
	if txs[0].Type != types.ActionBuy || txs[0].Quantity != 0.3496 || txs[0].Price != 2000 {
		t.Errorf("Unexpected first transaction %+v", txs[0])
	}
	if !txs[1].Timestamp.Equal(t0.Add(60e9)) {
		t.Errorf("Expected timestamp %v, got %v", t0.Add(60e9), txs[1].Timestamp)
	}

	if txs, _ := l.Transactions(ctx, "BTCUSDT"); len(txs) != 0 {
		t.Errorf("Expected no BTCUSDT rows, got %d", len(txs))
	}
}

func TestSQLiteLedgerRoundTrip(t *testing.T) {
	l, err := NewSQLiteLedger(filepath.Join(t.TempDir(), "tx.db"))
	if err != nil {
		t.Fatalf("NewSQLiteLedger: %v", err)
	}
	defer l.Close()
	ctx := context.Background()

	for _, tx := range []types.Transaction{buy(1, 100, 0), sell(0.4, 120, 1), buy(2, 90, 2)} {
		if err := l.Record(ctx, tx); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	txs, err := l.Transactions(ctx, "ETHUSDT")
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if len(txs) != 3 || txs[1].Type != types.ActionSell || txs[2].Price != 90 {
		t.Fatalf("Unexpected transactions %+v", txs)
	}
	if !txs[0].Timestamp.Equal(t0) {
		t.Errorf("Expected %v, got %v", t0, txs[0].Timestamp)
	}
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	if _, err := Open("POSTGRES", filepath.Join(t.TempDir(), "x")); err == nil {
		t.Error("Expected an error for an unknown backend")
	}
}
