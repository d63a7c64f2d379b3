package eod

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"

	"ta-trading-bot/internal/interfaces"
	"ta-trading-bot/internal/tradelog"
	"ta-trading-bot/internal/types"
)

// summaryRow is the single line of a daily CSV report.
type summaryRow struct {
	Date           string  `csv:"date"`
	Symbol         string  `csv:"symbol"`
	Buys           int     `csv:"buys"`
	BuyQty         float64 `csv:"buy_qty"`
	BuyAvg         float64 `csv:"buy_avg"`
	Sells          int     `csv:"sells"`
	SellQty        float64 `csv:"sell_qty"`
	SellAvg        float64 `csv:"sell_avg"`
	RealizedPnL    float64 `csv:"realized_pnl"`
	GrossBuyValue  float64 `csv:"gross_buy_value"`
	GrossSellValue float64 `csv:"gross_sell_value"`
	OpenQty        float64 `csv:"open_qty"`
	// Unmatched counts sells that had no buy history to price against.
	Unmatched int `csv:"unmatched_sells"`
}

type eodSummarizer struct {
	ledger interfaces.Ledger
	symbol string
	now    func() time.Time
}

var _ interfaces.EodSummarizer = (*eodSummarizer)(nil)

// NewSummarizer reports one UTC day of fills for symbol from ledger.
func NewSummarizer(ledger interfaces.Ledger, symbol string) interfaces.EodSummarizer {
	return &eodSummarizer{ledger: ledger, symbol: symbol, now: time.Now}
}

func logDir() string {
	if v := os.Getenv("TRADER_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}

func eodCSVPath(t time.Time) string {
	return filepath.Join(logDir(), "eod", t.UTC().Format("2006-01-02")+".csv")
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// SummarizeDay writes the report for the UTC day containing t. Realized P&L
// prices each sell against the oldest open lots, so fills from earlier days
// are replayed but not counted. It returns "" when the day has no fills.
func (s *eodSummarizer) SummarizeDay(ctx context.Context, t time.Time) (string, error) {
	txs, err := s.ledger.Transactions(ctx, s.symbol)
	if err != nil {
		return "", fmt.Errorf("read ledger: %w", err)
	}

	row := summaryRow{Date: t.UTC().Format("2006-01-02"), Symbol: s.symbol}
	book := tradelog.NewBook(s.symbol)
	dayEnd := time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day()+1, 0, 0, 0, 0, time.UTC)
	for i, tx := range txs {
		if !tx.Timestamp.Before(dayEnd) {
			break
		}
		book.Sync(txs[:i])
		if !sameDay(tx.Timestamp, t) {
			continue
		}
		switch tx.Type {
		case types.ActionBuy:
			row.Buys++
			row.BuyQty += tx.Quantity
			row.GrossBuyValue += tx.Quantity * tx.Price
		case types.ActionSell:
			row.Sells++
			row.SellQty += tx.Quantity
			row.GrossSellValue += tx.Quantity * tx.Price
			if pnl, ok := book.Profit(tx.Quantity, tx.Price); ok {
				row.RealizedPnL += pnl
			} else {
				row.Unmatched++
			}
		}
		book.Sync(txs[:i+1])
	}
	if row.Buys+row.Sells == 0 {
		return "", nil
	}
	row.OpenQty = book.OpenQty()
	if row.BuyQty > 0 {
		row.BuyAvg = row.GrossBuyValue / row.BuyQty
	}
	if row.SellQty > 0 {
		row.SellAvg = row.GrossSellValue / row.SellQty
	}

	outPath := eodCSVPath(t)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if err := gocsv.MarshalFile([]*summaryRow{&row}, out); err != nil {
		return "", fmt.Errorf("write %s: %w", outPath, err)
	}
	return outPath, nil
}

func (s *eodSummarizer) SummarizeToday(ctx context.Context) (string, error) {
	return s.SummarizeDay(ctx, s.now())
}
