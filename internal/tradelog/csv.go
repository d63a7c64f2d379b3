package tradelog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gocarina/gocsv"

	"ta-trading-bot/internal/interfaces"
	"ta-trading-bot/internal/types"
)

const timeLayout = "2006-01-02 15:04:05"

// csvRow is one line of the transaction CSV. The header row is
// type,symbol,quantity,price,total,order_id,timestamp.
type csvRow struct {
	Type      string  `csv:"type"`
	Symbol    string  `csv:"symbol"`
	Quantity  float64 `csv:"quantity"`
	Price     float64 `csv:"price"`
	Total     float64 `csv:"total"`
	OrderID   string  `csv:"order_id"`
	Timestamp string  `csv:"timestamp"`
}

// CSVLedger appends fills to a CSV file, writing the header once when the file is empty.
type CSVLedger struct {
	path string
	mu   sync.Mutex
}

var _ interfaces.Ledger = (*CSVLedger)(nil)

func NewCSVLedger(path string) (*CSVLedger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	f.Close()
	return &CSVLedger{path: path}, nil
}

func (l *CSVLedger) Path() string { return l.path }

func (l *CSVLedger) Record(ctx context.Context, tx types.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat ledger: %w", err)
	}

	rows := []*csvRow{toRow(tx)}
	if info.Size() == 0 {
		err = gocsv.Marshal(rows, f)
	} else {
		err = gocsv.MarshalWithoutHeaders(rows, f)
	}
	if err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

func (l *CSVLedger) Transactions(ctx context.Context, symbol string) ([]types.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat ledger: %w", err)
	}
	if info.Size() == 0 {
		return nil, nil
	}

	var rows []*csvRow
	if err := gocsv.Unmarshal(f, &rows); err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", l.path, err)
	}

	out := make([]types.Transaction, 0, len(rows))
	for i, r := range rows {
		if symbol != "" && r.Symbol != symbol {
			continue
		}
		tx, err := fromRow(r)
		if err != nil {
			return nil, fmt.Errorf("ledger row %d: %w", i+1, err)
		}
		out = append(out, tx)
	}
	return out, nil
}

func (l *CSVLedger) Close() error { return nil }

func toRow(tx types.Transaction) *csvRow {
	return &csvRow{
		Type:      string(tx.Type),
		Symbol:    tx.Symbol,
		Quantity:  tx.Quantity,
		Price:     tx.Price,
		Total:     tx.Total,
		OrderID:   tx.OrderID,
		Timestamp: tx.Timestamp.UTC().Format(timeLayout),
	}
}

func fromRow(r *csvRow) (types.Transaction, error) {
	side := types.Action(strings.ToUpper(strings.TrimSpace(r.Type)))
	if side != types.ActionBuy && side != types.ActionSell {
		return types.Transaction{}, fmt.Errorf("unknown transaction type %q", r.Type)
	}
	ts, err := time.Parse(timeLayout, r.Timestamp)
	if err != nil {
		return types.Transaction{}, fmt.Errorf("bad timestamp %q: %w", r.Timestamp, err)
	}
	return types.Transaction{
		Type:      side,
		Symbol:    r.Symbol,
		Quantity:  r.Quantity,
		Price:     r.Price,
		Total:     r.Total,
		OrderID:   r.OrderID,
		Timestamp: ts,
	}, nil
}
