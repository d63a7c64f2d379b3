package tradelog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"ta-trading-bot/internal/interfaces"
	"ta-trading-bot/internal/types"
)

// SQLiteLedger keeps the transaction log in a single SQLite table.
type SQLiteLedger struct {
	db *sql.DB
	mu sync.Mutex
}

var _ interfaces.Ledger = (*SQLiteLedger)(nil)

func NewSQLiteLedger(path string) (*SQLiteLedger, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	l := &SQLiteLedger{db: db}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return l, nil
}

func (l *SQLiteLedger) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			type      TEXT NOT NULL,
			symbol    TEXT NOT NULL,
			quantity  REAL NOT NULL,
			price     REAL NOT NULL,
			total     REAL NOT NULL,
			order_id  TEXT,
			timestamp INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_symbol ON transactions(symbol, id)`,
	}
	for _, s := range stmts {
		if _, err := l.db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (l *SQLiteLedger) Record(ctx context.Context, tx types.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO transactions (type, symbol, quantity, price, total, order_id, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(tx.Type), tx.Symbol, tx.Quantity, tx.Price, tx.Total, tx.OrderID, tx.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) Transactions(ctx context.Context, symbol string) ([]types.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	query := `SELECT type, symbol, quantity, price, total, order_id, timestamp FROM transactions`
	var args []any
	if symbol != "" {
		query += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY id`

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []types.Transaction
	for rows.Next() {
		var (
			tx      types.Transaction
			side    string
			orderID sql.NullString
			ms      int64
		)
		if err := rows.Scan(&side, &tx.Symbol, &tx.Quantity, &tx.Price, &tx.Total, &orderID, &ms); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.Type = types.Action(side)
		tx.OrderID = orderID.String
		tx.Timestamp = time.UnixMilli(ms).UTC()
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
