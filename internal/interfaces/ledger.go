package interfaces

import (
	"context"

	"ta-trading-bot/internal/types"
)

// Ledger is the append-only transaction log. Transactions returns fills for
// symbol in the order they were recorded.
type Ledger interface {
	Record(ctx context.Context, tx types.Transaction) error
	Transactions(ctx context.Context, symbol string) ([]types.Transaction, error)
	Close() error
}
