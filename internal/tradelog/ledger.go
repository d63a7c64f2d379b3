package tradelog

import (
	"fmt"
	"strings"

	"ta-trading-bot/internal/interfaces"
)

// Open returns the ledger for backend ("CSV" or "SQLITE") at path.
func Open(backend, path string) (interfaces.Ledger, error) {
	switch strings.ToUpper(backend) {
	case "", "CSV":
		return NewCSVLedger(path)
	case "SQLITE":
		return NewSQLiteLedger(path)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", backend)
	}
}
