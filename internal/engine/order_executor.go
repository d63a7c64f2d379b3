package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ta-trading-bot/internal/interfaces"
	"ta-trading-bot/internal/logger"
	"ta-trading-bot/internal/tradelog"
	"ta-trading-bot/internal/types"
)

// orderExecutor submits orders and persists fills.
type orderExecutor struct {
	placer    interfaces.OrderPlacer
	ledger    interfaces.Ledger
	feeRate   float64
	simulated bool
	now       func() time.Time
}

func newOrderExecutor(placer interfaces.OrderPlacer, ledger interfaces.Ledger, feeRate float64, simulated bool) *orderExecutor {
	return &orderExecutor{
		placer:    placer,
		ledger:    ledger,
		feeRate:   feeRate,
		simulated: simulated,
		now:       time.Now,
	}
}

// place submits a market order tagged with a fresh client order id.
func (oe *orderExecutor) place(ctx context.Context, symbol string, side types.Action, qty, price float64) (types.OrderResp, error) {
	req := types.OrderReq{
		Symbol:   symbol,
		Side:     side,
		Qty:      qty,
		Price:    price,
		ClientID: uuid.NewString(),
	}
	resp, err := oe.placer.PlaceOrder(ctx, req)
	if err != nil {
		return types.OrderResp{}, fmt.Errorf("place %s %v %s: %w", side, qty, symbol, err)
	}
	return resp, nil
}

// persist records a fill in the ledger and the trade journal. Failures are
// logged and returned but the fill itself stands.
func (oe *orderExecutor) persist(ctx context.Context, symbol string, side types.Action, qty, price float64, resp types.OrderResp, reason string) error {
	total := qty * price
	fee := total * oe.feeRate
	net := total + fee
	if side == types.ActionSell {
		net = total - fee
	}

	tx := types.Transaction{
		Type:      side,
		Symbol:    symbol,
		Quantity:  qty,
		Price:     price,
		Total:     total,
		OrderID:   resp.OrderID,
		Timestamp: oe.now().UTC(),
	}
	var firstErr error
	if err := oe.ledger.Record(ctx, tx); err != nil {
		logger.ErrorWithErr(ctx, "Failed to record transaction", err, "symbol", symbol, "order_id", resp.OrderID)
		firstErr = fmt.Errorf("record transaction: %w", err)
	}

	if err := tradelog.Append(tradelog.Entry{
		Symbol:    symbol,
		Side:      string(side),
		OrderID:   resp.OrderID,
		Reason:    reason,
		Qty:       qty,
		Price:     price,
		Fee:       fee,
		NetCost:   net,
		Simulated: oe.simulated,
	}); err != nil {
		logger.Warn(ctx, "Failed to append trade journal", "error", err, "order_id", resp.OrderID)
		if firstErr == nil {
			firstErr = fmt.Errorf("trade journal: %w", err)
		}
	}
	return firstErr
}

// logDecision appends the cycle's decision and indicators to the decision journal.
func (oe *orderExecutor) logDecision(ctx context.Context, symbol string, decision types.Decision, price float64, indicators types.Indicators, reason string) {
	err := tradelog.AppendDecision(tradelog.DecisionEntry{
		Symbol:     symbol,
		Action:     string(decision.Action),
		Reason:     reason,
		Price:      price,
		Indicators: indicators.Map(),
		Extra:      map[string]any{"qty": decision.Qty},
	})
	if err != nil {
		logger.Warn(ctx, "Failed to append decision journal", "error", err)
	}
}
