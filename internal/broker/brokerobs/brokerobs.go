package brokerobs

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"ta-trading-bot/internal/interfaces"
	"ta-trading-bot/internal/logger"
	"ta-trading-bot/internal/trace"
	"ta-trading-bot/internal/types"
)

// observableBroker wraps a Broker with observability (logging & tracing)
type observableBroker struct {
	broker interfaces.Broker
}

var _ interfaces.Broker = (*observableBroker)(nil)

// Wrap wraps a broker with observability middleware
func Wrap(broker interfaces.Broker) interfaces.Broker {
	return &observableBroker{broker: broker}
}

func (ob *observableBroker) RecentCandles(ctx context.Context, symbol, interval string, limit int) ([]types.Candle, error) {
	ctx, span := trace.StartSpan(ctx, "broker.RecentCandles")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol), attribute.String("interval", interval), attribute.Int("limit", limit))

	logger.DebugSkip(ctx, 1, "Fetching recent candles", "symbol", symbol, "interval", interval, "limit", limit)

	candles, err := ob.broker.RecentCandles(ctx, symbol, interval, limit)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch candles", err, "symbol", symbol, "limit", limit)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Candles fetched successfully", "symbol", symbol, "count", len(candles))
	return candles, nil
}

func (ob *observableBroker) Balances(ctx context.Context) (types.Balances, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Balances")
	defer span.End()

	bals, err := ob.broker.Balances(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch balances", err)
		return nil, err
	}
	logger.DebugSkip(ctx, 1, "Balances fetched", "assets", len(bals))
	return bals, nil
}

// PlaceOrder places an order with observability
func (ob *observableBroker) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	ctx, span := trace.StartSpan(ctx, "broker.PlaceOrder")
	defer span.End()
	span.SetAttributes(
		attribute.String("symbol", req.Symbol),
		attribute.String("side", string(req.Side)),
		attribute.Float64("qty", req.Qty),
		attribute.String("client_id", req.ClientID),
	)

	logger.InfoSkip(ctx, 1, "Placing order",
		"symbol", req.Symbol,
		"side", req.Side,
		"qty", req.Qty,
		"price", req.Price,
		"client_id", req.ClientID,
	)

	resp, err := ob.broker.PlaceOrder(ctx, req)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to place order", err,
			"symbol", req.Symbol,
			"side", req.Side,
			"qty", req.Qty,
		)
		return types.OrderResp{}, err
	}

	if resp.FilledQty <= 0 {
		logger.WarnSkip(ctx, 1, "Order accepted without a fill",
			"symbol", req.Symbol,
			"order_id", resp.OrderID,
			"status", resp.Status,
		)
		return resp, nil
	}

	logger.InfoSkip(ctx, 1, "Order placed successfully",
		"symbol", req.Symbol,
		"order_id", resp.OrderID,
		"status", resp.Status,
		"filled_qty", resp.FilledQty,
		"fill_price", resp.FillPrice,
	)
	return resp, nil
}

func (ob *observableBroker) Start(ctx context.Context, symbols []string) error {
	ctx, span := trace.StartSpan(ctx, "broker.Start")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Starting broker", "symbols", symbols, "count", len(symbols))

	if err := ob.broker.Start(ctx, symbols); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to start broker", err, "symbols", symbols)
		return fmt.Errorf("broker start failed: %w", err)
	}

	logger.InfoSkip(ctx, 1, "Broker started successfully", "symbols", symbols)
	return nil
}

func (ob *observableBroker) Stop(ctx context.Context) {
	ctx, span := trace.StartSpan(ctx, "broker.Stop")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Stopping broker")
	ob.broker.Stop(ctx)
	logger.InfoSkip(ctx, 1, "Broker stopped successfully")
}
