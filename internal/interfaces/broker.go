package interfaces

import (
	"context"

	"ta-trading-bot/internal/types"
)

// MarketData returns the latest limit candles, oldest first. Fewer than limit is an error.
type MarketData interface {
	RecentCandles(ctx context.Context, symbol, interval string, limit int) ([]types.Candle, error)
}

type Account interface {
	Balances(ctx context.Context) (types.Balances, error)
}

// OrderPlacer submits market orders.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error)
}

type Broker interface {
	MarketData
	Account
	OrderPlacer
	Start(ctx context.Context, symbols []string) error
	Stop(ctx context.Context)
}
