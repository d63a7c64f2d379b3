package paper

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"ta-trading-bot/internal/interfaces"
	"ta-trading-bot/internal/types"
)

const StatusFilled = "FILLED"

type Params struct {
	// InitialBalances is what Balances reports; the engine owns them afterwards.
	InitialBalances types.Balances
	// Market serves candles. Nil means synthetic static candles.
	Market interfaces.MarketData
	// Starter is started and stopped with the broker when set (a stream).
	Starter Lifecycle
	// BasePrice and Seed shape the synthetic candles.
	BasePrice float64
	Seed      int64
}

type Lifecycle interface {
	Start(ctx context.Context, symbols []string) error
	Stop(ctx context.Context)
}

// Broker fills every order immediately at the requested price.
type Broker struct {
	p   Params
	now func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

var _ interfaces.Broker = (*Broker)(nil)

func New(p Params) *Broker {
	if p.BasePrice <= 0 {
		p.BasePrice = 2000
	}
	seed := p.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Broker{p: p, now: time.Now, rng: rand.New(rand.NewSource(seed))}
}

func (b *Broker) RecentCandles(ctx context.Context, symbol, interval string, limit int) ([]types.Candle, error) {
	if b.p.Market != nil {
		return b.p.Market.RecentCandles(ctx, symbol, interval, limit)
	}
	return b.staticCandles(interval, limit)
}

// staticCandles produces limit synthetic bars around BasePrice, aligned to
// the interval and ending at the current bar.
func (b *Broker) staticCandles(interval string, n int) ([]types.Candle, error) {
	step, err := types.IntervalDuration(interval)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, fmt.Errorf("candle limit must be positive, got %d", n)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	cs := make([]types.Candle, 0, n)
	last := b.now().Truncate(step).Unix()
	secs := int64(step / time.Second)
	c := b.p.BasePrice
	for i := n - 1; i >= 0; i-- {
		open := c
		c = c * (1 + (b.rng.Float64()-0.5)*0.004)
		h := max(open, c) * (1 + b.rng.Float64()*0.001)
		l := min(open, c) * (1 - b.rng.Float64()*0.001)
		cs = append(cs, types.Candle{
			Ts:    last - int64(i)*secs,
			Open:  open,
			High:  h,
			Low:   l,
			Close: c,
			Vol:   b.rng.Float64() * 1000,
		})
	}
	return cs, nil
}

func (b *Broker) Balances(ctx context.Context) (types.Balances, error) {
	if b.p.InitialBalances == nil {
		return nil, errors.New("paper broker has no initial balances")
	}
	return b.p.InitialBalances.Clone(), nil
}

// PlaceOrder fills the full quantity at req.Price.
func (b *Broker) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	if req.Side != types.ActionBuy && req.Side != types.ActionSell {
		return types.OrderResp{}, fmt.Errorf("unsupported order side %q", req.Side)
	}
	if req.Qty <= 0 || req.Price <= 0 {
		return types.OrderResp{}, fmt.Errorf("invalid order %v@%v", req.Qty, req.Price)
	}
	clientID := req.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}
	return types.OrderResp{
		OrderID:   "SIM-" + uuid.NewString(),
		ClientID:  clientID,
		Status:    StatusFilled,
		Message:   "simulated",
		FilledQty: req.Qty,
		FillPrice: req.Price,
	}, nil
}

func (b *Broker) Start(ctx context.Context, symbols []string) error {
	if b.p.Starter == nil {
		return nil
	}
	return b.p.Starter.Start(ctx, symbols)
}

func (b *Broker) Stop(ctx context.Context) {
	if b.p.Starter != nil {
		b.p.Starter.Stop(ctx)
	}
}
