package engine

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"ta-trading-bot/internal/broker/paper"
	"ta-trading-bot/internal/decider"
	"ta-trading-bot/internal/store"
	"ta-trading-bot/internal/tradelog"
	"ta-trading-bot/internal/types"
)

type fakeMarket struct {
	closes []float64
	err    error
}

func (f *fakeMarket) RecentCandles(ctx context.Context, symbol, interval string, limit int) ([]types.Candle, error) {
	if f.err != nil {
		return nil, f.err
	}
	n := min(limit, len(f.closes))
	out := make([]types.Candle, 0, n)
	for i, c := range f.closes[len(f.closes)-n:] {
		out = append(out, types.Candle{Ts: int64(i * 60), Open: c, High: c, Low: c, Close: c})
	}
	return out, nil
}

// alternating closes around level, then a final close
func series(level, last float64) []float64 {
	cs := make([]float64, 99, 100)
	for i := range cs {
		cs[i] = level + float64(i%2)*2
	}
	return append(cs, last)
}

type fatalErr struct{}

func (fatalErr) Error() string { return "invalid api key" }
func (fatalErr) Fatal() bool   { return true }

// scriptedBroker overrides order placement and balances on top of paper.
type scriptedBroker struct {
	*paper.Broker
	placeErr error
	balances []types.Balances
	calls    int
}

func (s *scriptedBroker) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	if s.placeErr != nil {
		return types.OrderResp{}, s.placeErr
	}
	return s.Broker.PlaceOrder(ctx, req)
}

func (s *scriptedBroker) Balances(ctx context.Context) (types.Balances, error) {
	if len(s.balances) == 0 {
		return s.Broker.Balances(ctx)
	}
	b := s.balances[min(s.calls, len(s.balances)-1)]
	s.calls++
	return b, nil
}

type fixture struct {
	cfg    *store.Config
	eng    *Engine
	ledger *tradelog.CSVLedger
	broker *scriptedBroker
}

func newFixture(t *testing.T, closes []float64, initial types.Balances) *fixture {
	t.Helper()
	t.Setenv("TRADER_LOG_DIR", t.TempDir())

	cfg := store.Default()
	ledger, err := tradelog.NewCSVLedger(filepath.Join(t.TempDir(), "tx.csv"))
	if err != nil {
		t.Fatal(err)
	}
	brk := &scriptedBroker{Broker: paper.New(paper.Params{
		InitialBalances: initial,
		Market:          &fakeMarket{closes: closes},
	})}
	d := decider.NewRules(cfg.Sizing.FeeRate, cfg.Thresholds.MinMargin, cfg.Thresholds.RSIBuy)
	eng, err := New(cfg, brk, d, ledger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{cfg: cfg, eng: eng, ledger: ledger, broker: brk}
}

func TestSimulatedBuyEndToEnd(t *testing.T) {
	f := newFixture(t, series(2000, 1900), types.Balances{"USDT": 1000, "ETH": 0})
	ctx := context.Background()

	res, err := f.eng.Step(ctx)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if res.Decision.Action != types.ActionBuy {
		t.Fatalf("Expected BUY, got %+v (rsi=%v lower=%v)", res.Decision, res.Indicators.RSI, res.Indicators.BB.Lower)
	}
	wantQty := math.Floor(1000*0.7/(1900*1.001)*1e4) / 1e4
	if res.Decision.Qty != wantQty {
		t.Errorf("Expected qty %v, got %v", wantQty, res.Decision.Qty)
	}
	if len(res.Orders) != 1 {
		t.Fatalf("Expected 1 order, got %d", len(res.Orders))
	}

	wantQuote := 1000 - wantQty*1900*1.001
	if got := res.Balances["USDT"]; math.Abs(got-wantQuote) > 1e-9 {
		t.Errorf("Expected USDT %v, got %v", wantQuote, got)
	}
	if got := res.Balances["ETH"]; got != wantQty {
		t.Errorf("Expected ETH %v, got %v", wantQty, got)
	}

	txs, err := f.ledger.Transactions(ctx, "ETHUSDT")
	if err != nil || len(txs) != 1 {
		t.Fatalf("Expected 1 ledger row, got %d (%v)", len(txs), err)
	}
	if txs[0].Type != types.ActionBuy || txs[0].Quantity != wantQty || txs[0].Price != 1900 {
		t.Errorf("Unexpected ledger row %+v", txs[0])
	}
}

func TestSimulatedSellUsesLedgerCostBasis(t *testing.T) {
	f := newFixture(t, series(1000, 1100), types.Balances{"USDT": 0, "ETH": 0.5})
	ctx := context.Background()
	if err := f.ledger.Record(ctx, types.Transaction{Type: types.ActionBuy, Symbol: "ETHUSDT", Quantity: 0.5, Price: 1000, Total: 500, OrderID: "seed"}); err != nil {
		t.Fatal(err)
	}

	res, err := f.eng.Step(ctx)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if res.CostBasis == nil || *res.CostBasis != 1000 {
		t.Fatalf("Expected cost basis 1000, got %v", res.CostBasis)
	}
	if res.Decision.Action != types.ActionSell {
		t.Fatalf("Expected SELL, got %+v", res.Decision)
	}
	wantQty := math.Floor(0.5*1100*0.7/(1100*1.001)*1e4) / 1e4
	if res.Decision.Qty != wantQty {
		t.Errorf("Expected qty %v, got %v", wantQty, res.Decision.Qty)
	}
	if got, want := res.Balances["ETH"], 0.5-wantQty; math.Abs(got-want) > 1e-12 {
		t.Errorf("Expected ETH %v, got %v", want, got)
	}
	if got, want := res.Balances["USDT"], wantQty*1100*0.999; math.Abs(got-want) > 1e-9 {
		t.Errorf("Expected USDT %v, got %v", want, got)
	}
}

func TestUnknownCostBasisNeverSells(t *testing.T) {
	f := newFixture(t, series(1000, 1100), types.Balances{"USDT": 0, "ETH": 0.5})

	res, err := f.eng.Step(context.Background())
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if res.CostBasis != nil {
		t.Errorf("Expected unknown cost basis, got %v", *res.CostBasis)
	}
	if res.Decision.Action != types.ActionHold || len(res.Orders) != 0 {
		t.Errorf("Expected HOLD without orders, got %+v", res)
	}
}

func TestUndefinedIndicatorsHold(t *testing.T) {
	flat := make([]float64, 100)
	for i := range flat {
		flat[i] = 2000
	}
	f := newFixture(t, flat, types.Balances{"USDT": 1000})

	res, err := f.eng.Step(context.Background())
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if res.Decision.Action != types.ActionHold || res.Reason != decider.ReasonWarmingUp {
		t.Errorf("Expected warming-up HOLD, got %+v", res.Decision)
	}
}

func TestNoBalanceSkipsCycle(t *testing.T) {
	f := newFixture(t, series(2000, 1900), types.Balances{"USDT": 0, "ETH": 0})

	res, err := f.eng.Step(context.Background())
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if res.Reason != types.ReasonNoBalance || len(res.Orders) != 0 {
		t.Errorf("Expected NO_BALANCE, got %+v", res)
	}
}

func TestBelowMinimumHolds(t *testing.T) {
	f := newFixture(t, series(2000, 1900), types.Balances{"USDT": 12})

	res, err := f.eng.Step(context.Background())
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if res.Decision.Action != types.ActionHold || res.Decision.Reason != ReasonBelowMinimum {
		t.Errorf("Expected below-minimum HOLD, got %+v", res.Decision)
	}
	if res.Reason != decider.ReasonBuy+" -> "+ReasonBelowMinimum {
		t.Errorf("Unexpected reason %q", res.Reason)
	}
}

func TestOrderFailureLeavesBalances(t *testing.T) {
	f := newFixture(t, series(2000, 1900), types.Balances{"USDT": 1000})
	f.broker.placeErr = errors.New("connection reset")

	res, err := f.eng.Step(context.Background())
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if res.Decision.Action != types.ActionHold || res.Decision.Reason != ReasonOrderFailed {
		t.Errorf("Expected order-failed HOLD, got %+v", res.Decision)
	}
	if res.Balances["USDT"] != 1000 || res.Balances["ETH"] != 0 {
		t.Errorf("Expected balances untouched, got %v", res.Balances)
	}
	if txs, _ := f.ledger.Transactions(context.Background(), "ETHUSDT"); len(txs) != 0 {
		t.Errorf("Expected empty ledger, got %d rows", len(txs))
	}
}

func TestFatalOrderErrorStops(t *testing.T) {
	f := newFixture(t, series(2000, 1900), types.Balances{"USDT": 1000})
	f.broker.placeErr = fatalErr{}

	_, err := f.eng.Step(context.Background())
	if StageOf(err) != StageAct {
		t.Fatalf("Expected act stage error, got %v", err)
	}
	if IsTransient(err) {
		t.Error("Expected a credential failure to be fatal")
	}
}

func TestFetchErrors(t *testing.T) {
	f := newFixture(t, []float64{1, 2, 3}, types.Balances{"USDT": 1000})
	_, err := f.eng.Step(context.Background())
	if StageOf(err) != StageFetch || !IsTransient(err) {
		t.Errorf("Expected transient fetch error for short data, got %v", err)
	}

	f.broker.Broker = paper.New(paper.Params{Market: &fakeMarket{err: errors.New("timeout")}})
	f.eng.market = f.broker
	_, err = f.eng.Step(context.Background())
	if StageOf(err) != StageFetch || !IsTransient(err) {
		t.Errorf("Expected transient fetch error, got %v", err)
	}
}

func TestLiveBalancesReplacedEachCycle(t *testing.T) {
	f := newFixture(t, series(2000, 2001), nil)
	f.cfg.Mode = store.ModeLive
	f.broker.balances = []types.Balances{
		{"USDT": 500, "ETH": 0, "BNB": 3},
		{"USDT": 250, "ETH": 0.1},
	}

	for i, want := range []float64{500, 250} {
		res, err := f.eng.Step(context.Background())
		if err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
		if res.Balances["USDT"] != want {
			t.Errorf("cycle %d: expected USDT %v, got %v", i, want, res.Balances["USDT"])
		}
		if _, ok := res.Balances["BNB"]; ok {
			t.Errorf("cycle %d: expected only the traded pair, got %v", i, res.Balances)
		}
	}
}

func TestWarmupLoadsState(t *testing.T) {
	f := newFixture(t, series(2000, 2001), types.Balances{"USDT": 1000})
	res, err := f.eng.Warmup(context.Background())
	if err != nil {
		t.Fatalf("Warmup: %v", err)
	}
	if res.Reason != ReasonWarmup || res.Balances["USDT"] != 1000 || len(res.Orders) != 0 {
		t.Errorf("Unexpected warmup result %+v", res)
	}
	if !res.Indicators.Defined() {
		t.Errorf("Expected defined indicators, got %+v", res.Indicators)
	}
}

func TestNewRejectsShortCandleLimit(t *testing.T) {
	cfg := store.Default()
	cfg.CandleLimit = 10
	if _, err := New(cfg, paper.New(paper.Params{}), decider.NewNoop(), nil); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState, got %v", err)
	}
}

type brokenLedger struct{}

func (brokenLedger) Record(ctx context.Context, tx types.Transaction) error {
	return errors.New("disk full")
}
func (brokenLedger) Transactions(ctx context.Context, symbol string) ([]types.Transaction, error) {
	return nil, nil
}
func (brokenLedger) Close() error { return nil }

func TestPersistFailureKeepsCycleAlive(t *testing.T) {
	t.Setenv("TRADER_LOG_DIR", t.TempDir())
	cfg := store.Default()
	brk := paper.New(paper.Params{
		InitialBalances: types.Balances{"USDT": 1000, "ETH": 0},
		Market:          &fakeMarket{closes: series(2000, 1900)},
	})
	d := decider.NewRules(cfg.Sizing.FeeRate, cfg.Thresholds.MinMargin, cfg.Thresholds.RSIBuy)
	eng, err := New(cfg, brk, d, brokenLedger{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := eng.Step(context.Background())
	if err != nil {
		t.Fatalf("Expected the cycle to survive a ledger failure, got %v", err)
	}
	if res.Decision.Action != types.ActionBuy || len(res.Orders) != 1 {
		t.Fatalf("Expected one BUY order, got %+v with %d orders", res.Decision, len(res.Orders))
	}
	wantQty := math.Floor(1000*0.7/(1900*1.001)*1e4) / 1e4
	if got := res.Balances["ETH"]; got != wantQty {
		t.Errorf("Expected ETH %v, got %v", wantQty, got)
	}
	if got := res.Balances["USDT"]; got >= 1000 {
		t.Errorf("Expected USDT to be spent, got %v", got)
	}
}
