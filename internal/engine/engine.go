package engine

import (
	"context"
	"fmt"
	"math"

	"ta-trading-bot/internal/interfaces"
	"ta-trading-bot/internal/logger"
	"ta-trading-bot/internal/sizing"
	"ta-trading-bot/internal/store"
	"ta-trading-bot/internal/ta"
	"ta-trading-bot/internal/tradelog"
	"ta-trading-bot/internal/types"
)

// Reasons for a HOLD forced after the decider asked to trade.
const (
	ReasonBelowMinimum      = "hold:below_min_notional"
	ReasonInsufficientFunds = "hold:insufficient_funds"
	ReasonOrderFailed       = "hold:order_failed"
	ReasonOrderUnfilled     = "hold:order_unfilled"
	ReasonWarmup            = "warmup"
)

type Engine struct {
	cfg     *store.Config
	market  interfaces.MarketData
	account interfaces.Account
	decider interfaces.Decider
	ledger  interfaces.Ledger

	params ta.Params
	sizing sizing.Params
	state  *AccountState
	book   *tradelog.Book
	risk   *riskManager
	exec   *orderExecutor
}

var _ interfaces.Engine = (*Engine)(nil)

func New(cfg *store.Config, brk interfaces.Broker, d interfaces.Decider, ledger interfaces.Ledger) (*Engine, error) {
	params := ta.Params{
		SMAShort:   cfg.Indicators.SMAShort,
		SMALong:    cfg.Indicators.SMALong,
		RSIPeriod:  cfg.Indicators.RSIPeriod,
		MACDFast:   cfg.Indicators.MACDFast,
		MACDSlow:   cfg.Indicators.MACDSlow,
		MACDSignal: cfg.Indicators.MACDSignal,
		BBWindow:   cfg.Indicators.BBWindow,
		BBStdDev:   cfg.Indicators.BBStdDev,
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if cfg.CandleLimit < params.LongestWindow() {
		return nil, fmt.Errorf("%w: candle limit %d below longest window %d", ErrInvalidState, cfg.CandleLimit, params.LongestWindow())
	}

	return &Engine{
		cfg:     cfg,
		market:  brk,
		account: brk,
		decider: d,
		ledger:  ledger,
		params:  params,
		sizing: sizing.Params{
			FeeRate:     cfg.Sizing.FeeRate,
			Precision:   cfg.Sizing.Precision,
			MinNotional: cfg.Sizing.MinNotional,
			Percentage:  cfg.Sizing.Percentage,
		},
		state: NewAccountState(cfg.BaseAsset, cfg.QuoteAsset),
		book:  tradelog.NewBook(cfg.Symbol),
		risk:  newRiskManager(cfg.Sizing.FeeRate),
		exec:  newOrderExecutor(brk, ledger, cfg.Sizing.FeeRate, cfg.Simulated()),
	}, nil
}

// Balances exposes the engine's view of the traded pair.
func (e *Engine) Balances() types.Balances { return e.state.Snapshot() }

// market is one fetched and analysed cycle input.
type market struct {
	price float64
	ts    int64
	ind   types.Indicators
}

func (e *Engine) analyse(ctx context.Context) (market, error) {
	symbol := e.cfg.Symbol

	candles, err := e.market.RecentCandles(ctx, symbol, e.cfg.Interval, e.cfg.CandleLimit)
	if err != nil {
		return market{}, stageErr(StageFetch, err)
	}
	if len(candles) < e.cfg.CandleLimit {
		return market{}, stageErr(StageFetch, fmt.Errorf("got %d candles, need %d", len(candles), e.cfg.CandleLimit))
	}
	latest := candles[len(candles)-1]
	if math.IsNaN(latest.Close) || latest.Close <= 0 {
		return market{}, stageErr(StageFetch, fmt.Errorf("invalid latest close %v", latest.Close))
	}

	ind := ta.Compute(ta.Closes(candles), e.params)
	logger.Info(ctx, "Market analysis",
		"symbol", symbol,
		"price", latest.Close,
		"sma_short", ind.SMAShort,
		"sma_long", ind.SMALong,
		"rsi", ind.RSI,
		"macd", ind.MACD,
		"signal", ind.Signal,
		"bb_upper", ind.BB.Upper,
		"bb_lower", ind.BB.Lower,
	)
	if logger.IsDebugEnabled() {
		set := ta.Signals(latest.Close, ind, ta.Thresholds{
			RSIOversold:   e.cfg.Thresholds.RSIOversold,
			RSIOverbought: e.cfg.Thresholds.RSIOverbought,
		})
		logger.Debug(ctx, "Signals", append([]any{"symbol", symbol}, set.Fields()...)...)
	}
	return market{price: latest.Close, ts: latest.Ts, ind: ind}, nil
}

// refreshBalances loads the simulated balances once, and replaces live
// balances with the exchange's every call.
func (e *Engine) refreshBalances(ctx context.Context) error {
	if e.cfg.Simulated() && e.state.Loaded() {
		return nil
	}
	bals, err := e.account.Balances(ctx)
	if err != nil {
		return stageErr(StageBalance, err)
	}
	e.state.Replace(bals)
	return nil
}

// costBasis syncs the lot book with the ledger and prices the held base.
func (e *Engine) costBasis(ctx context.Context, held float64) (*float64, error) {
	txs, err := e.ledger.Transactions(ctx, e.cfg.Symbol)
	if err != nil {
		return nil, stageErr(StageCostBasis, err)
	}
	if e.book.Sync(txs) {
		logger.Debug(ctx, "Lot book rebuilt from ledger", "symbol", e.cfg.Symbol, "transactions", len(txs))
	}
	if held <= 0 {
		return nil, nil
	}
	cb, ok := e.book.CostBasis(held)
	if !ok {
		logger.Debug(ctx, "Cost basis unknown", "symbol", e.cfg.Symbol, "held", held, "ledger_qty", e.book.OpenQty())
		return nil, nil
	}
	return &cb, nil
}

// Warmup runs the initial market analysis and loads balances without deciding.
func (e *Engine) Warmup(ctx context.Context) (*types.StepResult, error) {
	m, err := e.analyse(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.refreshBalances(ctx); err != nil {
		return nil, err
	}
	cb, err := e.costBasis(ctx, e.state.Base())
	if err != nil {
		return nil, err
	}
	if e.book.Oversold() {
		logger.Warn(ctx, "Ledger sells more than it bought; older fills are missing", "symbol", e.cfg.Symbol)
	}
	bals := e.state.Snapshot()
	logger.Info(ctx, "Initial market analysis complete",
		"symbol", e.cfg.Symbol,
		"price", m.price,
		"indicators_ready", m.ind.Defined(),
		e.cfg.BaseAsset, bals[e.cfg.BaseAsset],
		e.cfg.QuoteAsset, bals[e.cfg.QuoteAsset],
	)
	return &types.StepResult{
		Symbol:     e.cfg.Symbol,
		Decision:   types.Decision{Action: types.ActionHold, Reason: ReasonWarmup},
		Price:      m.price,
		Time:       m.ts,
		Indicators: m.ind,
		Balances:   bals,
		CostBasis:  cb,
		Orders:     []types.OrderResp{},
		Reason:     ReasonWarmup,
	}, nil
}

// Step runs one FETCH, COMPUTE, DECIDE, SIZE, ACT, PERSIST cycle.
func (e *Engine) Step(ctx context.Context) (*types.StepResult, error) {
	symbol := e.cfg.Symbol

	m, err := e.analyse(ctx)
	if err != nil {
		return nil, err
	}

	if err := e.refreshBalances(ctx); err != nil {
		return nil, err
	}
	res := &types.StepResult{
		Symbol:     symbol,
		Price:      m.price,
		Time:       m.ts,
		Indicators: m.ind,
		Orders:     []types.OrderResp{},
	}

	base, quote := e.state.Base(), e.state.Quote()
	if base <= 0 && quote <= 0 {
		logger.Warn(ctx, "No balance available, skipping cycle", "symbol", symbol, e.cfg.BaseAsset, base, e.cfg.QuoteAsset, quote)
		res.Decision = types.Decision{Action: types.ActionHold, Reason: types.ReasonNoBalance}
		res.Reason = types.ReasonNoBalance
		res.Balances = e.state.Snapshot()
		return res, nil
	}

	cb, err := e.costBasis(ctx, base)
	if err != nil {
		return nil, err
	}
	res.CostBasis = cb

	decision, err := e.decider.Decide(ctx, types.DecisionInput{
		Symbol:     symbol,
		Price:      m.price,
		Indicators: m.ind,
		CostBasis:  cb,
	})
	if err != nil {
		return nil, stageErr(StageDecide, err)
	}
	decided := decision

	decision, err = e.act(ctx, decision, m.price, res)
	if err != nil {
		return nil, err
	}

	res.Decision = decision
	res.Reason = decision.Reason
	res.Balances = e.state.Snapshot()
	if decided.Action != decision.Action {
		res.Reason = decided.Reason + " -> " + decision.Reason
	}
	e.exec.logDecision(ctx, symbol, decision, m.price, m.ind, res.Reason)
	return res, nil
}

// act sizes, guards, submits and persists the decided trade. It returns the
// decision that actually happened: a trade that could not go through becomes HOLD.
func (e *Engine) act(ctx context.Context, d types.Decision, price float64, res *types.StepResult) (types.Decision, error) {
	symbol := e.cfg.Symbol
	if d.Action != types.ActionBuy && d.Action != types.ActionSell {
		return types.Decision{Action: types.ActionHold, Reason: d.Reason}, nil
	}
	hold := func(reason string) types.Decision {
		return types.Decision{Action: types.ActionHold, Reason: reason}
	}

	var qty float64
	if d.Action == types.ActionBuy {
		qty = sizing.Quantity(e.state.Quote(), price, e.sizing)
	} else {
		qty = sizing.Quantity(e.state.Base()*price, price, e.sizing)
	}
	if math.IsNaN(qty) || qty < 0 {
		return d, stageErr(StageSize, fmt.Errorf("%w: quantity %v", ErrInvalidState, qty))
	}
	if qty == 0 {
		logger.Info(ctx, "Order size below exchange minimum", "symbol", symbol, "side", d.Action, "price", price, "min_notional", e.sizing.MinNotional)
		return hold(ReasonBelowMinimum), nil
	}
	d.Qty = qty

	if !e.risk.checkFunds(ctx, symbol, d.Action, qty, price, e.state) {
		return hold(ReasonInsufficientFunds), nil
	}

	var profit float64
	var profitKnown bool
	if d.Action == types.ActionSell {
		profit, profitKnown = e.book.Profit(qty, price)
	}

	resp, err := e.exec.place(ctx, symbol, d.Action, qty, price)
	if err != nil {
		if !IsTransient(err) {
			return d, stageErr(StageAct, err)
		}
		logger.ErrorWithErr(ctx, "Order submission failed", err, "symbol", symbol, "side", d.Action, "qty", qty)
		return hold(ReasonOrderFailed), nil
	}
	res.Orders = append(res.Orders, resp)

	filled := resp.FilledQty
	if filled <= 0 {
		logger.Warn(ctx, "Order accepted without a fill", "symbol", symbol, "order_id", resp.OrderID, "status", resp.Status)
		return hold(ReasonOrderUnfilled), nil
	}
	fillPrice := resp.FillPrice
	if fillPrice <= 0 {
		fillPrice = price
	}
	d.Qty = filled

	if e.cfg.Simulated() {
		if err := e.state.ApplyFill(d.Action, filled, fillPrice, e.sizing.FeeRate); err != nil {
			return d, stageErr(StageAct, err)
		}
	}

	fields := []any{"reason", d.Reason, "simulated", e.cfg.Simulated()}
	if profitKnown {
		fields = append(fields, "realized_pnl", profit)
	}
	logger.Trade(ctx, symbol, string(d.Action), filled, fillPrice, resp.OrderID, fields...)

	op := logger.StartOperation(ctx, "engine.persist", "symbol", symbol, "order_id", resp.OrderID)
	if err := e.exec.persist(op.GetContext(), symbol, d.Action, filled, fillPrice, resp, d.Reason); err != nil {
		op.EndWithError(err, "stage", StagePersist)
	} else {
		op.End()
	}

	if e.cfg.Simulated() {
		bals := e.state.Snapshot()
		logger.Info(ctx, "Simulated balances",
			e.cfg.BaseAsset, bals[e.cfg.BaseAsset],
			e.cfg.QuoteAsset, bals[e.cfg.QuoteAsset],
		)
	}
	return d, nil
}
