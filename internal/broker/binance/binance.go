package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ta-trading-bot/internal/api"
	"ta-trading-bot/internal/interfaces"
	"ta-trading-bot/internal/logger"
	"ta-trading-bot/internal/types"
)

// ErrUnauthorized is matched (errors.Is) by exchange errors caused by a bad
// key, secret or IP whitelist. Retrying will not help.
var ErrUnauthorized = errors.New("binance: unauthorized")

type Params struct {
	BaseURL         string
	StreamURL       string
	APIKey          string
	SecretKey       string
	RecvWindowMs    int
	Timeout         time.Duration
	RequestsPerSec  float64
	MaxRetries      int
	Precision       int32
	Interval        string
	UseStream       bool
	StreamCacheSize int
}

// Client talks to the Binance spot REST API and, when UseStream is set,
// keeps a kline websocket per symbol feeding a local candle cache.
type Client struct {
	p     Params
	http  *api.Client
	now   func() time.Time
	cache *candleCache

	mu      sync.Mutex
	streams []*klineStream
}

var _ interfaces.Broker = (*Client)(nil)

func New(p Params) *Client {
	if p.Timeout <= 0 {
		p.Timeout = 10 * time.Second
	}
	if p.RecvWindowMs <= 0 {
		p.RecvWindowMs = 5000
	}
	if p.StreamCacheSize <= 0 {
		p.StreamCacheSize = 500
	}
	opts := []api.ClientOption{
		api.WithBaseURL(strings.TrimRight(p.BaseURL, "/")),
		api.WithTimeout(p.Timeout),
		api.WithRateLimit(p.RequestsPerSec),
		api.WithLogging(true),
	}
	if p.APIKey != "" {
		opts = append(opts, api.WithHeader("X-MBX-APIKEY", p.APIKey))
	}
	return &Client{
		p:     p,
		http:  api.NewClient(opts...),
		now:   time.Now,
		cache: newCandleCache(),
	}
}

// APIError is the JSON error body Binance returns with 4xx responses.
type APIError struct {
	Status int
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance: HTTP %d code %d: %s", e.Status, e.Code, e.Msg)
}

// Is makes auth failures match ErrUnauthorized.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.unauthorized()
}

func (e *APIError) unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden ||
		e.Code == -2014 || e.Code == -2015
}

// Fatal reports whether the loop should stop rather than back off.
func (e *APIError) Fatal() bool { return e.unauthorized() }

// classify turns an api.HTTPError into an *APIError when the body parses.
func classify(err error) error {
	var he *api.HTTPError
	if !errors.As(err, &he) {
		return err
	}
	ae := &APIError{Status: he.StatusCode}
	if json.Unmarshal(he.Body, ae) != nil || (ae.Code == 0 && ae.Msg == "") {
		ae.Msg = strings.TrimSpace(string(he.Body))
	}
	return ae
}

func (c *Client) retryConfig() *api.RetryConfig {
	cfg := api.DefaultRetryConfig()
	if c.p.MaxRetries > 0 {
		cfg.MaxAttempts = c.p.MaxRetries
	}
	return cfg
}

// sign appends timestamp, recvWindow and the HMAC-SHA256 signature of the
// encoded query. The signature must be the last parameter.
func (c *Client) sign(q url.Values) string {
	q.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	q.Set("recvWindow", strconv.Itoa(c.p.RecvWindowMs))
	payload := q.Encode()
	mac := hmac.New(sha256.New, []byte(c.p.SecretKey))
	mac.Write([]byte(payload))
	return payload + "&signature=" + hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) signedRequest(ctx context.Context, method, path string, q url.Values) *api.Request {
	// pre-encoded so the signature covers exactly what is sent
	return api.NewRequest(method, path+"?"+c.sign(q)).WithContext(ctx)
}

func (c *Client) requireKeys() error {
	if c.p.APIKey == "" || c.p.SecretKey == "" {
		return &APIError{Status: http.StatusUnauthorized, Msg: "missing API key/secret"}
	}
	return nil
}

// RecentCandles returns the latest limit klines, oldest first. The last one
// may still be open. With a running stream the cache is used, falling back
// to REST (and refilling the cache) when it holds fewer than limit candles
// or its newest candle is more than two intervals old.
func (c *Client) RecentCandles(ctx context.Context, symbol, interval string, limit int) ([]types.Candle, error) {
	key := cacheKey(symbol, interval)
	if c.streaming() {
		candles, err := c.cache.getRecent(key, limit, c.freshSince(interval))
		if err == nil {
			return candles, nil
		}
		logger.Debug(ctx, "Candle cache miss, falling back to REST", "symbol", symbol, "error", err)
	}
	candles, err := c.fetchKlines(ctx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}
	if len(candles) < limit {
		return nil, fmt.Errorf("got %d klines for %s, need %d", len(candles), symbol, limit)
	}
	if c.streaming() {
		c.cache.refill(key, candles)
	}
	return candles, nil
}

// freshSince is the oldest open time the newest cached candle may have.
func (c *Client) freshSince(interval string) int64 {
	d, err := types.IntervalDuration(interval)
	if err != nil {
		return 0
	}
	return c.now().Add(-2 * d).Unix()
}

// fetchKlines returns up to limit klines; a young pair may have fewer.
func (c *Client) fetchKlines(ctx context.Context, symbol, interval string, limit int) ([]types.Candle, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))

	resp, err := c.http.DoWithRetry(api.NewRequest(http.MethodGet, "/api/v3/klines").WithContext(ctx).WithQuery(q), c.retryConfig())
	if err != nil {
		return nil, fmt.Errorf("fetch klines %s %s: %w", symbol, interval, classify(err))
	}

	var rows [][]json.RawMessage
	if err := resp.ParseJSON(&rows); err != nil {
		return nil, err
	}
	candles := make([]types.Candle, 0, len(rows))
	for i, row := range rows {
		cdl, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("kline %d: %w", i, err)
		}
		candles = append(candles, cdl)
	}
	return candles, nil
}

// parseKline reads [openTime, open, high, low, close, volume, ...].
func parseKline(row []json.RawMessage) (types.Candle, error) {
	if len(row) < 6 {
		return types.Candle{}, fmt.Errorf("short kline row (%d fields)", len(row))
	}
	var openTime int64
	if err := json.Unmarshal(row[0], &openTime); err != nil {
		return types.Candle{}, fmt.Errorf("open time: %w", err)
	}
	var vals [5]float64
	for i := range vals {
		var s string
		if err := json.Unmarshal(row[i+1], &s); err != nil {
			return types.Candle{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return types.Candle{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		vals[i] = v
	}
	return types.Candle{
		Ts:    openTime / 1000,
		Open:  vals[0],
		High:  vals[1],
		Low:   vals[2],
		Close: vals[3],
		Vol:   vals[4],
	}, nil
}

type accountResp struct {
	Balances []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	} `json:"balances"`
}

// Balances returns the free amount of every asset on the spot account.
func (c *Client) Balances(ctx context.Context) (types.Balances, error) {
	if err := c.requireKeys(); err != nil {
		return nil, err
	}
	resp, err := c.http.DoWithRetry(c.signedRequest(ctx, http.MethodGet, "/api/v3/account", url.Values{}), c.retryConfig())
	if err != nil {
		return nil, fmt.Errorf("fetch account: %w", classify(err))
	}
	var acct accountResp
	if err := resp.ParseJSON(&acct); err != nil {
		return nil, err
	}
	out := make(types.Balances, len(acct.Balances))
	for _, b := range acct.Balances {
		free, err := strconv.ParseFloat(b.Free, 64)
		if err != nil {
			return nil, fmt.Errorf("balance %s: %w", b.Asset, err)
		}
		out[b.Asset] = free
	}
	return out, nil
}

type orderResp struct {
	OrderID             int64  `json:"orderId"`
	ClientOrderID       string `json:"clientOrderId"`
	Status              string `json:"status"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
}

// PlaceOrder submits a MARKET order. It is sent once; a timeout leaves the
// outcome unknown and is reported as an error.
func (c *Client) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	if err := c.requireKeys(); err != nil {
		return types.OrderResp{}, err
	}
	if req.Side != types.ActionBuy && req.Side != types.ActionSell {
		return types.OrderResp{}, fmt.Errorf("unsupported order side %q", req.Side)
	}
	qty := decimal.NewFromFloat(req.Qty).Truncate(c.p.Precision)
	if !qty.IsPositive() {
		return types.OrderResp{}, fmt.Errorf("order quantity %v rounds to zero", req.Qty)
	}
	clientID := req.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}

	q := url.Values{}
	q.Set("symbol", req.Symbol)
	q.Set("side", string(req.Side))
	q.Set("type", "MARKET")
	q.Set("quantity", qty.String())
	q.Set("newClientOrderId", clientID)
	q.Set("newOrderRespType", "RESULT")

	resp, err := c.http.Do(c.signedRequest(ctx, http.MethodPost, "/api/v3/order", q))
	if err != nil {
		return types.OrderResp{}, fmt.Errorf("place order: %w", classify(err))
	}
	var or orderResp
	if err := resp.ParseJSON(&or); err != nil {
		return types.OrderResp{}, err
	}

	out := types.OrderResp{
		OrderID:   strconv.FormatInt(or.OrderID, 10),
		ClientID:  or.ClientOrderID,
		Status:    or.Status,
		FillPrice: req.Price,
	}
	filled, err := decimal.NewFromString(or.ExecutedQty)
	if err == nil {
		out.FilledQty = filled.InexactFloat64()
	}
	quote, err := decimal.NewFromString(or.CummulativeQuoteQty)
	if err == nil && filled.IsPositive() {
		out.FillPrice = quote.Div(filled).InexactFloat64()
	}
	if or.Status != "FILLED" {
		out.Message = "order not fully filled"
	}
	return out, nil
}

func (c *Client) streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.streams) > 0
}

// Start seeds the candle cache over REST and opens one kline stream per
// symbol. Without UseStream it does nothing.
func (c *Client) Start(ctx context.Context, symbols []string) error {
	if !c.p.UseStream {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.streams) > 0 {
		return nil
	}
	step, err := types.IntervalDuration(c.p.Interval)
	if err != nil {
		return err
	}

	for _, symbol := range symbols {
		seed, err := c.fetchKlines(ctx, symbol, c.p.Interval, min(c.p.StreamCacheSize, 1000))
		if err != nil {
			return fmt.Errorf("seed candle cache: %w", err)
		}
		key := cacheKey(symbol, c.p.Interval)
		c.cache.initBuffer(key, c.p.StreamCacheSize, int64(step/time.Second), seed)

		s := newKlineStream(c.p.StreamURL, symbol, c.p.Interval, func(cdl types.Candle) {
			c.cache.upsert(key, cdl)
		})
		s.start(context.WithoutCancel(ctx))
		c.streams = append(c.streams, s)
	}
	logger.Info(ctx, "Kline streams started", "symbols", symbols, "interval", c.p.Interval)
	return nil
}

func (c *Client) Stop(ctx context.Context) {
	c.mu.Lock()
	streams := c.streams
	c.streams = nil
	c.mu.Unlock()

	for _, s := range streams {
		s.stop()
	}
	c.cache.clear()
}
