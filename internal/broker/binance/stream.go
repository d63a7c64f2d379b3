package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"ta-trading-bot/internal/logger"
	"ta-trading-bot/internal/types"
)

const (
	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 30 * time.Second
)

// klineStream follows <symbol>@kline_<interval> and hands every update,
// open or closed, to onCandle. It reconnects with exponential backoff
// until stopped.
type klineStream struct {
	url      string
	symbol   string
	onCandle func(types.Candle)

	cancel context.CancelFunc
	done   chan struct{}
}

func newKlineStream(baseURL, symbol, interval string, onCandle func(types.Candle)) *klineStream {
	return &klineStream{
		url:      strings.TrimRight(baseURL, "/") + "/" + strings.ToLower(symbol) + "@kline_" + interval,
		symbol:   symbol,
		onCandle: onCandle,
		done:     make(chan struct{}),
	}
}

func (s *klineStream) start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go func() {
		defer close(s.done)
		s.run(ctx)
	}()
}

func (s *klineStream) stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *klineStream) run(ctx context.Context) {
	delay := reconnectDelay
	for {
		connected, err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			delay = reconnectDelay
		}
		logger.Warn(ctx, "Kline stream disconnected, reconnecting", "symbol", s.symbol, "error", err, "delay", delay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// runOnce reads one connection until it fails. connected reports whether
// the dial succeeded.
func (s *klineStream) runOnce(ctx context.Context) (connected bool, err error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()
	logger.Info(ctx, "Kline stream connected", "symbol", s.symbol)

	closed := make(chan struct{})
	defer close(closed)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-closed:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		cdl, ok, err := parseKlineEvent(raw)
		if err != nil {
			logger.Debug(ctx, "Skipping unparseable kline event", "symbol", s.symbol, "error", err)
			continue
		}
		if ok {
			s.onCandle(cdl)
		}
	}
}

type klineEvent struct {
	Event string `json:"e"`
	Kline struct {
		OpenTime int64  `json:"t"`
		Open     string `json:"o"`
		High     string `json:"h"`
		Low      string `json:"l"`
		Close    string `json:"c"`
		Volume   string `json:"v"`
		Closed   bool   `json:"x"`
	} `json:"k"`
}

// parseKlineEvent decodes a kline payload; ok is false for other events.
func parseKlineEvent(raw []byte) (types.Candle, bool, error) {
	var ev klineEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return types.Candle{}, false, err
	}
	if ev.Event != "kline" {
		return types.Candle{}, false, nil
	}
	k := ev.Kline
	var vals [5]float64
	for i, s := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return types.Candle{}, false, fmt.Errorf("kline field %d: %w", i, err)
		}
		vals[i] = v
	}
	return types.Candle{
		Ts:    k.OpenTime / 1000,
		Open:  vals[0],
		High:  vals[1],
		Low:   vals[2],
		Close: vals[3],
		Vol:   vals[4],
	}, true, nil
}
