package binance

import (
	"fmt"
	"sync"

	"ta-trading-bot/internal/types"
)

// candleCache keeps the latest candles per stream key, oldest first.
type candleCache struct {
	buffers map[string]*candleBuffer
	mu      sync.RWMutex
}

type candleBuffer struct {
	candles []types.Candle
	maxSize int
	// step is the bar length in seconds; zero disables the gap check.
	step int64
}

func newCandleCache() *candleCache {
	return &candleCache{
		buffers: make(map[string]*candleBuffer),
	}
}

func cacheKey(symbol, interval string) string { return symbol + "@" + interval }

// initBuffer replaces the buffer for key with the seed candles.
func (cc *candleCache) initBuffer(key string, maxSize int, step int64, seed []types.Candle) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.buffers[key] = newBuffer(maxSize, step, seed)
}

// refill swaps in candles fetched over REST for an existing buffer.
func (cc *candleCache) refill(key string, candles []types.Candle) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	buffer, exists := cc.buffers[key]
	if !exists || len(candles) == 0 {
		return
	}
	if n := len(buffer.candles); n > 0 && buffer.candles[n-1].Ts > candles[len(candles)-1].Ts {
		return
	}
	cc.buffers[key] = newBuffer(buffer.maxSize, buffer.step, candles)
}

func newBuffer(maxSize int, step int64, seed []types.Candle) *candleBuffer {
	if len(seed) > maxSize {
		seed = seed[len(seed)-maxSize:]
	}
	candles := make([]types.Candle, len(seed), maxSize+1)
	copy(candles, seed)
	return &candleBuffer{candles: candles, maxSize: maxSize, step: step}
}

// upsert replaces the newest candle when it has the same open time, appends
// otherwise. Out-of-order candles are dropped. A candle that skips bars
// restarts the buffer so it never holds a gap.
func (cc *candleCache) upsert(key string, candle types.Candle) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	buffer, exists := cc.buffers[key]
	if !exists {
		return
	}
	n := len(buffer.candles)
	switch {
	case n > 0 && buffer.candles[n-1].Ts == candle.Ts:
		buffer.candles[n-1] = candle
	case n > 0 && buffer.candles[n-1].Ts > candle.Ts:
		return
	case n > 0 && buffer.step > 0 && candle.Ts-buffer.candles[n-1].Ts > buffer.step:
		buffer.candles = append(buffer.candles[:0], candle)
	default:
		buffer.candles = append(buffer.candles, candle)
		if len(buffer.candles) > buffer.maxSize {
			buffer.candles = buffer.candles[1:]
		}
	}
}

// getRecent returns a copy of the last n candles. Fewer than n, or a newest
// candle opened before minTs, is an error.
func (cc *candleCache) getRecent(key string, n int, minTs int64) ([]types.Candle, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	buffer, exists := cc.buffers[key]
	if !exists {
		return nil, fmt.Errorf("no candle data for %s", key)
	}
	if len(buffer.candles) < n {
		return nil, fmt.Errorf("only %d candles cached for %s, need %d", len(buffer.candles), key, n)
	}
	if n > 0 {
		if newest := buffer.candles[len(buffer.candles)-1].Ts; newest < minTs {
			return nil, fmt.Errorf("cached candles for %s are stale (newest %d, want >= %d)", key, newest, minTs)
		}
	}
	out := make([]types.Candle, n)
	copy(out, buffer.candles[len(buffer.candles)-n:])
	return out, nil
}

func (cc *candleCache) clear() {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.buffers = make(map[string]*candleBuffer)
}
