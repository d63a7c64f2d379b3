package tradelog

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var mu sync.Mutex

// Entry is one line of the daily trade journal.
type Entry struct {
	Time      string         `json:"time"`
	Symbol    string         `json:"symbol"`
	Side      string         `json:"side"`
	OrderID   string         `json:"order_id"`
	Reason    string         `json:"reason"`
	Qty       float64        `json:"qty"`
	Price     float64        `json:"price"`
	Fee       float64        `json:"fee"`
	NetCost   float64        `json:"net_cost"` // quote spent on a BUY, received on a SELL
	Simulated bool           `json:"simulated"`
	Extra     map[string]any `json:"extra,omitempty"`
}

type DecisionEntry struct {
	Time       string             `json:"time"`
	Symbol     string             `json:"symbol"`
	Action     string             `json:"action"`
	Reason     string             `json:"reason"`
	Price      float64            `json:"price"`
	Indicators map[string]float64 `json:"-"`
	Extra      map[string]any     `json:"extra,omitempty"`
}

// MarshalJSON writes undefined indicator values as null.
func (e DecisionEntry) MarshalJSON() ([]byte, error) {
	type plain DecisionEntry
	inds := make(map[string]*float64, len(e.Indicators))
	for k, v := range e.Indicators {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			inds[k] = nil
			continue
		}
		v := v
		inds[k] = &v
	}
	return json.Marshal(struct {
		plain
		Indicators map[string]*float64 `json:"indicators"`
	}{plain(e), inds})
}

func logDir() string {
	if v := os.Getenv("TRADER_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}

func dailyFilepath(t time.Time) string {
	return filepath.Join(logDir(), t.UTC().Format("2006-01-02")+".txt")
}

func decisionsFilepath(t time.Time) string {
	return filepath.Join(logDir(), "decisions", t.UTC().Format("2006-01-02")+".txt")
}

// Append writes a trade journal line to today's file.
func Append(e Entry) error {
	now := time.Now().UTC()
	e.Time = now.Format(timeLayout)
	return appendJSON(dailyFilepath(now), e)
}

// AppendDecision writes a decision journal line to today's decisions file.
func AppendDecision(e DecisionEntry) error {
	now := time.Now().UTC()
	e.Time = now.Format(timeLayout)
	return appendJSON(decisionsFilepath(now), e)
}

func appendJSON(p string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode journal line: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// CompressOlder gzips journal files last modified more than retentionDays ago
// and returns how many were compressed.
func CompressOlder(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	mu.Lock()
	defer mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	compressed := 0
	err := filepath.WalkDir(logDir(), func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || filepath.Ext(p) != ".txt" {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		// a previous run may have written the archive but not removed the source
		if _, err := os.Stat(p + ".gz"); err == nil {
			return os.Remove(p)
		}
		if err := gzipFile(p, p+".gz"); err != nil {
			return fmt.Errorf("compress %s: %w", p, err)
		}
		compressed++
		return os.Remove(p)
	})
	return compressed, err
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		gw.Close()
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := gw.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
