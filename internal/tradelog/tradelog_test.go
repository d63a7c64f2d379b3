package tradelog

import (
	"bufio"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAppendDecisionWritesNullForUndefined(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TRADER_LOG_DIR", dir)

	err := AppendDecision(DecisionEntry{
		Symbol: "ETHUSDT", Action: "HOLD", Reason: "hold:indicators_warming_up", Price: 2000,
		Indicators: map[string]float64{"RSI": math.NaN(), "BB_LOW": 1990},
	})
	if err != nil {
		t.Fatalf("AppendDecision: %v", err)
	}

	f, err := os.Open(decisionsFilepath(time.Now()))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		t.Fatal("Expected one journal line")
	}
	var got struct {
		Action     string              `json:"action"`
		Indicators map[string]*float64 `json:"indicators"`
	}
	if err := json.Unmarshal(sc.Bytes(), &got); err != nil {
		t.Fatalf("bad journal line %q: %v", sc.Text(), err)
	}
	if got.Action != "HOLD" {
		t.Errorf("Expected HOLD, got %s", got.Action)
	}
	if got.Indicators["RSI"] != nil {
		t.Errorf("Expected null RSI, got %v", *got.Indicators["RSI"])
	}
	if v := got.Indicators["BB_LOW"]; v == nil || *v != 1990 {
		t.Errorf("Expected BB_LOW 1990, got %v", v)
	}
}

func TestCompressOlder(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TRADER_LOG_DIR", dir)

	if err := Append(Entry{Symbol: "ETHUSDT", Side: "BUY", Qty: 0.1, Price: 2000, Simulated: true}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	old := filepath.Join(dir, "2020-01-01.txt")
	if err := os.WriteFile(old, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	past := time.Now().AddDate(0, 0, -30)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}

	n, err := CompressOlder(7)
	if err != nil {
		t.Fatalf("CompressOlder: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 file compressed, got %d", n)
	}
	if _, err := os.Stat(old + ".gz"); err != nil {
		t.Errorf("Expected archive: %v", err)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("Expected source file to be removed")
	}
	if _, err := os.Stat(dailyFilepath(time.Now())); err != nil {
		t.Errorf("Expected today's journal to stay: %v", err)
	}
}
