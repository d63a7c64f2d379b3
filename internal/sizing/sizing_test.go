package sizing

import (
	"math"
	"testing"
)

var defaults = Params{FeeRate: 0.001, Precision: 4, MinNotional: 10, Percentage: 0.7}

func TestQuantityRoundsDown(t *testing.T) {
	// 1000*0.7/(2000*1.001) = 0.34965...
	got := Quantity(1000, 2000, defaults)
	if got != 0.3496 {
		t.Errorf("Expected 0.3496, got %v", got)
	}
}

func TestQuantityBelowNotionalIsZero(t *testing.T) {
	p := defaults
	p.MinNotional = 800
	if got := Quantity(1000, 2000, p); got != 0 {
		t.Errorf("Expected 0 below min notional, got %v", got)
	}

	// Rounding to zero places leaves nothing to trade.
	p = defaults
	p.Precision = 0
	if got := Quantity(1000, 2000, p); got != 0 {
		t.Errorf("Expected 0 after truncation, got %v", got)
	}
}

func TestQuantityNonPositiveInputs(t *testing.T) {
	for _, tc := range []struct{ bal, price float64 }{{0, 100}, {-5, 100}, {100, 0}, {100, -1}} {
		if got := Quantity(tc.bal, tc.price, defaults); got != 0 {
			t.Errorf("Quantity(%v, %v): expected 0, got %v", tc.bal, tc.price, got)
		}
	}
}

func TestQuantityFloor(t *testing.T) {
	for bal := 1.0; bal < 200; bal += 0.37 {
		for _, price := range []float64{0.5, 3, 17.25, 250, 1999.99} {
			q := Quantity(bal, price, defaults)
			if q != 0 && q*price < defaults.MinNotional-1e-9 {
				t.Fatalf("Quantity(%v, %v) = %v is below min notional", bal, price, q)
			}
		}
	}
}

func TestQuantityMonotonicInBalance(t *testing.T) {
	prev := 0.0
	for bal := 0.0; bal <= 5000; bal += 7.3 {
		q := Quantity(bal, 1850.5, defaults)
		if q < prev {
			t.Fatalf("Quantity decreased from %v to %v at balance %v", prev, q, bal)
		}
		prev = q
	}
}

func TestQuantityMonotonicInPrice(t *testing.T) {
	prev := math.Inf(1)
	for price := 1.0; price <= 3000; price += 3.7 {
		q := Quantity(1000, price, defaults)
		if q > prev {
			t.Fatalf("Quantity increased from %v to %v at price %v", prev, q, price)
		}
		prev = q
	}
}

func TestSellQuantity(t *testing.T) {
	// 0.5 ETH at 2000 is worth 1000, so the sell side sizes like a 1000 quote balance.
	if got, want := SellQuantity(0.5, 2000, defaults), Quantity(1000, 2000, defaults); got != want {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestRound(t *testing.T) {
	if got := Round(1.23456789, 4).String(); got != "1.2345" {
		t.Errorf("Expected 1.2345, got %s", got)
	}
}

func TestQuantityNeverRoundsUpPastBudget(t *testing.T) {
	p := Params{FeeRate: 0, Precision: 4, MinNotional: 0, Percentage: 1}
	got := Quantity(0.12349999999996, 1, p)
	if got != 0.1234 {
		t.Errorf("Expected 0.1234, got %v", got)
	}
	if got > 0.12349999999996 {
		t.Errorf("Expected quantity within the balance, got %v", got)
	}

	// exact multiples stay as they are
	if got := Quantity(0.1235, 1, p); got != 0.1235 {
		t.Errorf("Expected 0.1235, got %v", got)
	}
}
