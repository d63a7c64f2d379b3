// Package sizing turns an available balance into a tradeable quantity.
package sizing

import "github.com/shopspring/decimal"

type Params struct {
	FeeRate     float64 // fraction charged per fill
	Precision   int32   // decimal places kept in the quantity
	MinNotional float64 // smallest order value accepted by the exchange
	Percentage  float64 // fraction of the balance committed per order
}

// Quantity is balance*percentage/(price*(1+fee)) rounded down to Precision
// places. Orders worth less than MinNotional size to zero.
//
// For the sell side pass the base holding valued at price.
func Quantity(balance, price float64, p Params) float64 {
	if balance <= 0 || price <= 0 || p.Percentage <= 0 {
		return 0
	}
	bal := decimal.NewFromFloat(balance)
	px := decimal.NewFromFloat(price)
	cost := px.Mul(decimal.NewFromInt(1).Add(decimal.NewFromFloat(p.FeeRate)))

	budget := bal.Mul(decimal.NewFromFloat(p.Percentage))
	qty := budget.DivRound(cost, p.Precision+8).Truncate(p.Precision)
	// DivRound rounds half up, so a quotient just below a step can land on it.
	if qty.Mul(cost).GreaterThan(budget) {
		qty = qty.Sub(decimal.New(1, -p.Precision))
	}

	if qty.Mul(px).LessThan(decimal.NewFromFloat(p.MinNotional)) {
		return 0
	}
	f, _ := qty.Float64()
	return f
}

// SellQuantity sizes an exit from a base-asset holding.
func SellQuantity(base, price float64, p Params) float64 {
	return Quantity(base*price, price, p)
}

// Round truncates a quantity to precision places, e.g. for an exchange order string.
func Round(qty float64, precision int32) decimal.Decimal {
	return decimal.NewFromFloat(qty).Truncate(precision)
}
