// Package friction computes transaction costs for arbitrage trades.
package friction

import (
	"github.com/shopspring/decimal"
)

// Schedule is the cost schedule for one strategy.
type Schedule struct {
	EquityTaxRate  float64 `mapstructure:"equity_tax_rate" json:"equity_tax_rate"`
	OptionsTaxRate float64 `mapstructure:"options_tax_rate" json:"options_tax_rate"`
	Legs           int     `mapstructure:"legs" json:"legs"`
}

// Breakdown splits a friction figure into its components.
type Breakdown struct {
	Brokerage  float64 `json:"brokerage"`
	EquityTax  float64 `json:"equity_tax"`
	OptionsTax float64 `json:"options_tax"`
	Total      float64 `json:"total"`
}

// Model applies a Schedule. It is a value type and safe for concurrent use.
type Model struct {
	schedule Schedule
}

// New creates a model for the given schedule.
func New(s Schedule) Model {
	return Model{schedule: s}
}

// Schedule returns the model's schedule.
func (m Model) Schedule() Schedule {
	return m.schedule
}

// Legs returns the configured order count, never less than zero.
func (m Model) Legs() int {
	if m.schedule.Legs < 0 {
		return 0
	}
	return m.schedule.Legs
}

// Cost returns total friction in rupees, rounded to the paisa:
//
//	brokerage × legs + spot × units × equityTax + (call + put) × units × optionsTax
//
// Every component is clamped at zero so the result is never negative.
func (m Model) Cost(units, spot, callPremium, putPremium, brokeragePerOrder float64, numLegs int) float64 {
	return m.Breakdown(units, spot, callPremium, putPremium, brokeragePerOrder, numLegs).Total
}

// Breakdown is Cost with the per-component split.
func (m Model) Breakdown(units, spot, callPremium, putPremium, brokeragePerOrder float64, numLegs int) Breakdown {
	u := nonNeg(units)
	legs := decimal.NewFromInt(int64(max(numLegs, 0)))

	brokerage := nonNeg(brokeragePerOrder).Mul(legs)
	equity := nonNeg(spot).Mul(u).Mul(nonNeg(m.schedule.EquityTaxRate))
	premium := nonNeg(callPremium).Add(nonNeg(putPremium))
	options := premium.Mul(u).Mul(nonNeg(m.schedule.OptionsTaxRate))

	total := brokerage.Add(equity).Add(options).Round(2)

	return Breakdown{
		Brokerage:  brokerage.Round(2).InexactFloat64(),
		EquityTax:  equity.Round(2).InexactFloat64(),
		OptionsTax: options.Round(2).InexactFloat64(),
		Total:      total.InexactFloat64(),
	}
}

// Flat returns brokerage × legs using the schedule's own leg count.
func (m Model) Flat(brokeragePerOrder float64) float64 {
	return m.Cost(0, 0, 0, 0, brokeragePerOrder, m.Legs())
}

// nonNeg converts v to a decimal, mapping negatives and non-finite values to zero.
func nonNeg(v float64) decimal.Decimal {
	if !(v > 0) || v > 1e300 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}
