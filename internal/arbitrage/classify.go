// Package arbitrage values no-arbitrage relationships and classifies the
// resulting mispricing into trade signals. Every valuator is a pure function
// of its input and the supplied friction model.
package arbitrage

import (
	"math"
	"time"

	"arb-monitor/internal/models"
)

// State is the three-way outcome of classifying a gap.
type State int

const (
	Flat State = iota
	Rich
	Cheap
)

func (s State) String() string {
	switch s {
	case Rich:
		return "rich"
	case Cheap:
		return "cheap"
	default:
		return "flat"
	}
}

// Classification is the shared decision for every valuator.
type Classification struct {
	State     State
	Gap       float64
	Threshold float64
	Magnitude float64
}

// Classify compares gap against |scale| × fraction. The threshold scales with
// the price level so one fraction applies across assets of any magnitude.
// Magnitude is |gap| when a side is chosen and zero otherwise.
func Classify(gap, scale, fraction float64) Classification {
	thr := math.Abs(scale) * math.Max(fraction, 0)
	c := Classification{Gap: gap, Threshold: thr}
	switch {
	case gap > thr:
		c.State, c.Magnitude = Rich, math.Abs(gap)
	case gap < -thr:
		c.State, c.Magnitude = Cheap, math.Abs(gap)
	}
	return c
}

// Signal maps the classification onto a strategy's signal names.
func (c Classification) Signal(rich, cheap models.SignalType) models.SignalType {
	switch c.State {
	case Rich:
		return rich
	case Cheap:
		return cheap
	default:
		return models.SignalNone
	}
}

// Deviation is |gap| relative to scale.
func Deviation(gap, scale float64) float64 {
	if scale == 0 {
		return 0
	}
	return math.Abs(gap / scale)
}

// YearsFromDays converts calendar days to a year fraction.
func YearsFromDays(days float64) float64 {
	return days / 365
}

// settle fills the P&L fields. Gross is computed once here from the entry-time
// magnitude; nothing downstream recomputes it.
func settle(opp *models.ArbitrageOpportunity, gross, friction, capital, years float64) {
	if !opp.Signal.IsTrade() {
		gross = 0
	}
	opp.GrossPnL = gross
	opp.Friction = friction
	opp.NetPnL = gross - friction
	opp.Capital = capital
	opp.Profitable = opp.Signal.IsTrade() && opp.NetPnL > 0
	opp.AnnualizedReturn = annualized(opp.NetPnL, capital, years)
}

func annualized(net, capital, years float64) float64 {
	if capital <= 0 || years <= 0 {
		return 0
	}
	return net / capital / years
}

func marginCapital(price, units, marginPct float64) float64 {
	return price * units * marginPct
}

// Meta carries the data-quality tags copied onto an opportunity.
type Meta struct {
	Provenance models.Provenance
	Diagnostic string
	Estimated  bool
	Expiry     time.Time
}

func (m Meta) apply(opp *models.ArbitrageOpportunity) {
	opp.Provenance = m.Provenance
	opp.Diagnostic = m.Diagnostic
	opp.Estimated = m.Estimated
	opp.Expiry = m.Expiry
}
