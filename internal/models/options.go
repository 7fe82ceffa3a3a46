package models

import (
	"math"
	"sort"
	"time"
)

// OptionQuote is one row of an option chain for a single side.
type OptionQuote struct {
	Strike       float64 `json:"strike"`
	LastPrice    float64 `json:"last_price"`
	OpenInterest int64   `json:"open_interest"`
	Volume       int64   `json:"volume"`
}

// IsLive reports whether the quote can be used without a manual override:
// a positive price backed by either traded volume or open interest.
func (q OptionQuote) IsLive() bool {
	return q.LastPrice > 0 && (q.Volume > 0 || q.OpenInterest > 0)
}

// OptionTable is a strike ladder for one side, sorted by strike.
type OptionTable []OptionQuote

// NewOptionTable copies and sorts quotes by strike.
func NewOptionTable(quotes []OptionQuote) OptionTable {
	if len(quotes) == 0 {
		return nil
	}
	t := make(OptionTable, len(quotes))
	copy(t, quotes)
	sort.Slice(t, func(i, j int) bool { return t[i].Strike < t[j].Strike })
	return t
}

// Nearest returns the quote whose strike is closest to strike, provided it
// lies within tolerance. Feed strikes are floats, so exact equality is never used.
func (t OptionTable) Nearest(strike, tolerance float64) (OptionQuote, bool) {
	best := -1
	bestDist := math.Inf(1)
	for i, q := range t {
		d := math.Abs(q.Strike - strike)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 || bestDist > tolerance {
		return OptionQuote{}, false
	}
	return t[best], true
}

// LiveNear returns the nearest quote only if it also passes the liveness check.
func (t OptionTable) LiveNear(strike, tolerance float64) (OptionQuote, bool) {
	q, ok := t.Nearest(strike, tolerance)
	if !ok || !q.IsLive() {
		return OptionQuote{}, false
	}
	return q, true
}

// FuturesQuote is the near-month futures (or currency forward) leg.
type FuturesQuote struct {
	Symbol       string    `json:"symbol"`
	Price        float64   `json:"price"`
	Expiry       time.Time `json:"expiry"`
	OpenInterest int64     `json:"open_interest"`
	Volume       int64     `json:"volume"`
}

// IsLive reports whether the futures quote carries a usable price.
func (f *FuturesQuote) IsLive() bool {
	return f != nil && f.Price > 0
}

// GreeksVector holds option sensitivities for one leg or a combined position.
type GreeksVector struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"` // per calendar day
	Vega  float64 `json:"vega"`  // per 1% volatility
	Rho   float64 `json:"rho"`   // per 1% rate
}

// IsZero reports whether every component is zero.
func (g GreeksVector) IsZero() bool {
	return g == GreeksVector{}
}

// Scale multiplies every component by f.
func (g GreeksVector) Scale(f float64) GreeksVector {
	return GreeksVector{
		Delta: g.Delta * f,
		Gamma: g.Gamma * f,
		Theta: g.Theta * f,
		Vega:  g.Vega * f,
		Rho:   g.Rho * f,
	}
}

// Sub returns g - o component-wise.
func (g GreeksVector) Sub(o GreeksVector) GreeksVector {
	return GreeksVector{
		Delta: g.Delta - o.Delta,
		Gamma: g.Gamma - o.Gamma,
		Theta: g.Theta - o.Theta,
		Vega:  g.Vega - o.Vega,
		Rho:   g.Rho - o.Rho,
	}
}
