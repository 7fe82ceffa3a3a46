package pricing

import (
	"math"

	"arb-monitor/internal/models"
)

// Greeks returns the sensitivities of one European option leg. Theta is per
// calendar day, vega per 1% volatility and rho per 1% rate. Degenerate inputs
// (any of S, K, T, sigma not positive) yield the zero vector.
func Greeks(kind OptionKind, S, K, r, T, sigma float64) models.GreeksVector {
	if degenerate(S, K, T, sigma) {
		return models.GreeksVector{}
	}

	d1, d2 := d1d2(S, K, r, T, sigma)
	sqrtT := math.Sqrt(T)
	pdf := normPDF(d1)
	pvK := K * math.Exp(-r*T)

	g := models.GreeksVector{
		Gamma: pdf / (S * sigma * sqrtT),
		Vega:  S * sqrtT * pdf / 100,
	}
	decay := -S * pdf * sigma / (2 * sqrtT)

	if kind == Call {
		g.Delta = normCDF(d1)
		g.Theta = (decay - r*pvK*normCDF(d2)) / 365
		g.Rho = K * T * math.Exp(-r*T) * normCDF(d2) / 100
	} else {
		g.Delta = normCDF(d1) - 1
		g.Theta = (decay + r*pvK*normCDF(-d2)) / 365
		g.Rho = -K * T * math.Exp(-r*T) * normCDF(-d2) / 100
	}
	return g
}

// Legs holds the per-leg and combined Greeks of a parity position.
type Legs struct {
	Call     models.GreeksVector `json:"call"`
	Put      models.GreeksVector `json:"put"`
	Combined models.GreeksVector `json:"combined"`
}

// Combine aggregates option legs into the position implied by signal.
// A conversion is long spot, long put, short call: delta (1 + Δp − Δc)·units
// and (Xp − Xc)·units for every other Greek. A reversal is the mirror, and
// any other signal holds no position.
func Combine(signal models.SignalType, call, put models.GreeksVector, units float64) models.GreeksVector {
	var sign float64
	switch signal {
	case models.SignalConversion:
		sign = 1
	case models.SignalReversal:
		sign = -1
	default:
		return models.GreeksVector{}
	}

	pos := put.Sub(call)
	pos.Delta += 1
	return pos.Scale(sign * units)
}

// PositionGreeks computes both legs at strike K and combines them for signal.
func PositionGreeks(signal models.SignalType, S, K, r, T, sigma, units float64) Legs {
	c := Greeks(Call, S, K, r, T, sigma)
	p := Greeks(Put, S, K, r, T, sigma)
	return Legs{Call: c, Put: p, Combined: Combine(signal, c, p, units)}
}
