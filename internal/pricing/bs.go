// Package pricing implements Black-Scholes-Merton pricing for European options.
package pricing

import (
	"math"

	apperrors "arb-monitor/internal/errors"
)

const sqrt2Pi = 2.5066282746310002

// OptionKind selects the call or put formula.
type OptionKind string

const (
	Call OptionKind = "CE"
	Put  OptionKind = "PE"
)

// degenerate reports whether BSM inputs would divide by zero or take the log of
// a non-positive number.
func degenerate(S, K, T, sigma float64) bool {
	return !(S > 0) || !(K > 0) || !(T > 0) || !(sigma > 0)
}

func d1d2(S, K, r, T, sigma float64) (float64, float64) {
	sqrtT := math.Sqrt(T)
	d1 := (math.Log(S/K) + (r+0.5*sigma*sigma)*T) / (sigma * sqrtT)
	return d1, d1 - sigma*sqrtT
}

// Price returns the BSM price of a European option. Degenerate inputs fall
// back to discounted intrinsic value.
func Price(kind OptionKind, S, K, r, T, sigma float64) float64 {
	if degenerate(S, K, T, sigma) {
		return intrinsic(kind, S, K, r, T)
	}
	d1, d2 := d1d2(S, K, r, T, sigma)
	df := math.Exp(-r * T)
	if kind == Call {
		return S*normCDF(d1) - K*df*normCDF(d2)
	}
	return K*df*normCDF(-d2) - S*normCDF(-d1)
}

func intrinsic(kind OptionKind, S, K, r, T float64) float64 {
	pvK := K
	if T > 0 {
		pvK = K * math.Exp(-r*T)
	}
	if kind == Call {
		return math.Max(0, S-pvK)
	}
	return math.Max(0, pvK-S)
}

// EstimatePremium is the model price substituted for a missing or stale quote.
// With no usable volatility it returns fallbackFraction × spot.
func EstimatePremium(kind OptionKind, S, K, r, T, sigma, fallbackFraction float64) float64 {
	if !(sigma > 0) || !(T > 0) || !(S > 0) || !(K > 0) {
		return math.Max(0, S*fallbackFraction)
	}
	return Price(kind, S, K, r, T, sigma)
}

// EstimatePair fills the missing legs of a call/put pair so that
// C - P = S - K e^{-rT} holds. A known leg (> 0) is kept and the other is
// derived from it. With neither known the call is estimated and the put
// derived. Derived legs are floored at zero.
func EstimatePair(S, K, r, T, sigma, fallbackFraction, call, put float64) (float64, float64) {
	fwd := S - K*math.Exp(-r*math.Max(T, 0))
	switch {
	case call > 0 && put > 0:
		return call, put
	case call > 0:
		return call, math.Max(0, call-fwd)
	case put > 0:
		return math.Max(0, put+fwd), put
	}
	c := math.Max(EstimatePremium(Call, S, K, r, T, sigma, fallbackFraction), fwd)
	return c, c - fwd
}

// ImpliedVolatility solves for the volatility implied by an ATM call/put pair
// using Newton-Raphson on the call formula. The put is mapped to a call value
// through parity and the two are averaged.
func ImpliedVolatility(S, K, r, T, callPrice, putPrice float64) (float64, error) {
	if degenerate(S, K, T, 1) || callPrice <= 0 || putPrice <= 0 {
		return 0, apperrors.Wrap(apperrors.ErrDegenerateInput, "implied volatility")
	}

	// C - P = S - K e^{-rT} lets both legs express the same call value.
	parityCall := putPrice + S - K*math.Exp(-r*T)
	target := (callPrice + parityCall) / 2
	if target <= intrinsic(Call, S, K, r, T) {
		return 0, apperrors.Wrap(apperrors.ErrDegenerateInput, "premium below intrinsic value")
	}

	const (
		maxIter = 100
		tol     = 1e-6
	)

	sigma := 0.20
	for i := 0; i < maxIter; i++ {
		diff := Price(Call, S, K, r, T, sigma) - target
		if math.Abs(diff) < tol {
			return sigma, nil
		}

		v := rawVega(S, K, r, T, sigma)
		if v < 1e-8 {
			break
		}
		sigma -= diff / v

		if sigma <= 0 {
			sigma = 1e-4
		}
		if sigma > 5 {
			sigma = 5
		}
	}
	return 0, apperrors.Wrap(apperrors.ErrDegenerateInput, "implied volatility did not converge")
}

// rawVega is dPrice/dSigma without the per-1% scaling.
func rawVega(S, K, r, T, sigma float64) float64 {
	if degenerate(S, K, T, sigma) {
		return 0
	}
	d1, _ := d1d2(S, K, r, T, sigma)
	return S * normPDF(d1) * math.Sqrt(T)
}

func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / sqrt2Pi
}

func normCDF(x float64) float64 {
	return 0.5 * (1.0 + math.Erf(x/math.Sqrt2))
}
