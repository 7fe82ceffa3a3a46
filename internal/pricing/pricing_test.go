package pricing

import (
	"errors"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	apperrors "arb-monitor/internal/errors"
	"arb-monitor/internal/models"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestGreeks_ATMCall(t *testing.T) {
	g := Greeks(Call, 25000, 25000, 0.0675, 15.0/365, 0.15)

	if g.Delta < 0.5 || g.Delta > 0.6 {
		t.Errorf("ATM call delta = %.4f, want in (0.5, 0.6)", g.Delta)
	}
	if g.Gamma <= 0 {
		t.Errorf("gamma = %f, want > 0", g.Gamma)
	}
	if g.Theta >= 0 {
		t.Errorf("call theta = %f, want < 0", g.Theta)
	}
	if g.Vega <= 0 || g.Rho <= 0 {
		t.Errorf("vega = %f rho = %f, want both > 0", g.Vega, g.Rho)
	}
}

func TestGreeks_PutCallRelations(t *testing.T) {
	S, K, r, T, sigma := 1400.0, 1420.0, 0.065, 30.0/365, 0.25
	c := Greeks(Call, S, K, r, T, sigma)
	p := Greeks(Put, S, K, r, T, sigma)

	if !almostEqual(c.Delta-p.Delta, 1, 1e-12) {
		t.Errorf("call delta - put delta = %f, want 1", c.Delta-p.Delta)
	}
	if c.Gamma != p.Gamma || c.Vega != p.Vega {
		t.Errorf("gamma/vega must be shared: call %+v put %+v", c, p)
	}
	if p.Rho >= 0 {
		t.Errorf("put rho = %f, want < 0", p.Rho)
	}
}

// Property: degenerate inputs produce the zero vector.
func TestProperty_GreeksDegeneracy(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("T = 0 gives zero Greeks", prop.ForAll(
		func(S, K, r, sigma float64) bool {
			return Greeks(Call, S, K, r, 0, sigma).IsZero() && Greeks(Put, S, K, r, 0, sigma).IsZero()
		},
		gen.Float64Range(1, 50000),
		gen.Float64Range(1, 50000),
		gen.Float64Range(0, 0.2),
		gen.Float64Range(0.01, 1),
	))

	properties.Property("non-positive S, K or sigma gives zero Greeks", prop.ForAll(
		func(bad, T float64, which int) bool {
			S, K, sigma := 1000.0, 1000.0, 0.2
			switch which {
			case 0:
				S = bad
			case 1:
				K = bad
			default:
				sigma = bad
			}
			return Greeks(Call, S, K, 0.05, T, sigma).IsZero() && Greeks(Put, S, K, 0.05, T, sigma).IsZero()
		},
		gen.Float64Range(-1000, 0),
		gen.Float64Range(0.01, 2),
		gen.IntRange(0, 2),
	))

	properties.Property("call delta in [0,1], put delta in [-1,0]", prop.ForAll(
		func(S, K, T, sigma float64) bool {
			c := Greeks(Call, S, K, 0.06, T, sigma)
			p := Greeks(Put, S, K, 0.06, T, sigma)
			return c.Delta >= 0 && c.Delta <= 1 && p.Delta >= -1 && p.Delta <= 0
		},
		gen.Float64Range(100, 50000),
		gen.Float64Range(100, 50000),
		gen.Float64Range(0.001, 2),
		gen.Float64Range(0.01, 1.5),
	))

	properties.TestingRun(t)
}

// Property: BSM prices satisfy put-call parity.
func TestProperty_PriceParity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("C - P = S - K e^{-rT}", prop.ForAll(
		func(S, moneyness, r, T, sigma float64) bool {
			K := S * moneyness
			lhs := Price(Call, S, K, r, T, sigma) - Price(Put, S, K, r, T, sigma)
			rhs := S - K*math.Exp(-r*T)
			return almostEqual(lhs, rhs, 1e-6*S)
		},
		gen.Float64Range(100, 50000),
		gen.Float64Range(0.8, 1.2),
		gen.Float64Range(0, 0.15),
		gen.Float64Range(0.01, 1),
		gen.Float64Range(0.05, 0.8),
	))

	properties.TestingRun(t)
}

func TestImpliedVolatility_RoundTrip(t *testing.T) {
	S, K, r, T := 25000.0, 25000.0, 0.0675, 20.0/365
	for _, sigma := range []float64{0.08, 0.15, 0.3, 0.6} {
		c := Price(Call, S, K, r, T, sigma)
		p := Price(Put, S, K, r, T, sigma)
		iv, err := ImpliedVolatility(S, K, r, T, c, p)
		if err != nil {
			t.Fatalf("sigma %.2f: unexpected error: %v", sigma, err)
		}
		if !almostEqual(iv, sigma, 1e-4) {
			t.Errorf("implied vol = %.6f, want %.6f", iv, sigma)
		}
	}
}

func TestImpliedVolatility_Degenerate(t *testing.T) {
	if _, err := ImpliedVolatility(25000, 25000, 0.06, 0, 100, 100); !errors.Is(err, apperrors.ErrDegenerateInput) {
		t.Errorf("T=0: err = %v, want ErrDegenerateInput", err)
	}
	if _, err := ImpliedVolatility(25000, 25000, 0.06, 0.1, 0, 100); !errors.Is(err, apperrors.ErrDegenerateInput) {
		t.Errorf("zero call: err = %v, want ErrDegenerateInput", err)
	}
}

func TestEstimatePremium(t *testing.T) {
	if got := EstimatePremium(Call, 25000, 25000, 0.06, 0.05, 0, 0.01); got != 250 {
		t.Errorf("no-vol estimate = %f, want 250", got)
	}
	want := Price(Put, 25000, 25000, 0.06, 0.05, 0.14)
	if got := EstimatePremium(Put, 25000, 25000, 0.06, 0.05, 0.14, 0.01); got != want {
		t.Errorf("vol estimate = %f, want %f", got, want)
	}
}

// Filled legs satisfy put-call parity, so an estimated pair never carries a
// gap of its own.
func TestProperty_EstimatePairOnParity(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("estimated legs sit on parity", prop.ForAll(
		func(S, moneyness, r, T, sigma, quote float64, known int) bool {
			K := S * moneyness
			fwd := S - K*math.Exp(-r*T)
			var call, put float64
			switch known {
			case 1:
				call = quote * S
			case 2:
				put = quote * S
			}
			c, p := EstimatePair(S, K, r, T, sigma, 0.02, call, put)
			if c < 0 || p < 0 {
				return false
			}
			if (known == 1 && c != call) || (known == 2 && p != put) {
				return false
			}
			// A floored leg means the live quote itself breaks the bound.
			if (known == 1 && p == 0) || (known == 2 && c == 0) {
				return true
			}
			return almostEqual(c-p, fwd, 1e-6*S)
		},
		gen.Float64Range(100, 50000),
		gen.Float64Range(0.8, 1.2),
		gen.Float64Range(0, 0.12),
		gen.Float64Range(1.0/365, 1),
		gen.Float64Range(0, 0.6),
		gen.Float64Range(0.001, 0.1),
		gen.IntRange(0, 2),
	))

	properties.TestingRun(t)
}

func TestEstimatePair_NoVolatilityNoGap(t *testing.T) {
	S, K, r, T := 25000.0, 25000.0, 0.0675, 30.0/365
	c, p := EstimatePair(S, K, r, T, 0, 0.02, 0, 0)
	if c != 500 {
		t.Errorf("call = %f, want 0.02 x spot", c)
	}
	if gap := (c - p) - (S - K*math.Exp(-r*T)); !almostEqual(gap, 0, 1e-9) {
		t.Errorf("gap = %f, want 0", gap)
	}

	c, p = EstimatePair(S, K, r, T, 0, 0.02, 0, 430)
	if p != 430 || !almostEqual(c-p, S-K*math.Exp(-r*T), 1e-9) {
		t.Errorf("derived call = %f for put %f", c, p)
	}
}

func TestCombine(t *testing.T) {
	call := models.GreeksVector{Delta: 0.55, Gamma: 0.001, Theta: -10, Vega: 12, Rho: 5}
	put := models.GreeksVector{Delta: -0.45, Gamma: 0.001, Theta: -6, Vega: 12, Rho: -4}

	conv := Combine(models.SignalConversion, call, put, 65)
	if !almostEqual(conv.Delta, (1-0.45-0.55)*65, 1e-9) {
		t.Errorf("conversion delta = %f, want 0", conv.Delta)
	}
	if !almostEqual(conv.Theta, 4*65, 1e-9) {
		t.Errorf("conversion theta = %f, want %f", conv.Theta, 4.0*65)
	}
	if !almostEqual(conv.Rho, -9*65, 1e-9) {
		t.Errorf("conversion rho = %f, want %f", conv.Rho, -9.0*65)
	}

	rev := Combine(models.SignalReversal, call, put, 65)
	if rev != conv.Scale(-1) {
		t.Errorf("reversal = %+v, want negated conversion %+v", rev, conv)
	}

	if !Combine(models.SignalNone, call, put, 65).IsZero() {
		t.Error("none signal must combine to zero")
	}
}

func TestPositionGreeks_ConversionIsDeltaNeutral(t *testing.T) {
	legs := PositionGreeks(models.SignalConversion, 25000, 25000, 0.0675, 15.0/365, 0.15, 65)
	if !almostEqual(legs.Combined.Delta, 0, 1e-9) {
		t.Errorf("conversion delta = %f, want 0", legs.Combined.Delta)
	}
	if !almostEqual(legs.Combined.Gamma, 0, 1e-12) {
		t.Errorf("conversion gamma = %f, want 0", legs.Combined.Gamma)
	}
}
