package friction

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestCost_Components(t *testing.T) {
	m := New(Schedule{EquityTaxRate: 0.001, OptionsTaxRate: 0.000625, Legs: 4})

	// 30×4 + 25000×65×0.001 + (650+450)×65×0.000625
	got := m.Cost(65, 25000, 650, 450, 30, 4)
	want := 120 + 1625 + 44.69
	if math.Abs(got-want) > 0.005 {
		t.Errorf("Cost = %.2f, want %.2f", got, want)
	}

	b := m.Breakdown(65, 25000, 650, 450, 30, 4)
	if b.Brokerage != 120 {
		t.Errorf("Brokerage = %.2f, want 120", b.Brokerage)
	}
	if b.EquityTax != 1625 {
		t.Errorf("EquityTax = %.2f, want 1625", b.EquityTax)
	}
	if math.Abs(b.Brokerage+b.EquityTax+b.OptionsTax-b.Total) > 0.011 {
		t.Errorf("components %+v do not sum to total", b)
	}
}

func TestCost_BrokerageOnly(t *testing.T) {
	m := New(Schedule{Legs: 4})
	if got := m.Cost(65, 25000, 650, 450, 30, 4); got != 120 {
		t.Errorf("Cost = %.2f, want 120", got)
	}
	if got := m.Flat(20); got != 80 {
		t.Errorf("Flat = %.2f, want 80", got)
	}
}

func TestCost_ClampsNegativeInputs(t *testing.T) {
	m := New(Schedule{EquityTaxRate: -0.5, OptionsTaxRate: 0.001, Legs: 4})
	got := m.Cost(-10, 100, -5, -5, -20, -3)
	if got != 0 {
		t.Errorf("Cost with negative inputs = %.2f, want 0", got)
	}
	if got := m.Cost(math.NaN(), math.Inf(1), 1, 1, 10, 2); got != 20 {
		t.Errorf("Cost with non-finite inputs = %.2f, want 20", got)
	}
}

// Property: friction is never negative for any inputs.
func TestProperty_FrictionNonNegative(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("Cost >= 0", prop.ForAll(
		func(units, spot, call, put, brokerage, eqTax float64, legs int) bool {
			m := New(Schedule{EquityTaxRate: eqTax, OptionsTaxRate: eqTax / 2, Legs: legs})
			return m.Cost(units, spot, call, put, brokerage, legs) >= 0
		},
		gen.Float64Range(-1000, 100000),
		gen.Float64Range(-100, 100000),
		gen.Float64Range(-100, 5000),
		gen.Float64Range(-100, 5000),
		gen.Float64Range(-50, 100),
		gen.Float64Range(-0.01, 0.01),
		gen.IntRange(-4, 8),
	))

	properties.Property("Cost is monotone in brokerage", prop.ForAll(
		func(brokerage, extra float64) bool {
			m := New(Schedule{EquityTaxRate: 0.001, Legs: 4})
			return m.Cost(10, 100, 0, 0, brokerage+extra, 4) >= m.Cost(10, 100, 0, 0, brokerage, 4)
		},
		gen.Float64Range(0, 100),
		gen.Float64Range(0, 100),
	))

	properties.TestingRun(t)
}
