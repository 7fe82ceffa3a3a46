package arbitrage

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	apperrors "arb-monitor/internal/errors"
	"arb-monitor/internal/friction"
	"arb-monitor/internal/models"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func flatFriction() friction.Model {
	return friction.New(friction.Schedule{Legs: 4})
}

func niftyParams(T float64) models.TradeParameters {
	return models.TradeParameters{
		Strike:            25000,
		CallPremium:       650,
		PutPremium:        450,
		RiskFreeRate:      0.0675,
		TimeToExpiry:      T,
		Lots:              1,
		BrokeragePerOrder: 30,
		MarginPct:         0.2,
		ThresholdFraction: 0.0005,
	}
}

func TestValuePCP_WorkedExample(t *testing.T) {
	// T chosen so that PV(K) = 24771.86.
	T := math.Log(25000/24771.86) / 0.0675

	res, err := ValuePCP(PCPInput{Asset: "NIFTY", Spot: 25000, LotSize: 65, Params: niftyParams(T)}, flatFriction())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	opp := res.Opportunity

	if !almostEqual(res.PVStrike, 24771.86, 0.01) {
		t.Errorf("PV(K) = %.2f, want 24771.86", res.PVStrike)
	}
	if !almostEqual(res.Synthetic, 24971.86, 0.01) {
		t.Errorf("synthetic = %.2f, want 24971.86", res.Synthetic)
	}
	if !almostEqual(opp.Gap, 28.14, 0.01) {
		t.Errorf("gap = %.2f, want 28.14", opp.Gap)
	}
	if !almostEqual(opp.Threshold, 12.5, 1e-9) {
		t.Errorf("threshold = %.4f, want 12.5", opp.Threshold)
	}
	if opp.Signal != models.SignalConversion {
		t.Errorf("signal = %s, want conversion", opp.Signal)
	}
	if opp.Action != "Buy Spot + Buy Put + Sell Call" {
		t.Errorf("action = %q", opp.Action)
	}
	if !almostEqual(opp.GrossPnL, 1829.1, 0.5) {
		t.Errorf("gross = %.2f, want 1829.1", opp.GrossPnL)
	}
	if opp.Friction != 120 {
		t.Errorf("friction = %.2f, want 120", opp.Friction)
	}
	if !almostEqual(opp.NetPnL, 1709.1, 0.5) {
		t.Errorf("net = %.2f, want 1709.1", opp.NetPnL)
	}
	if opp.NetPnL != opp.GrossPnL-opp.Friction {
		t.Errorf("net %.4f != gross %.4f - friction %.4f", opp.NetPnL, opp.GrossPnL, opp.Friction)
	}
	if !opp.Profitable {
		t.Error("expected profitable")
	}
	if !almostEqual(opp.Capital, 25000*65*0.2, 1e-6) {
		t.Errorf("capital = %.2f", opp.Capital)
	}
	if !almostEqual(opp.AnnualizedReturn, opp.NetPnL/opp.Capital/T, 1e-12) {
		t.Errorf("annualized = %f", opp.AnnualizedReturn)
	}
}

func TestValuePCP_FifteenDayDiscount(t *testing.T) {
	res, err := ValuePCP(PCPInput{Asset: "NIFTY", Spot: 25000, LotSize: 65, Params: niftyParams(15.0 / 365)}, flatFriction())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(res.PVStrike, 24930.75, 0.01) {
		t.Errorf("PV(K) = %.2f, want 24930.75", res.PVStrike)
	}
	// gap = 25000 - 25130.75 is a reversal.
	if res.Opportunity.Signal != models.SignalReversal {
		t.Errorf("signal = %s, want reversal", res.Opportunity.Signal)
	}
}

func TestValuePCP_NoSignalChargesFriction(t *testing.T) {
	p := niftyParams(15.0 / 365)
	p.ThresholdFraction = 0.01
	res, err := ValuePCP(PCPInput{Asset: "NIFTY", Spot: 25000, LotSize: 65, Params: p}, flatFriction())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	opp := res.Opportunity
	if opp.Signal != models.SignalNone {
		t.Fatalf("signal = %s, want none", opp.Signal)
	}
	if opp.GrossPnL != 0 || opp.NetPnL != -opp.Friction || opp.Profitable {
		t.Errorf("none signal: gross %.2f net %.2f friction %.2f profitable %v", opp.GrossPnL, opp.NetPnL, opp.Friction, opp.Profitable)
	}
}

func TestValuePCP_AttachesGreeks(t *testing.T) {
	T := math.Log(25000/24771.86) / 0.0675
	res, err := ValuePCP(PCPInput{Asset: "NIFTY", Spot: 25000, LotSize: 65, Params: niftyParams(T), Volatility: 0.14}, flatFriction())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Greeks == nil || res.Opportunity.Greeks == nil {
		t.Fatal("expected Greeks")
	}
	if !almostEqual(res.Opportunity.Greeks.Delta, 0, 1e-9) {
		t.Errorf("conversion delta = %f, want 0", res.Opportunity.Greeks.Delta)
	}
}

func TestValuePCP_Validation(t *testing.T) {
	p := niftyParams(-1)
	_, err := ValuePCP(PCPInput{Asset: "NIFTY", Spot: 25000, LotSize: 65, Params: p}, flatFriction())
	if !errors.Is(err, apperrors.ErrInputValidation) {
		t.Errorf("err = %v, want ErrInputValidation", err)
	}
}

// Property: options priced exactly on parity produce no gap.
func TestProperty_ParityRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("C - P = S - K e^{-rT} gives gap 0", prop.ForAll(
		func(S, moneyness, r, T, base float64) bool {
			K := S * moneyness
			pvK := PVStrike(K, r, T)
			put := base + math.Max(0, pvK-S)
			call := put + S - pvK

			p := models.TradeParameters{
				Strike: K, CallPremium: call, PutPremium: put, RiskFreeRate: r, TimeToExpiry: T,
				Lots: 1, BrokeragePerOrder: 20, MarginPct: 0.2, ThresholdFraction: 0.0005,
			}
			res, err := ValuePCP(PCPInput{Asset: "X", Spot: S, LotSize: 50, Params: p}, flatFriction())
			if err != nil {
				t.Logf("unexpected error: %v", err)
				return false
			}
			return almostEqual(res.Opportunity.Gap, 0, 1e-9*S) && res.Opportunity.Signal == models.SignalNone
		},
		gen.Float64Range(10, 60000),
		gen.Float64Range(0.8, 1.2),
		gen.Float64Range(0, 0.12),
		gen.Float64Range(0, 1),
		gen.Float64Range(1, 500),
	))

	properties.TestingRun(t)
}

// Property: the absolute threshold is proportional to spot.
func TestProperty_ThresholdScaling(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("doubling spot doubles threshold", prop.ForAll(
		func(spot, fraction, gap float64) bool {
			a := Classify(gap, spot, fraction)
			b := Classify(gap, 2*spot, fraction)
			return almostEqual(b.Threshold, 2*a.Threshold, 1e-9*spot)
		},
		gen.Float64Range(1, 100000),
		gen.Float64Range(0, 0.05),
		gen.Float64Range(-1000, 1000),
	))

	properties.Property("PCP threshold is spot × fraction", prop.ForAll(
		func(spot, fraction float64) bool {
			p := niftyParams(0.05)
			p.Strike = spot
			p.ThresholdFraction = fraction
			r1, err1 := ValuePCP(PCPInput{Asset: "X", Spot: spot, LotSize: 1, Params: p}, flatFriction())
			p.Strike = 2 * spot
			r2, err2 := ValuePCP(PCPInput{Asset: "X", Spot: 2 * spot, LotSize: 1, Params: p}, flatFriction())
			if err1 != nil || err2 != nil {
				return false
			}
			return almostEqual(r2.Opportunity.Threshold, 2*r1.Opportunity.Threshold, 1e-9*spot)
		},
		gen.Float64Range(1, 100000),
		gen.Float64Range(0, 0.05),
	))

	properties.TestingRun(t)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		gap   float64
		state State
		mag   float64
	}{
		{28.14, Rich, 28.14},
		{-28.14, Cheap, 28.14},
		{12.5, Flat, 0},
		{-12.5, Flat, 0},
		{0, Flat, 0},
	}
	for _, tt := range tests {
		c := Classify(tt.gap, 25000, 0.0005)
		if c.State != tt.state || c.Magnitude != tt.mag {
			t.Errorf("Classify(%.2f) = %s/%.2f, want %s/%.2f", tt.gap, c.State, c.Magnitude, tt.state, tt.mag)
		}
	}
}

// Property: every scenario row carries the same net P&L, while leg values move.
func TestProperty_ScenarioInvariance(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("net P&L identical at 0.85S, S, 1.15S", prop.ForAll(
		func(S, gapFrac float64, lots int) bool {
			p := niftyParams(30.0 / 365)
			p.Strike = S
			p.Lots = lots
			p.PutPremium = 0.02 * S
			// Shift the call so spot sits gapFrac away from synthetic.
			p.CallPremium = p.PutPremium + S*(1-gapFrac) - PVStrike(S, p.RiskFreeRate, p.TimeToExpiry)
			if p.CallPremium < 0 {
				return true
			}

			res, err := ValuePCP(PCPInput{Asset: "X", Spot: S, LotSize: 25, Params: p}, flatFriction())
			if err != nil {
				return false
			}
			opp := res.Opportunity
			if !opp.Signal.IsTrade() {
				return true
			}

			rows := PCPScenarios(opp, p, S, res.Units, ScenarioPrices(S))
			if len(rows) != 3 {
				return false
			}
			for _, r := range rows {
				if r.NetPnL != opp.NetPnL {
					return false
				}
				if !almostEqual(r.LegTotal, rows[0].LegTotal, 1e-6*S*res.Units) {
					return false
				}
			}
			return rows[0].SpotLeg != rows[2].SpotLeg
		},
		gen.Float64Range(100, 50000),
		gen.Float64Range(-0.05, 0.05),
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t)
}

func TestCarryScenarios_NetConstant(t *testing.T) {
	res, err := ValueCarry(CarryInput{
		Asset: "RELIANCE", Spot: 1400, Futures: 1425, Rate: 0.065, DaysToExpiry: 20,
		Units: 250, BrokeragePerOrder: 20, MarginPct: 0.2, ThresholdFraction: 0.001,
	}, flatFriction())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	opp := res.Opportunity
	if opp.Signal != models.SignalCashCarry {
		t.Fatalf("signal = %s, want cash_carry", opp.Signal)
	}

	rows := CarryScenarios(opp, 1400, 1425, 250, ScenarioPrices(1400))
	for _, r := range rows {
		if r.NetPnL != opp.NetPnL {
			t.Errorf("row %.0f: net %.2f, want %.2f", r.PriceAtExpiry, r.NetPnL, opp.NetPnL)
		}
		if !almostEqual(r.LegTotal, 25*250, 1e-6) {
			t.Errorf("row %.0f: leg total %.2f, want %.2f", r.PriceAtExpiry, r.LegTotal, 25.0*250)
		}
	}
}

func TestValueCarry_Signals(t *testing.T) {
	fair := FairFutures(1400, 0.065, 0, 20.0/365)
	tests := []struct {
		name    string
		futures float64
		want    models.SignalType
	}{
		{"rich futures", fair + 10, models.SignalCashCarry},
		{"cheap futures", fair - 10, models.SignalReverseCashCarry},
		{"fair", fair + 0.5, models.SignalNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ValueCarry(CarryInput{
				Asset: "RELIANCE", Spot: 1400, Futures: tt.futures, Rate: 0.065, DaysToExpiry: 20,
				Units: 250, BrokeragePerOrder: 20, MarginPct: 0.2, ThresholdFraction: 0.001,
			}, flatFriction())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Opportunity.Signal != tt.want {
				t.Errorf("signal = %s, want %s", res.Opportunity.Signal, tt.want)
			}
			if !almostEqual(res.Basis, tt.futures-fair, 1e-9) {
				t.Errorf("basis = %f, want %f", res.Basis, tt.futures-fair)
			}
		})
	}
}

func TestBasisDecay_Endpoints(t *testing.T) {
	if got := BasisDecay(1400, 0.065, 0.01, 0); got != 1400 {
		t.Errorf("BasisDecay(0) = %f, want spot", got)
	}
	if got := BasisDecay(1400, 0.065, 0, 30); !almostEqual(got, FairFutures(1400, 0.065, 0, 30.0/365), 1e-9) {
		t.Errorf("BasisDecay(30) = %f", got)
	}
	// A negative carry larger than r lets fair sit below spot.
	if got := BasisDecay(1400, 0.02, -0.05, 30); got >= 1400 {
		t.Errorf("negative net carry: BasisDecay = %f, want < spot", got)
	}
}

// Property: with the futures price fixed at or below spot and r > 0, the
// distance between fair value and market futures shrinks toward expiry.
func TestProperty_BasisConvergence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("|fair(d) - F| non-increasing as d -> 0", prop.ForAll(
		func(S, fFrac, r float64, days int) bool {
			F := S * fFrac
			curve := DecayCurve(S, r, 0, F, days, 1)
			if curve[len(curve)-1].DaysLeft != 0 {
				return false
			}
			for i := 1; i < len(curve); i++ {
				if curve[i].Distance > curve[i-1].Distance+1e-9 {
					t.Logf("distance rose at d=%d: %f > %f", curve[i].DaysLeft, curve[i].Distance, curve[i-1].Distance)
					return false
				}
			}
			return true
		},
		gen.Float64Range(10, 50000),
		gen.Float64Range(0.9, 1.0),
		gen.Float64Range(0.001, 0.15),
		gen.IntRange(0, 90),
	))

	properties.TestingRun(t)
}

func TestValueIRP(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	maturity := now.AddDate(0, 0, 91)
	years := 91.0 / 365
	theo := TheoreticalForward(88, 0.065, 0.045, years)

	res, err := ValueIRP(IRPInput{
		Asset: "USDINR", Spot: 88, Forward: theo + 0.2, DomesticRate: 0.065, ForeignRate: 0.045,
		Maturity: maturity, Now: now, Notional: 100000, CostPerTxn: 50, MarginPct: 0.05, ThresholdFraction: 0.0005,
	}, flatFriction())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	opp := res.Opportunity
	if !almostEqual(res.Years, years, 1e-9) {
		t.Errorf("years = %f, want %f", res.Years, years)
	}
	if opp.Signal != models.SignalCashCarry {
		t.Errorf("signal = %s, want cash_carry", opp.Signal)
	}
	if !strings.HasPrefix(opp.Action, "Borrow foreign") {
		t.Errorf("action = %q", opp.Action)
	}
	if !almostEqual(opp.GrossPnL, 0.2*100000, 1e-3) {
		t.Errorf("gross = %f, want 20000", opp.GrossPnL)
	}
	if opp.Friction != 200 {
		t.Errorf("friction = %f, want 200", opp.Friction)
	}
	if !opp.Expiry.Equal(maturity) {
		t.Errorf("expiry = %v, want maturity", opp.Expiry)
	}
}

func TestValueIRP_PastMaturity(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	_, err := ValueIRP(IRPInput{
		Asset: "USDINR", Spot: 88, Forward: 88.5, Maturity: now.AddDate(0, 0, -1), Now: now, Notional: 1000,
	}, flatFriction())
	if !errors.Is(err, apperrors.ErrInputValidation) {
		t.Errorf("err = %v, want ErrInputValidation", err)
	}
}

func TestZScoreExample(t *testing.T) {
	z := ZScore(125, 100, 10)
	if z != 2.5 {
		t.Errorf("z = %f, want 2.5", z)
	}
	if s := SpreadSignal(z, 2.0); s != models.SignalSpreadShort {
		t.Errorf("signal = %s, want spread_short", s)
	}
	if s := SpreadSignal(-z, 2.0); s != models.SignalSpreadLong {
		t.Errorf("signal = %s, want spread_long", s)
	}
	if s := SpreadSignal(1.5, 2.0); s != models.SignalNone {
		t.Errorf("signal = %s, want none", s)
	}
	if ZScore(125, 100, 0) != 0 {
		t.Error("zero stdDev must give z = 0")
	}
}

func pairSeries(last float64) ([]float64, []float64) {
	const n = 30
	a := make([]float64, n)
	b := make([]float64, n)
	for i := 0; i < n; i++ {
		b[i] = 100 + float64(i)
		noise := 1.0
		if i%2 == 1 {
			noise = -1
		}
		if i == n-1 {
			noise = last
		}
		a[i] = 2*b[i] + noise
	}
	return a, b
}

func TestValueSpread_Signals(t *testing.T) {
	tests := []struct {
		name string
		last float64
		want models.SignalType
	}{
		{"rich spread", 10, models.SignalSpreadShort},
		{"cheap spread", -10, models.SignalSpreadLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := pairSeries(tt.last)
			res, err := ValueSpread(SpreadInput{
				AssetA: "RELIANCE", AssetB: "TCS", SeriesA: a, SeriesB: b,
				UnitsA: 250, UnitsB: 175, ZThreshold: 2, BrokeragePerOrder: 20, MarginPct: 0.2, HoldingDays: 10,
			}, flatFriction())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			opp := res.Opportunity
			if opp.Signal != tt.want {
				t.Errorf("signal = %s (z %.2f), want %s", opp.Signal, res.Stats.Z, tt.want)
			}
			if !opp.Probabilistic {
				t.Error("spread opportunities must be probabilistic")
			}
			if res.Stats.Degenerate {
				t.Error("unexpected degenerate fit")
			}
			wantGross := math.Abs(res.Stats.Current-res.Stats.Mean) * 175
			if !almostEqual(opp.GrossPnL, wantGross, 1e-9) {
				t.Errorf("gross = %f, want %f", opp.GrossPnL, wantGross)
			}
			if opp.Friction != 80 {
				t.Errorf("friction = %f, want 80", opp.Friction)
			}
			if !strings.Contains(opp.Action, "statistical estimate") {
				t.Errorf("action = %q", opp.Action)
			}
		})
	}
}

func TestFitSpread_ExactHedge(t *testing.T) {
	b := make([]float64, 20)
	a := make([]float64, 20)
	for i := range b {
		b[i] = 50 + float64(i)*1.5
		a[i] = 2*b[i] + 5
	}
	st := FitSpread(a, b, 10, 0.02)
	if !almostEqual(st.Beta, 2, 1e-9) {
		t.Errorf("beta = %f, want 2", st.Beta)
	}
	if !almostEqual(st.Mean, 5, 1e-9) {
		t.Errorf("mean = %f, want 5", st.Mean)
	}
	if math.Abs(st.Z) > 1e-3 && st.StdDev > 1e-9 {
		t.Errorf("z = %f, want ~0", st.Z)
	}
}

func TestFitSpread_InsufficientHistory(t *testing.T) {
	a := []float64{1400, 1410, 1405}
	b := []float64{3100, 3090, 3120}
	st := FitSpread(a, b, 10, 0.02)
	if !st.Degenerate || st.Beta != 1 || st.Mean != 0 {
		t.Errorf("stats = %+v, want degenerate beta 1 mean 0", st)
	}
	if !almostEqual(st.StdDev, 0.02*1405, 1e-9) {
		t.Errorf("stdDev = %f, want %f", st.StdDev, 0.02*1405)
	}

	res, err := ValueSpread(SpreadInput{
		AssetA: "RELIANCE", AssetB: "TCS", SeriesA: a, SeriesB: b,
		UnitsA: 250, UnitsB: 175, ZThreshold: 2, BrokeragePerOrder: 20,
	}, flatFriction())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Opportunity.Signal != models.SignalNone {
		t.Errorf("signal = %s, want none", res.Opportunity.Signal)
	}
	if !strings.Contains(res.Opportunity.Diagnostic, "insufficient history") {
		t.Errorf("diagnostic = %q", res.Opportunity.Diagnostic)
	}
}

func TestFitSpread_Empty(t *testing.T) {
	st := FitSpread(nil, nil, 10, 0.02)
	if !st.Degenerate || st.Z != 0 || st.StdDev != 0 {
		t.Errorf("stats = %+v", st)
	}
}
