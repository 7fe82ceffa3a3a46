package arbitrage

import (
	"fmt"
	"math"

	"arb-monitor/internal/friction"
	"arb-monitor/internal/models"
)

const (
	DefaultMinObservations       = 10
	DefaultDegenerateStdFraction = 0.02
)

// SpreadStats is the fitted pair relationship.
type SpreadStats struct {
	Beta         float64 `json:"beta"`
	Mean         float64 `json:"mean"`
	StdDev       float64 `json:"std_dev"`
	Current      float64 `json:"current"`
	Z            float64 `json:"z"`
	Observations int     `json:"observations"`
	Degenerate   bool    `json:"degenerate"`
}

// ZScore is (current − mean)/stdDev, or zero when stdDev is not positive.
func ZScore(current, mean, std float64) float64 {
	if !(std > 0) {
		return 0
	}
	return (current - mean) / std
}

// SpreadSignal maps a z-score onto a pairs signal: a rich spread is shorted,
// a cheap one bought.
func SpreadSignal(z, zThreshold float64) models.SignalType {
	return Classify(z, 1, zThreshold).Signal(models.SignalSpreadShort, models.SignalSpreadLong)
}

// FitSpread regresses a on b over their common tail and measures where the
// latest spread sits. With fewer than minObs aligned points, or a constant b,
// it falls back to β = 1, mean = 0 and stdDev = stdFraction × latest a.
func FitSpread(a, b []float64, minObs int, stdFraction float64) SpreadStats {
	if minObs <= 0 {
		minObs = DefaultMinObservations
	}
	a, b = alignTail(a, b)
	n := len(a)

	beta, ok := olsSlope(a, b)
	if n < minObs || !ok {
		st := SpreadStats{Beta: 1, Observations: n, Degenerate: true}
		if n > 0 {
			st.Current = a[n-1] - b[n-1]
			st.StdDev = math.Abs(stdFraction * a[n-1])
		}
		st.Z = ZScore(st.Current, st.Mean, st.StdDev)
		return st
	}

	spread := make([]float64, n)
	for i := range a {
		spread[i] = a[i] - beta*b[i]
	}
	st := SpreadStats{
		Beta:         beta,
		Mean:         mean(spread),
		StdDev:       stdDev(spread),
		Current:      spread[n-1],
		Observations: n,
	}
	st.Z = ZScore(st.Current, st.Mean, st.StdDev)
	return st
}

// Rebase moves the current spread to live prices, keeping the fitted β.
func (s SpreadStats) Rebase(priceA, priceB float64) SpreadStats {
	if priceA <= 0 || priceB <= 0 {
		return s
	}
	s.Current = priceA - s.Beta*priceB
	s.Z = ZScore(s.Current, s.Mean, s.StdDev)
	return s
}

// SpreadInput is one pairs valuation request.
type SpreadInput struct {
	AssetA            string
	AssetB            string
	SeriesA           []float64
	SeriesB           []float64
	PriceA            float64 // live price; zero keeps the last close
	PriceB            float64
	UnitsA            float64
	UnitsB            float64
	ZThreshold        float64
	BrokeragePerOrder float64
	MarginPct         float64
	HoldingDays       float64
	MinObservations   int
	StdFraction       float64
	Meta              Meta
}

// SpreadResult carries the opportunity plus the fitted statistics.
type SpreadResult struct {
	Opportunity models.ArbitrageOpportunity `json:"opportunity"`
	Stats       SpreadStats                 `json:"stats"`
}

// ValueSpread values a pairs trade. Unlike the parity models its P&L is an
// estimate of mean reversion and the opportunity is marked Probabilistic.
// Degenerate statistics never produce a trade signal.
func ValueSpread(in SpreadInput, fm friction.Model) (*SpreadResult, error) {
	for _, c := range []struct {
		field string
		v     float64
	}{
		{"units_a", in.UnitsA},
		{"units_b", in.UnitsB},
		{"z_threshold", in.ZThreshold},
		{"brokerage_per_order", in.BrokeragePerOrder},
		{"margin_pct", in.MarginPct},
		{"holding_days", in.HoldingDays},
	} {
		if err := models.NonNegative(c.field, c.v); err != nil {
			return nil, err
		}
	}

	stdFraction := in.StdFraction
	if stdFraction <= 0 {
		stdFraction = DefaultDegenerateStdFraction
	}
	st := FitSpread(in.SeriesA, in.SeriesB, in.MinObservations, stdFraction).Rebase(in.PriceA, in.PriceB)

	signal := SpreadSignal(st.Z, in.ZThreshold)
	if st.Degenerate {
		signal = models.SignalNone
	}
	dev := st.Current - st.Mean

	opp := models.ArbitrageOpportunity{
		Strategy:      models.StrategyStatisticalSpread,
		Asset:         in.AssetA + "/" + in.AssetB,
		Signal:        signal,
		Gap:           dev,
		Threshold:     in.ZThreshold,
		Deviation:     math.Abs(st.Z),
		Probabilistic: true,
	}
	in.Meta.apply(&opp)
	if st.Degenerate {
		msg := fmt.Sprintf("insufficient history (%d observations), using fallback spread parameters", st.Observations)
		if opp.Diagnostic != "" {
			msg = opp.Diagnostic + "; " + msg
		}
		opp.Diagnostic = msg
	}

	switch signal {
	case models.SignalSpreadShort:
		opp.Action = fmt.Sprintf("Short %s, Long %.4f units of %s per unit of %s (statistical estimate, not locked)", in.AssetA, st.Beta, in.AssetB, in.AssetA)
	case models.SignalSpreadLong:
		opp.Action = fmt.Sprintf("Long %s, Short %.4f units of %s per unit of %s (statistical estimate, not locked)", in.AssetA, st.Beta, in.AssetB, in.AssetA)
	default:
		opp.Action = actionNone
	}

	units := math.Min(in.UnitsA, in.UnitsB)
	priceA := in.PriceA
	if priceA <= 0 && len(in.SeriesA) > 0 {
		priceA = in.SeriesA[len(in.SeriesA)-1]
	}
	cost := fm.Cost(units, priceA, 0, 0, in.BrokeragePerOrder, fm.Legs())
	settle(&opp, math.Abs(dev)*units, cost, marginCapital(priceA, units, in.MarginPct), YearsFromDays(in.HoldingDays))

	return &SpreadResult{Opportunity: opp, Stats: st}, nil
}
