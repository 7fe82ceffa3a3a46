package arbitrage

import (
	"math"
	"time"

	apperrors "arb-monitor/internal/errors"
	"arb-monitor/internal/friction"
	"arb-monitor/internal/models"
)

const (
	actionIRPRich  = "Borrow foreign, convert to domestic, invest domestic, sell forward"
	actionIRPCheap = "Borrow domestic, convert to foreign, invest foreign, buy forward"
)

// IRPInput is one covered interest-rate parity valuation request. Spot and
// Forward are quoted as domestic units per foreign unit.
type IRPInput struct {
	Asset             string
	Spot              float64
	Forward           float64
	DomesticRate      float64
	ForeignRate       float64
	Maturity          time.Time
	Now               time.Time
	Notional          float64 // foreign units
	CostPerTxn        float64
	MarginPct         float64
	ThresholdFraction float64
	Meta              Meta
}

// IRPResult carries the opportunity plus the theoretical forward.
type IRPResult struct {
	Opportunity models.ArbitrageOpportunity `json:"opportunity"`
	Theoretical float64                     `json:"theoretical_forward"`
	Years       float64                     `json:"years"`
}

// YearsToMaturity is the year fraction between now and maturity. A maturity
// in the past is a validation error.
func YearsToMaturity(now, maturity time.Time) (float64, error) {
	if maturity.IsZero() {
		return 0, apperrors.NewValidationError("maturity", maturity, "is required")
	}
	d := maturity.Sub(now)
	if d < 0 {
		return 0, apperrors.NewValidationError("maturity", maturity.Format(time.DateOnly), "is in the past")
	}
	return d.Hours() / 24 / 365, nil
}

// TheoreticalForward is S·e^((r_dom − r_for)T).
func TheoreticalForward(spot, domestic, foreign, years float64) float64 {
	return spot * math.Exp((domestic-foreign)*years)
}

// ValueIRP compares a quoted forward with its interest-parity value.
func ValueIRP(in IRPInput, fm friction.Model) (*IRPResult, error) {
	for _, c := range []struct {
		field string
		v     float64
	}{
		{"spot", in.Spot},
		{"forward", in.Forward},
		{"notional", in.Notional},
		{"cost_per_txn", in.CostPerTxn},
		{"margin_pct", in.MarginPct},
		{"threshold_fraction", in.ThresholdFraction},
	} {
		if err := models.NonNegative(c.field, c.v); err != nil {
			return nil, err
		}
	}
	years, err := YearsToMaturity(in.Now, in.Maturity)
	if err != nil {
		return nil, err
	}

	theo := TheoreticalForward(in.Spot, in.DomesticRate, in.ForeignRate, years)
	gap := in.Forward - theo

	cls := Classify(gap, theo, in.ThresholdFraction)
	opp := models.ArbitrageOpportunity{
		Strategy:  models.StrategyInterestRateParity,
		Asset:     in.Asset,
		Signal:    cls.Signal(models.SignalCashCarry, models.SignalReverseCashCarry),
		Gap:       gap,
		Threshold: cls.Threshold,
		Deviation: Deviation(gap, theo),
	}
	in.Meta.apply(&opp)
	if opp.Expiry.IsZero() {
		opp.Expiry = in.Maturity
	}

	switch cls.State {
	case Rich:
		opp.Action = actionIRPRich
	case Cheap:
		opp.Action = actionIRPCheap
	default:
		opp.Action = actionNone
	}

	// Proportional rates come from the schedule; the IRP default has none.
	cost := fm.Cost(in.Notional, in.Spot, 0, 0, in.CostPerTxn, fm.Legs())
	settle(&opp, cls.Magnitude*in.Notional, cost, marginCapital(in.Spot, in.Notional, in.MarginPct), years)

	return &IRPResult{Opportunity: opp, Theoretical: theo, Years: years}, nil
}
