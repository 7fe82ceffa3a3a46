package arbitrage

import (
	"math"

	"arb-monitor/internal/friction"
	"arb-monitor/internal/models"
)

const (
	actionCashCarry        = "Buy Spot + Sell Futures, deliver at expiry"
	actionReverseCashCarry = "Short Spot + Buy Futures, accept delivery"
)

// CarryInput is one futures basis valuation request.
type CarryInput struct {
	Asset             string
	Spot              float64
	Futures           float64
	Rate              float64
	CarryRate         float64 // holding cost or negative dividend yield
	DaysToExpiry      float64
	Units             float64
	BrokeragePerOrder float64
	MarginPct         float64
	ThresholdFraction float64
	Meta              Meta
}

// CarryResult carries the opportunity plus the fair value used.
type CarryResult struct {
	Opportunity models.ArbitrageOpportunity `json:"opportunity"`
	FairFutures float64                     `json:"fair_futures"`
	Basis       float64                     `json:"basis"`
	Curve       []DecayPoint                `json:"curve,omitempty"`
}

// FairFutures is S·e^((r+d)T).
func FairFutures(spot, rate, carry, years float64) float64 {
	return spot * math.Exp((rate+carry)*years)
}

// BasisDecay is the fair futures price with daysLeft calendar days remaining.
// It approaches spot as daysLeft goes to zero; that convergence is what locks
// the basis in, whatever the direction of the underlying.
func BasisDecay(spot, rate, carry, daysLeft float64) float64 {
	if daysLeft < 0 {
		daysLeft = 0
	}
	return FairFutures(spot, rate, carry, YearsFromDays(daysLeft))
}

// DecayPoint is one row of a basis decay projection.
type DecayPoint struct {
	DaysLeft int     `json:"days_left"`
	Fair     float64 `json:"fair"`
	Distance float64 `json:"distance"` // |fair − market futures|
}

// DecayCurve tabulates BasisDecay from daysToExpiry down to zero in steps of
// step days. The final row is always day zero.
func DecayCurve(spot, rate, carry, market float64, daysToExpiry, step int) []DecayPoint {
	if daysToExpiry < 0 {
		daysToExpiry = 0
	}
	if step <= 0 {
		step = 1
	}
	var out []DecayPoint
	for d := daysToExpiry; ; d -= step {
		if d < 0 {
			d = 0
		}
		fair := BasisDecay(spot, rate, carry, float64(d))
		out = append(out, DecayPoint{DaysLeft: d, Fair: fair, Distance: math.Abs(fair - market)})
		if d == 0 {
			break
		}
	}
	return out
}

// ValueCarry compares the market futures price with its cost-of-carry value.
func ValueCarry(in CarryInput, fm friction.Model) (*CarryResult, error) {
	for _, c := range []struct {
		field string
		v     float64
	}{
		{"spot", in.Spot},
		{"futures", in.Futures},
		{"days_to_expiry", in.DaysToExpiry},
		{"units", in.Units},
		{"brokerage_per_order", in.BrokeragePerOrder},
		{"margin_pct", in.MarginPct},
		{"threshold_fraction", in.ThresholdFraction},
	} {
		if err := models.NonNegative(c.field, c.v); err != nil {
			return nil, err
		}
	}

	years := YearsFromDays(in.DaysToExpiry)
	fair := FairFutures(in.Spot, in.Rate, in.CarryRate, years)
	basis := in.Futures - fair

	cls := Classify(basis, fair, in.ThresholdFraction)
	opp := models.ArbitrageOpportunity{
		Strategy:  models.StrategyCostOfCarry,
		Asset:     in.Asset,
		Signal:    cls.Signal(models.SignalCashCarry, models.SignalReverseCashCarry),
		Gap:       basis,
		Threshold: cls.Threshold,
		Deviation: Deviation(basis, fair),
	}
	in.Meta.apply(&opp)

	switch opp.Signal {
	case models.SignalCashCarry:
		opp.Action = actionCashCarry
	case models.SignalReverseCashCarry:
		opp.Action = actionReverseCashCarry
	default:
		opp.Action = actionNone
	}

	cost := fm.Cost(in.Units, in.Spot, 0, 0, in.BrokeragePerOrder, fm.Legs())
	settle(&opp, cls.Magnitude*in.Units, cost, marginCapital(in.Spot, in.Units, in.MarginPct), years)

	days := int(math.Ceil(in.DaysToExpiry))
	return &CarryResult{
		Opportunity: opp,
		FairFutures: fair,
		Basis:       basis,
		Curve:       DecayCurve(in.Spot, in.Rate, in.CarryRate, in.Futures, days, max(1, days/30)),
	}, nil
}
