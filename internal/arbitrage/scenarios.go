package arbitrage

import (
	"math"

	"arb-monitor/internal/models"
)

// DefaultScenarioMultipliers are the expiry prices shown relative to spot.
var DefaultScenarioMultipliers = []float64{0.85, 1.0, 1.15}

// ScenarioRow is one expiry-price illustration. Leg values move with the
// price; NetPnL is the opportunity's net figure repeated verbatim.
type ScenarioRow struct {
	PriceAtExpiry float64 `json:"price_at_expiry"`
	SpotLeg       float64 `json:"spot_leg"`
	PutLeg        float64 `json:"put_leg,omitempty"`
	CallLeg       float64 `json:"call_leg,omitempty"`
	FuturesLeg    float64 `json:"futures_leg,omitempty"`
	LegTotal      float64 `json:"leg_total"`
	NetPnL        float64 `json:"net_pnl"`
}

// ScenarioPrices returns spot × each multiplier, or the defaults when none are given.
func ScenarioPrices(spot float64, multipliers ...float64) []float64 {
	if len(multipliers) == 0 {
		multipliers = DefaultScenarioMultipliers
	}
	out := make([]float64, len(multipliers))
	for i, m := range multipliers {
		out[i] = spot * m
	}
	return out
}

// PCPScenarios breaks a parity position into its legs at each expiry price.
// A conversion is long spot, long put and short call; a reversal is the mirror.
func PCPScenarios(opp models.ArbitrageOpportunity, p models.TradeParameters, spot, units float64, prices []float64) []ScenarioRow {
	sign := positionSign(opp.Signal, models.SignalConversion, models.SignalReversal)
	rows := make([]ScenarioRow, len(prices))
	for i, st := range prices {
		r := ScenarioRow{PriceAtExpiry: st, NetPnL: opp.NetPnL}
		if sign != 0 {
			r.SpotLeg = sign * units * (st - spot)
			r.PutLeg = sign * units * (math.Max(p.Strike-st, 0) - p.PutPremium)
			r.CallLeg = sign * units * (p.CallPremium - math.Max(st-p.Strike, 0))
			r.LegTotal = r.SpotLeg + r.PutLeg + r.CallLeg
		}
		rows[i] = r
	}
	return rows
}

// CarryScenarios breaks a basis position into spot and futures legs. Cash and
// carry is long spot, short futures.
func CarryScenarios(opp models.ArbitrageOpportunity, spot, futures, units float64, prices []float64) []ScenarioRow {
	sign := positionSign(opp.Signal, models.SignalCashCarry, models.SignalReverseCashCarry)
	rows := make([]ScenarioRow, len(prices))
	for i, st := range prices {
		r := ScenarioRow{PriceAtExpiry: st, NetPnL: opp.NetPnL}
		if sign != 0 {
			r.SpotLeg = sign * units * (st - spot)
			r.FuturesLeg = sign * units * (futures - st)
			r.LegTotal = r.SpotLeg + r.FuturesLeg
		}
		rows[i] = r
	}
	return rows
}

func positionSign(signal, long, short models.SignalType) float64 {
	switch signal {
	case long:
		return 1
	case short:
		return -1
	default:
		return 0
	}
}
