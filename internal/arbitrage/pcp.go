package arbitrage

import (
	"math"

	"arb-monitor/internal/friction"
	"arb-monitor/internal/models"
	"arb-monitor/internal/pricing"
)

const (
	actionConversion = "Buy Spot + Buy Put + Sell Call"
	actionReversal   = "Short Spot + Sell Put + Buy Call"
	actionNone       = "No Action"
)

// PCPInput is one put-call parity valuation request.
type PCPInput struct {
	Asset      string
	Spot       float64
	LotSize    int
	Params     models.TradeParameters
	Volatility float64 // optional; enables Greeks when > 0
	Meta       Meta
}

// PCPResult carries the opportunity plus the intermediate parity values.
type PCPResult struct {
	Opportunity models.ArbitrageOpportunity `json:"opportunity"`
	Units       float64                     `json:"units"`
	PVStrike    float64                     `json:"pv_strike"`
	Synthetic   float64                     `json:"synthetic"`
	Greeks      *pricing.Legs               `json:"greeks,omitempty"`
}

// PVStrike discounts the strike continuously: K·e^(−rT).
func PVStrike(strike, rate, years float64) float64 {
	return strike * math.Exp(-rate*years)
}

// SyntheticSpot is C − P + K·e^(−rT).
func SyntheticSpot(call, put, strike, rate, years float64) float64 {
	return call - put + PVStrike(strike, rate, years)
}

// ValuePCP prices the gap between spot and the option-implied synthetic spot.
// A positive gap beyond the threshold is reported as a conversion, a negative
// one as a reversal.
func ValuePCP(in PCPInput, fm friction.Model) (*PCPResult, error) {
	p := in.Params
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := models.NonNegative("spot", in.Spot); err != nil {
		return nil, err
	}

	units := float64(p.Lots * in.LotSize)
	pvK := PVStrike(p.Strike, p.RiskFreeRate, p.TimeToExpiry)
	synthetic := p.CallPremium - p.PutPremium + pvK
	gap := in.Spot - synthetic

	cls := Classify(gap, in.Spot, p.ThresholdFraction)
	opp := models.ArbitrageOpportunity{
		Strategy:  models.StrategyPutCallParity,
		Asset:     in.Asset,
		Signal:    cls.Signal(models.SignalConversion, models.SignalReversal),
		Gap:       gap,
		Threshold: cls.Threshold,
		Deviation: Deviation(gap, in.Spot),
	}
	in.Meta.apply(&opp)

	switch opp.Signal {
	case models.SignalConversion:
		opp.Action = actionConversion
	case models.SignalReversal:
		opp.Action = actionReversal
	default:
		opp.Action = actionNone
	}

	cost := fm.Cost(units, in.Spot, p.CallPremium, p.PutPremium, p.BrokeragePerOrder, fm.Legs())
	settle(&opp, cls.Magnitude*units, cost, marginCapital(in.Spot, units, p.MarginPct), p.TimeToExpiry)

	res := &PCPResult{
		Units:     units,
		PVStrike:  pvK,
		Synthetic: synthetic,
	}
	if in.Volatility > 0 {
		legs := pricing.PositionGreeks(opp.Signal, in.Spot, p.Strike, p.RiskFreeRate, p.TimeToExpiry, in.Volatility, units)
		res.Greeks = &legs
		combined := legs.Combined
		opp.Greeks = &combined
	}
	res.Opportunity = opp
	return res, nil
}
