package models

import (
	"math"

	apperrors "arb-monitor/internal/errors"
)

// TradeParameters are the per-call inputs of a put-call parity valuation.
type TradeParameters struct {
	Strike            float64 `json:"strike"`
	CallPremium       float64 `json:"call_premium"`
	PutPremium        float64 `json:"put_premium"`
	RiskFreeRate      float64 `json:"risk_free_rate"`
	TimeToExpiry      float64 `json:"time_to_expiry"` // years
	Lots              int     `json:"lots"`
	BrokeragePerOrder float64 `json:"brokerage_per_order"`
	MarginPct         float64 `json:"margin_pct"`
	ThresholdFraction float64 `json:"threshold_fraction"`
}

// Validate performs numeric domain checks only.
func (p TradeParameters) Validate() error {
	checks := []struct {
		field string
		value float64
	}{
		{"strike", p.Strike},
		{"call_premium", p.CallPremium},
		{"put_premium", p.PutPremium},
		{"time_to_expiry", p.TimeToExpiry},
		{"brokerage_per_order", p.BrokeragePerOrder},
		{"threshold_fraction", p.ThresholdFraction},
	}
	for _, c := range checks {
		if err := NonNegative(c.field, c.value); err != nil {
			return err
		}
	}
	if p.Lots < 1 {
		return apperrors.NewValidationError("lots", p.Lots, "must be at least 1")
	}
	if p.MarginPct < 0 || p.MarginPct > 1 {
		return apperrors.NewValidationError("margin_pct", p.MarginPct, "must be between 0 and 1")
	}
	if p.ThresholdFraction > 1 {
		return apperrors.NewValidationError("threshold_fraction", p.ThresholdFraction, "must not exceed 1")
	}
	return nil
}

// NonNegative rejects negative or non-finite values.
func NonNegative(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return apperrors.NewValidationError(field, v, "must be finite")
	}
	if v < 0 {
		return apperrors.NewValidationError(field, v, "must be non-negative")
	}
	return nil
}
