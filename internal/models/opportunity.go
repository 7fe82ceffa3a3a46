package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Strategy names a valuation model.
type Strategy string

const (
	StrategyPutCallParity      Strategy = "put_call_parity"
	StrategyCostOfCarry        Strategy = "cost_of_carry"
	StrategyInterestRateParity Strategy = "interest_rate_parity"
	StrategyStatisticalSpread  Strategy = "statistical_spread"
)

// AllStrategies lists every strategy in scan order.
func AllStrategies() []Strategy {
	return []Strategy{
		StrategyPutCallParity,
		StrategyCostOfCarry,
		StrategyInterestRateParity,
		StrategyStatisticalSpread,
	}
}

// ParseStrategy accepts the canonical name or a short alias.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "put_call_parity", "pcp":
		return StrategyPutCallParity, nil
	case "cost_of_carry", "carry", "basis":
		return StrategyCostOfCarry, nil
	case "interest_rate_parity", "irp", "cirp":
		return StrategyInterestRateParity, nil
	case "statistical_spread", "spread", "pairs":
		return StrategyStatisticalSpread, nil
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}

// SignalType is the trade signal produced by a valuator.
type SignalType string

const (
	SignalConversion       SignalType = "conversion"
	SignalReversal         SignalType = "reversal"
	SignalCashCarry        SignalType = "cash_carry"
	SignalReverseCashCarry SignalType = "reverse_cash_carry"
	SignalSpreadLong       SignalType = "spread_long"
	SignalSpreadShort      SignalType = "spread_short"
	SignalNone             SignalType = "none"
)

// IsTrade reports whether the signal asks for a position.
func (s SignalType) IsTrade() bool {
	return s != SignalNone && s != ""
}

// ArbitrageOpportunity is one valued (asset, strategy) result. It is produced
// fresh on every valuation and never mutated afterwards.
type ArbitrageOpportunity struct {
	Strategy         Strategy      `json:"strategy"`
	Asset            string        `json:"asset"`
	Signal           SignalType    `json:"signal"`
	Gap              float64       `json:"gap"`
	Threshold        float64       `json:"threshold"`
	Deviation        float64       `json:"deviation"`
	GrossPnL         float64       `json:"gross_pnl"`
	Friction         float64       `json:"friction"`
	NetPnL           float64       `json:"net_pnl"`
	Capital          float64       `json:"capital"`
	AnnualizedReturn float64       `json:"annualized_return"`
	Expiry           time.Time     `json:"expiry,omitempty"`
	Action           string        `json:"action"`
	Profitable       bool          `json:"profitable"`
	Estimated        bool          `json:"estimated"`
	Probabilistic    bool          `json:"probabilistic"`
	Provenance       Provenance    `json:"provenance,omitempty"`
	Diagnostic       string        `json:"diagnostic,omitempty"`
	Greeks           *GreeksVector `json:"greeks,omitempty"`
}

// SortByNetPnL orders opportunities by net P&L descending, breaking ties by
// asset then strategy so the ranking is deterministic.
func SortByNetPnL(opps []ArbitrageOpportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		if opps[i].NetPnL != opps[j].NetPnL {
			return opps[i].NetPnL > opps[j].NetPnL
		}
		if opps[i].Asset != opps[j].Asset {
			return opps[i].Asset < opps[j].Asset
		}
		return opps[i].Strategy < opps[j].Strategy
	})
}
