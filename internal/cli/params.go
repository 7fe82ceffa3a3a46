package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"arb-monitor/internal/scanner"
	"arb-monitor/pkg/utils"
)

// addParamFlags registers the valuation parameters shared by scan and the
// per-strategy commands. Unset flags fall back to the [defaults] config.
func addParamFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int("lots", 0, "number of lots")
	f.Float64("rate", 0, "annual risk-free rate (0.0675 = 6.75%)")
	f.Float64("brokerage", 0, "brokerage per order in INR")
	f.Float64("margin", 0, "margin as a fraction of notional")
	f.Float64("threshold", 0, "no-arbitrage band as a fraction of spot")
	f.Float64("vol", 0, "volatility for estimates and Greeks (0 = implied)")
	f.Float64("carry-rate", 0, "extra carry rate for futures fair value")
	f.Float64("foreign-rate", 0, "foreign interest rate for IRP")
	f.Float64("notional", 0, "foreign notional for IRP")
	f.Int("lookback", 0, "days of history for the spread model")
	f.Float64("z", 0, "z-score threshold for the spread model")
	f.Float64("holding-days", 0, "expected holding period for the spread model")
}

// paramsFromFlags overlays changed flags on base.
func paramsFromFlags(cmd *cobra.Command, base scanner.Params) scanner.Params {
	f := cmd.Flags()
	p := base
	if f.Changed("lots") {
		p.Lots, _ = f.GetInt("lots")
	}
	setFloat(f, "rate", &p.RiskFreeRate)
	setFloat(f, "brokerage", &p.BrokeragePerOrder)
	setFloat(f, "margin", &p.MarginPct)
	setFloat(f, "threshold", &p.ThresholdFraction)
	setFloat(f, "vol", &p.Volatility)
	setFloat(f, "carry-rate", &p.CarryRate)
	setFloat(f, "foreign-rate", &p.ForeignRate)
	setFloat(f, "notional", &p.Notional)
	setFloat(f, "z", &p.ZThreshold)
	setFloat(f, "holding-days", &p.HoldingDays)
	if f.Changed("lookback") {
		p.LookbackDays, _ = f.GetInt("lookback")
	}
	return p
}

func setFloat(f *pflag.FlagSet, name string, dst *float64) {
	if f.Lookup(name) != nil && f.Changed(name) {
		*dst, _ = f.GetFloat64(name)
	}
}

// addOverrideFlags registers manual quote overrides for one asset.
func addOverrideFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Float64("strike", 0, "strike price (default: ATM)")
	f.Float64("call", 0, "call premium override")
	f.Float64("put", 0, "put premium override")
	f.Float64("futures", 0, "futures or forward price override")
	f.String("expiry", "", "expiry date override (YYYY-MM-DD)")
}

// overrideFromFlags reads the manual overrides. Zero values mean "use the
// snapshot".
func overrideFromFlags(cmd *cobra.Command) (scanner.Override, error) {
	f := cmd.Flags()
	var ov scanner.Override
	ov.Strike, _ = f.GetFloat64("strike")
	ov.CallPremium, _ = f.GetFloat64("call")
	ov.PutPremium, _ = f.GetFloat64("put")
	ov.FuturesPrice, _ = f.GetFloat64("futures")
	for name, v := range map[string]float64{"strike": ov.Strike, "call": ov.CallPremium, "put": ov.PutPremium, "futures": ov.FuturesPrice} {
		if v < 0 {
			return ov, fmt.Errorf("--%s must be non-negative", name)
		}
	}
	if s, _ := f.GetString("expiry"); s != "" {
		t, err := time.ParseInLocation("2006-01-02", s, utils.IndiaLocation)
		if err != nil {
			return ov, fmt.Errorf("invalid --expiry %q: %w", s, err)
		}
		ov.Expiry = t
	}
	return ov, nil
}
