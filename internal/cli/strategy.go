package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"arb-monitor/internal/arbitrage"
	"arb-monitor/internal/models"
	"arb-monitor/internal/pricing"
	"arb-monitor/pkg/utils"
)

// addStrategyCommands adds one command per valuation model plus greeks.
func addStrategyCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newPCPCmd(app))
	rootCmd.AddCommand(newCarryCmd(app))
	rootCmd.AddCommand(newIRPCmd(app))
	rootCmd.AddCommand(newPairsCmd(app))
	rootCmd.AddCommand(newGreeksCmd(app))
}

// opportunityLines renders the common opportunity fields for a Box.
func opportunityLines(output *Output, o models.ArbitrageOpportunity) []string {
	lines := []string{
		fmt.Sprintf("Signal:       %s", output.Signal(o.Signal)),
		fmt.Sprintf("Action:       %s", o.Action),
		fmt.Sprintf("Gap:          %s (threshold %s)", FormatPrice(o.Gap), FormatPrice(o.Threshold)),
		fmt.Sprintf("Deviation:    %s", formatDeviation(o)),
		fmt.Sprintf("Gross P&L:    %s", FormatIndianCurrency(o.GrossPnL)),
		fmt.Sprintf("Friction:     %s", FormatIndianCurrency(o.Friction)),
		fmt.Sprintf("Net P&L:      %s", output.FormatPnL(o.NetPnL)),
		fmt.Sprintf("Capital:      %s", FormatCompact(o.Capital)),
		fmt.Sprintf("Ann. return:  %s", FormatReturn(o.AnnualizedReturn)),
		fmt.Sprintf("Source:       %s", output.ProvenanceTag(o.Provenance)),
	}
	if !o.Expiry.IsZero() {
		lines = append(lines, fmt.Sprintf("Expiry:       %s", FormatDate(o.Expiry)))
	}
	if o.Estimated {
		lines = append(lines, output.Yellow("Inputs include model estimates"))
	}
	if o.Probabilistic {
		lines = append(lines, output.Yellow("Statistical estimate, profit is not locked in"))
	}
	return lines
}

func renderDiagnostic(output *Output, o models.ArbitrageOpportunity) {
	if o.Diagnostic == "" {
		return
	}
	for _, d := range strings.Split(o.Diagnostic, "; ") {
		output.Warning("  ! %s", d)
	}
}

func renderScenarios(output *Output, rows []arbitrage.ScenarioRow, withOptions bool) {
	output.Bold("Scenarios at expiry")
	headers := []string{"Price", "Spot Leg"}
	if withOptions {
		headers = append(headers, "Put Leg", "Call Leg")
	} else {
		headers = append(headers, "Futures Leg")
	}
	headers = append(headers, "Legs Total", "Net P&L")
	table := NewTable(output, headers...)
	for _, r := range rows {
		cells := []string{FormatPrice(r.PriceAtExpiry), FormatIndianCurrency(r.SpotLeg)}
		if withOptions {
			cells = append(cells, FormatIndianCurrency(r.PutLeg), FormatIndianCurrency(r.CallLeg))
		} else {
			cells = append(cells, FormatIndianCurrency(r.FuturesLeg))
		}
		cells = append(cells, FormatIndianCurrency(r.LegTotal), output.FormatPnL(r.NetPnL))
		table.AddRow(cells...)
	}
	table.Render()
	output.Dim("Net P&L is fixed at entry; the legs offset whatever the expiry price.")
}

func newPCPCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pcp <asset>",
		Short: "Value put-call parity for an asset",
		Long: `Compare spot with the synthetic spot C − P + K·e^(−rT). A rich spot is
a conversion, a cheap spot a reversal. Missing premiums are estimated and
the result is flagged.`,
		Example: `  arbmon pcp NIFTY
  arbmon pcp RELIANCE --strike 1400 --call 42.5 --put 31 --expiry 2026-03-31`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			asset, err := app.asset(args[0])
			if err != nil {
				return err
			}
			ov, err := overrideFromFlags(cmd)
			if err != nil {
				return err
			}
			params := paramsFromFlags(cmd, app.Config.ScanParams())

			snap := app.Market.Fetch(cmd.Context(), asset)
			in, err := app.Scanner.BuildPCP(asset, snap, params, ov, app.now())
			if err != nil {
				return fmt.Errorf("%s: %w", asset.Key(), err)
			}
			fm := app.Scanner.Friction(models.StrategyPutCallParity)
			res, err := arbitrage.ValuePCP(in, fm)
			if err != nil {
				return err
			}
			p := in.Params
			costs := fm.Breakdown(res.Units, in.Spot, p.CallPremium, p.PutPremium, p.BrokeragePerOrder, fm.Legs())
			rows := arbitrage.PCPScenarios(res.Opportunity, p, in.Spot, res.Units, arbitrage.ScenarioPrices(in.Spot))

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"result":    res,
					"input":     p,
					"spot":      in.Spot,
					"friction":  costs,
					"scenarios": rows,
				})
			}

			output.Box(fmt.Sprintf("Put-Call Parity - %s", asset.Key()), append([]string{
				fmt.Sprintf("Spot:         %s", FormatPrice(in.Spot)),
				fmt.Sprintf("Strike:       %s  (PV %s)", FormatPrice(p.Strike), FormatPrice(res.PVStrike)),
				fmt.Sprintf("Call / Put:   %s / %s", FormatPrice(p.CallPremium), FormatPrice(p.PutPremium)),
				fmt.Sprintf("Synthetic:    %s", FormatPrice(res.Synthetic)),
				fmt.Sprintf("Units:        %.0f (%d lots)", res.Units, p.Lots),
			}, opportunityLines(output, res.Opportunity)...))
			output.Dim("  Friction: brokerage %s (%d legs) + STT on spot %s + STT on premium %s",
				FormatIndianCurrency(costs.Brokerage), fm.Legs(), FormatIndianCurrency(costs.EquityTax), FormatIndianCurrency(costs.OptionsTax))
			renderDiagnostic(output, res.Opportunity)

			if res.Greeks != nil {
				output.Println()
				output.Bold("Greeks (σ %s)", FormatIV(in.Volatility))
				output.Printf("  Call:      %s\n", FormatGreeks(res.Greeks.Call))
				output.Printf("  Put:       %s\n", FormatGreeks(res.Greeks.Put))
				output.Printf("  Position:  %s\n", FormatGreeks(res.Greeks.Combined))
			}

			output.Println()
			renderScenarios(output, rows, true)
			return nil
		},
	}

	addParamFlags(cmd)
	addOverrideFlags(cmd)
	return cmd
}

func newCarryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "carry <asset>",
		Short: "Value the futures basis against cost of carry",
		Long: `Compare the near futures with its fair value S·e^((r+d)T). A rich
futures is cash and carry, a cheap one reverse cash and carry. Shows how
the fair value decays towards spot as expiry approaches.`,
		Example: `  arbmon carry NIFTY
  arbmon carry SBIN --futures 812.4 --expiry 2026-03-31`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			asset, err := app.asset(args[0])
			if err != nil {
				return err
			}
			ov, err := overrideFromFlags(cmd)
			if err != nil {
				return err
			}
			params := paramsFromFlags(cmd, app.Config.ScanParams())

			snap := app.Market.Fetch(cmd.Context(), asset)
			in, err := app.Scanner.BuildCarry(asset, snap, params, ov, app.now())
			if err != nil {
				return fmt.Errorf("%s: %w", asset.Key(), err)
			}
			res, err := arbitrage.ValueCarry(in, app.Scanner.Friction(models.StrategyCostOfCarry))
			if err != nil {
				return err
			}
			rows := arbitrage.CarryScenarios(res.Opportunity, in.Spot, in.Futures, in.Units, arbitrage.ScenarioPrices(in.Spot))

			if step, _ := cmd.Flags().GetInt("step"); step > 0 {
				res.Curve = arbitrage.DecayCurve(in.Spot, in.Rate, in.CarryRate, in.Futures, int(in.DaysToExpiry), step)
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"result":    res,
					"spot":      in.Spot,
					"futures":   in.Futures,
					"scenarios": rows,
				})
			}

			output.Box(fmt.Sprintf("Cost of Carry - %s", asset.Key()), append([]string{
				fmt.Sprintf("Spot:         %s", FormatPrice(in.Spot)),
				fmt.Sprintf("Futures:      %s", FormatPrice(in.Futures)),
				fmt.Sprintf("Fair value:   %s", FormatPrice(res.FairFutures)),
				fmt.Sprintf("Basis:        %s", FormatPrice(res.Basis)),
				fmt.Sprintf("Days left:    %.0f", in.DaysToExpiry),
			}, opportunityLines(output, res.Opportunity)...))
			renderDiagnostic(output, res.Opportunity)

			output.Println()
			output.Bold("Basis decay")
			table := NewTable(output, "Days Left", "Fair Value", "vs Market")
			for _, pt := range res.Curve {
				table.AddRow(itoa(pt.DaysLeft), FormatPrice(pt.Fair), FormatPrice(pt.Distance))
			}
			table.Render()

			output.Println()
			renderScenarios(output, rows, false)
			return nil
		},
	}

	cmd.Flags().Int("step", 0, "days between decay curve rows (default: about a month of rows)")
	addParamFlags(cmd)
	addOverrideFlags(cmd)
	return cmd
}

func newIRPCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "irp [asset]",
		Short: "Value covered interest rate parity for a currency pair",
		Long: `Compare the market forward with S·e^((r_d − r_f)T). A rich forward is
borrowed domestic, converted and sold forward; a cheap one is the reverse.`,
		Example: `  arbmon irp
  arbmon irp USDINR --futures 88.62 --foreign-rate 0.043`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			symbol := "USDINR"
			if len(args) == 1 {
				symbol = args[0]
			} else if ccy := app.Registry.ByKind(models.AssetCurrency); len(ccy) > 0 {
				symbol = ccy[0]
			}
			asset, err := app.asset(symbol)
			if err != nil {
				return err
			}
			ov, err := overrideFromFlags(cmd)
			if err != nil {
				return err
			}
			params := paramsFromFlags(cmd, app.Config.ScanParams())

			snap := app.Market.Fetch(cmd.Context(), asset)
			in, err := app.Scanner.BuildIRP(asset, snap, params, ov, app.now())
			if err != nil {
				return fmt.Errorf("%s: %w", asset.Key(), err)
			}
			res, err := arbitrage.ValueIRP(in, app.Scanner.Friction(models.StrategyInterestRateParity))
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(res)
			}

			output.Box(fmt.Sprintf("Interest Rate Parity - %s", asset.Key()), append([]string{
				fmt.Sprintf("Spot:         %s", FormatPrice(in.Spot)),
				fmt.Sprintf("Forward:      %s", FormatPrice(in.Forward)),
				fmt.Sprintf("Theoretical:  %s", FormatPrice(res.Theoretical)),
				fmt.Sprintf("Rates:        %.2f%% domestic, %.2f%% foreign", in.DomesticRate*100, in.ForeignRate*100),
				fmt.Sprintf("Maturity:     %s (%.3f years)", FormatDate(in.Maturity), res.Years),
				fmt.Sprintf("Notional:     %s foreign units", FormatVolume(int64(in.Notional))),
			}, opportunityLines(output, res.Opportunity)...))
			renderDiagnostic(output, res.Opportunity)
			return nil
		},
	}

	addParamFlags(cmd)
	addOverrideFlags(cmd)
	return cmd
}

func newPairsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pairs [asset-a asset-b]",
		Short: "Value the statistical spread between two assets",
		Long: `Fit A = α + β·B over recent daily closes and score today's spread
by its z-score. This is a probabilistic signal, not a locked arbitrage.
Without arguments every configured pair is valued.`,
		Example: `  arbmon pairs
  arbmon pairs TCS INFY --lookback 90 --z 1.5`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("expected no arguments or two assets, got %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			params := paramsFromFlags(cmd, app.Config.ScanParams())

			pairs := [][2]string{}
			if len(args) == 2 {
				pairs = append(pairs, [2]string{args[0], args[1]})
			} else {
				for _, p := range app.Config.Pairs {
					pairs = append(pairs, [2]string{p.A, p.B})
				}
			}
			if len(pairs) == 0 {
				output.Info("No pairs configured. Add [[pairs]] to config.toml or pass two assets.")
				return nil
			}

			var results []*arbitrage.SpreadResult
			for _, p := range pairs {
				a, err := app.asset(p[0])
				if err != nil {
					return err
				}
				b, err := app.asset(p[1])
				if err != nil {
					return err
				}
				ctx := cmd.Context()
				in := app.Scanner.BuildSpread(ctx, a, b, app.Market.Fetch(ctx, a), app.Market.Fetch(ctx, b), params)
				res, err := arbitrage.ValueSpread(in, app.Scanner.Friction(models.StrategyStatisticalSpread))
				if err != nil {
					return fmt.Errorf("%s/%s: %w", a.Key(), b.Key(), err)
				}
				results = append(results, res)
			}

			if output.IsJSON() {
				return output.JSON(results)
			}

			for i, res := range results {
				if i > 0 {
					output.Println()
				}
				st := res.Stats
				output.Box(fmt.Sprintf("Statistical Spread - %s", res.Opportunity.Asset), append([]string{
					fmt.Sprintf("Hedge ratio:  %.4f", st.Beta),
					fmt.Sprintf("Spread:       %s (mean %s, σ %s)", FormatPrice(st.Current), FormatPrice(st.Mean), FormatPrice(st.StdDev)),
					fmt.Sprintf("Z-score:      %.2f", st.Z),
					fmt.Sprintf("History:      %d observations", st.Observations),
				}, opportunityLines(output, res.Opportunity)...))
				renderDiagnostic(output, res.Opportunity)
			}
			return nil
		},
	}

	addParamFlags(cmd)
	return cmd
}

func newGreeksCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "greeks <asset>",
		Short: "Show Black-Scholes Greeks for the ATM option pair",
		Long: `Compute Greeks for the call and put at a strike. Volatility comes from
--vol, else it is implied from the live option pair. With --signal the
combined Greeks of a conversion or reversal are shown.`,
		Example: `  arbmon greeks NIFTY
  arbmon greeks NIFTY --strike 25200 --vol 0.14 --signal conversion`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			asset, err := app.asset(args[0])
			if err != nil {
				return err
			}
			ov, err := overrideFromFlags(cmd)
			if err != nil {
				return err
			}
			params := paramsFromFlags(cmd, app.Config.ScanParams())

			snap := app.Market.Fetch(cmd.Context(), asset)
			in, err := app.Scanner.BuildPCP(asset, snap, params, ov, app.now())
			if err != nil {
				return fmt.Errorf("%s: %w", asset.Key(), err)
			}
			if in.Volatility <= 0 {
				return fmt.Errorf("%s: no live option pair to imply volatility from, pass --vol", asset.Key())
			}

			signal := models.SignalConversion
			if s, _ := cmd.Flags().GetString("signal"); s != "" {
				signal = models.SignalType(strings.ToLower(s))
				if signal != models.SignalConversion && signal != models.SignalReversal {
					return fmt.Errorf("--signal must be conversion or reversal")
				}
			}

			p := in.Params
			units := asset.Units(p.Lots)
			legs := pricing.PositionGreeks(signal, in.Spot, p.Strike, p.RiskFreeRate, p.TimeToExpiry, in.Volatility, units)

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"asset":      asset.Key(),
					"spot":       in.Spot,
					"strike":     p.Strike,
					"years":      p.TimeToExpiry,
					"volatility": in.Volatility,
					"signal":     signal,
					"greeks":     legs,
				})
			}

			output.Bold("Greeks - %s %s", asset.Key(), output.ProvenanceTag(snap.Provenance))
			output.Printf("  Spot %s  Strike %s  σ %s  T %.1f days  r %.2f%%\n",
				FormatPrice(in.Spot), FormatPrice(p.Strike), FormatIV(in.Volatility), p.TimeToExpiry*365, p.RiskFreeRate*100)
			output.Dim("  Theta per calendar day, vega and rho per 1%% move")
			output.Println()
			output.Printf("  Call:       %s\n", FormatGreeks(legs.Call))
			output.Printf("  Put:        %s\n", FormatGreeks(legs.Put))
			output.Printf("  %-11s %s\n", string(signal)+":", FormatGreeks(legs.Combined))
			output.Dim("  Position of %.0f units (%d lots); expiry %s", units, p.Lots, FormatDate(in.Meta.Expiry))
			if in.Meta.Expiry.IsZero() || utils.YearsUntil(app.now(), in.Meta.Expiry) == 0 {
				output.Warning("  Expiry unknown or past, time to expiry uses the configured default")
			}
			return nil
		},
	}

	cmd.Flags().String("signal", "", "position to combine: conversion or reversal (default conversion)")
	addParamFlags(cmd)
	addOverrideFlags(cmd)
	return cmd
}
