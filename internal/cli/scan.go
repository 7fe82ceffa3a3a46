package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"arb-monitor/internal/models"
	"arb-monitor/internal/publish"
	"arb-monitor/internal/scanner"
)

// addScanCommands adds the scan and snapshot commands.
func addScanCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newScanCmd(app))
	rootCmd.AddCommand(newSnapshotCmd(app))
}

func newScanCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan assets for arbitrage opportunities",
		Long: `Run every requested strategy over every requested asset and rank the
results by net P&L. Snapshots are fetched once per asset and shared across
strategies. Completed scans are saved to the journal and, when enabled,
published to Redis.`,
		Example: `  arbmon scan
  arbmon scan --assets NIFTY,USDINR --strategies pcp,irp
  arbmon scan --min-profit 500 --interval 1m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			req, err := app.scanRequest(cmd)
			if err != nil {
				return err
			}

			interval, _ := cmd.Flags().GetDuration("interval")
			noSave, _ := cmd.Flags().GetBool("no-save")
			showMetrics, _ := cmd.Flags().GetBool("metrics")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			for {
				res := app.runScan(ctx, req, !noSave)
				if err := renderScan(output, res); err != nil {
					return err
				}
				if showMetrics {
					if err := renderMetrics(output, app); err != nil {
						return err
					}
				}
				if interval <= 0 {
					return nil
				}

				select {
				case <-ctx.Done():
					return nil
				case <-time.After(interval):
				}
			}
		},
	}

	cmd.Flags().StringSlice("assets", nil, "assets to scan (default: [scan].assets)")
	cmd.Flags().StringSlice("strategies", nil, "strategies: pcp, carry, irp, spread (default: [scan].strategies)")
	cmd.Flags().Float64("min-profit", 0, "minimum net P&L to report (default: [scan].min_profit)")
	cmd.Flags().Duration("interval", 0, "rescan every interval until interrupted")
	cmd.Flags().Bool("no-save", false, "do not record the scan in the journal")
	cmd.Flags().Bool("metrics", false, "print engine metrics after the scan")
	addParamFlags(cmd)

	return cmd
}

// scanRequest assembles a request from flags and config.
func (app *App) scanRequest(cmd *cobra.Command) (scanner.Request, error) {
	cfg := app.Config
	req := scanner.Request{
		Assets:    cfg.Scan.Assets,
		MinProfit: cfg.Scan.MinProfit,
		Params:    paramsFromFlags(cmd, cfg.ScanParams()),
	}
	if assets, _ := cmd.Flags().GetStringSlice("assets"); len(assets) > 0 {
		req.Assets = assets
	}
	if len(req.Assets) == 0 {
		req.Assets = app.Registry.Symbols()
	}

	names := cfg.Scan.Strategies
	if s, _ := cmd.Flags().GetStringSlice("strategies"); len(s) > 0 {
		names = s
	}
	for _, n := range names {
		st, err := models.ParseStrategy(n)
		if err != nil {
			return req, err
		}
		req.Strategies = append(req.Strategies, st)
	}

	if cmd.Flags().Changed("min-profit") {
		req.MinProfit, _ = cmd.Flags().GetFloat64("min-profit")
	}
	return req, nil
}

// runScan scans, then journals and publishes the result. Persistence
// failures are logged and never fail the scan.
func (app *App) runScan(ctx context.Context, req scanner.Request, save bool) *scanner.Result {
	res := app.Scanner.Scan(ctx, req)

	if save && app.Store != nil {
		if err := app.Store.SaveScan(ctx, res.Record(), res.Opportunities); err != nil {
			app.Logger.Warn().Err(err).Str("scan_id", res.ID).Msg("Failed to save scan")
		}
	}
	if app.Publisher != nil {
		report := publish.ScanReport{ID: res.ID, FinishedAt: res.FinishedAt, Opportunities: res.Opportunities}
		if err := app.Publisher.Publish(ctx, report); err != nil {
			app.Logger.Warn().Err(err).Str("scan_id", res.ID).Msg("Failed to publish scan")
		}
	}
	return res
}

func renderScan(output *Output, res *scanner.Result) error {
	if output.IsJSON() {
		return output.JSON(res)
	}

	output.Bold("Arbitrage Scan - %s", FormatDateTime(res.FinishedAt))
	output.Dim("Scan %s · %d assets · %s", res.ID, len(res.Assets), FormatDuration(res.FinishedAt.Sub(res.StartedAt)))
	output.Println()

	for _, key := range res.Assets {
		snap := res.Snapshots[key]
		if snap == nil {
			continue
		}
		output.Printf("  %-10s %s %s\n", key, output.ProvenanceTag(snap.Provenance), FormatPrice(snap.Spot))
		if snap.Diagnostic != "" {
			output.Printf("  %s\n", output.DimText("  "+snap.Diagnostic))
		}
	}
	output.Println()

	if len(res.Opportunities) == 0 {
		output.Info("No opportunities at or above %s net.", FormatIndianCurrency(res.MinProfit))
	} else {
		output.Bold("Opportunities")
		table := NewTable(output, "#", "Asset", "Strategy", "Signal", "Net P&L", "Gross", "Friction", "Deviation", "Ann. Return", "Flags")
		for i, o := range res.Opportunities {
			table.AddRow(
				fmt.Sprintf("%d", i+1),
				o.Asset,
				string(o.Strategy),
				output.Signal(o.Signal),
				output.FormatPnL(o.NetPnL),
				FormatIndianCurrency(o.GrossPnL),
				FormatIndianCurrency(o.Friction),
				formatDeviation(o),
				FormatReturn(o.AnnualizedReturn),
				FormatFlags(o),
			)
		}
		table.Render()

		if best, ok := res.Best(); ok && best.Profitable {
			output.Println()
			output.Success("Best: %s %s → %s", best.Asset, best.Strategy, best.Action)
		}
	}
	output.Println()

	table := NewTable(output, "Strategy", "Evaluated", "Signals", "Profitable", "Reported", "Skipped", "Failed")
	for _, st := range res.SortedStrategies() {
		c := res.Counts[st]
		table.AddRow(string(st), itoa(c.Evaluated), itoa(c.Signals), itoa(c.Profitable), itoa(c.Reported), itoa(c.Skipped), itoa(c.Failed))
	}
	table.Render()

	if len(res.Errors) > 0 {
		output.Println()
		output.Warning("%d evaluation(s) failed:", len(res.Errors))
		for _, e := range res.Errors {
			output.Printf("  %s\n", e.Error())
		}
	}
	return nil
}

func renderMetrics(output *Output, app *App) error {
	samples, err := app.Metrics.Snapshot()
	if err != nil {
		return err
	}
	if output.IsJSON() {
		return output.JSON(samples)
	}
	output.Println()
	output.Bold("Metrics")
	for _, s := range samples {
		var labels []string
		for k, v := range s.Labels {
			labels = append(labels, k+"="+v)
		}
		output.Printf("  %-40s %-40s %g\n", s.Name, strings.Join(labels, ","), s.Value)
	}
	return nil
}

// formatDeviation shows the spread model's |z| and every other model's
// relative mispricing.
func formatDeviation(o models.ArbitrageOpportunity) string {
	if o.Strategy == models.StrategyStatisticalSpread {
		return fmt.Sprintf("z %.2f", o.Deviation)
	}
	return fmt.Sprintf("%.3f%%", o.Deviation*100)
}

func itoa(n int) string {
	return fmt.Sprintf("%d", n)
}

func newSnapshotCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot <asset>",
		Short: "Show the market snapshot for an asset",
		Long: `Fetch the spot price, option chain and near futures for an asset through
the source chain. The snapshot shows which source supplied it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			asset, err := app.asset(args[0])
			if err != nil {
				return err
			}

			var snap *models.MarketSnapshot
			if refresh, _ := cmd.Flags().GetBool("refresh"); refresh {
				snap = app.Market.Refresh(cmd.Context(), asset)
			} else {
				snap = app.Market.Fetch(cmd.Context(), asset)
			}
			if output.IsJSON() {
				return output.JSON(snap)
			}

			depth, _ := cmd.Flags().GetInt("depth")
			renderSnapshot(output, asset, snap, depth)
			return nil
		},
	}

	cmd.Flags().Bool("refresh", false, "bypass the snapshot cache")
	cmd.Flags().Int("depth", 5, "strikes to show on each side of ATM")
	return cmd
}

func renderSnapshot(output *Output, asset models.AssetSpec, snap *models.MarketSnapshot, depth int) {
	output.Bold("%s %s", asset.Key(), output.ProvenanceTag(snap.Provenance))
	output.Printf("  Spot:     %s\n", FormatPrice(snap.Spot))
	output.Printf("  Fetched:  %s\n", FormatDateTime(snap.FetchedAt))
	if !snap.Expiry.IsZero() {
		output.Printf("  Expiry:   %s\n", FormatDate(snap.Expiry))
	}
	if snap.Futures.IsLive() {
		output.Printf("  Futures:  %s %s (exp %s, OI %s)\n", snap.Futures.Symbol, FormatPrice(snap.Futures.Price), FormatDate(snap.Futures.Expiry), FormatVolume(snap.Futures.OpenInterest))
	}
	if snap.Diagnostic != "" {
		output.Warning("  %s", snap.Diagnostic)
	}

	if len(snap.Calls) == 0 && len(snap.Puts) == 0 || asset.StrikeStep <= 0 {
		return
	}
	output.Println()
	atm := asset.ATMStrike(snap.Spot)
	step := asset.StrikeStep
	table := NewTable(output, "Call OI", "Call Vol", "Call", "Strike", "Put", "Put Vol", "Put OI")
	for i := -depth; i <= depth; i++ {
		k := atm + float64(i)*step
		c, okC := snap.Calls.Nearest(k, step/2)
		p, okP := snap.Puts.Nearest(k, step/2)
		if !okC && !okP {
			continue
		}
		strike := FormatPrice(k)
		if i == 0 {
			strike = output.BoldText(strike)
		}
		table.AddRow(quoteCells(output, c, okC, strike, p, okP)...)
	}
	table.Render()
}

func quoteCells(output *Output, c models.OptionQuote, okC bool, strike string, p models.OptionQuote, okP bool) []string {
	cell := func(q models.OptionQuote, ok bool) (oi, vol, price string) {
		if !ok {
			return "-", "-", "-"
		}
		price = FormatPrice(q.LastPrice)
		if !q.IsLive() {
			price = output.DimText(price)
		}
		return FormatVolume(q.OpenInterest), FormatVolume(q.Volume), price
	}
	cOI, cVol, cPrice := cell(c, okC)
	pOI, pVol, pPrice := cell(p, okP)
	return []string{cOI, cVol, cPrice, strike, pPrice, pVol, pOI}
}
