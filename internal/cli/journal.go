package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"arb-monitor/internal/store"
)

// addJournalCommands adds journal commands.
func addJournalCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Review past scans",
		Long:  "List recorded scans and the opportunities each one reported.",
	}

	cmd.AddCommand(newJournalListCmd(app))
	cmd.AddCommand(newJournalShowCmd(app))

	rootCmd.AddCommand(cmd)
}

func newJournalListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent scans",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if app.Store == nil {
				output.Warning("Store not initialized. No journal available.")
				return nil
			}

			since, _ := cmd.Flags().GetDuration("since")
			limit, _ := cmd.Flags().GetInt("limit")
			filter := store.ScanFilter{Limit: limit}
			if since > 0 {
				filter.Since = app.now().Add(-since)
			}

			scans, err := app.Store.ListScans(ctx, filter)
			if err != nil {
				output.Error("Failed to fetch scans: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(scans)
			}

			if len(scans) == 0 {
				output.Info("No scans recorded.")
				output.Println()
				output.Dim("Tip: scans are recorded each time you run 'arbmon scan'.")
				return nil
			}

			output.Bold("Scan Journal")
			table := NewTable(output, "Finished", "ID", "Assets", "Strategies", "Evaluated", "Reported", "Failed", "Best")
			for _, s := range scans {
				best := "-"
				if s.BestSummary != "" {
					best = fmt.Sprintf("%s %s", s.BestSummary, output.FormatPnL(s.BestNetPnL))
				}
				table.AddRow(
					FormatDateTime(s.FinishedAt),
					s.ID[:min(8, len(s.ID))],
					TruncateString(strings.Join(s.Assets, ","), 30),
					itoa(len(s.Strategies)),
					itoa(s.Evaluated),
					itoa(s.Reported),
					itoa(s.Failed),
					best,
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().Duration("since", 0, "only scans started within this window (e.g. 24h)")
	cmd.Flags().Int("limit", 20, "maximum number of scans")
	return cmd
}

func newJournalShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <scan-id>",
		Short: "Show the opportunities of one scan",
		Long:  "Show the opportunities of one scan. A unique ID prefix from 'journal list' is accepted.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if app.Store == nil {
				output.Warning("Store not initialized. No journal available.")
				return nil
			}

			id, err := resolveScanID(ctx, app.Store, args[0])
			if err != nil {
				return err
			}
			opps, err := app.Store.GetScanOpportunities(ctx, id)
			if err != nil {
				output.Error("Failed to fetch opportunities: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(opps)
			}

			output.Bold("Scan %s", id)
			if len(opps) == 0 {
				output.Info("The scan reported no opportunities.")
				return nil
			}
			table := NewTable(output, "Asset", "Strategy", "Signal", "Net P&L", "Deviation", "Flags", "Action")
			for _, o := range opps {
				table.AddRow(o.Asset, string(o.Strategy), output.Signal(o.Signal), output.FormatPnL(o.NetPnL), formatDeviation(o), FormatFlags(o), TruncateString(o.Action, 48))
			}
			table.Render()
			return nil
		},
	}
}

// resolveScanID expands a unique prefix of a recent scan ID.
func resolveScanID(ctx context.Context, j store.Journal, prefix string) (string, error) {
	scans, err := j.ListScans(ctx, store.ScanFilter{Limit: 500})
	if err != nil {
		return "", err
	}
	var matches []string
	for _, s := range scans {
		if s.ID == prefix {
			return s.ID, nil
		}
		if strings.HasPrefix(s.ID, prefix) {
			matches = append(matches, s.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no scan matches %q", prefix)
	case 1:
		return matches[0], nil
	}
	return "", fmt.Errorf("scan ID prefix %q is ambiguous (%d matches)", prefix, len(matches))
}
