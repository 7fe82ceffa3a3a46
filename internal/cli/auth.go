package cli

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
)

// addAuthCommands adds Kite Connect session commands.
func addAuthCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the Kite Connect session",
		Long: `Kite Connect is the primary market data source. Its access token is
valid for one trading day; log in each morning to keep live chains.`,
	}
	cmd.AddCommand(newLoginCmd(app))
	cmd.AddCommand(newAuthStatusCmd(app))
	rootCmd.AddCommand(cmd)
}

func newLoginCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to Kite Connect",
		Long: `Open the Kite login page, then exchange the request_token from the
redirect URL for a session. The session is saved next to the config.`,
		Example: `  arbmon auth login
  arbmon auth login --token=<request_token>`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			if app.Kite == nil {
				output.Error("Kite not configured. Set api_key and api_secret in credentials.toml")
				return fmt.Errorf("kite not configured")
			}
			if app.Kite.Authenticated() {
				output.Success("✓ Already logged in for today")
				return nil
			}

			token, _ := cmd.Flags().GetString("token")
			if token == "" {
				loginURL := app.Kite.LoginURL()
				output.Info("Opening Kite login page...")
				output.Println()
				output.Bold("Login URL:")
				output.Println(loginURL)
				output.Println()

				if err := openURL(loginURL); err != nil {
					output.Warning("Could not open browser automatically")
				}

				output.Info("After logging in, you'll be redirected to a URL like:")
				output.Dim("  https://your-redirect-url.com/?request_token=XXXXXX&status=success")
				output.Println()
				output.Bold("Paste the request_token value here:")

				reader := bufio.NewReader(cmd.InOrStdin())
				output.Printf("> ")
				input, _ := reader.ReadString('\n')
				token = strings.TrimSpace(input)
			}

			if token == "" {
				output.Error("No token provided")
				return fmt.Errorf("no token provided")
			}

			output.Info("Completing login with token...")
			if err := app.Kite.CompleteLogin(token); err != nil {
				output.Error("Login failed: %v", err)
				return err
			}
			app.Market.Invalidate("")
			output.Success("✓ Login successful! Session valid until 06:00 IST tomorrow.")
			return nil
		},
	}

	cmd.Flags().String("token", "", "request token from the redirect URL")
	return cmd
}

func newAuthStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session and source health",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			authenticated := app.Kite != nil && app.Kite.Authenticated()
			breakers := app.Market.Breakers()

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"kite_configured":    app.Kite != nil,
					"kite_authenticated": authenticated,
					"sources":            app.Config.Data.Sources,
					"breakers":           breakers,
				})
			}

			output.Bold("Market Data Sources")
			switch {
			case app.Kite == nil:
				output.Printf("  Kite:   %s\n", output.DimText("not configured"))
			case authenticated:
				output.Printf("  Kite:   %s\n", output.Green("authenticated"))
			default:
				output.Printf("  Kite:   %s\n", output.Yellow("session expired, run 'arbmon auth login'"))
			}
			output.Printf("  Order:  %s\n", strings.Join(app.Config.Data.Sources, " → "))

			if len(breakers) > 0 {
				output.Println()
				table := NewTable(output, "Source", "State", "Calls", "Failures", "Rejected")
				for _, b := range breakers {
					table.AddRow(b.Name, string(b.State), fmt.Sprintf("%d", b.TotalCalls), fmt.Sprintf("%d", b.TotalFailures), fmt.Sprintf("%d", b.TotalRejected))
				}
				table.Render()
			}
			return nil
		},
	}
}

// openURL opens a URL in the default browser.
func openURL(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform")
	}
	cmd.Stderr = os.Stderr
	return cmd.Start()
}
