package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"arb-monitor/internal/config"
	"arb-monitor/internal/logging"
	"arb-monitor/internal/marketdata"
	"arb-monitor/internal/metrics"
	"arb-monitor/internal/models"
	"arb-monitor/internal/publish"
	"arb-monitor/internal/resilience"
	"arb-monitor/internal/scanner"
	"arb-monitor/internal/store"
)

// Version information
const (
	Version   = "0.3.0"
	BuildDate = "2026-03-16"
)

// skipSetup marks commands that run without loading config or data sources.
const skipSetup = "skip-setup"

// App holds the application dependencies.
type App struct {
	Config    *config.Config
	ConfigDir string
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
	Registry  *models.AssetRegistry
	Kite      *marketdata.KiteSource
	Market    *marketdata.Service
	History   *marketdata.HistoryService
	Store     *store.SQLiteStore
	Scanner   *scanner.Scanner
	Publisher *publish.Publisher

	now func() time.Time
}

// Execute builds and runs the root command.
func Execute() error {
	return NewRootCmd(&App{}).Execute()
}

// NewRootCmd creates the root command for the CLI. Dependencies already set
// on app are kept; the rest are built from config before each command runs.
func NewRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "arbmon",
		Short: "Cross-asset arbitrage monitor for Indian markets",
		Long: `arbmon values live market data against four no-arbitrage relations:
put-call parity, cost of carry, covered interest rate parity and a
statistical pairs spread. Every opportunity is reported net of friction.

Use 'arbmon scan' for a full sweep, or one of the per-strategy commands
to inspect a single asset with scenario tables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipSetup] == "true" {
				return nil
			}
			return app.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.Close()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/arb-monitor)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	addAuthCommands(rootCmd, app)
	addScanCommands(rootCmd, app)
	addStrategyCommands(rootCmd, app)
	addJournalCommands(rootCmd, app)

	return rootCmd
}

// setup loads config and wires the engine. Fields set by the caller win.
func (app *App) setup(cmd *cobra.Command) error {
	if app.now == nil {
		app.now = time.Now
	}
	if app.Config == nil {
		dir, _ := cmd.Flags().GetString("config")
		if dir == "" {
			dir = config.DefaultConfigDir()
		}
		cfg, err := config.Load(dir)
		if err != nil {
			return err
		}
		app.Config, app.ConfigDir = cfg, dir

		logCfg := cfg.LogConfig()
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			logCfg.Level = "debug"
		}
		app.Logger = logging.NewLoggerWithConfig(logCfg)
	}
	cfg := app.Config

	if app.Metrics == nil {
		app.Metrics = metrics.New()
	}
	if app.Registry == nil {
		app.Registry = cfg.Registry()
	}

	if app.Store == nil && cfg.Store.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0755); err != nil {
			app.Logger.Warn().Err(err).Msg("Failed to create store directory")
		} else if s, err := store.NewSQLiteStore(cfg.Store.Path); err != nil {
			app.Logger.Warn().Err(err).Msg("Failed to initialize store, journal and history cache unavailable")
		} else {
			app.Store = s
			app.Logger.Debug().Str("path", cfg.Store.Path).Msg("SQLite store initialized")
		}
	}

	if app.Market == nil {
		sources, history := app.buildSources()
		breakers := resilience.NewRegistry(cfg.Data.Breaker)
		app.Market = marketdata.NewService(cfg.MarketData(), sources, breakers, app.Metrics, app.Logger)

		var candles store.CandleStore
		if app.Store != nil {
			candles = app.Store
		}
		app.History = marketdata.NewHistoryService(candles, history, cfg.Data.HistoryFreshness, app.Logger)
	}

	if app.Scanner == nil {
		var history scanner.HistoryFetcher
		if app.History != nil {
			history = app.History
		}
		app.Scanner = scanner.New(app.Registry, app.Market, history, cfg.ScannerConfig(), app.Metrics, app.Logger)
	}

	if app.Publisher == nil && cfg.Publish.Enabled {
		ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
		defer cancel()
		p, err := publish.NewPublisher(ctx, cfg.Publish.RedisURL, cfg.Publish.TTL, app.Logger)
		if err != nil {
			app.Logger.Warn().Err(err).Msg("Redis unavailable, scan reports will not be published")
		} else {
			app.Publisher = p
		}
	}
	return nil
}

// buildSources creates the live sources in configured priority order.
func (app *App) buildSources() ([]marketdata.Source, []marketdata.HistorySource) {
	cfg := app.Config
	var sources []marketdata.Source
	var history []marketdata.HistorySource
	for _, name := range cfg.Data.Sources {
		switch name {
		case "kite":
			if cfg.Credentials.Kite.APIKey == "" {
				app.Logger.Debug().Msg("Kite API key not configured, skipping primary source")
				continue
			}
			app.Kite = marketdata.NewKiteSource(cfg.Kite(app.ConfigDir))
			if !app.Kite.Authenticated() {
				app.Logger.Warn().Msg("Kite session missing or expired, run 'arbmon auth login'")
				continue
			}
			sources = append(sources, app.Kite)
			history = append(history, app.Kite)
		case "yahoo":
			y := marketdata.NewYahooSource(cfg.Yahoo())
			sources = append(sources, y)
			history = append(history, y)
		}
	}
	return sources, history
}

// Close releases the store and publisher.
func (app *App) Close() {
	if app.Store != nil {
		if err := app.Store.Close(); err != nil {
			app.Logger.Warn().Err(err).Msg("Failed to close store")
		}
		app.Store = nil
	}
	if app.Publisher != nil {
		app.Publisher.Close()
		app.Publisher = nil
	}
}

// asset resolves a symbol against the registry.
func (app *App) asset(symbol string) (models.AssetSpec, error) {
	a, ok := app.Registry.Get(symbol)
	if !ok {
		return models.AssetSpec{}, fmt.Errorf("unknown asset %q (configured: %v)", symbol, app.Registry.Symbols())
	}
	return a, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{skipSetup: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("arbmon v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			return showConfig(output, app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "path",
		Short:       "Show configuration directory path",
		Annotations: map[string]string{skipSetup: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			dir, _ := cmd.Flags().GetString("config")
			if dir == "" {
				dir = config.DefaultConfigDir()
			}
			if output.IsJSON() {
				output.JSON(map[string]string{"path": dir})
			} else {
				output.Println(dir)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("✓ Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) error {
	output.Bold("Engine")
	output.Printf("  Expiry weekday:  %s\n", cfg.Engine.ExpiryWeekday)
	output.Printf("  Concurrency:     %d\n", cfg.Engine.Concurrency)
	output.Println()

	output.Bold("Market Data")
	output.Printf("  Sources:         %v\n", cfg.Data.Sources)
	output.Printf("  Cache TTL:       %s (fallback %s)\n", cfg.Data.CacheTTL, cfg.Data.FallbackTTL)
	output.Printf("  Fetch timeout:   %s\n", cfg.Data.FetchTimeout)
	output.Printf("  Kite API key:    %v\n", cfg.Credentials.Kite.APIKey != "")
	output.Println()

	d := cfg.Defaults
	output.Bold("Valuation Defaults")
	output.Printf("  Lots:            %d\n", d.Lots)
	output.Printf("  Risk-free rate:  %.2f%%\n", d.RiskFreeRate*100)
	output.Printf("  Brokerage:       %s per order\n", FormatIndianCurrency(d.BrokeragePerOrder))
	output.Printf("  Margin:          %.1f%%\n", d.MarginPct*100)
	output.Printf("  Threshold:       %.3f%% of spot\n", d.ThresholdFraction*100)
	output.Println()

	output.Bold("Assets")
	table := NewTable(output, "Symbol", "Kind", "Lot", "Step", "Yahoo", "Kite")
	for _, a := range cfg.Assets {
		table.AddRow(a.Symbol, string(a.Kind), fmt.Sprintf("%d", a.LotSize), FormatPrice(a.StrikeStep), a.YahooTicker, a.KiteSymbol)
	}
	table.Render()
	output.Println()

	output.Bold("Spread Pairs")
	for _, p := range cfg.Pairs {
		output.Printf("  %s / %s\n", p.A, p.B)
	}
	output.Println()

	output.Bold("Storage")
	output.Printf("  Store:           %v (%s)\n", cfg.Store.Enabled, cfg.Store.Path)
	output.Printf("  Redis publish:   %v\n", cfg.Publish.Enabled)
	return nil
}
