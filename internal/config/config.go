// Package config provides configuration management for the arbitrage monitor.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "arb-monitor/internal/errors"
	"arb-monitor/internal/friction"
	"arb-monitor/internal/logging"
	"arb-monitor/internal/marketdata"
	"arb-monitor/internal/models"
	"arb-monitor/internal/resilience"
	"arb-monitor/internal/scanner"
)

// Config holds all application configuration.
type Config struct {
	Engine      EngineConfig                `mapstructure:"engine"`
	Friction    map[string]friction.Schedule `mapstructure:"friction"`
	Scan        ScanConfig                  `mapstructure:"scan"`
	Data        DataConfig                  `mapstructure:"data"`
	Defaults    DefaultsConfig              `mapstructure:"defaults"`
	Logging     LoggingConfig               `mapstructure:"logging"`
	Store       StoreConfig                 `mapstructure:"store"`
	Publish     PublishConfig               `mapstructure:"publish"`
	Assets      []models.AssetSpec          `mapstructure:"assets"`
	Pairs       []scanner.Pair              `mapstructure:"pairs"`
	Credentials Credentials                 `mapstructure:"-"` // Loaded separately
}

// EngineConfig holds scan-wide engine settings.
type EngineConfig struct {
	ExpiryWeekday string `mapstructure:"expiry_weekday"`
	Concurrency   int    `mapstructure:"concurrency"`
}

// ScanConfig holds the default scan selection and filters.
type ScanConfig struct {
	Assets     []string                  `mapstructure:"assets"`
	Strategies []string                  `mapstructure:"strategies"`
	MinProfit  float64                   `mapstructure:"min_profit"`
	Filters    map[string]scanner.Filter `mapstructure:"filters"`
}

// DataConfig holds market data settings.
type DataConfig struct {
	Sources          []string                        `mapstructure:"sources"`
	CacheTTL         time.Duration                   `mapstructure:"cache_ttl"`
	FallbackTTL      time.Duration                   `mapstructure:"fallback_ttl"`
	FetchTimeout     time.Duration                   `mapstructure:"fetch_timeout"`
	HistoryFreshness time.Duration                   `mapstructure:"history_freshness"`
	ChainDepth       int                             `mapstructure:"chain_depth"`
	YahooBaseURL     string                          `mapstructure:"yahoo_base_url"`
	YahooRPS         float64                         `mapstructure:"yahoo_rps"`
	YahooBurst       int                             `mapstructure:"yahoo_burst"`
	Breaker          resilience.CircuitBreakerConfig `mapstructure:"breaker"`
}

// DefaultsConfig holds the valuation parameters used when flags do not
// override them.
type DefaultsConfig struct {
	Lots                    int     `mapstructure:"lots"`
	RiskFreeRate            float64 `mapstructure:"risk_free_rate"`
	BrokeragePerOrder       float64 `mapstructure:"brokerage_per_order"`
	MarginPct               float64 `mapstructure:"margin_pct"`
	ThresholdFraction       float64 `mapstructure:"threshold_fraction"`
	Volatility              float64 `mapstructure:"volatility"`
	PremiumFallbackFraction float64 `mapstructure:"premium_fallback_fraction"`
	CarryRate               float64 `mapstructure:"carry_rate"`
	ForeignRate             float64 `mapstructure:"foreign_rate"`
	Notional                float64 `mapstructure:"notional"`
	LookbackDays            int     `mapstructure:"lookback_days"`
	ZThreshold              float64 `mapstructure:"z_threshold"`
	HoldingDays             float64 `mapstructure:"holding_days"`
	DaysToExpiry            int     `mapstructure:"days_to_expiry"`
	MinObservations         int     `mapstructure:"min_observations"`
	DegenerateStdFraction   float64 `mapstructure:"degenerate_std_fraction"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// StoreConfig holds the SQLite store location.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// PublishConfig holds the Redis report cache settings.
type PublishConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Credentials holds API credentials.
type Credentials struct {
	Kite KiteCredentials `mapstructure:"kite"`
}

// KiteCredentials holds Kite Connect API credentials.
type KiteCredentials struct {
	APIKey      string `mapstructure:"api_key"`
	APISecret   string `mapstructure:"api_secret"`
	AccessToken string `mapstructure:"access_token"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/arb-monitor"
	}
	return filepath.Join(home, ".config", "arb-monitor")
}

// Default returns a fully populated configuration.
func Default() *Config {
	dir := DefaultConfigDir()
	return &Config{
		Engine: EngineConfig{ExpiryWeekday: "tuesday", Concurrency: 4},
		Friction: map[string]friction.Schedule{
			string(models.StrategyPutCallParity):      {EquityTaxRate: 0.001, OptionsTaxRate: 0.000625, Legs: 4},
			string(models.StrategyCostOfCarry):        {EquityTaxRate: 0.001, Legs: 4},
			string(models.StrategyInterestRateParity): {Legs: 4},
			string(models.StrategyStatisticalSpread):  {Legs: 4},
		},
		Scan: ScanConfig{
			Assets:     []string{"NIFTY", "RELIANCE", "TCS", "SBIN", "INFY", "USDINR"},
			Strategies: []string{"put_call_parity", "cost_of_carry", "interest_rate_parity", "statistical_spread"},
			MinProfit:  0,
			Filters:    map[string]scanner.Filter{},
		},
		Data: DataConfig{
			Sources:          []string{"kite", "yahoo"},
			CacheTTL:         30 * time.Second,
			FallbackTTL:      10 * time.Second,
			FetchTimeout:     8 * time.Second,
			HistoryFreshness: 12 * time.Hour,
			ChainDepth:       0,
			YahooBaseURL:     marketdata.DefaultYahooBaseURL,
			YahooRPS:         2,
			YahooBurst:       4,
			Breaker:          resilience.DefaultCircuitBreakerConfig(),
		},
		Defaults: DefaultsConfig{
			Lots:                    1,
			RiskFreeRate:            0.0675,
			BrokeragePerOrder:       20,
			MarginPct:               0.2,
			ThresholdFraction:       0.0005,
			Volatility:              0,
			PremiumFallbackFraction: 0.02,
			CarryRate:               0,
			ForeignRate:             0.045,
			Notional:                0,
			LookbackDays:            60,
			ZThreshold:              2,
			HoldingDays:             10,
			DaysToExpiry:            30,
			MinObservations:         10,
			DegenerateStdFraction:   0.02,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Console:    true,
			File:       true,
			FilePath:   filepath.Join(dir, "logs", "arbmon.log"),
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     14,
		},
		Store:   StoreConfig{Enabled: true, Path: filepath.Join(dir, "arbmon.db")},
		Publish: PublishConfig{Enabled: false, RedisURL: "redis://localhost:6379/0", TTL: 5 * time.Minute},
		Assets:  models.DefaultAssets(),
		Pairs:   []scanner.Pair{{A: "TCS", B: "INFY"}},
	}
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. Missing files
// are created from templates and the defaults are used.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := Default()

	// Load main config
	if err := loadConfigFile(configDir, "config", cfg, configTemplate); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	// Load credentials
	if err := loadConfigFile(configDir, "credentials", &cfg.Credentials, credentialsTemplate); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target interface{}, template string) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplate(configDir, name, template)
		}
		return err
	}

	if cfg, ok := target.(*Config); ok {
		cfg.clearListsSetIn(v)
	}
	return v.Unmarshal(target)
}

// clearListsSetIn drops default lists the file replaces, so decoding does
// not merge file entries into the defaults index by index.
func (c *Config) clearListsSetIn(v *viper.Viper) {
	if v.IsSet("assets") {
		c.Assets = nil
	}
	if v.IsSet("pairs") {
		c.Pairs = nil
	}
	if v.IsSet("scan.assets") {
		c.Scan.Assets = nil
	}
	if v.IsSet("scan.strategies") {
		c.Scan.Strategies = nil
	}
	if v.IsSet("data.sources") {
		c.Data.Sources = nil
	}
}

func applyEnvOverrides(cfg *Config) {
	// Kite credentials
	if v := os.Getenv("KITE_API_KEY"); v != "" {
		cfg.Credentials.Kite.APIKey = v
	}
	if v := os.Getenv("KITE_API_SECRET"); v != "" {
		cfg.Credentials.Kite.APISecret = v
	}
	if v := os.Getenv("KITE_ACCESS_TOKEN"); v != "" {
		cfg.Credentials.Kite.AccessToken = v
	}

	if v := os.Getenv("ARBMON_REDIS_URL"); v != "" {
		cfg.Publish.RedisURL = v
		cfg.Publish.Enabled = true
	}
	if v := os.Getenv("ARBMON_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", apperrors.ErrConfigInvalid, fmt.Sprintf(format, args...))
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := parseWeekday(c.Engine.ExpiryWeekday); err != nil {
		return invalid("%v", err)
	}

	if len(c.Assets) == 0 {
		return invalid("no assets configured")
	}
	reg := c.Registry()
	for _, a := range c.Assets {
		if err := a.Validate(); err != nil {
			return invalid("%v", err)
		}
	}
	for _, sym := range c.Scan.Assets {
		if _, ok := reg.Get(sym); !ok {
			return invalid("scan asset %s is not configured", sym)
		}
	}
	for _, p := range c.Pairs {
		_, okA := reg.Get(p.A)
		_, okB := reg.Get(p.B)
		if !okA || !okB || strings.EqualFold(p.A, p.B) {
			return invalid("pair %s/%s must name two configured assets", p.A, p.B)
		}
	}

	if _, err := c.Strategies(); err != nil {
		return invalid("%v", err)
	}
	for name, s := range c.Friction {
		if _, err := models.ParseStrategy(name); err != nil {
			return invalid("friction: %v", err)
		}
		if s.Legs < 0 || s.EquityTaxRate < 0 || s.OptionsTaxRate < 0 {
			return invalid("friction.%s: rates and legs must be non-negative", name)
		}
	}
	for name, f := range c.Scan.Filters {
		if _, err := models.ParseStrategy(name); err != nil {
			return invalid("scan.filters: %v", err)
		}
		if f.MinDeviation < 0 {
			return invalid("scan.filters.%s: min_deviation must be non-negative", name)
		}
	}

	d := c.Defaults
	if d.Lots < 1 {
		return invalid("defaults.lots must be at least 1")
	}
	if d.MarginPct < 0 || d.MarginPct > 1 {
		return invalid("defaults.margin_pct must be between 0 and 1")
	}
	if d.ThresholdFraction < 0 || d.ThresholdFraction > 1 {
		return invalid("defaults.threshold_fraction must be between 0 and 1")
	}
	if d.BrokeragePerOrder < 0 || d.Volatility < 0 || d.PremiumFallbackFraction < 0 || d.Notional < 0 {
		return invalid("defaults: brokerage, volatility, premium fallback and notional must be non-negative")
	}
	if d.ZThreshold < 0 || d.HoldingDays < 0 || d.DaysToExpiry < 0 || d.LookbackDays < 0 {
		return invalid("defaults: z_threshold, holding_days, days_to_expiry and lookback_days must be non-negative")
	}

	for _, s := range c.Data.Sources {
		switch s {
		case "kite", "yahoo":
		default:
			return invalid("data.sources: unknown source %q", s)
		}
	}
	if c.Data.ChainDepth < 0 {
		return invalid("data.chain_depth must be non-negative")
	}

	if c.Publish.Enabled && c.Publish.RedisURL == "" {
		return invalid("publish.redis_url is required when publishing is enabled")
	}

	return nil
}

func parseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), s) || strings.EqualFold(d.String()[:3], s) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown expiry weekday %q", s)
}

// Registry builds the asset registry.
func (c *Config) Registry() *models.AssetRegistry {
	return models.NewAssetRegistry(c.Assets)
}

// Strategies parses the default scan strategies.
func (c *Config) Strategies() ([]models.Strategy, error) {
	out := make([]models.Strategy, 0, len(c.Scan.Strategies))
	for _, s := range c.Scan.Strategies {
		st, err := models.ParseStrategy(s)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// ScanParams maps the defaults section onto scanner parameters.
func (c *Config) ScanParams() scanner.Params {
	d := c.Defaults
	return scanner.Params{
		Lots:                    d.Lots,
		RiskFreeRate:            d.RiskFreeRate,
		BrokeragePerOrder:       d.BrokeragePerOrder,
		MarginPct:               d.MarginPct,
		ThresholdFraction:       d.ThresholdFraction,
		Volatility:              d.Volatility,
		PremiumFallbackFraction: d.PremiumFallbackFraction,
		CarryRate:               d.CarryRate,
		ForeignRate:             d.ForeignRate,
		Notional:                d.Notional,
		LookbackDays:            d.LookbackDays,
		ZThreshold:              d.ZThreshold,
		HoldingDays:             d.HoldingDays,
		DefaultDaysToExpiry:     d.DaysToExpiry,
		MinObservations:         d.MinObservations,
		DegenerateStdFraction:   d.DegenerateStdFraction,
	}
}

// ScannerConfig builds the static scanner setup.
func (c *Config) ScannerConfig() scanner.Config {
	weekday, _ := parseWeekday(c.Engine.ExpiryWeekday)
	cfg := scanner.Config{
		Friction:      make(map[models.Strategy]friction.Schedule, len(c.Friction)),
		Filters:       make(map[models.Strategy]scanner.Filter, len(c.Scan.Filters)),
		Pairs:         c.Pairs,
		ExpiryWeekday: weekday,
		Concurrency:   c.Engine.Concurrency,
	}
	for name, s := range c.Friction {
		if st, err := models.ParseStrategy(name); err == nil {
			cfg.Friction[st] = s
		}
	}
	for name, f := range c.Scan.Filters {
		if st, err := models.ParseStrategy(name); err == nil {
			cfg.Filters[st] = f
		}
	}
	return cfg
}

// MarketData returns the snapshot service settings.
func (c *Config) MarketData() marketdata.Config {
	return marketdata.Config{
		CacheTTL:     c.Data.CacheTTL,
		FallbackTTL:  c.Data.FallbackTTL,
		FetchTimeout: c.Data.FetchTimeout,
	}
}

// Kite returns the Kite source settings.
func (c *Config) Kite(configDir string) marketdata.KiteConfig {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return marketdata.KiteConfig{
		APIKey:      c.Credentials.Kite.APIKey,
		APISecret:   c.Credentials.Kite.APISecret,
		AccessToken: c.Credentials.Kite.AccessToken,
		SessionPath: filepath.Join(configDir, "session.json"),
		ChainDepth:  c.Data.ChainDepth,
		Timeout:     c.Data.FetchTimeout,
	}
}

// Yahoo returns the Yahoo source settings.
func (c *Config) Yahoo() marketdata.YahooConfig {
	return marketdata.YahooConfig{
		BaseURL:           c.Data.YahooBaseURL,
		Timeout:           c.Data.FetchTimeout,
		RequestsPerSecond: c.Data.YahooRPS,
		Burst:             c.Data.YahooBurst,
	}
}

// LogConfig returns the logger settings.
func (c *Config) LogConfig() logging.LogConfig {
	return logging.LogConfig{
		Level:      c.Logging.Level,
		Console:    c.Logging.Console,
		File:       c.Logging.File,
		FilePath:   c.Logging.FilePath,
		MaxSize:    c.Logging.MaxSize,
		MaxBackups: c.Logging.MaxBackups,
		MaxAge:     c.Logging.MaxAge,
	}
}
