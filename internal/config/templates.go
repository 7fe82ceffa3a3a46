package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Arbitrage Monitor Configuration

[engine]
# Weekday of the monthly derivatives expiry
expiry_weekday = "tuesday"
# Number of assets fetched in parallel
concurrency = 4

# Transaction cost schedule per strategy.
# Friction = legs x brokerage + spot x units x equity_tax_rate
#          + (call + put) x units x options_tax_rate
[friction.put_call_parity]
equity_tax_rate = 0.001
options_tax_rate = 0.000625
legs = 4

[friction.cost_of_carry]
equity_tax_rate = 0.001
legs = 4

[friction.interest_rate_parity]
legs = 4

[friction.statistical_spread]
legs = 4

[scan]
assets = ["NIFTY", "RELIANCE", "TCS", "SBIN", "INFY", "USDINR"]
strategies = ["put_call_parity", "cost_of_carry", "interest_rate_parity", "statistical_spread"]
# Minimum net P&L (INR) for an opportunity to be reported
min_profit = 0.0

# Per-strategy reporting floors
# [scan.filters.cost_of_carry]
# min_net_pnl = 100.0
# min_deviation = 5.0

[data]
# Source priority; the first healthy source wins
sources = ["kite", "yahoo"]
cache_ttl = "30s"
fallback_ttl = "10s"
fetch_timeout = "8s"
history_freshness = "12h"
# Strikes loaded on each side of ATM; 0 loads the full expiry ladder
chain_depth = 0
yahoo_base_url = "https://query2.finance.yahoo.com"
yahoo_rps = 2.0
yahoo_burst = 4

[data.breaker]
failure_threshold = 3
success_threshold = 1
cooldown = "30s"

[defaults]
lots = 1
risk_free_rate = 0.0675
brokerage_per_order = 20.0
margin_pct = 0.2
threshold_fraction = 0.0005
# 0 implies volatility from the live option pair
volatility = 0.0
premium_fallback_fraction = 0.02
carry_rate = 0.0
foreign_rate = 0.045
# Foreign notional for IRP; 0 uses lots x lot size
notional = 0.0
lookback_days = 60
z_threshold = 2.0
holding_days = 10.0
days_to_expiry = 30
min_observations = 10
degenerate_std_fraction = 0.02

[logging]
# Log level: debug, info, warn, error
level = "info"
console = true
file = true
max_size = 50
max_backups = 5
max_age = 14

[store]
enabled = true

[publish]
# Cache scan reports in Redis
enabled = false
redis_url = "redis://localhost:6379/0"
ttl = "5m"

[[pairs]]
a = "TCS"
b = "INFY"
`

const credentialsTemplate = `# Arbitrage Monitor Credentials
# WARNING: Keep this file secure! Do not commit to version control.

[kite]
# Get these from https://developers.kite.trade/
api_key = ""
api_secret = ""
# Optional; "arbmon auth login" stores a daily session instead
access_token = ""
`

func createTemplate(configDir, name, template string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	mode := os.FileMode(0644)
	if name == "credentials" {
		// Use restricted permissions for credentials file
		mode = 0600
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(template), mode); err != nil {
		return fmt.Errorf("writing %s template: %w", name, err)
	}
	return nil
}
