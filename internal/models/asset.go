package models

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// AssetKind classifies what an asset can be valued against.
type AssetKind string

const (
	AssetIndex    AssetKind = "index"
	AssetEquity   AssetKind = "equity"
	AssetCurrency AssetKind = "currency"
)

// AssetSpec is the static description of a tradeable underlying.
type AssetSpec struct {
	Symbol       string    `mapstructure:"symbol" json:"symbol"`
	Kind         AssetKind `mapstructure:"kind" json:"kind"`
	YahooTicker  string    `mapstructure:"yahoo_ticker" json:"yahoo_ticker"`
	KiteSymbol   string    `mapstructure:"kite_symbol" json:"kite_symbol"`
	KiteName     string    `mapstructure:"kite_name" json:"kite_name"`
	KiteExchange Exchange  `mapstructure:"kite_exchange" json:"kite_exchange"`
	LotSize      int       `mapstructure:"lot_size" json:"lot_size"`
	StrikeStep   float64   `mapstructure:"strike_step" json:"strike_step"`
	FallbackSpot float64   `mapstructure:"fallback_spot" json:"fallback_spot"`
}

// Key returns the cache key for the asset.
func (a AssetSpec) Key() string {
	return strings.ToUpper(a.Symbol)
}

// HasOptions reports whether listed options exist for the asset.
func (a AssetSpec) HasOptions() bool {
	return a.Kind == AssetIndex || a.Kind == AssetEquity
}

// Units converts a lot count into underlying units.
func (a AssetSpec) Units(lots int) float64 {
	return float64(lots * a.LotSize)
}

// ATMStrike rounds spot to the nearest listed strike.
func (a AssetSpec) ATMStrike(spot float64) float64 {
	if spot <= 0 || a.StrikeStep <= 0 {
		return spot
	}
	return math.Round(spot/a.StrikeStep) * a.StrikeStep
}

// Validate checks the static fields needed by the engine.
func (a AssetSpec) Validate() error {
	if a.Symbol == "" {
		return fmt.Errorf("asset symbol is empty")
	}
	switch a.Kind {
	case AssetIndex, AssetEquity, AssetCurrency:
	default:
		return fmt.Errorf("asset %s: unknown kind %q", a.Symbol, a.Kind)
	}
	if a.LotSize <= 0 {
		return fmt.Errorf("asset %s: lot size must be positive", a.Symbol)
	}
	if a.StrikeStep < 0 {
		return fmt.Errorf("asset %s: strike step must be non-negative", a.Symbol)
	}
	if a.FallbackSpot <= 0 {
		return fmt.Errorf("asset %s: fallback spot must be positive", a.Symbol)
	}
	return nil
}

// AssetRegistry is an immutable lookup of assets by symbol.
type AssetRegistry struct {
	assets map[string]AssetSpec
	order  []string
}

// NewAssetRegistry builds a registry; later duplicates replace earlier ones.
func NewAssetRegistry(specs []AssetSpec) *AssetRegistry {
	r := &AssetRegistry{assets: make(map[string]AssetSpec, len(specs))}
	for _, s := range specs {
		key := s.Key()
		if _, seen := r.assets[key]; !seen {
			r.order = append(r.order, key)
		}
		r.assets[key] = s
	}
	return r
}

// Get looks an asset up case-insensitively.
func (r *AssetRegistry) Get(symbol string) (AssetSpec, bool) {
	a, ok := r.assets[strings.ToUpper(symbol)]
	return a, ok
}

// Symbols returns symbols in registration order.
func (r *AssetRegistry) Symbols() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// ByKind returns the symbols of a given kind, sorted.
func (r *AssetRegistry) ByKind(kind AssetKind) []string {
	var out []string
	for key, a := range r.assets {
		if a.Kind == kind {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

// DefaultAssets is the built-in NSE universe plus the USDINR currency pair.
func DefaultAssets() []AssetSpec {
	return []AssetSpec{
		{Symbol: "NIFTY", Kind: AssetIndex, YahooTicker: "^NSEI", KiteSymbol: "NSE:NIFTY 50", KiteName: "NIFTY", KiteExchange: NFO, LotSize: 65, StrikeStep: 50, FallbackSpot: 25000},
		{Symbol: "RELIANCE", Kind: AssetEquity, YahooTicker: "RELIANCE.NS", KiteSymbol: "NSE:RELIANCE", KiteName: "RELIANCE", KiteExchange: NFO, LotSize: 250, StrikeStep: 20, FallbackSpot: 1400},
		{Symbol: "TCS", Kind: AssetEquity, YahooTicker: "TCS.NS", KiteSymbol: "NSE:TCS", KiteName: "TCS", KiteExchange: NFO, LotSize: 175, StrikeStep: 20, FallbackSpot: 3100},
		{Symbol: "SBIN", Kind: AssetEquity, YahooTicker: "SBIN.NS", KiteSymbol: "NSE:SBIN", KiteName: "SBIN", KiteExchange: NFO, LotSize: 1500, StrikeStep: 5, FallbackSpot: 800},
		{Symbol: "INFY", Kind: AssetEquity, YahooTicker: "INFY.NS", KiteSymbol: "NSE:INFY", KiteName: "INFY", KiteExchange: NFO, LotSize: 400, StrikeStep: 10, FallbackSpot: 1500},
		{Symbol: "USDINR", Kind: AssetCurrency, YahooTicker: "USDINR=X", KiteName: "USDINR", KiteExchange: CDS, LotSize: 1000, StrikeStep: 0.25, FallbackSpot: 88},
	}
}
