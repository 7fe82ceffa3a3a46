package models

import "time"

// MarketSnapshot is the result of one market data fetch for one asset.
// Snapshots are built once by NewMarketSnapshot and must not be mutated;
// a refresh produces a new snapshot.
type MarketSnapshot struct {
	Asset      string        `json:"asset"`
	Spot       float64       `json:"spot"`
	Expiry     time.Time     `json:"expiry,omitempty"`
	Calls      OptionTable   `json:"calls,omitempty"`
	Puts       OptionTable   `json:"puts,omitempty"`
	Futures    *FuturesQuote `json:"futures,omitempty"`
	Provenance Provenance    `json:"provenance"`
	Diagnostic string        `json:"diagnostic,omitempty"`
	FetchedAt  time.Time     `json:"fetched_at"`
}

// SnapshotData carries the fields a source extracted from its payload.
type SnapshotData struct {
	Spot    float64
	Expiry  time.Time
	Calls   []OptionQuote
	Puts    []OptionQuote
	Futures *FuturesQuote
}

// NewMarketSnapshot builds an immutable snapshot, copying the strike ladders.
func NewMarketSnapshot(asset string, data SnapshotData, provenance Provenance, diagnostic string, fetchedAt time.Time) *MarketSnapshot {
	var futures *FuturesQuote
	if data.Futures != nil {
		f := *data.Futures
		futures = &f
	}
	return &MarketSnapshot{
		Asset:      asset,
		Spot:       data.Spot,
		Expiry:     data.Expiry,
		Calls:      NewOptionTable(data.Calls),
		Puts:       NewOptionTable(data.Puts),
		Futures:    futures,
		Provenance: provenance,
		Diagnostic: diagnostic,
		FetchedAt:  fetchedAt,
	}
}

// HasExpiry reports whether an option-chain expiry was extracted.
func (s *MarketSnapshot) HasExpiry() bool {
	return !s.Expiry.IsZero()
}

// HasChain reports whether any strike rows were extracted.
func (s *MarketSnapshot) HasChain() bool {
	return len(s.Calls) > 0 || len(s.Puts) > 0
}
