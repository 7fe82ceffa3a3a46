package marketdata

import (
	"time"

	"arb-monitor/internal/models"
)

// FallbackSnapshot builds the static snapshot used when every live source has
// failed. It never carries an option chain.
func FallbackSnapshot(asset models.AssetSpec, diagnostic string, now time.Time) *models.MarketSnapshot {
	return models.NewMarketSnapshot(
		asset.Key(),
		models.SnapshotData{Spot: asset.FallbackSpot},
		models.ProvenanceFallback,
		diagnostic,
		now,
	)
}
