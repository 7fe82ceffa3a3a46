// Package marketdata acquires market snapshots through an ordered chain of
// sources with a static fallback, and caches them as immutable values.
package marketdata

import (
	"context"
	"time"

	"arb-monitor/internal/models"
)

// Source is one live market data provider.
type Source interface {
	Name() string
	Fetch(ctx context.Context, asset models.AssetSpec) (*models.SnapshotData, error)
}

// HistorySource supplies daily candles for the spread model.
type HistorySource interface {
	Name() string
	History(ctx context.Context, asset models.AssetSpec, from, to time.Time) ([]models.Candle, error)
}

// runCtx runs a blocking call that cannot take a context, returning early if
// ctx is done. The call's goroutine is left to finish on its own.
func runCtx[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}

	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
