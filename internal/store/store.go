// Package store persists price history and the scan journal.
package store

import (
	"context"
	"time"

	"arb-monitor/internal/models"
)

// CandleStore caches price history for the spread model.
type CandleStore interface {
	SaveCandles(ctx context.Context, symbol, timeframe string, candles []models.Candle) error
	GetCandles(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]models.Candle, error)
	GetCandlesFreshness(ctx context.Context, symbol, timeframe string) (time.Time, error)
	GetLastSync(key string) time.Time
	SetLastSync(key string, t time.Time) error
}

// Journal records completed scans.
type Journal interface {
	SaveScan(ctx context.Context, scan ScanRecord, opps []models.ArbitrageOpportunity) error
	ListScans(ctx context.Context, filter ScanFilter) ([]ScanRecord, error)
	GetScanOpportunities(ctx context.Context, scanID string) ([]models.ArbitrageOpportunity, error)
}

// ScanRecord is the journal header of one scan.
type ScanRecord struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Assets      []string  `json:"assets"`
	Strategies  []string  `json:"strategies"`
	MinProfit   float64   `json:"min_profit"`
	Evaluated   int       `json:"evaluated"`
	Reported    int       `json:"reported"`
	Failed      int       `json:"failed"`
	BestNetPnL  float64   `json:"best_net_pnl"`
	BestSummary string    `json:"best_summary,omitempty"`
}

// ScanFilter narrows ListScans.
type ScanFilter struct {
	Since time.Time
	Limit int
}

// Timeframe used for the daily closes that feed the spread model.
const TimeframeDaily = "1day"
