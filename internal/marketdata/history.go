package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"arb-monitor/internal/logging"
	"arb-monitor/internal/models"
	"arb-monitor/internal/store"
	"arb-monitor/pkg/utils"
)

// HistoryResult is the close series for one asset and where it came from.
// Dates, when set, holds the candle timestamp of each close.
type HistoryResult struct {
	Closes     []float64
	Dates      []time.Time
	Source     string
	Diagnostic string
}

// AlignByDate pairs two close series on their trading dates (IST) and drops
// days present in only one of them. Series without dates are returned as is.
func AlignByDate(a, b HistoryResult) ([]float64, []float64) {
	if len(a.Dates) != len(a.Closes) || len(b.Dates) != len(b.Closes) || len(a.Dates) == 0 || len(b.Dates) == 0 {
		return a.Closes, b.Closes
	}

	byDay := make(map[string]float64, len(b.Closes))
	for i, d := range b.Dates {
		byDay[tradingDay(d)] = b.Closes[i]
	}
	outA := make([]float64, 0, len(a.Closes))
	outB := make([]float64, 0, len(a.Closes))
	for i, d := range a.Dates {
		if v, ok := byDay[tradingDay(d)]; ok {
			outA = append(outA, a.Closes[i])
			outB = append(outB, v)
		}
	}
	return outA, outB
}

func tradingDay(t time.Time) string {
	return t.In(utils.IndiaLocation).Format("2006-01-02")
}

// HistoryService serves daily closes, reading through the candle store.
type HistoryService struct {
	store     store.CandleStore
	sources   []HistorySource
	freshness time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// NewHistoryService creates the service. candles may be nil, in which case
// every call goes to the sources.
func NewHistoryService(candles store.CandleStore, sources []HistorySource, freshness time.Duration, logger zerolog.Logger) *HistoryService {
	if freshness <= 0 {
		freshness = 12 * time.Hour
	}
	return &HistoryService{
		store:     candles,
		sources:   sources,
		freshness: freshness,
		logger:    logging.WithOperation(logger, "history"),
		now:       time.Now,
	}
}

// Closes returns up to lookbackDays of the most recent daily closes. It never
// fails: when every source is down it serves whatever the store holds and
// says so in the diagnostic.
func (h *HistoryService) Closes(ctx context.Context, asset models.AssetSpec, lookbackDays int) HistoryResult {
	if lookbackDays <= 0 {
		lookbackDays = 60
	}
	now := h.now()
	// Calendar window wide enough to cover weekends and holidays.
	from := now.AddDate(0, 0, -(lookbackDays*7/5 + 10))
	key := syncKey(asset)

	if h.store != nil {
		last := h.store.GetLastSync(key)
		if !last.IsZero() && now.Sub(last) < h.freshness {
			if res, err := h.stored(ctx, asset, from, now, lookbackDays); err == nil && len(res.Closes) > 0 {
				res.Source = "store"
				return res
			}
		}
	}

	var failures []string
	for _, src := range h.sources {
		candles, err := src.History(ctx, asset, from, now)
		if err != nil || len(candles) == 0 {
			if err == nil {
				err = fmt.Errorf("no candles")
			}
			failures = append(failures, fmt.Sprintf("%s: %v", src.Name(), err))
			continue
		}

		if h.store != nil {
			if err := h.store.SaveCandles(ctx, asset.Key(), store.TimeframeDaily, candles); err != nil {
				h.logger.Warn().Err(err).Str("symbol", asset.Key()).Msg("Failed to save candles")
			} else if err := h.store.SetLastSync(key, now); err != nil {
				h.logger.Warn().Err(err).Str("symbol", asset.Key()).Msg("Failed to record sync")
			}
		}
		res := fromCandles(candles, lookbackDays)
		res.Source = src.Name()
		return res
	}

	diagnostic := "no history source available"
	if len(failures) > 0 {
		diagnostic = "history sources failed: " + strings.Join(failures, "; ")
	}
	h.logger.Warn().Str("symbol", asset.Key()).Str("diagnostic", diagnostic).Msg("Serving stored history")

	var res HistoryResult
	if h.store != nil {
		res, _ = h.stored(ctx, asset, from, now, lookbackDays)
	}
	res.Source = "store"
	res.Diagnostic = diagnostic
	return res
}

func (h *HistoryService) stored(ctx context.Context, asset models.AssetSpec, from, to time.Time, n int) (HistoryResult, error) {
	candles, err := h.store.GetCandles(ctx, asset.Key(), store.TimeframeDaily, from, to)
	if err != nil {
		return HistoryResult{}, err
	}
	return fromCandles(candles, n), nil
}

// fromCandles keeps the most recent n candles.
func fromCandles(candles []models.Candle, n int) HistoryResult {
	if len(candles) > n {
		candles = candles[len(candles)-n:]
	}
	dates := make([]time.Time, len(candles))
	for i, c := range candles {
		dates[i] = c.Timestamp
	}
	return HistoryResult{Closes: models.Closes(candles), Dates: dates}
}

func syncKey(asset models.AssetSpec) string {
	return "candles:" + asset.Key()
}
