// Package scanner runs every requested strategy over every requested asset
// and ranks the resulting opportunities.
package scanner

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	apperrors "arb-monitor/internal/errors"
	"arb-monitor/internal/friction"
	"arb-monitor/internal/logging"
	"arb-monitor/internal/marketdata"
	"arb-monitor/internal/metrics"
	"arb-monitor/internal/models"
	"arb-monitor/internal/store"
)

// SnapshotFetcher supplies market snapshots. It must never fail.
type SnapshotFetcher interface {
	Fetch(ctx context.Context, asset models.AssetSpec) *models.MarketSnapshot
}

// HistoryFetcher supplies daily closes for the spread model.
type HistoryFetcher interface {
	Closes(ctx context.Context, asset models.AssetSpec, lookbackDays int) marketdata.HistoryResult
}

// Params are the shared valuation inputs of one scan.
type Params struct {
	Lots                    int
	RiskFreeRate            float64
	BrokeragePerOrder       float64
	MarginPct               float64
	ThresholdFraction       float64
	Volatility              float64 // zero means implied from the live chain
	PremiumFallbackFraction float64
	CarryRate               float64
	ForeignRate             float64
	Notional                float64 // foreign units; zero uses lots × lot size
	LookbackDays            int
	ZThreshold              float64
	HoldingDays             float64
	DefaultDaysToExpiry     int
	MinObservations         int
	DegenerateStdFraction   float64
}

// Override replaces snapshot values for one asset.
type Override struct {
	Strike       float64
	CallPremium  float64
	PutPremium   float64
	FuturesPrice float64
	Expiry       time.Time
}

// Request is one scan.
type Request struct {
	Assets     []string
	Strategies []models.Strategy
	MinProfit  float64
	Params     Params
	Overrides  map[string]Override
}

// Filter is a per-strategy reporting floor.
type Filter struct {
	MinNetPnL    float64 `mapstructure:"min_net_pnl"`
	MinDeviation float64 `mapstructure:"min_deviation"`
}

// Pair is a spread pair; the spread is valued when A is scanned.
type Pair struct {
	A string `mapstructure:"a"`
	B string `mapstructure:"b"`
}

// Config is the static scanner setup.
type Config struct {
	Friction      map[models.Strategy]friction.Schedule
	Filters       map[models.Strategy]Filter
	Pairs         []Pair
	ExpiryWeekday time.Weekday
	Concurrency   int
}

// Counts are per-strategy tallies.
type Counts struct {
	Evaluated  int `json:"evaluated"`
	Signals    int `json:"signals"`
	Profitable int `json:"profitable"`
	Reported   int `json:"reported"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// ScanError records one failed (asset, strategy) evaluation.
type ScanError struct {
	Asset    string          `json:"asset"`
	Strategy models.Strategy `json:"strategy,omitempty"`
	Message  string          `json:"message"`
}

func (e ScanError) Error() string {
	if e.Strategy == "" {
		return fmt.Sprintf("%s: %s", e.Asset, e.Message)
	}
	return fmt.Sprintf("%s/%s: %s", e.Asset, e.Strategy, e.Message)
}

// Result is the outcome of one scan.
type Result struct {
	ID            string                            `json:"id"`
	StartedAt     time.Time                         `json:"started_at"`
	FinishedAt    time.Time                         `json:"finished_at"`
	Assets        []string                          `json:"assets"`
	Strategies    []models.Strategy                 `json:"strategies"`
	MinProfit     float64                           `json:"min_profit"`
	Opportunities []models.ArbitrageOpportunity     `json:"opportunities"`
	Counts        map[models.Strategy]*Counts       `json:"counts"`
	Errors        []ScanError                       `json:"errors,omitempty"`
	Snapshots     map[string]*models.MarketSnapshot `json:"snapshots,omitempty"`
}

// Best returns the top-ranked opportunity.
func (r *Result) Best() (models.ArbitrageOpportunity, bool) {
	if len(r.Opportunities) == 0 {
		return models.ArbitrageOpportunity{}, false
	}
	return r.Opportunities[0], true
}

// Totals sums the per-strategy counts.
func (r *Result) Totals() Counts {
	var t Counts
	for _, c := range r.Counts {
		t.Evaluated += c.Evaluated
		t.Signals += c.Signals
		t.Profitable += c.Profitable
		t.Reported += c.Reported
		t.Skipped += c.Skipped
		t.Failed += c.Failed
	}
	return t
}

// Record converts the result into its journal header.
func (r *Result) Record() store.ScanRecord {
	strategies := make([]string, len(r.Strategies))
	for i, s := range r.Strategies {
		strategies[i] = string(s)
	}
	totals := r.Totals()
	rec := store.ScanRecord{
		ID:         r.ID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Assets:     r.Assets,
		Strategies: strategies,
		MinProfit:  r.MinProfit,
		Evaluated:  totals.Evaluated,
		Reported:   totals.Reported,
		Failed:     totals.Failed,
	}
	if best, ok := r.Best(); ok {
		rec.BestNetPnL = best.NetPnL
		rec.BestSummary = fmt.Sprintf("%s %s %s", best.Asset, best.Strategy, best.Signal)
	}
	return rec
}

// Scanner values assets across strategies.
type Scanner struct {
	registry  *models.AssetRegistry
	snapshots SnapshotFetcher
	history   HistoryFetcher
	cfg       Config
	friction  map[models.Strategy]friction.Model
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

// New creates a scanner. history and m may be nil; without history every
// spread is valued on fallback parameters.
func New(registry *models.AssetRegistry, snapshots SnapshotFetcher, history HistoryFetcher, cfg Config, m *metrics.Metrics, logger zerolog.Logger) *Scanner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	fm := make(map[models.Strategy]friction.Model, len(models.AllStrategies()))
	for _, s := range models.AllStrategies() {
		sched, ok := cfg.Friction[s]
		if !ok {
			sched = DefaultSchedule(s)
		}
		fm[s] = friction.New(sched)
	}
	return &Scanner{
		registry:  registry,
		snapshots: snapshots,
		history:   history,
		cfg:       cfg,
		friction:  fm,
		metrics:   m,
		logger:    logging.WithOperation(logger, "scan"),
		now:       time.Now,
	}
}

// DefaultSchedule is the friction schedule used when none is configured.
func DefaultSchedule(s models.Strategy) friction.Schedule {
	switch s {
	case models.StrategyPutCallParity:
		return friction.Schedule{EquityTaxRate: 0.001, OptionsTaxRate: 0.000625, Legs: 4}
	case models.StrategyCostOfCarry:
		return friction.Schedule{EquityTaxRate: 0.001, Legs: 4}
	default:
		return friction.Schedule{Legs: 4}
	}
}

// Friction returns the model used for a strategy.
func (s *Scanner) Friction(strategy models.Strategy) friction.Model {
	return s.friction[strategy]
}

// Scan evaluates every (asset, strategy) pair of the request. It always
// returns a result; individual failures are recorded in Result.Errors.
func (s *Scanner) Scan(ctx context.Context, req Request) *Result {
	start := s.now()
	strategies := req.Strategies
	if len(strategies) == 0 {
		strategies = models.AllStrategies()
	}

	res := &Result{
		ID:         uuid.NewString(),
		StartedAt:  start,
		Strategies: strategies,
		MinProfit:  req.MinProfit,
		Counts:     make(map[models.Strategy]*Counts, len(strategies)),
		Snapshots:  make(map[string]*models.MarketSnapshot),
	}
	for _, st := range strategies {
		res.Counts[st] = &Counts{}
	}
	logger := s.logger.With().Str("scan_id", res.ID).Logger()

	var assets []models.AssetSpec
	for _, sym := range req.Assets {
		a, ok := s.registry.Get(sym)
		if !ok {
			res.Errors = append(res.Errors, ScanError{Asset: strings.ToUpper(sym), Message: apperrors.ErrUnknownAsset.Error()})
			continue
		}
		assets = append(assets, a)
		res.Assets = append(res.Assets, a.Key())
	}

	res.Snapshots = s.fetchAll(ctx, s.withPartners(assets, strategies))

	for _, asset := range assets {
		for _, st := range strategies {
			s.evaluate(ctx, res, req, asset, st, logger)
		}
	}

	models.SortByNetPnL(res.Opportunities)
	for _, st := range strategies {
		best := math.Inf(-1)
		for _, o := range res.Opportunities {
			if o.Strategy == st {
				best = o.NetPnL
				break
			}
		}
		if !math.IsInf(best, -1) {
			s.metrics.SetBestNetPnL(string(st), best)
		}
	}

	res.FinishedAt = s.now()
	s.metrics.RecordScan(res.FinishedAt.Sub(start))
	totals := res.Totals()
	logger.Info().
		Int("assets", len(assets)).
		Int("evaluated", totals.Evaluated).
		Int("reported", totals.Reported).
		Int("failed", totals.Failed).
		Dur("duration", res.FinishedAt.Sub(start)).
		Msg("Scan completed")
	return res
}

// evaluate runs one valuator with panic recovery and applies the filters.
func (s *Scanner) evaluate(ctx context.Context, res *Result, req Request, asset models.AssetSpec, st models.Strategy, logger zerolog.Logger) {
	counts := res.Counts[st]
	defer func() {
		if r := recover(); r != nil {
			counts.Failed++
			res.Errors = append(res.Errors, ScanError{Asset: asset.Key(), Strategy: st, Message: fmt.Sprintf("panic: %v", r)})
			s.metrics.RecordValuationError(string(st))
			logger.Error().Str("symbol", asset.Key()).Str("strategy", string(st)).Str("stack", string(debug.Stack())).Msgf("Valuator panicked: %v", r)
		}
	}()

	opps, err := s.value(ctx, req, asset, st, res.Snapshots)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotApplicable) {
			counts.Skipped++
			return
		}
		counts.Failed++
		res.Errors = append(res.Errors, ScanError{Asset: asset.Key(), Strategy: st, Message: err.Error()})
		s.metrics.RecordValuationError(string(st))
		l := logging.WithStrategy(logging.WithSymbol(logger, asset.Key()), string(st))
		l.Warn().Err(err).Msg("Valuation failed")
		return
	}

	// Per-strategy filters only tighten the request floor when configured.
	floor := req.MinProfit
	filter, ok := s.cfg.Filters[st]
	if ok {
		floor = math.Max(floor, filter.MinNetPnL)
	}
	for _, o := range opps {
		counts.Evaluated++
		if o.Signal.IsTrade() {
			counts.Signals++
			s.metrics.RecordOpportunity(string(st), string(o.Signal))
		}
		if o.Profitable {
			counts.Profitable++
			logging.LogOpportunity(logger, string(st), o.Asset, string(o.Signal), o.NetPnL)
		}
		if o.NetPnL < floor || o.Deviation < filter.MinDeviation {
			continue
		}
		counts.Reported++
		res.Opportunities = append(res.Opportunities, o)
	}
}

// withPartners adds the spread partners of the scanned assets.
func (s *Scanner) withPartners(assets []models.AssetSpec, strategies []models.Strategy) []models.AssetSpec {
	out := append([]models.AssetSpec(nil), assets...)
	wantSpread := false
	for _, st := range strategies {
		if st == models.StrategyStatisticalSpread {
			wantSpread = true
		}
	}
	if !wantSpread {
		return out
	}

	seen := make(map[string]bool, len(assets))
	for _, a := range assets {
		seen[a.Key()] = true
	}
	for _, a := range assets {
		for _, p := range s.pairsFor(a) {
			b, ok := s.registry.Get(p.B)
			if ok && !seen[b.Key()] {
				seen[b.Key()] = true
				out = append(out, b)
			}
		}
	}
	return out
}

func (s *Scanner) pairsFor(a models.AssetSpec) []Pair {
	var out []Pair
	for _, p := range s.cfg.Pairs {
		if strings.EqualFold(p.A, a.Symbol) {
			out = append(out, p)
		}
	}
	return out
}

// fetchAll fetches one snapshot per asset with a bounded worker pool.
func (s *Scanner) fetchAll(ctx context.Context, assets []models.AssetSpec) map[string]*models.MarketSnapshot {
	snapshots := make(map[string]*models.MarketSnapshot, len(assets))
	if len(assets) == 0 {
		return snapshots
	}

	type fetched struct {
		key  string
		snap *models.MarketSnapshot
	}
	work := make(chan models.AssetSpec, len(assets))
	results := make(chan fetched, len(assets))

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Concurrency && i < len(assets); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for a := range work {
				results <- fetched{key: a.Key(), snap: s.snapshots.Fetch(ctx, a)}
			}
		}()
	}
	for _, a := range assets {
		work <- a
	}
	close(work)

	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		snapshots[r.key] = r.snap
	}
	return snapshots
}

// SortedStrategies returns the count keys in scan order.
func (r *Result) SortedStrategies() []models.Strategy {
	out := make([]models.Strategy, 0, len(r.Counts))
	for st := range r.Counts {
		out = append(out, st)
	}
	order := make(map[models.Strategy]int)
	for i, st := range models.AllStrategies() {
		order[st] = i
	}
	sort.Slice(out, func(i, j int) bool { return order[out[i]] < order[out[j]] })
	return out
}
