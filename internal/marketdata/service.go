package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperrors "arb-monitor/internal/errors"
	"arb-monitor/internal/logging"
	"arb-monitor/internal/metrics"
	"arb-monitor/internal/models"
	"arb-monitor/internal/resilience"
)

const (
	MinCacheTTL = 5 * time.Second
	MaxCacheTTL = 2 * time.Minute
)

// Config controls caching and per-source timeouts.
type Config struct {
	CacheTTL     time.Duration
	FallbackTTL  time.Duration
	FetchTimeout time.Duration
}

// DefaultConfig returns the service defaults.
func DefaultConfig() Config {
	return Config{
		CacheTTL:     30 * time.Second,
		FallbackTTL:  10 * time.Second,
		FetchTimeout: 8 * time.Second,
	}
}

// normalize clamps the TTLs into their allowed range.
func (c Config) normalize() Config {
	if c.CacheTTL < MinCacheTTL {
		c.CacheTTL = MinCacheTTL
	}
	if c.CacheTTL > MaxCacheTTL {
		c.CacheTTL = MaxCacheTTL
	}
	if c.FallbackTTL <= 0 || c.FallbackTTL > c.CacheTTL {
		c.FallbackTTL = c.CacheTTL
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultConfig().FetchTimeout
	}
	return c
}

// Service resolves snapshots through the source chain and caches them.
type Service struct {
	cfg      Config
	sources  []Source
	breakers *resilience.Registry
	cache    snapshotCache
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService creates a service. breakers and m may be nil.
func NewService(cfg Config, sources []Source, breakers *resilience.Registry, m *metrics.Metrics, logger zerolog.Logger) *Service {
	if breakers == nil {
		breakers = resilience.NewRegistry(resilience.DefaultCircuitBreakerConfig())
	}
	return &Service{
		cfg:      cfg.normalize(),
		sources:  sources,
		breakers: breakers,
		metrics:  m,
		logger:   logging.WithOperation(logger, "marketdata"),
		now:      time.Now,
	}
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// Fetch returns a snapshot for the asset. It never fails: when every source
// is unavailable the static fallback snapshot is returned.
func (s *Service) Fetch(ctx context.Context, asset models.AssetSpec) *models.MarketSnapshot {
	if snap, ok := s.cache.get(asset.Key(), s.now()); ok {
		s.metrics.RecordCache(true)
		return snap
	}
	s.metrics.RecordCache(false)
	return s.Refresh(ctx, asset)
}

// Refresh bypasses the cache, fetches a new snapshot and stores it.
func (s *Service) Refresh(ctx context.Context, asset models.AssetSpec) *models.MarketSnapshot {
	start := s.now()
	snap := s.resolve(ctx, asset)

	ttl := s.cfg.CacheTTL
	if !snap.Provenance.IsLive() {
		ttl = s.cfg.FallbackTTL
	}
	s.cache.put(asset.Key(), snap, s.now().Add(ttl))

	s.metrics.RecordFetch(string(snap.Provenance))
	logging.LogFetch(s.logger, asset.Key(), string(snap.Provenance), snap.Spot, s.now().Sub(start), snap.Diagnostic)
	return snap
}

// Invalidate drops the cached snapshot for one asset, or all when symbol is empty.
func (s *Service) Invalidate(symbol string) {
	if symbol == "" {
		s.cache.clear()
		return
	}
	s.cache.delete(strings.ToUpper(symbol))
}

// Breakers returns the per-source breaker stats.
func (s *Service) Breakers() []resilience.CircuitBreakerStats {
	return s.breakers.AllStats()
}

func (s *Service) resolve(ctx context.Context, asset models.AssetSpec) *models.MarketSnapshot {
	var failures []string

	for i, src := range s.sources {
		data, err := s.fetchFrom(ctx, src, asset)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", src.Name(), err))
			continue
		}

		provenance := models.ProvenancePrimary
		if i > 0 {
			provenance = models.ProvenanceSecondary
		}

		var diag []string
		if len(failures) > 0 {
			diag = append(diag, strings.Join(failures, "; "))
		}
		if asset.HasOptions() && len(data.Calls) == 0 && len(data.Puts) == 0 {
			diag = append(diag, "no option chain from "+src.Name())
		}
		return models.NewMarketSnapshot(asset.Key(), *data, provenance, strings.Join(diag, "; "), s.now())
	}

	if ctx.Err() != nil {
		failures = append(failures, ctx.Err().Error())
	}
	diagnostic := "all sources failed"
	if len(failures) > 0 {
		diagnostic += ": " + strings.Join(failures, "; ")
	} else {
		diagnostic = "no live sources configured"
	}
	return FallbackSnapshot(asset, diagnostic, s.now())
}

func (s *Service) fetchFrom(ctx context.Context, src Source, asset models.AssetSpec) (*models.SnapshotData, error) {
	cb := s.breakers.Get(src.Name())
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	data, err := resilience.Call(fetchCtx, cb, func(ctx context.Context) (*models.SnapshotData, error) {
		d, err := src.Fetch(ctx, asset)
		if err != nil {
			return nil, err
		}
		if d == nil || d.Spot <= 0 {
			return nil, apperrors.NewDataError(src.Name(), asset.Key(), "payload has no spot price", apperrors.ErrDataUnavailable)
		}
		return d, nil
	})
	elapsed := time.Since(start)
	s.metrics.RecordSourceCall(src.Name(), elapsed, err)
	logging.LogSourceCall(s.logger, src.Name(), asset.Key(), elapsed, err)
	return data, err
}
