// Package publish caches scan reports in Redis for dashboards to read.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"arb-monitor/internal/models"
)

const (
	LatestScanKey = "scan:latest"
	// AssetsKey is the set of assets that currently have an opportunities key.
	AssetsKey  = "scan:assets"
	DefaultTTL = 5 * time.Minute
)

// OpportunitiesKey is the per-asset key.
func OpportunitiesKey(asset string) string {
	return fmt.Sprintf("opportunities:%s", asset)
}

// ScanReport is the payload written under LatestScanKey.
type ScanReport struct {
	ID            string                        `json:"id"`
	FinishedAt    time.Time                     `json:"finished_at"`
	Opportunities []models.ArbitrageOpportunity `json:"opportunities"`
}

// Publisher writes scan reports to Redis with a TTL.
type Publisher struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewPublisher connects to redisURL and verifies the connection.
func NewPublisher(ctx context.Context, redisURL string, ttl time.Duration, logger zerolog.Logger) (*Publisher, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewPublisherWithClient(client, ttl, logger), nil
}

// NewPublisherWithClient wraps an existing client.
func NewPublisherWithClient(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *Publisher {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Publisher{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "redis_publisher").Logger(),
	}
}

type entry struct {
	key   string
	asset string
	value []byte
}

// entries builds the full key set for one report: the latest scan plus one
// ranked list per asset.
func entries(report ScanReport) ([]entry, error) {
	latest, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("json marshal failed: %w", err)
	}
	out := []entry{{key: LatestScanKey, value: latest}}

	byAsset := make(map[string][]models.ArbitrageOpportunity)
	for _, o := range report.Opportunities {
		byAsset[o.Asset] = append(byAsset[o.Asset], o)
	}
	assets := make([]string, 0, len(byAsset))
	for a := range byAsset {
		assets = append(assets, a)
	}
	sort.Strings(assets)

	for _, a := range assets {
		opps := byAsset[a]
		models.SortByNetPnL(opps)
		b, err := json.Marshal(opps)
		if err != nil {
			return nil, fmt.Errorf("json marshal failed: %w", err)
		}
		out = append(out, entry{key: OpportunitiesKey(a), asset: a, value: b})
	}
	return out, nil
}

// staleKeys returns the opportunities keys of previously published assets
// that the current report no longer covers.
func staleKeys(previous []string, es []entry) []string {
	current := make(map[string]bool, len(es))
	for _, e := range es {
		if e.asset != "" {
			current[e.asset] = true
		}
	}
	var out []string
	for _, a := range previous {
		if !current[a] {
			out = append(out, OpportunitiesKey(a))
		}
	}
	sort.Strings(out)
	return out
}

// Publish writes every key of the report in one transaction and removes the
// per-asset keys left over from earlier scans.
func (p *Publisher) Publish(ctx context.Context, report ScanReport) error {
	start := time.Now()
	es, err := entries(report)
	if err != nil {
		return err
	}

	previous, err := p.client.SMembers(ctx, AssetsKey).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("redis SMEMBERS failed: %w", err)
	}
	stale := staleKeys(previous, es)

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(stale) > 0 {
			pipe.Del(ctx, stale...)
		}
		pipe.Del(ctx, AssetsKey)
		var members []interface{}
		for _, e := range es {
			pipe.Set(ctx, e.key, e.value, p.ttl)
			if e.asset != "" {
				members = append(members, e.asset)
			}
		}
		if len(members) > 0 {
			pipe.SAdd(ctx, AssetsKey, members...)
			pipe.Expire(ctx, AssetsKey, p.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}

	p.logger.Info().
		Str("scan_id", report.ID).
		Int("keys", len(es)).
		Int("stale", len(stale)).
		Dur("ttl", p.ttl).
		Dur("latency", time.Since(start)).
		Msg("Scan report published")
	return nil
}

// Latest reads back the last published report.
func (p *Publisher) Latest(ctx context.Context) (*ScanReport, error) {
	b, err := p.client.Get(ctx, LatestScanKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET failed: %w", err)
	}
	var report ScanReport
	if err := json.Unmarshal(b, &report); err != nil {
		return nil, fmt.Errorf("json unmarshal failed: %w", err)
	}
	return &report, nil
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
