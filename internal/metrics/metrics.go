// Package metrics holds the Prometheus instruments for data fetches and scans.
package metrics

import (
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the engine. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	FetchTotal      *prometheus.CounterVec
	FetchLatencyMs  *prometheus.HistogramVec
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	ScanDurationMs  prometheus.Histogram
	Opportunities   *prometheus.CounterVec
	ValuationErrors *prometheus.CounterVec
	BestNetPnL      *prometheus.GaugeVec
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		FetchTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "arbmon_snapshot_fetch_total",
			Help: "Snapshot fetches by resulting provenance",
		}, []string{"provenance"}),

		FetchLatencyMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arbmon_source_latency_ms",
			Help:    "Latency of individual source calls in milliseconds",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"source", "outcome"}),

		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "arbmon_snapshot_cache_hits_total",
			Help: "Snapshot reads served from cache",
		}),

		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "arbmon_snapshot_cache_misses_total",
			Help: "Snapshot reads that triggered a fetch",
		}),

		ScanDurationMs: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "arbmon_scan_duration_ms",
			Help:    "Wall time of a full scan in milliseconds",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}),

		Opportunities: f.NewCounterVec(prometheus.CounterOpts{
			Name: "arbmon_opportunities_total",
			Help: "Valued opportunities by strategy and signal",
		}, []string{"strategy", "signal"}),

		ValuationErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "arbmon_valuation_errors_total",
			Help: "Valuations that failed by strategy",
		}, []string{"strategy"}),

		BestNetPnL: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arbmon_best_net_pnl",
			Help: "Best net P&L in the latest scan by strategy",
		}, []string{"strategy"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordFetch counts a completed snapshot fetch.
func (m *Metrics) RecordFetch(provenance string) {
	if m == nil {
		return
	}
	m.FetchTotal.WithLabelValues(provenance).Inc()
}

// RecordSourceCall records one source attempt.
func (m *Metrics) RecordSourceCall(source string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.FetchLatencyMs.WithLabelValues(source, outcome).Observe(float64(d.Milliseconds()))
}

// RecordCache counts a cache read.
func (m *Metrics) RecordCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Inc()
	} else {
		m.CacheMisses.Inc()
	}
}

// RecordScan records scan duration.
func (m *Metrics) RecordScan(d time.Duration) {
	if m == nil {
		return
	}
	m.ScanDurationMs.Observe(float64(d.Milliseconds()))
}

// RecordOpportunity counts a valued opportunity.
func (m *Metrics) RecordOpportunity(strategy, signal string) {
	if m == nil {
		return
	}
	m.Opportunities.WithLabelValues(strategy, signal).Inc()
}

// RecordValuationError counts a failed valuation.
func (m *Metrics) RecordValuationError(strategy string) {
	if m == nil {
		return
	}
	m.ValuationErrors.WithLabelValues(strategy).Inc()
}

// SetBestNetPnL records the best net P&L of the latest scan.
func (m *Metrics) SetBestNetPnL(strategy string, v float64) {
	if m == nil {
		return
	}
	m.BestNetPnL.WithLabelValues(strategy).Set(v)
}

// Sample is one flattened metric value.
type Sample struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels,omitempty"`
	Value  float64           `json:"value"`
}

// Snapshot flattens counters and gauges, and histogram sample counts, sorted
// by name.
func (m *Metrics) Snapshot() ([]Sample, error) {
	if m == nil {
		return nil, nil
	}
	families, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}

	var out []Sample
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			labels := make(map[string]string, len(metric.GetLabel()))
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			s := Sample{Name: mf.GetName(), Labels: labels}
			switch {
			case metric.GetCounter() != nil:
				s.Value = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				s.Value = metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				s.Name += "_count"
				s.Value = float64(metric.GetHistogram().GetSampleCount())
			default:
				continue
			}
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
