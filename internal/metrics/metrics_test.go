package metrics

import (
	"errors"
	"testing"
	"time"
)

func find(samples []Sample, name string, labels map[string]string) (Sample, bool) {
	for _, s := range samples {
		if s.Name != name {
			continue
		}
		match := true
		for k, v := range labels {
			if s.Labels[k] != v {
				match = false
			}
		}
		if match {
			return s, true
		}
	}
	return Sample{}, false
}

func TestMetrics_Snapshot(t *testing.T) {
	m := New()
	m.RecordFetch("primary")
	m.RecordFetch("primary")
	m.RecordFetch("fallback")
	m.RecordCache(true)
	m.RecordSourceCall("yahoo", 120*time.Millisecond, errors.New("timeout"))
	m.RecordOpportunity("put_call_parity", "conversion")
	m.SetBestNetPnL("put_call_parity", 1709.1)

	samples, err := m.Snapshot()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s, ok := find(samples, "arbmon_snapshot_fetch_total", map[string]string{"provenance": "primary"}); !ok || s.Value != 2 {
		t.Errorf("primary fetches = %+v (found %v), want 2", s, ok)
	}
	if s, ok := find(samples, "arbmon_source_latency_ms_count", map[string]string{"source": "yahoo", "outcome": "error"}); !ok || s.Value != 1 {
		t.Errorf("yahoo latency count = %+v (found %v), want 1", s, ok)
	}
	if s, ok := find(samples, "arbmon_best_net_pnl", nil); !ok || s.Value != 1709.1 {
		t.Errorf("best net = %+v (found %v)", s, ok)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordFetch("primary")
	m.RecordCache(false)
	m.RecordScan(time.Second)
	m.RecordValuationError("cost_of_carry")
	if s, err := m.Snapshot(); s != nil || err != nil {
		t.Errorf("nil metrics snapshot = %v, %v", s, err)
	}
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.RecordFetch("primary")
	samples, _ := b.Snapshot()
	if _, ok := find(samples, "arbmon_snapshot_fetch_total", nil); ok {
		t.Error("registries must not share state")
	}
}
