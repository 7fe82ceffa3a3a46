package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"arb-monitor/internal/models"
)

const optionsPayload = `{"optionChain":{"result":[{
	"quote":{"regularMarketPrice":25012.5},
	"expirationDates":[1774915200],
	"options":[{"expirationDate":1774915200,
		"calls":[{"strike":24950,"lastPrice":690,"volume":120,"openInterest":800},{"strike":25000,"lastPrice":650,"volume":300,"openInterest":1500}],
		"puts":[{"strike":25000,"lastPrice":450,"volume":250,"openInterest":1200}]}]}],"error":null}}`

const chartPayload = `{"chart":{"result":[{
	"meta":{"regularMarketPrice":88.12},
	"timestamp":[1773619200,1773705600,1773792000],
	"indicators":{"quote":[{"open":[87.9,88.0,88.1],"high":[88.2,88.3,88.4],"low":[87.8,87.9,88.0],"close":[88.0,null,88.12],"volume":[0,0,0]}]}}],"error":null}}`

func newYahooServer(t *testing.T, handler http.HandlerFunc) *YahooSource {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewYahooSource(YahooConfig{BaseURL: srv.URL, Timeout: time.Second, RequestsPerSecond: 100, Burst: 10})
}

func TestYahoo_FetchOptions(t *testing.T) {
	var gotPath string
	y := newYahooServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(optionsPayload))
	})

	data, err := y.Fetch(context.Background(), nifty())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotPath != "/v7/finance/options/^NSEI" {
		t.Errorf("path = %q", gotPath)
	}
	if data.Spot != 25012.5 {
		t.Errorf("spot = %v", data.Spot)
	}
	if len(data.Calls) != 2 || len(data.Puts) != 1 {
		t.Fatalf("chain = %d calls %d puts", len(data.Calls), len(data.Puts))
	}
	if data.Calls[1].OpenInterest != 1500 || data.Calls[1].Volume != 300 {
		t.Errorf("call row = %+v", data.Calls[1])
	}
	// 1774915200 is 2026-03-31 00:00 UTC.
	want := time.Date(2026, 3, 31, 15, 30, 0, 0, time.FixedZone("IST", 19800))
	if !data.Expiry.Equal(want) {
		t.Errorf("expiry = %v, want %v", data.Expiry, want)
	}
}

func TestYahoo_ChartFallbackForSpot(t *testing.T) {
	y := newYahooServer(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v7/") {
			_, _ = w.Write([]byte(`{"optionChain":{"result":[],"error":null}}`))
			return
		}
		_, _ = w.Write([]byte(chartPayload))
	})

	data, err := y.Fetch(context.Background(), nifty())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if data.Spot != 88.12 || len(data.Calls) != 0 {
		t.Errorf("data = %+v", data)
	}
}

func TestYahoo_CurrencySkipsOptions(t *testing.T) {
	var paths []string
	y := newYahooServer(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		_, _ = w.Write([]byte(chartPayload))
	})

	usd, _ := models.NewAssetRegistry(models.DefaultAssets()).Get("USDINR")
	data, err := y.Fetch(context.Background(), usd)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if data.Spot != 88.12 {
		t.Errorf("spot = %v", data.Spot)
	}
	if len(paths) != 1 || paths[0] != "/v8/finance/chart/USDINR=X" {
		t.Errorf("paths = %v", paths)
	}
}

func TestYahoo_HTTPError(t *testing.T) {
	y := newYahooServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	if _, err := y.Fetch(context.Background(), nifty()); err == nil {
		t.Fatal("expected error on 429")
	}
}

func TestYahoo_HistorySkipsNullCloses(t *testing.T) {
	var query string
	y := newYahooServer(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		_, _ = w.Write([]byte(chartPayload))
	})

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 18, 0, 0, 0, 0, time.UTC)
	candles, err := y.History(context.Background(), nifty(), from, to)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("candles = %d, want 2", len(candles))
	}
	if candles[1].Close != 88.12 {
		t.Errorf("last close = %v", candles[1].Close)
	}
	if !strings.Contains(query, "period1=1772323200") || !strings.Contains(query, "interval=1d") {
		t.Errorf("query = %q", query)
	}
}
