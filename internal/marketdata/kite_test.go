package marketdata

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	kitemodels "github.com/zerodha/gokiteconnect/v4/models"

	apperrors "arb-monitor/internal/errors"
)

type fakeKite struct {
	quotes          map[string]kiteQuote
	instruments     []kiteconnect.Instrument
	history         []kiteconnect.HistoricalData
	instrumentCalls int
	quoteErr        error
	lastBatch       []string
	quoted          []string
	quoteCalls      int
	failOnCall      int
	historyToken    int
}

func (f *fakeKite) Quotes(symbols ...string) (map[string]kiteQuote, error) {
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	f.lastBatch = symbols
	f.quoteCalls++
	if f.quoteCalls == f.failOnCall {
		return nil, errors.New("too many requests")
	}
	f.quoted = append(f.quoted, symbols...)
	out := make(map[string]kiteQuote)
	for _, s := range symbols {
		if q, ok := f.quotes[s]; ok {
			out[s] = q
		}
	}
	return out, nil
}

func (f *fakeKite) Instruments() ([]kiteconnect.Instrument, error) {
	f.instrumentCalls++
	return f.instruments, nil
}

func (f *fakeKite) History(token int, _ string, _, _ time.Time) ([]kiteconnect.HistoricalData, error) {
	f.historyToken = token
	return f.history, nil
}

func day(y int, m time.Month, d int) kitemodels.Time {
	return kitemodels.Time{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func option(sym string, strike float64, kind string, expiry kitemodels.Time) kiteconnect.Instrument {
	return kiteconnect.Instrument{
		Tradingsymbol: sym, Name: "NIFTY", Exchange: "NFO", Segment: "NFO-OPT",
		InstrumentType: kind, StrikePrice: strike, Expiry: expiry, LotSize: 65,
	}
}

func niftyInstruments() []kiteconnect.Instrument {
	near := day(2026, 3, 31)
	far := day(2026, 4, 28)
	past := day(2026, 2, 24)
	return []kiteconnect.Instrument{
		{InstrumentToken: 256265, Tradingsymbol: "NIFTY 50", Name: "NIFTY 50", Exchange: "NSE", Segment: "INDICES"},
		option("NIFTY26MAR25000CE", 25000, "CE", near),
		option("NIFTY26MAR25000PE", 25000, "PE", near),
		option("NIFTY26MAR25050CE", 25050, "CE", near),
		option("NIFTY26MAR26000CE", 26000, "CE", near),
		option("NIFTY26APR25000CE", 25000, "CE", far),
		option("NIFTY26FEB25000CE", 25000, "CE", past),
		{Tradingsymbol: "NIFTY26MARFUT", Name: "NIFTY", Exchange: "NFO", InstrumentType: "FUT", Expiry: near},
		{Tradingsymbol: "NIFTY26APRFUT", Name: "NIFTY", Exchange: "NFO", InstrumentType: "FUT", Expiry: far},
		{Tradingsymbol: "BANKNIFTY26MARFUT", Name: "BANKNIFTY", Exchange: "NFO", InstrumentType: "FUT", Expiry: near},
	}
}

func newFakeKiteSource() (*KiteSource, *fakeKite) {
	api := &fakeKite{
		instruments: niftyInstruments(),
		quotes: map[string]kiteQuote{
			"NSE:NIFTY 50":          {LastPrice: 25010},
			"NFO:NIFTY26MAR25000CE": {LastPrice: 650, Volume: 1000, OI: 5000},
			"NFO:NIFTY26MAR25000PE": {LastPrice: 450, Volume: 900, OI: 4000},
			"NFO:NIFTY26MAR25050CE": {LastPrice: 620, Volume: 0, OI: 0},
			"NFO:NIFTY26MARFUT":     {LastPrice: 25120, Volume: 50000, OI: 120000},
		},
	}
	k := newKiteSourceWithAPI(api, KiteConfig{ChainDepth: 2})
	k.now = func() time.Time { return time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC) }
	return k, api
}

func TestKite_FetchBuildsChainAndFutures(t *testing.T) {
	k, api := newFakeKiteSource()

	data, err := k.Fetch(context.Background(), nifty())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if data.Spot != 25010 {
		t.Errorf("spot = %v", data.Spot)
	}
	if len(data.Calls) != 2 || len(data.Puts) != 1 {
		t.Fatalf("chain = %d calls %d puts, want 2/1", len(data.Calls), len(data.Puts))
	}
	if data.Puts[0].OpenInterest != 4000 || data.Puts[0].Volume != 900 {
		t.Errorf("put row = %+v", data.Puts[0])
	}
	if data.Futures == nil || data.Futures.Symbol != "NIFTY26MARFUT" || data.Futures.Price != 25120 {
		t.Errorf("futures = %+v", data.Futures)
	}
	if data.Expiry.Day() != 31 || data.Expiry.Hour() != 15 || data.Expiry.Minute() != 30 {
		t.Errorf("expiry = %v, want 31st at 15:30 IST", data.Expiry)
	}
	// The 26000 strike is outside two steps of spot and must not be quoted.
	for _, s := range api.lastBatch {
		if s == "NFO:NIFTY26MAR26000CE" {
			t.Error("strike outside chain depth was quoted")
		}
	}
}

func TestKite_InstrumentsCachedPerDay(t *testing.T) {
	k, api := newFakeKiteSource()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := k.Fetch(ctx, nifty()); err != nil {
			t.Fatalf("Fetch: %v", err)
		}
	}
	if api.instrumentCalls != 1 {
		t.Errorf("instrument dumps = %d, want 1", api.instrumentCalls)
	}

	k.now = func() time.Time { return time.Date(2026, 3, 17, 10, 0, 0, 0, time.UTC) }
	if _, err := k.Fetch(ctx, nifty()); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if api.instrumentCalls != 2 {
		t.Errorf("instrument dumps = %d, want 2 on a new day", api.instrumentCalls)
	}
}

func TestKite_Errors(t *testing.T) {
	k, api := newFakeKiteSource()
	api.quoteErr = errors.New("TokenException")
	if _, err := k.Fetch(context.Background(), nifty()); err == nil {
		t.Error("expected quote error")
	}

	unauth := &KiteSource{api: api, now: time.Now}
	if _, err := unauth.Fetch(context.Background(), nifty()); !errors.Is(err, apperrors.ErrNotAuthenticated) {
		t.Errorf("err = %v, want ErrNotAuthenticated", err)
	}

	k2, _ := newFakeKiteSource()
	usd := nifty()
	usd.KiteSymbol = ""
	if _, err := k2.Fetch(context.Background(), usd); !errors.Is(err, apperrors.ErrSymbolNotFound) {
		t.Errorf("err = %v, want ErrSymbolNotFound", err)
	}
}

func TestKite_History(t *testing.T) {
	k, api := newFakeKiteSource()
	api.history = []kiteconnect.HistoricalData{
		{Date: day(2026, 3, 12), Close: 24900, Volume: 10},
		{Date: day(2026, 3, 13), Close: 25000, Volume: 12},
	}

	candles, err := k.History(context.Background(), nifty(), time.Time{}, time.Now())
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if api.historyToken != 256265 {
		t.Errorf("token = %d", api.historyToken)
	}
	if len(candles) != 2 || candles[1].Close != 25000 {
		t.Errorf("candles = %+v", candles)
	}
}

func TestSelectContracts_SkipsExpired(t *testing.T) {
	now := time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC)
	sel := selectContracts(niftyInstruments(), nifty(), 25010, 1, now)

	if sel.optionExpiry.Day() != 31 {
		t.Errorf("option expiry = %v", sel.optionExpiry)
	}
	if len(sel.options) != 3 {
		t.Errorf("options = %d, want 3 (25000 CE/PE, 25050 CE)", len(sel.options))
	}
	if sel.future == nil || sel.future.Tradingsymbol != "NIFTY26MARFUT" {
		t.Errorf("future = %+v", sel.future)
	}
}

func TestKite_SessionRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	now := time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC)

	k := &KiteSource{cfg: KiteConfig{SessionPath: path}, now: func() time.Time { return now }}
	if err := k.saveSession("tok"); err != nil {
		t.Fatalf("saveSession: %v", err)
	}

	loaded := &KiteSource{cfg: KiteConfig{SessionPath: path}, now: func() time.Time { return now.Add(time.Hour) }}
	if err := loaded.loadSession(); err != nil {
		t.Fatalf("loadSession: %v", err)
	}
	if !loaded.Authenticated() {
		t.Error("expected authenticated after load")
	}

	expired := &KiteSource{cfg: KiteConfig{SessionPath: path}, now: func() time.Time { return now.Add(48 * time.Hour) }}
	if err := expired.loadSession(); err == nil {
		t.Error("expected expired session")
	}
}

func TestKite_FullLadderQuotedInBatches(t *testing.T) {
	k, api := newFakeKiteSource()
	k.cfg.ChainDepth = 0
	k.batch = 2
	api.quotes["NFO:NIFTY26MAR26000CE"] = kiteQuote{LastPrice: 180, Volume: 300, OI: 2000}

	data, err := k.Fetch(context.Background(), nifty())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(data.Calls) != 3 || len(data.Puts) != 1 {
		t.Fatalf("chain = %d calls %d puts, want 3/1", len(data.Calls), len(data.Puts))
	}
	if data.Calls[2].Strike != 26000 {
		t.Errorf("far strike row = %+v", data.Calls[2])
	}
	if data.Futures == nil || data.Futures.Price != 25120 {
		t.Errorf("futures = %+v", data.Futures)
	}
	// One spot call plus four options and the future in batches of two.
	if api.quoteCalls != 4 {
		t.Errorf("quote calls = %d, want 4", api.quoteCalls)
	}
	for _, s := range api.quoted {
		if s == "NFO:NIFTY26APR25000CE" || s == "NFO:NIFTY26FEB25000CE" {
			t.Errorf("%s is not on the nearest expiry", s)
		}
	}
}

func TestKite_LaterBatchFailureFailsFetch(t *testing.T) {
	k, api := newFakeKiteSource()
	k.cfg.ChainDepth = 0
	k.batch = 2
	api.failOnCall = 3

	if _, err := k.Fetch(context.Background(), nifty()); err == nil {
		t.Error("a failed chain batch must fail the fetch")
	}
}
