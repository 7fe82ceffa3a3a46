package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	apperrors "arb-monitor/internal/errors"
	"arb-monitor/internal/models"
	"arb-monitor/pkg/utils"
)

const (
	kiteSourceName = "kite"
	// Instruments accepted by one /quote call.
	kiteQuoteLimit = 500
)

// KiteConfig holds Kite Connect credentials and chain options.
type KiteConfig struct {
	APIKey      string
	APISecret   string
	AccessToken string
	SessionPath string
	ChainDepth  int // strikes each side of spot; 0 loads the full ladder
	Timeout     time.Duration
}

// kiteQuote is the subset of a Kite quote the snapshot needs.
type kiteQuote struct {
	LastPrice float64
	Volume    int64
	OI        int64
}

// kiteAPI is the slice of the Kite client used here.
type kiteAPI interface {
	Quotes(symbols ...string) (map[string]kiteQuote, error)
	Instruments() ([]kiteconnect.Instrument, error)
	History(token int, interval string, from, to time.Time) ([]kiteconnect.HistoricalData, error)
}

type kiteClient struct {
	c *kiteconnect.Client
}

func (k kiteClient) Quotes(symbols ...string) (map[string]kiteQuote, error) {
	quotes, err := k.c.GetQuote(symbols...)
	if err != nil {
		return nil, err
	}
	out := make(map[string]kiteQuote, len(quotes))
	for sym, q := range quotes {
		out[sym] = kiteQuote{LastPrice: q.LastPrice, Volume: int64(q.Volume), OI: int64(q.OI)}
	}
	return out, nil
}

func (k kiteClient) Instruments() ([]kiteconnect.Instrument, error) {
	return k.c.GetInstruments()
}

func (k kiteClient) History(token int, interval string, from, to time.Time) ([]kiteconnect.HistoricalData, error) {
	return k.c.GetHistoricalData(token, interval, from, to, false, false)
}

// KiteSource is the primary source, backed by Zerodha Kite Connect.
type KiteSource struct {
	cfg    KiteConfig
	client *kiteconnect.Client
	api    kiteAPI
	now    func() time.Time
	batch  int

	mu            sync.Mutex
	authenticated bool
	instruments   []kiteconnect.Instrument
	loadedOn      string
}

// sessionData is the persisted access token.
type sessionData struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// NewKiteSource creates the source. A configured access token wins over a
// saved session; without either the source reports ErrNotAuthenticated.
func NewKiteSource(cfg KiteConfig) *KiteSource {
	client := kiteconnect.New(cfg.APIKey)
	if cfg.Timeout > 0 {
		client.SetHTTPClient(&http.Client{Timeout: cfg.Timeout})
	}
	if cfg.SessionPath == "" {
		home, _ := os.UserHomeDir()
		cfg.SessionPath = filepath.Join(home, ".config", "arb-monitor", "session.json")
	}

	k := &KiteSource{cfg: cfg, client: client, api: kiteClient{c: client}, now: time.Now, batch: kiteQuoteLimit}
	if cfg.AccessToken != "" {
		k.setToken(cfg.AccessToken)
	} else {
		_ = k.loadSession()
	}
	return k
}

func newKiteSourceWithAPI(api kiteAPI, cfg KiteConfig) *KiteSource {
	return &KiteSource{cfg: cfg, api: api, now: time.Now, batch: kiteQuoteLimit, authenticated: true}
}

// Name implements Source.
func (k *KiteSource) Name() string { return kiteSourceName }

// Authenticated reports whether an access token is loaded.
func (k *KiteSource) Authenticated() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.authenticated
}

// LoginURL returns the Kite OAuth login URL.
func (k *KiteSource) LoginURL() string {
	if k.client == nil {
		return ""
	}
	return k.client.GetLoginURL()
}

// CompleteLogin exchanges a request token for an access token and saves it.
func (k *KiteSource) CompleteLogin(requestToken string) error {
	if k.client == nil {
		return apperrors.ErrNotAuthenticated
	}
	session, err := k.client.GenerateSession(requestToken, k.cfg.APISecret)
	if err != nil {
		return fmt.Errorf("failed to generate session: %w", err)
	}
	k.setToken(session.AccessToken)
	return k.saveSession(session.AccessToken)
}

func (k *KiteSource) setToken(token string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.client != nil {
		k.client.SetAccessToken(token)
	}
	k.authenticated = true
}

func (k *KiteSource) loadSession() error {
	data, err := os.ReadFile(k.cfg.SessionPath)
	if err != nil {
		return err
	}
	var session sessionData
	if err := json.Unmarshal(data, &session); err != nil {
		return err
	}
	// Kite tokens expire at 6 AM IST the next day.
	if k.now().After(session.ExpiresAt) {
		return fmt.Errorf("session expired")
	}
	k.setToken(session.AccessToken)
	return nil
}

func (k *KiteSource) saveSession(token string) error {
	if err := os.MkdirAll(filepath.Dir(k.cfg.SessionPath), 0700); err != nil {
		return err
	}
	now := k.now().In(utils.IndiaLocation)
	session := sessionData{
		AccessToken: token,
		ExpiresAt:   time.Date(now.Year(), now.Month(), now.Day()+1, 6, 0, 0, 0, utils.IndiaLocation),
	}
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return os.WriteFile(k.cfg.SessionPath, data, 0600)
}

// Fetch implements Source.
func (k *KiteSource) Fetch(ctx context.Context, asset models.AssetSpec) (*models.SnapshotData, error) {
	if !k.Authenticated() {
		return nil, apperrors.NewDataError(kiteSourceName, asset.Key(), "no access token", apperrors.ErrNotAuthenticated)
	}
	if asset.KiteSymbol == "" {
		return nil, apperrors.NewDataError(kiteSourceName, asset.Key(), "no kite spot symbol", apperrors.ErrSymbolNotFound)
	}

	quotes, err := runCtx(ctx, func() (map[string]kiteQuote, error) { return k.api.Quotes(asset.KiteSymbol) })
	if err != nil {
		return nil, apperrors.NewDataError(kiteSourceName, asset.Key(), "spot quote failed", err)
	}
	q, ok := quotes[asset.KiteSymbol]
	if !ok || q.LastPrice <= 0 {
		return nil, apperrors.NewDataError(kiteSourceName, asset.Key(), "spot quote missing", apperrors.ErrDataUnavailable)
	}

	data := &models.SnapshotData{Spot: q.LastPrice}
	if asset.KiteName == "" {
		return data, nil
	}

	instruments, err := k.loadInstruments(ctx)
	if err != nil {
		return nil, apperrors.NewDataError(kiteSourceName, asset.Key(), "instrument dump failed", err)
	}

	sel := selectContracts(instruments, asset, data.Spot, k.cfg.ChainDepth, k.now())
	symbols := sel.symbols(asset.KiteExchange)
	if len(symbols) == 0 {
		return data, nil
	}

	legQuotes, err := k.quoteAll(ctx, symbols)
	if err != nil {
		return nil, apperrors.NewDataError(kiteSourceName, asset.Key(), "chain quote failed", err)
	}

	prefix := string(asset.KiteExchange) + ":"
	for _, inst := range sel.options {
		lq, ok := legQuotes[prefix+inst.Tradingsymbol]
		if !ok {
			continue
		}
		row := models.OptionQuote{Strike: inst.StrikePrice, LastPrice: lq.LastPrice, Volume: lq.Volume, OpenInterest: lq.OI}
		if inst.InstrumentType == "CE" {
			data.Calls = append(data.Calls, row)
		} else {
			data.Puts = append(data.Puts, row)
		}
	}
	if len(data.Calls) > 0 || len(data.Puts) > 0 {
		data.Expiry = utils.ExpiryClose(sel.optionExpiry)
	}
	if sel.future != nil {
		if fq, ok := legQuotes[prefix+sel.future.Tradingsymbol]; ok && fq.LastPrice > 0 {
			data.Futures = &models.FuturesQuote{
				Symbol:       sel.future.Tradingsymbol,
				Price:        fq.LastPrice,
				Expiry:       utils.ExpiryClose(sel.future.Expiry.Time),
				Volume:       fq.Volume,
				OpenInterest: fq.OI,
			}
		}
	}
	return data, nil
}

// History implements HistorySource using the underlying's daily candles.
func (k *KiteSource) History(ctx context.Context, asset models.AssetSpec, from, to time.Time) ([]models.Candle, error) {
	if !k.Authenticated() {
		return nil, apperrors.ErrNotAuthenticated
	}
	exchange, symbol, ok := strings.Cut(asset.KiteSymbol, ":")
	if !ok {
		return nil, apperrors.NewDataError(kiteSourceName, asset.Key(), "no kite spot symbol", apperrors.ErrSymbolNotFound)
	}

	instruments, err := k.loadInstruments(ctx)
	if err != nil {
		return nil, err
	}
	token := 0
	for _, inst := range instruments {
		if inst.Exchange == exchange && inst.Tradingsymbol == symbol {
			token = inst.InstrumentToken
			break
		}
	}
	if token == 0 {
		return nil, apperrors.NewDataError(kiteSourceName, asset.Key(), "instrument token not found", apperrors.ErrSymbolNotFound)
	}

	data, err := runCtx(ctx, func() ([]kiteconnect.HistoricalData, error) { return k.api.History(token, "day", from, to) })
	if err != nil {
		return nil, apperrors.NewDataError(kiteSourceName, asset.Key(), "historical data failed", err)
	}
	candles := make([]models.Candle, len(data))
	for i, d := range data {
		candles[i] = models.Candle{
			Timestamp: d.Date.Time,
			Open:      d.Open,
			High:      d.High,
			Low:       d.Low,
			Close:     d.Close,
			Volume:    int64(d.Volume),
		}
	}
	return candles, nil
}

// quoteAll quotes symbols in batches no larger than the /quote limit.
func (k *KiteSource) quoteAll(ctx context.Context, symbols []string) (map[string]kiteQuote, error) {
	size := k.batch
	if size <= 0 {
		size = kiteQuoteLimit
	}
	out := make(map[string]kiteQuote, len(symbols))
	for start := 0; start < len(symbols); start += size {
		chunk := symbols[start:min(start+size, len(symbols))]
		quotes, err := runCtx(ctx, func() (map[string]kiteQuote, error) { return k.api.Quotes(chunk...) })
		if err != nil {
			return nil, err
		}
		for sym, q := range quotes {
			out[sym] = q
		}
	}
	return out, nil
}

// loadInstruments returns the instrument dump, refreshed once per IST day.
func (k *KiteSource) loadInstruments(ctx context.Context) ([]kiteconnect.Instrument, error) {
	today := k.now().In(utils.IndiaLocation).Format("2006-01-02")

	k.mu.Lock()
	if k.loadedOn == today && k.instruments != nil {
		cached := k.instruments
		k.mu.Unlock()
		return cached, nil
	}
	k.mu.Unlock()

	instruments, err := runCtx(ctx, k.api.Instruments)
	if err != nil {
		return nil, err
	}

	k.mu.Lock()
	k.instruments = instruments
	k.loadedOn = today
	k.mu.Unlock()
	return instruments, nil
}

// contractSelection is the set of derivative contracts quoted for one asset.
type contractSelection struct {
	optionExpiry time.Time
	options      []kiteconnect.Instrument
	future       *kiteconnect.Instrument
}

func (s contractSelection) symbols(exchange models.Exchange) []string {
	prefix := string(exchange) + ":"
	out := make([]string, 0, len(s.options)+1)
	for _, inst := range s.options {
		out = append(out, prefix+inst.Tradingsymbol)
	}
	if s.future != nil {
		out = append(out, prefix+s.future.Tradingsymbol)
	}
	return out
}

// selectContracts picks the nearest unexpired option expiry and the nearest
// unexpired future. depth > 0 keeps only strikes within depth steps of spot;
// otherwise the whole ladder for that expiry is kept.
func selectContracts(instruments []kiteconnect.Instrument, asset models.AssetSpec, spot float64, depth int, now time.Time) contractSelection {
	today := now.In(utils.IndiaLocation).Format("2006-01-02")
	live := func(inst kiteconnect.Instrument) bool {
		return inst.Name == asset.KiteName &&
			inst.Exchange == string(asset.KiteExchange) &&
			!inst.Expiry.Time.IsZero() &&
			inst.Expiry.Time.Format("2006-01-02") >= today
	}

	var sel contractSelection
	var optionExpiry string
	for i := range instruments {
		inst := instruments[i]
		if !live(inst) {
			continue
		}
		switch inst.InstrumentType {
		case "FUT":
			if sel.future == nil || inst.Expiry.Time.Before(sel.future.Expiry.Time) {
				sel.future = &instruments[i]
			}
		case "CE", "PE":
			day := inst.Expiry.Time.Format("2006-01-02")
			if optionExpiry == "" || day < optionExpiry {
				optionExpiry = day
				sel.optionExpiry = inst.Expiry.Time
			}
		}
	}
	if optionExpiry == "" {
		return sel
	}

	window := math.Inf(1)
	if depth > 0 && asset.StrikeStep > 0 {
		window = float64(depth)*asset.StrikeStep + asset.StrikeStep/2
	}
	for _, inst := range instruments {
		if !live(inst) || (inst.InstrumentType != "CE" && inst.InstrumentType != "PE") {
			continue
		}
		if inst.Expiry.Time.Format("2006-01-02") != optionExpiry {
			continue
		}
		if math.Abs(inst.StrikePrice-spot) > window {
			continue
		}
		sel.options = append(sel.options, inst)
	}
	sort.Slice(sel.options, func(i, j int) bool {
		if sel.options[i].StrikePrice != sel.options[j].StrikePrice {
			return sel.options[i].StrikePrice < sel.options[j].StrikePrice
		}
		return sel.options[i].InstrumentType < sel.options[j].InstrumentType
	})
	return sel
}
