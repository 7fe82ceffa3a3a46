package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	apperrors "arb-monitor/internal/errors"
	"arb-monitor/internal/models"
	"arb-monitor/pkg/utils"
)

const (
	yahooSourceName     = "yahoo"
	DefaultYahooBaseURL = "https://query2.finance.yahoo.com"
)

// YahooConfig configures the Yahoo Finance source.
type YahooConfig struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	UserAgent         string
}

// YahooSource is the secondary source, reading Yahoo Finance JSON endpoints.
type YahooSource struct {
	client  *resty.Client
	limiter *rate.Limiter
}

// NewYahooSource creates the source.
func NewYahooSource(cfg YahooConfig) *YahooSource {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultYahooBaseURL
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 4
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (arb-monitor)"
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", cfg.UserAgent)
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	return &YahooSource{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}
}

// Name implements Source.
func (y *YahooSource) Name() string { return yahooSourceName }

type yahooOptionsResponse struct {
	OptionChain struct {
		Result []struct {
			Quote struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"quote"`
			ExpirationDates []int64 `json:"expirationDates"`
			Options         []struct {
				ExpirationDate int64         `json:"expirationDate"`
				Calls          []yahooOption `json:"calls"`
				Puts           []yahooOption `json:"puts"`
			} `json:"options"`
		} `json:"result"`
		Error *yahooError `json:"error"`
	} `json:"optionChain"`
}

type yahooOption struct {
	Strike       float64 `json:"strike"`
	LastPrice    float64 `json:"lastPrice"`
	OpenInterest int64   `json:"openInterest"`
	Volume       int64   `json:"volume"`
}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *yahooError `json:"error"`
	} `json:"chart"`
}

type yahooError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Fetch implements Source. The options endpoint supplies spot and the chain;
// when it has nothing the chart endpoint supplies spot only.
func (y *YahooSource) Fetch(ctx context.Context, asset models.AssetSpec) (*models.SnapshotData, error) {
	if asset.YahooTicker == "" {
		return nil, apperrors.NewDataError(yahooSourceName, asset.Key(), "no yahoo ticker", apperrors.ErrSymbolNotFound)
	}

	if asset.HasOptions() {
		data, err := y.fetchOptions(ctx, asset)
		if err == nil && data.Spot > 0 {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, apperrors.NewDataError(yahooSourceName, asset.Key(), "options request", ctx.Err())
		}
	}

	spot, err := y.fetchSpot(ctx, asset)
	if err != nil {
		return nil, err
	}
	return &models.SnapshotData{Spot: spot}, nil
}

func (y *YahooSource) fetchOptions(ctx context.Context, asset models.AssetSpec) (*models.SnapshotData, error) {
	var payload yahooOptionsResponse
	if err := y.get(ctx, "/v7/finance/options/{ticker}", asset, nil, &payload); err != nil {
		return nil, err
	}
	if e := payload.OptionChain.Error; e != nil {
		return nil, apperrors.NewDataError(yahooSourceName, asset.Key(), e.Description, apperrors.ErrDataUnavailable)
	}
	if len(payload.OptionChain.Result) == 0 {
		return nil, apperrors.NewDataError(yahooSourceName, asset.Key(), "empty options payload", apperrors.ErrDataUnavailable)
	}

	res := payload.OptionChain.Result[0]
	data := &models.SnapshotData{Spot: res.Quote.RegularMarketPrice}
	if len(res.Options) == 0 {
		return data, nil
	}

	opt := res.Options[0]
	expiry := opt.ExpirationDate
	if expiry == 0 && len(res.ExpirationDates) > 0 {
		expiry = res.ExpirationDates[0]
	}
	for _, c := range opt.Calls {
		data.Calls = append(data.Calls, models.OptionQuote(c))
	}
	for _, p := range opt.Puts {
		data.Puts = append(data.Puts, models.OptionQuote(p))
	}
	if expiry > 0 && (len(data.Calls) > 0 || len(data.Puts) > 0) {
		data.Expiry = utils.ExpiryClose(time.Unix(expiry, 0).UTC())
	}
	return data, nil
}

func (y *YahooSource) fetchSpot(ctx context.Context, asset models.AssetSpec) (float64, error) {
	var payload yahooChartResponse
	params := map[string]string{"interval": "1d", "range": "1d"}
	if err := y.get(ctx, "/v8/finance/chart/{ticker}", asset, params, &payload); err != nil {
		return 0, err
	}
	if e := payload.Chart.Error; e != nil {
		return 0, apperrors.NewDataError(yahooSourceName, asset.Key(), e.Description, apperrors.ErrDataUnavailable)
	}
	if len(payload.Chart.Result) == 0 || payload.Chart.Result[0].Meta.RegularMarketPrice <= 0 {
		return 0, apperrors.NewDataError(yahooSourceName, asset.Key(), "empty chart payload", apperrors.ErrDataUnavailable)
	}
	return payload.Chart.Result[0].Meta.RegularMarketPrice, nil
}

// History implements HistorySource with daily bars from the chart endpoint.
// Bars with a null close are skipped.
func (y *YahooSource) History(ctx context.Context, asset models.AssetSpec, from, to time.Time) ([]models.Candle, error) {
	if asset.YahooTicker == "" {
		return nil, apperrors.NewDataError(yahooSourceName, asset.Key(), "no yahoo ticker", apperrors.ErrSymbolNotFound)
	}

	var payload yahooChartResponse
	params := map[string]string{
		"interval": "1d",
		"period1":  strconv.FormatInt(from.Unix(), 10),
		"period2":  strconv.FormatInt(to.Unix(), 10),
	}
	if err := y.get(ctx, "/v8/finance/chart/{ticker}", asset, params, &payload); err != nil {
		return nil, err
	}
	if len(payload.Chart.Result) == 0 {
		return nil, apperrors.NewDataError(yahooSourceName, asset.Key(), "empty chart payload", apperrors.ErrDataUnavailable)
	}

	res := payload.Chart.Result[0]
	if len(res.Indicators.Quote) == 0 {
		return nil, nil
	}
	q := res.Indicators.Quote[0]
	at := func(s []*float64, i int) float64 {
		if i < len(s) && s[i] != nil {
			return *s[i]
		}
		return 0
	}

	var candles []models.Candle
	for i, ts := range res.Timestamp {
		if i >= len(q.Close) || q.Close[i] == nil {
			continue
		}
		c := models.Candle{
			Timestamp: time.Unix(ts, 0).UTC(),
			Open:      at(q.Open, i),
			High:      at(q.High, i),
			Low:       at(q.Low, i),
			Close:     *q.Close[i],
		}
		if i < len(q.Volume) && q.Volume[i] != nil {
			c.Volume = *q.Volume[i]
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func (y *YahooSource) get(ctx context.Context, path string, asset models.AssetSpec, params map[string]string, out any) error {
	if err := y.limiter.Wait(ctx); err != nil {
		return apperrors.NewDataError(yahooSourceName, asset.Key(), "rate limiter", err)
	}

	req := y.client.R().
		SetContext(ctx).
		SetPathParam("ticker", asset.YahooTicker)
	if params != nil {
		req.SetQueryParams(params)
	}

	resp, err := req.Get(path)
	if err != nil {
		return apperrors.NewDataError(yahooSourceName, asset.Key(), "request failed", err)
	}
	if resp.IsError() {
		return apperrors.NewDataError(yahooSourceName, asset.Key(), fmt.Sprintf("http %d", resp.StatusCode()), apperrors.ErrDataUnavailable)
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return apperrors.NewDataError(yahooSourceName, asset.Key(), "decode failed", err)
	}
	return nil
}
