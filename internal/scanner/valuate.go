package scanner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"arb-monitor/internal/arbitrage"
	apperrors "arb-monitor/internal/errors"
	"arb-monitor/internal/marketdata"
	"arb-monitor/internal/models"
	"arb-monitor/internal/pricing"
	"arb-monitor/pkg/utils"
)

// value dispatches one (asset, strategy) pair. Strategies that do not apply
// to the asset's kind return ErrNotApplicable.
func (s *Scanner) value(ctx context.Context, req Request, asset models.AssetSpec, st models.Strategy, snaps map[string]*models.MarketSnapshot) ([]models.ArbitrageOpportunity, error) {
	snap := snaps[asset.Key()]
	if snap == nil {
		return nil, apperrors.NewDataError("scanner", asset.Key(), "no snapshot", apperrors.ErrDataUnavailable)
	}
	ov := req.Overrides[asset.Key()]
	now := s.now()

	switch st {
	case models.StrategyPutCallParity:
		in, err := s.BuildPCP(asset, snap, req.Params, ov, now)
		if err != nil {
			return nil, err
		}
		r, err := arbitrage.ValuePCP(in, s.friction[st])
		if err != nil {
			return nil, err
		}
		return []models.ArbitrageOpportunity{r.Opportunity}, nil

	case models.StrategyCostOfCarry:
		in, err := s.BuildCarry(asset, snap, req.Params, ov, now)
		if err != nil {
			return nil, err
		}
		r, err := arbitrage.ValueCarry(in, s.friction[st])
		if err != nil {
			return nil, err
		}
		return []models.ArbitrageOpportunity{r.Opportunity}, nil

	case models.StrategyInterestRateParity:
		in, err := s.BuildIRP(asset, snap, req.Params, ov, now)
		if err != nil {
			return nil, err
		}
		r, err := arbitrage.ValueIRP(in, s.friction[st])
		if err != nil {
			return nil, err
		}
		return []models.ArbitrageOpportunity{r.Opportunity}, nil

	case models.StrategyStatisticalSpread:
		pairs := s.pairsFor(asset)
		if len(pairs) == 0 {
			return nil, apperrors.ErrNotApplicable
		}
		var out []models.ArbitrageOpportunity
		for _, p := range pairs {
			b, ok := s.registry.Get(p.B)
			if !ok {
				return out, fmt.Errorf("pair %s/%s: %w", p.A, p.B, apperrors.ErrUnknownAsset)
			}
			in := s.BuildSpread(ctx, asset, b, snap, snaps[b.Key()], req.Params)
			r, err := arbitrage.ValueSpread(in, s.friction[st])
			if err != nil {
				return out, err
			}
			out = append(out, r.Opportunity)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%s: %w", st, apperrors.ErrUnknownStrategy)
}

// expiryFor picks the override, then the snapshot's expiry, then the
// monthly expiry rule.
func (s *Scanner) expiryFor(ov Override, snapExpiry time.Time, now time.Time) time.Time {
	switch {
	case !ov.Expiry.IsZero():
		return utils.ExpiryClose(ov.Expiry)
	case !snapExpiry.IsZero():
		return snapExpiry
	}
	return utils.MonthlyExpiry(now, s.cfg.ExpiryWeekday)
}

func yearsOrDefault(now, expiry time.Time, defaultDays int) float64 {
	if t := utils.YearsUntil(now, expiry); t > 0 {
		return t
	}
	return arbitrage.YearsFromDays(float64(defaultDays))
}

// BuildPCP assembles a put-call parity input from a snapshot. Missing or
// stale premiums are replaced by model estimates and the input is flagged.
func (s *Scanner) BuildPCP(asset models.AssetSpec, snap *models.MarketSnapshot, p Params, ov Override, now time.Time) (arbitrage.PCPInput, error) {
	if !asset.HasOptions() {
		return arbitrage.PCPInput{}, apperrors.ErrNotApplicable
	}

	spot := snap.Spot
	strike := ov.Strike
	if strike <= 0 {
		strike = asset.ATMStrike(spot)
	}
	expiry := s.expiryFor(ov, snap.Expiry, now)
	years := yearsOrDefault(now, expiry, p.DefaultDaysToExpiry)
	tolerance := asset.StrikeStep / 2

	call, callLive := ov.CallPremium, ov.CallPremium > 0
	if !callLive {
		if q, ok := snap.Calls.LiveNear(strike, tolerance); ok {
			call, callLive = q.LastPrice, true
		}
	}
	put, putLive := ov.PutPremium, ov.PutPremium > 0
	if !putLive {
		if q, ok := snap.Puts.LiveNear(strike, tolerance); ok {
			put, putLive = q.LastPrice, true
		}
	}

	vol := p.Volatility
	if vol <= 0 && callLive && putLive {
		if iv, err := pricing.ImpliedVolatility(spot, strike, p.RiskFreeRate, years, call, put); err == nil {
			vol = iv
		}
	}

	var notes []string
	if snap.Diagnostic != "" {
		notes = append(notes, snap.Diagnostic)
	}
	if !callLive {
		call = 0
		notes = append(notes, "call premium estimated")
	}
	if !putLive {
		put = 0
		notes = append(notes, "put premium estimated")
	}
	// Estimated legs sit on parity with whatever is live, so a missing quote
	// never shows up as a gap on its own.
	call, put = pricing.EstimatePair(spot, strike, p.RiskFreeRate, years, vol, p.PremiumFallbackFraction, call, put)

	return arbitrage.PCPInput{
		Asset:   asset.Key(),
		Spot:    spot,
		LotSize: asset.LotSize,
		Params: models.TradeParameters{
			Strike:            strike,
			CallPremium:       call,
			PutPremium:        put,
			RiskFreeRate:      p.RiskFreeRate,
			TimeToExpiry:      years,
			Lots:              p.Lots,
			BrokeragePerOrder: p.BrokeragePerOrder,
			MarginPct:         p.MarginPct,
			ThresholdFraction: p.ThresholdFraction,
		},
		Volatility: vol,
		Meta: arbitrage.Meta{
			Provenance: snap.Provenance,
			Diagnostic: strings.Join(notes, "; "),
			Estimated:  !callLive || !putLive,
			Expiry:     expiry,
		},
	}, nil
}

// BuildCarry assembles a cost-of-carry input. Without a futures quote the
// fair value stands in and the input is flagged estimated.
func (s *Scanner) BuildCarry(asset models.AssetSpec, snap *models.MarketSnapshot, p Params, ov Override, now time.Time) (arbitrage.CarryInput, error) {
	if !asset.HasOptions() {
		return arbitrage.CarryInput{}, apperrors.ErrNotApplicable
	}

	var futExpiry time.Time
	if snap.Futures.IsLive() {
		futExpiry = snap.Futures.Expiry
	}
	expiry := s.expiryFor(ov, futExpiry, now)
	days := utils.DaysUntil(now, expiry)
	if days == 0 && utils.YearsUntil(now, expiry) == 0 {
		days = p.DefaultDaysToExpiry
	}

	var notes []string
	if snap.Diagnostic != "" {
		notes = append(notes, snap.Diagnostic)
	}
	futures, estimated := ov.FuturesPrice, false
	if futures <= 0 {
		if snap.Futures.IsLive() {
			futures = snap.Futures.Price
		} else {
			futures = arbitrage.FairFutures(snap.Spot, p.RiskFreeRate, p.CarryRate, arbitrage.YearsFromDays(float64(days)))
			estimated = true
			notes = append(notes, "futures price estimated at fair value")
		}
	}

	return arbitrage.CarryInput{
		Asset:             asset.Key(),
		Spot:              snap.Spot,
		Futures:           futures,
		Rate:              p.RiskFreeRate,
		CarryRate:         p.CarryRate,
		DaysToExpiry:      float64(days),
		Units:             asset.Units(p.Lots),
		BrokeragePerOrder: p.BrokeragePerOrder,
		MarginPct:         p.MarginPct,
		ThresholdFraction: p.ThresholdFraction,
		Meta: arbitrage.Meta{
			Provenance: snap.Provenance,
			Diagnostic: strings.Join(notes, "; "),
			Estimated:  estimated,
			Expiry:     expiry,
		},
	}, nil
}

// BuildIRP assembles a covered interest parity input for a currency pair.
func (s *Scanner) BuildIRP(asset models.AssetSpec, snap *models.MarketSnapshot, p Params, ov Override, now time.Time) (arbitrage.IRPInput, error) {
	if asset.Kind != models.AssetCurrency {
		return arbitrage.IRPInput{}, apperrors.ErrNotApplicable
	}

	var fwdExpiry time.Time
	if snap.Futures.IsLive() {
		fwdExpiry = snap.Futures.Expiry
	}
	maturity := s.expiryFor(ov, fwdExpiry, now)
	if !maturity.After(now) {
		maturity = now.AddDate(0, 0, p.DefaultDaysToExpiry)
	}

	var notes []string
	if snap.Diagnostic != "" {
		notes = append(notes, snap.Diagnostic)
	}
	forward, estimated := ov.FuturesPrice, false
	if forward <= 0 {
		if snap.Futures.IsLive() {
			forward = snap.Futures.Price
		} else {
			years, _ := arbitrage.YearsToMaturity(now, maturity)
			forward = arbitrage.TheoreticalForward(snap.Spot, p.RiskFreeRate, p.ForeignRate, years)
			estimated = true
			notes = append(notes, "forward estimated at parity")
		}
	}

	notional := p.Notional
	if notional <= 0 {
		notional = asset.Units(p.Lots)
	}

	return arbitrage.IRPInput{
		Asset:             asset.Key(),
		Spot:              snap.Spot,
		Forward:           forward,
		DomesticRate:      p.RiskFreeRate,
		ForeignRate:       p.ForeignRate,
		Maturity:          maturity,
		Now:               now,
		Notional:          notional,
		CostPerTxn:        p.BrokeragePerOrder,
		MarginPct:         p.MarginPct,
		ThresholdFraction: p.ThresholdFraction,
		Meta: arbitrage.Meta{
			Provenance: snap.Provenance,
			Diagnostic: strings.Join(notes, "; "),
			Estimated:  estimated,
		},
	}, nil
}

// BuildSpread assembles a spread input from both legs' history and spots.
func (s *Scanner) BuildSpread(ctx context.Context, a, b models.AssetSpec, snapA, snapB *models.MarketSnapshot, p Params) arbitrage.SpreadInput {
	in := arbitrage.SpreadInput{
		AssetA:            a.Key(),
		AssetB:            b.Key(),
		UnitsA:            a.Units(p.Lots),
		UnitsB:            b.Units(p.Lots),
		ZThreshold:        p.ZThreshold,
		BrokeragePerOrder: p.BrokeragePerOrder,
		MarginPct:         p.MarginPct,
		HoldingDays:       p.HoldingDays,
		MinObservations:   p.MinObservations,
		StdFraction:       p.DegenerateStdFraction,
	}

	var notes []string
	// Placeholder spots from a fallback snapshot would be read as a live
	// spread; leaving the price at zero keeps the last close instead.
	if snapA != nil {
		in.Meta.Provenance = snapA.Provenance
		if snapA.Provenance.IsLive() {
			in.PriceA = snapA.Spot
		}
		if snapA.Diagnostic != "" {
			notes = append(notes, snapA.Diagnostic)
		}
	}
	if snapB != nil {
		if !snapB.Provenance.IsLive() {
			in.Meta.Provenance = snapB.Provenance
		} else {
			in.PriceB = snapB.Spot
		}
		if snapB.Diagnostic != "" && (len(notes) == 0 || notes[0] != snapB.Diagnostic) {
			notes = append(notes, snapB.Diagnostic)
		}
	}

	if s.history != nil {
		ha := s.history.Closes(ctx, a, p.LookbackDays)
		hb := s.history.Closes(ctx, b, p.LookbackDays)
		in.SeriesA, in.SeriesB = marketdata.AlignByDate(ha, hb)
		for _, d := range []string{ha.Diagnostic, hb.Diagnostic} {
			if d != "" {
				notes = append(notes, d)
			}
		}
	}
	in.Meta.Diagnostic = strings.Join(notes, "; ")
	return in
}
