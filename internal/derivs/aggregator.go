// Package derivs merges per-venue derivatives snapshots into cross-exchange
// aggregates: open interest and funding, liquidation windows and clusters,
// and the trapped-side market pressure read built on both.
package derivs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/marketscope/derivscope/internal/adapters"
	"github.com/marketscope/derivscope/internal/metrics"
	"github.com/marketscope/derivscope/internal/timeseries"
)

// FundingBias classifies which side is paying funding.
type FundingBias string

const (
	FundingLongPaying  FundingBias = "long_paying"
	FundingShortPaying FundingBias = "short_paying"
	FundingNeutral     FundingBias = "neutral"
)

// FundingHeat classifies how stretched the weighted funding rate is.
type FundingHeat string

const (
	HeatExtreme  FundingHeat = "extreme"
	HeatElevated FundingHeat = "elevated"
	HeatNormal   FundingHeat = "normal"
)

// PositionBias classifies the cross-venue account positioning skew.
type PositionBias string

const (
	PositionLongHeavy  PositionBias = "long_heavy"
	PositionShortHeavy PositionBias = "short_heavy"
	PositionBalanced   PositionBias = "balanced"
)

// OITrend classifies the 1h open-interest direction.
type OITrend string

const (
	TrendExpanding   OITrend = "expanding"
	TrendContracting OITrend = "contracting"
	TrendStable      OITrend = "stable"
)

const (
	fundingBiasThreshold    = 0.0001
	fundingExtremeThreshold = 0.0003
	positionBiasThreshold   = 0.55
	oiTrendThreshold        = 2.0 // percent over 1h
)

// VenueDerivatives is the per-exchange slice of an aggregate.
type VenueDerivatives struct {
	Venue             string  `json:"venue"`
	Price             float64 `json:"price"`
	OpenInterest      float64 `json:"open_interest"`
	OpenInterestValue float64 `json:"open_interest_value"`
	FundingRate       float64 `json:"funding_rate"`
	Volume24h         float64 `json:"volume_24h"` // quote USD
	LongRatio         float64 `json:"long_ratio"`
	ShortRatio        float64 `json:"short_ratio"`
	HasPositioning    bool    `json:"has_positioning"`
}

// Aggregated is the cross-exchange derivatives view, recomputed per request.
type Aggregated struct {
	Symbol          string             `json:"symbol"`
	TotalOI         float64            `json:"total_oi"`
	TotalOIValue    float64            `json:"total_oi_value"`
	OIChange1h      float64            `json:"oi_change_1h"`
	OIChange24h     float64            `json:"oi_change_24h"`
	OITrend         OITrend            `json:"oi_trend"`
	WeightedFunding float64            `json:"weighted_funding"`
	FundingBias     FundingBias        `json:"funding_bias"`
	FundingHeat     FundingHeat        `json:"funding_heat"`
	AvgLongRatio    float64            `json:"avg_long_ratio"`
	AvgShortRatio   float64            `json:"avg_short_ratio"`
	PositionBias    PositionBias       `json:"position_bias"`
	Exchanges       []VenueDerivatives `json:"exchanges"`
	Timestamp       time.Time          `json:"timestamp"`
}

// Aggregator fans out to the configured exchanges and merges whatever subset
// answered. Individual venue failures are logged and dropped, never
// propagated.
type Aggregator struct {
	exchanges []adapters.Exchange
	cache     *timeseries.Cache
	metrics   *metrics.Metrics
}

// NewAggregator creates an aggregator over the given venues.
func NewAggregator(exchanges []adapters.Exchange, cache *timeseries.Cache) *Aggregator {
	return &Aggregator{exchanges: exchanges, cache: cache}
}

// SetMetrics attaches prometheus instrumentation.
func (a *Aggregator) SetMetrics(m *metrics.Metrics) {
	a.metrics = m
}

// Aggregate fetches all venues in parallel and merges the successful subset.
// It errors only when zero venues answered.
func (a *Aggregator) Aggregate(ctx context.Context, symbol string) (*Aggregated, error) {
	venues := a.fetchVenues(ctx, symbol)
	if len(venues) == 0 {
		return nil, fmt.Errorf("no venue answered for %s", symbol)
	}

	agg := &Aggregated{
		Symbol:    symbol,
		Exchanges: venues,
		Timestamp: time.Now(),
	}

	totalVolume := 0.0
	weightedFundingSum := 0.0
	ratioVenues := 0
	for _, venue := range venues {
		agg.TotalOI += venue.OpenInterest
		agg.TotalOIValue += venue.OpenInterestValue
		weightedFundingSum += venue.FundingRate * venue.Volume24h
		totalVolume += venue.Volume24h
		if venue.HasPositioning {
			agg.AvgLongRatio += venue.LongRatio
			agg.AvgShortRatio += venue.ShortRatio
			ratioVenues++
		}
	}
	if totalVolume > 0 {
		agg.WeightedFunding = weightedFundingSum / totalVolume
	}
	if ratioVenues > 0 {
		agg.AvgLongRatio /= float64(ratioVenues)
		agg.AvgShortRatio /= float64(ratioVenues)
	}

	agg.FundingBias = classifyFundingBias(agg.WeightedFunding)
	agg.FundingHeat = classifyFundingHeat(agg.WeightedFunding)
	agg.PositionBias = classifyPositionBias(agg.AvgLongRatio, agg.AvgShortRatio)

	// Write the fresh totals before reading deltas back: this is the path
	// that feeds future delta queries.
	a.cache.RecordOI(symbol, agg.TotalOI, agg.TotalOIValue)
	agg.OIChange1h = a.cache.OIChange(symbol, time.Hour)
	agg.OIChange24h = a.cache.OIChange(symbol, 24*time.Hour)
	agg.OITrend = classifyOITrend(agg.OIChange1h)

	return agg, nil
}

// fetchVenues runs the fan-out: one goroutine per exchange, results
// collected under a mutex, failures demoted to warnings.
func (a *Aggregator) fetchVenues(ctx context.Context, symbol string) []VenueDerivatives {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		venues []VenueDerivatives
	)

	for _, exchange := range a.exchanges {
		wg.Add(1)
		go func(ex adapters.Exchange) {
			defer wg.Done()

			ticker, err := ex.Ticker(ctx, symbol)
			a.metrics.RecordVenueRequest(ex.Name(), "ticker", err)
			if err != nil {
				log.Warn().Err(err).Str("venue", ex.Name()).Str("symbol", symbol).
					Msg("venue ticker failed, dropping from aggregate")
				return
			}

			venue := VenueDerivatives{
				Venue:             ex.Name(),
				Price:             ticker.Price,
				OpenInterest:      ticker.OpenInterest,
				OpenInterestValue: ticker.OpenInterestValue,
				FundingRate:       ticker.FundingRate,
				Volume24h:         ticker.QuoteVolume24h,
			}

			positioning, err := ex.Positioning(ctx, symbol)
			a.metrics.RecordVenueRequest(ex.Name(), "positioning", err)
			if err != nil {
				log.Debug().Err(err).Str("venue", ex.Name()).Str("symbol", symbol).
					Msg("positioning unavailable")
			} else {
				venue.LongRatio = positioning.LongRatio
				venue.ShortRatio = positioning.ShortRatio
				venue.HasPositioning = true
			}

			mu.Lock()
			venues = append(venues, venue)
			mu.Unlock()
		}(exchange)
	}

	wg.Wait()
	return venues
}

func classifyFundingBias(funding float64) FundingBias {
	switch {
	case funding > fundingBiasThreshold:
		return FundingLongPaying
	case funding < -fundingBiasThreshold:
		return FundingShortPaying
	default:
		return FundingNeutral
	}
}

func classifyFundingHeat(funding float64) FundingHeat {
	abs := funding
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs > fundingExtremeThreshold:
		return HeatExtreme
	case abs > fundingBiasThreshold:
		return HeatElevated
	default:
		return HeatNormal
	}
}

func classifyPositionBias(longRatio, shortRatio float64) PositionBias {
	switch {
	case longRatio > positionBiasThreshold:
		return PositionLongHeavy
	case shortRatio > positionBiasThreshold:
		return PositionShortHeavy
	default:
		return PositionBalanced
	}
}

func classifyOITrend(change1h float64) OITrend {
	switch {
	case change1h > oiTrendThreshold:
		return TrendExpanding
	case change1h < -oiTrendThreshold:
		return TrendContracting
	default:
		return TrendStable
	}
}
