package squeeze

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/marketscope/derivscope/internal/adapters"
	"github.com/marketscope/derivscope/internal/metrics"
	"github.com/marketscope/derivscope/internal/timeseries"
)

// Scanner batch-evaluates squeeze signals across symbols, merging the
// primary venue's OI/funding/volume data with the secondary venue's
// positioning ratios when it answers.
type Scanner struct {
	engine    *Engine
	primary   adapters.Exchange
	secondary adapters.Exchange
	cache     *timeseries.Cache
	metrics   *metrics.Metrics
}

// NewScanner creates a squeeze scanner. secondary may be nil.
func NewScanner(engine *Engine, primary, secondary adapters.Exchange, cache *timeseries.Cache) *Scanner {
	return &Scanner{
		engine:    engine,
		primary:   primary,
		secondary: secondary,
		cache:     cache,
	}
}

// SetMetrics attaches prometheus instrumentation.
func (s *Scanner) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Scan evaluates every symbol and returns the surviving signals sorted by
// probability descending. Symbols whose primary fetch fails are skipped.
func (s *Scanner) Scan(ctx context.Context, symbols []string) []*Signal {
	var signals []*Signal
	for _, symbol := range symbols {
		signal, err := s.scanOne(ctx, symbol)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("squeeze scan skipped symbol")
			continue
		}
		if signal != nil {
			s.metrics.RecordSqueezeSignal(string(signal.Type), string(signal.Strength))
			signals = append(signals, signal)
		}
	}

	sort.Slice(signals, func(i, j int) bool {
		return signals[i].Probability > signals[j].Probability
	})
	return signals
}

func (s *Scanner) scanOne(ctx context.Context, symbol string) (*Signal, error) {
	ticker, err := s.primary.Ticker(ctx, symbol)
	if err != nil {
		return nil, err
	}

	s.cache.RecordPrice(symbol, ticker.Price)
	s.cache.RecordOI(symbol, ticker.OpenInterest, ticker.OpenInterestValue)

	input := Input{
		Symbol:         symbol,
		Price:          ticker.Price,
		PriceChange24h: ticker.PriceChange24h,
		OIChange24h:    s.cache.OIChange(symbol, 24*time.Hour) / 100,
		FundingRate:    ticker.FundingRate,
		BuyVolume24h:   ticker.BuyVolume24h,
		SellVolume24h:  ticker.SellVolume24h,
	}

	positioning := s.fetchPositioning(ctx, symbol)
	if positioning != nil {
		input.LongRatio = positioning.LongRatio
		input.ShortRatio = positioning.ShortRatio
	}

	return s.engine.Detect(input), nil
}

// fetchPositioning prefers the secondary venue's ratios and falls back to
// the primary; either missing is tolerated.
func (s *Scanner) fetchPositioning(ctx context.Context, symbol string) *adapters.Positioning {
	if s.secondary != nil {
		if positioning, err := s.secondary.Positioning(ctx, symbol); err == nil {
			return positioning
		}
	}
	positioning, err := s.primary.Positioning(ctx, symbol)
	if err != nil {
		log.Debug().Err(err).Str("symbol", symbol).Msg("no positioning data for squeeze scan")
		return nil
	}
	return positioning
}
