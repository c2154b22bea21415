package timeseries

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/marketscope/derivscope/internal/adapters"
)

// HistorySource is the slice of an exchange adapter the seeder needs.
type HistorySource interface {
	Name() string
	OIHistory(ctx context.Context, symbol string, limit int) ([]adapters.OIPoint, error)
	Ticker(ctx context.Context, symbol string) (*adapters.Ticker, error)
}

// Seeder backfills the cache from an exchange's OI history on process start.
// Seeding is an explicit awaited phase: the caller decides whether a failed
// backfill is fatal, instead of a dangling background fill.
type Seeder struct {
	cache  *Cache
	source HistorySource
	limit  int
}

// NewSeeder creates a seeder reading up to limit history points per symbol.
func NewSeeder(cache *Cache, source HistorySource, limit int) *Seeder {
	if limit <= 0 {
		limit = 24
	}
	return &Seeder{cache: cache, source: source, limit: limit}
}

// Seed backfills OI history and the current price for every symbol. A symbol
// whose history fetch fails is skipped and counted; Seed errors only when no
// symbol could be seeded at all.
func (s *Seeder) Seed(ctx context.Context, symbols []string) error {
	seeded := 0
	for _, symbol := range symbols {
		points, err := s.source.OIHistory(ctx, symbol, s.limit)
		if err != nil {
			log.Warn().Err(err).Str("venue", s.source.Name()).Str("symbol", symbol).
				Msg("OI history backfill failed")
			continue
		}
		for _, point := range points {
			s.cache.recordOIAt(symbol, point.OpenInterest, point.OpenInterestValue, point.Timestamp)
		}

		if ticker, err := s.source.Ticker(ctx, symbol); err == nil {
			s.cache.RecordPrice(symbol, ticker.Price)
		}

		seeded++
		log.Debug().Str("symbol", symbol).Int("points", len(points)).Msg("cache seeded")
	}

	if seeded == 0 && len(symbols) > 0 {
		return fmt.Errorf("cache seeding failed for all %d symbols", len(symbols))
	}
	return nil
}

// Refresh records the current ticker for each symbol; intended to run on a
// periodic tick after the initial seed.
func (s *Seeder) Refresh(ctx context.Context, symbols []string) {
	for _, symbol := range symbols {
		ticker, err := s.source.Ticker(ctx, symbol)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("cache refresh failed")
			continue
		}
		s.cache.RecordPrice(symbol, ticker.Price)
		s.cache.RecordOI(symbol, ticker.OpenInterest, ticker.OpenInterestValue)
	}
}
