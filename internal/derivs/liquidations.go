package derivs

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/marketscope/derivscope/internal/adapters"
)

// Pressure classifies which side is absorbing liquidation pain.
type Pressure string

const (
	PressureLongPain  Pressure = "long_pain"
	PressureShortPain Pressure = "short_pain"
	PressureBalanced  Pressure = "balanced"
)

const (
	longPainShare  = 0.65
	shortPainShare = 0.35

	largeLiquidationUSD = 100_000
	recentLargeCap      = 10

	clusterWidthFrac = 0.01 // bucket width as a fraction of current price
	clusterCap       = 20
)

// Cluster is a price-bucketed aggregate of liquidation events.
type Cluster struct {
	PriceLevel        float64 `json:"price_level"`
	PriceLevelPercent float64 `json:"price_level_percent"` // signed distance from current price
	LongCount         int     `json:"long_count"`
	ShortCount        int     `json:"short_count"`
	LongValue         float64 `json:"long_value"`
	ShortValue        float64 `json:"short_value"`
	TotalValue        float64 `json:"total_value"`
	Intensity         float64 `json:"intensity"` // 0-1 relative to the largest bucket
}

// AggregatedLiquidations is the merged cross-venue liquidation view.
type AggregatedLiquidations struct {
	Symbol            string                      `json:"symbol"`
	LongLiqs1h        int                         `json:"long_liqs_1h"`
	ShortLiqs1h       int                         `json:"short_liqs_1h"`
	LongLiqs24h       int                         `json:"long_liqs_24h"`
	ShortLiqs24h      int                         `json:"short_liqs_24h"`
	LongValue1h       float64                     `json:"long_value_1h"`
	ShortValue1h      float64                     `json:"short_value_1h"`
	LongValue24h      float64                     `json:"long_value_24h"`
	ShortValue24h     float64                     `json:"short_value_24h"`
	Pressure          Pressure                    `json:"pressure"`
	PressureIntensity float64                     `json:"pressure_intensity"` // 0-100
	RecentLarge       []adapters.LiquidationEvent `json:"recent_large"`
	Clusters          []Cluster                   `json:"clusters"`
}

// LiquidationAggregator merges liquidation feeds across venues.
type LiquidationAggregator struct {
	exchanges []adapters.Exchange
	now       func() time.Time
}

// NewLiquidationAggregator creates a liquidation aggregator.
func NewLiquidationAggregator(exchanges []adapters.Exchange) *LiquidationAggregator {
	return &LiquidationAggregator{exchanges: exchanges, now: time.Now}
}

// Aggregate merges all venues' events from the last 24h into windows,
// pressure classification and price clusters. Venue failures drop that
// venue; an empty merge yields a zeroed, balanced aggregate.
func (la *LiquidationAggregator) Aggregate(ctx context.Context, symbol string, currentPrice float64) *AggregatedLiquidations {
	now := la.now()
	events := la.fetchEvents(ctx, symbol, now.Add(-24*time.Hour))

	agg := &AggregatedLiquidations{Symbol: symbol, Pressure: PressureBalanced}
	hourAgo := now.Add(-time.Hour)

	for _, event := range events {
		value := event.ValueUSD()
		if event.Side == adapters.SideLong {
			agg.LongLiqs24h++
			agg.LongValue24h += value
			if event.Timestamp.After(hourAgo) {
				agg.LongLiqs1h++
				agg.LongValue1h += value
			}
		} else {
			agg.ShortLiqs24h++
			agg.ShortValue24h += value
			if event.Timestamp.After(hourAgo) {
				agg.ShortLiqs1h++
				agg.ShortValue1h += value
			}
		}
	}

	agg.Pressure, agg.PressureIntensity = classifyPressure(agg.LongValue24h, agg.ShortValue24h)
	agg.RecentLarge = filterRecentLarge(events, hourAgo)
	agg.Clusters = buildClusters(events, currentPrice)
	return agg
}

func (la *LiquidationAggregator) fetchEvents(ctx context.Context, symbol string, since time.Time) []adapters.LiquidationEvent {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		merged []adapters.LiquidationEvent
	)

	for _, exchange := range la.exchanges {
		wg.Add(1)
		go func(ex adapters.Exchange) {
			defer wg.Done()
			events, err := ex.Liquidations(ctx, symbol, since)
			if err != nil {
				log.Warn().Err(err).Str("venue", ex.Name()).Str("symbol", symbol).
					Msg("liquidation feed failed, dropping venue")
				return
			}
			mu.Lock()
			merged = append(merged, events...)
			mu.Unlock()
		}(exchange)
	}

	wg.Wait()
	return merged
}

// classifyPressure maps the long share of 24h liquidation value onto the
// pain classification, with intensity scaling linearly from the 50% midpoint
// to 100 at the 65/35 extremes.
func classifyPressure(longValue, shortValue float64) (Pressure, float64) {
	total := longValue + shortValue
	if total == 0 {
		return PressureBalanced, 0
	}

	longShare := longValue / total
	intensity := math.Min(100, math.Abs(longShare-0.5)/(longPainShare-0.5)*100)

	switch {
	case longShare > longPainShare:
		return PressureLongPain, intensity
	case longShare < shortPainShare:
		return PressureShortPain, intensity
	default:
		return PressureBalanced, intensity
	}
}

func filterRecentLarge(events []adapters.LiquidationEvent, hourAgo time.Time) []adapters.LiquidationEvent {
	var large []adapters.LiquidationEvent
	for _, event := range events {
		if event.ValueUSD() >= largeLiquidationUSD && event.Timestamp.After(hourAgo) {
			large = append(large, event)
		}
	}
	sort.Slice(large, func(i, j int) bool {
		return large[i].Timestamp.After(large[j].Timestamp)
	})
	if len(large) > recentLargeCap {
		large = large[:recentLargeCap]
	}
	return large
}

// buildClusters buckets events into 1%-of-price bins. Returns an empty list
// when price is unknown or no events exist.
func buildClusters(events []adapters.LiquidationEvent, currentPrice float64) []Cluster {
	if currentPrice <= 0 || len(events) == 0 {
		return []Cluster{}
	}

	width := currentPrice * clusterWidthFrac
	buckets := make(map[int]*Cluster)
	for _, event := range events {
		key := int(math.Round(event.Price / width))
		bucket, ok := buckets[key]
		if !ok {
			level := float64(key) * width
			bucket = &Cluster{
				PriceLevel:        level,
				PriceLevelPercent: (level - currentPrice) / currentPrice * 100,
			}
			buckets[key] = bucket
		}
		value := event.ValueUSD()
		if event.Side == adapters.SideLong {
			bucket.LongCount++
			bucket.LongValue += value
		} else {
			bucket.ShortCount++
			bucket.ShortValue += value
		}
		bucket.TotalValue += value
	}

	maxValue := 0.0
	clusters := make([]Cluster, 0, len(buckets))
	for _, bucket := range buckets {
		if bucket.TotalValue > maxValue {
			maxValue = bucket.TotalValue
		}
		clusters = append(clusters, *bucket)
	}
	if maxValue > 0 {
		for i := range clusters {
			clusters[i].Intensity = clusters[i].TotalValue / maxValue
		}
	}

	sort.Slice(clusters, func(i, j int) bool {
		return clusters[i].TotalValue > clusters[j].TotalValue
	})
	if len(clusters) > clusterCap {
		clusters = clusters[:clusterCap]
	}
	return clusters
}
