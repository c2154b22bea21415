package derivs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketscope/derivscope/internal/adapters"
)

func liquidation(side adapters.Side, price, quantity float64, age time.Duration, now time.Time) adapters.LiquidationEvent {
	return adapters.LiquidationEvent{
		Symbol:    "BTCUSDT",
		Venue:     "binance",
		Side:      side,
		Price:     price,
		Quantity:  quantity,
		Timestamp: now.Add(-age),
	}
}

func newTestLiquidationAggregator(now time.Time, exchanges ...adapters.Exchange) *LiquidationAggregator {
	la := NewLiquidationAggregator(exchanges)
	la.now = func() time.Time { return now }
	return la
}

func TestAggregateSplitsHourAndDayWindows(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	venue := adapters.NewFakeExchange("binance")
	venue.LiquidationFeed = []adapters.LiquidationEvent{
		liquidation(adapters.SideLong, 50000, 1, 30*time.Minute, now),
		liquidation(adapters.SideLong, 50000, 2, 5*time.Hour, now),
		liquidation(adapters.SideShort, 51000, 1, 10*time.Minute, now),
	}

	agg := newTestLiquidationAggregator(now, venue).Aggregate(context.Background(), "BTCUSDT", 50000)

	assert.Equal(t, 1, agg.LongLiqs1h)
	assert.Equal(t, 2, agg.LongLiqs24h)
	assert.Equal(t, 1, agg.ShortLiqs1h)
	assert.Equal(t, 1, agg.ShortLiqs24h)
	assert.InDelta(t, 50000.0, agg.LongValue1h, 1e-6)
	assert.InDelta(t, 150000.0, agg.LongValue24h, 1e-6)
	assert.InDelta(t, 51000.0, agg.ShortValue24h, 1e-6)
}

func TestClassifyPressure(t *testing.T) {
	tests := []struct {
		name          string
		longValue     float64
		shortValue    float64
		wantPressure  Pressure
		wantIntensity float64
	}{
		{"no events", 0, 0, PressureBalanced, 0},
		{"even split", 500, 500, PressureBalanced, 0},
		{"long pain at 70 percent", 700, 300, PressureLongPain, 100},
		{"short pain at 80 percent", 200, 800, PressureShortPain, 100},
		{"inside band at 60 percent", 600, 400, PressureBalanced, 100.0 / 1.5},
		{"boundary 65 percent stays balanced", 650, 350, PressureBalanced, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pressure, intensity := classifyPressure(tt.longValue, tt.shortValue)
			assert.Equal(t, tt.wantPressure, pressure)
			assert.InDelta(t, tt.wantIntensity, intensity, 1e-9)
		})
	}
}

func TestRecentLargeFilterSortAndCap(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var feed []adapters.LiquidationEvent
	// 12 large events inside the hour, one small, one large but stale.
	for i := 0; i < 12; i++ {
		feed = append(feed, liquidation(adapters.SideLong, 50000, 3, time.Duration(i+1)*time.Minute, now))
	}
	feed = append(feed, liquidation(adapters.SideLong, 50000, 0.001, 2*time.Minute, now))
	feed = append(feed, liquidation(adapters.SideLong, 50000, 3, 2*time.Hour, now))

	venue := adapters.NewFakeExchange("binance")
	venue.LiquidationFeed = feed

	agg := newTestLiquidationAggregator(now, venue).Aggregate(context.Background(), "BTCUSDT", 50000)

	require.Len(t, agg.RecentLarge, 10, "recent large list is capped")
	for i := 1; i < len(agg.RecentLarge); i++ {
		assert.False(t, agg.RecentLarge[i].Timestamp.After(agg.RecentLarge[i-1].Timestamp),
			"recent large events must be newest first")
	}
	for _, event := range agg.RecentLarge {
		assert.GreaterOrEqual(t, event.ValueUSD(), 100_000.0)
	}
}

func TestBuildClustersBucketsAndNormalizes(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	venue := adapters.NewFakeExchange("binance")
	venue.LiquidationFeed = []adapters.LiquidationEvent{
		// Two longs inside the same 1% bucket around 49000.
		liquidation(adapters.SideLong, 49000, 2, 10*time.Minute, now),
		liquidation(adapters.SideLong, 49100, 2, 20*time.Minute, now),
		// One short far above.
		liquidation(adapters.SideShort, 52500, 1, 30*time.Minute, now),
	}

	agg := newTestLiquidationAggregator(now, venue).Aggregate(context.Background(), "BTCUSDT", 50000)

	require.Len(t, agg.Clusters, 2)
	biggest := agg.Clusters[0]
	assert.Equal(t, 2, biggest.LongCount)
	assert.InDelta(t, 1.0, biggest.Intensity, 1e-9, "largest bucket normalizes to 1")
	assert.Negative(t, biggest.PriceLevelPercent, "long cluster sits below current price")
	assert.Greater(t, biggest.TotalValue, agg.Clusters[1].TotalValue)
	assert.Less(t, agg.Clusters[1].Intensity, 1.0)
}

func TestBuildClustersGuards(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	venue := adapters.NewFakeExchange("binance")
	venue.LiquidationFeed = []adapters.LiquidationEvent{
		liquidation(adapters.SideLong, 49000, 1, 10*time.Minute, now),
	}

	agg := newTestLiquidationAggregator(now, venue).Aggregate(context.Background(), "BTCUSDT", 0)
	assert.Empty(t, agg.Clusters, "unknown price yields no clusters")

	empty := adapters.NewFakeExchange("bybit")
	agg = newTestLiquidationAggregator(now, empty).Aggregate(context.Background(), "BTCUSDT", 50000)
	assert.Empty(t, agg.Clusters)
	assert.Equal(t, PressureBalanced, agg.Pressure)
}
