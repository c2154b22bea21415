package derivs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketscope/derivscope/internal/adapters"
	"github.com/marketscope/derivscope/internal/timeseries"
)

func TestComputePressureTrappedRules(t *testing.T) {
	tests := []struct {
		name      string
		longRatio float64
		funding   float64
		wantSide  TrappedSide
	}{
		{"crowded longs paying", 0.62, 0.0004, TrappedLongs},
		{"crowded shorts paying", 0.40, -0.0004, TrappedShorts},
		{"crowded longs but neutral funding", 0.62, 0.00005, TrappedNone},
		{"funding hot but balanced book", 0.50, 0.0004, TrappedNone},
		{"boundary ratio not trapped", 0.55, 0.0004, TrappedNone},
		{"boundary funding not trapped", 0.62, 0.0001, TrappedNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := &Aggregated{
				AvgLongRatio:    tt.longRatio,
				AvgShortRatio:   1 - tt.longRatio,
				WeightedFunding: tt.funding,
			}
			pressure := computePressure("BTCUSDT", 50000, agg, &AggregatedLiquidations{})
			assert.Equal(t, tt.wantSide, pressure.TrappedSide)
		})
	}
}

func TestComputePressureRequiresValueAtRisk(t *testing.T) {
	agg := &Aggregated{AvgLongRatio: 0.62, AvgShortRatio: 0.38, WeightedFunding: 0.0004}

	// Trapped longs but only $500k of liquidations within range: no call.
	thin := &AggregatedLiquidations{Clusters: []Cluster{
		{PriceLevel: 49000, PriceLevelPercent: -2, LongValue: 500_000},
	}}
	pressure := computePressure("BTCUSDT", 50000, agg, thin)
	assert.Equal(t, TrappedLongs, pressure.TrappedSide)
	assert.Zero(t, pressure.SqueezeProbability)
	assert.Equal(t, DirectionNone, pressure.SqueezeDirection)

	// Same setup with $2M at risk crosses the gate.
	thick := &AggregatedLiquidations{Clusters: []Cluster{
		{PriceLevel: 49000, PriceLevelPercent: -2, LongValue: 2_000_000},
	}}
	pressure = computePressure("BTCUSDT", 50000, agg, thick)
	assert.Equal(t, DirectionShort, pressure.SqueezeDirection, "trapped longs unwind downward")
	// 40 + (0.62-0.5)*100 + 0.0004*10000 = 56
	assert.InDelta(t, 56.0, pressure.SqueezeProbability, 1e-9)
}

func TestComputePressureProbabilityCap(t *testing.T) {
	agg := &Aggregated{AvgLongRatio: 0.95, AvgShortRatio: 0.05, WeightedFunding: 0.003}
	liqs := &AggregatedLiquidations{Clusters: []Cluster{
		{PriceLevel: 49500, PriceLevelPercent: -1, LongValue: 5_000_000},
	}}

	pressure := computePressure("BTCUSDT", 50000, agg, liqs)
	assert.Equal(t, 90.0, pressure.SqueezeProbability)
}

func TestComputePressureShortSqueezeDirection(t *testing.T) {
	agg := &Aggregated{AvgLongRatio: 0.38, AvgShortRatio: 0.62, WeightedFunding: -0.0004}
	liqs := &AggregatedLiquidations{Clusters: []Cluster{
		{PriceLevel: 51000, PriceLevelPercent: 2, ShortValue: 2_000_000},
	}}

	pressure := computePressure("BTCUSDT", 50000, agg, liqs)
	assert.Equal(t, TrappedShorts, pressure.TrappedSide)
	assert.Equal(t, DirectionLong, pressure.SqueezeDirection, "trapped shorts unwind upward")
}

func TestFillLiquidationLevels(t *testing.T) {
	pressure := &MarketPressure{CurrentPrice: 50000}
	fillLiquidationLevels(pressure, []Cluster{
		{PriceLevel: 48000, PriceLevelPercent: -4, LongValue: 800_000},
		{PriceLevel: 49500, PriceLevelPercent: -1, LongValue: 400_000},
		// Outside the 5% at-risk range: counts for nearest-level only.
		{PriceLevel: 46000, PriceLevelPercent: -8, LongValue: 900_000},
		{PriceLevel: 51000, PriceLevelPercent: 2, ShortValue: 600_000},
		{PriceLevel: 53000, PriceLevelPercent: 6, ShortValue: 700_000},
	})

	assert.Equal(t, 49500.0, pressure.NearestLongLiqPrice)
	assert.Equal(t, 51000.0, pressure.NearestShortLiqPrice)
	assert.InDelta(t, 1.0, pressure.LongLiqDistance, 1e-9)
	assert.InDelta(t, 2.0, pressure.ShortLiqDistance, 1e-9)
	assert.InDelta(t, 1_200_000, pressure.LongValueAtRisk, 1e-6, "only clusters within 5% count")
	assert.InDelta(t, 600_000, pressure.ShortValueAtRisk, 1e-6)
}

func TestCalculateFailsWithoutPrice(t *testing.T) {
	venue := adapters.NewFakeExchange("binance")
	venue.TickerResponse = &adapters.Ticker{Price: 0, QuoteVolume24h: 1_000_000}

	exchanges := []adapters.Exchange{venue}
	calc := NewPressureCalculator(
		NewAggregator(exchanges, timeseries.New()),
		NewLiquidationAggregator(exchanges),
		venue,
	)

	_, err := calc.Calculate(context.Background(), "BTCUSDT")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid price")
}
