package derivs

import (
	"context"
	"fmt"
	"math"

	"github.com/marketscope/derivscope/internal/adapters"
)

// TrappedSide names which side is structurally trapped.
type TrappedSide string

const (
	TrappedBoth   TrappedSide = "both"
	TrappedLongs  TrappedSide = "longs"
	TrappedShorts TrappedSide = "shorts"
	TrappedNone   TrappedSide = "none"
)

// SqueezeDirection is the direction price would move if the trapped side
// unwinds.
type SqueezeDirection string

const (
	DirectionLong  SqueezeDirection = "long"
	DirectionShort SqueezeDirection = "short"
	DirectionNone  SqueezeDirection = ""
)

const (
	trappedRatioThreshold   = 0.55
	trappedFundingThreshold = 0.0001
	atRiskRangeFrac         = 0.05 // clusters within 5% of price count as at-risk
	atRiskValueGate         = 1_000_000
	probabilityBase         = 40.0
	probabilityCap          = 90.0
)

// MarketPressure is the combined trapped-side read for a symbol.
type MarketPressure struct {
	Symbol               string           `json:"symbol"`
	CurrentPrice         float64          `json:"current_price"`
	LongsTrapped         bool             `json:"longs_trapped"`
	ShortsTrapped        bool             `json:"shorts_trapped"`
	TrappedSide          TrappedSide      `json:"trapped_side"`
	NearestLongLiqPrice  float64          `json:"nearest_long_liq_price"`
	NearestShortLiqPrice float64          `json:"nearest_short_liq_price"`
	LongLiqDistance      float64          `json:"long_liq_distance"`  // percent below price
	ShortLiqDistance     float64          `json:"short_liq_distance"` // percent above price
	LongValueAtRisk      float64          `json:"long_value_at_risk"`
	ShortValueAtRisk     float64          `json:"short_value_at_risk"`
	SqueezeProbability   float64          `json:"squeeze_probability"`
	SqueezeDirection     SqueezeDirection `json:"squeeze_direction"`
}

// PressureCalculator combines derivatives and liquidation aggregates into
// the trapped-side view.
type PressureCalculator struct {
	derivatives  *Aggregator
	liquidations *LiquidationAggregator
	primary      adapters.Exchange
}

// NewPressureCalculator creates a pressure calculator; primary supplies the
// current price reference.
func NewPressureCalculator(derivatives *Aggregator, liquidations *LiquidationAggregator, primary adapters.Exchange) *PressureCalculator {
	return &PressureCalculator{
		derivatives:  derivatives,
		liquidations: liquidations,
		primary:      primary,
	}
}

// Calculate runs both aggregations and derives the trapped-side read. It
// errors when derivatives aggregation failed entirely or no price is
// available.
func (pc *PressureCalculator) Calculate(ctx context.Context, symbol string) (*MarketPressure, error) {
	agg, err := pc.derivatives.Aggregate(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("derivatives aggregation failed: %w", err)
	}

	ticker, err := pc.primary.Ticker(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("price fetch failed: %w", err)
	}
	if ticker.Price <= 0 {
		return nil, fmt.Errorf("invalid price for %s: %f", symbol, ticker.Price)
	}

	liqs := pc.liquidations.Aggregate(ctx, symbol, ticker.Price)
	return computePressure(symbol, ticker.Price, agg, liqs), nil
}

func computePressure(symbol string, price float64, agg *Aggregated, liqs *AggregatedLiquidations) *MarketPressure {
	pressure := &MarketPressure{
		Symbol:       symbol,
		CurrentPrice: price,
	}

	// Longs are trapped when the crowd is long and paying to stay; shorts
	// symmetric with negative funding.
	pressure.LongsTrapped = agg.AvgLongRatio > trappedRatioThreshold &&
		agg.WeightedFunding > trappedFundingThreshold
	pressure.ShortsTrapped = agg.AvgShortRatio > trappedRatioThreshold &&
		agg.WeightedFunding < -trappedFundingThreshold

	switch {
	case pressure.LongsTrapped && pressure.ShortsTrapped:
		pressure.TrappedSide = TrappedBoth
	case pressure.LongsTrapped:
		pressure.TrappedSide = TrappedLongs
	case pressure.ShortsTrapped:
		pressure.TrappedSide = TrappedShorts
	default:
		pressure.TrappedSide = TrappedNone
	}

	fillLiquidationLevels(pressure, liqs.Clusters)

	switch {
	case pressure.LongsTrapped && pressure.LongValueAtRisk > atRiskValueGate:
		pressure.SqueezeProbability = squeezeProbability(agg.AvgLongRatio, agg.WeightedFunding)
		pressure.SqueezeDirection = DirectionShort
	case pressure.ShortsTrapped && pressure.ShortValueAtRisk > atRiskValueGate:
		pressure.SqueezeProbability = squeezeProbability(agg.AvgShortRatio, agg.WeightedFunding)
		pressure.SqueezeDirection = DirectionLong
	}

	return pressure
}

// fillLiquidationLevels scans clusters for the nearest liquidation price on
// each side and sums the at-risk value within 5% of current price. Long
// liquidations sit below price, short liquidations above.
func fillLiquidationLevels(pressure *MarketPressure, clusters []Cluster) {
	price := pressure.CurrentPrice
	for _, cluster := range clusters {
		within := math.Abs(cluster.PriceLevelPercent) <= atRiskRangeFrac*100

		if cluster.LongValue > 0 && cluster.PriceLevel < price {
			if within {
				pressure.LongValueAtRisk += cluster.LongValue
			}
			if pressure.NearestLongLiqPrice == 0 || cluster.PriceLevel > pressure.NearestLongLiqPrice {
				pressure.NearestLongLiqPrice = cluster.PriceLevel
			}
		}
		if cluster.ShortValue > 0 && cluster.PriceLevel > price {
			if within {
				pressure.ShortValueAtRisk += cluster.ShortValue
			}
			if pressure.NearestShortLiqPrice == 0 || cluster.PriceLevel < pressure.NearestShortLiqPrice {
				pressure.NearestShortLiqPrice = cluster.PriceLevel
			}
		}
	}

	if pressure.NearestLongLiqPrice > 0 {
		pressure.LongLiqDistance = (price - pressure.NearestLongLiqPrice) / price * 100
	}
	if pressure.NearestShortLiqPrice > 0 {
		pressure.ShortLiqDistance = (pressure.NearestShortLiqPrice - price) / price * 100
	}
}

func squeezeProbability(ratio, funding float64) float64 {
	return math.Min(probabilityCap,
		probabilityBase+(ratio-0.5)*100+math.Abs(funding)*10000)
}
