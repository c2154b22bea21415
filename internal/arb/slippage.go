package arb

import (
	"math"

	"github.com/marketscope/derivscope/internal/adapters"
)

// Fill is the result of walking one side of a book for a USD size.
type Fill struct {
	AveragePrice    float64 `json:"average_price"`    // volume-weighted fill price
	FilledUSD       float64 `json:"filled_usd"`
	FilledQuantity  float64 `json:"filled_quantity"`
	RemainingUSD    float64 `json:"remaining_usd"`    // >0 means the book was too thin
	LevelsConsumed  int     `json:"levels_consumed"`
	SlippagePercent float64 `json:"slippage_percent"` // vs the best level
}

// WalkBook consumes levels best-first until sizeUSD is filled or the book is
// exhausted. Levels must already be sorted best-to-worst for the side being
// taken (asks ascending for buys, bids descending for sells).
func WalkBook(levels []adapters.BookLevel, sizeUSD float64) Fill {
	fill := Fill{RemainingUSD: sizeUSD}
	if sizeUSD <= 0 || len(levels) == 0 {
		return fill
	}

	totalCost := 0.0
	totalQuantity := 0.0
	for i, level := range levels {
		if fill.RemainingUSD <= 0 {
			break
		}
		levelValue := level.Price * level.Size
		consumed := math.Min(fill.RemainingUSD, levelValue)

		totalCost += consumed
		totalQuantity += consumed / level.Price
		fill.RemainingUSD -= consumed
		fill.LevelsConsumed = i + 1
	}

	if totalQuantity > 0 {
		fill.AveragePrice = totalCost / totalQuantity
		best := levels[0].Price
		fill.SlippagePercent = math.Abs(fill.AveragePrice-best) / best * 100
	}
	fill.FilledUSD = totalCost
	fill.FilledQuantity = totalQuantity
	return fill
}

// MaxSizeWithinSlippage returns the largest USD size whose volume-weighted
// fill stays within the slippage bound against the best level.
func MaxSizeWithinSlippage(levels []adapters.BookLevel, maxSlippageFrac float64) float64 {
	if len(levels) == 0 {
		return 0
	}

	best := levels[0].Price
	bound := best * maxSlippageFrac
	totalCost := 0.0
	totalQuantity := 0.0
	fillable := 0.0

	for _, level := range levels {
		cost := totalCost + level.Price*level.Size
		quantity := totalQuantity + level.Size
		vwap := cost / quantity
		if math.Abs(vwap-best) > bound {
			// Part of this level may still fit; solve for the size that
			// lands the VWAP exactly on the bound.
			target := best + math.Copysign(bound, level.Price-best)
			if level.Price != target {
				partial := (target*totalQuantity - totalCost) / (level.Price - target)
				if partial > 0 {
					fillable += partial * level.Price
				}
			}
			return fillable
		}
		totalCost = cost
		totalQuantity = quantity
		fillable += level.Price * level.Size
	}
	return fillable
}
