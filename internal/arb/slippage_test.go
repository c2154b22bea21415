package arb

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marketscope/derivscope/internal/adapters"
)

func ladder() []adapters.BookLevel {
	return []adapters.BookLevel{
		{Price: 100, Size: 1},
		{Price: 101, Size: 2},
		{Price: 102, Size: 5},
	}
}

func TestWalkBookVWAPAcrossLevels(t *testing.T) {
	fill := WalkBook(ladder(), 150)

	// $100 fills the first level, $50 dips into the second.
	wantVWAP := 150.0 / (1 + 50.0/101)
	assert.InDelta(t, wantVWAP, fill.AveragePrice, 1e-9)
	assert.Equal(t, 0.0, fill.RemainingUSD)
	assert.Equal(t, 2, fill.LevelsConsumed)
	assert.InDelta(t, 150.0, fill.FilledUSD, 1e-9)
	assert.InDelta(t, (wantVWAP-100)/100*100, fill.SlippagePercent, 1e-9)
}

func TestWalkBookSingleLevel(t *testing.T) {
	fill := WalkBook(ladder(), 80)

	assert.Equal(t, 100.0, fill.AveragePrice)
	assert.Equal(t, 0.0, fill.SlippagePercent)
	assert.Equal(t, 1, fill.LevelsConsumed)
}

func TestWalkBookThinBook(t *testing.T) {
	// The whole ladder holds 100 + 202 + 510 = $812.
	fill := WalkBook(ladder(), 1000)

	assert.InDelta(t, 188.0, fill.RemainingUSD, 1e-9)
	assert.Equal(t, 3, fill.LevelsConsumed)
	assert.InDelta(t, 812.0, fill.FilledUSD, 1e-9)
}

func TestWalkBookDegenerateInputs(t *testing.T) {
	assert.Equal(t, 0.0, WalkBook(nil, 100).FilledUSD)
	assert.Equal(t, 100.0, WalkBook(nil, 100).RemainingUSD)
	assert.Equal(t, 0.0, WalkBook(ladder(), 0).FilledUSD)
}

func TestMaxSizeWithinSlippage(t *testing.T) {
	levels := []adapters.BookLevel{
		{Price: 100, Size: 10},
		{Price: 100.05, Size: 10},
		{Price: 101, Size: 10},
	}

	// The first level alone has zero slippage; the second keeps the VWAP at
	// 100.025, within a 0.1% bound. The third blows past it, so only part
	// of it fits.
	size := MaxSizeWithinSlippage(levels, 0.001)
	assert.Greater(t, size, 100.0*10+100.05*10)
	assert.Less(t, size, 100.0*10+100.05*10+101.0*10)

	// A tight bound takes the first level whole and solves for the slice of
	// the second that lands the VWAP exactly on the bound.
	size = MaxSizeWithinSlippage(levels, 0.0001)
	assert.InDelta(t, 1000.0+2.5*100.05, size, 1e-6)

	assert.Equal(t, 0.0, MaxSizeWithinSlippage(nil, 0.001))
}
