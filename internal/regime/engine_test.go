package regime

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeRiskOn(t *testing.T) {
	engine := NewEngine(nil)

	analysis := engine.Analyze(Input{
		BTCChange7d:     5,
		OIChange24h:     6,
		WeightedFunding: -0.0003, // shorts paying, contrarian bullish
		StablecoinFlow:  1.5,
		DominanceChange: -0.6,
		LiquidationBias: 0.5,
		FearGreed:       75,
	})

	assert.Equal(t, RiskOn, analysis.Current)
	assert.InDelta(t, 92.5, analysis.Score, 1e-9)
	assert.Equal(t, 100.0, analysis.Confidence)
	assert.Equal(t, Neutral, analysis.Previous, "first evaluation has no history")
	assert.Len(t, analysis.Drivers, 7, "every component fired")
}

func TestAnalyzeRiskOff(t *testing.T) {
	engine := NewEngine(nil)

	analysis := engine.Analyze(Input{
		BTCChange7d:     -5,
		OIChange24h:     -6,
		WeightedFunding: 0.0003,
		StablecoinFlow:  -1.5,
		DominanceChange: 0.6,
		LiquidationBias: -0.5,
		FearGreed:       25,
	})

	assert.Equal(t, RiskOff, analysis.Current)
	assert.InDelta(t, -92.5, analysis.Score, 1e-9)
}

func TestScoreStaysWithinBounds(t *testing.T) {
	engine := NewEngine(nil)

	analysis := engine.Analyze(Input{
		BTCChange7d:     100,
		OIChange24h:     80,
		WeightedFunding: -0.01,
		StablecoinFlow:  20,
		DominanceChange: -5,
		LiquidationBias: 1,
		FearGreed:       100,
	})
	assert.InDelta(t, 100.0, analysis.Score, 1e-9, "contributions are capped per component")
	assert.LessOrEqual(t, analysis.Confidence, 100.0)
}

func TestScoreIsReproducible(t *testing.T) {
	input := Input{
		BTCChange7d:     100,
		OIChange24h:     80,
		WeightedFunding: -0.01,
		StablecoinFlow:  20,
		DominanceChange: -5,
		LiquidationBias: 1,
		FearGreed:       100,
	}

	// The score sums floats in a fixed component order, so repeated
	// evaluations of the same input must agree to the last bit.
	first := NewEngine(nil).Analyze(input).Score
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, NewEngine(nil).Analyze(input).Score)
	}
}

func TestAnalyzeDistribution(t *testing.T) {
	engine := NewEngine(nil)

	// Price up, open interest bleeding out, longs still paying funding.
	analysis := engine.Analyze(Input{
		BTCChange7d:     5,
		OIChange24h:     -6,
		WeightedFunding: 0.0005,
	})
	assert.Equal(t, Distribution, analysis.Current)
}

func TestAnalyzeAccumulation(t *testing.T) {
	engine := NewEngine(nil)

	analysis := engine.Analyze(Input{
		BTCChange7d:     -5,
		StablecoinFlow:  1.5,
		WeightedFunding: -0.0002,
	})
	assert.Equal(t, Accumulation, analysis.Current)
}

func TestAnalyzeSpeculation(t *testing.T) {
	engine := NewEngine(nil)

	analysis := engine.Analyze(Input{
		DominanceChange: 0.6,
		OIChange24h:     6,
		FearGreed:       75,
	})
	assert.Equal(t, Speculation, analysis.Current)
}

func TestAnalyzeNeutralOnQuietInput(t *testing.T) {
	engine := NewEngine(nil)

	analysis := engine.Analyze(Input{BTCChange7d: 0.5, FearGreed: 50})
	assert.Equal(t, Neutral, analysis.Current)
	assert.Zero(t, analysis.Score)
	assert.Empty(t, analysis.Drivers)
}

func TestAnalyzeCarriesPreviousRegime(t *testing.T) {
	engine := NewEngine(nil)

	first := engine.Analyze(Input{
		BTCChange7d: 5, OIChange24h: 6, WeightedFunding: -0.0003,
		StablecoinFlow: 1.5, DominanceChange: -0.6, LiquidationBias: 0.5, FearGreed: 75,
	})
	require.Equal(t, RiskOn, first.Current)

	second := engine.Analyze(Input{BTCChange7d: 0.5})
	assert.Equal(t, Neutral, second.Current)
	assert.Equal(t, RiskOn, second.Previous)
	assert.Same(t, second, engine.Last())
}

func TestRiskOnWithCrowdedFundingFlagsDistribution(t *testing.T) {
	engine := NewEngine(nil)

	analysis := engine.Analyze(Input{
		BTCChange7d:     5,
		OIChange24h:     6,
		WeightedFunding: 0.0008, // long-crowded, over twice the crowding threshold
		StablecoinFlow:  1.5,
		DominanceChange: -0.6,
		LiquidationBias: 0.5,
		FearGreed:       75,
	})

	require.Equal(t, RiskOn, analysis.Current)
	assert.True(t, analysis.IsTransitioning)
	assert.Equal(t, Distribution, analysis.TransitionTo)
	assert.InDelta(t, 0.0008/0.0006*50, analysis.TransitionProgress, 1e-9)
}

func TestFundingVoteThresholdConfigurable(t *testing.T) {
	analysis := NewEngine(nil).Analyze(Input{WeightedFunding: -0.0003})
	assert.Equal(t, SignalBullish, analysis.Components["funding"].Signal,
		"shorts paying past the default vote threshold reads contrarian bullish")

	config := DefaultConfig()
	config.FundingVote = 0.0005
	analysis = NewEngine(config).Analyze(Input{WeightedFunding: -0.0003})
	assert.Equal(t, SignalNeutral, analysis.Components["funding"].Signal,
		"a wider vote threshold keeps the same funding neutral")
}

func TestConfigValidate(t *testing.T) {
	config := DefaultConfig()
	require.NoError(t, config.Validate())

	config.BTCTrendWeight = 0.5
	assert.Error(t, config.Validate(), "weights must sum to 1")
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regime.yaml")
	require.NoError(t, os.WriteFile(path, []byte("score_gate: 25\nfunding_crowded: 0.0005\n"), 0o644))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 25.0, config.ScoreGate)
	assert.Equal(t, 0.0005, config.FundingCrowded)
	assert.Equal(t, 0.25, config.BTCTrendWeight, "unset fields keep defaults")

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
