package rotation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectPhases(t *testing.T) {
	tests := []struct {
		name           string
		input          Input
		wantPhase      Phase
		wantConfidence float64
	}{
		{
			name:           "risk off into stables",
			input:          Input{TotalMcapChange24h: -3, StablecoinDomChange: 0.4},
			wantPhase:      RiskOffStables,
			wantConfidence: 80,
		},
		{
			name:           "btc accumulation",
			input:          Input{BTCDominanceChange: 0.8, BTCPriceChange24h: 1},
			wantPhase:      BTCAccumulation,
			wantConfidence: 70,
		},
		{
			name:           "btc accumulation with strong price",
			input:          Input{BTCDominanceChange: 0.8, BTCPriceChange24h: 3},
			wantPhase:      BTCAccumulation,
			wantConfidence: 85,
		},
		{
			name:           "eth rotation",
			input:          Input{ETHBTCRatioChange: 2.5},
			wantPhase:      ETHRotation,
			wantConfidence: 75,
		},
		{
			name:           "large cap rotation",
			input:          Input{BTCDominanceChange: -0.8, AltMcapChange24h: 4, BTCPriceChange24h: 1},
			wantPhase:      LargeCapRotation,
			wantConfidence: 75,
		},
		{
			name:           "alt speculation on meme froth",
			input:          Input{BTCDominanceChange: -0.8, AltMcapChange24h: 4, BTCPriceChange24h: 1, MemeChange24h: 15},
			wantPhase:      AltSpeculation,
			wantConfidence: 90,
		},
		{
			name:           "btc distribution",
			input:          Input{BTCPriceChange24h: -3},
			wantPhase:      BTCDistribution,
			wantConfidence: 65,
		},
		{
			name:           "no clear rotation",
			input:          Input{BTCPriceChange24h: 0.5, AltMcapChange24h: 0.3},
			wantPhase:      NoClearRotation,
			wantConfidence: 40,
		},
	}

	engine := NewEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signal := engine.Detect(tt.input)
			assert.Equal(t, tt.wantPhase, signal.Phase)
			assert.Equal(t, tt.wantConfidence, signal.Confidence)
		})
	}
}

func TestDetectRulePrecedence(t *testing.T) {
	engine := NewEngine()

	// Matches both the risk-off rule and the ETH rotation rule; the earlier
	// rule must win.
	signal := engine.Detect(Input{
		TotalMcapChange24h:  -3,
		StablecoinDomChange: 0.4,
		ETHBTCRatioChange:   3,
	})
	assert.Equal(t, RiskOffStables, signal.Phase)
}

func TestDetectRanksSectorFlows(t *testing.T) {
	engine := NewEngine()

	signal := engine.Detect(Input{Sectors: []SectorFlow{
		{Name: "ai", Change24h: 12},
		{Name: "defi", Change24h: 7},
		{Name: "gaming", Change24h: -9},
		{Name: "l2", Change24h: -6},
		{Name: "meme", Change24h: 3},
	}})

	assert.Equal(t, []string{"ai"}, signal.FlowingInto, "single strongest sector above +5%")
	assert.Equal(t, []string{"gaming"}, signal.FlowingOutOf, "single weakest sector below -5%")
}

func TestDetectNoSectorBeyondThresholds(t *testing.T) {
	engine := NewEngine()

	signal := engine.Detect(Input{Sectors: []SectorFlow{
		{Name: "defi", Change24h: 3},
		{Name: "gaming", Change24h: -4},
	}})
	assert.Empty(t, signal.FlowingInto)
	assert.Empty(t, signal.FlowingOutOf)
}

func TestQuickDetectCapsConfidence(t *testing.T) {
	engine := NewEngine()

	// Alt complex running hot against BTC proxies falling dominance.
	signal := engine.QuickDetect(15, 1)
	assert.Equal(t, AltSpeculation, signal.Phase)
	assert.Equal(t, 60.0, signal.Confidence, "proxy detection never exceeds 60")
}

func TestDetectStoresLast(t *testing.T) {
	engine := NewEngine()
	require.Nil(t, engine.Last())

	signal := engine.Detect(Input{ETHBTCRatioChange: 2.5})
	assert.Same(t, signal, engine.Last())
}

func TestInterpretStablecoinFlow(t *testing.T) {
	tests := []struct {
		name      string
		change24h float64
		change7d  float64
		want      string
	}{
		{"fresh inflow", 1.0, 0, "Capital entering crypto (bullish)"},
		{"fresh outflow", -1.0, 0, "Capital leaving crypto (bearish)"},
		{"sustained inflow", 0.2, 3, "Sustained capital inflow building"},
		{"sustained outflow", -0.2, -3, "Sustained capital outflow"},
		{"quiet", 0.1, 0.5, "Stablecoin supply stable"},
		{"24h inflow beats 7d outflow", 1.0, -3, "Capital entering crypto (bullish)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InterpretStablecoinFlow(tt.change24h, tt.change7d))
		})
	}
}
