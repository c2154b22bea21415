// Package regime scores seven weighted macro/derivatives inputs into a
// market regime classification with confidence and named drivers.
package regime

import (
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Regime is one of the six market regimes.
type Regime string

const (
	RiskOn       Regime = "RISK_ON"
	RiskOff      Regime = "RISK_OFF"
	Distribution Regime = "DISTRIBUTION"
	Accumulation Regime = "ACCUMULATION"
	Speculation  Regime = "SPECULATION"
	Neutral      Regime = "NEUTRAL"
)

// Signal is a component's directional vote.
type Signal string

const (
	SignalBullish Signal = "bullish"
	SignalBearish Signal = "bearish"
	SignalNeutral Signal = "neutral"
)

// Component is one scored regime input.
type Component struct {
	Name         string  `json:"name"`
	Value        float64 `json:"value"`
	Weight       float64 `json:"weight"`
	Signal       Signal  `json:"signal"`
	Contribution float64 `json:"contribution"` // signed, capped at ±weight
}

// Input carries the seven regime inputs for one evaluation tick.
type Input struct {
	BTCChange7d       float64 `json:"btc_change_7d"`      // percent
	OIChange24h       float64 `json:"oi_change_24h"`      // percent
	WeightedFunding   float64 `json:"weighted_funding"`   // rate, e.g. 0.0003
	StablecoinFlow    float64 `json:"stablecoin_flow"`    // mcap change percent, positive = capital entering
	DominanceChange   float64 `json:"dominance_change"`   // BTC dominance change, percentage points
	LiquidationBias   float64 `json:"liquidation_bias"`   // -1..1, positive = shorts being flushed
	FearGreed         float64 `json:"fear_greed"`         // 0-100 index
}

// Analysis is one regime evaluation.
type Analysis struct {
	Current            Regime               `json:"current"`
	Previous           Regime               `json:"previous"`
	Confidence         float64              `json:"confidence"`
	Score              float64              `json:"score"` // roughly [-100, 100]
	Drivers            []string             `json:"drivers"`
	Components         map[string]Component `json:"components"`
	IsTransitioning    bool                 `json:"is_transitioning"`
	TransitionTo       Regime               `json:"transition_to,omitempty"`
	TransitionProgress float64              `json:"transition_progress"`
	Timestamp          time.Time            `json:"timestamp"`
}

// Config holds the regime component weights and thresholds.
type Config struct {
	// Component weights, must sum to 1.0.
	BTCTrendWeight    float64 `yaml:"btc_trend_weight"`
	OIWeight          float64 `yaml:"oi_weight"`
	FundingWeight     float64 `yaml:"funding_weight"`
	StablecoinWeight  float64 `yaml:"stablecoin_weight"`
	DominanceWeight   float64 `yaml:"dominance_weight"`
	LiquidationWeight float64 `yaml:"liquidation_weight"`
	FearGreedWeight   float64 `yaml:"fear_greed_weight"`

	// Per-component bullish/bearish thresholds.
	BTCBullish        float64 `yaml:"btc_bullish"`        // 7d percent
	BTCBearish        float64 `yaml:"btc_bearish"`
	OIBullish         float64 `yaml:"oi_bullish"`         // 24h percent
	OIBearish         float64 `yaml:"oi_bearish"`
	StablecoinBullish float64 `yaml:"stablecoin_bullish"` // percent inflow
	StablecoinBearish float64 `yaml:"stablecoin_bearish"`
	DominanceShift    float64 `yaml:"dominance_shift"`    // pp move that counts as a shift
	FundingVote       float64 `yaml:"funding_vote"`       // |funding| needed for a funding vote
	FundingCrowded    float64 `yaml:"funding_crowded"`    // long-crowded funding rate

	// Classification gates.
	ScoreGate         float64 `yaml:"score_gate"`          // |score| needed for RISK_ON/OFF
	ComponentQuorum   int     `yaml:"component_quorum"`    // aligned components for RISK_ON/OFF
	SpeculationGreed  float64 `yaml:"speculation_greed"`   // fear/greed floor for SPECULATION
}

// DefaultConfig returns the production regime configuration.
func DefaultConfig() *Config {
	return &Config{
		BTCTrendWeight:    0.25,
		OIWeight:          0.15,
		FundingWeight:     0.15,
		StablecoinWeight:  0.15,
		DominanceWeight:   0.15,
		LiquidationWeight: 0.05,
		FearGreedWeight:   0.10,

		BTCBullish:        2.0,
		BTCBearish:        -2.0,
		OIBullish:         3.0,
		OIBearish:         -3.0,
		StablecoinBullish: 0.5,
		StablecoinBearish: -0.5,
		DominanceShift:    0.3,
		FundingVote:       0.0001,
		FundingCrowded:    0.0003,

		ScoreGate:        30,
		ComponentQuorum:  4,
		SpeculationGreed: 60,
	}
}

// LoadConfig reads a regime configuration from YAML.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read regime config %s: %w", path, err)
	}
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse regime config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the weight sum and threshold ordering.
func (c *Config) Validate() error {
	sum := c.BTCTrendWeight + c.OIWeight + c.FundingWeight + c.StablecoinWeight +
		c.DominanceWeight + c.LiquidationWeight + c.FearGreedWeight
	if math.Abs(sum-1.0) > 0.001 {
		return fmt.Errorf("regime weights sum to %.3f, want 1.0", sum)
	}
	if c.BTCBullish <= c.BTCBearish {
		return fmt.Errorf("btc thresholds inverted: bullish %.2f <= bearish %.2f", c.BTCBullish, c.BTCBearish)
	}
	if c.ComponentQuorum < 1 || c.ComponentQuorum > 7 {
		return fmt.Errorf("component quorum %d out of range 1-7", c.ComponentQuorum)
	}
	return nil
}

// Engine evaluates regime inputs and tracks state continuity between calls.
type Engine struct {
	mu     sync.Mutex
	config *Config
	last   *Analysis
}

// NewEngine creates a regime engine; nil config uses defaults.
func NewEngine(config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	return &Engine{config: config}
}

// Analyze scores the input and classifies the regime. The previous regime is
// carried from the last call; the first evaluation reports NEUTRAL.
func (e *Engine) Analyze(input Input) *Analysis {
	c := e.config

	components := map[string]Component{
		"btc_trend":   analyzeComponent("btc_trend", input.BTCChange7d, c.BTCBullish, c.BTCBearish, c.BTCTrendWeight),
		"oi_change":   analyzeComponent("oi_change", input.OIChange24h, c.OIBullish, c.OIBearish, c.OIWeight),
		"funding":     analyzeFunding(input.WeightedFunding, c),
		"stablecoin":  analyzeComponent("stablecoin", input.StablecoinFlow, c.StablecoinBullish, c.StablecoinBearish, c.StablecoinWeight),
		"dominance":   analyzeDominance(input.DominanceChange, c),
		"liquidation": analyzeLiquidation(input.LiquidationBias, c.LiquidationWeight),
		"fear_greed":  analyzeFearGreed(input.FearGreed, c.FearGreedWeight),
	}

	// Fixed summation order keeps the float score reproducible run to run.
	score := 0.0
	bullish, bearish := 0, 0
	for _, name := range componentOrder {
		component := components[name]
		score += component.Contribution
		switch component.Signal {
		case SignalBullish:
			bullish++
		case SignalBearish:
			bearish++
		}
	}
	score *= 100

	current := classify(score, bullish, bearish, components, input, c)
	aligned := bullish
	if bearish > aligned {
		aligned = bearish
	}
	confidence := math.Min(math.Abs(score)+float64(aligned)/7*30, 100)

	analysis := &Analysis{
		Current:    current,
		Confidence: confidence,
		Score:      score,
		Components: components,
		Drivers:    describeDrivers(components),
		Timestamp:  time.Now(),
	}
	fillTransition(analysis, components, c)

	e.mu.Lock()
	if e.last != nil {
		analysis.Previous = e.last.Current
	} else {
		analysis.Previous = Neutral
	}
	e.last = analysis
	e.mu.Unlock()

	return analysis
}

// Last returns the most recent analysis, nil before the first call.
func (e *Engine) Last() *Analysis {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// analyzeComponent applies the shared threshold rule: bullish above the
// bullish threshold with contribution proportional to the excess, capped at
// the component weight; bearish symmetric and negated.
// componentOrder is the canonical evaluation order for the seven components.
var componentOrder = []string{"btc_trend", "oi_change", "funding", "stablecoin", "dominance", "liquidation", "fear_greed"}

func analyzeComponent(name string, value, bullish, bearish, weight float64) Component {
	component := Component{Name: name, Value: value, Weight: weight, Signal: SignalNeutral}
	switch {
	case value > bullish:
		component.Signal = SignalBullish
		component.Contribution = math.Min((value-bullish)/math.Abs(bullish), 1) * weight
	case value < bearish:
		component.Signal = SignalBearish
		component.Contribution = -math.Min((bearish-value)/math.Abs(bearish), 1) * weight
	}
	return component
}

// analyzeFunding is contrarian: deeply negative funding (shorts paying)
// votes bullish, crowded positive funding votes bearish. The component keeps
// the raw funding rate as its value for the classification rules.
func analyzeFunding(funding float64, c *Config) Component {
	inverted := analyzeComponent("funding", -funding, c.FundingVote, -c.FundingVote, c.FundingWeight)
	inverted.Value = funding
	return inverted
}

// analyzeDominance votes bullish when BTC dominance falls (risk appetite
// broadening into alts), bearish when it rises.
func analyzeDominance(change float64, c *Config) Component {
	inverted := analyzeComponent("dominance", -change, c.DominanceShift, -c.DominanceShift, c.DominanceWeight)
	inverted.Value = change
	return inverted
}

// analyzeLiquidation votes with the flushed side: positive bias means shorts
// are being liquidated, which is bullish pressure.
func analyzeLiquidation(bias float64, weight float64) Component {
	component := Component{Name: "liquidation", Value: bias, Weight: weight, Signal: SignalNeutral}
	switch {
	case bias > 0.3:
		component.Signal = SignalBullish
		component.Contribution = math.Min(bias, 1) * weight
	case bias < -0.3:
		component.Signal = SignalBearish
		component.Contribution = math.Max(bias, -1) * weight
	}
	return component
}

func analyzeFearGreed(index float64, weight float64) Component {
	component := Component{Name: "fear_greed", Value: index, Weight: weight, Signal: SignalNeutral}
	switch {
	case index > 60:
		component.Signal = SignalBullish
		component.Contribution = math.Min((index-50)/50, 1) * weight
	case index < 40:
		component.Signal = SignalBearish
		component.Contribution = -math.Min((50-index)/50, 1) * weight
	}
	return component
}

// classify applies the regime rules in priority order, first match wins.
func classify(score float64, bullish, bearish int, components map[string]Component, input Input, c *Config) Regime {
	btc := components["btc_trend"]
	oi := components["oi_change"]
	funding := components["funding"]
	stablecoin := components["stablecoin"]
	dominance := components["dominance"]

	rules := []struct {
		regime Regime
		match  bool
	}{
		{RiskOn, score > c.ScoreGate && bullish >= c.ComponentQuorum},
		{RiskOff, score < -c.ScoreGate && bearish >= c.ComponentQuorum},
		{Distribution, btc.Signal == SignalBullish && oi.Signal == SignalBearish && funding.Value > 0},
		{Accumulation, btc.Signal == SignalBearish && stablecoin.Signal == SignalBullish && funding.Value < 0},
		{Speculation, dominance.Signal == SignalBearish && oi.Signal == SignalBullish && input.FearGreed > c.SpeculationGreed},
	}
	for _, rule := range rules {
		if rule.match {
			return rule.regime
		}
	}
	return Neutral
}

// fillTransition flags the two early-rotation heuristics: crowded funding
// inside RISK_ON points at DISTRIBUTION, stablecoin inflow inside RISK_OFF
// points at ACCUMULATION.
func fillTransition(analysis *Analysis, components map[string]Component, c *Config) {
	funding := components["funding"]
	stablecoin := components["stablecoin"]

	switch {
	case analysis.Current == RiskOn && funding.Value > 2*c.FundingCrowded:
		analysis.IsTransitioning = true
		analysis.TransitionTo = Distribution
		analysis.TransitionProgress = math.Min(100, funding.Value/(2*c.FundingCrowded)*50)
	case analysis.Current == RiskOff && stablecoin.Signal == SignalBullish:
		analysis.IsTransitioning = true
		analysis.TransitionTo = Accumulation
		analysis.TransitionProgress = math.Min(100, stablecoin.Contribution/stablecoin.Weight*100)
	}
}

// describeDrivers lists every component that fired, independent of which
// regime won.
func describeDrivers(components map[string]Component) []string {
	descriptions := map[string]string{
		"btc_trend":   "BTC trend",
		"oi_change":   "Open interest",
		"funding":     "Funding positioning",
		"stablecoin":  "Stablecoin flow",
		"dominance":   "BTC dominance",
		"liquidation": "Liquidation pressure",
		"fear_greed":  "Fear & greed",
	}

	var drivers []string
	for _, name := range componentOrder {
		component := components[name]
		if component.Signal == SignalNeutral {
			continue
		}
		drivers = append(drivers, fmt.Sprintf("%s %s (%.4g)", descriptions[name], component.Signal, component.Value))
	}
	return drivers
}
