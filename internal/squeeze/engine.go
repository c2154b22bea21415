// Package squeeze implements the six-component weighted squeeze detector.
// A signal only exists when one side of the book is crowded; everything else
// scores how loaded the spring is.
package squeeze

import (
	"fmt"
	"math"
)

// Type is the squeeze direction: the crowded side is the one at risk.
type Type string

const (
	LongSqueeze  Type = "LONG_SQUEEZE"
	ShortSqueeze Type = "SHORT_SQUEEZE"
)

// Strength is the escalation ladder.
type Strength string

const (
	Loading  Strength = "LOADING"
	Building Strength = "BUILDING"
	Imminent Strength = "IMMINENT"
	Active   Strength = "ACTIVE"
)

var strengthRank = map[Strength]int{
	Loading:  0,
	Building: 1,
	Imminent: 2,
	Active:   3,
}

// Rank returns the ordinal position of a strength, -1 if unknown.
func (s Strength) Rank() int {
	rank, ok := strengthRank[s]
	if !ok {
		return -1
	}
	return rank
}

// Component is one scored squeeze factor.
type Component struct {
	Name         string  `json:"name"`
	Active       bool    `json:"active"`
	Value        float64 `json:"value"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"` // 0-1, weight applied separately
	Description  string  `json:"description"`
}

// Components holds the six named factors.
type Components struct {
	OIRising             Component `json:"oi_rising"`
	FundingExtreme       Component `json:"funding_extreme"`
	DirectionalImbalance Component `json:"directional_imbalance"`
	LiquidationCluster   Component `json:"liquidation_cluster"`
	VolumeAbsorption     Component `json:"volume_absorption"`
	PriceRejection       Component `json:"price_rejection"`
}

// all returns the components in weight order.
func (c *Components) all() []Component {
	return []Component{
		c.OIRising, c.FundingExtreme, c.DirectionalImbalance,
		c.LiquidationCluster, c.VolumeAbsorption, c.PriceRejection,
	}
}

// ActiveCount returns how many components fired.
func (c *Components) ActiveCount() int {
	count := 0
	for _, component := range c.all() {
		if component.Active {
			count++
		}
	}
	return count
}

// Input carries one symbol's squeeze inputs. Ratio fields are fractions in
// [0,1]; change fields are fractions (0.05 = 5%).
type Input struct {
	Symbol         string  `json:"symbol"`
	Price          float64 `json:"price"`
	PriceChange24h float64 `json:"price_change_24h"`
	OIChange24h    float64 `json:"oi_change_24h"`
	FundingRate    float64 `json:"funding_rate"`
	LongRatio      float64 `json:"long_ratio"`
	ShortRatio     float64 `json:"short_ratio"`
	BuyVolume24h   float64 `json:"buy_volume_24h"`
	SellVolume24h  float64 `json:"sell_volume_24h"`

	// Liquidation context near current price, from the liquidation
	// aggregator's clusters.
	LongLiqsNearPrice    int     `json:"long_liqs_near_price"`
	ShortLiqsNearPrice   int     `json:"short_liqs_near_price"`
	NearestLongLiqPrice  float64 `json:"nearest_long_liq_price"`
	NearestShortLiqPrice float64 `json:"nearest_short_liq_price"`
	LiqValueNearPrice    float64 `json:"liq_value_near_price"`
}

// TriggerZone is the price band where the squeeze would ignite.
type TriggerZone struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Signal is an emitted squeeze detection.
type Signal struct {
	Symbol                    string      `json:"symbol"`
	Type                      Type        `json:"type"`
	Strength                  Strength    `json:"strength"`
	Probability               float64     `json:"probability"` // 0-100
	Components                Components  `json:"components"`
	NearestLiquidationPrice   float64     `json:"nearest_liquidation_price"`
	EstimatedLiquidationValue float64     `json:"estimated_liquidation_value"`
	TriggerZone               TriggerZone `json:"trigger_zone"`

	// Declared for parity with the result shape; no historical store exists,
	// so these stay zero.
	SimilarSetups     int     `json:"similar_setups"`
	HistoricalWinRate float64 `json:"historical_win_rate"`
}

// Config holds squeeze component weights and thresholds.
type Config struct {
	OIWeight         float64 `yaml:"oi_weight"`
	FundingWeight    float64 `yaml:"funding_weight"`
	ImbalanceWeight  float64 `yaml:"imbalance_weight"`
	ClusterWeight    float64 `yaml:"cluster_weight"`
	AbsorptionWeight float64 `yaml:"absorption_weight"`
	RejectionWeight  float64 `yaml:"rejection_weight"`

	ImbalanceGate    float64 `yaml:"imbalance_gate"`     // ratio above which a side is heavy
	ImbalanceStrong  float64 `yaml:"imbalance_strong"`   // ratio treated as fully crowded
	OIRisingMin      float64 `yaml:"oi_rising_min"`      // fraction, 0.03 = 3%
	OIStrong         float64 `yaml:"oi_strong"`          // fraction for a full contribution
	FundingExtremeMin float64 `yaml:"funding_extreme_min"` // 0.0003 = 0.03%
	FundingStrong    float64 `yaml:"funding_strong"`
	PriceStallMax    float64 `yaml:"price_stall_max"`    // fraction, stalling below this
	AbsorptionRatio  float64 `yaml:"absorption_ratio"`   // buy/sell ratio gate
	AbsorptionStrong float64 `yaml:"absorption_strong"`
	ClusterStrong    float64 `yaml:"cluster_strong"`     // liq count for full contribution

	MinProbability float64 `yaml:"min_probability"` // discard signals below this
}

// DefaultConfig returns the production squeeze configuration.
func DefaultConfig() *Config {
	return &Config{
		OIWeight:         0.20,
		FundingWeight:    0.20,
		ImbalanceWeight:  0.20,
		ClusterWeight:    0.15,
		AbsorptionWeight: 0.15,
		RejectionWeight:  0.10,

		ImbalanceGate:     0.55,
		ImbalanceStrong:   0.70,
		OIRisingMin:       0.03,
		OIStrong:          0.10,
		FundingExtremeMin: 0.0003,
		FundingStrong:     0.001,
		PriceStallMax:     0.02,
		AbsorptionRatio:   1.5,
		AbsorptionStrong:  3.0,
		ClusterStrong:     5,

		MinProbability: 40,
	}
}

// Engine scores squeeze inputs.
type Engine struct {
	config *Config
}

// NewEngine creates a squeeze engine; nil config uses defaults.
func NewEngine(config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	return &Engine{config: config}
}

// Detect evaluates one symbol. It returns nil when neither side is heavy or
// the weighted probability falls below the floor: no imbalance, no squeeze.
func (e *Engine) Detect(input Input) *Signal {
	c := e.config

	var squeezeType Type
	var dominantRatio float64
	switch {
	case input.LongRatio > c.ImbalanceGate:
		squeezeType = LongSqueeze
		dominantRatio = input.LongRatio
	case input.ShortRatio > c.ImbalanceGate:
		squeezeType = ShortSqueeze
		dominantRatio = input.ShortRatio
	default:
		return nil
	}

	components := Components{
		OIRising:             e.scoreOIRising(input),
		FundingExtreme:       e.scoreFunding(input, squeezeType),
		DirectionalImbalance: e.scoreImbalance(dominantRatio),
		LiquidationCluster:   e.scoreCluster(input, squeezeType),
		VolumeAbsorption:     e.scoreAbsorption(input, squeezeType),
		PriceRejection:       e.scoreRejection(input),
	}

	probability := 0.0
	for _, component := range components.all() {
		if component.Active {
			probability += component.Weight * component.Contribution
		}
	}
	probability *= 100
	if probability < c.MinProbability {
		return nil
	}

	signal := &Signal{
		Symbol:      input.Symbol,
		Type:        squeezeType,
		Strength:    classifyStrength(probability, components.ActiveCount()),
		Probability: probability,
		Components:  components,
	}
	fillLiquidationContext(signal, input)
	return signal
}

func (e *Engine) scoreOIRising(input Input) Component {
	c := e.config
	component := Component{
		Name:   "oi_rising",
		Value:  input.OIChange24h,
		Weight: c.OIWeight,
	}
	if input.OIChange24h > c.OIRisingMin {
		component.Active = true
		component.Contribution = math.Min(input.OIChange24h/c.OIStrong, 1)
		component.Description = fmt.Sprintf("OI up %.1f%% over 24h", input.OIChange24h*100)
	}
	return component
}

// scoreFunding requires the funding sign to agree with the squeeze type:
// crowded longs pay positive funding, crowded shorts negative.
func (e *Engine) scoreFunding(input Input, squeezeType Type) Component {
	c := e.config
	component := Component{
		Name:   "funding_extreme",
		Value:  input.FundingRate,
		Weight: c.FundingWeight,
	}
	abs := math.Abs(input.FundingRate)
	consistent := (squeezeType == LongSqueeze && input.FundingRate > 0) ||
		(squeezeType == ShortSqueeze && input.FundingRate < 0)
	if abs > c.FundingExtremeMin && consistent {
		component.Active = true
		component.Contribution = math.Min(abs/c.FundingStrong, 1)
		component.Description = fmt.Sprintf("funding stretched at %.4f%%", input.FundingRate*100)
	}
	return component
}

func (e *Engine) scoreImbalance(dominantRatio float64) Component {
	c := e.config
	component := Component{
		Name:   "directional_imbalance",
		Value:  dominantRatio,
		Weight: c.ImbalanceWeight,
	}
	if dominantRatio > c.ImbalanceGate {
		component.Active = true
		component.Contribution = math.Min((dominantRatio-0.5)/(c.ImbalanceStrong-0.5), 1)
		component.Description = fmt.Sprintf("%.0f%% of accounts on one side", dominantRatio*100)
	}
	return component
}

// scoreCluster fires when liquidations on the at-risk side have printed
// near the current price.
func (e *Engine) scoreCluster(input Input, squeezeType Type) Component {
	c := e.config
	count := input.LongLiqsNearPrice
	if squeezeType == ShortSqueeze {
		count = input.ShortLiqsNearPrice
	}
	component := Component{
		Name:   "liquidation_cluster",
		Value:  float64(count),
		Weight: c.ClusterWeight,
	}
	if count > 0 {
		component.Active = true
		component.Contribution = math.Min(float64(count)/c.ClusterStrong, 1)
		component.Description = fmt.Sprintf("%d liquidations clustered near price", count)
	}
	return component
}

// scoreAbsorption fires when price is stalling while taker flow leans hard
// one way: someone is absorbing the pressure.
func (e *Engine) scoreAbsorption(input Input, squeezeType Type) Component {
	c := e.config
	component := Component{
		Name:   "volume_absorption",
		Weight: c.AbsorptionWeight,
	}

	stalling := math.Abs(input.PriceChange24h) < c.PriceStallMax
	ratio := 0.0
	switch squeezeType {
	case LongSqueeze:
		if input.SellVolume24h > 0 {
			ratio = input.BuyVolume24h / input.SellVolume24h
		}
	case ShortSqueeze:
		if input.BuyVolume24h > 0 {
			ratio = input.SellVolume24h / input.BuyVolume24h
		}
	}
	component.Value = ratio

	if stalling && ratio > c.AbsorptionRatio {
		component.Active = true
		component.Contribution = math.Min(ratio/c.AbsorptionStrong, 1)
		component.Description = fmt.Sprintf("%.1fx one-sided flow into a flat price", ratio)
	}
	return component
}

func (e *Engine) scoreRejection(input Input) Component {
	c := e.config
	component := Component{
		Name:   "price_rejection",
		Value:  input.PriceChange24h,
		Weight: c.RejectionWeight,
	}
	if math.Abs(input.PriceChange24h) < c.PriceStallMax && input.OIChange24h > 0 {
		component.Active = true
		component.Contribution = math.Min(input.OIChange24h/c.OIStrong, 1)
		component.Description = "price stalling while OI builds"
	}
	return component
}

// classifyStrength escalates with both probability and breadth of active
// components.
func classifyStrength(probability float64, activeCount int) Strength {
	switch {
	case probability >= 80 && activeCount >= 5:
		return Active
	case probability >= 65 && activeCount >= 4:
		return Imminent
	case probability >= 50 && activeCount >= 3:
		return Building
	default:
		return Loading
	}
}

// fillLiquidationContext sets the nearest liquidation level, the at-risk
// value and the trigger zone around it.
func fillLiquidationContext(signal *Signal, input Input) {
	nearest := input.NearestLongLiqPrice
	if signal.Type == ShortSqueeze {
		nearest = input.NearestShortLiqPrice
	}
	signal.NearestLiquidationPrice = nearest
	signal.EstimatedLiquidationValue = input.LiqValueNearPrice

	if nearest > 0 {
		signal.TriggerZone = TriggerZone{Low: nearest * 0.995, High: nearest * 1.005}
	} else if input.Price > 0 {
		signal.TriggerZone = TriggerZone{Low: input.Price * 0.98, High: input.Price * 1.02}
	}
}
