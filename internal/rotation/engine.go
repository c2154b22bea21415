// Package rotation classifies capital flow between BTC, ETH, alts and
// stablecoins into a rotation phase.
package rotation

import (
	"math"
	"sync"
)

// Phase is one of the rotation phases.
type Phase string

const (
	RiskOffStables   Phase = "RISK_OFF_STABLES"
	BTCAccumulation  Phase = "BTC_ACCUMULATION"
	ETHRotation      Phase = "ETH_ROTATION"
	AltSpeculation   Phase = "ALT_SPECULATION"
	LargeCapRotation Phase = "LARGE_CAP_ROTATION"
	BTCDistribution  Phase = "BTC_DISTRIBUTION"
	NoClearRotation  Phase = "NO_CLEAR_ROTATION"
)

// SectorFlow is a named sector's 24h performance.
type SectorFlow struct {
	Name      string  `json:"name"`
	Change24h float64 `json:"change_24h"` // percent
}

// Input carries the macro breadth data a rotation evaluation needs. All
// changes are percentages; dominance changes are percentage points.
type Input struct {
	TotalMcapChange24h      float64      `json:"total_mcap_change_24h"`
	BTCDominanceChange      float64      `json:"btc_dominance_change"`
	StablecoinDomChange     float64      `json:"stablecoin_dom_change"`
	StablecoinMcapChange    float64      `json:"stablecoin_mcap_change"`
	BTCPriceChange24h       float64      `json:"btc_price_change_24h"`
	ETHBTCRatioChange       float64      `json:"eth_btc_ratio_change"`
	AltMcapChange24h        float64      `json:"alt_mcap_change_24h"`
	AltOIChange             float64      `json:"alt_oi_change"`
	MemeChange24h           float64      `json:"meme_change_24h"`
	DefiTVLChange           float64      `json:"defi_tvl_change"`
	Sectors                 []SectorFlow `json:"sectors"`
}

// Signal is the rotation classification result.
type Signal struct {
	Phase                Phase        `json:"phase"`
	Confidence           float64      `json:"confidence"`
	BTCDominanceChange   float64      `json:"btc_dominance_change"`
	ETHBTCRatioChange    float64      `json:"eth_btc_ratio_change"`
	AltOIChange          float64      `json:"alt_oi_change"`
	StablecoinMcapChange float64      `json:"stablecoin_mcap_change"`
	DefiTVLChange        float64      `json:"defi_tvl_change"`
	SectorFlows          []SectorFlow `json:"sector_flows"`
	FlowingInto          []string     `json:"flowing_into"`
	FlowingOutOf         []string     `json:"flowing_out_of"`
}

// Engine evaluates the ordered rotation rule table.
type Engine struct {
	mu    sync.Mutex
	rules []rule
	last  *Signal
}

// rule pairs a predicate with its outcome; rules are evaluated top-down and
// the first match wins, so precedence is the slice order.
type rule struct {
	match      func(Input) bool
	phase      func(Input) Phase
	confidence func(Input) float64
}

// NewEngine creates a rotation engine with the production rule table.
func NewEngine() *Engine {
	return &Engine{rules: []rule{
		{
			// Market-wide drawdown with capital parking in stables.
			match: func(in Input) bool {
				return in.TotalMcapChange24h < -2 && in.StablecoinDomChange > 0
			},
			phase:      constant(RiskOffStables),
			confidence: fixed(80),
		},
		{
			// Dominance rising while BTC price holds: rotation into BTC.
			match: func(in Input) bool {
				return in.BTCDominanceChange > 0.5 && in.BTCPriceChange24h > -1
			},
			phase: constant(BTCAccumulation),
			confidence: func(in Input) float64 {
				if in.BTCPriceChange24h > 2 {
					return 85
				}
				return 70
			},
		},
		{
			match: func(in Input) bool {
				return math.Abs(in.ETHBTCRatioChange) > 2
			},
			phase:      constant(ETHRotation),
			confidence: fixed(75),
		},
		{
			// Dominance falling with alts outperforming BTC by >2pp; meme
			// froth splits speculation from orderly large-cap rotation.
			match: func(in Input) bool {
				return in.BTCDominanceChange < -0.5 && in.AltMcapChange24h-in.BTCPriceChange24h > 2
			},
			phase: func(in Input) Phase {
				if in.MemeChange24h > 10 {
					return AltSpeculation
				}
				return LargeCapRotation
			},
			confidence: func(in Input) float64 {
				if in.MemeChange24h > 10 {
					return 90
				}
				return 75
			},
		},
		{
			// BTC selling off without a matching flight to stables.
			match: func(in Input) bool {
				return in.BTCPriceChange24h < -2 && math.Abs(in.StablecoinDomChange) < 0.1
			},
			phase:      constant(BTCDistribution),
			confidence: fixed(65),
		},
	}}
}

func constant(phase Phase) func(Input) Phase {
	return func(Input) Phase { return phase }
}

func fixed(confidence float64) func(Input) float64 {
	return func(Input) float64 { return confidence }
}

// Detect classifies the rotation phase and ranks sector flows.
func (e *Engine) Detect(input Input) *Signal {
	signal := &Signal{
		Phase:                NoClearRotation,
		Confidence:           40,
		BTCDominanceChange:   input.BTCDominanceChange,
		ETHBTCRatioChange:    input.ETHBTCRatioChange,
		AltOIChange:          input.AltOIChange,
		StablecoinMcapChange: input.StablecoinMcapChange,
		DefiTVLChange:        input.DefiTVLChange,
		SectorFlows:          input.Sectors,
	}

	for _, rule := range e.rules {
		if rule.match(input) {
			signal.Phase = rule.phase(input)
			signal.Confidence = rule.confidence(input)
			break
		}
	}

	strongest, weakest := rankSectors(input.Sectors)
	if strongest != "" {
		signal.FlowingInto = append(signal.FlowingInto, strongest)
	}
	if weakest != "" {
		signal.FlowingOutOf = append(signal.FlowingOutOf, weakest)
	}

	e.mu.Lock()
	e.last = signal
	e.mu.Unlock()
	return signal
}

// Last returns the most recent detection, or nil before the first one.
func (e *Engine) Last() *Signal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// QuickDetect is the degraded-input variant: when macro breadth data is
// unavailable it derives the sector proxies from a single altcoin's 24h
// change against BTC.
func (e *Engine) QuickDetect(altChange24h, btcChange24h float64) *Signal {
	spread := altChange24h - btcChange24h
	input := Input{
		BTCPriceChange24h: btcChange24h,
		AltMcapChange24h:  altChange24h,
		MemeChange24h:     altChange24h,
		// A strong alt/BTC spread proxies falling dominance and vice versa.
		BTCDominanceChange: -spread / 4,
	}
	signal := e.Detect(input)
	// Proxy-derived confidence is capped: one symbol is thin evidence.
	signal.Confidence = math.Min(signal.Confidence, 60)
	return signal
}

// rankSectors returns the single strongest sector above +5% and the single
// weakest below -5%.
func rankSectors(sectors []SectorFlow) (strongest, weakest string) {
	bestChange, worstChange := 5.0, -5.0
	for _, sector := range sectors {
		if sector.Change24h > bestChange {
			bestChange = sector.Change24h
			strongest = sector.Name
		}
		if sector.Change24h < worstChange {
			worstChange = sector.Change24h
			weakest = sector.Name
		}
	}
	return strongest, weakest
}

// InterpretStablecoinFlow explains a stablecoin supply move; the 24h reading
// takes precedence over the 7d trend when they conflict.
func InterpretStablecoinFlow(change24h, change7d float64) string {
	switch {
	case change24h > 0.5:
		return "Capital entering crypto (bullish)"
	case change24h < -0.5:
		return "Capital leaving crypto (bearish)"
	case change7d > 2:
		return "Sustained capital inflow building"
	case change7d < -2:
		return "Sustained capital outflow"
	default:
		return "Stablecoin supply stable"
	}
}
