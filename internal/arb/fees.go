// Package arb walks real order-book depth on venue pairs and decides
// whether a trade size clears fees, slippage and transfer costs.
package arb

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FeeTier is one 30-day-volume fee tier.
type FeeTier struct {
	MinVolume30d float64 `yaml:"min_volume_30d"`
	Taker        float64 `yaml:"taker"`
	Maker        float64 `yaml:"maker"`
}

// VenueFees holds a venue's tier ladder and flat withdrawal fee in base
// units.
type VenueFees struct {
	Tiers         []FeeTier `yaml:"tiers"`
	WithdrawalFee float64   `yaml:"withdrawal_fee"`
}

// FeeSchedule maps venues to their fee structure, with a default for
// unknown venues.
type FeeSchedule struct {
	Venues  map[string]VenueFees `yaml:"venues"`
	Default VenueFees            `yaml:"default"`
}

// DefaultFeeSchedule returns the built-in schedule.
func DefaultFeeSchedule() *FeeSchedule {
	return &FeeSchedule{
		Default: VenueFees{
			Tiers:         []FeeTier{{MinVolume30d: 0, Taker: 0.0006, Maker: 0.0002}},
			WithdrawalFee: 0.0005,
		},
		Venues: map[string]VenueFees{
			"binance": {
				Tiers: []FeeTier{
					{MinVolume30d: 0, Taker: 0.0005, Maker: 0.0002},
					{MinVolume30d: 15_000_000, Taker: 0.0004, Maker: 0.00016},
					{MinVolume30d: 50_000_000, Taker: 0.00035, Maker: 0.00014},
					{MinVolume30d: 100_000_000, Taker: 0.0003, Maker: 0.00012},
				},
				WithdrawalFee: 0.0002,
			},
			"bybit": {
				Tiers: []FeeTier{
					{MinVolume30d: 0, Taker: 0.00055, Maker: 0.0002},
					{MinVolume30d: 10_000_000, Taker: 0.0004, Maker: 0.00018},
					{MinVolume30d: 100_000_000, Taker: 0.0003, Maker: 0.0001},
				},
				WithdrawalFee: 0.0003,
			},
			"okx": {
				Tiers: []FeeTier{
					{MinVolume30d: 0, Taker: 0.0005, Maker: 0.0002},
					{MinVolume30d: 10_000_000, Taker: 0.00045, Maker: 0.00015},
					{MinVolume30d: 50_000_000, Taker: 0.0003, Maker: 0.0001},
				},
				WithdrawalFee: 0.0004,
			},
			"kraken": {
				Tiers: []FeeTier{
					{MinVolume30d: 0, Taker: 0.0005, Maker: 0.0002},
					{MinVolume30d: 100_000, Taker: 0.0004, Maker: 0.00015},
					{MinVolume30d: 1_000_000, Taker: 0.0003, Maker: 0.0001},
				},
				WithdrawalFee: 0.00015,
			},
		},
	}
}

// LoadFeeSchedule reads a schedule from YAML and validates it.
func LoadFeeSchedule(path string) (*FeeSchedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fee schedule %s: %w", path, err)
	}

	var schedule FeeSchedule
	if err := yaml.Unmarshal(data, &schedule); err != nil {
		return nil, fmt.Errorf("failed to parse fee schedule: %w", err)
	}
	if err := schedule.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fee schedule: %w", err)
	}
	return &schedule, nil
}

// Validate checks every venue ladder is non-empty, ascending and sane.
func (fs *FeeSchedule) Validate() error {
	check := func(name string, fees VenueFees) error {
		if len(fees.Tiers) == 0 {
			return fmt.Errorf("venue %s has no fee tiers", name)
		}
		prev := -1.0
		for _, tier := range fees.Tiers {
			if tier.MinVolume30d <= prev {
				return fmt.Errorf("venue %s tiers not ascending at %.0f", name, tier.MinVolume30d)
			}
			if tier.Taker < 0 || tier.Taker > 0.01 {
				return fmt.Errorf("venue %s taker rate %.5f out of range", name, tier.Taker)
			}
			prev = tier.MinVolume30d
		}
		return nil
	}

	if err := check("default", fs.Default); err != nil {
		return err
	}
	for name, fees := range fs.Venues {
		if err := check(name, fees); err != nil {
			return err
		}
	}
	return nil
}

// TakerRate returns the taker rate of the highest tier at or below the
// trader's 30-day volume, falling back to the default ladder for unknown
// venues.
func (fs *FeeSchedule) TakerRate(venue string, volume30d float64) float64 {
	fees, ok := fs.Venues[venue]
	if !ok {
		fees = fs.Default
	}

	rate := fees.Tiers[0].Taker
	for _, tier := range fees.Tiers {
		if volume30d >= tier.MinVolume30d {
			rate = tier.Taker
		}
	}
	return rate
}

// WithdrawalFee returns the venue's flat withdrawal fee in base units.
func (fs *FeeSchedule) WithdrawalFee(venue string) float64 {
	fees, ok := fs.Venues[venue]
	if !ok {
		fees = fs.Default
	}
	return fees.WithdrawalFee
}
