package arb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTakerRateTierLookup(t *testing.T) {
	schedule := DefaultFeeSchedule()

	assert.Equal(t, 0.0005, schedule.TakerRate("binance", 0))
	assert.Equal(t, 0.0005, schedule.TakerRate("binance", 14_999_999))
	assert.Equal(t, 0.0004, schedule.TakerRate("binance", 15_000_000))
	assert.Equal(t, 0.0003, schedule.TakerRate("binance", 500_000_000))

	assert.Equal(t, 0.0006, schedule.TakerRate("unknown-venue", 0),
		"unknown venues get the default ladder")
}

func TestWithdrawalFeePerVenue(t *testing.T) {
	schedule := DefaultFeeSchedule()

	assert.Equal(t, 0.0002, schedule.WithdrawalFee("binance"))
	assert.Equal(t, 0.0005, schedule.WithdrawalFee("unknown-venue"))
}

func TestFeeScheduleValidate(t *testing.T) {
	schedule := DefaultFeeSchedule()
	require.NoError(t, schedule.Validate())

	broken := DefaultFeeSchedule()
	broken.Venues["binance"] = VenueFees{Tiers: []FeeTier{
		{MinVolume30d: 10, Taker: 0.0005},
		{MinVolume30d: 10, Taker: 0.0004},
	}}
	assert.Error(t, broken.Validate(), "duplicate volume floors")

	outOfRange := DefaultFeeSchedule()
	outOfRange.Default = VenueFees{Tiers: []FeeTier{{MinVolume30d: 0, Taker: 0.5}}}
	assert.Error(t, outOfRange.Validate())
}

func TestLoadFeeSchedule(t *testing.T) {
	content := `
default:
  withdrawal_fee: 0.001
  tiers:
    - { min_volume_30d: 0, taker: 0.0007, maker: 0.0003 }
venues:
  kraken:
    withdrawal_fee: 0.0001
    tiers:
      - { min_volume_30d: 0, taker: 0.0004, maker: 0.0001 }
`
	path := filepath.Join(t.TempDir(), "fees.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	schedule, err := LoadFeeSchedule(path)
	require.NoError(t, err)
	assert.Equal(t, 0.0004, schedule.TakerRate("kraken", 0))
	assert.Equal(t, 0.0007, schedule.TakerRate("binance", 0),
		"venues absent from the file fall back to the default ladder")

	_, err = LoadFeeSchedule(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
