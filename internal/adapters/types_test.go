package adapters

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSide(t *testing.T) {
	tests := []struct {
		raw    string
		want   Side
		wantOK bool
	}{
		// A forced SELL closes a long position.
		{"SELL", SideLong, true},
		{"sell", SideLong, true},
		{"long", SideLong, true},
		{"BUY", SideShort, true},
		{"buy", SideShort, true},
		{"short", SideShort, true},
		// Malformed encodings are rejected, not guessed.
		{"", "", false},
		{"garbage", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			side, ok := NormalizeSide(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, side)
		})
	}
}

func TestLiquidationEventValueUSD(t *testing.T) {
	event := LiquidationEvent{Price: 50000, Quantity: 2.5, Timestamp: time.Now()}
	assert.Equal(t, 125000.0, event.ValueUSD())
}

func TestOrderBookBestLevels(t *testing.T) {
	book := &OrderBook{
		Bids: []BookLevel{{Price: 49990, Size: 1}, {Price: 49980, Size: 2}},
		Asks: []BookLevel{{Price: 50010, Size: 1}, {Price: 50020, Size: 2}},
	}
	assert.Equal(t, 49990.0, book.BestBid())
	assert.Equal(t, 50010.0, book.BestAsk())

	empty := &OrderBook{}
	assert.Equal(t, 0.0, empty.BestBid())
	assert.Equal(t, 0.0, empty.BestAsk())

	var nilBook *OrderBook
	assert.Equal(t, 0.0, nilBook.BestBid())
}

func TestInstID(t *testing.T) {
	assert.Equal(t, "BTC-USDT-SWAP", instID("BTCUSDT"))
	assert.Equal(t, "ETH-USDC-SWAP", instID("ethusdc"))
	assert.Equal(t, "SOL-USD-SWAP", instID("SOLUSD"))
	assert.Equal(t, "WEIRD-SWAP", instID("WEIRD"))
}
