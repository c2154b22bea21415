package adapters

import (
	"strings"
	"time"
)

// Side is the canonical side encoding for positions and liquidations.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// NormalizeSide folds exchange-specific side encodings into the canonical
// long/short form. A liquidated long shows up on some venues as a forced
// "SELL" order, so sell-encoded events map to long. Unrecognized encodings
// report ok=false and the caller drops the event rather than guessing a
// side.
func NormalizeSide(raw string) (Side, bool) {
	switch strings.ToLower(raw) {
	case "sell", "long":
		return SideLong, true
	case "buy", "short":
		return SideShort, true
	default:
		return "", false
	}
}

// Ticker is the normalized per-venue derivatives ticker snapshot.
type Ticker struct {
	Symbol            string    `json:"symbol"`
	Venue             string    `json:"venue"`
	Price             float64   `json:"price"`
	Bid               float64   `json:"bid"`
	Ask               float64   `json:"ask"`
	Volume24h         float64   `json:"volume_24h"`       // base units
	QuoteVolume24h    float64   `json:"quote_volume_24h"` // USD
	PriceChange24h    float64   `json:"price_change_24h"` // fraction, 0.05 = +5%
	FundingRate       float64   `json:"funding_rate"`
	NextFundingTime   time.Time `json:"next_funding_time"`
	OpenInterest      float64   `json:"open_interest"`       // contracts
	OpenInterestValue float64   `json:"open_interest_value"` // USD
	BuyVolume24h      float64   `json:"buy_volume_24h"`
	SellVolume24h     float64   `json:"sell_volume_24h"`
	Timestamp         time.Time `json:"timestamp"`
}

// OIPoint is one open-interest history observation.
type OIPoint struct {
	Timestamp         time.Time `json:"timestamp"`
	OpenInterest      float64   `json:"open_interest"`
	OpenInterestValue float64   `json:"open_interest_value"`
}

// Positioning holds account long/short ratios normalized to fractions that
// sum to ~1.0 regardless of whether the venue reports account ratios or
// buy/sell ratios.
type Positioning struct {
	Venue      string  `json:"venue"`
	LongRatio  float64 `json:"long_ratio"`
	ShortRatio float64 `json:"short_ratio"`
}

// LiquidationEvent is a single normalized forced-liquidation fill.
type LiquidationEvent struct {
	Symbol    string    `json:"symbol"`
	Venue     string    `json:"venue"`
	Side      Side      `json:"side"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
}

// ValueUSD returns the notional value of the liquidated position.
func (e LiquidationEvent) ValueUSD() float64 {
	return e.Price * e.Quantity
}

// BookLevel is one price level of an order book, already converted to floats.
type BookLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderBook holds normalized depth, bids sorted descending and asks
// ascending, best level first.
type OrderBook struct {
	Symbol    string      `json:"symbol"`
	Venue     string      `json:"venue"`
	Bids      []BookLevel `json:"bids"`
	Asks      []BookLevel `json:"asks"`
	FetchedAt time.Time   `json:"fetched_at"`
}

// BestBid returns the top bid price, 0 if the book is empty.
func (ob *OrderBook) BestBid() float64 {
	if ob == nil || len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// BestAsk returns the top ask price, 0 if the book is empty.
func (ob *OrderBook) BestAsk() float64 {
	if ob == nil || len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}
