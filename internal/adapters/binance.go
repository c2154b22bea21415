package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// BinanceAdapter reads Binance USD-M futures endpoints.
type BinanceAdapter struct {
	client *restClient
}

// NewBinanceAdapter creates a Binance futures adapter.
func NewBinanceAdapter(config Config) *BinanceAdapter {
	config.applyDefaults("https://fapi.binance.com", 10.0)
	return &BinanceAdapter{client: newRESTClient("binance", config)}
}

func (b *BinanceAdapter) Name() string { return "binance" }

// Ticker merges the 24h ticker, premium index and open interest endpoints
// into one normalized snapshot.
func (b *BinanceAdapter) Ticker(ctx context.Context, symbol string) (*Ticker, error) {
	sym := strings.ToUpper(symbol)

	body, err := b.client.get(ctx, "/fapi/v1/ticker/24hr?symbol="+sym)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Symbol             string `json:"symbol"`
		LastPrice          string `json:"lastPrice"`
		PriceChangePercent string `json:"priceChangePercent"`
		Volume             string `json:"volume"`
		QuoteVolume        string `json:"quoteVolume"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse binance ticker: %w", err)
	}

	ticker := &Ticker{
		Symbol:    sym,
		Venue:     "binance",
		Timestamp: time.Now(),
	}
	if ticker.Price, err = parseFloat(raw.LastPrice, "lastPrice"); err != nil {
		return nil, err
	}
	if ticker.Volume24h, err = parseFloat(raw.Volume, "volume"); err != nil {
		return nil, err
	}
	if ticker.QuoteVolume24h, err = parseFloat(raw.QuoteVolume, "quoteVolume"); err != nil {
		return nil, err
	}
	if pct, err := parseFloat(raw.PriceChangePercent, "priceChangePercent"); err == nil {
		ticker.PriceChange24h = pct / 100
	}

	if err := b.fillPremium(ctx, sym, ticker); err != nil {
		return nil, err
	}
	if err := b.fillOpenInterest(ctx, sym, ticker); err != nil {
		return nil, err
	}
	b.fillTakerVolume(ctx, sym, ticker)

	return ticker, nil
}

func (b *BinanceAdapter) fillPremium(ctx context.Context, symbol string, ticker *Ticker) error {
	body, err := b.client.get(ctx, "/fapi/v1/premiumIndex?symbol="+symbol)
	if err != nil {
		return err
	}
	var raw struct {
		LastFundingRate string `json:"lastFundingRate"`
		NextFundingTime int64  `json:"nextFundingTime"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return fmt.Errorf("failed to parse binance premium index: %w", err)
	}
	if ticker.FundingRate, err = parseFloat(raw.LastFundingRate, "lastFundingRate"); err != nil {
		return err
	}
	ticker.NextFundingTime = time.UnixMilli(raw.NextFundingTime)
	return nil
}

func (b *BinanceAdapter) fillOpenInterest(ctx context.Context, symbol string, ticker *Ticker) error {
	body, err := b.client.get(ctx, "/fapi/v1/openInterest?symbol="+symbol)
	if err != nil {
		return err
	}
	var raw struct {
		OpenInterest string `json:"openInterest"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return fmt.Errorf("failed to parse binance open interest: %w", err)
	}
	if ticker.OpenInterest, err = parseFloat(raw.OpenInterest, "openInterest"); err != nil {
		return err
	}
	ticker.OpenInterestValue = ticker.OpenInterest * ticker.Price
	return nil
}

// fillTakerVolume is best-effort: the taker buy/sell split feeds the squeeze
// absorption component but its absence is not a source failure.
func (b *BinanceAdapter) fillTakerVolume(ctx context.Context, symbol string, ticker *Ticker) {
	endpoint := fmt.Sprintf("/futures/data/takerlongshortRatio?symbol=%s&period=1h&limit=24", symbol)
	body, err := b.client.get(ctx, endpoint)
	if err != nil {
		log.Debug().Err(err).Str("venue", "binance").Str("symbol", symbol).
			Msg("taker volume unavailable")
		return
	}
	var raw []struct {
		BuyVol  string `json:"buyVol"`
		SellVol string `json:"sellVol"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return
	}
	for _, point := range raw {
		if buy, err := parseFloat(point.BuyVol, "buyVol"); err == nil {
			ticker.BuyVolume24h += buy
		}
		if sell, err := parseFloat(point.SellVol, "sellVol"); err == nil {
			ticker.SellVolume24h += sell
		}
	}
}

func (b *BinanceAdapter) Positioning(ctx context.Context, symbol string) (*Positioning, error) {
	endpoint := fmt.Sprintf("/futures/data/topLongShortAccountRatio?symbol=%s&period=5m&limit=1", strings.ToUpper(symbol))
	body, err := b.client.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	var raw []struct {
		LongAccount  string `json:"longAccount"`
		ShortAccount string `json:"shortAccount"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse binance positioning: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty positioning response for %s", symbol)
	}

	long, err := parseFloat(raw[0].LongAccount, "longAccount")
	if err != nil {
		return nil, err
	}
	short, err := parseFloat(raw[0].ShortAccount, "shortAccount")
	if err != nil {
		return nil, err
	}
	return &Positioning{Venue: "binance", LongRatio: long, ShortRatio: short}, nil
}

func (b *BinanceAdapter) Liquidations(ctx context.Context, symbol string, since time.Time) ([]LiquidationEvent, error) {
	endpoint := fmt.Sprintf("/fapi/v1/allForceOrders?symbol=%s&startTime=%d&limit=1000",
		strings.ToUpper(symbol), since.UnixMilli())
	body, err := b.client.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	var raw []struct {
		Symbol      string `json:"symbol"`
		Side        string `json:"side"`
		AvgPrice    string `json:"avgPrice"`
		ExecutedQty string `json:"executedQty"`
		Time        int64  `json:"time"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse binance force orders: %w", err)
	}

	events := make([]LiquidationEvent, 0, len(raw))
	for _, order := range raw {
		price, err := parseFloat(order.AvgPrice, "avgPrice")
		if err != nil {
			continue
		}
		qty, err := parseFloat(order.ExecutedQty, "executedQty")
		if err != nil {
			continue
		}
		side, ok := NormalizeSide(order.Side)
		if !ok {
			continue
		}
		events = append(events, LiquidationEvent{
			Symbol:    order.Symbol,
			Venue:     "binance",
			Side:      side,
			Price:     price,
			Quantity:  qty,
			Timestamp: time.UnixMilli(order.Time),
		})
	}
	return events, nil
}

func (b *BinanceAdapter) OrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error) {
	endpoint := fmt.Sprintf("/fapi/v1/depth?symbol=%s&limit=%d", strings.ToUpper(symbol), depth)
	body, err := b.client.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Bids [][2]string `json:"bids"`
		Asks [][2]string `json:"asks"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse binance depth: %w", err)
	}

	book := &OrderBook{
		Symbol:    strings.ToUpper(symbol),
		Venue:     "binance",
		FetchedAt: time.Now(),
	}
	if book.Bids, err = parseLevels(raw.Bids); err != nil {
		return nil, fmt.Errorf("invalid binance bids: %w", err)
	}
	if book.Asks, err = parseLevels(raw.Asks); err != nil {
		return nil, fmt.Errorf("invalid binance asks: %w", err)
	}
	return book, nil
}

func (b *BinanceAdapter) OIHistory(ctx context.Context, symbol string, limit int) ([]OIPoint, error) {
	endpoint := fmt.Sprintf("/futures/data/openInterestHist?symbol=%s&period=1h&limit=%d",
		strings.ToUpper(symbol), limit)
	body, err := b.client.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	var raw []struct {
		SumOpenInterest      string `json:"sumOpenInterest"`
		SumOpenInterestValue string `json:"sumOpenInterestValue"`
		Timestamp            int64  `json:"timestamp"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse binance OI history: %w", err)
	}

	points := make([]OIPoint, 0, len(raw))
	for _, point := range raw {
		oi, err := parseFloat(point.SumOpenInterest, "sumOpenInterest")
		if err != nil {
			continue
		}
		value, err := parseFloat(point.SumOpenInterestValue, "sumOpenInterestValue")
		if err != nil {
			continue
		}
		points = append(points, OIPoint{
			Timestamp:         time.UnixMilli(point.Timestamp),
			OpenInterest:      oi,
			OpenInterestValue: value,
		})
	}
	return points, nil
}

func parseFloat(raw, field string) (float64, error) {
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s value %q: %w", field, raw, err)
	}
	return value, nil
}

func parseLevels(raw [][2]string) ([]BookLevel, error) {
	levels := make([]BookLevel, 0, len(raw))
	for _, pair := range raw {
		price, err := parseFloat(pair[0], "price")
		if err != nil {
			return nil, err
		}
		size, err := parseFloat(pair[1], "size")
		if err != nil {
			return nil, err
		}
		levels = append(levels, BookLevel{Price: price, Size: size})
	}
	return levels, nil
}
