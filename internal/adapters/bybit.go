package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// BybitAdapter reads Bybit v5 linear-perpetual endpoints.
type BybitAdapter struct {
	client *restClient
}

// NewBybitAdapter creates a Bybit adapter.
func NewBybitAdapter(config Config) *BybitAdapter {
	config.applyDefaults("https://api.bybit.com", 8.0)
	return &BybitAdapter{client: newRESTClient("bybit", config)}
}

func (b *BybitAdapter) Name() string { return "bybit" }

type bybitEnvelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

func (b *BybitAdapter) result(ctx context.Context, endpoint string, out interface{}) error {
	body, err := b.client.get(ctx, endpoint)
	if err != nil {
		return err
	}
	var envelope bybitEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("failed to parse bybit envelope: %w", err)
	}
	if envelope.RetCode != 0 {
		return fmt.Errorf("bybit error %d: %s", envelope.RetCode, envelope.RetMsg)
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("failed to parse bybit result: %w", err)
	}
	return nil
}

func (b *BybitAdapter) Ticker(ctx context.Context, symbol string) (*Ticker, error) {
	sym := strings.ToUpper(symbol)
	var result struct {
		List []struct {
			LastPrice    string `json:"lastPrice"`
			Bid1Price    string `json:"bid1Price"`
			Ask1Price    string `json:"ask1Price"`
			Volume24h    string `json:"volume24h"`
			Turnover24h  string `json:"turnover24h"`
			Price24hPcnt string `json:"price24hPcnt"`
			FundingRate  string `json:"fundingRate"`
			OpenInterest string `json:"openInterest"`
			NextFundTime string `json:"nextFundingTime"`
		} `json:"list"`
	}
	if err := b.result(ctx, "/v5/market/tickers?category=linear&symbol="+sym, &result); err != nil {
		return nil, err
	}
	if len(result.List) == 0 {
		return nil, fmt.Errorf("empty bybit ticker response for %s", symbol)
	}

	row := result.List[0]
	ticker := &Ticker{Symbol: sym, Venue: "bybit", Timestamp: time.Now()}
	var err error
	if ticker.Price, err = parseFloat(row.LastPrice, "lastPrice"); err != nil {
		return nil, err
	}
	if ticker.Bid, err = parseFloat(row.Bid1Price, "bid1Price"); err != nil {
		return nil, err
	}
	if ticker.Ask, err = parseFloat(row.Ask1Price, "ask1Price"); err != nil {
		return nil, err
	}
	if ticker.Volume24h, err = parseFloat(row.Volume24h, "volume24h"); err != nil {
		return nil, err
	}
	if ticker.QuoteVolume24h, err = parseFloat(row.Turnover24h, "turnover24h"); err != nil {
		return nil, err
	}
	if ticker.FundingRate, err = parseFloat(row.FundingRate, "fundingRate"); err != nil {
		return nil, err
	}
	if pct, err := parseFloat(row.Price24hPcnt, "price24hPcnt"); err == nil {
		ticker.PriceChange24h = pct
	}
	if oi, err := parseFloat(row.OpenInterest, "openInterest"); err == nil {
		ticker.OpenInterest = oi
		ticker.OpenInterestValue = oi * ticker.Price
	}
	if ms, err := parseFloat(row.NextFundTime, "nextFundingTime"); err == nil {
		ticker.NextFundingTime = time.UnixMilli(int64(ms))
	}
	return ticker, nil
}

func (b *BybitAdapter) Positioning(ctx context.Context, symbol string) (*Positioning, error) {
	endpoint := fmt.Sprintf("/v5/market/account-ratio?category=linear&symbol=%s&period=5min&limit=1",
		strings.ToUpper(symbol))
	var result struct {
		List []struct {
			BuyRatio  string `json:"buyRatio"`
			SellRatio string `json:"sellRatio"`
		} `json:"list"`
	}
	if err := b.result(ctx, endpoint, &result); err != nil {
		return nil, err
	}
	if len(result.List) == 0 {
		return nil, fmt.Errorf("empty bybit account ratio for %s", symbol)
	}

	long, err := parseFloat(result.List[0].BuyRatio, "buyRatio")
	if err != nil {
		return nil, err
	}
	short, err := parseFloat(result.List[0].SellRatio, "sellRatio")
	if err != nil {
		return nil, err
	}
	return &Positioning{Venue: "bybit", LongRatio: long, ShortRatio: short}, nil
}

// Liquidations: Bybit exposes liquidations over WebSocket only, which is out
// of scope here, so this venue contributes no events to the aggregate.
func (b *BybitAdapter) Liquidations(ctx context.Context, symbol string, since time.Time) ([]LiquidationEvent, error) {
	return []LiquidationEvent{}, nil
}

func (b *BybitAdapter) OrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error) {
	endpoint := fmt.Sprintf("/v5/market/orderbook?category=linear&symbol=%s&limit=%d",
		strings.ToUpper(symbol), depth)
	var result struct {
		Bids [][2]string `json:"b"`
		Asks [][2]string `json:"a"`
	}
	if err := b.result(ctx, endpoint, &result); err != nil {
		return nil, err
	}

	book := &OrderBook{Symbol: strings.ToUpper(symbol), Venue: "bybit", FetchedAt: time.Now()}
	var err error
	if book.Bids, err = parseLevels(result.Bids); err != nil {
		return nil, fmt.Errorf("invalid bybit bids: %w", err)
	}
	if book.Asks, err = parseLevels(result.Asks); err != nil {
		return nil, fmt.Errorf("invalid bybit asks: %w", err)
	}
	return book, nil
}

func (b *BybitAdapter) OIHistory(ctx context.Context, symbol string, limit int) ([]OIPoint, error) {
	endpoint := fmt.Sprintf("/v5/market/open-interest?category=linear&symbol=%s&intervalTime=1h&limit=%d",
		strings.ToUpper(symbol), limit)
	var result struct {
		List []struct {
			OpenInterest string `json:"openInterest"`
			Timestamp    string `json:"timestamp"`
		} `json:"list"`
	}
	if err := b.result(ctx, endpoint, &result); err != nil {
		return nil, err
	}

	// Bybit returns newest first; normalize to oldest first.
	points := make([]OIPoint, 0, len(result.List))
	for i := len(result.List) - 1; i >= 0; i-- {
		row := result.List[i]
		oi, err := parseFloat(row.OpenInterest, "openInterest")
		if err != nil {
			continue
		}
		ms, err := parseFloat(row.Timestamp, "timestamp")
		if err != nil {
			continue
		}
		points = append(points, OIPoint{
			Timestamp:    time.UnixMilli(int64(ms)),
			OpenInterest: oi,
		})
	}
	return points, nil
}
