package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// OKXAdapter reads OKX swap endpoints. OKX instruments use the
// BASE-QUOTE-SWAP convention, converted from the flat symbol form.
type OKXAdapter struct {
	client *restClient
}

// NewOKXAdapter creates an OKX adapter.
func NewOKXAdapter(config Config) *OKXAdapter {
	config.applyDefaults("https://www.okx.com", 5.0)
	return &OKXAdapter{client: newRESTClient("okx", config)}
}

func (o *OKXAdapter) Name() string { return "okx" }

// instID converts BTCUSDT into BTC-USDT-SWAP.
func instID(symbol string) string {
	sym := strings.ToUpper(symbol)
	for _, quote := range []string{"USDT", "USDC", "USD"} {
		if strings.HasSuffix(sym, quote) && len(sym) > len(quote) {
			return sym[:len(sym)-len(quote)] + "-" + quote + "-SWAP"
		}
	}
	return sym + "-SWAP"
}

type okxEnvelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (o *OKXAdapter) data(ctx context.Context, endpoint string, out interface{}) error {
	body, err := o.client.get(ctx, endpoint)
	if err != nil {
		return err
	}
	var envelope okxEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("failed to parse okx envelope: %w", err)
	}
	if envelope.Code != "0" {
		return fmt.Errorf("okx error %s: %s", envelope.Code, envelope.Msg)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("failed to parse okx data: %w", err)
	}
	return nil
}

func (o *OKXAdapter) Ticker(ctx context.Context, symbol string) (*Ticker, error) {
	id := instID(symbol)
	var rows []struct {
		Last      string `json:"last"`
		BidPx     string `json:"bidPx"`
		AskPx     string `json:"askPx"`
		Vol24h    string `json:"vol24h"`
		VolCcy24h string `json:"volCcy24h"`
		Open24h   string `json:"open24h"`
	}
	if err := o.data(ctx, "/api/v5/market/ticker?instId="+id, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty okx ticker response for %s", id)
	}

	row := rows[0]
	ticker := &Ticker{Symbol: strings.ToUpper(symbol), Venue: "okx", Timestamp: time.Now()}
	var err error
	if ticker.Price, err = parseFloat(row.Last, "last"); err != nil {
		return nil, err
	}
	if ticker.Bid, err = parseFloat(row.BidPx, "bidPx"); err != nil {
		return nil, err
	}
	if ticker.Ask, err = parseFloat(row.AskPx, "askPx"); err != nil {
		return nil, err
	}
	if ticker.Volume24h, err = parseFloat(row.Vol24h, "vol24h"); err != nil {
		return nil, err
	}
	if quote, err := parseFloat(row.VolCcy24h, "volCcy24h"); err == nil {
		ticker.QuoteVolume24h = quote
	}
	if open, err := parseFloat(row.Open24h, "open24h"); err == nil && open > 0 {
		ticker.PriceChange24h = (ticker.Price - open) / open
	}

	if err := o.fillFunding(ctx, id, ticker); err != nil {
		return nil, err
	}
	if err := o.fillOpenInterest(ctx, id, ticker); err != nil {
		return nil, err
	}
	return ticker, nil
}

func (o *OKXAdapter) fillFunding(ctx context.Context, id string, ticker *Ticker) error {
	var rows []struct {
		FundingRate     string `json:"fundingRate"`
		NextFundingTime string `json:"nextFundingTime"`
	}
	if err := o.data(ctx, "/api/v5/public/funding-rate?instId="+id, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("empty okx funding response for %s", id)
	}
	rate, err := parseFloat(rows[0].FundingRate, "fundingRate")
	if err != nil {
		return err
	}
	ticker.FundingRate = rate
	if ms, err := parseFloat(rows[0].NextFundingTime, "nextFundingTime"); err == nil {
		ticker.NextFundingTime = time.UnixMilli(int64(ms))
	}
	return nil
}

func (o *OKXAdapter) fillOpenInterest(ctx context.Context, id string, ticker *Ticker) error {
	var rows []struct {
		OI    string `json:"oi"`
		OICcy string `json:"oiCcy"`
	}
	if err := o.data(ctx, "/api/v5/public/open-interest?instId="+id, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("empty okx open interest response for %s", id)
	}
	if oi, err := parseFloat(rows[0].OICcy, "oiCcy"); err == nil {
		ticker.OpenInterest = oi
		ticker.OpenInterestValue = oi * ticker.Price
	}
	return nil
}

func (o *OKXAdapter) Positioning(ctx context.Context, symbol string) (*Positioning, error) {
	base := strings.TrimSuffix(instID(symbol), "-SWAP")
	ccy := strings.Split(base, "-")[0]
	var rows [][]string
	if err := o.data(ctx, "/api/v5/rubik/stat/contracts/long-short-account-ratio?ccy="+ccy+"&period=5m", &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 || len(rows[0]) < 2 {
		return nil, fmt.Errorf("empty okx long/short ratio for %s", ccy)
	}

	// OKX reports a single long/short ratio; derive the two fractions.
	ratio, err := parseFloat(rows[0][1], "longShortRatio")
	if err != nil {
		return nil, err
	}
	if ratio <= 0 {
		return nil, fmt.Errorf("invalid okx long/short ratio: %f", ratio)
	}
	long := ratio / (1 + ratio)
	return &Positioning{Venue: "okx", LongRatio: long, ShortRatio: 1 - long}, nil
}

func (o *OKXAdapter) Liquidations(ctx context.Context, symbol string, since time.Time) ([]LiquidationEvent, error) {
	id := instID(symbol)
	var rows []struct {
		Details []struct {
			Side    string `json:"side"`
			BkPx    string `json:"bkPx"`
			Sz      string `json:"sz"`
			TS      string `json:"ts"`
		} `json:"details"`
	}
	if err := o.data(ctx, "/api/v5/public/liquidation-orders?instType=SWAP&state=filled&uly="+strings.TrimSuffix(id, "-SWAP"), &rows); err != nil {
		return nil, err
	}

	var events []LiquidationEvent
	for _, row := range rows {
		for _, detail := range row.Details {
			price, err := parseFloat(detail.BkPx, "bkPx")
			if err != nil {
				continue
			}
			size, err := parseFloat(detail.Sz, "sz")
			if err != nil {
				continue
			}
			ms, err := parseFloat(detail.TS, "ts")
			if err != nil {
				continue
			}
			ts := time.UnixMilli(int64(ms))
			if ts.Before(since) {
				continue
			}
			side, ok := NormalizeSide(detail.Side)
			if !ok {
				continue
			}
			events = append(events, LiquidationEvent{
				Symbol:    strings.ToUpper(symbol),
				Venue:     "okx",
				Side:      side,
				Price:     price,
				Quantity:  size,
				Timestamp: ts,
			})
		}
	}
	return events, nil
}

func (o *OKXAdapter) OrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error) {
	endpoint := fmt.Sprintf("/api/v5/market/books?instId=%s&sz=%d", instID(symbol), depth)
	var rows []struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	}
	if err := o.data(ctx, endpoint, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty okx order book for %s", symbol)
	}

	book := &OrderBook{Symbol: strings.ToUpper(symbol), Venue: "okx", FetchedAt: time.Now()}
	var err error
	if book.Bids, err = parseOKXLevels(rows[0].Bids); err != nil {
		return nil, fmt.Errorf("invalid okx bids: %w", err)
	}
	if book.Asks, err = parseOKXLevels(rows[0].Asks); err != nil {
		return nil, fmt.Errorf("invalid okx asks: %w", err)
	}
	return book, nil
}

// OKX book rows carry extra order-count columns beyond price and size.
func parseOKXLevels(raw [][]string) ([]BookLevel, error) {
	levels := make([]BookLevel, 0, len(raw))
	for _, row := range raw {
		if len(row) < 2 {
			return nil, fmt.Errorf("short book row: %v", row)
		}
		price, err := parseFloat(row[0], "price")
		if err != nil {
			return nil, err
		}
		size, err := parseFloat(row[1], "size")
		if err != nil {
			return nil, err
		}
		levels = append(levels, BookLevel{Price: price, Size: size})
	}
	return levels, nil
}

func (o *OKXAdapter) OIHistory(ctx context.Context, symbol string, limit int) ([]OIPoint, error) {
	base := strings.TrimSuffix(instID(symbol), "-SWAP")
	ccy := strings.Split(base, "-")[0]
	var rows [][]string
	if err := o.data(ctx, "/api/v5/rubik/stat/contracts/open-interest-volume?ccy="+ccy+"&period=1H", &rows); err != nil {
		return nil, err
	}

	// rubik rows arrive newest first; keep the latest `limit` and flip to
	// oldest first.
	points := make([]OIPoint, 0, limit)
	for _, row := range rows {
		if len(points) == limit {
			break
		}
		if len(row) < 2 {
			continue
		}
		ms, err := parseFloat(row[0], "ts")
		if err != nil {
			continue
		}
		oi, err := parseFloat(row[1], "oi")
		if err != nil {
			continue
		}
		points = append(points, OIPoint{
			Timestamp:         time.UnixMilli(int64(ms)),
			OpenInterestValue: oi,
		})
	}
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, nil
}
