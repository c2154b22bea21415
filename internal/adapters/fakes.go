package adapters

import (
	"context"
	"fmt"
	"time"
)

// FakeExchange is a configurable in-memory Exchange for tests. Any response
// left nil yields a "not configured" error, matching the partial-failure
// semantics the aggregators must tolerate.
type FakeExchange struct {
	Venue            string
	TickerResponse   *Ticker
	PositioningResp  *Positioning
	LiquidationFeed  []LiquidationEvent
	OrderBookResp    *OrderBook
	OIHistoryResp    []OIPoint
	Err              error
	PositioningErr   error
	LiquidationsErr  error
	OrderBookErr     error
	OIHistoryErr     error
	TickerCalls      int
	PositioningCalls int
}

// NewFakeExchange creates a fake venue with the given name.
func NewFakeExchange(venue string) *FakeExchange {
	return &FakeExchange{Venue: venue}
}

func (f *FakeExchange) Name() string { return f.Venue }

func (f *FakeExchange) Ticker(ctx context.Context, symbol string) (*Ticker, error) {
	f.TickerCalls++
	if f.Err != nil {
		return nil, f.Err
	}
	if f.TickerResponse == nil {
		return nil, fmt.Errorf("fake %s: no ticker configured", f.Venue)
	}
	ticker := *f.TickerResponse
	ticker.Symbol = symbol
	ticker.Venue = f.Venue
	return &ticker, nil
}

func (f *FakeExchange) Positioning(ctx context.Context, symbol string) (*Positioning, error) {
	f.PositioningCalls++
	if f.Err != nil {
		return nil, f.Err
	}
	if f.PositioningErr != nil {
		return nil, f.PositioningErr
	}
	if f.PositioningResp == nil {
		return nil, fmt.Errorf("fake %s: no positioning configured", f.Venue)
	}
	positioning := *f.PositioningResp
	positioning.Venue = f.Venue
	return &positioning, nil
}

func (f *FakeExchange) Liquidations(ctx context.Context, symbol string, since time.Time) ([]LiquidationEvent, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	if f.LiquidationsErr != nil {
		return nil, f.LiquidationsErr
	}
	var events []LiquidationEvent
	for _, event := range f.LiquidationFeed {
		if event.Timestamp.After(since) || event.Timestamp.Equal(since) {
			events = append(events, event)
		}
	}
	return events, nil
}

func (f *FakeExchange) OrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	if f.OrderBookErr != nil {
		return nil, f.OrderBookErr
	}
	if f.OrderBookResp == nil {
		return nil, fmt.Errorf("fake %s: no order book configured", f.Venue)
	}
	return f.OrderBookResp, nil
}

func (f *FakeExchange) OIHistory(ctx context.Context, symbol string, limit int) ([]OIPoint, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	if f.OIHistoryErr != nil {
		return nil, f.OIHistoryErr
	}
	if len(f.OIHistoryResp) > limit {
		return f.OIHistoryResp[len(f.OIHistoryResp)-limit:], nil
	}
	return f.OIHistoryResp, nil
}
