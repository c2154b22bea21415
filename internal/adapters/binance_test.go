package adapters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newBinanceTestServer routes the endpoints the adapter hits to canned
// responses.
func newBinanceTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/fapi/v1/ticker/24hr"):
			w.Write([]byte(`{"symbol":"BTCUSDT","lastPrice":"50000.50","priceChangePercent":"2.5","volume":"12345.6","quoteVolume":"617000000"}`))
		case strings.HasPrefix(r.URL.Path, "/fapi/v1/premiumIndex"):
			w.Write([]byte(`{"lastFundingRate":"0.00035","nextFundingTime":1767225600000}`))
		case strings.HasPrefix(r.URL.Path, "/fapi/v1/openInterest"):
			w.Write([]byte(`{"openInterest":"80000.25"}`))
		case strings.HasPrefix(r.URL.Path, "/futures/data/takerlongshortRatio"):
			w.Write([]byte(`[{"buyVol":"1000.5","sellVol":"900.5"},{"buyVol":"2000","sellVol":"1500"}]`))
		case strings.HasPrefix(r.URL.Path, "/futures/data/topLongShortAccountRatio"):
			w.Write([]byte(`[{"longAccount":"0.62","shortAccount":"0.38"}]`))
		case strings.HasPrefix(r.URL.Path, "/fapi/v1/allForceOrders"):
			w.Write([]byte(`[{"symbol":"BTCUSDT","side":"SELL","avgPrice":"49500.0","executedQty":"3.0","time":1767225000000},{"symbol":"BTCUSDT","side":"BOTH","avgPrice":"49400.0","executedQty":"1.0","time":1767225100000}]`))
		case strings.HasPrefix(r.URL.Path, "/fapi/v1/depth"):
			w.Write([]byte(`{"bids":[["49990","1.5"],["49980","2"]],"asks":[["50010","1"],["50020","3"]]}`))
		case strings.HasPrefix(r.URL.Path, "/futures/data/openInterestHist"):
			w.Write([]byte(`[{"sumOpenInterest":"79000","sumOpenInterestValue":"3950000000","timestamp":1767222000000},{"sumOpenInterest":"80000","sumOpenInterestValue":"4000000000","timestamp":1767225600000}]`))
		default:
			http.NotFound(w, r)
		}
	}))
}

func newTestBinanceAdapter(baseURL string) *BinanceAdapter {
	return NewBinanceAdapter(Config{BaseURL: baseURL, RateLimitRPS: 1000})
}

func TestBinanceTickerMergesEndpoints(t *testing.T) {
	server := newBinanceTestServer(t)
	defer server.Close()

	ticker, err := newTestBinanceAdapter(server.URL).Ticker(context.Background(), "btcusdt")
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", ticker.Symbol)
	assert.Equal(t, "binance", ticker.Venue)
	assert.Equal(t, 50000.50, ticker.Price)
	assert.InDelta(t, 0.025, ticker.PriceChange24h, 1e-9, "percent converts to fraction")
	assert.Equal(t, 0.00035, ticker.FundingRate)
	assert.Equal(t, 80000.25, ticker.OpenInterest)
	assert.InDelta(t, 80000.25*50000.50, ticker.OpenInterestValue, 1e-3)
	assert.InDelta(t, 3000.5, ticker.BuyVolume24h, 1e-9)
	assert.InDelta(t, 2400.5, ticker.SellVolume24h, 1e-9)
}

func TestBinancePositioning(t *testing.T) {
	server := newBinanceTestServer(t)
	defer server.Close()

	positioning, err := newTestBinanceAdapter(server.URL).Positioning(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 0.62, positioning.LongRatio)
	assert.Equal(t, 0.38, positioning.ShortRatio)
}

func TestBinanceLiquidations(t *testing.T) {
	server := newBinanceTestServer(t)
	defer server.Close()

	events, err := newTestBinanceAdapter(server.URL).
		Liquidations(context.Background(), "BTCUSDT", time.UnixMilli(1767220000000))
	require.NoError(t, err)
	require.Len(t, events, 1, "order with an unknown side is dropped")

	assert.Equal(t, SideLong, events[0].Side, "forced SELL is a liquidated long")
	assert.Equal(t, 49500.0, events[0].Price)
	assert.Equal(t, 3.0, events[0].Quantity)
	assert.InDelta(t, 148500.0, events[0].ValueUSD(), 1e-6)
}

func TestBinanceOrderBook(t *testing.T) {
	server := newBinanceTestServer(t)
	defer server.Close()

	book, err := newTestBinanceAdapter(server.URL).OrderBook(context.Background(), "BTCUSDT", 50)
	require.NoError(t, err)

	require.Len(t, book.Bids, 2)
	require.Len(t, book.Asks, 2)
	assert.Equal(t, 49990.0, book.BestBid())
	assert.Equal(t, 50010.0, book.BestAsk())
	assert.Equal(t, 1.5, book.Bids[0].Size)
}

func TestBinanceOIHistory(t *testing.T) {
	server := newBinanceTestServer(t)
	defer server.Close()

	points, err := newTestBinanceAdapter(server.URL).OIHistory(context.Background(), "BTCUSDT", 24)
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.True(t, points[0].Timestamp.Before(points[1].Timestamp), "oldest first")
	assert.Equal(t, 79000.0, points[0].OpenInterest)
	assert.Equal(t, 4_000_000_000.0, points[1].OpenInterestValue)
}

func TestRestClientSurfacesHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestBinanceAdapter(server.URL).Ticker(context.Background(), "BTCUSDT")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 429")
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	adapter := newTestBinanceAdapter(server.URL)
	for i := 0; i < 5; i++ {
		_, err := adapter.Ticker(context.Background(), "BTCUSDT")
		require.Error(t, err)
	}

	_, err := adapter.Ticker(context.Background(), "BTCUSDT")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
}
