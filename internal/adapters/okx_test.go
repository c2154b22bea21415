package adapters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOKXAdapter(baseURL string) *OKXAdapter {
	return NewOKXAdapter(Config{BaseURL: baseURL, RateLimitRPS: 1000})
}

func TestOKXPositioningDerivesFractions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.RawQuery, "ccy=BTC")
		w.Write([]byte(`{"code":"0","msg":"","data":[["1767225600000","1.5"]]}`))
	}))
	defer server.Close()

	positioning, err := newTestOKXAdapter(server.URL).Positioning(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	// A 1.5 long/short ratio means 60% of accounts are long.
	assert.InDelta(t, 0.6, positioning.LongRatio, 1e-9)
	assert.InDelta(t, 0.4, positioning.ShortRatio, 1e-9)
}

func TestOKXErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"51001","msg":"Instrument ID does not exist","data":[]}`))
	}))
	defer server.Close()

	_, err := newTestOKXAdapter(server.URL).Positioning(context.Background(), "BTCUSDT")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "51001")
}

func TestOKXOrderBookParsesWideRows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"0","msg":"","data":[{"bids":[["49990","1.5","0","4"]],"asks":[["50010","2","0","7"]]}]}`))
	}))
	defer server.Close()

	book, err := newTestOKXAdapter(server.URL).OrderBook(context.Background(), "BTCUSDT", 50)
	require.NoError(t, err)
	assert.Equal(t, 49990.0, book.BestBid())
	assert.Equal(t, 50010.0, book.BestAsk())
	assert.Equal(t, 2.0, book.Asks[0].Size)
}

func TestOKXOIHistoryNewestFirstFlipped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "open-interest-volume") {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"code":"0","msg":"","data":[["1767229200000","4100000000","0"],["1767225600000","4000000000","0"],["1767222000000","3900000000","0"]]}`))
	}))
	defer server.Close()

	points, err := newTestOKXAdapter(server.URL).OIHistory(context.Background(), "BTCUSDT", 2)
	require.NoError(t, err)
	require.Len(t, points, 2, "limit keeps the newest points")

	assert.True(t, points[0].Timestamp.Before(points[1].Timestamp), "oldest first after the flip")
	assert.Equal(t, 4_000_000_000.0, points[0].OpenInterestValue)
	assert.Equal(t, 4_100_000_000.0, points[1].OpenInterestValue)
}
