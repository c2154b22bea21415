// Package timeseries holds the rolling in-memory snapshot store that feeds
// percentage-delta queries for the signal engines. State is per-process and
// rebuilt from the exchanges on restart; there is no durable layer.
package timeseries

import (
	"sync"
	"time"
)

const (
	// sampleInterval caps recording at one snapshot per 5-minute bucket
	// per symbol.
	sampleInterval = 5 * time.Minute

	priceRetention = 7 * 24 * time.Hour
	oiRetention    = 24 * time.Hour
)

// PriceSnapshot is one recorded price observation.
type PriceSnapshot struct {
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// OISnapshot is one recorded open-interest observation.
type OISnapshot struct {
	Symbol    string    `json:"symbol"`
	OI        float64   `json:"oi"`
	OIValue   float64   `json:"oi_value"`
	Timestamp time.Time `json:"timestamp"`
}

// Cache is a rolling price/OI store keyed by symbol. Sequences are
// timestamp-ascending with at most one entry per sampling bucket; writes
// serialize under the mutex, reads never mutate.
type Cache struct {
	mu     sync.RWMutex
	prices map[string][]PriceSnapshot
	oi     map[string][]OISnapshot
	now    func() time.Time
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		prices: make(map[string][]PriceSnapshot),
		oi:     make(map[string][]OISnapshot),
		now:    time.Now,
	}
}

// RecordPrice appends a price snapshot unless the newest snapshot for the
// symbol is younger than the sampling interval, then prunes past retention.
// Oversampled calls are dropped silently.
func (c *Cache) RecordPrice(symbol string, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	series := c.prices[symbol]
	if len(series) > 0 && now.Sub(series[len(series)-1].Timestamp) < sampleInterval {
		return
	}

	series = append(series, PriceSnapshot{Price: price, Timestamp: now})
	c.prices[symbol] = prunePrices(series, now.Add(-priceRetention))
}

// RecordOI appends an OI snapshot with the same bucketing rule and a
// 24-hour retention horizon.
func (c *Cache) RecordOI(symbol string, oi, oiValue float64) {
	c.recordOIAt(symbol, oi, oiValue, c.now())
}

func (c *Cache) recordOIAt(symbol string, oi, oiValue float64, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	series := c.oi[symbol]
	if len(series) > 0 && at.Sub(series[len(series)-1].Timestamp) < sampleInterval {
		return
	}
	if len(series) > 0 && !at.After(series[len(series)-1].Timestamp) {
		return
	}

	series = append(series, OISnapshot{Symbol: symbol, OI: oi, OIValue: oiValue, Timestamp: at})
	c.oi[symbol] = pruneOI(series, c.now().Add(-oiRetention))
}

// PriceChange returns the percentage change over the lookback period, using
// the most recent snapshot at or before now-period, falling back to the
// oldest available. Fewer than two snapshots, or a zero historical price,
// yields 0.
func (c *Cache) PriceChange(symbol string, period time.Duration) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	series := c.prices[symbol]
	if len(series) < 2 {
		return 0
	}

	current := series[len(series)-1].Price
	historical := series[0].Price
	cutoff := c.now().Add(-period)
	for i := len(series) - 1; i >= 0; i-- {
		if !series[i].Timestamp.After(cutoff) {
			historical = series[i].Price
			break
		}
	}

	if historical == 0 {
		return 0
	}
	return (current - historical) / historical * 100
}

// OIChange mirrors PriceChange over the OI-value series.
func (c *Cache) OIChange(symbol string, period time.Duration) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	series := c.oi[symbol]
	if len(series) < 2 {
		return 0
	}

	current := series[len(series)-1].OIValue
	historical := series[0].OIValue
	cutoff := c.now().Add(-period)
	for i := len(series) - 1; i >= 0; i-- {
		if !series[i].Timestamp.After(cutoff) {
			historical = series[i].OIValue
			break
		}
	}

	if historical == 0 {
		return 0
	}
	return (current - historical) / historical * 100
}

// CachedPrice returns the latest recorded price for the symbol.
func (c *Cache) CachedPrice(symbol string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	series := c.prices[symbol]
	if len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1].Price, true
}

// SnapshotCounts reports per-symbol series lengths for monitoring.
func (c *Cache) SnapshotCounts() (prices, oi map[string]int) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	prices = make(map[string]int, len(c.prices))
	for symbol, series := range c.prices {
		prices[symbol] = len(series)
	}
	oi = make(map[string]int, len(c.oi))
	for symbol, series := range c.oi {
		oi[symbol] = len(series)
	}
	return prices, oi
}

func prunePrices(series []PriceSnapshot, horizon time.Time) []PriceSnapshot {
	idx := 0
	for idx < len(series) && series[idx].Timestamp.Before(horizon) {
		idx++
	}
	return series[idx:]
}

func pruneOI(series []OISnapshot, horizon time.Time) []OISnapshot {
	idx := 0
	for idx < len(series) && series[idx].Timestamp.Before(horizon) {
		idx++
	}
	return series[idx:]
}
