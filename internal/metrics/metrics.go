// Package metrics registers the prometheus instruments for the scanner.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the registered collectors. A nil *Metrics is valid and
// turns every recording call into a no-op, so engines can run uninstrumented
// in tests.
type Metrics struct {
	VenueRequests    *prometheus.CounterVec
	VenueFailures    *prometheus.CounterVec
	CacheSnapshots   *prometheus.GaugeVec
	SqueezeSignals   *prometheus.CounterVec
	AlertDecisions   *prometheus.CounterVec
	RegimeScore      prometheus.Gauge
	RegimeConfidence prometheus.Gauge
}

// New registers the derivscope collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		VenueRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "derivscope_venue_requests_total",
			Help: "Adapter requests issued per venue and endpoint",
		}, []string{"venue", "endpoint"}),
		VenueFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "derivscope_venue_failures_total",
			Help: "Adapter requests that failed per venue and endpoint",
		}, []string{"venue", "endpoint"}),
		CacheSnapshots: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "derivscope_cache_snapshots",
			Help: "Rolling cache series length per symbol and kind",
		}, []string{"symbol", "kind"}),
		SqueezeSignals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "derivscope_squeeze_signals_total",
			Help: "Squeeze signals emitted per type and strength",
		}, []string{"type", "strength"}),
		AlertDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "derivscope_alert_decisions_total",
			Help: "Alert gate outcomes per decision",
		}, []string{"decision"}),
		RegimeScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "derivscope_regime_score",
			Help: "Latest composite regime score",
		}),
		RegimeConfidence: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "derivscope_regime_confidence",
			Help: "Latest regime confidence percentage",
		}),
	}

	reg.MustRegister(
		m.VenueRequests, m.VenueFailures, m.CacheSnapshots,
		m.SqueezeSignals, m.AlertDecisions,
		m.RegimeScore, m.RegimeConfidence,
	)
	return m
}

// RecordVenueRequest counts one adapter call and its outcome.
func (m *Metrics) RecordVenueRequest(venue, endpoint string, err error) {
	if m == nil {
		return
	}
	m.VenueRequests.WithLabelValues(venue, endpoint).Inc()
	if err != nil {
		m.VenueFailures.WithLabelValues(venue, endpoint).Inc()
	}
}

// RecordSqueezeSignal counts an emitted squeeze signal.
func (m *Metrics) RecordSqueezeSignal(squeezeType, strength string) {
	if m == nil {
		return
	}
	m.SqueezeSignals.WithLabelValues(squeezeType, strength).Inc()
}

// RecordAlertDecision counts an alert gate outcome ("alerted" or the
// suppression gate name).
func (m *Metrics) RecordAlertDecision(decision string) {
	if m == nil {
		return
	}
	m.AlertDecisions.WithLabelValues(decision).Inc()
}

// RecordRegime publishes the latest regime score and confidence.
func (m *Metrics) RecordRegime(score, confidence float64) {
	if m == nil {
		return
	}
	m.RegimeScore.Set(score)
	m.RegimeConfidence.Set(confidence)
}

// RecordCacheSize publishes a cache series length.
func (m *Metrics) RecordCacheSize(symbol, kind string, size int) {
	if m == nil {
		return
	}
	m.CacheSnapshots.WithLabelValues(symbol, kind).Set(float64(size))
}
