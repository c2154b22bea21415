// Package alerts gates squeeze signals through suppression rules before
// they reach the surface: quality floors, cooldowns and the funding
// settlement blackout.
package alerts

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/marketscope/derivscope/internal/metrics"
	"github.com/marketscope/derivscope/internal/squeeze"
)

// Alert is a signal that cleared every gate. Suppressed signals are never
// stored; their verdict and reason travel on the Decision returned to the
// caller. Confirmation/resolution tracking needs an outcome feed that does
// not exist in-process, so the lifecycle ends at notification.
type Alert struct {
	ID         string          `json:"id"`
	Signal     *squeeze.Signal `json:"signal"`
	CreatedAt  time.Time       `json:"created_at"`
	NotifiedAt time.Time       `json:"notified_at"`
}

// Decision is a gate verdict with a human-readable reason when suppressed.
type Decision struct {
	ShouldAlert bool   `json:"should_alert"`
	Reason      string `json:"reason,omitempty"`
}

// Policy holds the suppression thresholds.
type Policy struct {
	MinProbability      float64          `yaml:"min_probability"`
	MinStrength         squeeze.Strength `yaml:"min_strength"`
	Cooldown            time.Duration    `yaml:"cooldown"`
	BlackoutHoursUTC    []int            `yaml:"blackout_hours_utc"`
	MinActiveComponents int              `yaml:"min_active_components"`
	RetainFor           time.Duration    `yaml:"retain_for"`
}

// DefaultPolicy returns the production alert policy. The blackout hours
// bracket the 00/08/16 UTC funding settlements, when funding-driven
// signals whipsaw.
func DefaultPolicy() Policy {
	return Policy{
		MinProbability:      60,
		MinStrength:         squeeze.Imminent,
		Cooldown:            15 * time.Minute,
		BlackoutHoursUTC:    []int{23, 0, 7, 8, 15, 16},
		MinActiveComponents: 3,
		RetainFor:           24 * time.Hour,
	}
}

// Manager applies the policy and keeps per-process alert state. Alerts are
// keyed by symbol-type; a later passing signal for the same key supersedes
// the stored one.
type Manager struct {
	mu           sync.Mutex
	policy       Policy
	lastNotified map[string]time.Time
	alerts       map[string]*Alert
	metrics      *metrics.Metrics
	now          func() time.Time
}

// NewManager creates an alert manager.
func NewManager(policy Policy) *Manager {
	return &Manager{
		policy:       policy,
		lastNotified: make(map[string]time.Time),
		alerts:       make(map[string]*Alert),
		now:          time.Now,
	}
}

// SetMetrics attaches prometheus instrumentation.
func (m *Manager) SetMetrics(metrics *metrics.Metrics) {
	m.metrics = metrics
}

// Process gates a signal. The gates run in a fixed order and the first
// failure wins; passing all of them records the notification time and
// stores the alert.
func (m *Manager) Process(signal *squeeze.Signal) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	if signal.Probability < m.policy.MinProbability {
		return m.suppress("probability_floor",
			fmt.Sprintf("probability %.0f%% below %.0f%% floor", signal.Probability, m.policy.MinProbability))
	}
	if signal.Strength.Rank() < m.policy.MinStrength.Rank() {
		return m.suppress("strength_floor",
			fmt.Sprintf("strength %s below %s floor", signal.Strength, m.policy.MinStrength))
	}
	if last, ok := m.lastNotified[signal.Symbol]; ok && now.Sub(last) < m.policy.Cooldown {
		remaining := m.policy.Cooldown - now.Sub(last)
		return m.suppress("cooldown",
			fmt.Sprintf("cooldown for %s active, %s remaining", signal.Symbol, remaining.Round(time.Second)))
	}
	if m.inBlackout(now) {
		return m.suppress("funding_blackout",
			fmt.Sprintf("funding settlement blackout at %02d:00 UTC", now.UTC().Hour()))
	}
	if active := signal.Components.ActiveCount(); active < m.policy.MinActiveComponents {
		return m.suppress("component_quorum",
			fmt.Sprintf("only %d of 6 components active, need %d", active, m.policy.MinActiveComponents))
	}

	m.lastNotified[signal.Symbol] = now
	key := fmt.Sprintf("%s-%s", signal.Symbol, signal.Type)
	m.alerts[key] = &Alert{
		ID:         uuid.NewString(),
		Signal:     signal,
		CreatedAt:  now,
		NotifiedAt: now,
	}

	m.metrics.RecordAlertDecision("alerted")
	log.Info().Str("symbol", signal.Symbol).Str("type", string(signal.Type)).
		Float64("probability", signal.Probability).Msg("squeeze alert raised")
	return Decision{ShouldAlert: true}
}

func (m *Manager) suppress(gate, reason string) Decision {
	m.metrics.RecordAlertDecision(gate)
	return Decision{ShouldAlert: false, Reason: reason}
}

func (m *Manager) inBlackout(now time.Time) bool {
	hour := now.UTC().Hour()
	for _, blackout := range m.policy.BlackoutHoursUTC {
		if hour == blackout {
			return true
		}
	}
	return false
}

// Active returns the stored alerts, newest first not guaranteed.
func (m *Manager) Active() []*Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	alerts := make([]*Alert, 0, len(m.alerts))
	for _, alert := range m.alerts {
		alerts = append(alerts, alert)
	}
	return alerts
}

// Cleanup drops alerts older than the retention window and stale cooldown
// stamps; returns how many alerts were removed.
func (m *Manager) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	horizon := m.now().Add(-m.policy.RetainFor)
	removed := 0
	for key, alert := range m.alerts {
		if alert.CreatedAt.Before(horizon) {
			delete(m.alerts, key)
			removed++
		}
	}
	for symbol, notified := range m.lastNotified {
		if notified.Before(horizon) {
			delete(m.lastNotified, symbol)
		}
	}
	return removed
}
