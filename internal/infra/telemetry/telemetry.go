package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the session lifecycle counters exported on /metrics.
type Metrics struct {
	logins        prometheus.Counter
	rotations     prometheus.Counter
	replays       prometheus.Counter
	revocations   *prometheus.CounterVec
	purgedRecords prometheus.Counter
}

// NewMetrics registers the session counters on the supplied registerer.
// Tests pass a fresh prometheus.NewRegistry to avoid cross-test collisions.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		logins: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cineverse",
			Subsystem: "sessions",
			Name:      "logins_total",
			Help:      "Total number of token families opened by login",
		}),
		rotations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cineverse",
			Subsystem: "sessions",
			Name:      "rotations_total",
			Help:      "Total number of successful refresh token rotations",
		}),
		replays: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cineverse",
			Subsystem: "sessions",
			Name:      "replays_detected_total",
			Help:      "Total number of refresh token replays that burned a family",
		}),
		revocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cineverse",
			Subsystem: "sessions",
			Name:      "revocations_total",
			Help:      "Total number of revocations by scope",
		}, []string{"scope"}),
		purgedRecords: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cineverse",
			Subsystem: "sessions",
			Name:      "purged_records_total",
			Help:      "Total number of refresh token records removed by retention purges",
		}),
	}
}

// NewNopMetrics returns metrics bound to a throwaway registry.
func NewNopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// IncLogin counts a successful login.
func (m *Metrics) IncLogin() {
	if m == nil {
		return
	}
	m.logins.Inc()
}

// IncRotation counts a successful refresh rotation.
func (m *Metrics) IncRotation() {
	if m == nil {
		return
	}
	m.rotations.Inc()
}

// IncReplayDetected counts a detected refresh token reuse.
func (m *Metrics) IncReplayDetected() {
	if m == nil {
		return
	}
	m.replays.Inc()
}

// IncRevocation counts a revocation for the given scope ("family" or "principal").
func (m *Metrics) IncRevocation(scope string) {
	if m == nil {
		return
	}
	m.revocations.WithLabelValues(scope).Inc()
}

// AddPurgedRecords counts records removed by a retention purge.
func (m *Metrics) AddPurgedRecords(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.purgedRecords.Add(float64(count))
}
