// Package metrics provides Prometheus metrics for the game server.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// GameMetrics collects and exposes game-related Prometheus metrics.
type GameMetrics struct {
	registry *prometheus.Registry

	// Event metrics
	EventsRecorded    *prometheus.CounterVec
	EventsUndone      *prometheus.CounterVec
	DuplicatesDropped *prometheus.CounterVec
	UnresolvedPlayers *prometheus.CounterVec
	SettlementVolume  *prometheus.CounterVec

	// Session metrics
	ActiveSessions     *prometheus.GaugeVec
	ParticipantBalance *prometheus.GaugeVec
	Substitutions      *prometheus.CounterVec

	// Monitoring metrics
	PollCycles *prometheus.CounterVec
	PollErrors *prometheus.CounterVec

	// Persistence metrics
	SavesTotal *prometheus.CounterVec

	// API metrics
	RequestDuration *prometheus.HistogramVec
}

// NewGameMetrics creates a new game metrics collector.
func NewGameMetrics() *GameMetrics {
	registry := prometheus.NewRegistry()

	gm := &GameMetrics{
		registry: registry,

		EventsRecorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lappeleken_events_recorded_total",
				Help: "Total number of game events recorded",
			},
			[]string{"type"},
		),
		EventsUndone: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lappeleken_events_undone_total",
				Help: "Total number of game events undone",
			},
			[]string{},
		),
		DuplicatesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lappeleken_duplicate_events_dropped_total",
				Help: "Feed events dropped as already applied",
			},
			[]string{},
		),
		UnresolvedPlayers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lappeleken_unresolved_players_total",
				Help: "Feed events discarded because the player is not in any roster",
			},
			[]string{},
		),
		SettlementVolume: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lappeleken_settlement_volume",
				Help: "Total absolute balance moved by settlements",
			},
			[]string{},
		),

		ActiveSessions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lappeleken_active_sessions",
				Help: "Number of live game sessions",
			},
			[]string{},
		),
		ParticipantBalance: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lappeleken_participant_balance",
				Help: "Current balance per participant",
			},
			[]string{"session", "participant"},
		),
		Substitutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lappeleken_substitutions_total",
				Help: "Total number of roster substitutions applied",
			},
			[]string{},
		),

		PollCycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lappeleken_poll_cycles_total",
				Help: "Total number of live match poll deliveries",
			},
			[]string{},
		),
		PollErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lappeleken_poll_errors_total",
				Help: "Total number of failed poll attempts",
			},
			[]string{},
		),

		SavesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lappeleken_saves_total",
				Help: "Total number of game snapshots saved",
			},
			[]string{},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lappeleken_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
			},
			[]string{"method", "route"},
		),
	}

	gm.registerAll()
	return gm
}

func (gm *GameMetrics) registerAll() {
	gm.registry.MustRegister(
		gm.EventsRecorded,
		gm.EventsUndone,
		gm.DuplicatesDropped,
		gm.UnresolvedPlayers,
		gm.SettlementVolume,
		gm.ActiveSessions,
		gm.ParticipantBalance,
		gm.Substitutions,
		gm.PollCycles,
		gm.PollErrors,
		gm.SavesTotal,
		gm.RequestDuration,
	)
}

// Registry returns the prometheus registry.
func (gm *GameMetrics) Registry() *prometheus.Registry {
	return gm.registry
}

// --- Helper methods for recording metrics ---

// RecordEvent records a settled game event and the volume it moved.
func (gm *GameMetrics) RecordEvent(eventType string, volume decimal.Decimal) {
	gm.EventsRecorded.WithLabelValues(eventType).Inc()
	if f := DecimalToFloat64(volume.Abs()); f > 0 {
		gm.SettlementVolume.WithLabelValues().Add(f)
	}
}

// RecordUndo records an undone event.
func (gm *GameMetrics) RecordUndo() {
	gm.EventsUndone.WithLabelValues().Inc()
}

// RecordDiscard records a feed event that did not apply.
func (gm *GameMetrics) RecordDiscard(reason string) {
	switch reason {
	case "unresolved_player":
		gm.UnresolvedPlayers.WithLabelValues().Inc()
	default:
	}
}

// RecordDuplicates adds to the dropped-duplicate counter.
func (gm *GameMetrics) RecordDuplicates(n int) {
	if n > 0 {
		gm.DuplicatesDropped.WithLabelValues().Add(float64(n))
	}
}

// RecordSubstitution records an applied substitution.
func (gm *GameMetrics) RecordSubstitution() {
	gm.Substitutions.WithLabelValues().Inc()
}

// UpdateBalance updates the balance gauge for one participant.
func (gm *GameMetrics) UpdateBalance(session, participant string, balance decimal.Decimal) {
	gm.ParticipantBalance.WithLabelValues(session, participant).Set(DecimalToFloat64(balance))
}

// UpdateActiveSessions updates the session count.
func (gm *GameMetrics) UpdateActiveSessions(count int) {
	gm.ActiveSessions.WithLabelValues().Set(float64(count))
}

// RecordPoll records one poll delivery.
func (gm *GameMetrics) RecordPoll() {
	gm.PollCycles.WithLabelValues().Inc()
}

// RecordPollError records a failed poll attempt.
func (gm *GameMetrics) RecordPollError() {
	gm.PollErrors.WithLabelValues().Inc()
}

// RecordSave records a persisted snapshot.
func (gm *GameMetrics) RecordSave() {
	gm.SavesTotal.WithLabelValues().Inc()
}

// RecordRequest records one HTTP request's latency.
func (gm *GameMetrics) RecordRequest(method, route string, durationSec float64) {
	gm.RequestDuration.WithLabelValues(method, route).Observe(durationSec)
}

// DecimalToFloat64 safely converts decimal.Decimal to float64 for metrics.
func DecimalToFloat64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// Global instance for convenience
var defaultMetrics *GameMetrics
var once sync.Once

// Default returns the default global metrics instance.
func Default() *GameMetrics {
	once.Do(func() {
		defaultMetrics = NewGameMetrics()
	})
	return defaultMetrics
}
