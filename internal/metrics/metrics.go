package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_sessions_active",
		Help: "Currently connected voice sessions",
	})

	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_sessions_total",
		Help: "Total voice sessions accepted",
	})

	TurnsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_turns_total",
		Help: "Total voice turns processed",
	})

	TurnsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_turns_cancelled_total",
		Help: "Turns abandoned by caller interruption",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voice_stage_duration_seconds",
		Help:    "Per-stage latency",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0},
	}, []string{"stage"})

	TurnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_turn_duration_seconds",
		Help:    "End-to-end latency for one transcribe-respond turn",
		Buckets: []float64{0.1, 0.2, 0.5, 0.8, 1.0, 1.5, 2.0, 3.0, 5.0},
	})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_errors_total",
		Help: "Error counts by stage",
	}, []string{"stage", "error_type"})

	SynthSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_synth_skipped_total",
		Help: "Synthesis requests skipped because speech is disabled",
	})

	AuditWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_writes_total",
		Help: "Audit entries appended",
	})

	AuditWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_write_failures_total",
		Help: "Audit appends that failed at the store",
	})

	SessionLogWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sessionlog_write_failures_total",
		Help: "Session log writes that failed at the store",
	})
)
