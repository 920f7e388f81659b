package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session Metrics
	LiveUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sessions_live_users",
		Help: "Distinct users holding at least one live session, as of the last read.",
	})
	LiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sessions_live_total",
		Help: "Live session rows across all users, as of the last read.",
	})
	Admissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessions_admissions_total",
		Help: "Admission decisions by result (admitted, refreshed, rejected_user, rejected_global, error).",
	}, []string{"result"})
	Removals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessions_removed_total",
		Help: "Session rows removed by cause (remove, reap, displaced, admin).",
	}, []string{"cause"})
	ValidatorTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sessions_validator_timeouts_total",
		Help: "Validation checks that fell back to valid because the store read was too slow.",
	})

	// Notifier Metrics
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_events_published_total",
		Help: "Session change events handed to each sink.",
	}, []string{"sink"})
	EventPublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_events_publish_failures_total",
		Help: "Session change events a sink failed to accept.",
	}, []string{"sink"})
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_events_dropped_total",
		Help: "Events dropped for slow local subscribers.",
	})
)
