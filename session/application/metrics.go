package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/menofreact/whatsapp-sending-engine/session/domain"
)

var (
	sessionsByState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wse_sessions",
		Help: "Number of channel sessions per lifecycle state.",
	}, []string{"state"})

	sessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wse_session_transitions_total",
		Help: "Session state transitions.",
	}, []string{"from", "to"})

	sessionInitFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wse_session_init_failures_total",
		Help: "Session initialization failures, including timeouts.",
	})

	sessionAuthResets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wse_session_auth_resets_total",
		Help: "Local auth wipes after too many consecutive init failures.",
	})
)

func trackTransition(from, to domain.State) {
	if from != "" {
		sessionsByState.WithLabelValues(string(from)).Dec()
	}
	if to != "" {
		sessionsByState.WithLabelValues(string(to)).Inc()
	}
	if from != "" && to != "" {
		sessionTransitions.WithLabelValues(string(from), string(to)).Inc()
	}
}
