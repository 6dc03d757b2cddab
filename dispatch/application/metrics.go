package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	passesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wse_dispatch_passes_total",
		Help: "Dispatch pass requests by outcome (run, skipped, busy, panic).",
	}, []string{"outcome"})

	itemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wse_dispatch_items_total",
		Help: "Dispatched items by result (completed, retried, failed, staged).",
	}, []string{"result"})

	sendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wse_dispatch_send_duration_seconds",
		Help:    "Time spent in a single provider send.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	passDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wse_dispatch_pass_duration_seconds",
		Help:    "Wall time of a dispatch pass, including inter-message delays.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})

	intakeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wse_intake_items_total",
		Help: "Items created by intake path and initial status.",
	}, []string{"source", "status"})
)
