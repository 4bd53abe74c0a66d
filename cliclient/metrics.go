package cliclient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricCommands = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cgpro_cliclient_command_duration_seconds",
			Help:    "CLI commands with duration until response, by command and status code.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.100, 0.5, 1, 5, 10, 20, 30},
		},
		[]string{"cmd", "code"},
	)

	metricPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cgpro_cliclient_panics_total",
			Help: "Unhandled panics while executing commands.",
		},
	)
)
