// Package metrics exposes prometheus instrumentation for the command layer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shardsearch",
			Name:      "command_duration_seconds",
			Help:      "Search command duration in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"command", "status"},
	)

	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shardsearch",
			Name:      "commands_total",
			Help:      "Total number of search commands",
		},
		[]string{"command", "status"},
	)
)

var registered bool

// Register installs the command metrics on the default registry.
// Safe to call once per process; tests observing metrics skip registration.
func Register() {
	if registered {
		return
	}
	registered = true
	prometheus.MustRegister(commandDuration)
	prometheus.MustRegister(commandsTotal)
}

// ObserveCommand records one command execution.
func ObserveCommand(command, status string, took time.Duration) {
	commandDuration.WithLabelValues(command, status).Observe(took.Seconds())
	commandsTotal.WithLabelValues(command, status).Inc()
}
