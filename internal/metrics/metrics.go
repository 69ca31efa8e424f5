package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "atrsignal"

// Metrics holds the collectors exported by the signal bot.
type Metrics struct {
	SignalsEmitted       *prometheus.CounterVec
	EvaluationErrors     *prometheus.CounterVec
	NotificationFailures prometheus.Counter
	EvaluatorsRunning    prometheus.Gauge
	EvaluatorsTerminated *prometheus.CounterVec
	ParameterRefreshes   *prometheus.CounterVec
	ActiveParameters     prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SignalsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "signals_emitted_total",
				Help:      "Total number of signal alerts emitted (by symbol, timeframe and direction).",
			},
			[]string{"symbol", "timeframe", "direction"},
		),
		EvaluationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluation_errors_total",
				Help:      "Failed evaluation cycles by kind (transient or unexpected).",
			},
			[]string{"symbol", "kind"},
		),
		NotificationFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notification_failures_total",
				Help:      "Alerts that could not be delivered.",
			},
		),
		EvaluatorsRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "evaluators_running",
				Help:      "Current number of running signal evaluators.",
			},
		),
		EvaluatorsTerminated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluators_terminated_total",
				Help:      "Signal evaluators that stopped on an unexpected error.",
			},
			[]string{"symbol", "timeframe"},
		),
		ParameterRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "parameter_refreshes_total",
				Help:      "Parameter set refreshes by result (ok or error).",
			},
			[]string{"result"},
		),
		ActiveParameters: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_parameters",
				Help:      "Number of (symbol, timeframe) pairs in the active parameter set.",
			},
		),
	}
	reg.MustRegister(
		m.SignalsEmitted,
		m.EvaluationErrors,
		m.NotificationFailures,
		m.EvaluatorsRunning,
		m.EvaluatorsTerminated,
		m.ParameterRefreshes,
		m.ActiveParameters,
	)
	return m
}
