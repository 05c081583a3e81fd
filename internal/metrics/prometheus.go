package metrics

import (
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gateway-fm/ledgerbench/internal/task"
)

// Exporter holds the Prometheus metrics for a benchmark run.
type Exporter struct {
	TasksTotal *prometheus.CounterVec

	InFlight       prometheus.Gauge
	ConcurrencyCap prometheus.Gauge

	Attempts    prometheus.Histogram
	TaskLatency prometheus.Histogram
	EffectWei   prometheus.Counter
}

// NewExporter creates and registers all benchmark metrics. Passing a
// nil registerer falls back to the default registry.
func NewExporter(reg prometheus.Registerer) *Exporter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &Exporter{
		TasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledgerbench_tasks_total",
				Help: "Terminal task outcomes by status and error kind",
			},
			[]string{"status", "kind"},
		),

		InFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ledgerbench_tasks_in_flight",
				Help: "Tasks currently admitted and not yet terminal",
			},
		),

		ConcurrencyCap: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ledgerbench_concurrency_limit",
				Help: "Configured concurrency limit for the run",
			},
		),

		Attempts: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ledgerbench_task_attempts",
				Help:    "Submission attempts consumed per terminal task",
				Buckets: []float64{1, 2, 3, 4, 5, 7, 10},
			},
		),

		TaskLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ledgerbench_task_duration_seconds",
				Help:    "Wall-clock time from first admission to terminal outcome",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		),

		EffectWei: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ledgerbench_effect_wei_total",
				Help: "Cumulative ledger effect of confirmed tasks in wei",
			},
		),
	}
}

// RecordOutcome updates the counters and histograms for one terminal
// outcome.
func (e *Exporter) RecordOutcome(out task.Outcome) {
	status := "failure"
	kind := string(out.ErrorKind)
	if out.Succeeded {
		status = "success"
		kind = "none"
	}
	e.TasksTotal.WithLabelValues(status, kind).Inc()
	e.Attempts.Observe(float64(out.AttemptsUsed))
	e.TaskLatency.Observe(out.Elapsed.Seconds())
	if out.Succeeded && out.Effect != nil {
		wei, _ := new(big.Float).SetInt(out.Effect).Float64()
		e.EffectWei.Add(wei)
	}
}
