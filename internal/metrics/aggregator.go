// Package metrics accumulates per-run statistics from terminal task
// outcomes and optionally exports them to Prometheus.
package metrics

import (
	"math/big"
	"sync"
	"time"

	"github.com/gateway-fm/ledgerbench/internal/task"
)

// Summary is the finalized view of one run's accumulated outcomes.
type Summary struct {
	SuccessCount    int
	FailureCount    int
	AttemptsTotal   int
	AggregateEffect *big.Int
	ByKind          map[task.ErrorKind]int
	Duration        time.Duration
}

// Aggregator collects terminal outcomes into per-run statistics.
// Outcomes arrive concurrently from in-flight tasks; the single mutex
// is the only mutation point, so no update is ever lost.
type Aggregator struct {
	mu              sync.Mutex
	started         time.Time
	successCount    int
	failureCount    int
	attemptsTotal   int
	aggregateEffect *big.Int
	byKind          map[task.ErrorKind]int

	prom *Exporter // optional
}

// NewAggregator creates an aggregator. exporter may be nil.
func NewAggregator(exporter *Exporter) *Aggregator {
	return &Aggregator{
		aggregateEffect: new(big.Int),
		byKind:          make(map[task.ErrorKind]int),
		prom:            exporter,
	}
}

// Start marks the beginning of the run's wall-clock span.
func (a *Aggregator) Start() {
	a.mu.Lock()
	a.started = time.Now()
	a.mu.Unlock()
}

// Record merges one terminal outcome. Safe for concurrent use.
func (a *Aggregator) Record(out task.Outcome) {
	a.mu.Lock()
	if out.Succeeded {
		a.successCount++
		if out.Effect != nil {
			a.aggregateEffect.Add(a.aggregateEffect, out.Effect)
		}
	} else {
		a.failureCount++
		a.byKind[out.ErrorKind]++
	}
	a.attemptsTotal += out.AttemptsUsed
	a.mu.Unlock()

	if a.prom != nil {
		a.prom.RecordOutcome(out)
	}
}

// Finalize closes the wall-clock span and returns the summary.
func (a *Aggregator) Finalize() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	byKind := make(map[task.ErrorKind]int, len(a.byKind))
	for kind, count := range a.byKind {
		byKind[kind] = count
	}

	var duration time.Duration
	if !a.started.IsZero() {
		duration = time.Since(a.started)
	}

	return Summary{
		SuccessCount:    a.successCount,
		FailureCount:    a.failureCount,
		AttemptsTotal:   a.attemptsTotal,
		AggregateEffect: new(big.Int).Set(a.aggregateEffect),
		ByKind:          byKind,
		Duration:        duration,
	}
}

// Counts returns the current success and failure counts.
func (a *Aggregator) Counts() (success, failure int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.successCount, a.failureCount
}
