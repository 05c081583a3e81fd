// Package scheduler admits tasks against a fixed concurrency limit and
// drives each admitted task to a terminal outcome.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gateway-fm/ledgerbench/internal/metrics"
	"github.com/gateway-fm/ledgerbench/internal/ratelimit"
	"github.com/gateway-fm/ledgerbench/internal/task"
)

// Strategy selects how the concurrency limit is enforced.
type Strategy string

const (
	// StrategyWorkers runs tasks on goroutines gated by a semaphore.
	StrategyWorkers Strategy = "workers"
	// StrategyLoop runs a single dispatcher that tracks active tasks
	// and admits replacements as completions arrive.
	StrategyLoop Strategy = "loop"
)

var (
	ErrInvalidLimit    = errors.New("scheduler: concurrency limit must be positive")
	ErrNilRunner       = errors.New("scheduler: runner is required")
	ErrUnknownStrategy = errors.New("scheduler: unknown strategy")
)

// Runner drives one task to a terminal outcome. It must not panic for
// expected failures; a panic is contained and reported as a terminal
// outcome.
type Runner func(ctx context.Context, t *task.Task) task.Outcome

// Source yields tasks in admission order. Next returns false when the
// queue is exhausted.
type Source interface {
	Next() (*task.Task, bool)
}

// Scheduler runs every task from a source, delivering exactly one
// terminal outcome per task.
type Scheduler interface {
	// Run blocks until every task has a terminal outcome. deliver is
	// called once per task; it may be called concurrently.
	Run(ctx context.Context, src Source, deliver func(task.Outcome)) error
	// Peak reports the highest number of simultaneously active tasks
	// observed during Run.
	Peak() int
}

// Config configures a scheduler.
type Config struct {
	// Limit is the maximum number of non-terminal tasks at any instant.
	Limit int
	// Strategy selects the enforcement mechanism. Empty defaults to
	// StrategyWorkers.
	Strategy Strategy
	// Runner executes one task.
	Runner Runner
	// Pacer optionally spaces out admissions. May be nil.
	Pacer *ratelimit.Limiter
	// Logger for scheduling events. Defaults to slog.Default().
	Logger *slog.Logger
}

// New creates a scheduler for the configured strategy.
func New(cfg Config) (Scheduler, error) {
	if cfg.Limit <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLimit, cfg.Limit)
	}
	if cfg.Runner == nil {
		return nil, ErrNilRunner
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	core := schedCore{
		limit:  cfg.Limit,
		runner: cfg.Runner,
		pacer:  cfg.Pacer,
		logger: cfg.Logger,
	}

	switch cfg.Strategy {
	case StrategyWorkers, "":
		return &workerScheduler{schedCore: core}, nil
	case StrategyLoop:
		return &loopScheduler{schedCore: core}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, cfg.Strategy)
	}
}

// schedCore holds the state shared by both strategies.
type schedCore struct {
	limit  int
	runner Runner
	pacer  *ratelimit.Limiter
	logger *slog.Logger

	inflight metrics.Counter
	peak     int64
}

// execute runs one task, containing panics so a misbehaving runner
// cannot take down the whole run.
func (s *schedCore) execute(ctx context.Context, t *task.Task) (out task.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task runner panicked",
				"task", t.Index,
				"panic", r,
			)
			out = task.Outcome{
				TaskIndex:    t.Index,
				Succeeded:    false,
				AttemptsUsed: t.Attempt,
				ErrorKind:    task.KindTerminalSubmission,
			}
		}
	}()
	return s.runner(ctx, t)
}

// cancelledOutcome is delivered for tasks that were never admitted
// because the run context ended. Every generated task still reaches a
// terminal outcome, so the run's counts balance.
func cancelledOutcome(t *task.Task) task.Outcome {
	return task.Outcome{
		TaskIndex:    t.Index,
		Succeeded:    false,
		AttemptsUsed: 0,
		ErrorKind:    task.KindTerminalSubmission,
	}
}

// drainCancelled delivers a terminal outcome for every remaining task.
func drainCancelled(src Source, deliver func(task.Outcome)) {
	for {
		t, ok := src.Next()
		if !ok {
			return
		}
		deliver(cancelledOutcome(t))
	}
}

func (s *schedCore) trackAdmit() {
	n := s.inflight.Inc()
	metrics.AtomicMax(&s.peak, n)
}

func (s *schedCore) trackDone() {
	s.inflight.Add(-1)
}

func (s *schedCore) peakValue() int {
	return int(metrics.AtomicMax(&s.peak, 0))
}
