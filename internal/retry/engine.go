package retry

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/gateway-fm/ledgerbench/internal/ledger"
	"github.com/gateway-fm/ledgerbench/internal/task"
)

// Policy bounds the retry behavior of every task in a run. Immutable,
// shared read-only.
type Policy struct {
	MaxAttempts   int           `yaml:"maxAttempts"`
	BaseDelay     time.Duration `yaml:"baseDelay"`
	BackoffFactor float64       `yaml:"backoffFactor"`
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   5,
		BaseDelay:     200 * time.Millisecond,
		BackoffFactor: 2,
	}
}

// Validate checks policy bounds.
func (p Policy) Validate() error {
	if p.MaxAttempts <= 0 {
		return &InvalidPolicyError{Reason: "maxAttempts must be positive"}
	}
	if p.BaseDelay < 0 {
		return &InvalidPolicyError{Reason: "baseDelay cannot be negative"}
	}
	if p.BackoffFactor < 1 {
		return &InvalidPolicyError{Reason: "backoffFactor must be >= 1"}
	}
	return nil
}

// InvalidPolicyError reports an out-of-bounds retry policy.
type InvalidPolicyError struct {
	Reason string
}

func (e *InvalidPolicyError) Error() string { return "invalid retry policy: " + e.Reason }

// Delay returns the backoff before the attempt after failedAttempt:
// baseDelay * backoffFactor^(failedAttempt-1). No jitter; under heavy
// contention retries on a shared credential may synchronize, which is
// part of the stress profile being measured.
func (p Policy) Delay(failedAttempt int) time.Duration {
	if failedAttempt < 1 {
		failedAttempt = 1
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(p.BackoffFactor, float64(failedAttempt-1)))
}

// Engine drives tasks to terminal outcomes against the ledger.
type Engine struct {
	ledger ledger.Client
	policy Policy
	logger *slog.Logger
}

// NewEngine creates an engine with the given policy.
func NewEngine(client ledger.Client, policy Policy, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		ledger: client,
		policy: policy,
		logger: logger,
	}
}

// Run drives one task from Pending to a terminal state and returns its
// outcome. It never returns an error: every failure mode is folded
// into the outcome so nothing escapes to the scheduler.
func (e *Engine) Run(ctx context.Context, t *task.Task) task.Outcome {
	start := time.Now()

	for attempt := 1; ; attempt++ {
		t.Attempt = attempt
		t.CurrentState = task.StateSubmitted

		receipt, err := e.attempt(ctx, t)
		if err == nil {
			if receipt.Status == ledger.StatusSuccess {
				t.CurrentState = task.StateConfirmed
				return task.Outcome{
					TaskIndex:    t.Index,
					Succeeded:    true,
					AttemptsUsed: attempt,
					Elapsed:      time.Since(start),
					Effect:       t.Amount,
				}
			}

			// Logically reverted. Replaying a deterministic rejection
			// cannot change the outcome, so stop here.
			t.CurrentState = task.StateTerminalFailure
			e.logger.Debug("operation rejected by ledger",
				slog.Int("task", t.Index),
				slog.Int("attempt", attempt))
			return task.Outcome{
				TaskIndex:    t.Index,
				Succeeded:    false,
				AttemptsUsed: attempt,
				ErrorKind:    task.KindChainRejection,
				Elapsed:      time.Since(start),
			}
		}

		kind := Classify(err)
		if kind == task.KindRetryableSubmission && attempt < e.policy.MaxAttempts {
			delay := e.policy.Delay(attempt)
			e.logger.Debug("retryable failure, backing off",
				slog.Int("task", t.Index),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("error", err.Error()))

			t.CurrentState = task.StateRetryableFailure
			if !e.sleep(ctx, delay) {
				// Context ended during backoff; the run is being torn
				// down and the task terminates with what it has.
				kind = task.KindTerminalSubmission
			} else {
				t.CurrentState = task.StatePending
				continue
			}
		}

		t.CurrentState = task.StateTerminalFailure
		e.logger.Debug("task failed terminally",
			slog.Int("task", t.Index),
			slog.Int("attempt", attempt),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()))
		return task.Outcome{
			TaskIndex:    t.Index,
			Succeeded:    false,
			AttemptsUsed: attempt,
			ErrorKind:    kind,
			Elapsed:      time.Since(start),
		}
	}
}

// attempt performs one submit/await cycle.
func (e *Engine) attempt(ctx context.Context, t *task.Task) (*ledger.Receipt, error) {
	handle, err := e.ledger.Submit(ctx, t.Credential, t.Amount)
	if err != nil {
		return nil, err
	}
	return e.ledger.Await(ctx, handle)
}

// sleep waits for d or until ctx ends. Returns false on cancellation.
func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
