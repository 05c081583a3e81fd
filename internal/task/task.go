// Package task defines the benchmark task model: one scheduled ledger
// operation tracked from admission to terminal outcome.
package task

import (
	"math/big"
	"time"

	"github.com/gateway-fm/ledgerbench/internal/credential"
)

// State is the lifecycle state of a task.
type State string

const (
	StatePending          State = "pending"
	StateSubmitted        State = "submitted"
	StateConfirmed        State = "confirmed"
	StateRetryableFailure State = "retryable_failure"
	StateTerminalFailure  State = "terminal_failure"
)

// Terminal reports whether the state is terminal.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateTerminalFailure
}

// ErrorKind classifies the failure recorded on a terminal outcome.
type ErrorKind string

const (
	// KindNone means the task succeeded.
	KindNone ErrorKind = ""

	// KindRetryableSubmission is a credential-sequencing conflict or a
	// transient transport fault. It only appears on an outcome when the
	// retry budget was exhausted absorbing it.
	KindRetryableSubmission ErrorKind = "retryable_submission"

	// KindChainRejection means the operation was accepted by the
	// network but logically reverted. Deterministic, never retried.
	KindChainRejection ErrorKind = "chain_rejection"

	// KindTerminalSubmission is any other submission or confirmation
	// failure.
	KindTerminalSubmission ErrorKind = "terminal_submission"
)

// Task is one scheduled benchmark operation. It is owned exclusively
// by the scheduler until terminal; only Attempt and CurrentState
// change after creation.
type Task struct {
	Index        int
	Credential   *credential.Credential
	Amount       *big.Int // value moved on success; the task's effect
	Attempt      int
	CurrentState State
}

// Outcome is produced exactly once per task, when it reaches a
// terminal state. Owned by the aggregator thereafter.
type Outcome struct {
	TaskIndex    int
	Succeeded    bool
	AttemptsUsed int
	ErrorKind    ErrorKind
	Elapsed      time.Duration
	Effect       *big.Int // nil unless Succeeded
}

// Generator produces a lazy, finite, restartable sequence of tasks.
// Credential assignment is index mod pool size; no randomness, so the
// sequence is reproducible for a given (total, pool size) pair.
type Generator struct {
	total  int
	pool   *credential.Pool
	amount *big.Int
	next   int
}

// NewGenerator creates a generator for total tasks, each moving amount.
func NewGenerator(total int, pool *credential.Pool, amount *big.Int) *Generator {
	return &Generator{
		total:  total,
		pool:   pool,
		amount: amount,
	}
}

// Next returns the next task in sequence, or false when exhausted.
func (g *Generator) Next() (*Task, bool) {
	if g.next >= g.total {
		return nil, false
	}
	t := &Task{
		Index:        g.next,
		Credential:   g.pool.ForTask(g.next),
		Amount:       new(big.Int).Set(g.amount),
		CurrentState: StatePending,
	}
	g.next++
	return t, true
}

// Remaining returns the number of tasks not yet generated.
func (g *Generator) Remaining() int {
	return g.total - g.next
}

// Reset restarts the sequence from the beginning.
func (g *Generator) Reset() {
	g.next = 0
}
