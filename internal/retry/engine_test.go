package retry

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/ledgerbench/internal/credential"
	"github.com/gateway-fm/ledgerbench/internal/ledger"
	"github.com/gateway-fm/ledgerbench/internal/rpc"
	"github.com/gateway-fm/ledgerbench/internal/task"
)

// scriptedLedger implements ledger.Client, returning one scripted step
// per submission attempt.
type scriptedLedger struct {
	steps   []step
	calls   int32 // atomic
	queried *big.Int
}

type step struct {
	submitErr error
	awaitErr  error
	status    ledger.Status
}

var _ ledger.Client = (*scriptedLedger)(nil)

func (s *scriptedLedger) Submit(ctx context.Context, cred *credential.Credential, amount *big.Int) (*ledger.PendingHandle, error) {
	i := int(atomic.AddInt32(&s.calls, 1)) - 1
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	if s.steps[i].submitErr != nil {
		return nil, s.steps[i].submitErr
	}
	return &ledger.PendingHandle{TxHash: common.BytesToHash([]byte{byte(i + 1)})}, nil
}

func (s *scriptedLedger) Await(ctx context.Context, handle *ledger.PendingHandle) (*ledger.Receipt, error) {
	i := int(atomic.LoadInt32(&s.calls)) - 1
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	if s.steps[i].awaitErr != nil {
		return nil, s.steps[i].awaitErr
	}
	return &ledger.Receipt{Status: s.steps[i].status}, nil
}

func (s *scriptedLedger) QueryState(ctx context.Context, target common.Address) (*big.Int, error) {
	if s.queried == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(s.queried), nil
}

func newTask(t *testing.T, index int) *task.Task {
	t.Helper()
	cred, err := credential.NewFromHex(credential.TestPrivateKeys[0])
	if err != nil {
		t.Fatalf("NewFromHex: %v", err)
	}
	return &task.Task{
		Index:        index,
		Credential:   cred,
		Amount:       big.NewInt(1),
		CurrentState: task.StatePending,
	}
}

func fastPolicy(maxAttempts int) Policy {
	return Policy{MaxAttempts: maxAttempts, BaseDelay: time.Millisecond, BackoffFactor: 2}
}

func TestRunFirstAttemptSuccess(t *testing.T) {
	l := &scriptedLedger{steps: []step{{status: ledger.StatusSuccess}}}
	engine := NewEngine(l, fastPolicy(3), nil)

	out := engine.Run(context.Background(), newTask(t, 0))
	if !out.Succeeded {
		t.Fatal("outcome not succeeded")
	}
	if out.AttemptsUsed != 1 {
		t.Errorf("attemptsUsed = %d, want 1", out.AttemptsUsed)
	}
	if out.ErrorKind != task.KindNone {
		t.Errorf("errorKind = %q, want none", out.ErrorKind)
	}
	if out.Effect == nil || out.Effect.Cmp(big.NewInt(1)) != 0 {
		t.Errorf("effect = %v, want 1", out.Effect)
	}
}

func TestRunNonceConflictThenSuccess(t *testing.T) {
	l := &scriptedLedger{steps: []step{
		{submitErr: &ledger.SubmissionError{Err: errors.New("nonce too low")}},
		{status: ledger.StatusSuccess},
	}}
	engine := NewEngine(l, fastPolicy(3), nil)

	out := engine.Run(context.Background(), newTask(t, 0))
	if !out.Succeeded {
		t.Fatal("outcome not succeeded")
	}
	if out.AttemptsUsed != 2 {
		t.Errorf("attemptsUsed = %d, want 2", out.AttemptsUsed)
	}
}

func TestRunBudgetExhausted(t *testing.T) {
	l := &scriptedLedger{steps: []step{
		{submitErr: &ledger.SubmissionError{Err: errors.New("request timed out")}},
	}}
	engine := NewEngine(l, fastPolicy(3), nil)

	out := engine.Run(context.Background(), newTask(t, 0))
	if out.Succeeded {
		t.Fatal("outcome should not be succeeded")
	}
	if out.AttemptsUsed != 3 {
		t.Errorf("attemptsUsed = %d, want 3", out.AttemptsUsed)
	}
	if out.ErrorKind != task.KindRetryableSubmission {
		t.Errorf("errorKind = %q, want retryable_submission (budget exhausted)", out.ErrorKind)
	}
	if got := atomic.LoadInt32(&l.calls); got != 3 {
		t.Errorf("submit calls = %d, want 3", got)
	}
}

func TestRunChainRejectionNotRetried(t *testing.T) {
	l := &scriptedLedger{steps: []step{{status: ledger.StatusRejected}}}
	engine := NewEngine(l, fastPolicy(5), nil)

	out := engine.Run(context.Background(), newTask(t, 0))
	if out.Succeeded {
		t.Fatal("outcome should not be succeeded")
	}
	if out.AttemptsUsed != 1 {
		t.Errorf("attemptsUsed = %d, want 1 (rejections are never retried)", out.AttemptsUsed)
	}
	if out.ErrorKind != task.KindChainRejection {
		t.Errorf("errorKind = %q, want chain_rejection", out.ErrorKind)
	}
	if got := atomic.LoadInt32(&l.calls); got != 1 {
		t.Errorf("submit calls = %d, want 1", got)
	}
}

func TestRunTerminalErrorNotRetried(t *testing.T) {
	l := &scriptedLedger{steps: []step{
		{submitErr: &ledger.SubmissionError{Err: errors.New("invalid signature")}},
	}}
	engine := NewEngine(l, fastPolicy(5), nil)

	out := engine.Run(context.Background(), newTask(t, 0))
	if out.AttemptsUsed != 1 {
		t.Errorf("attemptsUsed = %d, want 1", out.AttemptsUsed)
	}
	if out.ErrorKind != task.KindTerminalSubmission {
		t.Errorf("errorKind = %q, want terminal_submission", out.ErrorKind)
	}
}

func TestRunConfirmationTimeoutRetried(t *testing.T) {
	l := &scriptedLedger{steps: []step{
		{awaitErr: &ledger.ConfirmationError{Err: ledger.ErrConfirmationTimeout}},
		{status: ledger.StatusSuccess},
	}}
	engine := NewEngine(l, fastPolicy(3), nil)

	out := engine.Run(context.Background(), newTask(t, 0))
	if !out.Succeeded {
		t.Fatal("outcome not succeeded")
	}
	if out.AttemptsUsed != 2 {
		t.Errorf("attemptsUsed = %d, want 2", out.AttemptsUsed)
	}
}

func TestRetryBound(t *testing.T) {
	for _, maxAttempts := range []int{1, 2, 7} {
		l := &scriptedLedger{steps: []step{
			{submitErr: &ledger.SubmissionError{Err: errors.New("already known")}},
		}}
		engine := NewEngine(l, fastPolicy(maxAttempts), nil)
		out := engine.Run(context.Background(), newTask(t, 0))
		if out.AttemptsUsed > maxAttempts {
			t.Errorf("maxAttempts=%d: attemptsUsed = %d exceeds budget", maxAttempts, out.AttemptsUsed)
		}
	}
}

func TestDelaySchedule(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, BackoffFactor: 2}

	cases := []struct {
		failedAttempt int
		want          time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
	}
	for _, tc := range cases {
		if got := p.Delay(tc.failedAttempt); got != tc.want {
			t.Errorf("Delay(%d) = %v, want %v", tc.failedAttempt, got, tc.want)
		}
	}

	// Monotone non-decreasing for factor >= 1.
	flat := Policy{MaxAttempts: 5, BaseDelay: 50 * time.Millisecond, BackoffFactor: 1}
	prev := time.Duration(0)
	for attempt := 1; attempt <= 5; attempt++ {
		d := flat.Delay(attempt)
		if d < prev {
			t.Errorf("delay decreased: Delay(%d)=%v < %v", attempt, d, prev)
		}
		prev = d
	}
}

func TestPolicyValidate(t *testing.T) {
	cases := []struct {
		name   string
		policy Policy
		valid  bool
	}{
		{"default", DefaultPolicy(), true},
		{"zero attempts", Policy{MaxAttempts: 0, BaseDelay: time.Second, BackoffFactor: 2}, false},
		{"negative delay", Policy{MaxAttempts: 1, BaseDelay: -time.Second, BackoffFactor: 2}, false},
		{"factor below one", Policy{MaxAttempts: 1, BaseDelay: 0, BackoffFactor: 0.5}, false},
		{"zero delay ok", Policy{MaxAttempts: 1, BaseDelay: 0, BackoffFactor: 1}, true},
	}
	for _, tc := range cases {
		err := tc.policy.Validate()
		if (err == nil) != tc.valid {
			t.Errorf("%s: Validate() = %v, valid = %v", tc.name, err, tc.valid)
		}
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want task.ErrorKind
	}{
		{"nil", nil, task.KindNone},
		{"nonce too low", errors.New("nonce too low"), task.KindRetryableSubmission},
		{"already known", errors.New("already known"), task.KindRetryableSubmission},
		{"replacement underpriced", errors.New("replacement transaction underpriced"), task.KindRetryableSubmission},
		{"network detect", errors.New("could not detect network"), task.KindRetryableSubmission},
		{"timeout sentinel", &ledger.ConfirmationError{Err: ledger.ErrConfirmationTimeout}, task.KindRetryableSubmission},
		{"deadline exceeded", context.DeadlineExceeded, task.KindRetryableSubmission},
		{"wrapped submission", &ledger.SubmissionError{Err: errors.New("nonce too high")}, task.KindRetryableSubmission},
		{"http 503", &rpc.HTTPStatusError{StatusCode: 503}, task.KindRetryableSubmission},
		{"http 400", &rpc.HTTPStatusError{StatusCode: 400}, task.KindTerminalSubmission},
		{"malformed", errors.New("rlp: expected input list"), task.KindTerminalSubmission},
		{"permission", errors.New("unauthorized sender"), task.KindTerminalSubmission},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Errorf("%s: Classify = %q, want %q", tc.name, got, tc.want)
		}
	}
}
