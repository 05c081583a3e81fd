// Package retry drives a single task through submission cycles with
// failure classification and exponential backoff.
package retry

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/gateway-fm/ledgerbench/internal/ledger"
	"github.com/gateway-fm/ledgerbench/internal/rpc"
	"github.com/gateway-fm/ledgerbench/internal/task"
)

// retryableMessages are node error fragments caused by concurrent
// reuse of a credential's sequencing counter or by transient network
// state. These resolve on resubmission, so they are worth a retry.
var retryableMessages = []string{
	"nonce too low",
	"nonce too high",
	"already known",
	"already used",
	"replacement transaction underpriced",
	"could not detect network",
	"timeout",
	"timed out",
	"connection refused",
	"connection reset",
	"too many requests",
}

// Classify maps a submission or confirmation error to the error kind
// the retry state machine acts on. nil input maps to KindNone.
//
// Chain rejections never reach this function: they arrive as a
// Rejected receipt, not as an error.
func Classify(err error) task.ErrorKind {
	if err == nil {
		return task.KindNone
	}

	// Confirmation window expiry is transient: the operation may still
	// be in the mempool, and resubmitting with the same nonce either
	// lands it or surfaces a sequencing conflict (also retryable).
	if errors.Is(err, ledger.ErrConfirmationTimeout) {
		return task.KindRetryableSubmission
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return task.KindRetryableSubmission
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return task.KindRetryableSubmission
	}

	var httpErr *rpc.HTTPStatusError
	if errors.As(err, &httpErr) {
		if httpErr.IsRetryable() {
			return task.KindRetryableSubmission
		}
		return task.KindTerminalSubmission
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range retryableMessages {
		if strings.Contains(msg, fragment) {
			return task.KindRetryableSubmission
		}
	}

	// Anything else: malformed request, permission failure, unknown
	// node error. Retrying will not change the outcome.
	return task.KindTerminalSubmission
}
