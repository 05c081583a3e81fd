// Package verification reconciles the observed ledger state against
// the effect a run claims to have produced.
package verification

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// StateReader reads the observable state for an address.
type StateReader interface {
	QueryState(ctx context.Context, target common.Address) (*big.Int, error)
}

// Result holds the outcome of one reconciliation.
type Result struct {
	Initial  *big.Int
	Final    *big.Int
	Expected *big.Int
	// Delta is Final minus Expected; zero when Verified.
	Delta    *big.Int
	Verified bool
}

// Verifier compares the ledger's final state against the state implied
// by the run's aggregate effect. A mismatch is reported, never fatal:
// the run's outcomes stand on their own.
type Verifier struct {
	reader StateReader
	target common.Address
	logger *slog.Logger
}

// NewVerifier creates a verifier for the given target address.
func NewVerifier(reader StateReader, target common.Address, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{
		reader: reader,
		target: target,
		logger: logger,
	}
}

// Snapshot reads the target's current state. Called once before the
// run starts and once after it drains.
func (v *Verifier) Snapshot(ctx context.Context) (*big.Int, error) {
	state, err := v.reader.QueryState(ctx, v.target)
	if err != nil {
		return nil, fmt.Errorf("read state of %s: %w", v.target.Hex(), err)
	}
	return state, nil
}

// Reconcile reads the final state and compares it against
// initial + aggregateEffect.
func (v *Verifier) Reconcile(ctx context.Context, initial, aggregateEffect *big.Int) (*Result, error) {
	final, err := v.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	expected := new(big.Int).Add(initial, aggregateEffect)
	delta := new(big.Int).Sub(final, expected)

	result := &Result{
		Initial:  new(big.Int).Set(initial),
		Final:    final,
		Expected: expected,
		Delta:    delta,
		Verified: delta.Sign() == 0,
	}

	if result.Verified {
		v.logger.Info("state verified",
			"target", v.target.Hex(),
			"expected", expected.String(),
		)
	} else {
		v.logger.Warn("state mismatch",
			"target", v.target.Hex(),
			"initial", initial.String(),
			"aggregateEffect", aggregateEffect.String(),
			"expected", expected.String(),
			"final", final.String(),
			"delta", delta.String(),
		)
	}

	return result, nil
}
