// Package ledger provides the client capability the harness drives:
// submit an operation, await its confirmation, and query ledger state.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/gateway-fm/ledgerbench/internal/credential"
	"github.com/gateway-fm/ledgerbench/internal/rpc"
)

// Status is the logical result of a confirmed operation.
type Status int

const (
	// StatusSuccess means the operation was applied.
	StatusSuccess Status = iota
	// StatusRejected means the network accepted the operation but the
	// ledger logically reverted it.
	StatusRejected
)

// Receipt is the confirmation result for a submitted operation.
type Receipt struct {
	Status      Status
	BlockNumber uint64
	GasUsed     uint64
}

// PendingHandle identifies a submitted, not yet confirmed operation.
type PendingHandle struct {
	TxHash      common.Hash
	SubmittedAt time.Time
}

// Client is the ledger capability consumed by the benchmark core.
type Client interface {
	// Submit signs and sends one value-moving operation.
	Submit(ctx context.Context, cred *credential.Credential, amount *big.Int) (*PendingHandle, error)

	// Await blocks until the operation confirms or times out.
	Await(ctx context.Context, handle *PendingHandle) (*Receipt, error)

	// QueryState reads the observed balance of target. Read-only.
	QueryState(ctx context.Context, target common.Address) (*big.Int, error)
}

// SubmissionError wraps a failure to sign or send an operation.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string { return fmt.Sprintf("submission failed: %v", e.Err) }
func (e *SubmissionError) Unwrap() error { return e.Err }

// ConfirmationError wraps a failure while awaiting confirmation.
type ConfirmationError struct {
	Err error
}

func (e *ConfirmationError) Error() string { return fmt.Sprintf("confirmation failed: %v", e.Err) }
func (e *ConfirmationError) Unwrap() error { return e.Err }

// ErrConfirmationTimeout is returned when an operation does not
// confirm within the await window. Treated as transient by the retry
// engine's classifier.
var ErrConfirmationTimeout = errors.New("confirmation timeout")

// Config holds configuration for the RPC-backed ledger client.
type Config struct {
	RPC       rpc.Client
	ChainID   *big.Int
	Sink      common.Address // recipient of every value transfer
	GasTipCap *big.Int
	GasFeeCap *big.Int
	GasLimit  uint64

	// PollInterval is how often Await polls for a receipt when no
	// head watcher is wired.
	PollInterval time.Duration

	// AwaitTimeout bounds one confirmation wait.
	AwaitTimeout time.Duration

	// Watcher, when set, nudges receipt polling on new blocks.
	Watcher *HeadWatcher

	Logger *slog.Logger
}

// Defaults
const (
	DefaultGasLimit     = 21000
	DefaultPollInterval = 100 * time.Millisecond
	DefaultAwaitTimeout = 30 * time.Second
)

// RPCLedger implements Client over JSON-RPC with locally signed
// EIP-1559 transactions.
type RPCLedger struct {
	rpc          rpc.Client
	signer       types.Signer
	chainID      *big.Int
	sink         common.Address
	gasTipCap    *big.Int
	gasFeeCap    *big.Int
	gasLimit     uint64
	pollInterval time.Duration
	awaitTimeout time.Duration
	watcher      *HeadWatcher
	logger       *slog.Logger
}

// NewRPCLedger creates an RPC-backed ledger client.
func NewRPCLedger(cfg Config) *RPCLedger {
	gasLimit := cfg.GasLimit
	if gasLimit == 0 {
		gasLimit = DefaultGasLimit
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	awaitTimeout := cfg.AwaitTimeout
	if awaitTimeout <= 0 {
		awaitTimeout = DefaultAwaitTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &RPCLedger{
		rpc:          cfg.RPC,
		signer:       types.LatestSignerForChainID(cfg.ChainID),
		chainID:      cfg.ChainID,
		sink:         cfg.Sink,
		gasTipCap:    cfg.GasTipCap,
		gasFeeCap:    cfg.GasFeeCap,
		gasLimit:     gasLimit,
		pollInterval: pollInterval,
		awaitTimeout: awaitTimeout,
		watcher:      cfg.Watcher,
		logger:       logger,
	}
}

// Submit reserves a nonce, builds and signs a value transfer to the
// sink address, and sends it. The nonce is committed once the node
// accepts the transaction and rolled back on any failure, so a
// rejected send does not burn a sequence number.
func (l *RPCLedger) Submit(ctx context.Context, cred *credential.Credential, amount *big.Int) (*PendingHandle, error) {
	n := cred.ReserveNonce()

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   l.chainID,
		Nonce:     n.Value(),
		GasTipCap: l.gasTipCap,
		GasFeeCap: l.gasFeeCap,
		Gas:       l.gasLimit,
		To:        &l.sink,
		Value:     amount,
	})

	signed, err := types.SignTx(tx, l.signer, cred.PrivateKey)
	if err != nil {
		n.Rollback()
		return nil, &SubmissionError{Err: fmt.Errorf("sign: %w", err)}
	}

	data, err := signed.MarshalBinary()
	if err != nil {
		n.Rollback()
		return nil, &SubmissionError{Err: fmt.Errorf("encode: %w", err)}
	}

	if err := l.rpc.SendRawTransaction(ctx, data); err != nil {
		n.Rollback()
		return nil, &SubmissionError{Err: err}
	}
	n.Commit()

	l.logger.Debug("operation submitted",
		slog.String("txHash", signed.Hash().Hex()),
		slog.String("from", cred.Address.Hex()),
		slog.Uint64("nonce", n.Value()))

	return &PendingHandle{TxHash: signed.Hash(), SubmittedAt: time.Now()}, nil
}

// Await polls for the receipt until it appears, the await window
// expires, or the context is cancelled. When a head watcher is wired,
// new blocks nudge the poll so confirmations land promptly.
func (l *RPCLedger) Await(ctx context.Context, handle *PendingHandle) (*Receipt, error) {
	var wake <-chan struct{}
	if l.watcher != nil {
		ch, cancel := l.watcher.Subscribe()
		defer cancel()
		wake = ch
	}

	deadline := time.NewTimer(l.awaitTimeout)
	defer deadline.Stop()

	poll := time.NewTicker(l.pollInterval)
	defer poll.Stop()

	hash := handle.TxHash.Hex()
	for {
		receipt, err := l.rpc.GetTransactionReceipt(ctx, hash)
		if err != nil {
			return nil, &ConfirmationError{Err: err}
		}
		if receipt != nil {
			status := StatusRejected
			if receipt.Status == 1 {
				status = StatusSuccess
			}
			return &Receipt{
				Status:      status,
				BlockNumber: receipt.BlockNumber,
				GasUsed:     receipt.GasUsed,
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, &ConfirmationError{Err: ctx.Err()}
		case <-deadline.C:
			return nil, &ConfirmationError{Err: ErrConfirmationTimeout}
		case <-poll.C:
		case <-wake:
		}
	}
}

// QueryState returns the observed balance of target at the latest block.
func (l *RPCLedger) QueryState(ctx context.Context, target common.Address) (*big.Int, error) {
	return l.rpc.GetBalance(ctx, target.Hex())
}
