// Package bench orchestrates benchmark runs: it wires the credential
// pool, retry engine, scheduler, aggregator, and verifier together and
// produces one report per run.
package bench

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/gateway-fm/ledgerbench/internal/config"
	"github.com/gateway-fm/ledgerbench/internal/credential"
	"github.com/gateway-fm/ledgerbench/internal/ledger"
	"github.com/gateway-fm/ledgerbench/internal/metrics"
	"github.com/gateway-fm/ledgerbench/internal/ratelimit"
	"github.com/gateway-fm/ledgerbench/internal/retry"
	"github.com/gateway-fm/ledgerbench/internal/rpc"
	"github.com/gateway-fm/ledgerbench/internal/scheduler"
	"github.com/gateway-fm/ledgerbench/internal/task"
	"github.com/gateway-fm/ledgerbench/internal/verification"
	"github.com/gateway-fm/ledgerbench/pkg/types"
)

// Runner executes benchmark runs against one ledger.
type Runner struct {
	ledger   ledger.Client
	pool     *credential.Pool
	rpc      rpc.Client
	verifier *verification.Verifier
	exporter *metrics.Exporter
	logger   *slog.Logger
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Ledger ledger.Client
	Pool   *credential.Pool
	// RPC is used to resync nonces between sweep runs. May be nil.
	RPC rpc.Client
	// Verifier reconciles ledger state after each run. May be nil to
	// skip verification.
	Verifier *verification.Verifier
	// Exporter receives per-outcome metrics. May be nil.
	Exporter *metrics.Exporter
	Logger   *slog.Logger
}

// NewRunner creates a benchmark runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("bench: ledger client is required")
	}
	if cfg.Pool == nil || cfg.Pool.Len() == 0 {
		return nil, fmt.Errorf("bench: credential pool is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{
		ledger:   cfg.Ledger,
		pool:     cfg.Pool,
		rpc:      cfg.RPC,
		verifier: cfg.Verifier,
		exporter: cfg.Exporter,
		logger:   cfg.Logger,
	}, nil
}

// Run executes one benchmark run and returns its report. The report
// is produced even when verification finds a mismatch; only setup
// failures return an error.
func (r *Runner) Run(ctx context.Context, cfg config.RunConfig) (*types.RunReport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var initial *big.Int
	if r.verifier != nil {
		var err error
		initial, err = r.verifier.Snapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("initial state snapshot: %w", err)
		}
	}

	engine := retry.NewEngine(r.ledger, cfg.Retry, r.logger)

	var pacer *ratelimit.Limiter
	if cfg.Rate > 0 {
		pacer = ratelimit.New(cfg.Rate)
	}

	sched, err := scheduler.New(scheduler.Config{
		Limit:    cfg.ConcurrencyLimit,
		Strategy: cfg.Strategy,
		Runner:   engine.Run,
		Pacer:    pacer,
		Logger:   r.logger,
	})
	if err != nil {
		return nil, err
	}

	if r.exporter != nil {
		r.exporter.ConcurrencyCap.Set(float64(cfg.ConcurrencyLimit))
	}

	generator := task.NewGenerator(cfg.TotalTasks, r.pool, big.NewInt(cfg.AmountWei))
	aggregator := metrics.NewAggregator(r.exporter)

	startedAt := time.Now().UTC()
	r.logger.Info("run starting",
		"tasks", cfg.TotalTasks,
		"limit", cfg.ConcurrencyLimit,
		"strategy", string(cfg.Strategy),
	)

	aggregator.Start()
	runErr := sched.Run(ctx, generator, aggregator.Record)
	summary := aggregator.Finalize()

	report := &types.RunReport{
		ID:               uuid.New().String(),
		StartedAt:        startedAt,
		TotalTasks:       cfg.TotalTasks,
		ConcurrencyLimit: cfg.ConcurrencyLimit,
		Strategy:         string(cfg.Strategy),
		PeakConcurrency:  sched.Peak(),
		SuccessCount:     summary.SuccessCount,
		FailureCount:     summary.FailureCount,
		AttemptsTotal:    summary.AttemptsTotal,
		DurationMs:       summary.Duration.Milliseconds(),
		AggregateEffect:  summary.AggregateEffect.String(),
	}
	if len(summary.ByKind) > 0 {
		report.ErrorKinds = make(map[string]int, len(summary.ByKind))
		for kind, count := range summary.ByKind {
			report.ErrorKinds[string(kind)] = count
		}
	}

	if r.verifier != nil {
		result, err := r.verifier.Reconcile(ctx, initial, summary.AggregateEffect)
		if err != nil {
			// The run itself completed; report it unverified.
			r.logger.Warn("final state snapshot failed", "error", err)
		} else {
			report.InitialState = result.Initial.String()
			report.ExpectedState = result.Expected.String()
			report.FinalObservedState = result.Final.String()
			report.Verified = result.Verified
		}
	}

	r.logger.Info("run finished",
		"success", report.SuccessCount,
		"failure", report.FailureCount,
		"attempts", report.AttemptsTotal,
		"peak", report.PeakConcurrency,
		"durationMs", report.DurationMs,
		"verified", report.Verified,
	)

	if runErr != nil {
		return report, fmt.Errorf("run interrupted: %w", runErr)
	}
	return report, nil
}

// Sweep replays the same load once per run config, usually a list of
// concurrency levels from a scenario file. Nonces are resynced between
// runs so a failed run cannot poison the next one.
func (r *Runner) Sweep(ctx context.Context, configs []config.RunConfig) ([]*types.RunReport, error) {
	reports := make([]*types.RunReport, 0, len(configs))
	for i, cfg := range configs {
		if i > 0 {
			if err := r.ResyncNonces(ctx); err != nil {
				return reports, fmt.Errorf("resync before run %d: %w", i, err)
			}
		}
		report, err := r.Run(ctx, cfg)
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			return reports, err
		}
	}
	return reports, nil
}

// ResyncNonces refreshes every credential's nonce from the ledger.
// A no-op when the runner has no RPC client.
func (r *Runner) ResyncNonces(ctx context.Context) error {
	if r.rpc == nil {
		return nil
	}
	return r.pool.Resync(ctx, r.rpc)
}
