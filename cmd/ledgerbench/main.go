// Ledger benchmark CLI.
// Load-tests a remote ledger with a bounded number of concurrent
// submissions and verifies the final state against the run's effect.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gateway-fm/ledgerbench/internal/bench"
	"github.com/gateway-fm/ledgerbench/internal/config"
	"github.com/gateway-fm/ledgerbench/internal/credential"
	"github.com/gateway-fm/ledgerbench/internal/ledger"
	"github.com/gateway-fm/ledgerbench/internal/metrics"
	"github.com/gateway-fm/ledgerbench/internal/rpc"
	"github.com/gateway-fm/ledgerbench/internal/storage"
	"github.com/gateway-fm/ledgerbench/internal/verification"
	"github.com/gateway-fm/ledgerbench/pkg/types"
)

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	// These must be registered before config.Load calls flag.Parse.
	logLevel := flag.String("log-level", getEnvOrDefault("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	scenarioPath := flag.String("scenario", "", "Scenario YAML file (runs a concurrency sweep)")
	runName := flag.String("name", "", "Name stored with the run report")

	cfg, runCfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, runCfg, *scenarioPath, *runName, logger); err != nil {
		logger.Error("benchmark failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, runCfg *config.RunConfig, scenarioPath, runName string, logger *slog.Logger) error {
	rpcClient := rpc.NewHTTPClient(rpc.DefaultClientConfig(cfg.RPCURL))

	gasFeeCap := big.NewInt(cfg.GasFeeCap)
	if cfg.GasFeeCap == 0 {
		gasPrice, err := rpcClient.GetGasPrice(ctx)
		if err != nil {
			return fmt.Errorf("auto gas fee cap: %w", err)
		}
		// Double the current price so fees survive a few busy blocks.
		gasFeeCap = new(big.Int).Mul(new(big.Int).SetUint64(gasPrice), big.NewInt(2))
		logger.Info("gas fee cap from chain", "feeCap", gasFeeCap.String())
	}

	var watcher *ledger.HeadWatcher
	if cfg.WSURL != "" {
		watcher = ledger.NewHeadWatcher(cfg.WSURL, logger)
		watcher.Start(ctx)
		defer watcher.Stop()
	}

	pool, err := buildPool(ctx, cfg, rpcClient, logger)
	if err != nil {
		return err
	}

	var exporter *metrics.Exporter
	if cfg.MetricsAddr != "" {
		exporter = metrics.NewExporter(nil)
		go func() {
			logger.Info("metrics listening", "addr", cfg.MetricsAddr)
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	ledgerClient := ledger.NewRPCLedger(ledger.Config{
		RPC:       rpcClient,
		ChainID:   big.NewInt(cfg.ChainID),
		Sink:      cfg.Sink(),
		GasTipCap: big.NewInt(cfg.GasTipCap),
		GasFeeCap: gasFeeCap,
		GasLimit:  cfg.GasLimit,
		Watcher:   watcher,
		Logger:    logger,
	})

	runner, err := bench.NewRunner(bench.RunnerConfig{
		Ledger:   ledgerClient,
		Pool:     pool,
		RPC:      rpcClient,
		Verifier: verification.NewVerifier(ledgerClient, cfg.Sink(), logger),
		Exporter: exporter,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	var store storage.Storage
	if cfg.DatabasePath != "" {
		store, err = storage.NewSQLiteStorage(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("open run history: %w", err)
		}
		defer store.Close()
	}

	var reports []*types.RunReport
	var runErr error
	if scenarioPath != "" {
		scenario, err := config.LoadScenario(scenarioPath)
		if err != nil {
			return err
		}
		if runName == "" {
			runName = scenario.Name
		}
		reports, runErr = runner.Sweep(ctx, scenario.RunConfigs())
	} else {
		report, err := runner.Run(ctx, *runCfg)
		if report != nil {
			reports = append(reports, report)
		}
		runErr = err
	}

	for _, report := range reports {
		report.Name = runName
		if store != nil {
			if err := store.SaveReport(ctx, report); err != nil {
				logger.Error("failed to persist report", "error", err)
			}
		}
		printReport(report)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func buildPool(ctx context.Context, cfg *config.Config, client rpc.Client, logger *slog.Logger) (*credential.Pool, error) {
	var pool *credential.Pool
	var err error
	if len(cfg.PrivateKeys) > 0 {
		pool, err = credential.NewPoolFromHex(cfg.PrivateKeys)
	} else {
		logger.Warn("PRIVATE_KEYS not set, using well-known development keys")
		pool, err = credential.TestPool()
	}
	if err != nil {
		return nil, fmt.Errorf("build credential pool: %w", err)
	}

	if err := pool.Resync(ctx, client); err != nil {
		return nil, fmt.Errorf("resync nonces: %w", err)
	}
	logger.Info("credential pool ready", "credentials", pool.Len())
	return pool, nil
}

func printReport(r *types.RunReport) {
	verdict := "verified"
	if !r.Verified {
		verdict = "MISMATCH"
	}
	fmt.Printf("\n=== Run %s ===\n", r.ID)
	fmt.Printf("strategy=%s limit=%d peak=%d tasks=%d\n",
		r.Strategy, r.ConcurrencyLimit, r.PeakConcurrency, r.TotalTasks)
	fmt.Printf("success=%d failure=%d attempts=%d duration=%dms\n",
		r.SuccessCount, r.FailureCount, r.AttemptsTotal, r.DurationMs)
	for kind, count := range r.ErrorKinds {
		fmt.Printf("  %s: %d\n", kind, count)
	}
	fmt.Printf("effect=%s initial=%s expected=%s final=%s -> %s\n",
		r.AggregateEffect, r.InitialState, r.ExpectedState, r.FinalObservedState, verdict)
}
