// Package config handles configuration loading and validation.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/ledgerbench/internal/retry"
	"github.com/gateway-fm/ledgerbench/internal/scheduler"
)

// ConfigurationError reports an invalid or missing setting. It is
// always fatal: a run never starts with a bad configuration.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

func configErr(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Config holds the endpoint and environment settings shared by every
// run against the same ledger.
type Config struct {
	RPCURL       string
	WSURL        string // WebSocket URL for newHeads wakeups (optional)
	ChainID      int64
	SinkAddress  string // recipient of every transfer; its balance is the verified state
	GasTipCap    int64  // EIP-1559 priority fee in wei
	GasFeeCap    int64  // EIP-1559 max fee per gas in wei (0 = auto from chain)
	GasLimit     uint64
	DatabasePath string // SQLite file for run history ("" = no persistence)
	MetricsAddr  string // Prometheus listen address ("" = disabled)
	PrivateKeys  []string
}

// RunConfig holds the parameters of a single benchmark run.
type RunConfig struct {
	TotalTasks       int
	ConcurrencyLimit int
	Strategy         scheduler.Strategy
	Retry            retry.Policy
	// Rate caps admissions per second. Zero means unpaced.
	Rate float64
	// AmountWei is the value moved by each task.
	AmountWei int64
}

// Defaults
const (
	DefaultRPCURL       = "http://localhost:8545"
	DefaultChainID      = 1337
	DefaultSinkAddress  = "0x000000000000000000000000000000000000dEaD"
	DefaultGasTipCap    = 1000000000 // 1 Gwei
	DefaultGasFeeCap    = 0          // auto from chain gas price
	DefaultGasLimit     = 21000
	DefaultDatabasePath = "./data/ledgerbench.db"
	DefaultTotalTasks   = 100
	DefaultLimit        = 10
	DefaultAmountWei    = 1
)

// Load reads configuration from environment variables and command-line
// flags. Flags take precedence over environment variables.
func Load() (*Config, *RunConfig, error) {
	cfg := &Config{
		RPCURL:       DefaultRPCURL,
		ChainID:      DefaultChainID,
		SinkAddress:  DefaultSinkAddress,
		GasTipCap:    DefaultGasTipCap,
		GasFeeCap:    DefaultGasFeeCap,
		GasLimit:     DefaultGasLimit,
		DatabasePath: DefaultDatabasePath,
	}

	if v := os.Getenv("RPC_URL"); v != "" {
		cfg.RPCURL = v
	}
	if v := os.Getenv("WS_URL"); v != "" {
		cfg.WSURL = v
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			cfg.ChainID = id
		}
	}
	if v := os.Getenv("SINK_ADDRESS"); v != "" {
		cfg.SinkAddress = v
	}
	if v := os.Getenv("GAS_TIP_CAP"); v != "" {
		if tip, err := strconv.ParseInt(v, 10, 64); err == nil && tip > 0 {
			cfg.GasTipCap = tip
		}
	}
	if v := os.Getenv("GAS_FEE_CAP"); v != "" {
		if fee, err := strconv.ParseInt(v, 10, 64); err == nil && fee >= 0 {
			cfg.GasFeeCap = fee
		}
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("PRIVATE_KEYS"); v != "" {
		for _, key := range strings.Split(v, ",") {
			if key = strings.TrimSpace(key); key != "" {
				cfg.PrivateKeys = append(cfg.PrivateKeys, key)
			}
		}
	}

	defaults := retry.DefaultPolicy()

	var (
		rpcURL      = flag.String("rpc", cfg.RPCURL, "Ledger RPC URL")
		wsURL       = flag.String("ws", cfg.WSURL, "WebSocket URL for newHeads wakeups (optional)")
		chainID     = flag.Int64("chainid", cfg.ChainID, "Chain ID")
		sink        = flag.String("sink", cfg.SinkAddress, "Sink address receiving every transfer")
		gasTipCap   = flag.Int64("gastipcap", cfg.GasTipCap, "EIP-1559 priority fee in wei")
		gasFeeCap   = flag.Int64("gasfeecap", cfg.GasFeeCap, "EIP-1559 max fee per gas in wei (0=auto)")
		gasLimit    = flag.Uint64("gaslimit", cfg.GasLimit, "Gas limit per transfer")
		dbPath      = flag.String("db", cfg.DatabasePath, "SQLite database path (empty disables persistence)")
		metricsAddr = flag.String("metrics-listen", cfg.MetricsAddr, "Prometheus listen address (empty disables)")

		tasks       = flag.Int("tasks", DefaultTotalTasks, "Total tasks per run")
		limit       = flag.Int("limit", DefaultLimit, "Concurrency limit")
		strategy    = flag.String("strategy", string(scheduler.StrategyWorkers), "Scheduling strategy (workers, loop)")
		maxAttempts = flag.Int("retries", defaults.MaxAttempts, "Max submission attempts per task")
		baseDelay   = flag.Duration("retry-base", defaults.BaseDelay, "Base backoff delay")
		factor      = flag.Float64("retry-factor", defaults.BackoffFactor, "Backoff multiplier")
		rate        = flag.Float64("rate", 0, "Max admissions per second (0=unpaced)")
		amount      = flag.Int64("amount", DefaultAmountWei, "Wei moved per task")
	)

	flag.Parse()

	cfg.RPCURL = *rpcURL
	cfg.WSURL = *wsURL
	cfg.ChainID = *chainID
	cfg.SinkAddress = *sink
	cfg.GasTipCap = *gasTipCap
	cfg.GasFeeCap = *gasFeeCap
	cfg.GasLimit = *gasLimit
	cfg.DatabasePath = *dbPath
	cfg.MetricsAddr = *metricsAddr

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	runCfg := &RunConfig{
		TotalTasks:       *tasks,
		ConcurrencyLimit: *limit,
		Strategy:         scheduler.Strategy(*strategy),
		Retry: retry.Policy{
			MaxAttempts:   *maxAttempts,
			BaseDelay:     *baseDelay,
			BackoffFactor: *factor,
		},
		Rate:      *rate,
		AmountWei: *amount,
	}

	if err := runCfg.Validate(); err != nil {
		return nil, nil, err
	}

	return cfg, runCfg, nil
}

// Validate checks the endpoint configuration.
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return configErr("rpc", "RPC URL is required")
	}
	if c.ChainID <= 0 {
		return configErr("chainid", "chain ID must be positive, got %d", c.ChainID)
	}
	if !common.IsHexAddress(c.SinkAddress) {
		return configErr("sink", "not a hex address: %q", c.SinkAddress)
	}
	if c.GasTipCap <= 0 {
		return configErr("gastipcap", "gas tip cap must be positive, got %d", c.GasTipCap)
	}
	if c.GasFeeCap < 0 {
		return configErr("gasfeecap", "gas fee cap cannot be negative, got %d", c.GasFeeCap)
	}
	if c.GasLimit == 0 {
		return configErr("gaslimit", "gas limit must be positive")
	}
	return nil
}

// Sink returns the parsed sink address. Validate must have passed.
func (c *Config) Sink() common.Address {
	return common.HexToAddress(c.SinkAddress)
}

// Validate checks the run parameters.
func (c *RunConfig) Validate() error {
	if c.TotalTasks <= 0 {
		return configErr("tasks", "total tasks must be positive, got %d", c.TotalTasks)
	}
	if c.ConcurrencyLimit <= 0 {
		return configErr("limit", "concurrency limit must be positive, got %d", c.ConcurrencyLimit)
	}
	switch c.Strategy {
	case scheduler.StrategyWorkers, scheduler.StrategyLoop:
	default:
		return configErr("strategy", "unknown strategy %q (workers, loop)", c.Strategy)
	}
	if err := c.Retry.Validate(); err != nil {
		return configErr("retry", "%v", err)
	}
	if c.Rate < 0 {
		return configErr("rate", "rate cannot be negative, got %g", c.Rate)
	}
	if c.AmountWei <= 0 {
		return configErr("amount", "amount must be positive, got %d", c.AmountWei)
	}
	return nil
}
