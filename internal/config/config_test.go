package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gateway-fm/ledgerbench/internal/retry"
	"github.com/gateway-fm/ledgerbench/internal/scheduler"
)

func validConfig() *Config {
	return &Config{
		RPCURL:      DefaultRPCURL,
		ChainID:     DefaultChainID,
		SinkAddress: DefaultSinkAddress,
		GasTipCap:   DefaultGasTipCap,
		GasLimit:    DefaultGasLimit,
	}
}

func validRunConfig() *RunConfig {
	return &RunConfig{
		TotalTasks:       100,
		ConcurrencyLimit: 10,
		Strategy:         scheduler.StrategyWorkers,
		Retry:            retry.DefaultPolicy(),
		AmountWei:        1,
	}
}

func TestConfigValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing rpc", func(c *Config) { c.RPCURL = "" }, "rpc"},
		{"zero chain id", func(c *Config) { c.ChainID = 0 }, "chainid"},
		{"bad sink", func(c *Config) { c.SinkAddress = "not-an-address" }, "sink"},
		{"zero tip", func(c *Config) { c.GasTipCap = 0 }, "gastipcap"},
		{"negative fee cap", func(c *Config) { c.GasFeeCap = -1 }, "gasfeecap"},
		{"zero gas limit", func(c *Config) { c.GasLimit = 0 }, "gaslimit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("got %v, want ConfigurationError", err)
			}
			if cfgErr.Field != tt.field {
				t.Fatalf("field = %q, want %q", cfgErr.Field, tt.field)
			}
		})
	}
}

func TestRunConfigValidate(t *testing.T) {
	if err := validRunConfig().Validate(); err != nil {
		t.Fatalf("valid run config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*RunConfig)
		field  string
	}{
		{"zero tasks", func(c *RunConfig) { c.TotalTasks = 0 }, "tasks"},
		{"zero limit", func(c *RunConfig) { c.ConcurrencyLimit = 0 }, "limit"},
		{"negative limit", func(c *RunConfig) { c.ConcurrencyLimit = -2 }, "limit"},
		{"bad strategy", func(c *RunConfig) { c.Strategy = "greedy" }, "strategy"},
		{"zero attempts", func(c *RunConfig) { c.Retry.MaxAttempts = 0 }, "retry"},
		{"small factor", func(c *RunConfig) { c.Retry.BackoffFactor = 0.5 }, "retry"},
		{"negative rate", func(c *RunConfig) { c.Rate = -1 }, "rate"},
		{"zero amount", func(c *RunConfig) { c.AmountWei = 0 }, "amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validRunConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("got %v, want ConfigurationError", err)
			}
			if cfgErr.Field != tt.field {
				t.Fatalf("field = %q, want %q", cfgErr.Field, tt.field)
			}
		})
	}
}

func TestSinkParses(t *testing.T) {
	cfg := validConfig()
	if cfg.Sink().Hex() != "0x000000000000000000000000000000000000dEaD" {
		t.Fatalf("sink = %s", cfg.Sink().Hex())
	}
}

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweep.yaml")
	data := []byte(`name: ramp
tasks: 50
strategy: loop
levels: [1, 2, 4, 8]
retry:
  maxAttempts: 3
  baseDelay: 100ms
  backoffFactor: 2
rate: 25
amountWei: 2
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}

	sc, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	if sc.Name != "ramp" || sc.TotalTasks != 50 {
		t.Fatalf("scenario = %+v", sc)
	}
	if sc.Retry.MaxAttempts != 3 || sc.Retry.BaseDelay != 100*time.Millisecond {
		t.Fatalf("retry = %+v", sc.Retry)
	}

	configs := sc.RunConfigs()
	if len(configs) != 4 {
		t.Fatalf("got %d run configs, want 4", len(configs))
	}
	for i, want := range []int{1, 2, 4, 8} {
		if configs[i].ConcurrencyLimit != want {
			t.Fatalf("level %d = %d, want %d", i, configs[i].ConcurrencyLimit, want)
		}
		if configs[i].Strategy != scheduler.StrategyLoop {
			t.Fatalf("level %d strategy = %q", i, configs[i].Strategy)
		}
	}
}

func TestLoadScenarioDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minimal.yaml")
	if err := os.WriteFile(path, []byte("levels: [5]\n"), 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}

	sc, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	if sc.TotalTasks != DefaultTotalTasks {
		t.Fatalf("tasks = %d, want default %d", sc.TotalTasks, DefaultTotalTasks)
	}
	if sc.Retry != retry.DefaultPolicy() {
		t.Fatalf("retry = %+v, want defaults", sc.Retry)
	}
}

func TestLoadScenarioRejectsEmptyLevels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(path, []byte("name: hollow\n"), 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}

	_, err := LoadScenario(path)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("got %v, want ConfigurationError", err)
	}
}

func TestLoadScenarioMissingFile(t *testing.T) {
	if _, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
