package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gateway-fm/ledgerbench/internal/retry"
	"github.com/gateway-fm/ledgerbench/internal/scheduler"
)

// Scenario describes a concurrency sweep loaded from a YAML file: the
// same task load replayed once per concurrency level.
type Scenario struct {
	Name       string       `yaml:"name"`
	TotalTasks int          `yaml:"tasks"`
	Strategy   string       `yaml:"strategy"`
	Levels     []int        `yaml:"levels"`
	Retry      retry.Policy `yaml:"retry"`
	Rate       float64      `yaml:"rate"`
	AmountWei  int64        `yaml:"amountWei"`
}

// LoadScenario reads and validates a scenario file. Omitted fields
// take the run defaults.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	defaults := retry.DefaultPolicy()
	sc := &Scenario{
		TotalTasks: DefaultTotalTasks,
		Strategy:   string(scheduler.StrategyWorkers),
		Retry:      defaults,
		AmountWei:  DefaultAmountWei,
	}
	if err := yaml.Unmarshal(data, sc); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	if len(sc.Levels) == 0 {
		return nil, configErr("levels", "scenario %s has no concurrency levels", path)
	}
	for _, cfg := range sc.RunConfigs() {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return sc, nil
}

// RunConfigs expands the scenario into one RunConfig per level.
func (s *Scenario) RunConfigs() []RunConfig {
	configs := make([]RunConfig, 0, len(s.Levels))
	for _, level := range s.Levels {
		configs = append(configs, RunConfig{
			TotalTasks:       s.TotalTasks,
			ConcurrencyLimit: level,
			Strategy:         scheduler.Strategy(s.Strategy),
			Retry:            s.Retry,
			Rate:             s.Rate,
			AmountWei:        s.AmountWei,
		})
	}
	return configs
}
