package cost

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the per-run cost budget for a ralph loop, pricing
// fallback tokenizer-estimate usage for adapters that report no usage
// of their own.
type Config struct {
	// MaxCostUSD is the hard ceiling for a single run. 0 disables the
	// cost-based termination predicate.
	MaxCostUSD float64 `yaml:"max_cost_usd"`

	// WarningThreshold is the fraction of MaxCostUSD at which the
	// tracker reports BudgetWarning instead of BudgetHealthy.
	WarningThreshold float64 `yaml:"warning_threshold"`

	// InputTokenCostPerMillion and OutputTokenCostPerMillion price the
	// fallback tokenizer-estimate path for adapters that don't report
	// their own usage.
	InputTokenCostPerMillion  float64 `yaml:"input_token_cost_per_million"`
	OutputTokenCostPerMillion float64 `yaml:"output_token_cost_per_million"`

	// Enabled controls whether cost budgeting participates in the
	// termination predicate at all.
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns defaults priced for the Claude adapter.
func DefaultConfig() Config {
	return Config{
		Enabled:                   true,
		MaxCostUSD:                5.00,
		WarningThreshold:          0.80,
		InputTokenCostPerMillion:  3.00,
		OutputTokenCostPerMillion: 15.00,
	}
}

// LoadFromEnv overlays RALPH_COST_* environment variables onto
// DefaultConfig, falling back to defaults on any parse failure.
func LoadFromEnv() Config {
	cfg := DefaultConfig()

	if val := os.Getenv("RALPH_COST_ENABLED"); val != "" {
		cfg.Enabled = parseBool(val)
	}
	if val := os.Getenv("RALPH_COST_MAX_USD"); val != "" {
		if cost, err := strconv.ParseFloat(val, 64); err == nil && cost >= 0 {
			cfg.MaxCostUSD = cost
		}
	}
	if val := os.Getenv("RALPH_COST_WARNING_THRESHOLD"); val != "" {
		if threshold, err := strconv.ParseFloat(val, 64); err == nil && threshold > 0 && threshold <= 1.0 {
			cfg.WarningThreshold = threshold
		}
	}
	if val := os.Getenv("RALPH_COST_INPUT_PER_MILLION"); val != "" {
		if cost, err := strconv.ParseFloat(val, 64); err == nil && cost >= 0 {
			cfg.InputTokenCostPerMillion = cost
		}
	}
	if val := os.Getenv("RALPH_COST_OUTPUT_PER_MILLION"); val != "" {
		if cost, err := strconv.ParseFloat(val, 64); err == nil && cost >= 0 {
			cfg.OutputTokenCostPerMillion = cost
		}
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "cost: invalid config from environment: %v (using defaults)\n", err)
		return DefaultConfig()
	}
	return cfg
}

// Validate checks the config for internally-consistent values.
func (c Config) Validate() error {
	if c.MaxCostUSD < 0 {
		return fmt.Errorf("max_cost_usd must be non-negative, got %f", c.MaxCostUSD)
	}
	if c.WarningThreshold <= 0 || c.WarningThreshold > 1 {
		return fmt.Errorf("warning_threshold must be in (0, 1], got %f", c.WarningThreshold)
	}
	if c.InputTokenCostPerMillion < 0 || c.OutputTokenCostPerMillion < 0 {
		return fmt.Errorf("token costs must be non-negative")
	}
	return nil
}

func parseBool(val string) bool {
	switch val {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return true
	}
}
