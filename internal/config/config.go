// Package config loads ralph.yaml: hat topology, guardrails, budgets,
// adapter selection, and chaos-mode settings, in the teacher's
// Config/DefaultConfig/Validate style (internal/cost.Config,
// internal/watchdog.WatchdogConfig).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/steveyegge/ralph/internal/adapter"
	"github.com/steveyegge/ralph/internal/cost"
	"github.com/steveyegge/ralph/internal/hats"
	"github.com/steveyegge/ralph/internal/loop"
	"github.com/steveyegge/ralph/internal/topic"
)

// HatConfig is one ralph.yaml `hats:` entry.
type HatConfig struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	Subscriptions  []string `yaml:"subscriptions"`
	Publications   []string `yaml:"publications"`
	Instructions   string   `yaml:"instructions"`
	MaxActivations *uint32  `yaml:"max_activations"`
	Model          string   `yaml:"model"`
}

// ToHat converts a HatConfig into the runtime hats.Hat it describes.
func (h HatConfig) ToHat() hats.Hat {
	subs := make([]topic.Topic, 0, len(h.Subscriptions))
	for _, s := range h.Subscriptions {
		subs = append(subs, topic.New(s))
	}
	pubs := make([]topic.Topic, 0, len(h.Publications))
	for _, p := range h.Publications {
		pubs = append(pubs, topic.New(p))
	}
	return hats.Hat{
		ID:             topic.NewHatId(h.ID),
		Name:           h.Name,
		Subscriptions:  subs,
		Publications:   pubs,
		Instructions:   h.Instructions,
		MaxActivations: h.MaxActivations,
		Model:          h.Model,
	}
}

// LimitsConfig mirrors loop.Limits with YAML tags and a duration
// string instead of time.Duration, since loop.Limits itself is the
// runtime type the engine consumes directly.
type LimitsConfig struct {
	MaxIterations          uint32  `yaml:"max_iterations"`
	MaxRuntime             string  `yaml:"max_runtime"`
	MaxCostUSD             float64 `yaml:"max_cost_usd"`
	MaxConsecutiveFailures uint32  `yaml:"max_consecutive_failures"`
	MalformedThreshold     uint32  `yaml:"malformed_threshold"`
	FallbackThreshold      uint32  `yaml:"fallback_threshold"`
}

// ToLimits converts a LimitsConfig into loop.Limits, parsing MaxRuntime
// as a time.Duration string (e.g. "2h30m"). An empty string means no
// runtime ceiling.
func (l LimitsConfig) ToLimits() (loop.Limits, error) {
	limits := loop.Limits{
		MaxIterations:          l.MaxIterations,
		MaxCostUSD:             l.MaxCostUSD,
		MaxConsecutiveFailures: l.MaxConsecutiveFailures,
		MalformedThreshold:     l.MalformedThreshold,
		FallbackThreshold:      l.FallbackThreshold,
	}
	if l.MaxRuntime != "" {
		d, err := time.ParseDuration(l.MaxRuntime)
		if err != nil {
			return loop.Limits{}, fmt.Errorf("config: max_runtime: %w", err)
		}
		limits.MaxRuntime = d
	}
	return limits, nil
}

// ChaosConfig is ralph.yaml's `chaos:` block.
type ChaosConfig struct {
	Enabled        bool         `yaml:"enabled"`
	Cooldown       string       `yaml:"cooldown"`
	ResearchFocus  []string     `yaml:"research_focus"`
	AllowedOutputs []string     `yaml:"allowed_outputs"`
	Limits         LimitsConfig `yaml:"limits"`
}

// ToChaosConfig converts to loop.ChaosConfig, parsing Cooldown as a
// time.Duration string. A zero Cooldown falls back to one minute so a
// misconfigured-but-enabled chaos run never free-spins.
func (c ChaosConfig) ToChaosConfig() (loop.ChaosConfig, error) {
	cooldown := time.Minute
	if c.Cooldown != "" {
		d, err := time.ParseDuration(c.Cooldown)
		if err != nil {
			return loop.ChaosConfig{}, fmt.Errorf("config: chaos.cooldown: %w", err)
		}
		cooldown = d
	}
	limits, err := c.Limits.ToLimits()
	if err != nil {
		return loop.ChaosConfig{}, err
	}
	return loop.ChaosConfig{
		Cooldown:       cooldown,
		ResearchFocus:  c.ResearchFocus,
		AllowedOutputs: c.AllowedOutputs,
		Limits:         limits,
	}, nil
}

// DiagnosticsConfig is ralph.yaml's `diagnostics:` block, gating the
// §4.15 session recorder.
type DiagnosticsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Config is the full ralph.yaml document.
type Config struct {
	Hats               []HatConfig       `yaml:"hats"`
	Guardrails         []string          `yaml:"guardrails"`
	CompletionPromise  string            `yaml:"completion_promise"`
	ActivationTimeout  string            `yaml:"activation_timeout"`
	Limits             LimitsConfig      `yaml:"limits"`
	Cost               cost.Config       `yaml:"cost"`
	Adapter            adapter.Config    `yaml:"adapter"`
	Chaos              ChaosConfig       `yaml:"chaos"`
	Diagnostics        DiagnosticsConfig `yaml:"diagnostics"`
	AutoMerge          bool              `yaml:"auto_merge"`
}

// Default returns a Config with sane defaults for every nested config
// struct, mirroring the teacher's Default*Config() constructors.
func Default() Config {
	return Config{
		CompletionPromise: "RALPH_COMPLETE",
		ActivationTimeout: "10m",
		Limits: LimitsConfig{
			MaxConsecutiveFailures: 5,
			MalformedThreshold:     5,
			FallbackThreshold:      3,
		},
		Cost:    cost.DefaultConfig(),
		Adapter: adapter.DefaultConfig(),
		Chaos: ChaosConfig{
			Cooldown: "1m",
		},
		Diagnostics: DiagnosticsConfig{Enabled: false},
		AutoMerge:   false,
	}
}

// Load reads and parses a ralph.yaml file from path, validating the
// result before returning it.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the top-level config and delegates to each nested
// config's own Validate method, matching the teacher's pattern of
// per-struct Validate methods composed by the caller.
func (c Config) Validate() error {
	if c.CompletionPromise == "" {
		return fmt.Errorf("config: completion_promise is required")
	}
	if c.ActivationTimeout != "" {
		if _, err := time.ParseDuration(c.ActivationTimeout); err != nil {
			return fmt.Errorf("config: activation_timeout: %w", err)
		}
	}
	if _, err := c.Limits.ToLimits(); err != nil {
		return err
	}
	if err := c.Cost.Validate(); err != nil {
		return fmt.Errorf("config: cost: %w", err)
	}
	if err := c.Adapter.Validate(); err != nil {
		return fmt.Errorf("config: adapter: %w", err)
	}
	if c.Chaos.Enabled {
		if _, err := c.Chaos.ToChaosConfig(); err != nil {
			return err
		}
	}
	seen := make(map[string]bool, len(c.Hats))
	for _, h := range c.Hats {
		if h.ID == "" {
			return fmt.Errorf("config: hat with empty id")
		}
		if seen[h.ID] {
			return fmt.Errorf("config: duplicate hat id %q", h.ID)
		}
		seen[h.ID] = true
	}
	return nil
}

// BuildRegistry converts every configured hat into a hats.Registry.
func (c Config) BuildRegistry() (*hats.Registry, error) {
	configured := make([]hats.Hat, 0, len(c.Hats))
	for _, h := range c.Hats {
		configured = append(configured, h.ToHat())
	}
	return hats.NewRegistry(configured)
}

// ActivationTimeoutDuration parses ActivationTimeout, defaulting to ten
// minutes when unset.
func (c Config) ActivationTimeoutDuration() time.Duration {
	if c.ActivationTimeout == "" {
		return 10 * time.Minute
	}
	d, err := time.ParseDuration(c.ActivationTimeout)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}
