// Package cost tracks token usage and USD cost for a single ralph run,
// feeding the event loop's cost-based termination predicate.
package cost

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// BudgetStatus is the tracker's three-state health signal.
type BudgetStatus int

const (
	BudgetHealthy BudgetStatus = iota
	BudgetWarning
	BudgetExceeded
)

func (s BudgetStatus) String() string {
	switch s {
	case BudgetHealthy:
		return "HEALTHY"
	case BudgetWarning:
		return "WARNING"
	case BudgetExceeded:
		return "EXCEEDED"
	default:
		return "UNKNOWN"
	}
}

// BudgetState is the running usage total for the current run.
type BudgetState struct {
	TokensUsed  int64
	CostUSD     float64
	TaskCostUSD map[string]float64
	LastUpdated time.Time
}

func (s BudgetState) clone() BudgetState {
	out := s
	out.TaskCostUSD = make(map[string]float64, len(s.TaskCostUSD))
	for k, v := range s.TaskCostUSD {
		out.TaskCostUSD[k] = v
	}
	return out
}

// Tracker accumulates usage across adapter executions and reports the
// current BudgetStatus. It wraps a rate.Limiter sized to the run's cost
// ceiling as a soft early-warning gauge: callers poll Status() rather
// than blocking on the limiter, so a burst of usage is never throttled,
// only reported.
type Tracker struct {
	config  Config
	limiter *rate.Limiter

	mu    sync.Mutex
	state BudgetState
}

// NewTracker builds a Tracker for cfg. A non-positive MaxCostUSD
// turns off the budget check: the tracker reports BudgetHealthy forever.
func NewTracker(cfg Config) *Tracker {
	burst := int(cfg.MaxCostUSD * 100)
	if burst < 1 {
		burst = 1
	}
	return &Tracker{
		config:  cfg,
		limiter: rate.NewLimiter(rate.Limit(0), burst),
		state:   BudgetState{TaskCostUSD: make(map[string]float64)},
	}
}

// EstimateCost prices a token count at the configured per-million rates.
func (t *Tracker) EstimateCost(inputTokens, outputTokens int64) float64 {
	return float64(inputTokens)/1_000_000*t.config.InputTokenCostPerMillion +
		float64(outputTokens)/1_000_000*t.config.OutputTokenCostPerMillion
}

// RecordUsage folds one adapter execution's usage into the running
// state, attributing cost to taskID if non-empty, and returns the
// resulting BudgetStatus.
func (t *Tracker) RecordUsage(taskID string, inputTokens, outputTokens int64) BudgetStatus {
	cost := t.EstimateCost(inputTokens, outputTokens)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.state.TokensUsed += inputTokens + outputTokens
	t.state.CostUSD += cost
	t.state.LastUpdated = time.Now().UTC()
	if taskID != "" {
		t.state.TaskCostUSD[taskID] += cost
	}

	if costCents := int(cost * 100); costCents > 0 {
		// Best-effort gauge consumption; never blocks the caller.
		_ = t.limiter.AllowN(time.Now(), costCents)
	}

	return t.statusLocked()
}

// Status reports the current BudgetStatus without recording usage.
func (t *Tracker) Status() BudgetStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statusLocked()
}

func (t *Tracker) statusLocked() BudgetStatus {
	if !t.config.Enabled || t.config.MaxCostUSD <= 0 {
		return BudgetHealthy
	}
	fraction := t.state.CostUSD / t.config.MaxCostUSD
	switch {
	case fraction >= 1:
		return BudgetExceeded
	case fraction >= t.config.WarningThreshold:
		return BudgetWarning
	default:
		return BudgetHealthy
	}
}

// State returns a snapshot of the current usage totals.
func (t *Tracker) State() BudgetState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.clone()
}

// TaskCost returns the cost attributed to taskID so far. It is not
// copied into Task.EstimatedCost or the landing continuation prompt.
func (t *Tracker) TaskCost(taskID string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.TaskCostUSD[taskID]
}
