// Package loop implements Ralph's event loop: the per-iteration state
// machine described in §4.8 that selects a hat, builds its prompt,
// delegates execution to an adapter, and routes whatever the agent
// published back through the bus.
package loop

import (
	"time"

	"github.com/steveyegge/ralph/internal/topic"
)

// TerminationReason is why a loop stopped iterating.
type TerminationReason int

const (
	NotTerminated TerminationReason = iota
	CompletionPromise
	MaxIterations
	MaxRuntime
	MaxCost
	ConsecutiveFailures
	LoopThrashing
	ValidationFailure
	Stopped
	Interrupted
	ChaosModeComplete
	ChaosModeMaxIterations
)

func (r TerminationReason) String() string {
	switch r {
	case NotTerminated:
		return "NotTerminated"
	case CompletionPromise:
		return "CompletionPromise"
	case MaxIterations:
		return "MaxIterations"
	case MaxRuntime:
		return "MaxRuntime"
	case MaxCost:
		return "MaxCost"
	case ConsecutiveFailures:
		return "ConsecutiveFailures"
	case LoopThrashing:
		return "LoopThrashing"
	case ValidationFailure:
		return "ValidationFailure"
	case Stopped:
		return "Stopped"
	case Interrupted:
		return "Interrupted"
	case ChaosModeComplete:
		return "ChaosModeComplete"
	case ChaosModeMaxIterations:
		return "ChaosModeMaxIterations"
	default:
		return "Unknown"
	}
}

// Limits bounds a single run. Zero values disable the corresponding
// predicate except MaxConsecutiveFailures, MalformedThreshold and
// FallbackThreshold, which fall back to sane defaults (see NewState).
type Limits struct {
	MaxIterations          uint32
	MaxRuntime             time.Duration
	MaxCostUSD             float64
	MaxConsecutiveFailures uint32
	MalformedThreshold     uint32
	FallbackThreshold      uint32
}

// DefaultLimits returns the limits a run uses when the caller has not
// configured one of the thresholds explicitly.
func DefaultLimits() Limits {
	return Limits{
		MaxConsecutiveFailures: 5,
		MalformedThreshold:     5,
		FallbackThreshold:      3,
	}
}

// State is the event loop's running state: iteration counters,
// per-hat activation tracking, and the backpressure ladder's
// bookkeeping. It carries no behaviour of its own; Engine mutates it.
type State struct {
	Limits Limits

	Iteration uint32
	StartedAt time.Time

	ActivationCounts map[topic.HatId]uint32
	ExhaustedHats    map[topic.HatId]bool

	FallbackCounter uint32

	ConsecutiveFailures  uint32
	ConsecutiveMalformed uint32

	// ConsecutiveBlockedByTask counts consecutive same-task *.blocked
	// events, keyed by task id.
	ConsecutiveBlockedByTask map[string]uint32
	AbandonedTasks           map[string]bool
	ReDispatchCount          map[string]uint32
	LastBlockedTaskID        string

	// PromiseSeenStreak counts consecutive iterations (including this
	// one) on which the completion promise was observed and not
	// discarded by backpressure.
	PromiseSeenStreak uint32

	TokensUsed int64
	CostUSD    float64

	StopRequested      bool
	InterruptRequested bool

	// ThrashingDetected is set by the backpressure ladder once a
	// twice-re-dispatched abandoned task is observed (§4.8 step 7).
	ThrashingDetected bool

	Reason TerminationReason
}

// NewState returns a State ready for iteration, applying DefaultLimits
// for any threshold the caller left at zero.
func NewState(limits Limits, now time.Time) *State {
	if limits.MaxConsecutiveFailures == 0 {
		limits.MaxConsecutiveFailures = DefaultLimits().MaxConsecutiveFailures
	}
	if limits.MalformedThreshold == 0 {
		limits.MalformedThreshold = DefaultLimits().MalformedThreshold
	}
	if limits.FallbackThreshold == 0 {
		limits.FallbackThreshold = DefaultLimits().FallbackThreshold
	}
	return &State{
		Limits:                   limits,
		StartedAt:                now,
		ActivationCounts:         make(map[topic.HatId]uint32),
		ExhaustedHats:            make(map[topic.HatId]bool),
		ConsecutiveBlockedByTask: make(map[string]uint32),
		AbandonedTasks:           make(map[string]bool),
		ReDispatchCount:          make(map[string]uint32),
	}
}

// CheckTermination evaluates the ordered predicate chain from §4.8 step
// 1 and returns the first reason that applies, or NotTerminated.
func (s *State) CheckTermination(now time.Time) TerminationReason {
	switch {
	case s.PromiseSeenStreak >= 2:
		return CompletionPromise
	case s.Limits.MaxIterations > 0 && s.Iteration >= s.Limits.MaxIterations:
		return MaxIterations
	case s.Limits.MaxRuntime > 0 && now.Sub(s.StartedAt) >= s.Limits.MaxRuntime:
		return MaxRuntime
	case s.Limits.MaxCostUSD > 0 && s.CostUSD >= s.Limits.MaxCostUSD:
		return MaxCost
	case s.ConsecutiveFailures >= s.Limits.MaxConsecutiveFailures:
		return ConsecutiveFailures
	case s.ThrashingDetected:
		return LoopThrashing
	case s.ConsecutiveMalformed >= s.Limits.MalformedThreshold:
		return ValidationFailure
	case s.InterruptRequested:
		return Interrupted
	case s.StopRequested:
		return Stopped
	default:
		return NotTerminated
	}
}
