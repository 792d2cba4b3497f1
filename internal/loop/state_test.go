package loop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckTerminationOrder(t *testing.T) {
	now := time.Now()

	t.Run("completion promise takes priority", func(t *testing.T) {
		s := NewState(Limits{MaxIterations: 1}, now)
		s.PromiseSeenStreak = 2
		s.Iteration = 1
		assert.Equal(t, CompletionPromise, s.CheckTermination(now))
	})

	t.Run("max iterations", func(t *testing.T) {
		s := NewState(Limits{MaxIterations: 3}, now)
		s.Iteration = 3
		assert.Equal(t, MaxIterations, s.CheckTermination(now))
	})

	t.Run("max runtime", func(t *testing.T) {
		s := NewState(Limits{MaxRuntime: time.Minute}, now)
		assert.Equal(t, MaxRuntime, s.CheckTermination(now.Add(2*time.Minute)))
	})

	t.Run("max cost", func(t *testing.T) {
		s := NewState(Limits{MaxCostUSD: 1.0}, now)
		s.CostUSD = 1.5
		assert.Equal(t, MaxCost, s.CheckTermination(now))
	})

	t.Run("consecutive failures before thrashing", func(t *testing.T) {
		s := NewState(Limits{MaxConsecutiveFailures: 2}, now)
		s.ConsecutiveFailures = 2
		s.ThrashingDetected = true
		assert.Equal(t, ConsecutiveFailures, s.CheckTermination(now))
	})

	t.Run("thrashing before malformed", func(t *testing.T) {
		s := NewState(Limits{MalformedThreshold: 2}, now)
		s.ThrashingDetected = true
		s.ConsecutiveMalformed = 2
		assert.Equal(t, LoopThrashing, s.CheckTermination(now))
	})

	t.Run("malformed before interrupt", func(t *testing.T) {
		s := NewState(Limits{MalformedThreshold: 2}, now)
		s.ConsecutiveMalformed = 2
		s.InterruptRequested = true
		assert.Equal(t, ValidationFailure, s.CheckTermination(now))
	})

	t.Run("interrupt before stop", func(t *testing.T) {
		s := NewState(Limits{}, now)
		s.InterruptRequested = true
		s.StopRequested = true
		assert.Equal(t, Interrupted, s.CheckTermination(now))
	})

	t.Run("stop", func(t *testing.T) {
		s := NewState(Limits{}, now)
		s.StopRequested = true
		assert.Equal(t, Stopped, s.CheckTermination(now))
	})

	t.Run("not terminated", func(t *testing.T) {
		s := NewState(Limits{}, now)
		assert.Equal(t, NotTerminated, s.CheckTermination(now))
	})
}

func TestDefaultLimitsFillZeroFields(t *testing.T) {
	s := NewState(Limits{}, time.Now())
	assert.Equal(t, DefaultLimits().MaxConsecutiveFailures, s.Limits.MaxConsecutiveFailures)
	assert.Equal(t, DefaultLimits().MalformedThreshold, s.Limits.MalformedThreshold)
	assert.Equal(t, DefaultLimits().FallbackThreshold, s.Limits.FallbackThreshold)
}

func TestTerminationReasonString(t *testing.T) {
	assert.Equal(t, "CompletionPromise", CompletionPromise.String())
	assert.Equal(t, "Unknown", TerminationReason(999).String())
}
