package loop

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// ChaosPromise is the distinct completion promise chaos mode looks for,
// per §4.8's Chaos mode paragraph.
const ChaosPromise = "CHAOS_COMPLETE"

// ChaosConfig configures a chaos-mode run layered on top of an already
// completed primary loop.
type ChaosConfig struct {
	// Cooldown is the minimum spacing between chaos iterations. It is
	// enforced with a rate.Limiter so a slow adapter never causes a
	// burst of back-to-back iterations once it catches up.
	Cooldown time.Duration

	// ResearchFocus lists what chaos mode may investigate. It is kept
	// on the config only: NewChaosRunner does not pass it to the engine
	// or the prompt builder.
	ResearchFocus []string

	// AllowedOutputs lists the kinds of artifact chaos mode may write:
	// memories, tasks, specs. It is kept on the config only: nothing in
	// the engine or the adapter reads or enforces it.
	AllowedOutputs []string

	Limits Limits
}

// ChaosRunner wraps an Engine configured with the chaos completion
// promise and a per-iteration cooldown gate. It reuses Engine.Step
// unchanged; the only behavioural difference is the cooldown between
// iterations and the distinct termination reasons it reports.
type ChaosRunner struct {
	Engine  *Engine
	limiter *rate.Limiter
}

// NewChaosRunner builds a ChaosRunner around engine, overwriting its
// CompletionPromise with ChaosPromise and replacing its State with a
// fresh one built from cfg.Limits.
func NewChaosRunner(engine *Engine, cfg ChaosConfig, now time.Time) *ChaosRunner {
	engine.CompletionPromise = ChaosPromise
	limits := cfg.Limits
	engine.State = NewState(limits, now)

	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = time.Second
	}
	// One token per cooldown interval, burst of 1: the limiter never
	// lets two iterations run back to back faster than cooldown.
	limiter := rate.NewLimiter(rate.Every(cooldown), 1)
	return &ChaosRunner{Engine: engine, limiter: limiter}
}

// Run iterates the wrapped engine, waiting out the cooldown gate before
// each iteration, until a termination reason is reached. Iteration-cap
// terminations are remapped to ChaosModeMaxIterations and
// promise-confirmed terminations to ChaosModeComplete.
func (c *ChaosRunner) Run(ctx context.Context) (TerminationReason, error) {
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return Interrupted, err
		}

		res, err := c.Engine.Step(ctx)
		if err != nil {
			return c.Engine.State.Reason, err
		}
		switch res.Reason {
		case NotTerminated:
			continue
		case CompletionPromise:
			return ChaosModeComplete, nil
		case MaxIterations:
			return ChaosModeMaxIterations, nil
		default:
			return res.Reason, nil
		}
	}
}
