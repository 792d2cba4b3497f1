// Package hats implements the hat topology: the set of configured roles
// an event can route to, and the registry that resolves topic -> hats.
package hats

import (
	"fmt"

	"github.com/steveyegge/ralph/internal/topic"
)

// Hat is a role-specialised sub-agent: an id, a human-readable name, the
// topics it subscribes to and publishes, optional free-text
// instructions, and an optional cap on how many times it may activate
// in a single run.
type Hat struct {
	ID              topic.HatId
	Name            string
	Subscriptions   []topic.Topic
	Publications    []topic.Topic
	Instructions    string
	MaxActivations  *uint32
	// Model is the optional model name from the hat's config entry
	// (e.g. "claude-opus-4"). It is carried on the hat only: the engine
	// does not pass it to the adapter, which uses the model from its own
	// config.
	Model string
}

// Validate checks the invariant that a hat must subscribe to or publish
// at least one topic.
func (h Hat) Validate() error {
	if len(h.Subscriptions) == 0 && len(h.Publications) == 0 {
		return fmt.Errorf("hat %q: must have at least one subscription or publication", h.ID)
	}
	return nil
}

// Subscribes reports whether h subscribes to a topic matching t.
func (h Hat) Subscribes(t topic.Topic) bool {
	for _, s := range h.Subscriptions {
		if s.Matches(t) {
			return true
		}
	}
	return false
}

// fallback returns the built-in "ralph" hat: it subscribes to every
// topic, and is present in every registry regardless of configuration.
func fallback() Hat {
	return Hat{
		ID:            topic.Ralph,
		Name:          "Ralph",
		Subscriptions: []topic.Topic{topic.Universal},
	}
}
