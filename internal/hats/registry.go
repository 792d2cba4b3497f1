package hats

import (
	"fmt"

	"github.com/steveyegge/ralph/internal/topic"
)

// Registry stores the configured hats plus the built-in fallback, and
// resolves topic -> hat(s) under §4.1's wildcard matching rules.
type Registry struct {
	order []topic.HatId
	byID  map[topic.HatId]Hat
}

// NewRegistry builds a Registry from configured hats. The built-in
// "ralph" fallback is always added, and always added last regardless of
// whether the caller also listed it, so routing order stays consistent.
// An error is returned if any configured hat is invalid or duplicated.
func NewRegistry(configured []Hat) (*Registry, error) {
	r := &Registry{byID: make(map[topic.HatId]Hat, len(configured)+1)}
	for _, h := range configured {
		if h.ID == topic.Ralph {
			continue // the fallback is added once, below, with its fixed definition
		}
		if err := h.Validate(); err != nil {
			return nil, err
		}
		if _, exists := r.byID[h.ID]; exists {
			return nil, fmt.Errorf("hat registry: duplicate hat id %q", h.ID)
		}
		r.byID[h.ID] = h
		r.order = append(r.order, h.ID)
	}
	fb := fallback()
	r.byID[fb.ID] = fb
	r.order = append(r.order, fb.ID)
	return r, nil
}

// All returns every registered hat, including the fallback, in
// insertion/configuration order.
func (r *Registry) All() []Hat {
	out := make([]Hat, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Find looks up a hat by id.
func (r *Registry) Find(id topic.HatId) (Hat, bool) {
	h, ok := r.byID[id]
	return h, ok
}

// Route returns, in configuration order, every hat whose subscriptions
// match t, excluding the fallback. The fallback is only consulted by
// callers when this slice is empty (see §4.5's invariant and §4.8 step 2).
func (r *Registry) Route(t topic.Topic) []Hat {
	var out []Hat
	for _, id := range r.order {
		if id == topic.Ralph {
			continue
		}
		h := r.byID[id]
		if h.Subscribes(t) {
			out = append(out, h)
		}
	}
	return out
}

// Fallback returns the built-in "ralph" hat.
func (r *Registry) Fallback() Hat {
	return r.byID[topic.Ralph]
}
