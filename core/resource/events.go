package resource

import (
	"context"
	"errors"

	"github.com/artpar/resrun/core/errs"
	"github.com/artpar/resrun/core/events"
)

// Emit invokes every method of r listening to event, ancestors' methods
// first, and returns how many ran. A method listens when the last level of
// its chain mentioning the event, walked from ancestor to descendant, lists
// it under "@listen" rather than "@unlisten".
func (r *Resource) Emit(ctx context.Context, event string, in Input) (int, error) {
	count := 0
	for _, name := range r.methodNames() {
		m, err := r.GetChild(name)
		if errors.Is(err, errs.ErrAmbiguousProperty) {
			if r.ambiguousListener(name, event) {
				return count, err
			}
			continue
		}
		if err != nil {
			return count, err
		}
		if m == nil || !m.IsCallable() || !m.ListensTo(event) {
			continue
		}

		r.env.Logger.Debug().
			Str("event", event).
			Str("method", name).
			Str("receiver", r.describe()).
			Msg("event dispatched")

		if _, err := m.Invoke(ctx, in, WithParent(r)); err != nil {
			return count, errs.With(err, "event %q", event)
		}
		count++
	}
	r.env.observer().EventDispatched(event, count)
	return count, nil
}

// Broadcast emits event on r and then on every container property of r,
// recursively. It returns the total number of listeners that ran.
func (r *Resource) Broadcast(ctx context.Context, event string, in Input) (int, error) {
	total, err := r.Emit(ctx, event, in)
	if err != nil {
		return total, err
	}
	for _, k := range r.Keys() {
		c, err := r.GetChild(k)
		if err != nil || c == nil || c.remote != nil || c.IsCallable() || c.kind.IsScalar() {
			continue
		}
		if c, err = r.enter(ctx, c); err != nil {
			return total, err
		}
		n, err := c.Broadcast(ctx, event, in)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ListensTo reports whether the method reacts to event.
func (r *Resource) ListensTo(event string) bool {
	listening := false
	for _, l := range r.levels() {
		for _, p := range l.method.listen {
			if events.Match(p, event) {
				listening = true
			}
		}
		for _, p := range l.method.unlisten {
			if events.Match(p, event) {
				listening = false
			}
		}
	}
	return listening
}

// methodNames lists the property names declared anywhere in the chain,
// ancestors first, each once.
func (r *Resource) methodNames() []string {
	chain := r.linearize()
	seen := make(map[string]bool)
	var names []string
	for i := len(chain) - 1; i >= 0; i-- {
		for _, k := range chain[i].childKeys {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	return names
}

func (r *Resource) ambiguousListener(name, event string) bool {
	for _, i := range r.ambiguous[name] {
		c, err := r.bases[i].GetChild(name)
		if err == nil && c != nil && c.IsCallable() && c.ListensTo(event) {
			return true
		}
	}
	return false
}
