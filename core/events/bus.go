// Package events provides event-name pattern matching and a synchronous
// publish/subscribe bus. Resources declare the events they listen to with
// "@listen" patterns; the runtime publishes broadcasts through the bus.
package events

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Event represents a published event.
type Event struct {
	// Name is the event name (e.g., "publish", "deploy.before").
	Name string

	// Source names the resource or component that emitted the event.
	Source string

	// Arguments are positional arguments forwarded to listeners.
	Arguments []any

	// Options are keyword arguments forwarded to listeners.
	Options map[string]any
}

// Handler is a function that processes an event.
type Handler func(ctx context.Context, event Event) error

type subscription struct {
	pattern string
	handler Handler
}

// Bus is a synchronous publish/subscribe event bus.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	logger zerolog.Logger
}

// NewBus creates a new event bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{logger: logger}
}

// Subscribe registers a handler for every event matching pattern.
// See Match for the pattern syntax.
func (b *Bus) Subscribe(pattern string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{pattern: pattern, handler: handler})
}

// Publish calls every matching handler in subscription order.
// The first handler error stops the publication and is returned.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	b.logger.Debug().
		Str("event", event.Name).
		Str("source", event.Source).
		Msg("event emitted")

	for _, sub := range subs {
		if !Match(sub.pattern, event.Name) {
			continue
		}
		if err := sub.handler(ctx, event); err != nil {
			b.logger.Error().
				Err(err).
				Str("event", event.Name).
				Str("pattern", sub.pattern).
				Msg("event handler error")
			return fmt.Errorf("event %q: %w", event.Name, err)
		}
	}
	return nil
}

// HasSubscribers checks if any handler matches an event.
func (b *Bus) HasSubscribers(event string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if Match(sub.pattern, event) {
			return true
		}
	}
	return false
}

// Match reports whether an event name matches a listen pattern.
//
//   - "publish"  - exact match
//   - "deploy.*" - every event under "deploy."
//   - "*.after"  - one segment, then "after"
//   - "*"        - all events
//
// Segments are separated by ".". A "*" segment matches exactly one segment,
// except in last position where it matches the remainder.
func Match(pattern, name string) bool {
	if pattern == "*" || pattern == name {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return false
	}

	pp := splitEvent(pattern)
	np := splitEvent(name)
	for i, seg := range pp {
		if i >= len(np) {
			return false
		}
		if seg == "*" {
			if i == len(pp)-1 {
				return true
			}
			continue
		}
		if seg != np[i] {
			return false
		}
	}
	return len(pp) == len(np)
}

// splitEvent splits an event name by "."
func splitEvent(name string) []string {
	var parts []string
	start := 0
	for i, c := range name {
		if c == '.' {
			parts = append(parts, name[start:i])
			start = i + 1
		}
	}
	if start < len(name) {
		parts = append(parts, name[start:])
	}
	return parts
}
