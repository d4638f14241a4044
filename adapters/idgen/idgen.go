// Package idgen provides request ID generators.
package idgen

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/artpar/resrun/ports"
	"github.com/google/uuid"
)

// Generator names accepted by ByName.
const (
	KindUUID       = "uuid"
	KindSequential = "sequential"
)

// UUID generates random UUIDs.
type UUID struct{}

// New generates a new UUID v4.
func (UUID) New() string {
	return uuid.NewString()
}

// Ensure interface compliance.
var _ ports.IDGenerator = UUID{}

// Sequential generates prefixed sequential IDs. Useful where request IDs
// must be predictable, such as tests and traces.
type Sequential struct {
	prefix  string
	counter atomic.Uint64
}

// NewSequential creates a sequential ID generator.
func NewSequential(prefix string) *Sequential {
	return &Sequential{prefix: prefix}
}

// New generates the next sequential ID.
func (s *Sequential) New() string {
	return s.prefix + strconv.FormatUint(s.counter.Add(1), 10)
}

// Reset restarts the sequence.
func (s *Sequential) Reset() {
	s.counter.Store(0)
}

// Ensure interface compliance.
var _ ports.IDGenerator = (*Sequential)(nil)

// ByName returns the generator configured by name. An empty name selects
// UUIDs.
func ByName(name string) (ports.IDGenerator, error) {
	switch name {
	case "", KindUUID:
		return UUID{}, nil
	case KindSequential:
		return NewSequential("req-"), nil
	}
	return nil, fmt.Errorf("unknown id generator %q", name)
}
