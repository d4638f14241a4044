// Package compat checks runtime versions against requirement ranges.
//
// A requirement is one or more comparators that must all hold, with "||"
// separating alternatives:
//
//	1.2.3   =1.2.3   >= 1.2   <2   ^1.4.0   ~0.3   1.x   *
//
// Versions follow semantic versioning; the leading "v" is optional.
package compat

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
)

// Checker is the semantic version checker used by the resource runtime.
type Checker struct{}

// IsCompatible reports whether version satisfies requirement.
func (Checker) IsCompatible(requirement, version string) (bool, error) {
	return IsCompatible(requirement, version)
}

// constraints caches parsed requirements; definitions repeat them.
var constraints sync.Map

// IsCompatible reports whether version satisfies requirement.
func IsCompatible(requirement, version string) (bool, error) {
	v, err := semver.NewVersion(strings.TrimSpace(version))
	if err != nil {
		return false, fmt.Errorf("invalid version %q: %w", version, err)
	}
	c, err := parse(requirement)
	if err != nil {
		return false, err
	}
	return c.Check(v), nil
}

func parse(requirement string) (*semver.Constraints, error) {
	if c, ok := constraints.Load(requirement); ok {
		return c.(*semver.Constraints), nil
	}
	c, err := semver.NewConstraint(requirement)
	if err != nil {
		return nil, fmt.Errorf("requirement %q: %w", requirement, err)
	}
	constraints.Store(requirement, c)
	return c, nil
}
