package resource

import (
	"regexp"
	"strings"

	"github.com/artpar/resrun/core/errs"
)

var (
	namePattern  = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9._-]*[A-Za-z0-9])?$`)
	childPattern = regexp.MustCompile(`^[A-Za-z0-9_]([A-Za-z0-9._-]*[A-Za-z0-9_])?$`)
)

// ValidateName checks a resource name: trimmed, non-empty, alphanumeric at
// both ends, with at most one "scope/" prefix.
func ValidateName(name string) error {
	if name == "" {
		return errs.New(errs.CodeDefinition, "name cannot be empty")
	}
	if strings.TrimSpace(name) != name {
		return errs.New(errs.CodeDefinition, "name %q has surrounding whitespace", name)
	}

	scope, local, scoped := strings.Cut(name, "/")
	if scoped {
		if strings.Contains(local, "/") {
			return errs.New(errs.CodeDefinition, "name %q has more than one scope separator", name)
		}
		if !namePattern.MatchString(scope) {
			return errs.New(errs.CodeDefinition, "invalid scope in name %q", name)
		}
	} else {
		local = scope
	}
	if !namePattern.MatchString(local) {
		return errs.New(errs.CodeDefinition, "invalid name %q", name)
	}
	return nil
}

// validateKey checks a child property name.
func validateKey(key string) error {
	if !childPattern.MatchString(key) {
		return errs.New(errs.CodeDefinition, "invalid property name %q", key)
	}
	return nil
}

// splitRequirement splits "name@range" into its parts. A scoped name keeps
// its leading "@" if it has one.
func splitRequirement(req string) (string, string) {
	i := strings.LastIndex(req, "@")
	if i <= 0 {
		return req, ""
	}
	return req[:i], req[i+1:]
}
