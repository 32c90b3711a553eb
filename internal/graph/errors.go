package graph

import (
	"errors"
	"strings"
)

// ErrCycle is wrapped by CircularDependencyError.
var ErrCycle = errors.New("dependency cycle")

// CircularDependencyError reports services that depend on each other.
// Path starts and ends with the same id.
type CircularDependencyError struct {
	Path []string
}

func (e CircularDependencyError) Error() string {
	return "dependency cycle: " + strings.Join(e.Path, " -> ")
}

func (e CircularDependencyError) Unwrap() error {
	return ErrCycle
}
