package dicore

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/junioryono/dicore/internal/graph"
	"github.com/junioryono/dicore/internal/pipeline"
	"github.com/junioryono/dicore/internal/reflection"
	"github.com/junioryono/dicore/internal/registry"
	"github.com/junioryono/dicore/internal/state"
)

// ========================================
// Core Error Values (Sentinel Errors)
// ========================================
// Typed errors wrap these; match them with errors.Is.

var (
	// Resolution errors.
	ErrServiceNotFound    = pipeline.ErrServiceNotFound
	ErrCircularDependency = pipeline.ErrCircularDependency
	ErrMaxDepthExceeded   = pipeline.ErrMaxDepthExceeded
	ErrPolicyViolation    = pipeline.ErrPolicyViolation
	ErrInstantiation      = pipeline.ErrInstantiation
	ErrNotInstantiable    = pipeline.ErrNotInstantiable
	ErrAnalysis           = pipeline.ErrAnalysis
	ErrInvalidTransition  = state.ErrInvalidTransition
	ErrDependencyCycle    = graph.ErrCycle
	ErrLifetimeConflict   = pipeline.ErrLifetimeConflict

	// Class catalog errors.
	ErrUnknownClass           = reflection.ErrUnknownClass
	ErrInvalidConstructor     = reflection.ErrInvalidConstructor
	ErrInvalidInjectionPoint  = reflection.ErrInvalidInjectionPoint
	ErrArgumentMismatch       = reflection.ErrArgumentMismatch
	ErrAbstractIDEmpty        = registry.ErrAbstractIDEmpty
	ErrFactoryNil             = registry.ErrFactoryNil
	ErrExtenderNil            = registry.ErrExtenderNil
	ErrInjectionTargetInvalid = errors.New("injection target must be a struct or a pointer to a struct")
	ErrNilInstance            = errors.New("instance cannot be nil")

	// Lifecycle errors.
	ErrContainerClosed   = errors.New("container has been closed")
	ErrScopeClosed       = errors.New("scope has been closed")
	ErrScopeNotInContext = errors.New("no scope found in context")
	ErrResolverNil       = errors.New("resolver cannot be nil")
)

// ========================================
// Typed Errors
// ========================================

type (
	// ResolutionError reports a failed resolution that has no more specific type.
	ResolutionError = pipeline.ResolutionError

	// CircularDependencyError reports a service that appears in its own ancestry.
	CircularDependencyError = pipeline.CircularDependencyError

	// DepthExceededError reports a dependency chain deeper than the configured limit.
	DepthExceededError = pipeline.DepthExceededError

	// PolicyViolationError reports a resolution denied by the policy guard.
	PolicyViolationError = pipeline.PolicyViolationError

	// InstantiationError wraps a failure raised while building an instance.
	InstantiationError = pipeline.InstantiationError

	// InvalidStateTransitionError reports an illegal resolution state change.
	InvalidStateTransitionError = state.InvalidTransitionError

	// LifetimeConflictError reports a singleton that needs a scoped service.
	LifetimeConflictError = pipeline.LifetimeConflictError

	// LifetimeError indicates an invalid lifetime value.
	LifetimeError = registry.LifetimeError

	// ErrorKind classifies a ResolutionError.
	ErrorKind = pipeline.ErrorKind
)

const (
	KindNotFound           = pipeline.KindNotFound
	KindCircularDependency = pipeline.KindCircularDependency
	KindDepthExceeded      = pipeline.KindDepthExceeded
	KindPolicyViolation    = pipeline.KindPolicyViolation
	KindInstantiation      = pipeline.KindInstantiation
	KindNotInstantiable    = pipeline.KindNotInstantiable
	KindAnalysis           = pipeline.KindAnalysis
)

var (
	_ error = RegistrationError{}
	_ error = TypeMismatchError{}
	_ error = ModuleError{}
)

// RegistrationError indicates a registration call was rejected.
type RegistrationError struct {
	ServiceID string
	Operation string // "bind", "provide", "extend", "tag"
	Cause     error
}

func (e RegistrationError) Error() string {
	if e.ServiceID == "" {
		return fmt.Sprintf("failed to %s: %v", e.Operation, e.Cause)
	}
	return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.ServiceID, e.Cause)
}

func (e RegistrationError) Unwrap() error {
	return e.Cause
}

// TypeMismatchError indicates a resolved instance does not have the requested type.
type TypeMismatchError struct {
	ServiceID string
	Expected  reflect.Type
	Actual    reflect.Type
}

func (e TypeMismatchError) Error() string {
	return fmt.Sprintf("service %s: expected %s, got %s", e.ServiceID, formatType(e.Expected), formatType(e.Actual))
}

// ModuleError wraps a registration failure inside a module.
type ModuleError struct {
	Module string
	Cause  error
}

func (e ModuleError) Error() string {
	return fmt.Sprintf("module %q: %v", e.Module, e.Cause)
}

func (e ModuleError) Unwrap() error {
	return e.Cause
}

func formatType(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

// IsNotFound reports whether err means a service could not be found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrServiceNotFound)
}

// IsCircularDependency reports whether err is caused by a dependency cycle,
// found either during resolution or by Compile.
func IsCircularDependency(err error) bool {
	return errors.Is(err, ErrCircularDependency) || errors.Is(err, ErrDependencyCycle)
}

// IsLifetimeConflict reports whether err is caused by a singleton that needs a
// scoped service.
func IsLifetimeConflict(err error) bool {
	return errors.Is(err, ErrLifetimeConflict)
}

// ResolutionPath returns the chain of services that led to err, outermost
// first, ending with the service that failed. It returns nil when err carries
// no path.
func ResolutionPath(err error) []string {
	var (
		resolution    ResolutionError
		cycle         CircularDependencyError
		depth         DepthExceededError
		policy        PolicyViolationError
		instantiation InstantiationError
		conflict      LifetimeConflictError
	)

	switch {
	case errors.As(err, &cycle):
		return cycle.Path
	case errors.As(err, &conflict):
		return conflict.Path
	case errors.As(err, &depth):
		return append(append([]string(nil), depth.Path...), depth.ServiceID)
	case errors.As(err, &policy):
		return append(append([]string(nil), policy.Path...), policy.ServiceID)
	case errors.As(err, &instantiation):
		return append(append([]string(nil), instantiation.Path...), instantiation.ServiceID)
	case errors.As(err, &resolution):
		return append(append([]string(nil), resolution.Path...), resolution.ServiceID)
	default:
		return nil
	}
}

// FormatPath renders a resolution path as "a -> b -> c".
func FormatPath(path []string) string {
	return strings.Join(path, " -> ")
}
