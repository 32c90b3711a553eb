package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/junioryono/dicore/internal/registry"
)

var (
	ErrServiceNotFound    = errors.New("service not found")
	ErrCircularDependency = errors.New("circular dependency")
	ErrMaxDepthExceeded   = errors.New("max depth exceeded")
	ErrPolicyViolation    = errors.New("resolution denied by policy")
	ErrInstantiation      = errors.New("instantiation failed")
	ErrNotInstantiable    = errors.New("class is not instantiable")
	ErrAnalysis           = errors.New("prototype analysis failed")
	ErrLifetimeConflict   = errors.New("lifetime conflict")
)

var (
	_ error = ResolutionError{}
	_ error = CircularDependencyError{}
	_ error = DepthExceededError{}
	_ error = PolicyViolationError{}
	_ error = InstantiationError{}
	_ error = LifetimeConflictError{}
)

// ErrorKind classifies resolution failures.
type ErrorKind int

const (
	KindNotFound ErrorKind = iota
	KindCircularDependency
	KindDepthExceeded
	KindPolicyViolation
	KindInstantiation
	KindNotInstantiable
	KindAnalysis
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindCircularDependency:
		return "CircularDependency"
	case KindDepthExceeded:
		return "DepthExceeded"
	case KindPolicyViolation:
		return "PolicyViolation"
	case KindInstantiation:
		return "Instantiation"
	case KindNotInstantiable:
		return "NotInstantiable"
	case KindAnalysis:
		return "Analysis"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

func formatPath(path []string, last string) string {
	chain := append(append([]string(nil), path...), last)
	return strings.Join(chain, " -> ")
}

// ResolutionError reports a failed resolution that has no more specific type.
type ResolutionError struct {
	ServiceID string
	Path      []string
	Kind      ErrorKind
	Cause     error
}

func (e ResolutionError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("cannot resolve %s", e.ServiceID))
	if len(e.Path) > 0 {
		b.WriteString(fmt.Sprintf(" (path: %s)", formatPath(e.Path, e.ServiceID)))
	}
	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}
	return b.String()
}

func (e ResolutionError) Unwrap() error {
	return e.Cause
}

// CircularDependencyError reports a service that appears in its own ancestry.
// Path ends with the repeated service.
type CircularDependencyError struct {
	ServiceID string
	Path      []string
}

func (e CircularDependencyError) Error() string {
	var b strings.Builder
	b.WriteString("circular dependency detected:\n\n")

	for i, id := range e.Path {
		if i > 0 {
			b.WriteString("      ↓\n")
		}
		if i == len(e.Path)-1 {
			b.WriteString(fmt.Sprintf("    %s (cycle)\n", id))
		} else {
			b.WriteString(fmt.Sprintf("    %s\n", id))
		}
	}

	b.WriteString("\nTo resolve this:\n")
	b.WriteString("  • Inject a factory and resolve the dependency lazily\n")
	b.WriteString("  • Move the shared behavior into a third service\n")
	return b.String()
}

func (e CircularDependencyError) Unwrap() error {
	return ErrCircularDependency
}

// DepthExceededError reports a dependency chain deeper than the configured limit.
type DepthExceededError struct {
	ServiceID string
	Path      []string
	Depth     int
	MaxDepth  int
}

func (e DepthExceededError) Error() string {
	return fmt.Sprintf("max depth exceeded resolving %s: depth %d, limit %d (path: %s)",
		e.ServiceID, e.Depth, e.MaxDepth, formatPath(e.Path, e.ServiceID))
}

func (e DepthExceededError) Unwrap() error {
	return ErrMaxDepthExceeded
}

// PolicyViolationError reports a resolution denied by the policy guard.
type PolicyViolationError struct {
	ServiceID string
	Path      []string
	Reason    string
}

func (e PolicyViolationError) Error() string {
	msg := fmt.Sprintf("resolution of %s denied by policy", e.ServiceID)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e PolicyViolationError) Unwrap() error {
	return ErrPolicyViolation
}

// InstantiationError wraps a failure raised while building or initializing an
// instance.
type InstantiationError struct {
	ServiceID string
	ClassName string
	Path      []string
	Cause     error
}

func (e InstantiationError) Error() string {
	target := e.ServiceID
	if e.ClassName != "" && e.ClassName != e.ServiceID {
		target = fmt.Sprintf("%s (class %s)", e.ServiceID, e.ClassName)
	}
	return fmt.Sprintf("failed to instantiate %s: %v", target, e.Cause)
}

func (e InstantiationError) Unwrap() []error {
	return []error{ErrInstantiation, e.Cause}
}

// LifetimeConflictError reports a singleton whose construction needs a scoped
// service. The singleton would keep the instance of one scope after that scope
// disposed it.
type LifetimeConflictError struct {
	ServiceID          string
	ServiceLifetime    registry.Lifetime
	DependencyID       string
	DependencyLifetime registry.Lifetime

	// Path leads from the singleton to the scoped dependency, both included.
	Path []string
}

func (e LifetimeConflictError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("lifetime conflict: %s (%s) cannot depend on %s (%s)",
		e.ServiceID, e.ServiceLifetime, e.DependencyID, e.DependencyLifetime))
	if len(e.Path) > 2 {
		b.WriteString(fmt.Sprintf(" (path: %s)", strings.Join(e.Path, " -> ")))
	}
	b.WriteString("\n\nTo resolve this:\n")
	b.WriteString("  • Register the dependency as a singleton or the service as scoped\n")
	b.WriteString("  • Inject a factory and resolve the scoped service per call\n")
	return b.String()
}

func (e LifetimeConflictError) Unwrap() error {
	return ErrLifetimeConflict
}

func notFound(ctx *Context, cause error) error {
	return ResolutionError{ServiceID: ctx.ServiceID, Path: ctx.PathCopy(), Kind: KindNotFound, Cause: cause}
}

func instantiationFailed(ctx *Context, className string, cause error) error {
	return InstantiationError{ServiceID: ctx.ServiceID, ClassName: className, Path: ctx.PathCopy(), Cause: cause}
}

// isResolutionFailure reports whether err already describes a failed
// resolution, so callers pass it on instead of wrapping it again.
func isResolutionFailure(err error) bool {
	var (
		resolution    ResolutionError
		cycle         CircularDependencyError
		depth         DepthExceededError
		policy        PolicyViolationError
		instantiation InstantiationError
		conflict      LifetimeConflictError
	)
	return errors.As(err, &resolution) ||
		errors.As(err, &cycle) ||
		errors.As(err, &depth) ||
		errors.As(err, &policy) ||
		errors.As(err, &instantiation) ||
		errors.As(err, &conflict)
}
