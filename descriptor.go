package dicore

import (
	"reflect"

	"github.com/junioryono/dicore/internal/reflection"
	"github.com/junioryono/dicore/internal/registry"
)

// Wildcard is the service id under which an extender applies to every service.
const Wildcard = registry.Wildcard

// Resolver resolves service ids. Factories and extenders receive one whose
// resolutions are children of the resolution that called them.
type Resolver = registry.Resolver

// Factory builds an instance for a definition whose concrete is a closure.
type Factory = registry.Factory

// Extender decorates a constructed instance before it is cached or returned.
type Extender = registry.Extender

// Concrete is what a definition resolves to: a class, a factory or an instance.
// The zero value means the service id is itself the class name.
type Concrete = registry.Concrete

// Definition is the registration record of one service.
type Definition = registry.Definition

// Class returns a concrete naming a class of the catalog, usually NameOf[T]().
func Class(name string) Concrete {
	return registry.Class(name)
}

// FactoryOf returns a concrete backed by fn.
func FactoryOf(fn Factory) Concrete {
	return registry.FactoryOf(fn)
}

// InstanceOf returns a concrete holding a pre-built value.
func InstanceOf(v any) Concrete {
	return registry.InstanceOf(v)
}

// NameOf returns the id of type T: "*pkg/path.Name" for pointers to named
// types, "pkg/path.Name" for named types and the Go syntax otherwise.
func NameOf[T any]() string {
	return reflection.ClassName(reflect.TypeFor[T]())
}

// TypeName returns the id of t.
func TypeName(t reflect.Type) string {
	return reflection.ClassName(t)
}

// ClassOption configures the injection metadata of a class.
type ClassOption = reflection.ClassOption

// WithParamNames names the constructor parameters in order. Overrides passed
// to Make are matched against these names. Without it, parameters are named
// after their type ("*app.Logger" becomes "logger").
func WithParamNames(names ...string) ClassOption {
	return reflection.WithParamNames(names...)
}

// WithParamDefault gives a parameter a value used when nothing else resolves it.
func WithParamDefault(name string, value any) ClassOption {
	return reflection.WithParamDefault(name, value)
}

// WithParamNullable lets a parameter receive its zero value when it cannot be
// resolved.
func WithParamNullable(name string) ClassOption {
	return reflection.WithParamNullable(name)
}

// WithParamService resolves a parameter from service id instead of its type.
func WithParamService(name, id string) ClassOption {
	return reflection.WithParamService(name, id)
}

// WithSetter calls method after construction with resolved arguments.
func WithSetter(method string, params ...string) ClassOption {
	return reflection.WithSetter(method, params...)
}

// WithPostConstruct calls method once the instance is fully injected. A
// method called PostConstruct is used when this option is absent.
func WithPostConstruct(method string) ClassOption {
	return reflection.WithPostConstruct(method)
}

// BindOption configures a definition.
type BindOption func(*bindOptions)

type bindOptions struct {
	tags []string
}

// WithTags tags the definition so Tagged can resolve it in a group.
func WithTags(tags ...string) BindOption {
	return func(o *bindOptions) {
		o.tags = append(o.tags, tags...)
	}
}

func newDefinition(id string, concrete Concrete, lifetime Lifetime, opts []BindOption) *Definition {
	o := &bindOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return &Definition{AbstractID: id, Concrete: concrete, Lifetime: lifetime, Tags: o.tags}
}
