package registry

import (
	"errors"
	"fmt"
)

// Wildcard is the abstract id under which extenders apply to every service.
const Wildcard = "*"

var (
	ErrAbstractIDEmpty = errors.New("abstract id cannot be empty")
	ErrFactoryNil      = errors.New("factory cannot be nil")
	ErrClassNameEmpty  = errors.New("class name cannot be empty")
	ErrExtenderNil     = errors.New("extender cannot be nil")
)

// Resolver resolves service ids on behalf of a factory or an extender.
// Ids resolved through it are children of the resolution that invoked the callback.
type Resolver interface {
	Resolve(id string) (any, error)
}

// Factory builds an instance for a definition whose concrete is a closure.
type Factory func(r Resolver, params map[string]any) (any, error)

// Extender decorates a constructed instance before it is cached or returned.
type Extender func(instance any, r Resolver) (any, error)

// ConcreteKind tags the variant held by a Concrete.
type ConcreteKind int

const (
	// ConcreteNone means the abstract id itself names the class to build.
	ConcreteNone ConcreteKind = iota
	ConcreteClass
	ConcreteFactory
	ConcreteInstance
)

func (k ConcreteKind) String() string {
	switch k {
	case ConcreteNone:
		return "none"
	case ConcreteClass:
		return "class"
	case ConcreteFactory:
		return "factory"
	case ConcreteInstance:
		return "instance"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Concrete is what a definition resolves to: a class name, a factory closure,
// a literal instance, or nothing.
type Concrete struct {
	kind     ConcreteKind
	class    string
	factory  Factory
	instance any
}

// Class returns a concrete naming a class registered in the class catalog.
func Class(name string) Concrete {
	return Concrete{kind: ConcreteClass, class: name}
}

// FactoryOf returns a concrete backed by a factory closure.
func FactoryOf(fn Factory) Concrete {
	return Concrete{kind: ConcreteFactory, factory: fn}
}

// InstanceOf returns a concrete holding a pre-built value.
func InstanceOf(v any) Concrete {
	return Concrete{kind: ConcreteInstance, instance: v}
}

func (c Concrete) Kind() ConcreteKind { return c.kind }
func (c Concrete) Factory() Factory   { return c.factory }
func (c Concrete) Instance() any      { return c.instance }

// ClassName returns the class to build for abstractID, or "" when the concrete
// is a factory or an instance.
func (c Concrete) ClassName(abstractID string) string {
	switch c.kind {
	case ConcreteNone:
		return abstractID
	case ConcreteClass:
		return c.class
	default:
		return ""
	}
}

func (c Concrete) String() string {
	switch c.kind {
	case ConcreteClass:
		return "class " + c.class
	case ConcreteInstance:
		return fmt.Sprintf("instance %T", c.instance)
	default:
		return c.kind.String()
	}
}

// Definition is the registration record of one service.
// It is treated as immutable once added to a Store.
type Definition struct {
	AbstractID string
	Concrete   Concrete
	Lifetime   Lifetime
	Tags       []string
}

// Validate checks the definition for registration errors.
func (d *Definition) Validate() error {
	if d.AbstractID == "" {
		return ErrAbstractIDEmpty
	}

	if !d.Lifetime.IsValid() {
		return LifetimeError{Value: int(d.Lifetime)}
	}

	switch d.Concrete.kind {
	case ConcreteClass:
		if d.Concrete.class == "" {
			return ErrClassNameEmpty
		}
	case ConcreteFactory:
		if d.Concrete.factory == nil {
			return ErrFactoryNil
		}
	}

	return nil
}

// HasTag reports whether the definition carries tag.
func (d *Definition) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
