package dicore

import (
	"fmt"
	"reflect"
)

// Resolve resolves the service named after T from r, which may be a
// Container, a Scope or the Resolver handed to a factory.
//
//	logger, err := dicore.Resolve[*Logger](c)
func Resolve[T any](r Resolver) (T, error) {
	return ResolveID[T](r, NameOf[T]())
}

// MustResolve is like Resolve but panics on failure. It suits application
// start-up, where a missing service is fatal.
func MustResolve[T any](r Resolver) T {
	service, err := Resolve[T](r)
	if err != nil {
		panic(fmt.Sprintf("failed to resolve service: %v", err))
	}
	return service
}

// ResolveID resolves the service id from r and asserts it to T.
//
//	cache, err := dicore.ResolveID[Cache](scope, "cache.redis")
func ResolveID[T any](r Resolver, id string) (T, error) {
	var zero T

	if r == nil {
		return zero, ErrResolverNil
	}

	service, err := r.Resolve(id)
	if err != nil {
		return zero, err
	}

	result, ok := service.(T)
	if !ok {
		return zero, TypeMismatchError{
			ServiceID: id,
			Expected:  reflect.TypeFor[T](),
			Actual:    reflect.TypeOf(service),
		}
	}
	return result, nil
}

// MakeWith resolves the service named after T from r with constructor
// overrides. r is usually a Container or a Scope.
func MakeWith[T any](r interface {
	Make(id string, overrides map[string]any) (any, error)
}, overrides map[string]any) (T, error) {
	var zero T
	id := NameOf[T]()

	service, err := r.Make(id, overrides)
	if err != nil {
		return zero, err
	}

	result, ok := service.(T)
	if !ok {
		return zero, TypeMismatchError{ServiceID: id, Expected: reflect.TypeFor[T](), Actual: reflect.TypeOf(service)}
	}
	return result, nil
}

// ResolveTagged resolves every service tagged with tag from r and asserts
// each to T.
func ResolveTagged[T any](r interface{ Tagged(tag string) ([]any, error) }, tag string) ([]T, error) {
	services, err := r.Tagged(tag)
	if err != nil {
		return nil, err
	}

	results := make([]T, 0, len(services))
	for _, service := range services {
		result, ok := service.(T)
		if !ok {
			return nil, TypeMismatchError{ServiceID: tag, Expected: reflect.TypeFor[T](), Actual: reflect.TypeOf(service)}
		}
		results = append(results, result)
	}
	return results, nil
}

// BindType binds the id of I to class C with lifetime. C is added to the
// class catalog when unknown; when I is an interface, C must implement it.
//
//	_ = dicore.BindType[Logger, *FileLogger](c, dicore.Singleton)
func BindType[I, C any](c *Container, lifetime Lifetime, opts ...BindOption) error {
	abstract, concrete := reflect.TypeFor[I](), reflect.TypeFor[C]()
	id := NameOf[I]()

	if abstract.Kind() == reflect.Interface && !concrete.Implements(abstract) {
		return RegistrationError{
			ServiceID: id,
			Operation: "bind",
			Cause:     TypeMismatchError{ServiceID: id, Expected: abstract, Actual: concrete},
		}
	}

	class := NameOf[C]()
	if !c.catalog.Ensure(concrete) {
		if err := c.RegisterType(concrete); err != nil {
			return err
		}
	}

	return c.Bind(id, Class(class), lifetime, opts...)
}
