package reflection

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

var (
	ErrUnknownClass          = errors.New("class not registered")
	ErrInvalidConstructor    = errors.New("invalid constructor")
	ErrInvalidInjectionPoint = errors.New("invalid injection point")
	ErrNotInstantiable       = errors.New("class is not instantiable")
	ErrArgumentMismatch      = errors.New("argument mismatch")
)

// Setter names a method used for setter injection and the names of its
// parameters.
type Setter struct {
	Method string
	Params []string
}

// ClassConfig carries the injection metadata Go types cannot express themselves.
type ClassConfig struct {
	ParamNames    []string
	Defaults      map[string]any
	Nullable      map[string]bool
	Services      map[string]string
	Setters       []Setter
	PostConstruct string
}

// ClassOption configures a class at registration.
type ClassOption func(*ClassConfig)

// WithParamNames names the constructor parameters in order.
func WithParamNames(names ...string) ClassOption {
	return func(c *ClassConfig) {
		c.ParamNames = append([]string(nil), names...)
	}
}

// WithParamDefault gives the named constructor parameter a default value.
func WithParamDefault(name string, value any) ClassOption {
	return func(c *ClassConfig) {
		if c.Defaults == nil {
			c.Defaults = make(map[string]any)
		}
		c.Defaults[name] = value
	}
}

// WithParamNullable lets the named constructor parameter receive nil.
func WithParamNullable(name string) ClassOption {
	return func(c *ClassConfig) {
		if c.Nullable == nil {
			c.Nullable = make(map[string]bool)
		}
		c.Nullable[name] = true
	}
}

// WithParamService resolves the named constructor parameter from service id.
func WithParamService(name, id string) ClassOption {
	return func(c *ClassConfig) {
		if c.Services == nil {
			c.Services = make(map[string]string)
		}
		c.Services[name] = id
	}
}

// WithSetter injects through method after construction.
func WithSetter(method string, params ...string) ClassOption {
	return func(c *ClassConfig) {
		c.Setters = append(c.Setters, Setter{Method: method, Params: params})
	}
}

// WithPostConstruct calls method once the instance is fully injected.
func WithPostConstruct(method string) ClassOption {
	return func(c *ClassConfig) {
		c.PostConstruct = method
	}
}

// Class is a registered Go type and, optionally, the constructor producing it.
type Class struct {
	Name        string
	Type        reflect.Type
	Constructor reflect.Value
	Config      ClassConfig
	Auto        bool
}

// HasConstructor reports whether the class is built by a constructor func.
func (c *Class) HasConstructor() bool {
	return c.Constructor.IsValid()
}

// Catalog maps class names to registered types.
type Catalog struct {
	mu      sync.RWMutex
	classes map[string]*Class
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{classes: make(map[string]*Class)}
}

// RegisterConstructor registers the type constructor returns. Constructors
// return T or (T, error).
func (c *Catalog) RegisterConstructor(constructor any, opts ...ClassOption) (*Class, error) {
	if constructor == nil {
		return nil, fmt.Errorf("%w: constructor cannot be nil", ErrInvalidConstructor)
	}

	fn := reflect.ValueOf(constructor)
	if fn.Kind() != reflect.Func {
		return nil, fmt.Errorf("%w: expected func, got %T", ErrInvalidConstructor, constructor)
	}
	if fn.IsNil() {
		return nil, fmt.Errorf("%w: constructor cannot be nil", ErrInvalidConstructor)
	}

	fnType := fn.Type()
	switch {
	case fnType.NumOut() == 0 || fnType.NumOut() > 2:
		return nil, fmt.Errorf("%w: %s must return T or (T, error)", ErrInvalidConstructor, fnType)
	case fnType.Out(0) == errType:
		return nil, fmt.Errorf("%w: %s returns only an error", ErrInvalidConstructor, fnType)
	case fnType.NumOut() == 2 && fnType.Out(1) != errType:
		return nil, fmt.Errorf("%w: second result of %s must be error", ErrInvalidConstructor, fnType)
	}

	class := &Class{
		Name:        ClassName(fnType.Out(0)),
		Type:        fnType.Out(0),
		Constructor: fn,
		Config:      buildConfig(opts),
	}

	c.put(class)
	return class, nil
}

// RegisterType registers t to be built without a constructor.
func (c *Catalog) RegisterType(t reflect.Type, opts ...ClassOption) (*Class, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: type cannot be nil", ErrInvalidConstructor)
	}

	class := &Class{
		Name:   ClassName(t),
		Type:   t,
		Config: buildConfig(opts),
	}

	c.put(class)
	return class, nil
}

// Ensure registers t if it is a named struct (or pointer to one) that is not
// yet known. It reports whether t is in the catalog afterwards.
func (c *Catalog) Ensure(t reflect.Type) bool {
	name := ClassName(t)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.classes[name]; ok {
		return true
	}
	if !isClassCandidate(t) {
		return false
	}

	c.classes[name] = &Class{Name: name, Type: t, Auto: true}
	return true
}

// Lookup returns the class registered under name.
func (c *Catalog) Lookup(name string) (*Class, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	class, ok := c.classes[name]
	return class, ok
}

// Has reports whether name is registered.
func (c *Catalog) Has(name string) bool {
	_, ok := c.Lookup(name)
	return ok
}

// Names returns the registered class names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.classes))
	for name := range c.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Catalog) put(class *Class) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.classes[class.Name] = class
}

func buildConfig(opts []ClassOption) ClassConfig {
	var cfg ClassConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}
