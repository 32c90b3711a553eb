package reflection

import (
	"fmt"
	"reflect"
	"runtime"

	"github.com/junioryono/dicore/internal/prototype"
)

// postConstructMethod is called after injection when a class declares it and
// no other hook is configured.
const postConstructMethod = "PostConstruct"

// Analysis is the result of analyzing one class.
type Analysis struct {
	Prototype *prototype.ServicePrototype

	// Warnings lists the injection points dropped in lenient mode.
	Warnings []error
}

// Analyzer builds service prototypes from catalog entries.
//
// In strict mode any invalid injection point fails the analysis. Otherwise the
// offending point is dropped and reported as a warning, and an unknown class
// degrades to a non-instantiable prototype.
type Analyzer struct {
	catalog *Catalog
	strict  bool
}

// NewAnalyzer creates an analyzer over catalog.
func NewAnalyzer(catalog *Catalog, strict bool) *Analyzer {
	return &Analyzer{catalog: catalog, strict: strict}
}

// Strict reports whether the analyzer fails on invalid injection points.
func (a *Analyzer) Strict() bool {
	return a.strict
}

type session struct {
	strict   bool
	warnings []error
}

// reject returns err in strict mode and records it otherwise.
func (s *session) reject(err error) error {
	if s.strict {
		return err
	}
	s.warnings = append(s.warnings, err)
	return nil
}

// Analyze builds the prototype of className.
func (a *Analyzer) Analyze(className string) (*Analysis, error) {
	s := &session{strict: a.strict}

	class, ok := a.catalog.Lookup(className)
	if !ok {
		if err := s.reject(fmt.Errorf("%w: %s", ErrUnknownClass, className)); err != nil {
			return nil, err
		}
		return &Analysis{
			Prototype: &prototype.ServicePrototype{ClassName: className},
			Warnings:  s.warnings,
		}, nil
	}

	proto := &prototype.ServicePrototype{
		ClassName:      class.Name,
		IsInstantiable: isInstantiable(class),
	}

	if class.HasConstructor() {
		ctor, err := a.method(class, runtimeName(class.Constructor), class.Constructor.Type(), 0, class.Config.ParamNames)
		if err != nil {
			if err = s.reject(fmt.Errorf("%w: constructor of %s: %v", ErrInvalidConstructor, class.Name, err)); err != nil {
				return nil, err
			}
			proto.IsInstantiable = false
		} else {
			proto.Constructor = ctor
		}
	}

	props, err := a.properties(class, s)
	if err != nil {
		return nil, err
	}
	proto.InjectedProperties = props

	for _, setter := range class.Config.Setters {
		method, ok := class.Type.MethodByName(setter.Method)
		if !ok {
			if err := s.reject(fmt.Errorf("%w: %s has no method %s", ErrInvalidInjectionPoint, class.Name, setter.Method)); err != nil {
				return nil, err
			}
			continue
		}

		m, err := a.method(class, method.Name, method.Type, 1, setter.Params)
		if err != nil {
			if err = s.reject(fmt.Errorf("%w: setter %s.%s: %v", ErrInvalidInjectionPoint, class.Name, setter.Method, err)); err != nil {
				return nil, err
			}
			continue
		}
		proto.InjectedMethods = append(proto.InjectedMethods, *m)
	}

	hook, explicit := class.Config.PostConstruct, class.Config.PostConstruct != ""
	if !explicit {
		hook = postConstructMethod
	}
	if method, ok := class.Type.MethodByName(hook); ok {
		m, err := a.method(class, method.Name, method.Type, 1, nil)
		if err != nil {
			if err = s.reject(fmt.Errorf("%w: post-construct %s.%s: %v", ErrInvalidInjectionPoint, class.Name, hook, err)); err != nil {
				return nil, err
			}
		} else {
			proto.PostConstruct = m
		}
	} else if explicit {
		if err := s.reject(fmt.Errorf("%w: %s has no method %s", ErrInvalidInjectionPoint, class.Name, hook)); err != nil {
			return nil, err
		}
	}

	return &Analysis{Prototype: proto, Warnings: s.warnings}, nil
}

// AnalyzeFunc describes the parameters of fn so they can be resolved for a call.
func (a *Analyzer) AnalyzeFunc(fn any, names ...string) (*prototype.MethodPrototype, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return nil, fmt.Errorf("%w: expected func, got %T", ErrArgumentMismatch, fn)
	}
	return a.method(&Class{Name: runtimeName(v)}, runtimeName(v), v.Type(), 0, names)
}

// method describes the parameters of fnType from offset on. Receivers are
// skipped with offset 1.
func (a *Analyzer) method(class *Class, name string, fnType reflect.Type, offset int, names []string) (*prototype.MethodPrototype, error) {
	resolved, err := paramNames(fnType, offset, names)
	if err != nil {
		return nil, err
	}

	m := &prototype.MethodPrototype{Name: name}
	for i, paramName := range resolved {
		idx := offset + i
		variadic := fnType.IsVariadic() && idx == fnType.NumIn()-1

		p, err := a.parameter(class, fnType.In(idx), paramName, variadic)
		if err != nil {
			return nil, err
		}
		m.Parameters = append(m.Parameters, p)
	}
	return m, nil
}

func (a *Analyzer) parameter(class *Class, t reflect.Type, name string, variadic bool) (prototype.ParameterPrototype, error) {
	cfg := class.Config
	p := prototype.ParameterPrototype{
		Name:       name,
		Type:       ClassName(t),
		IsVariadic: variadic,
		AllowsNull: cfg.Nullable[name],
	}

	if id, ok := cfg.Services[name]; ok {
		p.Type = id
	} else if !variadic && !IsPrimitive(t) {
		a.catalog.Ensure(t)
	}

	if value, ok := cfg.Defaults[name]; ok {
		if _, err := argValue(t, value); err != nil {
			return p, fmt.Errorf("default for %s: %w", name, err)
		}
		p.HasDefault = true
		p.Default = value
	}

	return p, nil
}

func (a *Analyzer) properties(class *Class, s *session) ([]prototype.PropertyPrototype, error) {
	st := class.Type
	if st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st.Kind() != reflect.Struct {
		return nil, nil
	}

	var props []prototype.PropertyPrototype
	for i := 0; i < st.NumField(); i++ {
		field := st.Field(i)

		tag, ok := field.Tag.Lookup("inject")
		if !ok {
			continue
		}

		id, optional, ignore := parseInjectTag(tag)
		if ignore {
			continue
		}

		if !field.IsExported() {
			if err := s.reject(fmt.Errorf("%w: unexported field %s.%s", ErrInvalidInjectionPoint, class.Name, field.Name)); err != nil {
				return nil, err
			}
			continue
		}

		if id == "" {
			if IsPrimitive(field.Type) {
				if err := s.reject(fmt.Errorf("%w: field %s.%s has a builtin type and no service id", ErrInvalidInjectionPoint, class.Name, field.Name)); err != nil {
					return nil, err
				}
				continue
			}
			id = ClassName(field.Type)
			a.catalog.Ensure(field.Type)
		}

		props = append(props, prototype.PropertyPrototype{
			Name:       field.Name,
			Type:       id,
			AllowsNull: optional,
		})
	}
	return props, nil
}

func isInstantiable(class *Class) bool {
	if class.HasConstructor() {
		return true
	}

	t := class.Type
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}

func runtimeName(fn reflect.Value) string {
	if f := runtime.FuncForPC(fn.Pointer()); f != nil {
		return f.Name()
	}
	return "func"
}
