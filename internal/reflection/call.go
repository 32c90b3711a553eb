package reflection

import (
	"fmt"
	"reflect"

	"github.com/pkg/errors"

	"github.com/junioryono/dicore/internal/prototype"
)

// argValue converts arg to a value assignable to t. A nil arg becomes the zero
// value; numeric values are converted between numeric kinds.
func argValue(t reflect.Type, arg any) (reflect.Value, error) {
	if arg == nil {
		return reflect.Zero(t), nil
	}

	v := reflect.ValueOf(arg)
	if v.Type().AssignableTo(t) {
		return v, nil
	}

	if isNumeric(v.Kind()) && isNumeric(t.Kind()) && v.Type().ConvertibleTo(t) {
		return v.Convert(t), nil
	}

	return reflect.Value{}, fmt.Errorf("%w: %s is not assignable to %s", ErrArgumentMismatch, v.Type(), t)
}

func isNumeric(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Float64
}

// callArgs builds the argument list for fnType from offset on.
func callArgs(fnType reflect.Type, offset int, args []any) ([]reflect.Value, error) {
	count := fnType.NumIn() - offset
	if len(args) != count {
		return nil, fmt.Errorf("%w: %s takes %d arguments, got %d", ErrArgumentMismatch, fnType, count, len(args))
	}

	in := make([]reflect.Value, count)
	for i, arg := range args {
		v, err := argValue(fnType.In(offset+i), arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		in[i] = v
	}
	return in, nil
}

// invoke calls fn, turning panics into errors. Variadic functions receive their
// last argument as a slice.
func invoke(fn reflect.Value, in []reflect.Value) (out []reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()

	if fn.Type().IsVariadic() {
		return fn.CallSlice(in), nil
	}
	return fn.Call(in), nil
}

// splitResults returns the non-error results and the trailing error, if any.
func splitResults(fnType reflect.Type, out []reflect.Value) ([]any, error) {
	if n := len(out); n > 0 && fnType.Out(n-1) == errType {
		if errVal := out[n-1]; !errVal.IsNil() {
			return nil, errVal.Interface().(error)
		}
		out = out[:n-1]
	}

	results := make([]any, len(out))
	for i, v := range out {
		results[i] = v.Interface()
	}
	return results, nil
}

// Instantiator builds instances of catalog classes.
type Instantiator struct {
	catalog *Catalog
}

// NewInstantiator creates an instantiator over catalog.
func NewInstantiator(catalog *Catalog) *Instantiator {
	return &Instantiator{catalog: catalog}
}

// Instantiate builds the class of proto from args, which are ordered like the
// constructor parameters.
func (i *Instantiator) Instantiate(proto *prototype.ServicePrototype, args []any) (any, error) {
	if !proto.IsInstantiable {
		return nil, fmt.Errorf("%w: %s", ErrNotInstantiable, proto.ClassName)
	}

	class, ok := i.catalog.Lookup(proto.ClassName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClass, proto.ClassName)
	}

	if !class.HasConstructor() {
		if len(args) > 0 {
			return nil, fmt.Errorf("%w: %s has no constructor", ErrArgumentMismatch, class.Name)
		}
		if class.Type.Kind() == reflect.Pointer {
			return reflect.New(class.Type.Elem()).Interface(), nil
		}
		return reflect.New(class.Type).Elem().Interface(), nil
	}

	fnType := class.Constructor.Type()
	in, err := callArgs(fnType, 0, args)
	if err != nil {
		return nil, errors.Wrapf(err, "constructor of %s", class.Name)
	}

	out, err := invoke(class.Constructor, in)
	if err != nil {
		return nil, errors.Wrapf(err, "constructor of %s", class.Name)
	}

	results, err := splitResults(fnType, out)
	if err != nil {
		return nil, errors.Wrapf(err, "constructor of %s", class.Name)
	}
	return results[0], nil
}

// Injector sets injected properties on instances.
type Injector struct{}

// NewInjector creates an injector.
func NewInjector() *Injector {
	return &Injector{}
}

// InjectProperties assigns values to the exported fields named by the keys of
// values. Struct values are copied, so callers must use the returned instance.
func (j *Injector) InjectProperties(instance any, values map[string]any) (any, error) {
	if len(values) == 0 {
		return instance, nil
	}

	v := reflect.ValueOf(instance)
	var target reflect.Value

	switch {
	case v.Kind() == reflect.Pointer && !v.IsNil() && v.Elem().Kind() == reflect.Struct:
		target = v.Elem()
	case v.Kind() == reflect.Struct:
		target = reflect.New(v.Type()).Elem()
		target.Set(v)
	default:
		return nil, fmt.Errorf("%w: cannot inject properties into %T", ErrInvalidInjectionPoint, instance)
	}

	for name, value := range values {
		field := target.FieldByName(name)
		if !field.IsValid() || !field.CanSet() {
			return nil, fmt.Errorf("%w: %T has no settable field %s", ErrInvalidInjectionPoint, instance, name)
		}

		fv, err := argValue(field.Type(), value)
		if err != nil {
			return nil, errors.Wrapf(err, "field %s", name)
		}
		field.Set(fv)
	}

	if v.Kind() == reflect.Struct {
		return target.Interface(), nil
	}
	return instance, nil
}

// Invoker calls funcs and methods with resolved arguments.
type Invoker struct{}

// NewInvoker creates an invoker.
func NewInvoker() *Invoker {
	return &Invoker{}
}

// Call invokes fn with args and returns its non-error results.
func (iv *Invoker) Call(fn any, args []any) ([]any, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return nil, fmt.Errorf("%w: expected func, got %T", ErrArgumentMismatch, fn)
	}
	return iv.call(v, runtimeName(v), args)
}

// CallMethod invokes the method called name on instance.
func (iv *Invoker) CallMethod(instance any, name string, args []any) ([]any, error) {
	m := reflect.ValueOf(instance).MethodByName(name)
	if !m.IsValid() {
		return nil, fmt.Errorf("%w: %T has no method %s", ErrInvalidInjectionPoint, instance, name)
	}
	return iv.call(m, fmt.Sprintf("%T.%s", instance, name), args)
}

func (iv *Invoker) call(fn reflect.Value, name string, args []any) ([]any, error) {
	in, err := callArgs(fn.Type(), 0, args)
	if err != nil {
		return nil, errors.Wrapf(err, "call %s", name)
	}

	out, err := invoke(fn, in)
	if err != nil {
		return nil, errors.Wrapf(err, "call %s", name)
	}

	return splitResults(fn.Type(), out)
}
