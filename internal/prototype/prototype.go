// Package prototype holds the serializable blueprints that describe how a class
// is constructed and populated, and the bounded cache that stores them.
package prototype

import (
	"fmt"
)

// Map keys of the flat representation.
const (
	keyClass         = "class"
	keyConstructor   = "constructor"
	keyProperties    = "properties"
	keyMethods       = "methods"
	keyPostConstruct = "postConstruct"
	keyInstantiable  = "instantiable"
	keyName          = "name"
	keyParameters    = "parameters"
	keyType          = "type"
	keyHasDefault    = "hasDefault"
	keyDefault       = "default"
	keyVariadic      = "variadic"
	keyAllowsNull    = "allowsNull"
)

// ServicePrototype is the immutable blueprint of one class.
type ServicePrototype struct {
	ClassName          string
	Constructor        *MethodPrototype
	InjectedProperties []PropertyPrototype
	InjectedMethods    []MethodPrototype
	PostConstruct      *MethodPrototype
	IsInstantiable     bool
}

// MethodPrototype describes a constructor, a setter or a post-construct hook.
type MethodPrototype struct {
	Name       string
	Parameters []ParameterPrototype
}

// ParameterPrototype describes one parameter of a MethodPrototype.
type ParameterPrototype struct {
	Name       string
	Type       string
	HasDefault bool
	Default    any
	IsVariadic bool
	AllowsNull bool
}

// Required reports whether the resolver must supply a value or fail.
func (p ParameterPrototype) Required() bool {
	return !p.HasDefault && !p.AllowsNull
}

// PropertyPrototype describes an injected field.
type PropertyPrototype struct {
	Name       string
	Type       string
	HasDefault bool
	Default    any
	AllowsNull bool
}

// Required reports whether the injector must supply a value or fail.
func (p PropertyPrototype) Required() bool {
	return !p.HasDefault && !p.AllowsNull
}

// Dependencies returns every service type the prototype needs, constructor first.
func (p *ServicePrototype) Dependencies() []string {
	var deps []string
	if p.Constructor != nil {
		deps = append(deps, p.Constructor.types()...)
	}
	for _, prop := range p.InjectedProperties {
		if prop.Type != "" {
			deps = append(deps, prop.Type)
		}
	}
	for _, m := range p.InjectedMethods {
		deps = append(deps, m.types()...)
	}
	return deps
}

func (m *MethodPrototype) types() []string {
	var types []string
	for _, param := range m.Parameters {
		if param.Type != "" {
			types = append(types, param.Type)
		}
	}
	return types
}

// ToMap flattens the prototype into plain maps and slices.
func (p *ServicePrototype) ToMap() map[string]any {
	result := map[string]any{
		keyClass:        p.ClassName,
		keyInstantiable: p.IsInstantiable,
	}

	if p.Constructor != nil {
		result[keyConstructor] = p.Constructor.ToMap()
	}

	if p.PostConstruct != nil {
		result[keyPostConstruct] = p.PostConstruct.ToMap()
	}

	if p.InjectedProperties != nil {
		properties := make([]any, 0, len(p.InjectedProperties))
		for _, prop := range p.InjectedProperties {
			properties = append(properties, prop.ToMap())
		}
		result[keyProperties] = properties
	}

	if p.InjectedMethods != nil {
		methods := make([]any, 0, len(p.InjectedMethods))
		for i := range p.InjectedMethods {
			methods = append(methods, p.InjectedMethods[i].ToMap())
		}
		result[keyMethods] = methods
	}

	return result
}

// ToMap flattens the method prototype.
func (m *MethodPrototype) ToMap() map[string]any {
	result := map[string]any{keyName: m.Name}
	if m.Parameters != nil {
		params := make([]any, 0, len(m.Parameters))
		for _, param := range m.Parameters {
			params = append(params, param.ToMap())
		}
		result[keyParameters] = params
	}
	return result
}

// ToMap flattens the parameter prototype. The default is written whenever it
// is set or declared.
func (p ParameterPrototype) ToMap() map[string]any {
	result := map[string]any{
		keyName:       p.Name,
		keyType:       p.Type,
		keyHasDefault: p.HasDefault,
		keyVariadic:   p.IsVariadic,
		keyAllowsNull: p.AllowsNull,
	}
	if p.HasDefault || p.Default != nil {
		result[keyDefault] = p.Default
	}
	return result
}

// ToMap flattens the property prototype.
func (p PropertyPrototype) ToMap() map[string]any {
	result := map[string]any{
		keyName:       p.Name,
		keyType:       p.Type,
		keyHasDefault: p.HasDefault,
		keyAllowsNull: p.AllowsNull,
	}
	if p.HasDefault || p.Default != nil {
		result[keyDefault] = p.Default
	}
	return result
}

// FromMap rebuilds a prototype written by ToMap. A missing list decodes as nil
// and a present one, even empty, as a slice.
func FromMap(m map[string]any) (*ServicePrototype, error) {
	className, err := stringField(m, keyClass, true)
	if err != nil {
		return nil, err
	}

	instantiable, err := boolField(m, keyInstantiable)
	if err != nil {
		return nil, err
	}

	p := &ServicePrototype{
		ClassName:      className,
		IsInstantiable: instantiable,
	}

	if p.Constructor, err = optionalMethod(m, keyConstructor); err != nil {
		return nil, err
	}

	if p.PostConstruct, err = optionalMethod(m, keyPostConstruct); err != nil {
		return nil, err
	}

	properties, err := listField(m, keyProperties)
	if err != nil {
		return nil, err
	}
	if properties != nil {
		p.InjectedProperties = make([]PropertyPrototype, 0, len(properties))
	}
	for i, raw := range properties {
		prop, err := propertyFromMap(raw)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", keyProperties, i, err)
		}
		p.InjectedProperties = append(p.InjectedProperties, prop)
	}

	methods, err := listField(m, keyMethods)
	if err != nil {
		return nil, err
	}
	if methods != nil {
		p.InjectedMethods = make([]MethodPrototype, 0, len(methods))
	}
	for i, raw := range methods {
		method, err := methodFromMap(raw)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", keyMethods, i, err)
		}
		p.InjectedMethods = append(p.InjectedMethods, *method)
	}

	return p, nil
}

func optionalMethod(m map[string]any, key string) (*MethodPrototype, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return nil, nil
	}

	method, err := methodFromMap(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return method, nil
}

func methodFromMap(raw any) (*MethodPrototype, error) {
	m, ok := asMap(raw)
	if !ok {
		return nil, fmt.Errorf("expected map, got %T", raw)
	}

	name, err := stringField(m, keyName, true)
	if err != nil {
		return nil, err
	}

	method := &MethodPrototype{Name: name}

	params, err := listField(m, keyParameters)
	if err != nil {
		return nil, err
	}

	if params != nil {
		method.Parameters = make([]ParameterPrototype, 0, len(params))
	}
	for i, rawParam := range params {
		pm, ok := asMap(rawParam)
		if !ok {
			return nil, fmt.Errorf("%s[%d]: expected map, got %T", keyParameters, i, rawParam)
		}

		param := ParameterPrototype{}
		if param.Name, err = stringField(pm, keyName, true); err != nil {
			return nil, err
		}
		if param.Type, err = stringField(pm, keyType, false); err != nil {
			return nil, err
		}
		if param.HasDefault, err = boolField(pm, keyHasDefault); err != nil {
			return nil, err
		}
		if param.IsVariadic, err = boolField(pm, keyVariadic); err != nil {
			return nil, err
		}
		if param.AllowsNull, err = boolField(pm, keyAllowsNull); err != nil {
			return nil, err
		}
		param.Default = pm[keyDefault]

		method.Parameters = append(method.Parameters, param)
	}

	return method, nil
}

func propertyFromMap(raw any) (PropertyPrototype, error) {
	var prop PropertyPrototype

	m, ok := asMap(raw)
	if !ok {
		return prop, fmt.Errorf("expected map, got %T", raw)
	}

	var err error
	if prop.Name, err = stringField(m, keyName, true); err != nil {
		return prop, err
	}
	if prop.Type, err = stringField(m, keyType, false); err != nil {
		return prop, err
	}
	if prop.HasDefault, err = boolField(m, keyHasDefault); err != nil {
		return prop, err
	}
	if prop.AllowsNull, err = boolField(m, keyAllowsNull); err != nil {
		return prop, err
	}
	prop.Default = m[keyDefault]

	return prop, nil
}

func asMap(raw any) (map[string]any, bool) {
	switch v := raw.(type) {
	case map[string]any:
		return v, true
	case map[any]any:
		converted := make(map[string]any, len(v))
		for k, val := range v {
			key, ok := k.(string)
			if !ok {
				return nil, false
			}
			converted[key] = val
		}
		return converted, true
	default:
		return nil, false
	}
}

func stringField(m map[string]any, key string, required bool) (string, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		if required {
			return "", fmt.Errorf("missing %q", key)
		}
		return "", nil
	}

	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%q: expected string, got %T", key, raw)
	}
	return s, nil
}

func boolField(m map[string]any, key string) (bool, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return false, nil
	}

	b, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("%q: expected bool, got %T", key, raw)
	}
	return b, nil
}

func listField(m map[string]any, key string) ([]any, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return nil, nil
	}

	switch v := raw.(type) {
	case []any:
		return v, nil
	case []map[string]any:
		result := make([]any, len(v))
		for i := range v {
			result[i] = v[i]
		}
		return result, nil
	default:
		return nil, fmt.Errorf("%q: expected list, got %T", key, raw)
	}
}
