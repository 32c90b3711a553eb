// Package reflection turns registered Go types and constructors into service
// prototypes and builds, populates and invokes them.
package reflection

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"
)

var errType = reflect.TypeOf((*error)(nil)).Elem()

var primitiveKinds = map[reflect.Kind]struct{}{
	reflect.Bool:       {},
	reflect.Int:        {},
	reflect.Int8:       {},
	reflect.Int16:      {},
	reflect.Int32:      {},
	reflect.Int64:      {},
	reflect.Uint:       {},
	reflect.Uint8:      {},
	reflect.Uint16:     {},
	reflect.Uint32:     {},
	reflect.Uint64:     {},
	reflect.Uintptr:    {},
	reflect.Float32:    {},
	reflect.Float64:    {},
	reflect.Complex64:  {},
	reflect.Complex128: {},
	reflect.String:     {},
}

// ClassName returns the identifier a type is registered and requested under:
// "*" + element name for pointers, "pkgpath.Name" for named types and the
// reflect notation for everything else.
func ClassName(t reflect.Type) string {
	if t == nil {
		return ""
	}

	if t.Kind() == reflect.Pointer {
		return "*" + ClassName(t.Elem())
	}

	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}

	return t.String()
}

// IsPrimitive reports whether t is a builtin scalar. Primitive parameters are
// never resolved as services.
func IsPrimitive(t reflect.Type) bool {
	if t == nil {
		return false
	}
	_, ok := primitiveKinds[t.Kind()]
	return ok && t.PkgPath() == ""
}

// IsPrimitiveName reports whether name is the class name of a builtin scalar.
func IsPrimitiveName(name string) bool {
	switch name {
	case "bool", "int", "int8", "int16", "int32", "int64",
		"uint", "uint8", "uint16", "uint32", "uint64", "uintptr",
		"float32", "float64", "complex64", "complex128",
		"string", "byte", "rune":
		return true
	}
	return false
}

// isClassCandidate reports whether t can be auto-registered as a class.
func isClassCandidate(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct && t.Name() != ""
}

// defaultParamName derives a parameter name from its type: *pkg.Logger becomes
// "logger". Builtin and unnamed types fall back to "argN".
func defaultParamName(t reflect.Type, index int) string {
	for t.Kind() == reflect.Pointer || t.Kind() == reflect.Slice {
		t = t.Elem()
	}

	name := t.Name()
	if name == "" || t.PkgPath() == "" {
		return fmt.Sprintf("arg%d", index)
	}

	r, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToLower(r)) + name[size:]
}

// paramNames names the parameters of fnType starting at offset. Explicit names
// win; generated names are made unique.
func paramNames(fnType reflect.Type, offset int, explicit []string) ([]string, error) {
	count := fnType.NumIn() - offset
	if len(explicit) > 0 {
		if len(explicit) != count {
			return nil, fmt.Errorf("%w: %d names given for %d parameters", ErrArgumentMismatch, len(explicit), count)
		}
		return explicit, nil
	}

	names := make([]string, count)
	used := make(map[string]int, count)
	for i := 0; i < count; i++ {
		name := defaultParamName(fnType.In(offset+i), i)
		if n, dup := used[name]; dup {
			used[name] = n + 1
			name = fmt.Sprintf("%s%d", name, n+1)
		} else {
			used[name] = 1
		}
		names[i] = name
	}
	return names, nil
}

// parseInjectTag parses `inject:"[id][,optional]"`.
func parseInjectTag(tag string) (id string, optional bool, ignore bool) {
	if tag == "-" {
		return "", false, true
	}

	parts := strings.Split(tag, ",")
	id = strings.TrimSpace(parts[0])
	for _, opt := range parts[1:] {
		if strings.TrimSpace(opt) == "optional" {
			optional = true
		}
	}
	return id, optional, false
}
