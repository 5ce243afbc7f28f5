// Package coerce implements the type coercion system: converting textual
// command-line tokens, or values already produced by a previous conversion,
// into values of a declared static type.
//
// Declared types are described with *Type rather than reflect.Type because
// the declared-type vocabulary (Optional[T], Union[T1, T2, ...], List[T],
// Tuple[T, ...], Dict[K, V]) doesn't map onto a single Go concrete type —
// it's closer to a small tagged variant, which is what Type is.
package coerce

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Kind tags the shape of a declared target type.
type Kind int

const (
	KindString Kind = iota
	KindBool
	KindInt
	KindFloat
	KindPath
	KindList
	KindTuple
	KindDict
	KindOptional
	KindUnion
	KindAny
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindPath:
		return "path"
	case KindList:
		return "list"
	case KindTuple:
		return "tuple"
	case KindDict:
		return "dict"
	case KindOptional:
		return "optional"
	case KindUnion:
		return "union"
	case KindAny:
		return "any"
	default:
		return "unknown"
	}
}

// Type is a declarative description of a parameter's or variable's target
// type, mirroring the role Optional[T]/Union[...]/List[T]/Tuple[T, ...]/
// Dict[K, V] play as parameter annotations in command declarations.
type Type struct {
	Kind     Kind
	Elem     *Type   // List element type; Optional wrapped type; variadic Tuple element type
	Key      *Type   // Dict key type
	Items    []*Type // Tuple fixed-arity element types (ignored when Variadic)
	Variadic bool    // Tuple[T, ...]
	Options  []*Type // Union branch types, tried in declaration order
}

func String() *Type { return &Type{Kind: KindString} }
func Bool() *Type { return &Type{Kind: KindBool} }
func Int() *Type { return &Type{Kind: KindInt} }
func Float() *Type { return &Type{Kind: KindFloat} }
func Path() *Type { return &Type{Kind: KindPath} }
func Any() *Type { return &Type{Kind: KindAny} }
func List(elem *Type) *Type { return &Type{Kind: KindList, Elem: elem} }
func Dict(key, elem *Type) *Type { return &Type{Kind: KindDict, Key: key, Elem: elem} }
func Tuple(items ...*Type) *Type { return &Type{Kind: KindTuple, Items: items} }
func VariadicTuple(elem *Type) *Type { return &Type{Kind: KindTuple, Elem: elem, Variadic: true} }
func OptionalOf(elem *Type) *Type { return &Type{Kind: KindOptional, Elem: elem} }
func UnionOf(options ...*Type) *Type { return &Type{Kind: KindUnion, Options: options} }

// Name renders the type the way a diagnostic message should name it.
func (t *Type) Name() string {
	if t == nil {
		return "any"
	}
	switch t.Kind {
	case KindList:
		return "List[" + t.Elem.Name() + "]"
	case KindDict:
		return "Dict[" + t.Key.Name() + ", " + t.Elem.Name() + "]"
	case KindTuple:
		if t.Variadic {
			return "Tuple[" + t.Elem.Name() + ", ...]"
		}
		names := make([]string, len(t.Items))
		for i, it := range t.Items {
			names[i] = it.Name()
		}
		return "Tuple[" + strings.Join(names, ", ") + "]"
	case KindOptional:
		return "Optional[" + t.Elem.Name() + "]"
	case KindUnion:
		names := make([]string, len(t.Options))
		for i, o := range t.Options {
			names[i] = o.Name()
		}
		return "Union[" + strings.Join(names, ", ") + "]"
	default:
		return t.Kind.String()
	}
}

// ConversionError names the source value and the failing target type, per
// the error policy: a clear message, no silent coercion on mismatch.
type ConversionError struct {
	Value  any
	Target *Type
	Cause  error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("cannot convert %v to %s: %v", e.Value, e.Target.Name(), e.Cause)
}

func (e *ConversionError) Unwrap() error { return e.Cause }

// Convert converts raw into a value of the declared target type. raw may be
// a string token (the common case, from command-line input) or a value
// already produced by a previous Convert call — convert(v, T) == v for v
// already of type T.
func Convert(raw any, target *Type) (any, error) {
	if target == nil {
		return raw, nil
	}
	v, err := convert(raw, target)
	if err != nil {
		return nil, &ConversionError{Value: raw, Target: target, Cause: err}
	}
	return v, nil
}

func convert(raw any, target *Type) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch target.Kind {
	case KindOptional:
		return convertOptional(raw, target)
	case KindUnion:
		return convertUnion(raw, target)
	case KindString:
		return convertString(raw)
	case KindBool:
		return convertBool(raw)
	case KindInt:
		return convertInt(raw)
	case KindFloat:
		return convertFloat(raw)
	case KindPath:
		return convertPath(raw)
	case KindList:
		return convertList(raw, target)
	case KindTuple:
		return convertTuple(raw, target)
	case KindDict:
		return convertDict(raw, target)
	case KindAny:
		return raw, nil
	}
	return nil, fmt.Errorf("unsupported target kind %v", target.Kind)
}

func convertOptional(raw any, target *Type) (any, error) {
	if raw == nil {
		return nil, nil
	}
	if s, ok := raw.(string); ok {
		if s == "" || strings.EqualFold(s, "none") || strings.EqualFold(s, "null") {
			return nil, nil
		}
	}
	return convert(raw, target.Elem)
}

func convertUnion(raw any, target *Type) (any, error) {
	// Preserve an already-typed value's runtime shape rather than recoercing
	// it through the first matching branch (important for lists/dicts of
	// Union, where re-parsing could silently change element types).
	for _, opt := range target.Options {
		if valueMatchesKind(raw, opt.Kind) {
			return raw, nil
		}
	}
	var lastErr error
	for _, opt := range target.Options {
		v, err := convert(raw, opt)
		if err == nil {
			return v, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no branch of %s matched: %w", target.Name(), lastErr)
}

func valueMatchesKind(raw any, k Kind) bool {
	switch k {
	case KindString, KindPath:
		_, ok := raw.(string)
		return ok
	case KindBool:
		_, ok := raw.(bool)
		return ok
	case KindInt:
		switch raw.(type) {
		case int, int64:
			return true
		}
		return false
	case KindFloat:
		_, ok := raw.(float64)
		return ok
	case KindList, KindTuple:
		_, ok := raw.([]any)
		return ok
	case KindDict:
		_, ok := raw.(map[string]any)
		return ok
	}
	return false
}

func convertString(raw any) (string, error) {
	if s, ok := raw.(string); ok {
		return s, nil
	}
	return fmt.Sprintf("%v", raw), nil
}

func convertBool(raw any) (bool, error) {
	if b, ok := raw.(bool); ok {
		return b, nil
	}
	s, ok := raw.(string)
	if !ok {
		return false, fmt.Errorf("cannot convert %T to bool", raw)
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "t", "1":
		return true, nil
	case "false", "no", "n", "f", "0":
		return false, nil
	}
	return false, fmt.Errorf("%q is not a recognized boolean", s)
}

func convertInt(raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v == float64(int64(v)) {
			return int(v), nil
		}
		return 0, fmt.Errorf("%v is not an integral value", v)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("%w", err)
		}
		return i, nil
	}
	return 0, fmt.Errorf("cannot convert %T to int", raw)
}

func convertFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%w", err)
		}
		return f, nil
	}
	return 0, fmt.Errorf("cannot convert %T to float", raw)
}

func convertPath(raw any) (string, error) {
	s, err := convertString(raw)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(s, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			s = filepath.Join(home, strings.TrimPrefix(s, "~"))
		}
	}
	return s, nil
}

func convertList(raw any, target *Type) (any, error) {
	items, err := toSequence(raw)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(items))
	for i, it := range items {
		v, err := convert(it, target.Elem)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func convertTuple(raw any, target *Type) (any, error) {
	items, err := toSequence(raw)
	if err != nil {
		return nil, err
	}
	if target.Variadic {
		out := make([]any, len(items))
		for i, it := range items {
			v, err := convert(it, target.Elem)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	}
	if len(items) != len(target.Items) {
		return nil, fmt.Errorf("expected %d elements, got %d", len(target.Items), len(items))
	}
	out := make([]any, len(items))
	for i, it := range items {
		v, err := convert(it, target.Items[i])
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func convertDict(raw any, target *Type) (any, error) {
	m, err := toMapping(raw)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		cv, err := convert(v, target.Elem)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		out[k] = cv
	}
	return out, nil
}

func toSequence(raw any) ([]any, error) {
	switch v := raw.(type) {
	case []any:
		return v, nil
	case string:
		return parseSequenceString(v)
	default:
		return nil, fmt.Errorf("cannot interpret %T as a sequence", raw)
	}
}

func toMapping(raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case map[string]any:
		return v, nil
	case string:
		return parseMappingString(v)
	default:
		return nil, fmt.Errorf("cannot interpret %T as a mapping", raw)
	}
}

// parseSequenceString implements the three-parser fallback chain: JSON,
// then Python-literal semantics, then CSV (only when there's no explicit
// opening bracket, since CSV has no notion of one).
func parseSequenceString(s string) ([]any, error) {
	trimmed := strings.TrimSpace(s)
	if v, err := tryJSONArray(trimmed); err == nil {
		return v, nil
	}
	if v, err := parseLiteral(trimmed); err == nil {
		if arr, ok := v.([]any); ok {
			return arr, nil
		}
	}
	if !strings.HasPrefix(trimmed, "[") && !strings.HasPrefix(trimmed, "(") {
		return parseCSV(trimmed)
	}
	return nil, fmt.Errorf("cannot parse %q as a list", s)
}

func parseMappingString(s string) (map[string]any, error) {
	trimmed := strings.TrimSpace(s)
	if v, err := tryJSONObject(trimmed); err == nil {
		return v, nil
	}
	if v, err := parseLiteral(trimmed); err == nil {
		if m, ok := v.(map[string]any); ok {
			return m, nil
		}
	}
	return nil, fmt.Errorf("cannot parse %q as a mapping", s)
}
