// Package params extracts per-command parameter metadata from Go struct
// tags: a table built once per command struct type, from which the command
// dispatcher derives positional order, aliases, defaults, and target types.
package params

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/dr-natetorious/fleetshell/internal/coerce"
)

// Definition is one command parameter's metadata: the Go equivalent of
// ParameterDefinition.
type Definition struct {
	Name          string
	Position      *int
	Mandatory     bool
	Default       string
	HasDefault    bool
	Aliases       []string
	Type          *coerce.Type
	fieldIndex    int
	allParamNames []string
}

// ParamName is the primary "-name" spelling used on the command line.
func (d *Definition) ParamName() string { return "-" + d.Name }

// AllParamNames returns every "-name" spelling (primary plus aliases) that
// binds this parameter.
func (d *Definition) AllParamNames() []string { return d.allParamNames }

// Describe builds the parameter table for a command struct type, reading
// the `param:"..."` tag on each exported field. A field with no `param` tag
// is not a parameter and is skipped.
//
// Tag syntax: `param:"name,position=0,mandatory,alias=v,alias=x,default=30,type=path"`
// - first comma-separated segment with no "=" is the name (required)
// - position=N sets explicit positional order
// - mandatory marks the parameter as required
// - alias=X may repeat, each adding an extra "-X" spelling
// - default=V sets the textual default, converted through the parameter's type
// - type=NAME overrides the type inferred from the Go field type; NAME is
//   one of string,bool,int,float,path,any, or "union:t1|t2|...", or "list:t"
func Describe(t reflect.Type) ([]*Definition, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("params.Describe: %s is not a struct", t)
	}

	var defs []*Definition
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" { // unexported
			continue
		}
		tag, ok := f.Tag.Lookup("param")
		if !ok {
			continue
		}
		def, err := parseTag(tag, f, i)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		defs = append(defs, def)
	}

	// Mandatory parameters without an explicit position are auto-assigned
	// positional indices in declaration order, starting after the highest
	// explicit position.
	positionalIndex := 0
	for _, def := range defs {
		if def.Position != nil && *def.Position >= positionalIndex {
			positionalIndex = *def.Position + 1
		}
	}
	for _, def := range defs {
		if def.Position == nil && def.Mandatory {
			pos := positionalIndex
			def.Position = &pos
			positionalIndex++
		}
	}

	sort.SliceStable(defs, func(i, j int) bool {
		pi, pj := 999, 999
		if defs[i].Position != nil {
			pi = *defs[i].Position
		}
		if defs[j].Position != nil {
			pj = *defs[j].Position
		}
		return pi < pj
	})
	return defs, nil
}

func parseTag(tag string, f reflect.StructField, fieldIndex int) (*Definition, error) {
	parts := strings.Split(tag, ",")
	if len(parts) == 0 || parts[0] == "" {
		return nil, fmt.Errorf("param tag must start with a name")
	}
	d := &Definition{Name: parts[0], fieldIndex: fieldIndex}
	var typeOverride string
	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, hasValue := strings.Cut(part, "=")
		switch key {
		case "mandatory":
			d.Mandatory = true
		case "position":
			pos, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("invalid position %q: %w", value, err)
			}
			d.Position = &pos
		case "alias":
			if hasValue {
				d.Aliases = append(d.Aliases, value)
			}
		case "default":
			d.Default = value
			d.HasDefault = true
		case "type":
			typeOverride = value
		default:
			return nil, fmt.Errorf("unknown param tag key %q", key)
		}
	}

	typ, err := resolveType(f.Type, typeOverride)
	if err != nil {
		return nil, err
	}
	d.Type = typ

	d.allParamNames = append([]string{d.ParamName()}, aliasNames(d.Aliases)...)
	return d, nil
}

func aliasNames(aliases []string) []string {
	out := make([]string, len(aliases))
	for i, a := range aliases {
		out[i] = "-" + a
	}
	return out
}

func resolveType(ft reflect.Type, override string) (*coerce.Type, error) {
	if override != "" {
		return parseTypeName(override)
	}
	return inferType(ft)
}

func parseTypeName(name string) (*coerce.Type, error) {
	if strings.HasPrefix(name, "union:") {
		branches := strings.Split(strings.TrimPrefix(name, "union:"), "|")
		opts := make([]*coerce.Type, len(branches))
		for i, b := range branches {
			t, err := parseTypeName(b)
			if err != nil {
				return nil, err
			}
			opts[i] = t
		}
		return coerce.UnionOf(opts...), nil
	}
	if strings.HasPrefix(name, "list:") {
		elem, err := parseTypeName(strings.TrimPrefix(name, "list:"))
		if err != nil {
			return nil, err
		}
		return coerce.List(elem), nil
	}
	if strings.HasPrefix(name, "optional:") {
		elem, err := parseTypeName(strings.TrimPrefix(name, "optional:"))
		if err != nil {
			return nil, err
		}
		return coerce.OptionalOf(elem), nil
	}
	switch name {
	case "string":
		return coerce.String(), nil
	case "bool":
		return coerce.Bool(), nil
	case "int":
		return coerce.Int(), nil
	case "float":
		return coerce.Float(), nil
	case "path":
		return coerce.Path(), nil
	case "any":
		return coerce.Any(), nil
	default:
		return nil, fmt.Errorf("unknown type name %q", name)
	}
}

func inferType(ft reflect.Type) (*coerce.Type, error) {
	switch ft.Kind() {
	case reflect.String:
		return coerce.String(), nil
	case reflect.Bool:
		return coerce.Bool(), nil
	case reflect.Int, reflect.Int64:
		return coerce.Int(), nil
	case reflect.Float64, reflect.Float32:
		return coerce.Float(), nil
	case reflect.Slice:
		elem, err := inferType(ft.Elem())
		if err != nil {
			return nil, err
		}
		return coerce.List(elem), nil
	case reflect.Map:
		elem, err := inferType(ft.Elem())
		if err != nil {
			return nil, err
		}
		return coerce.Dict(coerce.String(), elem), nil
	case reflect.Ptr:
		elem, err := inferType(ft.Elem())
		if err != nil {
			return nil, err
		}
		return coerce.OptionalOf(elem), nil
	case reflect.Interface:
		return coerce.Any(), nil
	default:
		return nil, fmt.Errorf("unsupported field kind %v for parameter inference", ft.Kind())
	}
}

// SetField assigns value (already coerced through d.Type) to the struct
// field this definition describes.
func (d *Definition) SetField(structVal reflect.Value, value any) error {
	field := structVal.Field(d.fieldIndex)
	if value == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}
	rv := reflect.ValueOf(value)
	if field.Kind() == reflect.Ptr {
		ptr := reflect.New(field.Type().Elem())
		if err := assignConvertible(ptr.Elem(), rv); err != nil {
			return err
		}
		field.Set(ptr)
		return nil
	}
	return assignConvertible(field, rv)
}

func assignConvertible(dst reflect.Value, src reflect.Value) error {
	if src.Type().ConvertibleTo(dst.Type()) {
		dst.Set(src.Convert(dst.Type()))
		return nil
	}
	if dst.Kind() == reflect.Slice && src.Kind() == reflect.Slice {
		out := reflect.MakeSlice(dst.Type(), src.Len(), src.Len())
		for i := 0; i < src.Len(); i++ {
			if err := assignConvertible(out.Index(i), reflect.ValueOf(src.Index(i).Interface())); err != nil {
				return err
			}
		}
		dst.Set(out)
		return nil
	}
	if dst.Kind() == reflect.Map && src.Kind() == reflect.Map {
		out := reflect.MakeMapWithSize(dst.Type(), src.Len())
		iter := src.MapRange()
		for iter.Next() {
			v := reflect.New(dst.Type().Elem()).Elem()
			if err := assignConvertible(v, reflect.ValueOf(iter.Value().Interface())); err != nil {
				return err
			}
			out.SetMapIndex(iter.Key(), v)
		}
		dst.Set(out)
		return nil
	}
	return fmt.Errorf("cannot assign %s to %s", src.Type(), dst.Type())
}
