package schema

import (
	"fmt"
	"sort"
)

// ParamKind is the shape of a declared parameter, decided once at parse time.
type ParamKind int

const (
	KindPrimitive ParamKind = iota
	KindArray
	KindObject
)

func (k ParamKind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("ParamKind(%d)", int(k))
	}
}

// Primitive type names accepted in a parameter "type".
const (
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeString  = "string"
	TypeUser    = "user"
	TypeRole    = "role"
	TypeArray   = "array"
	TypeObject  = "object"
)

var primitiveTypes = map[string]struct{}{
	TypeInteger: {},
	TypeNumber:  {},
	TypeBoolean: {},
	TypeString:  {},
	TypeUser:    {},
	TypeRole:    {},
}

// IsPrimitiveType reports whether t is one of the coercible primitive types.
func IsPrimitiveType(t string) bool {
	_, ok := primitiveTypes[t]
	return ok
}

// IsIdentifierType reports whether t is the "user" or "role" alias.
func IsIdentifierType(t string) bool {
	return t == TypeUser || t == TypeRole
}

// parameterOnlyKeys are keys of a parameter declaration that are not JSON
// Schema keywords and must not reach the constraint validator.
var parameterOnlyKeys = []string{"name", "encrypted", "placeholder"}

// ParameterSchema is a parsed parameter or device field declaration. It is
// immutable after parsing; accessors that expose maps return copies.
type ParameterSchema struct {
	Name       string
	Kind       ParamKind
	Type       string
	Required   bool
	Default    any
	HasDefault bool
	Encrypted  bool

	// Items is the element schema of an array; nil means elements pass through.
	Items *ParameterSchema
	// Properties of a typed object; nil means the mapping passes through.
	Properties map[string]*ParameterSchema
	// Schema is the nested schema of a parameter declared through "schema".
	Schema *ParameterSchema

	fragment map[string]any
}

// ParseParameter parses a dereferenced parameter declaration.
func ParseParameter(raw map[string]any) (*ParameterSchema, error) {
	return parseParameter(raw, "")
}

func parseParameter(raw map[string]any, path string) (*ParameterSchema, error) {
	p := &ParameterSchema{
		fragment: constraintFragment(raw),
	}
	p.Name, _ = raw["name"].(string)
	p.Required, _ = raw["required"].(bool)
	p.Encrypted, _ = raw["encrypted"].(bool)
	if def, ok := raw["default"]; ok {
		p.Default = DeepCopy(def)
		p.HasDefault = true
	}
	if path == "" {
		path = p.Name
	}

	typ, hasType := raw["type"]
	switch {
	case hasType:
		name, ok := typ.(string)
		if !ok {
			return nil, fmt.Errorf("%s: type must be a string, got %T", path, typ)
		}
		p.Type = name
		switch {
		case IsPrimitiveType(name):
			p.Kind = KindPrimitive
		case name == TypeArray:
			p.Kind = KindArray
			if items, ok := raw["items"].(map[string]any); ok {
				child, err := parseParameter(items, path+".items")
				if err != nil {
					return nil, err
				}
				p.Items = child
			}
		case name == TypeObject:
			p.Kind = KindObject
			if err := p.parseProperties(raw, path); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%s: unknown type %q", path, name)
		}
	case raw["schema"] != nil:
		nested, ok := raw["schema"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: schema must be an object", path)
		}
		child, err := parseParameter(nested, path+".schema")
		if err != nil {
			return nil, err
		}
		p.Kind = KindObject
		p.Schema = child
	case raw["properties"] != nil:
		p.Kind = KindObject
		if err := p.parseProperties(raw, path); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%s: declares neither a type nor a schema", path)
	}
	return p, nil
}

func (p *ParameterSchema) parseProperties(raw map[string]any, path string) error {
	props, ok := raw["properties"].(map[string]any)
	if !ok {
		return nil
	}
	p.Properties = make(map[string]*ParameterSchema, len(props))
	for name, v := range props {
		decl, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("%s.%s: property must be an object", path, name)
		}
		child, err := parseParameter(decl, path+"."+name)
		if err != nil {
			return err
		}
		p.Properties[name] = child
	}
	return nil
}

// Fragment returns a private copy of the JSON Schema constraints of this
// declaration, with parameter-only keys removed.
func (p *ParameterSchema) Fragment() map[string]any {
	return DeepCopyMap(p.fragment)
}

// Validated returns the schema whose fragment constrains the converted value:
// the nested schema for "schema"-declared objects, the parameter otherwise.
func (p *ParameterSchema) Validated() *ParameterSchema {
	if p.Schema != nil {
		return p.Schema
	}
	return p
}

// PropertyNames returns the declared property names, sorted.
func (p *ParameterSchema) PropertyNames() []string {
	names := make([]string, 0, len(p.Properties))
	for n := range p.Properties {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// constraintFragment copies raw, dropping parameter-only keys and boolean
// "required" flags at every level.
func constraintFragment(raw map[string]any) map[string]any {
	out := DeepCopyMap(raw)
	stripParameterKeys(out)
	return out
}

func stripParameterKeys(m map[string]any) {
	for _, k := range parameterOnlyKeys {
		delete(m, k)
	}
	if _, ok := m["required"].(bool); ok {
		delete(m, "required")
	}
	if items, ok := m["items"].(map[string]any); ok {
		stripParameterKeys(items)
	}
	if nested, ok := m["schema"].(map[string]any); ok {
		stripParameterKeys(nested)
	}
	if props, ok := m["properties"].(map[string]any); ok {
		for _, v := range props {
			if pm, ok := v.(map[string]any); ok {
				stripParameterKeys(pm)
			}
		}
	}
}

// DeepCopy returns a deep copy of a JSON-like value.
func DeepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return DeepCopyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = DeepCopy(item)
		}
		return out
	default:
		return v
	}
}

// DeepCopyMap returns a deep copy of m; nil stays nil.
func DeepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = DeepCopy(v)
	}
	return out
}
