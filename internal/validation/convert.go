package validation

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rendis/appspec/pkg/schema"
)

// maxEchoedInput bounds how much of an offending array is quoted in errors.
const maxEchoedInput = 30

// ConvertJSON converts value according to the shape of p, recursing through
// arrays and objects and coercing primitives.
func ConvertJSON(p *schema.ParameterSchema, value any, prefix string) (any, error) {
	switch p.Kind {
	case schema.KindPrimitive:
		converted, err := Coerce(value, p.Type)
		if err != nil {
			return nil, schema.InvalidArgument("%s has invalid input. Input %s could not be converted to type %s",
				prefix, echo(value, p.Encrypted), p.Type).WithCause(err)
		}
		return converted, nil
	case schema.KindArray:
		return ConvertArray(p, value, prefix)
	case schema.KindObject:
		if p.Schema != nil {
			return ConvertJSON(p.Schema, value, prefix)
		}
		return ConvertObject(p, value, prefix)
	default:
		return nil, schema.InvalidApi("%s has invalid api", prefix)
	}
}

// ConvertArray converts every element of value to the declared item type.
// Without declared items the input is returned unchanged.
func ConvertArray(p *schema.ParameterSchema, value any, prefix string) (any, error) {
	if p.Items == nil {
		return value, nil
	}
	list, err := asArray(value)
	if err != nil {
		return nil, schema.InvalidArgument("%s has invalid input. A JSON array was expected. Instead got %s of type %s.",
			prefix, echo(value, p.Encrypted), jsonTypeName(value)).WithCause(err)
	}

	out := make([]any, len(list))
	if p.Items.Kind == schema.KindPrimitive {
		for i, item := range list {
			converted, err := Coerce(item, p.Items.Type)
			if err != nil {
				return nil, schema.InvalidArgument("%s has invalid input. Input %s could not be converted to array with type %q",
					prefix, truncated(value), p.Items.Type).WithCause(err)
			}
			out[i] = converted
		}
		return out, nil
	}
	for i, item := range list {
		converted, err := ConvertJSON(p.Items, item, prefix)
		if err != nil {
			return nil, err
		}
		out[i] = converted
	}
	return out, nil
}

// ConvertObject converts a mapping (or its JSON text) against the declared
// properties. Keys that are not declared are rejected.
func ConvertObject(p *schema.ParameterSchema, value any, prefix string) (map[string]any, error) {
	obj, ok := asObject(value)
	if !ok {
		return nil, schema.InvalidArgument("%s A JSON object was expected. Instead got %s of type %s.",
			prefix, echo(value, p.Encrypted), jsonTypeName(value))
	}
	if p.Properties == nil {
		return obj, nil
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(obj))
	for _, k := range keys {
		prop, declared := p.Properties[k]
		if !declared {
			return nil, schema.InvalidArgument("%s Input has unknown parameter %s", prefix, k)
		}
		converted, err := ConvertJSON(prop, obj[k], prefix)
		if err != nil {
			return nil, err
		}
		out[k] = converted
	}
	return out, nil
}

func asObject(value any) (map[string]any, bool) {
	if s, ok := value.(string); ok {
		var parsed any
		if err := json.Unmarshal([]byte(s), &parsed); err != nil {
			return nil, false
		}
		value = parsed
	}
	obj, ok := value.(map[string]any)
	return obj, ok
}

func asArray(value any) ([]any, error) {
	switch v := value.(type) {
	case []any:
		return v, nil
	case string:
		var parsed []any
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			return nil, err
		}
		return parsed, nil
	default:
		return nil, &ConversionError{Value: value, Type: schema.TypeArray}
	}
}

// echo renders a value for an error message, or a placeholder when hidden.
func echo(value any, hidden bool) string {
	if hidden {
		return "<hidden>"
	}
	if s, ok := value.(string); ok {
		return `"` + s + `"`
	}
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(b)
}

// truncated renders value as JSON text cut to maxEchoedInput characters.
func truncated(value any) string {
	text := echo(value, false)
	runes := []rune(text)
	if len(runes) < maxEchoedInput {
		return text
	}
	return string(runes[:maxEchoedInput]) + "...]"
}

func jsonTypeName(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case int, int32, int64, uint, uint32, uint64, float32, float64, json.Number:
		return "number"
	default:
		return fmt.Sprintf("%T", value)
	}
}
