package validation

import (
	"errors"

	"github.com/rendis/appspec/pkg/schema"
)

// ValidateParameter converts value to the shape declared by p and checks it
// against the declared constraints. An absent value is an error only when p
// is required; otherwise the result is nil.
func (v *Validator) ValidateParameter(value any, p *schema.ParameterSchema, prefix string) (any, error) {
	if value == nil {
		if p.Required {
			return nil, schema.InvalidArgument("In %s: Missing %s parameter '%s'", prefix, p.Kind, p.Name)
		}
		return nil, nil
	}

	switch p.Kind {
	case schema.KindPrimitive:
		return v.validatePrimitive(value, p, prefix, p.Encrypted)
	case schema.KindArray:
		converted, err := ConvertArray(p, value, prefix)
		if err != nil {
			return nil, err
		}
		if err := v.check(converted, WithIdentifierDefaults(p.Fragment()), value, prefix); err != nil {
			return nil, err
		}
		return converted, nil
	case schema.KindObject:
		converted, err := ConvertJSON(p, value, prefix)
		if err != nil {
			return nil, err
		}
		if err := v.check(converted, WithIdentifierDefaults(p.Validated().Fragment()), value, prefix); err != nil {
			return nil, err
		}
		return converted, nil
	default:
		return nil, schema.InvalidArgument("In %s: Unknown parameter type %s", prefix, p.Type)
	}
}

// validatePrimitive coerces value and checks it against the parameter's own
// constraints. When hidden, neither the value nor its rendering by the
// constraint checker appears in the error.
func (v *Validator) validatePrimitive(value any, p *schema.ParameterSchema, prefix string, hidden bool) (any, error) {
	converted, err := Coerce(value, p.Type)
	if err != nil {
		return nil, schema.InvalidArgument("%s has invalid input. Input %s could not be converted to type %s",
			prefix, echo(value, hidden), p.Type).WithCause(err)
	}

	err = v.constraints.Validate(converted, WithIdentifierDefaults(p.Fragment()))
	if err == nil {
		return converted, nil
	}

	var violation *ConstraintViolation
	if errors.As(err, &violation) {
		if hidden {
			return nil, schema.InvalidArgument("%s has invalid input. %s does not conform to validators: %s",
				prefix, p.Type, violation.Redacted())
		}
		return nil, schema.InvalidArgument("%s has invalid input. Input %s with type %s does not conform to validators: %s",
			prefix, echo(value, false), p.Type, violation.Error())
	}
	return nil, compileFailure(err, prefix)
}

// check validates a converted structured value; original is the value as
// supplied, echoed in the error.
func (v *Validator) check(converted any, fragment map[string]any, original any, prefix string) error {
	err := v.constraints.Validate(converted, fragment)
	if err == nil {
		return nil
	}
	var violation *ConstraintViolation
	if errors.As(err, &violation) {
		return schema.InvalidArgument("%s has invalid input. Input %s does not conform to validators: %s",
			prefix, echo(original, false), violation.Error())
	}
	return compileFailure(err, prefix)
}

func compileFailure(err error, prefix string) error {
	var compile *SchemaCompileError
	if errors.As(err, &compile) {
		return schema.InvalidApi("%s has invalid api: %s", prefix, compile.Error()).WithCause(err)
	}
	return schema.InvalidArgument("%s has invalid input: %s", prefix, err.Error()).WithCause(err)
}

// WithIdentifierDefaults returns a copy of fragment in which every "user" or
// "role" type is rewritten to integer with a minimum of 1 unless a minimum is
// already declared. The input is not modified.
func WithIdentifierDefaults(fragment map[string]any) map[string]any {
	out := schema.DeepCopyMap(fragment)
	if out == nil {
		return map[string]any{}
	}
	rewriteIdentifiers(out)
	return out
}

func rewriteIdentifiers(m map[string]any) {
	if t, ok := m["type"].(string); ok && schema.IsIdentifierType(t) {
		m["type"] = schema.TypeInteger
		if _, constrained := m["minimum"]; !constrained {
			m["minimum"] = 1
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		rewriteIdentifiers(items)
	}
	if props, ok := m["properties"].(map[string]any); ok {
		for _, prop := range props {
			if pm, ok := prop.(map[string]any); ok {
				rewriteIdentifiers(pm)
			}
		}
	}
}
