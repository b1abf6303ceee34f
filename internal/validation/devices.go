package validation

import (
	"fmt"
	"sort"

	"github.com/rendis/appspec/pkg/schema"
)

// ValidateDeviceField checks one device field value. Optional fields given
// no value or an empty string are accepted as they are. Encrypted fields
// never echo their value in errors.
func (v *Validator) ValidateDeviceField(field *schema.ParameterSchema, value any, prefix string) (any, error) {
	if !field.Required && isBlank(value) {
		return value, nil
	}
	return v.validatePrimitive(value, field, prefix, field.Encrypted)
}

// ValidateDeviceFields validates the configuration of one device. Missing
// fields are filled from their defaults; when validateRequired is set, every
// required field must then be present. The returned mapping holds the
// converted values and values itself is not modified.
func (v *Validator) ValidateDeviceFields(device *schema.DeviceTypeApi, values map[string]any, app string, validateRequired bool) (map[string]any, error) {
	prefix := fmt.Sprintf("Device type %s for app %s", device.Name, app)

	out := schema.DeepCopyMap(values)
	if out == nil {
		out = make(map[string]any, len(device.Fields))
	}
	for _, f := range device.Fields {
		if _, ok := out[f.Name]; !ok && f.HasDefault {
			out[f.Name] = schema.DeepCopy(f.Default)
		}
	}

	if validateRequired {
		var required, missing []string
		for _, f := range device.Fields {
			if !f.Required {
				continue
			}
			required = append(required, f.Name)
			if _, ok := out[f.Name]; !ok {
				missing = append(missing, f.Name)
			}
		}
		if len(missing) > 0 {
			return nil, schema.InvalidArgument("%s requires %v field but only got %v", prefix, required, sortedNames(out)).
				WithDetails(map[string]any{"missing": missing})
		}
	}

	for _, name := range sortedNames(out) {
		field, ok := device.Field(name)
		if !ok {
			return nil, schema.InvalidArgument("%s was passed field %s which is not defined in its API", prefix, name)
		}
		converted, err := v.ValidateDeviceField(field, out[name], prefix)
		if err != nil {
			return nil, err
		}
		out[name] = converted
	}
	return out, nil
}

func isBlank(value any) bool {
	if value == nil {
		return true
	}
	s, ok := value.(string)
	return ok && s == ""
}

func sortedNames(m map[string]any) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
