package schema

import (
	"fmt"
	"sort"
)

// ReservedReturnCodes may not be declared by any action.
var ReservedReturnCodes = []string{"UnhandledException", "InvalidInput", "EventTimedOut"}

// IsReservedReturnCode reports whether code is reserved by the platform.
func IsReservedReturnCode(code string) bool {
	for _, r := range ReservedReturnCodes {
		if r == code {
			return true
		}
	}
	return false
}

// ActionSpec is a declared action, condition, or transform.
type ActionSpec struct {
	Name          string
	Run           string
	Description   string
	Parameters    []*ParameterSchema
	Returns       []string
	DefaultReturn string
	Event         string
	DataIn        string

	// RawParameters keeps the declarations in order, including duplicates.
	RawParameters []map[string]any
}

// ParameterNames returns the declared parameter names in declaration order.
func (a *ActionSpec) ParameterNames() []string {
	names := make([]string, 0, len(a.RawParameters))
	for _, p := range a.RawParameters {
		name, _ := p["name"].(string)
		names = append(names, name)
	}
	return names
}

// HasReturn reports whether code is one of the declared return codes.
func (a *ActionSpec) HasReturn(code string) bool {
	for _, r := range a.Returns {
		if r == code {
			return true
		}
	}
	return false
}

// DeviceTypeApi is the declared configuration schema of a device type.
type DeviceTypeApi struct {
	Name        string
	Description string
	Fields      []*ParameterSchema
}

// Field returns the field declaration with the given name.
func (d *DeviceTypeApi) Field(name string) (*ParameterSchema, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// AppSpec is the parsed, dereferenced API of one app.
type AppSpec struct {
	Info        map[string]any
	Actions     map[string]*ActionSpec
	Conditions  map[string]*ActionSpec
	Transforms  map[string]*ActionSpec
	Devices     map[string]*DeviceTypeApi
	Definitions map[string]any
}

// ParseActions parses an actions/conditions/transforms section. Parameter
// declarations that fail to parse are reported as INVALID_API.
func ParseActions(section map[string]any, kind string) (map[string]*ActionSpec, error) {
	out := make(map[string]*ActionSpec, len(section))
	for _, name := range sortedKeys(section) {
		decl, ok := section[name].(map[string]any)
		if !ok {
			return nil, InvalidApi("%s %s must be an object", kind, name)
		}
		action, err := ParseAction(name, decl)
		if err != nil {
			return nil, InvalidApi("%s %s has invalid api: %s", kind, name, err.Error()).WithCause(err)
		}
		out[name] = action
	}
	return out, nil
}

// ParseAction parses one dereferenced action declaration.
func ParseAction(name string, decl map[string]any) (*ActionSpec, error) {
	a := &ActionSpec{Name: name}
	a.Run, _ = decl["run"].(string)
	a.Description, _ = decl["description"].(string)
	a.DefaultReturn, _ = decl["default_return"].(string)
	a.Event, _ = decl["event"].(string)
	a.DataIn, _ = decl["data_in"].(string)

	switch returns := decl["returns"].(type) {
	case map[string]any:
		a.Returns = sortedKeys(returns)
	case []any:
		for _, r := range returns {
			if s, ok := r.(string); ok {
				a.Returns = append(a.Returns, s)
			}
		}
	}

	params, _ := decl["parameters"].([]any)
	for i, raw := range params {
		pm, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("parameter %d must be an object", i)
		}
		p, err := ParseParameter(pm)
		if err != nil {
			return nil, err
		}
		a.RawParameters = append(a.RawParameters, DeepCopyMap(pm))
		a.Parameters = append(a.Parameters, p)
	}
	return a, nil
}

// ParseDevices parses the devices section.
func ParseDevices(section map[string]any) (map[string]*DeviceTypeApi, error) {
	out := make(map[string]*DeviceTypeApi, len(section))
	for _, name := range sortedKeys(section) {
		decl, ok := section[name].(map[string]any)
		if !ok {
			return nil, InvalidApi("device type %s must be an object", name)
		}
		d := &DeviceTypeApi{Name: name}
		d.Description, _ = decl["description"].(string)
		fields, _ := decl["fields"].([]any)
		for i, raw := range fields {
			fm, ok := raw.(map[string]any)
			if !ok {
				return nil, InvalidApi("device type %s field %d must be an object", name, i)
			}
			f, err := ParseParameter(fm)
			if err != nil {
				return nil, InvalidApi("device type %s has invalid api: %s", name, err.Error()).WithCause(err)
			}
			if f.Kind != KindPrimitive {
				return nil, InvalidApi("device type %s field %s must have a primitive type", name, f.Name)
			}
			d.Fields = append(d.Fields, f)
		}
		out[name] = d
	}
	return out, nil
}

// ParseAppSpec parses a dereferenced spec document.
func ParseAppSpec(doc map[string]any) (*AppSpec, error) {
	spec := &AppSpec{
		Info:        DeepCopyMap(asMap(doc["info"])),
		Definitions: DeepCopyMap(asMap(doc["definitions"])),
	}
	var err error
	if spec.Actions, err = ParseActions(asMap(doc["actions"]), "Action"); err != nil {
		return nil, err
	}
	if spec.Conditions, err = ParseActions(asMap(doc["conditions"]), "Condition"); err != nil {
		return nil, err
	}
	if spec.Transforms, err = ParseActions(asMap(doc["transforms"]), "Transform"); err != nil {
		return nil, err
	}
	if spec.Devices, err = ParseDevices(asMap(doc["devices"])); err != nil {
		return nil, err
	}
	return spec, nil
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
