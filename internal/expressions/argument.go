package expressions

import (
	"github.com/rendis/appspec/pkg/schema"
)

// Argument is a runtime value source for one parameter: either a literal
// Value or a Reference to a result in the accumulator, optionally narrowed
// by a Selection path of keys and indices.
type Argument struct {
	Name      string `json:"name" yaml:"name"`
	Value     any    `json:"value,omitempty" yaml:"value,omitempty"`
	Reference string `json:"reference,omitempty" yaml:"reference,omitempty"`
	Selection []any  `json:"selection,omitempty" yaml:"selection,omitempty"`
}

// Literal creates a literal argument.
func Literal(name string, value any) Argument {
	return Argument{Name: name, Value: value}
}

// Ref creates a reference argument.
func Ref(name, reference string, selection ...any) Argument {
	return Argument{Name: name, Reference: reference, Selection: selection}
}

// IsRef reports whether the argument resolves through the accumulator.
func (a Argument) IsRef() bool {
	return a.Reference != ""
}

// GetValue resolves the argument. A reference with a nil accumulator
// resolves to nil.
func (a Argument) GetValue(acc Accumulator) (any, error) {
	if !a.IsRef() {
		return schema.DeepCopy(a.Value), nil
	}
	if acc == nil {
		return nil, nil
	}
	result, ok := acc.Lookup(a.Reference)
	if !ok {
		return nil, schema.InvalidArgument("Referenced action %s has not been executed", a.Reference)
	}
	if len(a.Selection) == 0 {
		return result, nil
	}
	sel, err := defaultSelector()
	if err != nil {
		return nil, err
	}
	value, err := sel.Select(result, a.Selection)
	if err != nil {
		return nil, schema.InvalidArgument("Argument %s: %s", a.Name, err.Error()).WithCause(err)
	}
	return value, nil
}
