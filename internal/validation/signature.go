package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rendis/appspec/internal/actions"
	"github.com/rendis/appspec/pkg/schema"
)

// receiverNames are leading argument names that bind the callable's receiver
// rather than a declared parameter.
var receiverNames = map[string]struct{}{"self": {}, "cls": {}}

// CheckSignature compares the parameters declared by action with the
// argument names of the callable it runs. Messages name the app, the kind
// and the action. When the action declares an
// event, the callable's first argument carries the event payload and is not
// compared; an event name that differs from the callable's is recorded as a
// warning in diags.
func CheckSignature(action *schema.ActionSpec, callable *actions.Callable, app string, kind actions.Kind, diags *schema.Diagnostics) error {
	subject := fmt.Sprintf("app %s %s %s", app, strings.ToLower(kind.Label()), action.Name)
	declared := make(map[string]struct{}, len(action.RawParameters))
	for _, name := range action.ParameterNames() {
		if _, dup := declared[name]; dup {
			return schema.InvalidApi("Duplicate parameter %s in api for %s", name, subject)
		}
		declared[name] = struct{}{}
	}

	args := append([]string(nil), callable.ArgNames...)
	if len(args) > 0 {
		if _, ok := receiverNames[args[0]]; ok {
			args = args[1:]
		}
	}

	if action.Event != "" {
		if len(args) == 0 {
			return schema.InvalidApi("In %s, event %s is documented but the callable %s takes no event argument",
				subject, action.Event, callable.Name)
		}
		args = args[1:]
		if callable.EventName != action.Event && diags != nil {
			diags.AddWarning(subject,
				fmt.Sprintf("In %s, event documented %s does not match event specified %s",
					subject, action.Event, callable.EventName))
		}
	}

	actual := make(map[string]struct{}, len(args))
	for _, a := range args {
		actual[a] = struct{}{}
	}

	onlyInAPI := difference(declared, actual)
	onlyInDefinition := difference(actual, declared)
	if len(onlyInAPI) == 0 && len(onlyInDefinition) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Discrepancy between defined parameters in API and in method definition for %s.", subject)
	if len(onlyInAPI) > 0 {
		fmt.Fprintf(&b, " Only in API: %s.", strings.Join(onlyInAPI, ", "))
	}
	if len(onlyInDefinition) > 0 {
		fmt.Fprintf(&b, " Only in definition: %s", strings.Join(onlyInDefinition, ", "))
	}
	return schema.InvalidApi("%s", b.String()).WithDetails(map[string]any{
		"only_in_api":        onlyInAPI,
		"only_in_definition": onlyInDefinition,
	})
}

// difference returns the sorted names in a that are not in b.
func difference(a, b map[string]struct{}) []string {
	var out []string
	for name := range a {
		if _, ok := b[name]; !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
