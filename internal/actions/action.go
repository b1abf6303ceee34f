package actions

// Kind distinguishes the three kinds of callables an app registers.
type Kind string

const (
	KindAction    Kind = "action"
	KindCondition Kind = "condition"
	KindTransform Kind = "transform"
)

// Label returns the capitalized kind name used in diagnostics.
func (k Kind) Label() string {
	switch k {
	case KindAction:
		return "Action"
	case KindCondition:
		return "Condition"
	case KindTransform:
		return "Transform"
	default:
		return string(k)
	}
}

// Callable is the registration metadata of an app callable: its ordered
// argument names and, for event-driven actions, the event it waits for.
// When EventName is set the first argument receives the event payload.
type Callable struct {
	App       string   `json:"app"`
	Kind      Kind     `json:"kind"`
	Name      string   `json:"name"`
	ArgNames  []string `json:"arg_names"`
	EventName string   `json:"event_name,omitempty"`
}

// CallableRegistry resolves callables declared by apps.
type CallableRegistry interface {
	Resolve(app string, kind Kind, name string) (*Callable, error)
	ListDeclared(app string, kind Kind) []string
}

// CallableInfo is a summary of a registered callable for listing.
type CallableInfo struct {
	App  string `json:"app"`
	Kind Kind   `json:"kind"`
	Name string `json:"name"`
}
