package expressions

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/itchyny/gojq"
	"github.com/rendis/appspec/pkg/schema"
)

// selectQuery walks $path through its input one element at a time. Keys
// select object members, numbers (or digit strings) select array elements;
// anything else is an error rather than null.
const selectQuery = `
def step($p):
  if type == "object" and ($p | type) == "string" and has($p) then .[$p]
  elif type == "array" and ($p | type) == "number" and $p >= 0 and $p < length then .[$p]
  elif type == "array" and ($p | type) == "string" and ($p | test("^[0-9]+$")) and ($p | tonumber) < length then .[$p | tonumber]
  else error("cannot select \($p | tojson) from \(type)")
  end;
reduce $path[] as $p (.; step($p))
`

// Selector applies selection paths to accumulated results using GoJQ.
// The compiled query is immutable and shared across goroutines.
type Selector struct {
	code *gojq.Code
}

// NewSelector compiles the selection query.
func NewSelector() (*Selector, error) {
	query, err := gojq.Parse(selectQuery)
	if err != nil {
		return nil, fmt.Errorf("parse selection query: %w", err)
	}
	code, err := gojq.Compile(query,
		gojq.WithVariables([]string{"$path"}),
		// Sandbox: return empty env to block $ENV and env access.
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, fmt.Errorf("compile selection query: %w", err)
	}
	return &Selector{code: code}, nil
}

var defaultSelector = sync.OnceValues(NewSelector)

// Select returns the element of data addressed by path.
func (s *Selector) Select(data any, path []any) (any, error) {
	input, err := normalize(data)
	if err != nil {
		return nil, schema.InvalidArgument("selection input is not JSON-serializable: %s", err.Error()).WithCause(err)
	}
	steps := make([]any, len(path))
	for i, p := range path {
		steps[i] = normalizeStep(p)
	}

	iter := s.code.Run(input, steps)
	val, ok := iter.Next()
	if !ok {
		return nil, nil
	}
	if err, isErr := val.(error); isErr {
		return nil, schema.InvalidArgument("selection %s failed: %s", renderPath(path), err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"selection": path})
	}
	return val, nil
}

// normalizeStep maps Go integer kinds to int, which gojq indexes with.
func normalizeStep(p any) any {
	switch v := p.(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint:
		return int(v)
	case float64:
		if v == float64(int(v)) {
			return int(v)
		}
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
		return v.String()
	default:
		return p
	}
}

func renderPath(path []any) string {
	b, err := json.Marshal(path)
	if err != nil {
		return fmt.Sprint(path)
	}
	return string(b)
}
