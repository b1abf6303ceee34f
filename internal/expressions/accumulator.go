package expressions

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/rendis/appspec/pkg/schema"
)

// Accumulator is the store of previously produced results that reference
// arguments resolve against.
type Accumulator interface {
	Lookup(id string) (any, bool)
}

// ResultStore is an append-only Accumulator. Results are frozen on insert:
// they are normalized to plain JSON values and deep-copied, and a result id
// cannot be overwritten.
type ResultStore struct {
	mu      sync.RWMutex
	results map[string]any
}

// NewResultStore creates an empty ResultStore.
func NewResultStore() *ResultStore {
	return &ResultStore{
		results: make(map[string]any),
	}
}

// Add registers the result produced by id.
func (s *ResultStore) Add(id string, result any) error {
	frozen, err := normalize(result)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeInvalidArgument,
			"cannot store result of %q: %s", id, err.Error()).WithCause(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.results[id]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict,
			"result of %q already registered; results are immutable once stored", id)
	}
	s.results[id] = frozen
	return nil
}

// AddRaw registers a JSON-encoded result. Empty output is stored as null.
func (s *ResultStore) AddRaw(id string, output json.RawMessage) error {
	if len(output) == 0 {
		return s.Add(id, nil)
	}
	var parsed any
	if err := json.Unmarshal(output, &parsed); err != nil {
		return schema.NewErrorf(schema.ErrCodeInvalidArgument,
			"cannot parse result of %q: %s", id, err.Error()).WithCause(err)
	}
	return s.Add(id, parsed)
}

// Lookup returns a private copy of the result produced by id.
func (s *ResultStore) Lookup(id string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.results[id]
	if !ok {
		return nil, false
	}
	return schema.DeepCopy(v), true
}

// IDs returns the ids of all stored results, sorted.
func (s *ResultStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.results))
	for id := range s.results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MapAccumulator adapts a plain map to the Accumulator interface.
type MapAccumulator map[string]any

// Lookup implements Accumulator.
func (m MapAccumulator) Lookup(id string) (any, bool) {
	v, ok := m[id]
	return v, ok
}

// normalize round-trips v through JSON so that only maps, slices, float64,
// strings, booleans and nil remain.
func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
