package actions

import (
	"sort"
	"sync"

	"github.com/rendis/appspec/pkg/schema"
)

type callableKey struct {
	app  string
	kind Kind
	name string
}

// Registry is the concrete thread-safe CallableRegistry implementation.
// It is populated at app registration time and read during validation.
type Registry struct {
	mu        sync.RWMutex
	callables map[callableKey]*Callable
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		callables: make(map[callableKey]*Callable),
	}
}

// Register adds a callable. Returns error on duplicate app/kind/name.
func (r *Registry) Register(c Callable) error {
	if c.App == "" {
		return schema.NewError(schema.ErrCodeInvalidApi, "callable app is empty")
	}
	if c.Name == "" {
		return schema.NewError(schema.ErrCodeInvalidApi, "callable name is empty")
	}
	switch c.Kind {
	case KindAction, KindCondition, KindTransform:
	default:
		return schema.NewErrorf(schema.ErrCodeInvalidApi, "callable %q has unknown kind %q", c.Name, c.Kind)
	}

	key := callableKey{app: c.App, kind: c.Kind, name: c.Name}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.callables[key]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "%s %q already registered for app %q", c.Kind, c.Name, c.App)
	}
	c.ArgNames = append([]string(nil), c.ArgNames...)
	r.callables[key] = &c
	return nil
}

// RegisterApp bulk-registers callables under one app name.
func (r *Registry) RegisterApp(app string, callables []Callable) (int, error) {
	registered := 0
	for _, c := range callables {
		c.App = app
		if err := r.Register(c); err != nil {
			return registered, err
		}
		registered++
	}
	return registered, nil
}

// Resolve retrieves a callable. The returned value is a copy.
func (r *Registry) Resolve(app string, kind Kind, name string) (*Callable, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.callables[callableKey{app: app, kind: kind, name: name}]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not registered for app %q", kind, name, app)
	}
	cp := *c
	cp.ArgNames = append([]string(nil), c.ArgNames...)
	return &cp, nil
}

// ResolveAction retrieves an action callable.
func (r *Registry) ResolveAction(app, name string) (*Callable, error) {
	return r.Resolve(app, KindAction, name)
}

// ResolveCondition retrieves a condition callable.
func (r *Registry) ResolveCondition(app, name string) (*Callable, error) {
	return r.Resolve(app, KindCondition, name)
}

// ResolveTransform retrieves a transform callable.
func (r *Registry) ResolveTransform(app, name string) (*Callable, error) {
	return r.Resolve(app, KindTransform, name)
}

// ListDeclared returns the names of all callables of kind registered for
// app, sorted.
func (r *Registry) ListDeclared(app string, kind Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0)
	for key := range r.callables {
		if key.app == app && key.kind == kind {
			names = append(names, key.name)
		}
	}
	sort.Strings(names)
	return names
}

// List returns info for all registered callables, sorted by app, kind, name.
func (r *Registry) List() []CallableInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]CallableInfo, 0, len(r.callables))
	for key := range r.callables {
		infos = append(infos, CallableInfo{App: key.app, Kind: key.kind, Name: key.name})
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].App != infos[j].App {
			return infos[i].App < infos[j].App
		}
		if infos[i].Kind != infos[j].Kind {
			return infos[i].Kind < infos[j].Kind
		}
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Has checks if a callable is registered.
func (r *Registry) Has(app string, kind Kind, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.callables[callableKey{app: app, kind: kind, name: name}]
	return ok
}

// Count returns the number of registered callables.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.callables)
}

var _ CallableRegistry = (*Registry)(nil)
