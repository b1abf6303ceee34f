package validation

import (
	"fmt"
	"net/url"

	"github.com/go-openapi/jsonpointer"

	"github.com/rendis/appspec/pkg/schema"
)

const refKey = "$ref"

// Resolver dereferences "$ref" indirections in a spec document. Local refs
// resolve against the spec itself; other refs resolve against documents
// registered under their absolute URI, relative to the base URI.
// A Resolver is read-only after construction and safe for concurrent use.
type Resolver struct {
	base *url.URL
	docs map[string]any
}

// NewResolver creates a Resolver for spec located at baseURI.
func NewResolver(baseURI string, spec map[string]any, extra map[string]any) (*Resolver, error) {
	base, err := url.Parse(baseURI)
	if err != nil {
		return nil, fmt.Errorf("parse base uri %q: %w", baseURI, err)
	}
	r := &Resolver{base: base, docs: make(map[string]any, len(extra)+1)}
	r.docs[documentKey(base)] = spec
	for uri, doc := range extra {
		u, err := url.Parse(uri)
		if err != nil {
			return nil, fmt.Errorf("parse document uri %q: %w", uri, err)
		}
		r.docs[documentKey(base.ResolveReference(u))] = doc
	}
	return r, nil
}

func documentKey(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	return c.String()
}

// Deref follows "$ref" chains on v until it reaches a value that is not a
// reference. Values that are not references are returned unchanged.
func (r *Resolver) Deref(v any) (any, error) {
	out, _, err := r.deref(v, r.base)
	return out, err
}

func (r *Resolver) deref(v any, base *url.URL) (any, *url.URL, error) {
	seen := make(map[string]struct{})
	for {
		ref, ok := refOf(v)
		if !ok {
			return v, base, nil
		}
		target, abs, err := r.lookup(ref, base)
		if err != nil {
			return nil, nil, err
		}
		key := abs.String()
		if _, loop := seen[key]; loop {
			return nil, nil, schema.InvalidApi("reference %s forms a loop", ref)
		}
		seen[key] = struct{}{}
		v, base = target, abs
	}
}

// DerefAll returns a deep copy of v with every reference replaced by its
// target. A reference to a schema that is already being expanded is left in
// place, so recursive definitions terminate.
func (r *Resolver) DerefAll(v any) (any, error) {
	return r.derefAll(v, r.base, map[string]struct{}{})
}

func (r *Resolver) derefAll(v any, base *url.URL, expanding map[string]struct{}) (any, error) {
	if ref, ok := refOf(v); ok {
		target, abs, err := r.lookup(ref, base)
		if err != nil {
			return nil, err
		}
		key := abs.String()
		if _, cycle := expanding[key]; cycle {
			return map[string]any{refKey: ref}, nil
		}
		expanding[key] = struct{}{}
		defer delete(expanding, key)
		return r.derefAll(target, abs, expanding)
	}

	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			resolved, err := r.derefAll(item, base, expanding)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			resolved, err := r.derefAll(item, base, expanding)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

// DerefMap is DerefAll for mappings; a non-mapping target is an error.
func (r *Resolver) DerefMap(v any) (map[string]any, error) {
	if v == nil {
		return map[string]any{}, nil
	}
	out, err := r.DerefAll(v)
	if err != nil {
		return nil, err
	}
	m, ok := out.(map[string]any)
	if !ok {
		return nil, schema.InvalidApi("expected an object, got %s", jsonTypeName(out))
	}
	return m, nil
}

func (r *Resolver) lookup(ref string, base *url.URL) (any, *url.URL, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, nil, schema.InvalidApi("invalid reference %q: %s", ref, err.Error()).WithCause(err)
	}
	abs := base.ResolveReference(u)
	doc, ok := r.docs[documentKey(abs)]
	if !ok {
		return nil, nil, schema.InvalidApi("unresolvable reference %q: unknown document %s", ref, documentKey(abs))
	}
	if abs.Fragment == "" {
		return doc, abs, nil
	}
	ptr, err := jsonpointer.New(abs.Fragment)
	if err != nil {
		return nil, nil, schema.InvalidApi("invalid reference %q: %s", ref, err.Error()).WithCause(err)
	}
	target, _, err := ptr.Get(doc)
	if err != nil {
		return nil, nil, schema.InvalidApi("unresolvable reference %q: %s", ref, err.Error()).WithCause(err)
	}
	return target, abs, nil
}

func refOf(v any) (string, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	ref, ok := m[refKey].(string)
	return ref, ok
}
