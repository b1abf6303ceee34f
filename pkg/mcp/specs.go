package mcp

import (
	"sort"
	"sync"

	"github.com/rendis/appspec/pkg/schema"
)

// SpecCache holds the last valid spec of each app. Specs are never mutated
// after validation, so readers share them.
type SpecCache struct {
	mu    sync.RWMutex
	specs map[string]*schema.AppSpec
}

// NewSpecCache creates an empty SpecCache.
func NewSpecCache() *SpecCache {
	return &SpecCache{specs: make(map[string]*schema.AppSpec)}
}

// Put records spec as the current spec of app, replacing any previous one.
func (c *SpecCache) Put(app string, spec *schema.AppSpec) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.specs[app] = spec
}

// Get returns the current spec of app, if any.
func (c *SpecCache) Get(app string) (*schema.AppSpec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	spec, ok := c.specs[app]
	return spec, ok
}

// Remove forgets the spec of app.
func (c *SpecCache) Remove(app string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.specs, app)
}

// Apps returns the apps with a cached spec, sorted.
func (c *SpecCache) Apps() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	apps := make([]string, 0, len(c.specs))
	for app := range c.specs {
		apps = append(apps, app)
	}
	sort.Strings(apps)
	return apps
}
