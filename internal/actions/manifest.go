package actions

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Manifest lists, per app, where its spec lives and which callables it
// registers. It stands in for in-process registration when specs are
// validated from the command line.
type Manifest struct {
	Apps map[string]ManifestApp `yaml:"apps"`
}

// ManifestApp is one app entry of a Manifest.
type ManifestApp struct {
	Spec      string             `yaml:"spec"`
	Callables []ManifestCallable `yaml:"callables"`
}

// ManifestCallable is one callable entry of a ManifestApp.
type ManifestCallable struct {
	Kind  Kind     `yaml:"kind"`
	Name  string   `yaml:"name"`
	Args  []string `yaml:"args"`
	Event string   `yaml:"event,omitempty"`
}

// LoadManifest reads a manifest file. Relative spec paths are resolved
// against the manifest's directory.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	for name, app := range m.Apps {
		if app.Spec != "" && !filepath.IsAbs(app.Spec) {
			app.Spec = filepath.Join(dir, app.Spec)
			m.Apps[name] = app
		}
	}
	return m, nil
}

// ParseManifest decodes a manifest, rejecting unknown keys.
func ParseManifest(data []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if m.Apps == nil {
		m.Apps = map[string]ManifestApp{}
	}
	return &m, nil
}

// AppNames returns the app names of the manifest, sorted.
func (m *Manifest) AppNames() []string {
	names := make([]string, 0, len(m.Apps))
	for name := range m.Apps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AppForSpec returns the app whose spec path is path.
func (m *Manifest) AppForSpec(path string) (string, bool) {
	want := filepath.Clean(path)
	if abs, err := filepath.Abs(want); err == nil {
		want = abs
	}
	for _, name := range m.AppNames() {
		spec := m.Apps[name].Spec
		if spec == "" {
			continue
		}
		got := filepath.Clean(spec)
		if abs, err := filepath.Abs(got); err == nil {
			got = abs
		}
		if got == want {
			return name, true
		}
	}
	return "", false
}

// Register adds every callable of the manifest to r. It stops at the first
// rejected callable and returns how many were registered.
func (m *Manifest) Register(r *Registry) (int, error) {
	total := 0
	for _, name := range m.AppNames() {
		callables := make([]Callable, 0, len(m.Apps[name].Callables))
		for _, c := range m.Apps[name].Callables {
			callables = append(callables, Callable{Kind: c.Kind, Name: c.Name, ArgNames: c.Args, EventName: c.Event})
		}
		n, err := r.RegisterApp(name, callables)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
