package actions

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/appspec/pkg/schema"
)

const helloManifest = `
apps:
  HelloWorld:
    spec: HelloWorld/api.yaml
    callables:
      - kind: action
        name: main.greet
        args: [self, name]
      - kind: action
        name: main.wait
        args: [self, data]
        event: tick
      - kind: condition
        name: conditions.flag
        args: [value]
  Echo:
    callables:
      - kind: transform
        name: transforms.upper
        args: [value]
`

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "apps.yaml")
	require.NoError(t, os.WriteFile(path, []byte(helloManifest), 0o644))

	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Echo", "HelloWorld"}, m.AppNames())
	assert.Equal(t, filepath.Join(dir, "HelloWorld", "api.yaml"), m.Apps["HelloWorld"].Spec)
	assert.Empty(t, m.Apps["Echo"].Spec)

	app, ok := m.AppForSpec(filepath.Join(dir, "HelloWorld", "..", "HelloWorld", "api.yaml"))
	assert.True(t, ok)
	assert.Equal(t, "HelloWorld", app)
	_, ok = m.AppForSpec(filepath.Join(dir, "other.yaml"))
	assert.False(t, ok)
}

func TestLoadManifest_Missing(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestParseManifest_UnknownField(t *testing.T) {
	_, err := ParseManifest([]byte("apps:\n  A:\n    specs: x\n"))
	require.Error(t, err)
}

func TestParseManifest_Empty(t *testing.T) {
	m, err := ParseManifest([]byte("apps: {}\n"))
	require.NoError(t, err)
	assert.Empty(t, m.AppNames())
}

func TestManifest_Register(t *testing.T) {
	m, err := ParseManifest([]byte(helloManifest))
	require.NoError(t, err)

	reg := NewRegistry()
	n, err := m.Register(reg)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	wait, err := reg.ResolveAction("HelloWorld", "main.wait")
	require.NoError(t, err)
	assert.Equal(t, "tick", wait.EventName)
	assert.Equal(t, []string{"self", "data"}, wait.ArgNames)
	assert.True(t, reg.Has("Echo", KindTransform, "transforms.upper"))
}

func TestManifest_RegisterRejectsBadKind(t *testing.T) {
	m, err := ParseManifest([]byte("apps:\n  A:\n    callables:\n      - kind: widget\n        name: x\n"))
	require.NoError(t, err)

	_, err = m.Register(NewRegistry())
	require.Error(t, err)
	assert.True(t, schema.IsInvalidApi(err))
}
