package validation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDocument_YAML(t *testing.T) {
	doc, err := ParseDocument([]byte(`
info:
  title: Demo
  version: "1"
actions:
  ping:
    run: main.ping
    parameters:
      - name: count
        type: integer
        default: 3
`))
	require.NoError(t, err)
	params := doc["actions"].(map[string]any)["ping"].(map[string]any)["parameters"].([]any)
	assert.Equal(t, map[string]any{"name": "count", "type": "integer", "default": 3}, params[0])
}

func TestParseDocument_JSON(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"info": {"title": "Demo", "version": "1"}, "devices": {}}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, doc["devices"])
}

func TestParseDocument_NonStringKeys(t *testing.T) {
	doc, err := ParseDocument([]byte("codes:\n  1: one\n  2: two\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"1": "one", "2": "two"}, doc["codes"])
}

func TestParseDocument_NotMapping(t *testing.T) {
	_, err := ParseDocument([]byte("- a\n- b\n"))
	require.Error(t, err)
	_, err = ParseDocument([]byte("key: [unclosed"))
	require.Error(t, err)
}

func TestLoadDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.yaml")
	require.NoError(t, os.WriteFile(path, []byte("info:\n  title: Demo\n  version: '1'\n"), 0o600))

	doc, err := LoadDocument(path)
	require.NoError(t, err)
	assert.Equal(t, "Demo", doc["info"].(map[string]any)["title"])

	_, err = LoadDocument(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
