package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/appspec/internal/store"
	"github.com/rendis/appspec/pkg/mcp"
)

const echoSpec = `
walkoff: '0.1'
info:
  title: Echo
  version: 1.0.0
actions:
  echo:
    run: main.echo
    parameters:
      - name: message
        type: string
        required: true
`

const echoManifest = `
apps:
  Echo:
    spec: Echo/api.yaml
    callables:
      - kind: action
        name: main.echo
        args: [message]
`

func writeApps(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "Echo"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Echo", "api.yaml"), []byte(echoSpec), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "apps.yaml"), []byte(echoManifest), 0o644))
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestValidateCmd_ManifestApps(t *testing.T) {
	isolateHome(t)
	dir := writeApps(t)

	out, err := execute(t, "validate", "-m", filepath.Join(dir, "apps.yaml"), "--no-store")
	require.NoError(t, err)
	assert.Contains(t, out, "ok    Echo")
}

func TestValidateCmd_FileUsesManifestApp(t *testing.T) {
	isolateHome(t)
	dir := writeApps(t)

	out, err := execute(t, "validate", "-m", filepath.Join(dir, "apps.yaml"), "--no-store", "--json",
		filepath.Join(dir, "Echo", "api.yaml"))
	require.NoError(t, err)

	var payload struct {
		Reports []store.Report `json:"reports"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	require.Len(t, payload.Reports, 1)
	assert.Equal(t, "Echo", payload.Reports[0].App)
	assert.True(t, payload.Reports[0].Valid)
}

func TestValidateCmd_UnregisteredAppFails(t *testing.T) {
	isolateHome(t)
	dir := writeApps(t)

	out, err := execute(t, "validate", "--no-store", "--app", "Other", filepath.Join(dir, "Echo", "api.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 app specs are invalid")
	assert.Contains(t, out, "FAIL  Other")
	assert.Contains(t, out, "main.echo")
}

func TestValidateCmd_NoSources(t *testing.T) {
	isolateHome(t)
	_, err := execute(t, "validate", "--no-store")
	require.Error(t, err)
}

func TestValidateCmd_AppWithManyFiles(t *testing.T) {
	isolateHome(t)
	_, err := execute(t, "validate", "--no-store", "--app", "A", "a.yaml", "b.yaml")
	require.Error(t, err)
}

func TestValidateCmd_RecordsReports(t *testing.T) {
	isolateHome(t)
	dir := writeApps(t)
	dbPath := filepath.Join(t.TempDir(), "reports.db")

	_, err := execute(t, "validate", "-m", filepath.Join(dir, "apps.yaml"), "--db-path", dbPath)
	require.NoError(t, err)

	s, err := store.NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	defer s.Close()

	latest, err := s.LatestReport(context.Background(), "Echo")
	require.NoError(t, err)
	assert.True(t, latest.Valid)
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", out)
}

func TestAppNameFromPath(t *testing.T) {
	assert.Equal(t, "HelloWorld", appNameFromPath(filepath.Join("apps", "HelloWorld", "api.yaml")))
}

func TestLoadOrCreateSalt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.salt")

	first, err := loadOrCreateSalt(path)
	require.NoError(t, err)
	assert.Len(t, first, saltSize)

	again, err := loadOrCreateSalt(path)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	require.NoError(t, os.WriteFile(path, []byte("short"), 0o600))
	_, err = loadOrCreateSalt(path)
	require.Error(t, err)
}

func TestStack_OpensVaultWithPassphrase(t *testing.T) {
	isolateHome(t)
	dir := writeApps(t)
	cfg := defaultConfig()
	cfg.Manifest = filepath.Join(dir, "apps.yaml")
	cfg.DBPath = filepath.Join(t.TempDir(), "appspec.db")
	cfg.VaultPassphrase = "correct horse"

	var logs bytes.Buffer
	st, err := newStack(context.Background(), cfg, stackOptions{withStore: true, logOut: &logs})
	require.NoError(t, err)
	defer st.close()

	require.NotNil(t, st.store)
	require.NotNil(t, st.vault)
	_, err = os.Stat(cfg.saltPath())
	require.NoError(t, err)

	specs := mcp.NewSpecCache()
	preload(context.Background(), st, specs)
	assert.Equal(t, []string{"Echo"}, specs.Apps())
}
