package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/mimir-go/internal/domain/index"
	"github.com/mimir-go/internal/storage/adapters/elasticsearch/estest"
	"github.com/mimir-go/pkg/lock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const indexYAML = `
name: munin_addr_fr
parameters:
  timeout: 10s
settings:
  number_of_shards: 1
  number_of_replicas: 0
mappings:
  properties:
    label:
      type: text
    coord:
      type: geo_point
`

// Test helpers
func setupTestCLI(t *testing.T, extra ...string) (*estest.Server, string) {
	t.Helper()
	srv := estest.NewServer()
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfg := filepath.Join(dir, "mimir.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(`
naming:
  root: munin
resilience:
  retry_attempts: 1
logger:
  level: error
`+strings.Join(extra, "\n")), 0o644))
	return srv, cfg
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, srv *estest.Server, cfg string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	a := &app{}
	defer a.close()
	cmd := newRootCmd(a)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--config", cfg, "--es-url", srv.URL}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestYAMLToJSON(t *testing.T) {
	text, err := yamlToJSON([]byte(indexYAML))
	require.NoError(t, err)

	cfg, err := index.ParseConfiguration(text)
	require.NoError(t, err)
	assert.Equal(t, "munin_addr_fr", cfg.Name)
	assert.Equal(t, "10s", cfg.Parameters.Timeout)
	assert.JSONEq(t, `{"number_of_shards":1,"number_of_replicas":0}`, string(cfg.Settings))

	_, err = yamlToJSON([]byte("name: [unclosed"))
	assert.Error(t, err)
}

func TestReadIndexConfig(t *testing.T) {
	t.Run("JSON", func(t *testing.T) {
		path := writeFile(t, "index.json", `{"name":"munin_poi_osm"}`)
		text, err := readIndexConfig(path)
		require.NoError(t, err)
		assert.Equal(t, `{"name":"munin_poi_osm"}`, text)
	})

	t.Run("YAML", func(t *testing.T) {
		path := writeFile(t, "index.yml", "name: munin_poi_osm\n")
		text, err := readIndexConfig(path)
		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"munin_poi_osm"}`, text)
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := readIndexConfig(filepath.Join(t.TempDir(), "nope.json"))
		assert.Error(t, err)
	})
}

func TestIndexLifecycle(t *testing.T) {
	srv, cfg := setupTestCLI(t)
	template := writeFile(t, "index.yaml", indexYAML)

	out, err := run(t, srv, cfg, "create", "--file", template)
	require.NoError(t, err)
	var created index.Index
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, "munin_addr_fr", created.Name)
	assert.True(t, srv.HasIndex("munin_addr_fr"))

	out, err = run(t, srv, cfg, "find", "munin_addr_fr")
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "munin_addr_fr"`)

	_, err = run(t, srv, cfg, "create", "--file", template)
	assert.ErrorIs(t, err, index.ErrDuplicateIndex)

	out, err = run(t, srv, cfg, "delete", "munin_addr_fr")
	require.NoError(t, err)
	assert.Equal(t, "deleted munin_addr_fr\n", out)
	assert.False(t, srv.HasIndex("munin_addr_fr"))

	_, err = run(t, srv, cfg, "find", "munin_addr_fr")
	assert.EqualError(t, err, "index munin_addr_fr not found")
}

func TestInsertPublishExport(t *testing.T) {
	srv, cfg := setupTestCLI(t)
	const name = "munin_addr_fr_20240101_120000_aaaaaaaa"
	srv.AddIndex(name)

	input := writeFile(t, "docs.ndjson", strings.Join([]string{
		`{"id": "addr:1", "label": "1 rue de la Paix"}`,
		`broken`,
		`{"id": "addr:2", "label": "2 rue de la Paix"}`,
	}, "\n"))

	out, err := run(t, srv, cfg, "insert", name, "--input", input)
	require.NoError(t, err)
	var report insertReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, index.InsertStats{Created: 2}, report.Stats)
	assert.Equal(t, 3, report.Read)
	assert.Equal(t, 1, report.Skipped)

	_, ok := srv.Pipeline("indexed_at")
	assert.True(t, ok, "insert installs the indexed_at pipeline")

	out, err = run(t, srv, cfg, "publish", name, "--visibility", "private")
	require.NoError(t, err)
	assert.Equal(t, "published "+name+" (private)\n", out)
	assert.Equal(t, []string{"munin_addr_fr"}, srv.Aliases(name))

	out, err = run(t, srv, cfg, "alias", "munin_addr_fr")
	require.NoError(t, err)
	assert.Equal(t, name+"\n", out)

	out, err = run(t, srv, cfg, "export", name)
	require.NoError(t, err)
	assert.Equal(t, []string{
		`{"id":"addr:1","label":"1 rue de la Paix"}`,
		`{"id":"addr:2","label":"2 rue de la Paix"}`,
	}, strings.Split(strings.TrimSpace(out), "\n"))

	_, err = run(t, srv, cfg, "publish", name, "--visibility", "hidden")
	assert.ErrorIs(t, err, index.ErrInvalidConfiguration)
}

func TestImport(t *testing.T) {
	srv, cfg := setupTestCLI(t)
	template := writeFile(t, "index.yaml", indexYAML)
	input := writeFile(t, "docs.ndjson", "{\"id\":\"a\"}\n{\"id\":\"b\"}\n")

	out, err := run(t, srv, cfg, "import",
		"--template", template,
		"--doc-type", "addr",
		"--dataset", "fr",
		"--input", input)
	require.NoError(t, err)

	var report importReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.NotNil(t, report.Index)
	assert.True(t, strings.HasPrefix(report.Index.Name, "munin_addr_fr_"))
	assert.Equal(t, index.InsertStats{Created: 2}, report.Stats)
	assert.ElementsMatch(t, []string{"munin_addr_fr", "munin_addr", "munin", "munin_geo_data"}, srv.Aliases(report.Index.Name))

	out, err = run(t, srv, cfg, "search", "munin_addr", "--query", `{"query":{"match_all":{}}}`)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2)
}

func TestImportRequiresFlags(t *testing.T) {
	srv, cfg := setupTestCLI(t)
	_, err := run(t, srv, cfg, "import", "--doc-type", "addr")
	assert.Error(t, err)
	assert.Empty(t, srv.Requests())
}

func TestImportLockedDataset(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	srv, cfg := setupTestCLI(t, "redis:\n  addr: "+mr.Addr()+"\n")
	template := writeFile(t, "index.yaml", indexYAML)
	input := writeFile(t, "docs.ndjson", "{\"id\":\"a\"}\n")
	args := []string{"import", "--template", template, "--doc-type", "addr", "--dataset", "fr", "--input", input}

	require.NoError(t, mr.Set("mimir:lock:munin_addr_fr", "other-importer"))
	_, err = run(t, srv, cfg, args...)
	assert.ErrorIs(t, err, lock.ErrHeld)
	assert.Empty(t, srv.AliasIndices("munin_addr_fr"))

	mr.Del("mimir:lock:munin_addr_fr")
	_, err = run(t, srv, cfg, args...)
	require.NoError(t, err)
	assert.Len(t, srv.AliasIndices("munin_addr_fr"), 1)
	assert.False(t, mr.Exists("mimir:lock:munin_addr_fr"))
}
