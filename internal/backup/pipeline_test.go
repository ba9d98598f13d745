package backup_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirbelkuyu/mongobackup/internal/backup"
)

type fakeCatalog struct {
	collections map[string][]string
	listErr     error
	closed      int
}

func (c *fakeCatalog) ListCollectionNames(_ context.Context, database string) ([]string, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	return c.collections[database], nil
}

func (c *fakeCatalog) Close(context.Context) error {
	c.closed++
	return nil
}

// fakeExporter writes canned NDJSON lines keyed by "db.collection".
type fakeExporter struct {
	mu    sync.Mutex
	lines map[string][]string
	fail  map[string]error
	calls []backup.Target
}

func (e *fakeExporter) Export(_ context.Context, target backup.Target, outPath string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls = append(e.calls, target)
	key := target.Database + "." + target.Collection
	if err := e.fail[key]; err != nil {
		return err
	}
	content := strings.Join(e.lines[key], "\n")
	if content != "" {
		content += "\n"
	}
	return os.WriteFile(outPath, []byte(content), 0o644)
}

func newPipeline(t *testing.T, catalog *fakeCatalog, exporter *fakeExporter) (*backup.Pipeline, string) {
	t.Helper()
	dir := t.TempDir()
	connector := backup.ConnectorFunc(func(context.Context, string) (backup.Catalog, error) {
		return catalog, nil
	})
	opts := backup.Options{URI: "mongodb://localhost:27017", BackupDir: dir, ToolPath: "mongoexport"}
	return backup.NewPipeline(opts, connector, exporter, nil), dir
}

func shopFixture() (*fakeCatalog, *fakeExporter) {
	catalog := &fakeCatalog{collections: map[string][]string{
		"shop": {"users", "orders", "audit"},
	}}
	exporter := &fakeExporter{lines: map[string][]string{
		"shop.users": {
			`{"_id":{"$oid":"65a1f0c2e4b0a1b2c3d4e5f6"},"name":"Ada","tags":["a","b"]}`,
			`{"_id":{"$oid":"65a1f0c2e4b0a1b2c3d4e5f7"},"name":"Linus"}`,
		},
		"shop.orders": {`{"_id":1,"total":12.50,"note":"<gift> & wrap"}`},
	}}
	return catalog, exporter
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names
}

func readArtifact(t *testing.T, path string) []json.RawMessage {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var docs []json.RawMessage
	require.NoError(t, json.Unmarshal(data, &docs))
	return docs
}

func compact(t *testing.T, raw []byte) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.Compact(&buf, raw))
	return buf.String()
}

func TestRunExportsEveryCollection(t *testing.T) {
	catalog, exporter := shopFixture()
	pipeline, dir := newPipeline(t, catalog, exporter)

	result := pipeline.Run(context.Background(), "shop")

	require.NoError(t, result.Err)
	assert.Equal(t, filepath.Join(dir, "shop"), result.OutputDir)
	assert.Equal(t, 3, result.Exported())
	assert.Zero(t, result.Failed())
	assert.Equal(t, []string{"audit.json", "orders.json", "users.json"}, listDir(t, result.OutputDir),
		"one artifact per collection and no intermediate files left behind")
	assert.Equal(t, 1, catalog.closed)

	names := make([]string, 0, len(result.Collections))
	for _, c := range result.Collections {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"users", "orders", "audit"}, names, "collections are processed in server order")

	users := result.Collections[0]
	assert.Equal(t, 2, users.Documents)
	assert.Positive(t, users.Bytes)

	for _, target := range exporter.calls {
		assert.Equal(t, "mongodb://localhost:27017", target.URI)
		assert.Equal(t, "shop", target.Database)
		assert.Equal(t, "mongoexport", target.ToolPath)
	}
}

func TestRunPreservesDocumentsInOrder(t *testing.T) {
	catalog, exporter := shopFixture()
	pipeline, _ := newPipeline(t, catalog, exporter)

	result := pipeline.Run(context.Background(), "shop")
	require.NoError(t, result.Err)

	for _, key := range []string{"users", "orders"} {
		docs := readArtifact(t, filepath.Join(result.OutputDir, key+".json"))
		want := exporter.lines["shop."+key]
		require.Len(t, docs, len(want))
		for i := range want {
			assert.Equal(t, compact(t, []byte(want[i])), compact(t, docs[i]), "document %d of %s", i, key)
		}
	}

	data, err := os.ReadFile(filepath.Join(result.OutputDir, "orders.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"note": "<gift> & wrap"`, "values are written without HTML escaping")
	assert.Contains(t, string(data), `"total": 12.50`, "number text is kept verbatim")
	assert.True(t, strings.HasPrefix(string(data), "[\n    {\n        \"_id\": 1,"), "artifact uses four-space indentation")
}

func TestRunEmptyCollectionWritesEmptyArray(t *testing.T) {
	catalog, exporter := shopFixture()
	pipeline, _ := newPipeline(t, catalog, exporter)

	result := pipeline.Run(context.Background(), "shop")
	require.NoError(t, result.Err)

	data, err := os.ReadFile(filepath.Join(result.OutputDir, "audit.json"))
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
	assert.Zero(t, result.Collections[2].Documents)
}

func TestRunWithoutCollections(t *testing.T) {
	catalog := &fakeCatalog{collections: map[string][]string{}}
	pipeline, dir := newPipeline(t, catalog, &fakeExporter{})

	result := pipeline.Run(context.Background(), "empty")

	require.NoError(t, result.Err)
	assert.Empty(t, result.Collections)
	assert.DirExists(t, filepath.Join(dir, "empty"))
	assert.Empty(t, listDir(t, filepath.Join(dir, "empty")))
}

func TestRunToolFailureSkipsOnlyThatCollection(t *testing.T) {
	catalog, exporter := shopFixture()
	exporter.fail = map[string]error{"shop.orders": errors.New("exit status 1")}
	pipeline, _ := newPipeline(t, catalog, exporter)

	result := pipeline.Run(context.Background(), "shop")

	require.NoError(t, result.Err)
	assert.Equal(t, 2, result.Exported())
	assert.Equal(t, 1, result.Failed())

	orders := result.Collections[1]
	assert.Equal(t, backup.StageExport, orders.Stage)
	assert.ErrorIs(t, orders.Err, backup.ErrToolExecution)
	assert.Equal(t, []string{"audit.json", "users.json"}, listDir(t, result.OutputDir))

	users := readArtifact(t, filepath.Join(result.OutputDir, "users.json"))
	assert.Len(t, users, 2)
}

func TestRunMalformedLineKeepsIntermediate(t *testing.T) {
	catalog, exporter := shopFixture()
	exporter.lines["shop.orders"] = []string{`{"_id":1}`, `{"_id":2,`, `{"_id":3}`}
	pipeline, _ := newPipeline(t, catalog, exporter)

	result := pipeline.Run(context.Background(), "shop")

	require.NoError(t, result.Err)
	orders := result.Collections[1]
	assert.Equal(t, backup.StageConvert, orders.Stage)
	assert.ErrorIs(t, orders.Err, backup.ErrMalformedLine)
	assert.Contains(t, orders.Err.Error(), "line 2")

	assert.FileExists(t, orders.Intermediate, "intermediate stays for inspection")
	assert.NoFileExists(t, orders.Artifact)
	assert.True(t, result.Collections[2].OK(), "the next collection still runs")
}

func TestRunWriteFailureIsCollectionScoped(t *testing.T) {
	catalog, exporter := shopFixture()
	pipeline, dir := newPipeline(t, catalog, exporter)

	blocked := filepath.Join(dir, "shop", "users.json")
	require.NoError(t, os.MkdirAll(filepath.Join(blocked, "keep"), 0o755))

	result := pipeline.Run(context.Background(), "shop")

	require.NoError(t, result.Err)
	users := result.Collections[0]
	assert.Equal(t, backup.StageWrite, users.Stage)
	assert.ErrorIs(t, users.Err, backup.ErrWrite)
	assert.FileExists(t, users.Intermediate)
	assert.NoFileExists(t, blocked+".partial")
	assert.Equal(t, 2, result.Exported())
}

func TestRunAllContinuesAfterConnectionFailure(t *testing.T) {
	catalog, exporter := shopFixture()
	exporter.lines["blog.posts"] = []string{`{"title":"hello"}`}
	catalog.collections["blog"] = []string{"posts"}

	dir := t.TempDir()
	attempts := 0
	connector := backup.ConnectorFunc(func(context.Context, string) (backup.Catalog, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("server selection timeout")
		}
		return catalog, nil
	})
	pipeline := backup.NewPipeline(backup.Options{BackupDir: dir, ToolPath: "mongoexport"}, connector, exporter, nil)

	report := pipeline.RunAll(context.Background(), []string{"shop", " ", "blog"})

	require.Len(t, report.Databases, 2, "blank names are skipped")
	shop := report.Databases[0]
	assert.ErrorIs(t, shop.Err, backup.ErrConnect)
	assert.Empty(t, shop.Collections)
	assert.Empty(t, listDir(t, filepath.Join(dir, "shop")), "nothing written past the directory")

	blog := report.Databases[1]
	require.NoError(t, blog.Err)
	assert.Equal(t, []string{"posts.json"}, listDir(t, blog.OutputDir))

	assert.Equal(t, 1, report.FailedDatabases())
	assert.False(t, report.Failed())
	assert.False(t, report.Clean())
	assert.NotEmpty(t, report.RunID)
}

func TestRunAllDirectoryFailureSkipsDatabase(t *testing.T) {
	catalog, exporter := shopFixture()
	pipeline, dir := newPipeline(t, catalog, exporter)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blocked"), []byte("not a directory"), 0o644))

	report := pipeline.RunAll(context.Background(), []string{"blocked", "shop"})

	require.Len(t, report.Databases, 2)
	assert.ErrorIs(t, report.Databases[0].Err, backup.ErrOutputDir)
	assert.NoError(t, report.Databases[1].Err)
	assert.Equal(t, 3, report.Exported())
}

func TestRunListFailure(t *testing.T) {
	catalog := &fakeCatalog{listErr: errors.New("not authorized")}
	pipeline, _ := newPipeline(t, catalog, &fakeExporter{})

	report := pipeline.RunAll(context.Background(), []string{"shop"})

	assert.ErrorIs(t, report.Databases[0].Err, backup.ErrListCollections)
	assert.True(t, report.Failed())
	assert.Equal(t, 1, catalog.closed)
}

func TestRunRejectsUnsafeNames(t *testing.T) {
	catalog := &fakeCatalog{collections: map[string][]string{"shop": {"../escape", "users"}}}
	exporter := &fakeExporter{lines: map[string][]string{"shop.users": {`{"a":1}`}}}
	pipeline, dir := newPipeline(t, catalog, exporter)

	report := pipeline.RunAll(context.Background(), []string{"../etc", "shop"})

	assert.ErrorIs(t, report.Databases[0].Err, backup.ErrUnsafeName)
	shop := report.Databases[1]
	assert.ErrorIs(t, shop.Collections[0].Err, backup.ErrUnsafeName)
	assert.True(t, shop.Collections[1].OK())
	assert.Equal(t, []string{"shop"}, listDir(t, dir))
	assert.Len(t, exporter.calls, 1)
}

func TestRunDuplicateCollectionNamesLastWriteWins(t *testing.T) {
	catalog := &fakeCatalog{collections: map[string][]string{"shop": {"users", "users"}}}
	exporter := &fakeExporter{lines: map[string][]string{"shop.users": {`{"a":1}`}}}
	pipeline, _ := newPipeline(t, catalog, exporter)

	result := pipeline.Run(context.Background(), "shop")

	assert.Len(t, result.Collections, 2)
	assert.Equal(t, 2, result.Exported())
	assert.Equal(t, []string{"users.json"}, listDir(t, result.OutputDir))
}

func TestRerunOverwritesArtifacts(t *testing.T) {
	catalog, exporter := shopFixture()
	pipeline, _ := newPipeline(t, catalog, exporter)

	first := pipeline.Run(context.Background(), "shop")
	require.NoError(t, first.Err)

	exporter.lines["shop.users"] = []string{`{"name":"Grace"}`}
	second := pipeline.Run(context.Background(), "shop")
	require.NoError(t, second.Err)

	docs := readArtifact(t, filepath.Join(second.OutputDir, "users.json"))
	require.Len(t, docs, 1)
	assert.JSONEq(t, `{"name":"Grace"}`, string(docs[0]))
	assert.Equal(t, []string{"audit.json", "orders.json", "users.json"}, listDir(t, second.OutputDir))
}

func TestStartStreamsEventsInOrder(t *testing.T) {
	catalog, exporter := shopFixture()
	exporter.fail = map[string]error{"shop.orders": fmt.Errorf("%w: boom", backup.ErrToolExecution)}
	pipeline, _ := newPipeline(t, catalog, exporter)

	var kinds []backup.EventKind
	var last backup.Event
	for ev := range pipeline.Start(context.Background(), []string{"shop"}) {
		kinds = append(kinds, ev.Kind)
		last = ev
		if ev.Kind == backup.CollectionsListed {
			assert.Equal(t, 3, ev.Total)
		}
		if ev.Kind == backup.CollectionFailed {
			assert.Equal(t, "orders", ev.Collection)
			assert.Equal(t, 2, ev.Index)
		}
	}

	assert.Equal(t, []backup.EventKind{
		backup.RunStarted,
		backup.DatabaseStarted,
		backup.CollectionsListed,
		backup.CollectionStarted, backup.CollectionExported,
		backup.CollectionStarted, backup.CollectionFailed,
		backup.CollectionStarted, backup.CollectionExported,
		backup.DatabaseFinished,
		backup.RunFinished,
	}, kinds)

	require.NotNil(t, last.Report)
	assert.Equal(t, 2, last.Report.Exported())
	assert.Equal(t, 1, last.Report.FailedCollections())
	assert.Contains(t, last.String(), "Export completed for all databases")
}
