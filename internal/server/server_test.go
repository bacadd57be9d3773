package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/viewgraph/internal/search"
	"github.com/leapstack-labs/viewgraph/internal/server/notifier"
	"github.com/leapstack-labs/viewgraph/internal/state"
	"github.com/leapstack-labs/viewgraph/internal/testutil"
	"github.com/leapstack-labs/viewgraph/internal/watch"
	"github.com/leapstack-labs/viewgraph/pkg/catalog"
	"github.com/leapstack-labs/viewgraph/pkg/lineage"
	"github.com/leapstack-labs/viewgraph/pkg/snapshot"
)

type fixture struct {
	mem    *catalog.Memory
	cache  *catalog.Cached
	store  *state.SQLiteStore
	server *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := testutil.NewTestLogger(t)

	mem := catalog.NewMemory("shop").
		AddTable("t1", "raw orders").
		AddTable("customers", "").
		AddView("v1", "SELECT * FROM t1").
		AddView("v2", "SELECT * FROM v1 JOIN t1 ON 1=1 JOIN customers c ON 1=1").
		SetColumns("t1",
			catalog.Column{Name: "id", Type: "INTEGER"},
			catalog.Column{Name: "total", Type: "REAL", Nullable: true, Comment: "gross"})
	cache := catalog.NewCached(mem, 64, time.Hour)

	store, err := state.OpenMigrated(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	srv := New(Config{
		Builder: lineage.NewBuilder(cache, lineage.WithLogger(logger)),
		Cache:   cache,
		Differ:  snapshot.NewDiffer(mem, snapshot.WithLogger(logger)),
		Store:   store,
		Logger:  logger,
	})
	return &fixture{mem: mem, cache: cache, store: store, server: srv}
}

func (f *fixture) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "shop", body["catalog"])
}

func TestObjects(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/objects")
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[search.Result](t, rec)
	assert.Equal(t, 4, all.Total)
	assert.False(t, all.HasMore)

	rec = f.do(t, http.MethodGet, "/api/objects?q=v&limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[search.Result](t, rec)
	require.Len(t, page.Matches, 1)
	assert.Equal(t, "v1", page.Matches[0].Name)
	assert.True(t, page.HasMore)

	rec = f.do(t, http.MethodGet, "/api/objects?limit=-3")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestObject(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/objects/v2")
	require.Equal(t, http.StatusOK, rec.Code)
	obj := decode[ObjectResponse](t, rec)
	assert.Equal(t, ObjectResponse{Name: "v2", Kind: catalog.KindView}, obj)

	rec = f.do(t, http.MethodGet, "/api/objects/T1")
	require.Equal(t, http.StatusOK, rec.Code)
	obj = decode[ObjectResponse](t, rec)
	assert.Equal(t, ObjectResponse{Name: "t1", Kind: catalog.KindTable}, obj, "catalog spelling")

	rec = f.do(t, http.MethodGet, "/api/objects/ghost")
	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decode[errorResponse](t, rec)
	assert.Equal(t, "not_found", body.Code)
	assert.Equal(t, "ghost", body.Object)
}

func TestColumns(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/objects/T1/columns")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[ColumnsResponse](t, rec)
	assert.Equal(t, ColumnsResponse{
		Name: "t1",
		Kind: catalog.KindTable,
		Columns: []catalog.Column{
			{Name: "id", Type: "INTEGER"},
			{Name: "total", Type: "REAL", Nullable: true, Comment: "gross"},
		},
	}, body)

	rec = f.do(t, http.MethodGet, "/api/objects/v1/columns")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"columns": []`)

	rec = f.do(t, http.MethodGet, "/api/objects/ghost/columns")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "ghost", decode[errorResponse](t, rec).Object)

	f.mem.SetDown(errors.New("connection refused"))
	f.cache.Purge()
	f.server.builder.Reset()
	rec = f.do(t, http.MethodGet, "/api/objects/t1/columns")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDependencies(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/objects/v2/dependencies")
	require.Equal(t, http.StatusOK, rec.Code)
	direct := decode[DependenciesResponse](t, rec)
	assert.Equal(t, "v2", direct.Name)
	assert.Equal(t, catalog.KindView, direct.Kind)
	names := make([]string, 0, len(direct.Dependencies))
	for _, d := range direct.Dependencies {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"customers", "t1", "v1"}, names)

	rec = f.do(t, http.MethodGet, "/api/objects/v2/dependencies?recursive=true")
	require.Equal(t, http.StatusOK, rec.Code)
	tree := decode[lineage.TreeResult](t, rec)
	// Path-scoped: t1 appears under v2 and again under v1.
	var t1 int
	for _, l := range tree.Lines {
		if l.Name == "t1" {
			t1++
		}
	}
	assert.Equal(t, 2, t1)

	rec = f.do(t, http.MethodGet, "/api/objects/v2/dependencies?recursive&depth=1")
	require.Equal(t, http.StatusOK, rec.Code)
	shallow := decode[lineage.TreeResult](t, rec)
	assert.Len(t, shallow.Lines, 4)

	rec = f.do(t, http.MethodGet, "/api/objects/v2/dependencies?recursive=maybe")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/objects/ghost/dependencies")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDependents(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/objects/t1/dependents")
	require.Equal(t, http.StatusOK, rec.Code)
	direct := decode[DependentsResponse](t, rec)
	assert.Equal(t, []string{"v1", "v2"}, direct.Dependents)
	assert.False(t, direct.Transitive)

	rec = f.do(t, http.MethodGet, "/api/objects/customers/dependents?transitive=1")
	require.Equal(t, http.StatusOK, rec.Code)
	trans := decode[DependentsResponse](t, rec)
	assert.Equal(t, []string{"v2"}, trans.Dependents)

	rec = f.do(t, http.MethodGet, "/api/objects/v2/dependents")
	require.Equal(t, http.StatusOK, rec.Code)
	none := decode[DependentsResponse](t, rec)
	assert.Equal(t, []string{}, none.Dependents)
}

func TestExport(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/objects/v2/export?format=mermaid")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "graph TD\n"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "v2_dependencies.mmd")
	assert.Equal(t, "4", rec.Header().Get("X-Export-Nodes"))

	rec = f.do(t, http.MethodGet, "/api/objects/v2/export?format=json&depth=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var doc struct {
		Metadata struct {
			MaxDepth *int `json:"max_depth"`
		} `json:"export_metadata"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.NotNil(t, doc.Metadata.MaxDepth)
	assert.Equal(t, 1, *doc.Metadata.MaxDepth)

	rec = f.do(t, http.MethodGet, "/api/objects/v2/export?format=bmp")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/objects/ghost/export")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnreachable(t *testing.T) {
	f := newFixture(t)
	f.mem.SetDown(errors.New("connection refused"))

	rec := f.do(t, http.MethodGet, "/api/objects/v2/dependencies")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "catalog_unreachable", decode[errorResponse](t, rec).Code)
}

func TestDelta(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Nothing stored yet: bootstrap delta.
	rec := f.do(t, http.MethodGet, "/api/snapshots/delta")
	require.Equal(t, http.StatusOK, rec.Code)
	boot := decode[DeltaResponse](t, rec)
	assert.Nil(t, boot.Previous)
	assert.True(t, boot.Delta.HasChanges)
	assert.Equal(t, []string{"customers", "t1"}, boot.Delta.AddedTables)

	// Store the current state, then drift.
	_, err := watch.New(snapshot.NewDiffer(f.mem), f.store).Tick(ctx)
	require.NoError(t, err)
	f.mem.AddTable("t2", "")

	rec = f.do(t, http.MethodGet, "/api/snapshots/delta")
	require.Equal(t, http.StatusOK, rec.Code)
	drift := decode[DeltaResponse](t, rec)
	require.NotNil(t, drift.Previous)
	assert.Equal(t, 4, drift.Previous.TotalCount)
	assert.Equal(t, 5, drift.Current.TotalCount)
	assert.Equal(t, []string{"t2"}, drift.Delta.AddedTables)
	assert.Empty(t, drift.Delta.RemovedViews)
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/objects/v3")
	require.Equal(t, http.StatusNotFound, rec.Code)

	// The cached catalog still answers "absent" until refreshed.
	f.mem.AddView("v3", "SELECT * FROM v2")
	rec = f.do(t, http.MethodGet, "/api/objects/v3")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/refresh")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/objects/v3")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetrics(t *testing.T) {
	f := newFixture(t)

	f.do(t, http.MethodGet, "/api/objects/v2")
	f.do(t, http.MethodPost, "/api/refresh")

	rec := f.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `viewgraph_http_requests_total{method="GET",route="/api/objects/{name}",status="200"} 1`)
	assert.Contains(t, body, `viewgraph_refreshes_total{reason="api"} 1`)
	assert.Contains(t, body, "viewgraph_catalog_cache_misses_total")
}

func TestPublishDrift(t *testing.T) {
	f := newFixture(t)
	ch := f.server.Notifier().Subscribe()
	defer f.server.Notifier().Unsubscribe(ch)

	curr := snapshot.New("shop", time.Now().UTC(), []string{"t1", "t2"}, nil)
	prev := snapshot.New("shop", time.Now().UTC(), []string{"t1"}, nil)
	f.server.PublishDrift(watch.Result{Previous: prev, Current: curr, Delta: snapshot.Compare(prev, curr)})

	select {
	case ev := <-ch:
		assert.Equal(t, notifier.EventDrift, ev.Type)
		require.NotNil(t, ev.Delta)
		assert.Equal(t, []string{"t2"}, ev.Delta.AddedTables)
	case <-time.After(time.Second):
		t.Fatal("no drift event")
	}

	// No changes, no event.
	f.server.PublishDrift(watch.Result{Previous: curr, Current: curr, Delta: snapshot.Compare(curr, curr)})
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestEvents(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	lines := bufio.NewScanner(resp.Body)
	readUntil := func(substr string) {
		t.Helper()
		for lines.Scan() {
			if strings.Contains(lines.Text(), substr) {
				return
			}
		}
		t.Fatalf("stream ended before %q", substr)
	}

	readUntil(`"connected"`)

	require.Eventually(t, func() bool { return f.server.Notifier().Listeners() == 1 }, time.Second, 10*time.Millisecond)
	f.server.Refresh("test")
	readUntil(`"refresh"`)
}

func TestServeListener_WatchCatalogFile(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "warehouse.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("v1"), 0o600))

	logger := testutil.NewTestLogger(t)
	mem := catalog.NewMemory("warehouse").AddTable("t1", "")
	srv := New(Config{
		Builder:   lineage.NewBuilder(mem, lineage.WithLogger(logger)),
		WatchPath: dbPath,
		Registry:  prometheus.NewRegistry(),
		Logger:    logger,
	})
	ch := srv.Notifier().Subscribe()
	defer srv.Notifier().Unsubscribe(ch)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ServeListener(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Unrelated files in the directory are ignored; the database file is not.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600)
		_ = os.WriteFile(dbPath, []byte(time.Now().String()), 0o600)
		select {
		case ev := <-ch:
			return ev.Type == notifier.EventRefresh && ev.Reason == "file_change"
		case <-time.After(500 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestBelongsTo(t *testing.T) {
	assert.True(t, belongsTo("warehouse.db", "warehouse.db"))
	assert.True(t, belongsTo("warehouse.db-wal", "warehouse.db"))
	assert.True(t, belongsTo("warehouse.db-journal", "warehouse.db"))
	assert.False(t, belongsTo("other.db", "warehouse.db"))
}
