package lineage

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/viewgraph/internal/testutil"
	"github.com/leapstack-labs/viewgraph/pkg/catalog"
)

// exampleCatalog is the v1/v2 fixture: v1 reads t1 and t2, v2 reads v1.
func exampleCatalog() *catalog.Memory {
	return catalog.NewMemory("shop").
		AddTable("t1", "").
		AddTable("t2", "").
		AddView("v1", "CREATE VIEW v1 AS SELECT * FROM t1 JOIN t2 ON t1.id = t2.id").
		AddView("v2", "CREATE VIEW v2 AS SELECT * FROM v1")
}

func newTestBuilder(t *testing.T, cat catalog.Catalog) *Builder {
	t.Helper()
	return NewBuilder(cat, WithLogger(testutil.NewTestLogger(t)))
}

func TestBuilder_Analyze(t *testing.T) {
	ctx := context.Background()
	b := newTestBuilder(t, exampleCatalog())

	deps, err := b.Analyze(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, deps)

	deps, err = b.Analyze(ctx, "v2")
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, deps)
}

func TestBuilder_TablesHaveNoDependencies(t *testing.T) {
	ctx := context.Background()
	b := newTestBuilder(t, exampleCatalog())

	deps, err := b.DependenciesOf(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, deps)
	assert.NotNil(t, deps)
}

func TestBuilder_NotFound(t *testing.T) {
	b := newTestBuilder(t, exampleCatalog())

	_, err := b.Analyze(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, catalog.IsNotFound(err))

	var nf *catalog.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing", nf.Name)
}

func TestBuilder_ExistsWithoutDependenciesIsNotNotFound(t *testing.T) {
	cat := catalog.NewMemory("db").AddView("v_const", "CREATE VIEW v_const AS SELECT 1")
	b := newTestBuilder(t, cat)

	deps, err := b.DependenciesOf(context.Background(), "v_const")
	require.NoError(t, err)
	assert.Empty(t, deps)
}

func TestBuilder_DropsUnresolvedCandidates(t *testing.T) {
	cat := catalog.NewMemory("db").
		AddTable("orders", "").
		AddView("v", "SELECT * FROM orders JOIN other_db.external_table e ON 1=1")
	b := newTestBuilder(t, cat)

	deps, err := b.DependenciesOf(context.Background(), "v")
	require.NoError(t, err)
	assert.Equal(t, []string{"orders"}, deps)
	assert.False(t, b.Graph().HasNode("external_table"), "unresolved names are never stored")
}

func TestBuilder_CaseInsensitiveResolution(t *testing.T) {
	cat := catalog.NewMemory("db").
		AddTable("Orders", "").
		AddView("V_Orders", "select * from ORDERS")
	b := newTestBuilder(t, cat)
	ctx := context.Background()

	deps, err := b.DependenciesOf(ctx, "v_orders")
	require.NoError(t, err)
	assert.Equal(t, []string{"Orders"}, deps, "resolves to catalog spelling")

	entry, err := b.Resolve(ctx, "V_ORDERS")
	require.NoError(t, err)
	assert.Equal(t, "V_Orders", entry.Name)
	assert.Equal(t, catalog.KindView, entry.Kind)
}

func TestBuilder_SelfReference(t *testing.T) {
	cat := catalog.NewMemory("db").AddView("v_self", "SELECT * FROM v_self")
	b := newTestBuilder(t, cat)

	deps, err := b.DependenciesOf(context.Background(), "v_self")
	require.NoError(t, err)
	assert.Equal(t, []string{"v_self"}, deps, "self-loops are kept")
	assert.Equal(t, [][]string{{"v_self"}}, b.Cycles())
}

func TestBuilder_DefinitionUnavailable(t *testing.T) {
	cat := exampleCatalog()
	cat.FailDefinition("v1", errors.New("access denied"))
	logger, rec := testutil.NewRecordingLogger(t)
	b := NewBuilder(cat, WithLogger(logger))

	deps, err := b.DependenciesOf(context.Background(), "v1")
	require.NoError(t, err, "unavailable definitions are not escalated")
	assert.Empty(t, deps)

	warnings := rec.Entries(slog.LevelWarn)
	require.Len(t, warnings, 1)
	assert.Equal(t, "view definition unavailable, assuming no dependencies", warnings[0].Message)
	assert.Equal(t, "v1", warnings[0].Attrs["view"])
}

func TestBuilder_CatalogUnreachable(t *testing.T) {
	cat := exampleCatalog()
	cat.SetDown(errors.New("connection refused"))
	b := newTestBuilder(t, cat)

	_, err := b.DependenciesOf(context.Background(), "v1")
	require.ErrorIs(t, err, catalog.ErrCatalogUnreachable)

	_, err = b.BuildAll(context.Background())
	require.ErrorIs(t, err, catalog.ErrCatalogUnreachable)
}

func TestBuilder_CachesUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	cat := exampleCatalog()
	b := newTestBuilder(t, cat)

	deps, err := b.DependenciesOf(ctx, "v2")
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, deps)

	cat.AddView("v2", "SELECT * FROM t1")
	deps, err = b.DependenciesOf(ctx, "v2")
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, deps, "no automatic invalidation")

	b.Invalidate("v2")
	deps, err = b.DependenciesOf(ctx, "v2")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, deps)

	cat.AddView("v2", "SELECT * FROM t2")
	b.Reset()
	deps, err = b.DependenciesOf(ctx, "v2")
	require.NoError(t, err)
	assert.Equal(t, []string{"t2"}, deps)
}

func TestBuilder_BuildAll(t *testing.T) {
	cat := exampleCatalog().
		AddTable("t_unused", "").
		AddView("v_broken", "SELECT * FROM t1").
		AddView("v_empty", "SELECT 1").
		AddView("v_noise", "SELECT * FROM nowhere JOIN t1 ON 1=1")
	cat.FailDefinition("v_broken", errors.New("permission denied"))
	b := newTestBuilder(t, cat)

	stats, err := b.BuildAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 8, stats.Objects)
	assert.Equal(t, 3, stats.Tables)
	assert.Equal(t, 5, stats.Views)
	assert.Equal(t, 4, stats.Edges) // v1->t1, v1->t2, v2->v1, v_noise->t1
	assert.Equal(t, 1, stats.Unresolved)
	assert.Equal(t, []string{"v_broken"}, stats.Failed)
	assert.Equal(t, []string{"v_broken", "v_empty"}, stats.Orphans)
	assert.Equal(t, []string{"t_unused"}, stats.Unused)
	assert.Empty(t, stats.Cycles)

	assert.Equal(t, []string{"v1", "v_noise"}, b.DependentsOf("t1"))
	assert.Equal(t, []string{"v1", "v2", "v_noise"}, b.Downstream("t1"))
	assert.Empty(t, b.DependentsOf("v2"))

	require.Len(t, stats.Levels, 3)
	assert.Equal(t, []string{"t1", "t2", "t_unused", "v_broken", "v_empty"}, stats.Levels[0])
	assert.Equal(t, []string{"v1", "v_noise"}, stats.Levels[1])
	assert.Equal(t, []string{"v2"}, stats.Levels[2])
}

func TestBuilder_BuildAll_ReportsCycles(t *testing.T) {
	cat := catalog.NewMemory("db").
		AddView("a", "SELECT * FROM b").
		AddView("b", "SELECT * FROM a")
	b := newTestBuilder(t, cat)

	stats, err := b.BuildAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}}, stats.Cycles)
	assert.Empty(t, stats.Levels, "cyclic graphs have no levels")
}

func TestBuilder_InvalidateRemovesUnreadNodes(t *testing.T) {
	ctx := context.Background()
	b := newTestBuilder(t, exampleCatalog())
	_, err := b.DependenciesOf(ctx, "v2")
	require.NoError(t, err)
	_, err = b.DependenciesOf(ctx, "v1")
	require.NoError(t, err)

	b.Invalidate("v1")
	g := b.Graph()
	assert.True(t, g.HasNode("v1"), "v2 still reads v1")
	assert.Empty(t, g.GetParents("v1"))
	assert.Equal(t, []string{"v2"}, b.DependentsOf("v1"))

	b.Invalidate("v2")
	assert.False(t, b.Graph().HasNode("v2"), "nothing reads v2")
	assert.Empty(t, b.DependentsOf("v1"))

	deps, err := b.DependenciesOf(ctx, "v2")
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, deps)
}

func TestBuilder_Closure(t *testing.T) {
	b := newTestBuilder(t, exampleCatalog())

	closure, err := b.Closure(context.Background(), "v2")
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"v2": {"v1"},
		"v1": {"t1", "t2"},
		"t1": {},
		"t2": {},
	}, closure)

	upstream, err := b.Upstream(context.Background(), "v2")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2", "v1"}, upstream)
}

func TestBuilder_GraphIsACopy(t *testing.T) {
	b := newTestBuilder(t, exampleCatalog())
	_, err := b.Analyze(context.Background(), "v1")
	require.NoError(t, err)

	g := b.Graph()
	g.Clear()
	assert.Equal(t, []string{"v1"}, b.DependentsOf("t1"))
}

func TestBuilder_ConcurrentUse(t *testing.T) {
	ctx := context.Background()
	b := newTestBuilder(t, exampleCatalog())

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			deps, err := b.DependenciesOf(ctx, "v2")
			assert.NoError(t, err)
			assert.Equal(t, []string{"v1"}, deps)
			_ = b.Cycles()
		}()
	}
	wg.Wait()
}
