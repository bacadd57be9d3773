package lineage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/leapstack-labs/viewgraph/internal/dag"
	"github.com/leapstack-labs/viewgraph/pkg/catalog"
)

// Entry is the analyzed state of one object: its canonical name, kind and
// resolved direct dependencies (sorted by name).
type Entry struct {
	Name         string           `json:"name"`
	Kind         catalog.Kind     `json:"type"`
	Dependencies []catalog.Object `json:"dependencies"`
}

// BuildStats summarizes a whole-catalog build.
type BuildStats struct {
	Objects    int           `json:"objects"`
	Tables     int           `json:"tables"`
	Views      int           `json:"views"`
	Edges      int           `json:"edges"`
	Unresolved int           `json:"unresolved"`
	Failed     []string      `json:"failed,omitempty"`
	Orphans    []string      `json:"orphans,omitempty"`
	Unused     []string      `json:"unused,omitempty"`
	Cycles     [][]string    `json:"cycles,omitempty"`
	Levels     [][]string    `json:"levels,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Builder resolves extracted candidates against a catalog and caches the
// resulting dependency graph. Entries are kept until Invalidate or Reset.
// A Builder is safe for concurrent use.
type Builder struct {
	cat    catalog.Catalog
	logger *slog.Logger

	mu       sync.RWMutex
	graph    *dag.Graph
	analyzed map[string]struct{}
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets the logger used for unresolved names and unavailable
// definitions.
func WithLogger(logger *slog.Logger) BuilderOption {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBuilder creates a Builder over cat.
func NewBuilder(cat catalog.Catalog, opts ...BuilderOption) *Builder {
	b := &Builder{
		cat:      cat,
		logger:   slog.New(slog.DiscardHandler),
		graph:    dag.NewGraph(),
		analyzed: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Catalog returns the catalog the builder reads from.
func (b *Builder) Catalog() catalog.Catalog {
	return b.cat
}

// nameIndex maps lower-cased names to catalog objects.
type nameIndex map[string]catalog.Object

func (b *Builder) loadIndex(ctx context.Context) (nameIndex, error) {
	objects, err := b.cat.ListObjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog objects: %w", err)
	}
	idx := make(nameIndex, len(objects))
	for _, obj := range objects {
		key := strings.ToLower(obj.Name)
		// Exact-case duplicates keep the first spelling.
		if _, dup := idx[key]; !dup {
			idx[key] = obj
		}
	}
	return idx, nil
}

// Analyze computes and caches the direct dependencies of name. It returns a
// NotFoundError when the catalog does not know name.
func (b *Builder) Analyze(ctx context.Context, name string) ([]string, error) {
	entry, err := b.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	return entryNames(entry), nil
}

// DependenciesOf returns the cached direct dependencies of name, analyzing it
// first when needed. Tables always have none.
func (b *Builder) DependenciesOf(ctx context.Context, name string) ([]string, error) {
	return b.Analyze(ctx, name)
}

// Resolve returns the analyzed entry for name, running analysis on a cache
// miss. Lookups are case-insensitive and resolve to the catalog's spelling.
func (b *Builder) Resolve(ctx context.Context, name string) (*Entry, error) {
	if entry, ok := b.cached(name); ok {
		return entry, nil
	}

	obj, idx, err := b.lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	if entry, ok := b.cached(obj.Name); ok {
		return entry, nil
	}
	return b.analyze(ctx, obj, idx)
}

// DependentsOf returns the objects known to read name directly. The reverse
// index only covers analyzed views, so call BuildAll first for a complete
// answer.
func (b *Builder) DependentsOf(name string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.graph.GetChildren(b.canonicalLocked(name))
}

// Downstream returns every object that transitively reads name.
func (b *Builder) Downstream(name string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	id := b.canonicalLocked(name)
	return b.graph.GetAffectedNodes(b.graph.GetChildren(id))
}

// Upstream analyzes the transitive closure of name and returns every object
// it reads, directly or indirectly, sorted.
func (b *Builder) Upstream(ctx context.Context, name string) ([]string, error) {
	if _, err := b.Closure(ctx, name); err != nil {
		return nil, err
	}
	root, ok := b.cached(name)
	if !ok {
		return nil, &catalog.NotFoundError{Name: name}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.graph.GetUpstreamNodes(root.Name), nil
}

// Closure returns the direct dependency sets of name and every object it
// reaches, keyed by canonical name.
func (b *Builder) Closure(ctx context.Context, name string) (map[string][]string, error) {
	root, err := b.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}

	closure := map[string][]string{root.Name: entryNames(root)}
	stack := []*Entry{root}
	for len(stack) > 0 {
		entry := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, dep := range entry.Dependencies {
			if _, seen := closure[dep.Name]; seen {
				continue
			}
			child, err := b.Resolve(ctx, dep.Name)
			if err != nil {
				if catalog.IsNotFound(err) {
					// Vanished between listing and analysis.
					closure[dep.Name] = []string{}
					continue
				}
				return nil, err
			}
			closure[child.Name] = entryNames(child)
			stack = append(stack, child)
		}
	}
	return closure, nil
}

// BuildAll analyzes every catalog object. Per-object failures are recorded as
// zero dependencies; only an unreachable catalog or a canceled context aborts.
func (b *Builder) BuildAll(ctx context.Context) (*BuildStats, error) {
	start := time.Now()

	idx, err := b.loadIndex(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(idx))
	for _, obj := range idx {
		names = append(names, obj.Name)
	}
	sort.Strings(names)

	stats := &BuildStats{Objects: len(names)}
	for _, name := range names {
		obj := idx[strings.ToLower(name)]
		switch obj.Kind {
		case catalog.KindView:
			stats.Views++
		default:
			stats.Tables++
		}

		if _, ok := b.cached(obj.Name); ok {
			continue
		}
		_, res, err := b.analyzeCounting(ctx, obj, idx)
		if err != nil {
			return nil, err
		}
		stats.Unresolved += res.unresolved
		if res.unavailable {
			stats.Failed = append(stats.Failed, obj.Name)
		}
	}

	b.mu.RLock()
	stats.Edges = b.graph.EdgeCount()
	stats.Cycles = b.graph.Cycles()
	if len(stats.Cycles) == 0 {
		// Acyclic, so leveling cannot fail.
		stats.Levels, _ = b.graph.Levels()
	}
	nodes := b.graph.NodeCount()
	for _, id := range b.graph.GetRoots() {
		if node, ok := b.graph.GetNode(id); ok && node.Data == catalog.KindView {
			stats.Orphans = append(stats.Orphans, id)
		}
	}
	for _, id := range b.graph.GetLeaves() {
		if node, ok := b.graph.GetNode(id); ok && node.Data == catalog.KindTable {
			stats.Unused = append(stats.Unused, id)
		}
	}
	b.mu.RUnlock()

	stats.Duration = time.Since(start)
	b.logger.Debug("dependency graph built",
		slog.Int("objects", stats.Objects),
		slog.Int("nodes", nodes),
		slog.Int("edges", stats.Edges),
		slog.Int("failed", len(stats.Failed)),
		slog.Duration("duration", stats.Duration))
	return stats, nil
}

// Cycles returns the groups of objects that depend on each other circularly.
func (b *Builder) Cycles() [][]string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.graph.Cycles()
}

// Graph returns a copy of the current dependency graph.
func (b *Builder) Graph() *dag.Graph {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.graph.Clone()
}

// Invalidate drops the cached analysis of name so the next lookup re-reads
// the catalog. A node nothing else reads is removed from the graph; one that
// analyzed views still read keeps its incoming edges.
func (b *Builder) Invalidate(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.canonicalLocked(name)
	delete(b.analyzed, id)
	if len(b.graph.GetChildren(id)) == 0 {
		b.graph.RemoveNode(id)
		return
	}
	b.graph.RemoveParents(id)
}

// Reset drops every cached analysis.
func (b *Builder) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.graph.Clear()
	b.analyzed = make(map[string]struct{})
}

// lookup resolves name to a catalog object, falling back to a
// case-insensitive match against the full listing.
func (b *Builder) lookup(ctx context.Context, name string) (catalog.Object, nameIndex, error) {
	kind, err := b.cat.ObjectKind(ctx, name)
	if err != nil {
		return catalog.Object{}, nil, fmt.Errorf("failed to look up %s: %w", name, err)
	}
	if kind != catalog.KindNone {
		return catalog.Object{Name: name, Kind: kind}, nil, nil
	}

	idx, err := b.loadIndex(ctx)
	if err != nil {
		return catalog.Object{}, nil, err
	}
	obj, ok := idx[strings.ToLower(name)]
	if !ok {
		return catalog.Object{}, nil, &catalog.NotFoundError{Name: name}
	}
	return obj, idx, nil
}

func (b *Builder) analyze(ctx context.Context, obj catalog.Object, idx nameIndex) (*Entry, error) {
	entry, _, err := b.analyzeCounting(ctx, obj, idx)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

type outcome struct {
	unresolved  int
	unavailable bool
}

// analyzeCounting analyzes one object. An unavailable definition is recorded
// as zero dependencies and reported in the outcome, not as an error.
func (b *Builder) analyzeCounting(ctx context.Context, obj catalog.Object, idx nameIndex) (*Entry, outcome, error) {
	var out outcome
	if obj.Kind != catalog.KindView {
		return b.record(obj, nil), out, nil
	}

	def, err := b.cat.DefinitionText(ctx, obj.Name)
	if err != nil {
		if isFatal(ctx, err) {
			return nil, out, fmt.Errorf("failed to read definition of %s: %w", obj.Name, err)
		}
		b.logger.Warn("view definition unavailable, assuming no dependencies",
			slog.String("view", obj.Name), slog.String("error", err.Error()))
		out.unavailable = true
		return b.record(obj, nil), out, nil
	}

	candidates := ExtractDependencies(def)
	if len(candidates) > 0 && idx == nil {
		if idx, err = b.loadIndex(ctx); err != nil {
			return nil, out, err
		}
	}

	seen := make(map[string]struct{}, len(candidates))
	deps := make([]catalog.Object, 0, len(candidates))
	for _, candidate := range candidates {
		dep, ok := idx[strings.ToLower(candidate)]
		if !ok {
			out.unresolved++
			b.logger.Debug("dropping unresolved candidate",
				slog.String("view", obj.Name), slog.String("candidate", candidate))
			continue
		}
		if _, dup := seen[dep.Name]; dup {
			continue
		}
		seen[dep.Name] = struct{}{}
		deps = append(deps, catalog.Object{Name: dep.Name, Kind: dep.Kind})
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].Name < deps[j].Name })

	return b.record(obj, deps), out, nil
}

// record stores the forward edges of obj and marks it analyzed.
func (b *Builder) record(obj catalog.Object, deps []catalog.Object) *Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.graph.AddNode(obj.Name, obj.Kind)
	b.graph.RemoveParents(obj.Name)
	for _, dep := range deps {
		if !b.graph.HasNode(dep.Name) {
			b.graph.AddNode(dep.Name, dep.Kind)
		}
		// Both nodes exist, so AddEdge cannot fail.
		_ = b.graph.AddEdge(dep.Name, obj.Name)
	}
	b.analyzed[obj.Name] = struct{}{}

	if deps == nil {
		deps = []catalog.Object{}
	}
	return &Entry{Name: obj.Name, Kind: obj.Kind, Dependencies: deps}
}

// cached returns the entry for an analyzed name (exact spelling first, then
// case-insensitive).
func (b *Builder) cached(name string) (*Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	id := b.canonicalLocked(name)
	if _, ok := b.analyzed[id]; !ok {
		return nil, false
	}
	node, _ := b.graph.GetNode(id)
	parents := b.graph.GetParents(id)
	deps := make([]catalog.Object, 0, len(parents))
	for _, p := range parents {
		kind := catalog.KindNone
		if n, ok := b.graph.GetNode(p); ok {
			kind = n.Data.(catalog.Kind)
		}
		deps = append(deps, catalog.Object{Name: p, Kind: kind})
	}
	return &Entry{Name: id, Kind: node.Data.(catalog.Kind), Dependencies: deps}, true
}

// canonicalLocked maps name to the spelling stored in the graph. Callers
// must hold mu.
func (b *Builder) canonicalLocked(name string) string {
	if b.graph.HasNode(name) {
		return name
	}
	for _, node := range b.graph.GetAllNodes() {
		if strings.EqualFold(node.ID, name) {
			return node.ID
		}
	}
	return name
}

func entryNames(entry *Entry) []string {
	names := make([]string, len(entry.Dependencies))
	for i, dep := range entry.Dependencies {
		names[i] = dep.Name
	}
	return names
}

// isFatal reports whether err must abort an operation rather than degrade to
// zero dependencies.
func isFatal(ctx context.Context, err error) bool {
	return errors.Is(err, catalog.ErrCatalogUnreachable) ||
		errors.Is(err, catalog.ErrClosed) ||
		ctx.Err() != nil
}
