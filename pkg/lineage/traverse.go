package lineage

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/leapstack-labs/viewgraph/pkg/catalog"
)

// Dependency is one direct dependency of an object.
type Dependency struct {
	Name        string       `json:"name"`
	Kind        catalog.Kind `json:"type"`
	HasChildren bool         `json:"has_children"`
}

// Line is one row of a depth-first dependency tree. Depth 0 is the root.
type Line struct {
	Name     string       `json:"name"`
	Kind     catalog.Kind `json:"type"`
	Depth    int          `json:"depth"`
	Expanded bool         `json:"expanded"`
	Circular bool         `json:"circular,omitempty"`
	// Ref marks a node already expanded elsewhere in a globally-scoped export.
	Ref bool `json:"ref,omitempty"`
}

// TreeResult is the ordered output of Traverser.Tree. Lines[0] is the root.
type TreeResult struct {
	Root     string `json:"root"`
	MaxDepth int    `json:"max_depth"`
	Lines    []Line `json:"lines"`
}

// Traverser walks the dependency graph with path-scoped cycle detection: a
// name is only treated as a repeat while it is on the current branch, so the
// same object reached from two siblings is expanded under both.
type Traverser struct {
	b *Builder
}

// NewTraverser creates a Traverser over b.
func NewTraverser(b *Builder) *Traverser {
	return &Traverser{b: b}
}

// Direct returns the direct dependencies of root, sorted by name.
func (t *Traverser) Direct(ctx context.Context, root string) ([]Dependency, error) {
	entry, err := t.b.Resolve(ctx, root)
	if err != nil {
		return nil, err
	}
	return toDependencies(entry), nil
}

type frame struct {
	name  string
	depth int
	deps  []Dependency
	next  int
}

// Tree expands root depth-first. maxDepth bounds the number of levels below
// the root; 0 means unbounded, in which case cycle detection alone
// guarantees termination.
func (t *Traverser) Tree(ctx context.Context, root string, maxDepth int) (*TreeResult, error) {
	entry, err := t.b.Resolve(ctx, root)
	if err != nil {
		return nil, err
	}

	result := &TreeResult{
		Root:     entry.Name,
		MaxDepth: maxDepth,
		Lines:    []Line{{Name: entry.Name, Kind: entry.Kind}},
	}

	onPath := map[string]int{entry.Name: 1}
	stack := []frame{{name: entry.Name, deps: toDependencies(entry)}}
	result.Lines[0].Expanded = len(stack[0].deps) > 0

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next >= len(top.deps) {
			onPath[top.name]--
			stack = stack[:len(stack)-1]
			continue
		}
		dep := top.deps[top.next]
		top.next++
		depth := top.depth + 1

		result.Lines = append(result.Lines, Line{Name: dep.Name, Kind: dep.Kind, Depth: depth})
		idx := len(result.Lines) - 1

		if onPath[dep.Name] > 0 {
			result.Lines[idx].Circular = true
			continue
		}
		if dep.Kind != catalog.KindView || (maxDepth > 0 && depth >= maxDepth) {
			continue
		}

		child, err := t.b.Resolve(ctx, dep.Name)
		if err != nil {
			if catalog.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		deps := toDependencies(child)
		if len(deps) == 0 {
			continue
		}
		result.Lines[idx].Expanded = true
		onPath[dep.Name]++
		stack = append(stack, frame{name: dep.Name, depth: depth, deps: deps})
	}

	return result, nil
}

func toDependencies(entry *Entry) []Dependency {
	deps := make([]Dependency, len(entry.Dependencies))
	for i, d := range entry.Dependencies {
		deps[i] = Dependency{Name: d.Name, Kind: d.Kind, HasChildren: d.Kind == catalog.KindView}
	}
	return deps
}

const indent = "    "

// FormatLine renders one tree line in console form: four spaces per level,
// "->" after nodes with children, and a suffix for repeats.
func FormatLine(l Line) string {
	var sb strings.Builder
	sb.WriteString(strings.Repeat(indent, l.Depth))
	sb.WriteString(l.Name)
	if l.Expanded {
		sb.WriteString("->")
	}
	switch {
	case l.Circular:
		sb.WriteString(" (circular)")
	case l.Ref:
		sb.WriteString(" (ref)")
	}
	return sb.String()
}

// WriteTree writes result in console form.
func WriteTree(w io.Writer, result *TreeResult) error {
	bw := bufio.NewWriter(w)
	for _, l := range result.Lines {
		if _, err := fmt.Fprintln(bw, FormatLine(l)); err != nil {
			return err
		}
	}
	if len(result.Lines) == 1 {
		if _, err := fmt.Fprintln(bw, indent+"(no dependencies)"); err != nil {
			return err
		}
	}
	return bw.Flush()
}
