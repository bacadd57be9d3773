// Package export renders dependency subtrees into presentation formats.
//
// Unlike lineage.Traverser, the tree built here uses a visited set shared by
// the whole export: an object reached a second time anywhere in the tree is
// emitted as a reference leaf and never expanded again.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/leapstack-labs/viewgraph/pkg/catalog"
	"github.com/leapstack-labs/viewgraph/pkg/lineage"
)

// Format identifies an output format.
type Format string

// Supported formats.
const (
	FormatTree    Format = "tree"
	FormatMermaid Format = "mermaid"
	FormatDOT     Format = "dot"
	FormatPNG     Format = "png"
	FormatSVG     Format = "svg"
	FormatJSON    Format = "json"
	FormatYAML    Format = "yaml"
)

// Formats lists every supported format.
var Formats = []Format{FormatTree, FormatMermaid, FormatDOT, FormatPNG, FormatSVG, FormatJSON, FormatYAML}

// ParseFormat maps a user-supplied name (or common alias) to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "tree", "text", "txt":
		return FormatTree, nil
	case "mermaid", "mmd", "graph":
		return FormatMermaid, nil
	case "dot", "graphviz", "gv":
		return FormatDOT, nil
	case "png":
		return FormatPNG, nil
	case "svg":
		return FormatSVG, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported export format %q (supported: %v)", s, Formats)
	}
}

// Extension returns the file extension for the format.
func (f Format) Extension() string {
	switch f {
	case FormatTree:
		return "txt"
	case FormatMermaid:
		return "mmd"
	default:
		return string(f)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatSVG:
		return "image/svg+xml"
	case FormatJSON:
		return "application/json"
	case FormatYAML:
		return "application/yaml"
	case FormatDOT:
		return "text/vnd.graphviz; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// IsImage reports whether the format needs an ImageRenderer.
func (f Format) IsImage() bool {
	return f == FormatPNG || f == FormatSVG
}

// Node is one object in an export tree.
type Node struct {
	Name     string
	Kind     catalog.Kind
	Ref      bool
	Children []*Node
}

// Walk calls fn for n and every descendant in depth-first pre-order.
func (n *Node) Walk(fn func(parent, node *Node)) {
	var walk func(parent, node *Node)
	walk = func(parent, node *Node) {
		fn(parent, node)
		for _, c := range node.Children {
			walk(node, c)
		}
	}
	walk(nil, n)
}

// Request describes one export.
type Request struct {
	Root     string
	MaxDepth int
	Format   Format
}

// Result is a rendered export.
type Result struct {
	Root        string
	Format      Format
	ContentType string
	Data        []byte
	Nodes       int
	Edges       int
}

// Filename returns a suggested file name for the result.
func (r *Result) Filename() string {
	return fmt.Sprintf("%s_dependencies.%s", r.Root, r.Format.Extension())
}

// Exporter builds and renders dependency trees.
type Exporter struct {
	b      *lineage.Builder
	images ImageRenderer
	now    func() time.Time
	logger *slog.Logger
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithImageRenderer sets the renderer used for png and svg output.
func WithImageRenderer(r ImageRenderer) Option {
	return func(e *Exporter) {
		if r != nil {
			e.images = r
		}
	}
}

// WithClock overrides the export timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the exporter's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Exporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Exporter reading from b. Images are rendered with the
// Graphviz binary on PATH unless WithImageRenderer says otherwise.
func New(b *lineage.Builder, opts ...Option) *Exporter {
	e := &Exporter{
		b:      b,
		images: &GraphvizRenderer{},
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BuildTree builds the globally-scoped dependency tree of root. maxDepth
// bounds the number of levels below the root; 0 means unbounded.
func (e *Exporter) BuildTree(ctx context.Context, root string, maxDepth int) (*Node, error) {
	entry, err := e.b.Resolve(ctx, root)
	if err != nil {
		return nil, err
	}

	visited := make(map[string]struct{})
	var visit func(name string, kind catalog.Kind, depth int) (*Node, error)
	visit = func(name string, kind catalog.Kind, depth int) (*Node, error) {
		node := &Node{Name: name, Kind: kind}
		if _, seen := visited[name]; seen {
			node.Ref = true
			return node, nil
		}
		visited[name] = struct{}{}

		if kind != catalog.KindView || (maxDepth > 0 && depth >= maxDepth) {
			return node, nil
		}
		child, err := e.b.Resolve(ctx, name)
		if err != nil {
			if catalog.IsNotFound(err) {
				return node, nil
			}
			return nil, err
		}
		for _, dep := range child.Dependencies {
			c, err := visit(dep.Name, dep.Kind, depth+1)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, c)
		}
		return node, nil
	}

	return visit(entry.Name, entry.Kind, 0)
}

// Export builds the tree for req.Root and renders it in req.Format.
func (e *Exporter) Export(ctx context.Context, req Request) (*Result, error) {
	format := req.Format
	if format == "" {
		format = FormatTree
	}

	tree, err := e.BuildTree(ctx, req.Root, req.MaxDepth)
	if err != nil {
		return nil, err
	}

	var data []byte
	switch format {
	case FormatTree:
		data, err = RenderTree(tree)
	case FormatMermaid:
		data = RenderMermaid(tree)
	case FormatDOT:
		data = RenderDOT(tree)
	case FormatPNG, FormatSVG:
		data, err = e.images.Render(ctx, RenderDOT(tree), string(format))
	case FormatJSON:
		data, err = RenderJSON(e.document(tree, req))
	case FormatYAML:
		data, err = RenderYAML(e.document(tree, req))
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to render %s export of %s: %w", format, tree.Name, err)
	}

	nodes, edges := count(tree)
	e.logger.Debug("export rendered",
		slog.String("root", tree.Name),
		slog.String("format", string(format)),
		slog.Int("nodes", nodes),
		slog.Int("edges", edges),
		slog.Int("bytes", len(data)))

	return &Result{
		Root:        tree.Name,
		Format:      format,
		ContentType: format.ContentType(),
		Data:        data,
		Nodes:       nodes,
		Edges:       edges,
	}, nil
}

func (e *Exporter) document(tree *Node, req Request) *Document {
	return NewDocument(e.b.Catalog().ID(), tree, req.MaxDepth, e.now())
}

// count returns the number of distinct nodes and edges in the tree.
func count(tree *Node) (nodes, edges int) {
	seenNodes := make(map[string]struct{})
	seenEdges := make(map[[2]string]struct{})
	tree.Walk(func(parent, node *Node) {
		seenNodes[node.Name] = struct{}{}
		if parent != nil {
			seenEdges[[2]string{parent.Name, node.Name}] = struct{}{}
		}
	})
	return len(seenNodes), len(seenEdges)
}
