package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/viewgraph/pkg/catalog"
	"github.com/leapstack-labs/viewgraph/pkg/lineage"
)

// FormatVersion is the version stamped into structured documents.
const FormatVersion = "1.0"

// RenderTree renders the tree in the console line format shared with
// lineage.WriteTree. Reference leaves carry a "(ref)" suffix.
func RenderTree(tree *Node) ([]byte, error) {
	result := &lineage.TreeResult{Root: tree.Name}
	var walk func(n *Node, depth int)
	walk = func(n *Node, depth int) {
		result.Lines = append(result.Lines, lineage.Line{
			Name:     n.Name,
			Kind:     n.Kind,
			Depth:    depth,
			Expanded: len(n.Children) > 0,
			Ref:      n.Ref,
		})
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	walk(tree, 0)

	var buf bytes.Buffer
	if err := lineage.WriteTree(&buf, result); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// graphWalk visits every distinct node and edge of the tree in first-seen
// order, the order both graph renderers assign and emit ids in.
func graphWalk(tree *Node, declare func(id string, n *Node), edge func(from, to string)) {
	ids := make(map[string]string)
	edges := make(map[[2]string]struct{})

	idOf := func(n *Node) string {
		if id, ok := ids[n.Name]; ok {
			return id
		}
		id := fmt.Sprintf("N%d", len(ids)+1)
		ids[n.Name] = id
		declare(id, n)
		return id
	}

	tree.Walk(func(parent, node *Node) {
		to := idOf(node)
		if parent == nil {
			return
		}
		from := ids[parent.Name]
		key := [2]string{from, to}
		if _, dup := edges[key]; dup {
			return
		}
		edges[key] = struct{}{}
		edge(from, to)
	})
}

// RenderMermaid renders the tree as a top-down Mermaid flowchart. Views are
// rectangles, tables are rounded.
func RenderMermaid(tree *Node) []byte {
	var decls, links strings.Builder
	graphWalk(tree,
		func(id string, n *Node) {
			label := mermaidEscape(n.Name) + " - " + n.Kind.String()
			if n.Kind == catalog.KindView {
				fmt.Fprintf(&decls, "    %s[\"%s\"]\n", id, label)
			} else {
				fmt.Fprintf(&decls, "    %s(\"%s\")\n", id, label)
			}
		},
		func(from, to string) {
			fmt.Fprintf(&links, "    %s --> %s\n", from, to)
		})

	var buf bytes.Buffer
	buf.WriteString("graph TD\n")
	buf.WriteString(decls.String())
	buf.WriteString(links.String())
	return buf.Bytes()
}

func mermaidEscape(s string) string {
	return strings.ReplaceAll(s, `"`, "#quot;")
}

// RenderDOT renders the tree as a Graphviz digraph.
func RenderDOT(tree *Node) []byte {
	var decls, links strings.Builder
	names := make(map[string]string)
	graphWalk(tree,
		func(id string, n *Node) {
			names[id] = n.Name
			name := dotQuote(n.Name)
			label := dotQuote(n.Name + `\n(` + n.Kind.String() + ")")
			if n.Kind == catalog.KindView {
				fmt.Fprintf(&decls, "    %s [label=%s, fillcolor=lightblue, shape=box];\n", name, label)
			} else {
				fmt.Fprintf(&decls, "    %s [label=%s, fillcolor=lightgreen, shape=ellipse];\n", name, label)
			}
		},
		func(from, to string) {
			fmt.Fprintf(&links, "    %s -> %s;\n", dotQuote(names[from]), dotQuote(names[to]))
		})

	var buf bytes.Buffer
	buf.WriteString("digraph dependencies {\n")
	buf.WriteString("    rankdir=TB;\n")
	buf.WriteString("    node [shape=box, style=filled];\n")
	buf.WriteString(decls.String())
	buf.WriteString(links.String())
	buf.WriteString("}\n")
	return buf.Bytes()
}

// dotQuote quotes s as a DOT string. Backslash escapes such as \n are left
// alone so Graphviz can interpret them in labels.
func dotQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// Document is the structured export written as json or yaml.
type Document struct {
	Metadata Metadata `json:"export_metadata" yaml:"export_metadata"`
	Tree     *DocNode `json:"dependency_tree" yaml:"dependency_tree"`
}

// Metadata describes an export.
type Metadata struct {
	Catalog       string    `json:"catalog" yaml:"catalog"`
	RootObject    string    `json:"root_object" yaml:"root_object"`
	ExportDate    time.Time `json:"export_date" yaml:"export_date"`
	MaxDepth      *int      `json:"max_depth" yaml:"max_depth"`
	FormatVersion string    `json:"format_version" yaml:"format_version"`
}

// DocNode is one node of a structured document.
type DocNode struct {
	Name         string     `json:"name" yaml:"name"`
	Type         string     `json:"type" yaml:"type"`
	Ref          bool       `json:"ref,omitempty" yaml:"ref,omitempty"`
	Dependencies []*DocNode `json:"dependencies" yaml:"dependencies"`
}

// NewDocument wraps tree in export metadata. maxDepth 0 is recorded as null.
func NewDocument(catalogID string, tree *Node, maxDepth int, at time.Time) *Document {
	doc := &Document{
		Metadata: Metadata{
			Catalog:       catalogID,
			RootObject:    tree.Name,
			ExportDate:    at.UTC(),
			FormatVersion: FormatVersion,
		},
		Tree: toDocNode(tree),
	}
	if maxDepth > 0 {
		doc.Metadata.MaxDepth = &maxDepth
	}
	return doc
}

func toDocNode(n *Node) *DocNode {
	d := &DocNode{
		Name:         n.Name,
		Type:         n.Kind.Lower(),
		Ref:          n.Ref,
		Dependencies: make([]*DocNode, 0, len(n.Children)),
	}
	for _, c := range n.Children {
		d.Dependencies = append(d.Dependencies, toDocNode(c))
	}
	return d
}

// RenderJSON renders doc as indented JSON.
func RenderJSON(doc *Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RenderYAML renders doc as YAML.
func RenderYAML(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
