// Package codec converts between serialized tree descriptions and the
// in-memory model. Three front-ends share one wire schema: JSON, YAML, and
// markdown documents carrying a fenced ```dirtree block.
package codec

import (
	"fmt"

	"github.com/calder/dirtree/internal/tree"
)

// nodeWire is the serialized form of a single node. The schema matches the
// description format: {"name", "type", "content"?, "target"?, "children"?,
// "metadata"?}.
type nodeWire struct {
	Name     string         `json:"name" yaml:"name"`
	Type     string         `json:"type" yaml:"type"`
	Content  *string        `json:"content,omitempty" yaml:"content,omitempty"`
	Target   string         `json:"target,omitempty" yaml:"target,omitempty"`
	Children []nodeWire     `json:"children,omitempty" yaml:"children,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// docWire is the top-level description document.
type docWire struct {
	Root      nodeWire          `json:"root" yaml:"root"`
	Variables map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`
}

func fromWire(w nodeWire, path string) (*tree.Node, error) {
	kind, err := tree.ParseKind(w.Type)
	if err != nil {
		return nil, fmt.Errorf("node %q: %w", path, err)
	}

	n := &tree.Node{
		Name:     w.Name,
		Kind:     kind,
		Content:  w.Content,
		Target:   w.Target,
		Metadata: w.Metadata,
	}
	for _, cw := range w.Children {
		child, err := fromWire(cw, path+"/"+cw.Name)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, child)
	}
	return n, nil
}

func toWire(n *tree.Node) nodeWire {
	w := nodeWire{
		Name:     n.Name,
		Type:     string(n.Kind),
		Content:  n.Content,
		Target:   n.Target,
		Metadata: n.Metadata,
	}
	for _, c := range n.Children {
		w.Children = append(w.Children, toWire(c))
	}
	return w
}

// buildTree validates the decoded document into a Tree. Structural errors
// surface as tree.StructureError, so malformed descriptions fail identically
// across all three front-ends.
func buildTree(doc docWire, opts tree.Options) (*tree.Tree, error) {
	root, err := fromWire(doc.Root, doc.Root.Name)
	if err != nil {
		return nil, err
	}
	return tree.New(root, doc.Variables, opts)
}
