// Package tree defines the in-memory model for a declarative filesystem
// tree: nodes (file, directory, symlink), the rooted Tree that carries
// template variables, and validate-on-construct semantics.
//
// The model is pure data. It performs no I/O; the builder and scanner
// packages materialize and reconstruct trees against a filesystem.
package tree

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Kind identifies the type of a filesystem entry. The set is closed:
// traversal code switches exhaustively on these three values.
type Kind string

const (
	// File is a regular file, optionally carrying content.
	File Kind = "file"
	// Directory contains an ordered sequence of child nodes.
	Directory Kind = "directory"
	// Symlink records a link target string, not resolved at build time.
	Symlink Kind = "symlink"
)

// ParseKind converts a wire-format type string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case File, Directory, Symlink:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown node type %q (want file, directory or symlink)", s)
}

// Node represents one filesystem entry in the declarative tree.
//
// Content is a pointer so that "absent" (create an empty file / content not
// captured) is distinguishable from an explicit empty string.
type Node struct {
	Name     string
	Kind     Kind
	Content  *string
	Target   string
	Children []*Node
	Metadata map[string]any
}

// ValidName reports whether name is acceptable as a single path segment:
// non-empty, not "." or "..", no path separators, not absolute.
func ValidName(name string) error {
	if name == "" {
		return fmt.Errorf("empty name")
	}
	if name == "." || name == ".." {
		return fmt.Errorf("invalid name %q", name)
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("name %q contains a path separator", name)
	}
	if filepath.IsAbs(name) {
		return fmt.Errorf("name %q is an absolute path", name)
	}
	return nil
}

// validate checks the node and its subtree against the structural rules.
// path is the slash-joined location used in error messages; caseInsensitive
// selects the sibling-uniqueness fold.
func (n *Node) validate(path string, caseInsensitive bool) error {
	if err := ValidName(n.Name); err != nil {
		return &StructureError{Path: path, Reason: err.Error()}
	}

	switch n.Kind {
	case File:
		if len(n.Children) > 0 {
			return &StructureError{Path: path, Reason: "file node has children"}
		}
	case Directory:
		if n.Content != nil {
			return &StructureError{Path: path, Reason: "directory node has content"}
		}
	case Symlink:
		if n.Target == "" {
			return &StructureError{Path: path, Reason: "symlink node has no target"}
		}
		if len(n.Children) > 0 {
			return &StructureError{Path: path, Reason: "symlink node has children"}
		}
		if n.Content != nil {
			return &StructureError{Path: path, Reason: "symlink node has content"}
		}
	default:
		return &StructureError{Path: path, Reason: fmt.Sprintf("unknown kind %q", n.Kind)}
	}

	seen := make(map[string]string, len(n.Children))
	for _, child := range n.Children {
		childPath := joinPath(path, child.Name)
		key := child.Name
		if caseInsensitive {
			key = strings.ToLower(key)
		}
		if prev, dup := seen[key]; dup {
			return &StructureError{
				Path:   childPath,
				Reason: fmt.Sprintf("sibling name collides with %q", prev),
			}
		}
		seen[key] = child.Name

		if err := child.validate(childPath, caseInsensitive); err != nil {
			return err
		}
	}
	return nil
}

func joinPath(base, name string) string {
	if base == "" {
		return name
	}
	return base + "/" + name
}
