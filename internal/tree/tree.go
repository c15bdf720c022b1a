package tree

import "fmt"

// StructureError reports a malformed or invalid tree at construction time.
// It is always fatal: no partial correctness argument holds for an invalid
// description.
type StructureError struct {
	// Path is the slash-joined location of the offending node, relative to
	// the root. Empty for the root itself.
	Path   string
	Reason string
}

func (e *StructureError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid tree: %s", e.Reason)
	}
	return fmt.Sprintf("invalid tree at %q: %s", e.Path, e.Reason)
}

// Options fixes per-run model behavior.
type Options struct {
	// CaseInsensitive folds sibling names before uniqueness checks. The
	// policy is fixed for the lifetime of the tree regardless of the host
	// filesystem.
	CaseInsensitive bool
}

// Tree is a validated, rooted node structure plus the variable mapping used
// by the template engine. The root node must be a directory; its own name is
// ignored and stands for the mount point supplied at build or scan time.
type Tree struct {
	Root      *Node
	Variables map[string]string

	opts Options
}

// New validates the node structure and wraps it in a Tree. Construction
// fails with *StructureError on any rule violation; a Tree that exists is
// structurally sound.
func New(root *Node, variables map[string]string, opts Options) (*Tree, error) {
	if root == nil {
		return nil, &StructureError{Reason: "missing root node"}
	}
	if root.Kind != Directory {
		return nil, &StructureError{Path: root.Name, Reason: "root node must be a directory"}
	}
	// The root name is ignored structurally but must still be a legal
	// segment so serialized output stays loadable.
	if err := root.validate(root.Name, opts.CaseInsensitive); err != nil {
		return nil, err
	}
	return &Tree{Root: root, Variables: variables, opts: opts}, nil
}

// Options returns the per-run model options the tree was built with.
func (t *Tree) Options() Options { return t.opts }

// Revalidate re-runs construction-time validation. The builder calls this
// before touching the filesystem so a tree mutated after construction cannot
// slip past the invariants.
func (t *Tree) Revalidate() error {
	if t.Root == nil {
		return &StructureError{Reason: "missing root node"}
	}
	return t.Root.validate(t.Root.Name, t.opts.CaseInsensitive)
}

// MergedVariables returns the tree's variable mapping with overrides
// applied on top. Neither input map is mutated.
func (t *Tree) MergedVariables(overrides map[string]string) map[string]string {
	merged := make(map[string]string, len(t.Variables)+len(overrides))
	for k, v := range t.Variables {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// WalkFunc is invoked once per node during traversal. segments holds the
// node names from (and excluding) the root down to and including the node
// itself, in declaration order.
type WalkFunc func(segments []string, n *Node) error

// Walk traverses the tree depth-first in pre-order: a directory is visited
// before its children, children in declaration order. The root node itself
// is not visited (its name is the mount point). Returning an error from fn
// stops the walk and propagates the error.
func (t *Tree) Walk(fn WalkFunc) error {
	return walkChildren(nil, t.Root, fn)
}

func walkChildren(segments []string, n *Node, fn WalkFunc) error {
	for _, child := range n.Children {
		childSegs := append(append([]string{}, segments...), child.Name)
		if err := fn(childSegs, child); err != nil {
			return err
		}
		if child.Kind == Directory {
			if err := walkChildren(childSegs, child, fn); err != nil {
				return err
			}
		}
	}
	return nil
}
