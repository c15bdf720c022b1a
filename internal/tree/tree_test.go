package tree

import (
	"errors"
	"strings"
	"testing"
)

func strptr(s string) *string { return &s }

func dir(name string, children ...*Node) *Node {
	return &Node{Name: name, Kind: Directory, Children: children}
}

func file(name string, content *string) *Node {
	return &Node{Name: name, Kind: File, Content: content}
}

// TestNewValidTree verifies construction of a well-formed tree
func TestNewValidTree(t *testing.T) {
	root := dir("root",
		dir("src",
			file("main.go", strptr("package main\n")),
			file("empty.txt", nil),
		),
		&Node{Name: "latest", Kind: Symlink, Target: "src"},
	)

	tr, err := New(root, map[string]string{"user": "Ada"}, Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if tr.Root != root {
		t.Error("Root not retained")
	}
	if tr.Variables["user"] != "Ada" {
		t.Errorf("Variables[user] = %q, want %q", tr.Variables["user"], "Ada")
	}
}

// TestNewStructureErrors checks that each structural rule violation fails
// construction with a StructureError
func TestNewStructureErrors(t *testing.T) {
	tests := []struct {
		name   string
		root   *Node
		reason string
	}{
		{
			name:   "nil root",
			root:   nil,
			reason: "missing root",
		},
		{
			name:   "root not a directory",
			root:   file("root", nil),
			reason: "must be a directory",
		},
		{
			name:   "empty child name",
			root:   dir("root", file("", nil)),
			reason: "empty name",
		},
		{
			name:   "dot name",
			root:   dir("root", dir(".")),
			reason: "invalid name",
		},
		{
			name:   "dotdot name",
			root:   dir("root", dir("..")),
			reason: "invalid name",
		},
		{
			name:   "separator in name",
			root:   dir("root", file("a/b", nil)),
			reason: "path separator",
		},
		{
			name:   "sibling collision",
			root:   dir("root", file("x", nil), dir("x")),
			reason: "collides",
		},
		{
			name: "file with children",
			root: dir("root", &Node{Name: "f", Kind: File, Children: []*Node{file("c", nil)}}),
			reason: "file node has children",
		},
		{
			name:   "directory with content",
			root:   dir("root", &Node{Name: "d", Kind: Directory, Content: strptr("x")}),
			reason: "directory node has content",
		},
		{
			name:   "symlink without target",
			root:   dir("root", &Node{Name: "l", Kind: Symlink}),
			reason: "no target",
		},
		{
			name:   "unknown kind",
			root:   dir("root", &Node{Name: "z", Kind: Kind("socket")}),
			reason: "unknown kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.root, nil, Options{})
			if err == nil {
				t.Fatal("New() expected error, got nil")
			}
			var se *StructureError
			if !errors.As(err, &se) {
				t.Fatalf("error type = %T, want *StructureError", err)
			}
			if !strings.Contains(err.Error(), tt.reason) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.reason)
			}
		})
	}
}

// TestCaseInsensitiveCollision verifies the configurable sibling fold
func TestCaseInsensitiveCollision(t *testing.T) {
	root := dir("root", file("README", nil), file("readme", nil))

	if _, err := New(root, nil, Options{}); err != nil {
		t.Errorf("case-sensitive New() error = %v, want nil", err)
	}
	if _, err := New(root, nil, Options{CaseInsensitive: true}); err == nil {
		t.Error("case-insensitive New() expected collision error, got nil")
	}
}

// TestWalkPreOrder verifies depth-first pre-order traversal in declaration
// order, with the root itself excluded
func TestWalkPreOrder(t *testing.T) {
	root := dir("root",
		dir("a",
			file("a1", nil),
			dir("a2", file("deep", nil)),
		),
		file("b", nil),
	)
	tr, err := New(root, nil, Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var visited []string
	err = tr.Walk(func(segments []string, n *Node) error {
		visited = append(visited, strings.Join(segments, "/"))
		return nil
	})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	want := []string{"a", "a/a1", "a/a2", "a/a2/deep", "b"}
	if len(visited) != len(want) {
		t.Fatalf("visited %d nodes, want %d: %v", len(visited), len(want), visited)
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Errorf("visit[%d] = %q, want %q", i, visited[i], want[i])
		}
	}
}

// TestWalkStopsOnError verifies error propagation halts traversal
func TestWalkStopsOnError(t *testing.T) {
	tr, err := New(dir("root", file("a", nil), file("b", nil)), nil, Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	sentinel := errors.New("stop")
	count := 0
	err = tr.Walk(func(segments []string, n *Node) error {
		count++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("Walk() error = %v, want sentinel", err)
	}
	if count != 1 {
		t.Errorf("visited %d nodes after error, want 1", count)
	}
}

// TestMergedVariables verifies override precedence without mutation
func TestMergedVariables(t *testing.T) {
	tr, err := New(dir("root"), map[string]string{"a": "1", "b": "2"}, Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	merged := tr.MergedVariables(map[string]string{"b": "3", "c": "4"})
	if merged["a"] != "1" || merged["b"] != "3" || merged["c"] != "4" {
		t.Errorf("merged = %v, want a=1 b=3 c=4", merged)
	}
	if tr.Variables["b"] != "2" {
		t.Error("MergedVariables mutated the tree's variables")
	}
}

// TestDiff covers missing, extra, kind-mismatch and content divergences
func TestDiff(t *testing.T) {
	want, err := New(dir("root",
		file("same.txt", strptr("hello")),
		file("drift.txt", strptr("old")),
		file("missing.txt", nil),
		dir("sub", file("nested", nil)),
	), nil, Options{})
	if err != nil {
		t.Fatalf("New(want) error = %v", err)
	}

	got, err := New(dir("root",
		file("same.txt", strptr("hello")),
		file("drift.txt", strptr("new")),
		dir("missing.txt"), // kind mismatch beats missing
		dir("sub", file("nested", nil), file("extra", nil)),
	), nil, Options{})
	if err != nil {
		t.Fatalf("New(got) error = %v", err)
	}

	diffs := Diff(want, got)

	byPath := make(map[string]DiffKind, len(diffs))
	for _, d := range diffs {
		byPath[d.Path] = d.Kind
	}
	if byPath["drift.txt"] != DiffContent {
		t.Errorf("drift.txt = %v, want %v", byPath["drift.txt"], DiffContent)
	}
	if byPath["missing.txt"] != DiffKindMismatch {
		t.Errorf("missing.txt = %v, want %v", byPath["missing.txt"], DiffKindMismatch)
	}
	if byPath["sub/extra"] != DiffExtra {
		t.Errorf("sub/extra = %v, want %v", byPath["sub/extra"], DiffExtra)
	}
	if _, ok := byPath["same.txt"]; ok {
		t.Error("same.txt reported as divergent")
	}
	if _, ok := byPath["sub/nested"]; ok {
		t.Error("sub/nested reported as divergent")
	}
}
