// Package scanner converts an existing directory hierarchy back into the
// declarative tree model. It is the inverse of the builder: scanning a tree
// that was just built reproduces the declaration, and building a scanned
// tree reproduces the filesystem.
package scanner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gabriel-vasile/mimetype"
	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/calder/dirtree/internal/builder"
	"github.com/calder/dirtree/internal/safepath"
	"github.com/calder/dirtree/internal/tree"
)

// Options configures one scan.
type Options struct {
	// Ignore holds doublestar glob patterns matched against the
	// slash-separated path relative to the scan root. Matching entries and
	// their descendants are omitted.
	Ignore []string
	// FollowSymlinks resolves in-root symlinks to the entry they point at
	// instead of recording the link itself. Links that leave the root are
	// always recorded literally, and cycles terminate by falling back to a
	// literal link node.
	FollowSymlinks bool
	// MaxContentBytes caps how much file content is embedded per node.
	// Larger files are truncated and marked with truncated metadata.
	// Zero or negative means no cap.
	MaxContentBytes int64
	// DetectMime records a mime metadata key on binary files.
	DetectMime bool
	// CaseInsensitive carries through to the resulting tree's sibling
	// uniqueness rule.
	CaseInsensitive bool
}

// Scan reads the hierarchy rooted at root and returns its tree model.
// root must name an existing directory.
//
// Unreadable entries do not abort the scan: the node is recorded without
// content and carries an error metadata key. Symlink handling is literal by
// default, so a scan never follows a link out of the root.
func Scan(ctx context.Context, fsys billy.Filesystem, root string, opts Options) (*tree.Tree, error) {
	for _, pattern := range opts.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid ignore pattern %q", pattern)
		}
	}

	// visited matching compares cleaned absolute paths, so the root must
	// be in that form too.
	root = path.Clean(root)

	info, err := fsys.Lstat(root)
	if err != nil {
		return nil, &builder.IOError{Op: "lstat", Path: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &tree.StructureError{Path: path.Base(root), Reason: "scan root is not a directory"}
	}

	s := &scanner{fs: fsys, root: root, opts: opts, visited: make(map[string]bool)}

	rootNode := &tree.Node{Name: path.Base(root), Kind: tree.Directory}
	if err := s.dir(ctx, root, "", rootNode); err != nil {
		return nil, err
	}
	return tree.New(rootNode, nil, tree.Options{CaseInsensitive: opts.CaseInsensitive})
}

type scanner struct {
	fs   billy.Filesystem
	root string
	opts Options

	// visited holds every directory on the current descent path, keyed by
	// absolute path. Following a symlink back into one of them would never
	// terminate; the link is recorded literally instead.
	visited map[string]bool
}

func (s *scanner) dir(ctx context.Context, abs, rel string, parent *tree.Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.visited[abs] = true
	defer delete(s.visited, abs)

	entries, err := s.fs.ReadDir(abs)
	if err != nil {
		parent.Metadata = withMeta(parent.Metadata, "error", err.Error())
		return nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, info := range entries {
		childRel := joinRel(rel, info.Name())
		if s.ignored(childRel) {
			continue
		}
		node, err := s.entry(ctx, s.fs.Join(abs, info.Name()), childRel, info)
		if err != nil {
			return err
		}
		if node != nil {
			parent.Children = append(parent.Children, node)
		}
	}
	return nil
}

// entry classifies one directory entry into a node. A nil node with nil
// error means the entry was dropped.
func (s *scanner) entry(ctx context.Context, abs, rel string, info os.FileInfo) (*tree.Node, error) {
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return s.symlink(ctx, abs, rel, info)

	case info.IsDir():
		node := &tree.Node{Name: info.Name(), Kind: tree.Directory}
		captureMode(node, info, 0o755)
		if err := s.dir(ctx, abs, rel, node); err != nil {
			return nil, err
		}
		return node, nil

	default:
		node := s.file(abs, info.Name())
		captureMode(node, info, 0o644)
		return node, nil
	}
}

// captureMode records non-default permission bits as mode metadata, the
// same octal-string key the builder applies on create.
func captureMode(node *tree.Node, info os.FileInfo, conventional os.FileMode) {
	perm := info.Mode().Perm()
	if perm == conventional || perm == 0 {
		return
	}
	node.Metadata = withMeta(node.Metadata, "mode", "0"+strconv.FormatUint(uint64(perm), 8))
}

// file reads content up to the configured cap. Binary payloads are not
// embedded; they are marked instead, with an optional sniffed mime type.
func (s *scanner) file(abs, name string) *tree.Node {
	node := &tree.Node{Name: name, Kind: tree.File}

	data, err := s.readCapped(abs, node)
	if err != nil {
		node.Metadata = withMeta(node.Metadata, "error", err.Error())
		return node
	}

	if !utf8.Valid(data) {
		node.Metadata = withMeta(node.Metadata, "binary", true)
		if s.opts.DetectMime {
			node.Metadata = withMeta(node.Metadata, "mime", mimetype.Detect(data).String())
		}
		return node
	}

	content := string(data)
	node.Content = &content
	return node
}

func (s *scanner) readCapped(abs string, node *tree.Node) ([]byte, error) {
	if s.opts.MaxContentBytes <= 0 {
		return util.ReadFile(s.fs, abs)
	}
	f, err := s.fs.Open(abs)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// One byte past the cap distinguishes exactly-at-cap from truncated.
	data, err := io.ReadAll(io.LimitReader(f, s.opts.MaxContentBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > s.opts.MaxContentBytes {
		node.Metadata = withMeta(node.Metadata, "truncated", true)
		data = data[:s.opts.MaxContentBytes]
	}
	return data, nil
}

func (s *scanner) symlink(ctx context.Context, abs, rel string, info os.FileInfo) (*tree.Node, error) {
	target, err := s.fs.Readlink(abs)
	if err != nil {
		return &tree.Node{
			Name: info.Name(), Kind: tree.Symlink,
			Metadata: map[string]any{"error": err.Error()},
		}, nil
	}

	node := &tree.Node{Name: info.Name(), Kind: tree.Symlink, Target: target}
	if !s.opts.FollowSymlinks {
		return node, nil
	}

	resolved := target
	if !strings.HasPrefix(resolved, "/") {
		resolved = s.fs.Join(path.Dir(abs), resolved)
	}
	resolved = path.Clean(resolved)

	// Links that leave the root stay literal: following them would leak
	// content from outside the scanned hierarchy into the tree.
	if !safepath.Within(s.root, resolved) {
		return node, nil
	}

	targetInfo, err := s.fs.Lstat(resolved)
	if err != nil {
		node.Metadata = withMeta(node.Metadata, "error", err.Error())
		return node, nil
	}

	switch {
	case targetInfo.IsDir():
		if s.visited[resolved] {
			// The target is an ancestor on the current descent path:
			// a cycle. Record the link itself and stop.
			return node, nil
		}
		followed := &tree.Node{
			Name: info.Name(), Kind: tree.Directory,
			Metadata: map[string]any{"link": target},
		}
		if err := s.dir(ctx, resolved, rel, followed); err != nil {
			return nil, err
		}
		return followed, nil

	case targetInfo.Mode()&os.ModeSymlink != 0:
		// Link-to-link is kept literal rather than chased.
		return node, nil

	default:
		followed := s.file(resolved, info.Name())
		followed.Metadata = withMeta(followed.Metadata, "link", target)
		return followed, nil
	}
}

func (s *scanner) ignored(rel string) bool {
	for _, pattern := range s.opts.Ignore {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func withMeta(m map[string]any, key string, value any) map[string]any {
	if m == nil {
		m = make(map[string]any)
	}
	m[key] = value
	return m
}

func joinRel(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}
