// Package safepath resolves logical node paths to normalized absolute
// filesystem paths and enforces the containment invariant: every resolved
// path must stay inside the designated target root.
//
// Both the builder and the scanner route every path through this package
// before touching the filesystem. The check runs per node, not once per run,
// because a template-expanded name can introduce traversal sequences that
// were not present in the original description.
package safepath

import (
	"fmt"
	"path/filepath"
	"strings"
)

// PathSafetyError reports a resolved path that escapes the target root.
// It is always fatal to the current operation.
type PathSafetyError struct {
	Root string
	Path string
}

func (e *PathSafetyError) Error() string {
	return fmt.Sprintf("path %q escapes root %q", e.Path, e.Root)
}

// Resolve joins root with the given name segments, normalizes the result
// and verifies it is a descendant of root. Segments may come straight from
// a description or from template expansion; "..", absolute segments and
// separator-smuggling names all fail with *PathSafetyError.
func Resolve(root string, segments ...string) (string, error) {
	// filepath.Join would swallow a leading separator and silently re-root
	// the segment; an absolute segment must fail instead.
	for _, seg := range segments {
		if filepath.IsAbs(seg) {
			return "", &PathSafetyError{Root: filepath.Clean(root), Path: seg}
		}
	}

	joined := filepath.Join(append([]string{root}, segments...)...)
	cleanRoot := filepath.Clean(root)
	cleanPath := filepath.Clean(joined)

	if !Within(cleanRoot, cleanPath) {
		return "", &PathSafetyError{Root: cleanRoot, Path: joined}
	}
	return cleanPath, nil
}

// Within reports whether path (already cleaned) is root itself or a
// descendant of root. Used directly on the scan side to vet symlink targets
// before following them.
func Within(root, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	return rel != ".." && !strings.HasPrefix(rel, "../")
}
