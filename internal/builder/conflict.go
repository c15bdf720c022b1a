package builder

import (
	"fmt"
	"os"

	"github.com/calder/dirtree/internal/tree"
)

// Policy selects the conflict-handling mode for a build run. It is chosen
// once per run and applied to every target path that already exists.
type Policy string

const (
	// PolicyFail aborts the whole build on the first colliding path.
	// Entries already written before the collision remain; there is no
	// automatic rollback.
	PolicyFail Policy = "fail"
	// PolicySkip leaves existing entries untouched. Declared descendants of
	// a skipped directory are reported as skipped without reading or
	// writing the directory.
	PolicySkip Policy = "skip"
	// PolicyOverwrite truncates and rewrites files, reuses existing
	// directories and continues descending.
	PolicyOverwrite Policy = "overwrite"
	// PolicyMerge descends like overwrite but rewrites a file only when
	// its content differs, avoiding timestamp churn.
	PolicyMerge Policy = "merge"
)

// ParsePolicy converts a user-supplied policy string.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyFail, PolicySkip, PolicyOverwrite, PolicyMerge:
		return Policy(s), nil
	}
	return "", fmt.Errorf("unknown conflict policy %q (want fail, skip, overwrite or merge)", s)
}

// ConflictError reports an existing-entry policy violation: either a kind
// mismatch (never coerced, regardless of policy) or a collision under the
// fail policy.
type ConflictError struct {
	Path     string
	Declared tree.Kind
	Existing tree.Kind
	Policy   Policy
}

func (e *ConflictError) Error() string {
	if e.Declared != e.Existing {
		return fmt.Sprintf("conflict at %q: declared %s but a %s exists", e.Path, e.Declared, e.Existing)
	}
	return fmt.Sprintf("conflict at %q: entry already exists (policy %s)", e.Path, e.Policy)
}

// IOError wraps an underlying read/write/permission failure on one node.
// It is recorded in the report and does not abort siblings.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// action is the resolver's verdict for one existing target path.
type action int

const (
	// actAbort ends the whole build (fail policy, or kind mismatch while
	// the fail policy is active).
	actAbort action = iota
	// actFailNode fails this node only; siblings continue.
	actFailNode
	// actSkip leaves the entry untouched; declared descendants are only
	// reported, never written.
	actSkip
	// actReuseDir keeps the existing directory and descends into it.
	actReuseDir
	// actRewriteFile truncates and rewrites the file.
	actRewriteFile
	// actMergeFile rewrites the file only if content differs.
	actMergeFile
	// actRelink replaces the existing symlink.
	actRelink
	// actMergeLink replaces the symlink only if the target differs.
	actMergeLink
)

// decide consults the conflict decision table for a target path that
// already exists. A non-nil *ConflictError accompanies actAbort and
// actFailNode verdicts.
func decide(policy Policy, declared, existing tree.Kind, path string) (action, *ConflictError) {
	if declared != existing {
		// Silently replacing a kind is unsafe; this is fatal for the
		// node under every policy, and fatal for the run under fail.
		ce := &ConflictError{Path: path, Declared: declared, Existing: existing, Policy: policy}
		if policy == PolicyFail {
			return actAbort, ce
		}
		return actFailNode, ce
	}

	switch policy {
	case PolicyFail:
		return actAbort, &ConflictError{Path: path, Declared: declared, Existing: existing, Policy: policy}
	case PolicySkip:
		return actSkip, nil
	case PolicyOverwrite:
		switch declared {
		case tree.Directory:
			return actReuseDir, nil
		case tree.Symlink:
			return actRelink, nil
		default:
			return actRewriteFile, nil
		}
	case PolicyMerge:
		switch declared {
		case tree.Directory:
			return actReuseDir, nil
		case tree.Symlink:
			return actMergeLink, nil
		default:
			return actMergeFile, nil
		}
	}
	// Unreachable for parsed policies; treat like fail to stay safe.
	return actAbort, &ConflictError{Path: path, Declared: declared, Existing: existing, Policy: policy}
}

// kindOf classifies an existing filesystem entry from its Lstat info.
func kindOf(info os.FileInfo) tree.Kind {
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return tree.Symlink
	case info.IsDir():
		return tree.Directory
	default:
		return tree.File
	}
}
