package tree

import (
	"sort"
	"strings"
)

// DiffKind classifies one divergence between two trees.
type DiffKind string

const (
	// DiffMissing marks an entry declared in the wanted tree but absent
	// from the observed one.
	DiffMissing DiffKind = "missing"
	// DiffExtra marks an entry present in the observed tree but not
	// declared in the wanted one.
	DiffExtra DiffKind = "extra"
	// DiffKindMismatch marks an entry whose kind differs between trees.
	DiffKindMismatch DiffKind = "kind-mismatch"
	// DiffContent marks a file whose content differs, or a symlink whose
	// target differs.
	DiffContent DiffKind = "content"
)

// Difference describes a single divergence at a path.
type Difference struct {
	Path string
	Kind DiffKind
	// Want and Got describe the two sides; either may be empty for
	// missing/extra entries.
	Want string
	Got  string
}

// Diff compares a wanted tree against an observed one and returns the
// divergences in path order. Metadata is opaque to the model and is not
// compared. Content comparison treats an absent content (not captured, or
// create-empty) as matching anything, so a bounded scan does not flag every
// large file.
func Diff(want, got *Tree) []Difference {
	var diffs []Difference
	diffNodes("", want.Root, got.Root, want.opts.CaseInsensitive, &diffs)
	sort.Slice(diffs, func(i, j int) bool { return diffs[i].Path < diffs[j].Path })
	return diffs
}

func diffNodes(path string, want, got *Node, caseInsensitive bool, out *[]Difference) {
	wantByKey := childIndex(want, caseInsensitive)
	gotByKey := childIndex(got, caseInsensitive)

	for _, wc := range want.Children {
		childPath := joinPath(path, wc.Name)
		gc, ok := gotByKey[childKey(wc.Name, caseInsensitive)]
		if !ok {
			*out = append(*out, Difference{Path: childPath, Kind: DiffMissing, Want: string(wc.Kind)})
			continue
		}
		if wc.Kind != gc.Kind {
			*out = append(*out, Difference{
				Path: childPath,
				Kind: DiffKindMismatch,
				Want: string(wc.Kind),
				Got:  string(gc.Kind),
			})
			continue
		}
		switch wc.Kind {
		case File:
			if wc.Content != nil && gc.Content != nil && *wc.Content != *gc.Content {
				*out = append(*out, Difference{Path: childPath, Kind: DiffContent})
			}
		case Symlink:
			if wc.Target != gc.Target {
				*out = append(*out, Difference{
					Path: childPath,
					Kind: DiffContent,
					Want: wc.Target,
					Got:  gc.Target,
				})
			}
		case Directory:
			diffNodes(childPath, wc, gc, caseInsensitive, out)
		}
	}

	for _, gc := range got.Children {
		if _, ok := wantByKey[childKey(gc.Name, caseInsensitive)]; !ok {
			*out = append(*out, Difference{
				Path: joinPath(path, gc.Name),
				Kind: DiffExtra,
				Got:  string(gc.Kind),
			})
		}
	}
}

func childIndex(n *Node, caseInsensitive bool) map[string]*Node {
	idx := make(map[string]*Node, len(n.Children))
	for _, c := range n.Children {
		idx[childKey(c.Name, caseInsensitive)] = c
	}
	return idx
}

func childKey(name string, caseInsensitive bool) string {
	if caseInsensitive {
		return strings.ToLower(name)
	}
	return name
}
