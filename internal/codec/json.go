package codec

import (
	"encoding/json"
	"fmt"

	"github.com/calder/dirtree/internal/tree"
)

// DecodeJSON parses a JSON tree description and validates it into a Tree.
func DecodeJSON(data []byte, opts tree.Options) (*tree.Tree, error) {
	var doc docWire
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse description: %w", err)
	}
	return buildTree(doc, opts)
}

// EncodeJSON serializes a Tree to the indented JSON description format,
// terminated with a newline.
func EncodeJSON(t *tree.Tree) ([]byte, error) {
	doc := docWire{Root: toWire(t.Root), Variables: t.Variables}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode description: %w", err)
	}
	return append(data, '\n'), nil
}
