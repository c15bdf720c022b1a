package codec

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/calder/dirtree/internal/tree"
)

// DecodeYAML parses a YAML tree description and validates it into a Tree.
func DecodeYAML(data []byte, opts tree.Options) (*tree.Tree, error) {
	var doc docWire
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse description: %w", err)
	}
	return buildTree(doc, opts)
}

// EncodeYAML serializes a Tree to the YAML description format.
func EncodeYAML(t *tree.Tree) ([]byte, error) {
	doc := docWire{Root: toWire(t.Root), Variables: t.Variables}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode description: %w", err)
	}
	return data, nil
}
