package codec

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/calder/dirtree/internal/tree"
)

// markdownFenceInfo is the info string that marks a fenced code block as a
// tree description, e.g. ```dirtree.
const markdownFenceInfo = "dirtree"

// DecodeMarkdown extracts the first fenced ```dirtree code block from a
// markdown document and decodes its payload. The payload may be JSON or
// YAML; a leading '{' selects JSON. This lets a project README double as
// the scaffolding source.
func DecodeMarkdown(data []byte, opts tree.Options) (*tree.Tree, error) {
	payload, err := extractFencedBlock(data)
	if err != nil {
		return nil, err
	}

	if bytes.HasPrefix(bytes.TrimSpace(payload), []byte("{")) {
		return DecodeJSON(payload, opts)
	}
	return DecodeYAML(payload, opts)
}

// extractFencedBlock walks the markdown AST and returns the body of the
// first ```dirtree fence.
func extractFencedBlock(source []byte) ([]byte, error) {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(source))

	var payload []byte
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || payload != nil {
			return ast.WalkContinue, nil
		}

		fence, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		if string(fence.Language(source)) != markdownFenceInfo {
			return ast.WalkContinue, nil
		}

		var buf bytes.Buffer
		lines := fence.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(source))
		}
		payload = buf.Bytes()
		return ast.WalkStop, nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk markdown: %w", err)
	}

	if payload == nil {
		return nil, fmt.Errorf("no ```%s code block found in document", markdownFenceInfo)
	}
	return payload, nil
}
