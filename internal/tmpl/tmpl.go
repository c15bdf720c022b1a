// Package tmpl expands {{key}} placeholders in node names and file content
// using a supplied variable mapping. Expansion is a pure function: no
// defaults, no code evaluation, no filesystem access.
package tmpl

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// TemplateError reports an unresolved placeholder. It names the missing key
// and the node path where expansion was attempted, and is always fatal.
type TemplateError struct {
	Key      string
	NodePath string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("unresolved template key %q at %q", e.Key, e.NodePath)
}

// HasPlaceholder reports whether s contains at least one template marker.
func HasPlaceholder(s string) bool {
	return placeholderPattern.MatchString(s)
}

// Expand substitutes every {{key}} occurrence in s with variables[key].
// nodePath identifies the node being expanded and appears in errors. Text
// without template markers passes through unchanged, so callers may expand
// unconditionally.
func Expand(nodePath, s string, variables map[string]string) (string, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}

	var missing *TemplateError
	expanded := placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := variables[key]
		if !ok {
			if missing == nil {
				missing = &TemplateError{Key: key, NodePath: nodePath}
			}
			return match
		}
		return value
	})
	if missing != nil {
		return "", missing
	}
	return expanded, nil
}
