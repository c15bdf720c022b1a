package tmpl

import (
	"errors"
	"testing"
)

// TestExpand covers substitution, passthrough and whitespace tolerance
func TestExpand(t *testing.T) {
	vars := map[string]string{"user": "Ada", "proj": "dirtree"}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no markers", "plain text", "plain text"},
		{"single key", "Hello {{user}}", "Hello Ada"},
		{"repeated key", "{{user}} and {{user}}", "Ada and Ada"},
		{"two keys", "{{proj}}-{{user}}", "dirtree-Ada"},
		{"inner whitespace", "Hello {{ user }}", "Hello Ada"},
		{"empty string", "", ""},
		{"lone braces", "not {a} template {", "not {a} template {"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Expand("some/node", tt.input, vars)
			if err != nil {
				t.Fatalf("Expand() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Expand(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestExpandMissingKey verifies the error names the key and node path
func TestExpandMissingKey(t *testing.T) {
	_, err := Expand("src/{{user}}.txt", "Hello {{user}}", map[string]string{})
	if err == nil {
		t.Fatal("Expand() expected error, got nil")
	}

	var te *TemplateError
	if !errors.As(err, &te) {
		t.Fatalf("error type = %T, want *TemplateError", err)
	}
	if te.Key != "user" {
		t.Errorf("Key = %q, want %q", te.Key, "user")
	}
	if te.NodePath != "src/{{user}}.txt" {
		t.Errorf("NodePath = %q, want the node path", te.NodePath)
	}
}

// TestExpandFirstMissingKeyReported verifies deterministic error for
// multiple unresolved keys
func TestExpandFirstMissingKeyReported(t *testing.T) {
	_, err := Expand("n", "{{first}} {{second}}", nil)
	var te *TemplateError
	if !errors.As(err, &te) {
		t.Fatalf("error type = %T, want *TemplateError", err)
	}
	if te.Key != "first" {
		t.Errorf("Key = %q, want %q", te.Key, "first")
	}
}

// TestHasPlaceholder exercises marker detection
func TestHasPlaceholder(t *testing.T) {
	if !HasPlaceholder("a {{b}} c") {
		t.Error("HasPlaceholder() = false for templated string")
	}
	if HasPlaceholder("a {b} c") {
		t.Error("HasPlaceholder() = true for plain string")
	}
}
