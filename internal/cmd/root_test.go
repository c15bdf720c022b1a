package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/calder/dirtree/internal/tree"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	if cmd == nil {
		t.Fatal("Root command should not be nil")
	}
	if cmd.Use != "dirtree" {
		t.Errorf("Use = %q, want dirtree", cmd.Use)
	}

	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("help execute: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "dirtree") {
		t.Errorf("help text should mention dirtree, got: %s", output)
	}
	for _, sub := range []string{"build", "scan", "diff", "history"} {
		if !strings.Contains(output, sub) {
			t.Errorf("help text should list %q subcommand, got: %s", sub, output)
		}
	}
}

func TestRootCommandHasSubcommands(t *testing.T) {
	cmd := NewRootCommand()

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[strings.Fields(sub.Use)[0]] = true
	}
	for _, want := range []string{"build", "scan", "diff", "history"} {
		if !names[want] {
			t.Errorf("missing subcommand %q, have %v", want, names)
		}
	}
}

func TestParseVars(t *testing.T) {
	vars, err := parseVars([]string{"name=app", "author=me", "empty="})
	if err != nil {
		t.Fatalf("parseVars: %v", err)
	}
	if vars["name"] != "app" || vars["author"] != "me" || vars["empty"] != "" {
		t.Errorf("vars = %v", vars)
	}

	if _, err := parseVars([]string{"noequals"}); err == nil {
		t.Error("expected error for missing =")
	}
	if _, err := parseVars([]string{"=value"}); err == nil {
		t.Error("expected error for empty key")
	}

	vars, err = parseVars(nil)
	if err != nil || vars != nil {
		t.Errorf("parseVars(nil) = %v, %v", vars, err)
	}
}

func TestLoadDescriptionDispatch(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "layout.json")
	jsonDoc := `{"root": {"name": "proj", "type": "directory"}}`
	if err := os.WriteFile(jsonPath, []byte(jsonDoc), 0o644); err != nil {
		t.Fatal(err)
	}

	yamlPath := filepath.Join(dir, "layout.yaml")
	yamlDoc := "root:\n  name: proj\n  type: directory\n"
	if err := os.WriteFile(yamlPath, []byte(yamlDoc), 0o644); err != nil {
		t.Fatal(err)
	}

	mdPath := filepath.Join(dir, "layout.md")
	mdDoc := "# Layout\n\n```dirtree\n" + jsonDoc + "\n```\n"
	if err := os.WriteFile(mdPath, []byte(mdDoc), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{jsonPath, yamlPath, mdPath} {
		tr, err := loadDescription(path, tree.Options{})
		if err != nil {
			t.Errorf("loadDescription(%s): %v", filepath.Base(path), err)
			continue
		}
		if tr.Root.Name != "proj" {
			t.Errorf("%s: root name = %q", filepath.Base(path), tr.Root.Name)
		}
	}

	txtPath := filepath.Join(dir, "layout.txt")
	if err := os.WriteFile(txtPath, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadDescription(txtPath, tree.Options{}); err == nil {
		t.Error("expected error for unsupported extension")
	}

	if _, err := loadDescription(filepath.Join(dir, "missing.json"), tree.Options{}); err == nil {
		t.Error("expected error for missing file")
	}
}
