package diagrams

import (
	"strings"
	"testing"
)

func TestArchitectureDiagram(t *testing.T) {
	components := []Component{
		{Name: "CLI", Description: "Command entry point"},
		{Name: "Config", Description: "Configuration loader"},
		{Name: "Indexer", Description: "Code analyzer"},
	}
	relationships := []Relationship{
		{From: "CLI", To: "Config", Label: "loads"},
		{From: "CLI", To: "Indexer"},
	}

	result := ArchitectureDiagram(components, relationships)

	if !strings.HasPrefix(result, "graph TD\n") {
		t.Fatalf("expected graph TD header, got: %s", result)
	}
	for _, want := range []string{"CLI", "Config", "Indexer"} {
		if !strings.Contains(result, want) {
			t.Errorf("missing node label %q in: %s", want, result)
		}
	}
	if !strings.Contains(result, "CLI -->|loads| Config") {
		t.Errorf("expected labeled edge CLI -->|loads| Config, got: %s", result)
	}
	if !strings.Contains(result, "CLI --> Indexer") {
		t.Errorf("expected unlabeled edge CLI --> Indexer, got: %s", result)
	}
}

func TestArchitectureDiagramWithDirection(t *testing.T) {
	result := ArchitectureDiagramWithDirection(
		[]Component{{Name: "A"}},
		nil,
		"LR",
	)
	if !strings.HasPrefix(result, "graph LR\n") {
		t.Fatalf("expected graph LR header, got: %s", result)
	}

	fallback := ArchitectureDiagramWithDirection([]Component{{Name: "A"}}, nil, "bogus")
	if !strings.HasPrefix(fallback, "graph TD\n") {
		t.Fatalf("expected fallback to graph TD, got: %s", fallback)
	}
}

func TestDependencyDiagram(t *testing.T) {
	deps := map[string][]string{
		"main.go": {"fmt", "os"},
	}

	result := DependencyDiagram(deps)

	if !strings.HasPrefix(result, "graph LR\n") {
		t.Fatalf("expected graph LR header, got: %s", result)
	}
	if !strings.Contains(result, "main_go") {
		t.Errorf("expected sanitized node id main_go in: %s", result)
	}
	if !strings.Contains(result, "fmt") || !strings.Contains(result, "os") {
		t.Errorf("expected dependency nodes fmt and os in: %s", result)
	}
}

func TestSanitizeID(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"main.go", "main_go"},
		{"src/auth/handler.go", "src_auth_handler_go"},
		{"my-pkg", "my_pkg"},
	}
	for _, tt := range tests {
		got := sanitizeID(tt.input)
		if got != tt.want {
			t.Errorf("sanitizeID(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestEscapeMermaid(t *testing.T) {
	got := escapeMermaid(`say "hello"`)
	if !strings.Contains(got, "#quot;") {
		t.Errorf("expected escaped quotes, got: %s", got)
	}

	got = escapeMermaid("Factory (pattern) support")
	if strings.Contains(got, "(") || strings.Contains(got, ")") {
		t.Errorf("expected escaped parens, got: %s", got)
	}
	if !strings.Contains(got, "#lpar;") || !strings.Contains(got, "#rpar;") {
		t.Errorf("expected #lpar; and #rpar;, got: %s", got)
	}

	got = escapeMermaid("map[string]bool")
	if strings.Contains(got, "[") || strings.Contains(got, "]") {
		t.Errorf("expected escaped brackets, got: %s", got)
	}
}
