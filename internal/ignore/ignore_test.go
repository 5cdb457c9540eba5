package ignore

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestCleanLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected string
	}{
		{"empty line", "", ""},
		{"whitespace only", "   ", ""},
		{"comment", "# this is a comment", ""},
		{"negation skipped", "!important.txt", ""},
		{"escaped hash", `\#notes.md`, "#notes.md"},
		{"trailing whitespace", "*.log \t", "*.log"},
		{"crlf", "dist/\r", "dist/"},
		{"directory", "node_modules/", "node_modules/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanLine(tt.line); got != tt.expected {
				t.Errorf("cleanLine(%q) = %q, want %q", tt.line, got, tt.expected)
			}
		})
	}
}

func TestParseDir(t *testing.T) {
	tmpDir := t.TempDir()

	gitignore := `# Build outputs
dist/
build/

node_modules/
*.pyc
`
	if err := os.WriteFile(filepath.Join(tmpDir, ".gitignore"), []byte(gitignore), 0o644); err != nil {
		t.Fatal(err)
	}
	ragignore := `node_modules/
drafts/
`
	if err := os.WriteFile(filepath.Join(tmpDir, ".ragignore"), []byte(ragignore), 0o644); err != nil {
		t.Fatal(err)
	}

	parser := NewParser([]string{".gitignore", ".ragignore"}, []string{"fallback/"})
	patterns, err := parser.ParseDir(tmpDir)
	if err != nil {
		t.Fatalf("ParseDir failed: %v", err)
	}

	want := []string{"dist/", "build/", "node_modules/", "*.pyc", "drafts/"}
	if !reflect.DeepEqual(patterns, want) {
		t.Errorf("patterns = %v, want %v", patterns, want)
	}
}

func TestParseDir_Fallback(t *testing.T) {
	parser := NewParser([]string{".gitignore"}, []string{"vendor/"})
	patterns, err := parser.ParseDir(t.TempDir())
	if err != nil {
		t.Fatalf("ParseDir failed: %v", err)
	}
	if !reflect.DeepEqual(patterns, []string{"vendor/"}) {
		t.Errorf("patterns = %v, want fallback", patterns)
	}
}

func TestMatcher_Match(t *testing.T) {
	m, err := Compile([]string{
		"node_modules/",
		"*.log",
		"/dist",
		"docs/internal",
		"**/tmp",
		"# comment",
	})
	if err != nil {
		t.Fatal(err)
	}
	if m.Len() != 5 {
		t.Fatalf("Len = %d, want 5", m.Len())
	}

	tests := []struct {
		path  string
		isDir bool
		want  bool
	}{
		{"node_modules", true, true},
		{"web/node_modules/react/index.js", false, true},
		{"node_modules", false, false},
		{"app.log", false, true},
		{"logs/deep/app.log", false, true},
		{"app.log.md", false, false},
		{"dist/bundle.js", false, true},
		{"web/dist/bundle.js", false, false},
		{"docs/internal/plan.md", false, true},
		{"other/docs/internal/plan.md", false, false},
		{"a/b/tmp/x.txt", false, true},
		{"README.md", false, false},
		{".", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := m.Match(tt.path, tt.isDir); got != tt.want {
				t.Errorf("Match(%q, %v) = %v, want %v", tt.path, tt.isDir, got, tt.want)
			}
		})
	}
}

func TestMatcher_NilAndEmpty(t *testing.T) {
	var m *Matcher
	if m.Match("a.txt", false) {
		t.Error("nil matcher matched")
	}
	empty, err := Compile(nil)
	if err != nil {
		t.Fatal(err)
	}
	if empty.Match("a.txt", false) {
		t.Error("empty matcher matched")
	}
}

func TestCompile_InvalidPattern(t *testing.T) {
	if _, err := Compile([]string{"[unclosed"}); err == nil {
		t.Error("expected error for invalid pattern")
	}
}
