// Package ignore reads gitignore-style files and matches slash-separated
// relative paths against them.
package ignore

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Parser reads ignore files from a directory root.
type Parser struct {
	// IgnoreFiles is the list of ignore file names to look for.
	IgnoreFiles []string

	// FallbackPatterns are returned when no ignore files are found.
	FallbackPatterns []string
}

// NewParser creates a new ignore file parser with the given configuration.
func NewParser(ignoreFiles, fallbackPatterns []string) *Parser {
	return &Parser{
		IgnoreFiles:      ignoreFiles,
		FallbackPatterns: fallbackPatterns,
	}
}

// ParseDir reads every ignore file in root and returns the combined raw
// patterns, deduplicated in file order. If none exist it returns
// FallbackPatterns.
func (p *Parser) ParseDir(root string) ([]string, error) {
	var patterns []string
	foundAny := false

	for _, name := range p.IgnoreFiles {
		filePatterns, err := parseFile(filepath.Join(root, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		patterns = append(patterns, filePatterns...)
		foundAny = true
	}

	if !foundAny {
		return p.FallbackPatterns, nil
	}
	return deduplicate(patterns), nil
}

func parseFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var patterns []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := cleanLine(scanner.Text()); line != "" {
			patterns = append(patterns, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return patterns, nil
}

// cleanLine returns the pattern on line, or "" for blanks, comments and
// negations. Negation is not supported.
func cleanLine(line string) string {
	line = strings.TrimRight(line, " \t\r")
	switch {
	case line == "", strings.HasPrefix(line, "#"), strings.HasPrefix(line, "!"):
		return ""
	case strings.HasPrefix(line, `\#`), strings.HasPrefix(line, `\!`):
		return line[1:]
	}
	return line
}

func deduplicate(patterns []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if !seen[p] {
			seen[p] = true
			result = append(result, p)
		}
	}
	return result
}

type rule struct {
	glob    string
	dirOnly bool
}

// Matcher matches relative paths against compiled gitignore patterns.
type Matcher struct {
	rules []rule
}

// Compile converts gitignore patterns to doublestar globs. A pattern
// without an inner slash matches at any depth; a trailing slash restricts
// it to directories.
func Compile(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	for _, raw := range patterns {
		p := cleanLine(raw)
		if p == "" {
			continue
		}
		r := rule{}
		if strings.HasSuffix(p, "/") {
			r.dirOnly = true
			p = strings.TrimRight(p, "/")
		}
		anchored := strings.Contains(p, "/")
		p = strings.TrimPrefix(p, "/")
		if !anchored && !strings.HasPrefix(p, "**") {
			p = "**/" + p
		}
		if p == "" || !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid ignore pattern %q", raw)
		}
		r.glob = p
		m.rules = append(m.rules, r)
	}
	return m, nil
}

// Len returns the number of compiled rules.
func (m *Matcher) Len() int { return len(m.rules) }

// Match reports whether relPath, or any directory above it, is ignored.
// isDir tells whether relPath itself is a directory.
func (m *Matcher) Match(relPath string, isDir bool) bool {
	if m == nil || len(m.rules) == 0 {
		return false
	}
	rel := path.Clean(filepath.ToSlash(relPath))
	if rel == "." || rel == "" {
		return false
	}

	parts := strings.Split(rel, "/")
	for i := 1; i <= len(parts); i++ {
		candidate := strings.Join(parts[:i], "/")
		candidateIsDir := i < len(parts) || isDir
		for _, r := range m.rules {
			if r.dirOnly && !candidateIsDir {
				continue
			}
			if ok, _ := doublestar.Match(r.glob, candidate); ok {
				return true
			}
		}
	}
	return false
}
