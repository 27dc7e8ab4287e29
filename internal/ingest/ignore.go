package ingest

import (
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFile holds gitignore-style patterns excluded from ingestion.
const IgnoreFile = ".kitchenignore"

// IgnoreMatcher wraps a gitignore pattern matcher.
type IgnoreMatcher struct {
	gi *gitignore.GitIgnore
}

// NewIgnoreMatcher loads .kitchenignore from root. Without one the matcher
// accepts everything.
func NewIgnoreMatcher(root string) *IgnoreMatcher {
	path := filepath.Join(root, IgnoreFile)
	if _, err := os.Stat(path); err != nil {
		return &IgnoreMatcher{}
	}
	gi, err := gitignore.CompileIgnoreFile(path)
	if err != nil {
		return &IgnoreMatcher{}
	}
	return &IgnoreMatcher{gi: gi}
}

// NewIgnoreMatcherLines compiles patterns directly.
func NewIgnoreMatcherLines(lines ...string) *IgnoreMatcher {
	return &IgnoreMatcher{gi: gitignore.CompileIgnoreLines(lines...)}
}

// Match reports whether relPath should be skipped.
func (m *IgnoreMatcher) Match(relPath string) bool {
	if m.gi == nil {
		return false
	}
	return m.gi.MatchesPath(relPath)
}

// Directories never walked.
var hardIgnored = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vectorstore":  true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	"tmp":          true,
}

// HardIgnore reports whether a directory name is always excluded.
func HardIgnore(name string) bool {
	return hardIgnored[name] || (strings.HasPrefix(name, ".") && name != "." && name != "..")
}

var textExtensions = map[string]bool{
	".txt":      true,
	".text":     true,
	".md":       true,
	".markdown": true,
}

// Supported reports whether name is a cookbook text format.
func Supported(name string) bool {
	return textExtensions[strings.ToLower(filepath.Ext(name))]
}

func isMarkdown(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".md" || ext == ".markdown"
}
