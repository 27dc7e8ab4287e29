package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

// ErrUnsupported is returned for files that are not cookbook text.
var ErrUnsupported = errors.New("ingest: unsupported file type")

// Document is one cookbook file's text.
type Document struct {
	// Source names the document in passages, relative to the walked
	// directory or the file's base name.
	Source   string
	Path     string
	Text     string
	Markdown bool
}

// ScanResult holds the documents found and the per-file problems that did
// not stop the scan.
type ScanResult struct {
	Documents []Document
	Errors    []error
}

// Scan collects cookbook documents from files and directories. Directories
// are walked recursively honouring their .kitchenignore; unsupported files
// inside them are skipped silently. A file named explicitly must be a
// supported text format.
func Scan(paths []string) ScanResult {
	var (
		res  ScanResult
		seen = map[string]bool{}
	)
	add := func(d Document) {
		if seen[d.Source] {
			return
		}
		seen[d.Source] = true
		res.Documents = append(res.Documents, d)
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("ingest: %w", err))
			continue
		}
		if !info.IsDir() {
			if !Supported(p) {
				res.Errors = append(res.Errors, fmt.Errorf("%w: %s (export PDFs and documents to .txt or .md first)", ErrUnsupported, p))
				continue
			}
			d, err := readDocument(p, filepath.Base(p))
			if err != nil {
				res.Errors = append(res.Errors, err)
				continue
			}
			add(d)
			continue
		}
		walk(p, &res, add)
	}

	sort.SliceStable(res.Documents, func(i, j int) bool { return res.Documents[i].Source < res.Documents[j].Source })
	return res
}

func walk(root string, res *ScanResult, add func(Document)) {
	ignore := NewIgnoreMatcher(root)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			res.Errors = append(res.Errors, err)
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if HardIgnore(d.Name()) || ignore.Match(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !Supported(d.Name()) || ignore.Match(rel) {
			return nil
		}

		doc, err := readDocument(path, rel)
		if err != nil {
			res.Errors = append(res.Errors, err)
			return nil
		}
		add(doc)
		return nil
	})
	if err != nil {
		res.Errors = append(res.Errors, err)
	}
}

func readDocument(path, source string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("ingest: read %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		return Document{}, fmt.Errorf("%w: %s is not UTF-8 text", ErrUnsupported, path)
	}
	return Document{
		Source:   source,
		Path:     path,
		Text:     strings.TrimSpace(string(data)),
		Markdown: isMarkdown(path),
	}, nil
}
