// Package export renders the passages of a knowledge store for reading or
// for moving a cookbook between stores.
package export

import (
	"sort"
	"time"

	"github.com/kitchencompanion/kitchencompanion/internal/knowledge"
)

// ExportData is passed to every Exporter.
type ExportData struct {
	Path       string
	EmbedModel string
	Dimension  int
	Version    time.Time
	Passages   []knowledge.Passage
}

// FromStore collects ExportData from a loaded store.
func FromStore(s *knowledge.Store) ExportData {
	return ExportData{
		Path:       s.Path(),
		EmbedModel: s.EmbedModel(),
		Dimension:  s.Dimension(),
		Version:    s.LoadedAtVersion(),
		Passages:   s.Passages(),
	}
}

// Exporter renders ExportData to a string in a specific format.
type Exporter interface {
	Export(data ExportData) (string, error)
}

// registry maps format names to Exporter implementations.
var registry = map[string]Exporter{
	"markdown": &MarkdownExporter{},
	"json":     &JSONExporter{},
	"text":     &TextExporter{},
}

// Get returns the Exporter registered under name, and whether it was found.
func Get(name string) (Exporter, bool) {
	e, ok := registry[name]
	return e, ok
}

// ValidFormats returns the supported export format names, sorted.
func ValidFormats() []string {
	formats := make([]string, 0, len(registry))
	for k := range registry {
		formats = append(formats, k)
	}
	sort.Strings(formats)
	return formats
}

// source is one cookbook's passages in reading order.
type source struct {
	name     string
	passages []knowledge.Passage
}

// bySource groups passages by source, sources sorted by name and passages
// by page then ordinal.
func bySource(passages []knowledge.Passage) []source {
	idx := map[string]int{}
	var out []source
	for _, p := range passages {
		i, ok := idx[p.Source]
		if !ok {
			i = len(out)
			idx[p.Source] = i
			out = append(out, source{name: p.Source})
		}
		out[i].passages = append(out[i].passages, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	for _, s := range out {
		sort.SliceStable(s.passages, func(i, j int) bool {
			a, b := s.passages[i], s.passages[j]
			if a.Page != b.Page {
				return a.Page < b.Page
			}
			return a.Ordinal < b.Ordinal
		})
	}
	return out
}
