package export

import (
	"fmt"
	"strings"
)

// MarkdownExporter renders passages as a markdown document, one section per
// source.
type MarkdownExporter struct{}

func (e *MarkdownExporter) Export(data ExportData) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# Cookbook Knowledge — %d passages\n\n", len(data.Passages))

	fmt.Fprintf(&b, "| Store | %s |\n", data.Path)
	if data.EmbedModel != "" {
		fmt.Fprintf(&b, "| Embeddings | %s (%d dimensions) |\n", data.EmbedModel, data.Dimension)
	}
	if !data.Version.IsZero() {
		fmt.Fprintf(&b, "| Version | %s |\n", data.Version.UTC().Format("2006-01-02 15:04:05"))
	}
	b.WriteString("\n")

	for _, src := range bySource(data.Passages) {
		name := src.name
		if name == "" {
			name = "Untitled"
		}
		fmt.Fprintf(&b, "## %s\n\n", name)
		section := ""
		for _, p := range src.passages {
			if s := p.Metadata["section"]; s != "" && s != section {
				section = s
				fmt.Fprintf(&b, "### %s\n\n", s)
			}
			if p.Page > 0 {
				fmt.Fprintf(&b, "*p. %d*\n\n", p.Page)
			}
			b.WriteString(strings.TrimSpace(p.Text))
			b.WriteString("\n\n")
		}
	}
	return b.String(), nil
}

// TextExporter renders passage text alone, separated by blank lines, in a
// form that can be ingested again.
type TextExporter struct{}

func (e *TextExporter) Export(data ExportData) (string, error) {
	var parts []string
	for _, src := range bySource(data.Passages) {
		for _, p := range src.passages {
			parts = append(parts, strings.TrimSpace(p.Text))
		}
	}
	if len(parts) == 0 {
		return "", nil
	}
	return strings.Join(parts, "\n\n") + "\n", nil
}
