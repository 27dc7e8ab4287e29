package export

import (
	"encoding/json"
	"time"
)

// JSONExporter renders ExportData as structured JSON.
type JSONExporter struct{}

type jsonOutput struct {
	Store   jsonStore    `json:"store"`
	Sources []jsonSource `json:"sources"`
}

type jsonStore struct {
	Path       string    `json:"path"`
	EmbedModel string    `json:"embed_model,omitempty"`
	Dimension  int       `json:"dimension,omitempty"`
	Version    time.Time `json:"version,omitzero"`
	Passages   int       `json:"passages"`
}

type jsonSource struct {
	Name     string        `json:"name"`
	Passages []jsonPassage `json:"passages"`
}

type jsonPassage struct {
	ID      string `json:"id"`
	Page    int    `json:"page,omitempty"`
	Ordinal int    `json:"ordinal"`
	Section string `json:"section,omitempty"`
	Text    string `json:"text"`
}

func (e *JSONExporter) Export(data ExportData) (string, error) {
	out := jsonOutput{
		Store: jsonStore{
			Path:       data.Path,
			EmbedModel: data.EmbedModel,
			Dimension:  data.Dimension,
			Version:    data.Version,
			Passages:   len(data.Passages),
		},
		Sources: []jsonSource{},
	}
	for _, src := range bySource(data.Passages) {
		js := jsonSource{Name: src.name}
		for _, p := range src.passages {
			js.Passages = append(js.Passages, jsonPassage{
				ID:      p.ID,
				Page:    p.Page,
				Ordinal: p.Ordinal,
				Section: p.Metadata["section"],
				Text:    p.Text,
			})
		}
		out.Sources = append(out.Sources, js)
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}
