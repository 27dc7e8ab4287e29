package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

const sidecarVersion = 1

// sidecar is the JSON document stored next to the index database.
type sidecar struct {
	Version    int       `json:"version"`
	BuildID    string    `json:"build_id"`
	EmbedModel string    `json:"embed_model,omitempty"`
	Dimension  int       `json:"dimension"`
	BuiltAt    time.Time `json:"built_at"`
	Passages   []Passage `json:"passages"`
}

func readSidecar(path string) (*sidecar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrCorrupt, path, err)
	}
	if sc.Version != sidecarVersion {
		return nil, fmt.Errorf("%w: unsupported sidecar version %d", ErrCorrupt, sc.Version)
	}
	return &sc, nil
}

func writeSidecar(path string, sc *sidecar) error {
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return fmt.Errorf("knowledge: encode sidecar: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("knowledge: write sidecar: %w", err)
	}
	return nil
}
