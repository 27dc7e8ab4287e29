package knowledge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kitchencompanion/kitchencompanion/internal/db"
)

// BuildOptions describe the embedding space of a build.
type BuildOptions struct {
	EmbedModel string
	// Dimension is required when records is empty; otherwise it is taken
	// from the first record.
	Dimension int
}

// Build writes records as a new artifact pair in dir, replacing any
// existing one. Both files are written to a temporary directory first and
// renamed into place, sidecar first and index last, so the freshness token
// only moves once the pair is complete.
func Build(dir string, records []Record, opts BuildOptions) error {
	dim := opts.Dimension
	if len(records) > 0 {
		dim = len(records[0].Embedding)
	}
	if dim <= 0 {
		return errors.New("knowledge: build: embedding dimension is unknown")
	}
	seen := make(map[string]struct{}, len(records))
	for i, r := range records {
		if len(r.Embedding) != dim {
			return fmt.Errorf("knowledge: build: record %d has dimension %d, want %d", i, len(r.Embedding), dim)
		}
		if r.Passage.ID == "" {
			return fmt.Errorf("knowledge: build: record %d has no id", i)
		}
		if _, dup := seen[r.Passage.ID]; dup {
			return fmt.Errorf("knowledge: build: duplicate passage id %q", r.Passage.ID)
		}
		seen[r.Passage.ID] = struct{}{}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("knowledge: build: create dir: %w", err)
	}
	tmp, err := os.MkdirTemp(dir, ".build-")
	if err != nil {
		return fmt.Errorf("knowledge: build: temp dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	buildID := uuid.NewString()
	if err := writeIndex(filepath.Join(tmp, IndexFile), buildID, dim, records); err != nil {
		return err
	}

	passages := make([]Passage, len(records))
	for i, r := range records {
		passages[i] = r.Passage
	}
	sc := &sidecar{
		Version:    sidecarVersion,
		BuildID:    buildID,
		EmbedModel: opts.EmbedModel,
		Dimension:  dim,
		BuiltAt:    time.Now().UTC(),
		Passages:   passages,
	}
	if err := writeSidecar(filepath.Join(tmp, SidecarFile), sc); err != nil {
		return err
	}

	indexPath := filepath.Join(dir, IndexFile)
	if err := bumpPastExisting(filepath.Join(tmp, IndexFile), indexPath); err != nil {
		return err
	}

	if err := os.Rename(filepath.Join(tmp, SidecarFile), filepath.Join(dir, SidecarFile)); err != nil {
		return fmt.Errorf("knowledge: build: install sidecar: %w", err)
	}
	if err := os.Rename(filepath.Join(tmp, IndexFile), indexPath); err != nil {
		return fmt.Errorf("knowledge: build: install index: %w", err)
	}
	return nil
}

func writeIndex(path, buildID string, dim int, records []Record) error {
	database, err := db.Create(path, dim)
	if err != nil {
		return fmt.Errorf("knowledge: build: %w", err)
	}
	defer database.Close()

	if err := database.SetMeta(metaBuildID, buildID); err != nil {
		return fmt.Errorf("knowledge: build: %w", err)
	}

	tx, err := database.Conn().Begin()
	if err != nil {
		return fmt.Errorf("knowledge: build: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, r := range records {
		if _, err := tx.Exec(
			`INSERT INTO passages (id, source, ordinal) VALUES (?, ?, ?)`,
			r.Passage.ID, r.Passage.Source, r.Passage.Ordinal,
		); err != nil {
			return fmt.Errorf("knowledge: build: insert passage: %w", err)
		}
		if _, err := tx.Exec(
			`INSERT INTO vec_passages (id, embedding) VALUES (?, ?)`,
			r.Passage.ID, float32SliceToBlob(r.Embedding),
		); err != nil {
			return fmt.Errorf("knowledge: build: insert embedding: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("knowledge: build: commit: %w", err)
	}
	return database.Close()
}

// bumpPastExisting makes sure the new index's mtime is strictly newer than
// the one it replaces, even on filesystems with coarse timestamps.
func bumpPastExisting(newPath, oldPath string) error {
	old, err := os.Stat(oldPath)
	if err != nil {
		return nil //nolint:nilerr // nothing to outrun
	}
	cur, err := os.Stat(newPath)
	if err != nil {
		return fmt.Errorf("knowledge: build: stat new index: %w", err)
	}
	if cur.ModTime().After(old.ModTime()) {
		return nil
	}
	t := old.ModTime().Add(time.Second)
	if err := os.Chtimes(newPath, t, t); err != nil {
		return fmt.Errorf("knowledge: build: touch index: %w", err)
	}
	return nil
}

// ReadRecords loads every passage and embedding of the artifact in dir, for
// merging new material into an existing store. A missing store yields no
// records and no error.
func ReadRecords(dir string) ([]Record, BuildOptions, error) {
	s, err := Load(dir)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, BuildOptions{}, nil
		}
		return nil, BuildOptions{}, err
	}
	defer s.Close()

	records, err := s.readRecords()
	if err != nil {
		return nil, BuildOptions{}, err
	}
	return records, BuildOptions{EmbedModel: s.EmbedModel(), Dimension: s.Dimension()}, nil
}
