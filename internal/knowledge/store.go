package knowledge

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/kitchencompanion/kitchencompanion/internal/db"
)

// Store is a read-only handle over one loaded build of the cookbook index.
// It is never mutated after Load; a reload produces a new Store.
//
// Stores are reference counted so that a swap never closes the database
// under an in-flight query. The creator holds the first reference and
// gives it up with Close.
type Store struct {
	path       string
	version    time.Time
	loadedAt   time.Time
	buildID    string
	embedModel string
	dimension  int
	passages   []Passage
	byID       map[string]int

	db        *db.DB
	refs      atomic.Int64
	closeOnce sync.Once
	closeErr  error
}

func newStore(path string, version time.Time, sc *sidecar, database *db.DB) *Store {
	s := &Store{
		path:       path,
		version:    version,
		loadedAt:   time.Now(),
		buildID:    sc.BuildID,
		embedModel: sc.EmbedModel,
		dimension:  sc.Dimension,
		passages:   sc.Passages,
		byID:       make(map[string]int, len(sc.Passages)),
		db:         database,
	}
	for i, p := range sc.Passages {
		s.byID[p.ID] = i
	}
	s.refs.Store(1)
	return s
}

// Path returns the artifact directory the store was loaded from.
func (s *Store) Path() string { return s.path }

// VectorCount returns the number of indexed passages.
func (s *Store) VectorCount() int { return len(s.passages) }

// LoadedAtVersion returns the index file mtime observed at load.
func (s *Store) LoadedAtVersion() time.Time { return s.version }

// LoadedAt returns the wall-clock time of the load.
func (s *Store) LoadedAt() time.Time { return s.loadedAt }

// EmbedModel returns the embedding model the index was built with.
func (s *Store) EmbedModel() string { return s.embedModel }

// Dimension returns the embedding dimension of the index.
func (s *Store) Dimension() int { return s.dimension }

// Passages returns a copy of every passage in index order.
func (s *Store) Passages() []Passage {
	out := make([]Passage, len(s.passages))
	copy(out, s.passages)
	return out
}

// Passage looks up a passage by ID.
func (s *Store) Passage(id string) (Passage, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Passage{}, false
	}
	return s.passages[i], true
}

func (s *Store) acquire() bool {
	for {
		n := s.refs.Load()
		if n <= 0 {
			return false
		}
		if s.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (s *Store) release() {
	if s.refs.Add(-1) == 0 {
		s.closeOnce.Do(func() {
			s.closeErr = s.db.Close()
		})
	}
}

// Close drops the creator's reference. The database is closed once every
// outstanding reference has been released.
func (s *Store) Close() error {
	s.release()
	return s.closeErr
}

// Search returns the k passages nearest to the query vector, closest first.
func (s *Store) Search(ctx context.Context, query []float32, k int) ([]Match, error) {
	if len(s.passages) == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != s.dimension {
		return nil, fmt.Errorf("knowledge: query dimension %d does not match index dimension %d", len(query), s.dimension)
	}
	if k > len(s.passages) {
		k = len(s.passages)
	}

	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT id, distance FROM vec_passages WHERE embedding MATCH ? AND k = ?
		 ORDER BY distance`,
		float32SliceToBlob(query), k,
	)
	if err != nil {
		return nil, fmt.Errorf("knowledge: vector search: %w", err)
	}
	defer rows.Close()
	return s.scanMatches(rows)
}

func (s *Store) scanMatches(rows *sql.Rows) ([]Match, error) {
	var out []Match
	for rows.Next() {
		var (
			id       string
			distance float64
		)
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, fmt.Errorf("knowledge: scan match: %w", err)
		}
		p, ok := s.Passage(id)
		if !ok {
			continue
		}
		// sqlite-vec returns L2 distance; 1/(1+d) maps it into (0, 1].
		out = append(out, Match{Passage: p, Score: 1.0 / (1.0 + distance)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("knowledge: read matches: %w", err)
	}
	return out, nil
}

// SearchText ranks passages by term overlap with the query. It is used when
// no embedder is configured for the running process.
func (s *Store) SearchText(query string, k int) []Match {
	terms := tokenize(query)
	if len(terms) == 0 || k <= 0 {
		return nil
	}

	var out []Match
	for _, p := range s.passages {
		words := make(map[string]struct{})
		for _, w := range tokenize(p.Text) {
			words[w] = struct{}{}
		}
		hits := 0
		for _, t := range terms {
			if _, ok := words[t]; ok {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		out = append(out, Match{Passage: p, Score: float64(hits) / float64(len(terms))})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// tokenize lower-cases s and returns its distinct words of three or more letters.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if len(f) < 3 {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// readRecords returns every passage with its stored embedding.
func (s *Store) readRecords() ([]Record, error) {
	rows, err := s.db.Conn().Query(`SELECT id, embedding FROM vec_passages`)
	if err != nil {
		return nil, fmt.Errorf("knowledge: read embeddings: %w", err)
	}
	defer rows.Close()

	vectors := make(map[string][]float32, len(s.passages))
	for rows.Next() {
		var (
			id   string
			blob []byte
		)
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("knowledge: scan embedding: %w", err)
		}
		vectors[id] = BlobToFloat32Slice(blob)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(s.passages))
	for _, p := range s.passages {
		v, ok := vectors[p.ID]
		if !ok {
			continue
		}
		out = append(out, Record{Passage: p, Embedding: v})
	}
	return out, nil
}

// float32SliceToBlob serialises a float32 slice to a little-endian byte blob.
// This is the format expected by sqlite-vec's BLOB column input.
func float32SliceToBlob(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// BlobToFloat32Slice deserialises a little-endian byte blob to a float32 slice.
func BlobToFloat32Slice(b []byte) []float32 {
	result := make([]float32, len(b)/4)
	for i := range result {
		result[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return result
}
