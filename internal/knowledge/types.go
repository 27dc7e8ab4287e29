// Package knowledge owns the on-disk cookbook index: it loads the artifact
// pair, detects when an out-of-band ingestion replaced it, and swaps in a
// fresh read-only handle.
package knowledge

import (
	"errors"
	"time"
)

// ErrNotFound is returned by Load when either artifact file is absent.
var ErrNotFound = errors.New("knowledge: store not found")

// ErrCorrupt is returned by Load when the artifacts exist but do not
// describe the same build.
var ErrCorrupt = errors.New("knowledge: store is corrupt or mid-replace")

// Artifact file names inside the store directory.
const (
	IndexFile   = "index.db"
	SidecarFile = "passages.json"
)

// State is the lifecycle state of the managed store.
type State int

const (
	StateUnloaded State = iota
	StateReady
	StateStale
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateStale:
		return "stale"
	default:
		return "unloaded"
	}
}

// Freshness is the result of comparing a store with the artifact on disk.
type Freshness int

const (
	Fresh Freshness = iota
	Stale
)

func (f Freshness) String() string {
	if f == Stale {
		return "stale"
	}
	return "fresh"
}

// Passage is one retrievable unit of cookbook text.
type Passage struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Source   string            `json:"source,omitempty"`
	Page     int               `json:"page,omitempty"`
	Ordinal  int               `json:"ordinal"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Match is a passage with its similarity to the query. Higher is closer.
type Match struct {
	Passage Passage
	Score   float64
}

// Record pairs a passage with its embedding for index builds.
type Record struct {
	Passage   Passage
	Embedding []float32
}

// Info summarises a store for status output.
type Info struct {
	Path        string
	State       State
	VectorCount int
	Version     time.Time
	EmbedModel  string
	Dimension   int
}
