// Package store owns persisted index state: the vector index over document
// embeddings and the lexical BM25 index used when embeddings are degraded.
package store

import (
	"fmt"
	"time"
)

// Metadata is the per-entry payload carried alongside a vector.
// Fields mirror the persisted line-delimited metadata records.
type Metadata struct {
	SourceID     string    `json:"source_id"`
	SnapshotHash string    `json:"snapshot_hash"`
	Excerpt      string    `json:"excerpt"`
	Tags         []string  `json:"tags,omitempty"`
	InsertedAt   time.Time `json:"inserted_at"`
}

// Entry is one indexed document: a stable ID, its embedding, and metadata.
// DocID derives from (source_id, content_hash), so identical content re-inserts
// as a no-op.
type Entry struct {
	DocID    string
	Vector   []float32
	Metadata Metadata
}

// Result is a single search hit.
type Result struct {
	DocID    string
	Score    float64
	Metadata Metadata
}

// VectorIndexConfig configures the vector index.
type VectorIndexConfig struct {
	// Dimensions is the fixed vector dimension for this index instance.
	Dimensions int

	// M is HNSW max connections per layer (default: 16).
	M int

	// EfSearch is HNSW query-time search width (default: 64).
	EfSearch int

	// ExactScanThreshold is the entry count below which search scans all
	// vectors exactly instead of consulting the HNSW graph. Exact scans are
	// fully deterministic; the graph is an approximation used only once the
	// corpus outgrows brute force.
	ExactScanThreshold int

	// CandidateMultiplier is how many times k candidates to pull from the
	// HNSW graph before exact re-scoring (default: 4).
	CandidateMultiplier int
}

// DefaultVectorIndexConfig returns sensible defaults for the given dimension.
func DefaultVectorIndexConfig(dimensions int) VectorIndexConfig {
	return VectorIndexConfig{
		Dimensions:          dimensions,
		M:                   16,
		EfSearch:            64,
		ExactScanThreshold:  1024,
		CandidateMultiplier: 4,
	}
}

// ErrDimensionMismatch indicates an inserted or query vector whose length
// does not match the index dimension. Fatal to that call, not to the index.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
