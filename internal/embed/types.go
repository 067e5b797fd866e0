// Package embed produces fixed-length vector embeddings for text.
//
// Two providers exist: an Ollama-backed primary and a deterministic
// hash-based fallback. The Resilient wrapper switches to the fallback when
// the primary reports backend unavailability, so callers always get a vector
// for every input.
package embed

import (
	"context"
	stderrors "errors"
	"math"
	"time"

	"github.com/civicwatch/radar/internal/errors"
)

// Common embedding constants
const (
	// MinBatchSize is the minimum allowed batch size
	MinBatchSize = 1

	// MaxBatchSize is the maximum allowed batch size (prevents memory exhaustion)
	MaxBatchSize = 256

	// DefaultBatchSize is the default batch size for embedding requests
	DefaultBatchSize = 32

	// DefaultTimeout is the per-batch timeout for embedding requests.
	// A batch that exceeds it fails with BackendUnavailable for that batch
	// only; unprocessed texts fall back to pseudo-embeddings.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the default number of retry attempts
	DefaultMaxRetries = 3
)

// DefaultDimensions is the embedding dimension assumed when the backend does
// not report one (nomic-embed-text and all-MiniLM-style models use 384).
const DefaultDimensions = 384

// Embedder generates vector embeddings for text
type Embedder interface {
	// Embed generates embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts. Output order
	// matches input order and output length always equals input length.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension
	Dimensions() int

	// ModelName returns the model identifier
	ModelName() string

	// Available checks if the embedder is ready
	Available(ctx context.Context) bool

	// Close releases resources
	Close() error
}

// IsBackendUnavailable reports whether err (anywhere in its chain) signals
// that the embedding backend is unreachable. Callers decide whether to fall
// back; the primary embedder never substitutes silently.
func IsBackendUnavailable(err error) bool {
	var re *errors.RadarError
	if stderrors.As(err, &re) {
		return re.Code == errors.ErrCodeBackendUnavailable || re.Code == errors.ErrCodeBackendTimeout
	}
	return false
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v // Return as-is if zero vector
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}

// CosineSimilarity computes the cosine similarity between two vectors of the
// same length. Returns 0 for zero vectors or mismatched lengths.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
