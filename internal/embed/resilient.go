package embed

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ResilientEmbedder wraps a primary embedder with a deterministic hash-based
// fallback. When the primary reports BackendUnavailable for a batch, that
// batch is re-embedded with the fallback, so callers always receive a vector
// for every input. The switch is logged once per process; subsequent
// degradations are silent.
//
// The fallback is constructed with the primary's dimension, so vectors from
// either path fit the same index.
type ResilientEmbedder struct {
	primary  Embedder // nil when no backend was reachable at startup
	fallback *StaticEmbedder

	degraded atomic.Bool
	warnOnce sync.Once
}

// Verify interface implementation at compile time
var _ Embedder = (*ResilientEmbedder)(nil)

// NewResilientEmbedder wraps primary with a dimension-matched fallback.
// A nil primary yields an embedder that is degraded from the start.
func NewResilientEmbedder(primary Embedder, dims int) *ResilientEmbedder {
	if primary != nil {
		dims = primary.Dimensions()
	}
	e := &ResilientEmbedder{
		primary:  primary,
		fallback: NewStaticEmbedderWithDimensions(dims),
	}
	if primary == nil {
		e.markDegraded("no embedding backend configured")
	}
	return e
}

// markDegraded flips the degraded flag and emits the one-time warning.
func (e *ResilientEmbedder) markDegraded(reason string) {
	e.degraded.Store(true)
	e.warnOnce.Do(func() {
		slog.Warn("embedding backend unavailable, using deterministic pseudo-embeddings",
			slog.String("reason", reason),
			slog.Int("dimensions", e.fallback.Dimensions()))
	})
}

// Degraded reports whether any embedding so far came from the fallback.
// Sticky for the life of the process: once degraded, search and diff results
// are flagged so reduced semantic accuracy is never hidden.
func (e *ResilientEmbedder) Degraded() bool {
	return e.degraded.Load()
}

// Embed generates an embedding, falling back on backend unavailability.
func (e *ResilientEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.primary != nil {
		vec, err := e.primary.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		if !IsBackendUnavailable(err) {
			return nil, err
		}
		e.markDegraded(err.Error())
	}
	return e.fallback.Embed(ctx, text)
}

// EmbedBatch generates embeddings for multiple texts. Output length always
// equals input length: a batch the primary cannot serve is replaced by
// fallback vectors, never omitted.
func (e *ResilientEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.primary != nil && !e.degraded.Load() {
		vecs, err := e.primary.EmbedBatch(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		if !IsBackendUnavailable(err) {
			return nil, err
		}
		e.markDegraded(err.Error())
	}
	return e.fallback.EmbedBatch(ctx, texts)
}

// Dimensions returns the embedding dimension (identical for both paths).
func (e *ResilientEmbedder) Dimensions() int {
	return e.fallback.Dimensions()
}

// ModelName returns the active model identifier.
func (e *ResilientEmbedder) ModelName() string {
	if e.primary != nil && !e.degraded.Load() {
		return e.primary.ModelName()
	}
	return e.fallback.ModelName()
}

// Available is always true: the fallback cannot be unavailable.
func (e *ResilientEmbedder) Available(ctx context.Context) bool {
	return e.fallback.Available(ctx)
}

// Close releases both embedders.
func (e *ResilientEmbedder) Close() error {
	var err error
	if e.primary != nil {
		err = e.primary.Close()
	}
	if ferr := e.fallback.Close(); err == nil {
		err = ferr
	}
	return err
}
