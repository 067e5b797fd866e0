// Package radar wires the engine together: fingerprinting, checkpointing,
// snapshot archiving, semantic diffing, and index maintenance for a set of
// monitored sources.
package radar

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/civicwatch/radar/internal/checkpoint"
	"github.com/civicwatch/radar/internal/config"
	"github.com/civicwatch/radar/internal/diff"
	"github.com/civicwatch/radar/internal/embed"
	"github.com/civicwatch/radar/internal/errors"
	"github.com/civicwatch/radar/internal/fingerprint"
	"github.com/civicwatch/radar/internal/snapshot"
	"github.com/civicwatch/radar/internal/store"
)

// excerptLimit bounds the stored per-entry excerpt.
const excerptLimit = 240

// Observation is one fetched document, handed in by the fetch collaborator.
type Observation struct {
	SourceID   string
	Text       string
	Tags       []string
	ObservedAt time.Time
}

// Outcome classifies what a cycle did with one observation.
type Outcome string

const (
	OutcomeIndexed   Outcome = "indexed"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeFailed    Outcome = "failed"
)

// CycleResult is the per-source result of a processing cycle.
type CycleResult struct {
	SourceID string
	Outcome  Outcome
	DocID    string
	Hash     string
	Diff     *diff.Result // nil for first observation or unchanged sources
	Err      error
}

// Status summarizes engine state for status reporting.
type Status struct {
	IndexedEntries   int
	TrackedSources   int
	ArchivedSnaps    int
	EmbeddingModel   string
	DegradedEmbedder bool
}

// Engine is the change-detection and semantic-indexing core. One engine owns
// one index directory, guarded by a cross-process lock for its lifetime.
type Engine struct {
	cfg *config.Config

	lock       *store.DirLock
	provider   *embed.Provider
	vectors    *store.VectorIndex
	lexical    *store.LexicalIndex
	snapshots  *snapshot.Archive
	checkpoint *checkpoint.Coordinator
	differ     *diff.Differ
}

// Open constructs an engine from configuration: acquires the index directory
// lock, loads persisted index state, and connects the embedding provider.
// A second process opening the same index directory fails fast.
func Open(ctx context.Context, cfg *config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	lock := store.NewDirLock(cfg.Paths.IndexDir)
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, errors.New(errors.ErrCodeIndexLocked, "failed to probe index lock", err)
	}
	if !acquired {
		return nil, errors.New(errors.ErrCodeIndexLocked,
			fmt.Sprintf("index directory %s is locked by another process", cfg.Paths.IndexDir), nil).
			WithSuggestion("stop the other radar process or point paths.index_dir elsewhere")
	}

	e := &Engine{cfg: cfg, lock: lock}
	if err := e.open(ctx); err != nil {
		_ = lock.Unlock()
		e.closePartial()
		return nil, err
	}
	return e, nil
}

func (e *Engine) open(ctx context.Context) error {
	cfg := e.cfg

	e.provider = embed.NewProvider(ctx, embed.FactoryConfig{
		Provider:   embed.ProviderType(cfg.Embeddings.Provider),
		Model:      cfg.Embeddings.Model,
		Host:       cfg.Embeddings.Host,
		Dimensions: cfg.Embeddings.Dimensions,
		BatchSize:  cfg.Embeddings.BatchSize,
		Timeout:    cfg.Embeddings.Timeout,
		CacheSize:  cfg.Embeddings.CacheSize,
	})

	vectors, err := store.NewVectorIndex(store.DefaultVectorIndexConfig(e.provider.Dimensions()))
	if err != nil {
		return err
	}
	if err := vectors.Load(cfg.Paths.IndexDir); err != nil {
		return err
	}
	e.vectors = vectors

	lexical, err := store.NewLexicalIndex(filepath.Join(cfg.Paths.IndexDir, "lexical.bleve"))
	if err != nil {
		return err
	}
	e.lexical = lexical

	snaps, err := snapshot.Open(cfg.Paths.SnapshotDB)
	if err != nil {
		return err
	}
	e.snapshots = snaps

	ckpt, err := checkpoint.Open(cfg.Paths.CheckpointFile)
	if err != nil {
		return err
	}
	e.checkpoint = ckpt

	e.differ = diff.New(e.provider, diff.Config{
		MinSimilarity:      cfg.Diff.MinSimilarity,
		IdenticalThreshold: cfg.Diff.IdenticalThreshold,
	})
	return nil
}

// ProcessBatch runs one processing cycle over a batch of observations.
// Sources are processed in parallel up to the configured worker bound; a
// failure in one source never aborts the others. After all sources finish,
// the vector index is persisted once and checkpoints are committed for the
// sources whose index mutations succeeded, preserving the
// index-before-checkpoint write ordering.
func (e *Engine) ProcessBatch(ctx context.Context, observations []Observation) ([]CycleResult, error) {
	results := make([]CycleResult, len(observations))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Engine.Workers)

	for i, obs := range observations {
		g.Go(func() error {
			results[i] = e.processOne(gctx, obs)
			return nil // per-source errors stay in the result
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return results, ctx.Err()
	}

	// Persist index state once for the whole batch, then commit checkpoints.
	// A crash before the commit reprocesses those sources next cycle, which
	// is safe because upserts are idempotent.
	indexed := false
	for _, r := range results {
		if r.Outcome == OutcomeIndexed {
			indexed = true
			break
		}
	}
	if indexed {
		if err := e.vectors.Persist(e.cfg.Paths.IndexDir); err != nil {
			return results, errors.New(errors.ErrCodePersistFailed, "failed to persist vector index", err)
		}
	}

	for i, r := range results {
		if r.Outcome != OutcomeIndexed {
			continue
		}
		if err := e.checkpoint.Commit(r.SourceID, r.Hash); err != nil {
			results[i].Outcome = OutcomeFailed
			results[i].Err = err
			slog.Error("checkpoint commit failed",
				slog.String("source", r.SourceID),
				slog.String("error", err.Error()))
		}
	}
	return results, nil
}

// processOne runs the cycle for a single observation: fingerprint, change
// check, diff against the archived baseline, embed, index, archive.
func (e *Engine) processOne(ctx context.Context, obs Observation) CycleResult {
	result := CycleResult{SourceID: obs.SourceID}

	if obs.SourceID == "" {
		result.Outcome = OutcomeFailed
		result.Err = errors.ValidationError("observation has no source ID", nil)
		return result
	}

	digest := fingerprint.Sum(obs.Text)
	result.Hash = digest.Hex()

	// An empty fetch means the collaborator got nothing, not that the source
	// went blank; never embed or index it.
	if digest.IsEmpty() {
		result.Outcome = OutcomeFailed
		result.Err = errors.ValidationError(
			fmt.Sprintf("observation for source %s has no content", obs.SourceID), nil)
		return result
	}

	if !e.checkpoint.HasChanged(obs.SourceID, result.Hash) {
		result.Outcome = OutcomeUnchanged
		return result
	}

	prior, err := e.snapshots.Latest(ctx, obs.SourceID)
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Err = err
		return result
	}
	if prior != nil {
		diffResult, err := e.differ.Diff(ctx, prior.Text, obs.Text)
		if err != nil {
			result.Outcome = OutcomeFailed
			result.Err = err
			return result
		}
		result.Diff = diffResult
	}

	vec, err := e.provider.Embed(ctx, obs.Text)
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Err = errors.New(errors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("failed to embed content for source %s", obs.SourceID), err)
		return result
	}

	docID := fingerprint.DocID(obs.SourceID, digest)
	observedAt := obs.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}

	if err := e.vectors.Upsert(docID, vec, store.Metadata{
		SourceID:     obs.SourceID,
		SnapshotHash: result.Hash,
		Excerpt:      excerpt(obs.Text),
		Tags:         obs.Tags,
		InsertedAt:   observedAt,
	}); err != nil {
		result.Outcome = OutcomeFailed
		result.Err = err
		return result
	}

	if err := e.lexical.Index(ctx, map[string]store.LexicalDocument{
		docID: {Content: obs.Text, SourceID: obs.SourceID},
	}); err != nil {
		result.Outcome = OutcomeFailed
		result.Err = err
		return result
	}

	if err := e.snapshots.Save(ctx, obs.SourceID, obs.Text, obs.Tags, observedAt); err != nil {
		result.Outcome = OutcomeFailed
		result.Err = err
		return result
	}

	result.DocID = docID
	result.Outcome = OutcomeIndexed
	return result
}

// Search embeds the query and returns the top-k nearest entries. When the
// embedding provider is degraded, ranking switches to BM25 keyword matching
// over the indexed text instead of pseudo-embedding distance.
func (e *Engine) Search(ctx context.Context, query string, k int) ([]store.Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New(errors.ErrCodeQueryEmpty, "search query must not be empty", nil)
	}
	if k <= 0 {
		k = e.cfg.Search.TopK
	}

	if e.provider.Degraded() {
		return e.searchLexical(ctx, query, k)
	}

	vec, err := e.provider.Embed(ctx, query)
	if err != nil {
		return nil, errors.New(errors.ErrCodeSearchFailed, "failed to embed query", err)
	}
	return e.vectors.Search(vec, k)
}

// searchLexical is the degraded-mode path: BM25 hits joined back to vector
// index metadata.
func (e *Engine) searchLexical(ctx context.Context, query string, k int) ([]store.Result, error) {
	hits, err := e.lexical.Search(ctx, query, k)
	if err != nil {
		return nil, errors.New(errors.ErrCodeSearchFailed, "lexical search failed", err)
	}

	results := make([]store.Result, 0, len(hits))
	for _, hit := range hits {
		entry, ok := e.vectors.Get(hit.DocID)
		if !ok {
			continue
		}
		results = append(results, store.Result{
			DocID:    hit.DocID,
			Score:    hit.Score,
			Metadata: entry.Metadata,
		})
	}
	return results, nil
}

// Diff compares two texts directly, without touching engine state.
func (e *Engine) Diff(ctx context.Context, oldText, newText string) (*diff.Result, error) {
	return e.differ.Diff(ctx, oldText, newText)
}

// DiffLatest diffs the two most recent archived snapshots of a source.
func (e *Engine) DiffLatest(ctx context.Context, sourceID string) (*diff.Result, error) {
	history, err := e.snapshots.History(ctx, sourceID, 2)
	if err != nil {
		return nil, err
	}
	if len(history) < 2 {
		return nil, errors.ValidationError(
			fmt.Sprintf("source %s has %d archived snapshot(s), need 2 to diff", sourceID, len(history)), nil)
	}
	// History is newest first.
	return e.differ.Diff(ctx, history[1].Text, history[0].Text)
}

// History returns archived snapshots for a source, newest first.
func (e *Engine) History(ctx context.Context, sourceID string, limit int) ([]*snapshot.Snapshot, error) {
	return e.snapshots.History(ctx, sourceID, limit)
}

// Status reports engine state.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	snaps, err := e.snapshots.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &Status{
		IndexedEntries:   e.vectors.Count(),
		TrackedSources:   e.checkpoint.Count(),
		ArchivedSnaps:    snaps,
		EmbeddingModel:   e.provider.ModelName(),
		DegradedEmbedder: e.provider.Degraded(),
	}, nil
}

// Flush persists the vector index to disk.
func (e *Engine) Flush() error {
	return e.vectors.Persist(e.cfg.Paths.IndexDir)
}

// Close flushes and releases everything, including the directory lock.
func (e *Engine) Close() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if e.vectors != nil {
		record(e.vectors.Persist(e.cfg.Paths.IndexDir))
	}
	e.closePartial()
	record(e.lock.Unlock())
	return firstErr
}

// closePartial closes whatever components exist, for teardown paths.
func (e *Engine) closePartial() {
	if e.vectors != nil {
		_ = e.vectors.Close()
	}
	if e.lexical != nil {
		_ = e.lexical.Close()
	}
	if e.snapshots != nil {
		_ = e.snapshots.Close()
	}
	if e.provider != nil {
		_ = e.provider.Close()
	}
}

// excerpt trims text to a bounded, single-spaced preview.
func excerpt(text string) string {
	fields := strings.Fields(text)
	joined := strings.Join(fields, " ")
	if len(joined) <= excerptLimit {
		return joined
	}
	cut := joined[:excerptLimit]
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "…"
}
