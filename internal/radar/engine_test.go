package radar

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicwatch/radar/internal/config"
	"github.com/civicwatch/radar/internal/diff"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("RADAR_EMBEDDER", "")

	dir := t.TempDir()
	cfg := config.NewConfig()
	cfg.Paths.IndexDir = filepath.Join(dir, "index")
	cfg.Paths.SnapshotDB = filepath.Join(dir, "snapshots.db")
	cfg.Paths.CheckpointFile = filepath.Join(dir, "checkpoint.json")
	cfg.Embeddings.Provider = "static"
	cfg.Engine.Workers = 4
	return cfg
}

func openTestEngine(t *testing.T, cfg *config.Config) *Engine {
	t.Helper()
	e, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestEngine_IndexDirectoryLockIsExclusive(t *testing.T) {
	// Given: an open engine
	cfg := testConfig(t)
	e := openTestEngine(t, cfg)
	_ = e

	// When: a second engine opens the same index directory
	_, err := Open(context.Background(), cfg)

	// Then: it fails instead of interleaving writes
	require.Error(t, err)
}

func TestEngine_FirstObservationIsIndexedWithoutDiff(t *testing.T) {
	cfg := testConfig(t)
	e := openTestEngine(t, cfg)

	results, err := e.ProcessBatch(context.Background(), []Observation{
		{SourceID: "city-council", Text: "The bridge reopened Monday. Tolls increase in July."},
	})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, OutcomeIndexed, results[0].Outcome)
	assert.NotEmpty(t, results[0].DocID)
	assert.NotEmpty(t, results[0].Hash)
	assert.Nil(t, results[0].Diff, "no baseline to diff against on first sight")
}

func TestEngine_UnchangedContentIsSkipped(t *testing.T) {
	// Given: a source already indexed
	cfg := testConfig(t)
	e := openTestEngine(t, cfg)
	obs := Observation{SourceID: "city-council", Text: "Tolls increase in July."}
	_, err := e.ProcessBatch(context.Background(), []Observation{obs})
	require.NoError(t, err)

	// When: the same content arrives again
	results, err := e.ProcessBatch(context.Background(), []Observation{obs})

	// Then: nothing is reprocessed
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, results[0].Outcome)

	status, err := e.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, status.IndexedEntries)
	assert.Equal(t, 1, status.ArchivedSnaps)
}

func TestEngine_ChangedContentProducesDiff(t *testing.T) {
	// Given: a source with an indexed baseline
	cfg := testConfig(t)
	e := openTestEngine(t, cfg)
	ctx := context.Background()

	_, err := e.ProcessBatch(ctx, []Observation{
		{SourceID: "dot", Text: "The bridge reopened Monday. Tolls increase in July."},
	})
	require.NoError(t, err)

	// When: the source publishes changed content
	results, err := e.ProcessBatch(ctx, []Observation{
		{SourceID: "dot", Text: "The bridge reopened Monday. Tolls increase in August. A new lane was added."},
	})

	// Then: the result carries a sentence-level diff against the baseline
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, OutcomeIndexed, results[0].Outcome)
	require.NotNil(t, results[0].Diff)

	byKind := map[diff.Kind]int{}
	for _, c := range results[0].Diff.Changes {
		byKind[c.Kind]++
	}
	assert.Equal(t, 1, byKind[diff.KindUnchanged])
	assert.Equal(t, 1, byKind[diff.KindModified])
	assert.Equal(t, 1, byKind[diff.KindAdded])
}

func TestEngine_ProcessBatch_SourcesAreIsolated(t *testing.T) {
	// Given: a batch where one observation is invalid
	cfg := testConfig(t)
	e := openTestEngine(t, cfg)

	results, err := e.ProcessBatch(context.Background(), []Observation{
		{SourceID: "council", Text: "Hearing on March 12."},
		{SourceID: "", Text: "orphan text"},
		{SourceID: "dot", Text: "Lane closures this weekend."},
	})

	// Then: the bad observation fails alone
	require.NoError(t, err)
	assert.Equal(t, OutcomeIndexed, results[0].Outcome)
	assert.Equal(t, OutcomeFailed, results[1].Outcome)
	assert.Error(t, results[1].Err)
	assert.Equal(t, OutcomeIndexed, results[2].Outcome)
}

func TestEngine_EmptyContentIsNeverIndexed(t *testing.T) {
	// Given: an observation whose fetch produced nothing
	cfg := testConfig(t)
	e := openTestEngine(t, cfg)
	ctx := context.Background()

	results, err := e.ProcessBatch(ctx, []Observation{
		{SourceID: "dot", Text: ""},
	})

	// Then: it fails as no-content instead of indexing a zero document
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, OutcomeFailed, results[0].Outcome)
	assert.Error(t, results[0].Err)

	status, err := e.Status(ctx)
	require.NoError(t, err)
	assert.Zero(t, status.IndexedEntries)
	assert.Zero(t, status.ArchivedSnaps)

	// And: real content for the same source still indexes afterwards
	results, err = e.ProcessBatch(ctx, []Observation{
		{SourceID: "dot", Text: "Lane closures this weekend."},
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIndexed, results[0].Outcome)
}

func TestEngine_TagsAreArchivedWithSnapshots(t *testing.T) {
	// Given: an observation carrying provenance tags
	cfg := testConfig(t)
	e := openTestEngine(t, cfg)
	ctx := context.Background()

	_, err := e.ProcessBatch(ctx, []Observation{
		{SourceID: "dot", Text: "Lane closures this weekend.", Tags: []string{"transport", "ocr"}},
	})
	require.NoError(t, err)

	// Then: the archived snapshot history carries the tags, not just the index
	snaps, err := e.History(ctx, "dot", 1)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, []string{"transport", "ocr"}, snaps[0].Tags)
}

func TestEngine_Search_FindsRelevantSource(t *testing.T) {
	cfg := testConfig(t)
	e := openTestEngine(t, cfg)
	ctx := context.Background()

	_, err := e.ProcessBatch(ctx, []Observation{
		{SourceID: "dot", Text: "Bridge tolls increase starting in July."},
		{SourceID: "council", Text: "Public hearing rescheduled to March 12."},
		{SourceID: "library", Text: "The library will close for renovations."},
	})
	require.NoError(t, err)

	results, err := e.Search(ctx, "bridge tolls", 2)

	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "dot", results[0].Metadata.SourceID)
}

func TestEngine_Search_EmptyQueryFails(t *testing.T) {
	cfg := testConfig(t)
	e := openTestEngine(t, cfg)

	_, err := e.Search(context.Background(), "   ", 5)
	assert.Error(t, err)
}

func TestEngine_StatePersistsAcrossReopen(t *testing.T) {
	// Given: an engine that indexed two sources and shut down
	cfg := testConfig(t)
	ctx := context.Background()

	e, err := Open(ctx, cfg)
	require.NoError(t, err)
	_, err = e.ProcessBatch(ctx, []Observation{
		{SourceID: "dot", Text: "Bridge tolls increase starting in July."},
		{SourceID: "council", Text: "Public hearing rescheduled to March 12."},
	})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	// When: a new engine opens the same state
	reopened := openTestEngine(t, cfg)

	// Then: index, checkpoints, and snapshots are all back
	status, err := reopened.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.IndexedEntries)
	assert.Equal(t, 2, status.TrackedSources)
	assert.Equal(t, 2, status.ArchivedSnaps)

	// And: unchanged content is still recognized as unchanged
	results, err := reopened.ProcessBatch(ctx, []Observation{
		{SourceID: "dot", Text: "Bridge tolls increase starting in July."},
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, results[0].Outcome)

	// And: search still works against the reloaded vectors
	hits, err := reopened.Search(ctx, "public hearing", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "council", hits[0].Metadata.SourceID)
}

func TestEngine_DiffLatest(t *testing.T) {
	cfg := testConfig(t)
	e := openTestEngine(t, cfg)
	ctx := context.Background()

	_, err := e.ProcessBatch(ctx, []Observation{
		{SourceID: "dot", Text: "Tolls increase in July.", ObservedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
	})
	require.NoError(t, err)
	_, err = e.ProcessBatch(ctx, []Observation{
		{SourceID: "dot", Text: "Tolls increase in August.", ObservedAt: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)},
	})
	require.NoError(t, err)

	result, err := e.DiffLatest(ctx, "dot")
	require.NoError(t, err)
	require.Len(t, result.Changes, 1)
	assert.Equal(t, diff.KindModified, result.Changes[0].Kind)
	assert.Equal(t, "Tolls increase in July.", result.Changes[0].BeforeText)
	assert.Equal(t, "Tolls increase in August.", result.Changes[0].AfterText)

	// A source with a single snapshot cannot be diffed.
	_, err = e.ProcessBatch(ctx, []Observation{{SourceID: "fresh", Text: "First sighting."}})
	require.NoError(t, err)
	_, err = e.DiffLatest(ctx, "fresh")
	assert.Error(t, err)
}

func TestEngine_DegradedProviderFallsBackToLexicalSearch(t *testing.T) {
	// Given: an engine whose embedding backend is unreachable
	cfg := testConfig(t)
	cfg.Embeddings.Provider = "ollama"
	cfg.Embeddings.Host = "http://127.0.0.1:1" // nothing listens here
	e := openTestEngine(t, cfg)
	ctx := context.Background()

	_, err := e.ProcessBatch(ctx, []Observation{
		{SourceID: "dot", Text: "Bridge tolls increase starting in July."},
		{SourceID: "council", Text: "Public hearing rescheduled to March 12."},
	})
	require.NoError(t, err)

	status, err := e.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.DegradedEmbedder)

	// When: searching in degraded mode
	results, err := e.Search(ctx, "tolls", 5)

	// Then: keyword matching still finds the right source
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "dot", results[0].Metadata.SourceID)
}
