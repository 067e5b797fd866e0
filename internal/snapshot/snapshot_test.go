package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestArchive_Latest_UnknownSourceReturnsNil(t *testing.T) {
	a := newMemArchive(t)

	snap, err := a.Latest(context.Background(), "never-seen")

	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestArchive_SaveAndLatest(t *testing.T) {
	// Given: two observations of the same source
	a := newMemArchive(t)
	ctx := context.Background()
	t1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(24 * time.Hour)

	require.NoError(t, a.Save(ctx, "city-council", "Tolls increase in July.", nil, t1))
	require.NoError(t, a.Save(ctx, "city-council", "Tolls increase in August.", nil, t2))

	// When: loading the latest snapshot
	snap, err := a.Latest(ctx, "city-council")

	// Then: it is the newer observation
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "Tolls increase in August.", snap.Text)
	assert.True(t, snap.ObservedAt.Equal(t2))
	assert.NotEmpty(t, snap.Hash)
}

func TestArchive_TagsSurviveArchiving(t *testing.T) {
	// Given: observations carrying provenance tags
	a := newMemArchive(t)
	ctx := context.Background()
	base := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, a.Save(ctx, "dot", "Road closure on Main Street.", []string{"transport", "ocr"}, base))
	require.NoError(t, a.Save(ctx, "dot", "Road closure lifted.", nil, base.Add(time.Hour)))

	// Then: Latest returns the newest snapshot's tags (none)
	snap, err := a.Latest(ctx, "dot")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Empty(t, snap.Tags)

	// And: History preserves each snapshot's own tags
	history, err := a.History(ctx, "dot", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Empty(t, history[0].Tags)
	assert.Equal(t, []string{"transport", "ocr"}, history[1].Tags)
}

func TestArchive_Save_DuplicateContentIsNoOp(t *testing.T) {
	// Given: the same text saved twice (a retried cycle)
	a := newMemArchive(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, a.Save(ctx, "dot", "Road closure on Main Street.", nil, now))
	require.NoError(t, a.Save(ctx, "dot", "Road closure on Main Street.", nil, now.Add(time.Hour)))

	// Then: history holds a single row
	count, err := a.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestArchive_History_NewestFirst(t *testing.T) {
	a := newMemArchive(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, text := range []string{"version one", "version two", "version three"} {
		require.NoError(t, a.Save(ctx, "council", text, nil, base.Add(time.Duration(i)*time.Hour)))
	}

	history, err := a.History(ctx, "council", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "version three", history[0].Text)
	assert.Equal(t, "version two", history[1].Text)
}

func TestArchive_History_ZeroLimitReturnsEmpty(t *testing.T) {
	a := newMemArchive(t)
	require.NoError(t, a.Save(context.Background(), "s", "text", nil, time.Now()))

	history, err := a.History(context.Background(), "s", 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestArchive_Sources(t *testing.T) {
	a := newMemArchive(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, a.Save(ctx, "dot", "a", nil, now))
	require.NoError(t, a.Save(ctx, "council", "b", nil, now))
	require.NoError(t, a.Save(ctx, "dot", "c", nil, now.Add(time.Hour)))

	sources, err := a.Sources(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"council", "dot"}, sources)
}

func TestArchive_Save_RejectsEmptySourceID(t *testing.T) {
	a := newMemArchive(t)
	err := a.Save(context.Background(), "", "text", nil, time.Now())
	assert.Error(t, err)
}

func TestArchive_PersistsAcrossReopen(t *testing.T) {
	// Given: a file-backed archive with one snapshot
	path := t.TempDir() + "/snapshots.db"
	a, err := Open(path)
	require.NoError(t, err)

	observedAt := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, a.Save(context.Background(), "council", "Hearing moved to May 12.", nil, observedAt))
	require.NoError(t, a.Close())

	// When: reopening the same path
	reopened, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	// Then: the snapshot survives
	snap, err := reopened.Latest(context.Background(), "council")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "Hearing moved to May 12.", snap.Text)
}
