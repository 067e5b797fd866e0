package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinator_UnseenSourceHasChanged(t *testing.T) {
	c, err := Open("")
	require.NoError(t, err)

	assert.True(t, c.HasChanged("city-council", "hash-a"))
	assert.Empty(t, c.LastHash("city-council"))
}

func TestCoordinator_CommitThenUnchanged(t *testing.T) {
	// Given: a committed hash
	c, err := Open("")
	require.NoError(t, err)
	require.NoError(t, c.Commit("city-council", "hash-a"))

	// Then: the same hash no longer reads as changed, a new one does
	assert.False(t, c.HasChanged("city-council", "hash-a"))
	assert.True(t, c.HasChanged("city-council", "hash-b"))
	assert.Equal(t, "hash-a", c.LastHash("city-council"))
}

func TestCoordinator_PersistsAcrossReopen(t *testing.T) {
	// Given: a coordinator with two committed sources
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	c, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, c.Commit("council", "hash-a"))
	require.NoError(t, c.Commit("dot", "hash-b"))

	// When: reopening from disk
	reopened, err := Open(path)
	require.NoError(t, err)

	// Then: state survives
	assert.Equal(t, 2, reopened.Count())
	assert.False(t, reopened.HasChanged("council", "hash-a"))
	assert.Equal(t, "hash-b", reopened.LastHash("dot"))
}

func TestCoordinator_Forget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	c, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, c.Commit("council", "hash-a"))

	require.NoError(t, c.Forget("council"))
	assert.True(t, c.HasChanged("council", "hash-a"))

	// Forgetting an unknown source is a no-op.
	require.NoError(t, c.Forget("never-seen"))
}

func TestCoordinator_RepeatedCommitIsIdempotent(t *testing.T) {
	c, err := Open("")
	require.NoError(t, err)

	require.NoError(t, c.Commit("council", "hash-a"))
	require.NoError(t, c.Commit("council", "hash-a"))

	assert.Equal(t, 1, c.Count())
}

func TestCoordinator_ConcurrentCommitsAcrossSources(t *testing.T) {
	// Given: many sources committed in parallel, the way a worker pool does
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	c, err := Open(path)
	require.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sourceID := fmt.Sprintf("source-%02d", i)
			errs[i] = c.Commit(sourceID, fmt.Sprintf("hash-%02d", i))
		}(i)
	}
	wg.Wait()

	// Then: every commit landed
	for i, err := range errs {
		require.NoError(t, err, "commit %d failed", i)
	}
	assert.Equal(t, n, c.Count())

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, n, reopened.Count())
	assert.Equal(t, "hash-07", reopened.LastHash("source-07"))
}

func TestCoordinator_CorruptFileStartsFresh(t *testing.T) {
	// Given: a checkpoint file holding garbage
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	require.NoError(t, writeFile(path, "{not json"))

	// When: opening it
	c, err := Open(path)

	// Then: the engine is not bricked, state starts empty, and the bad file
	// is preserved alongside for inspection
	require.NoError(t, err)
	assert.Zero(t, c.Count())
	assert.FileExists(t, path+".corrupt")

	// And: commits land in a clean file again
	require.NoError(t, c.Commit("council", "hash-a"))
	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, "hash-a", reopened.LastHash("council"))
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
