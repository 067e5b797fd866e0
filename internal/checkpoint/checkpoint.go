// Package checkpoint tracks the last indexed content hash per source, so a
// processing cycle can skip sources whose content has not changed and safely
// resume after a crash.
//
// Write ordering is the crash-consistency contract: a hash is committed only
// after the corresponding index mutation has committed. On restart a source
// whose checkpoint write did not land is simply reprocessed; since index
// insertion is idempotent that costs one redundant re-index, never a lost
// update.
package checkpoint

import (
	"encoding/json"
	"hash/fnv"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/civicwatch/radar/internal/errors"
)

// lockStripes bounds lock granularity: sources hash onto a fixed set of
// mutexes so parallel cycles over different sources rarely contend, without
// a mutex per source.
const lockStripes = 32

// Record is the persisted state for one source.
type Record struct {
	Hash        string    `json:"hash"`
	CommittedAt time.Time `json:"committed_at"`
}

// Coordinator maps source IDs to the hash of their last indexed content.
type Coordinator struct {
	path string

	mu      sync.RWMutex // guards records map shape and persistence
	records map[string]Record

	stripes [lockStripes]sync.Mutex // per-source commit ordering
}

// Open loads the checkpoint file at path, creating empty state when the file
// does not exist yet.
func Open(path string) (*Coordinator, error) {
	c := &Coordinator{
		path:    path,
		records: make(map[string]Record),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, errors.New(errors.ErrCodeCheckpointWrite, "failed to read checkpoint file", err)
	}

	if err := json.Unmarshal(data, &c.records); err != nil {
		// A torn write from a crash mid-rename should be impossible, but a
		// corrupt file must not brick the engine: move it aside, start fresh,
		// and let idempotent re-indexing rebuild the state.
		aside := path + ".corrupt"
		_ = os.Rename(path, aside)
		slog.Warn("checkpoint_corrupt_reset",
			slog.String("path", path),
			slog.String("moved_to", aside),
			slog.String("error", err.Error()))
		c.records = make(map[string]Record)
	}
	return c, nil
}

// lockFor returns the stripe mutex for a source ID.
func (c *Coordinator) lockFor(sourceID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sourceID))
	return &c.stripes[h.Sum32()%lockStripes]
}

// HasChanged reports whether hash differs from the last committed hash for
// the source. A source never seen before has always changed.
func (c *Coordinator) HasChanged(sourceID, hash string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[sourceID]
	return !ok || rec.Hash != hash
}

// LastHash returns the committed hash for a source, or "" when unseen.
func (c *Coordinator) LastHash(sourceID string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.records[sourceID].Hash
}

// Commit records hash as indexed for the source and persists the mapping.
// The caller invokes this only after the index mutation has committed.
// Commits for different sources may run in parallel; commits for the same
// source serialize on a per-source stripe so the mapping never regresses.
func (c *Coordinator) Commit(sourceID, hash string) error {
	stripe := c.lockFor(sourceID)
	stripe.Lock()
	defer stripe.Unlock()

	c.mu.Lock()
	if rec, ok := c.records[sourceID]; ok && rec.Hash == hash {
		c.mu.Unlock()
		return nil
	}
	c.records[sourceID] = Record{Hash: hash, CommittedAt: time.Now().UTC()}
	err := c.persistLocked()
	c.mu.Unlock()

	if err != nil {
		return errors.CheckpointWriteError("failed to persist checkpoint for "+sourceID, err)
	}
	return nil
}

// Forget drops a source from the checkpoint, forcing reprocessing on the
// next cycle.
func (c *Coordinator) Forget(sourceID string) error {
	stripe := c.lockFor(sourceID)
	stripe.Lock()
	defer stripe.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.records[sourceID]; !ok {
		return nil
	}
	delete(c.records, sourceID)
	if err := c.persistLocked(); err != nil {
		return errors.CheckpointWriteError("failed to persist checkpoint after forgetting "+sourceID, err)
	}
	return nil
}

// Sources returns the tracked source IDs.
func (c *Coordinator) Sources() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.records))
	for id := range c.records {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of tracked sources.
func (c *Coordinator) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// persistLocked writes the mapping atomically: marshal, write to a temp file
// in the same directory, rename over the target. Caller holds c.mu.
func (c *Coordinator) persistLocked() error {
	if c.path == "" {
		return nil // in-memory coordinator, used in tests
	}

	data, err := json.MarshalIndent(c.records, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, c.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
