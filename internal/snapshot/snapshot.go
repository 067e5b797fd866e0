// Package snapshot archives the observed text of each monitored source so
// changed content can be diffed against what was seen before. SQLite keeps
// the full history per source; the newest row per source is the baseline for
// the next diff.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/civicwatch/radar/internal/errors"
	"github.com/civicwatch/radar/internal/fingerprint"
)

// Snapshot is one archived observation of a source.
type Snapshot struct {
	SourceID   string
	Hash       string
	Text       string
	Tags       []string
	ObservedAt time.Time
}

// Archive stores snapshots in a SQLite database.
type Archive struct {
	db *sql.DB
}

// Open opens or creates a snapshot archive at path. An empty path keeps the
// archive in memory, which the tests use.
func Open(path string) (*Archive, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.New(errors.ErrCodeSnapshotStore, "failed to open snapshot archive", err)
	}

	// WAL mode must be set via PRAGMA for modernc.org/sqlite.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, errors.New(errors.ErrCodeSnapshotStore, fmt.Sprintf("failed to apply %q", pragma), err)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Archive{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id TEXT NOT NULL,
		hash TEXT NOT NULL,
		text TEXT NOT NULL,
		tags TEXT NOT NULL DEFAULT '[]',
		observed_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_source_time
		ON snapshots(source_id, observed_at DESC);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_snapshots_source_hash
		ON snapshots(source_id, hash);
	`
	if _, err := db.Exec(schema); err != nil {
		return errors.New(errors.ErrCodeSnapshotStore, "failed to create snapshot schema", err)
	}
	return nil
}

// Save archives one observation. Re-saving a (source, hash) pair the archive
// already holds is a no-op, so retried cycles do not duplicate history.
func (a *Archive) Save(ctx context.Context, sourceID, text string, tags []string, observedAt time.Time) error {
	if sourceID == "" {
		return errors.ValidationError("source ID must not be empty", nil)
	}

	tagsJSON, err := encodeTags(tags)
	if err != nil {
		return errors.New(errors.ErrCodeSnapshotStore, "failed to encode snapshot tags", err)
	}

	hash := fingerprint.Sum(text).Hex()
	_, err = a.db.ExecContext(ctx, `
		INSERT INTO snapshots (source_id, hash, text, tags, observed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source_id, hash) DO NOTHING
	`, sourceID, hash, text, tagsJSON, observedAt.UTC())
	if err != nil {
		return errors.New(errors.ErrCodeSnapshotStore, "failed to save snapshot", err)
	}
	return nil
}

// Latest returns the most recent snapshot for a source, or (nil, nil) when
// the source has never been observed.
func (a *Archive) Latest(ctx context.Context, sourceID string) (*Snapshot, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT source_id, hash, text, tags, observed_at
		FROM snapshots
		WHERE source_id = ?
		ORDER BY observed_at DESC, id DESC
		LIMIT 1
	`, sourceID)

	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.New(errors.ErrCodeSnapshotStore, "failed to load latest snapshot", err)
	}
	return snap, nil
}

// History returns up to limit snapshots for a source, newest first.
func (a *Archive) History(ctx context.Context, sourceID string, limit int) ([]*Snapshot, error) {
	if limit <= 0 {
		return []*Snapshot{}, nil
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT source_id, hash, text, tags, observed_at
		FROM snapshots
		WHERE source_id = ?
		ORDER BY observed_at DESC, id DESC
		LIMIT ?
	`, sourceID, limit)
	if err != nil {
		return nil, errors.New(errors.ErrCodeSnapshotStore, "failed to load snapshot history", err)
	}
	defer func() { _ = rows.Close() }()

	var snaps []*Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, errors.New(errors.ErrCodeSnapshotStore, "failed to scan snapshot row", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.ErrCodeSnapshotStore, "failed to iterate snapshot rows", err)
	}
	return snaps, nil
}

// Count returns the total number of archived snapshots across all sources.
func (a *Archive) Count(ctx context.Context) (int, error) {
	var n int
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&n); err != nil {
		return 0, errors.New(errors.ErrCodeSnapshotStore, "failed to count snapshots", err)
	}
	return n, nil
}

// Sources returns the distinct source IDs present in the archive.
func (a *Archive) Sources(ctx context.Context) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT DISTINCT source_id FROM snapshots ORDER BY source_id
	`)
	if err != nil {
		return nil, errors.New(errors.ErrCodeSnapshotStore, "failed to list sources", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.New(errors.ErrCodeSnapshotStore, "failed to scan source row", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*Snapshot, error) {
	var snap Snapshot
	var tagsJSON string
	if err := row.Scan(&snap.SourceID, &snap.Hash, &snap.Text, &tagsJSON, &snap.ObservedAt); err != nil {
		return nil, err
	}
	tags, err := decodeTags(tagsJSON)
	if err != nil {
		return nil, err
	}
	snap.Tags = tags
	snap.ObservedAt = snap.ObservedAt.UTC()
	return &snap, nil
}

// encodeTags stores tags as a JSON array; nil and empty both encode as "[]".
func encodeTags(tags []string) (string, error) {
	if len(tags) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeTags(tagsJSON string) ([]string, error) {
	if tagsJSON == "" || tagsJSON == "[]" {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
		return nil, err
	}
	return tags, nil
}
