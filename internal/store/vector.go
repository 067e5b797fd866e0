package store

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// Persisted layout inside the index directory.
const (
	// VectorBlobFile holds the raw vectors: header then float32 rows in
	// insertion order.
	VectorBlobFile = "vectors.bin"

	// MetadataFile holds one JSON record per entry, same order as the blob.
	MetadataFile = "entries.jsonl"

	// vectorBlobMagic marks the blob format.
	vectorBlobMagic = "RVEC"

	// vectorBlobVersion is the current blob format version.
	vectorBlobVersion uint32 = 1
)

// VectorIndex maps document IDs to embeddings and metadata, supporting
// upsert, top-k cosine search, and directory persistence.
//
// Concurrency follows single-writer/multiple-reader discipline: searches run
// in parallel, an upsert holds the write lock for its duration, and readers
// always observe a consistent pre- or post-update snapshot.
//
// Search is exact (full scan) while the index is small. Past
// ExactScanThreshold entries an HNSW graph supplies candidates which are then
// exactly re-scored, so the tie-break ordering stays total either way.
type VectorIndex struct {
	mu     sync.RWMutex
	config VectorIndexConfig

	entries map[string]*Entry
	order   []string // insertion order, drives persisted record order

	// ANN candidate generator for large corpora.
	graph   *hnsw.Graph[uint64]
	idMap   map[string]uint64 // doc ID -> internal key
	keyMap  map[uint64]string // internal key -> doc ID
	nextKey uint64

	closed bool
}

// NewVectorIndex creates an empty index for the given configuration.
func NewVectorIndex(cfg VectorIndexConfig) (*VectorIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vector index dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}
	if cfg.ExactScanThreshold == 0 {
		cfg.ExactScanThreshold = 1024
	}
	if cfg.CandidateMultiplier == 0 {
		cfg.CandidateMultiplier = 4
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &VectorIndex{
		config:  cfg,
		entries: make(map[string]*Entry),
		order:   make([]string, 0),
		graph:   graph,
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
	}, nil
}

// Dimensions returns the fixed vector dimension of this index instance.
func (x *VectorIndex) Dimensions() int {
	return x.config.Dimensions
}

// Upsert inserts or replaces an entry. Doc IDs derive from
// (source, content hash), so re-inserting an ID with the same snapshot hash
// is a no-op; the index never holds two entries with the same ID.
func (x *VectorIndex) Upsert(docID string, vector []float32, meta Metadata) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return fmt.Errorf("index is closed")
	}

	if len(vector) != x.config.Dimensions {
		return ErrDimensionMismatch{Expected: x.config.Dimensions, Got: len(vector)}
	}

	if existing, ok := x.entries[docID]; ok {
		if existing.Metadata.SnapshotHash == meta.SnapshotHash {
			// Identical content, idempotent no-op.
			return nil
		}
		// Replace: lazy-delete the old graph node, keep the order slot.
		if key, mapped := x.idMap[docID]; mapped {
			delete(x.keyMap, key)
			delete(x.idMap, docID)
		}
	} else {
		x.order = append(x.order, docID)
	}

	vec := make([]float32, len(vector))
	copy(vec, vector)
	normalizeVectorInPlace(vec)

	key := x.nextKey
	x.nextKey++
	x.graph.Add(hnsw.MakeNode(key, vec))
	x.idMap[docID] = key
	x.keyMap[key] = docID

	x.entries[docID] = &Entry{DocID: docID, Vector: vec, Metadata: meta}
	return nil
}

// Search returns up to k entries ordered by descending cosine similarity.
// Ties break by most recent inserted_at first, then doc ID ascending, so the
// ordering is total and repeated searches over a fixed index are identical.
// k <= 0 returns an empty result rather than an error.
func (x *VectorIndex) Search(query []float32, k int) ([]Result, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if k <= 0 || len(x.entries) == 0 {
		return []Result{}, nil
	}
	if len(query) != x.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: x.config.Dimensions, Got: len(query)}
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalizeVectorInPlace(q)

	var candidates []string
	if len(x.entries) <= x.config.ExactScanThreshold {
		candidates = x.order
	} else {
		candidates = x.annCandidates(q, k)
	}

	results := make([]Result, 0, len(candidates))
	for _, docID := range candidates {
		entry, ok := x.entries[docID]
		if !ok {
			continue
		}
		results = append(results, Result{
			DocID:    docID,
			Score:    dotProduct(q, entry.Vector),
			Metadata: entry.Metadata,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		ti, tj := results[i].Metadata.InsertedAt, results[j].Metadata.InsertedAt
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return results[i].DocID < results[j].DocID
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// annCandidates pulls an oversampled candidate set from the HNSW graph.
// Caller holds at least a read lock.
func (x *VectorIndex) annCandidates(q []float32, k int) []string {
	n := k * x.config.CandidateMultiplier
	if n < k {
		n = k
	}

	nodes := x.graph.Search(q, n)
	ids := make([]string, 0, len(nodes))
	for _, node := range nodes {
		if id, ok := x.keyMap[node.Key]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Contains checks whether a doc ID exists.
func (x *VectorIndex) Contains(docID string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.entries[docID]
	return ok
}

// Get returns the entry for a doc ID, if present.
func (x *VectorIndex) Get(docID string) (*Entry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	e, ok := x.entries[docID]
	return e, ok
}

// Count returns the number of entries.
func (x *VectorIndex) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Persist serializes the index into dir: a binary vector blob plus a
// line-delimited metadata file, one JSON record per entry, in insertion
// order. Both files are written to temp paths and renamed, so a crashed
// persist never clobbers the previous state.
func (x *VectorIndex) Persist(dir string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return fmt.Errorf("index is closed")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	if err := x.writeVectorBlob(filepath.Join(dir, VectorBlobFile)); err != nil {
		return err
	}
	return x.writeMetadata(filepath.Join(dir, MetadataFile))
}

func (x *VectorIndex) writeVectorBlob(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create vector blob: %w", err)
	}

	w := bufio.NewWriter(f)
	write := func(v any) error { return binary.Write(w, binary.LittleEndian, v) }

	err = func() error {
		if _, err := w.WriteString(vectorBlobMagic); err != nil {
			return err
		}
		if err := write(vectorBlobVersion); err != nil {
			return err
		}
		if err := write(uint32(x.config.Dimensions)); err != nil {
			return err
		}
		if err := write(uint64(len(x.order))); err != nil {
			return err
		}
		for _, docID := range x.order {
			if err := write(x.entries[docID].Vector); err != nil {
				return err
			}
		}
		return w.Flush()
	}()
	if err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write vector blob: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close vector blob: %w", err)
	}
	return os.Rename(tmp, path)
}

// metadataRecord is the persisted JSONL shape for one entry.
type metadataRecord struct {
	DocID string `json:"doc_id"`
	Metadata
}

func (x *VectorIndex) writeMetadata(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create metadata file: %w", err)
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)

	err = func() error {
		for _, docID := range x.order {
			rec := metadataRecord{DocID: docID, Metadata: x.entries[docID].Metadata}
			if err := enc.Encode(&rec); err != nil {
				return err
			}
		}
		return w.Flush()
	}()
	if err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close metadata file: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load restores index state from dir. A missing directory or missing files
// load as an empty index. When the vector blob and the metadata file
// disagree on record count, the index truncates to the common prefix and
// logs a corruption warning: partially unreadable state is recoverable, the
// dropped tail is simply re-indexed on the next cycle.
func (x *VectorIndex) Load(dir string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return fmt.Errorf("index is closed")
	}

	vectors, err := readVectorBlob(filepath.Join(dir, VectorBlobFile), x.config.Dimensions)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // fresh start
		}
		return err
	}

	records, err := readMetadata(filepath.Join(dir, MetadataFile))
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	n := len(vectors)
	if len(records) < n {
		n = len(records)
	}
	if len(vectors) != len(records) {
		slog.Warn("index_corruption_truncated",
			slog.String("dir", dir),
			slog.Int("vectors", len(vectors)),
			slog.Int("metadata_records", len(records)),
			slog.Int("loaded", n))
	}

	x.entries = make(map[string]*Entry, n)
	x.order = make([]string, 0, n)
	x.idMap = make(map[string]uint64, n)
	x.keyMap = make(map[uint64]string, n)
	x.nextKey = 0

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = x.config.M
	graph.EfSearch = x.config.EfSearch
	graph.Ml = 0.25
	x.graph = graph

	for i := 0; i < n; i++ {
		rec := records[i]
		if _, dup := x.entries[rec.DocID]; dup {
			slog.Warn("duplicate_doc_id_skipped", slog.String("doc_id", rec.DocID))
			continue
		}

		key := x.nextKey
		x.nextKey++
		x.graph.Add(hnsw.MakeNode(key, vectors[i]))
		x.idMap[rec.DocID] = key
		x.keyMap[key] = rec.DocID

		x.entries[rec.DocID] = &Entry{DocID: rec.DocID, Vector: vectors[i], Metadata: rec.Metadata}
		x.order = append(x.order, rec.DocID)
	}

	return nil
}

// readVectorBlob reads as many complete vectors as the blob holds. A
// truncated trailing row is dropped, not fatal.
func readVectorBlob(path string, dims int) ([][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReader(f)

	magic := make([]byte, len(vectorBlobMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("failed to read blob header: %w", err)
	}
	if string(magic) != vectorBlobMagic {
		return nil, fmt.Errorf("not a radar vector blob: bad magic %q", magic)
	}

	var version, blobDims uint32
	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("failed to read blob version: %w", err)
	}
	if version != vectorBlobVersion {
		return nil, fmt.Errorf("unsupported vector blob version %d", version)
	}
	if err := binary.Read(r, binary.LittleEndian, &blobDims); err != nil {
		return nil, fmt.Errorf("failed to read blob dimensions: %w", err)
	}
	if int(blobDims) != dims {
		return nil, ErrDimensionMismatch{Expected: dims, Got: int(blobDims)}
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("failed to read blob count: %w", err)
	}

	vectors := make([][]float32, 0, count)
	for i := uint64(0); i < count; i++ {
		vec := make([]float32, dims)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			// Truncated blob: keep the complete prefix.
			slog.Warn("vector_blob_truncated",
				slog.String("path", path),
				slog.Uint64("declared", count),
				slog.Int("read", len(vectors)))
			break
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

// readMetadata reads JSONL records, stopping at the first malformed line.
func readMetadata(path string) ([]metadataRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var records []metadataRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec metadataRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			slog.Warn("metadata_record_malformed",
				slog.String("path", path),
				slog.Int("records_read", len(records)),
				slog.String("error", err.Error()))
			break
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("failed to scan metadata: %w", err)
	}
	return records, nil
}

// Close releases resources. Further calls fail.
func (x *VectorIndex) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return nil
	}
	x.closed = true
	x.graph = nil
	return nil
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}

// dotProduct of two unit vectors is their cosine similarity.
func dotProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
