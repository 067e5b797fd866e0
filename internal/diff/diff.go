// Package diff computes sentence-level semantic diffs between two snapshots
// of the same source. Sentences from both texts are embedded, aligned
// greedily by cosine similarity, and classified as added, deleted, modified,
// or unchanged.
package diff

import (
	"context"
	"sort"

	"github.com/civicwatch/radar/internal/embed"
	"github.com/civicwatch/radar/internal/errors"
)

// Kind classifies one sentence in a diff.
type Kind string

const (
	KindAdded     Kind = "added"
	KindDeleted   Kind = "deleted"
	KindModified  Kind = "modified"
	KindUnchanged Kind = "unchanged"
)

// SentenceChange is one classified sentence. BeforeText is set for deleted,
// modified, and unchanged entries; AfterText for added, modified, and
// unchanged. Similarity carries the cosine score for aligned pairs.
type SentenceChange struct {
	Kind       Kind    `json:"kind"`
	BeforeText string  `json:"before_text,omitempty"`
	AfterText  string  `json:"after_text,omitempty"`
	Similarity float64 `json:"similarity_score,omitempty"`
}

// Result is the outcome of one diff. Changes preserve the new text's
// sentence order, with deletions interleaved near their original position.
// Degraded is true when the embedding provider was running on the
// hash-based fallback: the structure of the diff is still valid, but
// modified-vs-unchanged classification leans on lexical overlap only.
type Result struct {
	Changes  []SentenceChange `json:"sentence_changes"`
	Degraded bool             `json:"degraded,omitempty"`
}

// Default classification thresholds. Aligned pairs below MinSimilarity are
// treated as unrelated; pairs at or above IdenticalThreshold as unchanged.
const (
	DefaultMinSimilarity      = 0.35
	DefaultIdenticalThreshold = 0.92
)

// Config holds the differ's similarity thresholds.
type Config struct {
	MinSimilarity      float64
	IdenticalThreshold float64
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		MinSimilarity:      DefaultMinSimilarity,
		IdenticalThreshold: DefaultIdenticalThreshold,
	}
}

// EmbeddingSource is what the differ needs from the embedding layer: batch
// embedding plus visibility into fallback mode.
type EmbeddingSource interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Degraded() bool
}

// Differ aligns and classifies sentences between two snapshots.
type Differ struct {
	source EmbeddingSource
	config Config
}

// New creates a differ over the given embedding source.
func New(source EmbeddingSource, cfg Config) *Differ {
	if cfg.MinSimilarity == 0 && cfg.IdenticalThreshold == 0 {
		cfg = DefaultConfig()
	}
	return &Differ{source: source, config: cfg}
}

// Diff compares oldText and newText sentence by sentence.
//
// Alignment is greedy: candidate pairs are ranked by similarity and the best
// unmatched pair is taken repeatedly, stopping below MinSimilarity. Greedy
// matching is an approximation of optimal assignment; for change reports,
// recall of "something changed" matters more than a minimal edit script.
func (d *Differ) Diff(ctx context.Context, oldText, newText string) (*Result, error) {
	oldSents := SplitSentences(oldText)
	newSents := SplitSentences(newText)

	result := &Result{Changes: []SentenceChange{}}

	if len(oldSents) == 0 && len(newSents) == 0 {
		return result, nil
	}
	if len(oldSents) == 0 {
		for _, s := range newSents {
			result.Changes = append(result.Changes, SentenceChange{Kind: KindAdded, AfterText: s})
		}
		return result, nil
	}
	if len(newSents) == 0 {
		for _, s := range oldSents {
			result.Changes = append(result.Changes, SentenceChange{Kind: KindDeleted, BeforeText: s})
		}
		return result, nil
	}

	// One batched call for both sides.
	all := make([]string, 0, len(oldSents)+len(newSents))
	all = append(all, oldSents...)
	all = append(all, newSents...)

	vecs, err := d.source.EmbedBatch(ctx, all)
	if err != nil {
		return nil, errors.New(errors.ErrCodeDiffFailed, "failed to embed sentences for diff", err)
	}
	if len(vecs) != len(all) {
		return nil, errors.InternalError("embedding count mismatch", nil)
	}
	oldVecs := vecs[:len(oldSents)]
	newVecs := vecs[len(oldSents):]

	matchOldToNew, similarities := d.align(oldSents, newSents, oldVecs, newVecs)

	result.Changes = assemble(oldSents, newSents, matchOldToNew, similarities, d.config.IdenticalThreshold)
	result.Degraded = d.source.Degraded()
	return result, nil
}

// candidate is one scored old/new sentence pair.
type candidate struct {
	oldIdx int
	newIdx int
	score  float64
}

// align runs greedy best-match assignment. It returns old index -> new index
// for matched pairs and the similarity of each match keyed by old index.
func (d *Differ) align(oldSents, newSents []string, oldVecs, newVecs [][]float32) (map[int]int, map[int]float64) {
	candidates := make([]candidate, 0, len(oldSents)*len(newSents))
	for i := range oldSents {
		for j := range newSents {
			score := embed.CosineSimilarity(oldVecs[i], newVecs[j])
			// Exact text equality beats any embedding noise.
			if oldSents[i] == newSents[j] {
				score = 1.0
			}
			if score >= d.config.MinSimilarity {
				candidates = append(candidates, candidate{oldIdx: i, newIdx: j, score: score})
			}
		}
	}

	// Rank by score; index tie-breaks keep the ordering total so repeated
	// diffs over the same inputs are identical.
	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].score != candidates[b].score {
			return candidates[a].score > candidates[b].score
		}
		if candidates[a].oldIdx != candidates[b].oldIdx {
			return candidates[a].oldIdx < candidates[b].oldIdx
		}
		return candidates[a].newIdx < candidates[b].newIdx
	})

	matchOldToNew := make(map[int]int)
	matchedNew := make(map[int]bool)
	similarities := make(map[int]float64)
	for _, c := range candidates {
		if _, taken := matchOldToNew[c.oldIdx]; taken || matchedNew[c.newIdx] {
			continue
		}
		matchOldToNew[c.oldIdx] = c.newIdx
		matchedNew[c.newIdx] = true
		similarities[c.oldIdx] = c.score
	}
	return matchOldToNew, similarities
}

// assemble builds the output in the new text's sentence order, interleaving
// deletions after the nearest surviving old sentence so the diff reads in
// document order.
func assemble(oldSents, newSents []string, matchOldToNew map[int]int, similarities map[int]float64, identicalThreshold float64) []SentenceChange {
	matchNewToOld := make(map[int]int, len(matchOldToNew))
	for i, j := range matchOldToNew {
		matchNewToOld[j] = i
	}

	// Anchor each deleted old sentence to the nearest preceding matched old
	// sentence; anchor -1 means before everything.
	deletionsByAnchor := make(map[int][]int)
	lastMatched := -1
	for i := range oldSents {
		if _, matched := matchOldToNew[i]; matched {
			lastMatched = i
			continue
		}
		deletionsByAnchor[lastMatched] = append(deletionsByAnchor[lastMatched], i)
	}

	changes := make([]SentenceChange, 0, len(oldSents)+len(newSents))
	appendDeletions := func(anchor int) {
		for _, i := range deletionsByAnchor[anchor] {
			changes = append(changes, SentenceChange{Kind: KindDeleted, BeforeText: oldSents[i]})
		}
	}

	appendDeletions(-1)
	for j, sent := range newSents {
		i, matched := matchNewToOld[j]
		if !matched {
			changes = append(changes, SentenceChange{Kind: KindAdded, AfterText: sent})
			continue
		}

		kind := KindModified
		if similarities[i] >= identicalThreshold {
			kind = KindUnchanged
		}
		changes = append(changes, SentenceChange{
			Kind:       kind,
			BeforeText: oldSents[i],
			AfterText:  sent,
			Similarity: similarities[i],
		})
		appendDeletions(i)
	}
	return changes
}
