package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vectorMagnitude(v []float32) float64 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return math.Sqrt(sum)
}

func TestStaticEmbedder_Embed_ReturnsCorrectDimensions(t *testing.T) {
	// Given: static embedder with default dimensions
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	// When: I embed a sentence
	embedding, err := embedder.Embed(context.Background(), "The bridge reopened Monday.")

	// Then: a vector of the default dimension is returned
	require.NoError(t, err)
	assert.Len(t, embedding, StaticDimensions)
}

func TestStaticEmbedder_Embed_CustomDimensions(t *testing.T) {
	// Given: static embedder matched to a 768-dimension primary
	embedder := NewStaticEmbedderWithDimensions(768)
	defer func() { _ = embedder.Close() }()

	embedding, err := embedder.Embed(context.Background(), "Tolls increase in July.")

	require.NoError(t, err)
	assert.Len(t, embedding, 768)
	assert.Equal(t, 768, embedder.Dimensions())
}

func TestStaticEmbedder_Embed_VectorIsNormalized(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	embedding, err := embedder.Embed(context.Background(), "Public comment period extended to May 30.")
	require.NoError(t, err)

	magnitude := vectorMagnitude(embedding)
	assert.InDelta(t, 1.0, magnitude, 0.001, "vector should be normalized to unit length")
}

func TestStaticEmbedder_Embed_IsDeterministic(t *testing.T) {
	// Given: static embedder
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	text := "The zoning variance was approved by a 4-1 vote."

	// When: I embed the same text twice
	emb1, err1 := embedder.Embed(context.Background(), text)
	emb2, err2 := embedder.Embed(context.Background(), text)

	// Then: identical vectors are returned
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, emb1, emb2, "same text should produce identical vectors")
}

func TestStaticEmbedder_Embed_DeterministicAcrossInstances(t *testing.T) {
	embedder1 := NewStaticEmbedder()
	embedder2 := NewStaticEmbedder()
	defer func() { _ = embedder1.Close() }()
	defer func() { _ = embedder2.Close() }()

	text := "Permit applications are due by the first business day of each month."

	emb1, _ := embedder1.Embed(context.Background(), text)
	emb2, _ := embedder2.Embed(context.Background(), text)

	assert.Equal(t, emb1, emb2, "same text should produce identical vectors across instances")
}

func TestStaticEmbedder_Embed_DifferentTextsProduceDifferentVectors(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	emb1, _ := embedder.Embed(context.Background(), "Tolls increase in July.")
	emb2, _ := embedder.Embed(context.Background(), "A new lane was added.")

	assert.NotEqual(t, emb1, emb2, "different texts should produce different vectors")
}

func TestStaticEmbedder_Embed_LexicalOverlapRaisesSimilarity(t *testing.T) {
	// Given: two near-identical sentences and one unrelated sentence
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	ctx := context.Background()
	a, _ := embedder.Embed(ctx, "Tolls increase in July.")
	b, _ := embedder.Embed(ctx, "Tolls increase in August.")
	c, _ := embedder.Embed(ctx, "The library will close for renovations.")

	// Then: the near-pair scores higher than the unrelated pair
	assert.Greater(t, CosineSimilarity(a, b), CosineSimilarity(a, c))
}

func TestStaticEmbedder_Embed_EmptyInput_ReturnsZeroVector(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	embedding, err := embedder.Embed(context.Background(), "   ")

	require.NoError(t, err)
	assert.Len(t, embedding, StaticDimensions)
	for i, v := range embedding {
		require.Equal(t, float32(0), v, "element %d should be zero", i)
	}
}

func TestStaticEmbedder_EmbedBatch_PreservesOrderAndLength(t *testing.T) {
	// Given: a batch with an empty element in the middle
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	texts := []string{"first notice", "", "third notice"}

	// When: I embed the batch
	vecs, err := embedder.EmbedBatch(context.Background(), texts)

	// Then: output length equals input length, order preserved
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	single, _ := embedder.Embed(context.Background(), "first notice")
	assert.Equal(t, single, vecs[0])
	assert.Equal(t, make([]float32, StaticDimensions), vecs[1])
}

func TestStaticEmbedder_Closed_RejectsCalls(t *testing.T) {
	embedder := NewStaticEmbedder()
	require.NoError(t, embedder.Close())

	_, err := embedder.Embed(context.Background(), "text")
	assert.Error(t, err)
	assert.False(t, embedder.Available(context.Background()))
}
