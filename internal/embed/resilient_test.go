package embed

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicwatch/radar/internal/errors"
)

// unavailableEmbedder always reports the backend as unreachable.
type unavailableEmbedder struct {
	dims  int
	calls int
}

func (u *unavailableEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	u.calls++
	return nil, errors.BackendUnavailable("connection refused", nil)
}

func (u *unavailableEmbedder) EmbedBatch(_ context.Context, _ []string) ([][]float32, error) {
	u.calls++
	return nil, errors.BackendUnavailable("connection refused", nil)
}

func (u *unavailableEmbedder) Dimensions() int                 { return u.dims }
func (u *unavailableEmbedder) ModelName() string               { return "unavailable-test" }
func (u *unavailableEmbedder) Available(_ context.Context) bool { return false }
func (u *unavailableEmbedder) Close() error                    { return nil }

// brokenEmbedder fails with a non-backend error (programmer error).
type brokenEmbedder struct{ dims int }

func (b *brokenEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, fmt.Errorf("unexpected internal failure")
}

func (b *brokenEmbedder) EmbedBatch(_ context.Context, _ []string) ([][]float32, error) {
	return nil, fmt.Errorf("unexpected internal failure")
}

func (b *brokenEmbedder) Dimensions() int                 { return b.dims }
func (b *brokenEmbedder) ModelName() string               { return "broken-test" }
func (b *brokenEmbedder) Available(_ context.Context) bool { return true }
func (b *brokenEmbedder) Close() error                    { return nil }

func TestResilientEmbedder_FallsBackWhenBackendUnavailable(t *testing.T) {
	// Given: a primary that always signals BackendUnavailable
	primary := &unavailableEmbedder{dims: 384}
	embedder := NewResilientEmbedder(primary, 0)
	defer func() { _ = embedder.Close() }()

	texts := []string{"The bridge reopened Monday.", "Tolls increase in July.", ""}

	// When: I embed a batch
	vecs, err := embedder.EmbedBatch(context.Background(), texts)

	// Then: every input gets a vector, none omitted
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	for i, v := range vecs {
		assert.Len(t, v, 384, "vector %d has wrong dimension", i)
	}

	// And: the embedder reports degradation rather than hiding it
	assert.True(t, embedder.Degraded())
}

func TestResilientEmbedder_FallbackIsDeterministic(t *testing.T) {
	// Given: two independent degraded embedders
	e1 := NewResilientEmbedder(&unavailableEmbedder{dims: 384}, 0)
	e2 := NewResilientEmbedder(&unavailableEmbedder{dims: 384}, 0)
	defer func() { _ = e1.Close() }()
	defer func() { _ = e2.Close() }()

	text := "Public hearing rescheduled to March 12."

	v1, err1 := e1.Embed(context.Background(), text)
	v2, err2 := e2.Embed(context.Background(), text)

	// Then: identical text yields identical fallback vectors
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, v1, v2)
}

func TestResilientEmbedder_StopsCallingPrimaryOnceDegraded(t *testing.T) {
	// Given: a degraded embedder
	primary := &unavailableEmbedder{dims: 384}
	embedder := NewResilientEmbedder(primary, 0)
	defer func() { _ = embedder.Close() }()

	_, err := embedder.EmbedBatch(context.Background(), []string{"a"})
	require.NoError(t, err)
	callsAfterFirst := primary.calls

	// When: more batches arrive
	_, err = embedder.EmbedBatch(context.Background(), []string{"b"})
	require.NoError(t, err)

	// Then: the unreachable backend is not hammered again
	assert.Equal(t, callsAfterFirst, primary.calls)
}

func TestResilientEmbedder_NonBackendErrorsPropagate(t *testing.T) {
	// Given: a primary failing with a non-backend error
	embedder := NewResilientEmbedder(&brokenEmbedder{dims: 384}, 0)
	defer func() { _ = embedder.Close() }()

	// When: I embed
	_, err := embedder.Embed(context.Background(), "text")

	// Then: the error is propagated, not masked by fallback
	require.Error(t, err)
	assert.False(t, embedder.Degraded())
}

func TestResilientEmbedder_NilPrimaryStartsDegraded(t *testing.T) {
	embedder := NewResilientEmbedder(nil, 512)
	defer func() { _ = embedder.Close() }()

	assert.True(t, embedder.Degraded())
	assert.Equal(t, 512, embedder.Dimensions())

	vec, err := embedder.Embed(context.Background(), "notice text")
	require.NoError(t, err)
	assert.Len(t, vec, 512)
}

func TestIsBackendUnavailable(t *testing.T) {
	assert.True(t, IsBackendUnavailable(errors.BackendUnavailable("down", nil)))
	assert.True(t, IsBackendUnavailable(fmt.Errorf("wrapped: %w", errors.BackendUnavailable("down", nil))))
	assert.False(t, IsBackendUnavailable(fmt.Errorf("other failure")))
	assert.False(t, IsBackendUnavailable(nil))
}
