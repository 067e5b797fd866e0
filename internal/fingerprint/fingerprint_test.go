package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSum_IsDeterministic(t *testing.T) {
	// Given: the same text fingerprinted twice
	d1 := Sum("Tolls increase in July.")
	d2 := Sum("Tolls increase in July.")

	// Then: digests are identical
	assert.Equal(t, d1, d2)
}

func TestSum_DifferentTextsDiffer(t *testing.T) {
	d1 := Sum("Tolls increase in July.")
	d2 := Sum("Tolls increase in August.")

	assert.NotEqual(t, d1, d2)
}

func TestSum_EmptyTextIsWellDefined(t *testing.T) {
	// Given: empty text
	d := Sum("")

	// Then: the digest is the SHA-256 of the empty string and flagged empty
	assert.True(t, d.IsEmpty())
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", d.Hex())
}

func TestSum_NonEmptyTextIsNotEmpty(t *testing.T) {
	assert.False(t, Sum("content").IsEmpty())
}

func TestHex_RoundTrip(t *testing.T) {
	d := Sum("bridge reopened")

	parsed, ok := ParseHex(d.Hex())
	require.True(t, ok)
	assert.Equal(t, d, parsed)
}

func TestParseHex_RejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"short", "abcd"},
		{"not hex", "zz0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ParseHex(tt.input)
			assert.False(t, ok)
		})
	}
}

func TestShort_Is16HexChars(t *testing.T) {
	d := Sum("anything")
	assert.Len(t, d.Short(), 16)
	assert.Equal(t, d.Hex()[:16], d.Short())
}

func TestDocID_StablePerSourceAndContent(t *testing.T) {
	d := Sum("The bridge reopened Monday.")

	// Same (source, content) pair always derives the same ID
	assert.Equal(t, DocID("city-council", d), DocID("city-council", d))

	// Different source or content gives a different ID
	assert.NotEqual(t, DocID("city-council", d), DocID("dot-notices", d))
	assert.NotEqual(t, DocID("city-council", d), DocID("city-council", Sum("other")))
}
