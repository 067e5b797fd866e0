package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryFromCode(t *testing.T) {
	tests := []struct {
		code     string
		category Category
	}{
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeIndexCorruption, CategoryIO},
		{ErrCodeBackendUnavailable, CategoryNetwork},
		{ErrCodeInvalidInput, CategoryValidation},
		{ErrCodeInternal, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "message", nil)
			assert.Equal(t, tt.category, err.Category)
		})
	}
}

func TestNew_DerivesSeverityAndRetryable(t *testing.T) {
	// Backend unavailability is retryable and non-fatal.
	backend := BackendUnavailable("connection refused", nil)
	assert.True(t, backend.Retryable)
	assert.Equal(t, SeverityWarning, backend.Severity)

	// A locked index must abort.
	locked := New(ErrCodeIndexLocked, "index is locked", nil)
	assert.False(t, locked.Retryable)
	assert.Equal(t, SeverityFatal, locked.Severity)
	assert.True(t, IsFatal(locked))

	// Corruption is recovered by truncation, so it is a warning.
	corrupt := CorruptionError("truncated metadata", nil)
	assert.Equal(t, SeverityWarning, corrupt.Severity)

	// Checkpoint writes are retried next cycle.
	ckpt := CheckpointWriteError("disk full", nil)
	assert.True(t, IsRetryable(ckpt))
}

func TestRadarError_ErrorStringIncludesCode(t *testing.T) {
	err := New(ErrCodeQueryEmpty, "search query must not be empty", nil)
	assert.Equal(t, "[ERR_403_QUERY_EMPTY] search query must not be empty", err.Error())
}

func TestRadarError_UnwrapAndIs(t *testing.T) {
	// Given: a wrapped cause
	cause := fmt.Errorf("dial tcp: connection refused")
	err := BackendUnavailable("backend down", cause)

	// Then: the chain unwinds to the cause
	assert.Equal(t, cause, stderrors.Unwrap(err))
	assert.True(t, stderrors.Is(err, cause))

	// And: Is matches by code, not identity
	assert.True(t, stderrors.Is(err, BackendUnavailable("other message", nil)))
	assert.False(t, stderrors.Is(err, InternalError("other", nil)))
}

func TestRadarError_AsThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("cycle failed: %w", CheckpointWriteError("rename failed", nil))

	var re *RadarError
	require.True(t, stderrors.As(wrapped, &re))
	assert.Equal(t, ErrCodeCheckpointWrite, re.Code)
}

func TestRadarError_DetailAndSuggestionChaining(t *testing.T) {
	err := CorruptionError("metadata shorter than vector blob", nil).
		WithDetail("vectors", "10").
		WithDetail("records", "8").
		WithSuggestion("the dropped tail re-indexes on the next cycle")

	assert.Equal(t, "10", err.Details["vectors"])
	assert.Equal(t, "8", err.Details["records"])
	assert.NotEmpty(t, err.Suggestion)
}

func TestWrap(t *testing.T) {
	cause := fmt.Errorf("no such file")
	err := Wrap(ErrCodeConfigNotFound, cause)
	require.NotNil(t, err)
	assert.Equal(t, ErrCodeConfigNotFound, err.Code)
	assert.Equal(t, cause.Error(), err.Message)

	assert.Nil(t, Wrap(ErrCodeConfigNotFound, nil))
}

func TestHelpers_NonRadarErrors(t *testing.T) {
	plain := fmt.Errorf("plain error")
	assert.False(t, IsRetryable(plain))
	assert.False(t, IsFatal(plain))
	assert.Empty(t, GetCode(plain))
	assert.Empty(t, GetCategory(plain))
	assert.False(t, IsRetryable(nil))
}
