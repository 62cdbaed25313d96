package floe

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEngineErrorWrapping(t *testing.T) {
	err := NewEngineError(ErrorKindBookmarkNotFound, "bookmark bmk_123 not found")
	require.Equal(t, "bookmark_not_found: bookmark bmk_123 not found", err.Error())

	// Sentinel matching via errors.Is
	require.True(t, errors.Is(err, ErrBookmarkNotFound))
	require.False(t, errors.Is(err, ErrContextNotFound))

	// Structured access via errors.As
	var engineErr *EngineError
	wrapped := fmt.Errorf("seeding failed: %w", err)
	require.True(t, errors.As(wrapped, &engineErr))
	require.Equal(t, ErrorKindBookmarkNotFound, engineErr.Kind)
	require.True(t, errors.Is(wrapped, ErrBookmarkNotFound))
}

func TestClassifyError(t *testing.T) {
	t.Run("plain errors become activity faults", func(t *testing.T) {
		classified := ClassifyError(errors.New("boom"))
		require.Equal(t, ErrorKindActivityFault, classified.Kind)
		require.Equal(t, "boom", classified.Cause)
	})

	t.Run("engine errors pass through", func(t *testing.T) {
		original := NewEngineError(ErrorKindScheduleRejected, "not in graph")
		classified := ClassifyError(fmt.Errorf("wrapped: %w", original))
		require.Equal(t, ErrorKindScheduleRejected, classified.Kind)
	})
}

func TestMatchesErrorKind(t *testing.T) {
	require.True(t, MatchesErrorKind(errors.New("anything"), ErrorKindActivityFault))
	require.True(t, MatchesErrorKind(NewEngineError(ErrorKindStateVersionMismatch, "v9"), ErrorKindStateVersionMismatch))
	require.False(t, MatchesErrorKind(NewEngineError(ErrorKindStateVersionMismatch, "v9"), ErrorKindActivityFault))
}
