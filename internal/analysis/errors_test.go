package analysis

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnnotate(t *testing.T) {
	t.Run("stamps a copy, never the original", func(t *testing.T) {
		// Arrange - the original may be cached and shared by waiters
		original := ErrInvalidParameter("radius must be positive")

		// Act
		annotated := Annotate(original, "interpolation", "idw", "fp-1")

		// Assert
		var comp *ComputationError
		require.ErrorAs(t, annotated, &comp)
		assert.Equal(t, "interpolation", comp.Category)
		assert.Equal(t, "idw", comp.Method)
		assert.Equal(t, "fp-1", comp.Fingerprint)
		assert.NotSame(t, original, comp)
		assert.Empty(t, original.Category)
		assert.Empty(t, original.Method)
		assert.Empty(t, original.Fingerprint)
	})

	t.Run("keeps the wrap chain reachable", func(t *testing.T) {
		// Arrange - a computation error buried under a partition wrapper
		inner := ErrSingularMatrix("degenerate samples")
		wrapped := &PartitionFailure{Partition: 2, Err: inner}

		// Act
		annotated := Annotate(wrapped, "interpolation", "kriging", "fp-2")

		// Assert - the stamp surfaces first, the original chain follows
		var comp *ComputationError
		require.ErrorAs(t, annotated, &comp)
		assert.Equal(t, "kriging", comp.Method)
		assert.Equal(t, CodeSingularMatrix, comp.Code())
		var pf *PartitionFailure
		assert.ErrorAs(t, annotated, &pf)
		assert.Empty(t, inner.Method)
	})

	t.Run("stamps cancellation errors", func(t *testing.T) {
		original := &CancelledError{}

		annotated := Annotate(original, "network", "centrality", "fp-3")

		var cancelled *CancelledError
		require.ErrorAs(t, annotated, &cancelled)
		assert.Equal(t, "centrality", cancelled.Method)
		assert.Empty(t, original.Method)
	})

	t.Run("passes through unrelated errors and nil", func(t *testing.T) {
		plain := fmt.Errorf("disk on fire")

		assert.Same(t, plain, Annotate(plain, "c", "m", "fp"))
		assert.NoError(t, Annotate(nil, "c", "m", "fp"))
	})

	t.Run("annotated errors stay errors.Is-comparable", func(t *testing.T) {
		sentinel := errors.New("root cause")
		wrapped := &ComputationError{ErrCode: CodeComputation, Message: "boom", Err: sentinel}

		annotated := Annotate(wrapped, "pattern", "quadrat", "fp-4")

		assert.ErrorIs(t, annotated, sentinel)
	})
}
