package errors

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stageError struct{ msg string }

func (e *stageError) Error() string                 { return e.msg }
func (e *stageError) ErrorCategory() ErrorCategory { return CategoryBoundary }

func TestBuilderDefaults(t *testing.T) {
	err := New(NewStd("plain")).Build()
	assert.Equal(t, CategoryGeneric, err.Category)
	assert.Equal(t, "plain", err.Error())
	assert.False(t, err.Timestamp.IsZero())
}

func TestBuilderContext(t *testing.T) {
	err := New(NewStd("timeout")).
		Component("oracle").
		Category(CategoryOracle).
		Context("endpoint", "http://localhost").
		Timing("detect", 1500*time.Millisecond).
		Build()

	assert.Equal(t, "oracle", err.Component)
	ctx := err.GetContext()
	assert.Equal(t, "http://localhost", ctx["endpoint"])
	assert.Equal(t, int64(1500), ctx["duration_ms"])

	ctx["endpoint"] = "mutated"
	assert.Equal(t, "http://localhost", err.GetContext()["endpoint"])
}

func TestBuilderInheritsCategory(t *testing.T) {
	inner := &stageError{msg: "side too short"}
	err := New(fmt.Errorf("detect: %w", inner)).Build()
	assert.Equal(t, CategoryBoundary, err.Category)
}

func TestIsAndAs(t *testing.T) {
	inner := &stageError{msg: "bad"}
	wrapped := New(inner).Category(CategoryBoundary).Build()

	assert.True(t, Is(wrapped, inner))
	assert.True(t, Is(wrapped, &EnhancedError{Category: CategoryBoundary}))
	assert.False(t, Is(wrapped, &EnhancedError{Category: CategoryOracle}))

	var se *stageError
	require.True(t, As(wrapped, &se))
	assert.Equal(t, "bad", se.msg)
}

func TestIsCategory(t *testing.T) {
	err := fmt.Errorf("form 3: %w", &stageError{msg: "x"})
	assert.True(t, IsCategory(err, CategoryBoundary))
	assert.False(t, IsCategory(err, CategoryImageLoad))
	assert.False(t, IsCategory(nil, CategoryBoundary))
	assert.Equal(t, CategoryBoundary, CategoryOf(err))
	assert.Equal(t, CategoryGeneric, CategoryOf(NewStd("x")))
}
