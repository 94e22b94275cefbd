package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapPreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(ConnectionError, "acquiring connection", cause)

	assert.Equal(t, cause, errors.Unwrap(err))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestAsExtractsThroughWrapping(t *testing.T) {
	inner := New(CycleDetected, "link would create a cycle")
	outer := errors.New("wrapped: " + inner.Error())

	_, ok := As(outer)
	assert.False(t, ok, "a plain error should not be extractable")

	e, ok := As(inner)
	assert.True(t, ok)
	assert.Equal(t, CycleDetected, e.Kind)

	wrapped := fmt.Errorf("wrapped: %w", inner)
	e, ok = As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, CycleDetected, e.Kind)
}

func TestKindOfDefaultsToFatal(t *testing.T) {
	assert.Equal(t, Fatal, KindOf(errors.New("unclassified")))
	assert.Equal(t, NotFound, KindOf(New(NotFound, "no such block")))
}

func TestWithDetailsMergesWithoutMutatingOriginal(t *testing.T) {
	base := New(Validation, "bad metadata").WithDetails(map[string]any{"field": "title"})
	extended := base.WithDetails(map[string]any{"type": "task"})

	assert.Equal(t, "title", base.Details["field"])
	_, hasType := base.Details["type"]
	assert.False(t, hasType, "WithDetails must not mutate the receiver")

	assert.Equal(t, "title", extended.Details["field"])
	assert.Equal(t, "task", extended.Details["type"])
}

func TestIsConnectionErrorMatchesKindAndText(t *testing.T) {
	assert.True(t, IsConnectionError(New(ConnectionError, "pool exhausted")))
	assert.True(t, IsConnectionError(errors.New("dial tcp: connection refused")))
	assert.True(t, IsConnectionError(errors.New("mysql: server has gone away")))
	assert.False(t, IsConnectionError(New(Validation, "bad input")))
	assert.False(t, IsConnectionError(nil))
}
