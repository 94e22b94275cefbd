package pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemaphoreAcquireRelease(t *testing.T) {
	sem := newSemaphore(2)
	ctx := context.Background()

	require.NoError(t, sem.acquire(ctx))
	require.NoError(t, sem.acquire(ctx))
	assert.Equal(t, 2, sem.inUse())

	sem.release()
	assert.Equal(t, 1, sem.inUse())
}

func TestSemaphoreBlocksWhenFull(t *testing.T) {
	sem := newSemaphore(1)
	ctx := context.Background()
	require.NoError(t, sem.acquire(ctx))

	ctx2, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	err := sem.acquire(ctx2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSemaphoreReleaseWithoutAcquireIsSafe(t *testing.T) {
	sem := newSemaphore(1)
	assert.NotPanics(t, func() { sem.release() })
	assert.Equal(t, 0, sem.inUse())
}
