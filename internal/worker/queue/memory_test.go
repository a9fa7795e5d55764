package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videoproc/internal/pkg/errors"
	"videoproc/internal/ports"
)

var _ ports.JobQueue = (*Memory)(nil)
var _ ports.JobQueue = (*RedisQueue)(nil)

func TestMemoryFIFO(t *testing.T) {
	ctx := context.Background()
	q := NewMemory(3)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Push(ctx, id))
	}
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, want := range []string{"a", "b", "c"} {
		got, err := q.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.False(t, q.Durable())
}

func TestMemoryFull(t *testing.T) {
	ctx := context.Background()
	q := NewMemory(1)
	require.NoError(t, q.Push(ctx, "a"))

	err := q.Push(ctx, "b")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeResourceExhaust))
	assert.Equal(t, 429, errors.GetHTTPStatus(err))
}

func TestMemoryPopHonoursContext(t *testing.T) {
	q := NewMemory(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryDefaultCapacity(t *testing.T) {
	assert.Equal(t, 100, NewMemory(0).Capacity())
}
