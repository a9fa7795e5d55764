package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videoproc/internal/adapters/jobstore/memory"
	"videoproc/internal/events"
	"videoproc/internal/jobs"
	"videoproc/internal/models"
	"videoproc/internal/pkg/logger"
	"videoproc/internal/timeline"
	"videoproc/internal/worker/queue"
)

func recoverRequest() timeline.Request {
	return timeline.Request{
		Timeline: &timeline.Timeline{Duration: 2, FPS: 25, Width: 320, Height: 240},
		Clips:    []timeline.Clip{},
	}
}

// durableQueue reports itself durable and counts reclaim calls.
type durableQueue struct {
	*queue.Memory
	reclaimed int
}

func (q *durableQueue) Durable() bool { return true }

func (q *durableQueue) Reclaim(context.Context) (int, error) {
	q.reclaimed++
	return 3, nil
}

func TestRecoverJobsRefillsMemoryQueue(t *testing.T) {
	ctx := context.Background()
	registry := jobs.NewRegistry(memory.New(), events.NewBus(), logger.Nop(), jobs.WithInstance("node-a"))

	first, err := registry.Create(ctx, recoverRequest())
	require.NoError(t, err)
	second, err := registry.Create(ctx, recoverRequest())
	require.NoError(t, err)
	running, err := registry.Create(ctx, recoverRequest())
	require.NoError(t, err)
	_, err = registry.Start(ctx, running.ID)
	require.NoError(t, err)

	q := queue.NewMemory(1)
	require.NoError(t, recoverJobs(ctx, registry, q, logger.Nop()))

	got, err := registry.Get(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, got.Status)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// One queued job fits; the other is failed instead of lost.
	var failed int
	for _, id := range []string{first.ID, second.ID} {
		job, err := registry.Get(ctx, id)
		require.NoError(t, err)
		if job.Status == models.StatusError {
			failed++
			assert.Equal(t, "render queue full after restart", job.Error)
		}
	}
	assert.Equal(t, 1, failed)
}

func TestRecoverJobsReclaimsDurableQueue(t *testing.T) {
	ctx := context.Background()
	registry := jobs.NewRegistry(memory.New(), events.NewBus(), logger.Nop(), jobs.WithInstance("node-a"))

	queued, err := registry.Create(ctx, recoverRequest())
	require.NoError(t, err)

	q := &durableQueue{Memory: queue.NewMemory(4)}
	require.NoError(t, recoverJobs(ctx, registry, q, logger.Nop()))
	assert.Equal(t, 1, q.reclaimed)

	// The durable queue still holds its ids, so nothing is pushed again.
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := registry.Get(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, got.Status)
}
