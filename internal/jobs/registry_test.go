package jobs

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videoproc/internal/adapters/jobstore/memory"
	"videoproc/internal/events"
	"videoproc/internal/models"
	"videoproc/internal/pkg/errors"
	"videoproc/internal/pkg/logger"
	"videoproc/internal/timeline"
)

func request() timeline.Request {
	return timeline.Request{
		Timeline: &timeline.Timeline{Duration: 3, FPS: 25, Width: 320, Height: 240},
		Clips:    []timeline.Clip{},
	}
}

func newRegistry() (*Registry, *memory.Store, *events.Bus) {
	store := memory.New()
	bus := events.NewBus()
	return NewRegistry(store, bus, logger.Nop()), store, bus
}

func TestRegistryHappyPath(t *testing.T) {
	ctx := context.Background()
	r, _, bus := newRegistry()

	job, err := r.Create(ctx, request())
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, job.Status)
	assert.Equal(t, 0, job.Progress)

	sub := bus.Subscribe(job.ID)

	started, err := r.Start(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, started.Status)
	require.NotNil(t, started.StartedAt)

	require.NoError(t, r.Progress(ctx, job.ID, 40))
	require.NoError(t, r.Complete(ctx, job.ID, "/tmp/j/output.mp4", "renders/j/video.mp4"))

	got, err := r.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, "/tmp/j/output.mp4", got.OutputPath)
	assert.Equal(t, "renders/j/video.mp4", got.OutputKey)
	require.NotNil(t, got.FinishedAt)

	var statuses []models.JobStatus
	for len(sub) > 0 {
		statuses = append(statuses, (<-sub).Status)
	}
	assert.Equal(t, []models.JobStatus{models.StatusProcessing, models.StatusProcessing, models.StatusDone}, statuses)
}

func TestRegistryStartRequiresQueued(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newRegistry()

	job, err := r.Create(ctx, request())
	require.NoError(t, err)
	_, err = r.Start(ctx, job.ID)
	require.NoError(t, err)

	_, err = r.Start(ctx, job.ID)
	assert.True(t, errors.IsCode(err, errors.CodeConflict))

	_, err = r.Start(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))
}

func TestRegistryProgressMonotonicAndClamped(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newRegistry()

	job, err := r.Create(ctx, request())
	require.NoError(t, err)

	// queued jobs do not accept progress
	require.NoError(t, r.Progress(ctx, job.ID, 20))
	got, _ := r.Get(ctx, job.ID)
	assert.Equal(t, 0, got.Progress)

	_, err = r.Start(ctx, job.ID)
	require.NoError(t, err)

	steps := []struct{ in, want int }{
		{30, 30},
		{10, 30},
		{-5, 30},
		{75, 75},
		{250, 100},
	}
	for _, s := range steps {
		require.NoError(t, r.Progress(ctx, job.ID, s.in))
		got, err := r.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, s.want, got.Progress, "after progress %d", s.in)
	}
}

func TestRegistryTerminalStatesAreFinal(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newRegistry()

	job, err := r.Create(ctx, request())
	require.NoError(t, err)
	_, err = r.Start(ctx, job.ID)
	require.NoError(t, err)
	require.NoError(t, r.Progress(ctx, job.ID, 50))
	require.NoError(t, r.Fail(ctx, job.ID, "ffmpeg exited"))

	require.NoError(t, r.Complete(ctx, job.ID, "/x", ""))
	require.NoError(t, r.Progress(ctx, job.ID, 90))
	require.NoError(t, r.Fail(ctx, job.ID, "second failure"))

	got, err := r.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, got.Status)
	assert.Equal(t, "ffmpeg exited", got.Error)
	assert.Equal(t, 50, got.Progress)
	assert.Empty(t, got.OutputPath)
}

func TestRegistryFailTruncatesMessage(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newRegistry()

	job, err := r.Create(ctx, request())
	require.NoError(t, err)
	require.NoError(t, r.Fail(ctx, job.ID, strings.Repeat("x", 5000)))

	got, err := r.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, got.Error, MaxErrorLength)
}

func TestRegistryDeleteClosesSubscribers(t *testing.T) {
	ctx := context.Background()
	r, _, bus := newRegistry()

	job, err := r.Create(ctx, request())
	require.NoError(t, err)
	sub := bus.Subscribe(job.ID)

	require.NoError(t, r.Delete(ctx, job.ID))
	require.NoError(t, r.Delete(ctx, job.ID))

	_, open := <-sub
	assert.False(t, open)
	_, err = r.Get(ctx, job.ID)
	assert.True(t, errors.IsNotFound(err))
}

func TestRegistryRecover(t *testing.T) {
	ctx := context.Background()
	r, store, _ := newRegistry()

	queued, err := r.Create(ctx, request())
	require.NoError(t, err)
	running, err := r.Create(ctx, request())
	require.NoError(t, err)
	_, err = r.Start(ctx, running.ID)
	require.NoError(t, err)
	done, err := r.Create(ctx, request())
	require.NoError(t, err)
	_, err = r.Start(ctx, done.ID)
	require.NoError(t, err)
	require.NoError(t, r.Complete(ctx, done.ID, "/out.mp4", ""))

	ids, err := r.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{queued.ID}, ids)

	got, err := store.Get(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, got.Status)
	assert.Equal(t, InterruptedMessage, got.Error)

	got, err = store.Get(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, got.Status)
}

func TestRegistryRecoverLeavesOtherInstancesRenders(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a := NewRegistry(store, events.NewBus(), logger.Nop(), WithInstance("api-a"))
	b := NewRegistry(store, events.NewBus(), logger.Nop(), WithInstance("api-b"))

	mine, err := b.Create(ctx, request())
	require.NoError(t, err)
	started, err := b.Start(ctx, mine.ID)
	require.NoError(t, err)
	assert.Equal(t, "api-b", started.Owner)

	theirs, err := a.Create(ctx, request())
	require.NoError(t, err)
	_, err = a.Start(ctx, theirs.ID)
	require.NoError(t, err)

	// b restarts while a keeps rendering
	_, err = b.Recover(ctx)
	require.NoError(t, err)

	got, err := store.Get(ctx, mine.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, got.Status)

	got, err = store.Get(ctx, theirs.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, got.Status)

	require.NoError(t, a.Complete(ctx, theirs.ID, "/out.mp4", ""))
	got, err = store.Get(ctx, theirs.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, got.Status)
}

func TestRegistryReleasesRequestWhenTerminal(t *testing.T) {
	ctx := context.Background()
	r, store, _ := newRegistry()

	done, err := r.Create(ctx, request())
	require.NoError(t, err)
	_, err = r.Start(ctx, done.ID)
	require.NoError(t, err)
	require.NoError(t, r.Progress(ctx, done.ID, 60))

	req, err := r.Request(ctx, done.ID)
	require.NoError(t, err, "progress updates keep the request")
	assert.Equal(t, 320, req.Timeline.Width)

	require.NoError(t, r.Complete(ctx, done.ID, "/out.mp4", ""))
	_, err = store.Request(ctx, done.ID)
	assert.True(t, errors.IsNotFound(err))

	failed, err := r.Create(ctx, request())
	require.NoError(t, err)
	require.NoError(t, r.Fail(ctx, failed.ID, "boom"))
	_, err = r.Request(ctx, failed.ID)
	assert.True(t, errors.IsNotFound(err))

	// the records stay readable
	got, err := r.Get(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, got.Status)
}

func TestRegistryExpired(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newRegistry()

	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }

	old, err := r.Create(ctx, request())
	require.NoError(t, err)
	require.NoError(t, r.Fail(ctx, old.ID, "boom"))

	clock = clock.Add(2 * time.Hour)
	fresh, err := r.Create(ctx, request())
	require.NoError(t, err)
	require.NoError(t, r.Fail(ctx, fresh.ID, "boom"))

	_, err = r.Create(ctx, request())
	require.NoError(t, err)

	expired, err := r.Expired(ctx, clock.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, old.ID, expired[0].ID)
}
