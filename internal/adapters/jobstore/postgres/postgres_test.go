package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videoproc/internal/models"
	"videoproc/internal/pkg/errors"
	"videoproc/internal/timeline"
)

// openTest connects to VIDEOPROC_TEST_DATABASE_URL; the database is migrated
// and jobs created by the test are removed afterwards.
func openTest(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("VIDEOPROC_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("VIDEOPROC_TEST_DATABASE_URL not set")
	}
	s, err := Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	assert.Equal(t, "postgres", s.Kind())
	require.NoError(t, s.Ping(ctx))

	req := timeline.Request{
		Timeline: &timeline.Timeline{Duration: 4, FPS: 25, Width: 1920, Height: 1080},
		Clips: []timeline.Clip{
			{ID: "img", Type: timeline.KindImage, Duration: 4, Src: "https://example.com/a.png",
				Size: timeline.Size{Width: 100, Height: 100}},
		},
	}
	job := models.NewRenderJob(time.Now().UTC())
	t.Cleanup(func() { _ = s.Delete(context.Background(), job.ID) })

	require.NoError(t, s.Create(ctx, job, req))
	assert.True(t, errors.IsCode(s.Create(ctx, job, req), errors.CodeConflict))

	stored, err := s.Request(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a.png", stored.Clips[0].Src)

	now := time.Now().UTC()
	job.Status = models.StatusDone
	job.Progress = 100
	job.OutputPath = "/tmp/out.mp4"
	job.Owner = "api-1"
	job.StartedAt = &now
	job.FinishedAt = &now
	require.NoError(t, s.Update(ctx, job))

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, "/tmp/out.mp4", got.OutputPath)
	require.NotNil(t, got.FinishedAt)
	assert.WithinDuration(t, now, *got.FinishedAt, time.Millisecond)
	assert.Equal(t, "api-1", got.Owner)

	require.NoError(t, s.DropRequest(ctx, job.ID))
	_, err = s.Request(ctx, job.ID)
	assert.True(t, errors.IsNotFound(err))

	list, err := s.List(ctx)
	require.NoError(t, err)
	var found bool
	for _, j := range list {
		found = found || j.ID == job.ID
	}
	assert.True(t, found)

	require.NoError(t, s.Delete(ctx, job.ID))
	_, err = s.Get(ctx, job.ID)
	assert.True(t, errors.IsNotFound(err))
	assert.True(t, errors.IsNotFound(s.Update(ctx, job)))
}
