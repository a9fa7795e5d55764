package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videoproc/internal/models"
	"videoproc/internal/pkg/errors"
	"videoproc/internal/timeline"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newJob(created time.Time) *models.RenderJob {
	return models.NewRenderJob(created)
}

func clipRequest() timeline.Request {
	return timeline.Request{
		Timeline: &timeline.Timeline{Duration: 5, FPS: 30, Width: 1280, Height: 720, BackgroundColor: "black"},
		Clips: []timeline.Clip{
			{ID: "v1", Type: timeline.KindVideo, Start: 1, Duration: 2, Src: "https://example.com/a.mp4",
				Position: timeline.Point{X: 10, Y: 20}, Size: timeline.Size{Width: 50, Height: 50}},
			{ID: "t1", Type: timeline.KindText, Duration: 1, Content: "hello",
				Style: &timeline.TextStyle{FontSize: 32, Color: "white"}},
		},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	assert.Equal(t, "sqlite", s.Kind())
	assert.True(t, s.Durable())
	require.NoError(t, s.Ping(ctx))

	job := newJob(time.Now().UTC())
	require.NoError(t, s.Create(ctx, job, clipRequest()))
	assert.True(t, errors.IsCode(s.Create(ctx, job, clipRequest()), errors.CodeConflict))

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, got.Status)
	assert.True(t, job.CreatedAt.Equal(got.CreatedAt))
	assert.Nil(t, got.StartedAt)

	req, err := s.Request(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, req.Timeline)
	assert.Equal(t, 1280, req.Timeline.Width)
	require.Len(t, req.Clips, 2)
	assert.Equal(t, "https://example.com/a.mp4", req.Clips[0].Src)
	require.NotNil(t, req.Clips[1].Style)
	assert.Equal(t, "hello", req.Clips[1].Content)

	now := time.Now().UTC()
	got.Owner = "api-2"
	got.Status = models.StatusDone
	got.Progress = 100
	got.OutputPath = "/tmp/x/output.mp4"
	got.StartedAt = &now
	got.FinishedAt = &now
	got.UpdatedAt = now
	require.NoError(t, s.Update(ctx, got))

	again, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, again.Status)
	assert.Equal(t, 100, again.Progress)
	assert.Equal(t, "/tmp/x/output.mp4", again.OutputPath)
	assert.Equal(t, "api-2", again.Owner)
	require.NotNil(t, again.FinishedAt)
	assert.True(t, now.Equal(*again.FinishedAt))

	require.NoError(t, s.DropRequest(ctx, job.ID))
	require.NoError(t, s.DropRequest(ctx, job.ID))
	_, err = s.Request(ctx, job.ID)
	assert.True(t, errors.IsNotFound(err))
	_, err = s.Get(ctx, job.ID)
	require.NoError(t, err)
}

func TestStoreMissingAndDelete(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	_, err := s.Get(ctx, "nope")
	assert.True(t, errors.IsNotFound(err))
	assert.True(t, errors.IsNotFound(s.Update(ctx, newJob(time.Now()))))

	job := newJob(time.Now())
	require.NoError(t, s.Create(ctx, job, clipRequest()))
	require.NoError(t, s.Delete(ctx, job.ID))
	require.NoError(t, s.Delete(ctx, job.ID))

	_, err = s.Get(ctx, job.ID)
	assert.True(t, errors.IsNotFound(err))
	_, err = s.Request(ctx, job.ID)
	assert.True(t, errors.IsNotFound(err))
}

func TestStoreListOrdered(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	base := time.Now().UTC()
	second := newJob(base.Add(time.Second))
	first := newJob(base)
	require.NoError(t, s.Create(ctx, second, clipRequest()))
	require.NoError(t, s.Create(ctx, first, clipRequest()))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
}

func TestStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "jobs.db")

	s, err := Open(path)
	require.NoError(t, err)
	job := newJob(time.Now())
	require.NoError(t, s.Create(ctx, job, clipRequest()))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
}

func TestMigrationMovesPendingRequests(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "jobs.db")

	// a database still on the first schema version
	registerHook()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	goose.SetBaseFS(migrations)
	require.NoError(t, goose.SetDialect("sqlite3"))
	require.NoError(t, goose.UpTo(db, "migrations", 1))

	insert := `INSERT INTO render_jobs (id, status, request_json, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`
	now := time.Now().UnixNano()
	_, err = db.ExecContext(ctx, insert, "pending", "queued", `{"clips":[{"id":"c1","type":"text"}]}`, now, now)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, insert, "finished", "done", `{"clips":[]}`, now, now)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	req, err := s.Request(ctx, "pending")
	require.NoError(t, err)
	require.Len(t, req.Clips, 1)
	assert.Equal(t, "c1", req.Clips[0].ID)

	_, err = s.Request(ctx, "finished")
	assert.True(t, errors.IsNotFound(err))

	got, err := s.Get(ctx, "finished")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, got.Status)
	assert.Empty(t, got.Owner)
}
