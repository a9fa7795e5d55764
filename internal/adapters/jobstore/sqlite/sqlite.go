// Package sqlite stores render jobs in a single-file SQLite database
// (modernc.org/sqlite, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"

	"videoproc/internal/models"
	"videoproc/internal/pkg/errors"
	"videoproc/internal/timeline"
)

//go:embed migrations/*.sql
var migrations embed.FS

const columns = `id, status, progress, output_path, output_key, error_text, owner,
	created_at, updated_at, started_at, finished_at`

type Store struct {
	db *sql.DB
}

var hookOnce sync.Once

func registerHook() {
	hookOnce.Do(func() {
		sqlite.RegisterConnectionHook(func(conn sqlite.ExecQuerierContext, dsn string) error {
			pragmas := []string{
				"PRAGMA journal_mode = WAL",
				"PRAGMA busy_timeout = 5000",
				"PRAGMA synchronous = NORMAL",
			}
			for _, p := range pragmas {
				if _, err := conn.ExecContext(context.Background(), p, nil); err != nil {
					return fmt.Errorf("execute %s: %w", p, err)
				}
			}
			return nil
		})
	})
}

// Open opens (or creates) the database at path and applies migrations.
func Open(path string) (*Store, error) {
	registerHook()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite.open", "open database")
	}

	// one writer; WAL still lets readers through
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "sqlite.open", "set goose dialect")
	}
	if err := goose.Up(db, "migrations"); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "sqlite.open", "run migrations")
	}

	return &Store{db: db}, nil
}

func (s *Store) Kind() string  { return "sqlite" }
func (s *Store) Durable() bool { return true }

func (s *Store) Create(ctx context.Context, job *models.RenderJob, req timeline.Request) error {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "sqlite.create", "encode request")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "sqlite.create", "begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO render_jobs (`+columns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)
	`, job.ID, string(job.Status), job.Progress, job.OutputPath, job.OutputKey, job.Error, job.Owner,
		job.CreatedAt.UnixNano(), job.UpdatedAt.UnixNano(), nanos(job.StartedAt), nanos(job.FinishedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return errors.Conflict("job already exists").WithField("id", job.ID)
		}
		return errors.Wrap(err, "sqlite.create", "insert job")
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO render_job_requests (job_id, request_json) VALUES (?, ?)`, job.ID, string(reqJSON))
	if err != nil {
		return errors.Wrap(err, "sqlite.create", "insert request")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "sqlite.create", "commit")
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*models.RenderJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM render_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("job", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "sqlite.get", "load job")
	}
	return job, nil
}

func (s *Store) Update(ctx context.Context, job *models.RenderJob) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE render_jobs
		SET status = ?, progress = ?, output_path = ?, output_key = ?, error_text = ?, owner = ?,
		    updated_at = ?, started_at = ?, finished_at = ?
		WHERE id = ?
	`, string(job.Status), job.Progress, job.OutputPath, job.OutputKey, job.Error, job.Owner,
		job.UpdatedAt.UnixNano(), nanos(job.StartedAt), nanos(job.FinishedAt), job.ID)
	if err != nil {
		return errors.Wrap(err, "sqlite.update", "update job")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "sqlite.update", "rows affected")
	}
	if n == 0 {
		return errors.NotFound("job", job.ID)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "sqlite.delete", "begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM render_job_requests WHERE job_id = ?`, id); err != nil {
		return errors.Wrap(err, "sqlite.delete", "delete request")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM render_jobs WHERE id = ?`, id); err != nil {
		return errors.Wrap(err, "sqlite.delete", "delete job")
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "sqlite.delete", "commit")
	}
	return nil
}

func (s *Store) Request(ctx context.Context, id string) (timeline.Request, error) {
	var (
		req     timeline.Request
		reqJSON string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT request_json FROM render_job_requests WHERE job_id = ?`, id).Scan(&reqJSON)
	if stderrors.Is(err, sql.ErrNoRows) {
		return req, errors.NotFound("request", id)
	}
	if err != nil {
		return req, errors.Wrap(err, "sqlite.request", "load request")
	}
	if err := json.Unmarshal([]byte(reqJSON), &req); err != nil {
		return req, errors.Wrap(err, "sqlite.request", "decode request")
	}
	return req, nil
}

func (s *Store) DropRequest(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM render_job_requests WHERE job_id = ?`, id); err != nil {
		return errors.Wrap(err, "sqlite.drop_request", "delete request")
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]*models.RenderJob, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+columns+` FROM render_jobs ORDER BY created_at ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite.list", "query jobs")
	}
	defer rows.Close()

	var out []*models.RenderJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "sqlite.list", "scan job")
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite.list", "iterate jobs")
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*models.RenderJob, error) {
	var (
		job                  models.RenderJob
		status               string
		createdAt, updatedAt int64
		startedAt            sql.NullInt64
		finishedAt           sql.NullInt64
	)
	err := row.Scan(&job.ID, &status, &job.Progress, &job.OutputPath, &job.OutputKey, &job.Error, &job.Owner,
		&createdAt, &updatedAt, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	job.Status = models.JobStatus(status)
	job.CreatedAt = time.Unix(0, createdAt).UTC()
	job.UpdatedAt = time.Unix(0, updatedAt).UTC()
	job.StartedAt = fromNanos(startedAt)
	job.FinishedAt = fromNanos(finishedAt)
	return &job, nil
}

func nanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNanos(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}
