// Package postgres stores render jobs in PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	stderrors "errors"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"videoproc/internal/models"
	"videoproc/internal/pkg/errors"
	"videoproc/internal/timeline"
)

//go:embed migrations/*.sql
var migrations embed.FS

const columns = `id, status, progress, output_path, output_key, error_text, owner,
	created_at, updated_at, started_at, finished_at`

type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn, verifies the connection and applies migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "postgres.open", "create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "postgres.open", "ping")
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Migrate applies the embedded goose migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return errors.Wrap(err, "postgres.migrate", "open migrations")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return errors.Wrap(err, "postgres.migrate", "create migration provider")
	}
	if _, err := provider.Up(ctx); err != nil {
		return errors.Wrap(err, "postgres.migrate", "run migrations")
	}
	return nil
}

func (s *Store) Kind() string  { return "postgres" }
func (s *Store) Durable() bool { return true }

func (s *Store) Create(ctx context.Context, job *models.RenderJob, req timeline.Request) error {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "postgres.create", "encode request")
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO render_jobs (`+columns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, job.ID, string(job.Status), job.Progress, job.OutputPath, job.OutputKey, job.Error, job.Owner,
			job.CreatedAt, job.UpdatedAt, job.StartedAt, job.FinishedAt)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO render_job_requests (job_id, request_json) VALUES ($1, $2)`, job.ID, string(reqJSON))
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("job already exists").WithField("id", job.ID)
		}
		return errors.Wrap(err, "postgres.create", "insert job")
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*models.RenderJob, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+columns+` FROM render_jobs WHERE id=$1`, id)
	job, err := scanJob(row)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("job", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "postgres.get", "load job")
	}
	return job, nil
}

func (s *Store) Update(ctx context.Context, job *models.RenderJob) error {
	cmd, err := s.pool.Exec(ctx, `
		UPDATE render_jobs
		SET status=$2, progress=$3, output_path=$4, output_key=$5, error_text=$6, owner=$7,
		    updated_at=$8, started_at=$9, finished_at=$10
		WHERE id=$1
	`, job.ID, string(job.Status), job.Progress, job.OutputPath, job.OutputKey, job.Error, job.Owner,
		job.UpdatedAt, job.StartedAt, job.FinishedAt)
	if err != nil {
		return errors.Wrap(err, "postgres.update", "update job")
	}
	if cmd.RowsAffected() == 0 {
		return errors.NotFound("job", job.ID)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM render_jobs WHERE id=$1`, id); err != nil {
		return errors.Wrap(err, "postgres.delete", "delete job")
	}
	return nil
}

func (s *Store) Request(ctx context.Context, id string) (timeline.Request, error) {
	var req timeline.Request
	var reqJSON []byte
	err := s.pool.QueryRow(ctx, `SELECT request_json FROM render_job_requests WHERE job_id=$1`, id).Scan(&reqJSON)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return req, errors.NotFound("request", id)
	}
	if err != nil {
		return req, errors.Wrap(err, "postgres.request", "load request")
	}
	if err := json.Unmarshal(reqJSON, &req); err != nil {
		return req, errors.Wrap(err, "postgres.request", "decode request")
	}
	return req, nil
}

func (s *Store) DropRequest(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM render_job_requests WHERE job_id=$1`, id); err != nil {
		return errors.Wrap(err, "postgres.drop_request", "delete request")
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]*models.RenderJob, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+columns+` FROM render_jobs ORDER BY created_at ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "postgres.list", "query jobs")
	}
	defer rows.Close()

	var out []*models.RenderJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "postgres.list", "scan job")
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "postgres.list", "iterate jobs")
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanJob(row pgx.Row) (*models.RenderJob, error) {
	var (
		job        models.RenderJob
		status     string
		startedAt  *time.Time
		finishedAt *time.Time
	)
	err := row.Scan(&job.ID, &status, &job.Progress, &job.OutputPath, &job.OutputKey, &job.Error, &job.Owner,
		&job.CreatedAt, &job.UpdatedAt, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	job.Status = models.JobStatus(status)
	job.StartedAt = startedAt
	job.FinishedAt = finishedAt
	return &job, nil
}

// isUniqueViolation reports a PostgreSQL unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
