package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store using PostgreSQL. It exists for shared CI
// environments where several runners append to one job list.
type PostgresStore struct {
	notifier
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new Postgres store
func NewPostgresStore(url string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &PostgresStore{db: db, logger: logger}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		method TEXT NOT NULL,
		submitted_at TIMESTAMPTZ NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ,
		contract JSONB,
		error JSONB
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_submitted_at ON jobs(submitted_at DESC);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

// Put inserts a newly submitted job
func (s *PostgresStore) Put(ctx context.Context, job *Job) error {
	contract, jobErr, err := encodeOutcome(job)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, method, submitted_at, started_at, finished_at, contract, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.Method, job.SubmittedAt.UTC(), job.StartedAt.UTC(),
		pgFinished(job.FinishedAt), contract, jobErr,
	)
	if err != nil {
		return fmt.Errorf("inserting job: %w", err)
	}

	s.logger.Debug("job stored", "id", job.ID, "method", job.Method)
	s.notify()
	return nil
}

// Get retrieves a job by id
func (s *PostgresStore) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, method,
		       to_char(submitted_at AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS.US"Z"'),
		       to_char(started_at AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS.US"Z"'),
		       to_char(finished_at AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS.US"Z"'),
		       contract::text, error::text
		FROM jobs WHERE id = $1`, id)
	return scanJob(row)
}

// Update rewrites a job record in place
func (s *PostgresStore) Update(ctx context.Context, job *Job) error {
	contract, jobErr, err := encodeOutcome(job)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET finished_at = $1, contract = $2, error = $3 WHERE id = $4`,
		pgFinished(job.FinishedAt), contract, jobErr, job.ID,
	)
	if err != nil {
		return fmt.Errorf("updating job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	s.notify()
	return nil
}

// List returns all jobs, most recently submitted first
func (s *PostgresStore) List(ctx context.Context) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, method,
		       to_char(submitted_at AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS.US"Z"'),
		       to_char(started_at AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS.US"Z"'),
		       to_char(finished_at AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS.US"Z"'),
		       contract::text, error::text
		FROM jobs ORDER BY submitted_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// Clear deletes every stored job
func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM jobs`); err != nil {
		return fmt.Errorf("clearing jobs: %w", err)
	}
	s.notify()
	return nil
}

func pgFinished(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
