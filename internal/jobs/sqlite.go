package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/verimatch/verimatch/pkg/client"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	notifier
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		method TEXT NOT NULL,
		submitted_at TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		contract TEXT,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_submitted_at ON jobs(submitted_at DESC);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

// Put inserts a newly submitted job
func (s *SQLiteStore) Put(ctx context.Context, job *Job) error {
	contract, jobErr, err := encodeOutcome(job)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, method, submitted_at, started_at, finished_at, contract, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Method,
		job.SubmittedAt.UTC().Format(time.RFC3339Nano),
		job.StartedAt.UTC().Format(time.RFC3339Nano),
		encodeFinished(job.FinishedAt), contract, jobErr,
	)
	if err != nil {
		return fmt.Errorf("inserting job: %w", err)
	}

	s.logger.Debug("job stored", "id", job.ID, "method", job.Method)
	s.notify()
	return nil
}

// Get retrieves a job by id
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, method, submitted_at, started_at, finished_at, contract, error
		FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// Update rewrites a job record in place
func (s *SQLiteStore) Update(ctx context.Context, job *Job) error {
	contract, jobErr, err := encodeOutcome(job)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET finished_at = ?, contract = ?, error = ? WHERE id = ?`,
		encodeFinished(job.FinishedAt), contract, jobErr, job.ID,
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
func (s *SQLiteStore) List(ctx context.Context) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, method, submitted_at, started_at, finished_at, contract, error
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
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM jobs`); err != nil {
		return fmt.Errorf("clearing jobs: %w", err)
	}
	s.notify()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var submitted, started string
	var finished, contract, jobErr sql.NullString

	err := row.Scan(&job.ID, &job.Method, &submitted, &started, &finished, &contract, &jobErr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning job: %w", err)
	}

	if job.SubmittedAt, err = time.Parse(time.RFC3339Nano, submitted); err != nil {
		return nil, fmt.Errorf("parsing submitted_at: %w", err)
	}
	if job.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	if finished.Valid && finished.String != "" {
		t, err := time.Parse(time.RFC3339Nano, finished.String)
		if err != nil {
			return nil, fmt.Errorf("parsing finished_at: %w", err)
		}
		job.FinishedAt = &t
	}
	if contract.Valid && contract.String != "" {
		job.Contract = &client.ContractMatch{}
		if err := json.Unmarshal([]byte(contract.String), job.Contract); err != nil {
			return nil, fmt.Errorf("parsing contract: %w", err)
		}
	}
	if jobErr.Valid && jobErr.String != "" {
		job.Error = &client.JobError{}
		if err := json.Unmarshal([]byte(jobErr.String), job.Error); err != nil {
			return nil, fmt.Errorf("parsing error: %w", err)
		}
	}

	return &job, nil
}

func encodeOutcome(job *Job) (contract, jobErr sql.NullString, err error) {
	if job.Contract != nil {
		data, merr := json.Marshal(job.Contract)
		if merr != nil {
			return contract, jobErr, fmt.Errorf("encoding contract: %w", merr)
		}
		contract = sql.NullString{String: string(data), Valid: true}
	}
	if job.Error != nil {
		data, merr := json.Marshal(job.Error)
		if merr != nil {
			return contract, jobErr, fmt.Errorf("encoding error: %w", merr)
		}
		jobErr = sql.NullString{String: string(data), Valid: true}
	}
	return contract, jobErr, nil
}

func encodeFinished(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}
