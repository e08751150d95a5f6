package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run is the outcome of one scrape request. The reviews themselves are not
// stored.
type Run struct {
	ID           uuid.UUID
	URL          string
	Domain       string
	Status       RunStatus
	ReviewsCount int
	Pages        int
	StopReason   string
	ErrorMessage string
	StartedAt    time.Time
	Duration     time.Duration
}

// Execer is the subset of *DB the run repository needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type RunRepository struct {
	db Execer
}

func NewRunRepository(db Execer) *RunRepository {
	return &RunRepository{db: db}
}

const schema = `
	CREATE TABLE IF NOT EXISTS scrape_runs (
		id            UUID PRIMARY KEY,
		url           TEXT NOT NULL,
		domain        TEXT NOT NULL,
		status        TEXT NOT NULL,
		reviews_count INTEGER NOT NULL DEFAULT 0,
		pages         INTEGER NOT NULL DEFAULT 0,
		stop_reason   TEXT,
		error_message TEXT,
		started_at    TIMESTAMPTZ NOT NULL,
		duration_ms   BIGINT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_scrape_runs_domain ON scrape_runs (domain, started_at DESC);`

// EnsureSchema creates the runs table if it does not exist.
func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create scrape_runs table: %w", err)
	}
	return nil
}

// Insert records a run, assigning an ID when it has none.
func (r *RunRepository) Insert(ctx context.Context, run *Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}

	query := `
		INSERT INTO scrape_runs (
			id, url, domain, status, reviews_count, pages,
			stop_reason, error_message, started_at, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.Exec(ctx, query,
		run.ID, run.URL, run.Domain, string(run.Status), run.ReviewsCount, run.Pages,
		nullIfEmpty(run.StopReason), nullIfEmpty(run.ErrorMessage),
		run.StartedAt, run.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
