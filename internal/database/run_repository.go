package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/content-scheduler/internal/domain"
)

const runSelectList = `id, program_id, status, started_at, completed_at,
			items_planned, items_generated, items_failed,
			cost, summary, error_message`

// RunRepository manages program runs in PostgreSQL.
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository creates a new repository
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new run.
func (r *RunRepository) Create(ctx context.Context, run *domain.ProgramRun) error {
	query := `
		INSERT INTO program_runs (id, program_id, status, started_at, completed_at,
			items_planned, items_generated, items_failed, cost, summary, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.ProgramID, run.Status, run.StartedAt, run.CompletedAt,
		run.ItemsPlanned, run.ItemsGenerated, run.ItemsFailed,
		run.Cost, run.Summary, run.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// Get retrieves a single run by ID.
func (r *RunRepository) Get(ctx context.Context, id uuid.UUID) (*domain.ProgramRun, error) {
	query := `SELECT ` + runSelectList + ` FROM program_runs WHERE id = $1`

	var run domain.ProgramRun
	err := r.db.QueryRowxContext(ctx, query, id).StructScan(&run)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &run, nil
}

// IncrementGenerated bumps the generated counter and run cost atomically.
// Guarded so counters never exceed items_planned and never move after the
// run left the running state. Returns the updated row.
func (r *RunRepository) IncrementGenerated(ctx context.Context, id uuid.UUID, cost float64) (*domain.ProgramRun, error) {
	query := `
		UPDATE program_runs
		SET items_generated = items_generated + 1, cost = cost + $2
		WHERE id = $1
		  AND status = 'running'
		  AND items_generated + items_failed < items_planned
		RETURNING ` + runSelectList

	var run domain.ProgramRun
	err := r.db.QueryRowxContext(ctx, query, id, cost).StructScan(&run)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("increment generated: %w", err)
	}
	return &run, nil
}

// IncrementFailed bumps the failed counter atomically with the same
// guard as IncrementGenerated.
func (r *RunRepository) IncrementFailed(ctx context.Context, id uuid.UUID) (*domain.ProgramRun, error) {
	query := `
		UPDATE program_runs
		SET items_failed = items_failed + 1
		WHERE id = $1
		  AND status = 'running'
		  AND items_generated + items_failed < items_planned
		RETURNING ` + runSelectList

	var run domain.ProgramRun
	err := r.db.QueryRowxContext(ctx, query, id).StructScan(&run)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("increment failed: %w", err)
	}
	return &run, nil
}

// Finalize freezes a finished run: terminal status, completion time and
// the computed summary.
func (r *RunRepository) Finalize(ctx context.Context, run *domain.ProgramRun) error {
	query := `
		UPDATE program_runs
		SET status = $2, completed_at = $3, cost = $4, summary = $5, error_message = $6
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query,
		run.ID, run.Status, run.CompletedAt, run.Cost, run.Summary, run.ErrorMessage)
	if err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}
	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("get affected rows: %w", rowsErr)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CountRunning counts runs still in the running state for a program.
func (r *RunRepository) CountRunning(ctx context.Context, programID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM program_runs WHERE program_id = $1 AND status = 'running'`,
		programID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count running: %w", err)
	}
	return count, nil
}

// FindStale returns runs stuck in running longer than olderThan. These
// are claims whose worker died before finalizing.
func (r *RunRepository) FindStale(ctx context.Context, olderThan time.Duration) ([]domain.ProgramRun, error) {
	query := `SELECT ` + runSelectList + `
		FROM program_runs
		WHERE status = 'running'
		  AND started_at < NOW() - $1::interval
		ORDER BY started_at ASC`

	rows, err := r.db.QueryxContext(ctx, query, olderThan.String())
	if err != nil {
		return nil, fmt.Errorf("find stale runs: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

// ForProgram returns a program's runs, newest first.
func (r *RunRepository) ForProgram(ctx context.Context, programID uuid.UUID, limit int) ([]domain.ProgramRun, error) {
	query := `SELECT ` + runSelectList + `
		FROM program_runs
		WHERE program_id = $1
		ORDER BY started_at DESC
		LIMIT $2`

	rows, err := r.db.QueryxContext(ctx, query, programID, limit)
	if err != nil {
		return nil, fmt.Errorf("runs for program: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

func scanRuns(rows *sqlx.Rows) ([]domain.ProgramRun, error) {
	runs := make([]domain.ProgramRun, 0)
	for rows.Next() {
		var run domain.ProgramRun
		if err := rows.StructScan(&run); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
