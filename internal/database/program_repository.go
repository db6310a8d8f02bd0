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

// programSelectList is the column list for SELECT/RETURNING on programs
// (single source for schema changes)
const programSelectList = `id, name, content_types, country_ids, language_ids, theme_ids,
			quantity_mode, quantity_value,
			recurrence_type, run_time, timezone, weekdays, day_of_month, cron_expr,
			status, next_run_at, last_run_at, start_at, end_at,
			daily_budget_limit, daily_generation_limit, concurrent_jobs_limit,
			total_generated, total_published, total_errors, total_cost, run_count,
			error_message, created_at, updated_at`

// ProgramRepository manages programs in PostgreSQL.
type ProgramRepository struct {
	db *sqlx.DB
}

// NewProgramRepository creates a new repository
func NewProgramRepository(db *sqlx.DB) *ProgramRepository {
	return &ProgramRepository{db: db}
}

// Create inserts a new program.
func (r *ProgramRepository) Create(ctx context.Context, p *domain.Program) error {
	query := `
		INSERT INTO programs (id, name, content_types, country_ids, language_ids, theme_ids,
			quantity_mode, quantity_value,
			recurrence_type, run_time, timezone, weekdays, day_of_month, cron_expr,
			status, next_run_at, last_run_at, start_at, end_at,
			daily_budget_limit, daily_generation_limit, concurrent_jobs_limit,
			total_generated, total_published, total_errors, total_cost, run_count,
			error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30)`

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.Name, p.ContentTypes, p.CountryIDs, p.LanguageIDs, p.ThemeIDs,
		p.QuantityMode, p.QuantityValue,
		p.RecurrenceType, p.RunTime, p.Timezone, p.Weekdays, p.DayOfMonth, p.CronExpr,
		p.Status, p.NextRunAt, p.LastRunAt, p.StartAt, p.EndAt,
		p.DailyBudgetLimit, p.DailyGenerationLimit, p.ConcurrentJobsLimit,
		p.TotalGenerated, p.TotalPublished, p.TotalErrors, p.TotalCost, p.RunCount,
		p.ErrorMessage, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create program: %w", err)
	}
	return nil
}

// Get retrieves a single program by ID.
func (r *ProgramRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Program, error) {
	query := `SELECT ` + programSelectList + ` FROM programs WHERE id = $1`

	var p domain.Program
	err := r.db.QueryRowxContext(ctx, query, id).StructScan(&p)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get program: %w", err)
	}
	return &p, nil
}

// List returns programs ordered by creation time, optionally filtered by status.
func (r *ProgramRepository) List(ctx context.Context, status domain.ProgramStatus, limit int) ([]domain.Program, error) {
	var (
		rows *sqlx.Rows
		err  error
	)
	if status == "" {
		query := `SELECT ` + programSelectList + ` FROM programs ORDER BY created_at DESC LIMIT $1`
		rows, err = r.db.QueryxContext(ctx, query, limit)
	} else {
		query := `SELECT ` + programSelectList + ` FROM programs WHERE status = $1 ORDER BY created_at DESC LIMIT $2`
		rows, err = r.db.QueryxContext(ctx, query, status, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	defer rows.Close()

	return scanPrograms(rows)
}

// FindReady returns programs eligible to run at now. A null next_run_at
// here means the row is claimed by an in-flight run or unscheduled, not
// ready: activation always computes a concrete next_run_at.
func (r *ProgramRepository) FindReady(ctx context.Context, now time.Time) ([]domain.Program, error) {
	query := `SELECT ` + programSelectList + `
		FROM programs
		WHERE status IN ('active', 'scheduled')
		  AND next_run_at IS NOT NULL
		  AND next_run_at <= $1
		  AND (end_at IS NULL OR end_at > $1)
		ORDER BY next_run_at ASC`

	rows, err := r.db.QueryxContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("find ready programs: %w", err)
	}
	defer rows.Close()

	return scanPrograms(rows)
}

// ClaimRun atomically claims a ready program for a run by clearing its
// next_run_at: two concurrent ticks cannot both win the conditional
// update. The claim is released by rescheduling after run finalization.
// Returns domain.ErrNotFound when the program is no longer claimable.
func (r *ProgramRepository) ClaimRun(ctx context.Context, id uuid.UUID, now time.Time) (*domain.Program, error) {
	query := `
		UPDATE programs
		SET next_run_at = NULL, status = 'active', updated_at = $2
		WHERE id = $1
		  AND status IN ('active', 'scheduled')
		  AND next_run_at IS NOT NULL
		  AND next_run_at <= $2
		  AND (end_at IS NULL OR end_at > $2)
		RETURNING ` + programSelectList

	var p domain.Program
	err := r.db.QueryRowxContext(ctx, query, id, now).StructScan(&p)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("claim program run: %w", err)
	}
	return &p, nil
}

// Update persists the program's mutable fields.
func (r *ProgramRepository) Update(ctx context.Context, p *domain.Program) error {
	query := `
		UPDATE programs
		SET name = $2, content_types = $3, country_ids = $4, language_ids = $5, theme_ids = $6,
		    quantity_mode = $7, quantity_value = $8,
		    recurrence_type = $9, run_time = $10, timezone = $11, weekdays = $12,
		    day_of_month = $13, cron_expr = $14,
		    status = $15, next_run_at = $16, last_run_at = $17, start_at = $18, end_at = $19,
		    daily_budget_limit = $20, daily_generation_limit = $21, concurrent_jobs_limit = $22,
		    total_generated = $23, total_published = $24, total_errors = $25,
		    total_cost = $26, run_count = $27,
		    error_message = $28, updated_at = $29
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query,
		p.ID, p.Name, p.ContentTypes, p.CountryIDs, p.LanguageIDs, p.ThemeIDs,
		p.QuantityMode, p.QuantityValue,
		p.RecurrenceType, p.RunTime, p.Timezone, p.Weekdays, p.DayOfMonth, p.CronExpr,
		p.Status, p.NextRunAt, p.LastRunAt, p.StartAt, p.EndAt,
		p.DailyBudgetLimit, p.DailyGenerationLimit, p.ConcurrentJobsLimit,
		p.TotalGenerated, p.TotalPublished, p.TotalErrors, p.TotalCost, p.RunCount,
		p.ErrorMessage, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update program: %w", err)
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

// CountItemsBetween counts items created for a program within [start, end).
func (r *ProgramRepository) CountItemsBetween(ctx context.Context, id uuid.UUID, start, end time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM program_items WHERE program_id = $1 AND created_at >= $2 AND created_at < $3`,
		id, start, end).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return count, nil
}

// SumCostBetween sums item cost for a program within [start, end).
func (r *ProgramRepository) SumCostBetween(ctx context.Context, id uuid.UUID, start, end time.Time) (float64, error) {
	var cost float64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost), 0) FROM program_items WHERE program_id = $1 AND created_at >= $2 AND created_at < $3`,
		id, start, end).Scan(&cost)
	if err != nil {
		return 0, fmt.Errorf("sum item cost: %w", err)
	}
	return cost, nil
}

// ProgramStats holds program counts by status for monitoring.
type ProgramStats struct {
	Draft     int64 `db:"draft"     json:"draft"`
	Scheduled int64 `db:"scheduled" json:"scheduled"`
	Active    int64 `db:"active"    json:"active"`
	Paused    int64 `db:"paused"    json:"paused"`
	Completed int64 `db:"completed" json:"completed"`
	Errored   int64 `db:"errored"   json:"errored"`
}

// GetStats returns program counts by status.
func (r *ProgramRepository) GetStats(ctx context.Context) (*ProgramStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'draft') as draft,
			COUNT(*) FILTER (WHERE status = 'scheduled') as scheduled,
			COUNT(*) FILTER (WHERE status = 'active') as active,
			COUNT(*) FILTER (WHERE status = 'paused') as paused,
			COUNT(*) FILTER (WHERE status = 'completed') as completed,
			COUNT(*) FILTER (WHERE status = 'error') as errored
		FROM programs`

	var stats ProgramStats
	if err := r.db.QueryRowxContext(ctx, query).StructScan(&stats); err != nil {
		return nil, fmt.Errorf("get program stats: %w", err)
	}
	return &stats, nil
}

func scanPrograms(rows *sqlx.Rows) ([]domain.Program, error) {
	programs := make([]domain.Program, 0)
	for rows.Next() {
		var p domain.Program
		if err := rows.StructScan(&p); err != nil {
			return nil, fmt.Errorf("scan program: %w", err)
		}
		programs = append(programs, p)
	}
	return programs, rows.Err()
}
