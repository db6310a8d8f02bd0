package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/content-scheduler/internal/domain"
)

const scheduleSelectList = `id, destination, articles_per_day, max_per_hour,
			active_hours, active_days, min_interval_minutes, timezone,
			is_active, pause_on_error, max_errors_before_pause, consecutive_errors,
			created_at, updated_at`

// ScheduleRepository manages per-destination throttle policies in PostgreSQL.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository creates a new repository
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// Create inserts a new schedule after validation.
func (r *ScheduleRepository) Create(ctx context.Context, s *domain.PublicationSchedule) error {
	if err := s.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO publication_schedules (id, destination, articles_per_day, max_per_hour,
			active_hours, active_days, min_interval_minutes, timezone,
			is_active, pause_on_error, max_errors_before_pause, consecutive_errors,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.Destination, s.ArticlesPerDay, s.MaxPerHour,
		s.ActiveHours, s.ActiveDays, s.MinIntervalMinutes, s.Timezone,
		s.IsActive, s.PauseOnError, s.MaxErrorsBeforePause, s.ConsecutiveErrors,
		s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}
	return nil
}

// GetByDestination retrieves the throttle policy for one destination.
func (r *ScheduleRepository) GetByDestination(ctx context.Context, destination string) (*domain.PublicationSchedule, error) {
	query := `SELECT ` + scheduleSelectList + ` FROM publication_schedules WHERE destination = $1`

	var s domain.PublicationSchedule
	err := r.db.QueryRowxContext(ctx, query, destination).StructScan(&s)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return &s, nil
}

// ActiveSchedules returns every enabled throttle policy.
func (r *ScheduleRepository) ActiveSchedules(ctx context.Context) ([]domain.PublicationSchedule, error) {
	query := `SELECT ` + scheduleSelectList + `
		FROM publication_schedules
		WHERE is_active = true
		ORDER BY destination ASC`

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("active schedules: %w", err)
	}
	defer rows.Close()

	schedules := make([]domain.PublicationSchedule, 0)
	for rows.Next() {
		var s domain.PublicationSchedule
		if err := rows.StructScan(&s); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

// Update persists a schedule's mutable fields after validation.
func (r *ScheduleRepository) Update(ctx context.Context, s *domain.PublicationSchedule) error {
	if err := s.Validate(); err != nil {
		return err
	}

	query := `
		UPDATE publication_schedules
		SET articles_per_day = $2, max_per_hour = $3,
		    active_hours = $4, active_days = $5, min_interval_minutes = $6, timezone = $7,
		    is_active = $8, pause_on_error = $9, max_errors_before_pause = $10,
		    updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query,
		s.ID, s.ArticlesPerDay, s.MaxPerHour,
		s.ActiveHours, s.ActiveDays, s.MinIntervalMinutes, s.Timezone,
		s.IsActive, s.PauseOnError, s.MaxErrorsBeforePause)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
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

// RecordPublishError bumps the consecutive error counter and deactivates
// the schedule once the pause threshold is crossed (when pause_on_error
// is set). Returns the updated counter.
func (r *ScheduleRepository) RecordPublishError(ctx context.Context, destination string) (int, error) {
	query := `
		UPDATE publication_schedules
		SET consecutive_errors = consecutive_errors + 1,
		    is_active = CASE
				WHEN pause_on_error AND consecutive_errors + 1 >= max_errors_before_pause THEN false
				ELSE is_active
			END,
		    updated_at = NOW()
		WHERE destination = $1
		RETURNING consecutive_errors`

	var count int
	err := r.db.QueryRowContext(ctx, query, destination).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("record publish error: %w", err)
	}
	return count, nil
}

// ResetErrors clears the consecutive error counter after a successful publish.
func (r *ScheduleRepository) ResetErrors(ctx context.Context, destination string) error {
	query := `
		UPDATE publication_schedules
		SET consecutive_errors = 0, updated_at = NOW()
		WHERE destination = $1
		  AND consecutive_errors > 0`

	if _, err := r.db.ExecContext(ctx, query, destination); err != nil {
		return fmt.Errorf("reset errors: %w", err)
	}
	return nil
}
