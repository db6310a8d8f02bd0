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

const queueSelectList = `id, content_kind, content_id, destination, priority, status,
			scheduled_at, published_at, attempts, max_attempts,
			error_message, created_at, updated_at`

// QueueRepository manages the publication queue in PostgreSQL.
type QueueRepository struct {
	db *sqlx.DB
}

// NewQueueRepository creates a new repository
func NewQueueRepository(db *sqlx.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// Enqueue inserts a new queue entry. The partial unique index on
// (content_kind, content_id, destination) for live statuses makes
// re-enqueueing the same content a no-op; the bool reports whether a
// row was actually inserted.
func (r *QueueRepository) Enqueue(ctx context.Context, e *domain.QueueEntry) (bool, error) {
	query := `
		INSERT INTO publication_queue (id, content_kind, content_id, destination, priority, status,
			scheduled_at, published_at, attempts, max_attempts, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT DO NOTHING`

	result, err := r.db.ExecContext(ctx, query,
		e.ID, e.ContentKind, e.ContentID, e.Destination, e.Priority, e.Status,
		e.ScheduledAt, e.PublishedAt, e.Attempts, e.MaxAttempts,
		e.ErrorMessage, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("enqueue: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("enqueue rows affected: %w", err)
	}
	return rows > 0, nil
}

// Get retrieves a single queue entry by ID.
func (r *QueueRepository) Get(ctx context.Context, id uuid.UUID) (*domain.QueueEntry, error) {
	query := `SELECT ` + queueSelectList + ` FROM publication_queue WHERE id = $1`

	var e domain.QueueEntry
	err := r.db.QueryRowxContext(ctx, query, id).StructScan(&e)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get queue entry: %w", err)
	}
	return &e, nil
}

// FetchPending returns unscheduled pending entries for a destination in
// selection order: priority, then age.
func (r *QueueRepository) FetchPending(ctx context.Context, destination string, limit int) ([]domain.QueueEntry, error) {
	query := `SELECT ` + queueSelectList + `
		FROM publication_queue
		WHERE status = 'pending'
		  AND destination = $1
		ORDER BY
			CASE priority WHEN 'high' THEN 0 WHEN 'default' THEN 1 ELSE 2 END,
			created_at ASC
		LIMIT $2`

	rows, err := r.db.QueryxContext(ctx, query, destination, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch pending: %w", err)
	}
	defer rows.Close()

	return scanQueueEntries(rows)
}

// ScheduleAt assigns a throttle slot to a pending entry.
func (r *QueueRepository) ScheduleAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE publication_queue
		SET status = 'scheduled', scheduled_at = $2, updated_at = NOW()
		WHERE id = $1
		  AND status = 'pending'`
	if err := r.execExpectOneRow(ctx, query, id, at); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("schedule entry: %w", err)
	}
	return nil
}

// ClaimDue claims scheduled entries whose slot has arrived.
// Uses FOR UPDATE SKIP LOCKED for concurrent worker safety.
func (r *QueueRepository) ClaimDue(ctx context.Context, destination string, now time.Time, limit int) ([]domain.QueueEntry, error) {
	query := `
		UPDATE publication_queue
		SET status = 'publishing', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM publication_queue
			WHERE status = 'scheduled'
			  AND destination = $1
			  AND scheduled_at <= $2
			ORDER BY
				CASE priority WHEN 'high' THEN 0 WHEN 'default' THEN 1 ELSE 2 END,
				scheduled_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + queueSelectList

	rows, err := r.db.QueryxContext(ctx, query, destination, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due: %w", err)
	}
	defer rows.Close()

	return scanQueueEntries(rows)
}

// execExpectOneRow runs an exec and returns domain.ErrNotFound when no row was affected
func (r *QueueRepository) execExpectOneRow(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
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

// MarkPublished marks an entry as successfully published
func (r *QueueRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE publication_queue
		SET status = 'published',
		    attempts = attempts + 1,
		    published_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1`
	if err := r.execExpectOneRow(ctx, query, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("mark published: %w", err)
	}
	return nil
}

// MarkFailed records a failed attempt. Entries with attempts left return
// to pending for a fresh throttle slot; exhausted entries go terminal.
func (r *QueueRepository) MarkFailed(ctx context.Context, id uuid.UUID, errorMsg string) error {
	query := `
		UPDATE publication_queue
		SET attempts = attempts + 1,
		    status = CASE WHEN attempts + 1 >= max_attempts THEN 'failed' ELSE 'pending' END,
		    scheduled_at = NULL,
		    error_message = $2,
		    updated_at = NOW()
		WHERE id = $1`
	if err := r.execExpectOneRow(ctx, query, id, errorMsg); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// Cancel removes a not-yet-published entry from circulation.
func (r *QueueRepository) Cancel(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE publication_queue
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1
		  AND status IN ('pending', 'scheduled')`
	if err := r.execExpectOneRow(ctx, query, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("cancel entry: %w", err)
	}
	return nil
}

// ResetStalePublishing resets stale "publishing" entries back to "pending".
// This handles entries that were claimed but worker crashed before completing.
func (r *QueueRepository) ResetStalePublishing(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		UPDATE publication_queue
		SET status = 'pending', scheduled_at = NULL, updated_at = NOW()
		WHERE status = 'publishing'
		  AND updated_at < NOW() - $1::interval`

	result, err := r.db.ExecContext(ctx, query, olderThan.String())
	if err != nil {
		return 0, fmt.Errorf("reset stale publishing: %w", err)
	}
	return result.RowsAffected()
}

// CleanupPublished removes old published entries
func (r *QueueRepository) CleanupPublished(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		DELETE FROM publication_queue
		WHERE status = 'published'
		  AND published_at < NOW() - $1::interval`

	result, err := r.db.ExecContext(ctx, query, olderThan.String())
	if err != nil {
		return 0, fmt.Errorf("cleanup published: %w", err)
	}
	return result.RowsAffected()
}

// CountPublishedBetween counts publishes to a destination within [start, end).
// Feeds the throttle's daily and hourly capacity checks.
func (r *QueueRepository) CountPublishedBetween(ctx context.Context, destination string, start, end time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM publication_queue
		 WHERE destination = $1 AND status = 'published'
		   AND published_at >= $2 AND published_at < $3`,
		destination, start, end).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count published: %w", err)
	}
	return count, nil
}

// LastScheduledAt returns the most recent assigned slot for a
// destination, or nil when nothing has been scheduled yet.
func (r *QueueRepository) LastScheduledAt(ctx context.Context, destination string) (*time.Time, error) {
	var last sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(scheduled_at) FROM publication_queue
		 WHERE destination = $1 AND status IN ('scheduled', 'publishing', 'published')`,
		destination).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("last scheduled at: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	return &last.Time, nil
}

// QueueStats holds queue entry counts by status for monitoring.
type QueueStats struct {
	Pending             int64   `db:"pending"                json:"pending"`
	Scheduled           int64   `db:"scheduled"              json:"scheduled"`
	Publishing          int64   `db:"publishing"             json:"publishing"`
	Published           int64   `db:"published"              json:"published"`
	Failed              int64   `db:"failed"                 json:"failed"`
	Cancelled           int64   `db:"cancelled"              json:"cancelled"`
	AvgPublishLagSeconds float64 `db:"avg_publish_lag_seconds" json:"avg_publish_lag_seconds"`
}

// GetStats returns queue statistics
func (r *QueueRepository) GetStats(ctx context.Context) (*QueueStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending') as pending,
			COUNT(*) FILTER (WHERE status = 'scheduled') as scheduled,
			COUNT(*) FILTER (WHERE status = 'publishing') as publishing,
			COUNT(*) FILTER (WHERE status = 'published') as published,
			COUNT(*) FILTER (WHERE status = 'failed') as failed,
			COUNT(*) FILTER (WHERE status = 'cancelled') as cancelled,
			COALESCE(AVG(EXTRACT(EPOCH FROM (published_at - created_at)))
				FILTER (WHERE status = 'published' AND published_at > NOW() - INTERVAL '1 hour'), 0) as avg_publish_lag_seconds
		FROM publication_queue`

	var stats QueueStats
	if err := r.db.QueryRowxContext(ctx, query).StructScan(&stats); err != nil {
		return nil, fmt.Errorf("get queue stats: %w", err)
	}
	return &stats, nil
}

func scanQueueEntries(rows *sqlx.Rows) ([]domain.QueueEntry, error) {
	entries := make([]domain.QueueEntry, 0)
	for rows.Next() {
		var e domain.QueueEntry
		if err := rows.StructScan(&e); err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
