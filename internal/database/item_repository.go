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

const itemSelectList = `id, program_id, run_id, country_id, language_id, theme_id,
			generation_type, status, cost, generation_params, result_data,
			content_kind, content_id, error_message, created_at, updated_at`

const itemInsert = `
	INSERT INTO program_items (id, program_id, run_id, country_id, language_id, theme_id,
		generation_type, status, cost, generation_params, result_data,
		content_kind, content_id, error_message, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

// ItemRepository manages program items in PostgreSQL.
type ItemRepository struct {
	db *sqlx.DB
}

// NewItemRepository creates a new repository
func NewItemRepository(db *sqlx.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// CreateBatch inserts all items in one transaction so a run is expanded
// either fully or not at all.
func (r *ItemRepository) CreateBatch(ctx context.Context, items []domain.ProgramItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := range items {
		item := &items[i]
		if _, err := tx.ExecContext(ctx, itemInsert,
			item.ID, item.ProgramID, item.RunID,
			item.CountryID, item.LanguageID, item.ThemeID,
			item.GenerationType, item.Status, item.Cost,
			item.GenerationParams, item.ResultData,
			item.ContentKind, item.ContentID, item.ErrorMessage,
			item.CreatedAt, item.UpdatedAt,
		); err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit items: %w", err)
	}
	return nil
}

// Get retrieves a single item by ID.
func (r *ItemRepository) Get(ctx context.Context, id uuid.UUID) (*domain.ProgramItem, error) {
	query := `SELECT ` + itemSelectList + ` FROM program_items WHERE id = $1`

	var item domain.ProgramItem
	err := r.db.QueryRowxContext(ctx, query, id).StructScan(&item)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return &item, nil
}

// Update persists an item's mutable fields.
func (r *ItemRepository) Update(ctx context.Context, item *domain.ProgramItem) error {
	query := `
		UPDATE program_items
		SET status = $2, cost = $3, generation_params = $4, result_data = $5,
		    content_kind = $6, content_id = $7, error_message = $8, updated_at = $9
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query,
		item.ID, item.Status, item.Cost, item.GenerationParams, item.ResultData,
		item.ContentKind, item.ContentID, item.ErrorMessage, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
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

// ForRun returns every item of a run in expansion order.
func (r *ItemRepository) ForRun(ctx context.Context, runID uuid.UUID) ([]domain.ProgramItem, error) {
	query := `SELECT ` + itemSelectList + `
		FROM program_items
		WHERE run_id = $1
		ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryxContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("items for run: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// ClaimPending claims up to limit pending items for generation.
// Uses FOR UPDATE SKIP LOCKED for concurrent worker safety.
func (r *ItemRepository) ClaimPending(ctx context.Context, limit int) ([]domain.ProgramItem, error) {
	query := `
		UPDATE program_items
		SET status = 'generating', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM program_items
			WHERE status = 'pending'
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + itemSelectList

	rows, err := r.db.QueryxContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("claim pending items: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// ResetGenerating resets stale "generating" items back to "pending".
// This handles items that were claimed but worker crashed before completing.
func (r *ItemRepository) ResetGenerating(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		UPDATE program_items
		SET status = 'pending', updated_at = NOW()
		WHERE status = 'generating'
		  AND updated_at < NOW() - $1::interval`

	result, err := r.db.ExecContext(ctx, query, olderThan.String())
	if err != nil {
		return 0, fmt.Errorf("reset generating: %w", err)
	}
	return result.RowsAffected()
}

func scanItems(rows *sqlx.Rows) ([]domain.ProgramItem, error) {
	items := make([]domain.ProgramItem, 0)
	for rows.Next() {
		var item domain.ProgramItem
		if err := rows.StructScan(&item); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
