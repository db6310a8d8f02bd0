package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ItemStatus represents the state of one generation work unit.
type ItemStatus string

const (
	ItemStatusPending    ItemStatus = "pending"
	ItemStatusGenerating ItemStatus = "generating"
	ItemStatusCompleted  ItemStatus = "completed"
	ItemStatusFailed     ItemStatus = "failed"
)

// Params is a free-form JSON object column (generation params, result data).
type Params map[string]any

// Value implements driver.Valuer for jsonb persistence.
func (p Params) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner for jsonb columns.
func (p *Params) Scan(src any) error {
	if src == nil {
		*p = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("scan params: unexpected type %T", src)
	}
	return json.Unmarshal(b, p)
}

// ProgramItem is one unit of work: produce content of one generation type
// for one country and language. The content reference stays nil until the
// item completes.
type ProgramItem struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	ProgramID uuid.UUID `db:"program_id" json:"program_id"`
	RunID     uuid.UUID `db:"run_id"     json:"run_id"`

	CountryID  int64  `db:"country_id"  json:"country_id"`
	LanguageID int64  `db:"language_id" json:"language_id"`
	ThemeID    *int64 `db:"theme_id"    json:"theme_id,omitempty"`

	GenerationType GenerationType `db:"generation_type" json:"generation_type"`
	Status         ItemStatus     `db:"status"          json:"status"`
	Cost           float64        `db:"cost"            json:"cost"`

	GenerationParams Params `db:"generation_params" json:"generation_params,omitempty"`
	ResultData       Params `db:"result_data"       json:"result_data,omitempty"`

	ContentKind *ContentKind `db:"content_kind" json:"content_kind,omitempty"`
	ContentID   *string      `db:"content_id"   json:"content_id,omitempty"`

	ErrorMessage *string   `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"    json:"updated_at"`
}

// Content returns the tagged content reference, or nil before completion.
func (i *ProgramItem) Content() *ContentRef {
	if i.ContentKind == nil || i.ContentID == nil {
		return nil
	}
	return &ContentRef{Kind: *i.ContentKind, ID: *i.ContentID}
}

// Complete attaches the produced content and cost. The content kind must
// match what the item's generation type declares it produces.
func (i *ProgramItem) Complete(ref ContentRef, cost float64, now time.Time) error {
	if i.Status == ItemStatusCompleted || i.Status == ItemStatusFailed {
		return fmt.Errorf("%w: item already %s", ErrInvalidStateTransition, i.Status)
	}
	want, err := i.GenerationType.ContentKind()
	if err != nil {
		return err
	}
	if ref.Kind != want {
		return fmt.Errorf("%w: got %q, generation type %q produces %q",
			ErrContentKindMismatch, ref.Kind, i.GenerationType, want)
	}
	if ref.ID == "" {
		return fmt.Errorf("%w: content id is required", ErrContentKindMismatch)
	}

	i.Status = ItemStatusCompleted
	i.ContentKind = &ref.Kind
	i.ContentID = &ref.ID
	i.Cost = cost
	i.UpdatedAt = now
	return nil
}

// Fail records a terminal item failure. Failed items are not retried by
// this core; a new run produces fresh items.
func (i *ProgramItem) Fail(msg string, now time.Time) error {
	if i.Status == ItemStatusCompleted || i.Status == ItemStatusFailed {
		return fmt.Errorf("%w: item already %s", ErrInvalidStateTransition, i.Status)
	}
	i.Status = ItemStatusFailed
	i.ErrorMessage = &msg
	i.UpdatedAt = now
	return nil
}
