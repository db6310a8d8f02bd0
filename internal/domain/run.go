package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the state of a program run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

const percentFactor = 100

// RunSummary is the breakdown computed once at run finalization and
// frozen on the row.
type RunSummary struct {
	ByGenerationType map[string]int `json:"by_generation_type"`
	ByCountry        map[string]int `json:"by_country"`
	ByLanguage       map[string]int `json:"by_language"`
	TotalCost        float64        `json:"total_cost"`
	DurationSeconds  float64        `json:"duration_seconds"`
	SuccessRate      float64        `json:"success_rate"`
}

// Value implements driver.Valuer so the summary persists as jsonb.
func (s RunSummary) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner for jsonb summaries.
func (s *RunSummary) Scan(src any) error {
	if src == nil {
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("scan run summary: unexpected type %T", src)
	}
	return json.Unmarshal(b, s)
}

// ProgramRun is one execution instance of a program.
type ProgramRun struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	ProgramID uuid.UUID `db:"program_id" json:"program_id"`

	Status      RunStatus  `db:"status"       json:"status"`
	StartedAt   time.Time  `db:"started_at"   json:"started_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`

	ItemsPlanned   int `db:"items_planned"   json:"items_planned"`
	ItemsGenerated int `db:"items_generated" json:"items_generated"`
	ItemsFailed    int `db:"items_failed"    json:"items_failed"`

	Cost         float64     `db:"cost"          json:"cost"`
	Summary      *RunSummary `db:"summary"       json:"summary,omitempty"`
	ErrorMessage *string     `db:"error_message" json:"error_message,omitempty"`
}

// NewProgramRun creates a running run for a program.
func NewProgramRun(programID uuid.UUID, itemsPlanned int, now time.Time) *ProgramRun {
	return &ProgramRun{
		ID:           uuid.New(),
		ProgramID:    programID,
		Status:       RunStatusRunning,
		StartedAt:    now,
		ItemsPlanned: itemsPlanned,
	}
}

// Duration is defined only once the run has completed.
func (r *ProgramRun) Duration() *time.Duration {
	if r.CompletedAt == nil {
		return nil
	}
	d := r.CompletedAt.Sub(r.StartedAt)
	return &d
}

// SuccessRate is items_generated over resolved items, as a percentage.
// Zero when nothing has resolved yet.
func (r *ProgramRun) SuccessRate() float64 {
	resolved := r.ItemsGenerated + r.ItemsFailed
	if resolved == 0 {
		return 0
	}
	return float64(r.ItemsGenerated) / float64(resolved) * percentFactor
}

// Resolved reports whether every planned item has completed or failed.
func (r *ProgramRun) Resolved() bool {
	return r.ItemsGenerated+r.ItemsFailed >= r.ItemsPlanned
}
