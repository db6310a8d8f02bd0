package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ProgramStatus represents the scheduling state of a program.
type ProgramStatus string

const (
	ProgramStatusDraft     ProgramStatus = "draft"
	ProgramStatusScheduled ProgramStatus = "scheduled"
	ProgramStatusActive    ProgramStatus = "active"
	ProgramStatusPaused    ProgramStatus = "paused"
	ProgramStatusCompleted ProgramStatus = "completed"
	ProgramStatusError     ProgramStatus = "error"
)

// QuantityMode controls how a program's quantity value multiplies across
// the resolved target matrix.
type QuantityMode string

const (
	QuantityTotal              QuantityMode = "total"
	QuantityPerCountry         QuantityMode = "per_country"
	QuantityPerLanguage        QuantityMode = "per_language"
	QuantityPerCountryLanguage QuantityMode = "per_country_language"
)

// PerCountry reports whether the mode multiplies by resolved countries.
func (m QuantityMode) PerCountry() bool {
	return m == QuantityPerCountry || m == QuantityPerCountryLanguage
}

// PerLanguage reports whether the mode multiplies by resolved languages.
func (m QuantityMode) PerLanguage() bool {
	return m == QuantityPerLanguage || m == QuantityPerCountryLanguage
}

// Valid reports whether m is a known quantity mode.
func (m QuantityMode) Valid() bool {
	switch m {
	case QuantityTotal, QuantityPerCountry, QuantityPerLanguage, QuantityPerCountryLanguage:
		return true
	}
	return false
}

// Program is a recurring or one-shot content-generation directive.
// Empty target-matrix arrays mean "all currently active" rows of that
// reference type.
type Program struct {
	ID   uuid.UUID `db:"id"   json:"id"`
	Name string    `db:"name" json:"name"`

	ContentTypes pq.StringArray `db:"content_types" json:"content_types"`
	CountryIDs   pq.Int64Array  `db:"country_ids"   json:"country_ids"`
	LanguageIDs  pq.Int64Array  `db:"language_ids"  json:"language_ids"`
	ThemeIDs     pq.Int64Array  `db:"theme_ids"     json:"theme_ids"`

	QuantityMode  QuantityMode `db:"quantity_mode"  json:"quantity_mode"`
	QuantityValue int          `db:"quantity_value" json:"quantity_value"`

	RecurrenceType RecurrenceType `db:"recurrence_type" json:"recurrence_type"`
	RunTime        string         `db:"run_time"        json:"run_time,omitempty"`
	Timezone       string         `db:"timezone"        json:"timezone,omitempty"`
	Weekdays       pq.Int64Array  `db:"weekdays"        json:"weekdays,omitempty"`
	DayOfMonth     int            `db:"day_of_month"    json:"day_of_month,omitempty"`
	CronExpr       string         `db:"cron_expr"       json:"cron_expr,omitempty"`

	Status    ProgramStatus `db:"status"      json:"status"`
	NextRunAt *time.Time    `db:"next_run_at" json:"next_run_at,omitempty"`
	LastRunAt *time.Time    `db:"last_run_at" json:"last_run_at,omitempty"`
	StartAt   *time.Time    `db:"start_at"    json:"start_at,omitempty"`
	EndAt     *time.Time    `db:"end_at"      json:"end_at,omitempty"`

	DailyBudgetLimit     *float64 `db:"daily_budget_limit"     json:"daily_budget_limit,omitempty"`
	DailyGenerationLimit *int64   `db:"daily_generation_limit" json:"daily_generation_limit,omitempty"`
	ConcurrentJobsLimit  *int64   `db:"concurrent_jobs_limit"  json:"concurrent_jobs_limit,omitempty"`

	TotalGenerated int64   `db:"total_generated" json:"total_generated"`
	TotalPublished int64   `db:"total_published" json:"total_published"`
	TotalErrors    int64   `db:"total_errors"    json:"total_errors"`
	TotalCost      float64 `db:"total_cost"      json:"total_cost"`
	RunCount       int64   `db:"run_count"       json:"run_count"`

	ErrorMessage *string   `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"    json:"updated_at"`
}

// NewProgram creates a draft program with validation.
func NewProgram(name string, contentTypes []string, mode QuantityMode, value int, rec Recurrence) (*Program, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidProgram)
	}
	if len(contentTypes) == 0 {
		return nil, fmt.Errorf("%w: at least one content type is required", ErrInvalidProgram)
	}
	for _, ct := range contentTypes {
		if !GenerationType(ct).Valid() {
			return nil, fmt.Errorf("%w: unknown content type %q", ErrInvalidProgram, ct)
		}
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: unknown quantity mode %q", ErrInvalidProgram, mode)
	}
	if value <= 0 {
		return nil, fmt.Errorf("%w: quantity value must be positive, got %d", ErrInvalidProgram, value)
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	weekdays := make(pq.Int64Array, 0, len(rec.Weekdays))
	for _, d := range rec.Weekdays {
		weekdays = append(weekdays, int64(d))
	}

	now := time.Now().UTC()
	return &Program{
		ID:             uuid.New(),
		Name:           name,
		ContentTypes:   contentTypes,
		CountryIDs:     pq.Int64Array{},
		LanguageIDs:    pq.Int64Array{},
		ThemeIDs:       pq.Int64Array{},
		QuantityMode:   mode,
		QuantityValue:  value,
		RecurrenceType: rec.Type,
		RunTime:        rec.TimeOfDay,
		Timezone:       rec.Timezone,
		Weekdays:       weekdays,
		DayOfMonth:     rec.DayOfMonth,
		CronExpr:       rec.CronExpr,
		Status:         ProgramStatusDraft,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Recurrence assembles the recurrence policy from the flattened columns.
func (p *Program) Recurrence() Recurrence {
	weekdays := make([]int, 0, len(p.Weekdays))
	for _, d := range p.Weekdays {
		weekdays = append(weekdays, int(d))
	}
	return Recurrence{
		Type:       p.RecurrenceType,
		TimeOfDay:  p.RunTime,
		Timezone:   p.Timezone,
		Weekdays:   weekdays,
		DayOfMonth: p.DayOfMonth,
		CronExpr:   p.CronExpr,
	}
}

// Activate transitions draft/paused/error programs into the runnable
// state: scheduled when start_at is still in the future, active
// otherwise. The caller supplies the computed next run.
func (p *Program) Activate(now time.Time, nextRun *time.Time) error {
	switch p.Status {
	case ProgramStatusDraft, ProgramStatusPaused, ProgramStatusError, ProgramStatusScheduled:
		// activatable
	default:
		return fmt.Errorf("%w: cannot activate program in status %q", ErrInvalidStateTransition, p.Status)
	}

	if p.StartAt != nil && p.StartAt.After(now) {
		p.Status = ProgramStatusScheduled
	} else {
		p.Status = ProgramStatusActive
	}
	p.NextRunAt = nextRun
	p.ErrorMessage = nil
	p.UpdatedAt = now
	return nil
}

// Pause stops future run eligibility. Already-expanded items are not recalled.
func (p *Program) Pause(now time.Time) error {
	if p.Status != ProgramStatusActive && p.Status != ProgramStatusScheduled {
		return fmt.Errorf("%w: cannot pause program in status %q", ErrInvalidStateTransition, p.Status)
	}
	p.Status = ProgramStatusPaused
	p.UpdatedAt = now
	return nil
}

// Resume reactivates a paused program with a freshly computed next run.
func (p *Program) Resume(now time.Time, nextRun *time.Time) error {
	if p.Status != ProgramStatusPaused {
		return fmt.Errorf("%w: cannot resume program in status %q", ErrInvalidStateTransition, p.Status)
	}
	p.Status = ProgramStatusActive
	p.NextRunAt = nextRun
	p.UpdatedAt = now
	return nil
}

// MarkCompleted ends the program's schedulable life (one-shot done, cron
// exhausted, or end_at reached).
func (p *Program) MarkCompleted(now time.Time) {
	p.Status = ProgramStatusCompleted
	p.NextRunAt = nil
	p.UpdatedAt = now
}

// MarkError records an operator-visible failure. Recoverable via Activate.
func (p *Program) MarkError(now time.Time, msg string) {
	p.Status = ProgramStatusError
	p.ErrorMessage = &msg
	p.UpdatedAt = now
}

// IsReady reports whether the program is eligible to run at now:
// runnable status, next_run_at unset or due, and end_at not passed.
func (p *Program) IsReady(now time.Time) bool {
	if p.Status != ProgramStatusActive && p.Status != ProgramStatusScheduled {
		return false
	}
	if p.NextRunAt != nil && p.NextRunAt.After(now) {
		return false
	}
	if p.EndAt != nil && !p.EndAt.After(now) {
		return false
	}
	return true
}

// EstimateItemCount computes items_planned for a run given the resolved
// matrix sizes. Countries/languages only multiply when the quantity mode
// includes them.
func (p *Program) EstimateItemCount(countries, languages int) int {
	count := p.QuantityValue * len(p.ContentTypes)
	if p.QuantityMode.PerCountry() {
		count *= countries
	}
	if p.QuantityMode.PerLanguage() {
		count *= languages
	}
	return count
}
