// Package runner orchestrates program execution: eligibility gates, run
// creation, item expansion, completion bookkeeping and rescheduling.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/content-scheduler/internal/domain"
	"github.com/jonesrussell/content-scheduler/internal/logger"
	"github.com/jonesrussell/content-scheduler/internal/metrics"
	"github.com/jonesrussell/content-scheduler/internal/recurrence"
	"github.com/jonesrussell/content-scheduler/internal/refdata"
	"github.com/jonesrussell/content-scheduler/internal/telemetry"
)

// ProgramStore persists programs. ClaimRun must be an atomic conditional
// update so two concurrent ticks never both start a run for the same
// program; it returns domain.ErrNotFound when another worker won the claim.
type ProgramStore interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Program, error)
	FindReady(ctx context.Context, now time.Time) ([]domain.Program, error)
	ClaimRun(ctx context.Context, id uuid.UUID, now time.Time) (*domain.Program, error)
	Update(ctx context.Context, p *domain.Program) error
	CountItemsBetween(ctx context.Context, id uuid.UUID, start, end time.Time) (int64, error)
	SumCostBetween(ctx context.Context, id uuid.UUID, start, end time.Time) (float64, error)
}

// RunStore persists program runs. The increment methods must be atomic
// increments guarded by items_planned, returning the updated row.
type RunStore interface {
	Create(ctx context.Context, run *domain.ProgramRun) error
	Get(ctx context.Context, id uuid.UUID) (*domain.ProgramRun, error)
	IncrementGenerated(ctx context.Context, id uuid.UUID, cost float64) (*domain.ProgramRun, error)
	IncrementFailed(ctx context.Context, id uuid.UUID) (*domain.ProgramRun, error)
	Finalize(ctx context.Context, run *domain.ProgramRun) error
	CountRunning(ctx context.Context, programID uuid.UUID) (int64, error)
	FindStale(ctx context.Context, olderThan time.Duration) ([]domain.ProgramRun, error)
}

// ItemStore persists program items.
type ItemStore interface {
	CreateBatch(ctx context.Context, items []domain.ProgramItem) error
	Get(ctx context.Context, id uuid.UUID) (*domain.ProgramItem, error)
	Update(ctx context.Context, item *domain.ProgramItem) error
	ForRun(ctx context.Context, runID uuid.UUID) ([]domain.ProgramItem, error)
}

// Runner drives program execution against the stores. All timestamps are
// supplied by the caller for testability.
type Runner struct {
	programs  ProgramStore
	runs      RunStore
	items     ItemStore
	refdata   refdata.Provider
	tracker   metrics.MetricsTracker
	telemetry *telemetry.Provider
	calc      *recurrence.Calculator
	logger    logger.Logger
}

// New creates a runner. Tracker failures are advisory: item completion
// never rolls back because a Redis counter could not be bumped.
func New(programs ProgramStore, runs RunStore, items ItemStore, ref refdata.Provider,
	tracker metrics.MetricsTracker, tel *telemetry.Provider, log logger.Logger) *Runner {
	return &Runner{
		programs:  programs,
		runs:      runs,
		items:     items,
		refdata:   ref,
		tracker:   tracker,
		telemetry: tel,
		calc:      recurrence.New(),
		logger:    log,
	}
}

// FindReadyPrograms returns programs eligible to run at now: runnable
// status, next_run_at unset or due, end_at not passed.
func (r *Runner) FindReadyPrograms(ctx context.Context, now time.Time) ([]domain.Program, error) {
	return r.programs.FindReady(ctx, now)
}

// Activate computes the program's first next_run_at and transitions it
// out of draft/paused/error. A policy with no future occurrence (a cron
// expression that never fires again) completes the program right away
// rather than leaving an active row no tick will ever pick up.
func (r *Runner) Activate(ctx context.Context, p *domain.Program, now time.Time) error {
	next, err := r.calc.Next(p.Recurrence(), p.StartAt, now)
	if err != nil {
		return err
	}
	if err := p.Activate(now, next); err != nil {
		return err
	}
	if next == nil {
		p.MarkCompleted(now)
	}
	return r.programs.Update(ctx, p)
}

// Pause stops future runs for the program.
func (r *Runner) Pause(ctx context.Context, p *domain.Program, now time.Time) error {
	if err := p.Pause(now); err != nil {
		return err
	}
	return r.programs.Update(ctx, p)
}

// Resume recomputes next_run_at and reactivates a paused program.
func (r *Runner) Resume(ctx context.Context, p *domain.Program, now time.Time) error {
	next, err := r.calc.Next(p.Recurrence(), p.StartAt, now)
	if err != nil {
		return err
	}
	if err := p.Resume(now, next); err != nil {
		return err
	}
	if next == nil {
		p.MarkCompleted(now)
	}
	return r.programs.Update(ctx, p)
}

// CanRunToday applies the program's daily gates: generation count, cost
// budget, and concurrent run limit. Limit breaches defer the program to
// a later tick, they are not errors. "Today" is the program's policy
// timezone, not server time.
func (r *Runner) CanRunToday(ctx context.Context, p *domain.Program, now time.Time) (bool, error) {
	if p.ConcurrentJobsLimit != nil {
		running, err := r.runs.CountRunning(ctx, p.ID)
		if err != nil {
			return false, fmt.Errorf("count running runs: %w", err)
		}
		if running >= *p.ConcurrentJobsLimit {
			return false, nil
		}
	}

	if p.DailyGenerationLimit == nil && p.DailyBudgetLimit == nil {
		return true, nil
	}

	start, end, err := programDayBounds(p, now)
	if err != nil {
		return false, err
	}

	if p.DailyGenerationLimit != nil {
		count, err := r.programs.CountItemsBetween(ctx, p.ID, start, end)
		if err != nil {
			return false, fmt.Errorf("count items today: %w", err)
		}
		if count >= *p.DailyGenerationLimit {
			return false, nil
		}
	}
	if p.DailyBudgetLimit != nil {
		cost, err := r.programs.SumCostBetween(ctx, p.ID, start, end)
		if err != nil {
			return false, fmt.Errorf("sum cost today: %w", err)
		}
		if cost >= *p.DailyBudgetLimit {
			return false, nil
		}
	}
	return true, nil
}

// StartRun atomically claims the program, creates a running ProgramRun
// and expands the target matrix into pending items. Returns
// domain.ErrNotFound when another worker already claimed the program.
func (r *Runner) StartRun(ctx context.Context, programID uuid.UUID, now time.Time) (*domain.ProgramRun, error) {
	p, err := r.programs.ClaimRun(ctx, programID, now)
	if err != nil {
		return nil, err
	}

	matrix, err := r.resolveMatrix(ctx, p)
	if err != nil {
		r.recordProgramError(ctx, p, now, err.Error())
		return nil, err
	}

	run := domain.NewProgramRun(p.ID, p.EstimateItemCount(len(matrix.Countries), len(matrix.Languages)), now)
	if err := r.runs.Create(ctx, run); err != nil {
		r.recordProgramError(ctx, p, now, fmt.Sprintf("create run: %v", err))
		return nil, fmt.Errorf("create run: %w", err)
	}

	items := expandItems(p, run, matrix, now)
	if len(items) > 0 {
		if err := r.items.CreateBatch(ctx, items); err != nil {
			r.abortRun(ctx, run, now, fmt.Sprintf("create items: %v", err))
			r.recordProgramError(ctx, p, now, fmt.Sprintf("create items: %v", err))
			return nil, fmt.Errorf("create items: %w", err)
		}
	}

	r.logger.Info("program run started",
		logger.String("program_id", p.ID.String()),
		logger.String("run_id", run.ID.String()),
		logger.Int("items_planned", run.ItemsPlanned),
		logger.Int("items_created", len(items)))
	return run, nil
}

// recordProgramError moves a program that failed to start out of the
// claimed state. The error status is operator-visible and Activate
// recovers it; without this the held claim would hide the program from
// every future tick.
func (r *Runner) recordProgramError(ctx context.Context, p *domain.Program, now time.Time, msg string) {
	p.MarkError(now, msg)
	if err := r.programs.Update(ctx, p); err != nil {
		r.logger.Error("failed to record program error",
			logger.String("program_id", p.ID.String()),
			logger.Error(err))
	}
}

// abortRun fails a run whose item expansion could not be persisted.
func (r *Runner) abortRun(ctx context.Context, run *domain.ProgramRun, now time.Time, msg string) {
	run.Status = domain.RunStatusFailed
	run.CompletedAt = &now
	run.ErrorMessage = &msg
	if err := r.runs.Finalize(ctx, run); err != nil {
		r.logger.Error("failed to abort run",
			logger.String("run_id", run.ID.String()),
			logger.Error(err))
	}
}

// CompleteItem records a produced content entity for an item and bumps
// the run counters. Finalizes the run when every planned item resolved.
func (r *Runner) CompleteItem(ctx context.Context, itemID uuid.UUID, ref domain.ContentRef, cost float64, now time.Time) error {
	item, err := r.items.Get(ctx, itemID)
	if err != nil {
		return err
	}
	if err := item.Complete(ref, cost, now); err != nil {
		return err
	}
	if err := r.items.Update(ctx, item); err != nil {
		return fmt.Errorf("update item: %w", err)
	}

	run, err := r.runs.IncrementGenerated(ctx, item.RunID, cost)
	if err != nil {
		return fmt.Errorf("increment generated: %w", err)
	}

	if trackErr := r.tracker.IncrementGenerated(ctx, now); trackErr != nil {
		r.logger.Warn("failed to track generated item", logger.Error(trackErr))
	}
	if cost > 0 {
		if trackErr := r.tracker.AddCost(ctx, now, cost); trackErr != nil {
			r.logger.Warn("failed to track generation cost", logger.Error(trackErr))
		}
	}
	r.telemetry.RecordItemGenerated(string(item.GenerationType), cost)

	return r.maybeFinalize(ctx, run, now)
}

// FailItem records an item failure. Non-fatal to the run.
func (r *Runner) FailItem(ctx context.Context, itemID uuid.UUID, msg string, now time.Time) error {
	item, err := r.items.Get(ctx, itemID)
	if err != nil {
		return err
	}
	if err := item.Fail(msg, now); err != nil {
		return err
	}
	if err := r.items.Update(ctx, item); err != nil {
		return fmt.Errorf("update item: %w", err)
	}

	run, err := r.runs.IncrementFailed(ctx, item.RunID)
	if err != nil {
		return fmt.Errorf("increment failed: %w", err)
	}

	if trackErr := r.tracker.IncrementFailed(ctx, now); trackErr != nil {
		r.logger.Warn("failed to track failed item", logger.Error(trackErr))
	}
	r.telemetry.RecordItemFailed(string(item.GenerationType))

	return r.maybeFinalize(ctx, run, now)
}

func (r *Runner) maybeFinalize(ctx context.Context, run *domain.ProgramRun, now time.Time) error {
	if !run.Resolved() || run.Status != domain.RunStatusRunning {
		return nil
	}
	return r.FinalizeRun(ctx, run, now)
}

// FinalizeRun freezes the run summary, sets the terminal status and
// reschedules the program. A run that produced nothing finalizes as
// failed; the program stays schedulable either way.
func (r *Runner) FinalizeRun(ctx context.Context, run *domain.ProgramRun, now time.Time) error {
	items, err := r.items.ForRun(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("load run items: %w", err)
	}

	run.CompletedAt = &now
	if run.ItemsGenerated == 0 && run.ItemsFailed > 0 {
		run.Status = domain.RunStatusFailed
		msg := fmt.Sprintf("all %d items failed", run.ItemsFailed)
		run.ErrorMessage = &msg
	} else {
		run.Status = domain.RunStatusCompleted
	}
	run.Summary = buildSummary(run, items)

	if err := r.runs.Finalize(ctx, run); err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}
	if d := run.Duration(); d != nil {
		r.telemetry.RecordRunFinalized(string(run.Status), *d)
	}

	return r.rescheduleProgram(ctx, run, now)
}

// CancelRun marks a run cancelled and reschedules the program for its
// next occurrence. The run held the program's next_run_at claim; without
// rescheduling, cancellation would leave the program active but
// invisible to every future tick.
func (r *Runner) CancelRun(ctx context.Context, run *domain.ProgramRun, now time.Time) error {
	if run.Status != domain.RunStatusRunning {
		return fmt.Errorf("%w: cannot cancel run in status %q", domain.ErrInvalidStateTransition, run.Status)
	}
	items, err := r.items.ForRun(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("load run items: %w", err)
	}
	run.Status = domain.RunStatusCancelled
	run.CompletedAt = &now
	run.Summary = buildSummary(run, items)
	if err := r.runs.Finalize(ctx, run); err != nil {
		return fmt.Errorf("finalize cancelled run: %w", err)
	}
	return r.rescheduleProgram(ctx, run, now)
}

// RecoverStaleRuns fails runs stuck in running longer than olderThan and
// reschedules their programs. Returns the number of runs recovered.
func (r *Runner) RecoverStaleRuns(ctx context.Context, olderThan time.Duration, now time.Time) (int, error) {
	stale, err := r.runs.FindStale(ctx, olderThan)
	if err != nil {
		return 0, fmt.Errorf("find stale runs: %w", err)
	}
	recovered := 0
	for i := range stale {
		run := &stale[i]
		run.Status = domain.RunStatusFailed
		run.CompletedAt = &now
		msg := fmt.Sprintf("run stale: running longer than %s", olderThan)
		run.ErrorMessage = &msg
		if err := r.runs.Finalize(ctx, run); err != nil {
			r.logger.Error("failed to finalize stale run",
				logger.String("run_id", run.ID.String()),
				logger.Error(err))
			continue
		}
		if err := r.rescheduleProgram(ctx, run, now); err != nil {
			r.logger.Error("failed to reschedule program after stale run",
				logger.String("run_id", run.ID.String()),
				logger.Error(err))
			continue
		}
		recovered++
	}
	return recovered, nil
}

// rescheduleProgram advances the program after a finished run: stats,
// last_run_at, run_count, and the next occurrence. One-shot programs and
// exhausted cron policies complete.
func (r *Runner) rescheduleProgram(ctx context.Context, run *domain.ProgramRun, now time.Time) error {
	p, err := r.programs.Get(ctx, run.ProgramID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load program: %w", err)
	}

	p.TotalGenerated += int64(run.ItemsGenerated)
	p.TotalErrors += int64(run.ItemsFailed)
	p.TotalCost += run.Cost
	p.RunCount++
	p.LastRunAt = &now

	if p.RecurrenceType == domain.RecurrenceOnce {
		p.MarkCompleted(now)
		return r.programs.Update(ctx, p)
	}

	next, err := r.calc.Next(p.Recurrence(), p.StartAt, now)
	if err != nil {
		p.MarkError(now, err.Error())
		if updateErr := r.programs.Update(ctx, p); updateErr != nil {
			return updateErr
		}
		return err
	}
	if next == nil || (p.EndAt != nil && !next.Before(*p.EndAt)) {
		p.MarkCompleted(now)
	} else {
		p.NextRunAt = next
		p.Status = domain.ProgramStatusActive
		p.UpdatedAt = now
	}
	return r.programs.Update(ctx, p)
}

func buildSummary(run *domain.ProgramRun, items []domain.ProgramItem) *domain.RunSummary {
	summary := &domain.RunSummary{
		ByGenerationType: make(map[string]int),
		ByCountry:        make(map[string]int),
		ByLanguage:       make(map[string]int),
		TotalCost:        run.Cost,
		SuccessRate:      run.SuccessRate(),
	}
	if d := run.Duration(); d != nil {
		summary.DurationSeconds = d.Seconds()
	}
	for i := range items {
		if items[i].Status != domain.ItemStatusCompleted {
			continue
		}
		summary.ByGenerationType[string(items[i].GenerationType)]++
		summary.ByCountry[strconv.FormatInt(items[i].CountryID, 10)]++
		summary.ByLanguage[strconv.FormatInt(items[i].LanguageID, 10)]++
	}
	return summary
}

// programDayBounds returns the UTC bounds of the program's current local
// calendar day in its policy timezone.
func programDayBounds(p *domain.Program, now time.Time) (start, end time.Time, err error) {
	loc, err := p.Recurrence().Location()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	local := now.In(loc)
	start = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start.UTC(), start.AddDate(0, 0, 1).UTC(), nil
}
