// Package worker provides background workers for the content scheduler.
// scheduler_worker.go drives program ticks; publisher_worker.go paces
// and publishes the publication queue.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonesrussell/content-scheduler/internal/domain"
	"github.com/jonesrussell/content-scheduler/internal/logger"
	"github.com/jonesrussell/content-scheduler/internal/metrics"
	"github.com/jonesrussell/content-scheduler/internal/runner"
	"github.com/jonesrussell/content-scheduler/internal/telemetry"
)

const (
	defaultTickInterval = 30 * time.Second
	defaultStaleRunAge  = 2 * time.Hour
	runRecoveryInterval = 1 * time.Minute
	staleGeneratingAge  = 30 * time.Minute
)

// ItemRecoverer resets items stuck in the generating state.
type ItemRecoverer interface {
	ResetGenerating(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SchedulerWorker ticks through ready programs and starts runs.
type SchedulerWorker struct {
	runner    *runner.Runner
	items     ItemRecoverer
	tracker   metrics.MetricsTracker
	telemetry *telemetry.Provider
	logger    logger.Logger

	tickInterval time.Duration
	staleRunAge  time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

// SchedulerWorkerConfig holds configuration options
type SchedulerWorkerConfig struct {
	TickInterval time.Duration
	StaleRunAge  time.Duration
}

// DefaultSchedulerWorkerConfig returns sensible defaults
func DefaultSchedulerWorkerConfig() SchedulerWorkerConfig {
	return SchedulerWorkerConfig{
		TickInterval: defaultTickInterval,
		StaleRunAge:  defaultStaleRunAge,
	}
}

// NewSchedulerWorker creates a new scheduler worker
func NewSchedulerWorker(
	r *runner.Runner,
	items ItemRecoverer,
	tracker metrics.MetricsTracker,
	tel *telemetry.Provider,
	cfg SchedulerWorkerConfig,
	log logger.Logger,
) *SchedulerWorker {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.StaleRunAge <= 0 {
		cfg.StaleRunAge = defaultStaleRunAge
	}

	return &SchedulerWorker{
		runner:       r,
		items:        items,
		tracker:      tracker,
		telemetry:    tel,
		logger:       log,
		tickInterval: cfg.TickInterval,
		staleRunAge:  cfg.StaleRunAge,
		stopChan:     make(chan struct{}),
	}
}

// Start begins the tick loop and the stale-run recovery loop
func (w *SchedulerWorker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	w.wg.Add(1)
	go w.runRecovery(ctx)

	w.logger.Info("scheduler worker started",
		logger.Duration("tick_interval", w.tickInterval),
		logger.Duration("stale_run_age", w.staleRunAge))
}

// Stop gracefully stops the worker
func (w *SchedulerWorker) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("scheduler worker stopped")
}

// IsRunning returns whether the worker is currently running
func (w *SchedulerWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}

func (w *SchedulerWorker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.tickInterval)
	defer ticker.Stop()

	// Tick immediately on start
	w.Tick(ctx, time.Now().UTC())

	for {
		select {
		case <-ticker.C:
			w.Tick(ctx, time.Now().UTC())
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Tick runs one scheduling pass: find ready programs, apply their daily
// gates, and start runs for the ones that may proceed.
func (w *SchedulerWorker) Tick(ctx context.Context, now time.Time) {
	if err := w.tracker.UpdateLastTick(ctx); err != nil {
		w.logger.Warn("failed to record tick", logger.Error(err))
	}

	ready, err := w.runner.FindReadyPrograms(ctx, now)
	if err != nil {
		w.logger.Error("failed to find ready programs", logger.Error(err))
		return
	}
	w.telemetry.SetProgramsReady(len(ready))
	if len(ready) == 0 {
		return
	}

	for i := range ready {
		w.startOne(ctx, &ready[i], now)
	}
}

func (w *SchedulerWorker) startOne(ctx context.Context, p *domain.Program, now time.Time) {
	ok, err := w.runner.CanRunToday(ctx, p, now)
	if err != nil {
		w.logger.Error("failed to evaluate daily gates",
			logger.String("program_id", p.ID.String()),
			logger.Error(err))
		return
	}
	if !ok {
		w.logger.Debug("program deferred by daily limits",
			logger.String("program_id", p.ID.String()))
		return
	}

	run, err := w.runner.StartRun(ctx, p.ID, now)
	if err != nil {
		// Another worker won the claim; not an error
		if errors.Is(err, domain.ErrNotFound) {
			return
		}
		w.logger.Error("failed to start run",
			logger.String("program_id", p.ID.String()),
			logger.Error(err))
		return
	}

	w.telemetry.RecordRunStarted(string(p.RecurrenceType), run.ItemsPlanned)
}

// runRecovery periodically fails stale runs and reschedules their
// programs, and resets items stuck in generating.
func (w *SchedulerWorker) runRecovery(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(runRecoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			recovered, err := w.runner.RecoverStaleRuns(ctx, w.staleRunAge, time.Now().UTC())
			if err != nil {
				w.logger.Error("stale run recovery failed", logger.Error(err))
			} else if recovered > 0 {
				w.telemetry.AddRunsRecovered(recovered)
				w.logger.Warn("recovered stale runs", logger.Int("recovered", recovered))
			}

			reset, err := w.items.ResetGenerating(ctx, staleGeneratingAge)
			if err != nil {
				w.logger.Error("stale item recovery failed", logger.Error(err))
			} else if reset > 0 {
				w.logger.Warn("reset stale generating items", logger.Int64("reset", reset))
			}
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}
