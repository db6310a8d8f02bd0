package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jonesrussell/content-scheduler/internal/database"
	"github.com/jonesrussell/content-scheduler/internal/domain"
	"github.com/jonesrussell/content-scheduler/internal/logger"
	"github.com/jonesrussell/content-scheduler/internal/metrics"
	"github.com/jonesrussell/content-scheduler/internal/telemetry"
	"github.com/jonesrussell/content-scheduler/internal/throttle"
)

const (
	defaultPollInterval   = 15 * time.Second
	defaultBatchSize      = 50
	defaultPublishTimeout = 10 * time.Second
	stalePublishingAge    = 5 * time.Minute
	cleanupRetention      = 7 * 24 * time.Hour // Keep published entries for 7 days
	cleanupInterval       = 1 * time.Hour
	queueRecoveryInterval = 1 * time.Minute
)

// PublisherWorker paces the publication queue against each destination's
// throttle policy and pushes due entries to Redis Pub/Sub.
type PublisherWorker struct {
	queue     *database.QueueRepository
	schedules *database.ScheduleRepository
	redis     *redis.Client
	tracker   metrics.MetricsTracker
	telemetry *telemetry.Provider
	logger    logger.Logger

	pollInterval   time.Duration
	batchSize      int
	publishTimeout time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

// PublisherWorkerConfig holds configuration options
type PublisherWorkerConfig struct {
	PollInterval   time.Duration
	BatchSize      int
	PublishTimeout time.Duration
}

// DefaultPublisherWorkerConfig returns sensible defaults
func DefaultPublisherWorkerConfig() PublisherWorkerConfig {
	return PublisherWorkerConfig{
		PollInterval:   defaultPollInterval,
		BatchSize:      defaultBatchSize,
		PublishTimeout: defaultPublishTimeout,
	}
}

// NewPublisherWorker creates a new publisher worker
func NewPublisherWorker(
	queue *database.QueueRepository,
	schedules *database.ScheduleRepository,
	redisClient *redis.Client,
	tracker metrics.MetricsTracker,
	tel *telemetry.Provider,
	cfg PublisherWorkerConfig,
	log logger.Logger,
) *PublisherWorker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}

	return &PublisherWorker{
		queue:          queue,
		schedules:      schedules,
		redis:          redisClient,
		tracker:        tracker,
		telemetry:      tel,
		logger:         log,
		pollInterval:   cfg.PollInterval,
		batchSize:      cfg.BatchSize,
		publishTimeout: cfg.PublishTimeout,
		stopChan:       make(chan struct{}),
	}
}

// Start begins the pacing/publishing loop
func (w *PublisherWorker) Start(ctx context.Context) {
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
	go w.runCleanup(ctx)

	w.wg.Add(1)
	go w.runRecovery(ctx)

	w.logger.Info("publisher worker started",
		logger.Duration("poll_interval", w.pollInterval),
		logger.Int("batch_size", w.batchSize))
}

// Stop gracefully stops the worker
func (w *PublisherWorker) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("publisher worker stopped")
}

// IsRunning returns whether the worker is currently running
func (w *PublisherWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}

func (w *PublisherWorker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Process immediately on start
	w.ProcessOnce(ctx, time.Now().UTC())

	for {
		select {
		case <-ticker.C:
			w.ProcessOnce(ctx, time.Now().UTC())
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// ProcessOnce runs one pacing plus publishing pass over every active
// destination schedule.
func (w *PublisherWorker) ProcessOnce(ctx context.Context, now time.Time) {
	schedules, err := w.schedules.ActiveSchedules(ctx)
	if err != nil {
		w.logger.Error("failed to load active schedules", logger.Error(err))
		return
	}

	for i := range schedules {
		s := &schedules[i]
		w.paceDestination(ctx, s, now)
		w.publishDestination(ctx, s, now)
	}

	if stats, statsErr := w.queue.GetStats(ctx); statsErr == nil {
		w.telemetry.SetQueueDepth(stats.Pending + stats.Scheduled)
	}
}

// paceDestination assigns throttle slots to pending entries. Slot
// spacing (the active window spread over articles_per_day) enforces the
// daily volume; the published-today count closes the gap when slots
// from a previous day spilled over.
func (w *PublisherWorker) paceDestination(ctx context.Context, s *domain.PublicationSchedule, now time.Time) {
	dayStart, dayEnd, err := throttle.DayBounds(s, now)
	if err != nil {
		w.logger.Error("invalid schedule timezone",
			logger.String("destination", s.Destination),
			logger.Error(err))
		return
	}

	published, err := w.queue.CountPublishedBetween(ctx, s.Destination, dayStart, dayEnd)
	if err != nil {
		w.logger.Error("failed to count published today",
			logger.String("destination", s.Destination),
			logger.Error(err))
		return
	}

	capacity := throttle.RemainingCapacityToday(s, int(published))
	if capacity == 0 {
		w.telemetry.RecordPublishDeferred(s.Destination)
		return
	}
	if capacity > w.batchSize {
		capacity = w.batchSize
	}

	pending, err := w.queue.FetchPending(ctx, s.Destination, capacity)
	if err != nil {
		w.logger.Error("failed to fetch pending entries",
			logger.String("destination", s.Destination),
			logger.Error(err))
		return
	}
	if len(pending) == 0 {
		return
	}

	last, err := w.queue.LastScheduledAt(ctx, s.Destination)
	if err != nil {
		w.logger.Error("failed to load last slot",
			logger.String("destination", s.Destination),
			logger.Error(err))
		return
	}

	for i := range pending {
		slot, slotErr := throttle.NextAvailableSlot(s, last, now)
		if slotErr != nil {
			w.logger.Error("failed to compute slot",
				logger.String("destination", s.Destination),
				logger.Error(slotErr))
			return
		}
		if schedErr := w.queue.ScheduleAt(ctx, pending[i].ID, slot); schedErr != nil {
			w.logger.Error("failed to schedule entry",
				logger.String("queue_id", pending[i].ID.String()),
				logger.Error(schedErr))
			continue
		}
		last = &slot
		w.logger.Debug("entry scheduled",
			logger.String("queue_id", pending[i].ID.String()),
			logger.String("destination", s.Destination),
			logger.Time("slot", slot))
	}
}

// publishDestination claims entries whose slot arrived and pushes them
// to Redis, honoring the active window and the hourly rate cap.
func (w *PublisherWorker) publishDestination(ctx context.Context, s *domain.PublicationSchedule, now time.Time) {
	within, err := throttle.IsWithinActiveWindow(s, now)
	if err != nil {
		w.logger.Error("invalid schedule timezone",
			logger.String("destination", s.Destination),
			logger.Error(err))
		return
	}
	if !within {
		return
	}

	limit := w.batchSize
	if s.MaxPerHour > 0 {
		hourCount, hourErr := w.publishedThisHour(ctx, s, now)
		if hourErr != nil {
			w.logger.Error("failed to count hourly publishes",
				logger.String("destination", s.Destination),
				logger.Error(hourErr))
			return
		}
		remaining := s.MaxPerHour - int(hourCount)
		if remaining <= 0 {
			w.telemetry.RecordPublishDeferred(s.Destination)
			return
		}
		if remaining < limit {
			limit = remaining
		}
	}

	entries, err := w.queue.ClaimDue(ctx, s.Destination, now, limit)
	if err != nil {
		w.logger.Error("failed to claim due entries",
			logger.String("destination", s.Destination),
			logger.Error(err))
		return
	}

	for i := range entries {
		w.publishOne(ctx, s, &entries[i], now)
	}
}

func (w *PublisherWorker) publishedThisHour(ctx context.Context, s *domain.PublicationSchedule, now time.Time) (int64, error) {
	loc, err := s.Location()
	if err != nil {
		return 0, err
	}
	local := now.In(loc)
	hourStart := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, loc)
	return w.queue.CountPublishedBetween(ctx, s.Destination, hourStart.UTC(), hourStart.Add(time.Hour).UTC())
}

func (w *PublisherWorker) publishOne(ctx context.Context, s *domain.PublicationSchedule, entry *domain.QueueEntry, now time.Time) {
	ctx, span := w.telemetry.StartSpan(ctx, "queue.publish",
		attribute.String("queue_id", entry.ID.String()),
		attribute.String("content_id", entry.ContentID),
		attribute.String("channel", entry.RoutingKey()),
	)
	defer span.End()

	message := entry.ToPublishMessage(now)
	messageJSON, err := json.Marshal(message)
	if err != nil {
		w.handlePublishError(ctx, s, entry, fmt.Errorf("marshal message: %w", err))
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, w.publishTimeout)
	defer cancel()

	channel := entry.RoutingKey()
	if err := w.redis.Publish(pubCtx, channel, messageJSON).Err(); err != nil {
		w.handlePublishError(ctx, s, entry, fmt.Errorf("redis publish: %w", err))
		return
	}

	if markErr := w.queue.MarkPublished(ctx, entry.ID); markErr != nil {
		// Message was published; the row will be recovered or cleaned up
		w.logger.Error("failed to mark entry as published",
			logger.String("queue_id", entry.ID.String()),
			logger.Error(markErr))
	}

	if resetErr := w.schedules.ResetErrors(ctx, s.Destination); resetErr != nil {
		w.logger.Warn("failed to reset error counter",
			logger.String("destination", s.Destination),
			logger.Error(resetErr))
	}
	if trackErr := w.tracker.IncrementPublished(ctx, s.Destination, now); trackErr != nil {
		w.logger.Warn("failed to track publish", logger.Error(trackErr))
	}

	var slot time.Time
	if entry.ScheduledAt != nil {
		slot = *entry.ScheduledAt
	}
	w.telemetry.RecordPublish(s.Destination, slot, true)

	w.logger.Debug("published to Redis",
		logger.String("queue_id", entry.ID.String()),
		logger.String("channel", channel),
		logger.Int("attempt", entry.Attempts+1))
}

func (w *PublisherWorker) handlePublishError(ctx context.Context, s *domain.PublicationSchedule, entry *domain.QueueEntry, err error) {
	w.logger.Error("failed to publish queue entry",
		logger.String("queue_id", entry.ID.String()),
		logger.String("content_id", entry.ContentID),
		logger.Int("attempts", entry.Attempts),
		logger.Error(err))
	w.telemetry.RecordPublish(s.Destination, time.Time{}, false)

	if markErr := w.queue.MarkFailed(ctx, entry.ID, err.Error()); markErr != nil {
		w.logger.Error("failed to mark entry as failed",
			logger.String("queue_id", entry.ID.String()),
			logger.Error(markErr))
	}

	errCount, recErr := w.schedules.RecordPublishError(ctx, s.Destination)
	if recErr != nil {
		w.logger.Error("failed to record publish error",
			logger.String("destination", s.Destination),
			logger.Error(recErr))
		return
	}
	if s.PauseOnError && errCount >= s.MaxErrorsBeforePause {
		w.telemetry.RecordSchedulePaused(s.Destination)
		w.logger.Warn("destination schedule paused on consecutive errors",
			logger.String("destination", s.Destination),
			logger.Int("consecutive_errors", errCount))
	}
}

// runCleanup periodically removes old published entries
func (w *PublisherWorker) runCleanup(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deleted, err := w.queue.CleanupPublished(ctx, cleanupRetention)
			if err != nil {
				w.logger.Error("queue cleanup failed", logger.Error(err))
			} else if deleted > 0 {
				w.telemetry.AddQueueCleanedUp(deleted)
				w.logger.Info("cleaned up old queue entries", logger.Int64("deleted", deleted))
			}
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// runRecovery resets stale "publishing" entries back to "pending".
// This handles entries that were claimed but worker crashed before completing.
func (w *PublisherWorker) runRecovery(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(queueRecoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			reset, err := w.queue.ResetStalePublishing(ctx, stalePublishingAge)
			if err != nil {
				w.logger.Error("queue recovery failed", logger.Error(err))
			} else if reset > 0 {
				w.telemetry.AddQueueRecovered(reset)
				w.logger.Warn("recovered stale queue entries", logger.Int64("reset", reset))
			}
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// GetStats returns current worker statistics
func (w *PublisherWorker) GetStats(ctx context.Context) (map[string]any, error) {
	stats, err := w.queue.GetStats(ctx)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"pending":                 stats.Pending,
		"scheduled":               stats.Scheduled,
		"publishing":              stats.Publishing,
		"published":               stats.Published,
		"failed":                  stats.Failed,
		"cancelled":               stats.Cancelled,
		"avg_publish_lag_seconds": stats.AvgPublishLagSeconds,
		"poll_interval":           w.pollInterval.String(),
		"batch_size":              w.batchSize,
		"running":                 w.IsRunning(),
	}, nil
}
