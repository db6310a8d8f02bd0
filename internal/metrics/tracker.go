package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/content-scheduler/internal/logger"
)

// Tracker implements MetricsTracker using Redis daily counters.
// Counters are advisory; the publication queue in PostgreSQL stays the
// authoritative record.
type Tracker struct {
	client redis.UniversalClient
	keys   *RedisKeys
	logger logger.Logger
}

// NewTracker creates a new metrics tracker
func NewTracker(client redis.UniversalClient, log logger.Logger) *Tracker {
	return &Tracker{
		client: client,
		keys:   NewRedisKeys(KeyPrefixMetrics),
		logger: log,
	}
}

func (t *Tracker) incrementCounter(ctx context.Context, key string) error {
	ttl := MetricsTTLDays * HoursPerDay * time.Hour

	// Pipeline keeps increment and TTL refresh in one round trip
	pipe := t.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		t.logger.Warn("failed to increment counter",
			logger.String("redis_key", key),
			logger.Error(err),
		)
		return fmt.Errorf("increment counter: %w", err)
	}
	return nil
}

// IncrementPublished increments the daily publish counter for a destination
func (t *Tracker) IncrementPublished(ctx context.Context, destination string, day time.Time) error {
	return t.incrementCounter(ctx, t.keys.Published(destination, day))
}

// IncrementGenerated increments the daily generated item counter
func (t *Tracker) IncrementGenerated(ctx context.Context, day time.Time) error {
	return t.incrementCounter(ctx, t.keys.Generated(day))
}

// IncrementFailed increments the daily failed item counter
func (t *Tracker) IncrementFailed(ctx context.Context, day time.Time) error {
	return t.incrementCounter(ctx, t.keys.Failed(day))
}

// AddCost adds generation cost to the daily cost counter
func (t *Tracker) AddCost(ctx context.Context, day time.Time, amount float64) error {
	key := t.keys.Cost(day)
	ttl := MetricsTTLDays * HoursPerDay * time.Hour

	pipe := t.client.Pipeline()
	pipe.IncrByFloat(ctx, key, amount)
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		t.logger.Warn("failed to add cost",
			logger.String("redis_key", key),
			logger.Error(err),
		)
		return fmt.Errorf("add cost: %w", err)
	}
	return nil
}

// PublishedOn returns the publish count for a destination on a day.
// A missing key counts as zero.
func (t *Tracker) PublishedOn(ctx context.Context, destination string, day time.Time) (int64, error) {
	val, err := t.client.Get(ctx, t.keys.Published(destination, day)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get published counter: %w", err)
	}
	return val, nil
}

// GetStats returns aggregated statistics for a day using a Redis
// pipeline for atomic reads.
func (t *Tracker) GetStats(ctx context.Context, destinations []string, day time.Time) (*Stats, error) {
	pipe := t.client.Pipeline()

	publishedCmds := make(map[string]*redis.StringCmd)
	for _, dest := range destinations {
		publishedCmds[dest] = pipe.Get(ctx, t.keys.Published(dest, day))
	}
	generatedCmd := pipe.Get(ctx, t.keys.Generated(day))
	failedCmd := pipe.Get(ctx, t.keys.Failed(day))
	costCmd := pipe.Get(ctx, t.keys.Cost(day))
	lastTickCmd := pipe.Get(ctx, KeyLastTick)

	if _, execErr := pipe.Exec(ctx); execErr != nil && !errors.Is(execErr, redis.Nil) {
		return nil, fmt.Errorf("execute pipeline: %w", execErr)
	}

	stats := &Stats{
		Destinations: make([]DestinationStats, 0, len(destinations)),
	}

	for _, dest := range destinations {
		destStats := DestinationStats{Name: dest}
		if val, err := publishedCmds[dest].Int64(); err == nil {
			destStats.Published = val
			stats.TotalPublished += val
		}
		stats.Destinations = append(stats.Destinations, destStats)
	}

	if val, err := generatedCmd.Int64(); err == nil {
		stats.TotalGenerated = val
	}
	if val, err := failedCmd.Int64(); err == nil {
		stats.TotalFailed = val
	}
	if val, err := costCmd.Float64(); err == nil {
		stats.TotalCost = val
	}
	if lastTickStr, err := lastTickCmd.Result(); err == nil && lastTickStr != "" {
		if lastTick, parseErr := time.Parse(time.RFC3339, lastTickStr); parseErr == nil {
			stats.LastTick = lastTick
		}
	}

	return stats, nil
}

// UpdateLastTick records the last scheduler tick timestamp
func (t *Tracker) UpdateLastTick(ctx context.Context) error {
	if err := t.client.Set(ctx, KeyLastTick, time.Now().UTC().Format(time.RFC3339), 0).Err(); err != nil {
		return fmt.Errorf("update last tick: %w", err)
	}
	return nil
}
