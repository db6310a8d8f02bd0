package metrics_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/content-scheduler/internal/logger"
	"github.com/jonesrussell/content-scheduler/internal/metrics"
)

func newTestTracker(t *testing.T) (*metrics.Tracker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	log := logger.NewNopLogger()
	return metrics.NewTracker(client, log), mr
}

func TestTracker_IncrementPublished(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()
	day := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	require.NoError(t, tracker.IncrementPublished(ctx, "site-fr", day))
	require.NoError(t, tracker.IncrementPublished(ctx, "site-fr", day))
	require.NoError(t, tracker.IncrementPublished(ctx, "site-de", day))

	count, err := tracker.PublishedOn(ctx, "site-fr", day)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = tracker.PublishedOn(ctx, "site-de", day)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestTracker_PublishedOnMissingKey(t *testing.T) {
	tracker, _ := newTestTracker(t)

	count, err := tracker.PublishedOn(context.Background(), "site-fr", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestTracker_DayBoundary(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()
	day := time.Date(2024, 1, 2, 23, 59, 0, 0, time.UTC)
	nextDay := day.Add(2 * time.Minute)

	require.NoError(t, tracker.IncrementPublished(ctx, "site-fr", day))

	count, err := tracker.PublishedOn(ctx, "site-fr", nextDay)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count, "counters do not leak across day boundaries")
}

func TestTracker_AddCost(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()
	day := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	require.NoError(t, tracker.AddCost(ctx, day, 0.04))
	require.NoError(t, tracker.AddCost(ctx, day, 0.06))

	stats, err := tracker.GetStats(ctx, nil, day)
	require.NoError(t, err)
	assert.InDelta(t, 0.10, stats.TotalCost, 0.0001)
}

func TestTracker_GetStats(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()
	day := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	require.NoError(t, tracker.IncrementPublished(ctx, "site-fr", day))
	require.NoError(t, tracker.IncrementPublished(ctx, "site-fr", day))
	require.NoError(t, tracker.IncrementPublished(ctx, "site-de", day))
	require.NoError(t, tracker.IncrementGenerated(ctx, day))
	require.NoError(t, tracker.IncrementGenerated(ctx, day))
	require.NoError(t, tracker.IncrementFailed(ctx, day))
	require.NoError(t, tracker.UpdateLastTick(ctx))

	stats, err := tracker.GetStats(ctx, []string{"site-fr", "site-de", "site-es"}, day)
	require.NoError(t, err)

	assert.Equal(t, int64(3), stats.TotalPublished)
	assert.Equal(t, int64(2), stats.TotalGenerated)
	assert.Equal(t, int64(1), stats.TotalFailed)
	assert.False(t, stats.LastTick.IsZero())

	require.Len(t, stats.Destinations, 3)
	assert.Equal(t, int64(2), stats.Destinations[0].Published)
	assert.Equal(t, int64(1), stats.Destinations[1].Published)
	assert.Equal(t, int64(0), stats.Destinations[2].Published)
}

func TestTracker_CountersCarryTTL(t *testing.T) {
	tracker, mr := newTestTracker(t)
	ctx := context.Background()
	day := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	require.NoError(t, tracker.IncrementPublished(ctx, "site-fr", day))

	key := metrics.NewRedisKeys(metrics.KeyPrefixMetrics).Published("site-fr", day)
	assert.Positive(t, mr.TTL(key), "daily counters must expire")
}
