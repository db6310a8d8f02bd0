package metrics

import (
	"context"
	"time"
)

// MetricsTracker defines the interface for tracking daily counters.
// This interface allows for easy testing and potential future implementations.
type MetricsTracker interface {
	// IncrementPublished increments the daily publish counter for a destination
	IncrementPublished(ctx context.Context, destination string, day time.Time) error
	// IncrementGenerated increments the daily generated item counter
	IncrementGenerated(ctx context.Context, day time.Time) error
	// IncrementFailed increments the daily failed item counter
	IncrementFailed(ctx context.Context, day time.Time) error
	// AddCost adds generation cost to the daily cost counter
	AddCost(ctx context.Context, day time.Time, amount float64) error
	// PublishedOn returns the publish count for a destination on a day
	PublishedOn(ctx context.Context, destination string, day time.Time) (int64, error)
	// GetStats returns aggregated statistics for a day
	GetStats(ctx context.Context, destinations []string, day time.Time) (*Stats, error)
	// UpdateLastTick records the last scheduler tick timestamp
	UpdateLastTick(ctx context.Context) error
}
