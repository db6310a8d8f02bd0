package metrics

import (
	"fmt"
	"time"
)

const (
	// KeyPrefixMetrics is the prefix for all metrics keys
	KeyPrefixMetrics = "metrics"
	// KeyPrefixPublished is the prefix for per-destination publish counters
	KeyPrefixPublished = "published"
	// KeyPrefixGenerated is the prefix for generated item counters
	KeyPrefixGenerated = "generated"
	// KeyPrefixFailed is the prefix for failed item counters
	KeyPrefixFailed = "failed"
	// KeyPrefixCost is the prefix for generation cost counters
	KeyPrefixCost = "cost"
	// KeyLastTick is the Redis key for the last scheduler tick timestamp
	KeyLastTick = "metrics:last_tick"
	// MetricsTTLDays is the TTL in days for daily counters
	MetricsTTLDays = 30
	// HoursPerDay converts day counts to hour durations
	HoursPerDay = 24
	// dayFormat stamps counters with the counter's calendar day
	dayFormat = "2006-01-02"
)

// RedisKeys builds date-stamped Redis keys consistently. Counters are
// keyed by calendar day so reads never need range scans and expiry
// handles retention.
type RedisKeys struct {
	prefix string
}

// NewRedisKeys creates a new RedisKeys instance
func NewRedisKeys(prefix string) *RedisKeys {
	return &RedisKeys{prefix: prefix}
}

// Published returns the daily publish counter key for a destination
func (k *RedisKeys) Published(destination string, day time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%s", k.prefix, KeyPrefixPublished, destination, day.UTC().Format(dayFormat))
}

// Generated returns the daily generated item counter key
func (k *RedisKeys) Generated(day time.Time) string {
	return fmt.Sprintf("%s:%s:%s", k.prefix, KeyPrefixGenerated, day.UTC().Format(dayFormat))
}

// Failed returns the daily failed item counter key
func (k *RedisKeys) Failed(day time.Time) string {
	return fmt.Sprintf("%s:%s:%s", k.prefix, KeyPrefixFailed, day.UTC().Format(dayFormat))
}

// Cost returns the daily generation cost counter key
func (k *RedisKeys) Cost(day time.Time) string {
	return fmt.Sprintf("%s:%s:%s", k.prefix, KeyPrefixCost, day.UTC().Format(dayFormat))
}
