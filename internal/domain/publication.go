package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// QueuePriority orders publication queue selection: high before default
// before low, then scheduled_at ascending.
type QueuePriority string

const (
	PriorityHigh    QueuePriority = "high"
	PriorityDefault QueuePriority = "default"
	PriorityLow     QueuePriority = "low"
)

// QueueStatus represents the state of a publication queue entry.
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusScheduled  QueueStatus = "scheduled"
	QueueStatusPublishing QueueStatus = "publishing"
	QueueStatusPublished  QueueStatus = "published"
	QueueStatusFailed     QueueStatus = "failed"
	QueueStatusCancelled  QueueStatus = "cancelled"
)

const defaultMaxAttempts = 3

// QueueEntry is one pending/in-flight/completed publish request, tied
// one-to-one with a produced content item and a destination.
type QueueEntry struct {
	ID          uuid.UUID   `db:"id"           json:"id"`
	ContentKind ContentKind `db:"content_kind" json:"content_kind"`
	ContentID   string      `db:"content_id"   json:"content_id"`
	Destination string      `db:"destination"  json:"destination"`

	Priority QueuePriority `db:"priority" json:"priority"`
	Status   QueueStatus   `db:"status"   json:"status"`

	ScheduledAt *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	PublishedAt *time.Time `db:"published_at" json:"published_at,omitempty"`

	Attempts    int `db:"attempts"     json:"attempts"`
	MaxAttempts int `db:"max_attempts" json:"max_attempts"`

	ErrorMessage *string   `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"    json:"updated_at"`
}

// NewQueueEntry creates a pending entry with validation.
func NewQueueEntry(ref ContentRef, destination string, priority QueuePriority) (*QueueEntry, error) {
	if ref.ID == "" {
		return nil, fmt.Errorf("%w: content id is required", ErrInvalidQueueEntry)
	}
	if destination == "" {
		return nil, fmt.Errorf("%w: destination is required", ErrInvalidQueueEntry)
	}
	switch priority {
	case PriorityHigh, PriorityDefault, PriorityLow:
	case "":
		priority = PriorityDefault
	default:
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidQueueEntry, priority)
	}

	now := time.Now().UTC()
	return &QueueEntry{
		ID:          uuid.New(),
		ContentKind: ref.Kind,
		ContentID:   ref.ID,
		Destination: destination,
		Priority:    priority,
		Status:      QueueStatusPending,
		MaxAttempts: defaultMaxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ShouldRetry returns true if a failed publish may go back to pending.
func (e *QueueEntry) ShouldRetry() bool {
	return e.Attempts < e.MaxAttempts
}

// IsExhausted returns true once all attempts are used up.
func (e *QueueEntry) IsExhausted() bool {
	return e.Attempts >= e.MaxAttempts
}

// RoutingKey returns the Redis channel publishes for this entry go to.
func (e *QueueEntry) RoutingKey() string {
	return "publish:" + e.Destination + ":" + string(e.ContentKind)
}

// ToPublishMessage converts the entry to the Redis message format the
// destination-side publisher worker consumes.
func (e *QueueEntry) ToPublishMessage(now time.Time) map[string]any {
	return map[string]any{
		"queue_id":     e.ID.String(),
		"content_kind": e.ContentKind,
		"content_id":   e.ContentID,
		"destination":  e.Destination,
		"priority":     e.Priority,
		"attempt":      e.Attempts + 1,
		"published_at": now.UTC().Format(time.RFC3339),
		"channel":      e.RoutingKey(),
	}
}

// PublicationSchedule is the per-destination throttle policy.
// ActiveHours are hours of day 0-23; ActiveDays are ISO weekdays 1-7,
// both in the schedule's timezone.
type PublicationSchedule struct {
	ID          uuid.UUID `db:"id"          json:"id"`
	Destination string    `db:"destination" json:"destination"`

	ArticlesPerDay     int           `db:"articles_per_day"     json:"articles_per_day"`
	MaxPerHour         int           `db:"max_per_hour"         json:"max_per_hour"`
	ActiveHours        pq.Int64Array `db:"active_hours"         json:"active_hours"`
	ActiveDays         pq.Int64Array `db:"active_days"          json:"active_days"`
	MinIntervalMinutes int           `db:"min_interval_minutes" json:"min_interval_minutes"`
	Timezone           string        `db:"timezone"             json:"timezone"`

	IsActive             bool `db:"is_active"               json:"is_active"`
	PauseOnError         bool `db:"pause_on_error"          json:"pause_on_error"`
	MaxErrorsBeforePause int  `db:"max_errors_before_pause" json:"max_errors_before_pause"`
	ConsecutiveErrors    int  `db:"consecutive_errors"      json:"consecutive_errors"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Validate rejects schedules the throttle cannot pace.
func (s *PublicationSchedule) Validate() error {
	if s.Destination == "" {
		return fmt.Errorf("%w: destination is required", ErrInvalidSchedule)
	}
	if s.ArticlesPerDay <= 0 {
		return fmt.Errorf("%w: articles_per_day must be positive, got %d", ErrInvalidSchedule, s.ArticlesPerDay)
	}
	if len(s.ActiveHours) == 0 || len(s.ActiveDays) == 0 {
		return ErrEmptyActiveWindow
	}
	for _, h := range s.ActiveHours {
		if h < 0 || h > 23 {
			return fmt.Errorf("%w: active hour %d out of range 0-23", ErrInvalidSchedule, h)
		}
	}
	for _, d := range s.ActiveDays {
		if d < 1 || d > 7 {
			return fmt.Errorf("%w: active day %d out of range 1-7", ErrInvalidSchedule, d)
		}
	}
	if s.MinIntervalMinutes < 0 {
		return fmt.Errorf("%w: min_interval_minutes must not be negative", ErrInvalidSchedule)
	}
	if _, err := s.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the schedule timezone, defaulting to UTC.
func (s *PublicationSchedule) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidSchedule, s.Timezone, err)
	}
	return loc, nil
}

// HourActive reports whether the given hour-of-day is in the active set.
func (s *PublicationSchedule) HourActive(hour int) bool {
	for _, h := range s.ActiveHours {
		if int(h) == hour {
			return true
		}
	}
	return false
}

// DayActive reports whether the given ISO weekday (1=Monday) is active.
func (s *PublicationSchedule) DayActive(isoWeekday int) bool {
	for _, d := range s.ActiveDays {
		if int(d) == isoWeekday {
			return true
		}
	}
	return false
}
