package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RecurrenceType selects the recurrence policy family for a program.
type RecurrenceType string

const (
	RecurrenceOnce    RecurrenceType = "once"
	RecurrenceDaily   RecurrenceType = "daily"
	RecurrenceWeekly  RecurrenceType = "weekly"
	RecurrenceMonthly RecurrenceType = "monthly"
	RecurrenceCron    RecurrenceType = "cron"
)

// Recurrence is the rule governing when a program becomes eligible to run
// again. TimeOfDay is "HH:MM" interpreted in Timezone; Weekdays are ISO
// weekdays (1=Monday .. 7=Sunday). Only the fields relevant to Type are
// consulted.
type Recurrence struct {
	Type       RecurrenceType `json:"type"`
	TimeOfDay  string         `json:"time_of_day,omitempty"`
	Timezone   string         `json:"timezone,omitempty"`
	Weekdays   []int          `json:"weekdays,omitempty"`
	DayOfMonth int            `json:"day_of_month,omitempty"`
	CronExpr   string         `json:"cron_expr,omitempty"`
}

// Location resolves the policy timezone, defaulting to UTC when unset.
func (r Recurrence) Location() (*time.Location, error) {
	if r.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidRecurrence, r.Timezone, err)
	}
	return loc, nil
}

// ClockTime parses TimeOfDay into hour and minute. An empty TimeOfDay
// means midnight.
func (r Recurrence) ClockTime() (hour, minute int, err error) {
	if r.TimeOfDay == "" {
		return 0, 0, nil
	}
	parts := strings.SplitN(r.TimeOfDay, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: time_of_day %q", ErrInvalidRecurrence, r.TimeOfDay)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: time_of_day %q", ErrInvalidRecurrence, r.TimeOfDay)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: time_of_day %q", ErrInvalidRecurrence, r.TimeOfDay)
	}
	return hour, minute, nil
}

// Validate checks the policy fields required by its type.
func (r Recurrence) Validate() error {
	switch r.Type {
	case RecurrenceOnce:
		return nil
	case RecurrenceDaily:
		// time-of-day and timezone checked below
	case RecurrenceWeekly:
		if len(r.Weekdays) == 0 {
			return fmt.Errorf("%w: weekly policy requires weekdays", ErrInvalidRecurrence)
		}
		for _, d := range r.Weekdays {
			if d < 1 || d > 7 {
				return fmt.Errorf("%w: weekday %d out of range 1-7", ErrInvalidRecurrence, d)
			}
		}
	case RecurrenceMonthly:
		if r.DayOfMonth < 1 || r.DayOfMonth > 31 {
			return fmt.Errorf("%w: day_of_month %d out of range 1-31", ErrInvalidRecurrence, r.DayOfMonth)
		}
	case RecurrenceCron:
		if strings.TrimSpace(r.CronExpr) == "" {
			return fmt.Errorf("%w: cron policy requires an expression", ErrInvalidRecurrence)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidRecurrence, r.Type)
	}

	if _, _, err := r.ClockTime(); err != nil {
		return err
	}
	if _, err := r.Location(); err != nil {
		return err
	}
	return nil
}
