// Package recurrence computes the next eligible run time for a program's
// recurrence policy. The calculator is pure: (policy, now) in, timestamp
// out, no clock or store access.
package recurrence

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/content-scheduler/internal/domain"
)

const daysPerWeek = 7

// Calculator computes next run timestamps. Safe for concurrent use.
type Calculator struct {
	cronParser cron.Parser
}

// New creates a calculator with a standard 5-field cron parser
// (minute hour day month weekday).
func New() *Calculator {
	return &Calculator{
		cronParser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// Next returns the next run strictly relevant to now, in UTC. A nil
// result with a nil error means the policy has no further runs (a cron
// expression with no future fire time). startAt is only consulted by
// one-shot policies.
func (c *Calculator) Next(policy domain.Recurrence, startAt *time.Time, now time.Time) (*time.Time, error) {
	switch policy.Type {
	case domain.RecurrenceOnce:
		return nextOnce(startAt, now), nil
	case domain.RecurrenceDaily:
		return nextDaily(policy, now)
	case domain.RecurrenceWeekly:
		return nextWeekly(policy, now)
	case domain.RecurrenceMonthly:
		return nextMonthly(policy, now)
	case domain.RecurrenceCron:
		return c.nextCron(policy, now)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", domain.ErrInvalidRecurrence, policy.Type)
	}
}

// nextOnce fires at start_at when that is still in the future, otherwise
// immediately. The caller must not ask again after the single run.
func nextOnce(startAt *time.Time, now time.Time) *time.Time {
	if startAt != nil && startAt.After(now) {
		t := startAt.UTC()
		return &t
	}
	t := now.UTC()
	return &t
}

func nextDaily(policy domain.Recurrence, now time.Time) (*time.Time, error) {
	loc, err := policy.Location()
	if err != nil {
		return nil, err
	}
	hour, minute, err := policy.ClockTime()
	if err != nil {
		return nil, err
	}

	local := now.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !candidate.After(now) {
		candidate = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	utc := candidate.UTC()
	return &utc, nil
}

func nextWeekly(policy domain.Recurrence, now time.Time) (*time.Time, error) {
	if len(policy.Weekdays) == 0 {
		return nil, fmt.Errorf("%w: weekly policy requires weekdays", domain.ErrInvalidRecurrence)
	}
	loc, err := policy.Location()
	if err != nil {
		return nil, err
	}
	hour, minute, err := policy.ClockTime()
	if err != nil {
		return nil, err
	}

	local := now.In(loc)
	var earliest *time.Time
	for _, weekday := range policy.Weekdays {
		delta := (weekday - isoWeekday(local.Weekday()) + daysPerWeek) % daysPerWeek
		candidate := time.Date(local.Year(), local.Month(), local.Day()+delta, hour, minute, 0, 0, loc)
		if !candidate.After(now) {
			candidate = time.Date(local.Year(), local.Month(), local.Day()+delta+daysPerWeek, hour, minute, 0, 0, loc)
		}
		utc := candidate.UTC()
		if earliest == nil || utc.Before(*earliest) {
			earliest = &utc
		}
	}
	return earliest, nil
}

// nextMonthly clamps day_of_month to the last day of shorter months, so a
// "run on the 31st" policy fires on Feb 28/29 rather than skipping the month.
func nextMonthly(policy domain.Recurrence, now time.Time) (*time.Time, error) {
	if policy.DayOfMonth < 1 {
		return nil, fmt.Errorf("%w: monthly policy requires day_of_month", domain.ErrInvalidRecurrence)
	}
	loc, err := policy.Location()
	if err != nil {
		return nil, err
	}
	hour, minute, err := policy.ClockTime()
	if err != nil {
		return nil, err
	}

	local := now.In(loc)
	candidate := monthlyOccurrence(local.Year(), local.Month(), policy.DayOfMonth, hour, minute, loc)
	if !candidate.After(now) {
		next := time.Date(local.Year(), local.Month()+1, 1, 0, 0, 0, 0, loc)
		candidate = monthlyOccurrence(next.Year(), next.Month(), policy.DayOfMonth, hour, minute, loc)
	}
	utc := candidate.UTC()
	return &utc, nil
}

func monthlyOccurrence(year int, month time.Month, day, hour, minute int, loc *time.Location) time.Time {
	if last := daysInMonth(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, hour, minute, 0, 0, loc)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func (c *Calculator) nextCron(policy domain.Recurrence, now time.Time) (*time.Time, error) {
	loc, err := policy.Location()
	if err != nil {
		return nil, err
	}
	schedule, err := c.cronParser.Parse(policy.CronExpr)
	if err != nil {
		return nil, fmt.Errorf("%w: cron expression %q: %v", domain.ErrInvalidRecurrence, policy.CronExpr, err)
	}

	next := schedule.Next(now.In(loc))
	if next.IsZero() {
		// cron could not find a future fire time
		return nil, nil
	}
	utc := next.UTC()
	return &utc, nil
}

// isoWeekday converts time.Weekday (Sunday=0) to ISO numbering (Monday=1).
func isoWeekday(d time.Weekday) int {
	if d == time.Sunday {
		return daysPerWeek
	}
	return int(d)
}
