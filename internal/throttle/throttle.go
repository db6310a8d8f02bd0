// Package throttle paces publication of generated content to a
// destination: an active-hours/active-days window, a target daily
// volume, and a minimum spacing interval between publishes.
package throttle

import (
	"time"

	"github.com/jonesrussell/content-scheduler/internal/domain"
)

const minutesPerHour = 60

// IsWithinActiveWindow reports whether now falls inside the schedule's
// active hours and days, evaluated in the schedule's timezone.
func IsWithinActiveWindow(schedule *domain.PublicationSchedule, now time.Time) (bool, error) {
	loc, err := schedule.Location()
	if err != nil {
		return false, err
	}
	local := now.In(loc)
	return schedule.HourActive(local.Hour()) && schedule.DayActive(isoWeekday(local.Weekday())), nil
}

// OptimalInterval derives the spacing between publishes: the active
// window spread evenly over the daily volume, never below the configured
// minimum interval.
func OptimalInterval(schedule *domain.PublicationSchedule) time.Duration {
	floor := time.Duration(schedule.MinIntervalMinutes) * time.Minute
	if schedule.ArticlesPerDay <= 0 {
		return floor
	}
	spread := time.Duration(len(schedule.ActiveHours)*minutesPerHour/schedule.ArticlesPerDay) * time.Minute
	if spread > floor {
		return spread
	}
	return floor
}

// NextAvailableSlot computes when the next publish may happen: the last
// scheduled time plus the optimal interval (or now, whichever is later),
// adjusted forward into the schedule's active window. Returns
// domain.ErrEmptyActiveWindow when the schedule has no active hours or
// days — advancing would never terminate.
func NextAvailableSlot(schedule *domain.PublicationSchedule, lastScheduledAt *time.Time, now time.Time) (time.Time, error) {
	if len(schedule.ActiveHours) == 0 || len(schedule.ActiveDays) == 0 {
		return time.Time{}, domain.ErrEmptyActiveWindow
	}
	loc, err := schedule.Location()
	if err != nil {
		return time.Time{}, err
	}

	candidate := now
	if lastScheduledAt != nil {
		next := lastScheduledAt.Add(OptimalInterval(schedule))
		if next.After(now) {
			candidate = next
		}
	}

	return adjustToActiveWindow(schedule, candidate.In(loc)).UTC(), nil
}

// adjustToActiveWindow advances a local timestamp until both the hour and
// the weekday constraints hold. Terminates for any non-empty hour/day
// sets: the hour scan is bounded by 24 steps and the day scan by 7.
func adjustToActiveWindow(schedule *domain.PublicationSchedule, local time.Time) time.Time {
	local = advanceToActiveHour(schedule, local)
	for !schedule.DayActive(isoWeekday(local.Weekday())) {
		// jump to the start of the next day, then fix the hour again
		local = time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, local.Location())
		local = advanceToActiveHour(schedule, local)
	}
	return local
}

func advanceToActiveHour(schedule *domain.PublicationSchedule, local time.Time) time.Time {
	for !schedule.HourActive(local.Hour()) {
		local = time.Date(local.Year(), local.Month(), local.Day(), local.Hour()+1, 0, 0, 0, local.Location())
	}
	return local
}

// RemainingCapacityToday returns how many more publishes the schedule
// allows today, never negative. publishedToday is the count of entries
// already published in the schedule's current local day.
func RemainingCapacityToday(schedule *domain.PublicationSchedule, publishedToday int) int {
	remaining := schedule.ArticlesPerDay - publishedToday
	if remaining < 0 {
		return 0
	}
	return remaining
}

// DayBounds returns the UTC instants bounding the schedule's current
// local calendar day, for counting "published today" in the schedule's
// timezone rather than the server's.
func DayBounds(schedule *domain.PublicationSchedule, now time.Time) (start, end time.Time, err error) {
	loc, err := schedule.Location()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	local := now.In(loc)
	start = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start.UTC(), start.AddDate(0, 0, 1).UTC(), nil
}

func isoWeekday(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}
