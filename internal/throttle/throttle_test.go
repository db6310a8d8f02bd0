package throttle

import (
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/content-scheduler/internal/domain"
)

func businessHoursSchedule() *domain.PublicationSchedule {
	return &domain.PublicationSchedule{
		Destination:        "site-fr",
		ArticlesPerDay:     8,
		ActiveHours:        pq.Int64Array{9, 10, 11, 12, 13, 14, 15, 16},
		ActiveDays:         pq.Int64Array{1, 2, 3, 4, 5},
		MinIntervalMinutes: 15,
	}
}

func mustParse(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return ts
}

func TestIsWithinActiveWindow(t *testing.T) {
	schedule := businessHoursSchedule()

	testCases := []struct {
		name string
		now  string
		want bool
	}{
		{
			name: "weekday inside active hours",
			// 2024-01-02 is a Tuesday
			now:  "2024-01-02T10:30:00Z",
			want: true,
		},
		{
			name: "weekday before active hours",
			now:  "2024-01-02T08:59:00Z",
			want: false,
		},
		{
			name: "weekday after active hours",
			now:  "2024-01-02T17:00:00Z",
			want: false,
		},
		{
			name: "saturday is outside active days",
			// 2024-01-06 is a Saturday
			now:  "2024-01-06T10:30:00Z",
			want: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := IsWithinActiveWindow(schedule, mustParse(t, tc.now))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("window is evaluated in the schedule timezone", func(t *testing.T) {
		s := businessHoursSchedule()
		s.Timezone = "Europe/Paris"
		// 08:30 UTC in January is 09:30 Paris, inside the window
		got, err := IsWithinActiveWindow(s, mustParse(t, "2024-01-02T08:30:00Z"))
		require.NoError(t, err)
		assert.True(t, got)
	})
}

func TestOptimalInterval(t *testing.T) {
	t.Run("spreads the window over the daily volume", func(t *testing.T) {
		// 8 hours / 8 articles = 1 per hour
		assert.Equal(t, time.Hour, OptimalInterval(businessHoursSchedule()))
	})

	t.Run("never drops below the minimum interval", func(t *testing.T) {
		s := businessHoursSchedule()
		s.ArticlesPerDay = 100
		assert.Equal(t, 15*time.Minute, OptimalInterval(s))
	})
}

func TestNextAvailableSlot(t *testing.T) {
	schedule := businessHoursSchedule()

	t.Run("inside window with no prior slot publishes now", func(t *testing.T) {
		now := mustParse(t, "2024-01-02T10:30:00Z")
		slot, err := NextAvailableSlot(schedule, nil, now)
		require.NoError(t, err)
		assert.Equal(t, now, slot)
	})

	t.Run("spaces from the last scheduled slot", func(t *testing.T) {
		now := mustParse(t, "2024-01-02T10:30:00Z")
		last := mustParse(t, "2024-01-02T10:00:00Z")
		slot, err := NextAvailableSlot(schedule, &last, now)
		require.NoError(t, err)
		assert.Equal(t, mustParse(t, "2024-01-02T11:00:00Z"), slot)
	})

	t.Run("before the window advances to opening hour", func(t *testing.T) {
		now := mustParse(t, "2024-01-02T06:00:00Z")
		slot, err := NextAvailableSlot(schedule, nil, now)
		require.NoError(t, err)
		assert.Equal(t, mustParse(t, "2024-01-02T09:00:00Z"), slot)
	})

	t.Run("after the window rolls to the next active day", func(t *testing.T) {
		// Friday evening rolls over the weekend to Monday 09:00
		now := mustParse(t, "2024-01-05T18:00:00Z")
		slot, err := NextAvailableSlot(schedule, nil, now)
		require.NoError(t, err)
		assert.Equal(t, mustParse(t, "2024-01-08T09:00:00Z"), slot)
	})

	t.Run("slot always lands inside the active window", func(t *testing.T) {
		now := mustParse(t, "2024-01-01T00:00:00Z")
		var last *time.Time
		for i := 0; i < 50; i++ {
			slot, err := NextAvailableSlot(schedule, last, now)
			require.NoError(t, err)

			inside, err := IsWithinActiveWindow(schedule, slot)
			require.NoError(t, err)
			assert.True(t, inside, "slot %d (%s) fell outside the window", i, slot)
			if last != nil {
				assert.False(t, slot.Before(*last), "slot %d went backwards", i)
			}

			s := slot
			last = &s
		}
	})

	t.Run("empty active window is rejected", func(t *testing.T) {
		s := businessHoursSchedule()
		s.ActiveHours = nil
		_, err := NextAvailableSlot(s, nil, time.Now())
		assert.ErrorIs(t, err, domain.ErrEmptyActiveWindow)

		s = businessHoursSchedule()
		s.ActiveDays = nil
		_, err = NextAvailableSlot(s, nil, time.Now())
		assert.ErrorIs(t, err, domain.ErrEmptyActiveWindow)
	})
}

func TestRemainingCapacityToday(t *testing.T) {
	schedule := businessHoursSchedule()

	assert.Equal(t, 8, RemainingCapacityToday(schedule, 0))
	assert.Equal(t, 3, RemainingCapacityToday(schedule, 5))
	assert.Equal(t, 0, RemainingCapacityToday(schedule, 8))
	assert.Equal(t, 0, RemainingCapacityToday(schedule, 12))
}

func TestDayBounds(t *testing.T) {
	t.Run("UTC schedule", func(t *testing.T) {
		start, end, err := DayBounds(businessHoursSchedule(), mustParse(t, "2024-01-02T10:30:00Z"))
		require.NoError(t, err)
		assert.Equal(t, mustParse(t, "2024-01-02T00:00:00Z"), start)
		assert.Equal(t, mustParse(t, "2024-01-03T00:00:00Z"), end)
	})

	t.Run("bounds follow the schedule timezone", func(t *testing.T) {
		s := businessHoursSchedule()
		s.Timezone = "Europe/Paris"
		// 23:30 UTC is already 00:30 next day in Paris
		start, end, err := DayBounds(s, mustParse(t, "2024-01-02T23:30:00Z"))
		require.NoError(t, err)
		assert.Equal(t, mustParse(t, "2024-01-02T23:00:00Z"), start)
		assert.Equal(t, mustParse(t, "2024-01-03T23:00:00Z"), end)
	})
}
