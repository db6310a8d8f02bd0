package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/content-scheduler/internal/domain"
)

func mustParse(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return ts
}

func TestNext_Once(t *testing.T) {
	calc := New()
	now := mustParse(t, "2024-01-01T10:00:00Z")

	t.Run("future start_at fires at start_at", func(t *testing.T) {
		startAt := mustParse(t, "2024-01-05T08:00:00Z")
		next, err := calc.Next(domain.Recurrence{Type: domain.RecurrenceOnce}, &startAt, now)
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, startAt, *next)
	})

	t.Run("past start_at fires immediately", func(t *testing.T) {
		startAt := mustParse(t, "2023-12-01T08:00:00Z")
		next, err := calc.Next(domain.Recurrence{Type: domain.RecurrenceOnce}, &startAt, now)
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, now, *next)
	})

	t.Run("nil start_at fires immediately", func(t *testing.T) {
		next, err := calc.Next(domain.Recurrence{Type: domain.RecurrenceOnce}, nil, now)
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, now, *next)
	})
}

func TestNext_Daily(t *testing.T) {
	calc := New()
	policy := domain.Recurrence{
		Type:      domain.RecurrenceDaily,
		TimeOfDay: "08:00",
	}

	testCases := []struct {
		name string
		now  string
		want string
	}{
		{
			name: "before run time fires today",
			now:  "2024-01-01T06:30:00Z",
			want: "2024-01-01T08:00:00Z",
		},
		{
			name: "after run time fires tomorrow",
			now:  "2024-01-01T10:00:00Z",
			want: "2024-01-02T08:00:00Z",
		},
		{
			name: "exactly at run time fires tomorrow",
			now:  "2024-01-01T08:00:00Z",
			want: "2024-01-02T08:00:00Z",
		},
		{
			name: "rolls over month boundary",
			now:  "2024-01-31T09:00:00Z",
			want: "2024-02-01T08:00:00Z",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			next, err := calc.Next(policy, nil, mustParse(t, tc.now))
			require.NoError(t, err)
			require.NotNil(t, next)
			assert.Equal(t, mustParse(t, tc.want), *next)
		})
	}
}

func TestNext_DailyTimezone(t *testing.T) {
	calc := New()
	policy := domain.Recurrence{
		Type:      domain.RecurrenceDaily,
		TimeOfDay: "09:00",
		Timezone:  "Europe/Paris",
	}

	t.Run("winter time is UTC+1", func(t *testing.T) {
		// 09:00 Paris in January is 08:00 UTC
		next, err := calc.Next(policy, nil, mustParse(t, "2024-01-10T06:00:00Z"))
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, mustParse(t, "2024-01-10T08:00:00Z"), *next)
	})

	t.Run("summer time is UTC+2", func(t *testing.T) {
		// 09:00 Paris in July is 07:00 UTC
		next, err := calc.Next(policy, nil, mustParse(t, "2024-07-10T06:00:00Z"))
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, mustParse(t, "2024-07-10T07:00:00Z"), *next)
	})

	t.Run("spring forward shifts the fire time an hour earlier in UTC", func(t *testing.T) {
		// Paris moves to UTC+2 on 2024-03-31; the occurrence computed the
		// evening before lands on the transition day with the new offset
		next, err := calc.Next(policy, nil, mustParse(t, "2024-03-30T08:30:00Z"))
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, mustParse(t, "2024-03-31T07:00:00Z"), *next)
	})

	t.Run("fall back shifts it an hour later in UTC", func(t *testing.T) {
		// Paris returns to UTC+1 on 2024-10-27
		next, err := calc.Next(policy, nil, mustParse(t, "2024-10-26T07:30:00Z"))
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, mustParse(t, "2024-10-27T08:00:00Z"), *next)
	})

	t.Run("result is reported in UTC", func(t *testing.T) {
		next, err := calc.Next(policy, nil, mustParse(t, "2024-01-10T06:00:00Z"))
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, time.UTC, next.Location())
	})
}

func TestNext_Weekly(t *testing.T) {
	calc := New()
	policy := domain.Recurrence{
		Type:      domain.RecurrenceWeekly,
		TimeOfDay: "09:00",
		Timezone:  "Europe/Paris",
		Weekdays:  []int{2, 4}, // Tuesday and Thursday
	}

	testCases := []struct {
		name string
		now  string
		want string
	}{
		{
			name: "monday picks tuesday",
			// 2024-01-01 is a Monday
			now:  "2024-01-01T10:00:00Z",
			want: "2024-01-02T08:00:00Z",
		},
		{
			name: "tuesday after run time picks thursday",
			now:  "2024-01-02T12:00:00Z",
			want: "2024-01-04T08:00:00Z",
		},
		{
			name: "wednesday picks thursday of the same week",
			// 10:00 Paris on Wednesday 2024-01-03
			now:  "2024-01-03T09:00:00Z",
			want: "2024-01-04T08:00:00Z",
		},
		{
			name: "thursday after run time wraps to next tuesday",
			now:  "2024-01-04T12:00:00Z",
			want: "2024-01-09T08:00:00Z",
		},
		{
			name: "tuesday before run time fires same day",
			now:  "2024-01-02T06:00:00Z",
			want: "2024-01-02T08:00:00Z",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			next, err := calc.Next(policy, nil, mustParse(t, tc.now))
			require.NoError(t, err)
			require.NotNil(t, next)
			assert.Equal(t, mustParse(t, tc.want), *next)
		})
	}

	t.Run("sunday is ISO weekday 7", func(t *testing.T) {
		sundayPolicy := domain.Recurrence{
			Type:      domain.RecurrenceWeekly,
			TimeOfDay: "08:00",
			Weekdays:  []int{7},
		}
		// 2024-01-03 is a Wednesday; next Sunday is 2024-01-07
		next, err := calc.Next(sundayPolicy, nil, mustParse(t, "2024-01-03T10:00:00Z"))
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, mustParse(t, "2024-01-07T08:00:00Z"), *next)
	})

	t.Run("no weekdays is invalid", func(t *testing.T) {
		_, err := calc.Next(domain.Recurrence{Type: domain.RecurrenceWeekly, TimeOfDay: "08:00"}, nil, mustParse(t, "2024-01-01T00:00:00Z"))
		assert.ErrorIs(t, err, domain.ErrInvalidRecurrence)
	})
}

func TestNext_Monthly(t *testing.T) {
	calc := New()

	testCases := []struct {
		name       string
		dayOfMonth int
		now        string
		want       string
	}{
		{
			name:       "fires this month when still ahead",
			dayOfMonth: 15,
			now:        "2024-01-10T00:00:00Z",
			want:       "2024-01-15T08:00:00Z",
		},
		{
			name:       "fires next month when passed",
			dayOfMonth: 15,
			now:        "2024-01-20T00:00:00Z",
			want:       "2024-02-15T08:00:00Z",
		},
		{
			name:       "day 31 clamps to february 29 in a leap year",
			dayOfMonth: 31,
			now:        "2024-02-01T00:00:00Z",
			want:       "2024-02-29T08:00:00Z",
		},
		{
			name:       "day 31 clamps to february 28 otherwise",
			dayOfMonth: 31,
			now:        "2023-02-01T00:00:00Z",
			want:       "2023-02-28T08:00:00Z",
		},
		{
			name:       "day 31 clamps to 30 in april",
			dayOfMonth: 31,
			now:        "2024-04-01T00:00:00Z",
			want:       "2024-04-30T08:00:00Z",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			policy := domain.Recurrence{
				Type:       domain.RecurrenceMonthly,
				TimeOfDay:  "08:00",
				DayOfMonth: tc.dayOfMonth,
			}
			next, err := calc.Next(policy, nil, mustParse(t, tc.now))
			require.NoError(t, err)
			require.NotNil(t, next)
			assert.Equal(t, mustParse(t, tc.want), *next)
		})
	}

	t.Run("missing day_of_month is invalid", func(t *testing.T) {
		_, err := calc.Next(domain.Recurrence{Type: domain.RecurrenceMonthly, TimeOfDay: "08:00"}, nil, mustParse(t, "2024-01-01T00:00:00Z"))
		assert.ErrorIs(t, err, domain.ErrInvalidRecurrence)
	})
}

func TestNext_Cron(t *testing.T) {
	calc := New()

	t.Run("five field expression", func(t *testing.T) {
		policy := domain.Recurrence{
			Type:     domain.RecurrenceCron,
			CronExpr: "30 6 * * 1",
		}
		// 2024-01-01 is a Monday, 05:00 UTC is before 06:30
		next, err := calc.Next(policy, nil, mustParse(t, "2024-01-01T05:00:00Z"))
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, mustParse(t, "2024-01-01T06:30:00Z"), *next)
	})

	t.Run("cron honors the policy timezone", func(t *testing.T) {
		policy := domain.Recurrence{
			Type:     domain.RecurrenceCron,
			CronExpr: "0 9 * * *",
			Timezone: "Europe/Paris",
		}
		next, err := calc.Next(policy, nil, mustParse(t, "2024-01-10T06:00:00Z"))
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, mustParse(t, "2024-01-10T08:00:00Z"), *next)
	})

	t.Run("invalid expression", func(t *testing.T) {
		policy := domain.Recurrence{
			Type:     domain.RecurrenceCron,
			CronExpr: "not a cron",
		}
		_, err := calc.Next(policy, nil, mustParse(t, "2024-01-01T00:00:00Z"))
		assert.ErrorIs(t, err, domain.ErrInvalidRecurrence)
	})
}

func TestNext_UnknownType(t *testing.T) {
	calc := New()
	_, err := calc.Next(domain.Recurrence{Type: "hourly"}, nil, time.Now())
	assert.ErrorIs(t, err, domain.ErrInvalidRecurrence)
}
