package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeSchedule_DailyWindow(t *testing.T) {
	schedule := &TimeSchedule{
		ScheduleType: ScheduleTypeDaily,
		TimeOfDay:    "09:30",
	}

	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	at0930 := day.Add(9*time.Hour + 30*time.Minute)

	matched, err := schedule.MatchesAt(at0930, nil)
	require.NoError(t, err)
	assert.True(t, matched, "should fire exactly at 09:30")

	matched, err = schedule.MatchesAt(at0930.Add(time.Minute), nil)
	require.NoError(t, err)
	assert.True(t, matched, "should fire at 09:31 within tolerance")

	// Already fired today: 09:32 must not re-fire.
	fired := at0930
	matched, err = schedule.MatchesAt(at0930.Add(2*time.Minute), &fired)
	require.NoError(t, err)
	assert.False(t, matched, "must not fire twice on the same day")

	// Next day fires again.
	matched, err = schedule.MatchesAt(at0930.Add(24*time.Hour), &fired)
	require.NoError(t, err)
	assert.True(t, matched)
}

func TestTimeSchedule_OnceFiresAtMostOnceEver(t *testing.T) {
	schedule := &TimeSchedule{
		ScheduleType: ScheduleTypeOnce,
		TimeOfDay:    "12:00",
	}

	noon := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	matched, err := schedule.MatchesAt(noon, nil)
	require.NoError(t, err)
	assert.True(t, matched)

	fired := noon

	matched, err = schedule.MatchesAt(noon.Add(24*time.Hour), &fired)
	require.NoError(t, err)
	assert.False(t, matched, "once schedule never re-fires")
}

func TestTimeSchedule_WeeklyRespectsDays(t *testing.T) {
	schedule := &TimeSchedule{
		ScheduleType: ScheduleTypeWeekly,
		TimeOfDay:    "08:00",
		DaysOfWeek:   []time.Weekday{time.Monday, time.Friday},
	}

	monday := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	require.Equal(t, time.Monday, monday.Weekday())

	matched, err := schedule.MatchesAt(monday, nil)
	require.NoError(t, err)
	assert.True(t, matched)

	tuesday := monday.Add(24 * time.Hour)

	matched, err = schedule.MatchesAt(tuesday, nil)
	require.NoError(t, err)
	assert.False(t, matched, "tuesday is not in the day set")
}

func TestTimeSchedule_IntervalPeriod(t *testing.T) {
	schedule := &TimeSchedule{
		ScheduleType:    ScheduleTypeInterval,
		IntervalMinutes: 15,
	}

	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	matched, err := schedule.MatchesAt(now, nil)
	require.NoError(t, err)
	assert.True(t, matched, "interval fires immediately when never fired")

	fired := now

	matched, err = schedule.MatchesAt(now.Add(10*time.Minute), &fired)
	require.NoError(t, err)
	assert.False(t, matched)

	matched, err = schedule.MatchesAt(now.Add(15*time.Minute), &fired)
	require.NoError(t, err)
	assert.True(t, matched)
}

func TestTimeSchedule_Timezone(t *testing.T) {
	schedule := &TimeSchedule{
		ScheduleType: ScheduleTypeDaily,
		TimeOfDay:    "09:30",
		Timezone:     "America/Sao_Paulo",
	}
	require.NoError(t, schedule.Validate())

	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	local := time.Date(2025, 3, 10, 9, 30, 0, 0, loc)

	matched, err := schedule.MatchesAt(local.UTC(), nil)
	require.NoError(t, err)
	assert.True(t, matched, "window is evaluated in the trigger's timezone")
}

func TestTimeSchedule_NextRun(t *testing.T) {
	schedule := &TimeSchedule{
		ScheduleType: ScheduleTypeDaily,
		TimeOfDay:    "09:30",
	}

	after := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	next, err := schedule.NextRun(after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 11, 9, 30, 0, 0, time.UTC), next)
}

func TestTimeSchedule_Validate(t *testing.T) {
	tests := []struct {
		name     string
		schedule TimeSchedule
		wantErr  bool
	}{
		{"valid daily", TimeSchedule{ScheduleType: ScheduleTypeDaily, TimeOfDay: "23:59"}, false},
		{"bad time of day", TimeSchedule{ScheduleType: ScheduleTypeDaily, TimeOfDay: "25:00"}, true},
		{"weekly without days", TimeSchedule{ScheduleType: ScheduleTypeWeekly, TimeOfDay: "08:00"}, true},
		{"interval without period", TimeSchedule{ScheduleType: ScheduleTypeInterval}, true},
		{"bad timezone", TimeSchedule{ScheduleType: ScheduleTypeDaily, TimeOfDay: "08:00", Timezone: "Mars/Olympus"}, true},
		{"unknown type", TimeSchedule{ScheduleType: "hourly"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schedule.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
