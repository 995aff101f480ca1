package leave_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

var weekends = generic.NewWeekdaySet(time.Saturday, time.Sunday)

func TestCountDays(t *testing.T) {
	holiday := generic.NewDate(2026, time.March, 4) // Wednesday

	tests := []struct {
		name     string
		start    time.Time
		end      time.Time
		halfDay  bool
		excluded generic.WeekdaySet
		holidays generic.DateSet
		expected float64
	}{
		{"monday to friday", monday, friday, false, weekends, nil, 5},
		{"two weeks skip weekend", monday, nextFri, false, weekends, nil, 10},
		{"no exclusions counts calendar days", monday, nextFri, false, 0, nil, 12},
		{"holiday excluded", monday, friday, false, weekends, generic.NewDateSet(holiday), 4},
		{"single working day", monday, monday, false, weekends, nil, 1},
		{"single day half", monday, monday, true, weekends, nil, 0.5},
		{"half day on holiday still half", holiday, holiday, true, weekends, generic.NewDateSet(holiday), 0.5},
		{"half day ignored on multi-day range", monday, friday, true, weekends, nil, 5},
		{"weekend only", generic.NewDate(2026, time.March, 7), generic.NewDate(2026, time.March, 8), false, weekends, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := leave.CountDays(tt.start, tt.end, tt.halfDay, tt.excluded, tt.holidays)
			require.NoError(t, err)
			assertDays(t, tt.expected, got)
		})
	}
}

func TestCountDays_NoExclusionsEqualsInclusiveLength(t *testing.T) {
	// Ranges start late in February so most of them cross into March.
	start := generic.NewDate(2026, time.February, 20)
	for n := 1; n <= 60; n++ {
		end := start.AddDate(0, 0, n-1)
		got, err := leave.CountDays(start, end, false, 0, nil)
		require.NoError(t, err)
		require.True(t, got.Equal(days(float64(n))), "%s to %s: got %s, want %d",
			generic.FormatDate(start), generic.FormatDate(end), got, n)
	}
}

func TestCountDays_EndBeforeStart(t *testing.T) {
	_, err := leave.CountDays(friday, monday, false, weekends, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, leave.ErrInvalidRange)
	var rangeErr *leave.InvalidRangeError
	require.ErrorAs(t, err, &rangeErr)
	assert.Equal(t, "2026-03-06", rangeErr.Start)
}

func TestCountDays_IgnoresTimeOfDay(t *testing.T) {
	start := monday.Add(17 * time.Hour)
	end := friday.Add(2 * time.Hour)

	got, err := leave.CountDays(start, end, false, weekends, nil)
	require.NoError(t, err)
	assertDays(t, 5, got)
}
