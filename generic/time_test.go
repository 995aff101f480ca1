package generic_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
)

func TestDayNormalizesToUTCMidnight(t *testing.T) {
	// GIVEN: A late-evening timestamp in a positive offset zone
	tokyo := time.FixedZone("JST", 9*3600)
	ts := time.Date(2026, time.March, 2, 23, 30, 0, 0, tokyo)

	// WHEN: Normalizing
	d := generic.Day(ts)

	// THEN: The calendar day is kept and the clock dropped
	assert.Equal(t, generic.NewDate(2026, time.March, 2), d)
	assert.Equal(t, time.UTC, d.Location())
	assert.True(t, generic.SameDay(ts, d))
}

func TestParseDate(t *testing.T) {
	d, err := generic.ParseDate(" 2026-02-28 ")
	require.NoError(t, err)
	assert.Equal(t, "2026-02-28", generic.FormatDate(d))

	for _, bad := range []string{"", "2026-2-28", "28/02/2026", "2026-02-30"} {
		_, err := generic.ParseDate(bad)
		assert.Error(t, err, bad)
	}
}

func TestCompletedMonths(t *testing.T) {
	hire := generic.NewDate(2025, time.January, 31)

	tests := []struct {
		name string
		to   time.Time
		want int
	}{
		{"same day", hire, 0},
		{"before hire", generic.NewDate(2024, time.December, 1), 0},
		{"day before anniversary", generic.NewDate(2025, time.March, 30), 1},
		{"month anniversary", generic.NewDate(2025, time.March, 31), 2},
		{"one year", generic.NewDate(2026, time.January, 31), 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, generic.CompletedMonths(hire, tt.to))
		})
	}
}

func TestWeekdaySet(t *testing.T) {
	t.Run("names and digits", func(t *testing.T) {
		s, err := generic.ParseWeekdays([]string{"Sat", "sunday", "3"})
		require.NoError(t, err)
		assert.True(t, s.Contains(time.Saturday))
		assert.True(t, s.Contains(time.Sunday))
		assert.True(t, s.Contains(time.Wednesday))
		assert.False(t, s.Contains(time.Monday))
		assert.Equal(t, []int{0, 3, 6}, s.Ints())
	})

	t.Run("unknown weekday", func(t *testing.T) {
		_, err := generic.ParseWeekdays([]string{"funday"})
		assert.Error(t, err)
		_, err = generic.ParseWeekdays([]string{"7"})
		assert.Error(t, err)
	})

	t.Run("ints round trip", func(t *testing.T) {
		s, err := generic.WeekdaySetFromInts([]int{6, 0})
		require.NoError(t, err)
		assert.Equal(t, generic.NewWeekdaySet(time.Saturday, time.Sunday), s)

		_, err = generic.WeekdaySetFromInts([]int{-1})
		assert.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		var s generic.WeekdaySet
		assert.True(t, s.IsEmpty())
		assert.Empty(t, s.Ints())
	})
}

func TestDateSet(t *testing.T) {
	xmas := time.Date(2026, time.December, 25, 15, 0, 0, 0, time.UTC)
	newYear := generic.NewDate(2026, time.January, 1)

	s := generic.NewDateSet(xmas, newYear, newYear)

	assert.True(t, s.Contains(generic.NewDate(2026, time.December, 25)))
	assert.False(t, s.Contains(generic.NewDate(2026, time.December, 26)))
	assert.Equal(t, []time.Time{newYear, generic.Day(xmas)}, s.Sorted())

	var none generic.DateSet
	assert.False(t, none.Contains(newYear))
}

func TestDays(t *testing.T) {
	d, err := generic.ParseDays("1.5")
	require.NoError(t, err)
	assert.True(t, d.Equal(generic.NewDays(1.5)))

	_, err = generic.ParseDays("one")
	assert.Error(t, err)

	var dp generic.DaysParser
	assert.True(t, dp.Parse("used", "2.5").Equal(generic.NewDays(2.5)))
	assert.True(t, dp.Parse("encashed", "junk").IsZero())
	assert.True(t, dp.Parse("used", "1").IsZero())
	require.Error(t, dp.Err)
	assert.Contains(t, dp.Err.Error(), "column encashed")

	assert.True(t, generic.MinDays(generic.NewDays(3), generic.NewDays(5)).Equal(generic.NewDays(3)))
	assert.True(t, generic.MaxDays(generic.NewDays(3), generic.NewDays(5)).Equal(generic.NewDays(5)))
	assert.True(t, generic.HalfDay.Equal(generic.NewDays(0.5)))
}

func TestNewID(t *testing.T) {
	a, b := generic.NewID("req"), generic.NewID("req")

	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^req-[0-9a-f-]{36}$`, a)
}
