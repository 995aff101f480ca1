package generic

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

// =============================================================================
// DATES - UTC midnight values
// =============================================================================

// NewDate returns the UTC midnight for the given calendar day.
func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Day strips the clock from t, keeping its calendar day in t's location.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}

// FormatDate renders a date as YYYY-MM-DD.
func FormatDate(t time.Time) string { return t.Format(DateLayout) }

// SameDay reports whether a and b fall on the same calendar day.
func SameDay(a, b time.Time) bool { return Day(a).Equal(Day(b)) }

// CompletedMonths returns the number of whole months elapsed from `from` to `to`.
// A month is complete once the same day-of-month is reached; negative spans are 0.
func CompletedMonths(from, to time.Time) int {
	from, to = Day(from), Day(to)
	if to.Before(from) {
		return 0
	}
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if to.Day() < from.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// =============================================================================
// WEEKDAY SET - Policy excluded weekdays (Sunday = 0)
// =============================================================================

// WeekdaySet is a bitmask of weekdays.
type WeekdaySet uint8

// NewWeekdaySet builds a set from weekdays.
func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s |= 1 << uint(d)
	}
	return s
}

// WeekdaySetFromInts builds a set from 0–6 integers, rejecting anything else.
func WeekdaySetFromInts(days []int) (WeekdaySet, error) {
	var s WeekdaySet
	for _, d := range days {
		if d < 0 || d > 6 {
			return 0, fmt.Errorf("weekday %d out of range 0-6", d)
		}
		s |= 1 << uint(d)
	}
	return s, nil
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseWeekdays accepts names ("sat", "Sunday") or digits ("0".."6").
func ParseWeekdays(values []string) (WeekdaySet, error) {
	var s WeekdaySet
	for _, v := range values {
		key := strings.ToLower(strings.TrimSpace(v))
		if wd, ok := weekdayNames[key]; ok {
			s |= 1 << uint(wd)
			continue
		}
		n, err := strconv.Atoi(key)
		if err != nil || n < 0 || n > 6 {
			return 0, fmt.Errorf("unknown weekday %q", v)
		}
		s |= 1 << uint(n)
	}
	return s, nil
}

// Contains reports whether d is in the set.
func (s WeekdaySet) Contains(d time.Weekday) bool { return s&(1<<uint(d)) != 0 }

// IsEmpty reports whether no weekday is set.
func (s WeekdaySet) IsEmpty() bool { return s == 0 }

// Ints returns the members as 0–6 integers in ascending order.
func (s WeekdaySet) Ints() []int {
	out := []int{}
	for d := 0; d < 7; d++ {
		if s.Contains(time.Weekday(d)) {
			out = append(out, d)
		}
	}
	return out
}

// =============================================================================
// DATE SET - Holiday membership
// =============================================================================

// DateSet holds calendar days for O(1) membership checks.
type DateSet map[time.Time]struct{}

// NewDateSet normalizes and collects the given dates.
func NewDateSet(dates ...time.Time) DateSet {
	s := make(DateSet, len(dates))
	for _, d := range dates {
		s[Day(d)] = struct{}{}
	}
	return s
}

// Contains reports whether the calendar day of t is in the set. A nil set is empty.
func (s DateSet) Contains(t time.Time) bool {
	if s == nil {
		return false
	}
	_, ok := s[Day(t)]
	return ok
}

// Sorted returns the members in ascending order.
func (s DateSet) Sorted() []time.Time {
	out := make([]time.Time, 0, len(s))
	for d := range s {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
