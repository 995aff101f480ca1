package generic

import (
	"errors"
	"time"
)

// ErrInvalidPeriod is returned when a period ends before it starts.
var ErrInvalidPeriod = errors.New("invalid period: end before start")

// =============================================================================
// PERIOD - Inclusive calendar range
// =============================================================================

// Period is an inclusive [Start, End] range of calendar days. Leave requests,
// year configurations and holiday lookups are all expressed as periods.
type Period struct {
	Start time.Time
	End   time.Time
}

// NewPeriod normalizes both bounds and validates their order.
func NewPeriod(start, end time.Time) (Period, error) {
	p := Period{Start: Day(start), End: Day(end)}
	if p.End.Before(p.Start) {
		return Period{}, ErrInvalidPeriod
	}
	return p, nil
}

// Contains returns true if t's calendar day is within [Start, End].
func (p Period) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(Day(p.Start)) && !d.After(Day(p.End))
}

// Overlaps reports whether two periods share at least one day.
func (p Period) Overlaps(o Period) bool {
	return !Day(p.End).Before(Day(o.Start)) && !Day(o.End).Before(Day(p.Start))
}

// Days returns every calendar day in the period.
func (p Period) Days() []time.Time {
	var days []time.Time
	for d := Day(p.Start); !d.After(Day(p.End)); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Len returns the inclusive number of days.
func (p Period) Len() int {
	return int(Day(p.End).Sub(Day(p.Start)).Hours()/24) + 1
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + FormatDate(p.Start) + ", " + FormatDate(p.End) + "]"
}
