package leave

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// DAY COUNTER
// =============================================================================

// CountDays converts an inclusive date range into the number of leave days it
// consumes. Holidays and excluded weekdays contribute nothing.
//
// A single-day range with halfDay set always counts 0.5. For multi-day ranges
// the half-day flag is ignored.
func CountDays(start, end time.Time, halfDay bool, excluded generic.WeekdaySet, holidays generic.DateSet) (decimal.Decimal, error) {
	period, err := generic.NewPeriod(start, end)
	if err != nil {
		return decimal.Zero, &InvalidRangeError{
			Start:  generic.FormatDate(start),
			End:    generic.FormatDate(end),
			Reason: "end date before start date",
		}
	}

	if period.Len() == 1 && halfDay {
		return generic.HalfDay, nil
	}

	total := decimal.Zero
	for _, d := range period.Days() {
		if isWorkingDay(d, excluded, holidays) {
			total = total.Add(generic.OneDay)
		}
	}
	return total, nil
}

func isWorkingDay(d time.Time, excluded generic.WeekdaySet, holidays generic.DateSet) bool {
	return !excluded.Contains(d.Weekday()) && !holidays.Contains(d)
}

// ExcludedWeekdaySet converts a policy's excluded weekdays into a set.
func ExcludedWeekdaySet(p *LeavePolicy) generic.WeekdaySet {
	if p == nil {
		return 0
	}
	return generic.NewWeekdaySet(p.ExcludedWeekdays...)
}
