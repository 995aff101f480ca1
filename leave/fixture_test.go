package leave_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/leave/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// 2026-03-02 is a Monday.
var (
	monday   = generic.NewDate(2026, time.March, 2)
	friday   = generic.NewDate(2026, time.March, 6)
	nextFri  = generic.NewDate(2026, time.March, 13)
	fixedNow = time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
)

type fixture struct {
	ctx         context.Context
	store       *store.Memory
	ledger      *leave.Ledger
	requests    *leave.RequestService
	encashments *leave.EncashmentService
	yearEnd     *leave.YearEndService
	policy      leave.LeavePolicy
	employee    leave.Employee
	manager     leave.Actor
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func days(v float64) decimal.Decimal { return generic.NewDays(v) }

// newFixture seeds leave year 2026, a 15-day annual policy that excludes
// weekends, and one long-tenured full-time employee.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	log := quietLogger()
	clock := func() time.Time { return fixedNow }

	ledger := leave.NewLedger(log)
	ledger.Clock = clock
	requests := leave.NewRequestService(mem, ledger, log)
	requests.Clock = clock
	encashments := leave.NewEncashmentService(mem, ledger, log)
	encashments.Clock = clock
	yearEnd := leave.NewYearEndService(mem, ledger, log)
	yearEnd.Clock = clock

	f := &fixture{
		ctx:         ctx,
		store:       mem,
		ledger:      ledger,
		requests:    requests,
		encashments: encashments,
		yearEnd:     yearEnd,
		manager:     leave.Actor{UserID: "mgr-1", UserName: "Manager One"},
		policy: leave.LeavePolicy{
			ID:                "pol-annual-2026",
			LeaveTypeID:       "annual",
			AnnualEntitlement: days(15),
			CarryLimit:        days(5),
			EncashLimit:       days(10),
			CarriedOverYears:  1,
			EffectiveDate:     generic.NewDate(2026, time.January, 1),
			ExcludedWeekdays:  []time.Weekday{time.Saturday, time.Sunday},
		},
		employee: leave.Employee{
			ID:             "emp-1",
			Name:           "Ada",
			HireDate:       generic.NewDate(2020, time.June, 1),
			EmploymentType: "FULL_TIME",
			EmployeeStatus: "ACTIVE",
		},
	}

	f.addYear(t, 2026)
	require.NoError(t, mem.SavePolicy(ctx, &f.policy))
	require.NoError(t, mem.SaveEmployee(ctx, &f.employee))
	return f
}

func (f *fixture) addYear(t *testing.T, year int) {
	t.Helper()
	require.NoError(t, f.store.SaveYearConfiguration(f.ctx, &leave.LeaveYearConfiguration{
		ID:        "ly-" + time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC).Format("2006"),
		Label:     "Leave year",
		Year:      year,
		StartDate: generic.NewDate(year, time.January, 1),
		EndDate:   generic.NewDate(year, time.December, 31),
	}))
}

func (f *fixture) createRequest(t *testing.T, start, end time.Time) *leave.LeaveRequest {
	t.Helper()
	req, err := f.requests.Create(f.ctx, leave.CreateRequestCommand{
		EmployeeID:  f.employee.ID,
		LeaveTypeID: f.policy.LeaveTypeID,
		StartDate:   start,
		EndDate:     end,
		Reason:      "holiday",
	})
	require.NoError(t, err)
	return req
}

func (f *fixture) balance(t *testing.T, year int) *leave.LeaveBalance {
	t.Helper()
	b, err := f.store.FindBalance(f.ctx, leave.BalanceKey{
		EmployeeID: f.employee.ID, LeaveTypeID: f.policy.LeaveTypeID, Year: year,
	})
	require.NoError(t, err)
	require.NotNil(t, b, "balance for %d should exist", year)
	return b
}

// requireReconciled asserts Σ delta = used + encashed.
func (f *fixture) requireReconciled(t *testing.T, balanceID string) {
	t.Helper()
	_, err := f.ledger.Reconcile(f.ctx, f.store, balanceID)
	require.NoError(t, err)
}

func assertDays(t *testing.T, expected float64, actual decimal.Decimal) {
	t.Helper()
	require.True(t, days(expected).Equal(actual), "expected %v days, got %s", expected, actual.String())
}
