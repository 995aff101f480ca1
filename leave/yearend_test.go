package leave_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

func TestYearEnd_OpenYear(t *testing.T) {
	f := newFixture(t)
	leaver := leave.Employee{
		ID: "emp-2", Name: "Cy", HireDate: generic.NewDate(2019, time.May, 1),
		EmploymentType: "FULL_TIME", EmployeeStatus: "TERMINATED",
	}
	require.NoError(t, f.store.SaveEmployee(f.ctx, &leaver))
	sick := leave.LeavePolicy{
		ID: "pol-sick", LeaveTypeID: "sick", AnnualEntitlement: days(10),
		EffectiveDate:           generic.NewDate(2025, time.January, 1),
		AllowedEmployeeStatuses: []string{"ACTIVE"},
	}
	require.NoError(t, f.store.SavePolicy(f.ctx, &sick))

	result, err := f.yearEnd.OpenYear(f.ctx, 2026)
	require.NoError(t, err)

	// emp-1 gets annual + sick; emp-2 gets annual only.
	assert.Len(t, result.Opened, 3)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Existing)

	again, err := f.yearEnd.OpenYear(f.ctx, 2026)
	require.NoError(t, err)
	assert.Empty(t, again.Opened)
	assert.Equal(t, 3, again.Existing)

	_, err = f.yearEnd.OpenYear(f.ctx, 2031)
	assert.True(t, leave.IsNotFound(err))
}

func TestYearEnd_CarryOver(t *testing.T) {
	// GIVEN: 2026 closed with 10 days remaining, carry limit 5
	// WHEN: 2027 is opened
	// THEN: 2027 starts with 15 entitlement + 5 carried over

	f := newFixture(t)
	req := f.createRequest(t, monday, friday)
	_, err := f.requests.Approve(f.ctx, req.ID, f.manager)
	require.NoError(t, err)

	closed, err := f.yearEnd.CloseYear(f.ctx, 2026)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)
	assert.Equal(t, leave.BalanceClosed, f.balance(t, 2026).Status)

	f.addYear(t, 2027)
	_, err = f.yearEnd.OpenYear(f.ctx, 2027)
	require.NoError(t, err)

	next := f.balance(t, 2027)
	assertDays(t, 15, next.OpeningEntitlement)
	assertDays(t, 5, next.CarriedOver)
	assertDays(t, 20, next.Remaining())
}

func TestYearEnd_CarryOver_RequiresClosedPreviousYear(t *testing.T) {
	f := newFixture(t)
	_, err := f.yearEnd.OpenYear(f.ctx, 2026)
	require.NoError(t, err)

	f.addYear(t, 2027)
	_, err = f.yearEnd.OpenYear(f.ctx, 2027)
	require.NoError(t, err)

	assertDays(t, 0, f.balance(t, 2027).CarriedOver)
}

func TestYearEnd_CarryOver_DisabledByPolicy(t *testing.T) {
	f := newFixture(t)
	f.policy.CarriedOverYears = 0
	require.NoError(t, f.store.SavePolicy(f.ctx, &f.policy))

	_, err := f.yearEnd.OpenYear(f.ctx, 2026)
	require.NoError(t, err)
	_, err = f.yearEnd.CloseYear(f.ctx, 2026)
	require.NoError(t, err)

	f.addYear(t, 2027)
	_, err = f.yearEnd.OpenYear(f.ctx, 2027)
	require.NoError(t, err)
	assertDays(t, 0, f.balance(t, 2027).CarriedOver)
}

func TestYearEnd_BalanceTransitions(t *testing.T) {
	f := newFixture(t)
	result, err := f.yearEnd.OpenYear(f.ctx, 2026)
	require.NoError(t, err)
	require.Len(t, result.Opened, 1)
	id := result.Opened[0].ID

	_, err = f.yearEnd.Finalize(f.ctx, id)
	assert.ErrorIs(t, err, leave.ErrInvalidStateTransition, "OPEN cannot be finalized")
	_, err = f.yearEnd.Reopen(f.ctx, id)
	assert.ErrorIs(t, err, leave.ErrInvalidStateTransition, "OPEN cannot be reopened")

	_, err = f.yearEnd.Close(f.ctx, id)
	require.NoError(t, err)

	reopened, err := f.yearEnd.Reopen(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, leave.BalanceReopened, reopened.Status)

	// A REOPENED balance accepts late corrections.
	req := f.createRequest(t, monday, monday)
	_, err = f.requests.Approve(f.ctx, req.ID, f.manager)
	require.NoError(t, err)

	_, err = f.yearEnd.Close(f.ctx, id)
	require.NoError(t, err)
	finalized, err := f.yearEnd.Finalize(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, leave.BalanceFinalized, finalized.Status)

	_, err = f.yearEnd.Reopen(f.ctx, id)
	assert.ErrorIs(t, err, leave.ErrBalanceFinalized)

	// Cancelling the approved request would credit a FINALIZED balance.
	_, err = f.requests.Cancel(f.ctx, req.ID, f.manager, "")
	assert.ErrorIs(t, err, leave.ErrBalanceFinalized)
	still, err := f.requests.Get(f.ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.RequestApproved, still.Status)

	f.requireReconciled(t, id)
}

func TestYearEnd_CloseEndedYears(t *testing.T) {
	f := newFixture(t)
	f.addYear(t, 2027)
	_, err := f.yearEnd.OpenYear(f.ctx, 2026)
	require.NoError(t, err)
	_, err = f.yearEnd.OpenYear(f.ctx, 2027)
	require.NoError(t, err)

	closed, err := f.yearEnd.CloseEndedYears(f.ctx, generic.NewDate(2027, time.January, 5))
	require.NoError(t, err)
	assert.Equal(t, map[int]int{2026: 1}, closed)
	assert.Equal(t, leave.BalanceOpen, f.balance(t, 2027).Status)

	again, err := f.yearEnd.CloseEndedYears(f.ctx, generic.NewDate(2027, time.January, 6))
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestYearEnd_CloseEndedYears_KeepsReopenedBalances(t *testing.T) {
	// GIVEN: An ended year closed by the scheduler, then reopened by an operator
	// WHEN: The scheduler runs again
	// THEN: The balance stays REOPENED until closed by hand

	f := newFixture(t)
	req := f.createRequest(t, monday, friday)
	approved, err := f.requests.Approve(f.ctx, req.ID, f.manager)
	require.NoError(t, err)

	_, err = f.yearEnd.CloseEndedYears(f.ctx, generic.NewDate(2027, time.February, 1))
	require.NoError(t, err)
	_, err = f.yearEnd.Reopen(f.ctx, approved.BalanceID)
	require.NoError(t, err)

	closed, err := f.yearEnd.CloseEndedYears(f.ctx, time.Date(2027, time.February, 1, 1, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, closed)
	assert.Equal(t, leave.BalanceReopened, f.balance(t, 2026).Status)

	n, err := f.yearEnd.CloseYear(f.ctx, 2026)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, leave.BalanceClosed, f.balance(t, 2026).Status)
}

func TestYearEnd_Transactions(t *testing.T) {
	f := newFixture(t)
	req := f.createRequest(t, monday, friday)
	approved, err := f.requests.Approve(f.ctx, req.ID, f.manager)
	require.NoError(t, err)

	txs, err := f.yearEnd.Transactions(f.ctx, approved.BalanceID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, req.ID, txs[0].Ref.LeaveRequestID)

	_, err = f.yearEnd.Transactions(f.ctx, "bal-missing")
	assert.True(t, leave.IsNotFound(err))

	list, err := f.yearEnd.Balances(f.ctx, leave.BalanceFilter{EmployeeID: "emp-1"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
