package leave_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

func TestEncashment_PayThenCancel(t *testing.T) {
	// GIVEN: 10 days remaining (5 of 15 used)
	// WHEN: 3 days are encashed and paid, then the payout is cancelled
	// THEN: Remaining goes 10 → 7 → 10

	f := newFixture(t)
	req := f.createRequest(t, monday, friday)
	_, err := f.requests.Approve(f.ctx, req.ID, f.manager)
	require.NoError(t, err)
	assertDays(t, 10, f.balance(t, 2026).Remaining())

	enc, err := f.encashments.Create(f.ctx, leave.CreateEncashmentCommand{
		EmployeeID: "emp-1", LeaveTypeID: "annual", Year: 2026, DaysRequested: days(3), Remarks: "year-end payout",
	})
	require.NoError(t, err)
	assert.Equal(t, leave.EncashmentPending, enc.Status)
	assertDays(t, 10, f.balance(t, 2026).Remaining())

	paid, err := f.encashments.MarkAsPaid(f.ctx, enc.ID, f.manager)
	require.NoError(t, err)
	assert.Equal(t, leave.EncashmentPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	assert.Equal(t, "mgr-1", paid.ActedBy)

	b := f.balance(t, 2026)
	assertDays(t, 3, b.Encashed)
	assertDays(t, 7, b.Remaining())
	f.requireReconciled(t, b.ID)

	cancelled, err := f.encashments.Cancel(f.ctx, enc.ID, f.manager)
	require.NoError(t, err)
	assert.Equal(t, leave.EncashmentCancelled, cancelled.Status)

	b = f.balance(t, 2026)
	assertDays(t, 0, b.Encashed)
	assertDays(t, 10, b.Remaining())
	f.requireReconciled(t, b.ID)

	_, err = f.encashments.Cancel(f.ctx, enc.ID, f.manager)
	assert.ErrorIs(t, err, leave.ErrInvalidStateTransition)
}

func TestEncashment_CancelPending_NoLedgerEffect(t *testing.T) {
	f := newFixture(t)
	enc, err := f.encashments.Create(f.ctx, leave.CreateEncashmentCommand{
		EmployeeID: "emp-1", LeaveTypeID: "annual", Year: 2026, DaysRequested: days(2),
	})
	require.NoError(t, err)

	_, err = f.encashments.Cancel(f.ctx, enc.ID, f.manager)
	require.NoError(t, err)

	b := f.balance(t, 2026)
	txs, err := f.store.ListTransactions(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)
	assertDays(t, 15, b.Remaining())

	_, err = f.encashments.MarkAsPaid(f.ctx, enc.ID, f.manager)
	assert.ErrorIs(t, err, leave.ErrInvalidStateTransition)
}

func TestEncashment_Create_Limits(t *testing.T) {
	f := newFixture(t)

	_, err := f.encashments.Create(f.ctx, leave.CreateEncashmentCommand{
		EmployeeID: "emp-1", LeaveTypeID: "annual", Year: 2026, DaysRequested: days(11),
	})
	var limit *leave.EncashLimitExceededError
	require.ErrorAs(t, err, &limit)
	assert.Equal(t, "policy", limit.Source)
	assertDays(t, 10, limit.Limit)

	// Use 10 of 15 so the balance, not the policy, is the binding limit.
	req := f.createRequest(t, monday, nextFri)
	_, err = f.requests.Approve(f.ctx, req.ID, f.manager)
	require.NoError(t, err)

	_, err = f.encashments.Create(f.ctx, leave.CreateEncashmentCommand{
		EmployeeID: "emp-1", LeaveTypeID: "annual", Year: 2026, DaysRequested: days(6),
	})
	require.ErrorAs(t, err, &limit)
	assert.Equal(t, "balance", limit.Source)
	assertDays(t, 5, limit.Limit)

	for _, bad := range []float64{0, -1} {
		_, err = f.encashments.Create(f.ctx, leave.CreateEncashmentCommand{
			EmployeeID: "emp-1", LeaveTypeID: "annual", Year: 2026, DaysRequested: days(bad),
		})
		assert.ErrorIs(t, err, leave.ErrInvalidAmount)
	}
}

func TestEncashment_PolicyLimitCoversWholeYear(t *testing.T) {
	// GIVEN: A 10-day encash limit and a pending 7-day encashment
	// WHEN: A second 7-day encashment is requested
	// THEN: It is refused with only 3 days left under the limit

	f := newFixture(t)
	first, err := f.encashments.Create(f.ctx, leave.CreateEncashmentCommand{
		EmployeeID: "emp-1", LeaveTypeID: "annual", Year: 2026, DaysRequested: days(7),
	})
	require.NoError(t, err)

	_, err = f.encashments.Create(f.ctx, leave.CreateEncashmentCommand{
		EmployeeID: "emp-1", LeaveTypeID: "annual", Year: 2026, DaysRequested: days(7),
	})
	var limit *leave.EncashLimitExceededError
	require.ErrorAs(t, err, &limit)
	assert.Equal(t, "policy", limit.Source)
	assertDays(t, 3, limit.Limit)

	// Paid days still count once the first payout is made.
	_, err = f.encashments.MarkAsPaid(f.ctx, first.ID, f.manager)
	require.NoError(t, err)
	_, err = f.encashments.Create(f.ctx, leave.CreateEncashmentCommand{
		EmployeeID: "emp-1", LeaveTypeID: "annual", Year: 2026, DaysRequested: days(4),
	})
	require.ErrorAs(t, err, &limit)
	assertDays(t, 3, limit.Limit)

	_, err = f.encashments.Create(f.ctx, leave.CreateEncashmentCommand{
		EmployeeID: "emp-1", LeaveTypeID: "annual", Year: 2026, DaysRequested: days(3),
	})
	require.NoError(t, err)
	assertDays(t, 7, f.balance(t, 2026).Encashed)
}

func TestEncashment_MarkAsPaid_RechecksPolicyLimit(t *testing.T) {
	// GIVEN: Two 5-day encashments, then the policy limit lowered to 8
	f := newFixture(t)
	var ids []string
	for range 2 {
		enc, err := f.encashments.Create(f.ctx, leave.CreateEncashmentCommand{
			EmployeeID: "emp-1", LeaveTypeID: "annual", Year: 2026, DaysRequested: days(5),
		})
		require.NoError(t, err)
		ids = append(ids, enc.ID)
	}
	f.policy.EncashLimit = days(8)
	require.NoError(t, f.store.SavePolicy(f.ctx, &f.policy))

	// WHEN: Both are marked paid
	_, err := f.encashments.MarkAsPaid(f.ctx, ids[0], f.manager)
	require.NoError(t, err)
	_, err = f.encashments.MarkAsPaid(f.ctx, ids[1], f.manager)

	// THEN: The second payout would exceed the limit and stays PENDING
	var limit *leave.EncashLimitExceededError
	require.ErrorAs(t, err, &limit)
	assert.Equal(t, "policy", limit.Source)
	assertDays(t, 3, limit.Limit)

	b := f.balance(t, 2026)
	assertDays(t, 5, b.Encashed)
	f.requireReconciled(t, b.ID)
	still, err := f.encashments.Get(f.ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, leave.EncashmentPending, still.Status)
}

func TestEncashment_Create_RejectsExtraPrecision(t *testing.T) {
	f := newFixture(t)

	_, err := f.encashments.Create(f.ctx, leave.CreateEncashmentCommand{
		EmployeeID: "emp-1", LeaveTypeID: "annual", Year: 2026, DaysRequested: decimal.RequireFromString("1.125"),
	})
	var invalid *leave.InvalidAmountError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Error(), "2 decimal places")

	enc, err := f.encashments.Create(f.ctx, leave.CreateEncashmentCommand{
		EmployeeID: "emp-1", LeaveTypeID: "annual", Year: 2026, DaysRequested: decimal.RequireFromString("1.250"),
	})
	require.NoError(t, err)
	assertDays(t, 1.25, enc.DaysRequested)
}

func TestEncashment_PaidAfterBalanceShrank(t *testing.T) {
	// Creating reserves nothing, so a later approval can consume the days and
	// the payout then fails the debit check.
	f := newFixture(t)
	enc, err := f.encashments.Create(f.ctx, leave.CreateEncashmentCommand{
		EmployeeID: "emp-1", LeaveTypeID: "annual", Year: 2026, DaysRequested: days(10),
	})
	require.NoError(t, err)

	req := f.createRequest(t, monday, nextFri)
	_, err = f.requests.Approve(f.ctx, req.ID, f.manager)
	require.NoError(t, err)

	_, err = f.encashments.MarkAsPaid(f.ctx, enc.ID, f.manager)
	assert.ErrorIs(t, err, leave.ErrInsufficientBalance)

	still, err := f.encashments.Get(f.ctx, enc.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.EncashmentPending, still.Status)
}

func TestEncashment_UnknownYear(t *testing.T) {
	f := newFixture(t)
	_, err := f.encashments.Create(f.ctx, leave.CreateEncashmentCommand{
		EmployeeID: "emp-1", LeaveTypeID: "annual", Year: 2030, DaysRequested: days(1),
	})
	assert.True(t, leave.IsNotFound(err))
}

func TestEncashment_List(t *testing.T) {
	f := newFixture(t)
	f.addYear(t, 2025)
	old := f.policy
	old.ID = "pol-annual-2025"
	old.EffectiveDate = generic.NewDate(2025, time.January, 1)
	exp := generic.NewDate(2026, time.January, 1)
	old.ExpiryDate = &exp
	require.NoError(t, f.store.SavePolicy(f.ctx, &old))

	for _, year := range []int{2025, 2026} {
		_, err := f.encashments.Create(f.ctx, leave.CreateEncashmentCommand{
			EmployeeID: "emp-1", LeaveTypeID: "annual", Year: year, DaysRequested: days(1),
		})
		require.NoError(t, err)
	}

	list, total, err := f.encashments.List(f.ctx, leave.EncashmentFilter{Year: 2025}, leave.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, 2025, list[0].Year)
}
