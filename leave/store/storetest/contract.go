// Package storetest holds the behavioural contract every leave.TxStore must
// satisfy. Store packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// Factory returns an empty store. Cleanup is the factory's job (t.Cleanup).
type Factory func(t *testing.T) leave.TxStore

// Run executes the contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("GetOrCreateBalance", func(t *testing.T) { testGetOrCreateBalance(t, newStore(t)) })
	t.Run("UpdateBalanceVersion", func(t *testing.T) { testUpdateBalanceVersion(t, newStore(t)) })
	t.Run("LedgerUniqueness", func(t *testing.T) { testLedgerUniqueness(t, newStore(t)) })
	t.Run("WithTxRollback", func(t *testing.T) { testWithTxRollback(t, newStore(t)) })
	t.Run("ConcurrentDebits", func(t *testing.T) { testConcurrentDebits(t, newStore(t)) })
	t.Run("Requests", func(t *testing.T) { testRequests(t, newStore(t)) })
	t.Run("Encashments", func(t *testing.T) { testEncashments(t, newStore(t)) })
	t.Run("Policies", func(t *testing.T) { testPolicies(t, newStore(t)) })
	t.Run("YearConfigurations", func(t *testing.T) { testYearConfigurations(t, newStore(t)) })
	t.Run("Holidays", func(t *testing.T) { testHolidays(t, newStore(t)) })
	t.Run("Employees", func(t *testing.T) { testEmployees(t, newStore(t)) })
}

var now = time.Date(2026, time.March, 1, 9, 30, 0, 123000000, time.UTC)

func seedBalance(id string) leave.LeaveBalance {
	return leave.LeaveBalance{
		ID:                 id,
		EmployeeID:         "emp-1",
		LeaveTypeID:        "annual",
		Year:               2026,
		OpeningEntitlement: generic.NewDays(15),
		CarriedOver:        generic.NewDays(2.5),
		Used:               decimal.Zero,
		Encashed:           decimal.Zero,
		Status:             leave.BalanceOpen,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func testGetOrCreateBalance(t *testing.T, s leave.TxStore) {
	ctx := context.Background()

	first, err := s.GetOrCreateBalance(ctx, seedBalance("bal-1"))
	require.NoError(t, err)
	assert.Equal(t, "bal-1", first.ID)
	assert.True(t, generic.NewDays(2.5).Equal(first.CarriedOver))

	second, err := s.GetOrCreateBalance(ctx, seedBalance("bal-2"))
	require.NoError(t, err)
	assert.Equal(t, "bal-1", second.ID, "existing row wins")

	got, err := s.GetBalance(ctx, "bal-2")
	require.NoError(t, err)
	assert.Nil(t, got)

	found, err := s.FindBalance(ctx, first.Key())
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, leave.BalanceOpen, found.Status)
	assert.True(t, now.Equal(found.CreatedAt))

	missing, err := s.FindBalance(ctx, leave.BalanceKey{EmployeeID: "emp-1", LeaveTypeID: "annual", Year: 1999})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testUpdateBalanceVersion(t *testing.T, s leave.TxStore) {
	ctx := context.Background()
	b, err := s.GetOrCreateBalance(ctx, seedBalance("bal-1"))
	require.NoError(t, err)
	stale := *b

	b.Used = generic.NewDays(1.5)
	require.NoError(t, s.UpdateBalance(ctx, b))
	assert.Equal(t, int64(2), b.Version)

	stale.Used = generic.NewDays(9)
	err = s.UpdateBalance(ctx, &stale)
	assert.ErrorIs(t, err, leave.ErrConcurrentModification)

	got, err := s.GetBalance(ctx, "bal-1")
	require.NoError(t, err)
	assert.True(t, generic.NewDays(1.5).Equal(got.Used))
	assert.Equal(t, int64(2), got.Version)

	ghost := seedBalance("bal-ghost")
	assert.ErrorIs(t, s.UpdateBalance(ctx, &ghost), leave.ErrNotFound)

	// Status filter
	b.Status = leave.BalanceClosed
	require.NoError(t, s.UpdateBalance(ctx, b))
	open, err := s.ListBalances(ctx, leave.BalanceFilter{Year: 2026, Statuses: []leave.BalanceStatus{leave.BalanceOpen}})
	require.NoError(t, err)
	assert.Empty(t, open)
	closed, err := s.ListBalances(ctx, leave.BalanceFilter{EmployeeID: "emp-1", Statuses: []leave.BalanceStatus{leave.BalanceClosed, leave.BalanceReopened}})
	require.NoError(t, err)
	assert.Len(t, closed, 1)
}

func testLedgerUniqueness(t *testing.T, s leave.TxStore) {
	ctx := context.Background()
	_, err := s.GetOrCreateBalance(ctx, seedBalance("bal-1"))
	require.NoError(t, err)

	debit := leave.LeaveTransaction{
		ID: "ltx-1", BalanceID: "bal-1", Ref: leave.RequestRef("req-1"),
		Delta: generic.NewDays(2), Kind: leave.TxDebit, CreatedAt: now,
	}
	require.NoError(t, s.AppendTransaction(ctx, debit))

	dup := debit
	dup.ID = "ltx-2"
	assert.ErrorIs(t, s.AppendTransaction(ctx, dup), leave.ErrDuplicateTransaction)

	credit := debit
	credit.ID = "ltx-3"
	credit.Kind = leave.TxCredit
	credit.Delta = generic.NewDays(-2)
	require.NoError(t, s.AppendTransaction(ctx, credit))

	// Same id string on the encashment side is a different reference.
	enc := debit
	enc.ID = "ltx-4"
	enc.Ref = leave.EncashmentRef("req-1")
	enc.Delta = generic.NewDays(0.5)
	require.NoError(t, s.AppendTransaction(ctx, enc))

	found, err := s.FindTransaction(ctx, leave.RequestRef("req-1"), leave.TxCredit)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "ltx-3", found.ID)

	none, err := s.FindTransaction(ctx, leave.RequestRef("req-9"), leave.TxDebit)
	require.NoError(t, err)
	assert.Nil(t, none)

	txs, err := s.ListTransactions(ctx, "bal-1")
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, []string{"ltx-1", "ltx-3", "ltx-4"}, []string{txs[0].ID, txs[1].ID, txs[2].ID})

	sum, err := s.SumTransactions(ctx, "bal-1")
	require.NoError(t, err)
	assert.True(t, generic.NewDays(0.5).Equal(sum), "sum was %s", sum)
}

func testWithTxRollback(t *testing.T, s leave.TxStore) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx leave.Store) error {
		if _, err := tx.GetOrCreateBalance(ctx, seedBalance("bal-1")); err != nil {
			return err
		}
		if err := tx.AppendTransaction(ctx, leave.LeaveTransaction{
			ID: "ltx-1", BalanceID: "bal-1", Ref: leave.RequestRef("req-1"),
			Delta: generic.NewDays(1), Kind: leave.TxDebit, CreatedAt: now,
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	b, err := s.GetBalance(ctx, "bal-1")
	require.NoError(t, err)
	assert.Nil(t, b)
	tx, err := s.FindTransaction(ctx, leave.RequestRef("req-1"), leave.TxDebit)
	require.NoError(t, err)
	assert.Nil(t, tx)

	err = s.WithTx(ctx, func(tx leave.Store) error {
		_, err := tx.GetOrCreateBalance(ctx, seedBalance("bal-1"))
		return err
	})
	require.NoError(t, err)
	b, err = s.GetBalance(ctx, "bal-1")
	require.NoError(t, err)
	assert.NotNil(t, b)
}

// testConcurrentDebits runs read-check-write debits in parallel units of work.
// With 17.5 days remaining the store's locking must let exactly four succeed.
func testConcurrentDebits(t *testing.T, s leave.TxStore) {
	ctx := context.Background()
	_, err := s.GetOrCreateBalance(ctx, seedBalance("bal-1"))
	require.NoError(t, err)
	errShort := errors.New("short")

	var wg sync.WaitGroup
	results := make([]error, 6)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.WithTx(ctx, func(tx leave.Store) error {
				b, err := tx.GetBalance(ctx, "bal-1")
				if err != nil {
					return err
				}
				amount := generic.NewDays(4)
				if b.Remaining().LessThan(amount) {
					return errShort
				}
				b.Used = b.Used.Add(amount)
				return tx.UpdateBalance(ctx, b)
			})
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range results {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, errShort)
	}
	assert.Equal(t, 4, ok)

	b, err := s.GetBalance(ctx, "bal-1")
	require.NoError(t, err)
	assert.True(t, generic.NewDays(16).Equal(b.Used), "used was %s", b.Used)
}

func testRequests(t *testing.T, s leave.TxStore) {
	ctx := context.Background()
	for i, status := range []leave.RequestStatus{leave.RequestPending, leave.RequestApproved, leave.RequestPending} {
		r := &leave.LeaveRequest{
			ID:          "req-" + string(rune('a'+i)),
			EmployeeID:  "emp-1",
			LeaveTypeID: "annual",
			StartDate:   generic.NewDate(2026, time.March, 2),
			EndDate:     generic.NewDate(2026, time.March, 6),
			TotalDays:   generic.NewDays(5),
			Status:      status,
			Reason:      "trip",
			CreatedAt:   now.Add(time.Duration(i) * time.Minute),
			UpdatedAt:   now,
		}
		require.NoError(t, s.CreateRequest(ctx, r))
	}

	got, err := s.GetRequest(ctx, "req-a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, generic.NewDate(2026, time.March, 6).Equal(got.EndDate))
	assert.Nil(t, got.ActedAt)

	actedAt := now.Add(time.Hour)
	got.Status = leave.RequestRejected
	got.ActedBy, got.ActedByName, got.ActedAt = "mgr", "Manager", &actedAt
	got.Remarks = "no"
	require.NoError(t, s.UpdateRequest(ctx, got))

	again, err := s.GetRequest(ctx, "req-a")
	require.NoError(t, err)
	assert.Equal(t, leave.RequestRejected, again.Status)
	require.NotNil(t, again.ActedAt)
	assert.True(t, actedAt.Equal(*again.ActedAt))

	list, total, err := s.ListRequests(ctx, leave.RequestFilter{EmployeeID: "emp-1"}, leave.Page{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, list, 2)
	assert.Equal(t, "req-c", list[0].ID, "newest first")

	pending, total, err := s.ListRequests(ctx, leave.RequestFilter{Status: leave.RequestPending}, leave.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, pending, 1)

	missing, err := s.GetRequest(ctx, "req-zzz")
	require.NoError(t, err)
	assert.Nil(t, missing)
	assert.ErrorIs(t, s.UpdateRequest(ctx, &leave.LeaveRequest{ID: "req-zzz"}), leave.ErrNotFound)
}

func testEncashments(t *testing.T, s leave.TxStore) {
	ctx := context.Background()
	e := &leave.LeaveEncashment{
		ID: "enc-1", EmployeeID: "emp-1", LeaveTypeID: "annual", Year: 2026, BalanceID: "bal-1",
		DaysRequested: generic.NewDays(2.5), Status: leave.EncashmentPending, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateEncashment(ctx, e))

	paidAt := now.Add(time.Hour)
	e.Status = leave.EncashmentPaid
	e.PaidAt = &paidAt
	require.NoError(t, s.UpdateEncashment(ctx, e))

	got, err := s.GetEncashment(ctx, "enc-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, leave.EncashmentPaid, got.Status)
	assert.True(t, generic.NewDays(2.5).Equal(got.DaysRequested))
	require.NotNil(t, got.PaidAt)

	list, total, err := s.ListEncashments(ctx, leave.EncashmentFilter{Year: 2026, Status: leave.EncashmentPaid}, leave.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, list, 1)

	list, total, err = s.ListEncashments(ctx, leave.EncashmentFilter{Year: 2025}, leave.Page{})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, list)
}

func testPolicies(t *testing.T, s leave.TxStore) {
	ctx := context.Background()
	expiry := generic.NewDate(2026, time.July, 1)
	old := &leave.LeavePolicy{
		ID: "pol-old", LeaveTypeID: "annual", AnnualEntitlement: generic.NewDays(12),
		EffectiveDate: generic.NewDate(2025, time.January, 1), ExpiryDate: &expiry,
		ExcludedWeekdays: []time.Weekday{time.Saturday, time.Sunday},
	}
	current := &leave.LeavePolicy{
		ID: "pol-new", LeaveTypeID: "annual", AnnualEntitlement: generic.NewDays(15),
		CarryLimit: generic.NewDays(5), EncashLimit: generic.NewDays(10), CarriedOverYears: 1,
		EffectiveDate: generic.NewDate(2026, time.January, 1), MinimumServiceMonths: 3,
		AllowedEmploymentTypes: []string{"FULL_TIME"}, AllowedEmployeeStatuses: []string{"ACTIVE"},
		ExcludedWeekdays: []time.Weekday{time.Friday},
	}
	require.NoError(t, s.SavePolicy(ctx, old))
	require.NoError(t, s.SavePolicy(ctx, current))

	got, err := s.GetPolicy(ctx, "pol-new")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"FULL_TIME"}, got.AllowedEmploymentTypes)
	assert.Equal(t, []time.Weekday{time.Friday}, got.ExcludedWeekdays)
	assert.Nil(t, got.ExpiryDate)
	assert.True(t, generic.NewDays(10).Equal(got.EncashLimit))

	active, err := s.ActivePolicies(ctx, "annual", generic.NewDate(2026, time.March, 2))
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "pol-new", active[0].ID, "latest effective date first")

	active, err = s.ActivePolicies(ctx, "annual", expiry)
	require.NoError(t, err)
	require.Len(t, active, 1, "expiry is exclusive")

	all, err := s.ListPolicies(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	current.AnnualEntitlement = generic.NewDays(20)
	require.NoError(t, s.SavePolicy(ctx, current))
	got, err = s.GetPolicy(ctx, "pol-new")
	require.NoError(t, err)
	assert.True(t, generic.NewDays(20).Equal(got.AnnualEntitlement))
}

func testYearConfigurations(t *testing.T, s leave.TxStore) {
	ctx := context.Background()
	for _, y := range []int{2025, 2026} {
		require.NoError(t, s.SaveYearConfiguration(ctx, &leave.LeaveYearConfiguration{
			ID: "ly-" + time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC).Format("2006"), Label: "Calendar", Year: y,
			StartDate: generic.NewDate(y, time.January, 1), EndDate: generic.NewDate(y, time.December, 31),
		}))
	}

	covering, err := s.YearConfigurationsCovering(ctx, generic.NewDate(2026, time.December, 31))
	require.NoError(t, err)
	require.Len(t, covering, 1)
	assert.Equal(t, 2026, covering[0].Year)

	y, err := s.YearConfigurationByYear(ctx, 2025)
	require.NoError(t, err)
	require.NotNil(t, y)
	assert.Equal(t, "ly-2025", y.ID)

	none, err := s.YearConfigurationByYear(ctx, 2030)
	require.NoError(t, err)
	assert.Nil(t, none)

	all, err := s.ListYearConfigurations(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 2026, all[0].Year)
}

func testHolidays(t *testing.T, s leave.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.SaveHoliday(ctx, &leave.Holiday{ID: "h1", Date: generic.NewDate(2026, time.January, 1), Description: "New Year"}))
	require.NoError(t, s.SaveHoliday(ctx, &leave.Holiday{ID: "h2", Date: generic.NewDate(2026, time.March, 4), Description: "Founders"}))

	hs, err := s.ListHolidays(ctx, generic.NewDate(2026, time.March, 1), generic.NewDate(2026, time.March, 31))
	require.NoError(t, err)
	require.Len(t, hs, 1)
	assert.Equal(t, "Founders", hs[0].Description)

	require.NoError(t, s.DeleteHoliday(ctx, "h2"))
	assert.ErrorIs(t, s.DeleteHoliday(ctx, "h2"), leave.ErrNotFound)

	hs, err = s.ListHolidays(ctx, generic.NewDate(2026, time.January, 1), generic.NewDate(2026, time.December, 31))
	require.NoError(t, err)
	assert.Len(t, hs, 1)
}

func testEmployees(t *testing.T, s leave.TxStore) {
	ctx := context.Background()
	e := &leave.Employee{
		ID: "emp-1", Name: "Ada", HireDate: generic.NewDate(2021, time.April, 12),
		EmploymentType: "FULL_TIME", EmployeeStatus: "ACTIVE", CreatedAt: now,
	}
	require.NoError(t, s.SaveEmployee(ctx, e))
	e.EmployeeStatus = "ON_LEAVE"
	require.NoError(t, s.SaveEmployee(ctx, e))

	got, err := s.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ON_LEAVE", got.EmployeeStatus)
	assert.True(t, generic.NewDate(2021, time.April, 12).Equal(got.HireDate))

	all, err := s.ListEmployees(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	none, err := s.GetEmployee(ctx, "emp-2")
	require.NoError(t, err)
	assert.Nil(t, none)
}
