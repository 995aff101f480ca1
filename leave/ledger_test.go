package leave_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/leave"
)

func openBalance(t *testing.T, f *fixture) *leave.LeaveBalance {
	t.Helper()
	b, err := f.ledger.OpenBalance(f.ctx, f.store,
		leave.BalanceKey{EmployeeID: "emp-1", LeaveTypeID: "annual", Year: 2026}, &f.policy, days(2))
	require.NoError(t, err)
	return b
}

func TestLedger_OpenBalance_Idempotent(t *testing.T) {
	f := newFixture(t)

	first := openBalance(t, f)
	assertDays(t, 15, first.OpeningEntitlement)
	assertDays(t, 2, first.CarriedOver)
	assertDays(t, 17, first.Remaining())
	assert.Equal(t, leave.BalanceOpen, first.Status)

	second, err := f.ledger.OpenBalance(f.ctx, f.store, first.Key(), &f.policy, decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assertDays(t, 2, second.CarriedOver)
}

func TestLedger_DuplicateDebit(t *testing.T) {
	f := newFixture(t)
	b := openBalance(t, f)
	ref := leave.RequestRef("req-1")

	_, err := f.ledger.Debit(f.ctx, f.store, b.ID, days(1), ref)
	require.NoError(t, err)

	_, err = f.ledger.Debit(f.ctx, f.store, b.ID, days(1), ref)
	var dup *leave.DuplicateTransactionError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, leave.TxDebit, dup.TxKind)
	assert.NotEmpty(t, dup.ExistingID)

	got := f.balance(t, 2026)
	assertDays(t, 1, got.Used)
	f.requireReconciled(t, got.ID)
}

func TestLedger_CreditRules(t *testing.T) {
	f := newFixture(t)
	b := openBalance(t, f)
	ref := leave.EncashmentRef("enc-1")

	_, err := f.ledger.Credit(f.ctx, f.store, b.ID, days(1), ref)
	assert.ErrorIs(t, err, leave.ErrNothingToReverse, "no debit yet")

	_, err = f.ledger.Debit(f.ctx, f.store, b.ID, days(4), ref)
	require.NoError(t, err)

	credited, err := f.ledger.Credit(f.ctx, f.store, b.ID, days(4), ref)
	require.NoError(t, err)
	assertDays(t, 0, credited.Encashed)

	_, err = f.ledger.Credit(f.ctx, f.store, b.ID, days(4), ref)
	assert.ErrorIs(t, err, leave.ErrDuplicateTransaction, "second credit")

	f.requireReconciled(t, b.ID)
}

func TestLedger_StatusGuards(t *testing.T) {
	f := newFixture(t)
	b := openBalance(t, f)
	ref := leave.RequestRef("req-1")
	_, err := f.ledger.Debit(f.ctx, f.store, b.ID, days(1), ref)
	require.NoError(t, err)

	_, err = f.yearEnd.Close(f.ctx, b.ID)
	require.NoError(t, err)

	_, err = f.ledger.Debit(f.ctx, f.store, b.ID, days(1), leave.RequestRef("req-2"))
	assert.ErrorIs(t, err, leave.ErrBalanceNotOpen, "closed balance refuses debits")

	// Credits are allowed on a CLOSED balance.
	_, err = f.ledger.Credit(f.ctx, f.store, b.ID, days(1), ref)
	require.NoError(t, err)

	_, err = f.yearEnd.Finalize(f.ctx, b.ID)
	require.NoError(t, err)

	_, err = f.ledger.Debit(f.ctx, f.store, b.ID, days(1), leave.RequestRef("req-3"))
	assert.ErrorIs(t, err, leave.ErrBalanceNotOpen)
	_, err = f.ledger.Credit(f.ctx, f.store, b.ID, days(1), leave.RequestRef("req-3"))
	assert.ErrorIs(t, err, leave.ErrBalanceFinalized)
}

func TestLedger_InvalidEntries(t *testing.T) {
	f := newFixture(t)
	b := openBalance(t, f)

	_, err := f.ledger.Debit(f.ctx, f.store, b.ID, days(-1), leave.RequestRef("req-1"))
	assert.ErrorIs(t, err, leave.ErrInvalidAmount)

	_, err = f.ledger.Debit(f.ctx, f.store, b.ID, days(1), leave.Reference{})
	assert.Error(t, err)

	_, err = f.ledger.Debit(f.ctx, f.store, "bal-missing", days(1), leave.RequestRef("req-1"))
	assert.True(t, leave.IsNotFound(err))
}

func TestLedger_Reconcile_DetectsDrift(t *testing.T) {
	f := newFixture(t)
	b := openBalance(t, f)
	_, err := f.ledger.Debit(f.ctx, f.store, b.ID, days(3), leave.RequestRef("req-1"))
	require.NoError(t, err)

	// Tamper with the projection behind the ledger's back.
	drifted := f.balance(t, 2026)
	drifted.Used = days(1)
	require.NoError(t, f.store.UpdateBalance(f.ctx, drifted))

	_, err = f.ledger.Reconcile(f.ctx, f.store, b.ID)
	var mismatch *leave.ProjectionMismatchError
	require.ErrorAs(t, err, &mismatch)
	assertDays(t, 3, mismatch.Ledger)
	assertDays(t, 1, mismatch.Projected)
}

func TestLedger_RollbackOnFailure(t *testing.T) {
	f := newFixture(t)
	b := openBalance(t, f)
	boom := errors.New("boom")

	err := f.store.WithTx(f.ctx, func(s leave.Store) error {
		if _, err := f.ledger.Debit(f.ctx, s, b.ID, days(2), leave.RequestRef("req-1")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got := f.balance(t, 2026)
	assertDays(t, 0, got.Used)
	txs, err := f.store.ListTransactions(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestLedger_StaleVersionRejected(t *testing.T) {
	f := newFixture(t)
	b := openBalance(t, f)
	stale := *b

	_, err := f.ledger.Debit(f.ctx, f.store, b.ID, days(1), leave.RequestRef("req-1"))
	require.NoError(t, err)

	stale.Used = days(9)
	err = f.store.UpdateBalance(f.ctx, &stale)
	assert.ErrorIs(t, err, leave.ErrConcurrentModification)
}
