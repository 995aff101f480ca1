/*
ledger.go - Balance ledger: the only writer of LeaveBalance quantities

PURPOSE:
  Owns the per-(employee, leave type, year) balance. Every change to Used or
  Encashed goes through Debit or Credit, which append exactly one ledger row
  and update the projection in the same unit of work.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: ledger rows are never updated or deleted
  2. PROJECTION: Σ delta over a balance = Used + Encashed
  3. IDEMPOTENT: at most one DEBIT and one CREDIT per reference
  4. NON-NEGATIVE: a debit never takes Remaining below zero
  5. FINALIZED is terminal: no component mutates such a balance

EXAMPLE FLOW:
  1. Balance opened for 2026 with 15 days: Remaining 15
  2. Request approved for 5 days: DEBIT +5, Used 5, Remaining 10
  3. Request cancelled: CREDIT −5, Used 0, Remaining 15

  Ledger: [+5, −5] = 0 = Used + Encashed

CONCURRENCY:
  Callers run Debit/Credit inside TxStore.WithTx. The store locks the balance
  row (or serializes writers) and UpdateBalance is version-checked, so the
  remaining check and the debit are atomic.

SEE ALSO:
  - store.go: BalanceRepository contract
  - request.go, encashment.go: Callers
*/
package leave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	Clock  func() time.Time
	Logger *slog.Logger
}

// NewLedger returns a ledger using the wall clock.
func NewLedger(logger *slog.Logger) *Ledger {
	return &Ledger{Clock: time.Now, Logger: logger}
}

func (l *Ledger) now() time.Time {
	if l.Clock == nil {
		return time.Now().UTC()
	}
	return l.Clock().UTC()
}

// OpenBalance returns the balance for key, creating it from the policy when it
// does not exist yet. Existing rows are returned untouched.
func (l *Ledger) OpenBalance(ctx context.Context, s Store, key BalanceKey, policy *LeavePolicy, carriedOver decimal.Decimal) (*LeaveBalance, error) {
	now := l.now()
	seed := LeaveBalance{
		ID:                 generic.NewID("bal"),
		EmployeeID:         key.EmployeeID,
		LeaveTypeID:        key.LeaveTypeID,
		Year:               key.Year,
		OpeningEntitlement: policy.AnnualEntitlement,
		CarriedOver:        carriedOver,
		Used:               decimal.Zero,
		Encashed:           decimal.Zero,
		Status:             BalanceOpen,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	b, err := s.GetOrCreateBalance(ctx, seed)
	if err != nil {
		return nil, fmt.Errorf("failed to open balance %+v: %w", key, err)
	}
	if b.ID == seed.ID {
		logger(l.Logger).Info("leave balance opened",
			"balance_id", b.ID, "employee_id", key.EmployeeID, "leave_type_id", key.LeaveTypeID,
			"year", key.Year, "entitlement", b.OpeningEntitlement.String(), "carried_over", b.CarriedOver.String())
	}
	return b, nil
}

// Balance loads a balance by id or fails with NotFoundError.
func (l *Ledger) Balance(ctx context.Context, s Store, balanceID string) (*LeaveBalance, error) {
	b, err := s.GetBalance(ctx, balanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load balance %s: %w", balanceID, err)
	}
	if b == nil {
		return nil, notFound("leave balance", balanceID)
	}
	return b, nil
}

// Debit records consumption against the balance.
func (l *Ledger) Debit(ctx context.Context, s Store, balanceID string, amount decimal.Decimal, ref Reference) (*LeaveBalance, error) {
	if err := validateEntry(amount, ref); err != nil {
		return nil, err
	}
	b, err := l.Balance(ctx, s, balanceID)
	if err != nil {
		return nil, err
	}
	if !b.Status.AcceptsDebits() {
		return nil, &BalanceNotOpenError{BalanceID: b.ID, Status: b.Status, Action: "debit"}
	}
	if existing, err := s.FindTransaction(ctx, ref, TxDebit); err != nil {
		return nil, fmt.Errorf("failed to check ledger for %s: %w", ref, err)
	} else if existing != nil {
		return nil, &DuplicateTransactionError{BalanceID: b.ID, Reference: ref, TxKind: TxDebit, ExistingID: existing.ID}
	}
	if b.Remaining().LessThan(amount) {
		return nil, &InsufficientBalanceError{BalanceID: b.ID, Available: b.Remaining(), Requested: amount}
	}

	if ref.IsEncashment() {
		b.Encashed = b.Encashed.Add(amount)
	} else {
		b.Used = b.Used.Add(amount)
	}
	if err := l.record(ctx, s, b, amount, TxDebit, ref); err != nil {
		return nil, err
	}
	return b, nil
}

// Credit reverses a prior debit for the same reference. The amount itself is
// never a reason to refuse; only a FINALIZED balance, a second credit, or a
// missing debit are.
func (l *Ledger) Credit(ctx context.Context, s Store, balanceID string, amount decimal.Decimal, ref Reference) (*LeaveBalance, error) {
	if err := validateEntry(amount, ref); err != nil {
		return nil, err
	}
	b, err := l.Balance(ctx, s, balanceID)
	if err != nil {
		return nil, err
	}
	if b.Status == BalanceFinalized {
		return nil, &BalanceFinalizedError{BalanceID: b.ID, Action: "credit"}
	}
	if existing, err := s.FindTransaction(ctx, ref, TxCredit); err != nil {
		return nil, fmt.Errorf("failed to check ledger for %s: %w", ref, err)
	} else if existing != nil {
		return nil, &DuplicateTransactionError{BalanceID: b.ID, Reference: ref, TxKind: TxCredit, ExistingID: existing.ID}
	}
	debit, err := s.FindTransaction(ctx, ref, TxDebit)
	if err != nil {
		return nil, fmt.Errorf("failed to check ledger for %s: %w", ref, err)
	}
	if debit == nil || debit.BalanceID != b.ID {
		return nil, &NothingToReverseError{BalanceID: b.ID, Reference: ref}
	}

	if ref.IsEncashment() {
		b.Encashed = b.Encashed.Sub(amount)
	} else {
		b.Used = b.Used.Sub(amount)
	}
	if err := l.record(ctx, s, b, amount.Neg(), TxCredit, ref); err != nil {
		return nil, err
	}
	return b, nil
}

// record appends the ledger row and persists the projection. Both writes share
// the caller's unit of work.
func (l *Ledger) record(ctx context.Context, s Store, b *LeaveBalance, delta decimal.Decimal, kind TransactionKind, ref Reference) error {
	now := l.now()
	entry := LeaveTransaction{
		ID:        generic.NewID("ltx"),
		BalanceID: b.ID,
		Ref:       ref,
		Delta:     delta,
		Kind:      kind,
		CreatedAt: now,
	}
	if err := s.AppendTransaction(ctx, entry); err != nil {
		if errors.Is(err, ErrDuplicateTransaction) {
			return &DuplicateTransactionError{BalanceID: b.ID, Reference: ref, TxKind: kind}
		}
		return fmt.Errorf("failed to append %s for %s: %w", kind, ref, err)
	}
	b.UpdatedAt = now
	if err := s.UpdateBalance(ctx, b); err != nil {
		return fmt.Errorf("failed to update balance %s: %w", b.ID, err)
	}

	logger(l.Logger).Info("ledger entry recorded",
		"balance_id", b.ID, "kind", string(kind), "delta", delta.String(),
		"reference", ref.String(), "remaining", b.Remaining().String())
	return nil
}

// Reconcile verifies Σ delta = Used + Encashed for the balance.
func (l *Ledger) Reconcile(ctx context.Context, s Store, balanceID string) (*LeaveBalance, error) {
	b, err := l.Balance(ctx, s, balanceID)
	if err != nil {
		return nil, err
	}
	sum, err := s.SumTransactions(ctx, balanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum ledger for %s: %w", balanceID, err)
	}
	if !sum.Equal(b.Consumed()) {
		return b, &ProjectionMismatchError{BalanceID: b.ID, Ledger: sum, Projected: b.Consumed()}
	}
	return b, nil
}

func validateEntry(amount decimal.Decimal, ref Reference) error {
	if !ref.Valid() {
		return fmt.Errorf("ledger reference must name exactly one of leave request or encashment: %+v", ref)
	}
	if amount.IsNegative() {
		return &InvalidAmountError{Field: "amount", Amount: amount}
	}
	return nil
}
