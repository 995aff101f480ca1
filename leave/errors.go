/*
errors.go - Typed failures of the leave engine

PURPOSE:
  Every failure the engine produces on its own is one of the kinds below.
  Each structured error carries the entity, current state and attempted
  action so the presentation layer can build a precise message, and unwraps
  to a sentinel so callers can branch with errors.Is.

ERROR CATEGORIES:
  1. Not found       - request, policy, year configuration, balance, employee
  2. Domain rules    - InvalidRange, PolicyIneligible, EncashLimitExceeded,
                       InsufficientBalance, InvalidAmount
  3. Conflicts       - InvalidStateTransition, DuplicateTransaction,
                       BalanceFinalized, BalanceNotOpen, NothingToReverse,
                       ConcurrentModification, ProjectionMismatch

  Store and transport failures are passed through wrapped with %w and never
  retried here.

USAGE:
  if errors.Is(err, leave.ErrInsufficientBalance) { ... }

  var st *leave.InvalidStateTransitionError
  if errors.As(err, &st) { log(st.From, st.To) }

  switch leave.KindOf(err) { case leave.KindNotFound: ... }
*/
package leave

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// KINDS
// =============================================================================

// Kind is the discriminator shared by every structured engine error.
type Kind string

const (
	KindNotFound               Kind = "not_found"
	KindInvalidRange           Kind = "invalid_range"
	KindInvalidAmount          Kind = "invalid_amount"
	KindPolicyIneligible       Kind = "policy_ineligible"
	KindEncashLimitExceeded    Kind = "encash_limit_exceeded"
	KindInsufficientBalance    Kind = "insufficient_balance"
	KindInvalidStateTransition Kind = "invalid_state_transition"
	KindDuplicateTransaction   Kind = "duplicate_transaction"
	KindBalanceFinalized       Kind = "balance_finalized"
	KindBalanceNotOpen         Kind = "balance_not_open"
	KindNothingToReverse       Kind = "nothing_to_reverse"
	KindConcurrentModification Kind = "concurrent_modification"
	KindProjectionMismatch     Kind = "projection_mismatch"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidRange           = errors.New("invalid date range")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrPolicyIneligible       = errors.New("not eligible under leave policy")
	ErrEncashLimitExceeded    = errors.New("encashment limit exceeded")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrDuplicateTransaction   = errors.New("duplicate ledger transaction")
	ErrBalanceFinalized       = errors.New("balance is finalized")
	ErrBalanceNotOpen         = errors.New("balance is not open")
	ErrNothingToReverse       = errors.New("no debit to reverse")

	// ErrConcurrentModification is returned by stores when a version check fails.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrProjectionMismatch means the balance fields no longer match the ledger.
	ErrProjectionMismatch = errors.New("balance does not reconcile with ledger")
)

var kindBySentinel = map[error]Kind{
	ErrNotFound:               KindNotFound,
	ErrInvalidRange:           KindInvalidRange,
	ErrInvalidAmount:          KindInvalidAmount,
	ErrPolicyIneligible:       KindPolicyIneligible,
	ErrEncashLimitExceeded:    KindEncashLimitExceeded,
	ErrInsufficientBalance:    KindInsufficientBalance,
	ErrInvalidStateTransition: KindInvalidStateTransition,
	ErrDuplicateTransaction:   KindDuplicateTransaction,
	ErrBalanceFinalized:       KindBalanceFinalized,
	ErrBalanceNotOpen:         KindBalanceNotOpen,
	ErrNothingToReverse:       KindNothingToReverse,
	ErrConcurrentModification: KindConcurrentModification,
	ErrProjectionMismatch:     KindProjectionMismatch,
}

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string // "leave request", "leave policy", ...
	ID     string // identifier or lookup description
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s not found: %s", e.Entity, e.ID) }
func (e *NotFoundError) Unwrap() error { return ErrNotFound }
func (e *NotFoundError) Kind() Kind    { return KindNotFound }

func notFound(entity, id string) error { return &NotFoundError{Entity: entity, ID: id} }

// InvalidRangeError is returned when a date range cannot be counted.
type InvalidRangeError struct {
	Start  string
	End    string
	Reason string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range %s..%s: %s", e.Start, e.End, e.Reason)
}
func (e *InvalidRangeError) Unwrap() error { return ErrInvalidRange }
func (e *InvalidRangeError) Kind() Kind    { return KindInvalidRange }

// InvalidAmountError is returned for non-positive or over-precise quantities.
type InvalidAmountError struct {
	Field  string
	Amount decimal.Decimal
	Reason string // defaults to "must be positive"
}

func (e *InvalidAmountError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "must be positive"
	}
	return fmt.Sprintf("%s %s, got %s", e.Field, reason, e.Amount)
}
func (e *InvalidAmountError) Unwrap() error { return ErrInvalidAmount }
func (e *InvalidAmountError) Kind() Kind    { return KindInvalidAmount }

// PolicyIneligibleError names the eligibility rule the employee failed.
type PolicyIneligibleError struct {
	EmployeeID  string
	LeaveTypeID string
	PolicyID    string
	Rule        string // "employment_type", "employee_status", "minimum_service"
	Detail      string
}

func (e *PolicyIneligibleError) Error() string {
	return fmt.Sprintf("employee %s not eligible for leave type %s under policy %s (%s): %s",
		e.EmployeeID, e.LeaveTypeID, e.PolicyID, e.Rule, e.Detail)
}
func (e *PolicyIneligibleError) Unwrap() error { return ErrPolicyIneligible }
func (e *PolicyIneligibleError) Kind() Kind    { return KindPolicyIneligible }

// EncashLimitExceededError reports which limit was exceeded.
type EncashLimitExceededError struct {
	BalanceID string
	Requested decimal.Decimal
	Limit     decimal.Decimal
	Source    string // "policy" or "balance"
}

func (e *EncashLimitExceededError) Error() string {
	return fmt.Sprintf("encashment of %s days exceeds %s limit of %s", e.Requested, e.Source, e.Limit)
}
func (e *EncashLimitExceededError) Unwrap() error { return ErrEncashLimitExceeded }
func (e *EncashLimitExceededError) Kind() Kind    { return KindEncashLimitExceeded }

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	BalanceID string
	Available decimal.Decimal
	Requested decimal.Decimal
}

// Shortfall is how many days are missing.
func (e *InsufficientBalanceError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance on %s: available %s, requested %s, shortfall %s",
		e.BalanceID, e.Available, e.Requested, e.Shortfall())
}
func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }
func (e *InsufficientBalanceError) Kind() Kind    { return KindInsufficientBalance }

// InvalidStateTransitionError names the current and requested states.
type InvalidStateTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("%s %s cannot move from %s to %s", e.Entity, e.ID, e.From, e.To)
}
func (e *InvalidStateTransitionError) Unwrap() error { return ErrInvalidStateTransition }
func (e *InvalidStateTransitionError) Kind() Kind    { return KindInvalidStateTransition }

// DuplicateTransactionError is returned when the reference already has an entry of this kind.
type DuplicateTransactionError struct {
	BalanceID  string
	Reference  Reference
	TxKind     TransactionKind
	ExistingID string
}

func (e *DuplicateTransactionError) Error() string {
	return fmt.Sprintf("%s already has a %s entry (tx %s) on balance %s",
		e.Reference, e.TxKind, e.ExistingID, e.BalanceID)
}
func (e *DuplicateTransactionError) Unwrap() error { return ErrDuplicateTransaction }
func (e *DuplicateTransactionError) Kind() Kind    { return KindDuplicateTransaction }

// BalanceFinalizedError is returned for any mutation of a FINALIZED balance.
type BalanceFinalizedError struct {
	BalanceID string
	Action    string
}

func (e *BalanceFinalizedError) Error() string {
	return fmt.Sprintf("balance %s is finalized: cannot %s", e.BalanceID, e.Action)
}
func (e *BalanceFinalizedError) Unwrap() error { return ErrBalanceFinalized }
func (e *BalanceFinalizedError) Kind() Kind    { return KindBalanceFinalized }

// BalanceNotOpenError is returned when a debit hits a balance that is not OPEN or REOPENED.
type BalanceNotOpenError struct {
	BalanceID string
	Status    BalanceStatus
	Action    string
}

func (e *BalanceNotOpenError) Error() string {
	return fmt.Sprintf("balance %s is %s: cannot %s", e.BalanceID, e.Status, e.Action)
}
func (e *BalanceNotOpenError) Unwrap() error { return ErrBalanceNotOpen }
func (e *BalanceNotOpenError) Kind() Kind    { return KindBalanceNotOpen }

// NothingToReverseError is returned when a credit has no matching debit.
type NothingToReverseError struct {
	BalanceID string
	Reference Reference
}

func (e *NothingToReverseError) Error() string {
	return fmt.Sprintf("%s has no debit on balance %s to reverse", e.Reference, e.BalanceID)
}
func (e *NothingToReverseError) Unwrap() error { return ErrNothingToReverse }
func (e *NothingToReverseError) Kind() Kind    { return KindNothingToReverse }

// ProjectionMismatchError reports a balance that drifted from its ledger.
type ProjectionMismatchError struct {
	BalanceID string
	Ledger    decimal.Decimal
	Projected decimal.Decimal
}

func (e *ProjectionMismatchError) Error() string {
	return fmt.Sprintf("balance %s: ledger sums to %s but used+encashed is %s",
		e.BalanceID, e.Ledger, e.Projected)
}
func (e *ProjectionMismatchError) Unwrap() error { return ErrProjectionMismatch }
func (e *ProjectionMismatchError) Kind() Kind    { return KindProjectionMismatch }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// KindOf returns the discriminator of an engine error, or "" for foreign errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var k interface{ Kind() Kind }
	if errors.As(err, &k) {
		return k.Kind()
	}
	for sentinel, kind := range kindBySentinel {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return ""
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsDomainRule returns true for business-rule violations caused by the input.
func IsDomainRule(err error) bool {
	switch KindOf(err) {
	case KindInvalidRange, KindInvalidAmount, KindPolicyIneligible,
		KindEncashLimitExceeded, KindInsufficientBalance:
		return true
	}
	return false
}

// IsConflict returns true when the operation is inapplicable given current state.
func IsConflict(err error) bool {
	switch KindOf(err) {
	case KindInvalidStateTransition, KindDuplicateTransaction, KindBalanceFinalized,
		KindBalanceNotOpen, KindNothingToReverse, KindConcurrentModification,
		KindProjectionMismatch:
		return true
	}
	return false
}
