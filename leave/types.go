/*
Package leave implements the leave lifecycle and balance ledger engine.

PURPOSE:
  Computes how many days a leave request consumes, drives requests and
  encashments through their state machines, and keeps a per-employee,
  per-leave-type, per-year balance that always reconciles against an
  append-only transaction ledger.

KEY CONCEPTS IN THIS FILE (types.go):
  - LeaveRequest:   A request for time off with a derived TotalDays
  - LeaveBalance:   Materialized projection of the ledger for one
                    (employee, leave type, year)
  - LeaveTransaction: Append-only ledger entry (DEBIT positive, CREDIT negative)
  - LeavePolicy:    Entitlement, limits, eligibility and excluded weekdays
  - LeaveYearConfiguration: Accounting year boundary
  - LeaveEncashment: Conversion of unused balance into a payout

CONTROL FLOW:
  Day Counter → Policy/Year resolvers → RequestService (PENDING)
    approve → Ledger.Debit
    cancel  → Ledger.Credit (only if it was APPROVED)
  EncashmentService: paid → Ledger.Debit, cancel of paid → Ledger.Credit

SEE ALSO:
  - daycount.go: CountDays
  - ledger.go: Debit / Credit / OpenBalance
  - request.go: Request state machine
  - encashment.go: Encashment state machine
  - store.go: Repository ports and the unit of work
*/
package leave

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STATUSES
// =============================================================================

type RequestStatus string

const (
	RequestPending   RequestStatus = "PENDING"
	RequestApproved  RequestStatus = "APPROVED"
	RequestRejected  RequestStatus = "REJECTED"
	RequestCancelled RequestStatus = "CANCELLED"
)

type BalanceStatus string

const (
	BalanceOpen      BalanceStatus = "OPEN"
	BalanceClosed    BalanceStatus = "CLOSED"
	BalanceReopened  BalanceStatus = "REOPENED"
	BalanceFinalized BalanceStatus = "FINALIZED"
)

// AcceptsDebits reports whether new consumption may be recorded.
func (s BalanceStatus) AcceptsDebits() bool {
	return s == BalanceOpen || s == BalanceReopened
}

type EncashmentStatus string

const (
	EncashmentPending   EncashmentStatus = "PENDING"
	EncashmentPaid      EncashmentStatus = "PAID"
	EncashmentCancelled EncashmentStatus = "CANCELLED"
)

type TransactionKind string

const (
	TxDebit  TransactionKind = "DEBIT"
	TxCredit TransactionKind = "CREDIT"
)

// =============================================================================
// ACTOR
// =============================================================================

// Actor identifies who performed a transition. Resolved by the caller.
type Actor struct {
	UserID   string
	UserName string
}

// =============================================================================
// LEAVE REQUEST
// =============================================================================

type LeaveRequest struct {
	ID          string
	EmployeeID  string
	LeaveTypeID string
	StartDate   time.Time
	EndDate     time.Time
	IsHalfDay   bool
	TotalDays   decimal.Decimal
	Status      RequestStatus
	Reason      string
	Remarks     string

	// BalanceID is set on approval to the balance that was debited.
	BalanceID string

	ActedBy     string
	ActedByName string
	ActedAt     *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsTerminal reports whether no further status change is possible.
func (r *LeaveRequest) IsTerminal() bool {
	return r.Status == RequestRejected || r.Status == RequestCancelled
}

func (r *LeaveRequest) stamp(actor Actor, at time.Time) {
	r.ActedBy = actor.UserID
	r.ActedByName = actor.UserName
	r.ActedAt = &at
	r.UpdatedAt = at
}

// =============================================================================
// LEAVE BALANCE
// =============================================================================

// BalanceKey identifies the single balance row for an employee, leave type and year.
type BalanceKey struct {
	EmployeeID  string
	LeaveTypeID string
	Year        int
}

type LeaveBalance struct {
	ID                 string
	EmployeeID         string
	LeaveTypeID        string
	Year               int
	OpeningEntitlement decimal.Decimal
	CarriedOver        decimal.Decimal
	Used               decimal.Decimal
	Encashed           decimal.Decimal
	Status             BalanceStatus

	// Version is bumped on every update and checked by the store (compare-and-swap).
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Key returns the uniqueness key of the balance.
func (b *LeaveBalance) Key() BalanceKey {
	return BalanceKey{EmployeeID: b.EmployeeID, LeaveTypeID: b.LeaveTypeID, Year: b.Year}
}

// Remaining = opening entitlement + carried over − used − encashed.
func (b *LeaveBalance) Remaining() decimal.Decimal {
	return b.OpeningEntitlement.Add(b.CarriedOver).Sub(b.Used).Sub(b.Encashed)
}

// Consumed is the ledger-backed part of the balance: used + encashed.
func (b *LeaveBalance) Consumed() decimal.Decimal {
	return b.Used.Add(b.Encashed)
}

// =============================================================================
// LEAVE TRANSACTION - Append-only ledger entry
// =============================================================================

// Reference names what a ledger entry was recorded for. Exactly one field is set.
type Reference struct {
	LeaveRequestID string
	EncashmentID   string
}

// RequestRef references a leave request.
func RequestRef(id string) Reference { return Reference{LeaveRequestID: id} }

// EncashmentRef references an encashment.
func EncashmentRef(id string) Reference { return Reference{EncashmentID: id} }

// IsEncashment reports whether the reference points at an encashment.
func (r Reference) IsEncashment() bool { return r.EncashmentID != "" }

// Valid reports whether exactly one side is set.
func (r Reference) Valid() bool { return (r.LeaveRequestID == "") != (r.EncashmentID == "") }

func (r Reference) String() string {
	if r.IsEncashment() {
		return "encashment " + r.EncashmentID
	}
	return "leave request " + r.LeaveRequestID
}

type LeaveTransaction struct {
	ID        string
	BalanceID string
	Ref       Reference
	// Delta is positive for DEBIT and negative for CREDIT so that the
	// sum over a balance equals Used + Encashed.
	Delta     decimal.Decimal
	Kind      TransactionKind
	CreatedAt time.Time
}

// =============================================================================
// POLICY & YEAR CONFIGURATION
// =============================================================================

type LeavePolicy struct {
	ID                string
	LeaveTypeID       string
	AnnualEntitlement decimal.Decimal
	CarryLimit        decimal.Decimal
	EncashLimit       decimal.Decimal
	CarriedOverYears  int
	EffectiveDate     time.Time
	// ExpiryDate is exclusive; nil means open-ended.
	ExpiryDate *time.Time

	MinimumServiceMonths    int
	AllowedEmploymentTypes  []string
	AllowedEmployeeStatuses []string
	ExcludedWeekdays        []time.Weekday
}

// ActiveOn reports whether effective_date ≤ d < expiry_date.
func (p *LeavePolicy) ActiveOn(d time.Time) bool {
	if d.Before(p.EffectiveDate) {
		return false
	}
	return p.ExpiryDate == nil || d.Before(*p.ExpiryDate)
}

type LeaveYearConfiguration struct {
	ID        string
	Label     string
	Year      int
	StartDate time.Time
	EndDate   time.Time
}

// Contains reports whether start ≤ d ≤ end.
func (y *LeaveYearConfiguration) Contains(d time.Time) bool {
	return !d.Before(y.StartDate) && !d.After(y.EndDate)
}

// =============================================================================
// ENCASHMENT
// =============================================================================

type LeaveEncashment struct {
	ID            string
	EmployeeID    string
	LeaveTypeID   string
	Year          int
	BalanceID     string
	DaysRequested decimal.Decimal
	Status        EncashmentStatus
	Remarks       string

	ActedBy     string
	ActedByName string
	ActedAt     *time.Time
	PaidAt      *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (e *LeaveEncashment) stamp(actor Actor, at time.Time) {
	e.ActedBy = actor.UserID
	e.ActedByName = actor.UserName
	e.ActedAt = &at
	e.UpdatedAt = at
}

// =============================================================================
// COLLABORATOR RECORDS
// =============================================================================

// Employee carries the attributes policy eligibility is evaluated against.
type Employee struct {
	ID             string
	Name           string
	HireDate       time.Time
	EmploymentType string
	EmployeeStatus string
	CreatedAt      time.Time
}

// Holiday is a non-working calendar day.
type Holiday struct {
	ID          string
	Date        time.Time
	Description string
}
