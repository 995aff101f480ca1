/*
store.go - Repository ports consumed by the engine

PURPOSE:
  Defines the boundary between the engine and persistence. The engine never
  builds queries; it calls these interfaces inside a unit of work.

KEY INTERFACES:
  Store:   Every repository the engine reads or writes
  TxStore: Store plus WithTx, the all-or-nothing unit of work

LOOKUP CONVENTION:
  Single-record getters return (nil, nil) when nothing matches. The engine
  turns that into a NotFoundError with context.

LOCKING CONTRACT:
  Inside WithTx, GetBalance/GetOrCreateBalance/GetRequest/GetEncashment must
  return rows that no concurrent unit of work can modify until commit
  (row lock, or store-wide writer serialization). UpdateBalance must apply
  only if Version still matches, bumping it, else ErrConcurrentModification.

APPEND-ONLY CONTRACT:
  AppendTransaction is the only write to the ledger. A second entry with the
  same (reference, kind) must fail with ErrDuplicateTransaction.

IMPLEMENTATIONS:
  - leave/store/memory.go: In-memory, for tests
  - store/sqlite/sqlite.go: SQLite
  - store/postgres/postgres.go: PostgreSQL (SELECT ... FOR UPDATE)
*/
package leave

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// QUERY TYPES
// =============================================================================

// Page selects a window of a listing. Limit 0 means the store default.
type Page struct {
	Limit  int
	Offset int
}

// DefaultPageLimit applies when Page.Limit is zero.
const DefaultPageLimit = 50

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > 500 {
		p.Limit = 500
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

type RequestFilter struct {
	EmployeeID  string
	LeaveTypeID string
	Status      RequestStatus
}

type EncashmentFilter struct {
	EmployeeID string
	Year       int
	Status     EncashmentStatus
}

type BalanceFilter struct {
	EmployeeID  string
	LeaveTypeID string
	Year        int
	Statuses    []BalanceStatus
}

// =============================================================================
// REPOSITORIES
// =============================================================================

type BalanceRepository interface {
	// GetOrCreateBalance returns the row for seed.Key(), inserting seed if absent.
	// Must be a single atomic step so concurrent first use yields one row.
	GetOrCreateBalance(ctx context.Context, seed LeaveBalance) (*LeaveBalance, error)
	GetBalance(ctx context.Context, id string) (*LeaveBalance, error)
	FindBalance(ctx context.Context, key BalanceKey) (*LeaveBalance, error)
	ListBalances(ctx context.Context, filter BalanceFilter) ([]LeaveBalance, error)
	UpdateBalance(ctx context.Context, b *LeaveBalance) error

	AppendTransaction(ctx context.Context, tx LeaveTransaction) error
	FindTransaction(ctx context.Context, ref Reference, kind TransactionKind) (*LeaveTransaction, error)
	ListTransactions(ctx context.Context, balanceID string) ([]LeaveTransaction, error)
	SumTransactions(ctx context.Context, balanceID string) (decimal.Decimal, error)
}

type RequestRepository interface {
	CreateRequest(ctx context.Context, r *LeaveRequest) error
	UpdateRequest(ctx context.Context, r *LeaveRequest) error
	GetRequest(ctx context.Context, id string) (*LeaveRequest, error)
	ListRequests(ctx context.Context, filter RequestFilter, page Page) ([]LeaveRequest, int, error)
}

type EncashmentRepository interface {
	CreateEncashment(ctx context.Context, e *LeaveEncashment) error
	UpdateEncashment(ctx context.Context, e *LeaveEncashment) error
	GetEncashment(ctx context.Context, id string) (*LeaveEncashment, error)
	ListEncashments(ctx context.Context, filter EncashmentFilter, page Page) ([]LeaveEncashment, int, error)
}

type PolicyRepository interface {
	SavePolicy(ctx context.Context, p *LeavePolicy) error
	GetPolicy(ctx context.Context, id string) (*LeavePolicy, error)
	ListPolicies(ctx context.Context, leaveTypeID string) ([]LeavePolicy, error)
	// ActivePolicies returns policies of the leave type active on date,
	// ordered by EffectiveDate descending.
	ActivePolicies(ctx context.Context, leaveTypeID string, date time.Time) ([]LeavePolicy, error)
}

type YearConfigurationRepository interface {
	SaveYearConfiguration(ctx context.Context, y *LeaveYearConfiguration) error
	ListYearConfigurations(ctx context.Context) ([]LeaveYearConfiguration, error)
	// YearConfigurationsCovering returns configurations with start ≤ date ≤ end,
	// ordered by StartDate descending.
	YearConfigurationsCovering(ctx context.Context, date time.Time) ([]LeaveYearConfiguration, error)
	YearConfigurationByYear(ctx context.Context, year int) (*LeaveYearConfiguration, error)
}

type HolidayRepository interface {
	SaveHoliday(ctx context.Context, h *Holiday) error
	DeleteHoliday(ctx context.Context, id string) error
	ListHolidays(ctx context.Context, from, to time.Time) ([]Holiday, error)
}

type EmployeeRepository interface {
	SaveEmployee(ctx context.Context, e *Employee) error
	GetEmployee(ctx context.Context, id string) (*Employee, error)
	ListEmployees(ctx context.Context) ([]Employee, error)
}

// =============================================================================
// STORE & UNIT OF WORK
// =============================================================================

// Store aggregates every repository. A Store handed to a WithTx callback is
// bound to that transaction.
type Store interface {
	BalanceRepository
	RequestRepository
	EncashmentRepository
	PolicyRepository
	YearConfigurationRepository
	HolidayRepository
	EmployeeRepository
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
