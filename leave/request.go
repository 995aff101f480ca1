/*
request.go - Leave request state machine

PURPOSE:
  Drives a LeaveRequest through its lifecycle and orchestrates the ledger
  side effects of each transition.

STATE MACHINE:
  ┌──────────┐  approve (debit)   ┌──────────┐
  │ PENDING  │ ─────────────────▶ │ APPROVED │
  └──────────┘                    └──────────┘
    │  │  │ update (recompute)         │ cancel (credit)
    │  │  └──────▶ PENDING             ▼
    │  │ cancel (no ledger effect) ┌───────────┐
    │  └─────────────────────────▶ │ CANCELLED │
    │ reject                       └───────────┘
    ▼
  ┌──────────┐
  │ REJECTED │
  └──────────┘

  Anything else fails with InvalidStateTransitionError. Approve, reject and
  cancel stamp ActedBy/ActedAt; create and update do not.

TRANSACTIONS:
  Every public method is one TxStore.WithTx unit of work covering the
  request row, the balance row and the ledger row it touches.

SEE ALSO:
  - daycount.go: TotalDays computation
  - resolver.go: Policy/year resolution and eligibility
  - ledger.go: Debit/Credit
*/
package leave

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// COMMANDS
// =============================================================================

type CreateRequestCommand struct {
	EmployeeID  string
	LeaveTypeID string
	StartDate   time.Time
	EndDate     time.Time
	IsHalfDay   bool
	Reason      string
	Remarks     string
}

type UpdateRequestCommand struct {
	StartDate time.Time
	EndDate   time.Time
	IsHalfDay bool
	Reason    string
}

// =============================================================================
// REQUEST SERVICE
// =============================================================================

type RequestService struct {
	Store    TxStore
	Ledger   *Ledger
	Years    *YearResolver
	Policies *PolicyResolver
	Clock    func() time.Time
	Logger   *slog.Logger
}

// NewRequestService wires a service with resolvers and a ledger sharing logger.
func NewRequestService(store TxStore, ledger *Ledger, logger *slog.Logger) *RequestService {
	return &RequestService{
		Store:    store,
		Ledger:   ledger,
		Years:    &YearResolver{Logger: logger},
		Policies: &PolicyResolver{Logger: logger},
		Clock:    time.Now,
		Logger:   logger,
	}
}

func (rs *RequestService) now() time.Time {
	if rs.Clock == nil {
		return time.Now().UTC()
	}
	return rs.Clock().UTC()
}

// Create validates the range and eligibility, computes TotalDays and stores a
// PENDING request. No ledger effect.
func (rs *RequestService) Create(ctx context.Context, cmd CreateRequestCommand) (*LeaveRequest, error) {
	var created *LeaveRequest
	err := rs.Store.WithTx(ctx, func(s Store) error {
		employee, err := loadEmployee(ctx, s, cmd.EmployeeID)
		if err != nil {
			return err
		}
		total, err := rs.quote(ctx, s, employee, cmd.LeaveTypeID, cmd.StartDate, cmd.EndDate, cmd.IsHalfDay)
		if err != nil {
			return err
		}

		now := rs.now()
		req := &LeaveRequest{
			ID:          generic.NewID("req"),
			EmployeeID:  cmd.EmployeeID,
			LeaveTypeID: cmd.LeaveTypeID,
			StartDate:   generic.Day(cmd.StartDate),
			EndDate:     generic.Day(cmd.EndDate),
			IsHalfDay:   cmd.IsHalfDay,
			TotalDays:   total,
			Status:      RequestPending,
			Reason:      strings.TrimSpace(cmd.Reason),
			Remarks:     strings.TrimSpace(cmd.Remarks),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.CreateRequest(ctx, req); err != nil {
			return fmt.Errorf("failed to create leave request: %w", err)
		}
		created = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger(rs.Logger).Info("leave request created",
		"request_id", created.ID, "employee_id", created.EmployeeID,
		"leave_type_id", created.LeaveTypeID, "total_days", created.TotalDays.String())
	return created, nil
}

// Update changes dates/reason of a PENDING request and recomputes TotalDays.
func (rs *RequestService) Update(ctx context.Context, id string, cmd UpdateRequestCommand) (*LeaveRequest, error) {
	return rs.mutate(ctx, id, func(s Store, req *LeaveRequest) error {
		if req.Status != RequestPending {
			return transitionError(req, RequestPending)
		}
		employee, err := loadEmployee(ctx, s, req.EmployeeID)
		if err != nil {
			return err
		}
		total, err := rs.quote(ctx, s, employee, req.LeaveTypeID, cmd.StartDate, cmd.EndDate, cmd.IsHalfDay)
		if err != nil {
			return err
		}
		req.StartDate = generic.Day(cmd.StartDate)
		req.EndDate = generic.Day(cmd.EndDate)
		req.IsHalfDay = cmd.IsHalfDay
		req.TotalDays = total
		req.Reason = strings.TrimSpace(cmd.Reason)
		req.UpdatedAt = rs.now()
		return nil
	})
}

// Approve moves PENDING → APPROVED and debits TotalDays from the balance of
// the leave year that contains the start date.
func (rs *RequestService) Approve(ctx context.Context, id string, actor Actor) (*LeaveRequest, error) {
	req, err := rs.mutate(ctx, id, func(s Store, req *LeaveRequest) error {
		if req.Status != RequestPending {
			return transitionError(req, RequestApproved)
		}
		balance, err := rs.balanceFor(ctx, s, req)
		if err != nil {
			return err
		}
		if _, err := rs.Ledger.Debit(ctx, s, balance.ID, req.TotalDays, RequestRef(req.ID)); err != nil {
			return err
		}
		req.Status = RequestApproved
		req.BalanceID = balance.ID
		req.stamp(actor, rs.now())
		return nil
	})
	if err == nil {
		rs.logTransition(req, actor)
	}
	return req, err
}

// Reject moves PENDING → REJECTED. No ledger effect.
func (rs *RequestService) Reject(ctx context.Context, id string, actor Actor, remarks string) (*LeaveRequest, error) {
	req, err := rs.mutate(ctx, id, func(s Store, req *LeaveRequest) error {
		if req.Status != RequestPending {
			return transitionError(req, RequestRejected)
		}
		req.Status = RequestRejected
		if remarks = strings.TrimSpace(remarks); remarks != "" {
			req.Remarks = remarks
		}
		req.stamp(actor, rs.now())
		return nil
	})
	if err == nil {
		rs.logTransition(req, actor)
	}
	return req, err
}

// Cancel moves PENDING or APPROVED → CANCELLED. Cancelling an approved request
// credits TotalDays back to the balance that was debited.
func (rs *RequestService) Cancel(ctx context.Context, id string, actor Actor, remarks string) (*LeaveRequest, error) {
	req, err := rs.mutate(ctx, id, func(s Store, req *LeaveRequest) error {
		switch req.Status {
		case RequestPending:
		case RequestApproved:
			if _, err := rs.Ledger.Credit(ctx, s, req.BalanceID, req.TotalDays, RequestRef(req.ID)); err != nil {
				return err
			}
		default:
			return transitionError(req, RequestCancelled)
		}
		req.Status = RequestCancelled
		if remarks = strings.TrimSpace(remarks); remarks != "" {
			req.Remarks = remarks
		}
		req.stamp(actor, rs.now())
		return nil
	})
	if err == nil {
		rs.logTransition(req, actor)
	}
	return req, err
}

// UpdateRemarks is the administrative edit allowed in every state. It never
// touches Status or TotalDays.
func (rs *RequestService) UpdateRemarks(ctx context.Context, id, remarks string) (*LeaveRequest, error) {
	return rs.mutate(ctx, id, func(_ Store, req *LeaveRequest) error {
		req.Remarks = strings.TrimSpace(remarks)
		req.UpdatedAt = rs.now()
		return nil
	})
}

// Get returns a request or NotFoundError.
func (rs *RequestService) Get(ctx context.Context, id string) (*LeaveRequest, error) {
	return loadRequest(ctx, rs.Store, id)
}

// List returns a page of requests and the total match count.
func (rs *RequestService) List(ctx context.Context, filter RequestFilter, page Page) ([]LeaveRequest, int, error) {
	return rs.Store.ListRequests(ctx, filter, page.Normalize())
}

// Quote computes TotalDays for a prospective request without storing anything.
func (rs *RequestService) Quote(ctx context.Context, cmd CreateRequestCommand) (decimal.Decimal, error) {
	employee, err := loadEmployee(ctx, rs.Store, cmd.EmployeeID)
	if err != nil {
		return decimal.Zero, err
	}
	return rs.quote(ctx, rs.Store, employee, cmd.LeaveTypeID, cmd.StartDate, cmd.EndDate, cmd.IsHalfDay)
}

// =============================================================================
// INTERNALS
// =============================================================================

// quote runs the create guard: range, active year, active policy, eligibility,
// holidays, day count.
func (rs *RequestService) quote(ctx context.Context, s Store, employee *Employee, leaveTypeID string, start, end time.Time, halfDay bool) (decimal.Decimal, error) {
	start, end = generic.Day(start), generic.Day(end)
	if end.Before(start) {
		return decimal.Zero, &InvalidRangeError{
			Start: generic.FormatDate(start), End: generic.FormatDate(end), Reason: "end date before start date",
		}
	}
	if _, err := rs.Years.FindActiveForDate(ctx, s, start); err != nil {
		return decimal.Zero, err
	}
	policy, err := rs.Policies.GetActivePolicy(ctx, s, leaveTypeID, start)
	if err != nil {
		return decimal.Zero, err
	}
	if err := CheckEligibility(policy, employee, start); err != nil {
		return decimal.Zero, err
	}

	holidays, err := s.ListHolidays(ctx, start, end)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load holidays: %w", err)
	}
	dates := make([]time.Time, len(holidays))
	for i, h := range holidays {
		dates[i] = h.Date
	}

	total, err := CountDays(start, end, halfDay, ExcludedWeekdaySet(policy), generic.NewDateSet(dates...))
	if err != nil {
		return decimal.Zero, err
	}
	if !total.IsPositive() {
		return decimal.Zero, &InvalidRangeError{
			Start: generic.FormatDate(start), End: generic.FormatDate(end), Reason: "range contains no working days",
		}
	}
	return total, nil
}

// balanceFor gets or lazily creates the balance the request debits.
func (rs *RequestService) balanceFor(ctx context.Context, s Store, req *LeaveRequest) (*LeaveBalance, error) {
	year, err := rs.Years.FindActiveForDate(ctx, s, req.StartDate)
	if err != nil {
		return nil, err
	}
	policy, err := rs.Policies.GetActivePolicy(ctx, s, req.LeaveTypeID, req.StartDate)
	if err != nil {
		return nil, err
	}
	key := BalanceKey{EmployeeID: req.EmployeeID, LeaveTypeID: req.LeaveTypeID, Year: year.Year}
	return rs.Ledger.OpenBalance(ctx, s, key, policy, decimal.Zero)
}

// mutate loads the request inside a unit of work, applies fn and persists it.
func (rs *RequestService) mutate(ctx context.Context, id string, fn func(Store, *LeaveRequest) error) (*LeaveRequest, error) {
	var out *LeaveRequest
	err := rs.Store.WithTx(ctx, func(s Store) error {
		req, err := loadRequest(ctx, s, id)
		if err != nil {
			return err
		}
		if err := fn(s, req); err != nil {
			return err
		}
		if err := s.UpdateRequest(ctx, req); err != nil {
			return fmt.Errorf("failed to update leave request %s: %w", id, err)
		}
		out = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (rs *RequestService) logTransition(req *LeaveRequest, actor Actor) {
	logger(rs.Logger).Info("leave request transitioned",
		"request_id", req.ID, "status", string(req.Status),
		"acted_by", actor.UserID, "total_days", req.TotalDays.String())
}

func transitionError(req *LeaveRequest, to RequestStatus) error {
	return &InvalidStateTransitionError{Entity: "leave request", ID: req.ID, From: string(req.Status), To: string(to)}
}

func loadRequest(ctx context.Context, s Store, id string) (*LeaveRequest, error) {
	req, err := s.GetRequest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load leave request %s: %w", id, err)
	}
	if req == nil {
		return nil, notFound("leave request", id)
	}
	return req, nil
}

func loadEmployee(ctx context.Context, s Store, id string) (*Employee, error) {
	e, err := s.GetEmployee(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load employee %s: %w", id, err)
	}
	if e == nil {
		return nil, notFound("employee", id)
	}
	return e, nil
}
