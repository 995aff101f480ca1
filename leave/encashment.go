/*
encashment.go - Converts unused balance into a payable record

STATE MACHINE:
  PENDING ──markAsPaid (debit)──▶ PAID ──cancel (credit)──▶ CANCELLED
     └──────────cancel (no ledger effect)─────────────────▶ CANCELLED

  Creating an encashment reserves nothing: Remaining only drops when the
  payout is marked PAID. Cancelling a CANCELLED record is an
  InvalidStateTransitionError.

ENCASH LIMIT:
  The policy limit caps the whole year: Encashed plus every PENDING request
  on the balance plus the new one. MarkAsPaid checks Encashed plus the
  payout again, since the policy may have changed in between.

  Day quantities carry at most two decimal places so every store keeps them
  exactly.
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

type CreateEncashmentCommand struct {
	EmployeeID    string
	LeaveTypeID   string
	Year          int
	DaysRequested decimal.Decimal
	Remarks       string
}

type EncashmentService struct {
	Store    TxStore
	Ledger   *Ledger
	Years    *YearResolver
	Policies *PolicyResolver
	Clock    func() time.Time
	Logger   *slog.Logger
}

// maxDayPlaces is the decimal precision of stored day quantities.
const maxDayPlaces = 2

func NewEncashmentService(store TxStore, ledger *Ledger, logger *slog.Logger) *EncashmentService {
	return &EncashmentService{
		Store:    store,
		Ledger:   ledger,
		Years:    &YearResolver{Logger: logger},
		Policies: &PolicyResolver{Logger: logger},
		Clock:    time.Now,
		Logger:   logger,
	}
}

func (es *EncashmentService) now() time.Time {
	if es.Clock == nil {
		return time.Now().UTC()
	}
	return es.Clock().UTC()
}

// Create validates the requested days against the policy encash limit and the
// balance remaining, then stores a PENDING encashment.
func (es *EncashmentService) Create(ctx context.Context, cmd CreateEncashmentCommand) (*LeaveEncashment, error) {
	if !cmd.DaysRequested.IsPositive() {
		return nil, &InvalidAmountError{Field: "days_requested", Amount: cmd.DaysRequested}
	}
	if !cmd.DaysRequested.Equal(cmd.DaysRequested.Round(maxDayPlaces)) {
		return nil, &InvalidAmountError{Field: "days_requested", Amount: cmd.DaysRequested, Reason: "must have at most 2 decimal places"}
	}

	var created *LeaveEncashment
	err := es.Store.WithTx(ctx, func(s Store) error {
		if _, err := loadEmployee(ctx, s, cmd.EmployeeID); err != nil {
			return err
		}
		year, err := es.Years.FindByYear(ctx, s, cmd.Year)
		if err != nil {
			return err
		}
		policy, err := es.Policies.GetActivePolicy(ctx, s, cmd.LeaveTypeID, policyDateFor(year, es.now()))
		if err != nil {
			return err
		}
		key := BalanceKey{EmployeeID: cmd.EmployeeID, LeaveTypeID: cmd.LeaveTypeID, Year: cmd.Year}
		balance, err := es.Ledger.OpenBalance(ctx, s, key, policy, decimal.Zero)
		if err != nil {
			return err
		}
		if !balance.Status.AcceptsDebits() {
			return &BalanceNotOpenError{BalanceID: balance.ID, Status: balance.Status, Action: "encash"}
		}
		pending, err := pendingEncashment(ctx, s, balance)
		if err != nil {
			return err
		}
		committed := balance.Encashed.Add(pending)
		if committed.Add(cmd.DaysRequested).GreaterThan(policy.EncashLimit) {
			return &EncashLimitExceededError{
				BalanceID: balance.ID, Requested: cmd.DaysRequested,
				Limit: generic.MaxDays(policy.EncashLimit.Sub(committed), decimal.Zero), Source: "policy",
			}
		}
		if cmd.DaysRequested.GreaterThan(balance.Remaining()) {
			return &EncashLimitExceededError{BalanceID: balance.ID, Requested: cmd.DaysRequested, Limit: balance.Remaining(), Source: "balance"}
		}

		now := es.now()
		enc := &LeaveEncashment{
			ID:            generic.NewID("enc"),
			EmployeeID:    cmd.EmployeeID,
			LeaveTypeID:   cmd.LeaveTypeID,
			Year:          cmd.Year,
			BalanceID:     balance.ID,
			DaysRequested: cmd.DaysRequested,
			Status:        EncashmentPending,
			Remarks:       strings.TrimSpace(cmd.Remarks),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.CreateEncashment(ctx, enc); err != nil {
			return fmt.Errorf("failed to create encashment: %w", err)
		}
		created = enc
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger(es.Logger).Info("leave encashment created",
		"encashment_id", created.ID, "balance_id", created.BalanceID, "days", created.DaysRequested.String())
	return created, nil
}

// MarkAsPaid moves PENDING → PAID and debits the balance.
func (es *EncashmentService) MarkAsPaid(ctx context.Context, id string, actor Actor) (*LeaveEncashment, error) {
	return es.mutate(ctx, id, actor, func(s Store, enc *LeaveEncashment) error {
		if enc.Status != EncashmentPending {
			return encashTransitionError(enc, EncashmentPaid)
		}
		if err := es.checkPolicyLimit(ctx, s, enc); err != nil {
			return err
		}
		if _, err := es.Ledger.Debit(ctx, s, enc.BalanceID, enc.DaysRequested, EncashmentRef(enc.ID)); err != nil {
			return err
		}
		now := es.now()
		enc.Status = EncashmentPaid
		enc.PaidAt = &now
		return nil
	})
}

// Cancel moves PENDING or PAID → CANCELLED; a PAID record is credited back.
func (es *EncashmentService) Cancel(ctx context.Context, id string, actor Actor) (*LeaveEncashment, error) {
	return es.mutate(ctx, id, actor, func(s Store, enc *LeaveEncashment) error {
		switch enc.Status {
		case EncashmentPending:
		case EncashmentPaid:
			if _, err := es.Ledger.Credit(ctx, s, enc.BalanceID, enc.DaysRequested, EncashmentRef(enc.ID)); err != nil {
				return err
			}
		default:
			return encashTransitionError(enc, EncashmentCancelled)
		}
		enc.Status = EncashmentCancelled
		return nil
	})
}

func (es *EncashmentService) Get(ctx context.Context, id string) (*LeaveEncashment, error) {
	return loadEncashment(ctx, es.Store, id)
}

func (es *EncashmentService) List(ctx context.Context, filter EncashmentFilter, page Page) ([]LeaveEncashment, int, error) {
	return es.Store.ListEncashments(ctx, filter, page.Normalize())
}

func (es *EncashmentService) mutate(ctx context.Context, id string, actor Actor, fn func(Store, *LeaveEncashment) error) (*LeaveEncashment, error) {
	var out *LeaveEncashment
	err := es.Store.WithTx(ctx, func(s Store) error {
		enc, err := loadEncashment(ctx, s, id)
		if err != nil {
			return err
		}
		if err := fn(s, enc); err != nil {
			return err
		}
		enc.stamp(actor, es.now())
		if err := s.UpdateEncashment(ctx, enc); err != nil {
			return fmt.Errorf("failed to update encashment %s: %w", id, err)
		}
		out = enc
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger(es.Logger).Info("leave encashment transitioned",
		"encashment_id", out.ID, "status", string(out.Status), "acted_by", actor.UserID)
	return out, nil
}

// checkPolicyLimit refuses a payout that would push the balance's encashed
// total past the policy limit.
func (es *EncashmentService) checkPolicyLimit(ctx context.Context, s Store, enc *LeaveEncashment) error {
	balance, err := es.Ledger.Balance(ctx, s, enc.BalanceID)
	if err != nil {
		return err
	}
	year, err := es.Years.FindByYear(ctx, s, enc.Year)
	if err != nil {
		return err
	}
	policy, err := es.Policies.GetActivePolicy(ctx, s, enc.LeaveTypeID, policyDateFor(year, es.now()))
	if err != nil {
		return err
	}
	if balance.Encashed.Add(enc.DaysRequested).GreaterThan(policy.EncashLimit) {
		return &EncashLimitExceededError{
			BalanceID: balance.ID, Requested: enc.DaysRequested,
			Limit: generic.MaxDays(policy.EncashLimit.Sub(balance.Encashed), decimal.Zero), Source: "policy",
		}
	}
	return nil
}

// pendingEncashment sums the days of PENDING encashments against a balance.
func pendingEncashment(ctx context.Context, s Store, b *LeaveBalance) (decimal.Decimal, error) {
	filter := EncashmentFilter{EmployeeID: b.EmployeeID, Year: b.Year, Status: EncashmentPending}
	total := decimal.Zero
	page := Page{Limit: 500}
	for {
		list, count, err := s.ListEncashments(ctx, filter, page)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to list pending encashments: %w", err)
		}
		for _, e := range list {
			if e.BalanceID == b.ID {
				total = total.Add(e.DaysRequested)
			}
		}
		page.Offset += len(list)
		if len(list) == 0 || page.Offset >= count {
			return total, nil
		}
	}
}

// policyDateFor picks the date whose policy governs an encashment for the
// year: today when it falls inside the year, otherwise the nearest bound.
func policyDateFor(y *LeaveYearConfiguration, now time.Time) time.Time {
	d := generic.Day(now)
	if d.Before(y.StartDate) {
		return y.StartDate
	}
	if d.After(y.EndDate) {
		return y.EndDate
	}
	return d
}

func encashTransitionError(e *LeaveEncashment, to EncashmentStatus) error {
	return &InvalidStateTransitionError{Entity: "leave encashment", ID: e.ID, From: string(e.Status), To: string(to)}
}

func loadEncashment(ctx context.Context, s Store, id string) (*LeaveEncashment, error) {
	enc, err := s.GetEncashment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load encashment %s: %w", id, err)
	}
	if enc == nil {
		return nil, notFound("leave encashment", id)
	}
	return enc, nil
}
