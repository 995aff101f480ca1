/*
yearend.go - Balance lifecycle across leave years

PURPOSE:
  Opens balances eagerly at the start of a leave year (with carry-over from
  the closed previous year), closes them at year end, and moves single
  balances through REOPENED and FINALIZED.

BALANCE STATES:
  OPEN ──close──▶ CLOSED ──reopen──▶ REOPENED ──close──▶ CLOSED
                    └──finalize──▶ FINALIZED (terminal)

CARRY-OVER:
  carried_over = min(previous remaining, policy.CarryLimit), only when the
  policy allows carry-over (CarriedOverYears > 0) and the previous year's
  balance is CLOSED or FINALIZED.
*/
package leave

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

type YearEndService struct {
	Store    TxStore
	Ledger   *Ledger
	Years    *YearResolver
	Policies *PolicyResolver
	Clock    func() time.Time
	Logger   *slog.Logger
}

func NewYearEndService(store TxStore, ledger *Ledger, logger *slog.Logger) *YearEndService {
	return &YearEndService{
		Store:    store,
		Ledger:   ledger,
		Years:    &YearResolver{Logger: logger},
		Policies: &PolicyResolver{Logger: logger},
		Clock:    time.Now,
		Logger:   logger,
	}
}

func (ys *YearEndService) now() time.Time {
	if ys.Clock == nil {
		return time.Now().UTC()
	}
	return ys.Clock().UTC()
}

// OpenYearResult summarizes an OpenYear run.
type OpenYearResult struct {
	Year     int
	Opened   []LeaveBalance
	Existing int
	Skipped  int
}

// OpenYear creates the balance of every eligible employee for every leave type
// with a policy active on the year's first day. Existing balances are kept.
func (ys *YearEndService) OpenYear(ctx context.Context, year int) (*OpenYearResult, error) {
	result := &OpenYearResult{Year: year}
	err := ys.Store.WithTx(ctx, func(s Store) error {
		cfg, err := ys.Years.FindByYear(ctx, s, year)
		if err != nil {
			return err
		}
		policies, err := activePoliciesByLeaveType(ctx, s, cfg.StartDate)
		if err != nil {
			return err
		}
		employees, err := s.ListEmployees(ctx)
		if err != nil {
			return fmt.Errorf("failed to list employees: %w", err)
		}

		for _, emp := range employees {
			for _, policy := range policies {
				if CheckEligibility(&policy, &emp, cfg.StartDate) != nil {
					result.Skipped++
					continue
				}
				key := BalanceKey{EmployeeID: emp.ID, LeaveTypeID: policy.LeaveTypeID, Year: year}
				existing, err := s.FindBalance(ctx, key)
				if err != nil {
					return fmt.Errorf("failed to look up balance %+v: %w", key, err)
				}
				if existing != nil {
					result.Existing++
					continue
				}
				carried, err := ys.carryOver(ctx, s, key, &policy)
				if err != nil {
					return err
				}
				b, err := ys.Ledger.OpenBalance(ctx, s, key, &policy, carried)
				if err != nil {
					return err
				}
				result.Opened = append(result.Opened, *b)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger(ys.Logger).Info("leave year opened",
		"year", year, "opened", len(result.Opened), "existing", result.Existing, "skipped", result.Skipped)
	return result, nil
}

// CloseYear moves every balance of the year in one of statuses to CLOSED. With
// no statuses it closes OPEN and REOPENED balances.
func (ys *YearEndService) CloseYear(ctx context.Context, year int, statuses ...BalanceStatus) (int, error) {
	if len(statuses) == 0 {
		statuses = []BalanceStatus{BalanceOpen, BalanceReopened}
	}
	closed := 0
	err := ys.Store.WithTx(ctx, func(s Store) error {
		if _, err := ys.Years.FindByYear(ctx, s, year); err != nil {
			return err
		}
		balances, err := s.ListBalances(ctx, BalanceFilter{Year: year, Statuses: statuses})
		if err != nil {
			return fmt.Errorf("failed to list balances for %d: %w", year, err)
		}
		for i := range balances {
			b, err := ys.Ledger.Balance(ctx, s, balances[i].ID)
			if err != nil {
				return err
			}
			if err := ys.transition(ctx, s, b, BalanceClosed); err != nil {
				return err
			}
			closed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	logger(ys.Logger).Info("leave year closed", "year", year, "balances", closed)
	return closed, nil
}

// CloseEndedYears closes the OPEN balances of every year configuration that
// ended before asOf. REOPENED balances stay open for late corrections until
// an operator closes them. Used by the scheduler.
func (ys *YearEndService) CloseEndedYears(ctx context.Context, asOf time.Time) (map[int]int, error) {
	configs, err := ys.Store.ListYearConfigurations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list year configurations: %w", err)
	}
	out := make(map[int]int)
	for _, cfg := range configs {
		if !cfg.EndDate.Before(generic.Day(asOf)) {
			continue
		}
		n, err := ys.CloseYear(ctx, cfg.Year, BalanceOpen)
		if err != nil {
			return out, err
		}
		if n > 0 {
			out[cfg.Year] = n
		}
	}
	return out, nil
}

// Reopen moves a CLOSED balance to REOPENED so late corrections can be debited.
func (ys *YearEndService) Reopen(ctx context.Context, balanceID string) (*LeaveBalance, error) {
	return ys.mutate(ctx, balanceID, BalanceReopened)
}

// Close moves a single OPEN or REOPENED balance to CLOSED.
func (ys *YearEndService) Close(ctx context.Context, balanceID string) (*LeaveBalance, error) {
	return ys.mutate(ctx, balanceID, BalanceClosed)
}

// Finalize moves a CLOSED balance to FINALIZED. Nothing mutates it afterwards.
func (ys *YearEndService) Finalize(ctx context.Context, balanceID string) (*LeaveBalance, error) {
	return ys.mutate(ctx, balanceID, BalanceFinalized)
}

// Balance returns a balance or NotFoundError.
func (ys *YearEndService) Balance(ctx context.Context, balanceID string) (*LeaveBalance, error) {
	return ys.Ledger.Balance(ctx, ys.Store, balanceID)
}

// Balances lists balances matching the filter.
func (ys *YearEndService) Balances(ctx context.Context, filter BalanceFilter) ([]LeaveBalance, error) {
	return ys.Store.ListBalances(ctx, filter)
}

// Transactions returns the ledger of a balance in append order.
func (ys *YearEndService) Transactions(ctx context.Context, balanceID string) ([]LeaveTransaction, error) {
	if _, err := ys.Balance(ctx, balanceID); err != nil {
		return nil, err
	}
	return ys.Store.ListTransactions(ctx, balanceID)
}

// Reconcile checks the ledger/projection invariant for a balance.
func (ys *YearEndService) Reconcile(ctx context.Context, balanceID string) (*LeaveBalance, error) {
	return ys.Ledger.Reconcile(ctx, ys.Store, balanceID)
}

var balanceTransitions = map[BalanceStatus][]BalanceStatus{
	BalanceOpen:     {BalanceClosed},
	BalanceClosed:   {BalanceReopened, BalanceFinalized},
	BalanceReopened: {BalanceClosed},
}

func (ys *YearEndService) mutate(ctx context.Context, balanceID string, to BalanceStatus) (*LeaveBalance, error) {
	var out *LeaveBalance
	err := ys.Store.WithTx(ctx, func(s Store) error {
		b, err := ys.Ledger.Balance(ctx, s, balanceID)
		if err != nil {
			return err
		}
		if err := ys.transition(ctx, s, b, to); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger(ys.Logger).Info("leave balance transitioned", "balance_id", out.ID, "status", string(out.Status))
	return out, nil
}

func (ys *YearEndService) transition(ctx context.Context, s Store, b *LeaveBalance, to BalanceStatus) error {
	if b.Status == BalanceFinalized {
		return &BalanceFinalizedError{BalanceID: b.ID, Action: "move to " + string(to)}
	}
	allowed := false
	for _, next := range balanceTransitions[b.Status] {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return &InvalidStateTransitionError{Entity: "leave balance", ID: b.ID, From: string(b.Status), To: string(to)}
	}
	b.Status = to
	b.UpdatedAt = ys.now()
	if err := s.UpdateBalance(ctx, b); err != nil {
		return fmt.Errorf("failed to update balance %s: %w", b.ID, err)
	}
	return nil
}

func (ys *YearEndService) carryOver(ctx context.Context, s Store, key BalanceKey, policy *LeavePolicy) (decimal.Decimal, error) {
	if policy.CarriedOverYears <= 0 || !policy.CarryLimit.IsPositive() {
		return decimal.Zero, nil
	}
	prevKey := key
	prevKey.Year--
	prev, err := s.FindBalance(ctx, prevKey)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to look up balance %+v: %w", prevKey, err)
	}
	if prev == nil || (prev.Status != BalanceClosed && prev.Status != BalanceFinalized) {
		return decimal.Zero, nil
	}
	remaining := prev.Remaining()
	if !remaining.IsPositive() {
		return decimal.Zero, nil
	}
	return generic.MinDays(remaining, policy.CarryLimit), nil
}

// activePoliciesByLeaveType returns, per leave type, the policy active on date.
func activePoliciesByLeaveType(ctx context.Context, s Store, date time.Time) ([]LeavePolicy, error) {
	all, err := s.ListPolicies(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	latest := make(map[string]LeavePolicy)
	for _, p := range all {
		if !p.ActiveOn(date) {
			continue
		}
		if cur, ok := latest[p.LeaveTypeID]; !ok || p.EffectiveDate.After(cur.EffectiveDate) {
			latest[p.LeaveTypeID] = p
		}
	}
	out := make([]LeavePolicy, 0, len(latest))
	for _, p := range latest {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LeaveTypeID < out[j].LeaveTypeID })
	return out, nil
}
