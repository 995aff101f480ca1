package leave

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// LEAVE YEAR RESOLVER
// =============================================================================

// YearResolver selects the leave-year configuration for a date.
//
// Overlapping configurations are a data-integrity problem. The latest
// StartDate wins and the overlap is logged.
type YearResolver struct {
	Logger *slog.Logger
}

// FindActiveForDate returns the configuration with start ≤ date ≤ end.
func (yr *YearResolver) FindActiveForDate(ctx context.Context, s Store, date time.Time) (*LeaveYearConfiguration, error) {
	date = generic.Day(date)
	configs, err := s.YearConfigurationsCovering(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load year configurations: %w", err)
	}
	if len(configs) == 0 {
		return nil, notFound("leave year configuration", "active on "+generic.FormatDate(date))
	}
	if len(configs) > 1 {
		ids := make([]string, len(configs))
		for i, c := range configs {
			ids[i] = c.ID
		}
		logger(yr.Logger).Warn("overlapping leave year configurations",
			"date", generic.FormatDate(date), "matches", ids, "chosen", configs[0].ID)
	}
	chosen := configs[0]
	return &chosen, nil
}

// FindByYear returns the configuration labelled with the given year.
func (yr *YearResolver) FindByYear(ctx context.Context, s Store, year int) (*LeaveYearConfiguration, error) {
	cfg, err := s.YearConfigurationByYear(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("failed to load year configuration %d: %w", year, err)
	}
	if cfg == nil {
		return nil, notFound("leave year configuration", fmt.Sprintf("year %d", year))
	}
	return cfg, nil
}

// =============================================================================
// LEAVE POLICY RESOLVER
// =============================================================================

// PolicyResolver finds the active policy for a leave type and checks eligibility.
type PolicyResolver struct {
	Logger *slog.Logger
}

// GetActivePolicy returns the policy with effective ≤ date < expiry.
// Ties between overlapping policies go to the latest EffectiveDate.
func (pr *PolicyResolver) GetActivePolicy(ctx context.Context, s Store, leaveTypeID string, date time.Time) (*LeavePolicy, error) {
	date = generic.Day(date)
	policies, err := s.ActivePolicies(ctx, leaveTypeID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load policies for %s: %w", leaveTypeID, err)
	}
	if len(policies) == 0 {
		return nil, notFound("leave policy", fmt.Sprintf("%s active on %s", leaveTypeID, generic.FormatDate(date)))
	}
	if len(policies) > 1 {
		logger(pr.Logger).Warn("overlapping leave policies",
			"leave_type_id", leaveTypeID, "date", generic.FormatDate(date),
			"count", len(policies), "chosen", policies[0].ID)
	}
	chosen := policies[0]
	return &chosen, nil
}

// CheckEligibility validates the employee against the policy on asOf.
// Empty allow-lists impose no restriction.
func CheckEligibility(p *LeavePolicy, e *Employee, asOf time.Time) error {
	fail := func(rule, detail string) error {
		return &PolicyIneligibleError{
			EmployeeID:  e.ID,
			LeaveTypeID: p.LeaveTypeID,
			PolicyID:    p.ID,
			Rule:        rule,
			Detail:      detail,
		}
	}

	if len(p.AllowedEmploymentTypes) > 0 && !slices.Contains(p.AllowedEmploymentTypes, e.EmploymentType) {
		return fail("employment_type", fmt.Sprintf("%q not in %v", e.EmploymentType, p.AllowedEmploymentTypes))
	}
	if len(p.AllowedEmployeeStatuses) > 0 && !slices.Contains(p.AllowedEmployeeStatuses, e.EmployeeStatus) {
		return fail("employee_status", fmt.Sprintf("%q not in %v", e.EmployeeStatus, p.AllowedEmployeeStatuses))
	}
	if p.MinimumServiceMonths > 0 {
		served := generic.CompletedMonths(e.HireDate, asOf)
		if served < p.MinimumServiceMonths {
			return fail("minimum_service", fmt.Sprintf("%d months served, %d required", served, p.MinimumServiceMonths))
		}
	}
	return nil
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
