package leave_test

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

func TestYearResolver_OverlapPicksLatestStartAndWarns(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SaveYearConfiguration(f.ctx, &leave.LeaveYearConfiguration{
		ID: "ly-fiscal", Label: "Fiscal", Year: 2027,
		StartDate: generic.NewDate(2026, time.February, 1),
		EndDate:   generic.NewDate(2027, time.January, 31),
	}))

	var buf bytes.Buffer
	resolver := &leave.YearResolver{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	cfg, err := resolver.FindActiveForDate(f.ctx, f.store, monday)
	require.NoError(t, err)
	assert.Equal(t, "ly-fiscal", cfg.ID)
	assert.Contains(t, buf.String(), "overlapping leave year configurations")

	cfg, err = resolver.FindActiveForDate(f.ctx, f.store, generic.NewDate(2026, time.January, 15))
	require.NoError(t, err)
	assert.Equal(t, "ly-2026", cfg.ID)
}

func TestYearResolver_NotFound(t *testing.T) {
	f := newFixture(t)
	resolver := &leave.YearResolver{}

	_, err := resolver.FindActiveForDate(f.ctx, f.store, generic.NewDate(2024, time.June, 1))
	var nf *leave.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "leave year configuration", nf.Entity)

	_, err = resolver.FindByYear(f.ctx, f.store, 2024)
	assert.True(t, leave.IsNotFound(err))
}

func TestPolicyResolver_ExpiryIsExclusive(t *testing.T) {
	f := newFixture(t)
	expiry := generic.NewDate(2026, time.June, 1)
	f.policy.ExpiryDate = &expiry
	require.NoError(t, f.store.SavePolicy(f.ctx, &f.policy))
	resolver := &leave.PolicyResolver{Logger: quietLogger()}

	p, err := resolver.GetActivePolicy(f.ctx, f.store, "annual", expiry.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Equal(t, f.policy.ID, p.ID)

	_, err = resolver.GetActivePolicy(f.ctx, f.store, "annual", expiry)
	assert.True(t, leave.IsNotFound(err))

	_, err = resolver.GetActivePolicy(f.ctx, f.store, "annual", generic.NewDate(2025, time.December, 31))
	assert.True(t, leave.IsNotFound(err), "before effective date")
}

func TestCheckEligibility(t *testing.T) {
	asOf := generic.NewDate(2026, time.March, 2)
	policy := &leave.LeavePolicy{
		ID:                      "pol-1",
		LeaveTypeID:             "annual",
		MinimumServiceMonths:    6,
		AllowedEmploymentTypes:  []string{"FULL_TIME", "PART_TIME"},
		AllowedEmployeeStatuses: []string{"ACTIVE"},
	}

	tests := []struct {
		name     string
		employee leave.Employee
		rule     string
	}{
		{"eligible", leave.Employee{ID: "e", HireDate: generic.NewDate(2025, time.September, 2), EmploymentType: "FULL_TIME", EmployeeStatus: "ACTIVE"}, ""},
		{"short tenure", leave.Employee{ID: "e", HireDate: generic.NewDate(2025, time.September, 3), EmploymentType: "FULL_TIME", EmployeeStatus: "ACTIVE"}, "minimum_service"},
		{"wrong type", leave.Employee{ID: "e", HireDate: generic.NewDate(2020, time.January, 1), EmploymentType: "INTERN", EmployeeStatus: "ACTIVE"}, "employment_type"},
		{"wrong status", leave.Employee{ID: "e", HireDate: generic.NewDate(2020, time.January, 1), EmploymentType: "PART_TIME", EmployeeStatus: "ON_NOTICE"}, "employee_status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := leave.CheckEligibility(policy, &tt.employee, asOf)
			if tt.rule == "" {
				assert.NoError(t, err)
				return
			}
			var inel *leave.PolicyIneligibleError
			require.ErrorAs(t, err, &inel)
			assert.Equal(t, tt.rule, inel.Rule)
			assert.ErrorIs(t, err, leave.ErrPolicyIneligible)
		})
	}
}
