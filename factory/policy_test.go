package factory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave/store"
)

func TestParsePolicy(t *testing.T) {
	// GIVEN: A policy document mixing number and string quantities
	doc := `{
		"id": "annual-2026",
		"leave_type_id": "annual",
		"annual_entitlement": 15,
		"carry_limit": "5",
		"encash_limit": "7.5",
		"carried_over_years": 1,
		"effective_date": "2026-01-01",
		"expiry_date": "2027-01-01",
		"eligibility": {"minimum_service_months": 3, "employment_types": ["FULL_TIME"]},
		"excluded_weekdays": ["Sunday", "sat"]
	}`

	// WHEN: Parsing
	p, err := NewPolicyFactory().ParsePolicy(doc)

	// THEN: Every field is populated
	require.NoError(t, err)
	assert.Equal(t, "annual", p.LeaveTypeID)
	assert.True(t, generic.NewDays(15).Equal(p.AnnualEntitlement))
	assert.True(t, generic.NewDays(5).Equal(p.CarryLimit))
	assert.True(t, generic.NewDays(7.5).Equal(p.EncashLimit))
	assert.Equal(t, 1, p.CarriedOverYears)
	assert.Equal(t, generic.NewDate(2026, time.January, 1), p.EffectiveDate)
	require.NotNil(t, p.ExpiryDate)
	assert.Equal(t, generic.NewDate(2027, time.January, 1), *p.ExpiryDate)
	assert.Equal(t, 3, p.MinimumServiceMonths)
	assert.Equal(t, []string{"FULL_TIME"}, p.AllowedEmploymentTypes)
	assert.Empty(t, p.AllowedEmployeeStatuses)
	assert.Equal(t, []time.Weekday{time.Sunday, time.Saturday}, p.ExcludedWeekdays)
}

func TestParsePolicyRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"malformed", `{"id": `},
		{"missing id", `{"leave_type_id": "annual", "effective_date": "2026-01-01"}`},
		{"missing leave type", `{"id": "p", "effective_date": "2026-01-01"}`},
		{"negative entitlement", `{"id": "p", "leave_type_id": "annual", "annual_entitlement": -1, "effective_date": "2026-01-01"}`},
		{"negative carry years", `{"id": "p", "leave_type_id": "annual", "carried_over_years": -1, "effective_date": "2026-01-01"}`},
		{"bad effective date", `{"id": "p", "leave_type_id": "annual", "effective_date": "01/01/2026"}`},
		{"expiry not after effective", `{"id": "p", "leave_type_id": "annual", "effective_date": "2026-01-01", "expiry_date": "2026-01-01"}`},
		{"unknown weekday", `{"id": "p", "leave_type_id": "annual", "effective_date": "2026-01-01", "excluded_weekdays": ["funday"]}`},
		{"weekday out of range", `{"id": "p", "leave_type_id": "annual", "effective_date": "2026-01-01", "excluded_weekdays": ["7"]}`},
	}

	f := NewPolicyFactory()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ParsePolicy(tt.doc)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidDocument)
		})
	}
}

func TestPolicyRoundTripThroughJSON(t *testing.T) {
	// GIVEN: A preset, parsed into a policy
	f := NewPolicyFactory()
	p, err := f.FromJSON(AnnualLeaveJSON("annual-2026", 2026, 15, 5, 10))
	require.NoError(t, err)

	// WHEN: Rendering it back and re-parsing the encoded bytes
	raw, err := json.Marshal(f.ToJSON(p))
	require.NoError(t, err)
	again, err := f.ParsePolicy(string(raw))
	require.NoError(t, err)

	// THEN: Nothing is lost
	assert.Equal(t, p.ExcludedWeekdays, again.ExcludedWeekdays)
	assert.True(t, p.EncashLimit.Equal(again.EncashLimit))
	assert.Equal(t, p.EffectiveDate, again.EffectiveDate)
	assert.Nil(t, again.ExpiryDate)
}

func TestParseYear(t *testing.T) {
	f := NewPolicyFactory()

	y, err := f.ParseYear(`{"year": 2026, "start_date": "2026-04-01", "end_date": "2027-03-31"}`)
	require.NoError(t, err)
	assert.Equal(t, "ly-2026", y.ID)
	assert.Equal(t, "2026", y.Label)
	assert.True(t, y.Contains(generic.NewDate(2027, time.March, 31)))

	_, err = f.ParseYear(`{"year": 2026, "start_date": "2026-04-01", "end_date": "2026-03-31"}`)
	assert.ErrorIs(t, err, ErrInvalidDocument)

	_, err = f.ParseYear(`{"start_date": "2026-04-01", "end_date": "2027-03-31"}`)
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestCatalogSave(t *testing.T) {
	// GIVEN: A seed document with one of everything
	f := NewPolicyFactory()
	doc, err := json.Marshal(CatalogJSON{
		Employees: []EmployeeJSON{{ID: "emp-1", Name: "Ada", HireDate: "2020-06-01", EmploymentType: "FULL_TIME", EmployeeStatus: "ACTIVE"}},
		Policies:  []PolicyJSON{AnnualLeaveJSON("annual-2026", 2026, 15, 5, 10), SickLeaveJSON("sick-2026", 2026, 10)},
		Years:     []YearJSON{CalendarYearJSON(2026)},
		Holidays:  []HolidayJSON{{Date: "2026-12-25", Description: "Christmas"}},
	})
	require.NoError(t, err)

	catalog, err := f.ParseCatalog(doc)
	require.NoError(t, err)

	// WHEN: Saving it into a store
	ctx := context.Background()
	s := store.NewMemory()
	require.NoError(t, catalog.Save(ctx, s))

	// THEN: Each record is retrievable
	e, err := s.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, generic.NewDate(2020, time.June, 1), e.HireDate)

	policies, err := s.ListPolicies(ctx, "")
	require.NoError(t, err)
	assert.Len(t, policies, 2)

	y, err := s.YearConfigurationByYear(ctx, 2026)
	require.NoError(t, err)
	require.NotNil(t, y)

	holidays, err := s.ListHolidays(ctx, generic.NewDate(2026, time.January, 1), generic.NewDate(2026, time.December, 31))
	require.NoError(t, err)
	require.Len(t, holidays, 1)
	assert.Equal(t, "hol-2026-12-25", holidays[0].ID)
}

func TestCatalogRejectsDuplicateYear(t *testing.T) {
	_, err := NewPolicyFactory().CatalogFromJSON(CatalogJSON{
		Years: []YearJSON{CalendarYearJSON(2026), CalendarYearJSON(2026)},
	})
	assert.ErrorIs(t, err, ErrInvalidDocument)
}
