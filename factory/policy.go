/*
Package factory provides JSON to Go conversion for leave reference data.

PURPOSE:
  Converts JSON leave policy and leave year definitions into leave.LeavePolicy
  and leave.LeaveYearConfiguration values. HR can define entitlements,
  carry-over and encashment limits in JSON without code changes; the factory
  validates them and produces the engine's structs.

JSON SCHEMA:
  {
    "id": "annual-2026",
    "leave_type_id": "annual",
    "annual_entitlement": "15",
    "carry_limit": "5",
    "encash_limit": "10",
    "carried_over_years": 1,
    "effective_date": "2026-01-01",
    "expiry_date": "2027-01-01",
    "eligibility": {
      "minimum_service_months": 3,
      "employment_types": ["FULL_TIME"],
      "employee_statuses": ["ACTIVE"]
    },
    "excluded_weekdays": ["sat", "sun"]
  }

  Day quantities accept JSON numbers or decimal strings. Weekdays accept
  names ("sat", "Sunday") or digits 0-6 (Sunday = 0).

USAGE:
  factory := NewPolicyFactory()
  policy, err := factory.ParsePolicy(jsonString)
  year, err := factory.ParseYear(`{"year": 2026, "start_date": "2026-01-01", "end_date": "2026-12-31"}`)

SEE ALSO:
  - leave/types.go: LeavePolicy, LeaveYearConfiguration
  - factory/catalog.go: Documents bundling employees, policies, years and holidays
*/
package factory

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// ErrInvalidDocument marks malformed or inconsistent JSON input.
var ErrInvalidDocument = errors.New("invalid document")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidDocument, fmt.Sprintf(format, args...))
}

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PolicyJSON is the JSON representation of a leave policy.
type PolicyJSON struct {
	ID                string           `json:"id"`
	LeaveTypeID       string           `json:"leave_type_id"`
	AnnualEntitlement decimal.Decimal  `json:"annual_entitlement"`
	CarryLimit        decimal.Decimal  `json:"carry_limit"`
	EncashLimit       decimal.Decimal  `json:"encash_limit"`
	CarriedOverYears  int              `json:"carried_over_years,omitempty"`
	EffectiveDate     string           `json:"effective_date"`
	ExpiryDate        string           `json:"expiry_date,omitempty"`
	Eligibility       *EligibilityJSON `json:"eligibility,omitempty"`
	ExcludedWeekdays  []string         `json:"excluded_weekdays,omitempty"`
}

// EligibilityJSON holds the policy's employee restrictions. Empty lists mean
// no restriction.
type EligibilityJSON struct {
	MinimumServiceMonths int      `json:"minimum_service_months,omitempty"`
	EmploymentTypes      []string `json:"employment_types,omitempty"`
	EmployeeStatuses     []string `json:"employee_statuses,omitempty"`
}

// YearJSON is the JSON representation of a leave year configuration.
type YearJSON struct {
	ID        string `json:"id,omitempty"`
	Label     string `json:"label,omitempty"`
	Year      int    `json:"year"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

// PolicyFactory converts JSON documents to engine structs.
type PolicyFactory struct{}

// NewPolicyFactory creates a new policy factory.
func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{}
}

// ParsePolicy parses a JSON string into a LeavePolicy.
func (f *PolicyFactory) ParsePolicy(jsonStr string) (*leave.LeavePolicy, error) {
	var pj PolicyJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return nil, fmt.Errorf("%w: failed to parse policy JSON: %v", ErrInvalidDocument, err)
	}
	return f.FromJSON(pj)
}

// FromJSON validates pj and converts it to a LeavePolicy.
func (f *PolicyFactory) FromJSON(pj PolicyJSON) (*leave.LeavePolicy, error) {
	if pj.ID == "" {
		return nil, invalid("policy id is required")
	}
	if pj.LeaveTypeID == "" {
		return nil, invalid("policy %s: leave_type_id is required", pj.ID)
	}
	for name, v := range map[string]decimal.Decimal{
		"annual_entitlement": pj.AnnualEntitlement,
		"carry_limit":        pj.CarryLimit,
		"encash_limit":       pj.EncashLimit,
	} {
		if v.IsNegative() {
			return nil, invalid("policy %s: %s must not be negative", pj.ID, name)
		}
	}
	if pj.CarriedOverYears < 0 {
		return nil, invalid("policy %s: carried_over_years must not be negative", pj.ID)
	}

	effective, err := generic.ParseDate(pj.EffectiveDate)
	if err != nil {
		return nil, invalid("policy %s: effective_date: %v", pj.ID, err)
	}

	policy := &leave.LeavePolicy{
		ID:                pj.ID,
		LeaveTypeID:       pj.LeaveTypeID,
		AnnualEntitlement: pj.AnnualEntitlement,
		CarryLimit:        pj.CarryLimit,
		EncashLimit:       pj.EncashLimit,
		CarriedOverYears:  pj.CarriedOverYears,
		EffectiveDate:     effective,
	}

	if pj.ExpiryDate != "" {
		expiry, err := generic.ParseDate(pj.ExpiryDate)
		if err != nil {
			return nil, invalid("policy %s: expiry_date: %v", pj.ID, err)
		}
		if !expiry.After(effective) {
			return nil, invalid("policy %s: expiry_date must be after effective_date", pj.ID)
		}
		policy.ExpiryDate = &expiry
	}

	if e := pj.Eligibility; e != nil {
		if e.MinimumServiceMonths < 0 {
			return nil, invalid("policy %s: minimum_service_months must not be negative", pj.ID)
		}
		policy.MinimumServiceMonths = e.MinimumServiceMonths
		policy.AllowedEmploymentTypes = e.EmploymentTypes
		policy.AllowedEmployeeStatuses = e.EmployeeStatuses
	}

	weekdays, err := generic.ParseWeekdays(pj.ExcludedWeekdays)
	if err != nil {
		return nil, invalid("policy %s: %v", pj.ID, err)
	}
	for _, d := range weekdays.Ints() {
		policy.ExcludedWeekdays = append(policy.ExcludedWeekdays, time.Weekday(d))
	}

	return policy, nil
}

// ToJSON converts a LeavePolicy back to its document form.
func (f *PolicyFactory) ToJSON(p *leave.LeavePolicy) PolicyJSON {
	pj := PolicyJSON{
		ID:                p.ID,
		LeaveTypeID:       p.LeaveTypeID,
		AnnualEntitlement: p.AnnualEntitlement,
		CarryLimit:        p.CarryLimit,
		EncashLimit:       p.EncashLimit,
		CarriedOverYears:  p.CarriedOverYears,
		EffectiveDate:     generic.FormatDate(p.EffectiveDate),
	}
	if p.ExpiryDate != nil {
		pj.ExpiryDate = generic.FormatDate(*p.ExpiryDate)
	}
	if p.MinimumServiceMonths > 0 || len(p.AllowedEmploymentTypes) > 0 || len(p.AllowedEmployeeStatuses) > 0 {
		pj.Eligibility = &EligibilityJSON{
			MinimumServiceMonths: p.MinimumServiceMonths,
			EmploymentTypes:      p.AllowedEmploymentTypes,
			EmployeeStatuses:     p.AllowedEmployeeStatuses,
		}
	}
	for _, d := range generic.NewWeekdaySet(p.ExcludedWeekdays...).Ints() {
		pj.ExcludedWeekdays = append(pj.ExcludedWeekdays, time.Weekday(d).String())
	}
	return pj
}

// ParseYear parses a JSON string into a LeaveYearConfiguration.
func (f *PolicyFactory) ParseYear(jsonStr string) (*leave.LeaveYearConfiguration, error) {
	var yj YearJSON
	if err := json.Unmarshal([]byte(jsonStr), &yj); err != nil {
		return nil, fmt.Errorf("%w: failed to parse year JSON: %v", ErrInvalidDocument, err)
	}
	return f.YearFromJSON(yj)
}

// YearFromJSON validates yj. A missing ID defaults to "ly-<year>", a missing
// label to the year number.
func (f *PolicyFactory) YearFromJSON(yj YearJSON) (*leave.LeaveYearConfiguration, error) {
	if yj.Year <= 0 {
		return nil, invalid("year is required")
	}
	start, err := generic.ParseDate(yj.StartDate)
	if err != nil {
		return nil, invalid("year %d: start_date: %v", yj.Year, err)
	}
	end, err := generic.ParseDate(yj.EndDate)
	if err != nil {
		return nil, invalid("year %d: end_date: %v", yj.Year, err)
	}
	if end.Before(start) {
		return nil, invalid("year %d: end_date is before start_date", yj.Year)
	}

	y := &leave.LeaveYearConfiguration{
		ID:        yj.ID,
		Label:     yj.Label,
		Year:      yj.Year,
		StartDate: start,
		EndDate:   end,
	}
	if y.ID == "" {
		y.ID = "ly-" + strconv.Itoa(yj.Year)
	}
	if y.Label == "" {
		y.Label = strconv.Itoa(yj.Year)
	}
	return y, nil
}

// YearToJSON converts a LeaveYearConfiguration to its document form.
func (f *PolicyFactory) YearToJSON(y *leave.LeaveYearConfiguration) YearJSON {
	return YearJSON{
		ID:        y.ID,
		Label:     y.Label,
		Year:      y.Year,
		StartDate: generic.FormatDate(y.StartDate),
		EndDate:   generic.FormatDate(y.EndDate),
	}
}
