package factory

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// CATALOG - A bundle of reference data
// =============================================================================

// EmployeeJSON is the JSON representation of an employee record.
type EmployeeJSON struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	HireDate       string `json:"hire_date"`
	EmploymentType string `json:"employment_type,omitempty"`
	EmployeeStatus string `json:"employee_status,omitempty"`
}

// HolidayJSON is the JSON representation of a holiday.
type HolidayJSON struct {
	ID          string `json:"id,omitempty"`
	Date        string `json:"date"`
	Description string `json:"description,omitempty"`
}

// CatalogJSON is a seed document:
//
//	{"employees": [...], "policies": [...], "years": [...], "holidays": [...]}
type CatalogJSON struct {
	Employees []EmployeeJSON `json:"employees,omitempty"`
	Policies  []PolicyJSON   `json:"policies,omitempty"`
	Years     []YearJSON     `json:"years,omitempty"`
	Holidays  []HolidayJSON  `json:"holidays,omitempty"`
}

// Catalog is a validated CatalogJSON.
type Catalog struct {
	Employees []leave.Employee
	Policies  []leave.LeavePolicy
	Years     []leave.LeaveYearConfiguration
	Holidays  []leave.Holiday
}

// ParseCatalog decodes and validates a seed document.
func (f *PolicyFactory) ParseCatalog(data []byte) (*Catalog, error) {
	var cj CatalogJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return nil, fmt.Errorf("%w: failed to parse catalog JSON: %v", ErrInvalidDocument, err)
	}
	return f.CatalogFromJSON(cj)
}

// CatalogFromJSON validates every entry of cj.
func (f *PolicyFactory) CatalogFromJSON(cj CatalogJSON) (*Catalog, error) {
	c := &Catalog{}
	for _, ej := range cj.Employees {
		e, err := f.EmployeeFromJSON(ej)
		if err != nil {
			return nil, err
		}
		c.Employees = append(c.Employees, *e)
	}
	for _, pj := range cj.Policies {
		p, err := f.FromJSON(pj)
		if err != nil {
			return nil, err
		}
		c.Policies = append(c.Policies, *p)
	}
	seen := map[int]bool{}
	for _, yj := range cj.Years {
		y, err := f.YearFromJSON(yj)
		if err != nil {
			return nil, err
		}
		if seen[y.Year] {
			return nil, invalid("year %d configured twice", y.Year)
		}
		seen[y.Year] = true
		c.Years = append(c.Years, *y)
	}
	for _, hj := range cj.Holidays {
		h, err := f.HolidayFromJSON(hj)
		if err != nil {
			return nil, err
		}
		c.Holidays = append(c.Holidays, *h)
	}
	return c, nil
}

// Save writes every record of the catalog through s.
func (c *Catalog) Save(ctx context.Context, s leave.Store) error {
	for i := range c.Employees {
		if err := s.SaveEmployee(ctx, &c.Employees[i]); err != nil {
			return err
		}
	}
	for i := range c.Policies {
		if err := s.SavePolicy(ctx, &c.Policies[i]); err != nil {
			return err
		}
	}
	for i := range c.Years {
		if err := s.SaveYearConfiguration(ctx, &c.Years[i]); err != nil {
			return err
		}
	}
	for i := range c.Holidays {
		if err := s.SaveHoliday(ctx, &c.Holidays[i]); err != nil {
			return err
		}
	}
	return nil
}

// EmployeeFromJSON validates ej.
func (f *PolicyFactory) EmployeeFromJSON(ej EmployeeJSON) (*leave.Employee, error) {
	if ej.ID == "" {
		return nil, invalid("employee id is required")
	}
	hire, err := generic.ParseDate(ej.HireDate)
	if err != nil {
		return nil, invalid("employee %s: hire_date: %v", ej.ID, err)
	}
	return &leave.Employee{
		ID:             ej.ID,
		Name:           ej.Name,
		HireDate:       hire,
		EmploymentType: ej.EmploymentType,
		EmployeeStatus: ej.EmployeeStatus,
	}, nil
}

// EmployeeToJSON converts an employee to its document form.
func (f *PolicyFactory) EmployeeToJSON(e *leave.Employee) EmployeeJSON {
	return EmployeeJSON{
		ID:             e.ID,
		Name:           e.Name,
		HireDate:       generic.FormatDate(e.HireDate),
		EmploymentType: e.EmploymentType,
		EmployeeStatus: e.EmployeeStatus,
	}
}

// HolidayFromJSON validates hj. A missing ID defaults to "hol-<date>".
func (f *PolicyFactory) HolidayFromJSON(hj HolidayJSON) (*leave.Holiday, error) {
	date, err := generic.ParseDate(hj.Date)
	if err != nil {
		return nil, invalid("holiday: %v", err)
	}
	id := hj.ID
	if id == "" {
		id = "hol-" + generic.FormatDate(date)
	}
	return &leave.Holiday{ID: id, Date: date, Description: hj.Description}, nil
}

// HolidayToJSON converts a holiday to its document form.
func (f *PolicyFactory) HolidayToJSON(h *leave.Holiday) HolidayJSON {
	return HolidayJSON{ID: h.ID, Date: generic.FormatDate(h.Date), Description: h.Description}
}

// =============================================================================
// PRESETS
// =============================================================================

// AnnualLeaveJSON returns an annual leave policy effective from January 1st of
// year, excluding weekends.
func AnnualLeaveJSON(id string, year int, entitlement, carryLimit, encashLimit float64) PolicyJSON {
	return PolicyJSON{
		ID:                id,
		LeaveTypeID:       "annual",
		AnnualEntitlement: decimal.NewFromFloat(entitlement),
		CarryLimit:        decimal.NewFromFloat(carryLimit),
		EncashLimit:       decimal.NewFromFloat(encashLimit),
		CarriedOverYears:  1,
		EffectiveDate:     strconv.Itoa(year) + "-01-01",
		ExcludedWeekdays:  []string{"sat", "sun"},
	}
}

// SickLeaveJSON returns a sick leave policy with no carry-over or encashment,
// limited to active employees.
func SickLeaveJSON(id string, year int, entitlement float64) PolicyJSON {
	return PolicyJSON{
		ID:                id,
		LeaveTypeID:       "sick",
		AnnualEntitlement: decimal.NewFromFloat(entitlement),
		EffectiveDate:     strconv.Itoa(year) + "-01-01",
		Eligibility:       &EligibilityJSON{EmployeeStatuses: []string{"ACTIVE"}},
		ExcludedWeekdays:  []string{"sat", "sun"},
	}
}

// CalendarYearJSON returns a January to December leave year.
func CalendarYearJSON(year int) YearJSON {
	y := strconv.Itoa(year)
	return YearJSON{
		ID:        "ly-" + y,
		Label:     "Calendar " + y,
		Year:      year,
		StartDate: y + "-01-01",
		EndDate:   y + "-12-31",
	}
}
