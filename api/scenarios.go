/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the store with realistic data.
  Every scenario is driven through the leave services, so the ledger and
  balances it leaves behind are exactly what real traffic would produce.

AVAILABLE SCENARIOS:
  basic:            Calendar year, annual + sick policies, three employees, year opened
  approval-queue:   basic + requests in every state
  carry-over:       Last year consumed and closed, this year opened with carry-over
  encashment:       basic + a paid and a pending encashment

HOW SCENARIOS WORK:
  1. Reset the store
  2. Save a factory.Catalog (employees, policies, years, holidays)
  3. Open leave years through the year-end service
  4. Submit / approve / encash through the request and encashment services

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "carry-over"}

NOTE:
  Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - factory/catalog.go: Catalog documents and presets
  - handlers.go: Handler wiring
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "basic",
		Name:        "Basic",
		Description: "Calendar leave year with annual and sick leave for three employees",
	},
	{
		ID:          "approval-queue",
		Name:        "Approval Queue",
		Description: "Leave requests pending, approved, rejected and cancelled",
	},
	{
		ID:          "carry-over",
		Name:        "Year-End Carry-Over",
		Description: "Last year's unused annual leave carried into this year up to the policy limit",
	},
	{
		ID:          "encashment",
		Name:        "Encashment",
		Description: "Paid and pending encashments against the annual balance",
	},
}

// scenarioActor performs every transition made by a scenario.
var scenarioActor = leave.Actor{UserID: "mgr-001", UserName: "Morgan Manager"}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var body LoadScenarioBody
	if err := decode(r, &body); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := h.LoadScenarioByID(r.Context(), body.ScenarioID); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": body.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// LoadScenarioByID resets the store and loads scenario id. Dates are relative
// to the handler's clock year.
func (h *Handler) LoadScenarioByID(ctx context.Context, id string) error {
	loaders := map[string]func(context.Context, int) error{
		"basic":          h.loadBasicScenario,
		"approval-queue": h.loadApprovalQueueScenario,
		"carry-over":     h.loadCarryOverScenario,
		"encashment":     h.loadEncashmentScenario,
	}
	load, ok := loaders[id]
	if !ok {
		return badRequest("unknown scenario %q", id)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentScenario = ""

	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset store: %w", err)
	}
	if err := load(ctx, h.now().Year()); err != nil {
		return fmt.Errorf("failed to load scenario %s: %w", id, err)
	}
	h.currentScenario = id
	h.Logger.Info("scenario loaded", "scenario", id)
	return nil
}

// LoadCatalog saves a seed document in one unit of work.
func (h *Handler) LoadCatalog(ctx context.Context, catalog *factory.Catalog) error {
	return h.Store.WithTx(ctx, func(s leave.Store) error {
		return catalog.Save(ctx, s)
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// baseCatalog covers the given years with calendar leave years, annual and
// sick policies effective from the first one, and three employees.
func baseCatalog(years ...int) factory.CatalogJSON {
	first := years[0]
	cj := factory.CatalogJSON{
		Employees: []factory.EmployeeJSON{
			{ID: "emp-001", Name: "Alice Johnson", HireDate: fmt.Sprintf("%d-03-15", first-3), EmploymentType: "FULL_TIME", EmployeeStatus: "ACTIVE"},
			{ID: "emp-002", Name: "Bob Smith", HireDate: fmt.Sprintf("%d-09-01", first-1), EmploymentType: "PART_TIME", EmployeeStatus: "ACTIVE"},
			{ID: "emp-003", Name: "Carol Davis", HireDate: fmt.Sprintf("%d-01-10", first-5), EmploymentType: "FULL_TIME", EmployeeStatus: "ON_LEAVE"},
		},
		Policies: []factory.PolicyJSON{
			factory.AnnualLeaveJSON(fmt.Sprintf("annual-%d", first), first, 15, 5, 10),
			factory.SickLeaveJSON(fmt.Sprintf("sick-%d", first), first, 10),
		},
	}
	for _, y := range years {
		cj.Years = append(cj.Years, factory.CalendarYearJSON(y))
		cj.Holidays = append(cj.Holidays,
			factory.HolidayJSON{Date: fmt.Sprintf("%d-01-01", y), Description: "New Year's Day"},
			factory.HolidayJSON{Date: fmt.Sprintf("%d-12-25", y), Description: "Christmas Day"},
		)
	}
	return cj
}

func (h *Handler) seed(ctx context.Context, cj factory.CatalogJSON) error {
	catalog, err := h.PolicyFactory.CatalogFromJSON(cj)
	if err != nil {
		return err
	}
	return h.LoadCatalog(ctx, catalog)
}

func (h *Handler) loadBasicScenario(ctx context.Context, year int) error {
	if err := h.seed(ctx, baseCatalog(year)); err != nil {
		return err
	}
	_, err := h.YearEnd.OpenYear(ctx, year)
	return err
}

func (h *Handler) loadApprovalQueueScenario(ctx context.Context, year int) error {
	if err := h.loadBasicScenario(ctx, year); err != nil {
		return err
	}

	march := firstWeekday(year, time.March, time.Monday)
	may := firstWeekday(year, time.May, time.Monday)
	june := firstWeekday(year, time.June, time.Wednesday)

	approved, err := h.submit(ctx, "emp-001", "annual", march, march.AddDate(0, 0, 4), false, "Family trip")
	if err != nil {
		return err
	}
	if _, err := h.Requests.Approve(ctx, approved.ID, scenarioActor); err != nil {
		return err
	}

	if _, err := h.submit(ctx, "emp-001", "annual", may, may.AddDate(0, 0, 1), false, "Long weekend"); err != nil {
		return err
	}
	if _, err := h.submit(ctx, "emp-002", "annual", june, june, true, "Appointment"); err != nil {
		return err
	}

	rejected, err := h.submit(ctx, "emp-002", "annual", march, march.AddDate(0, 0, 2), false, "Conference")
	if err != nil {
		return err
	}
	if _, err := h.Requests.Reject(ctx, rejected.ID, scenarioActor, "Team offsite that week"); err != nil {
		return err
	}

	cancelled, err := h.submit(ctx, "emp-001", "sick", june, june, false, "Flu")
	if err != nil {
		return err
	}
	if _, err := h.Requests.Approve(ctx, cancelled.ID, scenarioActor); err != nil {
		return err
	}
	_, err = h.Requests.Cancel(ctx, cancelled.ID, scenarioActor, "Recovered early")
	return err
}

func (h *Handler) loadCarryOverScenario(ctx context.Context, year int) error {
	last := year - 1
	if err := h.seed(ctx, baseCatalog(last, year)); err != nil {
		return err
	}
	if _, err := h.YearEnd.OpenYear(ctx, last); err != nil {
		return err
	}

	// Alice uses 5 of 15 days and Bob 12 of 15 last year.
	july := firstWeekday(last, time.July, time.Monday)
	for _, r := range []struct {
		employee string
		start    time.Time
		end      time.Time
	}{
		{"emp-001", july, july.AddDate(0, 0, 4)},
		{"emp-002", july, july.AddDate(0, 0, 4)},
		{"emp-002", july.AddDate(0, 0, 7), july.AddDate(0, 0, 11)},
		{"emp-002", july.AddDate(0, 0, 14), july.AddDate(0, 0, 15)},
	} {
		req, err := h.submit(ctx, r.employee, "annual", r.start, r.end, false, "Summer")
		if err != nil {
			return err
		}
		if _, err := h.Requests.Approve(ctx, req.ID, scenarioActor); err != nil {
			return err
		}
	}

	if _, err := h.YearEnd.CloseYear(ctx, last); err != nil {
		return err
	}
	// Alice carries min(10, 5) = 5, Bob min(3, 5) = 3.
	_, err := h.YearEnd.OpenYear(ctx, year)
	return err
}

func (h *Handler) loadEncashmentScenario(ctx context.Context, year int) error {
	if err := h.loadBasicScenario(ctx, year); err != nil {
		return err
	}

	paid, err := h.Encashments.Create(ctx, leave.CreateEncashmentCommand{
		EmployeeID: "emp-001", LeaveTypeID: "annual", Year: year,
		DaysRequested: generic.NewDays(3), Remarks: "Mid-year payout",
	})
	if err != nil {
		return err
	}
	if _, err := h.Encashments.MarkAsPaid(ctx, paid.ID, scenarioActor); err != nil {
		return err
	}

	_, err = h.Encashments.Create(ctx, leave.CreateEncashmentCommand{
		EmployeeID: "emp-002", LeaveTypeID: "annual", Year: year,
		DaysRequested: generic.NewDays(2.5), Remarks: "Awaiting payroll",
	})
	return err
}

func (h *Handler) submit(ctx context.Context, employee, leaveType string, start, end time.Time, halfDay bool, reason string) (*leave.LeaveRequest, error) {
	return h.Requests.Create(ctx, leave.CreateRequestCommand{
		EmployeeID:  employee,
		LeaveTypeID: leaveType,
		StartDate:   start,
		EndDate:     end,
		IsHalfDay:   halfDay,
		Reason:      reason,
	})
}

// firstWeekday returns the first given weekday of month.
func firstWeekday(year int, month time.Month, wd time.Weekday) time.Time {
	d := generic.NewDate(year, month, 1)
	for d.Weekday() != wd {
		d = d.AddDate(0, 0, 1)
	}
	return d
}
