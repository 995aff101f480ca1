/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes the leave engine via REST. Handlers parse input, resolve the actor,
  delegate to the leave services and map engine errors to HTTP statuses.
  No business rule lives here.

ENDPOINTS:
  Reference data:
    GET    /api/employees                      List employees
    POST   /api/employees                      Create or update an employee
    GET    /api/employees/{id}                 Get employee
    GET    /api/employees/{id}/balances        Balances of an employee (?year=)
    GET    /api/policies                       List policies (?leave_type_id=)
    POST   /api/policies                       Create or update a policy
    GET    /api/policies/{id}                  Get policy
    GET    /api/years                          List leave years
    POST   /api/years                          Create or update a leave year
    GET    /api/years/active                   Year covering ?date= (default today)
    GET    /api/holidays                       Holidays between ?from= and ?to=
    POST   /api/holidays                       Create or update a holiday
    DELETE /api/holidays/{id}                  Delete a holiday

  Leave requests:
    GET    /api/requests                       List (?employee_id, leave_type_id, status, limit, offset)
    POST   /api/requests                       Submit
    POST   /api/requests/quote                 Day count without submitting
    GET    /api/requests/{id}                  Get
    PUT    /api/requests/{id}                  Edit a pending request
    POST   /api/requests/{id}/approve          Approve (debits the balance)
    POST   /api/requests/{id}/reject           Reject
    POST   /api/requests/{id}/cancel           Cancel (credits back if approved)
    PUT    /api/requests/{id}/remarks          Replace remarks

  Encashments:
    GET    /api/encashments                    List (?employee_id, year, status, limit, offset)
    POST   /api/encashments                    Request
    GET    /api/encashments/{id}               Get
    POST   /api/encashments/{id}/pay           Mark as paid (debits the balance)
    POST   /api/encashments/{id}/cancel        Cancel (credits back if paid)

  Balances:
    GET    /api/balances                       List (?employee_id, leave_type_id, year, status)
    GET    /api/balances/{id}                  Get
    GET    /api/balances/{id}/transactions     Ledger entries with running total
    POST   /api/balances/{id}/reconcile        Verify against the ledger
    POST   /api/balances/{id}/close|reopen|finalize  Status transitions

  Admin:
    POST   /api/admin/years/{year}/open        Open balances for a year
    POST   /api/admin/years/{year}/close       Close a year's balances
    POST   /api/admin/close-ended              Close every year that has ended

ERROR HANDLING:
  JSON {error, kind, details} with:
  - 400: Malformed input (bad JSON, dates, numbers, documents)
  - 401: Actor required or invalid token
  - 404: Record not found
  - 409: Operation inapplicable in current state
  - 422: Business rule violated by the input
  - 500: Anything else

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Actor resolution
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is what the API needs from persistence: the engine's unit of work plus
// a full reset for demo scenarios.
type Store interface {
	leave.TxStore
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store         Store
	Ledger        *leave.Ledger
	Requests      *leave.RequestService
	Encashments   *leave.EncashmentService
	YearEnd       *leave.YearEndService
	PolicyFactory *factory.PolicyFactory
	Logger        *slog.Logger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires the leave services over store.
func NewHandler(store Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	ledger := leave.NewLedger(logger)
	return &Handler{
		Store:         store,
		Ledger:        ledger,
		Requests:      leave.NewRequestService(store, ledger, logger),
		Encashments:   leave.NewEncashmentService(store, ledger, logger),
		YearEnd:       leave.NewYearEndService(store, ledger, logger),
		PolicyFactory: factory.NewPolicyFactory(),
		Logger:        logger,
	}
}

// SetClock points every service at clock. Used by tests and scenarios.
func (h *Handler) SetClock(clock func() time.Time) {
	h.Ledger.Clock = clock
	h.Requests.Clock = clock
	h.Encashments.Clock = clock
	h.YearEnd.Clock = clock
}

func (h *Handler) now() time.Time {
	if h.Requests.Clock == nil {
		return time.Now().UTC()
	}
	return h.Requests.Clock().UTC()
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns all employees.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListEmployees(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]factory.EmployeeJSON, len(employees))
	for i := range employees {
		dtos[i] = h.PolicyFactory.EmployeeToJSON(&employees[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveEmployee creates or updates an employee.
func (h *Handler) SaveEmployee(w http.ResponseWriter, r *http.Request) {
	var body factory.EmployeeJSON
	if err := decode(r, &body); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	e, err := h.PolicyFactory.EmployeeFromJSON(body)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := h.Store.SaveEmployee(r.Context(), e); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.PolicyFactory.EmployeeToJSON(e))
}

// GetEmployee returns a single employee.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	e, err := h.Store.GetEmployee(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if e == nil {
		h.writeDomainError(w, r, &leave.NotFoundError{Entity: "employee", ID: id})
		return
	}
	writeJSON(w, http.StatusOK, h.PolicyFactory.EmployeeToJSON(e))
}

// GetEmployeeBalances lists the balances of one employee.
// GET /api/employees/{id}/balances?year=2026
func (h *Handler) GetEmployeeBalances(w http.ResponseWriter, r *http.Request) {
	year, err := queryInt(r, "year")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	balances, err := h.YearEnd.Balances(r.Context(), leave.BalanceFilter{
		EmployeeID: chi.URLParam(r, "id"),
		Year:       year,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTOs(balances))
}

// =============================================================================
// POLICY & YEAR HANDLERS
// =============================================================================

// ListPolicies returns policies, newest effective date first.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.Store.ListPolicies(r.Context(), r.URL.Query().Get("leave_type_id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]factory.PolicyJSON, len(policies))
	for i := range policies {
		dtos[i] = h.PolicyFactory.ToJSON(&policies[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SavePolicy creates or updates a policy from its JSON document.
func (h *Handler) SavePolicy(w http.ResponseWriter, r *http.Request) {
	var body factory.PolicyJSON
	if err := decode(r, &body); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	p, err := h.PolicyFactory.FromJSON(body)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := h.Store.SavePolicy(r.Context(), p); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.PolicyFactory.ToJSON(p))
}

// GetPolicy returns a single policy.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := h.Store.GetPolicy(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if p == nil {
		h.writeDomainError(w, r, &leave.NotFoundError{Entity: "leave policy", ID: id})
		return
	}
	writeJSON(w, http.StatusOK, h.PolicyFactory.ToJSON(p))
}

// ListYears returns all leave year configurations.
func (h *Handler) ListYears(w http.ResponseWriter, r *http.Request) {
	years, err := h.Store.ListYearConfigurations(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]factory.YearJSON, len(years))
	for i := range years {
		dtos[i] = h.PolicyFactory.YearToJSON(&years[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveYear creates or updates a leave year configuration.
func (h *Handler) SaveYear(w http.ResponseWriter, r *http.Request) {
	var body factory.YearJSON
	if err := decode(r, &body); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	y, err := h.PolicyFactory.YearFromJSON(body)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	existing, err := h.Store.YearConfigurationByYear(r.Context(), y.Year)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if existing != nil && existing.ID != y.ID {
		h.writeDomainError(w, r, badRequest("year %d already configured as %s", y.Year, existing.ID))
		return
	}
	if err := h.Store.SaveYearConfiguration(r.Context(), y); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.PolicyFactory.YearToJSON(y))
}

// GetActiveYear returns the leave year covering ?date= (default today).
func (h *Handler) GetActiveYear(w http.ResponseWriter, r *http.Request) {
	date := h.now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := generic.ParseDate(raw)
		if err != nil {
			h.writeDomainError(w, r, badRequest("%v", err))
			return
		}
		date = d
	}
	y, err := h.YearEnd.Years.FindActiveForDate(r.Context(), h.Store, date)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.PolicyFactory.YearToJSON(y))
}

// =============================================================================
// HOLIDAY HANDLERS
// =============================================================================

// ListHolidays returns holidays between ?from= and ?to=, defaulting to the
// current calendar year.
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	year := h.now().Year()
	from, err := queryDate(r, "from", generic.NewDate(year, time.January, 1))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	to, err := queryDate(r, "to", generic.NewDate(year, time.December, 31))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	holidays, err := h.Store.ListHolidays(r.Context(), from, to)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]factory.HolidayJSON, len(holidays))
	for i := range holidays {
		dtos[i] = h.PolicyFactory.HolidayToJSON(&holidays[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveHoliday creates or updates a holiday.
func (h *Handler) SaveHoliday(w http.ResponseWriter, r *http.Request) {
	var body factory.HolidayJSON
	if err := decode(r, &body); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	hol, err := h.PolicyFactory.HolidayFromJSON(body)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := h.Store.SaveHoliday(r.Context(), hol); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.PolicyFactory.HolidayToJSON(hol))
}

// DeleteHoliday removes a holiday.
func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteHoliday(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// LEAVE REQUEST HANDLERS
// =============================================================================

// ListRequests returns a filtered page of leave requests, newest first.
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	page, err := queryPage(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	q := r.URL.Query()
	filter := leave.RequestFilter{
		EmployeeID:  q.Get("employee_id"),
		LeaveTypeID: q.Get("leave_type_id"),
		Status:      leave.RequestStatus(q.Get("status")),
	}
	items, total, err := h.Requests.List(r.Context(), filter, page)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]RequestDTO, len(items))
	for i := range items {
		dtos[i] = toRequestDTO(&items[i])
	}
	writeJSON(w, http.StatusOK, PageDTO[RequestDTO]{Items: dtos, Total: total, Limit: page.Limit, Offset: page.Offset})
}

// CreateRequest submits a leave request in PENDING state.
func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	cmd, err := h.createCommand(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	req, err := h.Requests.Create(r.Context(), cmd)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(req))
}

// QuoteRequest returns the day count a request would consume.
func (h *Handler) QuoteRequest(w http.ResponseWriter, r *http.Request) {
	cmd, err := h.createCommand(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	days, err := h.Requests.Quote(r.Context(), cmd)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, QuoteDTO{TotalDays: days})
}

func (h *Handler) createCommand(r *http.Request) (leave.CreateRequestCommand, error) {
	var body CreateRequestBody
	if err := decode(r, &body); err != nil {
		return leave.CreateRequestCommand{}, err
	}
	if body.EmployeeID == "" || body.LeaveTypeID == "" {
		return leave.CreateRequestCommand{}, badRequest("employee_id and leave_type_id are required")
	}
	start, end, err := parseRange(body.StartDate, body.EndDate)
	if err != nil {
		return leave.CreateRequestCommand{}, err
	}
	return leave.CreateRequestCommand{
		EmployeeID:  body.EmployeeID,
		LeaveTypeID: body.LeaveTypeID,
		StartDate:   start,
		EndDate:     end,
		IsHalfDay:   body.IsHalfDay,
		Reason:      body.Reason,
		Remarks:     body.Remarks,
	}, nil
}

// GetRequest returns a single leave request.
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.Requests.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// UpdateRequest edits a pending request and recomputes its day count.
func (h *Handler) UpdateRequest(w http.ResponseWriter, r *http.Request) {
	var body UpdateRequestBody
	if err := decode(r, &body); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	start, end, err := parseRange(body.StartDate, body.EndDate)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	req, err := h.Requests.Update(r.Context(), chi.URLParam(r, "id"), leave.UpdateRequestCommand{
		StartDate: start,
		EndDate:   end,
		IsHalfDay: body.IsHalfDay,
		Reason:    body.Reason,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// ApproveRequest approves a pending request.
// POST /api/requests/{id}/approve
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	req, err := h.Requests.Approve(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// RejectRequest rejects a pending request.
// POST /api/requests/{id}/reject
func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var body RemarksBody
	if err := decodeOptional(r, &body); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	req, err := h.Requests.Reject(r.Context(), chi.URLParam(r, "id"), actor, body.Remarks)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// CancelRequest cancels a pending or approved request.
// POST /api/requests/{id}/cancel
func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var body RemarksBody
	if err := decodeOptional(r, &body); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	req, err := h.Requests.Cancel(r.Context(), chi.URLParam(r, "id"), actor, body.Remarks)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// UpdateRemarks replaces a request's remarks in any state.
func (h *Handler) UpdateRemarks(w http.ResponseWriter, r *http.Request) {
	var body RemarksBody
	if err := decode(r, &body); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	req, err := h.Requests.UpdateRemarks(r.Context(), chi.URLParam(r, "id"), body.Remarks)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// =============================================================================
// ENCASHMENT HANDLERS
// =============================================================================

// ListEncashments returns a filtered page of encashments, newest first.
func (h *Handler) ListEncashments(w http.ResponseWriter, r *http.Request) {
	page, err := queryPage(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	year, err := queryInt(r, "year")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	q := r.URL.Query()
	filter := leave.EncashmentFilter{
		EmployeeID: q.Get("employee_id"),
		Year:       year,
		Status:     leave.EncashmentStatus(q.Get("status")),
	}
	items, total, err := h.Encashments.List(r.Context(), filter, page)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]EncashmentDTO, len(items))
	for i := range items {
		dtos[i] = toEncashmentDTO(&items[i])
	}
	writeJSON(w, http.StatusOK, PageDTO[EncashmentDTO]{Items: dtos, Total: total, Limit: page.Limit, Offset: page.Offset})
}

// CreateEncashment requests an encashment in PENDING state.
func (h *Handler) CreateEncashment(w http.ResponseWriter, r *http.Request) {
	var body CreateEncashmentBody
	if err := decode(r, &body); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if body.EmployeeID == "" || body.LeaveTypeID == "" || body.Year == 0 {
		h.writeDomainError(w, r, badRequest("employee_id, leave_type_id and year are required"))
		return
	}
	e, err := h.Encashments.Create(r.Context(), leave.CreateEncashmentCommand{
		EmployeeID:    body.EmployeeID,
		LeaveTypeID:   body.LeaveTypeID,
		Year:          body.Year,
		DaysRequested: body.DaysRequested,
		Remarks:       body.Remarks,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEncashmentDTO(e))
}

// GetEncashment returns a single encashment.
func (h *Handler) GetEncashment(w http.ResponseWriter, r *http.Request) {
	e, err := h.Encashments.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEncashmentDTO(e))
}

// PayEncashment marks a pending encashment as paid.
func (h *Handler) PayEncashment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	e, err := h.Encashments.MarkAsPaid(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEncashmentDTO(e))
}

// CancelEncashment cancels a pending or paid encashment.
func (h *Handler) CancelEncashment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	e, err := h.Encashments.Cancel(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEncashmentDTO(e))
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

// ListBalances returns balances matching the query filters.
func (h *Handler) ListBalances(w http.ResponseWriter, r *http.Request) {
	year, err := queryInt(r, "year")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	q := r.URL.Query()
	filter := leave.BalanceFilter{
		EmployeeID:  q.Get("employee_id"),
		LeaveTypeID: q.Get("leave_type_id"),
		Year:        year,
	}
	for _, s := range q["status"] {
		filter.Statuses = append(filter.Statuses, leave.BalanceStatus(s))
	}
	balances, err := h.YearEnd.Balances(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTOs(balances))
}

// GetBalance returns a single balance.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	b, err := h.YearEnd.Balance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(b))
}

// GetBalanceTransactions returns the ledger of a balance in append order.
func (h *Handler) GetBalanceTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.YearEnd.Transactions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// ReconcileBalance verifies Used + Encashed against the ledger sum.
func (h *Handler) ReconcileBalance(w http.ResponseWriter, r *http.Request) {
	b, err := h.YearEnd.Reconcile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(b))
}

// TransitionBalance moves a balance to the status named by the route.
func (h *Handler) TransitionBalance(transition func(*leave.YearEndService, context.Context, string) (*leave.LeaveBalance, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireActor(w, r); !ok {
			return
		}
		b, err := transition(h.YearEnd, r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toBalanceDTO(b))
	}
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// OpenYear creates balances for every eligible employee and leave type.
// POST /api/admin/years/{year}/open
func (h *Handler) OpenYear(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		h.writeDomainError(w, r, badRequest("invalid year %q", chi.URLParam(r, "year")))
		return
	}
	result, err := h.YearEnd.OpenYear(r.Context(), year)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OpenYearDTO{
		Year:     result.Year,
		Opened:   toBalanceDTOs(result.Opened),
		Existing: result.Existing,
		Skipped:  result.Skipped,
	})
}

// CloseYear closes every open or reopened balance of a year.
// POST /api/admin/years/{year}/close
func (h *Handler) CloseYear(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		h.writeDomainError(w, r, badRequest("invalid year %q", chi.URLParam(r, "year")))
		return
	}
	n, err := h.YearEnd.CloseYear(r.Context(), year)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CloseYearDTO{Closed: map[int]int{year: n}})
}

// CloseEndedYears closes every leave year whose end date has passed.
// POST /api/admin/close-ended
func (h *Handler) CloseEndedYears(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}
	closed, err := h.YearEnd.CloseEndedYears(r.Context(), h.now())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CloseYearDTO{Closed: closed})
}

// Health reports whether the store answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

const maxBodyBytes = 1 << 20

// errBadRequest marks malformed client input.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

// decodeOptional accepts an empty body.
func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return decode(r, v)
}

func parseRange(startRaw, endRaw string) (time.Time, time.Time, error) {
	start, err := generic.ParseDate(startRaw)
	if err != nil {
		return time.Time{}, time.Time{}, badRequest("start_date: %v", err)
	}
	end, err := generic.ParseDate(endRaw)
	if err != nil {
		return time.Time{}, time.Time{}, badRequest("end_date: %v", err)
	}
	return start, end, nil
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest("%s must be an integer", key)
	}
	return n, nil
}

func queryDate(r *http.Request, key string, fallback time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := generic.ParseDate(raw)
	if err != nil {
		return time.Time{}, badRequest("%s: %v", key, err)
	}
	return d, nil
}

func queryPage(r *http.Request) (leave.Page, error) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		return leave.Page{}, err
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		return leave.Page{}, err
	}
	return leave.Page{Limit: limit, Offset: offset}.Normalize(), nil
}

func requireActor(w http.ResponseWriter, r *http.Request) (leave.Actor, bool) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Actor required", nil)
	}
	return actor, ok
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, factory.ErrInvalidDocument):
		return http.StatusBadRequest
	case leave.IsNotFound(err):
		return http.StatusNotFound
	case leave.IsDomainRule(err):
		return http.StatusUnprocessableEntity
	case leave.IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: http.StatusText(status), Kind: string(leave.KindOf(err)), Details: err.Error()}
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		resp.Details = ""
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
