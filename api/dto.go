/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the engine's
  types from the external contract. Day quantities travel as decimal strings
  ("1.5"); dates as YYYY-MM-DD; timestamps as RFC 3339.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Body: Request body types from clients

REFERENCE DATA:
  Employees, policies, leave years and holidays reuse the factory document
  types (factory.EmployeeJSON, factory.PolicyJSON, ...) in both directions.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/policy.go, factory/catalog.go: Reference data documents
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// REQUEST BODIES
// =============================================================================

// CreateRequestBody submits a leave request. Also used by the quote endpoint.
type CreateRequestBody struct {
	EmployeeID  string `json:"employee_id"`
	LeaveTypeID string `json:"leave_type_id"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	IsHalfDay   bool   `json:"is_half_day"`
	Reason      string `json:"reason"`
	Remarks     string `json:"remarks"`
}

// UpdateRequestBody edits a pending request.
type UpdateRequestBody struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	IsHalfDay bool   `json:"is_half_day"`
	Reason    string `json:"reason"`
}

// RemarksBody carries optional remarks for reject, cancel and remarks updates.
type RemarksBody struct {
	Remarks string `json:"remarks"`
}

// CreateEncashmentBody requests an encashment.
type CreateEncashmentBody struct {
	EmployeeID    string          `json:"employee_id"`
	LeaveTypeID   string          `json:"leave_type_id"`
	Year          int             `json:"year"`
	DaysRequested decimal.Decimal `json:"days_requested"`
	Remarks       string          `json:"remarks"`
}

// LoadScenarioBody selects a demo scenario.
type LoadScenarioBody struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// RequestDTO represents a leave request in API responses.
type RequestDTO struct {
	ID          string          `json:"id"`
	EmployeeID  string          `json:"employee_id"`
	LeaveTypeID string          `json:"leave_type_id"`
	StartDate   string          `json:"start_date"`
	EndDate     string          `json:"end_date"`
	IsHalfDay   bool            `json:"is_half_day"`
	TotalDays   decimal.Decimal `json:"total_days"`
	Status      string          `json:"status"`
	Reason      string          `json:"reason,omitempty"`
	Remarks     string          `json:"remarks,omitempty"`
	BalanceID   string          `json:"balance_id,omitempty"`
	ActedBy     string          `json:"acted_by,omitempty"`
	ActedByName string          `json:"acted_by_name,omitempty"`
	ActedAt     *time.Time      `json:"acted_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func toRequestDTO(r *leave.LeaveRequest) RequestDTO {
	return RequestDTO{
		ID:          r.ID,
		EmployeeID:  r.EmployeeID,
		LeaveTypeID: r.LeaveTypeID,
		StartDate:   generic.FormatDate(r.StartDate),
		EndDate:     generic.FormatDate(r.EndDate),
		IsHalfDay:   r.IsHalfDay,
		TotalDays:   r.TotalDays,
		Status:      string(r.Status),
		Reason:      r.Reason,
		Remarks:     r.Remarks,
		BalanceID:   r.BalanceID,
		ActedBy:     r.ActedBy,
		ActedByName: r.ActedByName,
		ActedAt:     r.ActedAt,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// BalanceDTO represents a leave balance with its derived remaining days.
type BalanceDTO struct {
	ID                 string          `json:"id"`
	EmployeeID         string          `json:"employee_id"`
	LeaveTypeID        string          `json:"leave_type_id"`
	Year               int             `json:"year"`
	OpeningEntitlement decimal.Decimal `json:"opening_entitlement"`
	CarriedOver        decimal.Decimal `json:"carried_over"`
	Used               decimal.Decimal `json:"used"`
	Encashed           decimal.Decimal `json:"encashed"`
	Remaining          decimal.Decimal `json:"remaining"`
	Status             string          `json:"status"`
	Version            int64           `json:"version"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

func toBalanceDTO(b *leave.LeaveBalance) BalanceDTO {
	return BalanceDTO{
		ID:                 b.ID,
		EmployeeID:         b.EmployeeID,
		LeaveTypeID:        b.LeaveTypeID,
		Year:               b.Year,
		OpeningEntitlement: b.OpeningEntitlement,
		CarriedOver:        b.CarriedOver,
		Used:               b.Used,
		Encashed:           b.Encashed,
		Remaining:          b.Remaining(),
		Status:             string(b.Status),
		Version:            b.Version,
		UpdatedAt:          b.UpdatedAt,
	}
}

func toBalanceDTOs(bs []leave.LeaveBalance) []BalanceDTO {
	out := make([]BalanceDTO, len(bs))
	for i := range bs {
		out[i] = toBalanceDTO(&bs[i])
	}
	return out
}

// TransactionDTO represents a ledger entry. RunningTotal is the cumulative
// sum of deltas up to and including this entry.
type TransactionDTO struct {
	ID             string          `json:"id"`
	BalanceID      string          `json:"balance_id"`
	LeaveRequestID string          `json:"leave_request_id,omitempty"`
	EncashmentID   string          `json:"encashment_id,omitempty"`
	Kind           string          `json:"kind"`
	Delta          decimal.Decimal `json:"delta"`
	RunningTotal   decimal.Decimal `json:"running_total"`
	CreatedAt      time.Time       `json:"created_at"`
}

func toTransactionDTOs(txs []leave.LeaveTransaction) []TransactionDTO {
	out := make([]TransactionDTO, len(txs))
	total := decimal.Zero
	for i, tx := range txs {
		total = total.Add(tx.Delta)
		out[i] = TransactionDTO{
			ID:             tx.ID,
			BalanceID:      tx.BalanceID,
			LeaveRequestID: tx.Ref.LeaveRequestID,
			EncashmentID:   tx.Ref.EncashmentID,
			Kind:           string(tx.Kind),
			Delta:          tx.Delta,
			RunningTotal:   total,
			CreatedAt:      tx.CreatedAt,
		}
	}
	return out
}

// EncashmentDTO represents an encashment in API responses.
type EncashmentDTO struct {
	ID            string          `json:"id"`
	EmployeeID    string          `json:"employee_id"`
	LeaveTypeID   string          `json:"leave_type_id"`
	Year          int             `json:"year"`
	BalanceID     string          `json:"balance_id"`
	DaysRequested decimal.Decimal `json:"days_requested"`
	Status        string          `json:"status"`
	Remarks       string          `json:"remarks,omitempty"`
	ActedBy       string          `json:"acted_by,omitempty"`
	ActedByName   string          `json:"acted_by_name,omitempty"`
	ActedAt       *time.Time      `json:"acted_at,omitempty"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func toEncashmentDTO(e *leave.LeaveEncashment) EncashmentDTO {
	return EncashmentDTO{
		ID:            e.ID,
		EmployeeID:    e.EmployeeID,
		LeaveTypeID:   e.LeaveTypeID,
		Year:          e.Year,
		BalanceID:     e.BalanceID,
		DaysRequested: e.DaysRequested,
		Status:        string(e.Status),
		Remarks:       e.Remarks,
		ActedBy:       e.ActedBy,
		ActedByName:   e.ActedByName,
		ActedAt:       e.ActedAt,
		PaidAt:        e.PaidAt,
		CreatedAt:     e.CreatedAt,
	}
}

// PageDTO wraps a page of a listing.
type PageDTO[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// QuoteDTO is the day count a request would consume.
type QuoteDTO struct {
	TotalDays decimal.Decimal `json:"total_days"`
}

// OpenYearDTO summarizes a year opening.
type OpenYearDTO struct {
	Year     int          `json:"year"`
	Opened   []BalanceDTO `json:"opened"`
	Existing int          `json:"existing"`
	Skipped  int          `json:"skipped"`
}

// CloseYearDTO reports how many balances were closed per year.
type CloseYearDTO struct {
	Closed map[int]int `json:"closed"`
}

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Details string `json:"details,omitempty"`
}
