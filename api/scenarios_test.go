/*
scenarios_test.go - Tests for demo scenarios

Every scenario must load through the services and leave the ledger
consistent with the balance projections.
*/
package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/store/sqlite"
)

func TestScenario_AllScenariosLoadWithoutError(t *testing.T) {
	ts := newTestServer(t, RouterOptions{})

	for _, s := range scenarios {
		t.Run(s.ID, func(t *testing.T) {
			rec := ts.do(http.MethodPost, "/api/scenarios/load", LoadScenarioBody{ScenarioID: s.ID}, nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			rec = ts.do(http.MethodGet, "/api/scenarios/current", nil, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, s.ID, decodeAs[ScenarioDTO](t, rec).ID)

			// Every balance agrees with its ledger.
			rec = ts.do(http.MethodGet, "/api/balances", nil, nil)
			for _, b := range decodeAs[[]BalanceDTO](t, rec) {
				rec := ts.do(http.MethodPost, "/api/balances/"+b.ID+"/reconcile", nil, nil)
				assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestScenario_Basic(t *testing.T) {
	ts := newBasicServer(t)

	rec := ts.do(http.MethodGet, "/api/balances?year=2026", nil, nil)

	// Carol is on leave, so she only gets annual leave.
	balances := decodeAs[[]BalanceDTO](t, rec)
	assert.Len(t, balances, 5)
	for _, b := range balances {
		assert.Equal(t, "OPEN", b.Status)
	}
	requireDays(t, 15, ts.annualBalance("emp-003").OpeningEntitlement)
}

func TestScenario_ApprovalQueue(t *testing.T) {
	ts := newTestServer(t, RouterOptions{})
	require.NoError(t, ts.handler.LoadScenarioByID(t.Context(), "approval-queue"))

	counts := map[string]int{}
	rec := ts.do(http.MethodGet, "/api/requests", nil, nil)
	for _, r := range decodeAs[PageDTO[RequestDTO]](t, rec).Items {
		counts[r.Status]++
	}

	assert.Equal(t, map[string]int{"PENDING": 2, "APPROVED": 1, "REJECTED": 1, "CANCELLED": 1}, counts)
	requireDays(t, 5, ts.annualBalance("emp-001").Used)
	requireDays(t, 0, ts.annualBalance("emp-002").Used)
}

func TestScenario_YearEndCarryOver(t *testing.T) {
	ts := newTestServer(t, RouterOptions{})
	require.NoError(t, ts.handler.LoadScenarioByID(t.Context(), "carry-over"))

	// Last year is closed.
	rec := ts.do(http.MethodGet, "/api/balances?year=2025&status=OPEN", nil, nil)
	assert.Empty(t, decodeAs[[]BalanceDTO](t, rec))

	// Alice had 10 days left, capped at 5. Bob had 3.
	alice := ts.annualBalance("emp-001")
	requireDays(t, 5, alice.CarriedOver)
	requireDays(t, 20, alice.Remaining)

	bob := ts.annualBalance("emp-002")
	requireDays(t, 3, bob.CarriedOver)
	requireDays(t, 18, bob.Remaining)

	// Carol used nothing and carries the cap.
	requireDays(t, 5, ts.annualBalance("emp-003").CarriedOver)
}

func TestScenario_Encashment(t *testing.T) {
	ts := newTestServer(t, RouterOptions{})
	require.NoError(t, ts.handler.LoadScenarioByID(t.Context(), "encashment"))

	alice := ts.annualBalance("emp-001")
	requireDays(t, 3, alice.Encashed)
	requireDays(t, 12, alice.Remaining)

	rec := ts.do(http.MethodGet, "/api/encashments?status=PENDING", nil, nil)
	page := decodeAs[PageDTO[EncashmentDTO]](t, rec)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "emp-002", page.Items[0].EmployeeID)
	requireDays(t, 2.5, page.Items[0].DaysRequested)
}

func TestScenario_UnknownAndReset(t *testing.T) {
	ts := newBasicServer(t)

	rec := ts.do(http.MethodPost, "/api/scenarios/load", LoadScenarioBody{ScenarioID: "nope"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/api/scenarios/reset", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodGet, "/api/employees", nil, nil)
	assert.Empty(t, decodeAs[[]map[string]any](t, rec))
	rec = ts.do(http.MethodGet, "/api/scenarios/current", nil, nil)
	assert.Equal(t, "null\n", rec.Body.String())

	rec = ts.do(http.MethodGet, "/api/scenarios", nil, nil)
	assert.Len(t, decodeAs[[]ScenarioDTO](t, rec), len(scenarios))
}

func TestScenario_CarryOverOnSQLite(t *testing.T) {
	// GIVEN: The API backed by SQLite
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	ts := newTestServerOn(t, st, RouterOptions{})

	// WHEN: Loading the carry-over scenario through the endpoint
	rec := ts.do(http.MethodPost, "/api/scenarios/load", LoadScenarioBody{ScenarioID: "carry-over"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: Decimal carry-over survives the round trip through the database
	requireDays(t, 5, ts.annualBalance("emp-001").CarriedOver)
	requireDays(t, 3, ts.annualBalance("emp-002").CarriedOver)

	rec = ts.do(http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
