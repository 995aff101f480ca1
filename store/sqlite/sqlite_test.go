package sqlite_test

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/leave/store/storetest"
	"github.com/warp/leave-engine/store/sqlite"
)

func newTestStore(t *testing.T) leave.TxStore {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteContract(t *testing.T) {
	storetest.Run(t, newTestStore)
}

func TestSQLiteFileReopen(t *testing.T) {
	// Schema migration is idempotent and data survives a reopen.
	path := filepath.Join(t.TempDir(), "leave.db")

	store, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, store.SaveEmployee(t.Context(), &leave.Employee{ID: "emp-1", Name: "Ada"}))
	require.NoError(t, store.Close())

	store, err = sqlite.New(path)
	require.NoError(t, err)
	defer store.Close()

	e, err := store.GetEmployee(t.Context(), "emp-1")
	require.NoError(t, err)
	require.NotNil(t, e)
	require.Equal(t, "Ada", e.Name)
}

func TestSQLiteCorruptDecimalColumn(t *testing.T) {
	// GIVEN: A balance whose used column was damaged outside the store
	path := filepath.Join(t.TempDir(), "leave.db")
	store, err := sqlite.New(path)
	require.NoError(t, err)
	defer store.Close()

	b, err := store.GetOrCreateBalance(t.Context(), leave.LeaveBalance{
		ID: "bal-1", EmployeeID: "emp-1", LeaveTypeID: "annual", Year: 2026,
		OpeningEntitlement: generic.NewDays(15), Status: leave.BalanceOpen,
	})
	require.NoError(t, err)

	raw, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.Exec("UPDATE leave_balances SET used = 'n/a' WHERE id = ?", b.ID)
	require.NoError(t, err)

	// WHEN: Reading it back
	_, err = store.GetBalance(t.Context(), b.ID)

	// THEN: The read fails instead of reporting zero used days
	require.Error(t, err)
	assert.Contains(t, err.Error(), "column used")
}
