/*
Package sqlite provides a SQLite-backed implementation of leave.TxStore.

PURPOSE:
  Persists employees, policies, year configurations, holidays, requests,
  encashments, balances and the leave ledger in a single SQLite file. Used by
  the server by default and by the HTTP tests with ":memory:".

APPEND-ONLY ENFORCEMENT:
  leave_transactions is only ever INSERTed into:
  - No UPDATE statements on leave_transactions
  - No DELETE statements on leave_transactions (Reset excepted)
  - Reversals are CREDIT rows

KEY TABLES:
  leave_balances:     One row per (employee, leave type, year), version-checked
  leave_transactions: Immutable ledger, UNIQUE(request, encashment, kind)
  leave_requests:     Request state machine rows
  leave_encashments:  Encashment state machine rows
  leave_policies:     Entitlements, limits, eligibility, excluded weekdays
  leave_year_configurations, holidays, employees

CONCURRENCY:
  SQLite has a single writer. The pool is pinned to one connection and
  transactions begin IMMEDIATE (_txlock=immediate), so a unit of work holds
  the write lock from its first statement. A WithTx callback only talks to
  its *sql.Tx; it never re-enters the pool.

NUMBERS & DATES:
  Day quantities are stored as decimal TEXT and parsed with shopspring/decimal.
  Calendar dates are "2006-01-02"; timestamps are fixed-width UTC so they sort
  lexically.

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - leave/store.go: Interface definitions
  - leave/store/memory.go: In-memory implementation for testing
  - store/postgres: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements leave.TxStore using SQLite.
type Store struct {
	*queries
	db *sql.DB
	mu sync.Mutex
}

var _ leave.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per-connection, and SQLite
	// only has one writer anyway.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, queries: &queries{db: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		hire_date TEXT NOT NULL,
		employment_type TEXT NOT NULL DEFAULT '',
		employee_status TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS leave_policies (
		id TEXT PRIMARY KEY,
		leave_type_id TEXT NOT NULL,
		annual_entitlement TEXT NOT NULL,
		carry_limit TEXT NOT NULL,
		encash_limit TEXT NOT NULL,
		carried_over_years INTEGER NOT NULL DEFAULT 0,
		effective_date TEXT NOT NULL,
		expiry_date TEXT,
		minimum_service_months INTEGER NOT NULL DEFAULT 0,
		allowed_employment_types_json TEXT NOT NULL DEFAULT '[]',
		allowed_employee_statuses_json TEXT NOT NULL DEFAULT '[]',
		excluded_weekdays_json TEXT NOT NULL DEFAULT '[]'
	);

	-- Active policy lookups (hot path on every request)
	CREATE INDEX IF NOT EXISTS idx_leave_policies_type_effective
		ON leave_policies(leave_type_id, effective_date DESC);

	CREATE TABLE IF NOT EXISTS leave_year_configurations (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL DEFAULT '',
		year INTEGER NOT NULL UNIQUE,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_holidays_date ON holidays(date);

	CREATE TABLE IF NOT EXISTS leave_balances (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		opening_entitlement TEXT NOT NULL,
		carried_over TEXT NOT NULL,
		used TEXT NOT NULL,
		encashed TEXT NOT NULL,
		status TEXT NOT NULL,
		version INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(employee_id, leave_type_id, year)
	);

	CREATE INDEX IF NOT EXISTS idx_leave_balances_year_status
		ON leave_balances(year, status);

	-- Ledger (append-only)
	CREATE TABLE IF NOT EXISTS leave_transactions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		balance_id TEXT NOT NULL REFERENCES leave_balances(id),
		leave_request_id TEXT NOT NULL DEFAULT '',
		encashment_id TEXT NOT NULL DEFAULT '',
		delta TEXT NOT NULL,
		kind TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(leave_request_id, encashment_id, kind)
	);

	CREATE INDEX IF NOT EXISTS idx_leave_transactions_balance
		ON leave_transactions(balance_id, seq);

	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		is_half_day BOOLEAN NOT NULL DEFAULT FALSE,
		total_days TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		remarks TEXT NOT NULL DEFAULT '',
		balance_id TEXT NOT NULL DEFAULT '',
		acted_by TEXT NOT NULL DEFAULT '',
		acted_by_name TEXT NOT NULL DEFAULT '',
		acted_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_leave_requests_employee ON leave_requests(employee_id);
	CREATE INDEX IF NOT EXISTS idx_leave_requests_status ON leave_requests(status);

	CREATE TABLE IF NOT EXISTS leave_encashments (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		balance_id TEXT NOT NULL,
		days_requested TEXT NOT NULL,
		status TEXT NOT NULL,
		remarks TEXT NOT NULL DEFAULT '',
		acted_by TEXT NOT NULL DEFAULT '',
		acted_by_name TEXT NOT NULL DEFAULT '',
		acted_at TEXT,
		paid_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_leave_encashments_employee ON leave_encashments(employee_id, year);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (leave.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store leave.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{db: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"leave_transactions", "leave_encashments", "leave_requests", "leave_balances",
		"holidays", "leave_year_configurations", "leave_policies", "employees",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// QUERIES - Shared by the pooled store and the transactional view
// =============================================================================

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db dbtx
}

var _ leave.Store = (*queries)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

// --- balances ---

const balanceColumns = `id, employee_id, leave_type_id, year, opening_entitlement, carried_over,
	used, encashed, status, version, created_at, updated_at`

func (q *queries) GetOrCreateBalance(ctx context.Context, seed leave.LeaveBalance) (*leave.LeaveBalance, error) {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO leave_balances (`+balanceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(employee_id, leave_type_id, year) DO NOTHING`,
		seed.ID, seed.EmployeeID, seed.LeaveTypeID, seed.Year,
		seed.OpeningEntitlement.String(), seed.CarriedOver.String(),
		seed.Used.String(), seed.Encashed.String(),
		string(seed.Status), seed.Version,
		formatTimestamp(seed.CreatedAt), formatTimestamp(seed.UpdatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert balance: %w", err)
	}
	return q.FindBalance(ctx, seed.Key())
}

func (q *queries) GetBalance(ctx context.Context, id string) (*leave.LeaveBalance, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+balanceColumns+" FROM leave_balances WHERE id = ?", id)
	return scanOne(scanBalance(row))
}

func (q *queries) FindBalance(ctx context.Context, key leave.BalanceKey) (*leave.LeaveBalance, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT "+balanceColumns+" FROM leave_balances WHERE employee_id = ? AND leave_type_id = ? AND year = ?",
		key.EmployeeID, key.LeaveTypeID, key.Year)
	return scanOne(scanBalance(row))
}

func (q *queries) ListBalances(ctx context.Context, f leave.BalanceFilter) ([]leave.LeaveBalance, error) {
	var w where
	w.eq("employee_id", f.EmployeeID)
	w.eq("leave_type_id", f.LeaveTypeID)
	if f.Year != 0 {
		w.add("year = ?", f.Year)
	}
	if len(f.Statuses) > 0 {
		marks := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			marks[i] = "?"
			w.args = append(w.args, string(st))
		}
		w.clauses = append(w.clauses, "status IN ("+strings.Join(marks, ", ")+")")
	}

	rows, err := q.db.QueryContext(ctx,
		"SELECT "+balanceColumns+" FROM leave_balances"+w.sql()+" ORDER BY year DESC, employee_id, leave_type_id",
		w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var out []leave.LeaveBalance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (q *queries) UpdateBalance(ctx context.Context, b *leave.LeaveBalance) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE leave_balances
		SET opening_entitlement = ?, carried_over = ?, used = ?, encashed = ?,
		    status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		b.OpeningEntitlement.String(), b.CarriedOver.String(), b.Used.String(), b.Encashed.String(),
		string(b.Status), formatTimestamp(b.UpdatedAt), b.ID, b.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return q.staleOrMissing(ctx, b.ID)
	}
	b.Version++
	return nil
}

func (q *queries) staleOrMissing(ctx context.Context, id string) error {
	var one int
	err := q.db.QueryRowContext(ctx, "SELECT 1 FROM leave_balances WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("leave balance %s: %w", id, leave.ErrNotFound)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("leave balance %s: %w", id, leave.ErrConcurrentModification)
}

func scanBalance(row rowScanner) (*leave.LeaveBalance, error) {
	var (
		b                                        leave.LeaveBalance
		opening, carried, used, encashed, status string
		createdAt, updatedAt                     string
	)
	err := row.Scan(&b.ID, &b.EmployeeID, &b.LeaveTypeID, &b.Year,
		&opening, &carried, &used, &encashed, &status, &b.Version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	var dp generic.DaysParser
	b.OpeningEntitlement = dp.Parse("opening_entitlement", opening)
	b.CarriedOver = dp.Parse("carried_over", carried)
	b.Used = dp.Parse("used", used)
	b.Encashed = dp.Parse("encashed", encashed)
	b.Status = leave.BalanceStatus(status)
	b.CreatedAt = parseTimestamp(createdAt)
	b.UpdatedAt = parseTimestamp(updatedAt)
	if dp.Err != nil {
		return nil, fmt.Errorf("corrupt row %s: %w", b.ID, dp.Err)
	}
	return &b, nil
}

// --- ledger ---

const transactionColumns = "id, balance_id, leave_request_id, encashment_id, delta, kind, created_at"

// AppendTransaction adds an entry to the ledger. Append-only.
func (q *queries) AppendTransaction(ctx context.Context, tx leave.LeaveTransaction) error {
	_, err := q.db.ExecContext(ctx,
		"INSERT INTO leave_transactions ("+transactionColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		tx.ID, tx.BalanceID, tx.Ref.LeaveRequestID, tx.Ref.EncashmentID,
		tx.Delta.String(), string(tx.Kind), formatTimestamp(tx.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%s %s: %w", tx.Kind, tx.Ref, leave.ErrDuplicateTransaction)
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

func (q *queries) FindTransaction(ctx context.Context, ref leave.Reference, kind leave.TransactionKind) (*leave.LeaveTransaction, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT "+transactionColumns+" FROM leave_transactions WHERE leave_request_id = ? AND encashment_id = ? AND kind = ?",
		ref.LeaveRequestID, ref.EncashmentID, string(kind))
	return scanOne(scanTransaction(row))
}

func (q *queries) ListTransactions(ctx context.Context, balanceID string) ([]leave.LeaveTransaction, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+transactionColumns+" FROM leave_transactions WHERE balance_id = ? ORDER BY seq", balanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []leave.LeaveTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tx)
	}
	return out, rows.Err()
}

// SumTransactions adds deltas in Go: SQLite SUM over TEXT would go through REAL.
func (q *queries) SumTransactions(ctx context.Context, balanceID string) (decimal.Decimal, error) {
	txs, err := q.ListTransactions(ctx, balanceID)
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, tx := range txs {
		sum = sum.Add(tx.Delta)
	}
	return sum, nil
}

func scanTransaction(row rowScanner) (*leave.LeaveTransaction, error) {
	var (
		tx                     leave.LeaveTransaction
		delta, kind, createdAt string
	)
	err := row.Scan(&tx.ID, &tx.BalanceID, &tx.Ref.LeaveRequestID, &tx.Ref.EncashmentID, &delta, &kind, &createdAt)
	if err != nil {
		return nil, err
	}
	var dp generic.DaysParser
	tx.Delta = dp.Parse("delta", delta)
	tx.Kind = leave.TransactionKind(kind)
	tx.CreatedAt = parseTimestamp(createdAt)
	if dp.Err != nil {
		return nil, fmt.Errorf("corrupt row %s: %w", tx.ID, dp.Err)
	}
	return &tx, nil
}

// --- requests ---

const requestColumns = `id, employee_id, leave_type_id, start_date, end_date, is_half_day, total_days,
	status, reason, remarks, balance_id, acted_by, acted_by_name, acted_at, created_at, updated_at`

func (q *queries) CreateRequest(ctx context.Context, r *leave.LeaveRequest) error {
	_, err := q.db.ExecContext(ctx,
		"INSERT INTO leave_requests ("+requestColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		r.ID, r.EmployeeID, r.LeaveTypeID, generic.FormatDate(r.StartDate), generic.FormatDate(r.EndDate),
		r.IsHalfDay, r.TotalDays.String(), string(r.Status), r.Reason, r.Remarks, r.BalanceID,
		r.ActedBy, r.ActedByName, nullTimestamp(r.ActedAt),
		formatTimestamp(r.CreatedAt), formatTimestamp(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert leave request: %w", err)
	}
	return nil
}

func (q *queries) UpdateRequest(ctx context.Context, r *leave.LeaveRequest) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE leave_requests
		SET start_date = ?, end_date = ?, is_half_day = ?, total_days = ?, status = ?,
		    reason = ?, remarks = ?, balance_id = ?, acted_by = ?, acted_by_name = ?,
		    acted_at = ?, updated_at = ?
		WHERE id = ?`,
		generic.FormatDate(r.StartDate), generic.FormatDate(r.EndDate), r.IsHalfDay, r.TotalDays.String(),
		string(r.Status), r.Reason, r.Remarks, r.BalanceID, r.ActedBy, r.ActedByName,
		nullTimestamp(r.ActedAt), formatTimestamp(r.UpdatedAt), r.ID,
	)
	return expectOneRow(res, err, "leave request", r.ID)
}

func (q *queries) GetRequest(ctx context.Context, id string) (*leave.LeaveRequest, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+requestColumns+" FROM leave_requests WHERE id = ?", id)
	return scanOne(scanRequest(row))
}

func (q *queries) ListRequests(ctx context.Context, f leave.RequestFilter, page leave.Page) ([]leave.LeaveRequest, int, error) {
	var w where
	w.eq("employee_id", f.EmployeeID)
	w.eq("leave_type_id", f.LeaveTypeID)
	w.eq("status", string(f.Status))

	total, err := q.count(ctx, "leave_requests", w)
	if err != nil {
		return nil, 0, err
	}
	page = page.Normalize()
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+requestColumns+" FROM leave_requests"+w.sql()+" ORDER BY created_at DESC, id LIMIT ? OFFSET ?",
		append(w.args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query leave requests: %w", err)
	}
	defer rows.Close()

	out := []leave.LeaveRequest{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *r)
	}
	return out, total, rows.Err()
}

func scanRequest(row rowScanner) (*leave.LeaveRequest, error) {
	var (
		r                         leave.LeaveRequest
		start, end, total, status string
		actedAt                   sql.NullString
		createdAt, updatedAt      string
	)
	err := row.Scan(&r.ID, &r.EmployeeID, &r.LeaveTypeID, &start, &end, &r.IsHalfDay, &total,
		&status, &r.Reason, &r.Remarks, &r.BalanceID, &r.ActedBy, &r.ActedByName, &actedAt,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	r.StartDate = parseDate(start)
	r.EndDate = parseDate(end)
	var dp generic.DaysParser
	r.TotalDays = dp.Parse("total_days", total)
	r.Status = leave.RequestStatus(status)
	r.ActedAt = parseNullTimestamp(actedAt)
	r.CreatedAt = parseTimestamp(createdAt)
	r.UpdatedAt = parseTimestamp(updatedAt)
	if dp.Err != nil {
		return nil, fmt.Errorf("corrupt row %s: %w", r.ID, dp.Err)
	}
	return &r, nil
}

// --- encashments ---

const encashmentColumns = `id, employee_id, leave_type_id, year, balance_id, days_requested, status,
	remarks, acted_by, acted_by_name, acted_at, paid_at, created_at, updated_at`

func (q *queries) CreateEncashment(ctx context.Context, e *leave.LeaveEncashment) error {
	_, err := q.db.ExecContext(ctx,
		"INSERT INTO leave_encashments ("+encashmentColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		e.ID, e.EmployeeID, e.LeaveTypeID, e.Year, e.BalanceID, e.DaysRequested.String(), string(e.Status),
		e.Remarks, e.ActedBy, e.ActedByName, nullTimestamp(e.ActedAt), nullTimestamp(e.PaidAt),
		formatTimestamp(e.CreatedAt), formatTimestamp(e.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert encashment: %w", err)
	}
	return nil
}

func (q *queries) UpdateEncashment(ctx context.Context, e *leave.LeaveEncashment) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE leave_encashments
		SET status = ?, remarks = ?, acted_by = ?, acted_by_name = ?, acted_at = ?, paid_at = ?, updated_at = ?
		WHERE id = ?`,
		string(e.Status), e.Remarks, e.ActedBy, e.ActedByName,
		nullTimestamp(e.ActedAt), nullTimestamp(e.PaidAt), formatTimestamp(e.UpdatedAt), e.ID,
	)
	return expectOneRow(res, err, "leave encashment", e.ID)
}

func (q *queries) GetEncashment(ctx context.Context, id string) (*leave.LeaveEncashment, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+encashmentColumns+" FROM leave_encashments WHERE id = ?", id)
	return scanOne(scanEncashment(row))
}

func (q *queries) ListEncashments(ctx context.Context, f leave.EncashmentFilter, page leave.Page) ([]leave.LeaveEncashment, int, error) {
	var w where
	w.eq("employee_id", f.EmployeeID)
	w.eq("status", string(f.Status))
	if f.Year != 0 {
		w.add("year = ?", f.Year)
	}

	total, err := q.count(ctx, "leave_encashments", w)
	if err != nil {
		return nil, 0, err
	}
	page = page.Normalize()
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+encashmentColumns+" FROM leave_encashments"+w.sql()+" ORDER BY created_at DESC, id LIMIT ? OFFSET ?",
		append(w.args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query encashments: %w", err)
	}
	defer rows.Close()

	out := []leave.LeaveEncashment{}
	for rows.Next() {
		e, err := scanEncashment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *e)
	}
	return out, total, rows.Err()
}

func scanEncashment(row rowScanner) (*leave.LeaveEncashment, error) {
	var (
		e                    leave.LeaveEncashment
		daysRequested, st    string
		actedAt, paidAt      sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&e.ID, &e.EmployeeID, &e.LeaveTypeID, &e.Year, &e.BalanceID, &daysRequested, &st,
		&e.Remarks, &e.ActedBy, &e.ActedByName, &actedAt, &paidAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	var dp generic.DaysParser
	e.DaysRequested = dp.Parse("days_requested", daysRequested)
	e.Status = leave.EncashmentStatus(st)
	e.ActedAt = parseNullTimestamp(actedAt)
	e.PaidAt = parseNullTimestamp(paidAt)
	e.CreatedAt = parseTimestamp(createdAt)
	e.UpdatedAt = parseTimestamp(updatedAt)
	if dp.Err != nil {
		return nil, fmt.Errorf("corrupt row %s: %w", e.ID, dp.Err)
	}
	return &e, nil
}

// --- policies ---

const policyColumns = `id, leave_type_id, annual_entitlement, carry_limit, encash_limit, carried_over_years,
	effective_date, expiry_date, minimum_service_months, allowed_employment_types_json,
	allowed_employee_statuses_json, excluded_weekdays_json`

func (q *queries) SavePolicy(ctx context.Context, p *leave.LeavePolicy) error {
	types, _ := json.Marshal(nonNil(p.AllowedEmploymentTypes))
	statuses, _ := json.Marshal(nonNil(p.AllowedEmployeeStatuses))
	weekdays, _ := json.Marshal(generic.NewWeekdaySet(p.ExcludedWeekdays...).Ints())

	var expiry sql.NullString
	if p.ExpiryDate != nil {
		expiry = sql.NullString{String: generic.FormatDate(*p.ExpiryDate), Valid: true}
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO leave_policies (`+policyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			leave_type_id = excluded.leave_type_id,
			annual_entitlement = excluded.annual_entitlement,
			carry_limit = excluded.carry_limit,
			encash_limit = excluded.encash_limit,
			carried_over_years = excluded.carried_over_years,
			effective_date = excluded.effective_date,
			expiry_date = excluded.expiry_date,
			minimum_service_months = excluded.minimum_service_months,
			allowed_employment_types_json = excluded.allowed_employment_types_json,
			allowed_employee_statuses_json = excluded.allowed_employee_statuses_json,
			excluded_weekdays_json = excluded.excluded_weekdays_json`,
		p.ID, p.LeaveTypeID, p.AnnualEntitlement.String(), p.CarryLimit.String(), p.EncashLimit.String(),
		p.CarriedOverYears, generic.FormatDate(p.EffectiveDate), expiry, p.MinimumServiceMonths,
		string(types), string(statuses), string(weekdays),
	)
	if err != nil {
		return fmt.Errorf("failed to save policy: %w", err)
	}
	return nil
}

func (q *queries) GetPolicy(ctx context.Context, id string) (*leave.LeavePolicy, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+policyColumns+" FROM leave_policies WHERE id = ?", id)
	return scanOne(scanPolicy(row))
}

func (q *queries) ListPolicies(ctx context.Context, leaveTypeID string) ([]leave.LeavePolicy, error) {
	var w where
	w.eq("leave_type_id", leaveTypeID)
	return q.queryPolicies(ctx, "SELECT "+policyColumns+" FROM leave_policies"+w.sql()+" ORDER BY effective_date DESC, id", w.args...)
}

func (q *queries) ActivePolicies(ctx context.Context, leaveTypeID string, date time.Time) ([]leave.LeavePolicy, error) {
	d := generic.FormatDate(date)
	return q.queryPolicies(ctx, `
		SELECT `+policyColumns+` FROM leave_policies
		WHERE leave_type_id = ? AND effective_date <= ? AND (expiry_date IS NULL OR expiry_date > ?)
		ORDER BY effective_date DESC, id`,
		leaveTypeID, d, d)
}

func (q *queries) queryPolicies(ctx context.Context, query string, args ...any) ([]leave.LeavePolicy, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query policies: %w", err)
	}
	defer rows.Close()

	var out []leave.LeavePolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanPolicy(row rowScanner) (*leave.LeavePolicy, error) {
	var (
		p                                 leave.LeavePolicy
		entitlement, carry, encash        string
		effective                         string
		expiry                            sql.NullString
		typesJSON, statusesJSON, daysJSON string
	)
	err := row.Scan(&p.ID, &p.LeaveTypeID, &entitlement, &carry, &encash, &p.CarriedOverYears,
		&effective, &expiry, &p.MinimumServiceMonths, &typesJSON, &statusesJSON, &daysJSON)
	if err != nil {
		return nil, err
	}
	var dp generic.DaysParser
	p.AnnualEntitlement = dp.Parse("annual_entitlement", entitlement)
	p.CarryLimit = dp.Parse("carry_limit", carry)
	p.EncashLimit = dp.Parse("encash_limit", encash)
	p.EffectiveDate = parseDate(effective)
	if expiry.Valid {
		d := parseDate(expiry.String)
		p.ExpiryDate = &d
	}
	if err := json.Unmarshal([]byte(typesJSON), &p.AllowedEmploymentTypes); err != nil {
		return nil, fmt.Errorf("policy %s: bad employment types: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(statusesJSON), &p.AllowedEmployeeStatuses); err != nil {
		return nil, fmt.Errorf("policy %s: bad employee statuses: %w", p.ID, err)
	}
	var days []int
	if err := json.Unmarshal([]byte(daysJSON), &days); err != nil {
		return nil, fmt.Errorf("policy %s: bad excluded weekdays: %w", p.ID, err)
	}
	for _, d := range days {
		p.ExcludedWeekdays = append(p.ExcludedWeekdays, time.Weekday(d))
	}
	if dp.Err != nil {
		return nil, fmt.Errorf("corrupt row %s: %w", p.ID, dp.Err)
	}
	return &p, nil
}

// --- year configurations ---

const yearColumns = "id, label, year, start_date, end_date"

func (q *queries) SaveYearConfiguration(ctx context.Context, y *leave.LeaveYearConfiguration) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO leave_year_configurations (`+yearColumns+`) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			label = excluded.label, year = excluded.year,
			start_date = excluded.start_date, end_date = excluded.end_date`,
		y.ID, y.Label, y.Year, generic.FormatDate(y.StartDate), generic.FormatDate(y.EndDate))
	if err != nil {
		return fmt.Errorf("failed to save year configuration: %w", err)
	}
	return nil
}

func (q *queries) ListYearConfigurations(ctx context.Context) ([]leave.LeaveYearConfiguration, error) {
	return q.queryYears(ctx, "SELECT "+yearColumns+" FROM leave_year_configurations ORDER BY start_date DESC")
}

func (q *queries) YearConfigurationsCovering(ctx context.Context, date time.Time) ([]leave.LeaveYearConfiguration, error) {
	d := generic.FormatDate(date)
	return q.queryYears(ctx,
		"SELECT "+yearColumns+" FROM leave_year_configurations WHERE start_date <= ? AND end_date >= ? ORDER BY start_date DESC",
		d, d)
}

func (q *queries) YearConfigurationByYear(ctx context.Context, year int) (*leave.LeaveYearConfiguration, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+yearColumns+" FROM leave_year_configurations WHERE year = ?", year)
	return scanOne(scanYear(row))
}

func (q *queries) queryYears(ctx context.Context, query string, args ...any) ([]leave.LeaveYearConfiguration, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query year configurations: %w", err)
	}
	defer rows.Close()

	var out []leave.LeaveYearConfiguration
	for rows.Next() {
		y, err := scanYear(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *y)
	}
	return out, rows.Err()
}

func scanYear(row rowScanner) (*leave.LeaveYearConfiguration, error) {
	var y leave.LeaveYearConfiguration
	var start, end string
	if err := row.Scan(&y.ID, &y.Label, &y.Year, &start, &end); err != nil {
		return nil, err
	}
	y.StartDate = parseDate(start)
	y.EndDate = parseDate(end)
	return &y, nil
}

// --- holidays ---

func (q *queries) SaveHoliday(ctx context.Context, h *leave.Holiday) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO holidays (id, date, description) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET date = excluded.date, description = excluded.description`,
		h.ID, generic.FormatDate(h.Date), h.Description)
	if err != nil {
		return fmt.Errorf("failed to save holiday: %w", err)
	}
	return nil
}

func (q *queries) DeleteHoliday(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, "DELETE FROM holidays WHERE id = ?", id)
	return expectOneRow(res, err, "holiday", id)
}

func (q *queries) ListHolidays(ctx context.Context, from, to time.Time) ([]leave.Holiday, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT id, date, description FROM holidays WHERE date >= ? AND date <= ? ORDER BY date",
		generic.FormatDate(from), generic.FormatDate(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	defer rows.Close()

	var out []leave.Holiday
	for rows.Next() {
		var h leave.Holiday
		var date string
		if err := rows.Scan(&h.ID, &date, &h.Description); err != nil {
			return nil, err
		}
		h.Date = parseDate(date)
		out = append(out, h)
	}
	return out, rows.Err()
}

// --- employees ---

const employeeColumns = "id, name, hire_date, employment_type, employee_status, created_at"

func (q *queries) SaveEmployee(ctx context.Context, e *leave.Employee) error {
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO employees (`+employeeColumns+`) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			hire_date = excluded.hire_date,
			employment_type = excluded.employment_type,
			employee_status = excluded.employee_status`,
		e.ID, e.Name, generic.FormatDate(e.HireDate), e.EmploymentType, e.EmployeeStatus, formatTimestamp(created))
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

func (q *queries) GetEmployee(ctx context.Context, id string) (*leave.Employee, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+employeeColumns+" FROM employees WHERE id = ?", id)
	return scanOne(scanEmployee(row))
}

func (q *queries) ListEmployees(ctx context.Context) ([]leave.Employee, error) {
	rows, err := q.db.QueryContext(ctx, "SELECT "+employeeColumns+" FROM employees ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	var out []leave.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func scanEmployee(row rowScanner) (*leave.Employee, error) {
	var e leave.Employee
	var hireDate, createdAt string
	if err := row.Scan(&e.ID, &e.Name, &hireDate, &e.EmploymentType, &e.EmployeeStatus, &createdAt); err != nil {
		return nil, err
	}
	e.HireDate = parseDate(hireDate)
	e.CreatedAt = parseTimestamp(createdAt)
	return &e, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// where accumulates AND-ed filter clauses.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, arg any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, arg)
}

// eq adds column = value when value is non-empty.
func (w *where) eq(column, value string) {
	if value != "" {
		w.add(column+" = ?", value)
	}
}

func (w *where) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func (q *queries) count(ctx context.Context, table string, w where) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+w.sql(), w.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// scanOne maps sql.ErrNoRows to (nil, nil).
func scanOne[T any](v *T, err error) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func expectOneRow(res sql.Result, err error, entity, id string) error {
	if err != nil {
		return fmt.Errorf("failed to write %s %s: %w", entity, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, leave.ErrNotFound)
	}
	return nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) time.Time {
	t, _ := time.Parse(timestampLayout, s)
	return t
}

func nullTimestamp(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTimestamp(*t), Valid: true}
}

func parseNullTimestamp(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTimestamp(s.String)
	return &t
}

func parseDate(s string) time.Time {
	t, _ := generic.ParseDate(s)
	return t
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
