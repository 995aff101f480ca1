/*
Package postgres provides a PostgreSQL implementation of leave.TxStore on pgx.

PURPOSE:
  The production store. Same schema shape as store/sqlite with native types:
  NUMERIC day quantities, DATE calendar days, TIMESTAMPTZ audit stamps,
  TEXT[]/INTEGER[] policy lists.

CONCURRENCY:
  Inside WithTx, balance/request/encashment reads take row locks
  (SELECT ... FOR UPDATE), so two units of work debiting the same balance
  run one after the other. UpdateBalance is still version-checked.

MIGRATIONS:
  Versioned statements applied once each, recorded in schema_migrations.

USAGE:
  pool, err := postgres.Connect(ctx, databaseURL)
  store, err := postgres.New(ctx, pool)
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// Connect opens a connection pool.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	return pgxpool.NewWithConfig(ctx, poolCfg)
}

// Store implements leave.TxStore on a pgx pool.
type Store struct {
	*queries
	pool *pgxpool.Pool
}

var _ leave.TxStore = (*Store)(nil)

// New migrates the schema and returns a store. The caller owns the pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if err := Migrate(ctx, pool); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{pool: pool, queries: &queries{db: pool}}, nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(leave.Store) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&queries{db: tx, lock: true}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE leave_transactions, leave_encashments, leave_requests,
		leave_balances, holidays, leave_year_configurations, leave_policies, employees`)
	return err
}

// =============================================================================
// MIGRATIONS
// =============================================================================

var migrations = []struct {
	version string
	sql     string
}{
	{"0001_leave_schema", `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		hire_date DATE NOT NULL,
		employment_type TEXT NOT NULL DEFAULT '',
		employee_status TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS leave_policies (
		id TEXT PRIMARY KEY,
		leave_type_id TEXT NOT NULL,
		annual_entitlement NUMERIC(10,2) NOT NULL,
		carry_limit NUMERIC(10,2) NOT NULL DEFAULT 0,
		encash_limit NUMERIC(10,2) NOT NULL DEFAULT 0,
		carried_over_years INTEGER NOT NULL DEFAULT 0,
		effective_date DATE NOT NULL,
		expiry_date DATE,
		minimum_service_months INTEGER NOT NULL DEFAULT 0,
		allowed_employment_types TEXT[] NOT NULL DEFAULT '{}',
		allowed_employee_statuses TEXT[] NOT NULL DEFAULT '{}',
		excluded_weekdays INTEGER[] NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_leave_policies_type_effective
		ON leave_policies(leave_type_id, effective_date DESC);

	CREATE TABLE IF NOT EXISTS leave_year_configurations (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL DEFAULT '',
		year INTEGER NOT NULL UNIQUE,
		start_date DATE NOT NULL,
		end_date DATE NOT NULL CHECK (end_date >= start_date)
	);

	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		date DATE NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_holidays_date ON holidays(date);

	CREATE TABLE IF NOT EXISTS leave_balances (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		opening_entitlement NUMERIC(10,2) NOT NULL,
		carried_over NUMERIC(10,2) NOT NULL,
		used NUMERIC(10,2) NOT NULL,
		encashed NUMERIC(10,2) NOT NULL,
		status TEXT NOT NULL,
		version BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (employee_id, leave_type_id, year)
	);
	CREATE INDEX IF NOT EXISTS idx_leave_balances_year_status ON leave_balances(year, status);

	CREATE TABLE IF NOT EXISTS leave_transactions (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		balance_id TEXT NOT NULL REFERENCES leave_balances(id),
		leave_request_id TEXT NOT NULL DEFAULT '',
		encashment_id TEXT NOT NULL DEFAULT '',
		delta NUMERIC(10,2) NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('DEBIT', 'CREDIT')),
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (leave_request_id, encashment_id, kind)
	);
	CREATE INDEX IF NOT EXISTS idx_leave_transactions_balance ON leave_transactions(balance_id, seq);

	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		start_date DATE NOT NULL,
		end_date DATE NOT NULL,
		is_half_day BOOLEAN NOT NULL DEFAULT FALSE,
		total_days NUMERIC(10,2) NOT NULL,
		status TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		remarks TEXT NOT NULL DEFAULT '',
		balance_id TEXT NOT NULL DEFAULT '',
		acted_by TEXT NOT NULL DEFAULT '',
		acted_by_name TEXT NOT NULL DEFAULT '',
		acted_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_leave_requests_employee ON leave_requests(employee_id);
	CREATE INDEX IF NOT EXISTS idx_leave_requests_status ON leave_requests(status);

	CREATE TABLE IF NOT EXISTS leave_encashments (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		balance_id TEXT NOT NULL,
		days_requested NUMERIC(10,2) NOT NULL,
		status TEXT NOT NULL,
		remarks TEXT NOT NULL DEFAULT '',
		acted_by TEXT NOT NULL DEFAULT '',
		acted_by_name TEXT NOT NULL DEFAULT '',
		acted_at TIMESTAMPTZ,
		paid_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_leave_encashments_employee ON leave_encashments(employee_id, year);
	`},
}

// Migrate applies pending migrations, each in its own transaction.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx,
		"CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now())",
	); err != nil {
		return err
	}

	for _, m := range migrations {
		var count int
		if err := pool.QueryRow(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = $1", m.version).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			continue
		}

		tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, m.sql); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("migration %s failed: %w", m.version, err)
		}
		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.version); err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// QUERIES - Shared by the pool and the transactional view
// =============================================================================

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queries struct {
	db querier
	// lock appends FOR UPDATE to single-row reads of mutable rows.
	lock bool
}

var _ leave.Store = (*queries)(nil)

func (q *queries) forUpdate() string {
	if q.lock {
		return " FOR UPDATE"
	}
	return ""
}

// --- balances ---

const balanceColumns = `id, employee_id, leave_type_id, year, opening_entitlement::text, carried_over::text,
	used::text, encashed::text, status, version, created_at, updated_at`

func (q *queries) GetOrCreateBalance(ctx context.Context, seed leave.LeaveBalance) (*leave.LeaveBalance, error) {
	_, err := q.db.Exec(ctx, `
		INSERT INTO leave_balances (id, employee_id, leave_type_id, year, opening_entitlement, carried_over,
			used, encashed, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (employee_id, leave_type_id, year) DO NOTHING`,
		seed.ID, seed.EmployeeID, seed.LeaveTypeID, seed.Year,
		seed.OpeningEntitlement.String(), seed.CarriedOver.String(), seed.Used.String(), seed.Encashed.String(),
		string(seed.Status), seed.Version, seed.CreatedAt, seed.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert balance: %w", err)
	}
	return q.FindBalance(ctx, seed.Key())
}

func (q *queries) GetBalance(ctx context.Context, id string) (*leave.LeaveBalance, error) {
	row := q.db.QueryRow(ctx, "SELECT "+balanceColumns+" FROM leave_balances WHERE id = $1"+q.forUpdate(), id)
	return scanOne(scanBalance(row))
}

func (q *queries) FindBalance(ctx context.Context, key leave.BalanceKey) (*leave.LeaveBalance, error) {
	row := q.db.QueryRow(ctx,
		"SELECT "+balanceColumns+" FROM leave_balances WHERE employee_id = $1 AND leave_type_id = $2 AND year = $3"+q.forUpdate(),
		key.EmployeeID, key.LeaveTypeID, key.Year)
	return scanOne(scanBalance(row))
}

func (q *queries) ListBalances(ctx context.Context, f leave.BalanceFilter) ([]leave.LeaveBalance, error) {
	var w where
	w.eq("employee_id", f.EmployeeID)
	w.eq("leave_type_id", f.LeaveTypeID)
	if f.Year != 0 {
		w.add("year = $%d", f.Year)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		w.add("status = ANY($%d)", statuses)
	}

	rows, err := q.db.Query(ctx,
		"SELECT "+balanceColumns+" FROM leave_balances"+w.sql()+" ORDER BY year DESC, employee_id, leave_type_id",
		w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	return collect(rows, scanBalance)
}

func (q *queries) UpdateBalance(ctx context.Context, b *leave.LeaveBalance) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE leave_balances
		SET opening_entitlement = $1, carried_over = $2, used = $3, encashed = $4,
		    status = $5, version = version + 1, updated_at = $6
		WHERE id = $7 AND version = $8`,
		b.OpeningEntitlement.String(), b.CarriedOver.String(), b.Used.String(), b.Encashed.String(),
		string(b.Status), b.UpdatedAt, b.ID, b.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var one int
		err := q.db.QueryRow(ctx, "SELECT 1 FROM leave_balances WHERE id = $1", b.ID).Scan(&one)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("leave balance %s: %w", b.ID, leave.ErrNotFound)
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("leave balance %s: %w", b.ID, leave.ErrConcurrentModification)
	}
	b.Version++
	return nil
}

func scanBalance(row pgx.Row) (*leave.LeaveBalance, error) {
	var (
		b                                leave.LeaveBalance
		opening, carried, used, encashed string
		status                           string
	)
	err := row.Scan(&b.ID, &b.EmployeeID, &b.LeaveTypeID, &b.Year,
		&opening, &carried, &used, &encashed, &status, &b.Version, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	var dp generic.DaysParser
	b.OpeningEntitlement = dp.Parse("opening_entitlement", opening)
	b.CarriedOver = dp.Parse("carried_over", carried)
	b.Used = dp.Parse("used", used)
	b.Encashed = dp.Parse("encashed", encashed)
	b.Status = leave.BalanceStatus(status)
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	if dp.Err != nil {
		return nil, fmt.Errorf("corrupt row %s: %w", b.ID, dp.Err)
	}
	return &b, nil
}

// --- ledger ---

const transactionColumns = "id, balance_id, leave_request_id, encashment_id, delta::text, kind, created_at"

// AppendTransaction adds an entry to the ledger. Append-only.
func (q *queries) AppendTransaction(ctx context.Context, tx leave.LeaveTransaction) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO leave_transactions (id, balance_id, leave_request_id, encashment_id, delta, kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tx.ID, tx.BalanceID, tx.Ref.LeaveRequestID, tx.Ref.EncashmentID,
		tx.Delta.String(), string(tx.Kind), tx.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%s %s: %w", tx.Kind, tx.Ref, leave.ErrDuplicateTransaction)
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

func (q *queries) FindTransaction(ctx context.Context, ref leave.Reference, kind leave.TransactionKind) (*leave.LeaveTransaction, error) {
	row := q.db.QueryRow(ctx,
		"SELECT "+transactionColumns+" FROM leave_transactions WHERE leave_request_id = $1 AND encashment_id = $2 AND kind = $3",
		ref.LeaveRequestID, ref.EncashmentID, string(kind))
	return scanOne(scanTransaction(row))
}

func (q *queries) ListTransactions(ctx context.Context, balanceID string) ([]leave.LeaveTransaction, error) {
	rows, err := q.db.Query(ctx,
		"SELECT "+transactionColumns+" FROM leave_transactions WHERE balance_id = $1 ORDER BY seq", balanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	return collect(rows, scanTransaction)
}

func (q *queries) SumTransactions(ctx context.Context, balanceID string) (decimal.Decimal, error) {
	var sum string
	err := q.db.QueryRow(ctx,
		"SELECT COALESCE(SUM(delta), 0)::text FROM leave_transactions WHERE balance_id = $1", balanceID,
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum transactions: %w", err)
	}
	return generic.ParseDays(sum)
}

func scanTransaction(row pgx.Row) (*leave.LeaveTransaction, error) {
	var tx leave.LeaveTransaction
	var delta, kind string
	err := row.Scan(&tx.ID, &tx.BalanceID, &tx.Ref.LeaveRequestID, &tx.Ref.EncashmentID, &delta, &kind, &tx.CreatedAt)
	if err != nil {
		return nil, err
	}
	var dp generic.DaysParser
	tx.Delta = dp.Parse("delta", delta)
	tx.Kind = leave.TransactionKind(kind)
	tx.CreatedAt = tx.CreatedAt.UTC()
	if dp.Err != nil {
		return nil, fmt.Errorf("corrupt row %s: %w", tx.ID, dp.Err)
	}
	return &tx, nil
}

// --- requests ---

const requestColumns = `id, employee_id, leave_type_id, start_date, end_date, is_half_day, total_days::text,
	status, reason, remarks, balance_id, acted_by, acted_by_name, acted_at, created_at, updated_at`

func (q *queries) CreateRequest(ctx context.Context, r *leave.LeaveRequest) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO leave_requests (id, employee_id, leave_type_id, start_date, end_date, is_half_day, total_days,
			status, reason, remarks, balance_id, acted_by, acted_by_name, acted_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		r.ID, r.EmployeeID, r.LeaveTypeID, r.StartDate, r.EndDate, r.IsHalfDay, r.TotalDays.String(),
		string(r.Status), r.Reason, r.Remarks, r.BalanceID, r.ActedBy, r.ActedByName, r.ActedAt,
		r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert leave request: %w", err)
	}
	return nil
}

func (q *queries) UpdateRequest(ctx context.Context, r *leave.LeaveRequest) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE leave_requests
		SET start_date = $1, end_date = $2, is_half_day = $3, total_days = $4, status = $5,
		    reason = $6, remarks = $7, balance_id = $8, acted_by = $9, acted_by_name = $10,
		    acted_at = $11, updated_at = $12
		WHERE id = $13`,
		r.StartDate, r.EndDate, r.IsHalfDay, r.TotalDays.String(), string(r.Status),
		r.Reason, r.Remarks, r.BalanceID, r.ActedBy, r.ActedByName, r.ActedAt, r.UpdatedAt, r.ID,
	)
	return expectOneRow(tag, err, "leave request", r.ID)
}

func (q *queries) GetRequest(ctx context.Context, id string) (*leave.LeaveRequest, error) {
	row := q.db.QueryRow(ctx, "SELECT "+requestColumns+" FROM leave_requests WHERE id = $1"+q.forUpdate(), id)
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
	query := "SELECT " + requestColumns + " FROM leave_requests" + w.sql() +
		fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", len(w.args)+1, len(w.args)+2)
	rows, err := q.db.Query(ctx, query, append(w.args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query leave requests: %w", err)
	}
	out, err := collect(rows, scanRequest)
	if out == nil {
		out = []leave.LeaveRequest{}
	}
	return out, total, err
}

func scanRequest(row pgx.Row) (*leave.LeaveRequest, error) {
	var r leave.LeaveRequest
	var total, status string
	err := row.Scan(&r.ID, &r.EmployeeID, &r.LeaveTypeID, &r.StartDate, &r.EndDate, &r.IsHalfDay, &total,
		&status, &r.Reason, &r.Remarks, &r.BalanceID, &r.ActedBy, &r.ActedByName, &r.ActedAt,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	var dp generic.DaysParser
	r.TotalDays = dp.Parse("total_days", total)
	r.Status = leave.RequestStatus(status)
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	r.ActedAt = utcPtr(r.ActedAt)
	if dp.Err != nil {
		return nil, fmt.Errorf("corrupt row %s: %w", r.ID, dp.Err)
	}
	return &r, nil
}

// --- encashments ---

const encashmentColumns = `id, employee_id, leave_type_id, year, balance_id, days_requested::text, status,
	remarks, acted_by, acted_by_name, acted_at, paid_at, created_at, updated_at`

func (q *queries) CreateEncashment(ctx context.Context, e *leave.LeaveEncashment) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO leave_encashments (id, employee_id, leave_type_id, year, balance_id, days_requested, status,
			remarks, acted_by, acted_by_name, acted_at, paid_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		e.ID, e.EmployeeID, e.LeaveTypeID, e.Year, e.BalanceID, e.DaysRequested.String(), string(e.Status),
		e.Remarks, e.ActedBy, e.ActedByName, e.ActedAt, e.PaidAt, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert encashment: %w", err)
	}
	return nil
}

func (q *queries) UpdateEncashment(ctx context.Context, e *leave.LeaveEncashment) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE leave_encashments
		SET status = $1, remarks = $2, acted_by = $3, acted_by_name = $4, acted_at = $5, paid_at = $6, updated_at = $7
		WHERE id = $8`,
		string(e.Status), e.Remarks, e.ActedBy, e.ActedByName, e.ActedAt, e.PaidAt, e.UpdatedAt, e.ID,
	)
	return expectOneRow(tag, err, "leave encashment", e.ID)
}

func (q *queries) GetEncashment(ctx context.Context, id string) (*leave.LeaveEncashment, error) {
	row := q.db.QueryRow(ctx, "SELECT "+encashmentColumns+" FROM leave_encashments WHERE id = $1"+q.forUpdate(), id)
	return scanOne(scanEncashment(row))
}

func (q *queries) ListEncashments(ctx context.Context, f leave.EncashmentFilter, page leave.Page) ([]leave.LeaveEncashment, int, error) {
	var w where
	w.eq("employee_id", f.EmployeeID)
	w.eq("status", string(f.Status))
	if f.Year != 0 {
		w.add("year = $%d", f.Year)
	}

	total, err := q.count(ctx, "leave_encashments", w)
	if err != nil {
		return nil, 0, err
	}
	page = page.Normalize()
	query := "SELECT " + encashmentColumns + " FROM leave_encashments" + w.sql() +
		fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", len(w.args)+1, len(w.args)+2)
	rows, err := q.db.Query(ctx, query, append(w.args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query encashments: %w", err)
	}
	out, err := collect(rows, scanEncashment)
	if out == nil {
		out = []leave.LeaveEncashment{}
	}
	return out, total, err
}

func scanEncashment(row pgx.Row) (*leave.LeaveEncashment, error) {
	var e leave.LeaveEncashment
	var days, status string
	err := row.Scan(&e.ID, &e.EmployeeID, &e.LeaveTypeID, &e.Year, &e.BalanceID, &days, &status,
		&e.Remarks, &e.ActedBy, &e.ActedByName, &e.ActedAt, &e.PaidAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	var dp generic.DaysParser
	e.DaysRequested = dp.Parse("days_requested", days)
	e.Status = leave.EncashmentStatus(status)
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	e.ActedAt = utcPtr(e.ActedAt)
	e.PaidAt = utcPtr(e.PaidAt)
	if dp.Err != nil {
		return nil, fmt.Errorf("corrupt row %s: %w", e.ID, dp.Err)
	}
	return &e, nil
}

// --- policies ---

const policyColumns = `id, leave_type_id, annual_entitlement::text, carry_limit::text, encash_limit::text,
	carried_over_years, effective_date, expiry_date, minimum_service_months,
	allowed_employment_types, allowed_employee_statuses, excluded_weekdays`

func (q *queries) SavePolicy(ctx context.Context, p *leave.LeavePolicy) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO leave_policies (id, leave_type_id, annual_entitlement, carry_limit, encash_limit,
			carried_over_years, effective_date, expiry_date, minimum_service_months,
			allowed_employment_types, allowed_employee_statuses, excluded_weekdays)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			leave_type_id = EXCLUDED.leave_type_id,
			annual_entitlement = EXCLUDED.annual_entitlement,
			carry_limit = EXCLUDED.carry_limit,
			encash_limit = EXCLUDED.encash_limit,
			carried_over_years = EXCLUDED.carried_over_years,
			effective_date = EXCLUDED.effective_date,
			expiry_date = EXCLUDED.expiry_date,
			minimum_service_months = EXCLUDED.minimum_service_months,
			allowed_employment_types = EXCLUDED.allowed_employment_types,
			allowed_employee_statuses = EXCLUDED.allowed_employee_statuses,
			excluded_weekdays = EXCLUDED.excluded_weekdays`,
		p.ID, p.LeaveTypeID, p.AnnualEntitlement.String(), p.CarryLimit.String(), p.EncashLimit.String(),
		p.CarriedOverYears, p.EffectiveDate, p.ExpiryDate, p.MinimumServiceMonths,
		nonNil(p.AllowedEmploymentTypes), nonNil(p.AllowedEmployeeStatuses),
		generic.NewWeekdaySet(p.ExcludedWeekdays...).Ints(),
	)
	if err != nil {
		return fmt.Errorf("failed to save policy: %w", err)
	}
	return nil
}

func (q *queries) GetPolicy(ctx context.Context, id string) (*leave.LeavePolicy, error) {
	row := q.db.QueryRow(ctx, "SELECT "+policyColumns+" FROM leave_policies WHERE id = $1", id)
	return scanOne(scanPolicy(row))
}

func (q *queries) ListPolicies(ctx context.Context, leaveTypeID string) ([]leave.LeavePolicy, error) {
	var w where
	w.eq("leave_type_id", leaveTypeID)
	rows, err := q.db.Query(ctx,
		"SELECT "+policyColumns+" FROM leave_policies"+w.sql()+" ORDER BY effective_date DESC, id", w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query policies: %w", err)
	}
	return collect(rows, scanPolicy)
}

func (q *queries) ActivePolicies(ctx context.Context, leaveTypeID string, date time.Time) ([]leave.LeavePolicy, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+policyColumns+` FROM leave_policies
		WHERE leave_type_id = $1 AND effective_date <= $2 AND (expiry_date IS NULL OR expiry_date > $2)
		ORDER BY effective_date DESC, id`,
		leaveTypeID, generic.Day(date))
	if err != nil {
		return nil, fmt.Errorf("failed to query policies: %w", err)
	}
	return collect(rows, scanPolicy)
}

func scanPolicy(row pgx.Row) (*leave.LeavePolicy, error) {
	var (
		p                          leave.LeavePolicy
		entitlement, carry, encash string
		weekdays                   []int
	)
	err := row.Scan(&p.ID, &p.LeaveTypeID, &entitlement, &carry, &encash,
		&p.CarriedOverYears, &p.EffectiveDate, &p.ExpiryDate, &p.MinimumServiceMonths,
		&p.AllowedEmploymentTypes, &p.AllowedEmployeeStatuses, &weekdays)
	if err != nil {
		return nil, err
	}
	var dp generic.DaysParser
	p.AnnualEntitlement = dp.Parse("annual_entitlement", entitlement)
	p.CarryLimit = dp.Parse("carry_limit", carry)
	p.EncashLimit = dp.Parse("encash_limit", encash)
	for _, d := range weekdays {
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
	_, err := q.db.Exec(ctx, `
		INSERT INTO leave_year_configurations (`+yearColumns+`) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			label = EXCLUDED.label, year = EXCLUDED.year,
			start_date = EXCLUDED.start_date, end_date = EXCLUDED.end_date`,
		y.ID, y.Label, y.Year, y.StartDate, y.EndDate)
	if err != nil {
		return fmt.Errorf("failed to save year configuration: %w", err)
	}
	return nil
}

func (q *queries) ListYearConfigurations(ctx context.Context) ([]leave.LeaveYearConfiguration, error) {
	rows, err := q.db.Query(ctx, "SELECT "+yearColumns+" FROM leave_year_configurations ORDER BY start_date DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query year configurations: %w", err)
	}
	return collect(rows, scanYear)
}

func (q *queries) YearConfigurationsCovering(ctx context.Context, date time.Time) ([]leave.LeaveYearConfiguration, error) {
	rows, err := q.db.Query(ctx,
		"SELECT "+yearColumns+" FROM leave_year_configurations WHERE start_date <= $1 AND end_date >= $1 ORDER BY start_date DESC",
		generic.Day(date))
	if err != nil {
		return nil, fmt.Errorf("failed to query year configurations: %w", err)
	}
	return collect(rows, scanYear)
}

func (q *queries) YearConfigurationByYear(ctx context.Context, year int) (*leave.LeaveYearConfiguration, error) {
	row := q.db.QueryRow(ctx, "SELECT "+yearColumns+" FROM leave_year_configurations WHERE year = $1", year)
	return scanOne(scanYear(row))
}

func scanYear(row pgx.Row) (*leave.LeaveYearConfiguration, error) {
	var y leave.LeaveYearConfiguration
	if err := row.Scan(&y.ID, &y.Label, &y.Year, &y.StartDate, &y.EndDate); err != nil {
		return nil, err
	}
	return &y, nil
}

// --- holidays ---

func (q *queries) SaveHoliday(ctx context.Context, h *leave.Holiday) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO holidays (id, date, description) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET date = EXCLUDED.date, description = EXCLUDED.description`,
		h.ID, generic.Day(h.Date), h.Description)
	if err != nil {
		return fmt.Errorf("failed to save holiday: %w", err)
	}
	return nil
}

func (q *queries) DeleteHoliday(ctx context.Context, id string) error {
	tag, err := q.db.Exec(ctx, "DELETE FROM holidays WHERE id = $1", id)
	return expectOneRow(tag, err, "holiday", id)
}

func (q *queries) ListHolidays(ctx context.Context, from, to time.Time) ([]leave.Holiday, error) {
	rows, err := q.db.Query(ctx,
		"SELECT id, date, description FROM holidays WHERE date >= $1 AND date <= $2 ORDER BY date",
		generic.Day(from), generic.Day(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	return collect(rows, func(row pgx.Row) (*leave.Holiday, error) {
		var h leave.Holiday
		if err := row.Scan(&h.ID, &h.Date, &h.Description); err != nil {
			return nil, err
		}
		return &h, nil
	})
}

// --- employees ---

const employeeColumns = "id, name, hire_date, employment_type, employee_status, created_at"

func (q *queries) SaveEmployee(ctx context.Context, e *leave.Employee) error {
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := q.db.Exec(ctx, `
		INSERT INTO employees (`+employeeColumns+`) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			hire_date = EXCLUDED.hire_date,
			employment_type = EXCLUDED.employment_type,
			employee_status = EXCLUDED.employee_status`,
		e.ID, e.Name, generic.Day(e.HireDate), e.EmploymentType, e.EmployeeStatus, created)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

func (q *queries) GetEmployee(ctx context.Context, id string) (*leave.Employee, error) {
	row := q.db.QueryRow(ctx, "SELECT "+employeeColumns+" FROM employees WHERE id = $1", id)
	return scanOne(scanEmployee(row))
}

func (q *queries) ListEmployees(ctx context.Context) ([]leave.Employee, error) {
	rows, err := q.db.Query(ctx, "SELECT "+employeeColumns+" FROM employees ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	return collect(rows, scanEmployee)
}

func scanEmployee(row pgx.Row) (*leave.Employee, error) {
	var e leave.Employee
	if err := row.Scan(&e.ID, &e.Name, &e.HireDate, &e.EmploymentType, &e.EmployeeStatus, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// where accumulates AND-ed clauses with positional placeholders. Clauses use
// "$%d" where the placeholder goes.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(clause, len(w.args)))
}

func (w *where) eq(column, value string) {
	if value != "" {
		w.add(column+" = $%d", value)
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
	if err := q.db.QueryRow(ctx, "SELECT COUNT(*) FROM "+table+w.sql(), w.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// scanOne maps pgx.ErrNoRows to (nil, nil).
func scanOne[T any](v *T, err error) (*T, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func expectOneRow(tag pgconn.CommandTag, err error, entity, id string) error {
	if err != nil {
		return fmt.Errorf("failed to write %s %s: %w", entity, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, leave.ErrNotFound)
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
