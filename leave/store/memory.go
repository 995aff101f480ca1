// Package store provides an in-memory leave.TxStore for tests and demos.
package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory is a leave.TxStore backed by maps. Writers are serialized by a single
// mutex, so a WithTx callback sees no concurrent changes.
type Memory struct {
	mu sync.RWMutex
	d  *data
}

var (
	_ leave.TxStore = (*Memory)(nil)
	_ leave.Store   = (*data)(nil)
)

func NewMemory() *Memory {
	return &Memory{d: newData()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(leave.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := m.d.clone()
	if err := fn(m.d); err != nil {
		m.d = snapshot
		return err
	}
	return nil
}

// Reset clears all data (for testing/demo).
func (m *Memory) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.d = newData()
	return nil
}

func (m *Memory) read() (*data, func()) {
	m.mu.RLock()
	return m.d, m.mu.RUnlock
}

func (m *Memory) write() (*data, func()) {
	m.mu.Lock()
	return m.d, m.mu.Unlock
}

// -----------------------------------------------------------------------------
// Locked entry points. Each delegates to the unlocked view used inside WithTx.
// -----------------------------------------------------------------------------

func (m *Memory) GetOrCreateBalance(ctx context.Context, seed leave.LeaveBalance) (*leave.LeaveBalance, error) {
	d, unlock := m.write()
	defer unlock()
	return d.GetOrCreateBalance(ctx, seed)
}

func (m *Memory) GetBalance(ctx context.Context, id string) (*leave.LeaveBalance, error) {
	d, unlock := m.read()
	defer unlock()
	return d.GetBalance(ctx, id)
}

func (m *Memory) FindBalance(ctx context.Context, key leave.BalanceKey) (*leave.LeaveBalance, error) {
	d, unlock := m.read()
	defer unlock()
	return d.FindBalance(ctx, key)
}

func (m *Memory) ListBalances(ctx context.Context, filter leave.BalanceFilter) ([]leave.LeaveBalance, error) {
	d, unlock := m.read()
	defer unlock()
	return d.ListBalances(ctx, filter)
}

func (m *Memory) UpdateBalance(ctx context.Context, b *leave.LeaveBalance) error {
	d, unlock := m.write()
	defer unlock()
	return d.UpdateBalance(ctx, b)
}

func (m *Memory) AppendTransaction(ctx context.Context, tx leave.LeaveTransaction) error {
	d, unlock := m.write()
	defer unlock()
	return d.AppendTransaction(ctx, tx)
}

func (m *Memory) FindTransaction(ctx context.Context, ref leave.Reference, kind leave.TransactionKind) (*leave.LeaveTransaction, error) {
	d, unlock := m.read()
	defer unlock()
	return d.FindTransaction(ctx, ref, kind)
}

func (m *Memory) ListTransactions(ctx context.Context, balanceID string) ([]leave.LeaveTransaction, error) {
	d, unlock := m.read()
	defer unlock()
	return d.ListTransactions(ctx, balanceID)
}

func (m *Memory) SumTransactions(ctx context.Context, balanceID string) (decimal.Decimal, error) {
	d, unlock := m.read()
	defer unlock()
	return d.SumTransactions(ctx, balanceID)
}

func (m *Memory) CreateRequest(ctx context.Context, r *leave.LeaveRequest) error {
	d, unlock := m.write()
	defer unlock()
	return d.CreateRequest(ctx, r)
}

func (m *Memory) UpdateRequest(ctx context.Context, r *leave.LeaveRequest) error {
	d, unlock := m.write()
	defer unlock()
	return d.UpdateRequest(ctx, r)
}

func (m *Memory) GetRequest(ctx context.Context, id string) (*leave.LeaveRequest, error) {
	d, unlock := m.read()
	defer unlock()
	return d.GetRequest(ctx, id)
}

func (m *Memory) ListRequests(ctx context.Context, filter leave.RequestFilter, page leave.Page) ([]leave.LeaveRequest, int, error) {
	d, unlock := m.read()
	defer unlock()
	return d.ListRequests(ctx, filter, page)
}

func (m *Memory) CreateEncashment(ctx context.Context, e *leave.LeaveEncashment) error {
	d, unlock := m.write()
	defer unlock()
	return d.CreateEncashment(ctx, e)
}

func (m *Memory) UpdateEncashment(ctx context.Context, e *leave.LeaveEncashment) error {
	d, unlock := m.write()
	defer unlock()
	return d.UpdateEncashment(ctx, e)
}

func (m *Memory) GetEncashment(ctx context.Context, id string) (*leave.LeaveEncashment, error) {
	d, unlock := m.read()
	defer unlock()
	return d.GetEncashment(ctx, id)
}

func (m *Memory) ListEncashments(ctx context.Context, filter leave.EncashmentFilter, page leave.Page) ([]leave.LeaveEncashment, int, error) {
	d, unlock := m.read()
	defer unlock()
	return d.ListEncashments(ctx, filter, page)
}

func (m *Memory) SavePolicy(ctx context.Context, p *leave.LeavePolicy) error {
	d, unlock := m.write()
	defer unlock()
	return d.SavePolicy(ctx, p)
}

func (m *Memory) GetPolicy(ctx context.Context, id string) (*leave.LeavePolicy, error) {
	d, unlock := m.read()
	defer unlock()
	return d.GetPolicy(ctx, id)
}

func (m *Memory) ListPolicies(ctx context.Context, leaveTypeID string) ([]leave.LeavePolicy, error) {
	d, unlock := m.read()
	defer unlock()
	return d.ListPolicies(ctx, leaveTypeID)
}

func (m *Memory) ActivePolicies(ctx context.Context, leaveTypeID string, date time.Time) ([]leave.LeavePolicy, error) {
	d, unlock := m.read()
	defer unlock()
	return d.ActivePolicies(ctx, leaveTypeID, date)
}

func (m *Memory) SaveYearConfiguration(ctx context.Context, y *leave.LeaveYearConfiguration) error {
	d, unlock := m.write()
	defer unlock()
	return d.SaveYearConfiguration(ctx, y)
}

func (m *Memory) ListYearConfigurations(ctx context.Context) ([]leave.LeaveYearConfiguration, error) {
	d, unlock := m.read()
	defer unlock()
	return d.ListYearConfigurations(ctx)
}

func (m *Memory) YearConfigurationsCovering(ctx context.Context, date time.Time) ([]leave.LeaveYearConfiguration, error) {
	d, unlock := m.read()
	defer unlock()
	return d.YearConfigurationsCovering(ctx, date)
}

func (m *Memory) YearConfigurationByYear(ctx context.Context, year int) (*leave.LeaveYearConfiguration, error) {
	d, unlock := m.read()
	defer unlock()
	return d.YearConfigurationByYear(ctx, year)
}

func (m *Memory) SaveHoliday(ctx context.Context, h *leave.Holiday) error {
	d, unlock := m.write()
	defer unlock()
	return d.SaveHoliday(ctx, h)
}

func (m *Memory) DeleteHoliday(ctx context.Context, id string) error {
	d, unlock := m.write()
	defer unlock()
	return d.DeleteHoliday(ctx, id)
}

func (m *Memory) ListHolidays(ctx context.Context, from, to time.Time) ([]leave.Holiday, error) {
	d, unlock := m.read()
	defer unlock()
	return d.ListHolidays(ctx, from, to)
}

func (m *Memory) SaveEmployee(ctx context.Context, e *leave.Employee) error {
	d, unlock := m.write()
	defer unlock()
	return d.SaveEmployee(ctx, e)
}

func (m *Memory) GetEmployee(ctx context.Context, id string) (*leave.Employee, error) {
	d, unlock := m.read()
	defer unlock()
	return d.GetEmployee(ctx, id)
}

func (m *Memory) ListEmployees(ctx context.Context) ([]leave.Employee, error) {
	d, unlock := m.read()
	defer unlock()
	return d.ListEmployees(ctx)
}

// =============================================================================
// DATA - Unlocked state; also the transactional view handed to WithTx
// =============================================================================

type txKey struct {
	Ref  leave.Reference
	Kind leave.TransactionKind
}

type data struct {
	balances     map[string]leave.LeaveBalance
	balanceByKey map[leave.BalanceKey]string
	transactions []leave.LeaveTransaction
	txByRef      map[txKey]int
	requests     map[string]leave.LeaveRequest
	encashments  map[string]leave.LeaveEncashment
	policies     map[string]leave.LeavePolicy
	years        map[string]leave.LeaveYearConfiguration
	holidays     map[string]leave.Holiday
	employees    map[string]leave.Employee
}

func newData() *data {
	return &data{
		balances:     make(map[string]leave.LeaveBalance),
		balanceByKey: make(map[leave.BalanceKey]string),
		txByRef:      make(map[txKey]int),
		requests:     make(map[string]leave.LeaveRequest),
		encashments:  make(map[string]leave.LeaveEncashment),
		policies:     make(map[string]leave.LeavePolicy),
		years:        make(map[string]leave.LeaveYearConfiguration),
		holidays:     make(map[string]leave.Holiday),
		employees:    make(map[string]leave.Employee),
	}
}

// clone copies every map. Records are stored by value so a shallow copy is a
// full snapshot; the ledger slice is append-only and only needs its length.
func (d *data) clone() *data {
	return &data{
		balances:     maps.Clone(d.balances),
		balanceByKey: maps.Clone(d.balanceByKey),
		transactions: slices.Clip(d.transactions),
		txByRef:      maps.Clone(d.txByRef),
		requests:     maps.Clone(d.requests),
		encashments:  maps.Clone(d.encashments),
		policies:     maps.Clone(d.policies),
		years:        maps.Clone(d.years),
		holidays:     maps.Clone(d.holidays),
		employees:    maps.Clone(d.employees),
	}
}

// --- balances ---

func (d *data) GetOrCreateBalance(_ context.Context, seed leave.LeaveBalance) (*leave.LeaveBalance, error) {
	if id, ok := d.balanceByKey[seed.Key()]; ok {
		b := d.balances[id]
		return &b, nil
	}
	d.balances[seed.ID] = seed
	d.balanceByKey[seed.Key()] = seed.ID
	return &seed, nil
}

func (d *data) GetBalance(_ context.Context, id string) (*leave.LeaveBalance, error) {
	b, ok := d.balances[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (d *data) FindBalance(ctx context.Context, key leave.BalanceKey) (*leave.LeaveBalance, error) {
	id, ok := d.balanceByKey[key]
	if !ok {
		return nil, nil
	}
	return d.GetBalance(ctx, id)
}

func (d *data) ListBalances(_ context.Context, f leave.BalanceFilter) ([]leave.LeaveBalance, error) {
	var out []leave.LeaveBalance
	for _, b := range d.balances {
		if f.EmployeeID != "" && b.EmployeeID != f.EmployeeID {
			continue
		}
		if f.LeaveTypeID != "" && b.LeaveTypeID != f.LeaveTypeID {
			continue
		}
		if f.Year != 0 && b.Year != f.Year {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, b.Status) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Year != b.Year {
			return a.Year > b.Year
		}
		if a.EmployeeID != b.EmployeeID {
			return a.EmployeeID < b.EmployeeID
		}
		return a.LeaveTypeID < b.LeaveTypeID
	})
	return out, nil
}

func (d *data) UpdateBalance(_ context.Context, b *leave.LeaveBalance) error {
	cur, ok := d.balances[b.ID]
	if !ok {
		return fmt.Errorf("leave balance %s: %w", b.ID, leave.ErrNotFound)
	}
	if cur.Version != b.Version {
		return fmt.Errorf("leave balance %s at version %d, have %d: %w",
			b.ID, cur.Version, b.Version, leave.ErrConcurrentModification)
	}
	b.Version++
	d.balances[b.ID] = *b
	return nil
}

// --- ledger ---

func (d *data) AppendTransaction(_ context.Context, tx leave.LeaveTransaction) error {
	k := txKey{Ref: tx.Ref, Kind: tx.Kind}
	if _, ok := d.txByRef[k]; ok {
		return fmt.Errorf("%s %s: %w", tx.Kind, tx.Ref, leave.ErrDuplicateTransaction)
	}
	d.txByRef[k] = len(d.transactions)
	d.transactions = append(d.transactions, tx)
	return nil
}

func (d *data) FindTransaction(_ context.Context, ref leave.Reference, kind leave.TransactionKind) (*leave.LeaveTransaction, error) {
	i, ok := d.txByRef[txKey{Ref: ref, Kind: kind}]
	if !ok {
		return nil, nil
	}
	tx := d.transactions[i]
	return &tx, nil
}

func (d *data) ListTransactions(_ context.Context, balanceID string) ([]leave.LeaveTransaction, error) {
	var out []leave.LeaveTransaction
	for _, tx := range d.transactions {
		if tx.BalanceID == balanceID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (d *data) SumTransactions(_ context.Context, balanceID string) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, tx := range d.transactions {
		if tx.BalanceID == balanceID {
			sum = sum.Add(tx.Delta)
		}
	}
	return sum, nil
}

// --- requests ---

func (d *data) CreateRequest(_ context.Context, r *leave.LeaveRequest) error {
	if _, ok := d.requests[r.ID]; ok {
		return fmt.Errorf("leave request %s already exists", r.ID)
	}
	d.requests[r.ID] = *r
	return nil
}

func (d *data) UpdateRequest(_ context.Context, r *leave.LeaveRequest) error {
	if _, ok := d.requests[r.ID]; !ok {
		return fmt.Errorf("leave request %s: %w", r.ID, leave.ErrNotFound)
	}
	d.requests[r.ID] = *r
	return nil
}

func (d *data) GetRequest(_ context.Context, id string) (*leave.LeaveRequest, error) {
	r, ok := d.requests[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (d *data) ListRequests(_ context.Context, f leave.RequestFilter, page leave.Page) ([]leave.LeaveRequest, int, error) {
	var out []leave.LeaveRequest
	for _, r := range d.requests {
		if f.EmployeeID != "" && r.EmployeeID != f.EmployeeID {
			continue
		}
		if f.LeaveTypeID != "" && r.LeaveTypeID != f.LeaveTypeID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	total := len(out)
	return paginate(out, page), total, nil
}

// --- encashments ---

func (d *data) CreateEncashment(_ context.Context, e *leave.LeaveEncashment) error {
	if _, ok := d.encashments[e.ID]; ok {
		return fmt.Errorf("leave encashment %s already exists", e.ID)
	}
	d.encashments[e.ID] = *e
	return nil
}

func (d *data) UpdateEncashment(_ context.Context, e *leave.LeaveEncashment) error {
	if _, ok := d.encashments[e.ID]; !ok {
		return fmt.Errorf("leave encashment %s: %w", e.ID, leave.ErrNotFound)
	}
	d.encashments[e.ID] = *e
	return nil
}

func (d *data) GetEncashment(_ context.Context, id string) (*leave.LeaveEncashment, error) {
	e, ok := d.encashments[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (d *data) ListEncashments(_ context.Context, f leave.EncashmentFilter, page leave.Page) ([]leave.LeaveEncashment, int, error) {
	var out []leave.LeaveEncashment
	for _, e := range d.encashments {
		if f.EmployeeID != "" && e.EmployeeID != f.EmployeeID {
			continue
		}
		if f.Year != 0 && e.Year != f.Year {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	total := len(out)
	return paginate(out, page), total, nil
}

// --- policies ---

func (d *data) SavePolicy(_ context.Context, p *leave.LeavePolicy) error {
	d.policies[p.ID] = *p
	return nil
}

func (d *data) GetPolicy(_ context.Context, id string) (*leave.LeavePolicy, error) {
	p, ok := d.policies[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (d *data) ListPolicies(_ context.Context, leaveTypeID string) ([]leave.LeavePolicy, error) {
	var out []leave.LeavePolicy
	for _, p := range d.policies {
		if leaveTypeID == "" || p.LeaveTypeID == leaveTypeID {
			out = append(out, p)
		}
	}
	sortPolicies(out)
	return out, nil
}

func (d *data) ActivePolicies(_ context.Context, leaveTypeID string, date time.Time) ([]leave.LeavePolicy, error) {
	date = generic.Day(date)
	var out []leave.LeavePolicy
	for _, p := range d.policies {
		if p.LeaveTypeID == leaveTypeID && p.ActiveOn(date) {
			out = append(out, p)
		}
	}
	sortPolicies(out)
	return out, nil
}

func sortPolicies(ps []leave.LeavePolicy) {
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].EffectiveDate.Equal(ps[j].EffectiveDate) {
			return ps[i].EffectiveDate.After(ps[j].EffectiveDate)
		}
		return ps[i].ID < ps[j].ID
	})
}

// --- year configurations ---

func (d *data) SaveYearConfiguration(_ context.Context, y *leave.LeaveYearConfiguration) error {
	for _, other := range d.years {
		if other.Year == y.Year && other.ID != y.ID {
			return fmt.Errorf("leave year %d already configured as %s", y.Year, other.ID)
		}
	}
	d.years[y.ID] = *y
	return nil
}

func (d *data) ListYearConfigurations(_ context.Context) ([]leave.LeaveYearConfiguration, error) {
	out := slices.Collect(maps.Values(d.years))
	sortYears(out)
	return out, nil
}

func (d *data) YearConfigurationsCovering(_ context.Context, date time.Time) ([]leave.LeaveYearConfiguration, error) {
	date = generic.Day(date)
	var out []leave.LeaveYearConfiguration
	for _, y := range d.years {
		if y.Contains(date) {
			out = append(out, y)
		}
	}
	sortYears(out)
	return out, nil
}

func (d *data) YearConfigurationByYear(_ context.Context, year int) (*leave.LeaveYearConfiguration, error) {
	for _, y := range d.years {
		if y.Year == year {
			return &y, nil
		}
	}
	return nil, nil
}

func sortYears(ys []leave.LeaveYearConfiguration) {
	sort.Slice(ys, func(i, j int) bool { return ys[i].StartDate.After(ys[j].StartDate) })
}

// --- holidays ---

func (d *data) SaveHoliday(_ context.Context, h *leave.Holiday) error {
	d.holidays[h.ID] = *h
	return nil
}

func (d *data) DeleteHoliday(_ context.Context, id string) error {
	if _, ok := d.holidays[id]; !ok {
		return fmt.Errorf("holiday %s: %w", id, leave.ErrNotFound)
	}
	delete(d.holidays, id)
	return nil
}

func (d *data) ListHolidays(_ context.Context, from, to time.Time) ([]leave.Holiday, error) {
	from, to = generic.Day(from), generic.Day(to)
	var out []leave.Holiday
	for _, h := range d.holidays {
		day := generic.Day(h.Date)
		if !day.Before(from) && !day.After(to) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// --- employees ---

func (d *data) SaveEmployee(_ context.Context, e *leave.Employee) error {
	d.employees[e.ID] = *e
	return nil
}

func (d *data) GetEmployee(_ context.Context, id string) (*leave.Employee, error) {
	e, ok := d.employees[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (d *data) ListEmployees(_ context.Context) ([]leave.Employee, error) {
	out := slices.Collect(maps.Values(d.employees))
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func paginate[T any](items []T, page leave.Page) []T {
	page = page.Normalize()
	if page.Offset >= len(items) {
		return []T{}
	}
	end := min(page.Offset+page.Limit, len(items))
	return items[page.Offset:end]
}
