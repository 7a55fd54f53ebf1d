// Package store provides in-memory ledger.Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/point-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu     sync.RWMutex
	policy ledger.KeyPolicy
	state  memoryState
}

type memoryState struct {
	records   map[ledger.RecordID]ledger.Record
	locks     map[ledger.YearMonth]bool
	employees map[ledger.EmployeeID]ledger.Employee
	shifts    []string
}

func NewMemory(policy ledger.KeyPolicy) *Memory {
	return &Memory{
		policy: policy,
		state: memoryState{
			records:   make(map[ledger.RecordID]ledger.Record),
			locks:     make(map[ledger.YearMonth]bool),
			employees: make(map[ledger.EmployeeID]ledger.Employee),
		},
	}
}

// Every public method takes the lock and delegates to the unlocked view,
// which is also what WithTx hands to its callback.

func (m *Memory) InsertRecord(ctx context.Context, r ledger.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().InsertRecord(ctx, r)
}

func (m *Memory) UpdateRecord(ctx context.Context, r ledger.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().UpdateRecord(ctx, r)
}

func (m *Memory) DeleteRecord(ctx context.Context, id ledger.RecordID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().DeleteRecord(ctx, id)
}

func (m *Memory) GetRecord(ctx context.Context, id ledger.RecordID) (*ledger.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().GetRecord(ctx, id)
}

func (m *Memory) FindRecords(ctx context.Context, date ledger.Date, employeeID ledger.EmployeeID) ([]ledger.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().FindRecords(ctx, date, employeeID)
}

func (m *Memory) LoadRange(ctx context.Context, p ledger.Period) ([]ledger.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().LoadRange(ctx, p)
}

func (m *Memory) LoadAll(ctx context.Context) ([]ledger.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().LoadAll(ctx)
}

func (m *Memory) ReplaceAllRecords(ctx context.Context, rs []ledger.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().ReplaceAllRecords(ctx, rs)
}

func (m *Memory) IsMonthLocked(ctx context.Context, ym ledger.YearMonth) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().IsMonthLocked(ctx, ym)
}

func (m *Memory) LockMonth(ctx context.Context, ym ledger.YearMonth) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().LockMonth(ctx, ym)
}

func (m *Memory) UnlockMonth(ctx context.Context, ym ledger.YearMonth) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().UnlockMonth(ctx, ym)
}

func (m *Memory) ListLocks(ctx context.Context) ([]ledger.YearMonth, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().ListLocks(ctx)
}

func (m *Memory) GetEmployee(ctx context.Context, id ledger.EmployeeID) (*ledger.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().GetEmployee(ctx, id)
}

func (m *Memory) ListEmployees(ctx context.Context) ([]ledger.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().ListEmployees(ctx)
}

func (m *Memory) InsertEmployee(ctx context.Context, e ledger.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().InsertEmployee(ctx, e)
}

func (m *Memory) ReplaceEmployees(ctx context.Context, es []ledger.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().ReplaceEmployees(ctx, es)
}

func (m *Memory) ListShifts(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().ListShifts(ctx)
}

func (m *Memory) ReplaceShifts(ctx context.Context, names []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().ReplaceShifts(ctx, names)
}

func (m *Memory) view() *memoryView {
	return &memoryView{policy: m.policy, state: &m.state}
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory(policy ledger.KeyPolicy) *TxMemory {
	return &TxMemory{Memory: NewMemory(policy)}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.state.clone()
	if err := fn(tm.view()); err != nil {
		tm.state = snapshot
		return err
	}
	return nil
}

func (s memoryState) clone() memoryState {
	c := memoryState{
		records:   make(map[ledger.RecordID]ledger.Record, len(s.records)),
		locks:     make(map[ledger.YearMonth]bool, len(s.locks)),
		employees: make(map[ledger.EmployeeID]ledger.Employee, len(s.employees)),
		shifts:    append([]string(nil), s.shifts...),
	}
	for k, v := range s.records {
		c.records[k] = v
	}
	for k, v := range s.locks {
		c.locks[k] = v
	}
	for k, v := range s.employees {
		c.employees[k] = v
	}
	return c
}

// =============================================================================
// UNLOCKED VIEW - Caller holds Memory.mu
// =============================================================================

type memoryView struct {
	policy ledger.KeyPolicy
	state  *memoryState
}

func (v *memoryView) InsertRecord(_ context.Context, r ledger.Record) error {
	if _, exists := v.state.records[r.ID]; exists {
		return fmt.Errorf("record id %s already exists", r.ID)
	}
	if err := v.checkKey(r); err != nil {
		return err
	}
	v.state.records[r.ID] = r
	return nil
}

func (v *memoryView) UpdateRecord(_ context.Context, r ledger.Record) error {
	if _, exists := v.state.records[r.ID]; !exists {
		return fmt.Errorf("%w: %s", ledger.ErrRecordNotFound, r.ID)
	}
	if err := v.checkKey(r); err != nil {
		return err
	}
	v.state.records[r.ID] = r
	return nil
}

func (v *memoryView) DeleteRecord(_ context.Context, id ledger.RecordID) error {
	if _, exists := v.state.records[id]; !exists {
		return fmt.Errorf("%w: %s", ledger.ErrRecordNotFound, id)
	}
	delete(v.state.records, id)
	return nil
}

func (v *memoryView) GetRecord(_ context.Context, id ledger.RecordID) (*ledger.Record, error) {
	r, ok := v.state.records[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (v *memoryView) FindRecords(_ context.Context, date ledger.Date, employeeID ledger.EmployeeID) ([]ledger.Record, error) {
	var result []ledger.Record
	for _, r := range v.state.records {
		if r.Date.Equal(date) && r.EmployeeID == employeeID {
			result = append(result, r)
		}
	}
	sortRecords(result)
	return result, nil
}

func (v *memoryView) LoadRange(_ context.Context, p ledger.Period) ([]ledger.Record, error) {
	var result []ledger.Record
	for _, r := range v.state.records {
		if p.Contains(r.Date) {
			result = append(result, r)
		}
	}
	sortRecords(result)
	return result, nil
}

func (v *memoryView) LoadAll(_ context.Context) ([]ledger.Record, error) {
	result := make([]ledger.Record, 0, len(v.state.records))
	for _, r := range v.state.records {
		result = append(result, r)
	}
	sortRecords(result)
	return result, nil
}

func (v *memoryView) ReplaceAllRecords(_ context.Context, rs []ledger.Record) error {
	v.state.records = make(map[ledger.RecordID]ledger.Record, len(rs))
	for _, r := range rs {
		if _, exists := v.state.records[r.ID]; exists {
			return fmt.Errorf("record id %s already exists", r.ID)
		}
		if err := v.checkKey(r); err != nil {
			return err
		}
		v.state.records[r.ID] = r
	}
	return nil
}

func (v *memoryView) IsMonthLocked(_ context.Context, ym ledger.YearMonth) (bool, error) {
	return v.state.locks[ym], nil
}

func (v *memoryView) LockMonth(_ context.Context, ym ledger.YearMonth) error {
	v.state.locks[ym] = true
	return nil
}

func (v *memoryView) UnlockMonth(_ context.Context, ym ledger.YearMonth) error {
	delete(v.state.locks, ym)
	return nil
}

func (v *memoryView) ListLocks(_ context.Context) ([]ledger.YearMonth, error) {
	result := make([]ledger.YearMonth, 0, len(v.state.locks))
	for ym := range v.state.locks {
		result = append(result, ym)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].First().Before(result[j].First())
	})
	return result, nil
}

func (v *memoryView) GetEmployee(_ context.Context, id ledger.EmployeeID) (*ledger.Employee, error) {
	e, ok := v.state.employees[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (v *memoryView) ListEmployees(_ context.Context) ([]ledger.Employee, error) {
	result := make([]ledger.Employee, 0, len(v.state.employees))
	for _, e := range v.state.employees {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (v *memoryView) InsertEmployee(_ context.Context, e ledger.Employee) error {
	if _, exists := v.state.employees[e.ID]; exists {
		return &ledger.ConflictError{Field: "id", Value: string(e.ID)}
	}
	for _, other := range v.state.employees {
		if other.Name == e.Name {
			return &ledger.ConflictError{Field: "name", Value: e.Name}
		}
	}
	v.state.employees[e.ID] = e
	return nil
}

func (v *memoryView) ReplaceEmployees(_ context.Context, es []ledger.Employee) error {
	v.state.employees = make(map[ledger.EmployeeID]ledger.Employee, len(es))
	for _, e := range es {
		v.state.employees[e.ID] = e
	}
	return nil
}

func (v *memoryView) ListShifts(_ context.Context) ([]string, error) {
	return append([]string(nil), v.state.shifts...), nil
}

func (v *memoryView) ReplaceShifts(_ context.Context, names []string) error {
	v.state.shifts = append([]string(nil), names...)
	sort.Strings(v.state.shifts)
	return nil
}

// checkKey rejects r when another record already holds its key.
func (v *memoryView) checkKey(r ledger.Record) error {
	key := r.Key(v.policy)
	for id, other := range v.state.records {
		if id != r.ID && other.Key(v.policy).Equal(key) {
			return &ledger.DuplicateError{Key: key, ExistingID: id}
		}
	}
	return nil
}

func sortRecords(rs []ledger.Record) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].Date.Equal(rs[j].Date) {
			return rs[i].Date.Before(rs[j].Date)
		}
		return rs[i].ID < rs[j].ID
	})
}
