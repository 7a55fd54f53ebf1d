/*
Package sqlite provides a SQLite-backed implementation of ledger.TxStore.

PURPOSE:
  Persists records, month locks, the roster and the shift catalog in one
  embedded database file. The ledger package owns the rules; this package
  only enforces what the schema enforces.

KEY TABLES:
  records: Point awards. d is 'YYYY-MM-DD', points a decimal string.
  locks:   Closed months as 'YYYY-MM'.
  roster:  Employees. emp_id and name are each unique.
  shifts:  Selectable shift labels.

UNIQUENESS:
  The records key index depends on the KeyPolicy the store is opened with:
  - idx_records_key_daily: UNIQUE(d, emp_id)
  - idx_records_key_shift: UNIQUE(d, emp_id, shift)
  The index of the other policy is dropped on migrate. Switching the policy
  of a database whose rows collide under the new key fails to open.

CONCURRENCY:
  One connection, guarded by sync.RWMutex. Inside WithTx every query runs
  on the sql.Tx, never on the pool, so nothing waits on itself.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/points.db", ledger.KeyDaily)
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  l := ledger.New(store, ledger.KeyDaily)

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/point-ledger/ledger"
)

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	policy ledger.KeyPolicy
	q      *queries
}

// New opens (or creates) the database at dbPath for the given key policy,
// creating missing parent directories. Use ":memory:" for an in-memory
// database.
func New(dbPath string, policy ledger.KeyPolicy) (*Store, error) {
	if dbPath != ":memory:" && !strings.HasPrefix(dbPath, "file:") {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A second connection would see a different :memory: database and
	// would race the mutex for file databases.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, policy: policy, q: &queries{q: db, policy: policy}}
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

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		d TEXT NOT NULL,
		shift TEXT NOT NULL DEFAULT '',
		emp_id TEXT NOT NULL,
		grp TEXT NOT NULL,
		points TEXT NOT NULL,
		memo TEXT NOT NULL DEFAULT ''
	);

	-- Range scans (dashboard, exports)
	CREATE INDEX IF NOT EXISTS idx_records_d ON records(d);

	CREATE TABLE IF NOT EXISTS locks (
		ym TEXT PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS roster (
		emp_id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		grp TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS shifts (
		name TEXT PRIMARY KEY
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	var keyIndex string
	switch s.policy {
	case ledger.KeyPerShift:
		keyIndex = `
		DROP INDEX IF EXISTS idx_records_key_daily;
		CREATE UNIQUE INDEX IF NOT EXISTS idx_records_key_shift ON records(d, emp_id, shift);`
	default:
		keyIndex = `
		DROP INDEX IF EXISTS idx_records_key_shift;
		CREATE UNIQUE INDEX IF NOT EXISTS idx_records_key_daily ON records(d, emp_id);`
	}
	// Drop and create together so a failed switch keeps the old index.
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(keyIndex); err != nil {
		return fmt.Errorf("failed to create key index for policy %s: %w", s.policy, err)
	}
	return tx.Commit()
}

// =============================================================================
// LOCKED ENTRY POINTS - ledger.Store
// =============================================================================

func (s *Store) InsertRecord(ctx context.Context, r ledger.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.InsertRecord(ctx, r)
}

func (s *Store) UpdateRecord(ctx context.Context, r ledger.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.UpdateRecord(ctx, r)
}

func (s *Store) DeleteRecord(ctx context.Context, id ledger.RecordID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.DeleteRecord(ctx, id)
}

func (s *Store) GetRecord(ctx context.Context, id ledger.RecordID) (*ledger.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.GetRecord(ctx, id)
}

func (s *Store) FindRecords(ctx context.Context, date ledger.Date, employeeID ledger.EmployeeID) ([]ledger.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.FindRecords(ctx, date, employeeID)
}

func (s *Store) LoadRange(ctx context.Context, p ledger.Period) ([]ledger.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.LoadRange(ctx, p)
}

func (s *Store) LoadAll(ctx context.Context) ([]ledger.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.LoadAll(ctx)
}

// ReplaceAllRecords outside WithTx still runs in its own transaction.
func (s *Store) ReplaceAllRecords(ctx context.Context, rs []ledger.Record) error {
	return s.WithTx(ctx, func(tx ledger.Store) error {
		return tx.ReplaceAllRecords(ctx, rs)
	})
}

func (s *Store) IsMonthLocked(ctx context.Context, ym ledger.YearMonth) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.IsMonthLocked(ctx, ym)
}

func (s *Store) LockMonth(ctx context.Context, ym ledger.YearMonth) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.LockMonth(ctx, ym)
}

func (s *Store) UnlockMonth(ctx context.Context, ym ledger.YearMonth) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.UnlockMonth(ctx, ym)
}

func (s *Store) ListLocks(ctx context.Context) ([]ledger.YearMonth, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.ListLocks(ctx)
}

func (s *Store) GetEmployee(ctx context.Context, id ledger.EmployeeID) (*ledger.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.GetEmployee(ctx, id)
}

func (s *Store) ListEmployees(ctx context.Context) ([]ledger.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.ListEmployees(ctx)
}

func (s *Store) InsertEmployee(ctx context.Context, e ledger.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.InsertEmployee(ctx, e)
}

// ReplaceEmployees outside WithTx still runs in its own transaction.
func (s *Store) ReplaceEmployees(ctx context.Context, es []ledger.Employee) error {
	return s.WithTx(ctx, func(tx ledger.Store) error {
		return tx.ReplaceEmployees(ctx, es)
	})
}

func (s *Store) ListShifts(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.ListShifts(ctx)
}

// ReplaceShifts outside WithTx still runs in its own transaction.
func (s *Store) ReplaceShifts(ctx context.Context, names []string) error {
	return s.WithTx(ctx, func(tx ledger.Store) error {
		return tx.ReplaceShifts(ctx, names)
	})
}

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx, policy: s.policy}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// =============================================================================
// QUERIES - Shared by the pool and transactions; caller holds Store.mu
// =============================================================================

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	q      querier
	policy ledger.KeyPolicy
}

const recordColumns = `id, d, shift, emp_id, grp, points, memo`

func (q *queries) InsertRecord(ctx context.Context, r ledger.Record) error {
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO records (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(r.ID), r.Date.String(), r.Shift, string(r.EmployeeID), r.Team, r.Points.String(), r.Memo,
	)
	if err != nil {
		return q.recordWriteError(r, err)
	}
	return nil
}

func (q *queries) UpdateRecord(ctx context.Context, r ledger.Record) error {
	res, err := q.q.ExecContext(ctx,
		`UPDATE records SET d = ?, shift = ?, emp_id = ?, grp = ?, points = ?, memo = ? WHERE id = ?`,
		r.Date.String(), r.Shift, string(r.EmployeeID), r.Team, r.Points.String(), r.Memo, string(r.ID),
	)
	if err != nil {
		return q.recordWriteError(r, err)
	}
	return requireAffected(res, r.ID)
}

func (q *queries) DeleteRecord(ctx context.Context, id ledger.RecordID) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return requireAffected(res, id)
}

func (q *queries) GetRecord(ctx context.Context, id ledger.RecordID) (*ledger.Record, error) {
	rows, err := q.queryRecords(ctx, `SELECT `+recordColumns+` FROM records WHERE id = ?`, string(id))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (q *queries) FindRecords(ctx context.Context, date ledger.Date, employeeID ledger.EmployeeID) ([]ledger.Record, error) {
	return q.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM records WHERE d = ? AND emp_id = ? ORDER BY shift, id`,
		date.String(), string(employeeID),
	)
}

func (q *queries) LoadRange(ctx context.Context, p ledger.Period) ([]ledger.Record, error) {
	return q.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM records WHERE d >= ? AND d < ? ORDER BY d, id`,
		p.Start.String(), p.End.String(),
	)
}

func (q *queries) LoadAll(ctx context.Context) ([]ledger.Record, error) {
	return q.queryRecords(ctx, `SELECT `+recordColumns+` FROM records ORDER BY d, id`)
}

func (q *queries) ReplaceAllRecords(ctx context.Context, rs []ledger.Record) error {
	if _, err := q.q.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}
	for _, r := range rs {
		if err := q.InsertRecord(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (q *queries) IsMonthLocked(ctx context.Context, ym ledger.YearMonth) (bool, error) {
	var n int
	err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM locks WHERE ym = ?`, ym.String()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to read lock: %w", err)
	}
	return n > 0, nil
}

func (q *queries) LockMonth(ctx context.Context, ym ledger.YearMonth) error {
	_, err := q.q.ExecContext(ctx, `INSERT INTO locks (ym) VALUES (?) ON CONFLICT(ym) DO NOTHING`, ym.String())
	return err
}

func (q *queries) UnlockMonth(ctx context.Context, ym ledger.YearMonth) error {
	_, err := q.q.ExecContext(ctx, `DELETE FROM locks WHERE ym = ?`, ym.String())
	return err
}

func (q *queries) ListLocks(ctx context.Context) ([]ledger.YearMonth, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT ym FROM locks ORDER BY ym`)
	if err != nil {
		return nil, fmt.Errorf("failed to list locks: %w", err)
	}
	defer rows.Close()

	var result []ledger.YearMonth
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		ym, err := ledger.ParseYearMonth(s)
		if err != nil {
			return nil, fmt.Errorf("corrupt lock %q: %w", s, err)
		}
		result = append(result, ym)
	}
	return result, rows.Err()
}

func (q *queries) GetEmployee(ctx context.Context, id ledger.EmployeeID) (*ledger.Employee, error) {
	var e ledger.Employee
	var empID string
	err := q.q.QueryRowContext(ctx, `SELECT emp_id, name, grp FROM roster WHERE emp_id = ?`, string(id)).
		Scan(&empID, &e.Name, &e.Team)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read employee: %w", err)
	}
	e.ID = ledger.EmployeeID(empID)
	return &e, nil
}

func (q *queries) ListEmployees(ctx context.Context) ([]ledger.Employee, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT emp_id, name, grp FROM roster ORDER BY emp_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	defer rows.Close()

	var result []ledger.Employee
	for rows.Next() {
		var e ledger.Employee
		var empID string
		if err := rows.Scan(&empID, &e.Name, &e.Team); err != nil {
			return nil, err
		}
		e.ID = ledger.EmployeeID(empID)
		result = append(result, e)
	}
	return result, rows.Err()
}

func (q *queries) InsertEmployee(ctx context.Context, e ledger.Employee) error {
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO roster (emp_id, name, grp) VALUES (?, ?, ?)`,
		string(e.ID), e.Name, e.Team,
	)
	if isUniqueConstraintError(err) {
		if strings.Contains(err.Error(), "roster.name") {
			return &ledger.ConflictError{Field: "name", Value: e.Name}
		}
		return &ledger.ConflictError{Field: "id", Value: string(e.ID)}
	}
	if err != nil {
		return fmt.Errorf("failed to insert employee: %w", err)
	}
	return nil
}

func (q *queries) ReplaceEmployees(ctx context.Context, es []ledger.Employee) error {
	if _, err := q.q.ExecContext(ctx, `DELETE FROM roster`); err != nil {
		return fmt.Errorf("failed to clear roster: %w", err)
	}
	for _, e := range es {
		if err := q.InsertEmployee(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (q *queries) ListShifts(ctx context.Context) ([]string, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT name FROM shifts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list shifts: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		result = append(result, name)
	}
	return result, rows.Err()
}

func (q *queries) ReplaceShifts(ctx context.Context, names []string) error {
	if _, err := q.q.ExecContext(ctx, `DELETE FROM shifts`); err != nil {
		return fmt.Errorf("failed to clear shifts: %w", err)
	}
	for _, name := range names {
		_, err := q.q.ExecContext(ctx, `INSERT INTO shifts (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name)
		if err != nil {
			return fmt.Errorf("failed to insert shift: %w", err)
		}
	}
	return nil
}

func (q *queries) queryRecords(ctx context.Context, query string, args ...any) ([]ledger.Record, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var result []ledger.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func scanRecord(rows *sql.Rows) (ledger.Record, error) {
	var (
		r                    ledger.Record
		id, d, empID, points string
	)
	if err := rows.Scan(&id, &d, &r.Shift, &empID, &r.Team, &points, &r.Memo); err != nil {
		return ledger.Record{}, err
	}
	date, err := ledger.ParseDate(d)
	if err != nil {
		return ledger.Record{}, fmt.Errorf("corrupt date on record %s: %w", id, err)
	}
	amount, err := decimal.NewFromString(points)
	if err != nil {
		return ledger.Record{}, fmt.Errorf("corrupt points on record %s: %w", id, err)
	}
	r.ID = ledger.RecordID(id)
	r.Date = date
	r.EmployeeID = ledger.EmployeeID(empID)
	r.Points = amount
	return r, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (q *queries) recordWriteError(r ledger.Record, err error) error {
	if isUniqueConstraintError(err) && !strings.Contains(err.Error(), "records.id") {
		return &ledger.DuplicateError{Key: r.Key(q.policy)}
	}
	return fmt.Errorf("failed to write record: %w", err)
}

func requireAffected(res sql.Result, id ledger.RecordID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ledger.ErrRecordNotFound, id)
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
