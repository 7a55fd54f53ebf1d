/*
store.go - Persistence interfaces for records, locks, roster and shifts

PURPOSE:
  Defines the boundary between ledger rules and the database. Stores are
  dumb: they persist what they are given and enforce only what the schema
  enforces (unique keys, unique roster IDs/names). Business rules (locks,
  roster lookups, upsert vs reject) live in Ledger.

KEY INTERFACES:
  RecordStore: Record CRUD, range queries, full replace
  LockStore:   Closed months
  RosterStore: Employees
  ShiftStore:  Selectable shift labels
  Store:       All of the above
  TxStore:     Store + WithTx for multi-step atomic work

UNIQUENESS:
  A store is opened for one KeyPolicy and rejects a second record with the
  same key by returning a *DuplicateError (errors.Is ErrDuplicate).

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - ledger/store/memory.go: In-memory for tests
*/
package ledger

import "context"

// RecordStore persists point records.
type RecordStore interface {
	// InsertRecord adds a record. Returns *DuplicateError on key collision.
	InsertRecord(ctx context.Context, r Record) error

	// UpdateRecord overwrites the record with r.ID. Returns
	// ErrRecordNotFound if it does not exist, *DuplicateError if the new
	// key collides with another record.
	UpdateRecord(ctx context.Context, r Record) error

	// DeleteRecord removes a record. Returns ErrRecordNotFound if absent.
	DeleteRecord(ctx context.Context, id RecordID) error

	// GetRecord returns nil, nil when the record does not exist.
	GetRecord(ctx context.Context, id RecordID) (*Record, error)

	// FindRecords returns every record of one employee on one day, across
	// shifts.
	FindRecords(ctx context.Context, date Date, employeeID EmployeeID) ([]Record, error)

	// LoadRange returns records with p.Start <= Date < p.End. Order is
	// date ascending; callers sort as they need.
	LoadRange(ctx context.Context, p Period) ([]Record, error)

	// LoadAll returns every record, date ascending.
	LoadAll(ctx context.Context) ([]Record, error)

	// ReplaceAllRecords deletes every record and inserts rs. Run it inside
	// WithTx to make it all-or-nothing.
	ReplaceAllRecords(ctx context.Context, rs []Record) error
}

// LockStore persists closed months. Both writes are idempotent.
type LockStore interface {
	IsMonthLocked(ctx context.Context, ym YearMonth) (bool, error)
	LockMonth(ctx context.Context, ym YearMonth) error
	UnlockMonth(ctx context.Context, ym YearMonth) error
	ListLocks(ctx context.Context) ([]YearMonth, error)
}

// RosterStore persists employees.
type RosterStore interface {
	// GetEmployee returns nil, nil when the ID is not on the roster.
	GetEmployee(ctx context.Context, id EmployeeID) (*Employee, error)

	// ListEmployees returns the roster ordered by ID.
	ListEmployees(ctx context.Context) ([]Employee, error)

	// InsertEmployee returns *ConflictError when the ID or name exists.
	InsertEmployee(ctx context.Context, e Employee) error

	// ReplaceEmployees discards the roster and stores es.
	ReplaceEmployees(ctx context.Context, es []Employee) error
}

// ShiftStore persists the selectable shift labels.
type ShiftStore interface {
	ListShifts(ctx context.Context) ([]string, error)
	ReplaceShifts(ctx context.Context, names []string) error
}

// Store is the full persistence surface used by Ledger.
type Store interface {
	RecordStore
	LockStore
	RosterStore
	ShiftStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
