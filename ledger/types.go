/*
Package ledger provides the point record ledger and its period-lock rules.

PURPOSE:
  Staff award points to employees day by day. Every award is a Record in
  the ledger, keyed by day and employee (and shift, depending on the
  configured KeyPolicy). Administrators close whole months so that nothing
  dated inside them can change afterwards.

KEY CONCEPTS IN THIS FILE (types.go):
  - Record: One point award, with the employee's team frozen at write time
  - Employee: A roster entry (ID, display name, team)
  - KeyPolicy: Which fields make a record unique (daily vs per shift)
  - WriteStatus: Whether AddRecord created or overwrote a record

DESIGN PRINCIPLES:
  1. Snapshot, not reference: Record.Team is copied from the roster when the
     record is written. Roster edits never rewrite history.
  2. Precision: Points use decimal.Decimal, never float64 arithmetic.
  3. One entity, configurable key: Shift is optional; the KeyPolicy decides
     whether it takes part in uniqueness.

SEE ALSO:
  - ledger.go: AddRecord / UpdateRecord / DeleteRecord / QueryRange
  - lock.go: Month locks
  - roster.go: Roster validation and replace
  - period.go: Half-open periods and presets
*/
package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type RecordID string
type EmployeeID string

// =============================================================================
// EMPLOYEE - Roster entry
// =============================================================================

// Employee is one roster entry. ID and Name are each unique in the roster.
type Employee struct {
	ID   EmployeeID
	Name string
	Team string
}

// Normalized returns a copy with every field trimmed.
func (e Employee) Normalized() Employee {
	return Employee{
		ID:   EmployeeID(strings.TrimSpace(string(e.ID))),
		Name: strings.TrimSpace(e.Name),
		Team: strings.TrimSpace(e.Team),
	}
}

// =============================================================================
// RECORD - One point award
// =============================================================================

type Record struct {
	ID         RecordID
	Date       Date
	Shift      string // empty when the deployment does not track shifts
	EmployeeID EmployeeID
	Team       string // snapshot of Employee.Team at write time
	Points     decimal.Decimal
	Memo       string
}

// Key returns the uniqueness key of the record under the given policy.
func (r Record) Key(policy KeyPolicy) RecordKey {
	k := RecordKey{Date: r.Date, EmployeeID: r.EmployeeID}
	if policy == KeyPerShift {
		k.Shift = r.Shift
	}
	return k
}

// RecordKey identifies a record under a KeyPolicy. Shift is always empty
// for KeyDaily.
type RecordKey struct {
	Date       Date
	Shift      string
	EmployeeID EmployeeID
}

func (k RecordKey) Equal(o RecordKey) bool {
	return k.Date.Equal(o.Date) && k.Shift == o.Shift && k.EmployeeID == o.EmployeeID
}

func (k RecordKey) String() string {
	if k.Shift == "" {
		return fmt.Sprintf("%s/%s", k.Date, k.EmployeeID)
	}
	return fmt.Sprintf("%s/%s/%s", k.Date, k.Shift, k.EmployeeID)
}

// =============================================================================
// KEY POLICY
// =============================================================================

// KeyPolicy selects the uniqueness key of records. It is fixed per
// deployment.
type KeyPolicy string

const (
	// KeyDaily: one record per (date, employee). A second write overwrites.
	KeyDaily KeyPolicy = "daily"
	// KeyPerShift: one record per (date, shift, employee). A second write
	// is rejected.
	KeyPerShift KeyPolicy = "shift"
)

// ParseKeyPolicy accepts "daily" or "shift".
func ParseKeyPolicy(s string) (KeyPolicy, error) {
	switch KeyPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case KeyDaily:
		return KeyDaily, nil
	case KeyPerShift:
		return KeyPerShift, nil
	}
	return "", fmt.Errorf("unknown key policy %q (want daily or shift)", s)
}

// Upserts reports whether a second write for an existing key overwrites it.
func (p KeyPolicy) Upserts() bool { return p == KeyDaily }

// =============================================================================
// WRITE RESULTS
// =============================================================================

type WriteStatus string

const (
	StatusCreated WriteStatus = "created"
	StatusUpdated WriteStatus = "updated"
)

// NewRecord is the input of AddRecord. The team is never supplied by the
// caller; it is read from the roster.
type NewRecord struct {
	Date       Date
	Shift      string
	EmployeeID EmployeeID
	Points     decimal.Decimal
	Memo       string
}

// Result is the outcome of a successful AddRecord.
type Result struct {
	Record Record
	Status WriteStatus
}

// RecordEdit replaces the editable fields of an existing record.
type RecordEdit struct {
	Date       Date
	Shift      string
	EmployeeID EmployeeID
	Team       string
	Points     decimal.Decimal
	Memo       string
}
