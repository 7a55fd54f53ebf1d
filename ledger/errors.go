/*
errors.go - Error taxonomy of the ledger

PURPOSE:
  All error types in one place. Every structured error unwraps to a
  sentinel so callers can branch with errors.Is and still read the details
  with errors.As.

ERROR CATEGORIES:
  1. Period locks     - LockedPeriodError
  2. Roster           - UnknownEmployeeError, ConflictError, ValidationError
  3. Uniqueness       - DuplicateError
  4. Bulk import      - SchemaError
  5. Authorization    - ErrUnauthorized

PROPAGATION:
  Everything here is recoverable and meant to reach the caller. Batch edits
  (ApplyBatch) do not return LockedPeriodError for single rows; they report
  the row as skipped and keep going.

KNOWN RACE:
  AddRecord checks the lock, then the roster, then writes. The ledger runs
  the three steps inside TxStore.WithTx, so on the SQLite and memory stores
  a concurrent Lock() cannot interleave. A TxStore whose WithTx does not
  isolate reads would let a lock toggled mid-sequence go unnoticed for that
  one write. The workload is human paced and this is accepted.

SEE ALSO:
  - ledger.go: Produces most of these
  - api/errors.go: Maps them to HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrLockedPeriod is returned when a mutation targets a closed month.
	ErrLockedPeriod = errors.New("period is locked")

	// ErrUnknownEmployee is returned when a write references an ID that is
	// not on the roster.
	ErrUnknownEmployee = errors.New("unknown employee")

	// ErrDuplicate is returned when a uniqueness key is already taken and
	// the key policy does not upsert.
	ErrDuplicate = errors.New("duplicate record")

	// ErrValidation is returned for malformed input (roster saves, negative
	// points, empty required fields).
	ErrValidation = errors.New("validation failed")

	// ErrSchema is returned when an import file lacks required columns.
	ErrSchema = errors.New("schema mismatch")

	// ErrConflict is returned when a roster insert collides with an
	// existing ID or name.
	ErrConflict = errors.New("conflict")

	// ErrRecordNotFound is returned when a record ID does not exist.
	ErrRecordNotFound = errors.New("record not found")

	// ErrUnauthorized is returned when a capability is missing, expired or
	// lacks the required role.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidPeriod is returned for unknown presets or incomplete ranges.
	ErrInvalidPeriod = errors.New("invalid period")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// LockedPeriodError names the closed month a mutation ran into.
type LockedPeriodError struct {
	Month YearMonth
}

func (e *LockedPeriodError) Error() string {
	return fmt.Sprintf("month %s is locked", e.Month)
}

func (e *LockedPeriodError) Unwrap() error { return ErrLockedPeriod }

// UnknownEmployeeError names the employee ID missing from the roster.
type UnknownEmployeeError struct {
	EmployeeID EmployeeID
}

func (e *UnknownEmployeeError) Error() string {
	return fmt.Sprintf("employee %q is not on the roster", e.EmployeeID)
}

func (e *UnknownEmployeeError) Unwrap() error { return ErrUnknownEmployee }

// DuplicateError reports a uniqueness collision.
type DuplicateError struct {
	Key        RecordKey
	ExistingID RecordID // empty when the collision was detected by the store
}

func (e *DuplicateError) Error() string {
	if e.ExistingID == "" {
		return fmt.Sprintf("record already exists for %s", e.Key)
	}
	return fmt.Sprintf("record already exists for %s (id: %s)", e.Key, e.ExistingID)
}

func (e *DuplicateError) Unwrap() error { return ErrDuplicate }

// ValidationError describes one invalid field. Row is 1-based when the
// input was tabular, 0 otherwise.
type ValidationError struct {
	Row     int
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	if e.Row > 0 {
		fmt.Fprintf(&b, "row %d: ", e.Row)
	}
	b.WriteString(e.Field)
	if e.Value != "" {
		fmt.Fprintf(&b, " %q", e.Value)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// SchemaError lists required columns absent from an import.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Missing, ", "))
}

func (e *SchemaError) Unwrap() error { return ErrSchema }

// ConflictError reports a roster insert colliding with an existing entry.
type ConflictError struct {
	Field string // "id" or "name"
	Value string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("employee %s %q already exists", e.Field, e.Value)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to caller input and can be
// corrected and retried.
func IsClientError(err error) bool {
	return errors.Is(err, ErrLockedPeriod) ||
		errors.Is(err, ErrUnknownEmployee) ||
		errors.Is(err, ErrDuplicate) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrSchema) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalidPeriod)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}

// rejectionReason classifies err for metrics labels.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrLockedPeriod):
		return "locked"
	case errors.Is(err, ErrUnknownEmployee):
		return "unknown_employee"
	case errors.Is(err, ErrDuplicate):
		return "duplicate"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrRecordNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrConflict):
		return "conflict"
	}
	return "internal"
}
