package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// =============================================================================
// ROSTER - Source of valid employee IDs and their current team
// =============================================================================

// LookupEmployee returns *UnknownEmployeeError when id is not on the roster.
func (l *Ledger) LookupEmployee(ctx context.Context, id EmployeeID) (Employee, error) {
	e, err := l.store.GetEmployee(ctx, id)
	if err != nil {
		return Employee{}, err
	}
	if e == nil {
		return Employee{}, &UnknownEmployeeError{EmployeeID: id}
	}
	return *e, nil
}

// Roster returns every employee ordered by ID.
func (l *Ledger) Roster(ctx context.Context) ([]Employee, error) {
	return l.store.ListEmployees(ctx)
}

// ReplaceRoster discards the roster and stores entries. On a
// *ValidationError nothing is written. Existing records keep their team
// snapshot.
func (l *Ledger) ReplaceRoster(ctx context.Context, capability Capability, entries []Employee) ([]Employee, error) {
	if err := capability.Authorize(RoleAdmin, l.now()); err != nil {
		return nil, err
	}
	roster, err := ValidateRoster(entries)
	if err != nil {
		return nil, err
	}

	err = l.store.WithTx(ctx, func(s Store) error {
		return s.ReplaceEmployees(ctx, roster)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to replace roster: %w", err)
	}

	l.logger.Info("roster replaced", zap.Int("employees", len(roster)), zap.String("by", capability.Subject))
	return roster, nil
}

// AddEmployee inserts one entry. Fails with *ConflictError when the ID or
// name is taken.
func (l *Ledger) AddEmployee(ctx context.Context, capability Capability, e Employee) (Employee, error) {
	if err := capability.Authorize(RoleAdmin, l.now()); err != nil {
		return Employee{}, err
	}
	e = e.Normalized()
	if err := validateEmployee(e, 0); err != nil {
		return Employee{}, err
	}
	if err := l.store.InsertEmployee(ctx, e); err != nil {
		return Employee{}, err
	}
	l.logger.Info("employee added", zap.String("id", string(e.ID)), zap.String("team", e.Team))
	return e, nil
}

// ValidateRoster trims every entry, drops rows that are entirely blank and
// rejects partially blank rows and duplicate IDs or names. Matching is
// exact and case-sensitive after trimming.
func ValidateRoster(entries []Employee) ([]Employee, error) {
	roster := make([]Employee, 0, len(entries))
	ids := make(map[EmployeeID]int)
	names := make(map[string]int)

	for i, raw := range entries {
		row := i + 1
		e := raw.Normalized()
		if e.ID == "" && e.Name == "" && e.Team == "" {
			continue
		}
		if err := validateEmployee(e, row); err != nil {
			return nil, err
		}
		if first, dup := ids[e.ID]; dup {
			return nil, &ValidationError{Row: row, Field: "id", Value: string(e.ID),
				Message: fmt.Sprintf("duplicates row %d", first)}
		}
		if first, dup := names[e.Name]; dup {
			return nil, &ValidationError{Row: row, Field: "name", Value: e.Name,
				Message: fmt.Sprintf("duplicates row %d", first)}
		}
		ids[e.ID] = row
		names[e.Name] = row
		roster = append(roster, e)
	}
	return roster, nil
}

func validateEmployee(e Employee, row int) error {
	switch {
	case e.ID == "":
		return &ValidationError{Row: row, Field: "id", Message: "is required"}
	case e.Name == "":
		return &ValidationError{Row: row, Field: "name", Message: "is required"}
	case e.Team == "":
		return &ValidationError{Row: row, Field: "team", Message: "is required"}
	}
	return nil
}
