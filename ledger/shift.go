package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// DefaultShifts seeds an empty shift catalog (early, middle, late).
var DefaultShifts = []string{"早番", "中番", "遅番"}

// Shifts returns the selectable shift labels in sorted order.
func (l *Ledger) Shifts(ctx context.Context) ([]string, error) {
	return l.store.ListShifts(ctx)
}

// ReplaceShifts stores names after NormalizeShifts.
func (l *Ledger) ReplaceShifts(ctx context.Context, capability Capability, names []string) ([]string, error) {
	if err := capability.Authorize(RoleAdmin, l.now()); err != nil {
		return nil, err
	}
	shifts := NormalizeShifts(names)
	if err := l.store.ReplaceShifts(ctx, shifts); err != nil {
		return nil, fmt.Errorf("failed to replace shifts: %w", err)
	}
	l.logger.Info("shifts replaced", zap.Strings("shifts", shifts))
	return shifts, nil
}

// NormalizeShifts trims, drops blanks, removes duplicates and sorts.
func NormalizeShifts(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// BOOTSTRAP
// =============================================================================

// Seed is the initial content loaded into an empty database.
type Seed struct {
	Employees []Employee
	Shifts    []string
}

// Bootstrap fills the shift catalog and the roster when they are empty.
// Nothing is overwritten.
func (l *Ledger) Bootstrap(ctx context.Context, seed Seed) error {
	shifts, err := l.store.ListShifts(ctx)
	if err != nil {
		return err
	}
	if len(shifts) == 0 {
		names := seed.Shifts
		if len(names) == 0 {
			names = DefaultShifts
		}
		if err := l.store.ReplaceShifts(ctx, NormalizeShifts(names)); err != nil {
			return fmt.Errorf("failed to seed shifts: %w", err)
		}
	}

	if len(seed.Employees) == 0 {
		return nil
	}
	roster, err := l.store.ListEmployees(ctx)
	if err != nil {
		return err
	}
	if len(roster) > 0 {
		return nil
	}
	entries, err := ValidateRoster(seed.Employees)
	if err != nil {
		return fmt.Errorf("invalid seed roster: %w", err)
	}
	if err := l.store.ReplaceEmployees(ctx, entries); err != nil {
		return fmt.Errorf("failed to seed roster: %w", err)
	}
	l.logger.Info("roster seeded", zap.Int("employees", len(entries)))
	return nil
}
