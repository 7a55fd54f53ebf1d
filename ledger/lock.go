package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// =============================================================================
// LOCK REGISTRY - Closed months
// =============================================================================

// IsLocked reports whether the month containing d is closed.
func (l *Ledger) IsLocked(ctx context.Context, d Date) (bool, error) {
	return l.store.IsMonthLocked(ctx, d.YearMonth())
}

// Lock closes the month containing d. Locking a closed month is a no-op.
// Months without records may be locked ahead of time.
func (l *Ledger) Lock(ctx context.Context, capability Capability, d Date) error {
	if err := capability.Authorize(RoleAdmin, l.now()); err != nil {
		return err
	}
	ym := d.YearMonth()
	if err := l.store.LockMonth(ctx, ym); err != nil {
		return fmt.Errorf("failed to lock %s: %w", ym, err)
	}
	l.logger.Info("month locked", zap.String("month", ym.String()), zap.String("by", capability.Subject))
	return nil
}

// Unlock reopens the month containing d. Unlocking an open month is a
// no-op.
func (l *Ledger) Unlock(ctx context.Context, capability Capability, d Date) error {
	if err := capability.Authorize(RoleAdmin, l.now()); err != nil {
		return err
	}
	ym := d.YearMonth()
	if err := l.store.UnlockMonth(ctx, ym); err != nil {
		return fmt.Errorf("failed to unlock %s: %w", ym, err)
	}
	l.logger.Info("month unlocked", zap.String("month", ym.String()), zap.String("by", capability.Subject))
	return nil
}

// Locks returns every closed month in ascending order.
func (l *Ledger) Locks(ctx context.Context) ([]YearMonth, error) {
	return l.store.ListLocks(ctx)
}

// checkUnlocked returns *LockedPeriodError if d's month is closed in s.
func checkUnlocked(ctx context.Context, s LockStore, d Date) error {
	ym := d.YearMonth()
	locked, err := s.IsMonthLocked(ctx, ym)
	if err != nil {
		return fmt.Errorf("failed to check lock for %s: %w", ym, err)
	}
	if locked {
		return &LockedPeriodError{Month: ym}
	}
	return nil
}
