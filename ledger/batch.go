package ledger

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// =============================================================================
// BATCH EDIT - Many updates and deletes, locked rows skipped
// =============================================================================

type BatchKind string

const (
	BatchUpdate BatchKind = "update"
	BatchDelete BatchKind = "delete"
)

// BatchOp is one row of an admin bulk edit. Edit is ignored for deletes.
type BatchOp struct {
	Kind BatchKind
	ID   RecordID
	Edit RecordEdit
}

// SkippedRow explains why one op was not applied. Index is 0-based into the
// submitted ops.
type SkippedRow struct {
	Index  int
	ID     RecordID
	Reason string
	Month  string // set when the row hit a locked month
}

// BatchReport lists applied IDs and skipped rows in input order.
type BatchReport struct {
	Applied []RecordID
	Skipped []SkippedRow
}

// ApplyBatch applies ops in one transaction. Rows in a locked month and
// rows whose record no longer exists are skipped and reported; every other
// failure aborts the whole batch and nothing is written.
func (l *Ledger) ApplyBatch(ctx context.Context, capability Capability, ops []BatchOp) (BatchReport, error) {
	if err := capability.Authorize(RoleAdmin, l.now()); err != nil {
		return BatchReport{}, err
	}

	for i := range ops {
		switch ops[i].Kind {
		case BatchUpdate:
			ops[i].Edit = normalizeEdit(ops[i].Edit)
			if err := l.validateEdit(ops[i].Edit, i+1); err != nil {
				return BatchReport{}, l.reject(err)
			}
		case BatchDelete:
		default:
			return BatchReport{}, l.reject(&ValidationError{Row: i + 1, Field: "kind", Value: string(ops[i].Kind),
				Message: "must be update or delete"})
		}
	}

	var report BatchReport
	err := l.store.WithTx(ctx, func(s Store) error {
		report = BatchReport{}
		for i, op := range ops {
			var err error
			if op.Kind == BatchUpdate {
				_, err = l.applyUpdate(ctx, s, op.ID, op.Edit)
			} else {
				err = l.applyDelete(ctx, s, op.ID)
			}

			var locked *LockedPeriodError
			switch {
			case err == nil:
				report.Applied = append(report.Applied, op.ID)
			case errors.As(err, &locked):
				report.Skipped = append(report.Skipped, SkippedRow{
					Index: i, ID: op.ID, Reason: "locked", Month: locked.Month.String(),
				})
			case errors.Is(err, ErrRecordNotFound):
				report.Skipped = append(report.Skipped, SkippedRow{Index: i, ID: op.ID, Reason: "not_found"})
			default:
				return fmt.Errorf("row %d: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return BatchReport{}, l.reject(err)
	}

	l.logger.Info("batch applied",
		zap.Int("applied", len(report.Applied)),
		zap.Int("skipped", len(report.Skipped)),
		zap.String("by", capability.Subject),
	)
	return report, nil
}
