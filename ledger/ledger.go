/*
ledger.go - Point record ledger with month locks and roster snapshots

PURPOSE:
  Ledger is the only write path for single records. It applies, in order:
    1. Lock check      - the record's month must be open
    2. Roster lookup   - the employee must exist; its team is snapshotted
    3. Key policy      - insert, upsert (daily) or reject (per shift)

CRITICAL INVARIANTS:
  1. A locked month admits no insert, edit or delete of records dated in it.
  2. No two records share a uniqueness key.
  3. Points are never negative; bad input is rejected, not clamped.
  4. Record.Team is the roster team at write time and is never re-derived.

ATOMICITY:
  Each write runs inside TxStore.WithTx so the lock check, roster lookup and
  write see one consistent state. See errors.go for the remaining race on
  stores that do not isolate.

EXAMPLE:
  l := ledger.New(store, ledger.KeyDaily, ledger.WithLogger(logger))
  res, err := l.AddRecord(ctx, ledger.NewRecord{
      Date:       ledger.NewDate(2025, time.March, 10),
      EmployeeID: "E0001",
      Points:     decimal.NewFromInt(3),
  })
  if errors.Is(err, ledger.ErrLockedPeriod) {
      // month is closed
  }

SEE ALSO:
  - batch.go: Multi-row edit with skip report
  - lock.go, roster.go, shift.go: The other registries
  - store.go: Persistence interfaces
*/
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// OBSERVER - Hook for metrics
// =============================================================================

// Recorder receives write outcomes. metrics.Collector implements it.
type Recorder interface {
	RecordWrite(status WriteStatus)
	RecordRejection(reason string)
}

type nopRecorder struct{}

func (nopRecorder) RecordWrite(WriteStatus)  {}
func (nopRecorder) RecordRejection(string) {}

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	store    TxStore
	policy   KeyPolicy
	logger   *zap.Logger
	recorder Recorder
	now      func() time.Time
	newID    func() RecordID
}

type Option func(*Ledger)

func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

func WithRecorder(r Recorder) Option {
	return func(l *Ledger) { l.recorder = r }
}

// WithClock overrides time.Now, used for capability expiry checks.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(store TxStore, policy KeyPolicy, opts ...Option) *Ledger {
	l := &Ledger{
		store:    store,
		policy:   policy,
		logger:   zap.NewNop(),
		recorder: nopRecorder{},
		now:      time.Now,
		newID:    NewRecordID,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewRecordID returns a fresh random record ID.
func NewRecordID() RecordID { return RecordID(uuid.NewString()) }

func (l *Ledger) Policy() KeyPolicy { return l.policy }

// =============================================================================
// WRITES
// =============================================================================

// AddRecord validates and stores one point award.
//
// Fails with *LockedPeriodError, *UnknownEmployeeError, *ValidationError or,
// under KeyPerShift, *DuplicateError. Under KeyDaily an existing record for
// the same (date, employee) is overwritten and the result is StatusUpdated.
func (l *Ledger) AddRecord(ctx context.Context, in NewRecord) (Result, error) {
	in.EmployeeID = EmployeeID(strings.TrimSpace(string(in.EmployeeID)))
	in.Shift = strings.TrimSpace(in.Shift)
	in.Memo = strings.TrimSpace(in.Memo)

	if in.Date.IsZero() {
		return Result{}, l.reject(&ValidationError{Field: "date", Message: "is required"})
	}

	var res Result
	err := l.store.WithTx(ctx, func(s Store) error {
		// A locked month wins over every other rejection.
		if err := checkUnlocked(ctx, s, in.Date); err != nil {
			return err
		}
		if err := l.validateNew(in); err != nil {
			return err
		}

		emp, err := s.GetEmployee(ctx, in.EmployeeID)
		if err != nil {
			return fmt.Errorf("failed to look up employee: %w", err)
		}
		if emp == nil {
			return &UnknownEmployeeError{EmployeeID: in.EmployeeID}
		}

		if l.policy == KeyPerShift {
			if err := checkShiftKnown(ctx, s, in.Shift); err != nil {
				return err
			}
		}

		rec := Record{
			Date:       in.Date,
			Shift:      in.Shift,
			EmployeeID: emp.ID,
			Team:       emp.Team,
			Points:     in.Points,
			Memo:       in.Memo,
		}

		existing, err := s.FindRecords(ctx, in.Date, in.EmployeeID)
		if err != nil {
			return fmt.Errorf("failed to check uniqueness: %w", err)
		}
		if prev := matchKey(existing, rec.Key(l.policy), l.policy); prev != nil {
			if !l.policy.Upserts() {
				return &DuplicateError{Key: rec.Key(l.policy), ExistingID: prev.ID}
			}
			// Upsert: points and team follow the latest write.
			rec.ID = prev.ID
			rec.Shift = prev.Shift
			if rec.Memo == "" {
				rec.Memo = prev.Memo
			}
			if err := s.UpdateRecord(ctx, rec); err != nil {
				return err
			}
			res = Result{Record: rec, Status: StatusUpdated}
			return nil
		}

		rec.ID = l.newID()
		if err := s.InsertRecord(ctx, rec); err != nil {
			return err
		}
		res = Result{Record: rec, Status: StatusCreated}
		return nil
	})
	if err != nil {
		return Result{}, l.reject(err)
	}

	l.recorder.RecordWrite(res.Status)
	l.logger.Debug("record written",
		zap.String("id", string(res.Record.ID)),
		zap.String("key", res.Record.Key(l.policy).String()),
		zap.String("status", string(res.Status)),
		zap.String("points", res.Record.Points.String()),
	)
	return res, nil
}

// UpdateRecord replaces the editable fields of a record. Fails with
// *LockedPeriodError when the record's current month, or the month it would
// move to, is locked.
func (l *Ledger) UpdateRecord(ctx context.Context, capability Capability, id RecordID, edit RecordEdit) (Record, error) {
	if err := capability.Authorize(RoleAdmin, l.now()); err != nil {
		return Record{}, err
	}
	edit = normalizeEdit(edit)
	if err := l.validateEdit(edit, 0); err != nil {
		return Record{}, l.reject(err)
	}

	var updated Record
	err := l.store.WithTx(ctx, func(s Store) error {
		var err error
		updated, err = l.applyUpdate(ctx, s, id, edit)
		return err
	})
	if err != nil {
		return Record{}, l.reject(err)
	}

	l.logger.Info("record updated",
		zap.String("id", string(id)),
		zap.String("by", capability.Subject),
	)
	return updated, nil
}

// DeleteRecord removes a record unless its month is locked.
func (l *Ledger) DeleteRecord(ctx context.Context, capability Capability, id RecordID) error {
	if err := capability.Authorize(RoleAdmin, l.now()); err != nil {
		return err
	}

	err := l.store.WithTx(ctx, func(s Store) error {
		return l.applyDelete(ctx, s, id)
	})
	if err != nil {
		return l.reject(err)
	}

	l.logger.Info("record deleted",
		zap.String("id", string(id)),
		zap.String("by", capability.Subject),
	)
	return nil
}

func (l *Ledger) applyUpdate(ctx context.Context, s Store, id RecordID, edit RecordEdit) (Record, error) {
	cur, err := s.GetRecord(ctx, id)
	if err != nil {
		return Record{}, fmt.Errorf("failed to load record: %w", err)
	}
	if cur == nil {
		return Record{}, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}

	if err := checkUnlocked(ctx, s, cur.Date); err != nil {
		return Record{}, err
	}
	if edit.Date.YearMonth() != cur.Date.YearMonth() {
		if err := checkUnlocked(ctx, s, edit.Date); err != nil {
			return Record{}, err
		}
	}

	next := Record{
		ID:         cur.ID,
		Date:       edit.Date,
		Shift:      edit.Shift,
		EmployeeID: edit.EmployeeID,
		Team:       edit.Team,
		Points:     edit.Points,
		Memo:       edit.Memo,
	}
	if err := s.UpdateRecord(ctx, next); err != nil {
		return Record{}, err
	}
	return next, nil
}

func (l *Ledger) applyDelete(ctx context.Context, s Store, id RecordID) error {
	cur, err := s.GetRecord(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load record: %w", err)
	}
	if cur == nil {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if err := checkUnlocked(ctx, s, cur.Date); err != nil {
		return err
	}
	return s.DeleteRecord(ctx, id)
}

// =============================================================================
// READS
// =============================================================================

// QueryRange returns records with p.Start <= Date < p.End. An inverted or
// empty period returns no records.
func (l *Ledger) QueryRange(ctx context.Context, p Period) ([]Record, error) {
	if !p.Valid() {
		return nil, nil
	}
	return l.store.LoadRange(ctx, p)
}

// AllRecords returns every record, date ascending.
func (l *Ledger) AllRecords(ctx context.Context) ([]Record, error) {
	return l.store.LoadAll(ctx)
}

// GetRecord returns ErrRecordNotFound when id is unknown.
func (l *Ledger) GetRecord(ctx context.Context, id RecordID) (Record, error) {
	r, err := l.store.GetRecord(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if r == nil {
		return Record{}, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return *r, nil
}

// =============================================================================
// VALIDATION HELPERS
// =============================================================================

func (l *Ledger) validateNew(in NewRecord) error {
	if in.Date.IsZero() {
		return &ValidationError{Field: "date", Message: "is required"}
	}
	if in.EmployeeID == "" {
		return &ValidationError{Field: "employee_id", Message: "is required"}
	}
	if l.policy == KeyPerShift && in.Shift == "" {
		return &ValidationError{Field: "shift", Message: "is required"}
	}
	return validatePoints(in.Points, 0)
}

func (l *Ledger) validateEdit(edit RecordEdit, row int) error {
	if edit.Date.IsZero() {
		return &ValidationError{Row: row, Field: "date", Message: "is required"}
	}
	if edit.EmployeeID == "" {
		return &ValidationError{Row: row, Field: "employee_id", Message: "is required"}
	}
	if edit.Team == "" {
		return &ValidationError{Row: row, Field: "team", Message: "is required"}
	}
	if l.policy == KeyPerShift && edit.Shift == "" {
		return &ValidationError{Row: row, Field: "shift", Message: "is required"}
	}
	return validatePoints(edit.Points, row)
}

func validatePoints(p decimal.Decimal, row int) error {
	if p.IsNegative() {
		return &ValidationError{Row: row, Field: "points", Value: p.String(), Message: "must not be negative"}
	}
	return nil
}

func normalizeEdit(e RecordEdit) RecordEdit {
	e.EmployeeID = EmployeeID(strings.TrimSpace(string(e.EmployeeID)))
	e.Team = strings.TrimSpace(e.Team)
	e.Shift = strings.TrimSpace(e.Shift)
	e.Memo = strings.TrimSpace(e.Memo)
	return e
}

// matchKey finds the record among same-day, same-employee records that
// holds key under policy.
func matchKey(existing []Record, key RecordKey, policy KeyPolicy) *Record {
	for i := range existing {
		if existing[i].Key(policy).Equal(key) {
			return &existing[i]
		}
	}
	return nil
}

func checkShiftKnown(ctx context.Context, s Store, shift string) error {
	shifts, err := s.ListShifts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list shifts: %w", err)
	}
	// An empty catalog accepts any label.
	if len(shifts) == 0 {
		return nil
	}
	for _, name := range shifts {
		if name == shift {
			return nil
		}
	}
	return &ValidationError{Field: "shift", Value: shift, Message: "is not in the shift catalog"}
}

// reject counts and logs a failed write, then returns err unchanged.
func (l *Ledger) reject(err error) error {
	reason := rejectionReason(err)
	l.recorder.RecordRejection(reason)
	if reason == "internal" {
		l.logger.Error("ledger write failed", zap.Error(err))
	} else {
		l.logger.Debug("ledger write rejected", zap.String("reason", reason), zap.Error(err))
	}
	return err
}
