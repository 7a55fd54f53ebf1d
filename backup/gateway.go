/*
Package backup serializes the ledger to CSV and restores it.

PURPOSE:
  The trusted bulk path. Export and import talk to the store directly and
  skip per-record rules: an import may reference employees that are no
  longer on the roster and may land in locked months.

OPERATIONS:
  ExportAll:      every record, newest first, UTF-8 with BOM
  ExportRoster:   the roster, UTF-8 with BOM
  ImportReplace:  parse, validate, then delete-all + insert in one transaction
  SnapshotLatest: ExportAll into one file on disk, best effort

FAILURE MODES:
  - Missing required columns: *ledger.SchemaError, nothing deleted
  - Bad date or negative points: *ledger.ValidationError, nothing deleted
  - Key collision between imported rows: *ledger.DuplicateError, rolled back
  - Snapshot failures are logged and counted, never returned

SEE ALSO:
  - columns.go: Header alias table
  - scheduler.go: Periodic and on-demand snapshots
*/
package backup

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/warp/point-ledger/ledger"
)

// Recorder receives backup outcomes. metrics.Collector implements it.
type Recorder interface {
	RecordSnapshot(result string)
	RecordImport(result string)
}

type nopRecorder struct{}

func (nopRecorder) RecordSnapshot(string) {}
func (nopRecorder) RecordImport(string)   {}

// Gateway exports and restores the record store.
type Gateway struct {
	store        ledger.TxStore
	snapshotPath string
	logger       *zap.Logger
	recorder     Recorder
	now          func() time.Time
	newID        func() ledger.RecordID
}

type Option func(*Gateway)

func WithLogger(logger *zap.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

func WithRecorder(r Recorder) Option {
	return func(g *Gateway) { g.recorder = r }
}

func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// NewGateway returns a gateway writing snapshots to snapshotPath. An empty
// path disables snapshots.
func NewGateway(store ledger.TxStore, snapshotPath string, opts ...Option) *Gateway {
	g := &Gateway{
		store:        store,
		snapshotPath: snapshotPath,
		logger:       zap.NewNop(),
		recorder:     nopRecorder{},
		now:          time.Now,
		newID:        ledger.NewRecordID,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SnapshotPath is where SnapshotLatest writes.
func (g *Gateway) SnapshotPath() string { return g.snapshotPath }

// =============================================================================
// EXPORT
// =============================================================================

// ExportAll writes every record as CSV, newest date first.
func (g *Gateway) ExportAll(ctx context.Context, w io.Writer) (int, error) {
	records, err := g.store.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load records: %w", err)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date.After(records[j].Date)
	})

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.Date.String(),
			string(r.EmployeeID),
			r.Team,
			r.Points.String(),
			r.Shift,
			r.Memo,
		})
	}
	if err := writeCSV(w, ExportColumns, rows); err != nil {
		return 0, err
	}
	return len(records), nil
}

// ExportRoster writes the roster as CSV, ordered by ID.
func (g *Gateway) ExportRoster(ctx context.Context, w io.Writer) (int, error) {
	employees, err := g.store.ListEmployees(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load roster: %w", err)
	}
	rows := make([][]string, 0, len(employees))
	for _, e := range employees {
		rows = append(rows, []string{string(e.ID), e.Name, e.Team})
	}
	if err := writeCSV(w, RosterColumns, rows); err != nil {
		return 0, err
	}
	return len(employees), nil
}

// writeCSV writes a UTF-8 BOM, the header and rows.
func writeCSV(w io.Writer, header []string, rows [][]string) error {
	tw := transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
	cw := csv.NewWriter(tw)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	return tw.Close()
}

// =============================================================================
// IMPORT
// =============================================================================

// ImportSummary reports a successful restore.
type ImportSummary struct {
	Rows int
}

// ImportReplace replaces every record with the content of r. A BOM is
// optional. Non-numeric points become 0. The whole import either lands or
// leaves the ledger untouched.
func (g *Gateway) ImportReplace(ctx context.Context, capability ledger.Capability, r io.Reader) (ImportSummary, error) {
	if err := capability.Authorize(ledger.RoleAdmin, g.now()); err != nil {
		return ImportSummary{}, err
	}

	records, err := g.parseRecords(r)
	if err != nil {
		g.recorder.RecordImport(importResult(err))
		return ImportSummary{}, err
	}

	err = g.store.WithTx(ctx, func(s ledger.Store) error {
		return s.ReplaceAllRecords(ctx, records)
	})
	if err != nil {
		g.recorder.RecordImport(importResult(err))
		g.logger.Warn("import rolled back", zap.Error(err))
		return ImportSummary{}, err
	}

	g.recorder.RecordImport("ok")
	g.logger.Info("records imported",
		zap.Int("rows", len(records)),
		zap.String("by", capability.Subject),
	)
	return ImportSummary{Rows: len(records)}, nil
}

func (g *Gateway) parseRecords(r io.Reader) ([]ledger.Record, error) {
	cr := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &ledger.SchemaError{Missing: RequiredColumns}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	cols, err := resolveHeader(header)
	if err != nil {
		return nil, err
	}

	var records []ledger.Record
	for row := 1; ; row++ {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", row, err)
		}
		if blankRow(fields) {
			continue
		}

		get := func(col string) string {
			i, ok := cols[col]
			if !ok || i >= len(fields) {
				return ""
			}
			return strings.TrimSpace(fields[i])
		}

		date, err := ledger.ParseDate(get(ColDate))
		if err != nil {
			return nil, &ledger.ValidationError{Row: row, Field: ColDate, Value: get(ColDate), Message: "is not a date"}
		}
		empID := get(ColEmployee)
		if empID == "" {
			return nil, &ledger.ValidationError{Row: row, Field: ColEmployee, Message: "is required"}
		}
		points := coercePoints(get(ColPoints))
		if points.IsNegative() {
			return nil, &ledger.ValidationError{Row: row, Field: ColPoints, Value: points.String(), Message: "must not be negative"}
		}

		records = append(records, ledger.Record{
			ID:         g.newID(),
			Date:       date,
			Shift:      get(ColShift),
			EmployeeID: ledger.EmployeeID(empID),
			Team:       get(ColTeam),
			Points:     points,
			Memo:       get(ColMemo),
		})
	}
	return records, nil
}

// coercePoints parses s as a decimal; anything unparsable is 0.
func coercePoints(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func blankRow(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func importResult(err error) string {
	switch {
	case errors.Is(err, ledger.ErrSchema):
		return "schema"
	case errors.Is(err, ledger.ErrValidation), errors.Is(err, ledger.ErrDuplicate):
		return "invalid"
	case errors.Is(err, ledger.ErrUnauthorized):
		return "unauthorized"
	}
	return "error"
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// SnapshotLatest overwrites the snapshot file with a full export. The file
// is written next to its final path and renamed, so readers never see a
// partial snapshot. Failures are logged and counted, never returned.
func (g *Gateway) SnapshotLatest(ctx context.Context) {
	if g.snapshotPath == "" {
		return
	}
	start := g.now()
	n, err := g.writeSnapshot(ctx)
	if err != nil {
		g.recorder.RecordSnapshot("error")
		g.logger.Error("snapshot failed", zap.String("path", g.snapshotPath), zap.Error(err))
		return
	}
	g.recorder.RecordSnapshot("ok")
	g.logger.Info("snapshot written",
		zap.String("path", g.snapshotPath),
		zap.Int("records", n),
		zap.Duration("took", g.now().Sub(start)),
	)
}

func (g *Gateway) writeSnapshot(ctx context.Context) (int, error) {
	dir := filepath.Dir(g.snapshotPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create backup dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(g.snapshotPath)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := g.ExportAll(ctx, tmp)
	if err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), g.snapshotPath); err != nil {
		return 0, fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return n, nil
}
