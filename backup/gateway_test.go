/*
gateway_test.go - Tests for CSV export, import and snapshots

Tests for:
- Export/import round trip leaves the record set unchanged
- Schema errors (missing columns) leave the ledger unchanged
- Bilingual header aliases, optional BOM, points coercion
- Snapshot failures are swallowed and counted
*/
package backup

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/point-ledger/ledger"
	"github.com/warp/point-ledger/ledger/store"
)

const bom = "\ufeff"

var admin = ledger.Capability{Subject: "admin", Role: ledger.RoleAdmin}

type countingRecorder struct {
	mu        sync.Mutex
	snapshots map[string]int
	imports   map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{snapshots: map[string]int{}, imports: map[string]int{}}
}

func (c *countingRecorder) RecordSnapshot(result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots[result]++
}

func (c *countingRecorder) RecordImport(result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.imports[result]++
}

func seededStore(t *testing.T) *store.TxMemory {
	t.Helper()
	s := store.NewTxMemory(ledger.KeyDaily)
	require.NoError(t, s.ReplaceEmployees(context.Background(), []ledger.Employee{
		{ID: "E0001", Name: "山田 太郎", Team: "A"},
		{ID: "E0002", Name: "佐藤 花子", Team: "A"},
	}))
	require.NoError(t, s.ReplaceAllRecords(context.Background(), []ledger.Record{
		{ID: "r1", Date: ledger.NewDate(2025, time.March, 1), EmployeeID: "E0001", Team: "A",
			Points: decimal.NewFromInt(3), Memo: "朝, 早出"},
		{ID: "r2", Date: ledger.NewDate(2025, time.March, 2), EmployeeID: "E0002", Team: "B",
			Points: decimal.RequireFromString("1.5"), Shift: "遅番"},
		{ID: "r3", Date: ledger.NewDate(2024, time.December, 31), EmployeeID: "E0099", Team: "C",
			Points: decimal.Zero},
	}))
	return s
}

// withoutIDs returns comparable string forms of rs, ignoring IDs.
func withoutIDs(rs []ledger.Record) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = strings.Join([]string{
			r.Date.String(), r.Shift, string(r.EmployeeID), r.Team, r.Points.String(), r.Memo,
		}, "|")
	}
	sort.Strings(out)
	return out
}

func loadAll(t *testing.T, s ledger.Store) []ledger.Record {
	t.Helper()
	rs, err := s.LoadAll(context.Background())
	require.NoError(t, err)
	return rs
}

// =============================================================================
// EXPORT / IMPORT
// =============================================================================

func TestExportImport_RoundTrip(t *testing.T) {
	// GIVEN: A store with three records
	src := seededStore(t)
	ctx := context.Background()

	// WHEN: Exported and imported into another store
	var buf bytes.Buffer
	n, err := NewGateway(src, "").ExportAll(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	dst := store.NewTxMemory(ledger.KeyDaily)
	summary, err := NewGateway(dst, "").ImportReplace(ctx, admin, &buf)

	// THEN: The record sets are equal
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Rows)
	assert.Equal(t, withoutIDs(loadAll(t, src)), withoutIDs(loadAll(t, dst)))
}

func TestExportAll_FormatNewestFirstWithBOM(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewGateway(seededStore(t), "").ExportAll(context.Background(), &buf)
	require.NoError(t, err)

	out := buf.String()
	require.True(t, strings.HasPrefix(out, bom))

	lines := strings.Split(strings.TrimSpace(strings.TrimPrefix(out, bom)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "d,emp_id,grp,points,shift,memo", lines[0])
	assert.Equal(t, "2025-03-02,E0002,B,1.5,遅番,", lines[1])
	assert.Equal(t, `2025-03-01,E0001,A,3,,"朝, 早出"`, lines[2])
	assert.Equal(t, "2024-12-31,E0099,C,0,,", lines[3])
}

func TestExportAll_KeepsBoundaryDates(t *testing.T) {
	// GIVEN: A record on the last representable day and one long ago
	src := store.NewTxMemory(ledger.KeyDaily)
	ctx := context.Background()
	require.NoError(t, src.ReplaceAllRecords(ctx, []ledger.Record{
		{ID: "late", Date: ledger.NewDate(9999, time.December, 31), EmployeeID: "E0001", Team: "A",
			Points: decimal.NewFromInt(2)},
		{ID: "early", Date: ledger.NewDate(1900, time.January, 1), EmployeeID: "E0002", Team: "B",
			Points: decimal.NewFromInt(1)},
	}))

	// WHEN: Exported and imported elsewhere
	var buf bytes.Buffer
	n, err := NewGateway(src, "").ExportAll(ctx, &buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "9999-12-31,E0001,A,2,,")

	dst := store.NewTxMemory(ledger.KeyDaily)
	_, err = NewGateway(dst, "").ImportReplace(ctx, admin, &buf)
	require.NoError(t, err)

	// THEN: Both survive
	assert.Equal(t, 2, n)
	assert.Equal(t, withoutIDs(loadAll(t, src)), withoutIDs(loadAll(t, dst)))
}

func TestExportRoster(t *testing.T) {
	var buf bytes.Buffer
	n, err := NewGateway(seededStore(t), "").ExportRoster(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, bom+"emp_id,name,grp\nE0001,山田 太郎,A\nE0002,佐藤 花子,A\n", buf.String())
}

func TestImportReplace_MissingPointsColumn(t *testing.T) {
	// GIVEN: A populated store
	s := seededStore(t)
	before := loadAll(t, s)
	rec := newCountingRecorder()
	gw := NewGateway(s, "", WithRecorder(rec))

	// WHEN: A file without a points column is imported
	_, err := gw.ImportReplace(context.Background(), admin,
		strings.NewReader("d,emp_id,grp\n2025-03-01,E0001,A\n"))

	// THEN: It fails with the missing column and nothing changed
	var schema *ledger.SchemaError
	require.ErrorAs(t, err, &schema)
	assert.Equal(t, []string{"points"}, schema.Missing)
	assert.Equal(t, before, loadAll(t, s))
	assert.Equal(t, 1, rec.imports["schema"])
}

func TestImportReplace_EmptyFile(t *testing.T) {
	_, err := NewGateway(seededStore(t), "").ImportReplace(context.Background(), admin, strings.NewReader(""))

	var schema *ledger.SchemaError
	require.ErrorAs(t, err, &schema)
	assert.Equal(t, RequiredColumns, schema.Missing)
}

func TestImportReplace_AliasesWithoutBOM(t *testing.T) {
	// GIVEN: Japanese headers, odd case and spacing, no BOM
	s := seededStore(t)
	csv := " 日付 ,社員ID,グループ,ポイント,シフト,メモ,extra\n" +
		"2025/3/5,E0001,A,2,早番,ok,ignored\n" +
		",,,,,,\n" +
		"2025-03-06,E0002,B,abc,,,\n"

	// WHEN: Imported
	summary, err := NewGateway(s, "").ImportReplace(context.Background(), admin, strings.NewReader(csv))

	// THEN: Both data rows land, blank rows skipped, bad points become 0
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Rows)
	assert.Equal(t, []string{
		"2025-03-05|早番|E0001|A|2|ok",
		"2025-03-06||E0002|B|0|",
	}, withoutIDs(loadAll(t, s)))
}

func TestImportReplace_EnglishAliasesWithBOM(t *testing.T) {
	s := seededStore(t)
	csv := bom + "DATE,Employee_ID,Team,Point\n2025-04-01,E0002,A,4\n"

	_, err := NewGateway(s, "").ImportReplace(context.Background(), admin, strings.NewReader(csv))

	require.NoError(t, err)
	assert.Equal(t, []string{"2025-04-01||E0002|A|4|"}, withoutIDs(loadAll(t, s)))
}

func TestImportReplace_InvalidRows(t *testing.T) {
	tests := []struct {
		name  string
		row   string
		field string
	}{
		{"bad date", "03/05/2025,E0001,A,1", ColDate},
		{"empty employee", "2025-03-05,,A,1", ColEmployee},
		{"negative points", "2025-03-05,E0001,A,-2", ColPoints},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := seededStore(t)
			before := loadAll(t, s)

			_, err := NewGateway(s, "").ImportReplace(context.Background(), admin,
				strings.NewReader("d,emp_id,grp,points\n2025-03-04,E0002,A,1\n"+tt.row+"\n"))

			var verr *ledger.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, 2, verr.Row)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, before, loadAll(t, s))
		})
	}
}

func TestImportReplace_DuplicateKeyRollsBack(t *testing.T) {
	s := seededStore(t)
	before := loadAll(t, s)

	_, err := NewGateway(s, "").ImportReplace(context.Background(), admin,
		strings.NewReader("d,emp_id,grp,points\n2025-03-04,E0002,A,1\n2025-03-04,E0002,A,2\n"))

	assert.ErrorIs(t, err, ledger.ErrDuplicate)
	assert.Equal(t, before, loadAll(t, s))
}

func TestImportReplace_RequiresAdmin(t *testing.T) {
	s := seededStore(t)
	viewer := ledger.Capability{Subject: "v", Role: ledger.RoleViewer}

	_, err := NewGateway(s, "").ImportReplace(context.Background(), viewer,
		strings.NewReader("d,emp_id,grp,points\n"))

	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
	assert.Len(t, loadAll(t, s), 3)
}

// =============================================================================
// SNAPSHOT
// =============================================================================

func TestSnapshotLatest_WritesAndOverwrites(t *testing.T) {
	// GIVEN: A gateway writing into a fresh directory
	s := seededStore(t)
	path := filepath.Join(t.TempDir(), "backup", "records_latest.csv")
	rec := newCountingRecorder()
	gw := NewGateway(s, path, WithRecorder(rec))

	// WHEN: Two snapshots run, with a delete in between
	gw.SnapshotLatest(context.Background())
	require.NoError(t, s.DeleteRecord(context.Background(), "r3"))
	gw.SnapshotLatest(context.Background())

	// THEN: The file holds the latest export and no temp files remain
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var want bytes.Buffer
	_, err = gw.ExportAll(context.Background(), &want)
	require.NoError(t, err)
	assert.Equal(t, want.String(), string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, 2, rec.snapshots["ok"])
}

func TestSnapshotLatest_FailureIsSwallowed(t *testing.T) {
	// GIVEN: A snapshot path below a regular file
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	rec := newCountingRecorder()
	gw := NewGateway(seededStore(t), filepath.Join(blocker, "records.csv"), WithRecorder(rec))

	// WHEN / THEN: The snapshot fails without panicking and is counted
	assert.NotPanics(t, func() { gw.SnapshotLatest(context.Background()) })
	assert.Equal(t, 1, rec.snapshots["error"])
}

func TestSnapshotLatest_DisabledWithoutPath(t *testing.T) {
	rec := newCountingRecorder()
	NewGateway(seededStore(t), "", WithRecorder(rec)).SnapshotLatest(context.Background())
	assert.Empty(t, rec.snapshots)
}

func TestResolveHeader_ReportsMissingInOrder(t *testing.T) {
	_, err := resolveHeader([]string{"memo", "grp"})

	var schema *ledger.SchemaError
	require.ErrorAs(t, err, &schema)
	assert.Equal(t, []string{ColDate, ColEmployee, ColPoints}, schema.Missing)
}
