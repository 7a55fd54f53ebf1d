package backup

import (
	"strings"

	"github.com/warp/point-ledger/ledger"
)

// Canonical column names of records.csv.
const (
	ColDate     = "d"
	ColShift    = "shift"
	ColEmployee = "emp_id"
	ColTeam     = "grp"
	ColPoints   = "points"
	ColMemo     = "memo"
)

// ExportColumns is the column order written by ExportAll.
var ExportColumns = []string{ColDate, ColEmployee, ColTeam, ColPoints, ColShift, ColMemo}

// RequiredColumns must be present in an import, after alias resolution.
var RequiredColumns = []string{ColDate, ColEmployee, ColTeam, ColPoints}

// RosterColumns is the column order written by ExportRoster.
var RosterColumns = []string{"emp_id", "name", "grp"}

// headerAliases lists the accepted spellings of every column. Matching
// trims the header and ignores ASCII case.
var headerAliases = []struct {
	Column  string
	Aliases []string
}{
	{ColDate, []string{"日付", "date"}},
	{ColShift, []string{"シフト"}},
	{ColEmployee, []string{"社員ID", "employee_id"}},
	{ColTeam, []string{"グループ", "team", "group"}},
	{ColPoints, []string{"ポイント", "point"}},
	{ColMemo, []string{"メモ", "note"}},
}

// aliasIndex maps every accepted spelling to its canonical column.
var aliasIndex = buildAliasIndex()

func buildAliasIndex() map[string]string {
	idx := make(map[string]string)
	for _, entry := range headerAliases {
		idx[normalizeHeader(entry.Column)] = entry.Column
		for _, alias := range entry.Aliases {
			idx[normalizeHeader(alias)] = entry.Column
		}
	}
	return idx
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

// resolveHeader maps canonical column names to their position in header.
// Unknown columns are ignored; the first occurrence of a column wins.
func resolveHeader(header []string) (map[string]int, error) {
	positions := make(map[string]int)
	for i, h := range header {
		col, ok := aliasIndex[normalizeHeader(h)]
		if !ok {
			continue
		}
		if _, seen := positions[col]; !seen {
			positions[col] = i
		}
	}

	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := positions[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &ledger.SchemaError{Missing: missing}
	}
	return positions, nil
}
