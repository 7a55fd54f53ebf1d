/*
Package aggregate computes totals and rankings over a slice of records.

PURPOSE:
  Every function here is pure. It works on exactly the records it is given
  and never queries a store, so the caller decides the period (usually via
  ledger.ResolvePreset + Ledger.QueryRange).

ORDERING:
  - Team totals: total descending, then team name ascending
  - Employee totals: total descending, then employee ID ascending
  - TopN keeps the relative order of equal totals (stable)

SEE ALSO:
  - ledger/period.go: Preset resolution
  - report/workbook.go: Renders these views as .xlsx
*/
package aggregate

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/point-ledger/ledger"
)

// TeamTotal is the sum of points recorded under one team snapshot.
type TeamTotal struct {
	Team  string
	Total decimal.Decimal
}

// EmployeeTotal is the sum of points of one employee. Name is empty when
// the employee is no longer on the roster.
type EmployeeTotal struct {
	EmployeeID ledger.EmployeeID
	Name       string
	Total      decimal.Decimal
}

// TeamRanking is the top of one team.
type TeamRanking struct {
	Team string
	Top  []EmployeeTotal
}

// DetailRow is a record joined with the employee's display name.
type DetailRow struct {
	ledger.Record
	Name string
}

// =============================================================================
// TOTALS
// =============================================================================

// SumByTeam groups records by their team snapshot.
func SumByTeam(records []ledger.Record) []TeamTotal {
	sums := make(map[string]decimal.Decimal)
	for _, r := range records {
		sums[r.Team] = sums[r.Team].Add(r.Points)
	}

	result := make([]TeamTotal, 0, len(sums))
	for team, total := range sums {
		result = append(result, TeamTotal{Team: team, Total: total})
	}
	sort.Slice(result, func(i, j int) bool {
		if c := result[i].Total.Cmp(result[j].Total); c != 0 {
			return c > 0
		}
		return result[i].Team < result[j].Team
	})
	return result
}

// SumByEmployee groups records by employee and joins the roster for names.
func SumByEmployee(records []ledger.Record, roster []ledger.Employee) []EmployeeTotal {
	names := nameIndex(roster)
	sums := make(map[ledger.EmployeeID]decimal.Decimal)
	for _, r := range records {
		sums[r.EmployeeID] = sums[r.EmployeeID].Add(r.Points)
	}

	result := make([]EmployeeTotal, 0, len(sums))
	for id, total := range sums {
		result = append(result, EmployeeTotal{EmployeeID: id, Name: names[id], Total: total})
	}
	sort.Slice(result, func(i, j int) bool {
		if c := result[i].Total.Cmp(result[j].Total); c != 0 {
			return c > 0
		}
		return result[i].EmployeeID < result[j].EmployeeID
	})
	return result
}

// TopN returns the n highest totals. n <= 0 returns everything.
func TopN(totals []EmployeeTotal, n int) []EmployeeTotal {
	sorted := append([]EmployeeTotal(nil), totals...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Total.GreaterThan(sorted[j].Total)
	})
	if n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// PerTeamTopN partitions records by team snapshot and ranks each
// partition. Teams are returned in name order.
func PerTeamTopN(records []ledger.Record, roster []ledger.Employee, n int) []TeamRanking {
	byTeam := make(map[string][]ledger.Record)
	for _, r := range records {
		byTeam[r.Team] = append(byTeam[r.Team], r)
	}

	teams := make([]string, 0, len(byTeam))
	for team := range byTeam {
		teams = append(teams, team)
	}
	sort.Strings(teams)

	result := make([]TeamRanking, 0, len(teams))
	for _, team := range teams {
		result = append(result, TeamRanking{
			Team: team,
			Top:  TopN(SumByEmployee(byTeam[team], roster), n),
		})
	}
	return result
}

// GrandTotal sums every record.
func GrandTotal(records []ledger.Record) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.Points)
	}
	return total
}

// =============================================================================
// DETAIL
// =============================================================================

// Details joins names and orders rows newest first. limit <= 0 keeps all.
func Details(records []ledger.Record, roster []ledger.Employee, limit int) []DetailRow {
	names := nameIndex(roster)
	rows := make([]DetailRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, DetailRow{Record: r, Name: names[r.EmployeeID]})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Date.After(rows[j].Date)
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

func nameIndex(roster []ledger.Employee) map[ledger.EmployeeID]string {
	names := make(map[ledger.EmployeeID]string, len(roster))
	for _, e := range roster {
		names[e.ID] = e.Name
	}
	return names
}

// =============================================================================
// SUMMARY - Everything the dashboard and the workbook show
// =============================================================================

// Summary bundles the views over one record set.
type Summary struct {
	Total     decimal.Decimal
	Teams     []TeamTotal
	Employees []EmployeeTotal // top n
	PerTeam   []TeamRanking   // top n per team
	Details   []DetailRow     // newest first, up to detailLimit
}

// Summarize computes every view at once. top and detailLimit follow the
// TopN and Details conventions (<= 0 means no limit).
func Summarize(records []ledger.Record, roster []ledger.Employee, top, detailLimit int) Summary {
	return Summary{
		Total:     GrandTotal(records),
		Teams:     SumByTeam(records),
		Employees: TopN(SumByEmployee(records, roster), top),
		PerTeam:   PerTeamTopN(records, roster, top),
		Details:   Details(records, roster, detailLimit),
	}
}
