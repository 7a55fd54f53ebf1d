/*
workbook.go - Ranking workbook (.xlsx)

PURPOSE:
  Renders an aggregate.Summary as a spreadsheet for people who keep the
  monthly results outside the service.

SHEETS:
  Teams:       team, total
  Employees:   rank, ID, name, total
  Top by team: team, rank, ID, name, total
  Details:     date, shift, ID, name, team, points, memo

SEE ALSO:
  - aggregate/aggregate.go: Summarize
  - api/handlers.go: GET /api/reports/rankings.xlsx
*/
package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/warp/point-ledger/aggregate"
	"github.com/warp/point-ledger/ledger"
)

const (
	sheetTeams     = "Teams"
	sheetEmployees = "Employees"
	sheetPerTeam   = "Top by team"
	sheetDetails   = "Details"
)

// Filename is the suggested download name for a period.
func Filename(p ledger.Period) string {
	return fmt.Sprintf("rankings_%s_%s.xlsx", p.Start, p.End.AddDays(-1))
}

// WriteRankings writes the workbook for summary over period p to w.
func WriteRankings(w io.Writer, p ledger.Period, summary aggregate.Summary) error {
	f := excelize.NewFile()
	defer f.Close()

	wb := &workbook{f: f}
	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	wb.header = header

	// Teams
	wb.sheet(sheetTeams, []string{"Team", "Total"}, []float64{18, 12})
	wb.caption(sheetTeams, fmt.Sprintf("%s (%d days), total %s", p, p.Days(), summary.Total))
	for i, t := range summary.Teams {
		wb.row(sheetTeams, i, t.Team, t.Total.InexactFloat64())
	}

	// Employees
	wb.sheet(sheetEmployees, []string{"Rank", "ID", "Name", "Total"}, []float64{8, 12, 20, 12})
	for i, e := range summary.Employees {
		wb.row(sheetEmployees, i, i+1, string(e.EmployeeID), e.Name, e.Total.InexactFloat64())
	}

	// Top by team
	wb.sheet(sheetPerTeam, []string{"Team", "Rank", "ID", "Name", "Total"}, []float64{18, 8, 12, 20, 12})
	n := 0
	for _, team := range summary.PerTeam {
		for rank, e := range team.Top {
			wb.row(sheetPerTeam, n, team.Team, rank+1, string(e.EmployeeID), e.Name, e.Total.InexactFloat64())
			n++
		}
	}

	// Details
	wb.sheet(sheetDetails, []string{"Date", "Shift", "ID", "Name", "Team", "Points", "Memo"},
		[]float64{12, 10, 12, 20, 14, 10, 30})
	for i, d := range summary.Details {
		wb.row(sheetDetails, i, d.Date.String(), d.Shift, string(d.EmployeeID), d.Name, d.Team,
			d.Points.InexactFloat64(), d.Memo)
	}

	if wb.err != nil {
		return wb.err
	}

	idx, err := f.GetSheetIndex(sheetTeams)
	if err != nil {
		return err
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to drop default sheet: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// workbook keeps the first error so the layout code above stays flat.
type workbook struct {
	f      *excelize.File
	header int
	err    error
}

// Data rows start at row 3: row 1 is the caption, row 2 the header.
const firstDataRow = 3

func (wb *workbook) sheet(name string, columns []string, widths []float64) {
	if wb.err != nil {
		return
	}
	if _, err := wb.f.NewSheet(name); err != nil {
		wb.err = fmt.Errorf("failed to create sheet %s: %w", name, err)
		return
	}
	for i, title := range columns {
		col := colName(i)
		wb.check(wb.f.SetColWidth(name, col, col, widths[i]))
		wb.check(wb.f.SetCellValue(name, cell(col, 2), title))
	}
	last := colName(len(columns) - 1)
	wb.check(wb.f.SetCellStyle(name, cell("A", 2), cell(last, 2), wb.header))
}

func (wb *workbook) caption(sheet, text string) {
	if wb.err != nil {
		return
	}
	wb.check(wb.f.SetCellValue(sheet, "A1", text))
}

func (wb *workbook) row(sheet string, i int, values ...any) {
	if wb.err != nil {
		return
	}
	for c, v := range values {
		wb.check(wb.f.SetCellValue(sheet, cell(colName(c), firstDataRow+i), v))
	}
}

func (wb *workbook) check(err error) {
	if err != nil && wb.err == nil {
		wb.err = err
	}
}

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
