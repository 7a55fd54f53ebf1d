/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger model from the external contract: dates travel as YYYY-MM-DD
  strings, months as YYYY-MM, points as decimal strings.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Shape checks (required JSON fields, date syntax) happen in the handlers.
  Business rules live in the ledger.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/point-ledger/aggregate"
	"github.com/warp/point-ledger/ledger"
)

// =============================================================================
// ROSTER
// =============================================================================

type EmployeeDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Team string `json:"team"`
}

type ReplaceRosterRequest struct {
	Employees []EmployeeDTO `json:"employees"`
}

type ShiftsDTO struct {
	Shifts []string `json:"shifts"`
}

// =============================================================================
// RECORDS
// =============================================================================

type RecordDTO struct {
	ID         string          `json:"id"`
	Date       string          `json:"date"`
	Shift      string          `json:"shift,omitempty"`
	EmployeeID string          `json:"employee_id"`
	Name       string          `json:"name,omitempty"`
	Team       string          `json:"team"`
	Points     decimal.Decimal `json:"points"`
	Memo       string          `json:"memo,omitempty"`
}

type CreateRecordRequest struct {
	Date       string          `json:"date"` // defaults to today
	Shift      string          `json:"shift"`
	EmployeeID string          `json:"employee_id"`
	Points     decimal.Decimal `json:"points"`
	Memo       string          `json:"memo"`
}

type WriteResultDTO struct {
	Record RecordDTO `json:"record"`
	Status string    `json:"status"` // created | updated
}

type UpdateRecordRequest struct {
	Date       string          `json:"date"`
	Shift      string          `json:"shift"`
	EmployeeID string          `json:"employee_id"`
	Team       string          `json:"team"`
	Points     decimal.Decimal `json:"points"`
	Memo       string          `json:"memo"`
}

type BatchOpRequest struct {
	Kind string `json:"kind"` // update | delete
	ID   string `json:"id"`
	UpdateRecordRequest
}

type BatchRequest struct {
	Ops []BatchOpRequest `json:"ops"`
}

type SkippedRowDTO struct {
	Index  int    `json:"index"`
	ID     string `json:"id"`
	Reason string `json:"reason"`
	Month  string `json:"month,omitempty"`
}

type BatchReportDTO struct {
	Applied []string        `json:"applied"`
	Skipped []SkippedRowDTO `json:"skipped"`
}

// =============================================================================
// LOCKS
// =============================================================================

type LockDTO struct {
	Month  string `json:"month"`
	Locked bool   `json:"locked"`
}

// =============================================================================
// DASHBOARD
// =============================================================================

type PeriodDTO struct {
	Preset  string `json:"preset"`
	Start   string `json:"start"`
	End     string `json:"end"` // exclusive
	Days    int    `json:"days"`
	Warning string `json:"warning,omitempty"`
}

type TeamTotalDTO struct {
	Team  string          `json:"team"`
	Total decimal.Decimal `json:"total"`
}

type EmployeeTotalDTO struct {
	Rank       int             `json:"rank"`
	EmployeeID string          `json:"employee_id"`
	Name       string          `json:"name"`
	Total      decimal.Decimal `json:"total"`
}

type TeamRankingDTO struct {
	Team string             `json:"team"`
	Top  []EmployeeTotalDTO `json:"top"`
}

type DashboardDTO struct {
	Period    PeriodDTO          `json:"period"`
	Total     decimal.Decimal    `json:"total"`
	Teams     []TeamTotalDTO     `json:"teams"`
	Employees []EmployeeTotalDTO `json:"employees"`
	PerTeam   []TeamRankingDTO   `json:"per_team"`
	Details   []RecordDTO        `json:"details"`
}

// =============================================================================
// AUTH / ADMIN
// =============================================================================

type LoginRequest struct {
	PIN      string `json:"pin"`
	Password string `json:"password"`
}

type TokenDTO struct {
	Token     string `json:"token"`
	Role      string `json:"role"`
	ExpiresAt string `json:"expires_at"`
}

type ImportResultDTO struct {
	Rows int `json:"rows"`
}

type StatusDTO struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details string   `json:"details,omitempty"`
	Month   string   `json:"month,omitempty"`
	Field   string   `json:"field,omitempty"`
	Row     int      `json:"row,omitempty"`
	Missing []string `json:"missing,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toEmployeeDTO(e ledger.Employee) EmployeeDTO {
	return EmployeeDTO{ID: string(e.ID), Name: e.Name, Team: e.Team}
}

func (d EmployeeDTO) toEmployee() ledger.Employee {
	return ledger.Employee{ID: ledger.EmployeeID(d.ID), Name: d.Name, Team: d.Team}
}

func toRecordDTO(r ledger.Record, name string) RecordDTO {
	return RecordDTO{
		ID:         string(r.ID),
		Date:       r.Date.String(),
		Shift:      r.Shift,
		EmployeeID: string(r.EmployeeID),
		Name:       name,
		Team:       r.Team,
		Points:     r.Points,
		Memo:       r.Memo,
	}
}

// toEdit parses the request. row is reported in validation errors (0 for
// single edits).
func (req UpdateRecordRequest) toEdit(row int) (ledger.RecordEdit, error) {
	date, err := ledger.ParseDate(req.Date)
	if err != nil {
		return ledger.RecordEdit{}, &ledger.ValidationError{Row: row, Field: "date", Value: req.Date, Message: "is not a date"}
	}
	return ledger.RecordEdit{
		Date:       date,
		Shift:      req.Shift,
		EmployeeID: ledger.EmployeeID(req.EmployeeID),
		Team:       req.Team,
		Points:     req.Points,
		Memo:       req.Memo,
	}, nil
}

func toEmployeeTotals(totals []aggregate.EmployeeTotal) []EmployeeTotalDTO {
	dtos := make([]EmployeeTotalDTO, len(totals))
	for i, t := range totals {
		dtos[i] = EmployeeTotalDTO{
			Rank:       i + 1,
			EmployeeID: string(t.EmployeeID),
			Name:       t.Name,
			Total:      t.Total,
		}
	}
	return dtos
}

func toDashboardDTO(res ledger.Resolution, s aggregate.Summary) DashboardDTO {
	dto := DashboardDTO{
		Period: PeriodDTO{
			Preset:  string(res.Preset),
			Start:   res.Period.Start.String(),
			End:     res.Period.End.String(),
			Days:    res.Period.Days(),
			Warning: res.Warning,
		},
		Total:     s.Total,
		Teams:     make([]TeamTotalDTO, len(s.Teams)),
		Employees: toEmployeeTotals(s.Employees),
		PerTeam:   make([]TeamRankingDTO, len(s.PerTeam)),
		Details:   make([]RecordDTO, len(s.Details)),
	}
	for i, t := range s.Teams {
		dto.Teams[i] = TeamTotalDTO{Team: t.Team, Total: t.Total}
	}
	for i, t := range s.PerTeam {
		dto.PerTeam[i] = TeamRankingDTO{Team: t.Team, Top: toEmployeeTotals(t.Top)}
	}
	for i, d := range s.Details {
		dto.Details[i] = toRecordDTO(d.Record, d.Name)
	}
	return dto
}

func toBatchOps(reqs []BatchOpRequest) ([]ledger.BatchOp, error) {
	ops := make([]ledger.BatchOp, len(reqs))
	for i, req := range reqs {
		op := ledger.BatchOp{Kind: ledger.BatchKind(req.Kind), ID: ledger.RecordID(req.ID)}
		if op.Kind == ledger.BatchUpdate {
			edit, err := req.toEdit(i + 1)
			if err != nil {
				return nil, err
			}
			op.Edit = edit
		}
		ops[i] = op
	}
	return ops, nil
}

func toBatchReportDTO(rep ledger.BatchReport) BatchReportDTO {
	dto := BatchReportDTO{
		Applied: make([]string, len(rep.Applied)),
		Skipped: make([]SkippedRowDTO, len(rep.Skipped)),
	}
	for i, id := range rep.Applied {
		dto.Applied[i] = string(id)
	}
	for i, s := range rep.Skipped {
		dto.Skipped[i] = SkippedRowDTO{Index: s.Index, ID: string(s.ID), Reason: s.Reason, Month: s.Month}
	}
	return dto
}
