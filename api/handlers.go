/*
handlers.go - HTTP API handlers for the point ledger

PURPOSE:
  Exposes the ledger, the lock registry, the roster and the backup gateway
  via REST. Handles HTTP request/response and JSON, and delegates every
  rule to the ledger package.

ENDPOINTS:
  Auth:
    POST   /api/auth/admin            Admin PIN -> admin token
    POST   /api/auth/viewer           View password -> viewer token

  Roster & shifts:
    GET    /api/employees             Roster
    POST   /api/employees             Add employee               (admin)
    PUT    /api/employees             Replace roster             (admin)
    GET    /api/shifts                Shift catalog
    PUT    /api/shifts                Replace catalog            (admin)

  Records:
    GET    /api/records               Recent entries for a period
    POST   /api/records               Add (or upsert) a record
    PUT    /api/records/{id}          Edit a record              (admin)
    DELETE /api/records/{id}          Delete a record            (admin)
    POST   /api/records/batch         Bulk edit, skip report     (admin)
    GET    /api/dashboard             Totals and rankings for a period

  Locks:
    GET    /api/locks                 Closed months
    GET    /api/locks/{month}         Lock state of YYYY-MM
    PUT    /api/locks/{month}         Close a month              (admin)
    DELETE /api/locks/{month}         Reopen a month             (admin)

  Admin:
    GET    /api/admin/export          records.csv
    POST   /api/admin/import          Replace all records from CSV
    GET    /api/admin/roster.csv      roster.csv
    POST   /api/admin/snapshot        Snapshot now (async)

  Reports:
    GET    /api/reports/rankings.xlsx Ranking workbook

PERIOD QUERY PARAMETERS:
  preset = today | this-week | this-month (default) | last-month | custom
  start, end = YYYY-MM-DD, end exclusive (custom only)

ERROR HANDLING:
  See errors.go for the status mapping.

SEE ALSO:
  - dto.go: Request/response data structures
  - middleware.go: Capability resolution
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/point-ledger/aggregate"
	"github.com/warp/point-ledger/auth"
	"github.com/warp/point-ledger/backup"
	"github.com/warp/point-ledger/ledger"
	"github.com/warp/point-ledger/report"
)

// DefaultMaxUploadBytes caps CSV imports.
const DefaultMaxUploadBytes = 10 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger    *ledger.Ledger
	Backup    *backup.Gateway
	Snapshots *backup.Scheduler
	Auth      *auth.Manager
	Logger    *zap.Logger

	// Ping reports database health for /healthz. Optional.
	Ping func(ctx context.Context) error
	// Metrics serves /metrics. Optional.
	Metrics http.Handler
	// Now is the clock used for "today" and capability checks.
	Now func() time.Time
	// MaxUploadBytes caps import bodies; larger uploads get 413.
	MaxUploadBytes int64
}

// NewHandler creates a handler. snapshots may be nil, in which case the
// snapshot endpoint runs the gateway in a goroutine of its own.
func NewHandler(l *ledger.Ledger, gw *backup.Gateway, snapshots *backup.Scheduler, authn *auth.Manager, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Ledger:    l,
		Backup:    gw,
		Snapshots: snapshots,
		Auth:      authn,
		Logger:    logger,
		Now:       time.Now,

		MaxUploadBytes: DefaultMaxUploadBytes,
	}
}

func (h *Handler) now() time.Time { return h.Now() }

func (h *Handler) today() ledger.Date { return ledger.DateOf(h.now()) }

// =============================================================================
// AUTH
// =============================================================================

// LoginAdmin exchanges the admin PIN for a token.
func (h *Handler) LoginAdmin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	token, err := h.Auth.LoginAdmin(req.PIN)
	if err != nil {
		h.logger(r).Info("admin login rejected")
		h.writeLedgerError(w, r, "Login failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenDTO(token))
}

// LoginViewer exchanges the view password for a token.
func (h *Handler) LoginViewer(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	token, err := h.Auth.LoginViewer(req.Password)
	if err != nil {
		h.writeLedgerError(w, r, "Login failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenDTO(token))
}

func toTokenDTO(t auth.Token) TokenDTO {
	return TokenDTO{
		Token:     t.Token,
		Role:      string(t.Capability.Role),
		ExpiresAt: t.Capability.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

// =============================================================================
// ROSTER & SHIFTS
// =============================================================================

// ListEmployees returns the roster ordered by ID.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Ledger.Roster(r.Context())
	if err != nil {
		h.writeLedgerError(w, r, "Failed to list employees", err)
		return
	}
	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateEmployee adds one roster entry.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req EmployeeDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	e, err := h.Ledger.AddEmployee(r.Context(), capabilityFrom(r.Context()), req.toEmployee())
	if err != nil {
		h.writeLedgerError(w, r, "Failed to add employee", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(e))
}

// ReplaceRoster swaps the whole roster.
func (h *Handler) ReplaceRoster(w http.ResponseWriter, r *http.Request) {
	var req ReplaceRosterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	entries := make([]ledger.Employee, len(req.Employees))
	for i, e := range req.Employees {
		entries[i] = e.toEmployee()
	}
	roster, err := h.Ledger.ReplaceRoster(r.Context(), capabilityFrom(r.Context()), entries)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to save roster", err)
		return
	}
	dtos := make([]EmployeeDTO, len(roster))
	for i, e := range roster {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListShifts returns the shift catalog.
func (h *Handler) ListShifts(w http.ResponseWriter, r *http.Request) {
	shifts, err := h.Ledger.Shifts(r.Context())
	if err != nil {
		h.writeLedgerError(w, r, "Failed to list shifts", err)
		return
	}
	writeJSON(w, http.StatusOK, ShiftsDTO{Shifts: nonNil(shifts)})
}

// ReplaceShifts swaps the shift catalog.
func (h *Handler) ReplaceShifts(w http.ResponseWriter, r *http.Request) {
	var req ShiftsDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	shifts, err := h.Ledger.ReplaceShifts(r.Context(), capabilityFrom(r.Context()), req.Shifts)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to save shifts", err)
		return
	}
	writeJSON(w, http.StatusOK, ShiftsDTO{Shifts: nonNil(shifts)})
}

// =============================================================================
// RECORDS
// =============================================================================

// ListRecords returns the newest entries of a period (limit, default 10;
// 0 for all).
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	res, err := h.resolvePeriod(r)
	if err != nil {
		h.writeLedgerError(w, r, "Invalid period", err)
		return
	}
	limit, err := intParam(r, "limit", 10)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}

	records, roster, err := h.load(r.Context(), res.Period)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to load records", err)
		return
	}

	rows := aggregate.Details(records, roster, limit)
	dtos := make([]RecordDTO, len(rows))
	for i, row := range rows {
		dtos[i] = toRecordDTO(row.Record, row.Name)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateRecord adds a point award. Returns 201 when created and 200 when an
// existing record was overwritten (daily key policy).
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var req CreateRecordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	date := h.today()
	if strings.TrimSpace(req.Date) != "" {
		d, err := ledger.ParseDate(req.Date)
		if err != nil {
			h.writeLedgerError(w, r, "Invalid date",
				&ledger.ValidationError{Field: "date", Value: req.Date, Message: "is not a date"})
			return
		}
		date = d
	}

	res, err := h.Ledger.AddRecord(r.Context(), ledger.NewRecord{
		Date:       date,
		Shift:      req.Shift,
		EmployeeID: ledger.EmployeeID(req.EmployeeID),
		Points:     req.Points,
		Memo:       req.Memo,
	})
	if err != nil {
		h.writeLedgerError(w, r, "Failed to add record", err)
		return
	}

	status := http.StatusCreated
	if res.Status == ledger.StatusUpdated {
		status = http.StatusOK
	}
	writeJSON(w, status, WriteResultDTO{
		Record: toRecordDTO(res.Record, ""),
		Status: string(res.Status),
	})
}

// UpdateRecord edits a record.
func (h *Handler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	id := ledger.RecordID(chi.URLParam(r, "id"))

	var req UpdateRecordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	edit, err := req.toEdit(0)
	if err != nil {
		h.writeLedgerError(w, r, "Invalid record", err)
		return
	}

	rec, err := h.Ledger.UpdateRecord(r.Context(), capabilityFrom(r.Context()), id, edit)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to update record", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(rec, ""))
}

// DeleteRecord removes a record.
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	id := ledger.RecordID(chi.URLParam(r, "id"))
	if err := h.Ledger.DeleteRecord(r.Context(), capabilityFrom(r.Context()), id); err != nil {
		h.writeLedgerError(w, r, "Failed to delete record", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BatchRecords applies many edits and deletes; locked rows are skipped.
func (h *Handler) BatchRecords(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ops, err := toBatchOps(req.Ops)
	if err != nil {
		h.writeLedgerError(w, r, "Invalid batch", err)
		return
	}
	rep, err := h.Ledger.ApplyBatch(r.Context(), capabilityFrom(r.Context()), ops)
	if err != nil {
		h.writeLedgerError(w, r, "Batch failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchReportDTO(rep))
}

// Dashboard returns totals, rankings (top, default 10) and every detail row
// of the period.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	res, summary, ok := h.summarize(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toDashboardDTO(res, summary))
}

// =============================================================================
// LOCKS
// =============================================================================

// ListLocks returns closed months, oldest first.
func (h *Handler) ListLocks(w http.ResponseWriter, r *http.Request) {
	months, err := h.Ledger.Locks(r.Context())
	if err != nil {
		h.writeLedgerError(w, r, "Failed to list locks", err)
		return
	}
	dtos := make([]LockDTO, len(months))
	for i, ym := range months {
		dtos[i] = LockDTO{Month: ym.String(), Locked: true}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetLock reports whether one month is closed.
func (h *Handler) GetLock(w http.ResponseWriter, r *http.Request) {
	ym, ok := monthParam(w, r)
	if !ok {
		return
	}
	locked, err := h.Ledger.IsLocked(r.Context(), ym.First())
	if err != nil {
		h.writeLedgerError(w, r, "Failed to read lock", err)
		return
	}
	writeJSON(w, http.StatusOK, LockDTO{Month: ym.String(), Locked: locked})
}

// LockMonth closes a month.
func (h *Handler) LockMonth(w http.ResponseWriter, r *http.Request) {
	ym, ok := monthParam(w, r)
	if !ok {
		return
	}
	if err := h.Ledger.Lock(r.Context(), capabilityFrom(r.Context()), ym.First()); err != nil {
		h.writeLedgerError(w, r, "Failed to lock month", err)
		return
	}
	writeJSON(w, http.StatusOK, LockDTO{Month: ym.String(), Locked: true})
}

// UnlockMonth reopens a month.
func (h *Handler) UnlockMonth(w http.ResponseWriter, r *http.Request) {
	ym, ok := monthParam(w, r)
	if !ok {
		return
	}
	if err := h.Ledger.Unlock(r.Context(), capabilityFrom(r.Context()), ym.First()); err != nil {
		h.writeLedgerError(w, r, "Failed to unlock month", err)
		return
	}
	writeJSON(w, http.StatusOK, LockDTO{Month: ym.String(), Locked: false})
}

// =============================================================================
// ADMIN - Backup/restore
// =============================================================================

// ExportRecords downloads records.csv.
func (h *Handler) ExportRecords(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if _, err := h.Backup.ExportAll(r.Context(), &buf); err != nil {
		h.writeLedgerError(w, r, "Failed to export records", err)
		return
	}
	writeDownload(w, "text/csv; charset=utf-8", "records.csv", buf.Bytes())
}

// ExportRoster downloads roster.csv.
func (h *Handler) ExportRoster(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if _, err := h.Backup.ExportRoster(r.Context(), &buf); err != nil {
		h.writeLedgerError(w, r, "Failed to export roster", err)
		return
	}
	writeDownload(w, "text/csv; charset=utf-8", "roster.csv", buf.Bytes())
}

// ImportRecords replaces every record with an uploaded CSV. Accepts a
// multipart form (field "file") or a raw CSV body.
func (h *Handler) ImportRecords(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)

	var src io.Reader = r.Body
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		file, _, err := r.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "Upload too large", err)
				return
			}
			writeError(w, http.StatusBadRequest, "Missing upload field \"file\"", err)
			return
		}
		defer file.Close()
		src = file
	}

	summary, err := h.Backup.ImportReplace(r.Context(), capabilityFrom(r.Context()), src)
	if err != nil {
		h.writeLedgerError(w, r, "Import failed", err)
		return
	}
	writeJSON(w, http.StatusOK, ImportResultDTO{Rows: summary.Rows})
}

// TriggerSnapshot writes the backup file in the background.
func (h *Handler) TriggerSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.Snapshots != nil {
		if !h.Snapshots.Trigger() {
			writeError(w, http.StatusServiceUnavailable, "Snapshot scheduler is stopped", nil)
			return
		}
	} else {
		go h.Backup.SnapshotLatest(context.Background())
	}
	writeJSON(w, http.StatusAccepted, StatusDTO{Status: "accepted"})
}

// =============================================================================
// REPORTS
// =============================================================================

// RankingsWorkbook downloads the rankings of a period as .xlsx.
func (h *Handler) RankingsWorkbook(w http.ResponseWriter, r *http.Request) {
	res, summary, ok := h.summarize(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := report.WriteRankings(&buf, res.Period, summary); err != nil {
		h.writeLedgerError(w, r, "Failed to build workbook", err)
		return
	}
	writeDownload(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		report.Filename(res.Period), buf.Bytes())
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.Ping != nil {
		if err := h.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, StatusDTO{Status: "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// summarize resolves the period, loads it and computes every view. On
// failure the error response is already written.
func (h *Handler) summarize(w http.ResponseWriter, r *http.Request) (ledger.Resolution, aggregate.Summary, bool) {
	res, err := h.resolvePeriod(r)
	if err != nil {
		h.writeLedgerError(w, r, "Invalid period", err)
		return res, aggregate.Summary{}, false
	}
	top, err := intParam(r, "top", 10)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid top", err)
		return res, aggregate.Summary{}, false
	}

	records, roster, err := h.load(r.Context(), res.Period)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to load records", err)
		return res, aggregate.Summary{}, false
	}
	return res, aggregate.Summarize(records, roster, top, 0), true
}

// load returns the records of p and the roster used to name them.
func (h *Handler) load(ctx context.Context, p ledger.Period) ([]ledger.Record, []ledger.Employee, error) {
	records, err := h.Ledger.QueryRange(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	roster, err := h.Ledger.Roster(ctx)
	if err != nil {
		return nil, nil, err
	}
	return records, roster, nil
}

// resolvePeriod reads preset, start and end from the query string.
func (h *Handler) resolvePeriod(r *http.Request) (ledger.Resolution, error) {
	q := r.URL.Query()

	name := q.Get("preset")
	if name == "" {
		name = string(ledger.PresetThisMonth)
	}
	preset, err := ledger.ParsePreset(name)
	if err != nil {
		return ledger.Resolution{}, err
	}

	var custom ledger.Period
	if preset == ledger.PresetCustom {
		for _, p := range []struct {
			key string
			dst *ledger.Date
		}{{"start", &custom.Start}, {"end", &custom.End}} {
			raw := q.Get(p.key)
			if raw == "" {
				continue
			}
			d, err := ledger.ParseDate(raw)
			if err != nil {
				return ledger.Resolution{}, fmt.Errorf("%w: %s: %v", ledger.ErrInvalidPeriod, p.key, err)
			}
			*p.dst = d
		}
	}
	return ledger.ResolvePreset(preset, h.today(), custom)
}

func monthParam(w http.ResponseWriter, r *http.Request) (ledger.YearMonth, bool) {
	ym, err := ledger.ParseYearMonth(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month (want YYYY-MM)", err)
		return ledger.YearMonth{}, false
	}
	return ym, true
}

func intParam(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}

// decodeJSON decodes the body into dst. On failure it writes a 400 and
// returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeDownload(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
