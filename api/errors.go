package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/warp/point-ledger/ledger"
)

// statusFor maps ledger errors to HTTP status codes.
//
//	400 validation, schema, unknown employee, bad period
//	401 missing, expired or insufficient capability
//	404 unknown record
//	409 duplicate key, roster conflict
//	413 upload over the body limit
//	423 locked month
//	500 everything else
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ledger.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ledger.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrLockedPeriod):
		return http.StatusLocked
	case errors.Is(err, ledger.ErrDuplicate), errors.Is(err, ledger.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrValidation),
		errors.Is(err, ledger.ErrSchema),
		errors.Is(err, ledger.ErrUnknownEmployee),
		errors.Is(err, ledger.ErrInvalidPeriod):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeLedgerError writes err with the status statusFor picks and the
// structured fields of the ledger error, if any.
func (h *Handler) writeLedgerError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: message, Details: err.Error()}

	var (
		locked     *ledger.LockedPeriodError
		validation *ledger.ValidationError
		schema     *ledger.SchemaError
		conflict   *ledger.ConflictError
		unknown    *ledger.UnknownEmployeeError
	)
	switch {
	case errors.As(err, &locked):
		resp.Month = locked.Month.String()
	case errors.As(err, &validation):
		resp.Field = validation.Field
		resp.Row = validation.Row
	case errors.As(err, &schema):
		resp.Missing = schema.Missing
	case errors.As(err, &conflict):
		resp.Field = conflict.Field
	case errors.As(err, &unknown):
		resp.Field = "employee_id"
	}

	if status == http.StatusInternalServerError {
		h.logger(r).Error(message, zap.Error(err))
	}
	writeJSON(w, status, resp)
}
