package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/warp/point-ledger/ledger"
)

// =============================================================================
// REQUEST LOGGING
// =============================================================================

// requestLogger logs one line per request with zap.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			}
			if status >= http.StatusInternalServerError {
				logger.Warn("request", fields...)
				return
			}
			logger.Info("request", fields...)
		})
	}
}

// logger returns the handler logger tagged with the request ID.
func (h *Handler) logger(r *http.Request) *zap.Logger {
	return h.Logger.With(zap.String("request_id", middleware.GetReqID(r.Context())))
}

// =============================================================================
// CAPABILITIES
// =============================================================================

type capabilityKey struct{}

// withCapability resolves the bearer token, if any, into a capability on
// the request context. A request without a token gets the anonymous
// capability; a bad token is rejected outright.
func (h *Handler) withCapability(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capability := h.Auth.Anonymous()

		if header := r.Header.Get("Authorization"); header != "" {
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				writeError(w, http.StatusUnauthorized, "Authorization must be a Bearer token", nil)
				return
			}
			parsed, err := h.Auth.Parse(strings.TrimSpace(token))
			if err != nil {
				h.writeLedgerError(w, r, "Invalid token", err)
				return
			}
			capability = parsed
		}

		ctx := context.WithValue(r.Context(), capabilityKey{}, capability)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// require rejects requests whose capability does not grant role.
func (h *Handler) require(role ledger.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := capabilityFrom(r.Context()).Authorize(role, h.now()); err != nil {
				h.writeLedgerError(w, r, "Not authorized", err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func capabilityFrom(ctx context.Context) ledger.Capability {
	c, _ := ctx.Value(capabilityKey{}).(ledger.Capability)
	return c
}
