// Package middleware provides HTTP middleware for the visits API.
package middleware

import (
	"net/http"
	"time"

	"github.com/alysalud/visitas/internal/logging"
)

// Logger logs one line per request through the request-scoped logger, so
// entries carry chi's request id.
//
// Fields: method, path, status, bytes, duration_ms, ip and, once the Tenant
// middleware has run, tenant.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		// Tenant runs inside route groups and stores its id on a derived
		// request; the holder lets it report back.
		holder := &tenantHolder{}
		next.ServeHTTP(rec, r.WithContext(withTenantHolder(r.Context(), holder)))

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"bytes", rec.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", ClientIP(r),
		}
		if holder.id > 0 {
			attrs = append(attrs, "tenant", holder.id)
		}

		logger := logging.FromContext(r.Context())
		if rec.status >= http.StatusInternalServerError {
			logger.Error("request", attrs...)
			return
		}
		logger.Info("request", attrs...)
	})
}

// statusRecorder captures the status code and body size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (w *statusRecorder) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.status = status
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
