package web

import (
	"log/slog"
	"net/http"

	"github.com/alysalud/visitas/internal/logging"
	mw "github.com/alysalud/visitas/internal/web/middleware"
)

// tenantID returns the tenant resolved by the Tenant middleware, or 0.
func tenantID(r *http.Request) int64 {
	id, _ := mw.TenantID(r.Context())
	return id
}

// requestLogger returns the request logger tagged with the client IP. The
// tenant is already on the context once Tenant has run.
func requestLogger(r *http.Request) *slog.Logger {
	return logging.WithFields(r.Context(), "ip", mw.ClientIP(r))
}
