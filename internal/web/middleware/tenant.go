package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/alysalud/visitas/internal/logging"
)

type tenantKey struct{}

type tenantHolderKey struct{}

// tenantHolder lets Logger see a tenant id set further down the chain.
type tenantHolder struct {
	id int64
}

func withTenantHolder(ctx context.Context, h *tenantHolder) context.Context {
	return context.WithValue(ctx, tenantHolderKey{}, h)
}

// WithTenantID returns a copy of ctx carrying the tenant id.
func WithTenantID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, tenantKey{}, id)
}

// TenantID returns the tenant id stored by Tenant.
func TenantID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(tenantKey{}).(int64)
	return id, ok
}

// Tenant returns middleware that reads a positive integer tenant id from
// header and stores it on the request context. Requests without one are
// rejected before reaching the handler.
func Tenant(header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(header))
			if raw == "" {
				slog.Warn("tenant: missing header",
					"header", header,
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				rejectTenant(w, http.StatusUnauthorized, "Falta el identificador de la cuenta", "TENANT_MISSING")
				return
			}

			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				slog.Warn("tenant: invalid header",
					"header", header,
					"value", raw,
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
				)
				rejectTenant(w, http.StatusBadRequest, "El identificador de la cuenta no es válido", "TENANT_INVALID")
				return
			}

			if h, ok := r.Context().Value(tenantHolderKey{}).(*tenantHolder); ok {
				h.id = id
			}
			ctx := logging.With(WithTenantID(r.Context(), id), "tenant", id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func rejectTenant(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
		"code":  code,
	})
}
