package observability

import (
	"context"
	"log/slog"
	"net/http"
)

// Audit logs a security decision made while serving r. Callers pass ids,
// reason codes and client metadata only; never secrets or raw tokens.
func Audit(r *http.Request, event string, attrs ...any) {
	base := []any{
		"event", event,
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", r.Header.Get("X-Request-Id"),
	}
	base = append(base, attrs...)
	slog.InfoContext(r.Context(), "audit", base...)
}

// AuditContext is Audit for code paths that have no request at hand.
func AuditContext(ctx context.Context, event string, attrs ...any) {
	slog.InfoContext(ctx, "audit", append([]any{"event", event}, attrs...)...)
}
