package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sandeepkv93/account-security-service/internal/domain"
	"github.com/sandeepkv93/account-security-service/internal/http/response"
	"github.com/sandeepkv93/account-security-service/internal/observability"
	"github.com/sandeepkv93/account-security-service/internal/security"
	"github.com/sandeepkv93/account-security-service/internal/service"
)

type contextKey string

const (
	sessionContextKey      contextKey = "session"
	sessionTokenContextKey contextKey = "session_token"
	authSourceContextKey   contextKey = "auth_source"
)

const (
	AuthSourceCookie = "cookie"
	AuthSourceBearer = "bearer"
)

// SessionToken extracts the raw session token and where it came from. The
// cookie wins when both are present.
func SessionToken(r *http.Request) (string, string) {
	if raw := security.GetCookie(r, security.SessionCookieName); raw != "" {
		return raw, AuthSourceCookie
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		if raw := strings.TrimSpace(auth[7:]); raw != "" {
			return raw, AuthSourceBearer
		}
	}
	return "", ""
}

// SessionAuth resolves the session token, records activity on it and stores
// the session for handlers. Unknown, expired and revoked tokens are all 401.
// When the expiry slides for a cookie session the cookies are reissued with
// the new lifetime.
func SessionAuth(sessions service.SessionResolver, cookies security.CookieOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, source := SessionToken(r)
			if raw == "" {
				response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthorized, "authentication required", nil)
				return
			}
			s, err := sessions.Resolve(r.Context(), raw)
			if err != nil {
				if !errors.Is(err, service.ErrSessionNotFound) {
					slog.ErrorContext(r.Context(), "resolve session failed", "error", err)
					response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "internal server error", nil)
					return
				}
				observability.Audit(r, "session.rejected", "source", source, "client_ip", ClientIP(r))
				response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthorized, "authentication required", nil)
				return
			}
			extended, err := sessions.Touch(r.Context(), s)
			if err != nil {
				slog.WarnContext(r.Context(), "touch session failed", "session_id", s.ID, "error", err)
			}
			if extended && source == AuthSourceCookie {
				refreshSessionCookies(w, r, cookies, raw, s)
			}
			ctx := context.WithValue(r.Context(), sessionContextKey, s)
			ctx = context.WithValue(ctx, sessionTokenContextKey, raw)
			ctx = context.WithValue(ctx, authSourceContextKey, source)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func refreshSessionCookies(w http.ResponseWriter, r *http.Request, cookies security.CookieOptions, raw string, s *domain.Session) {
	csrf := security.GetCookie(r, security.CSRFCookieName)
	if csrf == "" {
		var err error
		if csrf, err = security.NewCSRFToken(); err != nil {
			slog.WarnContext(r.Context(), "mint csrf token failed", "session_id", s.ID, "error", err)
			return
		}
	}
	security.SetSessionCookies(w, cookies, raw, csrf, s.ExpiresAt)
}

func SessionFromContext(ctx context.Context) (*domain.Session, bool) {
	s, ok := ctx.Value(sessionContextKey).(*domain.Session)
	return s, ok && s != nil
}

func SessionTokenFromContext(ctx context.Context) string {
	raw, _ := ctx.Value(sessionTokenContextKey).(string)
	return raw
}

func AuthSourceFromContext(ctx context.Context) string {
	src, _ := ctx.Value(authSourceContextKey).(string)
	return src
}
