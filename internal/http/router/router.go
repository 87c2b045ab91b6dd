package router

import (
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sandeepkv93/account-security-service/internal/health"
	"github.com/sandeepkv93/account-security-service/internal/http/handler"
	"github.com/sandeepkv93/account-security-service/internal/http/middleware"
	"github.com/sandeepkv93/account-security-service/internal/http/response"
	"github.com/sandeepkv93/account-security-service/internal/ratelimit"
	"github.com/sandeepkv93/account-security-service/internal/security"
	"github.com/sandeepkv93/account-security-service/internal/service"
)

type Dependencies struct {
	AuthHandler       *handler.AuthHandler
	UserHandler       *handler.UserHandler
	Sessions          service.SessionResolver
	Cookies           security.CookieOptions
	TrustedProxies    []netip.Prefix
	Limiter           ratelimit.Limiter
	RateLimitFailOpen bool
	CORSOrigins       []string
	Readiness         *health.ProbeRunner
	EnableOTelHTTP    bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.TrustedRealIP(dep.TrustedProxies))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(1 << 20))

	limiter := dep.Limiter
	if limiter == nil {
		limiter = ratelimit.NewLocalFixedWindowLimiter()
	}
	mode := middleware.FailClosed
	if dep.RateLimitFailOpen {
		mode = middleware.FailOpen
	}
	byIP := func(op ratelimit.Operation) func(http.Handler) http.Handler {
		return middleware.NewRateLimiter(limiter, op, mode).Middleware()
	}
	byUser := func(op ratelimit.Operation) func(http.Handler) http.Handler {
		return middleware.NewRateLimiter(limiter, op, mode).WithKeyFunc(middleware.SessionOrIPKey).Middleware()
	}
	sessionAuth := middleware.SessionAuth(dep.Sessions, dep.Cookies)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, response.CodeDependencyUnready, "dependencies are not ready", map[string]any{"checks": results})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(byIP(ratelimit.OpRegister)).Post("/register", dep.AuthHandler.Register)
			r.With(byIP(ratelimit.OpLogin)).Post("/login", dep.AuthHandler.Login)
			r.With(byIP(ratelimit.OpLogin)).Post("/login/2fa", dep.AuthHandler.LoginTwoFactor)
			r.With(byIP(ratelimit.OpPasswordResetRequest)).Post("/password/forgot", dep.AuthHandler.PasswordForgot)
			r.With(byIP(ratelimit.OpPasswordResetSubmit)).Post("/password/reset", dep.AuthHandler.PasswordReset)
			r.With(byIP(ratelimit.OpEmailVerifyResend)).Post("/email/verify/request", dep.AuthHandler.VerifyRequest)
			r.With(byIP(ratelimit.OpEmailVerifySubmit)).Post("/email/verify/confirm", dep.AuthHandler.VerifyConfirm)
			r.With(sessionAuth, middleware.CSRFMiddleware).Post("/logout", dep.AuthHandler.Logout)
		})

		r.Route("/me", func(r chi.Router) {
			r.Use(sessionAuth)
			r.Get("/sessions", dep.UserHandler.Sessions)
			r.Get("/2fa", dep.UserHandler.TwoFactorStatus)
			r.Group(func(r chi.Router) {
				r.Use(middleware.CSRFMiddleware)
				r.With(byUser(ratelimit.OpEmailVerifyResend)).Post("/email/verify/request", dep.UserHandler.RequestVerification)
				r.With(byUser(ratelimit.OpEmailVerifyResend)).Post("/email/change", dep.UserHandler.ChangeEmail)
				r.Delete("/sessions/{session_id}", dep.UserHandler.RevokeSession)
				r.Post("/sessions/revoke-others", dep.UserHandler.RevokeOtherSessions)
				r.Group(func(r chi.Router) {
					r.Use(byUser(ratelimit.OpAccountSecurityMutate))
					r.Post("/2fa/enroll", dep.UserHandler.TwoFactorEnroll)
					r.Post("/2fa/confirm", dep.UserHandler.TwoFactorConfirm)
					r.Post("/2fa/disable", dep.UserHandler.TwoFactorDisable)
					r.Post("/2fa/backup-codes", dep.UserHandler.RegenerateBackupCodes)
				})
			})
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
