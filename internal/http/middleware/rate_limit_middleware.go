package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sandeepkv93/account-security-service/internal/http/response"
	"github.com/sandeepkv93/account-security-service/internal/observability"
	"github.com/sandeepkv93/account-security-service/internal/ratelimit"
)

type FailureMode string

const (
	FailOpen   FailureMode = "fail_open"
	FailClosed FailureMode = "fail_closed"
)

// RateLimiter guards one route group with a fixed-window policy. Counters
// live in the injected ratelimit.Limiter, keyed by operation and identity.
type RateLimiter struct {
	limiter ratelimit.Limiter
	op      ratelimit.Operation
	policy  ratelimit.Policy
	mode    FailureMode
	keyFunc func(r *http.Request) string
}

func NewRateLimiter(limiter ratelimit.Limiter, op ratelimit.Operation, mode FailureMode) *RateLimiter {
	return NewRateLimiterWithPolicy(limiter, op, ratelimit.PolicyFor(op), mode)
}

func NewRateLimiterWithPolicy(limiter ratelimit.Limiter, op ratelimit.Operation, policy ratelimit.Policy, mode FailureMode) *RateLimiter {
	if mode == "" {
		mode = FailClosed
	}
	return &RateLimiter{
		limiter: limiter,
		op:      op,
		policy:  policy,
		mode:    mode,
		keyFunc: clientIPKey,
	}
}

// WithKeyFunc replaces the default client IP identity.
func (rl *RateLimiter) WithKeyFunc(keyFunc func(r *http.Request) string) *RateLimiter {
	if keyFunc != nil {
		rl.keyFunc = keyFunc
	}
	return rl
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	scope := string(rl.op)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := rl.keyFunc(r)
			if identity == "" {
				identity = clientIPKey(r)
			}
			decision, err := rl.limiter.Allow(r.Context(), ratelimit.Key(rl.op, identity), rl.policy)
			if err != nil {
				observability.RecordRateLimitDecision(r.Context(), scope, "backend_error")
				if rl.mode == FailOpen {
					slog.WarnContext(r.Context(), "rate limiter backend unavailable, allowing request",
						"scope", scope,
						"error", err.Error(),
					)
					next.ServeHTTP(w, r)
					return
				}
				slog.ErrorContext(r.Context(), "rate limiter backend unavailable", "scope", scope, "error", err.Error())
				writeRateLimitHeaders(w.Header(), rl.policy.Limit, 0, time.Now().Add(rl.policy.Window))
				w.Header().Set("Retry-After", retryAfterHeader(rl.policy.Window))
				response.Error(w, r, http.StatusTooManyRequests, response.CodeRateLimited, "too many requests", nil)
				return
			}
			writeRateLimitHeaders(w.Header(), rl.policy.Limit, decision.Remaining, decision.ResetAt)
			if !decision.Allowed {
				observability.RecordRateLimitDecision(r.Context(), scope, "deny")
				observability.RecordRateLimitRetryAfter(r.Context(), scope, decision.RetryAfter)
				observability.Audit(r, "rate_limit.denied", "scope", scope, "client_ip", ClientIP(r))
				w.Header().Set("Retry-After", retryAfterHeader(decision.RetryAfter))
				response.Error(w, r, http.StatusTooManyRequests, response.CodeRateLimited, "too many requests",
					map[string]any{"retry_after_seconds": retryAfterSeconds(decision.RetryAfter)})
				return
			}
			observability.RecordRateLimitDecision(r.Context(), scope, "allow")
			next.ServeHTTP(w, r)
		})
	}
}

// SessionOrIPKey keys authenticated routes by user so that one account
// cannot spread attempts across addresses.
func SessionOrIPKey(r *http.Request) string {
	if s, ok := SessionFromContext(r.Context()); ok {
		return "user:" + strconv.FormatUint(uint64(s.UserID), 10)
	}
	return clientIPKey(r)
}

func clientIPKey(r *http.Request) string {
	return "ip:" + ClientIP(r)
}

func retryAfterSeconds(d time.Duration) int {
	seconds := int((d + time.Second - 1) / time.Second)
	if seconds <= 0 {
		seconds = 1
	}
	return seconds
}

func retryAfterHeader(d time.Duration) string {
	return strconv.Itoa(retryAfterSeconds(d))
}

func writeRateLimitHeaders(h http.Header, limit int, remaining int, resetAt time.Time) {
	h.Set("X-RateLimit-Limit", fmt.Sprintf("%d", max(limit, 0)))
	h.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", max(remaining, 0)))
	if resetAt.IsZero() {
		resetAt = time.Now().Add(time.Second)
	}
	h.Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetAt.Unix()))
}
