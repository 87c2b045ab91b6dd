package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/sandeepkv93/account-security-service/internal/domain"
	"github.com/sandeepkv93/account-security-service/internal/ratelimit"
)

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, ratelimit.Policy) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("redis unavailable")
}

type keyRecorder struct {
	keys []string
}

func (k *keyRecorder) Allow(_ context.Context, key string, policy ratelimit.Policy) (ratelimit.Decision, error) {
	k.keys = append(k.keys, key)
	return ratelimit.Decision{Allowed: true, Remaining: policy.Limit - 1}, nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRateLimiterDeniesAfterLimitWithRetryAfter(t *testing.T) {
	rl := NewRateLimiterWithPolicy(ratelimit.NewLocalFixedWindowLimiter(), ratelimit.OpPasswordResetRequest,
		ratelimit.Policy{Window: 15 * time.Minute, Limit: 3}, FailClosed)
	h := rl.Middleware()(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/password/forgot", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusNoContent {
			t.Fatalf("request %d expected 204, got %d", i+1, rr.Code)
		}
		if got := rr.Header().Get("X-RateLimit-Remaining"); got != strconv.Itoa(2-i) {
			t.Fatalf("request %d expected remaining %d, got %q", i+1, 2-i, got)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/password/forgot", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on fourth request, got %d", rr.Code)
	}
	retry, err := strconv.Atoi(rr.Header().Get("Retry-After"))
	if err != nil || retry <= 0 || retry > int((15*time.Minute).Seconds()) {
		t.Fatalf("expected Retry-After within the window, got %q", rr.Header().Get("Retry-After"))
	}

	other := httptest.NewRequest(http.MethodPost, "/api/v1/auth/password/forgot", nil)
	other.RemoteAddr = "10.0.0.2:5555"
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, other)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected other client to be unaffected, got %d", rr.Code)
	}
}

func TestRateLimiterBackendFailureModes(t *testing.T) {
	closed := NewRateLimiter(failingLimiter{}, ratelimit.OpLogin, FailClosed).Middleware()(okHandler())
	rr := httptest.NewRecorder()
	closed.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil))
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") == "" {
		t.Fatalf("fail-closed expected 429 with Retry-After, got %d", rr.Code)
	}

	open := NewRateLimiter(failingLimiter{}, ratelimit.OpLogin, FailOpen).Middleware()(okHandler())
	rr = httptest.NewRecorder()
	open.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("fail-open expected request to pass, got %d", rr.Code)
	}
}

func TestRateLimiterKeys(t *testing.T) {
	rec := &keyRecorder{}
	h := NewRateLimiter(rec, ratelimit.OpEmailVerifyResend, FailClosed).WithKeyFunc(SessionOrIPKey).Middleware()(okHandler())

	anon := httptest.NewRequest(http.MethodPost, "/x", nil)
	anon.RemoteAddr = "192.0.2.9:1000"
	h.ServeHTTP(httptest.NewRecorder(), anon)

	authed := httptest.NewRequest(http.MethodPost, "/x", nil)
	authed = authed.WithContext(context.WithValue(authed.Context(), sessionContextKey, &domain.Session{ID: 1, UserID: 9}))
	h.ServeHTTP(httptest.NewRecorder(), authed)

	want := []string{"email_verification_resend:ip:192.0.2.9", "email_verification_resend:user:9"}
	if len(rec.keys) != len(want) || rec.keys[0] != want[0] || rec.keys[1] != want[1] {
		t.Fatalf("unexpected limiter keys %v, want %v", rec.keys, want)
	}
}
