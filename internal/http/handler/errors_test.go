package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sandeepkv93/account-security-service/internal/service"
)

func TestWriteServiceErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"token not found", service.ErrTokenNotFound, http.StatusBadRequest, "INVALID_TOKEN"},
		{"token used", fmt.Errorf("consume: %w", service.ErrTokenAlreadyUsed), http.StatusBadRequest, "INVALID_TOKEN"},
		{"token expired", service.ErrTokenExpired, http.StatusBadRequest, "INVALID_TOKEN"},
		{"bad password", &service.AuthRejection{Reason: service.RejectBadPassword}, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"unknown account", &service.AuthRejection{Reason: service.RejectUnknownAccount}, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"bad second factor", &service.AuthRejection{Reason: service.RejectTwoFactorInvalid}, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"unverified", &service.AuthRejection{Reason: service.RejectEmailNotVerified, Err: service.ErrEmailNotVerified}, http.StatusForbidden, "EMAIL_NOT_VERIFIED"},
		{"oauth only", &service.AuthRejection{Reason: service.RejectOAuthOnly, Err: service.ErrOAuthOnlyAccount}, http.StatusForbidden, "OAUTH_ONLY_ACCOUNT"},
		{"current session", service.ErrSessionIsCurrent, http.StatusBadRequest, "SESSION_IS_CURRENT"},
		{"missing session", service.ErrSessionNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"already verified", service.ErrAlreadyVerified, http.StatusConflict, "ALREADY_VERIFIED"},
		{"user not found", service.ErrUserNotFound, http.StatusNotFound, "USER_NOT_FOUND"},
		{"storage", errors.New("connection reset"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeServiceError(rr, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil), tc.err)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			var env struct {
				Error struct {
					Code    string `json:"code"`
					Message string `json:"message"`
				} `json:"error"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if env.Error.Code != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, env.Error.Code)
			}
			if tc.code == "INTERNAL" && env.Error.Message != "internal server error" {
				t.Fatalf("internal errors must not leak detail, got %q", env.Error.Message)
			}
		})
	}
}

func TestWriteServiceErrorRateLimitSetsRetryAfter(t *testing.T) {
	rr := httptest.NewRecorder()
	writeServiceError(rr, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login/2fa", nil),
		&service.RateLimitError{RetryAfter: 90*time.Second + 200*time.Millisecond})
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "91" {
		t.Fatalf("expected Retry-After 91, got %q", got)
	}
}
