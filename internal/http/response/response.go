// Package response writes the JSON bodies every endpoint answers with.
package response

import (
	"encoding/json"
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Code names a failure class. Clients branch on it, never on Message.
type Code string

const (
	CodeBadRequest           Code = "BAD_REQUEST"
	CodeUnauthorized         Code = "UNAUTHORIZED"
	CodeForbidden            Code = "FORBIDDEN"
	CodeNotFound             Code = "NOT_FOUND"
	CodeUserNotFound         Code = "USER_NOT_FOUND"
	CodeInternal             Code = "INTERNAL"
	CodeRateLimited          Code = "RATE_LIMITED"
	CodeDependencyUnready    Code = "DEPENDENCY_UNREADY"
	CodeInvalidCredentials   Code = "INVALID_CREDENTIALS"
	CodeInvalidToken         Code = "INVALID_TOKEN"
	CodeInvalidTwoFactorCode Code = "INVALID_TWO_FACTOR_CODE"
	CodeTwoFactorState       Code = "TWO_FACTOR_STATE"
	CodeEmailNotVerified     Code = "EMAIL_NOT_VERIFIED"
	CodeEmailTaken           Code = "EMAIL_TAKEN"
	CodeAlreadyVerified      Code = "ALREADY_VERIFIED"
	CodeOAuthOnlyAccount     Code = "OAUTH_ONLY_ACCOUNT"
	CodeSessionIsCurrent     Code = "SESSION_IS_CURRENT"
	CodeWeakPassword         Code = "WEAK_PASSWORD"
)

// Body carries either Data or Error, plus the request id either way.
type Body struct {
	Data      any      `json:"data,omitempty"`
	Error     *Problem `json:"error,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

type Problem struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	write(w, r, status, Body{Data: data, RequestID: requestID(r)})
}

func Error(w http.ResponseWriter, r *http.Request, status int, code Code, message string, details any) {
	write(w, r, status, Body{
		Error:     &Problem{Code: code, Message: message, Details: details},
		RequestID: requestID(r),
	})
}

func write(w http.ResponseWriter, r *http.Request, status int, body Body) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(body); err != nil {
		slog.DebugContext(r.Context(), "write response body", "error", err, "status", status)
	}
}

func requestID(r *http.Request) string {
	if id := chimiddleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return r.Header.Get("X-Request-Id")
}
