package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/sandeepkv93/account-security-service/internal/http/response"
	"github.com/sandeepkv93/account-security-service/internal/service"
)

// writeServiceError maps service failures onto the response envelope. Token
// and credential failures each collapse into one code; anything unknown is
// logged and answered with a bare 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var limited *service.RateLimitError
	switch {
	case errors.As(err, &limited):
		w.Header().Set("Retry-After", strconv.Itoa(limited.RetryAfterSeconds()))
		response.Error(w, r, http.StatusTooManyRequests, response.CodeRateLimited, "too many requests",
			map[string]any{"retry_after_seconds": limited.RetryAfterSeconds()})
	case service.IsTokenError(err):
		response.Error(w, r, http.StatusBadRequest, response.CodeInvalidToken, "token is invalid or expired", nil)
	case errors.Is(err, service.ErrEmailNotVerified):
		response.Error(w, r, http.StatusForbidden, response.CodeEmailNotVerified, "email address is not verified", nil)
	case errors.Is(err, service.ErrOAuthOnlyAccount):
		response.Error(w, r, http.StatusForbidden, response.CodeOAuthOnlyAccount, "account signs in with an external provider", nil)
	case errors.Is(err, service.ErrAuthRejected), errors.Is(err, service.ErrPasswordConfirmation):
		response.Error(w, r, http.StatusUnauthorized, response.CodeInvalidCredentials, "invalid credentials", nil)
	case errors.Is(err, service.ErrTwoFactorInvalid):
		response.Error(w, r, http.StatusBadRequest, response.CodeInvalidTwoFactorCode, "verification code is invalid", nil)
	case errors.Is(err, service.ErrTwoFactorAlreadyEnabled),
		errors.Is(err, service.ErrTwoFactorNotEnabled),
		errors.Is(err, service.ErrTwoFactorNotPending):
		response.Error(w, r, http.StatusConflict, response.CodeTwoFactorState, err.Error(), nil)
	case errors.Is(err, service.ErrSessionIsCurrent):
		response.Error(w, r, http.StatusBadRequest, response.CodeSessionIsCurrent, "use logout to end the current session", nil)
	case errors.Is(err, service.ErrSessionNotFound):
		response.Error(w, r, http.StatusNotFound, response.CodeNotFound, "session not found", nil)
	case errors.Is(err, service.ErrUserNotFound):
		response.Error(w, r, http.StatusNotFound, response.CodeUserNotFound, "user not found", nil)
	case errors.Is(err, service.ErrAlreadyVerified):
		response.Error(w, r, http.StatusConflict, response.CodeAlreadyVerified, "email address is already verified", nil)
	case errors.Is(err, service.ErrEmailTaken):
		response.Error(w, r, http.StatusConflict, response.CodeEmailTaken, "email address is already in use", nil)
	case errors.Is(err, service.ErrInvalidEmail):
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "invalid email address", nil)
	case errors.Is(err, service.ErrWeakPassword):
		response.Error(w, r, http.StatusBadRequest, response.CodeWeakPassword, err.Error(), nil)
	default:
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "internal server error", nil)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "invalid JSON body", nil)
		return false
	}
	return true
}

func requireFields(w http.ResponseWriter, r *http.Request, fields map[string]string) bool {
	var missing []string
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return true
	}
	slices.Sort(missing)
	response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "missing required fields", map[string]any{"fields": missing})
	return false
}
