package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sandeepkv93/account-security-service/internal/http/middleware"
	"github.com/sandeepkv93/account-security-service/internal/http/response"
	"github.com/sandeepkv93/account-security-service/internal/service"
)

// UserHandler serves /me routes. SessionAuth must run first.
type UserHandler struct {
	accounts service.AccountServiceInterface
}

func NewUserHandler(accounts service.AccountServiceInterface) *UserHandler {
	return &UserHandler{accounts: accounts}
}

func (h *UserHandler) RequestVerification(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	if err := h.accounts.ResendOwnEmailVerification(r.Context(), userID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "verification email sent"})
}

func (h *UserHandler) ChangeEmail(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	var req struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &req) || !requireFields(w, r, map[string]string{"email": req.Email}) {
		return
	}
	if err := h.accounts.RequestEmailChange(r.Context(), userID, req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "confirm the new address from the link we sent"})
}

func (h *UserHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	views, err := h.accounts.ListSessions(r.Context(), userID, middleware.SessionTokenFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if views == nil {
		views = []service.SessionView{}
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"sessions": views})
}

func (h *UserHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	sessionID, err := strconv.ParseUint(chi.URLParam(r, "session_id"), 10, 64)
	if err != nil || sessionID == 0 {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "invalid session id", nil)
		return
	}
	err = h.accounts.RevokeSession(r.Context(), userID, uint(sessionID), middleware.SessionTokenFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"revoked": sessionID})
}

func (h *UserHandler) RevokeOtherSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	n, err := h.accounts.RevokeOtherSessions(r.Context(), userID, middleware.SessionTokenFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"revoked": n})
}

func (h *UserHandler) TwoFactorStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	state, remaining, err := h.accounts.TwoFactorStatus(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"state": state, "backup_codes_remaining": remaining})
}

func (h *UserHandler) TwoFactorEnroll(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	enrollment, err := h.accounts.BeginTwoFactor(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, enrollment)
}

func (h *UserHandler) TwoFactorConfirm(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if !decodeJSON(w, r, &req) || !requireFields(w, r, map[string]string{"code": req.Code}) {
		return
	}
	codes, err := h.accounts.ConfirmTwoFactor(r.Context(), userID, req.Code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"backup_codes": codes})
}

func (h *UserHandler) TwoFactorDisable(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	var req struct {
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) || !requireFields(w, r, map[string]string{"password": req.Password}) {
		return
	}
	if err := h.accounts.DisableTwoFactor(r.Context(), userID, req.Password); err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "two-factor authentication disabled"})
}

func (h *UserHandler) RegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	var req struct {
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) || !requireFields(w, r, map[string]string{"password": req.Password}) {
		return
	}
	codes, err := h.accounts.RegenerateBackupCodes(r.Context(), userID, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"backup_codes": codes})
}

func currentUserID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	s, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthorized, "authentication required", nil)
		return 0, false
	}
	return s.UserID, true
}
