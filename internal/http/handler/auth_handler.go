package handler

import (
	"net/http"
	"time"

	"github.com/sandeepkv93/account-security-service/internal/domain"
	"github.com/sandeepkv93/account-security-service/internal/http/middleware"
	"github.com/sandeepkv93/account-security-service/internal/http/response"
	"github.com/sandeepkv93/account-security-service/internal/observability"
	"github.com/sandeepkv93/account-security-service/internal/security"
	"github.com/sandeepkv93/account-security-service/internal/service"
)

// AuthHandler serves the unauthenticated entry points: registration, login,
// password reset and email verification.
type AuthHandler struct {
	auth     service.AuthServiceInterface
	accounts service.AccountServiceInterface
	cookies  security.CookieOptions
}

func NewAuthHandler(auth service.AuthServiceInterface, accounts service.AccountServiceInterface, cookies security.CookieOptions) *AuthHandler {
	return &AuthHandler{auth: auth, accounts: accounts, cookies: cookies}
}

type userSummary struct {
	ID            uint       `json:"id"`
	Email         string     `json:"email"`
	Name          string     `json:"name,omitempty"`
	EmailVerified bool       `json:"email_verified"`
	VerifiedAt    *time.Time `json:"email_verified_at,omitempty"`
}

func summarize(u *domain.User) *userSummary {
	if u == nil {
		return nil
	}
	return &userSummary{ID: u.ID, Email: u.Email, Name: u.Name, EmailVerified: u.EmailVerified(), VerifiedAt: u.EmailVerifiedAt}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) || !requireFields(w, r, map[string]string{"email": req.Email, "password": req.Password}) {
		return
	}
	err := h.accounts.Register(r.Context(), service.RegisterInput{Email: req.Email, Name: req.Name, Password: req.Password})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, map[string]string{
		"message": "if the address can be registered, a verification email is on its way",
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email         string `json:"email"`
		Password      string `json:"password"`
		TwoFactorCode string `json:"two_factor_code"`
		UseBackupCode bool   `json:"use_backup_code"`
	}
	if !decodeJSON(w, r, &req) || !requireFields(w, r, map[string]string{"email": req.Email, "password": req.Password}) {
		return
	}
	res, err := h.auth.Login(r.Context(), service.LoginRequest{
		Email:         req.Email,
		Password:      req.Password,
		TwoFactorCode: req.TwoFactorCode,
		UseBackupCode: req.UseBackupCode,
		Client:        clientInfo(r),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.writeLoginResult(w, r, res)
}

// LoginTwoFactor completes a login that stopped at two_factor_required
// using the challenge ticket from the first response.
func (h *AuthHandler) LoginTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Challenge     string `json:"challenge"`
		Code          string `json:"code"`
		UseBackupCode bool   `json:"use_backup_code"`
	}
	if !decodeJSON(w, r, &req) || !requireFields(w, r, map[string]string{"challenge": req.Challenge, "code": req.Code}) {
		return
	}
	res, err := h.auth.CompleteTwoFactor(r.Context(), service.TwoFactorRequest{
		Ticket:        req.Challenge,
		Code:          req.Code,
		UseBackupCode: req.UseBackupCode,
		Client:        clientInfo(r),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.writeLoginResult(w, r, res)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), middleware.SessionTokenFromContext(r.Context())); err != nil {
		writeServiceError(w, r, err)
		return
	}
	security.ClearSessionCookies(w, h.cookies)
	if s, ok := middleware.SessionFromContext(r.Context()); ok {
		observability.Audit(r, "auth.logout", "user_id", s.UserID, "session_id", s.ID)
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *AuthHandler) PasswordForgot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &req) || !requireFields(w, r, map[string]string{"email": req.Email}) {
		return
	}
	if err := h.accounts.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{
		"message": "if an account exists for that address, a reset link has been sent",
	})
}

func (h *AuthHandler) PasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if !decodeJSON(w, r, &req) || !requireFields(w, r, map[string]string{"token": req.Token, "new_password": req.NewPassword}) {
		return
	}
	if err := h.accounts.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.password_reset.completed", "client_ip", middleware.ClientIP(r))
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "password updated; sign in again"})
}

func (h *AuthHandler) VerifyRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &req) || !requireFields(w, r, map[string]string{"email": req.Email}) {
		return
	}
	if err := h.accounts.RequestEmailVerification(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{
		"message": "if the address needs verification, an email has been sent",
	})
}

func (h *AuthHandler) VerifyConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !decodeJSON(w, r, &req) || !requireFields(w, r, map[string]string{"token": req.Token}) {
		return
	}
	user, err := h.accounts.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"user": summarize(user)})
}

func (h *AuthHandler) writeLoginResult(w http.ResponseWriter, r *http.Request, res *service.LoginResult) {
	if res.Stage == service.StageTwoFactorRequired {
		response.JSON(w, r, http.StatusOK, map[string]any{
			"stage":                res.Stage,
			"challenge":            res.Challenge,
			"challenge_expires_at": res.ChallengeExpiresAt,
		})
		return
	}
	csrf, err := security.NewCSRFToken()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	s := res.Session.Session
	security.SetSessionCookies(w, h.cookies, res.Session.Token, csrf, s.ExpiresAt)
	response.JSON(w, r, http.StatusOK, map[string]any{
		"stage":         res.Stage,
		"user":          summarize(res.User),
		"session_token": res.Session.Token,
		"csrf_token":    csrf,
		"session": map[string]any{
			"id":         s.ID,
			"expires_at": s.ExpiresAt,
		},
	})
}

func clientInfo(r *http.Request) service.ClientInfo {
	return service.ClientInfo{UserAgent: r.UserAgent(), IP: middleware.ClientIP(r)}
}
