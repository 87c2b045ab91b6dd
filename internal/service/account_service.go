package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/sandeepkv93/account-security-service/internal/domain"
	"github.com/sandeepkv93/account-security-service/internal/observability"
	"github.com/sandeepkv93/account-security-service/internal/repository"
	"github.com/sandeepkv93/account-security-service/internal/security"
)

// maxCredentialRetries bounds read-modify-write loops on the credential row.
const maxCredentialRetries = 3

type RegisterInput struct {
	Email    string
	Name     string
	Password string
}

// AccountService implements the self-service flows around a login:
// registration, password reset, email verification, two-factor management
// and session revocation.
type AccountService struct {
	users     repository.UserRepository
	creds     repository.CredentialRepository
	vault     *TokenVault
	twoFactor *TwoFactorEngine
	sessions  *SessionRegistry
	passwords PasswordHasher
	mailer    EmailSender
	baseURL   string
	now       func() time.Time
	// decoy runs on enumeration-safe paths that have nothing to issue.
	decoy func()
}

func NewAccountService(
	users repository.UserRepository,
	creds repository.CredentialRepository,
	vault *TokenVault,
	twoFactor *TwoFactorEngine,
	sessions *SessionRegistry,
	passwords PasswordHasher,
	mailer EmailSender,
	baseURL string,
) *AccountService {
	s := &AccountService{
		users:     users,
		creds:     creds,
		vault:     vault,
		twoFactor: twoFactor,
		sessions:  sessions,
		passwords: passwords,
		mailer:    mailer,
		baseURL:   strings.TrimRight(baseURL, "/"),
		now:       time.Now,
	}
	s.decoy = s.burnToken
	return s
}

// Register creates an unverified account and mails a verification link.
// An address that is already registered produces the same nil result.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) error {
	if !validEmail(in.Email) {
		return ErrInvalidEmail
	}
	if err := security.ValidatePassword(in.Password); err != nil {
		return fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}
	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return err
	}
	user := &domain.User{Email: in.Email, Name: strings.TrimSpace(in.Name)}
	err = s.users.CreateWithCredential(ctx, user, &domain.Credential{PasswordHash: &hash})
	if errors.Is(err, repository.ErrEmailTaken) {
		observability.AuditContext(ctx, "account.register.duplicate")
		return nil
	}
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	observability.AuditContext(ctx, "account.registered", "user_id", user.ID)
	return s.sendVerification(ctx, user, user.Email)
}

// RequestPasswordReset always succeeds from the caller's point of view.
// Unknown and password-less accounts do the same token generation work and
// mail delivery is queued, so response time does not reveal existence.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			slog.ErrorContext(ctx, "password reset lookup failed", "error", err)
		}
		s.decoy()
		observability.AuditContext(ctx, "account.password_reset.requested", "outcome", "unknown_account")
		return nil
	}
	cred, err := s.creds.FindByUserID(ctx, user.ID)
	if err != nil || !cred.HasPassword() {
		s.decoy()
		observability.AuditContext(ctx, "account.password_reset.requested", "user_id", user.ID, "outcome", "no_password")
		return nil
	}
	token, err := s.vault.Issue(ctx, user.ID, domain.TokenPurposePasswordReset, "")
	if err != nil {
		slog.ErrorContext(ctx, "password reset issue failed", "user_id", user.ID, "error", err)
		return nil
	}
	if _, err := s.mailer.Send(ctx, EmailMessage{
		Kind:        EmailPasswordReset,
		To:          user.Email,
		DisplayName: user.Name,
		Link:        s.link("/reset-password", token),
	}); err != nil {
		slog.ErrorContext(ctx, "password reset email enqueue failed", "user_id", user.ID, "error", err)
	}
	observability.AuditContext(ctx, "account.password_reset.requested", "user_id", user.ID, "outcome", "issued")
	return nil
}

// ResetPassword sets a new password through a reset token and ends every
// session of the account. The password is checked before the token is
// spent so a rejected password does not burn the link.
func (s *AccountService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := security.ValidatePassword(newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}
	if _, err := s.vault.Validate(ctx, token, domain.TokenPurposePasswordReset); err != nil {
		return err
	}
	hash, err := s.passwords.Hash(newPassword)
	if err != nil {
		return err
	}
	claims, err := s.vault.Consume(ctx, token, domain.TokenPurposePasswordReset)
	if err != nil {
		return err
	}
	if err := s.updateCredential(ctx, claims.UserID, func(c *domain.Credential) error {
		c.PasswordHash = &hash
		return nil
	}); err != nil {
		return err
	}
	revoked, err := s.sessions.RevokeAll(ctx, claims.UserID)
	if err != nil {
		return err
	}
	observability.AuditContext(ctx, "account.password_reset.completed", "user_id", claims.UserID, "sessions_revoked", revoked)
	return nil
}

// RequestEmailVerification resends a verification link for an address typed
// in by an anonymous caller. The result never depends on the account.
func (s *AccountService) RequestEmailVerification(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			slog.ErrorContext(ctx, "verification lookup failed", "error", err)
		}
		s.decoy()
		return nil
	}
	if user.EmailVerified() {
		s.decoy()
		return nil
	}
	if err := s.sendVerification(ctx, user, user.Email); err != nil {
		slog.ErrorContext(ctx, "verification resend failed", "user_id", user.ID, "error", err)
	}
	return nil
}

// ResendOwnEmailVerification is the authenticated variant; the owner may
// learn that the address is already verified.
func (s *AccountService) ResendOwnEmailVerification(ctx context.Context, userID uint) error {
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}
	if user.EmailVerified() {
		return ErrAlreadyVerified
	}
	return s.sendVerification(ctx, user, user.Email)
}

// RequestEmailChange mails a verification link to newEmail. The account
// moves to the new address only once that link is confirmed.
func (s *AccountService) RequestEmailChange(ctx context.Context, userID uint, newEmail string) error {
	newEmail = repository.NormalizeEmail(newEmail)
	if !validEmail(newEmail) {
		return ErrInvalidEmail
	}
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}
	if existing, err := s.users.FindByEmail(ctx, newEmail); err == nil && existing.ID != userID {
		return ErrEmailTaken
	} else if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		return err
	}
	return s.sendVerification(ctx, user, newEmail)
}

// VerifyEmail redeems a verification token and returns the verified account.
func (s *AccountService) VerifyEmail(ctx context.Context, token string) (*domain.User, error) {
	claims, err := s.vault.Consume(ctx, token, domain.TokenPurposeEmailVerification)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, claims.UserID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	target := ""
	if claims.Email != "" && repository.NormalizeEmail(claims.Email) != user.Email {
		target = claims.Email
	}
	err = s.users.MarkEmailVerified(ctx, user.ID, target, s.now().UTC())
	if errors.Is(err, repository.ErrEmailTaken) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, err
	}
	observability.AuditContext(ctx, "account.email.verified", "user_id", user.ID, "changed", target != "")
	return s.users.FindByID(ctx, user.ID)
}

// BeginTwoFactor starts or restarts enrollment. An account that already has
// two-factor enabled must disable it first.
func (s *AccountService) BeginTwoFactor(ctx context.Context, userID uint) (*Enrollment, error) {
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	enrollment, err := s.twoFactor.BeginEnrollment(user.Email)
	if err != nil {
		return nil, err
	}
	sealed, err := s.twoFactor.SealSecret(enrollment.Secret)
	if err != nil {
		return nil, err
	}
	err = s.updateCredential(ctx, userID, func(c *domain.Credential) error {
		if c.TwoFactorEnabled() {
			return ErrTwoFactorAlreadyEnabled
		}
		c.TwoFactorState = domain.TwoFactorPending
		c.TwoFactorSecret = &sealed
		c.TwoFactorLastStep = 0
		c.BackupCodes = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	observability.RecordTwoFactorEvent(ctx, "enrollment", "started")
	observability.AuditContext(ctx, "two_factor.enrollment.started", "user_id", userID)
	return enrollment, nil
}

// ConfirmTwoFactor enables two-factor once code matches the pending secret
// and returns a fresh set of plaintext backup codes.
func (s *AccountService) ConfirmTwoFactor(ctx context.Context, userID uint, code string) ([]string, error) {
	codes, err := s.twoFactor.GenerateBackupCodes(DefaultBackupCodeCount)
	if err != nil {
		return nil, err
	}
	sealed, err := s.twoFactor.EncryptBackupCodes(codes)
	if err != nil {
		return nil, err
	}
	err = s.updateCredential(ctx, userID, func(c *domain.Credential) error {
		if c.TwoFactorState != domain.TwoFactorPending || c.TwoFactorSecret == nil {
			return ErrTwoFactorNotPending
		}
		step, ok, err := s.twoFactor.VerifyStep(*c.TwoFactorSecret, code, c.TwoFactorLastStep)
		if err != nil {
			return err
		}
		if !ok {
			return ErrTwoFactorInvalid
		}
		c.TwoFactorState = domain.TwoFactorEnabled
		c.TwoFactorLastStep = step
		c.BackupCodes = sealed
		return nil
	})
	if err != nil {
		observability.RecordTwoFactorEvent(ctx, "enrollment", "rejected")
		return nil, err
	}
	observability.RecordTwoFactorEvent(ctx, "enrollment", "confirmed")
	observability.AuditContext(ctx, "two_factor.enabled", "user_id", userID)
	return codes, nil
}

// DisableTwoFactor requires the account password.
func (s *AccountService) DisableTwoFactor(ctx context.Context, userID uint, password string) error {
	if err := s.confirmPassword(ctx, userID, password); err != nil {
		return err
	}
	err := s.updateCredential(ctx, userID, func(c *domain.Credential) error {
		if !c.TwoFactorEnabled() {
			return ErrTwoFactorNotEnabled
		}
		c.TwoFactorState = domain.TwoFactorDisabled
		c.TwoFactorSecret = nil
		c.TwoFactorLastStep = 0
		c.BackupCodes = nil
		return nil
	})
	if err != nil {
		return err
	}
	observability.RecordTwoFactorEvent(ctx, "disable", "accepted")
	observability.AuditContext(ctx, "two_factor.disabled", "user_id", userID)
	return nil
}

// RegenerateBackupCodes replaces every backup code; requires the password.
func (s *AccountService) RegenerateBackupCodes(ctx context.Context, userID uint, password string) ([]string, error) {
	if err := s.confirmPassword(ctx, userID, password); err != nil {
		return nil, err
	}
	codes, err := s.twoFactor.GenerateBackupCodes(DefaultBackupCodeCount)
	if err != nil {
		return nil, err
	}
	sealed, err := s.twoFactor.EncryptBackupCodes(codes)
	if err != nil {
		return nil, err
	}
	err = s.updateCredential(ctx, userID, func(c *domain.Credential) error {
		if !c.TwoFactorEnabled() {
			return ErrTwoFactorNotEnabled
		}
		c.BackupCodes = sealed
		return nil
	})
	if err != nil {
		return nil, err
	}
	observability.RecordTwoFactorEvent(ctx, "backup_codes", "regenerated")
	observability.AuditContext(ctx, "two_factor.backup_codes.regenerated", "user_id", userID)
	return codes, nil
}

// TwoFactorStatus reports the account's state and remaining backup codes.
func (s *AccountService) TwoFactorStatus(ctx context.Context, userID uint) (domain.TwoFactorState, int, error) {
	c, err := s.creds.FindByUserID(ctx, userID)
	if errors.Is(err, repository.ErrCredentialNotFound) {
		return domain.TwoFactorDisabled, 0, nil
	}
	if err != nil {
		return "", 0, err
	}
	return c.TwoFactorState, len(c.BackupCodes), nil
}

// RevokeSession ends one of userID's other sessions. The current session is
// refused; the caller should log out instead.
func (s *AccountService) RevokeSession(ctx context.Context, userID, sessionID uint, currentToken string) error {
	current, err := s.sessions.IsCurrent(ctx, sessionID, currentToken)
	if err != nil {
		return err
	}
	if current {
		return ErrSessionIsCurrent
	}
	deleted, err := s.sessions.Revoke(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrSessionNotFound
	}
	observability.AuditContext(ctx, "session.revoked", "user_id", userID, "session_id", sessionID)
	return nil
}

func (s *AccountService) RevokeOtherSessions(ctx context.Context, userID uint, currentToken string) (int64, error) {
	n, err := s.sessions.RevokeAllOthers(ctx, userID, currentToken)
	if err != nil {
		return 0, err
	}
	observability.AuditContext(ctx, "session.revoked_others", "user_id", userID, "count", n)
	return n, nil
}

func (s *AccountService) ListSessions(ctx context.Context, userID uint, currentToken string) ([]SessionView, error) {
	return s.sessions.List(ctx, userID, currentToken)
}

func (s *AccountService) confirmPassword(ctx context.Context, userID uint, password string) error {
	c, err := s.creds.FindByUserID(ctx, userID)
	if errors.Is(err, repository.ErrCredentialNotFound) {
		return ErrOAuthOnlyAccount
	}
	if err != nil {
		return err
	}
	if !c.HasPassword() {
		return ErrOAuthOnlyAccount
	}
	if err := s.passwords.Compare(*c.PasswordHash, password); err != nil {
		if errors.Is(err, security.ErrPasswordMismatch) {
			observability.AuditContext(ctx, "account.password_confirmation.failed", "user_id", userID)
			return ErrPasswordConfirmation
		}
		return err
	}
	return nil
}

// updateCredential applies mutate to a fresh copy of the credential and
// writes it with the version check, retrying when another writer won.
func (s *AccountService) updateCredential(ctx context.Context, userID uint, mutate func(*domain.Credential) error) error {
	for attempt := 0; attempt < maxCredentialRetries; attempt++ {
		c, err := s.creds.FindByUserID(ctx, userID)
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}
		if err := mutate(c); err != nil {
			return err
		}
		err = s.creds.Update(ctx, c)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrCredentialConflict) {
			return fmt.Errorf("update credential: %w", err)
		}
	}
	return fmt.Errorf("update credential: %w", repository.ErrCredentialConflict)
}

func (s *AccountService) sendVerification(ctx context.Context, user *domain.User, email string) error {
	token, err := s.vault.Issue(ctx, user.ID, domain.TokenPurposeEmailVerification, email)
	if err != nil {
		return err
	}
	_, err = s.mailer.Send(ctx, EmailMessage{
		Kind:        EmailVerification,
		To:          email,
		DisplayName: user.Name,
		Link:        s.link("/verify-email", token),
	})
	if err != nil {
		return fmt.Errorf("send verification email: %w", err)
	}
	return nil
}

func (s *AccountService) link(path, token string) string {
	return s.baseURL + path + "?token=" + url.QueryEscape(token)
}

// burnToken spends the randomness and hashing of a real issuance on paths
// that have nothing to issue.
func (s *AccountService) burnToken() {
	if raw, err := security.NewOpaqueToken(); err == nil {
		_ = security.HashToken(raw, s.vault.pepper)
	}
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	return err == nil && addr.Name == "" && strings.Contains(addr.Address, "@")
}
