package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sandeepkv93/account-security-service/internal/domain"
	"github.com/sandeepkv93/account-security-service/internal/observability"
	"github.com/sandeepkv93/account-security-service/internal/ratelimit"
	"github.com/sandeepkv93/account-security-service/internal/repository"
	"github.com/sandeepkv93/account-security-service/internal/security"
)

// maxBackupCodeRetries bounds re-reads after losing a credential CAS race.
const maxBackupCodeRetries = 3

type LoginStage string

const (
	StageSessionIssued     LoginStage = "session_issued"
	StageTwoFactorRequired LoginStage = "two_factor_required"
)

type LoginRequest struct {
	Email         string
	Password      string
	TwoFactorCode string
	UseBackupCode bool
	Client        ClientInfo
}

type TwoFactorRequest struct {
	Ticket        string
	Code          string
	UseBackupCode bool
	Client        ClientInfo
}

// LoginResult is the non-failure end of a login attempt: either a session
// was issued or the caller must come back with a second factor, presenting
// Challenge instead of the password.
type LoginResult struct {
	Stage              LoginStage
	User               *domain.User
	Session            *IssuedSession
	Challenge          string
	ChallengeExpiresAt time.Time
}

type ChallengeSigner interface {
	SignChallenge(userID uint, credentialVersion int64, ttl time.Duration) (string, error)
	ParseChallenge(raw string) (*security.Claims, error)
}

// AuthenticationCoordinator drives one login attempt from submitted
// credentials to an issued session. Every failure is an *AuthRejection, a
// *RateLimitError or an opaque storage error.
type AuthenticationCoordinator struct {
	users     repository.UserRepository
	creds     repository.CredentialRepository
	passwords PasswordVerifier
	twoFactor *TwoFactorEngine
	sessions  *SessionRegistry
	limiter   ratelimit.Limiter
	tickets   ChallengeSigner
	ticketTTL time.Duration
	tracer    trace.Tracer
}

func NewAuthenticationCoordinator(
	users repository.UserRepository,
	creds repository.CredentialRepository,
	passwords PasswordVerifier,
	twoFactor *TwoFactorEngine,
	sessions *SessionRegistry,
	limiter ratelimit.Limiter,
	tickets ChallengeSigner,
	ticketTTL time.Duration,
) *AuthenticationCoordinator {
	return &AuthenticationCoordinator{
		users:     users,
		creds:     creds,
		passwords: passwords,
		twoFactor: twoFactor,
		sessions:  sessions,
		limiter:   limiter,
		tickets:   tickets,
		ticketTTL: ticketTTL,
		tracer:    otel.Tracer("account-security-service/auth"),
	}
}

func (c *AuthenticationCoordinator) Login(ctx context.Context, req LoginRequest) (res *LoginResult, err error) {
	ctx, span := c.tracer.Start(ctx, "auth.login")
	var userID uint
	defer func() { c.finish(ctx, span, "password", userID, req.Client.IP, res, err) }()

	// Keyed by address, not by account, so unknown emails are throttled alike.
	if err := c.throttle(ctx, ratelimit.OpLoginAccount, "email:"+repository.NormalizeEmail(req.Email)); err != nil {
		return nil, err
	}
	user, err := c.users.FindByEmail(ctx, req.Email)
	if errors.Is(err, repository.ErrUserNotFound) {
		c.passwords.CompareDummy(req.Password)
		return nil, reject(RejectUnknownAccount, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	userID = user.ID
	span.SetAttributes(attribute.String("user.id", strconv.FormatUint(uint64(userID), 10)))

	cred, err := c.creds.FindByUserID(ctx, user.ID)
	if errors.Is(err, repository.ErrCredentialNotFound) {
		c.passwords.CompareDummy(req.Password)
		return nil, reject(RejectMissingCredential, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("find credential: %w", err)
	}
	if !cred.HasPassword() {
		return nil, reject(RejectOAuthOnly, ErrOAuthOnlyAccount)
	}
	if err := c.passwords.Compare(*cred.PasswordHash, req.Password); err != nil {
		if errors.Is(err, security.ErrPasswordMismatch) {
			return nil, reject(RejectBadPassword, nil)
		}
		return nil, err
	}
	if !user.EmailVerified() {
		return nil, reject(RejectEmailNotVerified, ErrEmailNotVerified)
	}

	if cred.TwoFactorEnabled() {
		if req.TwoFactorCode == "" {
			return c.challenge(user, cred)
		}
		if err := c.verifySecondFactor(ctx, cred, req.TwoFactorCode, req.UseBackupCode); err != nil {
			return nil, err
		}
	}
	return c.issue(ctx, user, req.Client)
}

// CompleteTwoFactor finishes a login that stopped at TwoFactorRequired. The
// ticket is only good against the credential version it was signed for; a
// successful second factor writes the credential, so each ticket redeems once.
func (c *AuthenticationCoordinator) CompleteTwoFactor(ctx context.Context, req TwoFactorRequest) (res *LoginResult, err error) {
	ctx, span := c.tracer.Start(ctx, "auth.two_factor")
	var userID uint
	defer func() { c.finish(ctx, span, "two_factor", userID, req.Client.IP, res, err) }()

	claims, err := c.tickets.ParseChallenge(req.Ticket)
	if err != nil {
		return nil, reject(RejectChallengeInvalid, nil)
	}
	if userID, err = claims.UserID(); err != nil {
		return nil, reject(RejectChallengeInvalid, nil)
	}
	span.SetAttributes(attribute.String("user.id", strconv.FormatUint(uint64(userID), 10)))

	user, err := c.users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, reject(RejectUnknownAccount, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	cred, err := c.creds.FindByUserID(ctx, userID)
	if errors.Is(err, repository.ErrCredentialNotFound) {
		return nil, reject(RejectMissingCredential, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("find credential: %w", err)
	}
	if !cred.TwoFactorEnabled() {
		return nil, reject(RejectTwoFactorDisabled, nil)
	}
	if cred.Version != claims.CredentialVersion {
		return nil, reject(RejectChallengeInvalid, nil)
	}
	if !user.EmailVerified() {
		return nil, reject(RejectEmailNotVerified, ErrEmailNotVerified)
	}
	if err := c.verifySecondFactor(ctx, cred, req.Code, req.UseBackupCode); err != nil {
		return nil, err
	}
	return c.issue(ctx, user, req.Client)
}

func (c *AuthenticationCoordinator) Logout(ctx context.Context, token string) error {
	_, err := c.sessions.RevokeToken(ctx, token)
	return err
}

func (c *AuthenticationCoordinator) challenge(user *domain.User, cred *domain.Credential) (*LoginResult, error) {
	ticket, err := c.tickets.SignChallenge(user.ID, cred.Version, c.ticketTTL)
	if err != nil {
		return nil, fmt.Errorf("sign two-factor challenge: %w", err)
	}
	return &LoginResult{
		Stage:              StageTwoFactorRequired,
		User:               user,
		Challenge:          ticket,
		ChallengeExpiresAt: time.Now().Add(c.ticketTTL),
	}, nil
}

// verifySecondFactor throttles per account, then checks a TOTP code or
// spends a backup code. A spent code is persisted by CAS on the credential
// version; losing the race re-reads the credential, where the code is gone.
func (c *AuthenticationCoordinator) verifySecondFactor(ctx context.Context, cred *domain.Credential, code string, useBackup bool) error {
	if err := c.throttleSecondFactor(ctx, cred.UserID); err != nil {
		return err
	}
	if !useBackup {
		if cred.TwoFactorSecret == nil {
			return reject(RejectTwoFactorInvalid, ErrTwoFactorInvalid)
		}
		step, ok, err := c.twoFactor.VerifyStep(*cred.TwoFactorSecret, code, cred.TwoFactorLastStep)
		if err != nil {
			return err
		}
		if !ok {
			observability.RecordTwoFactorEvent(ctx, "totp", "rejected")
			return reject(RejectTwoFactorInvalid, ErrTwoFactorInvalid)
		}
		cred.TwoFactorLastStep = step
		if err := c.creds.Update(ctx, cred); err != nil {
			if errors.Is(err, repository.ErrCredentialConflict) {
				observability.RecordTwoFactorEvent(ctx, "totp", "conflict")
				return reject(RejectTwoFactorInvalid, ErrTwoFactorInvalid)
			}
			return fmt.Errorf("persist totp step: %w", err)
		}
		observability.RecordTwoFactorEvent(ctx, "totp", "accepted")
		return nil
	}

	for attempt := 0; attempt < maxBackupCodeRetries; attempt++ {
		remaining, ok, err := c.twoFactor.ConsumeBackupCode(code, cred.BackupCodes)
		if err != nil {
			return err
		}
		if !ok {
			observability.RecordTwoFactorEvent(ctx, "backup_code", "rejected")
			return reject(RejectBackupCodeInvalid, ErrTwoFactorInvalid)
		}
		cred.BackupCodes = remaining
		err = c.creds.Update(ctx, cred)
		if err == nil {
			observability.RecordTwoFactorEvent(ctx, "backup_code", "accepted")
			return nil
		}
		if !errors.Is(err, repository.ErrCredentialConflict) {
			return fmt.Errorf("persist backup code use: %w", err)
		}
		fresh, err := c.creds.FindByUserID(ctx, cred.UserID)
		if err != nil {
			return fmt.Errorf("reload credential: %w", err)
		}
		*cred = *fresh
		if !cred.TwoFactorEnabled() {
			return reject(RejectTwoFactorDisabled, ErrTwoFactorInvalid)
		}
	}
	observability.RecordTwoFactorEvent(ctx, "backup_code", "conflict")
	return reject(RejectBackupCodeInvalid, ErrTwoFactorInvalid)
}

func (c *AuthenticationCoordinator) throttleSecondFactor(ctx context.Context, userID uint) error {
	return c.throttle(ctx, ratelimit.OpTwoFactorVerify, "user:"+strconv.FormatUint(uint64(userID), 10))
}

func (c *AuthenticationCoordinator) throttle(ctx context.Context, op ratelimit.Operation, identity string) error {
	if c.limiter == nil {
		return nil
	}
	decision, err := c.limiter.Allow(ctx, ratelimit.Key(op, identity), ratelimit.PolicyFor(op))
	if err != nil {
		return fmt.Errorf("%s limiter: %w", op, err)
	}
	if !decision.Allowed {
		observability.RecordRateLimitDecision(ctx, string(op), "deny")
		return &RateLimitError{RetryAfter: decision.RetryAfter}
	}
	observability.RecordRateLimitDecision(ctx, string(op), "allow")
	return nil
}

func (c *AuthenticationCoordinator) issue(ctx context.Context, user *domain.User, client ClientInfo) (*LoginResult, error) {
	issued, err := c.sessions.Create(ctx, user.ID, client)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Stage: StageSessionIssued, User: user, Session: issued}, nil
}

func (c *AuthenticationCoordinator) finish(ctx context.Context, span trace.Span, method string, userID uint, ip string, res *LoginResult, err error) {
	defer span.End()
	var rejection *AuthRejection
	var limited *RateLimitError
	switch {
	case err == nil:
		span.SetAttributes(attribute.String("auth.stage", string(res.Stage)))
		observability.RecordAuthLogin(ctx, method, string(res.Stage))
		if res.Stage == StageSessionIssued {
			observability.AuditContext(ctx, "auth.login.succeeded", "method", method, "user_id", userID, "client_ip", ip)
		}
	case errors.As(err, &rejection):
		span.SetAttributes(attribute.String("auth.reject_reason", string(rejection.Reason)))
		observability.RecordAuthLogin(ctx, method, "rejected")
		observability.AuditContext(ctx, "auth.login.rejected", "method", method, "user_id", userID, "reason", rejection.Reason, "client_ip", ip)
	case errors.As(err, &limited):
		observability.RecordAuthLogin(ctx, method, "rate_limited")
		observability.AuditContext(ctx, "auth.login.throttled", "method", method, "user_id", userID, "client_ip", ip, "retry_after", limited.RetryAfter.String())
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
		observability.RecordAuthLogin(ctx, method, "error")
		slog.ErrorContext(ctx, "login failed", "method", method, "user_id", userID, "error", err)
	}
}
