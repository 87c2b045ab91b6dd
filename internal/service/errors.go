package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrTokenNotFound    = errors.New("security token not found")
	ErrTokenAlreadyUsed = errors.New("security token already used")
	ErrTokenExpired     = errors.New("security token expired")

	ErrAuthRejected     = errors.New("authentication rejected")
	ErrEmailNotVerified = errors.New("email not verified")
	ErrOAuthOnlyAccount = errors.New("account has no password")
	ErrTwoFactorInvalid = errors.New("two-factor code invalid")

	ErrTwoFactorAlreadyEnabled = errors.New("two-factor already enabled")
	ErrTwoFactorNotEnabled     = errors.New("two-factor not enabled")
	ErrTwoFactorNotPending     = errors.New("two-factor enrollment not started")
	ErrPasswordConfirmation    = errors.New("password confirmation failed")

	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionIsCurrent = errors.New("cannot revoke current session")

	ErrUserNotFound    = errors.New("user not found")
	ErrAlreadyVerified = errors.New("email already verified")
	ErrEmailTaken      = errors.New("email already in use")
	ErrInvalidEmail    = errors.New("invalid email address")
	ErrWeakPassword    = errors.New("password does not meet requirements")

	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// IsTokenError reports whether err is one of the token failures that the
// transport collapses into a single INVALID_TOKEN response.
func IsTokenError(err error) bool {
	return errors.Is(err, ErrTokenNotFound) || errors.Is(err, ErrTokenAlreadyUsed) || errors.Is(err, ErrTokenExpired)
}

type RejectReason string

const (
	RejectUnknownAccount    RejectReason = "unknown_account"
	RejectMissingCredential RejectReason = "missing_credential"
	RejectOAuthOnly         RejectReason = "oauth_only"
	RejectBadPassword       RejectReason = "bad_password"
	RejectEmailNotVerified  RejectReason = "email_not_verified"
	RejectTwoFactorInvalid  RejectReason = "two_factor_invalid"
	RejectBackupCodeInvalid RejectReason = "backup_code_invalid"
	RejectChallengeInvalid  RejectReason = "challenge_invalid"
	RejectTwoFactorDisabled RejectReason = "two_factor_disabled"
)

// AuthRejection is the terminal Rejected state of a login attempt. Reason is
// for logs only. Every rejection matches ErrAuthRejected; the two outcomes a
// client may learn about additionally match ErrEmailNotVerified or
// ErrOAuthOnlyAccount.
type AuthRejection struct {
	Reason RejectReason
	Err    error
}

func reject(reason RejectReason, err error) *AuthRejection {
	return &AuthRejection{Reason: reason, Err: err}
}

func (e *AuthRejection) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrAuthRejected, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", ErrAuthRejected, e.Reason, e.Err)
}

func (e *AuthRejection) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAuthRejected}
	}
	return []error{ErrAuthRejected, e.Err}
}

// RateLimitError carries the retry hint for a throttled operation.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimitExceeded, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimitExceeded }

// RetryAfterSeconds rounds up to whole seconds, never below one.
func (e *RateLimitError) RetryAfterSeconds() int {
	s := int((e.RetryAfter + time.Second - 1) / time.Second)
	if s < 1 {
		return 1
	}
	return s
}
