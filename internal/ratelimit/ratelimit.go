// Package ratelimit throttles security-sensitive operations with fixed
// windows keyed by operation and client identity. The backing store is
// injected: a process-local map for single-instance deployments or Redis
// when several instances must share counters.
package ratelimit

import (
	"context"
	"time"
)

type Policy struct {
	Window time.Duration
	Limit  int
}

type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

type Limiter interface {
	Allow(ctx context.Context, key string, policy Policy) (Decision, error)
}

// Operation names an entry point with its own counter namespace.
type Operation string

const (
	OpLogin                 Operation = "login"
	OpLoginAccount          Operation = "login_account"
	OpTwoFactorVerify       Operation = "two_factor_verify"
	OpRegister              Operation = "register"
	OpPasswordResetRequest  Operation = "password_reset_request"
	OpPasswordResetSubmit   Operation = "password_reset_submit"
	OpEmailVerifyResend     Operation = "email_verification_resend"
	OpEmailVerifySubmit     Operation = "email_verification_submit"
	OpAccountSecurityMutate Operation = "account_security_mutate"
)

// DefaultPolicies is the per-operation table applied by the router and the
// login coordinator.
var DefaultPolicies = map[Operation]Policy{
	OpLogin:                 {Window: 15 * time.Minute, Limit: 10},
	OpLoginAccount:          {Window: 15 * time.Minute, Limit: 10},
	OpTwoFactorVerify:       {Window: 15 * time.Minute, Limit: 5},
	OpRegister:              {Window: 15 * time.Minute, Limit: 5},
	OpPasswordResetRequest:  {Window: 15 * time.Minute, Limit: 3},
	OpPasswordResetSubmit:   {Window: 15 * time.Minute, Limit: 5},
	OpEmailVerifyResend:     {Window: 15 * time.Minute, Limit: 3},
	OpEmailVerifySubmit:     {Window: 15 * time.Minute, Limit: 10},
	OpAccountSecurityMutate: {Window: 15 * time.Minute, Limit: 10},
}

func PolicyFor(op Operation) Policy {
	if p, ok := DefaultPolicies[op]; ok {
		return p
	}
	return Policy{Window: time.Minute, Limit: 60}
}

func Key(op Operation, identity string) string {
	return string(op) + ":" + identity
}

func normalizePolicy(p Policy) Policy {
	if p.Limit <= 0 {
		p.Limit = 1
	}
	if p.Window <= 0 {
		p.Window = time.Minute
	}
	return p
}
