package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandeepkv93/account-security-service/internal/domain"
	"github.com/sandeepkv93/account-security-service/internal/observability"
	"github.com/sandeepkv93/account-security-service/internal/repository"
	"github.com/sandeepkv93/account-security-service/internal/security"
)

// TokenClaims is what a valid security token grants its bearer.
type TokenClaims struct {
	UserID    uint
	Purpose   domain.TokenPurpose
	Email     string
	ExpiresAt time.Time
}

// TokenVault issues and redeems single-use password-reset and
// email-verification tokens. Only HMAC digests of tokens are persisted; the
// plaintext leaves Issue once and is never stored.
type TokenVault struct {
	repo   repository.SecurityTokenRepository
	pepper string
	now    func() time.Time
}

func NewTokenVault(repo repository.SecurityTokenRepository, pepper string) *TokenVault {
	return &TokenVault{repo: repo, pepper: pepper, now: time.Now}
}

// Issue replaces any unconsumed token of the same purpose for userID with a
// fresh one. email is recorded for email-verification tokens so a change of
// address can be confirmed through the new mailbox.
func (v *TokenVault) Issue(ctx context.Context, userID uint, purpose domain.TokenPurpose, email string) (string, error) {
	if !purpose.Valid() {
		return "", fmt.Errorf("issue token: unknown purpose %q", purpose)
	}
	raw, err := security.NewOpaqueToken()
	if err != nil {
		return "", err
	}
	now := v.now().UTC()
	tok := &domain.SecurityToken{
		UserID:    userID,
		TokenHash: security.HashToken(raw, v.pepper),
		Purpose:   purpose,
		Email:     email,
		ExpiresAt: now.Add(purpose.TTL()),
		CreatedAt: now,
	}
	if err := v.repo.Replace(ctx, tok); err != nil {
		return "", fmt.Errorf("store security token: %w", err)
	}
	observability.RecordSecurityTokenEvent(ctx, string(purpose), "issued")
	return raw, nil
}

// Validate checks raw without consuming it. An expired token is deleted on
// sight; nothing else is written.
func (v *TokenVault) Validate(ctx context.Context, raw string, purpose domain.TokenPurpose) (*TokenClaims, error) {
	tok, err := v.lookup(ctx, raw, purpose)
	if err != nil {
		return nil, err
	}
	if tok.Used() {
		observability.RecordSecurityTokenEvent(ctx, string(purpose), "rejected_used")
		return nil, ErrTokenAlreadyUsed
	}
	if tok.Expired(v.now().UTC()) {
		if err := v.repo.DeleteByHash(ctx, tok.TokenHash); err != nil {
			observability.AuditContext(ctx, "security_token.expired_delete_failed", "purpose", purpose, "error", err)
		}
		observability.RecordSecurityTokenEvent(ctx, string(purpose), "rejected_expired")
		return nil, ErrTokenExpired
	}
	return claimsOf(tok), nil
}

// Consume marks raw used. Of several concurrent calls for the same token
// exactly one succeeds; the others get ErrTokenAlreadyUsed.
func (v *TokenVault) Consume(ctx context.Context, raw string, purpose domain.TokenPurpose) (*TokenClaims, error) {
	tok, err := v.lookup(ctx, raw, purpose)
	if err != nil {
		return nil, err
	}
	consumed, err := v.repo.MarkUsed(ctx, tok.TokenHash, v.now().UTC())
	switch {
	case errors.Is(err, repository.ErrSecurityTokenUsed):
		observability.RecordSecurityTokenEvent(ctx, string(purpose), "rejected_used")
		return nil, ErrTokenAlreadyUsed
	case errors.Is(err, repository.ErrSecurityTokenExpired):
		observability.RecordSecurityTokenEvent(ctx, string(purpose), "rejected_expired")
		return nil, ErrTokenExpired
	case errors.Is(err, repository.ErrSecurityTokenNotFound):
		return nil, ErrTokenNotFound
	case err != nil:
		return nil, fmt.Errorf("consume security token: %w", err)
	}
	observability.RecordSecurityTokenEvent(ctx, string(purpose), "consumed")
	return claimsOf(consumed), nil
}

// Sweep deletes expired tokens and returns how many were removed. The
// caller records the sweep metric.
func (v *TokenVault) Sweep(ctx context.Context) (int64, error) {
	n, err := v.repo.DeleteExpired(ctx, v.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("sweep security tokens: %w", err)
	}
	return n, nil
}

// lookup treats a token of another purpose as absent so a reset link can
// never verify an email address and vice versa.
func (v *TokenVault) lookup(ctx context.Context, raw string, purpose domain.TokenPurpose) (*domain.SecurityToken, error) {
	if raw == "" {
		return nil, ErrTokenNotFound
	}
	tok, err := v.repo.FindByHash(ctx, security.HashToken(raw, v.pepper))
	if errors.Is(err, repository.ErrSecurityTokenNotFound) {
		observability.RecordSecurityTokenEvent(ctx, string(purpose), "rejected_not_found")
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find security token: %w", err)
	}
	if tok.Purpose != purpose {
		observability.RecordSecurityTokenEvent(ctx, string(purpose), "rejected_not_found")
		return nil, ErrTokenNotFound
	}
	return tok, nil
}

func claimsOf(t *domain.SecurityToken) *TokenClaims {
	return &TokenClaims{UserID: t.UserID, Purpose: t.Purpose, Email: t.Email, ExpiresAt: t.ExpiresAt}
}
