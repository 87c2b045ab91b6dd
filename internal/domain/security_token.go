package domain

import "time"

type TokenPurpose string

const (
	TokenPurposePasswordReset     TokenPurpose = "password_reset"
	TokenPurposeEmailVerification TokenPurpose = "email_verification"
)

// TTL returns the lifetime of a freshly issued token of this purpose.
func (p TokenPurpose) TTL() time.Duration {
	switch p {
	case TokenPurposePasswordReset:
		return time.Hour
	case TokenPurposeEmailVerification:
		return 24 * time.Hour
	default:
		return 0
	}
}

func (p TokenPurpose) Valid() bool {
	return p.TTL() > 0
}

type SecurityToken struct {
	ID        uint         `gorm:"primaryKey" json:"id"`
	UserID    uint         `gorm:"index:idx_security_tokens_user_purpose;not null" json:"user_id"`
	TokenHash string       `gorm:"size:128;uniqueIndex;not null" json:"-"`
	Purpose   TokenPurpose `gorm:"size:32;index:idx_security_tokens_user_purpose;not null" json:"purpose"`
	Email     string       `gorm:"size:320" json:"email,omitempty"`
	ExpiresAt time.Time    `gorm:"index;not null" json:"expires_at"`
	UsedAt    *time.Time   `gorm:"index" json:"used_at,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

func (t *SecurityToken) Used() bool {
	return t.UsedAt != nil
}

func (t *SecurityToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}
