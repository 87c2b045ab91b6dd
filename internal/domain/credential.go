package domain

import (
	"errors"
	"time"
)

type TwoFactorState string

const (
	TwoFactorDisabled TwoFactorState = "disabled"
	TwoFactorPending  TwoFactorState = "pending"
	TwoFactorEnabled  TwoFactorState = "enabled"
)

// MaxBackupCodes bounds the number of stored backup codes per account.
const MaxBackupCodes = 8

var (
	ErrCredentialSecretMissing = errors.New("two-factor enabled without secret")
	ErrCredentialTooManyCodes  = errors.New("too many backup codes")
)

// Credential holds the password hash and two-factor configuration of a user.
// TwoFactorSecret and every BackupCodes entry are CryptoBox ciphertexts.
// TwoFactorLastStep is the TOTP time step of the last accepted code; codes
// at or before it are replays.
type Credential struct {
	UserID            uint           `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	PasswordHash      *string        `gorm:"size:255" json:"-"`
	TwoFactorState    TwoFactorState `gorm:"size:16;not null;default:disabled" json:"two_factor_state"`
	TwoFactorSecret   *string        `gorm:"size:512" json:"-"`
	TwoFactorLastStep int64          `gorm:"not null;default:0" json:"-"`
	BackupCodes       []string       `gorm:"type:text;serializer:json" json:"-"`
	Version           int64          `gorm:"not null;default:1" json:"-"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

func (c *Credential) HasPassword() bool {
	return c != nil && c.PasswordHash != nil && *c.PasswordHash != ""
}

func (c *Credential) TwoFactorEnabled() bool {
	return c != nil && c.TwoFactorState == TwoFactorEnabled
}

func (c *Credential) Validate() error {
	if c.TwoFactorState == TwoFactorEnabled && (c.TwoFactorSecret == nil || *c.TwoFactorSecret == "") {
		return ErrCredentialSecretMissing
	}
	if len(c.BackupCodes) > MaxBackupCodes {
		return ErrCredentialTooManyCodes
	}
	return nil
}
