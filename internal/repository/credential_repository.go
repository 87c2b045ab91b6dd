package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/account-security-service/internal/domain"

	"gorm.io/gorm"
)

var (
	ErrCredentialNotFound = errors.New("credential not found")
	// ErrCredentialConflict means the row changed since it was read; the
	// caller lost a race and must not assume its update was applied.
	ErrCredentialConflict = errors.New("credential modified concurrently")
)

type CredentialRepository interface {
	FindByUserID(ctx context.Context, userID uint) (*domain.Credential, error)
	Update(ctx context.Context, c *domain.Credential) error
}

type GormCredentialRepository struct{ db *gorm.DB }

func NewCredentialRepository(db *gorm.DB) CredentialRepository {
	return &GormCredentialRepository{db: db}
}

func (r *GormCredentialRepository) FindByUserID(ctx context.Context, userID uint) (*domain.Credential, error) {
	var c domain.Credential
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrCredentialNotFound
	}
	recordOperation(ctx, "credential", "find_by_user_id", err, ErrCredentialNotFound)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Update writes c if and only if the stored version still equals c.Version,
// then advances c.Version. Backup-code removal relies on this so two logins
// racing on the same code cannot both persist.
func (r *GormCredentialRepository) Update(ctx context.Context, c *domain.Credential) error {
	if err := c.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	next := domain.Credential{
		PasswordHash:      c.PasswordHash,
		TwoFactorState:    c.TwoFactorState,
		TwoFactorSecret:   c.TwoFactorSecret,
		TwoFactorLastStep: c.TwoFactorLastStep,
		BackupCodes:       c.BackupCodes,
		Version:           c.Version + 1,
		UpdatedAt:         now,
	}
	res := r.db.WithContext(ctx).Model(&domain.Credential{}).
		Where("user_id = ? AND version = ?", c.UserID, c.Version).
		Select("password_hash", "two_factor_state", "two_factor_secret", "two_factor_last_step", "backup_codes", "version", "updated_at").
		Updates(&next)
	err := res.Error
	if err == nil && res.RowsAffected == 0 {
		err = ErrCredentialConflict
	}
	recordOperation(ctx, "credential", "update", err)
	if err != nil {
		return err
	}
	c.Version++
	c.UpdatedAt = now
	return nil
}
