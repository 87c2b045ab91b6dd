package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/account-security-service/internal/domain"

	"gorm.io/gorm"
)

var (
	ErrSecurityTokenNotFound = errors.New("security token not found")
	ErrSecurityTokenUsed     = errors.New("security token already used")
	ErrSecurityTokenExpired  = errors.New("security token expired")
)

type SecurityTokenRepository interface {
	Replace(ctx context.Context, t *domain.SecurityToken) error
	FindByHash(ctx context.Context, hash string) (*domain.SecurityToken, error)
	MarkUsed(ctx context.Context, hash string, now time.Time) (*domain.SecurityToken, error)
	DeleteByHash(ctx context.Context, hash string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type GormSecurityTokenRepository struct{ db *gorm.DB }

func NewSecurityTokenRepository(db *gorm.DB) SecurityTokenRepository {
	return &GormSecurityTokenRepository{db: db}
}

// Replace deletes the user's unconsumed tokens of the same purpose and inserts
// t in one transaction, so at most one live token per purpose survives.
func (r *GormSecurityTokenRepository) Replace(ctx context.Context, t *domain.SecurityToken) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND purpose = ? AND used_at IS NULL", t.UserID, t.Purpose).
			Delete(&domain.SecurityToken{}).Error; err != nil {
			return err
		}
		return tx.Create(t).Error
	})
	recordOperation(ctx, "security_token", "replace", err)
	return err
}

func (r *GormSecurityTokenRepository) FindByHash(ctx context.Context, hash string) (*domain.SecurityToken, error) {
	var t domain.SecurityToken
	err := r.db.WithContext(ctx).Where("token_hash = ?", hash).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrSecurityTokenNotFound
	}
	recordOperation(ctx, "security_token", "find_by_hash", err, ErrSecurityTokenNotFound)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// MarkUsed is a conditional update: only an unused, unexpired row flips, so
// of two racing consumers exactly one observes RowsAffected == 1. The
// winner also clears the user's remaining unconsumed tokens of that purpose.
func (r *GormSecurityTokenRepository) MarkUsed(ctx context.Context, hash string, now time.Time) (*domain.SecurityToken, error) {
	var consumed domain.SecurityToken
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.SecurityToken{}).
			Where("token_hash = ? AND used_at IS NULL AND expires_at > ?", hash, now).
			Update("used_at", now)
		if res.Error != nil {
			return res.Error
		}
		if err := tx.Where("token_hash = ?", hash).First(&consumed).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSecurityTokenNotFound
			}
			return err
		}
		if res.RowsAffected == 0 {
			if consumed.Used() {
				return ErrSecurityTokenUsed
			}
			return ErrSecurityTokenExpired
		}
		return tx.Where("user_id = ? AND purpose = ? AND used_at IS NULL AND id <> ?", consumed.UserID, consumed.Purpose, consumed.ID).
			Delete(&domain.SecurityToken{}).Error
	})
	recordOperation(ctx, "security_token", "mark_used", err, ErrSecurityTokenNotFound, ErrSecurityTokenUsed, ErrSecurityTokenExpired)
	if err != nil {
		return nil, err
	}
	return &consumed, nil
}

func (r *GormSecurityTokenRepository) DeleteByHash(ctx context.Context, hash string) error {
	err := r.db.WithContext(ctx).Where("token_hash = ?", hash).Delete(&domain.SecurityToken{}).Error
	recordOperation(ctx, "security_token", "delete_by_hash", err)
	return err
}

func (r *GormSecurityTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.SecurityToken{})
	recordOperation(ctx, "security_token", "delete_expired", res.Error)
	return res.RowsAffected, res.Error
}
