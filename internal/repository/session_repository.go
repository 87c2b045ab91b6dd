package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/account-security-service/internal/domain"

	"gorm.io/gorm"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository interface {
	Create(ctx context.Context, s *domain.Session) error
	FindActiveByHash(ctx context.Context, hash string, now time.Time) (*domain.Session, error)
	ListActiveByUserID(ctx context.Context, userID uint, now time.Time) ([]domain.Session, error)
	CountActiveByUserID(ctx context.Context, userID uint, now time.Time) (int64, error)
	Touch(ctx context.Context, sessionID uint, lastSeenAt, expiresAt time.Time) error
	DeleteByIDForUser(ctx context.Context, userID, sessionID uint) (bool, error)
	DeleteOthersByUser(ctx context.Context, userID uint, keepHash string) (int64, error)
	DeleteByUserID(ctx context.Context, userID uint) (int64, error)
	DeleteByHash(ctx context.Context, hash string) (bool, error)
	CleanupExpired(ctx context.Context, now time.Time) (int64, error)
}

type GormSessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &GormSessionRepository{db: db} }

func (r *GormSessionRepository) Create(ctx context.Context, s *domain.Session) error {
	err := r.db.WithContext(ctx).Create(s).Error
	recordOperation(ctx, "session", "create", err)
	return err
}

func (r *GormSessionRepository) FindActiveByHash(ctx context.Context, hash string, now time.Time) (*domain.Session, error) {
	var s domain.Session
	err := r.db.WithContext(ctx).
		Where("token_hash = ? AND expires_at > ?", hash, now).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrSessionNotFound
	}
	recordOperation(ctx, "session", "find_active_by_hash", err, ErrSessionNotFound)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *GormSessionRepository) ListActiveByUserID(ctx context.Context, userID uint, now time.Time) ([]domain.Session, error) {
	var sessions []domain.Session
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND expires_at > ?", userID, now).
		Order("expires_at DESC").
		Order("id DESC").
		Find(&sessions).Error
	recordOperation(ctx, "session", "list_active_by_user_id", err)
	return sessions, err
}

func (r *GormSessionRepository) CountActiveByUserID(ctx context.Context, userID uint, now time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("user_id = ? AND expires_at > ?", userID, now).
		Count(&n).Error
	recordOperation(ctx, "session", "count_active_by_user_id", err)
	return n, err
}

func (r *GormSessionRepository) Touch(ctx context.Context, sessionID uint, lastSeenAt, expiresAt time.Time) error {
	err := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("id = ?", sessionID).
		Updates(map[string]any{"last_seen_at": lastSeenAt, "expires_at": expiresAt}).Error
	recordOperation(ctx, "session", "touch", err)
	return err
}

// DeleteByIDForUser removes a session only when it belongs to userID. A
// session owned by someone else is indistinguishable from a missing one.
func (r *GormSessionRepository) DeleteByIDForUser(ctx context.Context, userID, sessionID uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", sessionID, userID).
		Delete(&domain.Session{})
	recordOperation(ctx, "session", "delete_by_id_for_user", res.Error)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *GormSessionRepository) DeleteOthersByUser(ctx context.Context, userID uint, keepHash string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND token_hash <> ?", userID, keepHash).
		Delete(&domain.Session{})
	recordOperation(ctx, "session", "delete_others_by_user", res.Error)
	return res.RowsAffected, res.Error
}

func (r *GormSessionRepository) DeleteByUserID(ctx context.Context, userID uint) (int64, error) {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&domain.Session{})
	recordOperation(ctx, "session", "delete_by_user_id", res.Error)
	return res.RowsAffected, res.Error
}

func (r *GormSessionRepository) DeleteByHash(ctx context.Context, hash string) (bool, error) {
	res := r.db.WithContext(ctx).Where("token_hash = ?", hash).Delete(&domain.Session{})
	recordOperation(ctx, "session", "delete_by_hash", res.Error)
	return res.RowsAffected > 0, res.Error
}

func (r *GormSessionRepository) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.Session{})
	recordOperation(ctx, "session", "cleanup_expired", res.Error)
	return res.RowsAffected, res.Error
}
