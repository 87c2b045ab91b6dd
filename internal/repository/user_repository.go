package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sandeepkv93/account-security-service/internal/domain"

	"gorm.io/gorm"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
)

type UserRepository interface {
	FindByID(ctx context.Context, id uint) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	CreateWithCredential(ctx context.Context, user *domain.User, cred *domain.Credential) error
	MarkEmailVerified(ctx context.Context, userID uint, email string, at time.Time) error
}

type GormUserRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &GormUserRepository{db: db} }

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *GormUserRepository) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrUserNotFound
	}
	recordOperation(ctx, "user", "find_by_id", err, ErrUserNotFound)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *GormUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrUserNotFound
	}
	recordOperation(ctx, "user", "find_by_email", err, ErrUserNotFound)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *GormUserRepository) CreateWithCredential(ctx context.Context, user *domain.User, cred *domain.Credential) error {
	user.Email = NormalizeEmail(user.Email)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrEmailTaken
			}
			return err
		}
		cred.UserID = user.ID
		if cred.TwoFactorState == "" {
			cred.TwoFactorState = domain.TwoFactorDisabled
		}
		if cred.Version == 0 {
			cred.Version = 1
		}
		return tx.Create(cred).Error
	})
	recordOperation(ctx, "user", "create_with_credential", err)
	return err
}

// MarkEmailVerified stamps the verification time and, for email-change
// flows, moves the account to email in the same statement.
func (r *GormUserRepository) MarkEmailVerified(ctx context.Context, userID uint, email string, at time.Time) error {
	updates := map[string]any{"email_verified_at": at}
	if email != "" {
		updates["email"] = NormalizeEmail(email)
	}
	res := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", userID).Updates(updates)
	err := res.Error
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		err = ErrEmailTaken
	case err == nil && res.RowsAffected == 0:
		err = ErrUserNotFound
	}
	recordOperation(ctx, "user", "mark_email_verified", err, ErrUserNotFound)
	return err
}
