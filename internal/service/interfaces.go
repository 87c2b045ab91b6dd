package service

import (
	"context"

	"github.com/sandeepkv93/account-security-service/internal/domain"
)

// PasswordVerifier is satisfied by *security.PasswordHasher.
type PasswordVerifier interface {
	Compare(hash, password string) error
	CompareDummy(password string)
}

type PasswordHasher interface {
	PasswordVerifier
	Hash(password string) (string, error)
}

type AuthServiceInterface interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	CompleteTwoFactor(ctx context.Context, req TwoFactorRequest) (*LoginResult, error)
	Logout(ctx context.Context, token string) error
}

type AccountServiceInterface interface {
	Register(ctx context.Context, in RegisterInput) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	RequestEmailVerification(ctx context.Context, email string) error
	ResendOwnEmailVerification(ctx context.Context, userID uint) error
	RequestEmailChange(ctx context.Context, userID uint, newEmail string) error
	VerifyEmail(ctx context.Context, token string) (*domain.User, error)
	BeginTwoFactor(ctx context.Context, userID uint) (*Enrollment, error)
	ConfirmTwoFactor(ctx context.Context, userID uint, code string) ([]string, error)
	DisableTwoFactor(ctx context.Context, userID uint, password string) error
	RegenerateBackupCodes(ctx context.Context, userID uint, password string) ([]string, error)
	TwoFactorStatus(ctx context.Context, userID uint) (domain.TwoFactorState, int, error)
	ListSessions(ctx context.Context, userID uint, currentToken string) ([]SessionView, error)
	RevokeSession(ctx context.Context, userID, sessionID uint, currentToken string) error
	RevokeOtherSessions(ctx context.Context, userID uint, currentToken string) (int64, error)
}

// SessionResolver is what the authentication middleware needs.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*domain.Session, error)
	Touch(ctx context.Context, s *domain.Session) (bool, error)
}

var (
	_ AuthServiceInterface    = (*AuthenticationCoordinator)(nil)
	_ AccountServiceInterface = (*AccountService)(nil)
	_ SessionResolver         = (*SessionRegistry)(nil)
)
