package security

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const challengeTokenType = "two_factor_challenge"

var ErrInvalidChallenge = errors.New("invalid two-factor challenge")

// Claims binds a challenge to the credential version it was issued against.
// Any credential write (password change, accepted second factor, 2FA reset)
// advances the version and so retires outstanding tickets.
type Claims struct {
	TokenType         string `json:"token_type"`
	CredentialVersion int64  `json:"cv"`
	jwt.RegisteredClaims
}

// UserID returns the numeric subject of the claims.
func (c *Claims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidChallenge
	}
	return uint(id), nil
}

// JWTManager signs the short-lived ticket handed out when a login stops at
// the second factor. The ticket proves the password step already passed.
type JWTManager struct {
	issuer   string
	audience string
	secret   []byte
	now      func() time.Time
}

func NewJWTManager(issuer, audience, secret string) *JWTManager {
	return &JWTManager{
		issuer:   issuer,
		audience: audience,
		secret:   []byte(secret),
		now:      time.Now,
	}
}

func (m *JWTManager) SignChallenge(userID uint, credentialVersion int64, ttl time.Duration) (string, error) {
	now := m.now()
	claims := Claims{
		TokenType:         challengeTokenType,
		CredentialVersion: credentialVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   fmt.Sprintf("%d", userID),
			Audience:  []string{m.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *JWTManager) ParseChallenge(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithAudience(m.audience), jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChallenge, err)
	}
	if !tok.Valid || claims.TokenType != challengeTokenType {
		return nil, ErrInvalidChallenge
	}
	return claims, nil
}
