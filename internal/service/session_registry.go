package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sandeepkv93/account-security-service/internal/domain"
	"github.com/sandeepkv93/account-security-service/internal/observability"
	"github.com/sandeepkv93/account-security-service/internal/repository"
	"github.com/sandeepkv93/account-security-service/internal/security"
)

const (
	sessionMissTTL = 10 * time.Minute
	// Touch skips the write when the session was seen this recently.
	touchGranularity = time.Minute
)

type ClientInfo struct {
	UserAgent string
	IP        string
}

type IssuedSession struct {
	Token   string
	Session *domain.Session
}

type SessionView struct {
	ID         uint      `json:"id"`
	Browser    string    `json:"browser"`
	OS         string    `json:"os"`
	Device     string    `json:"device"`
	IsMobile   bool      `json:"is_mobile"`
	UserAgent  string    `json:"user_agent"`
	IP         string    `json:"ip"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	IsCurrent  bool      `json:"is_current"`
}

// SessionRegistry owns the lifecycle of login sessions. The caller's own
// session token is always passed in explicitly; the registry never reads
// cookies or headers.
type SessionRegistry struct {
	repo   repository.SessionRepository
	misses SessionMissCache
	pepper string
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionRegistry(repo repository.SessionRepository, misses SessionMissCache, pepper string, ttl time.Duration) *SessionRegistry {
	if misses == nil {
		misses = NewNoopSessionMissCache()
	}
	return &SessionRegistry{repo: repo, misses: misses, pepper: pepper, ttl: ttl, now: time.Now}
}

func (r *SessionRegistry) TTL() time.Duration { return r.ttl }

func (r *SessionRegistry) Create(ctx context.Context, userID uint, client ClientInfo) (*IssuedSession, error) {
	raw, err := security.NewOpaqueToken()
	if err != nil {
		return nil, err
	}
	now := r.now().UTC()
	fp := security.ParseUserAgent(client.UserAgent)
	s := &domain.Session{
		UserID:     userID,
		TokenHash:  r.hash(raw),
		UserAgent:  truncate(client.UserAgent, 512),
		IP:         truncate(client.IP, 64),
		Browser:    truncate(fp.Browser, 64),
		OS:         truncate(fp.OS, 64),
		Device:     fp.Device,
		IsMobile:   fp.IsMobile,
		ExpiresAt:  now.Add(r.ttl),
		LastSeenAt: now,
		CreatedAt:  now,
	}
	if err := r.repo.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	observability.RecordSessionEvent(ctx, "created", 1)
	return &IssuedSession{Token: raw, Session: s}, nil
}

// Resolve returns the live session for token or ErrSessionNotFound.
func (r *SessionRegistry) Resolve(ctx context.Context, token string) (*domain.Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}
	hash := r.hash(token)
	if known, err := r.misses.Contains(ctx, hash); err != nil {
		slog.WarnContext(ctx, "session miss cache lookup failed", "error", err)
	} else if known {
		return nil, ErrSessionNotFound
	}
	s, err := r.repo.FindActiveByHash(ctx, hash, r.now().UTC())
	if errors.Is(err, repository.ErrSessionNotFound) {
		if err := r.misses.Add(ctx, hash, sessionMissTTL); err != nil {
			slog.WarnContext(ctx, "session miss cache store failed", "error", err)
		}
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	return s, nil
}

// Touch records activity on s and slides its expiry forward once less than
// half of the TTL remains. It reports whether the expiry moved.
func (r *SessionRegistry) Touch(ctx context.Context, s *domain.Session) (bool, error) {
	now := r.now().UTC()
	expiresAt := s.ExpiresAt
	if expiresAt.Sub(now) < r.ttl/2 {
		expiresAt = now.Add(r.ttl)
	}
	extended := !expiresAt.Equal(s.ExpiresAt)
	if !extended && now.Sub(s.LastSeenAt) < touchGranularity {
		return false, nil
	}
	if err := r.repo.Touch(ctx, s.ID, now, expiresAt); err != nil {
		return false, fmt.Errorf("touch session: %w", err)
	}
	s.LastSeenAt = now
	s.ExpiresAt = expiresAt
	return extended, nil
}

// List returns userID's live sessions, latest expiry first, marking the one
// that matches currentToken.
func (r *SessionRegistry) List(ctx context.Context, userID uint, currentToken string) ([]SessionView, error) {
	sessions, err := r.repo.ListActiveByUserID(ctx, userID, r.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	currentHash := ""
	if currentToken != "" {
		currentHash = r.hash(currentToken)
	}
	views := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, SessionView{
			ID:         s.ID,
			Browser:    s.Browser,
			OS:         s.OS,
			Device:     s.Device,
			IsMobile:   s.IsMobile,
			UserAgent:  s.UserAgent,
			IP:         s.IP,
			CreatedAt:  s.CreatedAt,
			LastSeenAt: s.LastSeenAt,
			ExpiresAt:  s.ExpiresAt,
			IsCurrent:  currentHash != "" && s.TokenHash == currentHash,
		})
	}
	return views, nil
}

// Revoke deletes sessionID only when it belongs to userID. A foreign or
// missing id both yield false.
func (r *SessionRegistry) Revoke(ctx context.Context, sessionID, userID uint) (bool, error) {
	deleted, err := r.repo.DeleteByIDForUser(ctx, userID, sessionID)
	if err != nil {
		return false, fmt.Errorf("revoke session: %w", err)
	}
	if deleted {
		observability.RecordSessionEvent(ctx, "revoked", 1)
	}
	return deleted, nil
}

// RevokeAllOthers deletes every session of userID except the one for
// currentToken. An empty currentToken is refused so a caller cannot lock
// itself out by accident.
func (r *SessionRegistry) RevokeAllOthers(ctx context.Context, userID uint, currentToken string) (int64, error) {
	if currentToken == "" {
		return 0, ErrSessionNotFound
	}
	n, err := r.repo.DeleteOthersByUser(ctx, userID, r.hash(currentToken))
	if err != nil {
		return 0, fmt.Errorf("revoke other sessions: %w", err)
	}
	observability.RecordSessionEvent(ctx, "revoked_others", n)
	return n, nil
}

func (r *SessionRegistry) RevokeAll(ctx context.Context, userID uint) (int64, error) {
	n, err := r.repo.DeleteByUserID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke all sessions: %w", err)
	}
	observability.RecordSessionEvent(ctx, "revoked_all", n)
	return n, nil
}

// RevokeToken ends the session identified by token, as on logout.
func (r *SessionRegistry) RevokeToken(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	deleted, err := r.repo.DeleteByHash(ctx, r.hash(token))
	if err != nil {
		return false, fmt.Errorf("revoke session token: %w", err)
	}
	if deleted {
		observability.RecordSessionEvent(ctx, "logout", 1)
	}
	return deleted, nil
}

// IsCurrent reports whether sessionID is the session behind currentToken.
func (r *SessionRegistry) IsCurrent(ctx context.Context, sessionID uint, currentToken string) (bool, error) {
	s, err := r.Resolve(ctx, currentToken)
	if errors.Is(err, ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.ID == sessionID, nil
}

func (r *SessionRegistry) Count(ctx context.Context, userID uint) (int64, error) {
	n, err := r.repo.CountActiveByUserID(ctx, userID, r.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

// Sweep deletes expired sessions. It is safe to run alongside live traffic.
func (r *SessionRegistry) Sweep(ctx context.Context) (int64, error) {
	n, err := r.repo.CleanupExpired(ctx, r.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	return n, nil
}

func (r *SessionRegistry) hash(token string) string {
	return security.HashToken(token, r.pepper)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
