package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sandeepkv93/account-security-service/internal/domain"
	"github.com/sandeepkv93/account-security-service/internal/repository"
)

type fakeUserRepo struct {
	mu     sync.Mutex
	nextID uint
	byID   map[uint]*domain.User
	creds  *fakeCredentialRepo
}

func newFakeUserRepo(creds *fakeCredentialRepo) *fakeUserRepo {
	return &fakeUserRepo{nextID: 1, byID: map[uint]*domain.User{}, creds: creds}
}

func (r *fakeUserRepo) FindByID(_ context.Context, id uint) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email = repository.NormalizeEmail(email)
	for _, u := range r.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r *fakeUserRepo) CreateWithCredential(_ context.Context, user *domain.User, cred *domain.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.Email = repository.NormalizeEmail(user.Email)
	for _, u := range r.byID {
		if u.Email == user.Email {
			return repository.ErrEmailTaken
		}
	}
	user.ID = r.nextID
	r.nextID++
	cp := *user
	r.byID[user.ID] = &cp
	cred.UserID = user.ID
	if cred.TwoFactorState == "" {
		cred.TwoFactorState = domain.TwoFactorDisabled
	}
	cred.Version = 1
	r.creds.put(cred)
	return nil
}

func (r *fakeUserRepo) MarkEmailVerified(_ context.Context, userID uint, email string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	if email != "" {
		email = repository.NormalizeEmail(email)
		for id, other := range r.byID {
			if id != userID && other.Email == email {
				return repository.ErrEmailTaken
			}
		}
		u.Email = email
	}
	u.EmailVerifiedAt = &at
	return nil
}

type fakeCredentialRepo struct {
	mu      sync.Mutex
	byUser  map[uint]domain.Credential
	updates int
}

func newFakeCredentialRepo() *fakeCredentialRepo {
	return &fakeCredentialRepo{byUser: map[uint]domain.Credential{}}
}

func (r *fakeCredentialRepo) put(c *domain.Credential) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	cp.BackupCodes = append([]string(nil), c.BackupCodes...)
	r.byUser[c.UserID] = cp
}

func (r *fakeCredentialRepo) FindByUserID(_ context.Context, userID uint) (*domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byUser[userID]
	if !ok {
		return nil, repository.ErrCredentialNotFound
	}
	c.BackupCodes = append([]string(nil), c.BackupCodes...)
	return &c, nil
}

func (r *fakeCredentialRepo) Update(_ context.Context, c *domain.Credential) error {
	if err := c.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byUser[c.UserID]
	if !ok || stored.Version != c.Version {
		return repository.ErrCredentialConflict
	}
	c.Version++
	cp := *c
	cp.BackupCodes = append([]string(nil), c.BackupCodes...)
	r.byUser[c.UserID] = cp
	r.updates++
	return nil
}

type fakeTokenRepo struct {
	mu     sync.Mutex
	nextID uint
	byHash map[string]*domain.SecurityToken
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{nextID: 1, byHash: map[string]*domain.SecurityToken{}}
}

func (r *fakeTokenRepo) Replace(_ context.Context, t *domain.SecurityToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for h, existing := range r.byHash {
		if existing.UserID == t.UserID && existing.Purpose == t.Purpose && existing.UsedAt == nil {
			delete(r.byHash, h)
		}
	}
	t.ID = r.nextID
	r.nextID++
	cp := *t
	r.byHash[t.TokenHash] = &cp
	return nil
}

func (r *fakeTokenRepo) FindByHash(_ context.Context, hash string) (*domain.SecurityToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byHash[hash]
	if !ok {
		return nil, repository.ErrSecurityTokenNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTokenRepo) MarkUsed(_ context.Context, hash string, now time.Time) (*domain.SecurityToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byHash[hash]
	if !ok {
		return nil, repository.ErrSecurityTokenNotFound
	}
	if t.UsedAt != nil {
		return nil, repository.ErrSecurityTokenUsed
	}
	if !t.ExpiresAt.After(now) {
		return nil, repository.ErrSecurityTokenExpired
	}
	t.UsedAt = &now
	for h, other := range r.byHash {
		if h != hash && other.UserID == t.UserID && other.Purpose == t.Purpose && other.UsedAt == nil {
			delete(r.byHash, h)
		}
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTokenRepo) DeleteByHash(_ context.Context, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byHash, hash)
	return nil
}

func (r *fakeTokenRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for h, t := range r.byHash {
		if !t.ExpiresAt.After(now) {
			delete(r.byHash, h)
			n++
		}
	}
	return n, nil
}

func (r *fakeTokenRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byHash)
}

type fakeSessionRepo struct {
	mu      sync.Mutex
	nextID  uint
	byID    map[uint]*domain.Session
	lookups int
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{nextID: 1, byID: map[uint]*domain.Session{}}
}

func (r *fakeSessionRepo) Create(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.ID = r.nextID
	r.nextID++
	cp := *s
	r.byID[s.ID] = &cp
	return nil
}

func (r *fakeSessionRepo) FindActiveByHash(_ context.Context, hash string, now time.Time) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	for _, s := range r.byID {
		if s.TokenHash == hash && s.ExpiresAt.After(now) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, repository.ErrSessionNotFound
}

func (r *fakeSessionRepo) ListActiveByUserID(_ context.Context, userID uint, now time.Time) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Session
	for _, s := range r.byID {
		if s.UserID == userID && s.ExpiresAt.After(now) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].ExpiresAt.After(out[j].ExpiresAt)
	})
	return out, nil
}

func (r *fakeSessionRepo) CountActiveByUserID(ctx context.Context, userID uint, now time.Time) (int64, error) {
	list, _ := r.ListActiveByUserID(ctx, userID, now)
	return int64(len(list)), nil
}

func (r *fakeSessionRepo) Touch(_ context.Context, sessionID uint, lastSeenAt, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[sessionID]
	if !ok {
		return repository.ErrSessionNotFound
	}
	s.LastSeenAt = lastSeenAt
	s.ExpiresAt = expiresAt
	return nil
}

func (r *fakeSessionRepo) DeleteByIDForUser(_ context.Context, userID, sessionID uint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[sessionID]
	if !ok || s.UserID != userID {
		return false, nil
	}
	delete(r.byID, sessionID)
	return true, nil
}

func (r *fakeSessionRepo) DeleteOthersByUser(_ context.Context, userID uint, keepHash string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.byID {
		if s.UserID == userID && s.TokenHash != keepHash {
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}

func (r *fakeSessionRepo) DeleteByUserID(_ context.Context, userID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.byID {
		if s.UserID == userID {
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}

func (r *fakeSessionRepo) DeleteByHash(_ context.Context, hash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.byID {
		if s.TokenHash == hash {
			delete(r.byID, id)
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeSessionRepo) CleanupExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.byID {
		if !s.ExpiresAt.After(now) {
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []EmailMessage
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg EmailMessage) (EmailReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return EmailReceipt{}, m.err
	}
	m.sent = append(m.sent, msg)
	return EmailReceipt{ID: "r"}, nil
}

func (m *recordingMailer) messages() []EmailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EmailMessage(nil), m.sent...)
}

// plainSealer is a reversible stand-in for CryptoBox in engine tests that do
// not care about ciphertext format.
type plainSealer struct{}

func (plainSealer) Encrypt(p string) (string, error) { return "sealed:" + p, nil }

func (plainSealer) Decrypt(c string) (string, error) {
	if len(c) < 7 || c[:7] != "sealed:" {
		return "", errMalformedSealed
	}
	return c[7:], nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errMalformedSealed = errors.New("malformed sealed value")
