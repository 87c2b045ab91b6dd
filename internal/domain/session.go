package domain

import "time"

type Session struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"index;not null" json:"user_id"`
	TokenHash  string    `gorm:"size:128;uniqueIndex;not null" json:"-"`
	UserAgent  string    `gorm:"size:512" json:"user_agent"`
	IP         string    `gorm:"size:64" json:"ip"`
	Browser    string    `gorm:"size:64" json:"browser"`
	OS         string    `gorm:"size:64" json:"os"`
	Device     string    `gorm:"size:32" json:"device"`
	IsMobile   bool      `json:"is_mobile"`
	ExpiresAt  time.Time `gorm:"index;not null" json:"expires_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// Active reports whether the session can still authenticate requests at now.
func (s *Session) Active(now time.Time) bool {
	return s != nil && s.ExpiresAt.After(now)
}
