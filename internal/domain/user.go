package domain

import "time"

type User struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Email           string     `gorm:"size:320;uniqueIndex;not null" json:"email"`
	Name            string     `gorm:"size:200" json:"name"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (u *User) EmailVerified() bool {
	return u != nil && u.EmailVerifiedAt != nil
}
