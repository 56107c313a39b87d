package model

import "time"

// Session is a signed-in portal user. The backend bearer token lives here so
// browsers only ever hold the opaque session id.
type Session struct {
	ID        string    `gorm:"primaryKey;size:36"`
	UserID    int64     `gorm:"index;not null"`
	Role      string    `gorm:"size:16;not null"`
	Name      string    `gorm:"size:255"`
	Email     string    `gorm:"size:255"`
	Token     string    `gorm:"not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
