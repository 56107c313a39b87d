package model

import "time"

// PushSubscription holds the information for a browser push subscription.
// Role is denormalized from the session so manager broadcasts need no join.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	UserID    int64     `gorm:"index;not null"`
	Role      string    `gorm:"size:16;index;not null"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}
