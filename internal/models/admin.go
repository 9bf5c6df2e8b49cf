package models

import "time"

// Admin represents the operator console account. The platform has a single
// fixed admin identity; the row exists so console logins can be verified
// against a stored bcrypt hash.
type Admin struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username string `gorm:"type:text;not null;uniqueIndex"` // Unique login name.
	Password string `gorm:"type:text;not null"`             // Hashed password.

	TelegramID int64 `gorm:"not null"` // Messaging identity used for operator alerts.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
