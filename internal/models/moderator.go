package models

import "time"

// Moderator grants a messaging identity the right to review code
// submissions. Rows are soft-disabled via Active rather than deleted so
// the audit trail survives.
type Moderator struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	TelegramID int64 `gorm:"not null;uniqueIndex"`  // Messaging identity.
	Active     bool  `gorm:"not null;default:true"` // Whether the grant is live.
	AddedBy    int64 `gorm:"not null"`              // Operator who granted the role.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
