package models

import "time"

// Code moderation states.
const (
	CodeStatusPending  = "pending"
	CodeStatusApproved = "approved"
	CodeStatusRejected = "rejected"
)

// Code is a user-submitted reward code awaiting moderation.
//
// LockedBy implements the claim phase of moderation: a reviewer claims a
// pending code before deciding it, so two reviewers never decide the same
// submission.
type Code struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	CodeText string `gorm:"type:text;not null;uniqueIndex"`           // Submitted code, globally unique.
	Status   string `gorm:"type:text;not null;default:pending;index"` // pending, approved or rejected.

	SubmitterID int64     `gorm:"not null;index"`          // Messaging id of the submitter.
	SubmittedAt time.Time `gorm:"not null;autoCreateTime"` // Submission timestamp.

	LockedBy    *int64     // Reviewer holding the claim, nil when unclaimed.
	ProcessedAt *time.Time // Decision timestamp.
}

// Terminal reports whether the code has reached a final state.
func (c *Code) Terminal() bool {
	return c.Status == CodeStatusApproved || c.Status == CodeStatusRejected
}
