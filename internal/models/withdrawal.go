package models

import "time"

// Withdrawal states.
const (
	WithdrawalStatusPending    = "pending"
	WithdrawalStatusProcessing = "processing"
	WithdrawalStatusCompleted  = "completed"
	WithdrawalStatusFailed     = "failed"
	WithdrawalStatusRejected   = "rejected"
)

// Withdrawal tracks a payout request from reservation to settlement.
//
// The user's points are debited when the row is created; failed and
// rejected withdrawals refund that reservation exactly once.
type Withdrawal struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	WithdrawalID string `gorm:"type:text;not null;uniqueIndex"` // External id, wd_<unix>_<user>_<rand>.
	UserID       int64  `gorm:"not null;index"`                 // Messaging id of the requester.

	Points        int64  `gorm:"not null"`                      // Reserved points.
	PayoutAddress string `gorm:"type:text;not null"`            // Destination address.
	Status        string `gorm:"type:text;not null;index"`      // Lifecycle state.
	TxHash        string `gorm:"type:text;not null;default:''"` // On-chain transaction hash.
	FailReason    string `gorm:"type:text;not null;default:''"` // Reason for failure or rejection.

	CreatedAt   time.Time  `gorm:"not null;autoCreateTime"` // Request timestamp.
	ProcessedAt *time.Time // Settlement timestamp.
}

// Terminal reports whether the withdrawal has reached a final state.
func (w *Withdrawal) Terminal() bool {
	switch w.Status {
	case WithdrawalStatusCompleted, WithdrawalStatusFailed, WithdrawalStatusRejected:
		return true
	}
	return false
}
