package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// User represents a platform participant and their point ledger.
//
// Balance and TotalEarned are tracked separately: Balance moves in both
// directions while TotalEarned only ever grows. Every mutation happens
// inside a transaction with the row locked FOR UPDATE.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	TelegramID int64 `gorm:"not null;uniqueIndex"` // Messaging identity.

	Balance     int64 `gorm:"not null;default:0"` // Spendable points, never negative.
	TotalEarned int64 `gorm:"not null;default:0"` // Lifetime credited points, monotonic.

	SubmissionCount  int        `gorm:"not null;default:0"`   // Codes submitted during SubmissionDay.
	SubmissionDay    string     `gorm:"type:text;default:''"` // UTC day the counter belongs to, YYYY-MM-DD.
	LastSubmissionAt *time.Time // Time of the most recent submission.

	ReferralCode       string         `gorm:"type:text;not null;uniqueIndex"` // Shareable invite code.
	ReferredBy         *string        // Referral code used at signup, if any.
	Referrals          datatypes.JSON `gorm:"default:'[]'"`       // Messaging ids of referred users.
	ReferralCommission int64          `gorm:"not null;default:0"` // Lifetime commission earned.

	Banned          bool `gorm:"not null;default:false"` // Blocked from all operations.
	WithdrawalCount int  `gorm:"not null;default:0"`     // Completed withdrawals.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// ReferralCodeFor derives the canonical referral code for a messaging id.
func ReferralCodeFor(telegramID int64) string {
	return fmt.Sprintf("REF%d", telegramID)
}

// ReferralIDs decodes the referred-user list.
func (u *User) ReferralIDs() []int64 {
	if len(u.Referrals) == 0 {
		return nil
	}
	var ids []int64
	if err := json.Unmarshal(u.Referrals, &ids); err != nil {
		return nil
	}
	return ids
}

// AppendReferral records a newly referred user.
func (u *User) AppendReferral(telegramID int64) error {
	ids := u.ReferralIDs()
	for _, id := range ids {
		if id == telegramID {
			return nil
		}
	}
	ids = append(ids, telegramID)
	raw, errMarshal := json.Marshal(ids)
	if errMarshal != nil {
		return fmt.Errorf("models: marshal referrals: %w", errMarshal)
	}
	u.Referrals = datatypes.JSON(raw)
	return nil
}
