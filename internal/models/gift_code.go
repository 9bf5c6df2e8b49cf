package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// GiftCode is an operator-created promotional code redeemable for points a
// bounded number of times, at most once per user.
type GiftCode struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	CodeText      string `gorm:"type:text;not null;uniqueIndex"` // Redeemable code.
	PointsAwarded int64  `gorm:"not null"`                       // Points granted per claim.

	MaxClaims   int            `gorm:"not null"`           // Claim capacity.
	ClaimsSoFar int            `gorm:"not null;default:0"` // Claims consumed.
	Claimants   datatypes.JSON `gorm:"default:'[]'"`       // Messaging ids that have claimed.

	CreatedBy int64     `gorm:"not null"`                // Operator who created the code.
	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// ClaimantIDs decodes the claimant list.
func (g *GiftCode) ClaimantIDs() []int64 {
	if len(g.Claimants) == 0 {
		return nil
	}
	var ids []int64
	if err := json.Unmarshal(g.Claimants, &ids); err != nil {
		return nil
	}
	return ids
}

// HasClaimed reports whether the user already redeemed this code.
func (g *GiftCode) HasClaimed(telegramID int64) bool {
	for _, id := range g.ClaimantIDs() {
		if id == telegramID {
			return true
		}
	}
	return false
}

// AppendClaimant records a successful claim.
func (g *GiftCode) AppendClaimant(telegramID int64) error {
	ids := append(g.ClaimantIDs(), telegramID)
	raw, errMarshal := json.Marshal(ids)
	if errMarshal != nil {
		return fmt.Errorf("models: marshal claimants: %w", errMarshal)
	}
	g.Claimants = datatypes.JSON(raw)
	return nil
}
