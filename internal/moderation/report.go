package moderation

import (
	"context"
	"fmt"
	"time"

	"github.com/synkgo/rewards/internal/models"
)

// ReferralStanding summarizes one referred user's output for today.
type ReferralStanding struct {
	TelegramID    int64 `json:"telegram_id"`
	ApprovedToday int64 `json:"approved_today"`
	Active        bool  `json:"active"`
}

// ReferralReport describes a referrer's downline.
type ReferralReport struct {
	ReferralCode string             `json:"referral_code"`
	Total        int                `json:"total"`
	ActiveCount  int                `json:"active_count"`
	Commission   int64              `json:"commission"`
	Referrals    []ReferralStanding `json:"referrals"`
}

// ActiveReferrals reports how each user referred by telegramID performed
// today. A referral counts as active once their approved submissions reach
// the daily limit.
func (e *Engine) ActiveReferrals(ctx context.Context, telegramID int64) (*ReferralReport, error) {
	user, errUser := e.store.GetUser(ctx, telegramID)
	if errUser != nil {
		return nil, errUser
	}

	report := &ReferralReport{
		ReferralCode: user.ReferralCode,
		Commission:   user.ReferralCommission,
	}

	dayStart := time.Now().UTC().Truncate(24 * time.Hour)
	for _, refID := range user.ReferralIDs() {
		var approved int64
		errCount := e.store.DB().WithContext(ctx).
			Model(&models.Code{}).
			Where("submitter_id = ? AND status = ? AND processed_at >= ?",
				refID, models.CodeStatusApproved, dayStart).
			Count(&approved).Error
		if errCount != nil {
			return nil, fmt.Errorf("moderation: count approvals: %w", errCount)
		}

		standing := ReferralStanding{
			TelegramID:    refID,
			ApprovedToday: approved,
			Active:        approved >= DailySubmitLimit,
		}
		if standing.Active {
			report.ActiveCount++
		}
		report.Referrals = append(report.Referrals, standing)
	}
	report.Total = len(report.Referrals)
	return report, nil
}
