// Package moderation implements code submission and the two-phase review
// flow. Submissions pass rate and duplicate checks before landing in the
// pending queue; reviewers claim a submission and then decide it, and an
// approval credits the submitter and cascades a commission to their
// referrer in the same transaction.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/synkgo/rewards/internal/ledger"
	"github.com/synkgo/rewards/internal/models"
	"github.com/synkgo/rewards/internal/notify"
	"github.com/synkgo/rewards/internal/settings"
	"github.com/synkgo/rewards/internal/store"
)

// Submission limits.
const (
	// SubmitCooldown is the minimum gap between two submissions by one user.
	SubmitCooldown = 5 * time.Minute
	// DailySubmitLimit caps submissions per user per UTC calendar day.
	DailySubmitLimit = 30
	// CodeMinLen and CodeMaxLen bound accepted code length.
	CodeMinLen = 5
	CodeMaxLen = 15
)

// Engine errors.
var (
	ErrBanned          = errors.New("moderation: user is banned")
	ErrInvalidCode     = errors.New("moderation: code must be 5-15 alphanumeric characters")
	ErrCooldown        = errors.New("moderation: submission cooldown active")
	ErrDailyLimit      = errors.New("moderation: daily submission limit reached")
	ErrDuplicateCode   = errors.New("moderation: code already submitted")
	ErrCodeNotFound    = errors.New("moderation: code not found")
	ErrNotPending      = errors.New("moderation: code is not pending")
	ErrAlreadyClaimed  = errors.New("moderation: code claimed by another reviewer")
	ErrNotClaimant     = errors.New("moderation: code not claimed by this reviewer")
	ErrNotModerator    = errors.New("moderation: not a moderator")
	ErrSelfReferral    = errors.New("moderation: cannot use own referral code")
	ErrAlreadyReferred = errors.New("moderation: referrer already set")
	ErrReferrerUnknown = errors.New("moderation: referral code not found")
)

// Engine coordinates submission, review and referral bookkeeping.
type Engine struct {
	store    *store.Store
	notifier notify.Notifier
	adminID  int64
}

// NewEngine creates a moderation engine. adminID always passes the
// reviewer role check.
func NewEngine(st *store.Store, notifier notify.Notifier, adminID int64) *Engine {
	return &Engine{store: st, notifier: notifier, adminID: adminID}
}

// validCodeText reports whether text is acceptable as a submission.
func validCodeText(text string) bool {
	if len(text) < CodeMinLen || len(text) > CodeMaxLen {
		return false
	}
	for _, r := range text {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// utcDay formats t as the UTC calendar day used for the daily counter.
func utcDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Submit records a new pending code for the user identified by telegramID.
func (e *Engine) Submit(ctx context.Context, telegramID int64, codeText string) (*models.Code, error) {
	if !validCodeText(codeText) {
		return nil, ErrInvalidCode
	}

	now := time.Now().UTC()
	var code models.Code
	errTx := e.store.Transact(ctx, func(tx *gorm.DB) error {
		user, errLock := store.LockUserByTelegramID(tx, telegramID)
		if errLock != nil {
			return errLock
		}
		if user.Banned {
			return ErrBanned
		}

		if user.LastSubmissionAt != nil && now.Sub(*user.LastSubmissionAt) < SubmitCooldown {
			return ErrCooldown
		}

		today := utcDay(now)
		if user.SubmissionDay != today {
			user.SubmissionDay = today
			user.SubmissionCount = 0
		}
		if user.SubmissionCount >= DailySubmitLimit {
			return ErrDailyLimit
		}

		var existing int64
		if errCount := tx.Model(&models.Code{}).
			Where("code_text = ?", codeText).
			Count(&existing).Error; errCount != nil {
			return fmt.Errorf("moderation: duplicate check: %w", errCount)
		}
		if existing > 0 {
			return ErrDuplicateCode
		}

		code = models.Code{
			CodeText:    codeText,
			Status:      models.CodeStatusPending,
			SubmitterID: telegramID,
			SubmittedAt: now,
		}
		if errCreate := tx.Create(&code).Error; errCreate != nil {
			return fmt.Errorf("moderation: create code: %w", errCreate)
		}

		user.SubmissionCount++
		user.LastSubmissionAt = &now
		if errSave := tx.Save(user).Error; errSave != nil {
			return fmt.Errorf("moderation: save user: %w", errSave)
		}
		return nil
	})
	if errTx != nil {
		e.alertStorage(ctx, "code submission", errTx)
		return nil, errTx
	}

	log.WithFields(log.Fields{
		"code_id":   code.ID,
		"submitter": telegramID,
	}).Info("code submitted")
	return &code, nil
}

// PendingCodes lists unclaimed and claimed pending submissions, oldest
// first.
func (e *Engine) PendingCodes(ctx context.Context, limit int) ([]models.Code, error) {
	if limit <= 0 {
		limit = 50
	}
	var codes []models.Code
	errFind := e.store.DB().WithContext(ctx).
		Where("status = ?", models.CodeStatusPending).
		Order("submitted_at ASC").
		Limit(limit).
		Find(&codes).Error
	if errFind != nil {
		return nil, fmt.Errorf("moderation: list pending: %w", errFind)
	}
	return codes, nil
}

// IsReviewer reports whether telegramID may claim and decide codes.
func (e *Engine) IsReviewer(ctx context.Context, telegramID int64) (bool, error) {
	if telegramID == e.adminID {
		return true, nil
	}
	var count int64
	errCount := e.store.DB().WithContext(ctx).
		Model(&models.Moderator{}).
		Where("telegram_id = ? AND active = ?", telegramID, true).
		Count(&count).Error
	if errCount != nil {
		return false, fmt.Errorf("moderation: reviewer check: %w", errCount)
	}
	return count > 0, nil
}

// ClaimForDecision locks a pending code to one reviewer. Claiming a code
// already held by the same reviewer is a no-op.
func (e *Engine) ClaimForDecision(ctx context.Context, codeID uint64, reviewerID int64) (*models.Code, error) {
	ok, errRole := e.IsReviewer(ctx, reviewerID)
	if errRole != nil {
		return nil, errRole
	}
	if !ok {
		return nil, ErrNotModerator
	}

	var code models.Code
	errTx := e.store.Transact(ctx, func(tx *gorm.DB) error {
		errFind := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&code, "id = ?", codeID).Error
		if errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrCodeNotFound
			}
			return fmt.Errorf("moderation: find code: %w", errFind)
		}
		if code.Status != models.CodeStatusPending {
			return ErrNotPending
		}
		if code.LockedBy != nil {
			if *code.LockedBy == reviewerID {
				return nil
			}
			return ErrAlreadyClaimed
		}
		code.LockedBy = &reviewerID
		if errSave := tx.Save(&code).Error; errSave != nil {
			return fmt.Errorf("moderation: save claim: %w", errSave)
		}
		return nil
	})
	if errTx != nil {
		e.alertStorage(ctx, "code claim", errTx)
		return nil, errTx
	}
	return &code, nil
}

// ReleaseClaim unlocks a pending code held by reviewerID without deciding
// it.
func (e *Engine) ReleaseClaim(ctx context.Context, codeID uint64, reviewerID int64) error {
	errTx := e.store.Transact(ctx, func(tx *gorm.DB) error {
		var code models.Code
		errFind := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&code, "id = ?", codeID).Error
		if errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrCodeNotFound
			}
			return fmt.Errorf("moderation: find code: %w", errFind)
		}
		if code.Status != models.CodeStatusPending {
			return ErrNotPending
		}
		if code.LockedBy == nil || *code.LockedBy != reviewerID {
			return ErrNotClaimant
		}
		code.LockedBy = nil
		if errSave := tx.Save(&code).Error; errSave != nil {
			return fmt.Errorf("moderation: save release: %w", errSave)
		}
		return nil
	})
	if errTx != nil {
		e.alertStorage(ctx, "claim release", errTx)
	}
	return errTx
}

// Decide finalizes a claimed code. Approval credits the submitter the
// configured reward and, when a referrer exists, a commission of
// round(reward * rate), all inside one transaction.
func (e *Engine) Decide(ctx context.Context, codeID uint64, reviewerID int64, approve bool) (*models.Code, error) {
	ok, errRole := e.IsReviewer(ctx, reviewerID)
	if errRole != nil {
		return nil, errRole
	}
	if !ok {
		return nil, ErrNotModerator
	}

	reward := settings.RewardPerCode()
	rate := settings.ReferralRate()

	var code models.Code
	var submitterID int64
	var commission int64
	var referrerID int64
	errTx := e.store.Transact(ctx, func(tx *gorm.DB) error {
		errFind := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&code, "id = ?", codeID).Error
		if errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrCodeNotFound
			}
			return fmt.Errorf("moderation: find code: %w", errFind)
		}
		if code.Status != models.CodeStatusPending {
			return ErrNotPending
		}
		if code.LockedBy == nil || *code.LockedBy != reviewerID {
			return ErrNotClaimant
		}

		now := time.Now().UTC()
		code.ProcessedAt = &now
		code.LockedBy = nil
		if !approve {
			code.Status = models.CodeStatusRejected
			if errSave := tx.Save(&code).Error; errSave != nil {
				return fmt.Errorf("moderation: save decision: %w", errSave)
			}
			return nil
		}

		code.Status = models.CodeStatusApproved
		submitterID = code.SubmitterID

		submitter, errLock := store.LockUserByTelegramID(tx, code.SubmitterID)
		if errLock != nil {
			return errLock
		}
		if errCredit := ledger.Credit(submitter, reward); errCredit != nil {
			return errCredit
		}
		if errSave := tx.Save(submitter).Error; errSave != nil {
			return fmt.Errorf("moderation: save submitter: %w", errSave)
		}

		if submitter.ReferredBy != nil && *submitter.ReferredBy != "" {
			commission = int64(math.Round(float64(reward) * rate))
			if commission > 0 {
				var referrer models.User
				errRef := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
					First(&referrer, "referral_code = ?", *submitter.ReferredBy).Error
				switch {
				case errors.Is(errRef, gorm.ErrRecordNotFound):
					commission = 0
				case errRef != nil:
					return fmt.Errorf("moderation: find referrer: %w", errRef)
				default:
					if errCredit := ledger.Credit(&referrer, commission); errCredit != nil {
						return errCredit
					}
					referrer.ReferralCommission += commission
					if errSave := tx.Save(&referrer).Error; errSave != nil {
						return fmt.Errorf("moderation: save referrer: %w", errSave)
					}
					referrerID = referrer.TelegramID
				}
			}
		}

		if errSave := tx.Save(&code).Error; errSave != nil {
			return fmt.Errorf("moderation: save decision: %w", errSave)
		}
		return nil
	})
	if errTx != nil {
		e.alertStorage(ctx, "code decision", errTx)
		return nil, errTx
	}

	if approve {
		log.WithFields(log.Fields{
			"code_id":    code.ID,
			"reviewer":   reviewerID,
			"reward":     reward,
			"commission": commission,
		}).Info("code approved")
		e.notifier.NotifyUser(ctx, submitterID,
			fmt.Sprintf("Your code was approved. %d points credited.", reward))
		if commission > 0 && referrerID != 0 {
			e.notifier.NotifyUser(ctx, referrerID,
				fmt.Sprintf("Referral commission: %d points credited.", commission))
		}
	} else {
		log.WithFields(log.Fields{
			"code_id":  code.ID,
			"reviewer": reviewerID,
		}).Info("code rejected")
		e.notifier.NotifyUser(ctx, code.SubmitterID, "Your code was rejected.")
	}
	return &code, nil
}

// AttachReferrer binds a referral code to a user on first use. The binding
// is permanent and self-referral is refused.
func (e *Engine) AttachReferrer(ctx context.Context, telegramID int64, referralCode string) error {
	errTx := e.store.Transact(ctx, func(tx *gorm.DB) error {
		user, errLock := store.LockUserByTelegramID(tx, telegramID)
		if errLock != nil {
			return errLock
		}
		if user.ReferralCode == referralCode {
			return ErrSelfReferral
		}
		if user.ReferredBy != nil && *user.ReferredBy != "" {
			return ErrAlreadyReferred
		}

		var referrer models.User
		errRef := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&referrer, "referral_code = ?", referralCode).Error
		if errRef != nil {
			if errors.Is(errRef, gorm.ErrRecordNotFound) {
				return ErrReferrerUnknown
			}
			return fmt.Errorf("moderation: find referrer: %w", errRef)
		}

		user.ReferredBy = &referralCode
		if errSave := tx.Save(user).Error; errSave != nil {
			return fmt.Errorf("moderation: save user: %w", errSave)
		}
		if errAppend := referrer.AppendReferral(telegramID); errAppend != nil {
			return errAppend
		}
		if errSave := tx.Save(&referrer).Error; errSave != nil {
			return fmt.Errorf("moderation: save referrer: %w", errSave)
		}
		return nil
	})
	if errTx != nil {
		e.alertStorage(ctx, "referrer attach", errTx)
		return errTx
	}

	log.WithFields(log.Fields{
		"user":     telegramID,
		"referral": referralCode,
	}).Info("referrer attached")
	return nil
}

// alertStorage raises an operator alert for unexpected storage errors.
// Business rejections pass through quietly.
func (e *Engine) alertStorage(ctx context.Context, op string, err error) {
	notify.AlertStorageFailure(ctx, e.notifier, op, err,
		ErrBanned, ErrInvalidCode, ErrCooldown, ErrDailyLimit, ErrDuplicateCode,
		ErrCodeNotFound, ErrNotPending, ErrAlreadyClaimed, ErrNotClaimant,
		ErrNotModerator, ErrSelfReferral, ErrAlreadyReferred, ErrReferrerUnknown,
		store.ErrUserNotFound, ledger.ErrNonPositiveAmount)
}
