// Package gift implements promotional code redemption. A claim checks the
// remaining capacity and the per-user once rule, credits the points and
// appends the claimant inside one transaction.
package gift

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/synkgo/rewards/internal/ledger"
	"github.com/synkgo/rewards/internal/models"
	"github.com/synkgo/rewards/internal/notify"
	"github.com/synkgo/rewards/internal/store"
)

// Engine errors.
var (
	ErrNotFound       = errors.New("gift: code not found")
	ErrExhausted      = errors.New("gift: code fully claimed")
	ErrAlreadyClaimed = errors.New("gift: already claimed by this user")
	ErrBanned         = errors.New("gift: user is banned")
	ErrBadParams      = errors.New("gift: points and max claims must be positive")
)

// Engine handles gift code creation and redemption.
type Engine struct {
	store    *store.Store
	notifier notify.Notifier
}

// NewEngine creates a gift engine.
func NewEngine(st *store.Store, notifier notify.Notifier) *Engine {
	return &Engine{store: st, notifier: notifier}
}

// Create stores a new gift code. An empty codeText gets a generated serial.
func (e *Engine) Create(ctx context.Context, createdBy int64, codeText string, points int64, maxClaims int) (*models.GiftCode, error) {
	if points <= 0 || maxClaims <= 0 {
		return nil, ErrBadParams
	}
	codeText = strings.TrimSpace(codeText)
	if codeText == "" {
		codeText = "GIFT-" + strings.ToUpper(uuid.NewString()[:8])
	}

	code := models.GiftCode{
		CodeText:      codeText,
		PointsAwarded: points,
		MaxClaims:     maxClaims,
		CreatedBy:     createdBy,
	}
	errCreate := e.store.DB().WithContext(ctx).Create(&code).Error
	if errCreate != nil {
		errCreate = fmt.Errorf("gift: create: %w", errCreate)
		e.alertStorage(ctx, "gift creation", errCreate)
		return nil, errCreate
	}

	log.WithFields(log.Fields{
		"gift_id":    code.ID,
		"points":     points,
		"max_claims": maxClaims,
	}).Info("gift code created")
	return &code, nil
}

// List returns gift codes, newest first.
func (e *Engine) List(ctx context.Context, limit int) ([]models.GiftCode, error) {
	if limit <= 0 {
		limit = 50
	}
	var codes []models.GiftCode
	errFind := e.store.DB().WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&codes).Error
	if errFind != nil {
		return nil, fmt.Errorf("gift: list: %w", errFind)
	}
	return codes, nil
}

// Claim redeems codeText for the user identified by telegramID and returns
// the points credited.
func (e *Engine) Claim(ctx context.Context, telegramID int64, codeText string) (int64, error) {
	var awarded int64
	errTx := e.store.Transact(ctx, func(tx *gorm.DB) error {
		var code models.GiftCode
		errFind := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&code, "code_text = ?", strings.TrimSpace(codeText)).Error
		if errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("gift: find code: %w", errFind)
		}
		if code.ClaimsSoFar >= code.MaxClaims {
			return ErrExhausted
		}
		if code.HasClaimed(telegramID) {
			return ErrAlreadyClaimed
		}

		user, errLock := store.LockUserByTelegramID(tx, telegramID)
		if errLock != nil {
			return errLock
		}
		if user.Banned {
			return ErrBanned
		}

		if errCredit := ledger.Credit(user, code.PointsAwarded); errCredit != nil {
			return errCredit
		}
		if errSave := tx.Save(user).Error; errSave != nil {
			return fmt.Errorf("gift: save user: %w", errSave)
		}

		code.ClaimsSoFar++
		if errAppend := code.AppendClaimant(telegramID); errAppend != nil {
			return errAppend
		}
		if errSave := tx.Save(&code).Error; errSave != nil {
			return fmt.Errorf("gift: save code: %w", errSave)
		}

		awarded = code.PointsAwarded
		return nil
	})
	if errTx != nil {
		e.alertStorage(ctx, "gift claim", errTx)
		return 0, errTx
	}

	log.WithFields(log.Fields{
		"user":   telegramID,
		"points": awarded,
	}).Info("gift code claimed")
	e.notifier.NotifyUser(ctx, telegramID,
		fmt.Sprintf("Gift claimed: %d points credited.", awarded))
	return awarded, nil
}

// alertStorage raises an operator alert for unexpected storage errors.
// Business rejections pass through quietly.
func (e *Engine) alertStorage(ctx context.Context, op string, err error) {
	notify.AlertStorageFailure(ctx, e.notifier, op, err,
		ErrNotFound, ErrExhausted, ErrAlreadyClaimed, ErrBanned, ErrBadParams,
		store.ErrUserNotFound, ledger.ErrNonPositiveAmount)
}
