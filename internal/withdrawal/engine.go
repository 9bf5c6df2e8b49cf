// Package withdrawal implements the payout state machine. Points are
// reserved when a request is accepted and travel with the withdrawal row
// until it settles; failed and rejected withdrawals refund the reservation
// exactly once via conditional status transitions.
package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/synkgo/rewards/internal/ledger"
	"github.com/synkgo/rewards/internal/models"
	"github.com/synkgo/rewards/internal/notify"
	"github.com/synkgo/rewards/internal/payout"
	"github.com/synkgo/rewards/internal/retry"
	"github.com/synkgo/rewards/internal/settings"
	"github.com/synkgo/rewards/internal/store"
)

// Engine errors.
var (
	ErrBanned        = errors.New("withdrawal: user is banned")
	ErrBelowMinimum  = errors.New("withdrawal: below minimum amount")
	ErrBadAddress    = errors.New("withdrawal: invalid payout address")
	ErrInFlight      = errors.New("withdrawal: another withdrawal is in flight")
	ErrNotFound      = errors.New("withdrawal: not found")
	ErrNotProcessing = errors.New("withdrawal: not in processing state")
)

// errStillPending signals that a receipt has not appeared yet.
var errStillPending = errors.New("withdrawal: transaction still pending")

// Engine drives withdrawals from request to settlement.
type Engine struct {
	store    *store.Store
	gateway  payout.Gateway
	notifier notify.Notifier

	broadcastPolicy retry.Policy
	confirmPolicy   retry.Policy
}

// NewEngine creates a withdrawal engine.
func NewEngine(st *store.Store, gateway payout.Gateway, notifier notify.Notifier) *Engine {
	return &Engine{
		store:           st,
		gateway:         gateway,
		notifier:        notifier,
		broadcastPolicy: retry.Policy{MaxAttempts: 3, Delay: 2 * time.Second},
		confirmPolicy:   retry.Policy{MaxAttempts: 10, Delay: 6 * time.Second},
	}
}

// Request reserves points and creates a processing withdrawal. A user may
// only have one withdrawal in flight at a time.
func (e *Engine) Request(ctx context.Context, telegramID int64, points int64, payoutAddress string) (*models.Withdrawal, error) {
	minWithdraw := settings.MinWithdraw()
	if points < minWithdraw {
		return nil, fmt.Errorf("%w: %d < %d", ErrBelowMinimum, points, minWithdraw)
	}
	if !payout.ValidAddress(payoutAddress) {
		return nil, ErrBadAddress
	}

	var wd models.Withdrawal
	errTx := e.store.Transact(ctx, func(tx *gorm.DB) error {
		user, errLock := store.LockUserByTelegramID(tx, telegramID)
		if errLock != nil {
			return errLock
		}
		if user.Banned {
			return ErrBanned
		}

		var inFlight int64
		errCount := tx.Model(&models.Withdrawal{}).
			Where("user_id = ? AND status IN ?", telegramID,
				[]string{models.WithdrawalStatusPending, models.WithdrawalStatusProcessing}).
			Count(&inFlight).Error
		if errCount != nil {
			return fmt.Errorf("withdrawal: in-flight check: %w", errCount)
		}
		if inFlight > 0 {
			return ErrInFlight
		}

		if errDebit := ledger.Debit(user, points); errDebit != nil {
			return errDebit
		}
		if errSave := tx.Save(user).Error; errSave != nil {
			return fmt.Errorf("withdrawal: save user: %w", errSave)
		}

		wd = models.Withdrawal{
			WithdrawalID:  newWithdrawalID(telegramID),
			UserID:        telegramID,
			Points:        points,
			PayoutAddress: payoutAddress,
			Status:        models.WithdrawalStatusProcessing,
		}
		if errCreate := tx.Create(&wd).Error; errCreate != nil {
			return fmt.Errorf("withdrawal: create: %w", errCreate)
		}
		return nil
	})
	if errTx != nil {
		e.alertStorage(ctx, "withdrawal request", errTx)
		return nil, errTx
	}

	log.WithFields(log.Fields{
		"withdrawal": wd.WithdrawalID,
		"user":       telegramID,
		"points":     points,
	}).Info("withdrawal requested")
	return &wd, nil
}

// newWithdrawalID builds an external id carrying the request time and the
// requester. The random suffix keeps ids unique when a user re-requests
// within the same second.
func newWithdrawalID(telegramID int64) string {
	return fmt.Sprintf("wd_%d_%d_%s", time.Now().Unix(), telegramID, uuid.NewString()[:8])
}

// Process settles one processing withdrawal. It runs outside any database
// transaction: the reservation already happened at request time and every
// terminal transition is a conditional update, so a crash mid-way leaves a
// processing row for the reconciler rather than lost points.
func (e *Engine) Process(ctx context.Context, withdrawalID string) error {
	var wd models.Withdrawal
	errFind := e.store.DB().WithContext(ctx).
		First(&wd, "withdrawal_id = ?", withdrawalID).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		errFind = fmt.Errorf("withdrawal: find: %w", errFind)
		e.alertStorage(ctx, "withdrawal lookup", errFind)
		return errFind
	}
	if wd.Status != models.WithdrawalStatusProcessing {
		return ErrNotProcessing
	}

	// Liquidity shortfalls are not transient: fail immediately and let an
	// operator top up the wallet.
	liq, errLiq := e.gateway.Liquidity(ctx)
	if errLiq != nil {
		e.notifier.NotifyOperator(ctx,
			fmt.Sprintf("Withdrawal %s: liquidity check failed: %v", wd.WithdrawalID, errLiq))
		return e.finalizeFailed(ctx, &wd, fmt.Sprintf("liquidity check failed: %v", errLiq))
	}
	if !e.gateway.CanCover(liq, wd.Points) {
		e.notifier.NotifyOperator(ctx,
			fmt.Sprintf("Withdrawal %s failed: insufficient hot wallet liquidity.", wd.WithdrawalID))
		return e.finalizeFailed(ctx, &wd, "insufficient liquidity")
	}

	var txHash string
	errBroadcast := e.broadcastPolicy.Do(ctx, func(ctx context.Context) error {
		hash, errSend := e.gateway.BroadcastTransfer(ctx, wd.PayoutAddress, wd.Points)
		if errSend != nil {
			return errSend
		}
		txHash = hash
		return nil
	})
	if errBroadcast != nil {
		return e.finalizeFailed(ctx, &wd, fmt.Sprintf("broadcast failed: %v", errBroadcast))
	}

	// Record the hash as soon as the transaction is out so the reconciler
	// can see that funds may have moved.
	errHash := e.store.DB().WithContext(ctx).
		Model(&models.Withdrawal{}).
		Where("withdrawal_id = ? AND status = ?", wd.WithdrawalID, models.WithdrawalStatusProcessing).
		Update("tx_hash", txHash).Error
	if errHash != nil {
		errHash = fmt.Errorf("withdrawal: record hash: %w", errHash)
		e.alertStorage(ctx, "withdrawal hash update", errHash)
		return errHash
	}

	reverted := false
	errConfirm := e.confirmPolicy.Do(ctx, func(ctx context.Context) error {
		status, errStatus := e.gateway.Confirm(ctx, txHash)
		if errStatus != nil {
			return errStatus
		}
		switch status {
		case payout.ConfirmSuccess:
			return nil
		case payout.ConfirmReverted:
			reverted = true
			return nil
		default:
			return errStillPending
		}
	})
	if errConfirm != nil {
		// Still unconfirmed. Leave the row processing; the reconciler
		// picks it up if it never settles.
		log.WithFields(log.Fields{
			"withdrawal": wd.WithdrawalID,
			"tx_hash":    txHash,
		}).Warn("withdrawal unconfirmed after polling")
		e.notifier.NotifyUser(ctx, wd.UserID, fmt.Sprintf(
			"Withdrawal %s is still waiting for on-chain confirmation. You will hear back within the hour.",
			wd.WithdrawalID))
		return nil
	}
	if reverted {
		return e.finalizeFailed(ctx, &wd, "transaction reverted")
	}
	return e.finalizeCompleted(ctx, &wd, txHash)
}

// Reject cancels a processing withdrawal and refunds the reservation.
func (e *Engine) Reject(ctx context.Context, withdrawalID string, reason string) error {
	var wd models.Withdrawal
	errFind := e.store.DB().WithContext(ctx).
		First(&wd, "withdrawal_id = ?", withdrawalID).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		errFind = fmt.Errorf("withdrawal: find: %w", errFind)
		e.alertStorage(ctx, "withdrawal lookup", errFind)
		return errFind
	}

	errTerm := e.terminate(ctx, &wd, models.WithdrawalStatusRejected, reason, true)
	if errTerm != nil {
		e.alertStorage(ctx, "withdrawal rejection", errTerm)
		return errTerm
	}
	e.notifier.NotifyUser(ctx, wd.UserID,
		fmt.Sprintf("Withdrawal %s was rejected. %d points refunded.", wd.WithdrawalID, wd.Points))
	return nil
}

// ListByUser returns a user's withdrawals, newest first.
func (e *Engine) ListByUser(ctx context.Context, telegramID int64, limit int) ([]models.Withdrawal, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []models.Withdrawal
	errFind := e.store.DB().WithContext(ctx).
		Where("user_id = ?", telegramID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("withdrawal: list: %w", errFind)
	}
	return rows, nil
}

// finalizeCompleted marks a withdrawal completed and bumps the user's
// settled counter. The conditional update makes settlement idempotent.
func (e *Engine) finalizeCompleted(ctx context.Context, wd *models.Withdrawal, txHash string) error {
	now := time.Now().UTC()
	errTx := e.store.Transact(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.Withdrawal{}).
			Where("withdrawal_id = ? AND status = ?", wd.WithdrawalID, models.WithdrawalStatusProcessing).
			Updates(map[string]any{
				"status":       models.WithdrawalStatusCompleted,
				"tx_hash":      txHash,
				"processed_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("withdrawal: complete: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		user, errLock := store.LockUserByTelegramID(tx, wd.UserID)
		if errLock != nil {
			return errLock
		}
		user.WithdrawalCount++
		if errSave := tx.Save(user).Error; errSave != nil {
			return fmt.Errorf("withdrawal: save user: %w", errSave)
		}
		return nil
	})
	if errTx != nil {
		e.alertStorage(ctx, "withdrawal settlement", errTx)
		return errTx
	}

	log.WithFields(log.Fields{
		"withdrawal": wd.WithdrawalID,
		"tx_hash":    txHash,
	}).Info("withdrawal completed")
	e.notifier.NotifyUser(ctx, wd.UserID,
		fmt.Sprintf("Withdrawal %s completed. Tx: %s", wd.WithdrawalID, txHash))
	return nil
}

// finalizeFailed marks a withdrawal failed and refunds the reservation.
func (e *Engine) finalizeFailed(ctx context.Context, wd *models.Withdrawal, reason string) error {
	errTerm := e.terminate(ctx, wd, models.WithdrawalStatusFailed, reason, true)
	if errTerm != nil {
		e.alertStorage(ctx, "withdrawal failure handling", errTerm)
		return errTerm
	}
	e.notifier.NotifyUser(ctx, wd.UserID,
		fmt.Sprintf("Withdrawal %s failed: %s. %d points refunded.", wd.WithdrawalID, reason, wd.Points))
	return nil
}

// terminate moves a processing withdrawal to a terminal status. The status
// guard in the update means concurrent callers race to a single refund.
func (e *Engine) terminate(ctx context.Context, wd *models.Withdrawal, status string, reason string, refund bool) error {
	now := time.Now().UTC()
	return e.store.Transact(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.Withdrawal{}).
			Where("withdrawal_id = ? AND status = ?", wd.WithdrawalID, models.WithdrawalStatusProcessing).
			Updates(map[string]any{
				"status":       status,
				"fail_reason":  reason,
				"processed_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("withdrawal: terminate: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotProcessing
		}
		if !refund {
			return nil
		}

		user, errLock := store.LockUserByTelegramID(tx, wd.UserID)
		if errLock != nil {
			return errLock
		}
		if errRefund := ledger.Refund(user, wd.Points); errRefund != nil {
			return errRefund
		}
		if errSave := tx.Save(user).Error; errSave != nil {
			return fmt.Errorf("withdrawal: save user: %w", errSave)
		}

		log.WithFields(log.Fields{
			"withdrawal": wd.WithdrawalID,
			"status":     status,
			"reason":     reason,
			"refund":     wd.Points,
		}).Info("withdrawal terminated")
		return nil
	})
}

// alertStorage raises an operator alert for unexpected storage errors.
// Business rejections pass through quietly.
func (e *Engine) alertStorage(ctx context.Context, op string, err error) {
	notify.AlertStorageFailure(ctx, e.notifier, op, err,
		ErrBanned, ErrBelowMinimum, ErrBadAddress, ErrInFlight, ErrNotFound,
		ErrNotProcessing, ledger.ErrInsufficientBalance, store.ErrUserNotFound)
}
