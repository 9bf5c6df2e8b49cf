package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/synkgo/rewards/internal/ledger"
	"github.com/synkgo/rewards/internal/models"
	"github.com/synkgo/rewards/internal/store"
)

// UsersHandler exposes operator actions on user accounts.
type UsersHandler struct {
	store *store.Store
}

// NewUsersHandler constructs a UsersHandler.
func NewUsersHandler(st *store.Store) *UsersHandler {
	return &UsersHandler{store: st}
}

func parseTelegramID(c *gin.Context) (int64, bool) {
	id, errParse := strconv.ParseInt(c.Param("telegram_id"), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid telegram_id"})
		return 0, false
	}
	return id, true
}

// setBanned flips the banned flag for a user.
func (h *UsersHandler) setBanned(c *gin.Context, banned bool) {
	telegramID, ok := parseTelegramID(c)
	if !ok {
		return
	}

	res := h.store.DB().WithContext(c.Request.Context()).
		Model(&models.User{}).
		Where("telegram_id = ?", telegramID).
		Update("banned", banned)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": res.Error.Error()})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	log.WithFields(log.Fields{"user": telegramID, "banned": banned}).Info("ban flag updated")
	c.JSON(http.StatusOK, gin.H{"telegram_id": telegramID, "banned": banned})
}

// Ban blocks a user from all operations.
func (h *UsersHandler) Ban(c *gin.Context) { h.setBanned(c, true) }

// Unban restores a blocked user.
func (h *UsersHandler) Unban(c *gin.Context) { h.setBanned(c, false) }

// adjustRequest defines a manual balance correction.
type adjustRequest struct {
	Delta  int64  `json:"delta" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

// Adjust applies a manual balance correction. Positive deltas are credits
// and count toward total earned; negative deltas are debits and fail
// rather than drive the balance negative.
func (h *UsersHandler) Adjust(c *gin.Context) {
	telegramID, ok := parseTelegramID(c)
	if !ok {
		return
	}
	var body adjustRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	var balance int64
	errTx := h.store.Transact(c.Request.Context(), func(tx *gorm.DB) error {
		user, errLock := store.LockUserByTelegramID(tx, telegramID)
		if errLock != nil {
			return errLock
		}
		var errApply error
		if body.Delta > 0 {
			errApply = ledger.Credit(user, body.Delta)
		} else {
			errApply = ledger.Debit(user, -body.Delta)
		}
		if errApply != nil {
			return errApply
		}
		if errSave := tx.Save(user).Error; errSave != nil {
			return errSave
		}
		balance = user.Balance
		return nil
	})
	if errTx != nil {
		switch {
		case errors.Is(errTx, store.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": errTx.Error()})
		case errors.Is(errTx, ledger.ErrInsufficientBalance),
			errors.Is(errTx, ledger.ErrNonPositiveAmount):
			c.JSON(http.StatusBadRequest, gin.H{"error": errTx.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": errTx.Error()})
		}
		return
	}

	log.WithFields(log.Fields{
		"user":   telegramID,
		"delta":  body.Delta,
		"reason": body.Reason,
	}).Info("balance adjusted")
	c.JSON(http.StatusOK, gin.H{"telegram_id": telegramID, "balance": balance})
}
