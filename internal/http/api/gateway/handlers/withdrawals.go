package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/synkgo/rewards/internal/ledger"
	"github.com/synkgo/rewards/internal/store"
	"github.com/synkgo/rewards/internal/withdrawal"
)

// WithdrawalsHandler exposes payout requests and history.
type WithdrawalsHandler struct {
	engine *withdrawal.Engine
}

// NewWithdrawalsHandler constructs a WithdrawalsHandler.
func NewWithdrawalsHandler(engine *withdrawal.Engine) *WithdrawalsHandler {
	return &WithdrawalsHandler{engine: engine}
}

// withdrawRequest defines the payout request body.
type withdrawRequest struct {
	TelegramID    int64  `json:"telegram_id" binding:"required"`
	Points        int64  `json:"points" binding:"required"`
	PayoutAddress string `json:"payout_address" binding:"required"`
}

// Request reserves points and kicks off settlement in the background. The
// relay gets the withdrawal id immediately; the outcome arrives via
// notification.
func (h *WithdrawalsHandler) Request(c *gin.Context) {
	var body withdrawRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	wd, errRequest := h.engine.Request(c.Request.Context(), body.TelegramID, body.Points, body.PayoutAddress)
	if errRequest != nil {
		respondWithdrawalError(c, errRequest)
		return
	}

	go func(withdrawalID string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if errProcess := h.engine.Process(ctx, withdrawalID); errProcess != nil {
			log.WithError(errProcess).WithField("withdrawal", withdrawalID).
				Warn("background settlement failed")
		}
	}(wd.WithdrawalID)

	c.JSON(http.StatusAccepted, gin.H{
		"withdrawal_id": wd.WithdrawalID,
		"status":        wd.Status,
	})
}

// List returns a user's withdrawal history.
func (h *WithdrawalsHandler) List(c *gin.Context) {
	telegramID, ok := pathTelegramID(c)
	if !ok {
		return
	}

	rows, errList := h.engine.ListByUser(c.Request.Context(), telegramID, 20)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errList.Error()})
		return
	}

	items := make([]gin.H, 0, len(rows))
	for _, wd := range rows {
		items = append(items, gin.H{
			"withdrawal_id": wd.WithdrawalID,
			"points":        wd.Points,
			"status":        wd.Status,
			"tx_hash":       wd.TxHash,
			"fail_reason":   wd.FailReason,
			"created_at":    wd.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": items})
}

// respondWithdrawalError maps withdrawal errors onto HTTP statuses.
func respondWithdrawalError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, withdrawal.ErrBelowMinimum), errors.Is(err, withdrawal.ErrBadAddress):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, withdrawal.ErrBanned):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, withdrawal.ErrInFlight), errors.Is(err, ledger.ErrInsufficientBalance):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, withdrawal.ErrNotFound), errors.Is(err, store.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
