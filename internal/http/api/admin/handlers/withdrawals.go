package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/synkgo/rewards/internal/models"
	"github.com/synkgo/rewards/internal/store"
	"github.com/synkgo/rewards/internal/withdrawal"
)

// WithdrawalsHandler exposes operator control over payouts.
type WithdrawalsHandler struct {
	store  *store.Store
	engine *withdrawal.Engine
}

// NewWithdrawalsHandler constructs a WithdrawalsHandler.
func NewWithdrawalsHandler(st *store.Store, engine *withdrawal.Engine) *WithdrawalsHandler {
	return &WithdrawalsHandler{store: st, engine: engine}
}

// List returns recent withdrawals across all users.
func (h *WithdrawalsHandler) List(c *gin.Context) {
	query := h.store.DB().WithContext(c.Request.Context()).
		Order("created_at DESC").
		Limit(100)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var rows []models.Withdrawal
	if errFind := query.Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errFind.Error()})
		return
	}

	items := make([]gin.H, 0, len(rows))
	for _, wd := range rows {
		items = append(items, gin.H{
			"withdrawal_id": wd.WithdrawalID,
			"user_id":       wd.UserID,
			"points":        wd.Points,
			"address":       wd.PayoutAddress,
			"status":        wd.Status,
			"tx_hash":       wd.TxHash,
			"fail_reason":   wd.FailReason,
			"created_at":    wd.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": items})
}

// rejectRequest defines the rejection body.
type rejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// Reject cancels a processing withdrawal and refunds the user.
func (h *WithdrawalsHandler) Reject(c *gin.Context) {
	withdrawalID := c.Param("withdrawal_id")
	var body rejectRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	errReject := h.engine.Reject(c.Request.Context(), withdrawalID, body.Reason)
	if errReject != nil {
		switch {
		case errors.Is(errReject, withdrawal.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": errReject.Error()})
		case errors.Is(errReject, withdrawal.ErrNotProcessing):
			c.JSON(http.StatusConflict, gin.H{"error": errReject.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": errReject.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawal_id": withdrawalID, "status": models.WithdrawalStatusRejected})
}
