package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/synkgo/rewards/internal/models"
	"github.com/synkgo/rewards/internal/payout"
	"github.com/synkgo/rewards/internal/store"
)

// DashboardHandler exposes platform statistics and wallet state.
type DashboardHandler struct {
	store   *store.Store
	gateway payout.Gateway
}

// NewDashboardHandler constructs a DashboardHandler.
func NewDashboardHandler(st *store.Store, gateway payout.Gateway) *DashboardHandler {
	return &DashboardHandler{store: st, gateway: gateway}
}

// Stats returns aggregate platform counters.
func (h *DashboardHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()
	db := h.store.DB().WithContext(ctx)

	var userCount, bannedCount int64
	if errCount := db.Model(&models.User{}).Count(&userCount).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errCount.Error()})
		return
	}
	if errCount := db.Model(&models.User{}).Where("banned = ?", true).Count(&bannedCount).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errCount.Error()})
		return
	}

	codesByStatus := gin.H{}
	for _, status := range []string{models.CodeStatusPending, models.CodeStatusApproved, models.CodeStatusRejected} {
		var n int64
		if errCount := db.Model(&models.Code{}).Where("status = ?", status).Count(&n).Error; errCount != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": errCount.Error()})
			return
		}
		codesByStatus[status] = n
	}

	withdrawalsByStatus := gin.H{}
	for _, status := range []string{
		models.WithdrawalStatusProcessing, models.WithdrawalStatusCompleted,
		models.WithdrawalStatusFailed, models.WithdrawalStatusRejected,
	} {
		var n int64
		if errCount := db.Model(&models.Withdrawal{}).Where("status = ?", status).Count(&n).Error; errCount != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": errCount.Error()})
			return
		}
		withdrawalsByStatus[status] = n
	}

	var totalBalance, totalEarned int64
	if errSum := db.Model(&models.User{}).Select("COALESCE(SUM(balance), 0)").Scan(&totalBalance).Error; errSum != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errSum.Error()})
		return
	}
	if errSum := db.Model(&models.User{}).Select("COALESCE(SUM(total_earned), 0)").Scan(&totalEarned).Error; errSum != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errSum.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"users":         userCount,
		"banned_users":  bannedCount,
		"codes":         codesByStatus,
		"withdrawals":   withdrawalsByStatus,
		"total_balance": totalBalance,
		"total_earned":  totalEarned,
	})
}

// Wallet returns the hot wallet's liquidity.
func (h *DashboardHandler) Wallet(c *gin.Context) {
	liq, errLiq := h.gateway.Liquidity(c.Request.Context())
	if errLiq != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": errLiq.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"gas_wei":     liq.GasWei.String(),
		"token_units": liq.TokenUnits.String(),
	})
}
