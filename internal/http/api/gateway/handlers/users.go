package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/synkgo/rewards/internal/moderation"
	"github.com/synkgo/rewards/internal/store"
)

// UsersHandler exposes user bootstrap, profile and referral endpoints.
type UsersHandler struct {
	store      *store.Store
	moderation *moderation.Engine
}

// NewUsersHandler constructs a UsersHandler.
func NewUsersHandler(st *store.Store, mod *moderation.Engine) *UsersHandler {
	return &UsersHandler{store: st, moderation: mod}
}

// bootstrapRequest defines the first-contact body.
type bootstrapRequest struct {
	TelegramID   int64  `json:"telegram_id" binding:"required"`
	ReferralCode string `json:"referral_code"`
}

// Bootstrap creates the user on first contact and optionally binds the
// referral code they arrived with.
func (h *UsersHandler) Bootstrap(c *gin.Context) {
	var body bootstrapRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	ctx := c.Request.Context()
	user, errUser := h.store.GetOrCreateUser(ctx, body.TelegramID)
	if errUser != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errUser.Error()})
		return
	}

	referralBound := false
	if body.ReferralCode != "" {
		errAttach := h.moderation.AttachReferrer(ctx, body.TelegramID, body.ReferralCode)
		switch errAttach {
		case nil:
			referralBound = true
		case moderation.ErrAlreadyReferred, moderation.ErrSelfReferral, moderation.ErrReferrerUnknown:
			// First contact with a bad or repeated referral link still
			// creates the account.
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": errAttach.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"telegram_id":    user.TelegramID,
		"referral_code":  user.ReferralCode,
		"referral_bound": referralBound,
	})
}

// Profile returns a user's ledger state.
func (h *UsersHandler) Profile(c *gin.Context) {
	telegramID, ok := pathTelegramID(c)
	if !ok {
		return
	}

	user, errUser := h.store.GetUser(c.Request.Context(), telegramID)
	if errUser != nil {
		respondModerationError(c, errUser)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"telegram_id":         user.TelegramID,
		"balance":             user.Balance,
		"total_earned":        user.TotalEarned,
		"referral_code":       user.ReferralCode,
		"referral_commission": user.ReferralCommission,
		"withdrawal_count":    user.WithdrawalCount,
		"banned":              user.Banned,
	})
}

// attachReferrerRequest binds a referral code after first contact.
type attachReferrerRequest struct {
	TelegramID   int64  `json:"telegram_id" binding:"required"`
	ReferralCode string `json:"referral_code" binding:"required"`
}

// AttachReferrer binds a referral code to an existing user.
func (h *UsersHandler) AttachReferrer(c *gin.Context) {
	var body attachReferrerRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	if errAttach := h.moderation.AttachReferrer(c.Request.Context(), body.TelegramID, body.ReferralCode); errAttach != nil {
		respondModerationError(c, errAttach)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bound": true})
}

// Referrals reports a user's downline activity.
func (h *UsersHandler) Referrals(c *gin.Context) {
	telegramID, ok := pathTelegramID(c)
	if !ok {
		return
	}

	report, errReport := h.moderation.ActiveReferrals(c.Request.Context(), telegramID)
	if errReport != nil {
		respondModerationError(c, errReport)
		return
	}
	c.JSON(http.StatusOK, report)
}
