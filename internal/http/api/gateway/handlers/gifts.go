package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/synkgo/rewards/internal/gift"
	"github.com/synkgo/rewards/internal/store"
)

// GiftsHandler exposes gift code redemption.
type GiftsHandler struct {
	engine *gift.Engine
}

// NewGiftsHandler constructs a GiftsHandler.
func NewGiftsHandler(engine *gift.Engine) *GiftsHandler {
	return &GiftsHandler{engine: engine}
}

// claimRequest defines the redemption body.
type claimRequest struct {
	TelegramID int64  `json:"telegram_id" binding:"required"`
	Code       string `json:"code" binding:"required"`
}

// Claim redeems a gift code for the acting user.
func (h *GiftsHandler) Claim(c *gin.Context) {
	var body claimRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	awarded, errClaim := h.engine.Claim(c.Request.Context(), body.TelegramID, body.Code)
	if errClaim != nil {
		respondGiftError(c, errClaim)
		return
	}
	c.JSON(http.StatusOK, gin.H{"points": awarded})
}

// respondGiftError maps gift errors onto HTTP statuses.
func respondGiftError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gift.ErrNotFound), errors.Is(err, store.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, gift.ErrExhausted), errors.Is(err, gift.ErrAlreadyClaimed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, gift.ErrBanned):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
