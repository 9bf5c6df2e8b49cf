package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/synkgo/rewards/internal/gift"
)

// GiftCodesHandler manages promotional codes.
type GiftCodesHandler struct {
	engine  *gift.Engine
	adminID int64
}

// NewGiftCodesHandler constructs a GiftCodesHandler.
func NewGiftCodesHandler(engine *gift.Engine, adminID int64) *GiftCodesHandler {
	return &GiftCodesHandler{engine: engine, adminID: adminID}
}

// createGiftRequest defines the creation body.
type createGiftRequest struct {
	Code      string `json:"code"`
	Points    int64  `json:"points" binding:"required"`
	MaxClaims int    `json:"max_claims" binding:"required"`
}

// Create stores a new gift code.
func (h *GiftCodesHandler) Create(c *gin.Context) {
	var body createGiftRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	code, errCreate := h.engine.Create(c.Request.Context(), h.adminID, body.Code, body.Points, body.MaxClaims)
	if errCreate != nil {
		if errors.Is(errCreate, gift.ErrBadParams) {
			c.JSON(http.StatusBadRequest, gin.H{"error": errCreate.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": errCreate.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":         code.ID,
		"code":       code.CodeText,
		"points":     code.PointsAwarded,
		"max_claims": code.MaxClaims,
	})
}

// List returns existing gift codes and their consumption.
func (h *GiftCodesHandler) List(c *gin.Context) {
	codes, errList := h.engine.List(c.Request.Context(), 100)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errList.Error()})
		return
	}

	items := make([]gin.H, 0, len(codes))
	for _, code := range codes {
		items = append(items, gin.H{
			"id":         code.ID,
			"code":       code.CodeText,
			"points":     code.PointsAwarded,
			"max_claims": code.MaxClaims,
			"claims":     code.ClaimsSoFar,
			"created_at": code.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"gift_codes": items})
}
