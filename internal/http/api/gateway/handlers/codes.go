// Package handlers implements the relay-facing API. The messaging relay
// authenticates with the service token and passes the acting user's id in
// each request body.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/synkgo/rewards/internal/ledger"
	"github.com/synkgo/rewards/internal/moderation"
	"github.com/synkgo/rewards/internal/store"
)

// CodesHandler exposes submission and moderation endpoints.
type CodesHandler struct {
	engine *moderation.Engine
}

// NewCodesHandler constructs a CodesHandler.
func NewCodesHandler(engine *moderation.Engine) *CodesHandler {
	return &CodesHandler{engine: engine}
}

// submitRequest defines the request body for code submission.
type submitRequest struct {
	TelegramID int64  `json:"telegram_id" binding:"required"`
	Code       string `json:"code" binding:"required"`
}

// Submit accepts a new code submission.
func (h *CodesHandler) Submit(c *gin.Context) {
	var body submitRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	code, errSubmit := h.engine.Submit(c.Request.Context(), body.TelegramID, body.Code)
	if errSubmit != nil {
		respondModerationError(c, errSubmit)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":     code.ID,
		"status": code.Status,
	})
}

// Pending lists pending submissions for review.
func (h *CodesHandler) Pending(c *gin.Context) {
	codes, errList := h.engine.PendingCodes(c.Request.Context(), 100)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errList.Error()})
		return
	}

	items := make([]gin.H, 0, len(codes))
	for _, code := range codes {
		items = append(items, gin.H{
			"id":           code.ID,
			"code":         code.CodeText,
			"submitter_id": code.SubmitterID,
			"submitted_at": code.SubmittedAt,
			"claimed":      code.LockedBy != nil,
		})
	}
	c.JSON(http.StatusOK, gin.H{"codes": items})
}

// reviewRequest identifies the acting reviewer.
type reviewRequest struct {
	ModeratorID int64 `json:"moderator_id" binding:"required"`
}

// Claim locks a pending code to a reviewer.
func (h *CodesHandler) Claim(c *gin.Context) {
	codeID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var body reviewRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	code, errClaim := h.engine.ClaimForDecision(c.Request.Context(), codeID, body.ModeratorID)
	if errClaim != nil {
		respondModerationError(c, errClaim)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":           code.ID,
		"code":         code.CodeText,
		"submitter_id": code.SubmitterID,
	})
}

// Release unlocks a claimed code without a decision.
func (h *CodesHandler) Release(c *gin.Context) {
	codeID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var body reviewRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	if errRelease := h.engine.ReleaseClaim(c.Request.Context(), codeID, body.ModeratorID); errRelease != nil {
		respondModerationError(c, errRelease)
		return
	}
	c.JSON(http.StatusOK, gin.H{"released": true})
}

// decideRequest defines the decision body.
type decideRequest struct {
	ModeratorID int64 `json:"moderator_id" binding:"required"`
	Approve     *bool `json:"approve" binding:"required"`
}

// Decide finalizes a claimed code.
func (h *CodesHandler) Decide(c *gin.Context) {
	codeID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var body decideRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	code, errDecide := h.engine.Decide(c.Request.Context(), codeID, body.ModeratorID, *body.Approve)
	if errDecide != nil {
		respondModerationError(c, errDecide)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":     code.ID,
		"status": code.Status,
	})
}

// respondModerationError maps moderation errors onto HTTP statuses.
func respondModerationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, moderation.ErrInvalidCode),
		errors.Is(err, moderation.ErrSelfReferral),
		errors.Is(err, moderation.ErrAlreadyReferred),
		errors.Is(err, moderation.ErrReferrerUnknown):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, moderation.ErrBanned),
		errors.Is(err, moderation.ErrNotModerator),
		errors.Is(err, moderation.ErrNotClaimant):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, moderation.ErrCooldown),
		errors.Is(err, moderation.ErrDailyLimit):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.Is(err, moderation.ErrDuplicateCode),
		errors.Is(err, moderation.ErrAlreadyClaimed),
		errors.Is(err, moderation.ErrNotPending):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, moderation.ErrCodeNotFound),
		errors.Is(err, store.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrInsufficientBalance):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
