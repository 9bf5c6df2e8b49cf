package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/synkgo/rewards/internal/models"
)

// ModeratorsHandler manages reviewer role grants.
type ModeratorsHandler struct {
	db      *gorm.DB
	adminID int64
}

// NewModeratorsHandler constructs a ModeratorsHandler.
func NewModeratorsHandler(db *gorm.DB, adminID int64) *ModeratorsHandler {
	return &ModeratorsHandler{db: db, adminID: adminID}
}

// List returns all moderator grants.
func (h *ModeratorsHandler) List(c *gin.Context) {
	var rows []models.Moderator
	errFind := h.db.WithContext(c.Request.Context()).
		Order("created_at ASC").
		Find(&rows).Error
	if errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errFind.Error()})
		return
	}

	items := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		items = append(items, gin.H{
			"telegram_id": row.TelegramID,
			"active":      row.Active,
			"added_by":    row.AddedBy,
			"created_at":  row.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"moderators": items})
}

// addModeratorRequest defines the grant body.
type addModeratorRequest struct {
	TelegramID int64 `json:"telegram_id" binding:"required"`
}

// Add grants or re-activates a moderator role.
func (h *ModeratorsHandler) Add(c *gin.Context) {
	var body addModeratorRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	ctx := c.Request.Context()
	var existing models.Moderator
	errFind := h.db.WithContext(ctx).
		First(&existing, "telegram_id = ?", body.TelegramID).Error
	switch {
	case errFind == nil:
		if errUpdate := h.db.WithContext(ctx).Model(&existing).Update("active", true).Error; errUpdate != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": errUpdate.Error()})
			return
		}
	case errors.Is(errFind, gorm.ErrRecordNotFound):
		row := models.Moderator{TelegramID: body.TelegramID, Active: true, AddedBy: h.adminID}
		if errCreate := h.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": errCreate.Error()})
			return
		}
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": errFind.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"telegram_id": body.TelegramID, "active": true})
}

// Remove deactivates a moderator grant. The row is kept for audit.
func (h *ModeratorsHandler) Remove(c *gin.Context) {
	telegramID, errParse := strconv.ParseInt(c.Param("telegram_id"), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid telegram_id"})
		return
	}

	res := h.db.WithContext(c.Request.Context()).
		Model(&models.Moderator{}).
		Where("telegram_id = ?", telegramID).
		Update("active", false)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": res.Error.Error()})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "moderator not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"telegram_id": telegramID, "active": false})
}
