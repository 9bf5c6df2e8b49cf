package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/synkgo/rewards/internal/settings"
)

// SettingsHandler reads and writes the allow-listed platform settings.
type SettingsHandler struct {
	db *gorm.DB
}

// NewSettingsHandler constructs a SettingsHandler.
func NewSettingsHandler(db *gorm.DB) *SettingsHandler {
	return &SettingsHandler{db: db}
}

// Get returns the current value of every allow-listed key.
func (h *SettingsHandler) Get(c *gin.Context) {
	values := gin.H{}
	for _, key := range settings.AllowedKeys() {
		if raw, ok := settings.DBConfigValue(key); ok && len(raw) > 0 {
			values[key] = json.RawMessage(raw)
		} else {
			values[key] = nil
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"settings":   values,
		"updated_at": settings.DBConfigUpdatedAt(),
	})
}

// Update writes one or more allow-listed settings and refreshes the
// in-memory snapshot.
func (h *SettingsHandler) Update(c *gin.Context) {
	var body map[string]json.RawMessage
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no settings provided"})
		return
	}

	for key := range body {
		if !settings.IsAllowedKey(key) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "key not allowed: " + key})
			return
		}
	}

	ctx := c.Request.Context()
	for key, value := range body {
		if errUpsert := settings.UpsertSetting(ctx, h.db, key, value); errUpsert != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": errUpsert.Error()})
			return
		}
	}
	if errRefresh := settings.RefreshDBConfigSnapshot(ctx, h.db); errRefresh != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errRefresh.Error()})
		return
	}

	log.WithField("keys", len(body)).Info("settings updated")
	c.JSON(http.StatusOK, gin.H{"updated": len(body)})
}
