package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// pathID parses a numeric path parameter, responding 400 on failure.
func pathID(c *gin.Context, name string) (uint64, bool) {
	id, errParse := strconv.ParseUint(c.Param(name), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// pathTelegramID parses a messaging id path parameter.
func pathTelegramID(c *gin.Context) (int64, bool) {
	id, errParse := strconv.ParseInt(c.Param("telegram_id"), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid telegram_id"})
		return 0, false
	}
	return id, true
}
