// Package http wires the gin router. Gateway routes are called by the
// messaging relay and authenticate with a shared service token; admin
// routes are the operator console and authenticate with a JWT.
package http

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/synkgo/rewards/internal/security"
	"github.com/synkgo/rewards/internal/settings"
)

// ServiceTokenMiddleware authorizes relay requests via X-Service-Token.
func ServiceTokenMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := strings.TrimSpace(c.GetHeader("X-Service-Token"))
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid service token"})
			return
		}
		c.Next()
	}
}

// MaintenanceMiddleware rejects mutating requests while the platform is in
// maintenance mode. Reads stay available so the relay can show state.
func MaintenanceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && settings.MaintenanceActive() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "maintenance mode"})
			return
		}
		c.Next()
	}
}

// adminIDKey is the context key the admin middleware sets.
const adminIDKey = "admin_id"

// AdminAuthMiddleware validates the console JWT and stores the admin id in
// the request context.
func AdminAuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		claims, errParse := security.ParseAdminToken(jwtSecret, strings.TrimPrefix(header, "Bearer "))
		if errParse != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errParse.Error()})
			return
		}
		c.Set(adminIDKey, claims.AdminID)
		c.Next()
	}
}
