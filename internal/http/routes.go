package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	adminhandlers "github.com/synkgo/rewards/internal/http/api/admin/handlers"
	gatewayhandlers "github.com/synkgo/rewards/internal/http/api/gateway/handlers"
	"github.com/synkgo/rewards/internal/gift"
	"github.com/synkgo/rewards/internal/moderation"
	"github.com/synkgo/rewards/internal/payout"
	"github.com/synkgo/rewards/internal/store"
	"github.com/synkgo/rewards/internal/withdrawal"
)

// Deps bundles everything the router needs.
type Deps struct {
	DB         *gorm.DB
	Store      *store.Store
	Moderation *moderation.Engine
	Gift       *gift.Engine
	Withdrawal *withdrawal.Engine
	Gateway    payout.Gateway

	ServiceToken string
	JWTSecret    string
	TokenExpiry  time.Duration
	AdminID      int64
}

// NewRouter builds the gin engine with the relay and console route groups.
func NewRouter(deps Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	registerGatewayRoutes(router, deps)
	registerAdminRoutes(router, deps)
	return router
}

func registerGatewayRoutes(router *gin.Engine, deps Deps) {
	codes := gatewayhandlers.NewCodesHandler(deps.Moderation)
	users := gatewayhandlers.NewUsersHandler(deps.Store, deps.Moderation)
	gifts := gatewayhandlers.NewGiftsHandler(deps.Gift)
	withdrawals := gatewayhandlers.NewWithdrawalsHandler(deps.Withdrawal)

	api := router.Group("/api")
	api.Use(ServiceTokenMiddleware(deps.ServiceToken), MaintenanceMiddleware())
	{
		api.POST("/users/bootstrap", users.Bootstrap)
		api.GET("/users/:telegram_id", users.Profile)
		api.POST("/users/referrer", users.AttachReferrer)
		api.GET("/users/:telegram_id/referrals", users.Referrals)

		api.POST("/codes", codes.Submit)
		api.GET("/codes/pending", codes.Pending)
		api.POST("/codes/:id/claim", codes.Claim)
		api.POST("/codes/:id/release", codes.Release)
		api.POST("/codes/:id/decide", codes.Decide)

		api.POST("/gifts/claim", gifts.Claim)

		api.POST("/withdrawals", withdrawals.Request)
		api.GET("/withdrawals/:telegram_id", withdrawals.List)
	}
}

func registerAdminRoutes(router *gin.Engine, deps Deps) {
	auth := adminhandlers.NewAuthHandler(deps.DB, deps.JWTSecret, deps.TokenExpiry)
	giftCodes := adminhandlers.NewGiftCodesHandler(deps.Gift, deps.AdminID)
	settingsH := adminhandlers.NewSettingsHandler(deps.DB)
	moderators := adminhandlers.NewModeratorsHandler(deps.DB, deps.AdminID)
	users := adminhandlers.NewUsersHandler(deps.Store)
	withdrawals := adminhandlers.NewWithdrawalsHandler(deps.Store, deps.Withdrawal)
	dashboard := adminhandlers.NewDashboardHandler(deps.Store, deps.Gateway)

	admin := router.Group("/admin")
	admin.POST("/login", auth.Login)

	authed := admin.Group("")
	authed.Use(AdminAuthMiddleware(deps.JWTSecret))
	{
		authed.GET("/giftcodes", giftCodes.List)
		authed.POST("/giftcodes", giftCodes.Create)

		authed.GET("/settings", settingsH.Get)
		authed.PUT("/settings", settingsH.Update)

		authed.GET("/moderators", moderators.List)
		authed.POST("/moderators", moderators.Add)
		authed.DELETE("/moderators/:telegram_id", moderators.Remove)

		authed.POST("/users/:telegram_id/ban", users.Ban)
		authed.POST("/users/:telegram_id/unban", users.Unban)
		authed.POST("/users/:telegram_id/adjust", users.Adjust)

		authed.GET("/withdrawals", withdrawals.List)
		authed.POST("/withdrawals/:withdrawal_id/reject", withdrawals.Reject)

		authed.GET("/stats", dashboard.Stats)
		authed.GET("/wallet", dashboard.Wallet)
	}
}
