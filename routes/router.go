package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/cppla/bottlecaps/config"
	"github.com/cppla/bottlecaps/controllers"
	"github.com/cppla/bottlecaps/middleware"
	"github.com/cppla/bottlecaps/services"
	"github.com/cppla/bottlecaps/store"
	"github.com/cppla/bottlecaps/utils"
)

// Deps carries everything the router wires into controllers.
type Deps struct {
	Store        store.Store
	Claims       *services.ClaimService
	Analytics    *services.AnalyticsService
	Promotions   *services.PromotionService
	Admin        *services.AdminService
	MediaStorage utils.MediaStorage
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(d Deps) *gin.Engine {
	// Load config and set Gin mode from configuration
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Access log and panic recovery go to their own rolling file when GinPath is set
	accessLog := utils.NewAccessLogger(cfg)
	r.Use(utils.Ginzap(accessLog))
	r.Use(utils.RecoveryWithZap(accessLog))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}

	r.Use(cors.New(corsCfg))
	// Blacklisted client IPs are refused before any handler runs
	r.Use(middleware.BlacklistFilter(d.Store))

	if cfg.MediaBucket == "" {
		r.Static(utils.LocalMediaURLPrefix, cfg.MediaLocalDir)
	}

	authController := controllers.NewAuthController(d.Store)
	claimController := controllers.NewClaimController(d.Claims, d.Store, cfg.ClaimLockTTL)
	promoController := controllers.NewPromotionController(d.Promotions)
	referralController := controllers.NewReferralController(d.Store)
	statsController := controllers.NewStatsController(d.Store, d.Analytics)
	adminController := controllers.NewAdminController(d.Store, d.Admin)
	mediaController := controllers.NewMediaController(d.Store, d.MediaStorage, cfg.MediaMaxBytes)
	configController := controllers.NewConfigController()

	r.GET("/health", statsController.Health)

	api := r.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware())

	authGroup := api.Group("/auth")
	authGroup.POST("/register", authController.Register)
	authGroup.POST("/login", authController.Login)
	authGroup.POST("/logout", middleware.AuthRequired(), authController.Logout)
	authGroup.GET("/me", middleware.AuthRequired(), authController.Me)
	authGroup.PATCH("/profile", middleware.AuthRequired(), authController.UpdateProfile)

	// Public endpoints
	api.GET("/stats", statsController.GetStats)
	api.GET("/leaderboard", statsController.Leaderboard)
	api.GET("/promotions/active", promoController.Active)
	api.GET("/config/rules", configController.GetRules)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired())
	protected.POST("/claims", middleware.ClaimRateLimit(cfg.ClaimRateLimitPerMinute), claimController.Claim)
	protected.GET("/claims", claimController.History)
	protected.GET("/claims/status", claimController.Status)
	protected.GET("/referrals", referralController.Mine)
	protected.GET("/analytics/me", statsController.MyAnalytics)

	admin := api.Group("/admin")
	admin.Use(middleware.AuthRequired(), middleware.AdminRequired(d.Store))
	admin.GET("/users", adminController.ListUsers)
	admin.POST("/users/:id/ban", adminController.Ban)
	admin.POST("/users/:id/unban", adminController.Unban)
	admin.POST("/users/:id/bonus", adminController.GrantBonus)
	admin.POST("/users/:id/reset-streak", adminController.ResetStreak)
	admin.POST("/users/:id/admin", adminController.GrantAdmin)
	admin.DELETE("/users/:id/admin", adminController.RevokeAdmin)
	admin.GET("/claim-logs", adminController.ClaimLogs)
	admin.GET("/blacklist", adminController.ListBlacklist)
	admin.POST("/blacklist", adminController.AddBlacklist)
	admin.DELETE("/blacklist/:id", adminController.RemoveBlacklist)
	admin.GET("/promotions", promoController.List)
	admin.POST("/promotions", promoController.Create)
	admin.POST("/promotions/:id/end", promoController.End)
	admin.GET("/media", mediaController.List)
	admin.POST("/media", mediaController.Upload)
	admin.DELETE("/media/:id", mediaController.Delete)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "route not found")
	})

	return r
}
