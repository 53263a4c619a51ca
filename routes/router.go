package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/novojourney/novo/controllers"
	"github.com/novojourney/novo/middleware"
	"github.com/novojourney/novo/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(app *App) *gin.Engine {
	cfg := app.Config
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Access log goes to its own rolling file; without one only recovery is installed.
	if cfg.GinPath != "" {
		gl, err := utils.NewRollingFileLogger(utils.RotationOptions{
			Path:       cfg.GinPath,
			MaxSizeMB:  cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAgeDays: cfg.LogMaxAgeDays,
			Compress:   cfg.LogCompress,
		}, cfg.LogLevel)
		if err == nil {
			r.Use(utils.Ginzap(gl, time.RFC3339, true))
			r.Use(utils.RecoveryWithZap(gl, false))
		} else {
			app.Logger.Warn("gin access log unavailable, using default recovery")
			r.Use(gin.Recovery())
		}
	} else {
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	authn := middleware.NewAuthenticator(app.Issuer, app.Revoked)
	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute)

	authController := controllers.NewAuthController(app.Sessions, app.Accounts, app.Issuer, app.States, app.Guard, app.Logger.Named("auth"))
	profileController := controllers.NewProfileController(app.Fallback, app.Profiles, app.Journal, app.Registrar, app.Logger.Named("profile"))
	journeyController := controllers.NewJourneyController(app.Journey, app.Fallback, app.Journal, app.Logger.Named("journey"))
	prayerController := controllers.NewPrayerController(app.Prayers, app.Fallback, app.Feed, app.Publisher, app.Logger.Named("prayers"))
	statsController := controllers.NewStatsController(app.Profiles, app.Journal, app.Prayers, app.Donations)
	donationController := controllers.NewDonationController(app.Gateway, app.Donations, app.Publisher, app.Logger.Named("donations"))

	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.Use(limiter.Middleware())
	authGroup.POST("/anonymous", authController.Anonymous)
	authGroup.POST("/register", authn.Optional(), authController.Register)
	authGroup.POST("/login", authn.Optional(), authController.Login)
	authGroup.GET("/oauth/:provider/login", authn.Optional(), authController.OAuthRedirect)
	authGroup.GET("/oauth/:provider/callback", authController.OAuthCallback)
	authGroup.POST("/oauth/:provider/callback", authController.OAuthCallback)
	authGroup.POST("/logout", authn.Required(), authController.Logout)
	authGroup.GET("/me", authn.Required(), authController.Me)
	authGroup.DELETE("/account", authn.Required(), authController.DeleteAccount)

	// Public content and community endpoints
	api.GET("/rescue", journeyController.Rescue)
	api.GET("/journey/weeks", journeyController.Weeks)
	api.GET("/stats", statsController.GetStats)
	api.GET("/prayers", prayerController.List)
	api.GET("/prayers/stream", prayerController.Stream)

	protected := api.Group("")
	protected.Use(authn.Required(), limiter.Middleware())
	protected.GET("/profile", profileController.Get)
	protected.PATCH("/profile", profileController.UpdateNickname)
	protected.POST("/profile/push-token", profileController.RegisterPushToken)
	protected.GET("/journey/today", journeyController.Today)
	protected.POST("/journey/complete", journeyController.Complete)
	protected.GET("/journal", journeyController.Journal)
	protected.POST("/prayers", prayerController.Create)
	protected.POST("/prayers/:id/pray", prayerController.Pray)

	pesepay := r.Group("/api/pesepay")
	pesepay.POST("/initiate", limiter.Middleware(), donationController.Initiate)
	pesepay.POST("/result", donationController.Result)

	r.NoRoute(func(ctx *gin.Context) {
		if strings.HasPrefix(ctx.Request.URL.Path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, utils.CodeNotFound, "api route not found")
			return
		}
		utils.Error(ctx, http.StatusNotFound, utils.CodeNotFound, "not found")
	})

	return r
}
